package model

import (
	"strings"
	"time"
)

// RelationshipOneToMany is the cardinality assigned to every relationship
// inferred from a foreign key. Cardinality is always assumed one-to-many from
// the referencing side; unique FK columns (true one-to-one) are not detected.
const RelationshipOneToMany = "ONE_TO_MANY"

// SchemaContext is the normalized in-memory representation of one tenant
// database: tables, columns, constraints, and relationships inferred from
// foreign keys. It is built from raw catalog rows and cached with a TTL.
type SchemaContext struct {
	Tables        []SchemaTable  `json:"tables"`
	Relationships []Relationship `json:"relationships"`
	DatabaseType  string         `json:"database_type"`
	CachedAt      time.Time      `json:"cached_at"`
}

// SchemaTable describes the structure of a single table.
type SchemaTable struct {
	Name       string         `json:"name"`
	Columns    []SchemaColumn `json:"columns"`
	PrimaryKey []string       `json:"primary_key,omitempty"`
	Indexes    []SchemaIndex  `json:"indexes,omitempty"`
}

// SchemaColumn describes a single column within a table.
type SchemaColumn struct {
	Name                string        `json:"name"`
	Type                string        `json:"type"`
	Nullable            bool          `json:"nullable"`
	IsUnique            bool          `json:"is_unique"`
	IsForeignKey        bool          `json:"is_foreign_key"`
	ForeignKeyReference *ColumnTarget `json:"foreign_key_reference,omitempty"`
}

// ColumnTarget identifies a column in another table, used as the target of a
// foreign key reference.
type ColumnTarget struct {
	Table  string `json:"table"`
	Column string `json:"column"`
}

// SchemaIndex describes a database index on one or more columns.
type SchemaIndex struct {
	Name     string   `json:"name"`
	Columns  []string `json:"columns"`
	IsUnique bool     `json:"is_unique"`
}

// Relationship links a foreign key column to the column it references.
// Both endpoints are guaranteed to exist in the Tables slice of the owning
// SchemaContext.
type Relationship struct {
	FromTable  string `json:"from_table"`
	FromColumn string `json:"from_column"`
	ToTable    string `json:"to_table"`
	ToColumn   string `json:"to_column"`
	Type       string `json:"type"` // always RelationshipOneToMany
}

// Table returns the table with the given name (case-insensitive match is the
// caller's job; this is an exact lookup). Returns nil if not present.
func (s *SchemaContext) Table(name string) *SchemaTable {
	for i := range s.Tables {
		if s.Tables[i].Name == name {
			return &s.Tables[i]
		}
	}
	return nil
}

// Column returns the named column, or nil if the table does not have it.
func (t *SchemaTable) Column(name string) *SchemaColumn {
	for i := range t.Columns {
		if t.Columns[i].Name == name {
			return &t.Columns[i]
		}
	}
	return nil
}

// HasIndexOn reports whether any index covers the given column as its first
// (or only) key column. Matching folds case, since SQL identifiers compare
// case-insensitively unless quoted.
func (t *SchemaTable) HasIndexOn(column string) bool {
	for _, idx := range t.Indexes {
		if len(idx.Columns) > 0 && strings.EqualFold(idx.Columns[0], column) {
			return true
		}
	}
	return false
}
