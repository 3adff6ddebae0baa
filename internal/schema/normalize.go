// Package schema builds and caches normalized schema contexts from raw
// database catalog rows. Contexts are cached per (tenant, dialect) with a TTL
// and invalidated explicitly when a tenant switches connections.
package schema

import (
	"fmt"
	"strings"
	"time"

	"github.com/sqldeck/sqldeck/internal/connector"
	"github.com/sqldeck/sqldeck/internal/model"
)

// Constraint types recognized in catalog rows.
const (
	constraintPrimaryKey = "PRIMARY KEY"
	constraintUnique     = "UNIQUE"
	constraintForeignKey = "FOREIGN KEY"
)

// IndexName derives the deterministic name used for synthesized unique
// indexes and suggested indexes: idx_<table>_<column>.
func IndexName(table, column string) string {
	return fmt.Sprintf("idx_%s_%s", table, column)
}

// BuildContext normalizes raw catalog rows into a SchemaContext. One table is
// created per distinct table_name in the column rows, preserving first-seen
// column order. Constraint rows referencing a table or column absent from the
// column rows are skipped silently: introspection tolerates schema drift
// between the two catalog queries rather than failing.
func BuildContext(dialect string, columns []connector.ColumnCatalogRow, constraints []connector.ConstraintCatalogRow) *model.SchemaContext {
	ctx := &model.SchemaContext{
		Tables:        []model.SchemaTable{},
		Relationships: []model.Relationship{},
		DatabaseType:  dialect,
		CachedAt:      time.Now().UTC(),
	}

	tableIdx := map[string]int{}
	for _, row := range columns {
		i, ok := tableIdx[row.TableName]
		if !ok {
			ctx.Tables = append(ctx.Tables, model.SchemaTable{Name: row.TableName})
			i = len(ctx.Tables) - 1
			tableIdx[row.TableName] = i
		}
		ctx.Tables[i].Columns = append(ctx.Tables[i].Columns, model.SchemaColumn{
			Name:     row.ColumnName,
			Type:     row.DataType,
			Nullable: strings.EqualFold(row.IsNullable, "YES"),
		})
	}

	for _, row := range constraints {
		i, ok := tableIdx[row.TableName]
		if !ok {
			continue
		}
		table := &ctx.Tables[i]
		col := table.Column(row.ColumnName)
		if col == nil {
			continue
		}

		switch strings.ToUpper(row.ConstraintType) {
		case constraintPrimaryKey:
			table.PrimaryKey = append(table.PrimaryKey, row.ColumnName)

		case constraintUnique:
			col.IsUnique = true
			table.Indexes = append(table.Indexes, model.SchemaIndex{
				Name:     IndexName(table.Name, row.ColumnName),
				Columns:  []string{row.ColumnName},
				IsUnique: true,
			})

		case constraintForeignKey:
			col.IsForeignKey = true
			if row.ReferencedTable == nil || row.ReferencedColumn == nil {
				continue
			}
			col.ForeignKeyReference = &model.ColumnTarget{
				Table:  *row.ReferencedTable,
				Column: *row.ReferencedColumn,
			}
			// Relationships only point at tables we actually saw; the
			// endpoints of every relationship are guaranteed to exist.
			if ri, ok := tableIdx[*row.ReferencedTable]; ok {
				if ctx.Tables[ri].Column(*row.ReferencedColumn) != nil {
					ctx.Relationships = append(ctx.Relationships, model.Relationship{
						FromTable:  table.Name,
						FromColumn: row.ColumnName,
						ToTable:    *row.ReferencedTable,
						ToColumn:   *row.ReferencedColumn,
						Type:       model.RelationshipOneToMany,
					})
				}
			}
		}
	}

	return ctx
}
