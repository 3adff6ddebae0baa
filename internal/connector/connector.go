// Package connector manages live database connection pools, one per tenant.
// Pools are lazily created from an encrypted DSN, dialect-detected, bounded,
// and explicitly closeable. Dialect-specific behavior lives in the postgres
// and mysql subpackages behind the Adapter interface.
package connector

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/sqldeck/sqldeck/internal/model"
)

// ConnectionConfig holds the parameters used to construct a dialect pool.
type ConnectionConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxIdleTime time.Duration
	AcquireTimeout  time.Duration
}

// DefaultConnectionConfig returns the per-tenant pool bounds. Pools are small
// because each serves one tenant's ad-hoc queries, not fleet traffic.
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		MaxOpenConns:    10,
		MaxIdleConns:    2,
		ConnMaxIdleTime: 30 * time.Second,
		AcquireTimeout:  5 * time.Second,
	}
}

// QueryOutput is the normalized result of executing a statement, identical in
// shape regardless of dialect. Columns is empty-safe: statements that return
// no field metadata get a single synthetic Status column. RowCount defaults
// to 0.
type QueryOutput struct {
	Rows     []map[string]any
	Columns  []string
	RowCount int
}

// ScopedConn is a single connection checked out of a pool. Release is
// mandatory; a ScopedConn that is not released leaks a pool slot.
type ScopedConn interface {
	Query(ctx context.Context, sql string) (*QueryOutput, error)
	Release() error
}

// Adapter is the uniform capability surface both dialects implement. An
// Adapter owns one sqlx pool; it is constructed, used, and closed by the
// Manager and never shared outside it.
type Adapter interface {
	Connect(cfg ConnectionConfig) error
	Acquire(ctx context.Context) (ScopedConn, error)
	Query(ctx context.Context, sql string) (*QueryOutput, error)
	Ping(ctx context.Context) error
	Close() error

	// FetchCatalog returns the raw column and constraint catalog rows used
	// to build a SchemaContext. Both dialects project their catalogs into
	// the same row shapes.
	FetchCatalog(ctx context.Context) ([]ColumnCatalogRow, []ConstraintCatalogRow, error)

	Dialect() string
	DB() *sqlx.DB
}

// Factory creates a new, unconnected Adapter.
type Factory func() Adapter

// ColumnCatalogRow is the common projection of each dialect's column catalog.
type ColumnCatalogRow struct {
	TableName  string `db:"table_name"`
	ColumnName string `db:"column_name"`
	DataType   string `db:"data_type"`
	IsNullable string `db:"is_nullable"` // "YES" or "NO"
}

// ConstraintCatalogRow is the common projection of each dialect's constraint
// catalog. Referenced fields are only populated for FOREIGN KEY rows.
type ConstraintCatalogRow struct {
	TableName        string  `db:"table_name"`
	ColumnName       string  `db:"column_name"`
	ConstraintType   string  `db:"constraint_type"` // PRIMARY KEY, UNIQUE, FOREIGN KEY
	ReferencedTable  *string `db:"referenced_table_name"`
	ReferencedColumn *string `db:"referenced_column_name"`
}

// CollectRows drains a sqlx result set into a QueryOutput.
func CollectRows(rows *sqlx.Rows) (*QueryOutput, error) {
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	out := &QueryOutput{Columns: cols, Rows: []map[string]any{}}
	for rows.Next() {
		row := map[string]any{}
		if err := rows.MapScan(row); err != nil {
			return nil, err
		}
		normalizeRowValues(row)
		out.Rows = append(out.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(out.Columns) == 0 {
		out.Columns = []string{model.StatusColumn}
	}
	out.RowCount = len(out.Rows)
	return out, nil
}

// normalizeRowValues converts driver byte slices to strings so rows serialize
// as text instead of base64. MySQL in particular returns []byte for most
// column types.
func normalizeRowValues(row map[string]any) {
	for k, v := range row {
		if b, ok := v.([]byte); ok {
			row[k] = string(b)
		}
	}
}
