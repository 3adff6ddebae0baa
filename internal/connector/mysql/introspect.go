package mysql

import (
	"context"
	"fmt"

	"github.com/sqldeck/sqldeck/internal/connector"
)

// FetchCatalog returns the raw column and constraint catalog rows for the
// connected database, projected into the common row shapes shared with
// Postgres. MySQL's information_schema uses upper-case column names, so each
// query aliases them down.
func (a *Adapter) FetchCatalog(ctx context.Context) ([]connector.ColumnCatalogRow, []connector.ConstraintCatalogRow, error) {
	const columnQuery = `SELECT
			c.TABLE_NAME  AS table_name,
			c.COLUMN_NAME AS column_name,
			c.DATA_TYPE   AS data_type,
			c.IS_NULLABLE AS is_nullable
		FROM information_schema.COLUMNS c
		WHERE c.TABLE_SCHEMA = ?
		ORDER BY c.TABLE_NAME, c.ORDINAL_POSITION`

	var columns []connector.ColumnCatalogRow
	if err := a.db.SelectContext(ctx, &columns, columnQuery, a.schemaName); err != nil {
		return nil, nil, fmt.Errorf("mysql column catalog: %w", err)
	}

	// KEY_COLUMN_USAGE carries the referenced table/column directly for
	// foreign keys; TABLE_CONSTRAINTS supplies the constraint type.
	const constraintQuery = `SELECT
			tc.TABLE_NAME                AS table_name,
			kcu.COLUMN_NAME              AS column_name,
			tc.CONSTRAINT_TYPE           AS constraint_type,
			kcu.REFERENCED_TABLE_NAME    AS referenced_table_name,
			kcu.REFERENCED_COLUMN_NAME   AS referenced_column_name
		FROM information_schema.TABLE_CONSTRAINTS tc
		JOIN information_schema.KEY_COLUMN_USAGE kcu
			ON tc.CONSTRAINT_NAME = kcu.CONSTRAINT_NAME
			AND tc.TABLE_SCHEMA = kcu.TABLE_SCHEMA
			AND tc.TABLE_NAME = kcu.TABLE_NAME
		WHERE tc.TABLE_SCHEMA = ?
			AND tc.CONSTRAINT_TYPE IN ('PRIMARY KEY', 'UNIQUE', 'FOREIGN KEY')
		ORDER BY tc.TABLE_NAME, kcu.ORDINAL_POSITION`

	var constraints []connector.ConstraintCatalogRow
	if err := a.db.SelectContext(ctx, &constraints, constraintQuery, a.schemaName); err != nil {
		return nil, nil, fmt.Errorf("mysql constraint catalog: %w", err)
	}

	return columns, constraints, nil
}
