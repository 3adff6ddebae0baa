package postgres

import (
	"context"
	"fmt"

	"github.com/sqldeck/sqldeck/internal/connector"
)

// FetchCatalog returns the raw column and constraint catalog rows for the
// public schema, projected into the common row shapes shared with MySQL.
func (a *Adapter) FetchCatalog(ctx context.Context) ([]connector.ColumnCatalogRow, []connector.ConstraintCatalogRow, error) {
	const columnQuery = `SELECT
			c.table_name,
			c.column_name,
			c.data_type,
			c.is_nullable
		FROM information_schema.columns c
		WHERE c.table_schema = 'public'
		ORDER BY c.table_name, c.ordinal_position`

	var columns []connector.ColumnCatalogRow
	if err := a.db.SelectContext(ctx, &columns, columnQuery); err != nil {
		return nil, nil, fmt.Errorf("postgres column catalog: %w", err)
	}

	// constraint_column_usage points at the referenced side for FOREIGN KEY
	// constraints, so the referenced table/column come from ccu while the
	// owning table/column come from kcu.
	const constraintQuery = `SELECT
			tc.table_name,
			kcu.column_name,
			tc.constraint_type,
			CASE WHEN tc.constraint_type = 'FOREIGN KEY' THEN ccu.table_name END  AS referenced_table_name,
			CASE WHEN tc.constraint_type = 'FOREIGN KEY' THEN ccu.column_name END AS referenced_column_name
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
			ON tc.constraint_name = kcu.constraint_name
			AND tc.table_schema = kcu.table_schema
		LEFT JOIN information_schema.constraint_column_usage ccu
			ON tc.constraint_name = ccu.constraint_name
			AND tc.table_schema = ccu.table_schema
		WHERE tc.table_schema = 'public'
			AND tc.constraint_type IN ('PRIMARY KEY', 'UNIQUE', 'FOREIGN KEY')
		ORDER BY tc.table_name, kcu.ordinal_position`

	var constraints []connector.ConstraintCatalogRow
	if err := a.db.SelectContext(ctx, &constraints, constraintQuery); err != nil {
		return nil, nil, fmt.Errorf("postgres constraint catalog: %w", err)
	}

	return columns, constraints, nil
}
