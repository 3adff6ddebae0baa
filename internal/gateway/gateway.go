// Package gateway executes raw SQL for a tenant over a pooled connection and
// normalizes the driver result into one of two output shapes.
package gateway

import (
	"context"
	"log/slog"
	"time"

	"github.com/sqldeck/sqldeck/internal/connector"
	"github.com/sqldeck/sqldeck/internal/model"
)

// AcquireFunc obtains a scoped connection for a tenant. The returned
// connection must be released by the caller.
type AcquireFunc func(ctx context.Context, tenantID, encryptedDSN string) (connector.ScopedConn, error)

// ManagerAcquire adapts a pool manager into an AcquireFunc.
func ManagerAcquire(mgr *connector.Manager) AcquireFunc {
	return func(ctx context.Context, tenantID, encryptedDSN string) (connector.ScopedConn, error) {
		handle, err := mgr.GetPool(ctx, tenantID, encryptedDSN)
		if err != nil {
			return nil, err
		}
		return handle.Acquire(ctx)
	}
}

// Gateway runs statements and shapes results. It never retries and never
// rewrites SQL; execution errors from the driver propagate verbatim so
// callers can tell constraint violations from syntax errors.
type Gateway struct {
	acquire AcquireFunc
	logger  *slog.Logger
}

// New creates a Gateway.
func New(acquire AcquireFunc, logger *slog.Logger) *Gateway {
	return &Gateway{acquire: acquire, logger: logger}
}

// Execute runs sql for the tenant and shapes the result according to format.
// The scoped connection is released on both success and failure paths.
//
// format "json" returns rows and rowCount only. format "table" (the default
// for any other value) additionally returns column names; when the statement
// produced no column metadata (DDL, INSERT without RETURNING) the columns
// fall back to a single Status column with one synthesized success row.
func (g *Gateway) Execute(ctx context.Context, tenantID, encryptedDSN, sql, format string) (*model.QueryResult, error) {
	start := time.Now()

	conn, err := g.acquire(ctx, tenantID, encryptedDSN)
	if err != nil {
		return nil, err
	}
	defer func() {
		if relErr := conn.Release(); relErr != nil {
			g.logger.Warn("failed to release connection", "tenant_id", tenantID, "error", relErr)
		}
	}()

	out, err := conn.Query(ctx, sql)
	if err != nil {
		return nil, err
	}

	g.logger.Debug("query executed",
		"tenant_id", tenantID,
		"row_count", out.RowCount,
		"took_ms", float64(time.Since(start).Microseconds())/1000.0,
	)

	if format == model.FormatJSON {
		return &model.QueryResult{Rows: out.Rows, RowCount: out.RowCount}, nil
	}
	return shapeTable(out), nil
}

// shapeTable builds the table-format result. Statements without column
// metadata come back from the adapters with the synthetic Status column and
// no rows; they get exactly one synthesized success row.
func shapeTable(out *connector.QueryOutput) *model.QueryResult {
	rows := out.Rows
	if len(rows) == 0 && syntheticColumns(out.Columns) {
		rows = []map[string]any{{model.StatusColumn: "Success"}}
	}
	return &model.QueryResult{
		Columns:  out.Columns,
		Rows:     rows,
		RowCount: len(rows),
	}
}

func syntheticColumns(columns []string) bool {
	return len(columns) == 1 && columns[0] == model.StatusColumn
}
