// Package postgres implements the connector.Adapter contract for
// PostgreSQL-family databases via the pgx stdlib driver.
package postgres

import (
	"context"
	"errors"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"

	"github.com/sqldeck/sqldeck/internal/connector"
	"github.com/sqldeck/sqldeck/internal/model"
)

// Adapter implements connector.Adapter for PostgreSQL.
type Adapter struct {
	db  *sqlx.DB
	cfg connector.ConnectionConfig
}

// New creates a new unconnected PostgreSQL adapter.
func New() connector.Adapter {
	return &Adapter{}
}

// Connect opens the pool and applies the configured bounds.
func (a *Adapter) Connect(cfg connector.ConnectionConfig) error {
	db, err := sqlx.Connect("pgx", cfg.DSN)
	if err != nil {
		return fmt.Errorf("postgres connect: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxIdleTime > 0 {
		db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	}

	a.db = db
	a.cfg = cfg
	return nil
}

// Acquire checks a single connection out of the pool, waiting at most the
// configured acquire timeout. Callers blocked behind an exhausted pool get a
// timeout error rather than waiting indefinitely.
func (a *Adapter) Acquire(ctx context.Context) (connector.ScopedConn, error) {
	acquireCtx, cancel := context.WithTimeout(ctx, a.cfg.AcquireTimeout)
	defer cancel()

	conn, err := a.db.Connx(acquireCtx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: postgres acquire timed out after %s",
				connector.ErrPoolAcquisition, a.cfg.AcquireTimeout)
		}
		return nil, fmt.Errorf("%w: %v", connector.ErrPoolAcquisition, err)
	}
	return &scopedConn{conn: conn}, nil
}

// Query executes a statement on any pooled connection.
func (a *Adapter) Query(ctx context.Context, sql string) (*connector.QueryOutput, error) {
	rows, err := a.db.QueryxContext(ctx, sql)
	if err != nil {
		return nil, err
	}
	return connector.CollectRows(rows)
}

// Ping verifies the pool is alive.
func (a *Adapter) Ping(ctx context.Context) error {
	return a.db.PingContext(ctx)
}

// Close drains and closes the pool.
func (a *Adapter) Close() error {
	if a.db != nil {
		return a.db.Close()
	}
	return nil
}

// Dialect returns the dialect identifier.
func (a *Adapter) Dialect() string { return model.DialectPostgres }

// DB returns the underlying sqlx pool.
func (a *Adapter) DB() *sqlx.DB { return a.db }

// scopedConn wraps a checked-out connection. Release returns it to the pool.
type scopedConn struct {
	conn *sqlx.Conn
}

func (c *scopedConn) Query(ctx context.Context, sql string) (*connector.QueryOutput, error) {
	rows, err := c.conn.QueryxContext(ctx, sql)
	if err != nil {
		return nil, err
	}
	return connector.CollectRows(rows)
}

func (c *scopedConn) Release() error {
	return c.conn.Close()
}
