package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/sqldeck/sqldeck/internal/model"
)

// Store manages sqldeck's internal state backed by SQLite. It persists
// tenants, their stored connections (DSNs encrypted by the vault before they
// reach this layer), API keys, and instance settings.
type Store struct {
	db *sqlx.DB
}

// NewStore creates a new metadata store. Pass empty string for in-memory.
func NewStore(dataDir string) (*Store, error) {
	var dsn string
	if dataDir == "" {
		dsn = ":memory:?_journal_mode=WAL"
	} else {
		if err := os.MkdirAll(dataDir, 0755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
		dsn = filepath.Join(dataDir, "sqldeck.db") + "?_journal_mode=WAL&_busy_timeout=5000"
	}

	db, err := sqlx.Connect("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open metadata database: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite doesn't support concurrent writes

	// Enable foreign keys (off by default in SQLite).
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate metadata database: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ---------------------------------------------------------------------------
// Tenant accounts
// ---------------------------------------------------------------------------

// CreateTenant inserts a new tenant account. The ID, CreatedAt, and UpdatedAt
// fields are populated after a successful insert.
func (s *Store) CreateTenant(ctx context.Context, tenant *model.Tenant) error {
	now := time.Now().UTC()
	tenant.CreatedAt = now
	tenant.UpdatedAt = now

	const q = `INSERT INTO tenants (email, password_hash, name, is_active, created_at, updated_at)
		VALUES (:email, :password_hash, :name, :is_active, :created_at, :updated_at)`

	result, err := s.db.NamedExecContext(ctx, q, tenant)
	if err != nil {
		return fmt.Errorf("insert tenant: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("get tenant id: %w", err)
	}
	tenant.ID = id
	return nil
}

// GetTenant returns a tenant by ID.
func (s *Store) GetTenant(ctx context.Context, id int64) (*model.Tenant, error) {
	var tenant model.Tenant
	if err := s.db.GetContext(ctx, &tenant, "SELECT * FROM tenants WHERE id = ?", id); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get tenant: %w", err)
	}
	return &tenant, nil
}

// GetTenantByEmail returns a tenant by email address.
func (s *Store) GetTenantByEmail(ctx context.Context, email string) (*model.Tenant, error) {
	var tenant model.Tenant
	if err := s.db.GetContext(ctx, &tenant, "SELECT * FROM tenants WHERE email = ?", email); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get tenant by email: %w", err)
	}
	return &tenant, nil
}

// ListTenants returns all tenant accounts.
func (s *Store) ListTenants(ctx context.Context) ([]model.Tenant, error) {
	var tenants []model.Tenant
	if err := s.db.SelectContext(ctx, &tenants, "SELECT * FROM tenants ORDER BY email"); err != nil {
		return nil, fmt.Errorf("list tenants: %w", err)
	}
	return tenants, nil
}

// CountTenants returns the number of tenant accounts.
func (s *Store) CountTenants(ctx context.Context) (int, error) {
	var count int
	if err := s.db.GetContext(ctx, &count, "SELECT COUNT(*) FROM tenants"); err != nil {
		return 0, fmt.Errorf("count tenants: %w", err)
	}
	return count, nil
}

// UpdateTenantLastLogin sets the last_login_at timestamp for a tenant.
func (s *Store) UpdateTenantLastLogin(ctx context.Context, id int64) error {
	now := time.Now().UTC()
	result, err := s.db.ExecContext(ctx,
		"UPDATE tenants SET last_login_at = ?, updated_at = ? WHERE id = ?", now, now, id)
	if err != nil {
		return fmt.Errorf("update tenant last login: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update tenant last login rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ---------------------------------------------------------------------------
// Stored connections
// ---------------------------------------------------------------------------

// CreateConnection inserts a new stored connection for a tenant. EncryptedDSN
// must already be a vault token. Returns ErrConnectionLimit when the tenant
// already holds MaxConnectionsPerTenant connections. The new connection is
// created inactive; use SetActiveConnection to switch to it.
func (s *Store) CreateConnection(ctx context.Context, conn *model.StoredConnection) error {
	var count int
	if err := s.db.GetContext(ctx, &count,
		"SELECT COUNT(*) FROM connections WHERE tenant_id = ?", conn.TenantID); err != nil {
		return fmt.Errorf("count connections: %w", err)
	}
	if count >= model.MaxConnectionsPerTenant {
		return fmt.Errorf("%w: tenant %d already has %d connections",
			ErrConnectionLimit, conn.TenantID, count)
	}

	now := time.Now().UTC()
	conn.CreatedAt = now
	conn.UpdatedAt = now
	conn.IsActive = false

	const q = `INSERT INTO connections (tenant_id, label, encrypted_dsn, dialect, is_active, created_at, updated_at)
		VALUES (:tenant_id, :label, :encrypted_dsn, :dialect, :is_active, :created_at, :updated_at)`

	result, err := s.db.NamedExecContext(ctx, q, conn)
	if err != nil {
		return fmt.Errorf("insert connection: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("get connection id: %w", err)
	}
	conn.ID = id
	return nil
}

// GetConnection returns a stored connection by ID, scoped to a tenant so one
// tenant cannot address another tenant's connections.
func (s *Store) GetConnection(ctx context.Context, tenantID, id int64) (*model.StoredConnection, error) {
	var conn model.StoredConnection
	err := s.db.GetContext(ctx, &conn,
		"SELECT * FROM connections WHERE id = ? AND tenant_id = ?", id, tenantID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get connection: %w", err)
	}
	return &conn, nil
}

// ListConnections returns all stored connections for a tenant.
func (s *Store) ListConnections(ctx context.Context, tenantID int64) ([]model.StoredConnection, error) {
	var conns []model.StoredConnection
	err := s.db.SelectContext(ctx, &conns,
		"SELECT * FROM connections WHERE tenant_id = ? ORDER BY created_at", tenantID)
	if err != nil {
		return nil, fmt.Errorf("list connections: %w", err)
	}
	return conns, nil
}

// GetActiveConnection returns the tenant's active connection, or ErrNotFound
// when none is active.
func (s *Store) GetActiveConnection(ctx context.Context, tenantID int64) (*model.StoredConnection, error) {
	var conn model.StoredConnection
	err := s.db.GetContext(ctx, &conn,
		"SELECT * FROM connections WHERE tenant_id = ? AND is_active = 1", tenantID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get active connection: %w", err)
	}
	return &conn, nil
}

// SetActiveConnection makes the given connection the tenant's active one,
// deactivating any previously active connection in the same transaction.
func (s *Store) SetActiveConnection(ctx context.Context, tenantID, id int64) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	now := time.Now().UTC()
	if _, err := tx.ExecContext(ctx,
		"UPDATE connections SET is_active = 0, updated_at = ? WHERE tenant_id = ? AND is_active = 1",
		now, tenantID); err != nil {
		return fmt.Errorf("deactivate connections: %w", err)
	}

	result, err := tx.ExecContext(ctx,
		"UPDATE connections SET is_active = 1, updated_at = ? WHERE id = ? AND tenant_id = ?",
		now, id, tenantID)
	if err != nil {
		return fmt.Errorf("activate connection: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("activate connection rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}

	return tx.Commit()
}

// DeleteConnection removes a stored connection, scoped to a tenant. Callers
// owning a pool for the connection must close it themselves; the store has no
// view of open pools.
func (s *Store) DeleteConnection(ctx context.Context, tenantID, id int64) error {
	result, err := s.db.ExecContext(ctx,
		"DELETE FROM connections WHERE id = ? AND tenant_id = ?", id, tenantID)
	if err != nil {
		return fmt.Errorf("delete connection: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete connection rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ---------------------------------------------------------------------------
// API Key management
// ---------------------------------------------------------------------------

// CreateAPIKey inserts a new API key record. The key_hash must already be set
// (use HashAPIKey). The ID and CreatedAt fields are populated after insert.
func (s *Store) CreateAPIKey(ctx context.Context, key *model.APIKey) error {
	key.CreatedAt = time.Now().UTC()

	const q = `INSERT INTO api_keys
		(key_hash, key_prefix, label, tenant_id, is_active, expires_at, created_at)
		VALUES
		(:key_hash, :key_prefix, :label, :tenant_id, :is_active, :expires_at, :created_at)`

	result, err := s.db.NamedExecContext(ctx, q, key)
	if err != nil {
		return fmt.Errorf("insert api key: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("get api key id: %w", err)
	}
	key.ID = id
	return nil
}

// GetAPIKeyByHash looks up an API key by its SHA-256 hash.
func (s *Store) GetAPIKeyByHash(ctx context.Context, hash string) (*model.APIKey, error) {
	var key model.APIKey
	if err := s.db.GetContext(ctx, &key, "SELECT * FROM api_keys WHERE key_hash = ?", hash); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get api key by hash: %w", err)
	}
	return &key, nil
}

// ListAPIKeys returns all API keys for a tenant.
func (s *Store) ListAPIKeys(ctx context.Context, tenantID int64) ([]model.APIKey, error) {
	var keys []model.APIKey
	err := s.db.SelectContext(ctx, &keys,
		"SELECT * FROM api_keys WHERE tenant_id = ? ORDER BY created_at DESC", tenantID)
	if err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}
	return keys, nil
}

// RevokeAPIKey marks an API key as inactive by ID.
func (s *Store) RevokeAPIKey(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx,
		"UPDATE api_keys SET is_active = 0 WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("revoke api key: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("revoke api key rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateAPIKeyLastUsed sets the last_used timestamp for an API key.
func (s *Store) UpdateAPIKeyLastUsed(ctx context.Context, id int64) error {
	now := time.Now().UTC()
	result, err := s.db.ExecContext(ctx,
		"UPDATE api_keys SET last_used = ? WHERE id = ?", now, id)
	if err != nil {
		return fmt.Errorf("update api key last used: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update api key last used rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ---------------------------------------------------------------------------
// Settings
// ---------------------------------------------------------------------------

// GetSetting returns the value for a settings key, or ErrNotFound.
func (s *Store) GetSetting(ctx context.Context, key string) (string, error) {
	var value string
	if err := s.db.GetContext(ctx, &value, "SELECT value FROM settings WHERE key = ?", key); err != nil {
		if err == sql.ErrNoRows {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("get setting: %w", err)
	}
	return value, nil
}

// SetSetting upserts a settings key.
func (s *Store) SetSetting(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO settings (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		key, value)
	if err != nil {
		return fmt.Errorf("set setting: %w", err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Utility
// ---------------------------------------------------------------------------

// HashAPIKey returns the hex-encoded SHA-256 hash of a raw API key string.
func HashAPIKey(key string) string {
	h := sha256.Sum256([]byte(key))
	return hex.EncodeToString(h[:])
}
