package model

import "time"

// Supported SQL dialects. Every stored connection resolves to exactly one of
// these; the pool manager and schema introspection dispatch on it.
const (
	DialectPostgres = "postgres"
	DialectMySQL    = "mysql"
)

// MaxConnectionsPerTenant caps how many databases a single tenant may register.
const MaxConnectionsPerTenant = 5

// StoredConnection is a tenant-registered external database. The DSN is
// encrypted at rest by the vault; it is only decrypted transiently when a
// pool is constructed. At most one connection per tenant is active.
type StoredConnection struct {
	ID           int64     `json:"id" db:"id"`
	TenantID     int64     `json:"tenant_id" db:"tenant_id"`
	Label        string    `json:"label" db:"label"`
	EncryptedDSN string    `json:"-" db:"encrypted_dsn"` // vault token, never expose
	Dialect      string    `json:"dialect" db:"dialect"`
	IsActive     bool      `json:"is_active" db:"is_active"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

// Tenant represents an authenticated user who owns stored connections.
// Passwords are stored as SHA-256 hashes.
type Tenant struct {
	ID           int64      `json:"id" db:"id"`
	Email        string     `json:"email" db:"email"`
	PasswordHash string     `json:"-" db:"password_hash"` // never expose
	Name         string     `json:"name" db:"name"`
	IsActive     bool       `json:"is_active" db:"is_active"`
	LastLoginAt  *time.Time `json:"last_login_at,omitempty" db:"last_login_at"`
	CreatedAt    time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at" db:"updated_at"`
}
