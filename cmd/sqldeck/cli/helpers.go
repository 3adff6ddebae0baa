package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/viper"

	"github.com/sqldeck/sqldeck/internal/connector"
	"github.com/sqldeck/sqldeck/internal/connector/mysql"
	"github.com/sqldeck/sqldeck/internal/connector/postgres"
	"github.com/sqldeck/sqldeck/internal/model"
	"github.com/sqldeck/sqldeck/internal/store"
	"github.com/sqldeck/sqldeck/internal/vault"
)

// dataDir holds the --data-dir persistent flag value (set on root command).
var dataDir string

// resolveDataDir returns the data directory from --data-dir flag,
// SQLDECK_DATA_DIR env var, or ~/.sqldeck as fallback.
func resolveDataDir() string {
	if dataDir != "" {
		return dataDir
	}
	if envDir := os.Getenv("SQLDECK_DATA_DIR"); envDir != "" {
		return envDir
	}
	home, _ := os.UserHomeDir()
	return home + "/.sqldeck"
}

// openStore opens the SQLite metadata store, defaulting to ~/.sqldeck
// if no data dir was specified.
func openStore() (*store.Store, error) {
	return store.NewStore(resolveDataDir())
}

// openVault builds the credential vault from the configured master key.
// The key comes from vault.key in the config file or SQLDECK_VAULT_KEY. The
// default config file writes the key as a ${SQLDECK_VAULT_KEY} reference, so
// the raw viper value is env-expanded before use.
func openVault() (*vault.Vault, error) {
	key := os.ExpandEnv(viper.GetString("vault.key"))
	if key == "" {
		key = os.Getenv("SQLDECK_VAULT_KEY")
	}
	if key == "" {
		return nil, fmt.Errorf("no vault key configured; generate one with 'sqldeck keygen' and set SQLDECK_VAULT_KEY")
	}
	return vault.New(key)
}

// newManager creates a pool manager with all supported dialects registered.
func newManager(v *vault.Vault, logger *slog.Logger) *connector.Manager {
	mgr := connector.NewManager(v, connector.DefaultConnectionConfig(), logger)
	mgr.RegisterDialect(model.DialectPostgres, func() connector.Adapter { return postgres.New() })
	mgr.RegisterDialect(model.DialectMySQL, func() connector.Adapter { return mysql.New() })
	return mgr
}

// resolveTenant looks up a tenant by email for tenant-scoped commands.
func resolveTenant(ctx context.Context, st *store.Store, email string) (*model.Tenant, error) {
	if email == "" {
		return nil, fmt.Errorf("--tenant is required")
	}
	tenant, err := st.GetTenantByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("tenant %q: %w", email, err)
	}
	return tenant, nil
}

// cmdContext returns a background context for CLI operations.
func cmdContext() context.Context {
	return context.Background()
}
