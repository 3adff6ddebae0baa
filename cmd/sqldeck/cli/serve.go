package cli

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/sqldeck/sqldeck/internal/gateway"
	"github.com/sqldeck/sqldeck/internal/schema"
	"github.com/sqldeck/sqldeck/internal/server"
	"github.com/sqldeck/sqldeck/internal/service"
	"github.com/sqldeck/sqldeck/internal/store"
	"github.com/sqldeck/sqldeck/internal/telemetry"
	"github.com/sqldeck/sqldeck/internal/validator"
)

const banner = `
 ___  ___  _    ___  ___ ___ _  __
/ __|/ _ \| |  |   \| __/ __| |/ /
\__ \ (_) | |__| |) | _| (__| ' <
|___/\__\_\____|___/|___\___|_|\_\
`

func newServeCmd() *cobra.Command {
	var (
		port int
		host string
		dev  bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the sqldeck API server",
		Long:  "Start the HTTP server that exposes tenant connections, schema, and query execution over REST.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(dev)
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 8080, "HTTP listen port")
	cmd.Flags().StringVar(&host, "host", "0.0.0.0", "HTTP listen host")
	cmd.Flags().BoolVar(&dev, "dev", false, "Enable development mode (verbose logging)")

	// Flags win over sqldeck.yaml, which wins over the flag defaults.
	viper.BindPFlag("server.port", cmd.Flags().Lookup("port"))
	viper.BindPFlag("server.host", cmd.Flags().Lookup("host"))

	return cmd
}

// serverConfigFrom merges the typed config file into a server.Config. Host
// and port come from viper (flag > file > default); the rest has no flag, so
// the file value is taken when present and defaults apply otherwise.
func serverConfigFrom(fileCfg *store.YAMLConfig, host string, port int) server.Config {
	cfg := server.DefaultConfig()
	cfg.Host = host
	cfg.Port = port

	if fileCfg == nil {
		return cfg
	}
	if d, err := time.ParseDuration(fileCfg.Server.ShutdownTimeout); err == nil && d > 0 {
		cfg.ShutdownTimeout = d
	}
	if fileCfg.Server.RateLimit > 0 {
		cfg.RequestsPerMinute = fileCfg.Server.RateLimit
	}
	if len(fileCfg.Server.CORS.Origins) > 0 {
		cfg.CORSOrigins = fileCfg.Server.CORS.Origins
	}
	return cfg
}

func runServe(dev bool) error {
	fmt.Print(banner)
	fmt.Println()

	// Set up logger
	logLevel := slog.LevelInfo
	if dev {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))

	// Typed view of sqldeck.yaml for the settings that have no flag.
	var fileCfg *store.YAMLConfig
	if path := viper.ConfigFileUsed(); path != "" {
		var err error
		fileCfg, err = store.LoadYAMLConfig(path)
		if err != nil {
			return fmt.Errorf("load config %s: %w", path, err)
		}
		logger.Info("configuration loaded", "path", path)
	}
	host := viper.GetString("server.host")
	port := viper.GetInt("server.port")

	ctx := cmdContext()

	// 1. Initialize metadata store (SQLite)
	st, err := openStore()
	if err != nil {
		return fmt.Errorf("init metadata store: %w", err)
	}
	defer st.Close()
	logger.Info("metadata store initialized", "path", resolveDataDir())

	// 2. Open the credential vault
	v, err := openVault()
	if err != nil {
		return err
	}

	// 3. Pool manager with all supported dialects
	mgr := newManager(v, logger)
	defer mgr.CloseAll()

	// 4. Schema cache, validator, and query gateway
	cache := schema.NewCache(schema.ManagerFetch(mgr), logger)
	val := validator.New()
	gw := gateway.New(gateway.ManagerAcquire(mgr), logger)

	// 5. Auth service
	var jwtSecret string
	if fileCfg != nil {
		jwtSecret = fileCfg.Auth.JWTSecret // ${ENV} references already expanded
	}
	if jwtSecret == "" {
		jwtSecret = os.Getenv("SQLDECK_JWT_SECRET")
	}
	if jwtSecret == "" {
		if !dev {
			return fmt.Errorf("no JWT secret configured; set auth.jwt_secret or SQLDECK_JWT_SECRET")
		}
		jwtSecret = "sqldeck-dev-secret-change-me"
		logger.Warn("using development JWT secret")
	}
	authSvc := service.NewAuthService(st, jwtSecret)

	// 6. Check for first-run (no tenants yet)
	tenants, err := st.CountTenants(ctx)
	if err != nil {
		logger.Warn("failed to count tenants", "error", err)
	}
	if tenants == 0 {
		logger.Warn("no tenant accounts found - run: sqldeck tenant create")
	}

	// 7. Local heartbeat reporting
	reporter := telemetry.New(ctx, st, func() telemetry.Stats {
		cs := cache.GetCacheStats()
		n, _ := st.CountTenants(ctx)
		return telemetry.Stats{
			Version:      appVersion,
			Tenants:      n,
			OpenPools:    mgr.OpenPools(),
			CacheEntries: cs.Entries,
			CacheHits:    cs.Hits,
			CacheMisses:  cs.Misses,
		}
	}, logger)
	reporter.Start()
	defer reporter.Shutdown()

	// 8. Build and start HTTP server
	srvCfg := serverConfigFrom(fileCfg, host, port)

	srv := server.New(srvCfg, server.Deps{
		Store:     st,
		Vault:     v,
		Manager:   mgr,
		Cache:     cache,
		Validator: val,
		Gateway:   gw,
		AuthSvc:   authSvc,
	}, logger)

	fmt.Printf("→ Sqldeck %s\n", appVersion)
	fmt.Printf("→ Listening on http://%s:%d\n", host, port)
	fmt.Printf("→ API:     http://%s:%d/api/v1\n", host, port)
	fmt.Printf("→ Health:  http://%s:%d/healthz\n", host, port)
	fmt.Printf("→ Tenants: %d\n", tenants)
	fmt.Println()

	return srv.ListenAndServe()
}
