package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/sqldeck/sqldeck/internal/gateway"
	smcp "github.com/sqldeck/sqldeck/internal/mcp"
	"github.com/sqldeck/sqldeck/internal/schema"
	"github.com/sqldeck/sqldeck/internal/store"
	"github.com/sqldeck/sqldeck/internal/validator"
)

func newMCPCmd() *cobra.Command {
	var (
		transport   string
		port        int
		tenantEmail string
		apiKey      string
		maxRows     int
	)

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Start the MCP server for AI agents",
		Long: `Start a Model Context Protocol (MCP) server that exposes one tenant's
connections, schema, and query execution as tools for AI agents.
Supports stdio (default) and HTTP transports.

In stdio mode, the MCP server communicates over stdin/stdout using JSON-RPC,
suitable for direct integration with Claude Desktop or other MCP clients.

The tenant is identified by --tenant (email) or by --api-key; every tool
call is scoped to that tenant.`,
		Example: `  sqldeck mcp --tenant alice@example.com                  # stdio mode
  sqldeck mcp --api-key sqldeck_... --transport http --port 3001`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMCP(transport, port, tenantEmail, apiKey, maxRows)
		},
	}

	cmd.Flags().StringVar(&transport, "transport", "stdio", "Transport mode: stdio or http")
	cmd.Flags().IntVar(&port, "port", 3001, "HTTP port (only used with --transport http)")
	cmd.Flags().StringVar(&tenantEmail, "tenant", "", "Tenant email to serve")
	cmd.Flags().StringVar(&apiKey, "api-key", "", "API key identifying the tenant (alternative to --tenant)")
	cmd.Flags().IntVar(&maxRows, "max-rows", 1000, "Maximum rows a tool call may return")

	return cmd
}

func runMCP(transport string, port int, tenantEmail, apiKey string, maxRows int) error {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	st, err := openStore()
	if err != nil {
		return fmt.Errorf("init metadata store: %w", err)
	}
	defer st.Close()

	tenantID, err := resolveMCPTenant(st, tenantEmail, apiKey)
	if err != nil {
		return err
	}

	v, err := openVault()
	if err != nil {
		return err
	}

	mgr := newManager(v, logger)
	defer mgr.CloseAll()

	cache := schema.NewCache(schema.ManagerFetch(mgr), logger)
	gw := gateway.New(gateway.ManagerAcquire(mgr), logger)

	mcpSrv := smcp.NewMCPServer(smcp.Deps{
		Store:     st,
		Cache:     cache,
		Gateway:   gw,
		Validator: validator.New(),
		Manager:   mgr,
	}, tenantID, maxRows, logger)

	switch transport {
	case "stdio":
		return mcpSrv.ServeStdio()
	case "http":
		addr := fmt.Sprintf(":%d", port)
		logger.Info("starting MCP HTTP server", "addr", addr, "tenant", tenantID)
		return mcpSrv.ServeHTTP(addr)
	default:
		return fmt.Errorf("unsupported transport %q; use 'stdio' or 'http'", transport)
	}
}

// resolveMCPTenant maps --tenant or --api-key to a tenant ID. API keys are
// matched by hash, same as the HTTP auth path.
func resolveMCPTenant(st *store.Store, tenantEmail, apiKey string) (int64, error) {
	ctx := cmdContext()

	switch {
	case apiKey != "":
		key, err := st.GetAPIKeyByHash(ctx, store.HashAPIKey(apiKey))
		if err != nil {
			return 0, fmt.Errorf("invalid api key")
		}
		return key.TenantID, nil
	case tenantEmail != "":
		tenant, err := resolveTenant(ctx, st, tenantEmail)
		if err != nil {
			return 0, err
		}
		return tenant.ID, nil
	default:
		return 0, fmt.Errorf("either --tenant or --api-key is required")
	}
}
