package mcp

import (
	"log/slog"
	"strconv"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/sqldeck/sqldeck/internal/connector"
	"github.com/sqldeck/sqldeck/internal/gateway"
	"github.com/sqldeck/sqldeck/internal/schema"
	"github.com/sqldeck/sqldeck/internal/store"
	"github.com/sqldeck/sqldeck/internal/validator"
)

// defaultMaxRows caps how many rows a tool call returns when the caller does
// not pass a limit.
const defaultMaxRows = 1000

// MCPServer wraps the mcp-go server with sqldeck-specific tool and resource
// registrations. It exposes one tenant's stored connections as MCP tools so
// AI agents can discover schemas, validate SQL, and run queries. The server
// is bound to a single tenant at construction; MCP clients never see other
// tenants' connections.
type MCPServer struct {
	store     *store.Store
	cache     *schema.Cache
	gateway   *gateway.Gateway
	validator *validator.Validator
	manager   *connector.Manager
	tenantID  int64
	maxRows   int
	logger    *slog.Logger
	server    *server.MCPServer
}

// Deps bundles the components the MCP surface is built from.
type Deps struct {
	Store     *store.Store
	Cache     *schema.Cache
	Gateway   *gateway.Gateway
	Validator *validator.Validator
	Manager   *connector.Manager
}

// NewMCPServer creates an MCPServer pre-loaded with all sqldeck tools and
// resources, scoped to the given tenant. The returned server is ready to
// serve over stdio or HTTP.
func NewMCPServer(deps Deps, tenantID int64, maxRows int, logger *slog.Logger) *MCPServer {
	if maxRows <= 0 {
		maxRows = defaultMaxRows
	}
	s := &MCPServer{
		store:     deps.Store,
		cache:     deps.Cache,
		gateway:   deps.Gateway,
		validator: deps.Validator,
		manager:   deps.Manager,
		tenantID:  tenantID,
		maxRows:   maxRows,
		logger:    logger,
	}

	mcpServer := server.NewMCPServer(
		"sqldeck",
		"0.1.0",
		server.WithResourceCapabilities(true, false),
		server.WithToolCapabilities(true),
	)

	// Register tools (list connections, schema, validate, query)
	s.registerTools(mcpServer)

	// Register resources (connection list, active schema)
	s.registerResources(mcpServer)

	s.server = mcpServer
	return s
}

// Server returns the underlying mcp-go MCPServer instance. Useful for
// advanced configuration or testing.
func (s *MCPServer) Server() *server.MCPServer {
	return s.server
}

// ServeStdio starts the MCP server in stdio mode. This is the primary
// integration path for MCP clients that launch the server as a subprocess.
func (s *MCPServer) ServeStdio() error {
	s.logger.Info("starting MCP server in stdio mode", "tenant", s.tenantID)
	return server.ServeStdio(s.server)
}

// ServeHTTP starts the MCP server in Streamable HTTP mode, listening on
// the given address (e.g. ":3001"). This is suitable for remote MCP clients.
func (s *MCPServer) ServeHTTP(addr string) error {
	httpServer := server.NewStreamableHTTPServer(s.server)
	s.logger.Info("MCP HTTP server starting", "addr", addr, "tenant", s.tenantID)
	return httpServer.Start(addr)
}

// tenantKey is the pool and cache key for the bound tenant.
func (s *MCPServer) tenantKey() string {
	return strconv.FormatInt(s.tenantID, 10)
}

func readOnlyAnnotation() mcp.ToolAnnotation {
	return mcp.ToolAnnotation{
		ReadOnlyHint: boolPtr(true),
	}
}

func mutatingAnnotation() mcp.ToolAnnotation {
	return mcp.ToolAnnotation{
		ReadOnlyHint: boolPtr(false),
	}
}

func boolPtr(b bool) *bool {
	return &b
}
