package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// registerResources adds MCP resource definitions to the server. Resources
// provide read-only data that LLM clients can load into their context.
func (s *MCPServer) registerResources(srv *server.MCPServer) {

	// -------------------------------------------------------------------
	// sqldeck://connections — the account's stored connections
	// -------------------------------------------------------------------
	srv.AddResource(
		mcp.NewResource(
			"sqldeck://connections",
			"Stored Database Connections",
			mcp.WithResourceDescription(
				"List of the account's stored database connections, including "+
					"their dialect and which one is currently active.",
			),
			mcp.WithMIMEType("application/json"),
		),
		s.handleConnectionsResource,
	)

	// -------------------------------------------------------------------
	// sqldeck://schema — schema of the active connection's database
	// -------------------------------------------------------------------
	srv.AddResource(
		mcp.NewResource(
			"sqldeck://schema",
			"Active Database Schema",
			mcp.WithResourceDescription(
				"Full schema of the active connection's database: tables, columns, "+
					"primary keys, indexes, and foreign-key relationships.",
			),
			mcp.WithMIMEType("application/json"),
		),
		s.handleSchemaResource,
	)
}

// handleConnectionsResource returns a JSON list of the tenant's connections.
func (s *MCPServer) handleConnectionsResource(
	ctx context.Context,
	request mcp.ReadResourceRequest,
) ([]mcp.ResourceContents, error) {

	conns, err := s.store.ListConnections(ctx, s.tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list connections: %w", err)
	}

	items := make([]connectionInfo, len(conns))
	for i, c := range conns {
		items[i] = connectionInfo{
			ID:       c.ID,
			Label:    c.Label,
			Dialect:  c.Dialect,
			IsActive: c.IsActive,
		}
	}

	b, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal connections: %w", err)
	}

	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      "sqldeck://connections",
			MIMEType: "application/json",
			Text:     string(b),
		},
	}, nil
}

// handleSchemaResource returns the introspected schema of the active
// connection's database.
func (s *MCPServer) handleSchemaResource(
	ctx context.Context,
	request mcp.ReadResourceRequest,
) ([]mcp.ResourceContents, error) {

	conn, err := s.store.GetActiveConnection(ctx, s.tenantID)
	if err != nil {
		return nil, fmt.Errorf("no active connection: %w", err)
	}

	sc, err := s.cache.GetSchemaContext(ctx, s.tenantKey(), conn.EncryptedDSN, conn.Dialect)
	if err != nil {
		return nil, fmt.Errorf("failed to introspect schema: %w", err)
	}

	b, err := json.MarshalIndent(sc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal schema: %w", err)
	}

	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      request.Params.URI,
			MIMEType: "application/json",
			Text:     string(b),
		},
	}, nil
}
