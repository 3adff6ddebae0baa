package mcp

import (
	"context"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/sqldeck/sqldeck/internal/model"
	"github.com/sqldeck/sqldeck/internal/store"
)

// registerTools registers all sqldeck MCP tools on the given server.
func (s *MCPServer) registerTools(srv *server.MCPServer) {

	// ----- Discovery tools -----

	srv.AddTool(
		mcp.NewTool("sqldeck_list_connections",
			mcp.WithDescription(
				"List the stored database connections for this account. Returns each "+
					"connection's ID, label, SQL dialect, and whether it is the active one. "+
					"Use this first to discover which databases are reachable; queries always "+
					"run against the active connection.",
			),
			mcp.WithToolAnnotation(readOnlyAnnotation()),
		),
		s.handleListConnections,
	)

	srv.AddTool(
		mcp.NewTool("sqldeck_get_schema",
			mcp.WithDescription(
				"Get the schema of the active connection's database: tables with their "+
					"columns, types, nullability, primary keys, indexes, and the foreign-key "+
					"relationships between tables. Pass 'table' to describe a single table. "+
					"Use this to understand the data model before writing queries.",
			),
			mcp.WithToolAnnotation(readOnlyAnnotation()),
			mcp.WithString("table",
				mcp.Description("Name of a single table to describe. Omit for the full schema."),
			),
		),
		s.handleGetSchema,
	)

	// ----- Connection switching -----

	srv.AddTool(
		mcp.NewTool("sqldeck_switch_connection",
			mcp.WithDescription(
				"Make a stored connection the active one. Subsequent queries, schema "+
					"lookups, and validations run against the newly selected database. "+
					"Use sqldeck_list_connections to find connection IDs.",
			),
			mcp.WithToolAnnotation(mutatingAnnotation()),
			mcp.WithNumber("connection_id",
				mcp.Required(),
				mcp.Description("ID of the stored connection to activate"),
			),
		),
		s.handleSwitchConnection,
	)

	// ----- SQL tools -----

	srv.AddTool(
		mcp.NewTool("sqldeck_validate_query",
			mcp.WithDescription(
				"Statically analyze a SQL statement against the active connection's "+
					"schema without executing it. Reports errors (unknown tables, disallowed "+
					"statements), warnings (missing WHERE on DELETE/UPDATE, suspicious "+
					"patterns, cartesian joins), and index suggestions for unindexed "+
					"filter columns. Run this before sqldeck_run_query for queries you "+
					"are unsure about.",
			),
			mcp.WithToolAnnotation(readOnlyAnnotation()),
			mcp.WithString("sql",
				mcp.Required(),
				mcp.Description("SQL statement to validate"),
			),
		),
		s.handleValidateQuery,
	)

	srv.AddTool(
		mcp.NewTool("sqldeck_run_query",
			mcp.WithDescription(
				"Execute a SQL statement on the active connection and return the rows "+
					"as JSON. SELECT, INSERT, UPDATE, DELETE, WITH, CREATE, and ALTER "+
					"statements are supported; statements that return no rows report a "+
					"success status instead.",
			),
			mcp.WithToolAnnotation(mutatingAnnotation()),
			mcp.WithString("sql",
				mcp.Required(),
				mcp.Description("SQL statement to execute"),
			),
			mcp.WithNumber("limit",
				mcp.Description("Maximum number of rows to return (default 100)"),
			),
		),
		s.handleRunQuery,
	)
}

// =========================================================================
// Tool handlers
// =========================================================================

// connectionInfo is the tool-facing projection of a stored connection. The
// encrypted DSN never leaves the server.
type connectionInfo struct {
	ID       int64  `json:"id"`
	Label    string `json:"label,omitempty"`
	Dialect  string `json:"dialect"`
	IsActive bool   `json:"is_active"`
}

// handleListConnections returns the tenant's stored connections.
func (s *MCPServer) handleListConnections(
	ctx context.Context,
	request mcp.CallToolRequest,
) (*mcp.CallToolResult, error) {

	conns, err := s.store.ListConnections(ctx, s.tenantID)
	if err != nil {
		return toolError("Failed to list connections: %v", err)
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

	return successJSON(items)
}

// handleGetSchema returns the schema context for the active connection,
// optionally narrowed to a single table.
func (s *MCPServer) handleGetSchema(
	ctx context.Context,
	request mcp.CallToolRequest,
) (*mcp.CallToolResult, error) {

	conn, res := s.activeConnection(ctx)
	if res != nil {
		return res, nil
	}

	sc, err := s.cache.GetSchemaContext(ctx, s.tenantKey(), conn.EncryptedDSN, conn.Dialect)
	if err != nil {
		return toolError("Schema introspection failed: %v", err)
	}

	tableName := optionalString(request, "table")
	if tableName == "" {
		return successJSON(sc)
	}

	table := sc.Table(tableName)
	if table == nil {
		// Provide available table names so the LLM can self-correct.
		names := make([]string, len(sc.Tables))
		for i, t := range sc.Tables {
			names[i] = t.Name
		}
		return toolError("Table %q not found.\n\nAvailable tables: %v", tableName, names)
	}

	return successJSON(table)
}

// handleSwitchConnection activates a stored connection, tearing down the old
// pool and cached schema so subsequent tools hit the new database.
func (s *MCPServer) handleSwitchConnection(
	ctx context.Context,
	request mcp.CallToolRequest,
) (*mcp.CallToolResult, error) {

	id := optionalInt(request, "connection_id", 0)
	if id <= 0 {
		return toolError("Missing or invalid 'connection_id'. " +
			"Use sqldeck_list_connections to find connection IDs.")
	}

	if err := s.store.SetActiveConnection(ctx, s.tenantID, int64(id)); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return toolError("Connection %d not found. "+
				"Use sqldeck_list_connections to find connection IDs.", id)
		}
		return toolError("Failed to activate connection: %v", err)
	}

	if s.manager != nil {
		s.manager.ClosePool(s.tenantKey())
	}
	s.cache.InvalidateUserCache(s.tenantKey())

	conn, err := s.store.GetConnection(ctx, s.tenantID, int64(id))
	if err != nil {
		return toolError("Failed to load connection: %v", err)
	}

	return successJSON(connectionInfo{
		ID:       conn.ID,
		Label:    conn.Label,
		Dialect:  conn.Dialect,
		IsActive: conn.IsActive,
	})
}

// handleValidateQuery runs static analysis on a SQL statement.
func (s *MCPServer) handleValidateQuery(
	ctx context.Context,
	request mcp.CallToolRequest,
) (*mcp.CallToolResult, error) {

	sqlStr, err := requireString(request, "sql")
	if err != nil {
		return toolError("%v", err)
	}

	conn, res := s.activeConnection(ctx)
	if res != nil {
		return res, nil
	}

	// Validation is advisory; a failed introspection just skips the
	// schema-aware passes.
	sc, err := s.cache.GetSchemaContext(ctx, s.tenantKey(), conn.EncryptedDSN, conn.Dialect)
	if err != nil {
		sc = nil
	}

	result := s.validator.Validate(sqlStr, conn.Dialect, sc)
	return successJSON(result)
}

// handleRunQuery executes a SQL statement on the active connection.
func (s *MCPServer) handleRunQuery(
	ctx context.Context,
	request mcp.CallToolRequest,
) (*mcp.CallToolResult, error) {

	sqlStr, err := requireString(request, "sql")
	if err != nil {
		return toolError("%v", err)
	}
	limit := clamp(optionalInt(request, "limit", 100), 1, s.maxRows)

	conn, res := s.activeConnection(ctx)
	if res != nil {
		return res, nil
	}

	result, err := s.gateway.Execute(ctx, s.tenantKey(), conn.EncryptedDSN, sqlStr, model.FormatJSON)
	if err != nil {
		return toolError("Query execution failed: %v\n\nSQL: %s", err, sqlStr)
	}

	rows := result.Rows
	truncated := len(rows) > limit
	if truncated {
		rows = rows[:limit]
	}

	out := map[string]interface{}{
		"rows":      rows,
		"row_count": len(rows),
		"truncated": truncated,
	}
	if truncated {
		out["message"] = fmt.Sprintf(
			"Results truncated at %d rows. Increase the 'limit' parameter or add a WHERE clause to narrow results.",
			limit,
		)
	}

	return successJSON(out)
}

// activeConnection resolves the tenant's active stored connection. When none
// is configured it returns a tool-level error result for the second value.
func (s *MCPServer) activeConnection(ctx context.Context) (*model.StoredConnection, *mcp.CallToolResult) {
	conn, err := s.store.GetActiveConnection(ctx, s.tenantID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			res, _ := toolError("No active connection. " +
				"Use sqldeck_list_connections to see stored connections and " +
				"sqldeck_switch_connection to activate one.")
			return nil, res
		}
		res, _ := toolError("Failed to resolve active connection: %v", err)
		return nil, res
	}
	return conn, nil
}
