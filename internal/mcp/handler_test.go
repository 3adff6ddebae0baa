package mcp

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"testing"

	mcpgo "github.com/mark3labs/mcp-go/mcp"

	"github.com/sqldeck/sqldeck/internal/connector"
	"github.com/sqldeck/sqldeck/internal/gateway"
	"github.com/sqldeck/sqldeck/internal/model"
	"github.com/sqldeck/sqldeck/internal/schema"
	"github.com/sqldeck/sqldeck/internal/store"
	"github.com/sqldeck/sqldeck/internal/validator"
)

// ---------------------------------------------------------------------------
// Test helpers
// ---------------------------------------------------------------------------

// newToolRequest builds a CallToolRequest with the given arguments.
func newToolRequest(args map[string]any) mcpgo.CallToolRequest {
	return mcpgo.CallToolRequest{
		Params: mcpgo.CallToolParams{
			Arguments: args,
		},
	}
}

// assertToolError asserts that the result is an error containing the given substring.
func assertToolError(t *testing.T, result *mcpgo.CallToolResult, contains string) {
	t.Helper()
	if result == nil {
		t.Fatal("expected error result, got nil")
	}
	if !result.IsError {
		t.Fatal("expected error result, got success")
	}
	text := resultText(t, result)
	if !strings.Contains(text, contains) {
		t.Errorf("expected error containing %q, got %q", contains, text)
	}
}

// assertToolSuccess asserts that the result is a success and returns the text content.
func assertToolSuccess(t *testing.T, result *mcpgo.CallToolResult) string {
	t.Helper()
	if result == nil {
		t.Fatal("expected success result, got nil")
	}
	if result.IsError {
		t.Fatalf("expected success, got error: %s", resultText(t, result))
	}
	return resultText(t, result)
}

func resultText(t *testing.T, result *mcpgo.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatal("expected content, got empty")
	}
	tc, ok := result.Content[0].(mcpgo.TextContent)
	if !ok {
		t.Fatalf("expected TextContent, got %T", result.Content[0])
	}
	return tc.Text
}

type stubConn struct {
	out *connector.QueryOutput
}

func (c *stubConn) Query(ctx context.Context, sql string) (*connector.QueryOutput, error) {
	return c.out, nil
}

func (c *stubConn) Release() error { return nil }

// newTestMCP builds an MCPServer over an in-memory store with one tenant and
// two stored connections, a canned schema, and a stub query gateway.
func newTestMCP(t *testing.T, out *connector.QueryOutput) (*MCPServer, *store.Store) {
	t.Helper()

	st, err := store.NewStore("")
	if err != nil {
		t.Fatalf("store.NewStore: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	ctx := context.Background()
	tenant := &model.Tenant{
		Email:        "tenant@example.com",
		PasswordHash: store.HashAPIKey("password"),
		Name:         "Test Tenant",
		IsActive:     true,
	}
	if err := st.CreateTenant(ctx, tenant); err != nil {
		t.Fatalf("CreateTenant: %v", err)
	}

	for _, label := range []string{"primary", "analytics"} {
		conn := &model.StoredConnection{
			TenantID:     tenant.ID,
			Label:        label,
			EncryptedDSN: "encrypted:" + label,
			Dialect:      model.DialectPostgres,
		}
		if err := st.CreateConnection(ctx, conn); err != nil {
			t.Fatalf("CreateConnection: %v", err)
		}
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	fetch := func(ctx context.Context, tenantID, encryptedDSN string) ([]connector.ColumnCatalogRow, []connector.ConstraintCatalogRow, error) {
		return []connector.ColumnCatalogRow{
				{TableName: "users", ColumnName: "id", DataType: "integer", IsNullable: "NO"},
				{TableName: "users", ColumnName: "email", DataType: "text", IsNullable: "NO"},
				{TableName: "orders", ColumnName: "id", DataType: "integer", IsNullable: "NO"},
			}, []connector.ConstraintCatalogRow{
				{TableName: "users", ColumnName: "id", ConstraintType: "PRIMARY KEY"},
			}, nil
	}

	acquire := func(ctx context.Context, tenantID, encryptedDSN string) (connector.ScopedConn, error) {
		return &stubConn{out: out}, nil
	}

	srv := NewMCPServer(Deps{
		Store:     st,
		Cache:     schema.NewCache(fetch, logger),
		Gateway:   gateway.New(acquire, logger),
		Validator: validator.New(),
	}, tenant.ID, 1000, logger)

	return srv, st
}

// activateFirst makes the tenant's first stored connection active.
func activateFirst(t *testing.T, srv *MCPServer, st *store.Store) int64 {
	t.Helper()
	conns, err := st.ListConnections(context.Background(), srv.tenantID)
	if err != nil || len(conns) == 0 {
		t.Fatalf("ListConnections: %v", err)
	}
	if err := st.SetActiveConnection(context.Background(), srv.tenantID, conns[0].ID); err != nil {
		t.Fatalf("SetActiveConnection: %v", err)
	}
	return conns[0].ID
}

// ---------------------------------------------------------------------------
// Tool handler tests
// ---------------------------------------------------------------------------

func TestListConnectionsTool(t *testing.T) {
	srv, _ := newTestMCP(t, nil)

	result, err := srv.handleListConnections(context.Background(), newToolRequest(nil))
	if err != nil {
		t.Fatalf("handleListConnections: %v", err)
	}
	text := assertToolSuccess(t, result)

	var items []connectionInfo
	if err := json.Unmarshal([]byte(text), &items); err != nil {
		t.Fatalf("unmarshal: %v; text = %s", err, text)
	}
	if len(items) != 2 {
		t.Fatalf("connections = %d, want 2", len(items))
	}
	for _, it := range items {
		if it.IsActive {
			t.Errorf("connection %d active before any switch", it.ID)
		}
	}
	if strings.Contains(text, "encrypted:") {
		t.Error("tool output leaks the encrypted DSN")
	}
}

func TestSwitchConnectionTool(t *testing.T) {
	srv, st := newTestMCP(t, nil)

	conns, err := st.ListConnections(context.Background(), srv.tenantID)
	if err != nil {
		t.Fatalf("ListConnections: %v", err)
	}

	req := newToolRequest(map[string]any{"connection_id": float64(conns[1].ID)})
	result, err := srv.handleSwitchConnection(context.Background(), req)
	if err != nil {
		t.Fatalf("handleSwitchConnection: %v", err)
	}
	text := assertToolSuccess(t, result)

	var info connectionInfo
	if err := json.Unmarshal([]byte(text), &info); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !info.IsActive {
		t.Error("switched connection should be active")
	}
	if info.ID != conns[1].ID {
		t.Errorf("id = %d, want %d", info.ID, conns[1].ID)
	}
}

func TestSwitchConnectionTool_NotFound(t *testing.T) {
	srv, _ := newTestMCP(t, nil)

	req := newToolRequest(map[string]any{"connection_id": float64(99999)})
	result, err := srv.handleSwitchConnection(context.Background(), req)
	if err != nil {
		t.Fatalf("handleSwitchConnection: %v", err)
	}
	assertToolError(t, result, "not found")
}

func TestSwitchConnectionTool_MissingID(t *testing.T) {
	srv, _ := newTestMCP(t, nil)

	result, err := srv.handleSwitchConnection(context.Background(), newToolRequest(nil))
	if err != nil {
		t.Fatalf("handleSwitchConnection: %v", err)
	}
	assertToolError(t, result, "connection_id")
}

func TestGetSchemaTool(t *testing.T) {
	srv, st := newTestMCP(t, nil)
	activateFirst(t, srv, st)

	result, err := srv.handleGetSchema(context.Background(), newToolRequest(nil))
	if err != nil {
		t.Fatalf("handleGetSchema: %v", err)
	}
	text := assertToolSuccess(t, result)

	var sc model.SchemaContext
	if err := json.Unmarshal([]byte(text), &sc); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(sc.Tables) != 2 {
		t.Errorf("tables = %d, want 2", len(sc.Tables))
	}
}

func TestGetSchemaTool_SingleTable(t *testing.T) {
	srv, st := newTestMCP(t, nil)
	activateFirst(t, srv, st)

	req := newToolRequest(map[string]any{"table": "users"})
	result, err := srv.handleGetSchema(context.Background(), req)
	if err != nil {
		t.Fatalf("handleGetSchema: %v", err)
	}
	text := assertToolSuccess(t, result)

	var table model.SchemaTable
	if err := json.Unmarshal([]byte(text), &table); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if table.Name != "users" {
		t.Errorf("table = %q, want users", table.Name)
	}
	if len(table.Columns) != 2 {
		t.Errorf("columns = %d, want 2", len(table.Columns))
	}
}

func TestGetSchemaTool_UnknownTable(t *testing.T) {
	srv, st := newTestMCP(t, nil)
	activateFirst(t, srv, st)

	req := newToolRequest(map[string]any{"table": "ghost"})
	result, err := srv.handleGetSchema(context.Background(), req)
	if err != nil {
		t.Fatalf("handleGetSchema: %v", err)
	}
	assertToolError(t, result, "Available tables")
}

func TestGetSchemaTool_NoActiveConnection(t *testing.T) {
	srv, _ := newTestMCP(t, nil)

	result, err := srv.handleGetSchema(context.Background(), newToolRequest(nil))
	if err != nil {
		t.Fatalf("handleGetSchema: %v", err)
	}
	assertToolError(t, result, "No active connection")
}

func TestValidateQueryTool(t *testing.T) {
	srv, st := newTestMCP(t, nil)
	activateFirst(t, srv, st)

	req := newToolRequest(map[string]any{"sql": "SELECT id FROM ghost_table"})
	result, err := srv.handleValidateQuery(context.Background(), req)
	if err != nil {
		t.Fatalf("handleValidateQuery: %v", err)
	}
	text := assertToolSuccess(t, result)

	var vr model.ValidationResult
	if err := json.Unmarshal([]byte(text), &vr); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if vr.IsValid {
		t.Error("expected invalid for unknown table")
	}
}

func TestRunQueryTool(t *testing.T) {
	out := &connector.QueryOutput{
		Rows: []map[string]any{
			{"id": 1, "email": "a@example.com"},
			{"id": 2, "email": "b@example.com"},
			{"id": 3, "email": "c@example.com"},
		},
		Columns:  []string{"id", "email"},
		RowCount: 3,
	}
	srv, st := newTestMCP(t, out)
	activateFirst(t, srv, st)

	req := newToolRequest(map[string]any{"sql": "SELECT id, email FROM users"})
	result, err := srv.handleRunQuery(context.Background(), req)
	if err != nil {
		t.Fatalf("handleRunQuery: %v", err)
	}
	text := assertToolSuccess(t, result)

	var resp struct {
		Rows      []map[string]any `json:"rows"`
		RowCount  int              `json:"row_count"`
		Truncated bool             `json:"truncated"`
	}
	if err := json.Unmarshal([]byte(text), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.RowCount != 3 || resp.Truncated {
		t.Errorf("row_count = %d truncated = %v, want 3 rows untruncated", resp.RowCount, resp.Truncated)
	}
}

func TestRunQueryTool_Truncation(t *testing.T) {
	out := &connector.QueryOutput{
		Rows: []map[string]any{
			{"id": 1}, {"id": 2}, {"id": 3},
		},
		Columns:  []string{"id"},
		RowCount: 3,
	}
	srv, st := newTestMCP(t, out)
	activateFirst(t, srv, st)

	req := newToolRequest(map[string]any{
		"sql":   "SELECT id FROM users",
		"limit": float64(2),
	})
	result, err := srv.handleRunQuery(context.Background(), req)
	if err != nil {
		t.Fatalf("handleRunQuery: %v", err)
	}
	text := assertToolSuccess(t, result)

	var resp struct {
		Rows      []map[string]any `json:"rows"`
		RowCount  int              `json:"row_count"`
		Truncated bool             `json:"truncated"`
		Message   string           `json:"message"`
	}
	if err := json.Unmarshal([]byte(text), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(resp.Rows) != 2 || !resp.Truncated {
		t.Errorf("rows = %d truncated = %v, want 2 rows truncated", len(resp.Rows), resp.Truncated)
	}
	if resp.Message == "" {
		t.Error("expected truncation message")
	}
}

func TestRunQueryTool_NoActiveConnection(t *testing.T) {
	srv, _ := newTestMCP(t, nil)

	req := newToolRequest(map[string]any{"sql": "SELECT 1"})
	result, err := srv.handleRunQuery(context.Background(), req)
	if err != nil {
		t.Fatalf("handleRunQuery: %v", err)
	}
	assertToolError(t, result, "No active connection")
}

// ---------------------------------------------------------------------------
// Helper tests
// ---------------------------------------------------------------------------

func TestClamp(t *testing.T) {
	tests := []struct {
		name     string
		val      int
		min      int
		max      int
		expected int
	}{
		{"value in range", 5, 1, 10, 5},
		{"value below min", -3, 1, 10, 1},
		{"value above max", 15, 1, 10, 10},
		{"value equals min", 1, 1, 10, 1},
		{"value equals max", 10, 1, 10, 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := clamp(tt.val, tt.min, tt.max)
			if got != tt.expected {
				t.Errorf("clamp(%d, %d, %d) = %d, want %d", tt.val, tt.min, tt.max, got, tt.expected)
			}
		})
	}
}

func TestReadOnlyAnnotation(t *testing.T) {
	ann := readOnlyAnnotation()
	if ann.ReadOnlyHint == nil || !*ann.ReadOnlyHint {
		t.Error("readOnlyAnnotation should set ReadOnlyHint to true")
	}

	ann = mutatingAnnotation()
	if ann.ReadOnlyHint == nil || *ann.ReadOnlyHint {
		t.Error("mutatingAnnotation should set ReadOnlyHint to false")
	}
}
