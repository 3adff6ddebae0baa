package mcp

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

// Argument and result plumbing shared by all sqldeck tools. Tool failures are
// reported through mcp.NewToolResultError rather than a Go error: a protocol
// error aborts the agent's session, while a result-level error is text the
// model can read and recover from (retry with a fixed SQL statement, switch
// connections, and so on).

// requireString fetches a mandatory string argument. Whitespace-only values
// count as missing; an LLM passing "" or " " meant to omit the argument.
func requireString(request mcp.CallToolRequest, key string) (string, error) {
	val, err := request.RequireString(key)
	if err != nil {
		return "", fmt.Errorf("missing required argument %q", key)
	}
	if strings.TrimSpace(val) == "" {
		return "", fmt.Errorf("argument %q must not be empty", key)
	}
	return val, nil
}

// optionalString returns the argument value, or "" when absent.
func optionalString(request mcp.CallToolRequest, key string) string {
	return request.GetString(key, "")
}

// optionalInt returns the argument value, or def when absent. JSON numbers
// arrive as float64; GetInt handles the conversion.
func optionalInt(request mcp.CallToolRequest, key string, def int) int {
	return request.GetInt(key, def)
}

// successJSON renders v as indented JSON text content. Marshal failures
// become tool errors; none of the result types here contain unmarshalable
// values, so hitting this path means a bug worth surfacing to the agent.
func successJSON(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return toolError("Failed to encode result: %v", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}

// toolError builds a result-level error. The nil Go error is deliberate; see
// the package note above.
func toolError(format string, args ...any) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultError(fmt.Sprintf(format, args...)), nil
}

// clamp bounds v to [lo, hi].
func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
