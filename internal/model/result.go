package model

// Output formats accepted by the execution gateway.
const (
	FormatTable = "table"
	FormatJSON  = "json"
)

// StatusColumn is the synthetic column name used when a statement returns no
// column metadata (DDL, or DML without RETURNING).
const StatusColumn = "Status"

// QueryResult is the normalized outcome of executing a SQL statement,
// identical in shape regardless of dialect. Columns is nil in JSON format.
type QueryResult struct {
	Columns  []string         `json:"columns,omitempty"`
	Rows     []map[string]any `json:"rows"`
	RowCount int              `json:"row_count"`
}

// ValidationResult is the structured, non-throwing outcome of static SQL
// analysis. Warnings and suggested indexes never affect validity.
type ValidationResult struct {
	IsValid          bool     `json:"is_valid"`
	Errors           []string `json:"errors"`
	Warnings         []string `json:"warnings"`
	SuggestedIndexes []string `json:"suggested_indexes,omitempty"`
}
