package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/sqldeck/sqldeck/internal/gateway"
	"github.com/sqldeck/sqldeck/internal/model"
	"github.com/sqldeck/sqldeck/internal/schema"
	"github.com/sqldeck/sqldeck/internal/server/middleware"
	"github.com/sqldeck/sqldeck/internal/store"
	"github.com/sqldeck/sqldeck/internal/validator"
)

// QueryHandler executes and validates SQL against the tenant's active
// connection.
type QueryHandler struct {
	store     *store.Store
	gateway   *gateway.Gateway
	validator *validator.Validator
	cache     *schema.Cache
}

// NewQueryHandler creates a new QueryHandler.
func NewQueryHandler(st *store.Store, gw *gateway.Gateway, v *validator.Validator, cache *schema.Cache) *QueryHandler {
	return &QueryHandler{store: st, gateway: gw, validator: v, cache: cache}
}

// queryRequest is the expected payload for Execute and Validate. Validate
// ignores Format and Validate.
type queryRequest struct {
	SQL      string `json:"sql"`
	Format   string `json:"format,omitempty"`
	Validate bool   `json:"validate,omitempty"`
}

// queryResponse wraps an execution result with timing metadata and, when
// requested, an advisory validation result.
type queryResponse struct {
	*model.QueryResult
	TookMs     float64                 `json:"took_ms"`
	Validation *model.ValidationResult `json:"validation,omitempty"`
}

// Execute runs the submitted SQL on the tenant's active connection.
// POST /api/v1/query
func (h *QueryHandler) Execute(w http.ResponseWriter, r *http.Request) {
	principal := middleware.GetPrincipal(r.Context())

	var req queryRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if req.SQL == "" {
		writeError(w, http.StatusBadRequest, "sql is required")
		return
	}
	format := req.Format
	if format == "" {
		format = model.FormatTable
	}

	conn, err := h.activeConnection(w, r)
	if err != nil {
		return
	}

	// Advisory pre-flight validation. Findings ride along with the result;
	// they never block execution.
	var validation *model.ValidationResult
	if req.Validate {
		sc, err := h.cache.GetSchemaContext(r.Context(), tenantKey(principal.TenantID), conn.EncryptedDSN, conn.Dialect)
		if err != nil {
			sc = nil
		}
		validation = h.validator.Validate(req.SQL, conn.Dialect, sc)
	}

	start := time.Now()
	result, err := h.gateway.Execute(r.Context(), tenantKey(principal.TenantID), conn.EncryptedDSN, req.SQL, format)
	if err != nil {
		status, msg := classifyDBError(err, "Query failed")
		writeError(w, status, msg)
		return
	}

	writeJSON(w, http.StatusOK, queryResponse{
		QueryResult: result,
		TookMs:      float64(time.Since(start).Microseconds()) / 1000.0,
		Validation:  validation,
	})
}

// Validate runs static analysis on the submitted SQL without executing it.
// The schema context comes from the introspection cache; when introspection
// fails the schema-aware passes are skipped rather than failing the request,
// since validation is advisory.
// POST /api/v1/query/validate
func (h *QueryHandler) Validate(w http.ResponseWriter, r *http.Request) {
	principal := middleware.GetPrincipal(r.Context())

	var req queryRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if req.SQL == "" {
		writeError(w, http.StatusBadRequest, "sql is required")
		return
	}

	conn, err := h.activeConnection(w, r)
	if err != nil {
		return
	}

	sc, err := h.cache.GetSchemaContext(r.Context(), tenantKey(principal.TenantID), conn.EncryptedDSN, conn.Dialect)
	if err != nil {
		sc = nil
	}

	result := h.validator.Validate(req.SQL, conn.Dialect, sc)
	writeJSON(w, http.StatusOK, result)
}

// activeConnection resolves the tenant's active stored connection, writing
// the error response itself when none is configured.
func (h *QueryHandler) activeConnection(w http.ResponseWriter, r *http.Request) (*model.StoredConnection, error) {
	principal := middleware.GetPrincipal(r.Context())

	conn, err := h.store.GetActiveConnection(r.Context(), principal.TenantID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusPreconditionFailed,
				"No active connection. Add a connection and activate it first.")
			return nil, err
		}
		writeError(w, http.StatusInternalServerError, "Failed to resolve active connection: "+err.Error())
		return nil, err
	}
	return conn, nil
}
