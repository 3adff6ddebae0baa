package handler

import (
	"errors"
	"net/http"

	"github.com/sqldeck/sqldeck/internal/schema"
	"github.com/sqldeck/sqldeck/internal/server/middleware"
	"github.com/sqldeck/sqldeck/internal/store"
)

// SchemaHandler serves the normalized schema of the tenant's active database.
type SchemaHandler struct {
	store *store.Store
	cache *schema.Cache
}

// NewSchemaHandler creates a new SchemaHandler.
func NewSchemaHandler(st *store.Store, cache *schema.Cache) *SchemaHandler {
	return &SchemaHandler{store: st, cache: cache}
}

// Get returns the schema context for the tenant's active connection, served
// from the cache when fresh.
// GET /api/v1/schema
func (h *SchemaHandler) Get(w http.ResponseWriter, r *http.Request) {
	principal := middleware.GetPrincipal(r.Context())

	conn, err := h.store.GetActiveConnection(r.Context(), principal.TenantID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusPreconditionFailed,
				"No active connection. Add a connection and activate it first.")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to resolve active connection: "+err.Error())
		return
	}

	sc, err := h.cache.GetSchemaContext(r.Context(), tenantKey(principal.TenantID), conn.EncryptedDSN, conn.Dialect)
	if err != nil {
		if errors.Is(err, schema.ErrSchemaFetch) {
			writeError(w, http.StatusBadGateway, "Schema introspection failed: "+err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to load schema: "+err.Error())
		return
	}

	writeJSON(w, http.StatusOK, sc)
}

// Invalidate drops all cached schema entries for the tenant, forcing the next
// Get to introspect the live database.
// DELETE /api/v1/schema
func (h *SchemaHandler) Invalidate(w http.ResponseWriter, r *http.Request) {
	principal := middleware.GetPrincipal(r.Context())

	removed := h.cache.InvalidateUserCache(tenantKey(principal.TenantID))
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"removed": removed,
	})
}

// Stats returns cache-wide hit/miss counters and entry count.
// GET /api/v1/schema/stats
func (h *SchemaHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats := h.cache.GetCacheStats()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"entries": stats.Entries,
		"hits":    stats.Hits,
		"misses":  stats.Misses,
	})
}
