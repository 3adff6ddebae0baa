package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/sqldeck/sqldeck/internal/connector"
	"github.com/sqldeck/sqldeck/internal/model"
	"github.com/sqldeck/sqldeck/internal/schema"
	"github.com/sqldeck/sqldeck/internal/server/middleware"
	"github.com/sqldeck/sqldeck/internal/store"
	"github.com/sqldeck/sqldeck/internal/vault"
)

// ConnectionHandler manages a tenant's stored database connections.
type ConnectionHandler struct {
	store   *store.Store
	vault   *vault.Vault
	manager *connector.Manager
	cache   *schema.Cache
}

// NewConnectionHandler creates a new ConnectionHandler.
func NewConnectionHandler(st *store.Store, v *vault.Vault, mgr *connector.Manager, cache *schema.Cache) *ConnectionHandler {
	return &ConnectionHandler{store: st, vault: v, manager: mgr, cache: cache}
}

// List returns the authenticated tenant's stored connections. DSNs are never
// included; the model omits them from JSON.
// GET /api/v1/connections
func (h *ConnectionHandler) List(w http.ResponseWriter, r *http.Request) {
	principal := middleware.GetPrincipal(r.Context())

	conns, err := h.store.ListConnections(r.Context(), principal.TenantID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list connections: "+err.Error())
		return
	}

	resources := make([]map[string]interface{}, 0, len(conns))
	for i := range conns {
		resources = append(resources, connectionToMap(&conns[i]))
	}

	writeJSON(w, http.StatusOK, model.ListResponse{
		Resource: resources,
		Meta:     &model.ResponseMeta{Count: len(resources)},
	})
}

// createConnectionRequest is the expected payload for Create.
type createConnectionRequest struct {
	Label string `json:"label"`
	DSN   string `json:"dsn"`
}

// Create registers a new database connection for the tenant. The DSN is
// normalized, encrypted by the vault, and never persisted or returned in
// plaintext. The connection starts inactive.
// POST /api/v1/connections
func (h *ConnectionHandler) Create(w http.ResponseWriter, r *http.Request) {
	principal := middleware.GetPrincipal(r.Context())

	var req createConnectionRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if req.DSN == "" {
		writeError(w, http.StatusBadRequest, "DSN is required")
		return
	}

	dialect := connector.DetectDialect(req.DSN)
	normalized := connector.NormalizeDSN(dialect, req.DSN)

	encrypted, err := h.vault.Encrypt(normalized)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to encrypt DSN: "+err.Error())
		return
	}

	conn := &model.StoredConnection{
		TenantID:     principal.TenantID,
		Label:        req.Label,
		EncryptedDSN: encrypted,
		Dialect:      dialect,
	}
	if err := h.store.CreateConnection(r.Context(), conn); err != nil {
		if errors.Is(err, store.ErrConnectionLimit) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to save connection: "+err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, connectionToMap(conn))
}

// Activate makes a stored connection the tenant's active one. The tenant's
// live pool is closed and its schema cache invalidated so the next query and
// introspection hit the newly selected database.
// PUT /api/v1/connections/{connectionId}/activate
func (h *ConnectionHandler) Activate(w http.ResponseWriter, r *http.Request) {
	principal := middleware.GetPrincipal(r.Context())

	idStr := chi.URLParam(r, "connectionId")
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid connection ID: "+idStr)
		return
	}

	if err := h.store.SetActiveConnection(r.Context(), principal.TenantID, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Connection not found: "+idStr)
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to activate connection: "+err.Error())
		return
	}

	key := tenantKey(principal.TenantID)
	h.manager.ClosePool(key)
	h.cache.InvalidateUserCache(key)

	conn, err := h.store.GetConnection(r.Context(), principal.TenantID, id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load connection: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, connectionToMap(conn))
}

func connectionToMap(conn *model.StoredConnection) map[string]interface{} {
	return map[string]interface{}{
		"id":         conn.ID,
		"label":      conn.Label,
		"dialect":    conn.Dialect,
		"is_active":  conn.IsActive,
		"created_at": conn.CreatedAt,
		"updated_at": conn.UpdatedAt,
	}
}
