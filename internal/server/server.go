package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/sqldeck/sqldeck/internal/connector"
	"github.com/sqldeck/sqldeck/internal/gateway"
	"github.com/sqldeck/sqldeck/internal/handler"
	"github.com/sqldeck/sqldeck/internal/schema"
	"github.com/sqldeck/sqldeck/internal/server/middleware"
	"github.com/sqldeck/sqldeck/internal/service"
	"github.com/sqldeck/sqldeck/internal/store"
	"github.com/sqldeck/sqldeck/internal/validator"
	"github.com/sqldeck/sqldeck/internal/vault"
)

// loginRequestsPerMinute is the per-IP ceiling on login attempts,
// independent of the general rate limit.
const loginRequestsPerMinute = 30

// Config holds the HTTP server configuration.
type Config struct {
	Host              string
	Port              int
	ShutdownTimeout   time.Duration
	CORSOrigins       []string
	RequestsPerMinute int
}

// DefaultConfig returns a Config with sensible production defaults.
func DefaultConfig() Config {
	return Config{
		Host:              "0.0.0.0",
		Port:              8080,
		ShutdownTimeout:   30 * time.Second,
		CORSOrigins:       []string{"*"},
		RequestsPerMinute: 300,
	}
}

// Deps bundles the core components the server exposes over HTTP.
type Deps struct {
	Store     *store.Store
	Vault     *vault.Vault
	Manager   *connector.Manager
	Cache     *schema.Cache
	Validator *validator.Validator
	Gateway   *gateway.Gateway
	AuthSvc   *service.AuthService
}

// Server is the top-level HTTP server for sqldeck. It owns the Chi router
// and the wiring between routes and core components.
type Server struct {
	cfg        Config
	deps       Deps
	router     chi.Router
	httpServer *http.Server
	logger     *slog.Logger
}

// New creates a new Server, wires up all routes and middleware, and returns
// it ready to listen. Call ListenAndServe to start accepting connections.
func New(cfg Config, deps Deps, logger *slog.Logger) *Server {
	s := &Server{
		cfg:    cfg,
		deps:   deps,
		logger: logger,
	}
	s.setupRouter()
	return s
}

func (s *Server) setupRouter() {
	r := chi.NewRouter()

	// --- Global middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(s.logger))
	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-API-Key", "X-Requested-With"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(chimw.Compress(5))
	if s.cfg.RequestsPerMinute > 0 {
		// Keyed by API key where present so each machine client gets its
		// own budget; browser sessions fall back to per-IP.
		r.Use(middleware.RateLimitPerClient("X-API-Key", s.cfg.RequestsPerMinute))
	}

	// --- Health checks (no auth required) ---
	r.Get("/healthz", s.handleHealthz)
	r.Get("/readyz", s.handleReadyz)

	// --- API routes ---
	r.Route("/api/v1", func(r chi.Router) {
		sysHandler := handler.NewSystemHandler(s.deps.Store, s.deps.AuthSvc, s.deps.Manager, s.deps.Cache)
		connHandler := handler.NewConnectionHandler(s.deps.Store, s.deps.Vault, s.deps.Manager, s.deps.Cache)
		queryHandler := handler.NewQueryHandler(s.deps.Store, s.deps.Gateway, s.deps.Validator, s.deps.Cache)
		schemaHandler := handler.NewSchemaHandler(s.deps.Store, s.deps.Cache)

		// Session endpoints are unauthenticated (login) or self-authenticated
		// (logout). Login gets a tighter per-IP limit to slow down
		// credential stuffing.
		r.With(middleware.RateLimit(loginRequestsPerMinute)).Post("/session", sysHandler.Login)
		r.Delete("/session", sysHandler.Logout)

		// Everything else requires a tenant identity
		r.Group(func(r chi.Router) {
			r.Use(middleware.Authenticate(s.deps.AuthSvc))

			// Stored connections
			r.Get("/connections", connHandler.List)
			r.Post("/connections", connHandler.Create)
			r.Put("/connections/{connectionId}/activate", connHandler.Activate)

			// Query execution and validation
			r.Post("/query", queryHandler.Execute)
			r.Post("/query/validate", queryHandler.Validate)

			// Schema introspection
			r.Get("/schema", schemaHandler.Get)
			r.Delete("/schema", schemaHandler.Invalidate)
			r.Get("/schema/stats", schemaHandler.Stats)

			// API key management
			r.Get("/api-key", sysHandler.ListAPIKeys)
			r.Post("/api-key", sysHandler.CreateAPIKey)
			r.Delete("/api-key/{keyId}", sysHandler.RevokeAPIKey)

			// Instance statistics
			r.Get("/system/stats", sysHandler.Stats)
		})
	})

	s.router = r
}

// handleHealthz is a liveness probe. Returns 200 if the process is running.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

// handleReadyz is a readiness probe. Returns 200 when the metadata store is
// reachable; tenant database pools are created lazily so they are not part of
// readiness.
func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	httpStatus := http.StatusOK

	if _, err := s.deps.Store.CountTenants(r.Context()); err != nil {
		status = "degraded"
		httpStatus = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatus)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":     status,
		"open_pools": s.deps.Manager.OpenPools(),
	})
}

// ListenAndServe starts the HTTP server and blocks until a SIGINT or SIGTERM
// is received. It then performs a graceful shutdown, draining in-flight
// requests before closing all tenant pools.
func (s *Server) ListenAndServe() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Listen for shutdown signals
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Start server in background goroutine
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", "addr", addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// Wait for shutdown signal or server error
	select {
	case err := <-errCh:
		return fmt.Errorf("server listen: %w", err)
	case <-ctx.Done():
		s.logger.Info("shutdown signal received, draining connections...")
	}

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	// Close all tenant database pools
	s.deps.Manager.CloseAll()
	s.logger.Info("server stopped")
	return nil
}

// Router returns the underlying Chi router, useful for testing.
func (s *Server) Router() chi.Router {
	return s.router
}

// ServeHTTP implements http.Handler, delegating to the router.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
