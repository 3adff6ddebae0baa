package connector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Decrypter is the narrow slice of the vault the manager needs.
type Decrypter interface {
	Decrypt(token string) (string, error)
}

// healthFailureLimit is how many consecutive failed pings a pool survives
// before the manager tears it down so the next use recreates it.
const healthFailureLimit = 3

// defaultPingInterval is how often the background observer pings each pool.
const defaultPingInterval = 30 * time.Second

// PoolHandle is the runtime object representing one tenant's live pool. It is
// owned exclusively by the Manager; callers borrow it for the duration of a
// request and must not retain it across a connection switch.
type PoolHandle struct {
	tenantID string
	dialect  string
	adapter  Adapter

	closeOnce sync.Once
	stop      chan struct{}
}

// Dialect returns the SQL dialect this pool speaks.
func (h *PoolHandle) Dialect() string { return h.dialect }

// Acquire checks a single connection out of the pool. The caller must call
// Release on the returned connection on every path.
func (h *PoolHandle) Acquire(ctx context.Context) (ScopedConn, error) {
	return h.adapter.Acquire(ctx)
}

// Query executes a statement on any pooled connection, for callers that do
// not need an explicit scoped connection.
func (h *PoolHandle) Query(ctx context.Context, sql string) (*QueryOutput, error) {
	return h.adapter.Query(ctx, sql)
}

// FetchCatalog exposes the adapter's raw schema catalog rows.
func (h *PoolHandle) FetchCatalog(ctx context.Context) ([]ColumnCatalogRow, []ConstraintCatalogRow, error) {
	return h.adapter.FetchCatalog(ctx)
}

// Ping verifies the underlying pool is alive.
func (h *PoolHandle) Ping(ctx context.Context) error {
	return h.adapter.Ping(ctx)
}

func (h *PoolHandle) close() error {
	var err error
	h.closeOnce.Do(func() {
		close(h.stop)
		err = h.adapter.Close()
	})
	return err
}

// errPoolClosed marks an entry whose construction slot was claimed by
// ClosePool before any build ran. GetPool treats it as a signal to start
// over with a fresh entry.
var errPoolClosed = errors.New("pool closed during construction")

// poolEntry serializes pool creation per tenant without holding the table
// lock across the network handshake. ClosePool synchronizes on the same
// once, so a close issued mid-build waits for the build and then closes the
// result instead of leaking it.
type poolEntry struct {
	once   sync.Once
	handle *PoolHandle
	err    error
}

// Manager owns the tenant-keyed pool table. Operations on different tenants
// proceed independently; creation for a given tenant happens at most once
// between closes.
type Manager struct {
	mu    sync.Mutex
	pools map[string]*poolEntry

	factories    map[string]Factory
	vault        Decrypter
	cfg          ConnectionConfig
	pingInterval time.Duration
	logger       *slog.Logger
}

// NewManager creates an empty Manager using the given vault for transient DSN
// decryption.
func NewManager(vault Decrypter, cfg ConnectionConfig, logger *slog.Logger) *Manager {
	return &Manager{
		pools:        make(map[string]*poolEntry),
		factories:    make(map[string]Factory),
		vault:        vault,
		cfg:          cfg,
		pingInterval: defaultPingInterval,
		logger:       logger,
	}
}

// RegisterDialect registers an adapter factory for a dialect.
func (m *Manager) RegisterDialect(dialect string, factory Factory) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.factories[dialect] = factory
}

// GetPool returns the tenant's pool handle, constructing it on first use.
// If a handle already exists it is returned unconditionally: the encrypted
// DSN argument is NOT re-validated against the cached pool's origin, so a
// stale pool survives an out-of-band credential change until ClosePool is
// called. Call-sites that mutate active-connection metadata own invalidation.
func (m *Manager) GetPool(ctx context.Context, tenantID, encryptedDSN string) (*PoolHandle, error) {
	for {
		m.mu.Lock()
		entry, ok := m.pools[tenantID]
		if !ok {
			entry = &poolEntry{}
			m.pools[tenantID] = entry
		}
		m.mu.Unlock()

		entry.once.Do(func() {
			entry.handle, entry.err = m.buildPool(ctx, tenantID, encryptedDSN)
		})

		if entry.err != nil {
			// Drop the failed entry so the next call retries construction.
			m.mu.Lock()
			if m.pools[tenantID] == entry {
				delete(m.pools, tenantID)
			}
			m.mu.Unlock()
			if errors.Is(entry.err, errPoolClosed) {
				// ClosePool won the entry before the build ran; it is
				// already out of the map, so go again with a new one.
				continue
			}
			return nil, entry.err
		}
		return entry.handle, nil
	}
}

func (m *Manager) buildPool(ctx context.Context, tenantID, encryptedDSN string) (*PoolHandle, error) {
	dsn, err := m.vault.Decrypt(encryptedDSN)
	if err != nil {
		return nil, err
	}

	dialect := DetectDialect(dsn)

	m.mu.Lock()
	factory, ok := m.factories[dialect]
	m.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("no adapter registered for dialect %q", dialect)
	}

	cfg := m.cfg
	cfg.DSN = NormalizeDSN(dialect, dsn)

	adapter := factory()
	if err := adapter.Connect(cfg); err != nil {
		return nil, fmt.Errorf("open %s pool for tenant %s: %w", dialect, tenantID, err)
	}

	h := &PoolHandle{
		tenantID: tenantID,
		dialect:  dialect,
		adapter:  adapter,
		stop:     make(chan struct{}),
	}

	go m.observe(h)

	m.logger.Info("pool opened", "tenant", tenantID, "dialect", dialect)
	return h, nil
}

// observe pings the pool in the background. After healthFailureLimit
// consecutive failures the pool is considered fatally broken and closed, so
// the next use recreates it with fresh credentials.
func (m *Manager) observe(h *PoolHandle) {
	ticker := time.NewTicker(m.pingInterval)
	defer ticker.Stop()

	failures := 0
	for {
		select {
		case <-h.stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), m.cfg.AcquireTimeout)
			err := h.adapter.Ping(ctx)
			cancel()

			if err == nil {
				failures = 0
				continue
			}
			failures++
			m.logger.Warn("pool health check failed",
				"tenant", h.tenantID, "dialect", h.dialect,
				"failures", failures, "error", err)
			if failures >= healthFailureLimit {
				m.logger.Error("pool unrecoverable, closing", "tenant", h.tenantID)
				m.ClosePool(h.tenantID)
				return
			}
		}
	}
}

// ClosePool gracefully shuts the tenant's pool down and removes the handle.
// Removal is unconditional: even if the underlying close fails, the handle is
// unreachable afterwards so a zombie pool can never serve a tenant whose
// credential may have changed. A close racing a first GetPool waits for the
// in-flight build and closes its result, so no pool escapes tracking.
func (m *Manager) ClosePool(tenantID string) {
	m.mu.Lock()
	entry, ok := m.pools[tenantID]
	delete(m.pools, tenantID)
	m.mu.Unlock()

	if !ok {
		return
	}

	// Either claim the construction slot (build never ran, nothing to
	// close) or block here until the in-flight build finishes and its
	// handle is final.
	entry.once.Do(func() { entry.err = errPoolClosed })

	if entry.handle == nil {
		return
	}
	if err := entry.handle.close(); err != nil {
		m.logger.Warn("pool shutdown failed, handle removed anyway",
			"tenant", tenantID, "error", err)
		return
	}
	m.logger.Info("pool closed", "tenant", tenantID)
}

// CloseAll shuts down every open pool. Used on process shutdown.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	tenants := make([]string, 0, len(m.pools))
	for t := range m.pools {
		tenants = append(tenants, t)
	}
	m.mu.Unlock()

	for _, t := range tenants {
		m.ClosePool(t)
	}
}

// OpenPools returns the number of currently open pools.
func (m *Manager) OpenPools() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pools)
}
