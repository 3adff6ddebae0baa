package connector

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/jmoiron/sqlx"

	"github.com/sqldeck/sqldeck/internal/model"
)

// mockAdapter implements Adapter for testing without a real database.
type mockAdapter struct {
	mu           sync.Mutex
	connected    bool
	closed       bool
	connectErr   error
	cfg          ConnectionConfig
}

func (m *mockAdapter) Connect(cfg ConnectionConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.connectErr != nil {
		return m.connectErr
	}
	m.connected = true
	m.cfg = cfg
	return nil
}

func (m *mockAdapter) Acquire(_ context.Context) (ScopedConn, error) { return nil, nil }
func (m *mockAdapter) Query(_ context.Context, _ string) (*QueryOutput, error) {
	return &QueryOutput{Columns: []string{model.StatusColumn}, Rows: []map[string]any{}}, nil
}
func (m *mockAdapter) Ping(_ context.Context) error { return nil }
func (m *mockAdapter) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
func (m *mockAdapter) FetchCatalog(_ context.Context) ([]ColumnCatalogRow, []ConstraintCatalogRow, error) {
	return nil, nil, nil
}
func (m *mockAdapter) Dialect() string { return model.DialectPostgres }
func (m *mockAdapter) DB() *sqlx.DB    { return nil }

// plainVault is a pass-through Decrypter for tests.
type plainVault struct {
	err error
}

func (v plainVault) Decrypt(token string) (string, error) {
	if v.err != nil {
		return "", v.err
	}
	return token, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestManager(t *testing.T) (*Manager, *[]*mockAdapter) {
	t.Helper()
	m := NewManager(plainVault{}, DefaultConnectionConfig(), testLogger())
	var built []*mockAdapter
	var mu sync.Mutex
	m.RegisterDialect(model.DialectPostgres, func() Adapter {
		a := &mockAdapter{}
		mu.Lock()
		built = append(built, a)
		mu.Unlock()
		return a
	})
	return m, &built
}

func TestGetPoolReturnsSameHandle(t *testing.T) {
	m, built := newTestManager(t)
	ctx := context.Background()

	h1, err := m.GetPool(ctx, "tenant-1", "postgres://u:p@h/db")
	if err != nil {
		t.Fatalf("GetPool: %v", err)
	}
	h2, err := m.GetPool(ctx, "tenant-1", "postgres://u:p@h/other-db")
	if err != nil {
		t.Fatalf("GetPool: %v", err)
	}

	if h1 != h2 {
		t.Error("expected identical handle instance on repeated GetPool calls")
	}
	if len(*built) != 1 {
		t.Errorf("expected exactly 1 adapter built, got %d", len(*built))
	}
}

func TestClosePoolForcesRecreation(t *testing.T) {
	m, built := newTestManager(t)
	ctx := context.Background()

	h1, err := m.GetPool(ctx, "tenant-1", "postgres://u:p@h/db")
	if err != nil {
		t.Fatalf("GetPool: %v", err)
	}

	m.ClosePool("tenant-1")
	if !(*built)[0].closed {
		t.Error("underlying adapter was not closed")
	}

	h2, err := m.GetPool(ctx, "tenant-1", "postgres://u:p@h/db")
	if err != nil {
		t.Fatalf("GetPool after close: %v", err)
	}
	if h1 == h2 {
		t.Error("expected a new handle after ClosePool")
	}
	if len(*built) != 2 {
		t.Errorf("expected 2 adapters built, got %d", len(*built))
	}
}

// slowAdapter blocks inside Connect until released, to exercise the race
// between a first GetPool and a concurrent ClosePool.
type slowAdapter struct {
	mockAdapter
	started chan struct{}
	release chan struct{}
}

func (s *slowAdapter) Connect(cfg ConnectionConfig) error {
	close(s.started)
	<-s.release
	return s.mockAdapter.Connect(cfg)
}

func TestClosePoolDuringBuildClosesResult(t *testing.T) {
	a := &slowAdapter{started: make(chan struct{}), release: make(chan struct{})}
	m := NewManager(plainVault{}, DefaultConnectionConfig(), testLogger())
	m.RegisterDialect(model.DialectPostgres, func() Adapter { return a })

	built := make(chan struct{})
	go func() {
		defer close(built)
		if _, err := m.GetPool(context.Background(), "tenant-1", "postgres://u:p@h/db"); err != nil {
			t.Errorf("GetPool: %v", err)
		}
	}()

	// The dial is in flight; a close issued now must wait for it and then
	// dispose of its result rather than leaving an untracked pool behind.
	<-a.started
	closeDone := make(chan struct{})
	go func() {
		defer close(closeDone)
		m.ClosePool("tenant-1")
	}()

	close(a.release)
	<-built
	<-closeDone

	if n := m.OpenPools(); n != 0 {
		t.Errorf("OpenPools = %d after close, want 0", n)
	}
	a.mu.Lock()
	closed := a.closed
	a.mu.Unlock()
	if !closed {
		t.Error("adapter built during ClosePool was never closed")
	}
}

func TestGetPoolIndependentTenants(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	h1, err := m.GetPool(ctx, "tenant-1", "postgres://u:p@h/db")
	if err != nil {
		t.Fatal(err)
	}
	h2, err := m.GetPool(ctx, "tenant-2", "postgres://u:p@h/db")
	if err != nil {
		t.Fatal(err)
	}
	if h1 == h2 {
		t.Error("different tenants must not share a pool handle")
	}
	if m.OpenPools() != 2 {
		t.Errorf("expected 2 open pools, got %d", m.OpenPools())
	}
}

func TestGetPoolConcurrentSingleCreation(t *testing.T) {
	m, built := newTestManager(t)
	ctx := context.Background()

	const goroutines = 16
	handles := make([]*PoolHandle, goroutines)
	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			h, err := m.GetPool(ctx, "tenant-1", "postgres://u:p@h/db")
			if err != nil {
				t.Errorf("GetPool: %v", err)
				return
			}
			handles[i] = h
		}(i)
	}
	wg.Wait()

	for i := 1; i < goroutines; i++ {
		if handles[i] != handles[0] {
			t.Fatal("concurrent GetPool calls returned different handles")
		}
	}
	if len(*built) != 1 {
		t.Errorf("expected exactly 1 adapter under concurrent creation, got %d", len(*built))
	}
}

func TestGetPoolConnectFailureRetries(t *testing.T) {
	m := NewManager(plainVault{}, DefaultConnectionConfig(), testLogger())
	attempts := 0
	m.RegisterDialect(model.DialectPostgres, func() Adapter {
		attempts++
		if attempts == 1 {
			return &mockAdapter{connectErr: fmt.Errorf("connection refused")}
		}
		return &mockAdapter{}
	})
	ctx := context.Background()

	if _, err := m.GetPool(ctx, "tenant-1", "postgres://u:p@h/db"); err == nil {
		t.Fatal("expected first GetPool to fail")
	}
	if _, err := m.GetPool(ctx, "tenant-1", "postgres://u:p@h/db"); err != nil {
		t.Fatalf("expected second GetPool to retry and succeed, got %v", err)
	}
}

func TestGetPoolDecryptionFailure(t *testing.T) {
	m := NewManager(plainVault{err: fmt.Errorf("authentication failed")}, DefaultConnectionConfig(), testLogger())
	m.RegisterDialect(model.DialectPostgres, func() Adapter { return &mockAdapter{} })

	if _, err := m.GetPool(context.Background(), "tenant-1", "garbage-token"); err == nil {
		t.Fatal("expected error when DSN decryption fails")
	}
	if m.OpenPools() != 0 {
		t.Error("failed creation must not leave a pool registered")
	}
}

func TestClosePoolMissingTenantIsNoop(t *testing.T) {
	m, _ := newTestManager(t)
	m.ClosePool("never-seen") // must not panic
}
