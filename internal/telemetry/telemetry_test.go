package telemetry

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"
)

// mockStore implements SettingsStore for testing.
type mockStore struct {
	data map[string]string
}

func newMockStore() *mockStore {
	return &mockStore{data: make(map[string]string)}
}

func (m *mockStore) GetSetting(_ context.Context, key string) (string, error) {
	v, ok := m.data[key]
	if !ok {
		return "", fmt.Errorf("not found")
	}
	return v, nil
}

func (m *mockStore) SetSetting(_ context.Context, key, value string) error {
	m.data[key] = value
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestResolveInstanceID_GeneratesAndPersists(t *testing.T) {
	store := newMockStore()
	ctx := context.Background()

	id := resolveInstanceID(ctx, store)
	if id == "" {
		t.Fatal("expected non-empty instance ID")
	}

	// Should be persisted
	stored, err := store.GetSetting(ctx, "instance_id")
	if err != nil {
		t.Fatalf("expected instance_id in store: %v", err)
	}
	if stored != id {
		t.Errorf("stored ID %q != returned ID %q", stored, id)
	}

	// Second call should return same ID
	id2 := resolveInstanceID(ctx, store)
	if id2 != id {
		t.Errorf("expected same ID on second call, got %q vs %q", id2, id)
	}
}

func TestResolveInstanceID_NilStore(t *testing.T) {
	id := resolveInstanceID(context.Background(), nil)
	if id == "" {
		t.Fatal("expected non-empty instance ID even with nil store")
	}
}

func TestNew_DisabledViaSetting(t *testing.T) {
	store := newMockStore()
	store.data["heartbeat.enabled"] = "false"

	r := New(context.Background(), store, func() Stats { return Stats{} }, discardLogger())
	if r != nil {
		t.Fatal("expected nil reporter when disabled via setting")
	}
}

func TestNew_DisabledViaEnv(t *testing.T) {
	for _, val := range []string{"0", "false", "False", "FALSE", "Off", "NO", "no"} {
		t.Run(val, func(t *testing.T) {
			t.Setenv("SQLDECK_HEARTBEAT", val)
			store := newMockStore()
			r := New(context.Background(), store, func() Stats { return Stats{} }, discardLogger())
			if r != nil {
				t.Fatalf("expected nil reporter when SQLDECK_HEARTBEAT=%s", val)
			}
		})
	}
}

func TestNew_EnabledByDefault(t *testing.T) {
	store := newMockStore()
	r := New(context.Background(), store, func() Stats { return Stats{} }, discardLogger())
	if r == nil {
		t.Fatal("expected non-nil reporter when enabled by default")
	}
}

func TestReporter_InstanceIDPersisted(t *testing.T) {
	store := newMockStore()
	r := New(context.Background(), store, func() Stats {
		return Stats{
			Version:     "0.1.0",
			Tenants:     2,
			Connections: 3,
		}
	}, discardLogger())

	if r.instanceID == "" {
		t.Fatal("expected non-empty instance ID")
	}

	id, err := store.GetSetting(context.Background(), "instance_id")
	if err != nil {
		t.Fatalf("instance_id not persisted: %v", err)
	}
	if id != r.instanceID {
		t.Errorf("persisted ID %q != reporter ID %q", id, r.instanceID)
	}
}

func TestReporter_StartShutdown(t *testing.T) {
	store := newMockStore()
	r := New(context.Background(), store, func() Stats {
		return Stats{Version: "test"}
	}, discardLogger())

	// Start/Shutdown should complete without hanging or panicking.
	r.Start()
	time.Sleep(100 * time.Millisecond)
	r.Shutdown()
}

func TestStartShutdown_NilReporter(t *testing.T) {
	// Ensure nil reporter doesn't panic
	var r *Reporter
	r.Start()
	r.Shutdown()
}
