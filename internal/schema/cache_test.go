package schema

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"reflect"
	"testing"

	"github.com/sqldeck/sqldeck/internal/connector"
	"github.com/sqldeck/sqldeck/internal/model"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// countingFetch returns a FetchFunc serving the fixture catalog and counts
// how many times the live database would have been hit.
func countingFetch(calls *int) FetchFunc {
	return func(_ context.Context, _, _ string) ([]connector.ColumnCatalogRow, []connector.ConstraintCatalogRow, error) {
		*calls++
		cols, cons := catalogFixture()
		return cols, cons, nil
	}
}

func TestCacheMissThenHit(t *testing.T) {
	calls := 0
	c := NewCache(countingFetch(&calls), testLogger())
	ctx := context.Background()

	first, err := c.GetSchemaContext(ctx, "42", "enc-dsn", model.DialectPostgres)
	if err != nil {
		t.Fatalf("first call: %v", err)
	}
	second, err := c.GetSchemaContext(ctx, "42", "enc-dsn", model.DialectPostgres)
	if err != nil {
		t.Fatalf("second call: %v", err)
	}

	if calls != 1 {
		t.Errorf("expected 1 catalog fetch, got %d", calls)
	}
	if !reflect.DeepEqual(first, second) {
		t.Error("cache hit returned a different context")
	}

	stats := c.GetCacheStats()
	if stats.Misses != 1 || stats.Hits != 1 || stats.Entries != 1 {
		t.Errorf("stats = %+v, want 1 miss, 1 hit, 1 entry", stats)
	}
}

func TestCacheKeysAreDialectScoped(t *testing.T) {
	calls := 0
	c := NewCache(countingFetch(&calls), testLogger())
	ctx := context.Background()

	if _, err := c.GetSchemaContext(ctx, "42", "enc", model.DialectPostgres); err != nil {
		t.Fatal(err)
	}
	if _, err := c.GetSchemaContext(ctx, "42", "enc", model.DialectMySQL); err != nil {
		t.Fatal(err)
	}
	if calls != 2 {
		t.Errorf("distinct dialects must miss independently, got %d fetches", calls)
	}
}

func TestInvalidateUserCache(t *testing.T) {
	calls := 0
	c := NewCache(countingFetch(&calls), testLogger())
	ctx := context.Background()

	// Tenant 42 under both dialects, tenant 7 under one.
	c.GetSchemaContext(ctx, "42", "enc", model.DialectPostgres)
	c.GetSchemaContext(ctx, "42", "enc", model.DialectMySQL)
	c.GetSchemaContext(ctx, "7", "enc", model.DialectPostgres)

	removed := c.InvalidateUserCache("42")
	if removed != 2 {
		t.Errorf("expected 2 entries removed for tenant 42, got %d", removed)
	}
	if got := c.GetCacheStats().Entries; got != 1 {
		t.Errorf("expected tenant 7's entry to survive, entries = %d", got)
	}

	// Tenant 7's entry must still be a hit.
	before := c.GetCacheStats().Hits
	c.GetSchemaContext(ctx, "7", "enc", model.DialectPostgres)
	if c.GetCacheStats().Hits != before+1 {
		t.Error("tenant 7's cache entry was disturbed by tenant 42's invalidation")
	}
}

func TestInvalidatePrefixDoesNotOvermatch(t *testing.T) {
	calls := 0
	c := NewCache(countingFetch(&calls), testLogger())
	ctx := context.Background()

	c.GetSchemaContext(ctx, "4", "enc", model.DialectPostgres)
	c.GetSchemaContext(ctx, "42", "enc", model.DialectPostgres)

	if removed := c.InvalidateUserCache("4"); removed != 1 {
		t.Errorf("tenant \"4\" invalidation removed %d entries, want 1", removed)
	}
}

func TestCacheFetchFailureLeavesCacheUnpopulated(t *testing.T) {
	fail := true
	calls := 0
	fetch := func(_ context.Context, _, _ string) ([]connector.ColumnCatalogRow, []connector.ConstraintCatalogRow, error) {
		calls++
		if fail {
			return nil, nil, fmt.Errorf("connection refused")
		}
		cols, cons := catalogFixture()
		return cols, cons, nil
	}
	c := NewCache(fetch, testLogger())
	ctx := context.Background()

	if _, err := c.GetSchemaContext(ctx, "42", "enc", model.DialectPostgres); err == nil {
		t.Fatal("expected error from failing fetch")
	}
	if c.GetCacheStats().Entries != 0 {
		t.Error("failed fetch must not populate the cache")
	}

	fail = false
	if _, err := c.GetSchemaContext(ctx, "42", "enc", model.DialectPostgres); err != nil {
		t.Fatalf("recovery fetch: %v", err)
	}
	if calls != 2 {
		t.Errorf("expected 2 fetch attempts, got %d", calls)
	}
}
