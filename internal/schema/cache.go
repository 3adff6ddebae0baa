package schema

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/sqldeck/sqldeck/internal/connector"
	"github.com/sqldeck/sqldeck/internal/model"
)

// ErrSchemaFetch is wrapped into errors returned when the underlying catalog
// queries fail. The cache is left unpopulated in that case.
var ErrSchemaFetch = errors.New("schema introspection failed")

const (
	cacheSize = 500
	cacheTTL  = 2 * time.Hour
)

// FetchFunc fetches the raw catalog rows for a tenant's active database.
// The production implementation goes through the pool manager; tests supply
// canned rows.
type FetchFunc func(ctx context.Context, tenantID, encryptedDSN string) ([]connector.ColumnCatalogRow, []connector.ConstraintCatalogRow, error)

// ManagerFetch adapts a pool manager into a FetchFunc.
func ManagerFetch(mgr *connector.Manager) FetchFunc {
	return func(ctx context.Context, tenantID, encryptedDSN string) ([]connector.ColumnCatalogRow, []connector.ConstraintCatalogRow, error) {
		pool, err := mgr.GetPool(ctx, tenantID, encryptedDSN)
		if err != nil {
			return nil, nil, err
		}
		return pool.FetchCatalog(ctx)
	}
}

// Stats is a snapshot of cache counters for observability.
type Stats struct {
	Entries int   `json:"entries"`
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
}

// Cache resolves and caches schema contexts keyed by (tenant, dialect).
// Cached values are shared read-only; there is no freshness check beyond TTL
// expiry, so callers needing guaranteed freshness must invalidate explicitly.
type Cache struct {
	fetch  FetchFunc
	lru    *expirable.LRU[string, *model.SchemaContext]
	hits   atomic.Int64
	misses atomic.Int64
	logger *slog.Logger
}

// NewCache creates a bounded, time-expiring schema cache.
func NewCache(fetch FetchFunc, logger *slog.Logger) *Cache {
	return &Cache{
		fetch:  fetch,
		lru:    expirable.NewLRU[string, *model.SchemaContext](cacheSize, nil, cacheTTL),
		logger: logger,
	}
}

func cacheKey(tenantID, dialect string) string {
	return tenantID + ":" + dialect
}

// GetSchemaContext returns the tenant's schema context, introspecting the
// live database on a cache miss.
func (c *Cache) GetSchemaContext(ctx context.Context, tenantID, encryptedDSN, dialect string) (*model.SchemaContext, error) {
	key := cacheKey(tenantID, dialect)

	if cached, ok := c.lru.Get(key); ok {
		c.hits.Add(1)
		return cached, nil
	}
	c.misses.Add(1)

	columns, constraints, err := c.fetch(ctx, tenantID, encryptedDSN)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSchemaFetch, err)
	}

	sc := BuildContext(dialect, columns, constraints)
	c.lru.Add(key, sc)
	c.logger.Debug("schema context cached",
		"tenant", tenantID, "dialect", dialect, "tables", len(sc.Tables))
	return sc, nil
}

// InvalidateUserCache removes every cached entry for the tenant, regardless
// of dialect. Returns the number of entries removed.
func (c *Cache) InvalidateUserCache(tenantID string) int {
	prefix := tenantID + ":"
	removed := 0
	for _, key := range c.lru.Keys() {
		if strings.HasPrefix(key, prefix) {
			c.lru.Remove(key)
			removed++
		}
	}
	return removed
}

// GetCacheStats returns current entry count and hit/miss counters.
func (c *Cache) GetCacheStats() Stats {
	return Stats{
		Entries: c.lru.Len(),
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
	}
}
