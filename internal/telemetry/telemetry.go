package telemetry

import (
	"context"
	"log/slog"
	"os"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const heartbeatInterval = 1 * time.Hour

// SettingsStore is the interface the telemetry package needs from the
// metadata store.
type SettingsStore interface {
	GetSetting(ctx context.Context, key string) (string, error)
	SetSetting(ctx context.Context, key, value string) error
}

// Stats holds the instance-level counters reported with each heartbeat.
type Stats struct {
	Version      string
	Tenants      int
	Connections  int
	OpenPools    int
	CacheEntries int
	CacheHits    int64
	CacheMisses  int64
}

// StatsFunc is called each heartbeat to gather current state.
type StatsFunc func() Stats

// Reporter periodically logs an instance heartbeat with uptime and usage
// counters. Everything stays local: the heartbeat goes to the structured log,
// never over the network. The instance ID is a random UUID persisted in the
// settings table so restarts keep a stable identity in log aggregation.
type Reporter struct {
	instanceID string
	statsFn    StatsFunc
	logger     *slog.Logger
	startedAt  time.Time

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Reporter. It resolves (or generates) the instance ID from the
// settings store. Returns nil if heartbeats are disabled via env var or
// settings; a nil Reporter is safe to Start and Shutdown.
func New(ctx context.Context, store SettingsStore, statsFn StatsFunc, logger *slog.Logger) *Reporter {
	if disabled(ctx, store) {
		return nil
	}

	return &Reporter{
		instanceID: resolveInstanceID(ctx, store),
		statsFn:    statsFn,
		logger:     logger,
		startedAt:  time.Now(),
	}
}

func disabled(ctx context.Context, store SettingsStore) bool {
	switch strings.ToLower(os.Getenv("SQLDECK_HEARTBEAT")) {
	case "0", "false", "off", "no":
		return true
	}

	if store != nil {
		val, err := store.GetSetting(ctx, "heartbeat.enabled")
		if err == nil && (val == "false" || val == "0") {
			return true
		}
	}
	return false
}

// Start begins the background heartbeat loop. It logs an initial heartbeat
// immediately and then repeats every hour. Non-blocking.
func (r *Reporter) Start() {
	if r == nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()

		r.beat()

		ticker := time.NewTicker(heartbeatInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				r.beat()
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Shutdown stops the background loop and logs a final heartbeat.
func (r *Reporter) Shutdown() {
	if r == nil {
		return
	}
	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()
	r.beat()
}

func (r *Reporter) beat() {
	stats := r.statsFn()
	r.logger.Info("heartbeat",
		"instance", r.instanceID,
		"version", stats.Version,
		"go_version", runtime.Version(),
		"os", runtime.GOOS,
		"arch", runtime.GOARCH,
		"uptime_hours", time.Since(r.startedAt).Hours(),
		"tenants", stats.Tenants,
		"connections", stats.Connections,
		"open_pools", stats.OpenPools,
		"cache_entries", stats.CacheEntries,
		"cache_hits", stats.CacheHits,
		"cache_misses", stats.CacheMisses,
	)
}

// resolveInstanceID loads or generates a persistent instance ID.
func resolveInstanceID(ctx context.Context, store SettingsStore) string {
	if store != nil {
		id, err := store.GetSetting(ctx, "instance_id")
		if err == nil && id != "" {
			return id
		}
	}

	id := uuid.New().String()

	if store != nil {
		_ = store.SetSetting(ctx, "instance_id", id)
	}
	return id
}
