// Package cache manages last-known-good domain snapshots for offline
// reads. The cache is a best-effort optimization, not a correctness
// requirement: persistence failures are logged and swallowed, and reads
// degrade to empty results.
package cache

import (
	"context"
	"log/slog"
	"time"

	"github.com/quillhq/quillsync/internal/client/storage"
)

// Manager wraps the cache and metadata partitions of the durable store
type Manager struct {
	store  storage.CacheStorage
	meta   storage.MetadataStorage
	logger *slog.Logger
}

// NewManager creates a cache manager
func NewManager(store storage.CacheStorage, meta storage.MetadataStorage, logger *slog.Logger) *Manager {
	return &Manager{
		store:  store,
		meta:   meta,
		logger: logger,
	}
}

// CacheData atomically replaces the domain's full snapshot and records
// the refresh time. Records without a CachedAt stamp get the current
// time.
func (m *Manager) CacheData(ctx context.Context, domain string, records []*storage.CachedRecord) {
	now := time.Now().UTC()
	for _, record := range records {
		if record.CachedAt.IsZero() {
			record.CachedAt = now
		}
	}

	if err := m.store.ReplaceDomain(ctx, domain, records); err != nil {
		m.logger.Warn("failed to cache domain snapshot", "domain", domain, "error", err)
		return
	}

	if err := m.meta.SaveLastSyncTimestamp(ctx, now.UnixMilli()); err != nil {
		m.logger.Warn("failed to record refresh time", "error", err)
	}

	m.logger.Debug("domain snapshot cached", "domain", domain, "records", len(records))
}

// GetCachedData returns the domain's snapshot, empty when uninitialized
// or when the read fails
func (m *Manager) GetCachedData(ctx context.Context, domain string) []*storage.CachedRecord {
	records, err := m.store.GetDomain(ctx, domain)
	if err != nil {
		m.logger.Warn("failed to read cached domain", "domain", domain, "error", err)
		return []*storage.CachedRecord{}
	}
	return records
}

// GetLastSync returns the time of the last successful cache refresh, the
// zero time if no refresh ever happened
func (m *Manager) GetLastSync(ctx context.Context) time.Time {
	ts, err := m.meta.GetLastSyncTimestamp(ctx)
	if err != nil {
		m.logger.Warn("failed to read last refresh time", "error", err)
		return time.Time{}
	}
	if ts == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ts).UTC()
}

// Cleanup deletes records older than maxAge from every cached domain.
// The pendingActions partition is never touched.
func (m *Manager) Cleanup(ctx context.Context, maxAge time.Duration) {
	domains, err := m.store.Domains(ctx)
	if err != nil {
		m.logger.Warn("failed to list cache domains", "error", err)
		return
	}

	cutoff := time.Now().UTC().Add(-maxAge)
	for _, domain := range domains {
		removed, err := m.store.CleanupDomain(ctx, domain, cutoff)
		if err != nil {
			m.logger.Warn("failed to clean up domain", "domain", domain, "error", err)
			continue
		}
		if removed > 0 {
			m.logger.Info("stale cache records removed", "domain", domain, "removed", removed)
		}
	}
}
