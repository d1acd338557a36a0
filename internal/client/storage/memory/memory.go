// Package memory implements the client storage interfaces in process
// memory. It backs tests and short-lived sessions where no durable store
// is wanted; semantics mirror the boltdb implementation.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/quillhq/quillsync/internal/client/storage"
)

// Storage is an in-memory implementation of ActionStorage, CacheStorage
// and MetadataStorage. Safe for concurrent use.
type Storage struct {
	mu       sync.RWMutex
	actions  []*storage.PendingAction
	domains  map[string][]*storage.CachedRecord
	lastSync int64
}

// New creates an empty in-memory storage
func New() *Storage {
	return &Storage{
		domains: make(map[string][]*storage.CachedRecord),
	}
}

// SaveAction persists a new pending action
func (s *Storage) SaveAction(ctx context.Context, action *storage.PendingAction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	clone := *action
	s.actions = append(s.actions, &clone)
	return nil
}

// ListActions returns all pending actions in enqueue (FIFO) order
func (s *Storage) ListActions(ctx context.Context) ([]*storage.PendingAction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*storage.PendingAction, 0, len(s.actions))
	for _, a := range s.actions {
		clone := *a
		out = append(out, &clone)
	}
	return out, nil
}

// UpdateAction writes back a mutated action
func (s *Storage) UpdateAction(ctx context.Context, action *storage.PendingAction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, a := range s.actions {
		if a.ID == action.ID {
			clone := *action
			s.actions[i] = &clone
			return nil
		}
	}
	return storage.ErrActionNotFound
}

// DeleteAction removes an action by id; absent ids are a no-op
func (s *Storage) DeleteAction(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, a := range s.actions {
		if a.ID == id {
			s.actions = append(s.actions[:i], s.actions[i+1:]...)
			return nil
		}
	}
	return nil
}

// CountActions returns the number of pending actions
func (s *Storage) CountActions(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.actions), nil
}

// ReplaceDomain atomically replaces the full contents of a cache domain
func (s *Storage) ReplaceDomain(ctx context.Context, domain string, records []*storage.CachedRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := make([]*storage.CachedRecord, 0, len(records))
	for _, r := range records {
		clone := *r
		snapshot = append(snapshot, &clone)
	}
	s.domains[domain] = snapshot
	return nil
}

// GetDomain returns the current domain snapshot, empty if uninitialized
func (s *Storage) GetDomain(ctx context.Context, domain string) ([]*storage.CachedRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := s.domains[domain]
	out := make([]*storage.CachedRecord, 0, len(records))
	for _, r := range records {
		clone := *r
		out = append(out, &clone)
	}
	return out, nil
}

// CleanupDomain deletes records cached before the cutoff
func (s *Storage) CleanupDomain(ctx context.Context, domain string, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, ok := s.domains[domain]
	if !ok {
		return 0, storage.ErrDomainNotFound
	}

	kept := records[:0]
	removed := 0
	for _, r := range records {
		if r.CachedAt.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, r)
	}
	s.domains[domain] = kept
	return removed, nil
}

// Domains lists the domain partitions currently present
func (s *Storage) Domains(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, 0, len(s.domains))
	for domain := range s.domains {
		out = append(out, domain)
	}
	return out, nil
}

// SaveLastSyncTimestamp saves the last successful cache refresh time
func (s *Storage) SaveLastSyncTimestamp(ctx context.Context, timestamp int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSync = timestamp
	return nil
}

// GetLastSyncTimestamp returns the last refresh time, 0 if never refreshed
func (s *Storage) GetLastSyncTimestamp(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastSync, nil
}

// compile-time interface checks
var (
	_ storage.ActionStorage   = (*Storage)(nil)
	_ storage.CacheStorage    = (*Storage)(nil)
	_ storage.MetadataStorage = (*Storage)(nil)
)
