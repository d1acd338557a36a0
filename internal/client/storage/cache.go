package storage

import (
	"context"
	"encoding/json"
	"time"
)

// Well-known cache domains. Domains are open-ended; these are the ones
// the application caches today.
const (
	DomainCourses   = "courses"
	DomainDocuments = "documents"
	DomainExports   = "exports"
)

// CachedRecord is one snapshot record inside a named cache domain
type CachedRecord struct {
	CachedAt time.Time       `json:"cached_at"`
	ID       string          `json:"id"`
	Payload  json.RawMessage `json:"payload"`
}

// CacheStorage defines the interface for last-known-good domain snapshots
// used for offline reads. A domain is only ever replaced wholesale, never
// merged record by record, so readers cannot observe mixed old/new state.
type CacheStorage interface {
	// ReplaceDomain atomically replaces the full contents of a domain
	ReplaceDomain(ctx context.Context, domain string, records []*CachedRecord) error

	// GetDomain returns the current domain snapshot, empty if uninitialized
	GetDomain(ctx context.Context, domain string) ([]*CachedRecord, error)

	// CleanupDomain deletes records cached before the cutoff and returns
	// how many were removed
	CleanupDomain(ctx context.Context, domain string, cutoff time.Time) (int, error)

	// Domains lists the domain partitions currently present
	Domains(ctx context.Context) ([]string, error)
}
