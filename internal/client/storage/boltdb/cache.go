package boltdb

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"github.com/quillhq/quillsync/internal/client/storage"
)

// ReplaceDomain atomically replaces the full contents of a cache domain.
// Drop-then-recreate runs inside a single BoltDB transaction, so readers
// never observe a mix of old and new records.
func (s *Storage) ReplaceDomain(ctx context.Context, domain string, records []*storage.CachedRecord) error {
	db, err := s.database()
	if err != nil {
		return err
	}

	return db.Update(func(tx *bbolt.Tx) error {
		parent := tx.Bucket(bucketCache)
		if parent == nil {
			return fmt.Errorf("cache bucket not found")
		}

		key := []byte(domain)
		if parent.Bucket(key) != nil {
			if err := parent.DeleteBucket(key); err != nil {
				return fmt.Errorf("failed to clear domain %s: %w", domain, err)
			}
		}

		bucket, err := parent.CreateBucket(key)
		if err != nil {
			return fmt.Errorf("failed to create domain %s: %w", domain, err)
		}

		for _, record := range records {
			data, err := json.Marshal(record)
			if err != nil {
				return fmt.Errorf("failed to marshal record %s: %w", record.ID, err)
			}
			if err := bucket.Put([]byte(record.ID), data); err != nil {
				return fmt.Errorf("failed to save record %s: %w", record.ID, err)
			}
		}

		return nil
	})
}

// GetDomain returns the current domain snapshot, empty if uninitialized
func (s *Storage) GetDomain(ctx context.Context, domain string) ([]*storage.CachedRecord, error) {
	db, err := s.database()
	if err != nil {
		return nil, err
	}

	records := []*storage.CachedRecord{}

	err = db.View(func(tx *bbolt.Tx) error {
		parent := tx.Bucket(bucketCache)
		if parent == nil {
			return fmt.Errorf("cache bucket not found")
		}

		bucket := parent.Bucket([]byte(domain))
		if bucket == nil {
			// domain never cached
			return nil
		}

		return bucket.ForEach(func(k, v []byte) error {
			record := &storage.CachedRecord{}
			if err := json.Unmarshal(v, record); err != nil {
				return fmt.Errorf("failed to unmarshal record %s: %w", k, err)
			}
			records = append(records, record)
			return nil
		})
	})

	if err != nil {
		return nil, err
	}

	return records, nil
}

// CleanupDomain deletes records cached before the cutoff and returns how
// many were removed
func (s *Storage) CleanupDomain(ctx context.Context, domain string, cutoff time.Time) (int, error) {
	db, err := s.database()
	if err != nil {
		return 0, err
	}

	var removed int

	err = db.Update(func(tx *bbolt.Tx) error {
		parent := tx.Bucket(bucketCache)
		if parent == nil {
			return fmt.Errorf("cache bucket not found")
		}

		bucket := parent.Bucket([]byte(domain))
		if bucket == nil {
			return storage.ErrDomainNotFound
		}

		var stale [][]byte
		err := bucket.ForEach(func(k, v []byte) error {
			record := &storage.CachedRecord{}
			if err := json.Unmarshal(v, record); err != nil {
				return fmt.Errorf("failed to unmarshal record %s: %w", k, err)
			}
			if record.CachedAt.Before(cutoff) {
				key := make([]byte, len(k))
				copy(key, k)
				stale = append(stale, key)
			}
			return nil
		})
		if err != nil {
			return err
		}

		for _, key := range stale {
			if err := bucket.Delete(key); err != nil {
				return fmt.Errorf("failed to delete record %s: %w", key, err)
			}
		}

		removed = len(stale)
		return nil
	})

	if err != nil {
		return 0, err
	}

	return removed, nil
}

// Domains lists the domain partitions currently present
func (s *Storage) Domains(ctx context.Context) ([]string, error) {
	db, err := s.database()
	if err != nil {
		return nil, err
	}

	var domains []string

	err = db.View(func(tx *bbolt.Tx) error {
		parent := tx.Bucket(bucketCache)
		if parent == nil {
			return fmt.Errorf("cache bucket not found")
		}

		return parent.ForEachBucket(func(k []byte) error {
			domains = append(domains, string(k))
			return nil
		})
	})

	if err != nil {
		return nil, err
	}

	return domains, nil
}
