// Package boltdb implements the client's durable store on BoltDB. Three
// partitions back the realtime layer: pendingActions (the offline outbox),
// offlineData (sync metadata) and cache (nested per-domain snapshot
// buckets).
package boltdb

import (
	"context"
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/quillhq/quillsync/internal/client/storage"
)

var (
	// BoltDB bucket names
	bucketActions  = []byte("pendingActions")
	bucketMetadata = []byte("offlineData")
	bucketCache    = []byte("cache")
)

// Storage represents BoltDB storage implementation for client
type Storage struct {
	db *bbolt.DB
}

// New creates a new BoltDB storage instance
// dbPath is the path to the BoltDB database file
func New(ctx context.Context, dbPath string) (*Storage, error) {
	db, err := bbolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open boltdb: %w", err)
	}

	storage := &Storage{db: db}

	if err := storage.initBuckets(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize buckets: %w", err)
	}

	return storage, nil
}

// Close closes the database connection. Storage calls after Close
// return ErrStorageClosed.
func (s *Storage) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// database returns the open handle, or ErrStorageClosed after Close
func (s *Storage) database() (*bbolt.DB, error) {
	if s.db == nil {
		return nil, storage.ErrStorageClosed
	}
	return s.db, nil
}

// initBuckets creates the required buckets if they do not exist
func (s *Storage) initBuckets() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketActions); err != nil {
			return fmt.Errorf("failed to create pendingActions bucket: %w", err)
		}

		if _, err := tx.CreateBucketIfNotExists(bucketMetadata); err != nil {
			return fmt.Errorf("failed to create offlineData bucket: %w", err)
		}

		if _, err := tx.CreateBucketIfNotExists(bucketCache); err != nil {
			return fmt.Errorf("failed to create cache bucket: %w", err)
		}

		return nil
	})
}
