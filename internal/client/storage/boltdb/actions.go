package boltdb

import (
	"context"
	"encoding/json"
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/quillhq/quillsync/internal/client/storage"
)

// SaveAction persists a new pending action. Actions are keyed by their
// UUIDv7 id; v7 ids sort by creation time, so cursor order is enqueue
// order and no separate sequence index is needed.
func (s *Storage) SaveAction(ctx context.Context, action *storage.PendingAction) error {
	db, err := s.database()
	if err != nil {
		return err
	}

	return db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketActions)
		if bucket == nil {
			return fmt.Errorf("pendingActions bucket not found")
		}

		data, err := json.Marshal(action)
		if err != nil {
			return fmt.Errorf("failed to marshal action: %w", err)
		}

		if err := bucket.Put([]byte(action.ID), data); err != nil {
			return fmt.Errorf("failed to save action: %w", err)
		}

		return nil
	})
}

// ListActions returns all pending actions in enqueue (FIFO) order
func (s *Storage) ListActions(ctx context.Context) ([]*storage.PendingAction, error) {
	db, err := s.database()
	if err != nil {
		return nil, err
	}

	var actions []*storage.PendingAction

	err = db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketActions)
		if bucket == nil {
			return fmt.Errorf("pendingActions bucket not found")
		}

		return bucket.ForEach(func(k, v []byte) error {
			action := &storage.PendingAction{}
			if err := json.Unmarshal(v, action); err != nil {
				return fmt.Errorf("failed to unmarshal action %s: %w", k, err)
			}
			actions = append(actions, action)
			return nil
		})
	})

	if err != nil {
		return nil, err
	}

	return actions, nil
}

// UpdateAction writes back a mutated action (retry count bump)
func (s *Storage) UpdateAction(ctx context.Context, action *storage.PendingAction) error {
	db, err := s.database()
	if err != nil {
		return err
	}

	return db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketActions)
		if bucket == nil {
			return fmt.Errorf("pendingActions bucket not found")
		}

		if bucket.Get([]byte(action.ID)) == nil {
			return storage.ErrActionNotFound
		}

		data, err := json.Marshal(action)
		if err != nil {
			return fmt.Errorf("failed to marshal action: %w", err)
		}

		if err := bucket.Put([]byte(action.ID), data); err != nil {
			return fmt.Errorf("failed to update action: %w", err)
		}

		return nil
	})
}

// DeleteAction removes an action by id. Deleting an absent action is a
// no-op.
func (s *Storage) DeleteAction(ctx context.Context, id string) error {
	db, err := s.database()
	if err != nil {
		return err
	}

	return db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketActions)
		if bucket == nil {
			return fmt.Errorf("pendingActions bucket not found")
		}

		if err := bucket.Delete([]byte(id)); err != nil {
			return fmt.Errorf("failed to delete action: %w", err)
		}

		return nil
	})
}

// CountActions returns the number of pending actions
func (s *Storage) CountActions(ctx context.Context) (int, error) {
	db, err := s.database()
	if err != nil {
		return 0, err
	}

	var count int

	err = db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketActions)
		if bucket == nil {
			return fmt.Errorf("pendingActions bucket not found")
		}

		count = bucket.Stats().KeyN
		return nil
	})

	if err != nil {
		return 0, err
	}

	return count, nil
}
