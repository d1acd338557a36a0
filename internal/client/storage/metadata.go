package storage

import "context"

// MetadataStorage defines interface for storing client sync metadata
type MetadataStorage interface {
	// SaveLastSyncTimestamp saves the timestamp of the last successful
	// cache refresh, in unix milliseconds
	SaveLastSyncTimestamp(ctx context.Context, timestamp int64) error

	// GetLastSyncTimestamp retrieves the timestamp of the last successful
	// cache refresh. Returns 0 if no refresh has been performed yet.
	GetLastSyncTimestamp(ctx context.Context) (int64, error)
}
