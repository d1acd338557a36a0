package storage

import "errors"

// Common client storage errors
var (
	// ErrActionNotFound indicates that a pending action was not found
	ErrActionNotFound = errors.New("pending action not found")

	// ErrDomainNotFound indicates that a cache domain does not exist
	ErrDomainNotFound = errors.New("cache domain not found")

	// ErrStorageClosed indicates that storage is closed
	ErrStorageClosed = errors.New("storage is closed")
)
