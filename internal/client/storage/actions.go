package storage

import (
	"context"
	"encoding/json"
	"time"
)

// ActionType classifies a pending mutation
type ActionType string

const (
	ActionCreate ActionType = "create"
	ActionUpdate ActionType = "update"
	ActionDelete ActionType = "delete"
)

// DefaultMaxRetries is applied when an action is queued without an
// explicit retry budget
const DefaultMaxRetries = 3

// PendingAction is a queued outbound mutation awaiting delivery. It is
// replayed as an authenticated HTTP request against Endpoint/Method.
// RetryCount only ever grows; the action is deleted on success or once
// RetryCount reaches MaxRetries.
type PendingAction struct {
	EnqueuedAt time.Time       `json:"enqueued_at"`
	ID         string          `json:"id"`
	Type       ActionType      `json:"type"`
	Endpoint   string          `json:"endpoint"`
	Method     string          `json:"method"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	RetryCount int             `json:"retry_count"`
	MaxRetries int             `json:"max_retries"`
}

// ActionStorage defines the interface for the durable pending-action queue.
// ListActions must return actions in enqueue order; implementations key
// records by their time-ordered action id to get that for free.
type ActionStorage interface {
	// SaveAction persists a new pending action
	SaveAction(ctx context.Context, action *PendingAction) error

	// ListActions returns all pending actions in enqueue (FIFO) order
	ListActions(ctx context.Context) ([]*PendingAction, error)

	// UpdateAction writes back a mutated action (retry count bump)
	// Returns ErrActionNotFound if the action no longer exists
	UpdateAction(ctx context.Context, action *PendingAction) error

	// DeleteAction removes an action by id. Deleting an absent action
	// is not an error.
	DeleteAction(ctx context.Context, id string) error

	// CountActions returns the number of pending actions
	CountActions(ctx context.Context) (int, error)
}
