// Package queue implements the offline-durable action outbox. Mutations
// that cannot be delivered over the realtime channel are persisted to the
// durable store and replayed, in enqueue order with bounded retries, once
// connectivity returns.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/quillhq/quillsync/internal/client/api"
	"github.com/quillhq/quillsync/internal/client/auth"
	"github.com/quillhq/quillsync/internal/client/storage"
	"github.com/quillhq/quillsync/pkg/protocol"
)

// realtimeEventsEndpoint is the REST fallback target for queued emits
const realtimeEventsEndpoint = "/api/v1/realtime/events"

// Sender is the realtime path used for direct delivery. Implemented by
// the connection manager.
type Sender interface {
	IsConnected() bool
	Send(env *protocol.Envelope) error
}

// Queue is the offline action outbox
type Queue struct {
	store      storage.ActionStorage
	apiClient  *api.Client
	tokens     auth.TokenSource
	sender     Sender
	logger     *slog.Logger
	online     atomic.Bool
	syncing    atomic.Bool
	maxRetries int
}

// New creates a queue. maxRetries caps replay attempts per action; zero
// selects storage.DefaultMaxRetries. The queue starts in the online
// state; the network-status observer flips it via SetOnline.
func New(store storage.ActionStorage, apiClient *api.Client, tokens auth.TokenSource, sender Sender, maxRetries int, logger *slog.Logger) *Queue {
	if maxRetries <= 0 {
		maxRetries = storage.DefaultMaxRetries
	}
	q := &Queue{
		store:      store,
		apiClient:  apiClient,
		tokens:     tokens,
		sender:     sender,
		logger:     logger,
		maxRetries: maxRetries,
	}
	q.online.Store(true)
	return q
}

// Online reports the network-status flag
func (q *Queue) Online() bool {
	return q.online.Load()
}

// SetOnline records a network-status change. The offline-to-online
// transition triggers an asynchronous sync pass.
func (q *Queue) SetOnline(online bool) {
	wasOnline := q.online.Swap(online)
	if !wasOnline && online {
		q.logger.Info("network restored, draining pending actions")
		go func() {
			_ = q.SyncPendingActions(context.Background())
		}()
	}
}

// Emit delivers an event over the realtime channel, or queues it for
// later delivery when offline, disconnected, or when the send fails.
// Errors never propagate to the caller; they surface as queued work.
func (q *Queue) Emit(event protocol.EventType, payload any) {
	env, err := protocol.NewEnvelope(event, payload)
	if err != nil {
		q.logger.Error("dropping unencodable event", "event", event, "error", err)
		return
	}

	if !q.online.Load() || !q.sender.IsConnected() {
		q.queueEnvelope(env)
		return
	}

	if err := q.sender.Send(env); err != nil {
		q.logger.Warn("realtime send failed, queueing", "event", event, "error", err)
		q.queueEnvelope(env)
	}
}

// queueEnvelope persists an emit for replay through the REST fallback
func (q *Queue) queueEnvelope(env *protocol.Envelope) {
	payload, err := json.Marshal(env)
	if err != nil {
		q.logger.Error("failed to marshal envelope for queueing", "event", env.Event, "error", err)
		return
	}

	action := &storage.PendingAction{
		Type:     storage.ActionUpdate,
		Endpoint: realtimeEventsEndpoint,
		Method:   "POST",
		Payload:  payload,
	}
	if err := q.QueueAction(context.Background(), action); err != nil {
		q.logger.Error("failed to queue event", "event", env.Event, "error", err)
	}
}

// QueueAction assigns the action an id, timestamp and retry budget,
// persists it, and, when online, kicks off an asynchronous sync pass
// without waiting for it.
func (q *Queue) QueueAction(ctx context.Context, action *storage.PendingAction) error {
	id, err := uuid.NewV7()
	if err != nil {
		return fmt.Errorf("failed to generate action id: %w", err)
	}

	action.ID = id.String()
	action.EnqueuedAt = time.Now().UTC()
	action.RetryCount = 0
	if action.MaxRetries <= 0 {
		action.MaxRetries = q.maxRetries
	}

	if err := q.store.SaveAction(ctx, action); err != nil {
		return fmt.Errorf("failed to persist action: %w", err)
	}

	q.logger.Debug("action queued",
		"action_id", action.ID,
		"type", action.Type,
		"endpoint", action.Endpoint)

	if q.online.Load() {
		go func() {
			_ = q.SyncPendingActions(context.WithoutCancel(ctx))
		}()
	}

	return nil
}

// PendingCount returns the number of actions awaiting delivery
func (q *Queue) PendingCount(ctx context.Context) (int, error) {
	return q.store.CountActions(ctx)
}

// SyncPendingActions drains the outbox once. Single-flight: a call while
// a pass is already running is a no-op. Actions replay sequentially in
// enqueue order; each failure bumps the retry count, and an action that
// reaches its budget is dropped with a warning. Actions queued while the
// pass runs are not part of its snapshot and wait for the next pass.
func (q *Queue) SyncPendingActions(ctx context.Context) error {
	if !q.syncing.CompareAndSwap(false, true) {
		return nil
	}
	defer q.syncing.Store(false)

	actions, err := q.store.ListActions(ctx)
	if err != nil {
		return fmt.Errorf("failed to list pending actions: %w", err)
	}
	if len(actions) == 0 {
		return nil
	}

	token, err := q.tokens.Token(ctx)
	if err != nil {
		return fmt.Errorf("cannot sync without auth token: %w", err)
	}

	q.logger.Info("sync pass started", "pending", len(actions))

	for _, action := range actions {
		err := q.apiClient.Do(ctx, token, action.Method, action.Endpoint, action.Payload)
		if err == nil {
			if derr := q.store.DeleteAction(ctx, action.ID); derr != nil {
				q.logger.Warn("failed to delete delivered action", "action_id", action.ID, "error", derr)
			}
			continue
		}

		action.RetryCount++
		if action.RetryCount >= action.MaxRetries {
			q.logger.Warn("dropping action after max retries",
				"action_id", action.ID,
				"endpoint", action.Endpoint,
				"retries", action.RetryCount,
				"error", err)
			if derr := q.store.DeleteAction(ctx, action.ID); derr != nil {
				q.logger.Warn("failed to drop action", "action_id", action.ID, "error", derr)
			}
			continue
		}

		q.logger.Debug("action replay failed, will retry",
			"action_id", action.ID,
			"retry", action.RetryCount,
			"max_retries", action.MaxRetries,
			"error", err)
		if uerr := q.store.UpdateAction(ctx, action); uerr != nil {
			q.logger.Warn("failed to write back retry count", "action_id", action.ID, "error", uerr)
		}
	}

	return nil
}
