// Package client assembles the realtime synchronization layer: connection
// manager, event registry, offline action queue, cache manager and
// presence relay behind a single emit/on contract. Clients are explicit
// instances built by New and handed around by the application's
// composition root; there is no package-level singleton.
package client

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/quillhq/quillsync/internal/client/api"
	"github.com/quillhq/quillsync/internal/client/auth"
	"github.com/quillhq/quillsync/internal/client/cache"
	"github.com/quillhq/quillsync/internal/client/conn"
	"github.com/quillhq/quillsync/internal/client/queue"
	"github.com/quillhq/quillsync/internal/client/registry"
	"github.com/quillhq/quillsync/internal/client/relay"
	"github.com/quillhq/quillsync/internal/client/storage"
	"github.com/quillhq/quillsync/internal/client/transport"
	"github.com/quillhq/quillsync/pkg/protocol"
)

// Config is the realtime client's configuration surface
type Config struct {
	// ServerURL is the websocket endpoint of the collaboration server
	ServerURL string

	// APIBaseURL is the HTTP base URL for the REST fallback
	APIBaseURL string

	// UserID identifies the local user in outbound payloads
	UserID string

	// TokenSource supplies the bearer token for both channels
	TokenSource auth.TokenSource

	// Reconnection and heartbeat policy; zero values select defaults
	MaxReconnectAttempts int
	BaseDelay            time.Duration
	MaxDelay             time.Duration
	HeartbeatInterval    time.Duration

	// Backoff overrides the capped-exponential reconnect schedule
	Backoff conn.BackoffFactory

	// DefaultMaxRetries caps replay attempts per queued action
	DefaultMaxRetries int

	// Logger defaults to slog.Default()
	Logger *slog.Logger

	// Dialer overrides the websocket dialer, for tests
	Dialer transport.Dialer
}

// Storages are the durable-store partitions the client persists to.
// Production wiring passes the boltdb store for all three; tests
// typically use the memory store.
type Storages struct {
	Actions  storage.ActionStorage
	Cache    storage.CacheStorage
	Metadata storage.MetadataStorage
}

// Client is one realtime synchronization instance
type Client struct {
	logger   *slog.Logger
	registry *registry.Registry
	conn     *conn.Manager
	queue    *queue.Queue
	cache    *cache.Manager
	relay    *relay.Relay
}

// New creates a realtime client. It does not connect.
func New(cfg Config, stores Storages) (*Client, error) {
	if cfg.ServerURL == "" {
		return nil, errors.New("server URL is required")
	}
	if cfg.TokenSource == nil {
		return nil, errors.New("token source is required")
	}
	if stores.Actions == nil || stores.Cache == nil || stores.Metadata == nil {
		return nil, errors.New("all storage partitions are required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	dialer := cfg.Dialer
	if dialer == nil {
		dialer = transport.NewGorillaDialer(logger)
	}

	reg := registry.New(logger)
	manager := conn.NewManager(conn.Config{
		ServerURL:            cfg.ServerURL,
		TokenSource:          cfg.TokenSource,
		MaxReconnectAttempts: cfg.MaxReconnectAttempts,
		BaseDelay:            cfg.BaseDelay,
		MaxDelay:             cfg.MaxDelay,
		HeartbeatInterval:    cfg.HeartbeatInterval,
		Backoff:              cfg.Backoff,
	}, dialer, reg, logger)

	q := queue.New(stores.Actions, api.NewClient(cfg.APIBaseURL), cfg.TokenSource,
		manager, cfg.DefaultMaxRetries, logger)

	// every successful (re)connect drains whatever piled up
	manager.OnConnected(func(resumed bool) {
		go func() {
			_ = q.SyncPendingActions(context.Background())
		}()
	})

	return &Client{
		logger:   logger,
		registry: reg,
		conn:     manager,
		queue:    q,
		cache:    cache.NewManager(stores.Cache, stores.Metadata, logger),
		relay:    relay.New(cfg.UserID, q),
	}, nil
}

// Connect establishes the realtime session
func (c *Client) Connect(ctx context.Context) error {
	return c.conn.Connect(ctx)
}

// Disconnect tears the session down; no auto-reconnect follows
func (c *Client) Disconnect() {
	c.conn.Disconnect()
}

// Close disconnects and releases the client. The durable store is owned
// by the caller and stays open.
func (c *Client) Close() error {
	c.conn.Disconnect()
	return nil
}

// IsConnected reports whether a live session exists
func (c *Client) IsConnected() bool {
	return c.conn.IsConnected()
}

// ConnectionState returns the connection manager's current state
func (c *Client) ConnectionState() conn.State {
	return c.conn.State()
}

// On subscribes a callback to a named event and returns its unsubscribe
// function
func (c *Client) On(event protocol.EventType, cb registry.Callback) func() {
	return c.registry.On(event, cb)
}

// Emit delivers an event, queueing it when delivery is not possible
func (c *Client) Emit(event protocol.EventType, payload any) {
	c.queue.Emit(event, payload)
}

// QueueAction enqueues a REST mutation for guaranteed eventual delivery
func (c *Client) QueueAction(ctx context.Context, action *storage.PendingAction) error {
	return c.queue.QueueAction(ctx, action)
}

// SyncPendingActions drains the outbox once; concurrent calls no-op
func (c *Client) SyncPendingActions(ctx context.Context) error {
	return c.queue.SyncPendingActions(ctx)
}

// PendingCount returns the number of actions awaiting delivery
func (c *Client) PendingCount(ctx context.Context) (int, error) {
	return c.queue.PendingCount(ctx)
}

// SetOnline records a network-status change from the host environment's
// observer. Going offline surfaces a notification event; coming back
// online triggers a sync pass.
func (c *Client) SetOnline(online bool) {
	if !online && c.queue.Online() {
		env, err := protocol.NewEnvelope(protocol.EventNotification, protocol.Notification{
			ID:        uuid.NewString(),
			Kind:      protocol.NotificationKindOffline,
			Message:   "You are offline. Changes are saved locally and will sync when you reconnect.",
			CreatedAt: time.Now().UTC(),
		})
		if err == nil {
			c.registry.Dispatch(env)
		}
	}
	c.queue.SetOnline(online)
}

// Online reports the network-status flag
func (c *Client) Online() bool {
	return c.queue.Online()
}

// UpdatePresence broadcasts the local user's presence
func (c *Client) UpdatePresence(record protocol.PresenceRecord) {
	c.relay.UpdatePresence(record)
}

// SendCursorPosition broadcasts the local user's caret location
func (c *Client) SendCursorPosition(position protocol.CursorPosition) {
	c.relay.SendCursorPosition(position)
}

// SendSelectionChange broadcasts the local user's text selection
func (c *Client) SendSelectionChange(change protocol.SelectionChange) {
	c.relay.SendSelectionChange(change)
}

// SendContentChange broadcasts one edit to the current course
func (c *Client) SendContentChange(change protocol.ContentChange) {
	c.relay.SendContentChange(change)
}

// SendNotification routes an application notification to collaborators
func (c *Client) SendNotification(notification protocol.Notification) {
	c.relay.SendNotification(notification)
}

// JoinCourse enters a course's broadcast room
func (c *Client) JoinCourse(courseID string) {
	c.relay.JoinCourse(courseID)
}

// LeaveCourse exits a course's broadcast room
func (c *Client) LeaveCourse(courseID string) {
	c.relay.LeaveCourse(courseID)
}

// CacheData atomically replaces a domain's cached snapshot
func (c *Client) CacheData(ctx context.Context, domain string, records []*storage.CachedRecord) {
	c.cache.CacheData(ctx, domain, records)
}

// GetCachedData returns a domain's cached snapshot for offline reads
func (c *Client) GetCachedData(ctx context.Context, domain string) []*storage.CachedRecord {
	return c.cache.GetCachedData(ctx, domain)
}

// GetLastSync returns the time of the last successful cache refresh
func (c *Client) GetLastSync(ctx context.Context) time.Time {
	return c.cache.GetLastSync(ctx)
}

// CleanupCache removes cached records older than maxAge
func (c *Client) CleanupCache(ctx context.Context, maxAge time.Duration) {
	c.cache.Cleanup(ctx, maxAge)
}
