// Package conn owns the realtime connection: the session lifecycle state
// machine, the heartbeat, and the bounded-backoff reconnection policy.
// Lifecycle changes surface as registry events only; rendering toasts is
// the presentation layer's problem.
package conn

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/quillhq/quillsync/internal/client/auth"
	"github.com/quillhq/quillsync/internal/client/registry"
	"github.com/quillhq/quillsync/internal/client/transport"
	"github.com/quillhq/quillsync/pkg/protocol"
)

// State is the connection manager's lifecycle state
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateError
)

// String implements fmt.Stringer
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// ErrNotConnected indicates a send without a live transport session
var ErrNotConnected = errors.New("not connected")

// Defaults for the reconnection and heartbeat policy
const (
	DefaultMaxReconnectAttempts = 5
	DefaultBaseDelay            = 1 * time.Second
	DefaultMaxDelay             = 10 * time.Second
	DefaultHeartbeatInterval    = 30 * time.Second
)

// Config is the connection manager's tuning surface
type Config struct {
	ServerURL            string
	TokenSource          auth.TokenSource
	MaxReconnectAttempts int
	BaseDelay            time.Duration
	MaxDelay             time.Duration
	HeartbeatInterval    time.Duration
	Backoff              BackoffFactory
}

func (c *Config) withDefaults() {
	if c.MaxReconnectAttempts == 0 {
		c.MaxReconnectAttempts = DefaultMaxReconnectAttempts
	}
	if c.BaseDelay == 0 {
		c.BaseDelay = DefaultBaseDelay
	}
	if c.MaxDelay == 0 {
		c.MaxDelay = DefaultMaxDelay
	}
	if c.HeartbeatInterval == 0 {
		c.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if c.Backoff == nil {
		c.Backoff = DefaultBackoff(c.BaseDelay, c.MaxDelay)
	}
}

// Manager owns the transport session and its lifecycle
type Manager struct {
	cfg      Config
	dialer   transport.Dialer
	registry *registry.Registry
	logger   *slog.Logger

	mu            sync.Mutex
	state         State
	tr            transport.Transport
	attempts      int
	wasConnected  bool
	closing       bool
	heartbeatStop chan struct{}
	onConnected   []func(resumed bool)
}

// NewManager creates a connection manager. It does not connect.
func NewManager(cfg Config, dialer transport.Dialer, reg *registry.Registry, logger *slog.Logger) *Manager {
	cfg.withDefaults()
	return &Manager{
		cfg:      cfg,
		dialer:   dialer,
		registry: reg,
		logger:   logger,
		state:    StateDisconnected,
	}
}

// OnConnected registers a hook fired after every successful connect.
// resumed is true when a prior session existed in this client's lifetime.
// The offline queue uses this as its replay trigger.
func (m *Manager) OnConnected(fn func(resumed bool)) {
	m.mu.Lock()
	m.onConnected = append(m.onConnected, fn)
	m.mu.Unlock()
}

// State returns the current connection state
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// IsConnected reports whether a live session exists
func (m *Manager) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state == StateConnected && m.tr != nil
}

// ReconnectAttempts returns the current reconnect attempt counter
func (m *Manager) ReconnectAttempts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attempts
}

// Send writes an envelope over the live session
func (m *Manager) Send(env *protocol.Envelope) error {
	m.mu.Lock()
	tr := m.tr
	m.mu.Unlock()

	if tr == nil {
		return ErrNotConnected
	}
	return tr.Send(env)
}

// Connect establishes a transport session. A missing, malformed or
// expired token fails fast and is never auto-retried. Safe to call while
// already connected or connecting: those calls are no-ops. The guard
// claims the connecting state before releasing the lock, so concurrent
// calls cannot both dial.
func (m *Manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	if m.state == StateConnected || m.state == StateConnecting {
		m.mu.Unlock()
		return nil
	}
	m.closing = false
	m.state = StateConnecting
	m.mu.Unlock()
	m.dispatchState(StateConnecting)

	token, err := m.cfg.TokenSource.Token(ctx)
	if err != nil {
		m.setState(StateDisconnected)
		return fmt.Errorf("auth token unavailable: %w", err)
	}
	if err := auth.Validate(token); err != nil {
		m.setState(StateDisconnected)
		return fmt.Errorf("auth token rejected: %w", err)
	}

	tr, err := m.dialer.Dial(ctx, m.cfg.ServerURL, token, transport.Callbacks{
		OnEnvelope: m.handleEnvelope,
		OnClose:    m.handleClose,
	})
	if err != nil {
		m.setState(StateDisconnected)
		return fmt.Errorf("connect failed: %w", err)
	}

	m.mu.Lock()
	if m.closing || m.state != StateConnecting {
		// Disconnect raced the dial, or the session already dropped
		// through an immediate close callback. This transport lost;
		// close it instead of overwriting the session.
		m.mu.Unlock()
		_ = tr.Close()
		return nil
	}
	m.tr = tr
	resumed := m.wasConnected
	m.wasConnected = true
	m.attempts = 0
	stop := make(chan struct{})
	m.heartbeatStop = stop
	hooks := make([]func(bool), len(m.onConnected))
	copy(hooks, m.onConnected)
	m.mu.Unlock()

	// replay registered event names onto the new session so listeners
	// bound before (or between) connections still receive events
	for _, event := range m.registry.EventNames() {
		if err := tr.Attach(event); err != nil {
			m.logger.Warn("failed to attach event", "event", event, "error", err)
		}
	}
	m.registry.SetAttacher(tr.Attach)

	m.setState(StateConnected)
	go m.heartbeatLoop(tr, stop)

	if resumed {
		m.notify("Reconnected to collaboration server")
	} else {
		m.notify("Connected to collaboration server")
	}
	m.logger.Info("realtime session established", "resumed", resumed)

	for _, hook := range hooks {
		hook(resumed)
	}

	return nil
}

// Disconnect tears down the heartbeat and transport, sets the state to
// disconnected and resets the reconnect attempt counter. No automatic
// reconnection follows a manual disconnect.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	m.closing = true
	tr := m.tr
	m.tr = nil
	if m.heartbeatStop != nil {
		close(m.heartbeatStop)
		m.heartbeatStop = nil
	}
	m.attempts = 0
	m.mu.Unlock()

	m.registry.SetAttacher(nil)
	if tr != nil {
		_ = tr.Close()
	}
	m.setState(StateDisconnected)
}

// handleEnvelope routes inbound events to the registry
func (m *Manager) handleEnvelope(env *protocol.Envelope) {
	m.registry.Dispatch(env)
}

// handleClose reacts to the transport dropping. A server-initiated drop
// starts the reconnect cycle; a locally requested close does not.
func (m *Manager) handleClose(serverInitiated bool, err error) {
	m.mu.Lock()
	m.tr = nil
	if m.heartbeatStop != nil {
		close(m.heartbeatStop)
		m.heartbeatStop = nil
	}
	closing := m.closing
	m.mu.Unlock()

	m.registry.SetAttacher(nil)
	m.setState(StateDisconnected)

	if closing || !serverInitiated {
		return
	}

	m.logger.Warn("session dropped by server", "error", err)
	m.notify("Connection lost")
	go m.reconnectLoop()
}

// reconnectLoop retries Connect with capped exponential delays until it
// succeeds or the attempt budget runs out. Exhaustion parks the manager
// in the error state; a manual Connect is required from there.
func (m *Manager) reconnectLoop() {
	backoff := m.cfg.Backoff()

	for {
		m.mu.Lock()
		if m.closing {
			m.mu.Unlock()
			return
		}
		m.attempts++
		attempt := m.attempts
		m.mu.Unlock()

		if attempt > m.cfg.MaxReconnectAttempts {
			m.setState(StateError)
			m.notify("Unable to reach the collaboration server. Your changes are saved and will sync once you reconnect.")
			m.logger.Error("reconnect attempts exhausted", "attempts", m.cfg.MaxReconnectAttempts)
			return
		}

		delay, stop := backoff.Next()
		if stop {
			m.setState(StateError)
			return
		}

		m.setState(StateReconnecting)
		m.logger.Info("scheduling reconnect", "attempt", attempt, "delay", delay)
		time.Sleep(delay)

		m.mu.Lock()
		if m.closing {
			m.mu.Unlock()
			return
		}
		m.mu.Unlock()

		err := m.Connect(context.Background())
		if err == nil {
			return
		}
		if auth.IsAuthError(err) {
			m.setState(StateError)
			m.notify("Your session expired. Please sign in again.")
			m.logger.Error("reconnect aborted on auth failure", "error", err)
			return
		}
		m.logger.Warn("reconnect attempt failed", "attempt", attempt, "error", err)
	}
}

// heartbeatLoop emits a liveness probe at a fixed interval. Failures are
// only logged: the read pump's close event is the real disconnect signal.
func (m *Manager) heartbeatLoop(tr transport.Transport, stop chan struct{}) {
	ticker := time.NewTicker(m.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := tr.Ping(); err != nil {
				m.logger.Debug("heartbeat send failed", "error", err)
			}
		}
	}
}

// setState records the new state and dispatches it as a local event
func (m *Manager) setState(state State) {
	m.mu.Lock()
	m.state = state
	m.mu.Unlock()

	m.dispatchState(state)
}

// dispatchState publishes a state value already recorded under the lock
func (m *Manager) dispatchState(state State) {
	m.mu.Lock()
	attempts := m.attempts
	m.mu.Unlock()

	env, err := protocol.NewEnvelope(protocol.EventConnectionState, protocol.ConnectionStateChange{
		State:    state.String(),
		Attempts: attempts,
	})
	if err != nil {
		m.logger.Warn("failed to build state event", "error", err)
		return
	}
	m.registry.Dispatch(env)
}

// notify dispatches a user-facing lifecycle notification
func (m *Manager) notify(message string) {
	env, err := protocol.NewEnvelope(protocol.EventNotification, protocol.Notification{
		ID:        uuid.NewString(),
		Kind:      protocol.NotificationKindConnection,
		Message:   message,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		m.logger.Warn("failed to build notification", "error", err)
		return
	}
	m.registry.Dispatch(env)
}
