package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/quillhq/quillsync/pkg/protocol"
)

const (
	defaultHandshakeTimeout = 10 * time.Second
	defaultWriteTimeout     = 10 * time.Second
	closeMessageCode        = 1000
)

// GorillaDialer dials websocket sessions with gorilla/websocket
type GorillaDialer struct {
	Logger           *slog.Logger
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
}

// NewGorillaDialer creates a dialer with default timeouts
func NewGorillaDialer(logger *slog.Logger) *GorillaDialer {
	return &GorillaDialer{
		Logger:           logger,
		HandshakeTimeout: defaultHandshakeTimeout,
		WriteTimeout:     defaultWriteTimeout,
	}
}

// Dial opens an authenticated websocket session and starts its read pump
func (d *GorillaDialer) Dial(ctx context.Context, url, token string, cb Callbacks) (Transport, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout:  d.HandshakeTimeout,
		EnableCompression: true,
	}

	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}

	conn, resp, err := dialer.DialContext(ctx, url, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("websocket dial failed (%d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("websocket dial failed: %w", err)
	}

	ws := &wsTransport{
		conn:         conn,
		cb:           cb,
		writeTimeout: d.WriteTimeout,
		logger:       d.Logger,
	}
	go ws.readPump()

	return ws, nil
}

// wsTransport is a live gorilla websocket session. Writes are serialized
// by writeMu; reads happen only on the pump goroutine.
type wsTransport struct {
	conn         *websocket.Conn
	cb           Callbacks
	logger       *slog.Logger
	writeTimeout time.Duration

	writeMu   sync.Mutex
	requested atomic.Bool
	closed    atomic.Bool
}

// Send writes an envelope to the server
func (t *wsTransport) Send(env *protocol.Envelope) error {
	if t.closed.Load() {
		return ErrClosed
	}

	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal envelope: %w", err)
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	_ = t.conn.SetWriteDeadline(time.Now().Add(t.writeTimeout))
	if err := t.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}

	return nil
}

// Attach asks the server to deliver the named event to this session
func (t *wsTransport) Attach(event protocol.EventType) error {
	env, err := protocol.NewEnvelope(protocol.EventSubscribe, protocol.Subscription{Event: event})
	if err != nil {
		return err
	}
	return t.Send(env)
}

// Ping emits a heartbeat envelope
func (t *wsTransport) Ping() error {
	env, err := protocol.NewEnvelope(protocol.EventHeartbeat, nil)
	if err != nil {
		return err
	}
	return t.Send(env)
}

// Close tears the session down from the client side. The read pump sees
// the close and reports serverInitiated=false.
func (t *wsTransport) Close() error {
	if !t.requested.CompareAndSwap(false, true) {
		return nil
	}

	msg := websocket.FormatCloseMessage(closeMessageCode, "")
	t.writeMu.Lock()
	_ = t.conn.SetWriteDeadline(time.Now().Add(t.writeTimeout))
	_ = t.conn.WriteMessage(websocket.CloseMessage, msg)
	t.writeMu.Unlock()

	return t.conn.Close()
}

// readPump reads envelopes until the connection drops, then reports the
// close exactly once. Dispatch is synchronous on this goroutine, which
// keeps inbound event ordering.
func (t *wsTransport) readPump() {
	for {
		_, data, err := t.conn.ReadMessage()
		if err != nil {
			t.closed.Store(true)
			serverInitiated := !t.requested.Load()
			if serverInitiated {
				t.logger.Warn("realtime connection dropped", "error", err)
			}
			_ = t.conn.Close()
			if t.cb.OnClose != nil {
				t.cb.OnClose(serverInitiated, err)
			}
			return
		}

		if len(data) == 0 {
			// bare keepalive frame
			continue
		}

		env := &protocol.Envelope{}
		if err := json.Unmarshal(data, env); err != nil {
			t.logger.Warn("failed to decode inbound frame", "error", err)
			continue
		}

		if t.cb.OnEnvelope != nil {
			t.cb.OnEnvelope(env)
		}
	}
}
