// Package transport owns the persistent bidirectional channel to the
// collaboration server. The connection manager drives it through the
// Transport interface; the gorilla implementation is the production one
// and tests substitute fakes.
package transport

import (
	"context"
	"errors"

	"github.com/quillhq/quillsync/pkg/protocol"
)

// ErrClosed indicates a send on a transport that has already shut down
var ErrClosed = errors.New("transport closed")

// Callbacks are invoked from the transport's read pump. OnClose fires
// exactly once per session; serverInitiated is false only when the close
// was requested locally through Close.
type Callbacks struct {
	OnEnvelope func(env *protocol.Envelope)
	OnClose    func(serverInitiated bool, err error)
}

// Transport is one live session over the realtime channel
type Transport interface {
	// Send writes an envelope to the server
	Send(env *protocol.Envelope) error

	// Attach asks the server to deliver the named event to this session
	Attach(event protocol.EventType) error

	// Ping emits a liveness probe. Best effort: the read pump's error is
	// the actual disconnect signal, not a missed ping.
	Ping() error

	// Close tears the session down from the client side
	Close() error
}

// Dialer establishes transport sessions
type Dialer interface {
	// Dial opens an authenticated session and starts its read pump
	Dial(ctx context.Context, url, token string, cb Callbacks) (Transport, error)
}
