// Package registry is the typed publish/subscribe fan-out between the
// transport and application listeners. Nothing is buffered: listeners only
// see events dispatched while they are subscribed; cached domain snapshots
// cover the gap for resource state.
package registry

import (
	"log/slog"
	"sync"

	"github.com/quillhq/quillsync/pkg/protocol"
)

// Callback receives the decoded payload for one event. Payload is the
// pointer type registered for the event in the protocol dispatch table,
// or nil for payload-less events.
type Callback func(payload any)

// Attacher forwards an event name to the live transport session so the
// server starts delivering it. Registered names are re-attached to every
// new session.
type Attacher func(event protocol.EventType) error

type listener struct {
	cb Callback
	id uint64
}

// Registry maintains ordered callback lists per event name
type Registry struct {
	logger *slog.Logger

	mu        sync.Mutex
	listeners map[protocol.EventType][]listener
	attach    Attacher
	nextID    uint64
}

// New creates an empty registry
func New(logger *slog.Logger) *Registry {
	return &Registry{
		logger:    logger,
		listeners: make(map[protocol.EventType][]listener),
	}
}

// On registers a callback for an event and returns its unsubscribe
// function. Callbacks for the same event fire in registration order. The
// event name is also forwarded to the live transport, if any, so the
// server starts delivering it to this session.
func (r *Registry) On(event protocol.EventType, cb Callback) func() {
	r.mu.Lock()
	r.nextID++
	id := r.nextID
	r.listeners[event] = append(r.listeners[event], listener{cb: cb, id: id})
	attach := r.attach
	r.mu.Unlock()

	if attach != nil {
		if err := attach(event); err != nil {
			r.logger.Warn("failed to attach event to transport", "event", event, "error", err)
		}
	}

	return func() { r.off(event, id) }
}

// off removes one callback; an event whose list becomes empty is deleted
func (r *Registry) off(event protocol.EventType, id uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	listeners := r.listeners[event]
	for i, l := range listeners {
		if l.id == id {
			r.listeners[event] = append(listeners[:i:i], listeners[i+1:]...)
			break
		}
	}
	if len(r.listeners[event]) == 0 {
		delete(r.listeners, event)
	}
}

// EventNames returns the names that currently have listeners. The
// connection manager replays these onto each new transport session.
func (r *Registry) EventNames() []protocol.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := make([]protocol.EventType, 0, len(r.listeners))
	for event := range r.listeners {
		names = append(names, event)
	}
	return names
}

// SetAttacher installs (or clears, with nil) the forwarder to the live
// transport session
func (r *Registry) SetAttacher(attach Attacher) {
	r.mu.Lock()
	r.attach = attach
	r.mu.Unlock()
}

// Dispatch decodes the envelope's payload and fans it out synchronously
// to the event's listeners in registration order. Unknown or malformed
// events are logged and dropped.
func (r *Registry) Dispatch(env *protocol.Envelope) {
	payload, err := env.DecodePayload()
	if err != nil {
		r.logger.Warn("dropping undecodable event", "event", env.Event, "error", err)
		return
	}

	r.mu.Lock()
	listeners := make([]listener, len(r.listeners[env.Event]))
	copy(listeners, r.listeners[env.Event])
	r.mu.Unlock()

	for _, l := range listeners {
		l.cb(payload)
	}
}
