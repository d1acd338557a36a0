// Package protocol defines the named-event vocabulary shared between the
// realtime client and the collaboration server, plus the local lifecycle
// events the client dispatches to its own listeners. The vocabulary is
// closed: every event name maps to exactly one payload shape, and decoding
// goes through a dispatch table rather than ad hoc string matching.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// EventType names one event in the realtime protocol
type EventType string

// Wire events exchanged with the collaboration server
const (
	EventUserJoined      EventType = "user_joined"
	EventUserLeft        EventType = "user_left"
	EventPresenceUpdate  EventType = "presence_update"
	EventContentChange   EventType = "content_change"
	EventCursorPosition  EventType = "cursor_position"
	EventSelectionChange EventType = "selection_change"
	EventNotification    EventType = "notification"
	EventActivityUpdate  EventType = "activity_update"
	EventJoinCourse      EventType = "join_course"
	EventLeaveCourse     EventType = "leave_course"
	EventSubscribe       EventType = "subscribe"
	EventHeartbeat       EventType = "heartbeat"
)

// Local events dispatched by the client itself, never sent on the wire
const (
	EventConnectionState EventType = "connection_state"
)

// Envelope is the framing for every message on the transport: an event
// name plus its JSON-encoded payload.
type Envelope struct {
	Event EventType       `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// ErrUnknownEvent indicates an event name outside the protocol vocabulary
var ErrUnknownEvent = errors.New("unknown event")

// payloadFactories is the closed dispatch table: one payload constructor
// per event name. Events with no payload map to nil.
var payloadFactories = map[EventType]func() any{
	EventUserJoined:      func() any { return new(CollaborationUser) },
	EventUserLeft:        func() any { return new(CollaborationUser) },
	EventPresenceUpdate:  func() any { return new(PresenceRecord) },
	EventContentChange:   func() any { return new(ContentChange) },
	EventCursorPosition:  func() any { return new(CursorUpdate) },
	EventSelectionChange: func() any { return new(SelectionChange) },
	EventNotification:    func() any { return new(Notification) },
	EventActivityUpdate:  func() any { return new(ActivityUpdate) },
	EventJoinCourse:      func() any { return new(RoomRef) },
	EventLeaveCourse:     func() any { return new(RoomRef) },
	EventSubscribe:       func() any { return new(Subscription) },
	EventHeartbeat:       nil,
	EventConnectionState: func() any { return new(ConnectionStateChange) },
}

// Known reports whether the event name belongs to the protocol vocabulary
func Known(event EventType) bool {
	_, ok := payloadFactories[event]
	return ok
}

// NewEnvelope builds an envelope from an event name and its payload.
// A nil payload produces an envelope with no data.
func NewEnvelope(event EventType, payload any) (*Envelope, error) {
	if !Known(event) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEvent, event)
	}

	env := &Envelope{Event: event}
	if payload == nil {
		return env, nil
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", event, err)
	}
	env.Data = data

	return env, nil
}

// DecodePayload unmarshals the envelope's data into the payload type
// registered for its event name. Events without a payload return nil.
func (e *Envelope) DecodePayload() (any, error) {
	factory, ok := payloadFactories[e.Event]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEvent, e.Event)
	}
	if factory == nil {
		return nil, nil
	}

	payload := factory()
	if len(e.Data) > 0 {
		if err := json.Unmarshal(e.Data, payload); err != nil {
			return nil, fmt.Errorf("failed to unmarshal %s payload: %w", e.Event, err)
		}
	}

	return payload, nil
}
