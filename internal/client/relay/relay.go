// Package relay shapes outbound presence, cursor and content-change
// payloads and routes them through the offline queue's emit path. The
// helpers are stateless beyond the local user's identity: they stamp the
// fields the server does not know (id, timestamps, user id) and nothing
// else.
package relay

import (
	"time"

	"github.com/google/uuid"

	"github.com/quillhq/quillsync/pkg/protocol"
)

// Emitter is the delivery path for outbound events. Implemented by the
// offline queue.
type Emitter interface {
	Emit(event protocol.EventType, payload any)
}

// Relay assembles well-formed outbound collaboration payloads
type Relay struct {
	userID  string
	emitter Emitter
	now     func() time.Time
}

// New creates a relay for the local user
func New(userID string, emitter Emitter) *Relay {
	return &Relay{
		userID:  userID,
		emitter: emitter,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// UpdatePresence broadcasts the local user's presence. UserID and
// LastActivity are stamped here; the caller fills the rest.
func (r *Relay) UpdatePresence(record protocol.PresenceRecord) {
	record.UserID = r.userID
	record.LastActivity = r.now()
	r.emitter.Emit(protocol.EventPresenceUpdate, record)
}

// SendCursorPosition broadcasts the local user's caret location
func (r *Relay) SendCursorPosition(position protocol.CursorPosition) {
	r.emitter.Emit(protocol.EventCursorPosition, protocol.CursorUpdate{
		UserID:    r.userID,
		Position:  position,
		UpdatedAt: r.now(),
	})
}

// SendSelectionChange broadcasts the local user's text selection
func (r *Relay) SendSelectionChange(change protocol.SelectionChange) {
	change.UserID = r.userID
	change.UpdatedAt = r.now()
	r.emitter.Emit(protocol.EventSelectionChange, change)
}

// SendContentChange broadcasts one edit. A fresh id and timestamp are
// stamped; any conflict data later attached by the server flows back on
// the inbound content_change event untouched.
func (r *Relay) SendContentChange(change protocol.ContentChange) {
	change.ID = uuid.NewString()
	change.UserID = r.userID
	change.Timestamp = r.now()
	r.emitter.Emit(protocol.EventContentChange, change)
}

// SendNotification routes an application notification to collaborators
func (r *Relay) SendNotification(notification protocol.Notification) {
	if notification.ID == "" {
		notification.ID = uuid.NewString()
	}
	notification.CreatedAt = r.now()
	r.emitter.Emit(protocol.EventNotification, notification)
}

// JoinCourse enters the course's broadcast room
func (r *Relay) JoinCourse(courseID string) {
	r.emitter.Emit(protocol.EventJoinCourse, protocol.RoomRef{CourseID: courseID})
}

// LeaveCourse exits the course's broadcast room
func (r *Relay) LeaveCourse(courseID string) {
	r.emitter.Emit(protocol.EventLeaveCourse, protocol.RoomRef{CourseID: courseID})
}
