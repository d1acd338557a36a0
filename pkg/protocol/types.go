package protocol

import (
	"encoding/json"
	"time"
)

// PresenceStatus represents a collaborator's live availability
type PresenceStatus string

const (
	PresenceOnline  PresenceStatus = "online"
	PresenceAway    PresenceStatus = "away"
	PresenceOffline PresenceStatus = "offline"
)

// CollaborationUser identifies a participant in a shared course session
type CollaborationUser struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

// ResourceRef addresses a piece of course content down to the block level.
// SectionID and BlockID may be empty when the reference is coarser-grained.
type ResourceRef struct {
	CourseID  string `json:"course_id"`
	SectionID string `json:"section_id,omitempty"`
	BlockID   string `json:"block_id,omitempty"`
}

// CursorPosition is a collaborator's caret location inside a block
type CursorPosition struct {
	BlockID string `json:"block_id"`
	Offset  int    `json:"offset"`
}

// PresenceRecord describes a collaborator's current status and location.
// It exists only in memory and on the wire, never in the durable store.
type PresenceRecord struct {
	LastActivity time.Time       `json:"last_activity"`
	Cursor       *CursorPosition `json:"cursor,omitempty"`
	UserID       string          `json:"user_id"`
	Status       PresenceStatus  `json:"status"`
	CurrentPage  string          `json:"current_page,omitempty"`
}

// CursorUpdate carries a single collaborator's caret movement
type CursorUpdate struct {
	UpdatedAt time.Time      `json:"updated_at"`
	UserID    string         `json:"user_id"`
	Position  CursorPosition `json:"position"`
}

// SelectionChange carries a collaborator's text selection within a block
type SelectionChange struct {
	UpdatedAt    time.Time   `json:"updated_at"`
	UserID       string      `json:"user_id"`
	Target       ResourceRef `json:"target"`
	AnchorOffset int         `json:"anchor_offset"`
	FocusOffset  int         `json:"focus_offset"`
}

// ContentChange is a single edit to course content. Conflicts is populated
// by the server when it detects overlapping edits; this layer surfaces it
// to listeners untouched and never resolves it.
type ContentChange struct {
	Timestamp time.Time       `json:"timestamp"`
	ID        string          `json:"id"`
	UserID    string          `json:"user_id"`
	Target    ResourceRef     `json:"target"`
	Data      json.RawMessage `json:"data"`
	Conflicts json.RawMessage `json:"conflicts,omitempty"`
}

// Notification is a user-facing message. The core emits these for
// connection lifecycle changes; the presentation layer decides rendering.
type Notification struct {
	CreatedAt time.Time `json:"created_at"`
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	Title     string    `json:"title,omitempty"`
	Message   string    `json:"message"`
}

// Notification kinds emitted by this layer
const (
	NotificationKindConnection = "connection"
	NotificationKindOffline    = "offline"
)

// ActivityUpdate describes a collaborator action for activity feeds
type ActivityUpdate struct {
	OccurredAt time.Time `json:"occurred_at"`
	UserID     string    `json:"user_id"`
	CourseID   string    `json:"course_id"`
	Action     string    `json:"action"`
}

// RoomRef scopes join/leave requests to a per-course broadcast room
type RoomRef struct {
	CourseID string `json:"course_id"`
}

// Subscription asks the server to deliver a named event to this session
type Subscription struct {
	Event EventType `json:"event"`
}

// ConnectionStateChange is the payload of the local connection_state event.
// State is the string form of the connection manager's state enum.
type ConnectionStateChange struct {
	State    string `json:"state"`
	Attempts int    `json:"attempts"`
}
