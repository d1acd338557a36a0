package protocol

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEnvelope_UnknownEvent(t *testing.T) {
	_, err := NewEnvelope(EventType("made_up"), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownEvent)
}

func TestNewEnvelope_NoPayload(t *testing.T) {
	env, err := NewEnvelope(EventHeartbeat, nil)
	require.NoError(t, err)
	assert.Equal(t, EventHeartbeat, env.Event)
	assert.Empty(t, env.Data)
}

func TestDecodePayload_PresenceUpdate(t *testing.T) {
	record := PresenceRecord{
		UserID:       "user-1",
		Status:       PresenceAway,
		CurrentPage:  "/courses/42/edit",
		LastActivity: time.Date(2025, 11, 3, 10, 0, 0, 0, time.UTC),
	}

	env, err := NewEnvelope(EventPresenceUpdate, record)
	require.NoError(t, err)

	payload, err := env.DecodePayload()
	require.NoError(t, err)

	decoded, ok := payload.(*PresenceRecord)
	require.True(t, ok)
	assert.Equal(t, record, *decoded)
}

func TestDecodePayload_ContentChangeConflictsPassThrough(t *testing.T) {
	// Conflicts must survive a round trip byte-for-byte; this layer never
	// interprets them.
	conflicts := json.RawMessage(`[{"other_user":"user-2","their_change":"c-9"}]`)
	change := ContentChange{
		ID:        "change-1",
		UserID:    "user-1",
		Timestamp: time.Date(2025, 11, 3, 10, 0, 0, 0, time.UTC),
		Target:    ResourceRef{CourseID: "course-1", BlockID: "block-7"},
		Data:      json.RawMessage(`{"op":"insert","text":"hi"}`),
		Conflicts: conflicts,
	}

	env, err := NewEnvelope(EventContentChange, change)
	require.NoError(t, err)

	payload, err := env.DecodePayload()
	require.NoError(t, err)

	decoded, ok := payload.(*ContentChange)
	require.True(t, ok)
	assert.JSONEq(t, string(conflicts), string(decoded.Conflicts))
}

func TestDecodePayload_UnknownEvent(t *testing.T) {
	env := &Envelope{Event: EventType("mystery"), Data: json.RawMessage(`{}`)}

	_, err := env.DecodePayload()
	assert.ErrorIs(t, err, ErrUnknownEvent)
}

func TestDecodePayload_MalformedData(t *testing.T) {
	env := &Envelope{Event: EventPresenceUpdate, Data: json.RawMessage(`{not json`)}

	_, err := env.DecodePayload()
	assert.Error(t, err)
}

func TestKnown(t *testing.T) {
	assert.True(t, Known(EventContentChange))
	assert.True(t, Known(EventConnectionState))
	assert.False(t, Known(EventType("nope")))
}
