package boltdb

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quillhq/quillsync/internal/client/storage"
)

func newTestAction(t *testing.T, endpoint string) *storage.PendingAction {
	t.Helper()

	id, err := uuid.NewV7()
	require.NoError(t, err)

	return &storage.PendingAction{
		ID:         id.String(),
		Type:       storage.ActionCreate,
		Endpoint:   endpoint,
		Method:     "POST",
		Payload:    json.RawMessage(`{"title":"Intro"}`),
		EnqueuedAt: time.Now().UTC(),
		RetryCount: 0,
		MaxRetries: storage.DefaultMaxRetries,
	}
}

func TestSaveAndListActions_FIFOOrder(t *testing.T) {
	ctx := context.Background()
	store, cleanup := createTestStorage(t)
	defer cleanup()

	endpoints := []string{
		"/api/v1/courses",
		"/api/v1/courses/1",
		"/api/v1/courses/2",
		"/api/v1/documents",
	}
	for _, endpoint := range endpoints {
		require.NoError(t, store.SaveAction(ctx, newTestAction(t, endpoint)))
	}

	actions, err := store.ListActions(ctx)
	require.NoError(t, err)
	require.Len(t, actions, len(endpoints))

	// UUIDv7 keys keep BoltDB cursor order equal to enqueue order
	for i, action := range actions {
		assert.Equal(t, endpoints[i], action.Endpoint)
	}
}

func TestListActions_Empty(t *testing.T) {
	ctx := context.Background()
	store, cleanup := createTestStorage(t)
	defer cleanup()

	actions, err := store.ListActions(ctx)
	require.NoError(t, err)
	assert.Empty(t, actions)
}

func TestUpdateAction_RetryCount(t *testing.T) {
	ctx := context.Background()
	store, cleanup := createTestStorage(t)
	defer cleanup()

	action := newTestAction(t, "/api/v1/courses")
	require.NoError(t, store.SaveAction(ctx, action))

	action.RetryCount = 2
	require.NoError(t, store.UpdateAction(ctx, action))

	actions, err := store.ListActions(ctx)
	require.NoError(t, err)
	require.Len(t, actions, 1)
	assert.Equal(t, 2, actions[0].RetryCount)
}

func TestUpdateAction_NotFound(t *testing.T) {
	ctx := context.Background()
	store, cleanup := createTestStorage(t)
	defer cleanup()

	action := newTestAction(t, "/api/v1/courses")

	err := store.UpdateAction(ctx, action)
	assert.ErrorIs(t, err, storage.ErrActionNotFound)
}

func TestDeleteAction(t *testing.T) {
	ctx := context.Background()
	store, cleanup := createTestStorage(t)
	defer cleanup()

	action := newTestAction(t, "/api/v1/courses")
	require.NoError(t, store.SaveAction(ctx, action))

	require.NoError(t, store.DeleteAction(ctx, action.ID))

	count, err := store.CountActions(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	// deleting an absent action is a no-op
	assert.NoError(t, store.DeleteAction(ctx, action.ID))
}

func TestCountActions(t *testing.T) {
	ctx := context.Background()
	store, cleanup := createTestStorage(t)
	defer cleanup()

	for i := 0; i < 3; i++ {
		require.NoError(t, store.SaveAction(ctx, newTestAction(t, "/api/v1/courses")))
	}

	count, err := store.CountActions(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}
