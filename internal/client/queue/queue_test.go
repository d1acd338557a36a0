package queue

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quillhq/quillsync/internal/client/api"
	"github.com/quillhq/quillsync/internal/client/auth"
	"github.com/quillhq/quillsync/internal/client/storage"
	"github.com/quillhq/quillsync/internal/client/storage/memory"
	"github.com/quillhq/quillsync/pkg/protocol"
)

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// fakeSender stands in for the connection manager's realtime path
type fakeSender struct {
	mu        sync.Mutex
	connected bool
	failSend  bool
	sent      []*protocol.Envelope
}

func (f *fakeSender) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeSender) Send(env *protocol.Envelope) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failSend {
		return errors.New("send failed")
	}
	f.sent = append(f.sent, env)
	return nil
}

func (f *fakeSender) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

// replayServer is a mock REST endpoint that records every request and
// fails the paths listed in failPaths
type replayServer struct {
	server    *httptest.Server
	mu        sync.Mutex
	requests  []string
	failPaths map[string]bool
	delay     time.Duration
}

func newReplayServer(t *testing.T) *replayServer {
	t.Helper()

	rs := &replayServer{failPaths: make(map[string]bool)}
	rs.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rs.mu.Lock()
		rs.requests = append(rs.requests, r.Method+" "+r.URL.Path)
		fail := rs.failPaths[r.URL.Path]
		delay := rs.delay
		rs.mu.Unlock()

		if delay > 0 {
			time.Sleep(delay)
		}
		if fail {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(rs.server.Close)

	return rs
}

func (rs *replayServer) requestLog() []string {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return append([]string(nil), rs.requests...)
}

func (rs *replayServer) countPath(path string) int {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	count := 0
	for _, req := range rs.requests {
		if req[len(req)-len(path):] == path {
			count++
		}
	}
	return count
}

func newTestQueue(t *testing.T, rs *replayServer, sender Sender) (*Queue, *memory.Storage) {
	t.Helper()

	store := memory.New()
	if sender == nil {
		sender = &fakeSender{}
	}
	q := New(store, api.NewClient(rs.server.URL), auth.NewStaticTokenSource("test-token"), sender, 0, testLogger)
	return q, store
}

func action(typ storage.ActionType, method, endpoint string) *storage.PendingAction {
	return &storage.PendingAction{
		Type:     typ,
		Method:   method,
		Endpoint: endpoint,
		Payload:  json.RawMessage(`{}`),
	}
}

func TestSync_DrainsQueueOnSuccess(t *testing.T) {
	ctx := context.Background()
	rs := newReplayServer(t)
	q, _ := newTestQueue(t, rs, nil)

	q.SetOnline(false)
	for _, endpoint := range []string{"/api/v1/courses", "/api/v1/courses/1", "/api/v1/documents"} {
		require.NoError(t, q.QueueAction(ctx, action(storage.ActionCreate, "POST", endpoint)))
	}

	count, err := q.PendingCount(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, count)
	// nothing was replayed while offline
	assert.Empty(t, rs.requestLog())

	q.online.Store(true)
	require.NoError(t, q.SyncPendingActions(ctx))

	count, err = q.PendingCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
	// FIFO enqueue order preserved
	assert.Equal(t, []string{
		"POST /api/v1/courses",
		"POST /api/v1/courses/1",
		"POST /api/v1/documents",
	}, rs.requestLog())
}

func TestSync_BoundedRetries(t *testing.T) {
	ctx := context.Background()
	rs := newReplayServer(t)
	rs.failPaths["/api/v1/courses/9"] = true
	q, _ := newTestQueue(t, rs, nil)

	q.SetOnline(false)
	a := action(storage.ActionUpdate, "PUT", "/api/v1/courses/9")
	a.MaxRetries = 3
	require.NoError(t, q.QueueAction(ctx, a))
	q.online.Store(true)

	// three failing passes consume the budget
	for i := 0; i < 3; i++ {
		require.NoError(t, q.SyncPendingActions(ctx))
	}

	count, err := q.PendingCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
	assert.Equal(t, 3, rs.countPath("/api/v1/courses/9"))

	// a fourth pass must not retry the dropped action
	require.NoError(t, q.SyncPendingActions(ctx))
	assert.Equal(t, 3, rs.countPath("/api/v1/courses/9"))
}

func TestSync_SingleFlight(t *testing.T) {
	ctx := context.Background()
	rs := newReplayServer(t)
	rs.delay = 50 * time.Millisecond
	q, _ := newTestQueue(t, rs, nil)

	q.SetOnline(false)
	require.NoError(t, q.QueueAction(ctx, action(storage.ActionCreate, "POST", "/api/v1/courses")))
	q.online.Store(true)

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = q.SyncPendingActions(ctx)
		}()
	}
	wg.Wait()

	// exactly one pass of network calls; the loser of the CAS no-ops
	assert.Equal(t, 1, rs.countPath("/api/v1/courses"))
}

func TestSync_EndToEndScenario(t *testing.T) {
	ctx := context.Background()
	rs := newReplayServer(t)
	rs.failPaths["/api/v1/courses/c"] = true
	q, _ := newTestQueue(t, rs, nil)

	// queue create(A), update(B), delete(C) while offline
	q.SetOnline(false)
	require.NoError(t, q.QueueAction(ctx, action(storage.ActionCreate, "POST", "/api/v1/courses/a")))
	require.NoError(t, q.QueueAction(ctx, action(storage.ActionUpdate, "PUT", "/api/v1/courses/b")))
	require.NoError(t, q.QueueAction(ctx, action(storage.ActionDelete, "DELETE", "/api/v1/courses/c")))

	// come back online; C fails three consecutive passes
	q.online.Store(true)
	for i := 0; i < 3; i++ {
		require.NoError(t, q.SyncPendingActions(ctx))
	}

	count, err := q.PendingCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
	assert.Equal(t, 1, rs.countPath("/api/v1/courses/a"))
	assert.Equal(t, 1, rs.countPath("/api/v1/courses/b"))
	assert.Equal(t, 3, rs.countPath("/api/v1/courses/c"))
}

func TestSync_NoToken(t *testing.T) {
	ctx := context.Background()
	rs := newReplayServer(t)

	store := memory.New()
	q := New(store, api.NewClient(rs.server.URL), auth.NewStaticTokenSource(""), &fakeSender{}, 0, testLogger)

	q.SetOnline(false)
	require.NoError(t, q.QueueAction(ctx, action(storage.ActionCreate, "POST", "/api/v1/courses")))
	q.online.Store(true)

	err := q.SyncPendingActions(ctx)
	assert.ErrorIs(t, err, auth.ErrNoToken)
	// the action stays queued for a later pass
	count, cerr := q.PendingCount(ctx)
	require.NoError(t, cerr)
	assert.Equal(t, 1, count)
}

func TestEmit_DirectWhenConnected(t *testing.T) {
	ctx := context.Background()
	rs := newReplayServer(t)
	sender := &fakeSender{connected: true}
	q, _ := newTestQueue(t, rs, sender)

	q.Emit(protocol.EventPresenceUpdate, protocol.PresenceRecord{UserID: "user-1", Status: protocol.PresenceOnline})

	assert.Equal(t, 1, sender.sentCount())
	count, err := q.PendingCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestEmit_QueuesWhenOffline(t *testing.T) {
	ctx := context.Background()
	rs := newReplayServer(t)
	sender := &fakeSender{connected: true}
	q, store := newTestQueue(t, rs, sender)

	q.SetOnline(false)
	q.Emit(protocol.EventContentChange, protocol.ContentChange{ID: "change-1", UserID: "user-1"})

	assert.Equal(t, 0, sender.sentCount())

	actions, err := store.ListActions(ctx)
	require.NoError(t, err)
	require.Len(t, actions, 1)
	assert.Equal(t, realtimeEventsEndpoint, actions[0].Endpoint)
	assert.Equal(t, "POST", actions[0].Method)
	assert.Equal(t, storage.DefaultMaxRetries, actions[0].MaxRetries)

	// the queued payload is the full envelope, replayable as-is
	env := &protocol.Envelope{}
	require.NoError(t, json.Unmarshal(actions[0].Payload, env))
	assert.Equal(t, protocol.EventContentChange, env.Event)
}

func TestEmit_QueuesWhenDisconnected(t *testing.T) {
	ctx := context.Background()
	rs := newReplayServer(t)
	sender := &fakeSender{connected: false}
	q, _ := newTestQueue(t, rs, sender)

	// online but the transport is down: still queued, never sent direct
	q.SetOnline(false) // suppress the auto sync pass for determinism
	q.Emit(protocol.EventPresenceUpdate, protocol.PresenceRecord{UserID: "user-1"})

	assert.Equal(t, 0, sender.sentCount())
	count, err := q.PendingCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestEmit_FallsBackToQueueOnSendError(t *testing.T) {
	ctx := context.Background()
	rs := newReplayServer(t)
	rs.delay = 20 * time.Millisecond
	sender := &fakeSender{connected: true, failSend: true}
	q, _ := newTestQueue(t, rs, sender)

	q.Emit(protocol.EventCursorPosition, protocol.CursorUpdate{UserID: "user-1"})

	// queued, and the post-queue pass replays it over REST
	require.Eventually(t, func() bool {
		return rs.countPath(realtimeEventsEndpoint) == 1
	}, 2*time.Second, 5*time.Millisecond)

	require.Eventually(t, func() bool {
		count, err := q.PendingCount(ctx)
		return err == nil && count == 0
	}, 2*time.Second, 5*time.Millisecond)
}

func TestSetOnline_TriggersSyncPass(t *testing.T) {
	ctx := context.Background()
	rs := newReplayServer(t)
	q, _ := newTestQueue(t, rs, nil)

	q.SetOnline(false)
	require.NoError(t, q.QueueAction(ctx, action(storage.ActionCreate, "POST", "/api/v1/exports")))

	q.SetOnline(true)

	require.Eventually(t, func() bool {
		count, err := q.PendingCount(ctx)
		return err == nil && count == 0
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, rs.countPath("/api/v1/exports"))
}

func TestQueueAction_DefaultRetryBudget(t *testing.T) {
	ctx := context.Background()
	rs := newReplayServer(t)
	q, store := newTestQueue(t, rs, nil)

	q.SetOnline(false)
	require.NoError(t, q.QueueAction(ctx, action(storage.ActionCreate, "POST", "/api/v1/courses")))

	actions, err := store.ListActions(ctx)
	require.NoError(t, err)
	require.Len(t, actions, 1)
	assert.Equal(t, storage.DefaultMaxRetries, actions[0].MaxRetries)
	assert.NotEmpty(t, actions[0].ID)
	assert.False(t, actions[0].EnqueuedAt.IsZero())
	assert.Equal(t, 0, actions[0].RetryCount)
}
