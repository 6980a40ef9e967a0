////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

// sqlite requires cgo, which is not available in wasm
//go:build !js || !wasm

package antiblock

import (
	"context"
	"encoding/json"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
	"github.com/stretchr/testify/require"
	"gitlab.com/elixxir/blockwatch/conversation"
	"gitlab.com/elixxir/blockwatch/event"
	"gitlab.com/elixxir/blockwatch/profile"
	"gitlab.com/elixxir/blockwatch/push"
	"gitlab.com/elixxir/blockwatch/stoppable"
	"gitlab.com/elixxir/blockwatch/storage"
)

const viewer = int64(3)

func TestMain(m *testing.M) {
	jww.SetStdoutThreshold(jww.LevelDebug)
	os.Exit(m.Run())
}

// mockLookup answers lookups from a map. Unknown IDs do not resolve.
type mockLookup struct {
	names map[int64]string
	err   error
	calls []int64
	mux   sync.Mutex
}

func (ml *mockLookup) Lookup(_ context.Context, id int64) (profile.Result, error) {
	ml.mux.Lock()
	defer ml.mux.Unlock()
	ml.calls = append(ml.calls, id)
	if ml.err != nil {
		return profile.Result{}, ml.err
	}
	if name, ok := ml.names[id]; ok {
		return profile.Result{Found: true, DisplayName: name}, nil
	}
	return profile.Result{}, nil
}

func (ml *mockLookup) numCalls() int {
	ml.mux.Lock()
	defer ml.mux.Unlock()
	return len(ml.calls)
}

// gatedLookup holds every lookup until gate is closed or the context ends.
type gatedLookup struct {
	*mockLookup
	started chan struct{}
	gate    chan struct{}
	once    sync.Once
}

func newGatedLookup(ml *mockLookup) *gatedLookup {
	return &gatedLookup{
		mockLookup: ml,
		started:    make(chan struct{}),
		gate:       make(chan struct{}),
	}
}

func (gl *gatedLookup) Lookup(ctx context.Context, id int64) (profile.Result, error) {
	gl.once.Do(func() { close(gl.started) })
	select {
	case <-gl.gate:
		return gl.mockLookup.Lookup(ctx, id)
	case <-ctx.Done():
		return profile.Result{}, ctx.Err()
	}
}

type mockDispatcher struct {
	toasts        []string
	notifications []Notification
	mux           sync.Mutex
}

func (md *mockDispatcher) Toast(text string) {
	md.mux.Lock()
	defer md.mux.Unlock()
	md.toasts = append(md.toasts, text)
}

func (md *mockDispatcher) Notify(n Notification) error {
	md.mux.Lock()
	defer md.mux.Unlock()
	md.notifications = append(md.notifications, n)
	return nil
}

func (md *mockDispatcher) sent() ([]string, []Notification) {
	md.mux.Lock()
	defer md.mux.Unlock()
	return append([]string(nil), md.toasts...),
		append([]Notification(nil), md.notifications...)
}

type mockReporter struct {
	events []event.BlockEvent
	mux    sync.Mutex
}

func (mr *mockReporter) Report(e event.BlockEvent) {
	mr.mux.Lock()
	defer mr.mux.Unlock()
	mr.events = append(mr.events, e)
}

type failingBlocks struct{}

func (failingBlocks) IsBlocked(context.Context, int64) (bool, error) {
	return false, errors.New("database is locked")
}

type testManager struct {
	*Manager
	store      *storage.Store
	lookup     *mockLookup
	dispatcher *mockDispatcher
	reporter   *mockReporter
}

func newTestManager(t *testing.T, params Params) *testManager {
	s, err := storage.NewStore("", t.Name())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	params.ViewerID = viewer
	tm := &testManager{
		store:      s,
		lookup:     &mockLookup{names: make(map[int64]string)},
		dispatcher: &mockDispatcher{},
		reporter:   &mockReporter{},
	}
	tm.Manager = NewManager(params, s, s, tm.lookup, tm.dispatcher,
		tm.reporter)
	return tm
}

func (tm *testManager) seed(t *testing.T, records ...conversation.Record) {
	require.NoError(t, tm.store.UpsertConversations(
		context.Background(), records))
}

func record(other int64, ts int64, name string) conversation.Record {
	return conversation.Record{
		ConversationID:        conversation.MakeID(viewer, other),
		ParticipantID:         other,
		LastActivityTimestamp: ts,
		DisplayName:           name,
	}
}

// A conversation newer than the page boundary is missing and its profile no
// longer resolves.
func TestManager_HandleInboxPage_Blocked(t *testing.T) {
	tm := newTestManager(t, GetDefaultParams())
	tm.seed(t, record(5, 100, "Five"), record(9, 150, "Nine"))

	outcomes, err := tm.HandleInboxPage(context.Background(),
		[]conversation.Record{record(5, 100, "Five")})
	require.NoError(t, err)
	require.Equal(t, []Outcome{
		{ProfileID: 9, DisplayName: "Nine (9)", WasBlocked: true}}, outcomes)

	_, notifications := tm.dispatcher.sent()
	require.Len(t, notifications, 1)
	n := notifications[0]
	require.Equal(t, "Blocked by User", n.Title)
	require.Equal(t, "You have been blocked by user Nine (9)", n.Body)
	require.Equal(t, 10000009, n.NotificationID)
	require.Equal(t, BlocksChannelID, n.ChannelID)
	require.Equal(t, [][]string{{"9"}}, n.ActionArgs)

	require.Len(t, tm.reporter.events, 1)
	require.Equal(t, "inbox", tm.reporter.events[0].Source)
	require.True(t, tm.reporter.events[0].Blocked)
}

func TestManager_HandleInboxPage_OlderIgnored(t *testing.T) {
	tm := newTestManager(t, GetDefaultParams())
	tm.seed(t, record(5, 100, "Five"), record(7, 90, "Seven"))

	outcomes, err := tm.HandleInboxPage(context.Background(),
		[]conversation.Record{record(5, 100, "Five")})
	require.NoError(t, err)
	require.Empty(t, outcomes)
	require.Zero(t, tm.lookup.numCalls())
}

func TestManager_HandleInboxPage_Suppressed(t *testing.T) {
	tm := newTestManager(t, GetDefaultParams())
	tm.seed(t, record(5, 100, "Five"), record(9, 150, "Nine"))
	require.NoError(t, tm.Coordinator().Acquire(UnblockTag))

	outcomes, err := tm.HandleInboxPage(context.Background(),
		[]conversation.Record{record(5, 100, "Five")})
	require.NoError(t, err)
	require.Empty(t, outcomes)
	require.Zero(t, tm.lookup.numCalls())
	_, notifications := tm.dispatcher.sent()
	require.Empty(t, notifications)
}

func TestManager_HandleInboxPage_ViewerBlocked(t *testing.T) {
	tm := newTestManager(t, GetDefaultParams())
	tm.seed(t, record(5, 100, "Five"), record(9, 150, "Nine"))
	require.NoError(t, tm.store.AddBlock(context.Background(), 9))

	outcomes, err := tm.HandleInboxPage(context.Background(),
		[]conversation.Record{record(5, 100, "Five")})
	require.NoError(t, err)
	require.Empty(t, outcomes)
	require.Zero(t, tm.lookup.numCalls())
}

// A missing conversation whose profile still resolves is not reported.
func TestManager_HandleInboxPage_StillResolves(t *testing.T) {
	tm := newTestManager(t, GetDefaultParams())
	tm.seed(t, record(5, 100, "Five"), record(9, 150, "Nine"))
	tm.lookup.names[9] = "Nine"

	outcomes, err := tm.HandleInboxPage(context.Background(),
		[]conversation.Record{record(5, 100, "Five")})
	require.NoError(t, err)
	require.Empty(t, outcomes)
	require.Equal(t, 1, tm.lookup.numCalls())
	_, notifications := tm.dispatcher.sent()
	require.Empty(t, notifications)
}

func TestManager_HandleInboxPage_LookupError(t *testing.T) {
	tm := newTestManager(t, GetDefaultParams())
	tm.seed(t, record(5, 100, "Five"), record(9, 150, "Nine"))
	tm.lookup.err = errors.New("503 Service Unavailable")

	outcomes, err := tm.HandleInboxPage(context.Background(),
		[]conversation.Record{record(5, 100, "Five")})
	require.NoError(t, err)
	require.Empty(t, outcomes)
	require.Empty(t, tm.reporter.events)
}

func TestManager_HandleInboxPage_Empty(t *testing.T) {
	tm := newTestManager(t, GetDefaultParams())
	tm.seed(t, record(9, 150, "Nine"))

	outcomes, err := tm.HandleInboxPage(context.Background(), nil)
	require.NoError(t, err)
	require.Empty(t, outcomes)
}

func TestManager_HandleInboxPage_Toast(t *testing.T) {
	params := GetDefaultParams()
	params.UseToasts = true
	tm := newTestManager(t, params)
	tm.seed(t, record(5, 100, "Five"), record(9, 150, ""))

	_, err := tm.HandleInboxPage(context.Background(),
		[]conversation.Record{record(5, 100, "Five")})
	require.NoError(t, err)

	toasts, notifications := tm.dispatcher.sent()
	require.Equal(t, []string{"Blocked by 9"}, toasts)
	require.Empty(t, notifications)
}

func TestManager_HandleInboxPage_Dedup(t *testing.T) {
	tm := newTestManager(t, GetDefaultParams())
	tm.seed(t, record(5, 100, "Five"), record(9, 150, "Nine"))
	page := []conversation.Record{record(5, 100, "Five")}

	outcomes, err := tm.HandleInboxPage(context.Background(), page)
	require.NoError(t, err)
	require.Len(t, outcomes, 1)

	outcomes, err = tm.HandleInboxPage(context.Background(), page)
	require.NoError(t, err)
	require.Empty(t, outcomes)

	_, notifications := tm.dispatcher.sent()
	require.Len(t, notifications, 1)
}

func TestManager_HandleInboxPage_OldBehavior(t *testing.T) {
	params := GetDefaultParams()
	params.ForceOldBehavior = true
	tm := newTestManager(t, params)
	tm.seed(t, record(5, 100, "Five"), record(9, 150, "Nine"))

	outcomes, err := tm.HandleInboxPage(context.Background(),
		[]conversation.Record{record(5, 100, "Five")})
	require.NoError(t, err)
	require.Empty(t, outcomes)
	require.Zero(t, tm.lookup.numCalls())
}

func deleteEvent(t *testing.T, ids ...string) push.Event {
	payload, err := json.Marshal(push.ConversationDeletePayload{
		ConversationIDs: ids})
	require.NoError(t, err)
	return push.Event{TypeValue: push.ConversationDeleteType, Payload: payload}
}

func startConsumer(t *testing.T, tm *testManager) (chan push.Event,
	stoppable.Stoppable) {
	events := make(chan push.Event)
	stop := tm.StartPushConsumer(events)
	t.Cleanup(func() {
		if stop.IsRunning() {
			_ = stop.Close()
		}
	})
	return events, stop
}

func TestManager_PushConsumer_Unblocked(t *testing.T) {
	tm := newTestManager(t, GetDefaultParams())
	tm.lookup.names[9] = "Alex"
	events, stop := startConsumer(t, tm)

	events <- deleteEvent(t, "3:9")

	require.Eventually(t, func() bool {
		_, n := tm.dispatcher.sent()
		return len(n) == 1
	}, time.Second, 5*time.Millisecond)

	_, notifications := tm.dispatcher.sent()
	n := notifications[0]
	require.Equal(t, "Unblocked by Alex (9)", n.Title)
	require.Equal(t, "Alex (9) has unblocked you.", n.Body)
	require.Equal(t, 20000009, n.NotificationID)
	require.Equal(t, UnblocksChannelID, n.ChannelID)

	require.NoError(t, stop.Close())
	require.True(t, stop.IsStopped())
}

func TestManager_PushConsumer_Blocked(t *testing.T) {
	tm := newTestManager(t, GetDefaultParams())
	tm.seed(t, record(9, 150, "Nine"))
	events, stop := startConsumer(t, tm)

	// Reversed composite ID
	events <- deleteEvent(t, "9:3")

	require.Eventually(t, func() bool {
		_, n := tm.dispatcher.sent()
		return len(n) == 1
	}, time.Second, 5*time.Millisecond)
	_, notifications := tm.dispatcher.sent()
	require.Equal(t, "You have been blocked by user Nine (9)",
		notifications[0].Body)
	require.NoError(t, stop.Close())
}

// Closing the consumer waits for a verification that is still running.
func TestManager_PushConsumer_Drain(t *testing.T) {
	params := GetDefaultParams()
	params.DrainTimeout = 2 * time.Second
	tm := newTestManager(t, params)
	tm.lookup.names[9] = "Alex"
	gl := newGatedLookup(tm.lookup)
	tm.Manager.lookup = gl
	events, stop := startConsumer(t, tm)

	events <- deleteEvent(t, "3:9")
	select {
	case <-gl.started:
	case <-time.After(time.Second):
		t.Fatal("verification did not start")
	}

	go func() {
		time.Sleep(50 * time.Millisecond)
		close(gl.gate)
	}()
	require.NoError(t, stop.Close())
	require.True(t, stop.IsStopped())

	_, notifications := tm.dispatcher.sent()
	require.Len(t, notifications, 1)
	require.Equal(t, "Unblocked by Alex (9)", notifications[0].Title)
}

// Error path: a verification that outlives the drain timeout is abandoned.
func TestManager_PushConsumer_DrainTimeout(t *testing.T) {
	params := GetDefaultParams()
	params.DrainTimeout = 50 * time.Millisecond
	tm := newTestManager(t, params)
	tm.lookup.names[9] = "Alex"
	gl := newGatedLookup(tm.lookup)
	tm.Manager.lookup = gl
	events, stop := startConsumer(t, tm)
	defer close(gl.gate)

	events <- deleteEvent(t, "3:9")
	select {
	case <-gl.started:
	case <-time.After(time.Second):
		t.Fatal("verification did not start")
	}

	require.Error(t, stop.Close())
	require.True(t, stop.IsStopped())

	// The abandoned lookup is cancelled and never dispatches
	time.Sleep(50 * time.Millisecond)
	_, notifications := tm.dispatcher.sent()
	require.Empty(t, notifications)
}

func TestManager_PushConsumer_ViewerBlocked(t *testing.T) {
	tm := newTestManager(t, GetDefaultParams())
	require.NoError(t, tm.store.AddBlock(context.Background(), 9))
	events, stop := startConsumer(t, tm)

	events <- deleteEvent(t, "3:9")
	require.NoError(t, stop.Close())

	require.Zero(t, tm.lookup.numCalls())
	_, notifications := tm.dispatcher.sent()
	require.Empty(t, notifications)
}

func TestManager_PushConsumer_Filtered(t *testing.T) {
	tm := newTestManager(t, GetDefaultParams())
	events, stop := startConsumer(t, tm)

	// Other event types
	events <- push.Event{TypeValue: "chat.v1.message_sent"}
	// Missing payload
	events <- push.Event{TypeValue: push.ConversationDeleteType}
	// Only the viewer
	events <- deleteEvent(t, "3:3")

	// Suppressed
	require.NoError(t, tm.Coordinator().Acquire(DeleteConversationsTag))
	events <- deleteEvent(t, "3:9")

	require.NoError(t, stop.Close())
	require.Zero(t, tm.lookup.numCalls())
}

func TestManager_PushConsumer_BlockListError(t *testing.T) {
	tm := newTestManager(t, GetDefaultParams())
	tm.blocks = failingBlocks{}
	events, stop := startConsumer(t, tm)

	events <- deleteEvent(t, "3:9")
	require.NoError(t, stop.Close())
	require.Zero(t, tm.lookup.numCalls())
}

func TestManager_PushConsumer_StreamEnded(t *testing.T) {
	tm := newTestManager(t, GetDefaultParams())
	events, stop := startConsumer(t, tm)

	close(events)
	require.True(t, stop.IsRunning())
	require.NoError(t, stop.Close())
	require.True(t, stop.IsStopped())
}

func TestManager_PushConsumer_OldBehavior(t *testing.T) {
	params := GetDefaultParams()
	params.ForceOldBehavior = true
	tm := newTestManager(t, params)

	stop := tm.StartPushConsumer(make(chan push.Event))
	require.True(t, stop.IsStopped())
}

// Both sources observe the same block; the viewer is told once.
func TestManager_DedupAcrossSources(t *testing.T) {
	tm := newTestManager(t, GetDefaultParams())
	tm.seed(t, record(5, 100, "Five"), record(9, 150, "Nine"))
	events, stop := startConsumer(t, tm)

	events <- deleteEvent(t, "3:9")
	require.Eventually(t, func() bool {
		_, n := tm.dispatcher.sent()
		return len(n) == 1
	}, time.Second, 5*time.Millisecond)
	require.NoError(t, stop.Close())

	outcomes, err := tm.HandleInboxPage(context.Background(),
		[]conversation.Record{record(5, 100, "Five")})
	require.NoError(t, err)
	require.Empty(t, outcomes)

	_, notifications := tm.dispatcher.sent()
	require.Len(t, notifications, 1)
}

func TestManager_CompletionSignal_NoFlow(t *testing.T) {
	tm := newTestManager(t, GetDefaultParams())
	tm.CompletionSignal(UnblockTag)
	require.Nil(t, tm.signal(UnblockTag))
}

func TestGetParameters(t *testing.T) {
	p, err := GetParameters(`{"force_old_anti_block_behavior": true,
		"anti_block_use_toasts": true, "viewer_id": 42}`)
	require.NoError(t, err)
	require.True(t, p.ForceOldBehavior)
	require.True(t, p.UseToasts)
	require.Equal(t, int64(42), p.ViewerID)
	require.Equal(t, 700*time.Millisecond, p.UnblockSettle)

	p, err = GetParameters("")
	require.NoError(t, err)
	require.Equal(t, GetDefaultParams(), p)

	_, err = GetParameters("{")
	require.Error(t, err)
}
