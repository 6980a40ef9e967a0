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
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"gitlab.com/elixxir/blockwatch/conversation"
	"gitlab.com/elixxir/blockwatch/inbox"
	"gitlab.com/elixxir/blockwatch/intercept"
)

const inboxPage = `{"conversations": [
	{"data": {"conversationId": "3:5", "name": "Five",
		"lastActivityTimestamp": 100, "participants": [{"profileId": 5}]}}
]}`

func fastParams() Params {
	p := GetDefaultParams()
	p.UnblockSettle = 20 * time.Millisecond
	p.DeleteSettlePerConversation = 10 * time.Millisecond
	return p
}

func newTestRegistry(t *testing.T, tm *testManager) *intercept.Registry {
	reg := intercept.NewRegistry()
	require.NoError(t, tm.Install(reg))
	return reg
}

func noop(context.Context, []interface{}) (interface{}, error) {
	return nil, nil
}

func TestManager_Install(t *testing.T) {
	tm := newTestManager(t, GetDefaultParams())
	reg := newTestRegistry(t, tm)

	require.Equal(t, 1, reg.Count(FetchInboxKey, intercept.After))
	require.Equal(t, 1, reg.Count(UnblockKey, intercept.Before))
	require.Equal(t, 1, reg.Count(UnblockKey, intercept.After))
	require.Equal(t, 1, reg.Count(DeleteConversationsKey, intercept.Before))
	require.Equal(t, 1, reg.Count(DeleteConversationsKey, intercept.After))
	require.Equal(t, 1, reg.Count(DeletePluginKey, intercept.Before))
	require.Equal(t, 1, reg.Count(DeleteNotificationKey, intercept.Before))
}

func TestManager_Install_OldBehavior(t *testing.T) {
	params := GetDefaultParams()
	params.ForceOldBehavior = true
	tm := newTestManager(t, params)
	reg := newTestRegistry(t, tm)

	require.Len(t, tm.Bindings(), 1)
	require.Equal(t, 1, reg.Count(DeleteNotificationKey, intercept.Before))
	require.Zero(t, reg.Count(FetchInboxKey, intercept.After))
	require.Zero(t, reg.Count(DeletePluginKey, intercept.Before))

	// Redacted even while suppressed
	require.NoError(t, tm.Coordinator().Acquire(DeleteConversationsTag))
	var got interface{}
	_, err := reg.Call(context.Background(), DeleteNotificationKey,
		[]interface{}{[]string{"3:9"}},
		func(_ context.Context, args []interface{}) (interface{}, error) {
			got = args[0]
			return nil, nil
		})
	require.NoError(t, err)
	require.Equal(t, []string{}, got)
}

func TestManager_FetchInbox(t *testing.T) {
	tm := newTestManager(t, GetDefaultParams())
	tm.seed(t, record(5, 100, "Five"), record(9, 150, "Nine"))
	reg := newTestRegistry(t, tm)

	body := []byte(inboxPage)
	f := reg.CallAsync(context.Background(), FetchInboxKey, nil,
		func(context.Context, []interface{}) *intercept.Future {
			return intercept.Resolved(body, nil)
		})
	result, err := f.Await(context.Background())
	require.NoError(t, err)
	require.Equal(t, body, result)

	_, notifications := tm.dispatcher.sent()
	require.Len(t, notifications, 1)
	require.Equal(t, "You have been blocked by user Nine (9)",
		notifications[0].Body)
}

func TestManager_FetchInbox_Typed(t *testing.T) {
	tm := newTestManager(t, GetDefaultParams())
	tm.seed(t, record(5, 100, "Five"), record(9, 150, "Nine"))
	reg := newTestRegistry(t, tm)

	name := "Five"
	resp := &inbox.Response{Conversations: []inbox.Conversation{{
		Data: &inbox.ConversationData{
			ConversationID:        conversation.MakeID(viewer, 5),
			Name:                  &name,
			LastActivityTimestamp: 100,
		}}}}
	result, err := reg.Call(context.Background(), FetchInboxKey, nil,
		func(context.Context, []interface{}) (interface{}, error) {
			return resp, nil
		})
	require.NoError(t, err)
	require.Same(t, resp, result)
	require.Equal(t, 1, tm.lookup.numCalls())
}

func TestManager_FetchInbox_Errors(t *testing.T) {
	tm := newTestManager(t, GetDefaultParams())
	tm.seed(t, record(5, 100, "Five"), record(9, 150, "Nine"))
	reg := newTestRegistry(t, tm)

	expected := errors.New("connection reset")
	_, err := reg.Call(context.Background(), FetchInboxKey, nil,
		func(context.Context, []interface{}) (interface{}, error) {
			return nil, expected
		})
	require.Equal(t, expected, err)

	result, err := reg.Call(context.Background(), FetchInboxKey, nil,
		func(context.Context, []interface{}) (interface{}, error) {
			return []byte("<html>"), nil
		})
	require.NoError(t, err)
	require.Equal(t, []byte("<html>"), result)

	require.Zero(t, tm.lookup.numCalls())
}

func TestManager_Unblock(t *testing.T) {
	tm := newTestManager(t, fastParams())
	reg := newTestRegistry(t, tm)

	_, err := reg.Call(context.Background(), UnblockKey, []interface{}{int64(9)},
		func(context.Context, []interface{}) (interface{}, error) {
			require.False(t, tm.Coordinator().Detecting())
			require.Equal(t, UnblockTag, tm.Coordinator().Snapshot().CallerTag)
			return nil, nil
		})
	require.NoError(t, err)
	require.False(t, tm.Coordinator().Detecting())

	require.Eventually(t, tm.Coordinator().Detecting, time.Second,
		5*time.Millisecond)
}

func TestManager_Unblock_CompletionSignal(t *testing.T) {
	params := GetDefaultParams()
	params.UnblockSettle = time.Hour
	tm := newTestManager(t, params)
	reg := newTestRegistry(t, tm)

	_, err := reg.Call(context.Background(), UnblockKey, nil, noop)
	require.NoError(t, err)
	require.False(t, tm.Coordinator().Detecting())

	tm.CompletionSignal(UnblockTag)
	require.Eventually(t, tm.Coordinator().Detecting, time.Second,
		5*time.Millisecond)
}

// A second unblock while the first is still settling keeps the first flow's
// completion signal.
func TestManager_Unblock_ReentrantKeepsSignal(t *testing.T) {
	params := GetDefaultParams()
	params.UnblockSettle = time.Hour
	tm := newTestManager(t, params)
	reg := newTestRegistry(t, tm)

	_, err := reg.Call(context.Background(), UnblockKey, nil, noop)
	require.NoError(t, err)
	first := tm.signal(UnblockTag)
	require.NotNil(t, first)

	_, err = reg.Call(context.Background(), UnblockKey, nil, noop)
	require.NoError(t, err)
	require.Equal(t, first, tm.signal(UnblockTag))

	tm.CompletionSignal(UnblockTag)
	require.Eventually(t, tm.Coordinator().Detecting, time.Second,
		5*time.Millisecond)
}

// Unblocking a profile makes its conversations disappear; nothing is reported
// while the window is open.
func TestManager_Unblock_MasksRemoval(t *testing.T) {
	tm := newTestManager(t, fastParams())
	reg := newTestRegistry(t, tm)
	events, stop := startConsumer(t, tm)

	_, err := reg.Call(context.Background(), UnblockKey, nil,
		func(context.Context, []interface{}) (interface{}, error) {
			events <- deleteEvent(t, "3:9")
			return nil, nil
		})
	require.NoError(t, err)
	require.NoError(t, stop.Close())
	require.Zero(t, tm.lookup.numCalls())
}

func TestManager_DeleteConversations(t *testing.T) {
	tm := newTestManager(t, fastParams())
	reg := newTestRegistry(t, tm)

	pluginRan := false
	var notified interface{}
	_, err := reg.Call(context.Background(), DeleteConversationsKey,
		[]interface{}{[]string{"3:5", "3:9"}},
		func(ctx context.Context, args []interface{}) (interface{}, error) {
			require.False(t, tm.Coordinator().Detecting())

			// The host's own bookkeeping still runs
			_, err := reg.Call(ctx, DeletePluginKey, args,
				func(context.Context, []interface{}) (interface{}, error) {
					pluginRan = true
					return true, nil
				})
			require.NoError(t, err)

			// Removal notifications are not hidden during the deletion
			_, err = reg.Call(ctx, DeleteNotificationKey, args,
				func(_ context.Context, a []interface{}) (interface{}, error) {
					notified = a[0]
					return nil, nil
				})
			require.NoError(t, err)
			return nil, nil
		})
	require.NoError(t, err)
	require.True(t, pluginRan)
	require.Equal(t, []string{"3:5", "3:9"}, notified)

	require.False(t, tm.Coordinator().Detecting())
	require.Eventually(t, tm.Coordinator().Detecting, time.Second,
		5*time.Millisecond)
}

// An unblock started while the viewer's own deletion is in flight must not
// stop the deletion's bookkeeping.
func TestManager_DeleteConversations_UnblockDuring(t *testing.T) {
	tm := newTestManager(t, fastParams())
	reg := newTestRegistry(t, tm)

	pluginRan := false
	_, err := reg.Call(context.Background(), DeleteConversationsKey,
		[]interface{}{[]string{"3:9"}},
		func(ctx context.Context, args []interface{}) (interface{}, error) {
			_, err := reg.Call(ctx, UnblockKey, nil, noop)
			require.NoError(t, err)

			_, err = reg.Call(ctx, DeletePluginKey, args,
				func(context.Context, []interface{}) (interface{}, error) {
					pluginRan = true
					return true, nil
				})
			require.NoError(t, err)
			return nil, nil
		})
	require.NoError(t, err)
	require.True(t, pluginRan)

	require.Eventually(t, tm.Coordinator().Detecting, time.Second,
		5*time.Millisecond)
}

func TestManager_DeleteConversations_None(t *testing.T) {
	tm := newTestManager(t, fastParams())
	reg := newTestRegistry(t, tm)

	_, err := reg.Call(context.Background(), DeleteConversationsKey,
		[]interface{}{[]string{}}, noop)
	require.NoError(t, err)
	require.True(t, tm.Coordinator().Detecting())
}

func TestManager_DeletePlugin_Gated(t *testing.T) {
	tm := newTestManager(t, GetDefaultParams())
	reg := newTestRegistry(t, tm)
	require.NoError(t, tm.Coordinator().Acquire(UnblockTag))

	ran := false
	result, err := reg.Call(context.Background(), DeletePluginKey, nil,
		func(context.Context, []interface{}) (interface{}, error) {
			ran = true
			return true, nil
		})
	require.NoError(t, err)
	require.Nil(t, result)
	require.False(t, ran)
}

func TestManager_DeleteNotification_Redacted(t *testing.T) {
	tm := newTestManager(t, GetDefaultParams())
	reg := newTestRegistry(t, tm)

	for _, arg := range []interface{}{
		[]string{"3:9"}, []int64{9}, []interface{}{"3:9"}} {
		var got interface{}
		_, err := reg.Call(context.Background(), DeleteNotificationKey,
			[]interface{}{arg},
			func(_ context.Context, args []interface{}) (interface{}, error) {
				got = args[0]
				return nil, nil
			})
		require.NoError(t, err)
		require.Empty(t, got)
		require.IsType(t, arg, got)
	}
}
