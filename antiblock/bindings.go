////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package antiblock

import (
	"context"
	"time"

	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
	"gitlab.com/elixxir/blockwatch/conversation"
	"gitlab.com/elixxir/blockwatch/inbox"
	"gitlab.com/elixxir/blockwatch/intercept"
	"gitlab.com/elixxir/blockwatch/suppression"
)

// Caller tags of the flows that suppress detection.
const (
	UnblockTag             = "individualUnblock"
	DeleteConversationsTag = "inboxDeleteConversations"
)

// Intercepted host operations.
var (
	FetchInboxKey = intercept.Key{
		Target: "ChatRestService", Operation: "fetchInbox"}
	UnblockKey = intercept.Key{
		Target: "IndividualUnblockViewModel", Operation: "unblock"}
	DeleteConversationsKey = intercept.Key{
		Target: "InboxFragment", Operation: "deleteConversations"}
	DeletePluginKey = intercept.Key{
		Target: "ChatDeleteConversationPlugin", Operation: "deleteConversations"}
	DeleteNotificationKey = intercept.Key{
		Target: "ConversationDeleteNotification", Operation: "<init>"}
)

// Bindings returns the interception table. With ForceOldBehavior it only
// holds the binding that hides every conversation removal notification.
func (m *Manager) Bindings() []intercept.Binding {
	redact := intercept.Binding{
		Key: DeleteNotificationKey, Stage: intercept.Before,
		Name: "redactRemovalNotification", Hook: m.redactNotification,
	}
	if m.params.ForceOldBehavior {
		return []intercept.Binding{redact}
	}

	return []intercept.Binding{
		{Key: FetchInboxKey, Stage: intercept.After,
			Name: "inboxDiff", Hook: m.observeInbox},
		{Key: UnblockKey, Stage: intercept.Before,
			Name: "suppressUnblock", Hook: m.suppress(UnblockTag)},
		{Key: UnblockKey, Stage: intercept.After,
			Name: "releaseUnblock", Hook: m.releaseUnblock},
		{Key: DeleteConversationsKey, Stage: intercept.Before,
			Name: "suppressDelete", Hook: m.suppress(DeleteConversationsTag)},
		{Key: DeleteConversationsKey, Stage: intercept.After,
			Name: "releaseDelete", Hook: m.releaseDelete},
		{Key: DeletePluginKey, Stage: intercept.Before,
			Name: "gateDeletePlugin", Hook: m.gateDeletePlugin},
		redact,
	}
}

// Install installs the bindings into the registry.
func (m *Manager) Install(reg *intercept.Registry) error {
	err := reg.Install(m.Bindings()...)
	if err != nil {
		return errors.WithMessage(err, "failed to install anti block bindings")
	}
	jww.INFO.Printf("[AntiBlock] Installed bindings (old behavior: %t)",
		m.params.ForceOldBehavior)
	return nil
}

// observeInbox runs the inbox diff on the fetched page. The result of the
// fetch is always delivered unchanged.
func (m *Manager) observeInbox(ctx context.Context, p *intercept.Param) error {
	if p.Err() != nil {
		return nil
	}

	var page []conversation.Record
	switch body := p.Result().(type) {
	case []byte:
		records, err := inbox.Decode(body, m.params.ViewerID)
		if err != nil {
			jww.ERROR.Printf("[AntiBlock] Failed to decode inbox page: %+v",
				err)
			return nil
		}
		page = records
	case *inbox.Response:
		if body == nil {
			return nil
		}
		page = body.Records(m.params.ViewerID)
	case inbox.Response:
		page = body.Records(m.params.ViewerID)
	default:
		jww.WARN.Printf("[AntiBlock] Unexpected inbox result type %T", body)
		return nil
	}

	if _, err := m.HandleInboxPage(ctx, page); err != nil {
		jww.ERROR.Printf("[AntiBlock] Inbox diff failed: %+v", err)
	}
	return nil
}

func (m *Manager) suppress(tag string) intercept.Hook {
	return func(context.Context, *intercept.Param) error {
		err := m.coord.Acquire(tag)
		if errors.Is(err, suppression.ErrReentrant) {
			// The running flow keeps its completion signal
			jww.WARN.Printf("[AntiBlock] %q started while already in "+
				"progress", tag)
			return nil
		}
		m.resetSignal(tag)
		return nil
	}
}

func (m *Manager) releaseUnblock(context.Context, *intercept.Param) error {
	m.coord.ReleaseWhen(UnblockTag, m.signal(UnblockTag),
		m.params.UnblockSettle)
	return nil
}

// releaseDelete releases the deletion window once the server had time to
// process every deleted conversation. Deleting nothing releases right away.
func (m *Manager) releaseDelete(_ context.Context, p *intercept.Param) error {
	n := countArg(p.Arg(0))
	if n == 0 {
		if err := m.coord.Release(DeleteConversationsTag); err != nil {
			jww.WARN.Printf("[AntiBlock] Release after empty delete: %+v", err)
		}
		return nil
	}
	m.coord.ReleaseWhen(DeleteConversationsTag,
		m.signal(DeleteConversationsTag),
		time.Duration(n)*m.params.DeleteSettlePerConversation)
	return nil
}

// gateDeletePlugin turns the delete plugin into a no-op while a flow that is
// not on the allow list suppresses detection.
func (m *Manager) gateDeletePlugin(_ context.Context, p *intercept.Param) error {
	if m.coord.Admit() {
		return nil
	}
	jww.DEBUG.Printf("[AntiBlock] Skipping delete plugin, suppressed by %v",
		m.coord.Snapshot().Holders)
	p.SetResult(nil)
	return nil
}

// redactNotification empties the participant list of a conversation removal
// notification so the host does not act on a removal it cannot explain.
func (m *Manager) redactNotification(_ context.Context, p *intercept.Param) error {
	if !m.params.ForceOldBehavior && !m.coord.Detecting() {
		return nil
	}
	switch p.Arg(0).(type) {
	case []string:
		p.SetArg(0, []string{})
	case []int64:
		p.SetArg(0, []int64{})
	default:
		p.SetArg(0, []interface{}{})
	}
	return nil
}

// countArg returns the number of conversations passed to a delete call.
func countArg(arg interface{}) int {
	switch v := arg.(type) {
	case []string:
		return len(v)
	case []int64:
		return len(v)
	case []interface{}:
		return len(v)
	case int:
		return v
	default:
		return 0
	}
}
