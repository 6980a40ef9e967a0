////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

// Package antiblock detects when another user blocks or unblocks the viewer
// and tells the viewer about it.
//
// Removals are observed from two sources: conversations missing from a server
// inbox page, and conversation removal push events. Each candidate is checked
// against the viewer's own block list and then verified with a profile lookup.
// Removals caused by the viewer (deleting a conversation, unblocking someone)
// are masked by the suppression coordinator.
package antiblock

import (
	"context"
	"sync"
	"time"

	jww "github.com/spf13/jwalterweatherman"
	"gitlab.com/elixxir/blockwatch/conversation"
	"gitlab.com/elixxir/blockwatch/delta"
	"gitlab.com/elixxir/blockwatch/event"
	"gitlab.com/elixxir/blockwatch/profile"
	"gitlab.com/elixxir/blockwatch/suppression"
)

// Cache is the local conversation cache.
type Cache interface {
	delta.Cache

	// Get returns a single conversation by its composite ID.
	Get(ctx context.Context, conversationID string) (conversation.Record, error)
}

// Manager wires detection, verification and dispatch together.
type Manager struct {
	params Params

	cache      Cache
	blocks     delta.BlockList
	lookup     profile.Lookup
	dispatcher Dispatcher
	events     event.Reporter

	coord *suppression.Coordinator
	seen  *seenSet

	signals   map[string]*completion
	signalMux sync.Mutex
}

// completion is a one shot signal that a suppressed flow finished.
type completion struct {
	ch   chan struct{}
	once sync.Once
}

func (c *completion) fire() {
	c.once.Do(func() { close(c.ch) })
}

// NewManager returns a Manager. events may be nil.
func NewManager(params Params, cache Cache, blocks delta.BlockList,
	lookup profile.Lookup, dispatcher Dispatcher,
	events event.Reporter) *Manager {
	return &Manager{
		params:     params,
		cache:      cache,
		blocks:     blocks,
		lookup:     lookup,
		dispatcher: dispatcher,
		events:     events,
		coord:      suppression.NewCoordinator(DeleteConversationsTag),
		seen:       newSeenSet(params.DedupWindow),
		signals:    make(map[string]*completion),
	}
}

// Coordinator returns the suppression coordinator used by the bindings.
func (m *Manager) Coordinator() *suppression.Coordinator {
	return m.coord
}

// CompletionSignal reports that the flow tagged with tag has finished on the
// server, for example when the websocket acknowledgment arrives. The window is
// then released without waiting for the settle delay.
func (m *Manager) CompletionSignal(tag string) {
	m.signalMux.Lock()
	c, exists := m.signals[tag]
	m.signalMux.Unlock()

	if !exists {
		jww.DEBUG.Printf("[AntiBlock] Completion signal for %q with no "+
			"flow in progress", tag)
		return
	}
	c.fire()
}

// resetSignal arms a fresh completion signal for tag.
func (m *Manager) resetSignal(tag string) {
	m.signalMux.Lock()
	defer m.signalMux.Unlock()
	m.signals[tag] = &completion{ch: make(chan struct{})}
}

// signal returns the channel closed by CompletionSignal for tag, or nil.
func (m *Manager) signal(tag string) <-chan struct{} {
	m.signalMux.Lock()
	defer m.signalMux.Unlock()
	if c, exists := m.signals[tag]; exists {
		return c.ch
	}
	return nil
}

// HandleInboxPage compares a server inbox page with the local cache and
// notifies the viewer of every missing participant whose profile no longer
// resolves. It runs synchronously and returns the dispatched outcomes.
func (m *Manager) HandleInboxPage(ctx context.Context,
	page []conversation.Record) ([]Outcome, error) {
	if m.params.ForceOldBehavior {
		return nil, nil
	}
	if !m.coord.Detecting() {
		jww.DEBUG.Printf("[AntiBlock] Skipping inbox diff, detection " +
			"is suppressed")
		return nil, nil
	}

	res, err := delta.Detect(ctx, page, m.cache, m.params.ViewerID)
	if err != nil {
		jww.ERROR.Printf("[AntiBlock] Inbox diff failed: %+v", err)
		return nil, err
	}
	if res.Skipped {
		return nil, nil
	}
	if len(res.Added) > 0 {
		jww.DEBUG.Printf("[AntiBlock] Inbox page since %d has %d new "+
			"participants: %v", res.Boundary, len(res.Added), res.Added)
	}

	candidates := delta.Exclude(ctx, res.Missing, m.blocks)
	if len(candidates) == 0 {
		return nil, nil
	}
	jww.INFO.Printf("[AntiBlock] %d conversations missing from inbox "+
		"page since %d: %v", len(candidates), res.Boundary, candidates)

	outcomes := make([]Outcome, 0, len(candidates))
	for _, id := range candidates {
		o, ok := m.verify(ctx, RemovalEvent{
			OtherParticipantID: id,
			ConversationID:     conversation.MakeID(m.params.ViewerID, id),
			Source:             InboxDiff,
		})
		if ok {
			outcomes = append(outcomes, o)
		}
	}
	return outcomes, nil
}

// verify looks the profile up and dispatches the outcome. It returns false if
// nothing was dispatched.
func (m *Manager) verify(ctx context.Context, e RemovalEvent) (Outcome, bool) {
	res, err := m.lookup.Lookup(ctx, e.OtherParticipantID)
	if err != nil {
		jww.ERROR.Printf("[AntiBlock] Profile lookup for %d (%s) failed: "+
			"%+v", e.OtherParticipantID, e.Source, err)
		return Outcome{}, false
	}

	var name string
	if res.Found {
		if e.Source == InboxDiff {
			jww.INFO.Printf("[AntiBlock] Profile %d still resolves, "+
				"treating missing conversation as normal state",
				e.OtherParticipantID)
			return Outcome{}, false
		}
		name = res.DisplayName
	} else {
		name = m.cachedName(ctx, e.ConversationID)
	}

	o := Outcome{
		ProfileID:   e.OtherParticipantID,
		DisplayName: FormatDisplayName(name, e.OtherParticipantID),
		WasBlocked:  !res.Found,
	}
	return o, m.dispatch(o, e.Source)
}

// cachedName returns the name stored for the conversation, or "" if there is
// none.
func (m *Manager) cachedName(ctx context.Context, conversationID string) string {
	r, err := m.cache.Get(ctx, conversationID)
	if err != nil {
		jww.DEBUG.Printf("[AntiBlock] No cached name for %s: %v",
			conversationID, err)
		return ""
	}
	return r.DisplayName
}

// dispatch reports and shows the outcome unless an equal one was shown
// recently.
func (m *Manager) dispatch(o Outcome, source Source) bool {
	if !m.seen.add(o, time.Now()) {
		jww.DEBUG.Printf("[AntiBlock] Dropping duplicate outcome for %d "+
			"(blocked: %t) from %s", o.ProfileID, o.WasBlocked, source)
		return false
	}

	jww.INFO.Printf("[AntiBlock] %s (blocked: %t, source: %s)",
		o.DisplayName, o.WasBlocked, source)

	if m.events != nil {
		m.events.Report(event.NewBlockEvent(o.ProfileID, o.DisplayName,
			o.WasBlocked, source.String()))
	}

	if m.params.UseToasts {
		m.dispatcher.Toast(ToastText(o))
		return true
	}
	if err := m.dispatcher.Notify(NewNotification(o)); err != nil {
		jww.ERROR.Printf("[AntiBlock] Failed to post notification for %d: "+
			"%+v", o.ProfileID, err)
	}
	return true
}
