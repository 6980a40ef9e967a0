////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package antiblock

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
	"gitlab.com/elixxir/blockwatch/conversation"
	"gitlab.com/elixxir/blockwatch/push"
	"gitlab.com/elixxir/blockwatch/stoppable"
)

const pushConsumerName = "AntiBlockPushConsumer"

// StartPushConsumer reads push events until the returned Stoppable is closed.
// Closing it waits up to Params.DrainTimeout for verifications that are
// already running.
//
// With ForceOldBehavior set no consumer is started and the returned Stoppable
// is already stopped.
func (m *Manager) StartPushConsumer(events <-chan push.Event) stoppable.Stoppable {
	if m.params.ForceOldBehavior {
		jww.INFO.Printf("[AntiBlock] Old behavior forced, not consuming " +
			"push events")
		return stoppable.NewStoppedSingle(pushConsumerName)
	}

	stop := stoppable.NewSingle(pushConsumerName)

	ctx, cancel := context.WithCancel(context.Background())
	wg := &sync.WaitGroup{}
	go m.consumePush(ctx, events, stop, wg)

	return stoppable.NewCleanup(stop, m.params.DrainTimeout,
		func(remaining time.Duration) error {
			defer cancel()
			drained := make(chan struct{})
			go func() {
				wg.Wait()
				close(drained)
			}()

			select {
			case <-drained:
				return nil
			case <-time.After(remaining):
				return errors.New("verifications still in flight after " +
					"drain timeout")
			}
		})
}

func (m *Manager) consumePush(ctx context.Context, events <-chan push.Event,
	stop *stoppable.Single, wg *sync.WaitGroup) {
	jww.DEBUG.Printf("[AntiBlock] Push consumer started")
	for {
		select {
		case <-stop.Quit():
			jww.DEBUG.Printf("[AntiBlock] Stopping push consumer")
			stop.ToStopped()
			return
		case e, ok := <-events:
			if !ok {
				jww.WARN.Printf("[AntiBlock] Push stream ended")
				<-stop.Quit()
				stop.ToStopped()
				return
			}
			m.handlePush(ctx, e, wg)
		}
	}
}

// handlePush filters a single push event and starts verification of its
// candidate.
func (m *Manager) handlePush(ctx context.Context, e push.Event,
	wg *sync.WaitGroup) {
	if !e.IsConversationDelete() {
		jww.TRACE.Printf("[AntiBlock] Ignoring push event %s", e.TypeValue)
		return
	}
	if !m.coord.Detecting() {
		jww.DEBUG.Printf("[AntiBlock] Ignoring conversation removal, " +
			"detection is suppressed")
		return
	}

	ids, err := e.ConversationIDs()
	if err != nil {
		jww.ERROR.Printf("[AntiBlock] Bad conversation removal event: %+v",
			err)
		return
	}
	other, ok := push.OtherParticipant(ids, m.params.ViewerID)
	if !ok {
		jww.WARN.Printf("[AntiBlock] No other participant in %v", ids)
		return
	}

	blocked, err := m.blocks.IsBlocked(ctx, other)
	if err != nil {
		jww.ERROR.Printf("[AntiBlock] Block list check for %d failed, "+
			"dropping: %+v", other, err)
		return
	} else if blocked {
		jww.DEBUG.Printf("[AntiBlock] %d is blocked by the viewer", other)
		return
	}

	removal := RemovalEvent{
		OtherParticipantID: other,
		ConversationID:     conversation.MakeID(m.params.ViewerID, other),
		Source:             PushNotification,
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		m.verify(ctx, removal)
	}()
}
