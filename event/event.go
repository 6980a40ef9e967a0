////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

// Package event records block and unblock detections and hands them to
// registered callbacks on a background goroutine.
package event

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
	"gitlab.com/elixxir/blockwatch/stoppable"
)

// eventQueueSize is the number of events buffered before Report drops them.
const eventQueueSize = 1000

// BlockEvent is the structured log record of a single detection.
type BlockEvent struct {
	ID          uuid.UUID `json:"id"`
	ProfileID   int64     `json:"profileId"`
	DisplayName string    `json:"displayName"`
	Blocked     bool      `json:"blocked"`
	Source      string    `json:"source"`
	Timestamp   time.Time `json:"timestamp"`
}

// NewBlockEvent builds a BlockEvent with a fresh ID stamped with the current
// time.
func NewBlockEvent(profileID int64, displayName string, blocked bool,
	source string) BlockEvent {
	return BlockEvent{
		ID:          uuid.New(),
		ProfileID:   profileID,
		DisplayName: displayName,
		Blocked:     blocked,
		Source:      source,
		Timestamp:   time.Now(),
	}
}

// String stringer interface implementation
func (e BlockEvent) String() string {
	kind := "Unblocked"
	if e.Blocked {
		kind = "Blocked"
	}
	return fmt.Sprintf("BlockEvent(%s, %s, %d, %q, %s)", e.ID, kind,
		e.ProfileID, e.DisplayName, e.Source)
}

// Holds state for the event reporting system
type eventManager struct {
	eventCh  chan BlockEvent
	eventCbs sync.Map
}

// NewEventManager returns a Manager. Events are only delivered once
// EventService is running.
func NewEventManager() Manager {
	return &eventManager{
		eventCh: make(chan BlockEvent, eventQueueSize),
	}
}

// Report queues the event. It never blocks; the event is logged and dropped if
// the queue is full.
func (e *eventManager) Report(evt BlockEvent) {
	if evt.ID == uuid.Nil {
		evt.ID = uuid.New()
	}
	select {
	case e.eventCh <- evt:
		jww.TRACE.Printf("Event reported: %s", evt)
	default:
		jww.ERROR.Printf("Event Queue full, unable to report: %s", evt)
	}
}

// RegisterEventCallback records the given function to receive BlockEvent
// objects under a unique name.
func (e *eventManager) RegisterEventCallback(name string, cb Callback) error {
	_, existsAlready := e.eventCbs.LoadOrStore(name, cb)
	if existsAlready {
		return errors.Errorf("Key %s already exists as event callback",
			name)
	}
	return nil
}

// UnregisterEventCallback deletes the callback registered under name.
func (e *eventManager) UnregisterEventCallback(name string) {
	e.eventCbs.Delete(name)
}

// EventService starts delivering queued events.
func (e *eventManager) EventService() (stoppable.Stoppable, error) {
	stop := stoppable.NewSingle("EventReporting")
	go e.reportEventsHandler(stop)
	return stop, nil
}

// reportEventsHandler reports events to every registered event callback
func (e *eventManager) reportEventsHandler(stop *stoppable.Single) {
	jww.DEBUG.Print("reportEventsHandler routine started")
	for {
		select {
		case <-stop.Quit():
			jww.DEBUG.Printf("Stopping reportEventsHandler")
			stop.ToStopped()
			return
		case evt := <-e.eventCh:
			jww.TRACE.Printf("Received event: %s", evt)
			e.eventCbs.Range(func(name, cb interface{}) bool {
				cb.(Callback)(evt)
				return true
			})
		}
	}
}
