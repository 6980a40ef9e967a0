////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

// Package suppression gates block detection while a legitimate deletion is in
// flight.
//
// Every flow opens its own window, identified by its caller tag. Detection is
// enabled only while no window is open. A flow on the allow list keeps being
// admitted for as long as its window is open, even if other flows open windows
// on top of it.
package suppression

import (
	"sync"
	"time"

	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
)

var (
	// ErrReentrant is returned when a flow acquires a window it already owns.
	ErrReentrant = errors.New("suppression already held by this caller")

	// ErrNotSuppressed is returned when releasing while detection is active.
	ErrNotSuppressed = errors.New("detection is not suppressed")

	// ErrTagMismatch is returned when releasing a window the flow does not
	// own while other flows hold theirs.
	ErrTagMismatch = errors.New("suppression is owned by another caller")
)

// State is a point in time copy of the coordinator state.
type State struct {
	// Active is true when detection is enabled.
	Active bool

	// CallerTag names the flow that opened the most recent window still
	// open. Empty when Active.
	CallerTag string

	// Holders lists the tags with an open window in the order they were
	// acquired.
	Holders []string
}

// Coordinator is the suppression state machine.
type Coordinator struct {
	// holders are the tags with an open window, oldest first
	holders []string

	// allowed holds the tags that may still run their own bookkeeping while
	// they hold a window.
	allowed map[string]struct{}

	mux sync.Mutex
}

// NewCoordinator returns an active Coordinator. Flows tagged with one of the
// allowed tags are admitted by Admit while their window is open.
func NewCoordinator(allowed ...string) *Coordinator {
	c := &Coordinator{
		allowed: make(map[string]struct{}, len(allowed)),
	}
	for _, tag := range allowed {
		c.allowed[tag] = struct{}{}
	}
	return c
}

// Acquire opens a suppression window owned by tag.
func (c *Coordinator) Acquire(tag string) error {
	c.mux.Lock()
	defer c.mux.Unlock()

	if c.indexOf(tag) >= 0 {
		return errors.WithMessagef(ErrReentrant, "acquire %q", tag)
	}
	if len(c.holders) > 0 {
		jww.DEBUG.Printf("[Suppression] %q opens a window while %v hold "+
			"theirs", tag, c.holders)
	}

	c.holders = append(c.holders, tag)
	jww.DEBUG.Printf("[Suppression] Detection suppressed by %q", tag)
	return nil
}

// Release closes the window owned by tag. Detection is re-enabled once no
// window is left open.
func (c *Coordinator) Release(tag string) error {
	c.mux.Lock()
	defer c.mux.Unlock()

	if len(c.holders) == 0 {
		return errors.WithMessagef(ErrNotSuppressed, "release %q", tag)
	}
	i := c.indexOf(tag)
	if i < 0 {
		return errors.WithMessagef(ErrTagMismatch, "release %q while %v "+
			"hold the window", tag, c.holders)
	}

	c.holders = append(c.holders[:i], c.holders[i+1:]...)
	if len(c.holders) > 0 {
		jww.DEBUG.Printf("[Suppression] %q released, still suppressed by %v",
			tag, c.holders)
		return nil
	}
	jww.DEBUG.Printf("[Suppression] Detection re-enabled by %q", tag)
	return nil
}

func (c *Coordinator) indexOf(tag string) int {
	for i, h := range c.holders {
		if h == tag {
			return i
		}
	}
	return -1
}

// ReleaseAfter releases the window owned by tag once delay has elapsed. It
// never blocks the caller. The returned channel receives the result of the
// release.
//
// The delay only approximates the time the deletion needs to propagate.
func (c *Coordinator) ReleaseAfter(tag string, delay time.Duration) <-chan error {
	return c.ReleaseWhen(tag, nil, delay)
}

// ReleaseWhen releases the window owned by tag once done is closed, or after
// fallback if done never closes. A nil done waits for the fallback only. It
// never blocks the caller.
func (c *Coordinator) ReleaseWhen(tag string, done <-chan struct{},
	fallback time.Duration) <-chan error {
	result := make(chan error, 1)
	go func() {
		timer := time.NewTimer(fallback)
		defer timer.Stop()

		select {
		case <-done:
			jww.TRACE.Printf("[Suppression] Completion signal for %q", tag)
		case <-timer.C:
			if done != nil {
				jww.DEBUG.Printf("[Suppression] No completion signal for "+
					"%q after %s, releasing anyway", tag, fallback)
			}
		}

		err := c.Release(tag)
		if err != nil {
			jww.WARN.Printf("[Suppression] Deferred release: %+v", err)
		}
		result <- err
	}()
	return result
}

// Detecting returns true if detection is enabled. The read is best effort; the
// state may change right after it returns.
func (c *Coordinator) Detecting() bool {
	c.mux.Lock()
	defer c.mux.Unlock()
	return len(c.holders) == 0
}

// Admit returns true if a producer may proceed: detection is enabled, or an
// allowed tag holds an open window.
func (c *Coordinator) Admit() bool {
	c.mux.Lock()
	defer c.mux.Unlock()

	if len(c.holders) == 0 {
		return true
	}
	for _, h := range c.holders {
		if _, ok := c.allowed[h]; ok {
			return true
		}
	}
	return false
}

// Snapshot returns the current state.
func (c *Coordinator) Snapshot() State {
	c.mux.Lock()
	defer c.mux.Unlock()

	if len(c.holders) == 0 {
		return State{Active: true}
	}
	return State{
		CallerTag: c.holders[len(c.holders)-1],
		Holders:   append([]string(nil), c.holders...),
	}
}
