////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package antiblock

import (
	"sync"
	"time"
)

type seenKey struct {
	profileID int64
	blocked   bool
}

// seenSet remembers recent outcomes so the inbox and push paths do not both
// notify about the same removal.
type seenSet struct {
	window time.Duration
	seen   map[seenKey]time.Time
	mux    sync.Mutex
}

func newSeenSet(window time.Duration) *seenSet {
	return &seenSet{
		window: window,
		seen:   make(map[seenKey]time.Time),
	}
}

// add records the outcome and returns false if an equal one was recorded
// inside the window.
func (s *seenSet) add(o Outcome, now time.Time) bool {
	if s.window <= 0 {
		return true
	}

	s.mux.Lock()
	defer s.mux.Unlock()

	for k, t := range s.seen {
		if now.Sub(t) >= s.window {
			delete(s.seen, k)
		}
	}

	k := seenKey{profileID: o.ProfileID, blocked: o.WasBlocked}
	if _, exists := s.seen[k]; exists {
		return false
	}
	s.seen[k] = now
	return true
}
