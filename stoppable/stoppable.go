////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

// Package stoppable stops long-lived goroutines such as the push consumer and
// the event reporter.
package stoppable

import (
	"strconv"
	"time"

	"github.com/pkg/errors"
)

// Error message.
const timeoutErr = "timed out after %s waiting for %q to stop"

// Interval between status checks in WaitForStopped.
const pollInterval = time.Millisecond

// Stoppable stops a goroutine.
type Stoppable interface {
	Name() string
	GetStatus() Status
	IsRunning() bool
	IsStopping() bool
	IsStopped() bool
	Close() error
}

// Status is the lifecycle state of a Stoppable.
type Status uint32

const (
	Running Status = iota
	Stopping
	Stopped
)

// String returns a human-readable name for the Status.
func (s Status) String() string {
	switch s {
	case Running:
		return "running"
	case Stopping:
		return "stopping"
	case Stopped:
		return "stopped"
	default:
		return "INVALID STATUS: " + strconv.FormatUint(uint64(s), 10)
	}
}

// doneNotifier is a Stoppable that can signal when it has stopped.
type doneNotifier interface {
	Done() <-chan struct{}
}

// WaitForStopped waits until s reports Stopped or timeout elapses. Stoppables
// without a Done channel are polled.
func WaitForStopped(s Stoppable, timeout time.Duration) error {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	if dn, ok := s.(doneNotifier); ok {
		select {
		case <-dn.Done():
			return nil
		case <-deadline.C:
			return errors.Errorf(timeoutErr, timeout, s.Name())
		}
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for !s.IsStopped() {
		select {
		case <-deadline.C:
			return errors.Errorf(timeoutErr, timeout, s.Name())
		case <-ticker.C:
		}
	}
	return nil
}
