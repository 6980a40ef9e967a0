////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package stoppable

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
)

// Cleanup wraps a Stoppable and runs a cleanup function once it has stopped,
// for example to drain work the goroutine handed off. Stopping and cleanup
// share the timeout. The cleanup does not run if the goroutine does not stop
// in time.
type Cleanup struct {
	stop    Stoppable
	timeout time.Duration

	// clean receives how much of the timeout is left
	clean func(remaining time.Duration) error

	status Status
	once   sync.Once
}

// NewCleanup creates a new Cleanup from the passed stoppable and function.
func NewCleanup(stop Stoppable, timeout time.Duration,
	clean func(remaining time.Duration) error) *Cleanup {
	return &Cleanup{
		stop:    stop,
		timeout: timeout,
		clean:   clean,
		status:  Running,
	}
}

// Name returns the name of the stoppable denoting it has cleanup.
func (c *Cleanup) Name() string {
	return c.stop.Name() + " with cleanup"
}

// GetStatus returns the status of the Cleanup.
func (c *Cleanup) GetStatus() Status {
	return Status(atomic.LoadUint32((*uint32)(&c.status)))
}

// IsRunning returns true until Close is called.
func (c *Cleanup) IsRunning() bool {
	return c.GetStatus() == Running
}

// IsStopping returns true while Close is stopping or cleaning up.
func (c *Cleanup) IsStopping() bool {
	return c.GetStatus() == Stopping
}

// IsStopped returns true once Close has returned.
func (c *Cleanup) IsStopped() bool {
	return c.GetStatus() == Stopped
}

// Close stops the wrapped stoppable, waits for it to stop and then runs the
// cleanup with the remaining time.
func (c *Cleanup) Close() error {
	err := errors.Errorf("%s already closed", c.Name())

	c.once.Do(func() {
		err = nil
		atomic.StoreUint32((*uint32)(&c.status), uint32(Stopping))
		defer atomic.StoreUint32((*uint32)(&c.status), uint32(Stopped))
		start := time.Now()

		if err = c.stop.Close(); err != nil {
			err = errors.WithMessagef(err, "Cleanup for %s not executed",
				c.stop.Name())
			return
		}
		if err = WaitForStopped(c.stop, c.timeout); err != nil {
			err = errors.WithMessagef(err, "Cleanup for %s not executed",
				c.stop.Name())
			return
		}

		remaining := c.timeout - time.Since(start)
		if remaining < 0 {
			remaining = 0
		}

		complete := make(chan error, 1)
		go func() {
			complete <- c.clean(remaining)
		}()

		timer := time.NewTimer(remaining)
		defer timer.Stop()

		select {
		case cerr := <-complete:
			if cerr != nil {
				err = errors.WithMessagef(cerr, "Cleanup for %s failed",
					c.stop.Name())
			}
		case <-timer.C:
			err = errors.Errorf("Clean up for %s timeout", c.stop.Name())
		}
	})

	if err != nil {
		jww.ERROR.Print(err.Error())
	}
	return err
}
