////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package stoppable

import (
	"sync"

	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
)

// Single stops one goroutine. The goroutine selects on Quit and calls
// ToStopped on its way out, which closes Done.
type Single struct {
	name   string
	quit   chan struct{}
	done   chan struct{}
	status Status
	mux    sync.Mutex
}

// NewSingle returns a new running Single.
func NewSingle(name string) *Single {
	return &Single{
		name:   name,
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
		status: Running,
	}
}

// NewStoppedSingle returns a Single for a goroutine that was never started.
func NewStoppedSingle(name string) *Single {
	s := NewSingle(name)
	close(s.quit)
	close(s.done)
	s.status = Stopped
	return s
}

// Name returns the name of the Single.
func (s *Single) Name() string {
	return s.name
}

// GetStatus returns the status of the Single.
func (s *Single) GetStatus() Status {
	s.mux.Lock()
	defer s.mux.Unlock()
	return s.status
}

// IsRunning returns true if the Single is running.
func (s *Single) IsRunning() bool {
	return s.GetStatus() == Running
}

// IsStopping returns true if the Single was told to quit but its goroutine
// has not returned yet.
func (s *Single) IsStopping() bool {
	return s.GetStatus() == Stopping
}

// IsStopped returns true once the goroutine reported ToStopped.
func (s *Single) IsStopped() bool {
	return s.GetStatus() == Stopped
}

// Quit returns a channel that is closed when the Single is told to stop.
func (s *Single) Quit() <-chan struct{} {
	return s.quit
}

// Done returns a channel that is closed once the goroutine has stopped.
func (s *Single) Done() <-chan struct{} {
	return s.done
}

// Close tells the goroutine to quit. It does not wait for it. Returns an error
// if the Single is not running.
func (s *Single) Close() error {
	s.mux.Lock()
	defer s.mux.Unlock()

	if s.status != Running {
		err := errors.Errorf("cannot stop %q, it is %s", s.name, s.status)
		jww.ERROR.Print(err.Error())
		return err
	}
	s.status = Stopping
	close(s.quit)
	jww.TRACE.Printf("Told %q to stop", s.name)
	return nil
}

// ToStopped is called by the goroutine when it returns. Panics if the Single
// was not told to stop first.
func (s *Single) ToStopped() {
	s.mux.Lock()
	defer s.mux.Unlock()

	if s.status != Stopping {
		jww.FATAL.Panicf("%q reported stopped while %s", s.name, s.status)
	}
	s.status = Stopped
	close(s.done)
	jww.TRACE.Printf("%q stopped", s.name)
}
