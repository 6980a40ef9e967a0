////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package intercept

import (
	"context"
	"sync"
)

// Future is the pending result of an asynchronous operation. It resolves
// exactly once.
type Future struct {
	done  chan struct{}
	once  sync.Once
	value interface{}
	err   error
}

// NewFuture returns an unresolved Future.
func NewFuture() *Future {
	return &Future{done: make(chan struct{})}
}

// Resolved returns a Future that is already resolved with the given result.
func Resolved(value interface{}, err error) *Future {
	f := NewFuture()
	f.Resolve(value, err)
	return f
}

// Resolve sets the result and wakes every waiter. Returns false if the Future
// was already resolved, in which case the result is unchanged.
func (f *Future) Resolve(value interface{}, err error) bool {
	resolved := false
	f.once.Do(func() {
		f.value, f.err = value, err
		close(f.done)
		resolved = true
	})
	return resolved
}

// Done returns a channel that is closed once the Future resolves.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Result blocks until the Future resolves and returns its result.
func (f *Future) Result() (interface{}, error) {
	<-f.done
	return f.value, f.err
}

// Await blocks until the Future resolves or ctx is done.
func (f *Future) Await(ctx context.Context) (interface{}, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
