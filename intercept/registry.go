////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

// Package intercept runs hooks before, after or instead of operations of the
// host that are otherwise opaque. The host adapter routes every designated
// call through a Registry; hooks are installed once from a declarative table of
// Binding values.
package intercept

import (
	"context"
	"fmt"
	"sync"

	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
)

// Stage is the point relative to the real implementation at which a hook runs.
type Stage uint8

const (
	// Before hooks run before the real implementation. They may rewrite
	// arguments or force a result.
	Before Stage = iota
	// After hooks run once the real implementation, including asynchronous
	// resolution, has completed.
	After
	// Replace substitutes the real implementation. At most one per Key.
	Replace
)

// String returns a human-readable name for the Stage.
func (s Stage) String() string {
	switch s {
	case Before:
		return "Before"
	case After:
		return "After"
	case Replace:
		return "Replace"
	default:
		return fmt.Sprintf("INVALID STAGE %d", uint8(s))
	}
}

// Key identifies an intercepted operation.
type Key struct {
	Target    string
	Operation string
}

// String returns "Target.Operation".
func (k Key) String() string {
	return k.Target + "." + k.Operation
}

// Hook is the logic run at an interception point. A returned error, or a
// panic, is logged and the edits the hook made to the Param are discarded.
type Hook func(ctx context.Context, p *Param) error

// Binding is one row of the interception table.
type Binding struct {
	Key   Key
	Stage Stage
	Name  string
	Hook  Hook
}

// Operation is a synchronous host operation.
type Operation func(ctx context.Context, args []interface{}) (interface{}, error)

// AsyncOperation is a host operation whose result resolves later.
type AsyncOperation func(ctx context.Context, args []interface{}) *Future

type hookRecord struct {
	name string
	hook Hook
}

type chain struct {
	before  []hookRecord
	after   []hookRecord
	replace *hookRecord
}

// Registry maps each intercepted Key to its hooks.
type Registry struct {
	chains map[Key]*chain
	mux    sync.RWMutex
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{chains: make(map[Key]*chain)}
}

// Install adds every binding in order. Nothing is installed if any binding is
// invalid.
func (r *Registry) Install(bindings ...Binding) error {
	r.mux.Lock()
	defer r.mux.Unlock()

	replaces := make(map[Key]string)
	for i, b := range bindings {
		if b.Hook == nil {
			return errors.Errorf("binding %d (%s) on %s has a nil hook",
				i, b.Name, b.Key)
		}
		if b.Stage > Replace {
			return errors.Errorf("binding %d (%s) on %s has invalid stage %s",
				i, b.Name, b.Key, b.Stage)
		}
		if b.Stage != Replace {
			continue
		}
		if c, ok := r.chains[b.Key]; ok && c.replace != nil {
			return errors.Errorf("cannot install replacement %s on %s: "+
				"%s is already installed", b.Name, b.Key, c.replace.name)
		}
		if existing, ok := replaces[b.Key]; ok {
			return errors.Errorf("cannot install replacement %s on %s: "+
				"%s is already installed", b.Name, b.Key, existing)
		}
		replaces[b.Key] = b.Name
	}

	for _, b := range bindings {
		c, ok := r.chains[b.Key]
		if !ok {
			c = &chain{}
			r.chains[b.Key] = c
		}
		rec := hookRecord{name: b.Name, hook: b.Hook}
		switch b.Stage {
		case Before:
			c.before = append(c.before, rec)
		case After:
			c.after = append(c.after, rec)
		case Replace:
			c.replace = &rec
		}
		jww.DEBUG.Printf("[Intercept] Installed %s hook %s on %s",
			b.Stage, b.Name, b.Key)
	}
	return nil
}

// Count returns the number of hooks installed on the key at the given stage.
func (r *Registry) Count(key Key, stage Stage) int {
	c := r.lookup(key)
	switch stage {
	case Before:
		return len(c.before)
	case After:
		return len(c.after)
	case Replace:
		if c.replace != nil {
			return 1
		}
	}
	return 0
}

// Call runs real for the operation identified by key, surrounded by its hooks.
// An error from real is returned unchanged.
func (r *Registry) Call(ctx context.Context, key Key, args []interface{},
	real Operation) (interface{}, error) {
	c := r.lookup(key)
	p := newParam(key, args)

	if r.runBefore(ctx, c, p) {
		return p.result, p.err
	}

	var replaced bool
	p.result, replaced, p.err = r.execute(ctx, c, p, real)
	realResult, realErr := p.result, p.err
	if realErr != nil {
		logInvocationError(key, c, replaced, realErr)
	}

	r.runAfter(ctx, c, p)

	if realErr != nil {
		return realResult, realErr
	}
	return p.result, p.err
}

// CallAsync is Call for operations that resolve later. Before hooks run on the
// calling goroutine. After hooks observe the resolved value on a separate
// goroutine and may substitute it before the returned Future resolves.
func (r *Registry) CallAsync(ctx context.Context, key Key, args []interface{},
	real AsyncOperation) *Future {
	c := r.lookup(key)
	p := newParam(key, args)

	if r.runBefore(ctx, c, p) {
		return Resolved(p.result, p.err)
	}

	var inner *Future
	replaced := c.replace != nil && r.runHook(ctx, *c.replace, p) && p.forced
	if replaced {
		inner = Resolved(p.result, p.err)
	} else {
		inner = real(ctx, p.Args())
		if inner == nil {
			inner = Resolved(nil, errors.Errorf(
				"original invocation of %s returned no future", key))
		}
	}

	out := NewFuture()
	go func() {
		p.result, p.err = inner.Result()
		realResult, realErr := p.result, p.err
		if realErr != nil {
			logInvocationError(key, c, replaced, realErr)
		}

		r.runAfter(ctx, c, p)

		if realErr != nil {
			out.Resolve(realResult, realErr)
			return
		}
		out.Resolve(p.result, p.err)
	}()
	return out
}

// lookup returns a copy of the chain for the key so hooks can run without
// holding the lock.
func (r *Registry) lookup(key Key) chain {
	r.mux.RLock()
	defer r.mux.RUnlock()

	c, ok := r.chains[key]
	if !ok {
		return chain{}
	}
	return chain{
		before:  append([]hookRecord(nil), c.before...),
		after:   append([]hookRecord(nil), c.after...),
		replace: c.replace,
	}
}

// runBefore runs the Before chain and returns true if a hook forced a result.
func (r *Registry) runBefore(ctx context.Context, c chain, p *Param) bool {
	for _, rec := range c.before {
		r.runHook(ctx, rec, p)
		if p.forced {
			jww.DEBUG.Printf("[Intercept] %s forced the result of %s",
				rec.name, p.Key)
			return true
		}
	}
	return false
}

func (r *Registry) runAfter(ctx context.Context, c chain, p *Param) {
	for _, rec := range c.after {
		r.runHook(ctx, rec, p)
	}
}

// execute runs the replacement if one is installed and it produced a result,
// otherwise the real implementation. replaced is true if the result came from
// the replacement.
func (r *Registry) execute(ctx context.Context, c chain, p *Param,
	real Operation) (result interface{}, replaced bool, err error) {
	if c.replace != nil && r.runHook(ctx, *c.replace, p) && p.forced {
		return p.result, true, p.err
	}
	result, err = real(ctx, p.Args())
	return result, false, err
}

func logInvocationError(key Key, c chain, replaced bool, err error) {
	if replaced {
		jww.ERROR.Printf("[Intercept] Replacement %s of %s failed: %+v",
			c.replace.name, key, err)
		return
	}
	jww.ERROR.Printf("[Intercept] Original invocation of %s failed: %+v",
		key, err)
}

// runHook runs a single hook and rolls back its edits if it fails. Returns
// true if the hook succeeded.
func (r *Registry) runHook(ctx context.Context, rec hookRecord, p *Param) (ok bool) {
	saved := p.save()
	defer func() {
		if rcv := recover(); rcv != nil {
			jww.ERROR.Printf("[Intercept] Hook %s on %s panicked: %v",
				rec.name, p.Key, rcv)
			p.restore(saved)
			ok = false
		}
	}()

	if err := rec.hook(ctx, p); err != nil {
		jww.ERROR.Printf("[Intercept] Hook %s on %s failed: %+v",
			rec.name, p.Key, err)
		p.restore(saved)
		return false
	}
	return true
}
