////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package intercept

import (
	jww "github.com/spf13/jwalterweatherman"
)

// Param carries a single invocation of an intercepted operation through its
// hooks.
type Param struct {
	Key Key

	args   []interface{}
	result interface{}
	err    error
	forced bool
}

// paramState is a copy of the mutable part of a Param, used to roll back the
// edits of a failed hook.
type paramState struct {
	args   []interface{}
	result interface{}
	err    error
	forced bool
}

func newParam(key Key, args []interface{}) *Param {
	return &Param{Key: key, args: copyArgs(args)}
}

// Args returns the current arguments of the call.
func (p *Param) Args() []interface{} {
	return p.args
}

// Arg returns the argument at index i or nil if there is none.
func (p *Param) Arg(i int) interface{} {
	if i < 0 || i >= len(p.args) {
		return nil
	}
	return p.args[i]
}

// SetArg rewrites the argument at index i. Only meaningful in a Before hook.
func (p *Param) SetArg(i int, v interface{}) {
	if i < 0 || i >= len(p.args) {
		jww.WARN.Printf("[Intercept] %s: ignoring SetArg(%d) on a call "+
			"with %d arguments", p.Key, i, len(p.args))
		return
	}
	p.args[i] = v
}

// Result returns the current result of the call.
func (p *Param) Result() interface{} {
	return p.result
}

// Err returns the current error of the call.
func (p *Param) Err() error {
	return p.err
}

// SetResult sets the value delivered to the caller. Called from a Before hook
// it skips the real implementation and the rest of the Before chain.
func (p *Param) SetResult(v interface{}) {
	p.result, p.err, p.forced = v, nil, true
}

// SetError is SetResult for a failing outcome.
func (p *Param) SetError(err error) {
	p.result, p.err, p.forced = nil, err, true
}

// Forced returns true once a hook has set the result.
func (p *Param) Forced() bool {
	return p.forced
}

func (p *Param) save() paramState {
	return paramState{
		args:   copyArgs(p.args),
		result: p.result,
		err:    p.err,
		forced: p.forced,
	}
}

func (p *Param) restore(s paramState) {
	p.args, p.result, p.err, p.forced = s.args, s.result, s.err, s.forced
}

func copyArgs(args []interface{}) []interface{} {
	c := make([]interface{}, len(args))
	copy(c, args)
	return c
}
