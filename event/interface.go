////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package event

import "gitlab.com/elixxir/blockwatch/stoppable"

// Callback receives every reported BlockEvent.
type Callback func(e BlockEvent)

// Reporter reporting api (used internally)
type Reporter interface {
	Report(e BlockEvent)
}

// Manager fans reported events out to registered callbacks.
type Manager interface {
	Reporter
	RegisterEventCallback(name string, cb Callback) error
	UnregisterEventCallback(name string)
	EventService() (stoppable.Stoppable, error)
}
