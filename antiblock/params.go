////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package antiblock

import (
	"encoding/json"
	"time"

	"gitlab.com/elixxir/blockwatch/profile"
)

// Params configures the Manager.
type Params struct {
	// ViewerID is the profile ID of the signed in user.
	ViewerID int64 `json:"viewer_id"`

	// ForceOldBehavior disables detection. The only remaining binding hides
	// the participants of every conversation removal notification.
	ForceOldBehavior bool `json:"force_old_anti_block_behavior"`

	// UseToasts sends outcomes as short toast messages instead of system
	// notifications.
	UseToasts bool `json:"anti_block_use_toasts"`

	// UnblockSettle is how long detection stays suppressed after an unblock
	// returns, if no completion signal arrives first.
	UnblockSettle time.Duration `json:"unblock_settle"`

	// DeleteSettlePerConversation is how long detection stays suppressed per
	// deleted conversation after a deletion returns, if no completion signal
	// arrives first.
	DeleteSettlePerConversation time.Duration `json:"delete_settle_per_conversation"`

	// DedupWindow is how long an outcome for a profile suppresses an equal
	// outcome from either source. Zero disables deduplication.
	DedupWindow time.Duration `json:"dedup_window"`

	// DrainTimeout bounds how long closing the push consumer waits for
	// in-flight verifications.
	DrainTimeout time.Duration `json:"drain_timeout"`

	// Profile configures the profile lookup client.
	Profile profile.Params `json:"profile"`
}

// GetDefaultParams returns a Params object containing the default parameters.
func GetDefaultParams() Params {
	return Params{
		UnblockSettle:               700 * time.Millisecond,
		DeleteSettlePerConversation: 300 * time.Millisecond,
		DedupWindow:                 30 * time.Second,
		DrainTimeout:                5 * time.Second,
		Profile:                     profile.GetDefaultParams(),
	}
}

// GetParameters returns the default Params, or override with given
// parameters, if set.
func GetParameters(params string) (Params, error) {
	p := GetDefaultParams()
	if len(params) > 0 {
		err := json.Unmarshal([]byte(params), &p)
		if err != nil {
			return Params{}, err
		}
	}
	return p, nil
}
