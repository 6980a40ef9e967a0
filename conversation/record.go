////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

// Package conversation contains the conversation summary model shared by the
// cache, the inbox decoder and the delta detector.
package conversation

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// idSeparator splits the two participant ids of a composite conversation ID.
const idSeparator = ":"

// Record is the last known state of a single conversation as seen in an inbox
// page.
type Record struct {
	// ConversationID is the composite "idA:idB" key. It embeds the viewer's
	// ID and exactly one other participant ID.
	ConversationID string

	// ParticipantID is the ID of the other participant.
	ParticipantID int64

	LastActivityTimestamp int64
	UnreadCount           int
	IsMuted               bool
	IsPinned              bool
	IsFavorite            bool
	DisplayName           string

	// LastMessagePreview is nil when the server sent no preview.
	LastMessagePreview *string
}

// MakeID builds the order-normalized composite conversation ID for the two
// participants.
func MakeID(a, b int64) string {
	if b < a {
		a, b = b, a
	}
	return strconv.FormatInt(a, 10) + idSeparator + strconv.FormatInt(b, 10)
}

// ParseID returns every numeric participant ID contained in the composite
// conversation ID, in order. Non-numeric parts are skipped.
func ParseID(conversationID string) []int64 {
	parts := strings.Split(conversationID, idSeparator)
	ids := make([]int64, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.ParseInt(strings.TrimSpace(p), 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, n)
	}
	return ids
}

// OtherParticipant returns the first participant in the composite ID that is
// not the viewer. Returns false if there is none.
func OtherParticipant(conversationID string, viewer int64) (int64, bool) {
	for _, pid := range ParseID(conversationID) {
		if pid != viewer {
			return pid, true
		}
	}
	return 0, false
}

// Validate checks the record invariants against the viewer ID.
func (r Record) Validate(viewer int64) error {
	ids := ParseID(r.ConversationID)
	if len(ids) != 2 {
		return errors.Errorf("conversation ID %q does not contain two "+
			"participant IDs", r.ConversationID)
	}
	if ids[0] != viewer && ids[1] != viewer {
		return errors.Errorf("conversation ID %q does not contain viewer %d",
			r.ConversationID, viewer)
	}
	if ids[0] == ids[1] {
		return errors.Errorf("conversation ID %q has no other participant",
			r.ConversationID)
	}
	return nil
}
