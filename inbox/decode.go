////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

// Package inbox decodes inbox pages returned by the server into conversation
// records.
package inbox

import (
	"encoding/json"

	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
	"gitlab.com/elixxir/blockwatch/conversation"
)

// Response is the body of an inbox page.
type Response struct {
	Conversations []Conversation `json:"conversations"`
}

// Conversation wraps a single entry of the page.
type Conversation struct {
	Data *ConversationData `json:"data"`
}

// ConversationData is the conversation summary sent by the server.
type ConversationData struct {
	ConversationID        string        `json:"conversationId"`
	Name                  *string       `json:"name"`
	UnreadCount           int           `json:"unreadCount"`
	LastActivityTimestamp int64         `json:"lastActivityTimestamp"`
	IsMuted               bool          `json:"isMuted"`
	IsPinned              bool          `json:"isPinned"`
	IsFavorite            bool          `json:"isFavorite"`
	Preview               *Preview      `json:"preview"`
	Participants          []Participant `json:"participants"`
}

// Preview is the last message of a conversation.
type Preview struct {
	Text *string `json:"text"`
}

// Participant is a member of a conversation.
type Participant struct {
	ProfileID int64 `json:"profileId"`
}

// Decode parses an inbox page. Entries that fail validation are logged and
// skipped; an undecodable body is an error.
func Decode(body []byte, viewer int64) ([]conversation.Record, error) {
	var r Response
	if err := json.Unmarshal(body, &r); err != nil {
		return nil, errors.WithMessage(err, "failed to decode inbox page")
	}
	return r.Records(viewer), nil
}

// Records converts every valid entry of the page.
func (r Response) Records(viewer int64) []conversation.Record {
	records := make([]conversation.Record, 0, len(r.Conversations))
	for i, c := range r.Conversations {
		rec, err := c.toRecord(viewer)
		if err != nil {
			jww.WARN.Printf("[Inbox] Skipping conversation %d: %+v", i, err)
			continue
		}
		records = append(records, rec)
	}
	return records
}

func (c Conversation) toRecord(viewer int64) (conversation.Record, error) {
	d := c.Data
	if d == nil {
		return conversation.Record{}, errors.New("conversation has no data")
	}

	rec := conversation.Record{
		ConversationID:        d.ConversationID,
		LastActivityTimestamp: d.LastActivityTimestamp,
		UnreadCount:           d.UnreadCount,
		IsMuted:               d.IsMuted,
		IsPinned:              d.IsPinned,
		IsFavorite:            d.IsFavorite,
	}
	if err := rec.Validate(viewer); err != nil {
		return conversation.Record{}, err
	}

	if d.Name != nil {
		rec.DisplayName = *d.Name
	}
	if d.Preview != nil {
		rec.LastMessagePreview = d.Preview.Text
	}

	for _, p := range d.Participants {
		if p.ProfileID != 0 && p.ProfileID != viewer {
			rec.ParticipantID = p.ProfileID
			break
		}
	}
	if rec.ParticipantID == 0 {
		rec.ParticipantID, _ = conversation.OtherParticipant(
			rec.ConversationID, viewer)
	}
	return rec, nil
}
