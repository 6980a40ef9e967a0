////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

// Package push decodes server push notifications and provides the sources the
// push stream can be read from.
package push

import (
	"encoding/json"

	"github.com/pkg/errors"
	"gitlab.com/elixxir/blockwatch/conversation"
)

// ConversationDeleteType is the type value of a push notification announcing
// that conversations were removed.
const ConversationDeleteType = "chat.v1.conversation.delete"

// ErrNoPayload is returned when an event carries no payload.
var ErrNoPayload = errors.New("push event has no payload")

// Event is a single server push notification.
type Event struct {
	TypeValue string          `json:"typeValue"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// ConversationDeletePayload is the payload of a ConversationDeleteType event.
type ConversationDeletePayload struct {
	ConversationIDs []string `json:"conversationIds"`
}

// DecodeEvent parses a single push notification.
func DecodeEvent(data []byte) (Event, error) {
	var e Event
	if err := json.Unmarshal(data, &e); err != nil {
		return Event{}, errors.WithMessage(err, "failed to decode push event")
	}
	if e.TypeValue == "" {
		return Event{}, errors.New("push event has no typeValue")
	}
	return e, nil
}

// IsConversationDelete returns true for conversation removal events.
func (e Event) IsConversationDelete() bool {
	return e.TypeValue == ConversationDeleteType
}

// ConversationIDs returns the composite conversation IDs of a conversation
// removal event.
func (e Event) ConversationIDs() ([]string, error) {
	if len(e.Payload) == 0 || string(e.Payload) == "null" {
		return nil, ErrNoPayload
	}
	var p ConversationDeletePayload
	if err := json.Unmarshal(e.Payload, &p); err != nil {
		return nil, errors.WithMessagef(err,
			"failed to decode %s payload", e.TypeValue)
	}
	if p.ConversationIDs == nil {
		return nil, errors.Errorf("%s payload has no conversationIds",
			e.TypeValue)
	}
	return p.ConversationIDs, nil
}

// OtherParticipant returns the first participant across the composite IDs
// that is not the viewer.
func OtherParticipant(conversationIDs []string, viewer int64) (int64, bool) {
	for _, cid := range conversationIDs {
		if other, ok := conversation.OtherParticipant(cid, viewer); ok {
			return other, true
		}
	}
	return 0, false
}

// decodeUntyped parses an event without requiring a typeValue.
func decodeUntyped(data []byte) (Event, error) {
	var e Event
	if err := json.Unmarshal(data, &e); err != nil {
		return Event{}, errors.WithMessage(err, "failed to decode push event")
	}
	return e, nil
}
