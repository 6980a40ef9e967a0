////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package storage

import "gitlab.com/elixxir/blockwatch/conversation"

// Conversation defines the SQL representation of the last known state of a
// single conversation.
type Conversation struct {
	ConversationID        string  `gorm:"primaryKey;not null"`
	ParticipantID         int64   `gorm:"index;not null"`
	LastActivityTimestamp int64   `gorm:"index;not null"`
	UnreadCount           int     `gorm:"not null"`
	IsMuted               bool    `gorm:"not null"`
	IsPinned              bool    `gorm:"not null"`
	IsFavorite            bool    `gorm:"not null"`
	Name                  string  `gorm:"not null"`
	LastMessage           *string `gorm:""`
}

// TableName overrides the table name used by Conversation.
func (Conversation) TableName() string {
	return "chat_conversations"
}

// Block is a profile the viewer deliberately blocked.
type Block struct {
	ProfileID int64 `gorm:"primaryKey;autoIncrement:false"`
}

// TableName overrides the table name used by Block.
func (Block) TableName() string {
	return "blocks"
}

func fromRecord(r conversation.Record) *Conversation {
	return &Conversation{
		ConversationID:        r.ConversationID,
		ParticipantID:         r.ParticipantID,
		LastActivityTimestamp: r.LastActivityTimestamp,
		UnreadCount:           r.UnreadCount,
		IsMuted:               r.IsMuted,
		IsPinned:              r.IsPinned,
		IsFavorite:            r.IsFavorite,
		Name:                  r.DisplayName,
		LastMessage:           r.LastMessagePreview,
	}
}

func (c *Conversation) toRecord() conversation.Record {
	return conversation.Record{
		ConversationID:        c.ConversationID,
		ParticipantID:         c.ParticipantID,
		LastActivityTimestamp: c.LastActivityTimestamp,
		UnreadCount:           c.UnreadCount,
		IsMuted:               c.IsMuted,
		IsPinned:              c.IsPinned,
		IsFavorite:            c.IsFavorite,
		DisplayName:           c.Name,
		LastMessagePreview:    c.LastMessage,
	}
}
