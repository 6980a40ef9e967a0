////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package storage

import (
	"context"

	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
	"gitlab.com/elixxir/blockwatch/conversation"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// All returns every cached conversation, most recent first.
func (s *Store) All(ctx context.Context) ([]conversation.Record, error) {
	ctx, cancel := newContext(ctx)
	defer cancel()

	var rows []Conversation
	err := s.db.WithContext(ctx).
		Order("last_activity_timestamp DESC").
		Find(&rows).Error
	if err != nil {
		return nil, errors.WithMessage(err, "failed to query conversations")
	}
	return toRecords(rows), nil
}

// Since returns every cached conversation whose last activity is at or after
// ts, most recent first.
func (s *Store) Since(ctx context.Context, ts int64) ([]conversation.Record, error) {
	ctx, cancel := newContext(ctx)
	defer cancel()

	var rows []Conversation
	err := s.db.WithContext(ctx).
		Where("last_activity_timestamp >= ?", ts).
		Order("last_activity_timestamp DESC").
		Find(&rows).Error
	if err != nil {
		return nil, errors.WithMessagef(err,
			"failed to query conversations since %d", ts)
	}
	return toRecords(rows), nil
}

// Get returns the conversation with the given composite ID or ErrNotFound.
func (s *Store) Get(ctx context.Context, conversationID string) (
	conversation.Record, error) {
	ctx, cancel := newContext(ctx)
	defer cancel()

	var row Conversation
	err := s.db.WithContext(ctx).
		Take(&row, "conversation_id = ?", conversationID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return conversation.Record{}, ErrNotFound
	} else if err != nil {
		return conversation.Record{}, errors.WithMessagef(err,
			"failed to get conversation %s", conversationID)
	}
	return row.toRecord(), nil
}

// UpsertConversations inserts the records or overwrites the stored state of
// existing ones.
func (s *Store) UpsertConversations(ctx context.Context,
	records []conversation.Record) error {
	if len(records) == 0 {
		return nil
	}
	ctx, cancel := newContext(ctx)
	defer cancel()

	rows := make([]*Conversation, len(records))
	for i := range records {
		rows[i] = fromRecord(records[i])
	}

	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(rows).Error
	if err != nil {
		return errors.WithMessage(err, "failed to upsert conversations")
	}
	jww.TRACE.Printf("[Storage] Upserted %d conversations", len(rows))
	return nil
}

// DeleteConversation removes the conversation with the given ID. Deleting an
// unknown conversation is not an error.
func (s *Store) DeleteConversation(ctx context.Context, conversationID string) error {
	ctx, cancel := newContext(ctx)
	defer cancel()

	err := s.db.WithContext(ctx).
		Delete(&Conversation{}, "conversation_id = ?", conversationID).Error
	if err != nil {
		return errors.WithMessagef(err,
			"failed to delete conversation %s", conversationID)
	}
	return nil
}

func toRecords(rows []Conversation) []conversation.Record {
	records := make([]conversation.Record, len(rows))
	for i := range rows {
		records[i] = rows[i].toRecord()
	}
	return records
}
