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
	"gorm.io/gorm/clause"
)

// IsBlocked returns true if the viewer deliberately blocked the profile.
func (s *Store) IsBlocked(ctx context.Context, profileID int64) (bool, error) {
	ctx, cancel := newContext(ctx)
	defer cancel()

	var count int64
	err := s.db.WithContext(ctx).Model(&Block{}).
		Where("profile_id = ?", profileID).
		Count(&count).Error
	if err != nil {
		return false, errors.WithMessagef(err,
			"failed to check block list for %d", profileID)
	}
	return count > 0, nil
}

// Blocks returns every profile ID the viewer blocked, ascending.
func (s *Store) Blocks(ctx context.Context) ([]int64, error) {
	ctx, cancel := newContext(ctx)
	defer cancel()

	var ids []int64
	err := s.db.WithContext(ctx).Model(&Block{}).
		Order("profile_id").
		Pluck("profile_id", &ids).Error
	if err != nil {
		return nil, errors.WithMessage(err, "failed to list block list")
	}
	return ids, nil
}

// AddBlock records that the viewer blocked the profile. Adding a profile twice
// is a no-op.
func (s *Store) AddBlock(ctx context.Context, profileID int64) error {
	ctx, cancel := newContext(ctx)
	defer cancel()

	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&Block{ProfileID: profileID}).Error
	if err != nil {
		return errors.WithMessagef(err, "failed to block %d", profileID)
	}
	return nil
}

// RemoveBlock removes the profile from the block list.
func (s *Store) RemoveBlock(ctx context.Context, profileID int64) error {
	ctx, cancel := newContext(ctx)
	defer cancel()

	err := s.db.WithContext(ctx).
		Delete(&Block{}, "profile_id = ?", profileID).Error
	if err != nil {
		return errors.WithMessagef(err, "failed to unblock %d", profileID)
	}
	return nil
}
