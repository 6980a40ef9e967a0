////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

// Package delta compares one server inbox page against the local conversation
// cache to find conversations that disappeared from the server.
//
// The comparison window is bounded by the oldest conversation on the page, so
// conversations that are simply older than the page never count as missing.
package delta

import (
	"context"
	"sort"

	"github.com/golang-collections/collections/set"
	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
	"gitlab.com/elixxir/blockwatch/conversation"
)

// Cache is the part of the local conversation cache the detector reads.
type Cache interface {
	// Since returns every conversation with a last activity timestamp at or
	// after ts.
	Since(ctx context.Context, ts int64) ([]conversation.Record, error)
}

// BlockList reports profiles the viewer blocked deliberately.
type BlockList interface {
	IsBlocked(ctx context.Context, profileID int64) (bool, error)
}

// Result is the outcome of a single comparison.
type Result struct {
	// Skipped is true when the page was empty and no comparison window could
	// be established.
	Skipped bool

	// Boundary is the oldest last activity timestamp on the page.
	Boundary int64

	// Missing holds participants cached inside the window but absent from
	// the page, ascending.
	Missing []int64

	// Added holds participants on the page that were not cached inside the
	// window, ascending.
	Added []int64
}

// Detect computes the difference between the page and the cached
// conversations at or after the page's oldest timestamp. It has no side
// effects; an error from the cache yields no candidates.
func Detect(ctx context.Context, page []conversation.Record, cache Cache,
	viewer int64) (Result, error) {
	if len(page) == 0 {
		return Result{Skipped: true}, nil
	}

	boundary := page[0].LastActivityTimestamp
	serverIDs := set.New()
	for _, r := range page {
		if r.LastActivityTimestamp < boundary {
			boundary = r.LastActivityTimestamp
		}
		serverIDs.Insert(r.ParticipantID)
	}

	rows, err := cache.Since(ctx, boundary)
	if err != nil {
		return Result{}, errors.WithMessagef(err,
			"failed to read cached conversations since %d", boundary)
	}

	localIDs := set.New()
	for _, row := range rows {
		other, ok := conversation.OtherParticipant(row.ConversationID, viewer)
		if !ok {
			jww.WARN.Printf("[Delta] Skipping cached conversation %q with "+
				"no participant other than %d", row.ConversationID, viewer)
			continue
		}
		localIDs.Insert(other)
	}

	return Result{
		Boundary: boundary,
		Missing:  sorted(localIDs.Difference(serverIDs)),
		Added:    sorted(serverIDs.Difference(localIDs)),
	}, nil
}

// Exclude drops every ID the viewer blocked. An ID whose block list lookup
// fails is dropped as well.
func Exclude(ctx context.Context, ids []int64, blocks BlockList) []int64 {
	kept := make([]int64, 0, len(ids))
	for _, pid := range ids {
		blocked, err := blocks.IsBlocked(ctx, pid)
		if err != nil {
			jww.ERROR.Printf("[Delta] Dropping candidate %d, failed to "+
				"check the block list: %+v", pid, err)
			continue
		}
		if blocked {
			jww.DEBUG.Printf("[Delta] Skipping %d (blocked by the viewer)", pid)
			continue
		}
		kept = append(kept, pid)
	}
	return kept
}

func sorted(s *set.Set) []int64 {
	ids := make([]int64, 0, s.Len())
	s.Do(func(i interface{}) {
		ids = append(ids, i.(int64))
	})
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
