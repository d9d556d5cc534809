// SPDX-License-Identifier: MIT

// Package rating implements the community channel rating rules.
package rating

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	xglog "github.com/ManuGH/tvgrid/internal/log"
	"github.com/ManuGH/tvgrid/internal/metrics"
	"github.com/ManuGH/tvgrid/internal/store"
)

// Rating rules.
const (
	Initial            = 50
	LikePoints         = 5
	DislikePoints      = -19
	Max                = 9999
	Min                = 0
	DeleteThreshold    = 10
	LowThreshold       = 51
	HighThreshold      = 80
	RecommendedMinimum = 70
)

var (
	// ErrAlreadyRated is returned when a viewer repeats the same vote.
	ErrAlreadyRated = errors.New("channel already rated with this vote")
	// ErrInvalidVote is returned for anything but like or dislike.
	ErrInvalidVote = errors.New("invalid vote")
)

func points(v store.Vote) int {
	if v == store.VoteLike {
		return LikePoints
	}
	return DislikePoints
}

func clamp(n int) int {
	return max(Min, min(Max, n))
}

// Apply adds vote to current. remove reports that the channel fell below
// DeleteThreshold.
func Apply(current int, vote store.Vote) (next int, remove bool) {
	next = clamp(current + points(vote))
	return next, next < DeleteThreshold
}

// Switch reverts a viewer's previous vote, if any, and applies vote.
func Switch(current int, previous, vote store.Vote) (next int, remove bool) {
	if previous.Valid() {
		current -= points(previous)
	}
	return Apply(current, vote)
}

// Store is the persistence the rating service needs.
type Store interface {
	Channel(ctx context.Context, id string) (store.Channel, error)
	UserRating(ctx context.Context, channelID, userID string) (store.UserRating, error)
	UpsertUserRating(ctx context.Context, r store.UserRating) error
	UpdateRating(ctx context.Context, id string, rating int) error
	DeleteChannel(ctx context.Context, id string) error
	DeleteChannelsBelow(ctx context.Context, threshold int) (int64, error)
}

// Result is the outcome of a vote.
type Result struct {
	Rating  int  `json:"rating"`
	Deleted bool `json:"deleted"`
}

// Service applies votes against the store.
type Service struct {
	store Store
}

// NewService returns a rating service.
func NewService(s Store) *Service { return &Service{store: s} }

// Rate records userID's vote on channelID. Repeating the same vote returns
// ErrAlreadyRated; a changed vote replaces the previous one.
func (s *Service) Rate(ctx context.Context, channelID, userID string, vote store.Vote) (Result, error) {
	if !vote.Valid() {
		return Result{}, fmt.Errorf("%w: %q", ErrInvalidVote, vote)
	}

	var previous store.Vote
	existing, err := s.store.UserRating(ctx, channelID, userID)
	switch {
	case err == nil:
		if existing.Rating == vote {
			return Result{}, ErrAlreadyRated
		}
		previous = existing.Rating
	case !errors.Is(err, store.ErrNotFound):
		return Result{}, fmt.Errorf("load vote: %w", err)
	}

	ch, err := s.store.Channel(ctx, channelID)
	if err != nil {
		return Result{}, fmt.Errorf("load channel: %w", err)
	}

	next, remove := Switch(ch.Rating, previous, vote)

	if err := s.store.UpsertUserRating(ctx, store.UserRating{ChannelID: channelID, UserID: userID, Rating: vote}); err != nil {
		return Result{}, fmt.Errorf("save vote: %w", err)
	}
	if err := s.store.UpdateRating(ctx, channelID, next); err != nil {
		return Result{}, fmt.Errorf("update rating: %w", err)
	}
	metrics.IncRatingVote(string(vote))

	logger := xglog.WithContext(ctx, xglog.WithComponent("rating"))
	if remove {
		if err := s.store.DeleteChannel(ctx, channelID); err != nil {
			return Result{}, fmt.Errorf("delete channel: %w", err)
		}
		metrics.AddChannelsRemoved(1)
		logger.Info().
			Str(xglog.FieldEvent, "rating.channel_removed").
			Str(xglog.FieldChannel, ch.Name).
			Int("rating", next).
			Msg("channel removed after falling below the rating threshold")
		return Result{Rating: 0, Deleted: true}, nil
	}

	logger.Debug().
		Str(xglog.FieldEvent, "rating.applied").
		Str(xglog.FieldChannel, ch.Name).
		Str("vote", string(vote)).
		Int("rating", next).
		Msg("vote applied")
	return Result{Rating: next}, nil
}

// Cleanup deletes every channel rated below LowThreshold.
func (s *Service) Cleanup(ctx context.Context) (int64, error) {
	n, err := s.store.DeleteChannelsBelow(ctx, LowThreshold)
	if err != nil {
		return 0, fmt.Errorf("cleanup: %w", err)
	}
	metrics.AddChannelsRemoved(n)
	logger := xglog.WithContext(ctx, xglog.WithComponent("rating"))
	logger.Info().
		Str(xglog.FieldEvent, "rating.cleanup").
		Int64("deleted", n).
		Msg("low-rated channels removed")
	return n, nil
}

// Stats summarises a channel list.
type Stats struct {
	Total       int     `json:"total"`
	High        int     `json:"high"`
	Recommended int     `json:"recommended"`
	Low         int     `json:"low"`
	Average     float64 `json:"average"`
}

// Summarize computes Stats; the average is rounded to two decimals.
func Summarize(channels []store.Channel) Stats {
	st := Stats{Total: len(channels)}
	if st.Total == 0 {
		return st
	}
	sum := 0
	for _, c := range channels {
		sum += c.Rating
		if c.Rating >= HighThreshold {
			st.High++
		}
		if c.Rating >= RecommendedMinimum {
			st.Recommended++
		}
		if c.Rating < LowThreshold {
			st.Low++
		}
	}
	st.Average = math.Round(float64(sum)/float64(st.Total)*100) / 100
	return st
}

// Recommended returns up to limit channels rated at least
// RecommendedMinimum, best first.
func Recommended(channels []store.Channel, limit int) []store.Channel {
	out := make([]store.Channel, 0, len(channels))
	for _, c := range channels {
		if c.Rating >= RecommendedMinimum {
			out = append(out, c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Rating > out[j].Rating })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
