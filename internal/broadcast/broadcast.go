// SPDX-License-Identifier: MIT

// Package broadcast serves operator messages to viewers through a cache.
package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ManuGH/tvgrid/internal/cache"
	xglog "github.com/ManuGH/tvgrid/internal/log"
	"github.com/ManuGH/tvgrid/internal/store"
	"github.com/rs/zerolog"
)

// DefaultTTL matches how often viewers poll for messages.
const DefaultTTL = 30 * time.Second

// ErrInvalid is returned for a broadcast that cannot be stored.
var ErrInvalid = errors.New("invalid broadcast")

// Store is the persistence the service needs.
type Store interface {
	ActiveBroadcasts(ctx context.Context, level int, now time.Time) ([]store.Broadcast, error)
	CreateBroadcast(ctx context.Context, b store.Broadcast) (store.Broadcast, error)
}

// CachedSource reads active broadcasts per level through a cache.
type CachedSource struct {
	store  Store
	cache  cache.Cache
	ttl    time.Duration
	now    func() time.Time
	logger zerolog.Logger
}

// NewCachedSource wraps s. A zero ttl means DefaultTTL.
func NewCachedSource(s Store, c cache.Cache, ttl time.Duration) *CachedSource {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if c == nil {
		c = cache.NewNoopCache()
	}
	return &CachedSource{store: s, cache: c, ttl: ttl, now: time.Now, logger: xglog.WithComponent("broadcast")}
}

func levelKey(level int) string { return "broadcasts:level:" + strconv.Itoa(level) }

// Active returns the messages visible at level. Entries that expired while
// cached are filtered out.
func (s *CachedSource) Active(ctx context.Context, level int) ([]store.Broadcast, error) {
	now := s.now()
	if raw, ok := s.cache.Get(ctx, levelKey(level)); ok {
		var cached []store.Broadcast
		if err := json.Unmarshal(raw, &cached); err == nil {
			return unexpired(cached, now), nil
		}
		s.logger.Warn().Str(xglog.FieldEvent, "broadcast.cache_corrupt").Int("level", level).Msg("dropping undecodable cache entry")
		s.cache.Delete(ctx, levelKey(level))
	}

	list, err := s.store.ActiveBroadcasts(ctx, level, now)
	if err != nil {
		return nil, fmt.Errorf("load broadcasts: %w", err)
	}
	if raw, err := json.Marshal(list); err == nil {
		s.cache.Set(ctx, levelKey(level), raw, s.ttl)
	}
	return list, nil
}

// Current returns the message a viewer at level should see now, if any.
func (s *CachedSource) Current(ctx context.Context, level int) (*store.Broadcast, error) {
	list, err := s.Active(ctx, level)
	if err != nil || len(list) == 0 {
		return nil, err
	}
	b := list[0]
	return &b, nil
}

// Create validates and stores b, then drops the cached lists.
func (s *CachedSource) Create(ctx context.Context, b store.Broadcast) (store.Broadcast, error) {
	b.Content = strings.TrimSpace(b.Content)
	if b.Content == "" {
		return store.Broadcast{}, fmt.Errorf("%w: content is required", ErrInvalid)
	}
	if b.TargetLevel == 0 {
		b.TargetLevel = 1
	}
	if b.TargetLevel < 1 || b.TargetLevel > 3 {
		return store.Broadcast{}, fmt.Errorf("%w: target level %d", ErrInvalid, b.TargetLevel)
	}
	switch b.MessageType {
	case "":
		b.MessageType = store.MessageText
	case store.MessageText, store.MessageIcon:
	default:
		return store.Broadcast{}, fmt.Errorf("%w: message type %q", ErrInvalid, b.MessageType)
	}
	if b.IntervalMinutes != nil && *b.IntervalMinutes <= 0 {
		return store.Broadcast{}, fmt.Errorf("%w: interval must be positive", ErrInvalid)
	}
	b.IsActive = true

	created, err := s.store.CreateBroadcast(ctx, b)
	if err != nil {
		return store.Broadcast{}, err
	}
	s.Invalidate(ctx)
	s.logger.Info().
		Str(xglog.FieldEvent, "broadcast.created").
		Str("id", created.ID).
		Int("target_level", created.TargetLevel).
		Msg("broadcast stored")
	return created, nil
}

// Invalidate drops every cached level.
func (s *CachedSource) Invalidate(ctx context.Context) {
	for level := 1; level <= 3; level++ {
		s.cache.Delete(ctx, levelKey(level))
	}
}

func unexpired(list []store.Broadcast, now time.Time) []store.Broadcast {
	out := list[:0:0]
	for _, b := range list {
		if b.ExpiresAt == nil || b.ExpiresAt.After(now) {
			out = append(out, b)
		}
	}
	return out
}
