// SPDX-License-Identifier: MIT

// Package store persists channels, ratings, broadcasts, activation codes and
// viewer sessions in SQLite or PostgreSQL.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("store: not found")

// DefaultChannelLimit caps TopChannels when no limit is given.
const DefaultChannelLimit = 500

// Channel is a playable entry of the channel list.
type Channel struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	URL       string    `json:"url"`
	Logo      string    `json:"logo,omitempty"`
	Category  string    `json:"category,omitempty"`
	Rating    int       `json:"rating"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Vote is a viewer's opinion of a channel.
type Vote string

const (
	VoteLike    Vote = "like"
	VoteDislike Vote = "dislike"
)

// Valid reports whether v is a known vote.
func (v Vote) Valid() bool { return v == VoteLike || v == VoteDislike }

// UserRating is one viewer's vote on one channel.
type UserRating struct {
	ChannelID string    `json:"channel_id"`
	UserID    string    `json:"user_id"`
	Rating    Vote      `json:"rating"`
	CreatedAt time.Time `json:"created_at"`
}

// MessageType is how a broadcast is rendered.
type MessageType string

const (
	MessageText MessageType = "text"
	MessageIcon MessageType = "icon"
)

// Broadcast is an operator message shown to viewers at or above TargetLevel.
type Broadcast struct {
	ID              string      `json:"id"`
	Content         string      `json:"content"`
	TargetLevel     int         `json:"target_level"`
	MessageType     MessageType `json:"message_type"`
	IsActive        bool        `json:"is_active"`
	ScheduleTime    *time.Time  `json:"schedule_time,omitempty"`
	IntervalMinutes *int        `json:"interval_minutes,omitempty"`
	ExpiresAt       *time.Time  `json:"expires_at,omitempty"`
	CreatedAt       time.Time   `json:"created_at"`
}

// ActivationCode grants a user level once.
type ActivationCode struct {
	Code      string     `json:"code"`
	UserLevel int        `json:"user_level"`
	ExpiresAt time.Time  `json:"expires_at"`
	UsedBy    string     `json:"used_by,omitempty"`
	UsedAt    *time.Time `json:"used_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// Used reports whether the code was redeemed.
func (c ActivationCode) Used() bool { return c.UsedAt != nil }

// CodeStats counts activation codes.
type CodeStats struct {
	Total int `json:"total"`
	Admin int `json:"admin"`
	User  int `json:"user"`
	Used  int `json:"used"`
}

// Session is an authenticated viewer.
type Session struct {
	ID             string    `json:"id"`
	ActivationCode string    `json:"activation_code,omitempty"`
	UserLevel      int       `json:"user_level"`
	ExpiresAt      time.Time `json:"expires_at"`
	CreatedAt      time.Time `json:"created_at"`
}

// Store is the persistence contract shared by both SQL backends.
type Store interface {
	TopChannels(ctx context.Context, limit int) ([]Channel, error)
	Channel(ctx context.Context, id string) (Channel, error)
	UpsertChannels(ctx context.Context, channels []Channel) ([]Channel, error)
	UpdateRating(ctx context.Context, id string, rating int) error
	DeleteChannel(ctx context.Context, id string) error
	DeleteChannelsBelow(ctx context.Context, threshold int) (int64, error)

	UserRating(ctx context.Context, channelID, userID string) (UserRating, error)
	UpsertUserRating(ctx context.Context, r UserRating) error

	ActiveBroadcasts(ctx context.Context, level int, now time.Time) ([]Broadcast, error)
	CreateBroadcast(ctx context.Context, b Broadcast) (Broadcast, error)

	CreateActivationCode(ctx context.Context, c ActivationCode) error
	ActivationCode(ctx context.Context, code string) (ActivationCode, error)
	MarkActivationCodeUsed(ctx context.Context, code, usedBy string, at time.Time) error
	ActivationCodeStats(ctx context.Context) (CodeStats, error)

	CreateSession(ctx context.Context, s Session) error
	Session(ctx context.Context, id string) (Session, error)
	DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error)

	Ping(ctx context.Context) error
	Close() error
}
