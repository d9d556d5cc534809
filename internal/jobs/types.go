// SPDX-License-Identifier: MIT

// Package jobs holds the daemon's periodic and post-import tasks.
package jobs

import (
	"context"
	"time"

	"github.com/ManuGH/tvgrid/internal/store"
)

// Status represents the outcome of the last maintenance pass.
type Status struct {
	LastRun         time.Time `json:"last_run"`
	ExpiredSessions int64     `json:"expired_sessions"`
	LowChannels     int64     `json:"low_channels"`
	Error           string    `json:"error,omitempty"`
}

// SessionPurger drops sessions past their expiry.
type SessionPurger interface {
	DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error)
}

// ChannelCleaner drops channels whose rating fell below the threshold.
type ChannelCleaner interface {
	Cleanup(ctx context.Context) (int64, error)
}

// ChannelLister returns the top channels by rating.
type ChannelLister interface {
	TopChannels(ctx context.Context, limit int) ([]store.Channel, error)
}
