// SPDX-License-Identifier: MIT

package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	xglog "github.com/ManuGH/tvgrid/internal/log"
)

// DefaultMaintenanceInterval is how often Run repeats the pass.
const DefaultMaintenanceInterval = time.Hour

// Maintenance purges expired sessions, removes low-rated channels and ages
// out stale health results.
type Maintenance struct {
	Sessions SessionPurger
	Channels ChannelCleaner
	// Evict drops expired last-known-good health entries; optional.
	Evict    func()
	Interval time.Duration
	Now      func() time.Time

	mu   sync.Mutex
	last Status
}

// RunOnce performs a single pass. Every step runs even when an earlier one
// fails; the errors are joined.
func (m *Maintenance) RunOnce(ctx context.Context) (Status, error) {
	now := time.Now
	if m.Now != nil {
		now = m.Now
	}
	logger := xglog.WithComponentFromContext(ctx, "jobs")
	st := Status{LastRun: now()}

	var errs []error
	if m.Sessions != nil {
		n, err := m.Sessions.DeleteExpiredSessions(ctx, st.LastRun)
		if err != nil {
			errs = append(errs, fmt.Errorf("expire sessions: %w", err))
		}
		st.ExpiredSessions = n
	}
	if m.Channels != nil {
		n, err := m.Channels.Cleanup(ctx)
		if err != nil {
			errs = append(errs, fmt.Errorf("cleanup channels: %w", err))
		}
		st.LowChannels = n
	}
	if m.Evict != nil {
		m.Evict()
	}

	err := errors.Join(errs...)
	if err != nil {
		st.Error = err.Error()
		logger.Error().Err(err).Str(xglog.FieldEvent, "maintenance.failed").Msg("maintenance pass failed")
	} else {
		logger.Info().
			Str(xglog.FieldEvent, "maintenance.done").
			Int64("expired_sessions", st.ExpiredSessions).
			Int64("low_channels", st.LowChannels).
			Msg("maintenance pass completed")
	}

	m.mu.Lock()
	m.last = st
	m.mu.Unlock()
	return st, err
}

// Last returns the status of the most recent pass.
func (m *Maintenance) Last() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last
}

// Run performs a pass immediately and then every Interval until ctx ends.
func (m *Maintenance) Run(ctx context.Context) {
	interval := m.Interval
	if interval <= 0 {
		interval = DefaultMaintenanceInterval
	}
	_, _ = m.RunOnce(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, _ = m.RunOnce(ctx)
		}
	}
}
