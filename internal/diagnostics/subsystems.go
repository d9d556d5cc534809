// SPDX-License-Identifier: MIT

package diagnostics

import (
	"context"
	"time"
)

// Pinger is satisfied by the record store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// StoreChecker pings the record store.
type StoreChecker struct {
	Store   Pinger
	Timeout time.Duration
}

func (c StoreChecker) Check(ctx context.Context) SubsystemHealth {
	h := SubsystemHealth{
		Subsystem:   SubsystemStore,
		Status:      OK,
		MeasuredAt:  time.Now(),
		Source:      SourceProbe,
		Criticality: Critical,
	}
	ctx, cancel := context.WithTimeout(ctx, timeoutOr(c.Timeout))
	defer cancel()
	if err := c.Store.Ping(ctx); err != nil {
		h.Status = Unavailable
		h.ErrorCode = ErrStoreUnavailable
		h.ErrorMessage = err.Error()
	}
	return h
}

// PlaybackChecker derives playback health from session counts. More than
// half of the sessions failing is degraded.
type PlaybackChecker struct {
	Stats func() PlaybackDetails
}

func (c PlaybackChecker) Check(context.Context) SubsystemHealth {
	d := c.Stats()
	h := SubsystemHealth{
		Subsystem:   SubsystemPlayback,
		Status:      OK,
		MeasuredAt:  time.Now(),
		Source:      SourceDerived,
		Criticality: Optional,
		Details:     d,
	}
	if d.ActiveSessions > 0 && d.FailedSessions*2 > d.ActiveSessions {
		h.Status = Degraded
		h.ErrorCode = ErrPlaybackFailing
	}
	return h
}
