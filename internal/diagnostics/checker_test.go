// SPDX-License-Identifier: MIT

package diagnostics

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestComputeOverallStatus(t *testing.T) {
	tests := []struct {
		name       string
		subsystems map[Subsystem]SubsystemHealth
		want       HealthStatus
	}{
		{
			name: "all ok",
			subsystems: map[Subsystem]SubsystemHealth{
				SubsystemNetwork:  {Status: OK},
				SubsystemDNS:      {Status: OK},
				SubsystemCORS:     {Status: OK},
				SubsystemStore:    {Status: OK},
				SubsystemPlayback: {Status: OK},
			},
			want: OK,
		},
		{
			name: "store unavailable → unavailable",
			subsystems: map[Subsystem]SubsystemHealth{
				SubsystemNetwork: {Status: OK},
				SubsystemStore:   {Status: Unavailable},
			},
			want: Unavailable,
		},
		{
			name: "network and dns unavailable → unavailable",
			subsystems: map[Subsystem]SubsystemHealth{
				SubsystemNetwork: {Status: Unavailable},
				SubsystemDNS:     {Status: Unavailable},
				SubsystemStore:   {Status: OK},
			},
			want: Unavailable,
		},
		{
			name: "cors restricted → degraded",
			subsystems: map[Subsystem]SubsystemHealth{
				SubsystemNetwork: {Status: OK},
				SubsystemCORS:    {Status: Degraded},
			},
			want: Degraded,
		},
		{
			name:       "nothing checked → ok",
			subsystems: map[Subsystem]SubsystemHealth{},
			want:       OK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ComputeOverallStatus(tt.subsystems); got != tt.want {
				t.Errorf("ComputeOverallStatus() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestBuildDegradationSummary(t *testing.T) {
	now := time.Now()
	lastOK := now.Add(-1 * time.Hour)

	summary := BuildDegradationSummary(map[Subsystem]SubsystemHealth{
		SubsystemNetwork: {Subsystem: SubsystemNetwork, Status: OK, MeasuredAt: now},
		SubsystemDNS: {
			Subsystem:  SubsystemDNS,
			Status:     Unavailable,
			MeasuredAt: now,
			LastOK:     &lastOK,
			ErrorCode:  ErrDNSUnreachable,
		},
	})

	if len(summary) != 1 {
		t.Fatalf("expected 1 degradation item, got %d", len(summary))
	}
	item := summary[0]
	if item.Subsystem != SubsystemDNS || item.Status != Unavailable {
		t.Errorf("unexpected item %+v", item)
	}
	if !item.Since.Equal(lastOK) {
		t.Errorf("expected since=%v, got %v", lastOK, item.Since)
	}
	if len(item.SuggestedActions) == 0 {
		t.Error("expected suggested actions")
	}
}

func TestLKGCache(t *testing.T) {
	cache := NewLKGCache(time.Hour)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return base }

	h := cache.Observe(SubsystemHealth{Subsystem: SubsystemDNS, Status: OK, MeasuredAt: base})
	if h.LastOK == nil || !h.LastOK.Equal(base) {
		t.Fatalf("expected last ok %v, got %v", base, h.LastOK)
	}

	cache.now = func() time.Time { return base.Add(10 * time.Minute) }
	h = cache.Observe(SubsystemHealth{Subsystem: SubsystemDNS, Status: Unavailable, MeasuredAt: base.Add(10 * time.Minute)})
	if h.LastOK == nil || !h.LastOK.Equal(base) {
		t.Errorf("failed check should carry the previous last ok, got %v", h.LastOK)
	}

	last, ok := cache.Last(SubsystemDNS)
	if !ok || last.Source != SourceCache || last.Status != Unavailable {
		t.Errorf("unexpected cached entry %+v", last)
	}

	cache.now = func() time.Time { return base.Add(3 * time.Hour) }
	if _, ok := cache.Last(SubsystemDNS); ok {
		t.Error("expected expired entry")
	}
	cache.EvictExpired()
	if len(cache.last) != 0 || len(cache.lastOK) != 0 {
		t.Error("expected eviction")
	}
}

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

func TestStoreChecker(t *testing.T) {
	if h := (StoreChecker{Store: pinger{}}).Check(context.Background()); h.Status != OK {
		t.Errorf("expected ok, got %v", h.Status)
	}
	h := (StoreChecker{Store: pinger{err: errors.New("database is locked")}}).Check(context.Background())
	if h.Status != Unavailable || h.ErrorCode != ErrStoreUnavailable {
		t.Errorf("unexpected %+v", h)
	}
}

func TestPlaybackChecker(t *testing.T) {
	tests := []struct {
		stats PlaybackDetails
		want  HealthStatus
	}{
		{PlaybackDetails{}, OK},
		{PlaybackDetails{ActiveSessions: 4, PlayingSessions: 3, FailedSessions: 1}, OK},
		{PlaybackDetails{ActiveSessions: 4, FailedSessions: 3}, Degraded},
	}
	for _, tt := range tests {
		c := PlaybackChecker{Stats: func() PlaybackDetails { return tt.stats }}
		if got := c.Check(context.Background()).Status; got != tt.want {
			t.Errorf("stats %+v: got %v, want %v", tt.stats, got, tt.want)
		}
	}
}
