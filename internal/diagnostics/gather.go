// SPDX-License-Identifier: MIT

package diagnostics

import (
	"context"
	"sync"
	"time"

	"github.com/ManuGH/tvgrid/internal/platform/httpx"
	"golang.org/x/sync/errgroup"
)

// EnvironmentFacts summarises the client's network environment for the
// failure report.
type EnvironmentFacts struct {
	Online        bool `json:"online"`
	DNSReachable  bool `json:"dns_reachable"`
	CORSReachable bool `json:"cors_reachable"`
}

// Gather runs every checker concurrently and assembles a SystemReport.
// Checkers own their timeouts; a cancelled ctx makes them fail fast. cache
// may be nil.
func Gather(ctx context.Context, cache *LKGCache, checkers ...HealthChecker) SystemReport {
	var (
		mu         sync.Mutex
		subsystems = make(map[Subsystem]SubsystemHealth, len(checkers))
	)

	g, gctx := errgroup.WithContext(ctx)
	for _, c := range checkers {
		g.Go(func() error {
			h := c.Check(gctx)
			if cache != nil {
				h = cache.Observe(h)
			}
			mu.Lock()
			subsystems[h.Subsystem] = h
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	report := SystemReport{
		Subsystems: subsystems,
		DerivedAt:  time.Now(),
	}
	for _, h := range subsystems {
		if h.MeasuredAt.After(report.MeasuredAt) {
			report.MeasuredAt = h.MeasuredAt
		}
	}
	report.OverallStatus = ComputeOverallStatus(subsystems)
	report.DegradationSummary = BuildDegradationSummary(subsystems)
	return report
}

// Facts extracts EnvironmentFacts. A subsystem that was not checked counts
// as reachable so that it produces no suggestion.
func (r SystemReport) Facts() EnvironmentFacts {
	ok := func(sub Subsystem) bool {
		h, found := r.Subsystems[sub]
		return !found || h.Status == OK
	}
	return EnvironmentFacts{
		Online:        ok(SubsystemNetwork),
		DNSReachable:  ok(SubsystemDNS),
		CORSReachable: ok(SubsystemCORS),
	}
}

// EnvironmentCheckers returns the three network checkers sharing client.
func EnvironmentCheckers(client httpx.Doer, timeout time.Duration) []HealthChecker {
	return []HealthChecker{
		OnlineChecker{Client: client, Timeout: timeout},
		DNSChecker{Client: client, Timeout: timeout},
		CORSChecker{Client: client, Timeout: timeout},
	}
}

// GatherEnvironment runs the network checkers and returns their facts.
func GatherEnvironment(ctx context.Context, client httpx.Doer, timeout time.Duration) EnvironmentFacts {
	return Gather(ctx, nil, EnvironmentCheckers(client, timeout)...).Facts()
}
