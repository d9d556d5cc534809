// SPDX-License-Identifier: MIT

// Package sweep checks which stored channels are reachable.
package sweep

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/puzpuzpuz/xsync/v3"

	xglog "github.com/ManuGH/tvgrid/internal/log"
	"github.com/ManuGH/tvgrid/internal/metrics"
	"github.com/ManuGH/tvgrid/internal/playback/probe"
	"github.com/ManuGH/tvgrid/internal/store"
)

const (
	DefaultWorkers = 8
	DefaultTimeout = 5 * time.Second
)

// Checker runs one request style against a URL.
type Checker interface {
	Check(ctx context.Context, url string, m probe.Method, timeout time.Duration) (time.Duration, error)
}

// Result is the verdict for one channel.
type Result struct {
	ChannelID string        `json:"channel_id"`
	Name      string        `json:"name"`
	Reachable bool          `json:"reachable"`
	Method    string        `json:"method,omitempty"`
	Latency   time.Duration `json:"latency_ns,omitempty"`
	Error     string        `json:"error,omitempty"`
}

// Report lists results in input order.
type Report struct {
	Results     []Result `json:"results"`
	Reachable   int      `json:"reachable"`
	Unreachable int      `json:"unreachable"`
	Skipped     int      `json:"skipped"`
}

// Sweeper fans checks out over a bounded worker pool.
type Sweeper struct {
	checker Checker
	pool    *ants.Pool
	timeout time.Duration
	methods []probe.Method
}

// New returns a sweeper with its own pool. Close releases it.
func New(checker Checker, workers int, timeout time.Duration) (*Sweeper, error) {
	if checker == nil {
		return nil, errors.New("sweep: checker is required")
	}
	if workers <= 0 {
		workers = DefaultWorkers
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	pool, err := ants.NewPool(workers, ants.WithPreAlloc(true))
	if err != nil {
		return nil, fmt.Errorf("sweep: create worker pool: %w", err)
	}
	return &Sweeper{checker: checker, pool: pool, timeout: timeout, methods: probe.DirectMethods}, nil
}

// Close releases the worker pool and waits for its workers to exit.
func (s *Sweeper) Close() error {
	return s.pool.ReleaseTimeout(5 * time.Second)
}

// Run checks every channel. Channels not started before ctx ends are counted
// as skipped; the context error is returned alongside the partial report.
func (s *Sweeper) Run(ctx context.Context, channels []store.Channel) (Report, error) {
	logger := xglog.WithComponentFromContext(ctx, "sweep")
	start := time.Now()

	results := xsync.NewMapOf[string, Result]()
	var wg sync.WaitGroup
	for _, ch := range channels {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		err := s.pool.Submit(func() {
			defer wg.Done()
			if ctx.Err() != nil {
				return
			}
			results.Store(ch.ID, s.check(ctx, ch))
		})
		if err != nil {
			wg.Done()
			logger.Warn().Err(err).Str(xglog.FieldChannelID, ch.ID).Msg("sweep task rejected")
		}
	}
	wg.Wait()

	var report Report
	for _, ch := range channels {
		r, ok := results.Load(ch.ID)
		switch {
		case !ok:
			report.Skipped++
			continue
		case r.Reachable:
			report.Reachable++
			metrics.IncSweepResult("reachable")
		default:
			report.Unreachable++
			metrics.IncSweepResult("unreachable")
		}
		report.Results = append(report.Results, r)
	}

	logger.Info().
		Str(xglog.FieldEvent, "sweep.completed").
		Int("reachable", report.Reachable).
		Int("unreachable", report.Unreachable).
		Int("skipped", report.Skipped).
		Int64(xglog.FieldLatencyMS, time.Since(start).Milliseconds()).
		Msg("channel sweep finished")
	return report, ctx.Err()
}

// check stops at the first direct method that answers.
func (s *Sweeper) check(ctx context.Context, ch store.Channel) Result {
	res := Result{ChannelID: ch.ID, Name: ch.Name}
	var errs []error
	for _, m := range s.methods {
		latency, err := s.checker.Check(ctx, ch.URL, m, s.timeout)
		if err == nil {
			res.Reachable = true
			res.Method = m.ID
			res.Latency = latency
			return res
		}
		errs = append(errs, fmt.Errorf("%s: %w", m.ID, err))
		if ctx.Err() != nil {
			break
		}
	}
	res.Error = errors.Join(errs...).Error()
	return res
}
