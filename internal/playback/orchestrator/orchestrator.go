// SPDX-License-Identifier: MIT

// Package orchestrator resolves a stream target to a playing decoder binding:
// direct attempt, probe, relay race, then the exhaustive method matrix.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ManuGH/tvgrid/internal/diagnostics"
	xglog "github.com/ManuGH/tvgrid/internal/log"
	"github.com/ManuGH/tvgrid/internal/metrics"
	"github.com/ManuGH/tvgrid/internal/playback"
	"github.com/ManuGH/tvgrid/internal/playback/browser"
	"github.com/ManuGH/tvgrid/internal/playback/decoder"
	"github.com/ManuGH/tvgrid/internal/playback/probe"
	"github.com/ManuGH/tvgrid/internal/playback/proxychain"
	"github.com/ManuGH/tvgrid/internal/resilience"
	"github.com/ManuGH/tvgrid/internal/telemetry"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/ratelimit"
)

// DefaultRetryCeiling is the number of caller retries allowed per target.
const DefaultRetryCeiling = 3

var (
	// ErrNoTarget is returned by Retry before anything was played.
	ErrNoTarget = errors.New("no target to retry")
	// ErrNotFailed is returned by Retry unless the last run failed.
	ErrNotFailed = errors.New("retry is only allowed after a failed run")
)

// Prober is the reachability side of the engine.
type Prober interface {
	Probe(ctx context.Context, target string, observe probe.Observer) (playback.Route, error)
	FindFastestProxy(ctx context.Context, target string, observe probe.Observer) (playback.Route, bool)
	Chain() *proxychain.Chain
}

// Config configures an Orchestrator.
type Config struct {
	Prober   Prober
	Bindings *decoder.Set
	Surface  *decoder.Surface
	// Order is the binding trial order for unclassified routes and for the
	// exhaustive pass. Empty means browser.DefaultOrder.
	Order []string
	// RetryCeiling is the number of caller retries per target; zero means
	// DefaultRetryCeiling and a negative value disables retries.
	RetryCeiling int
	// RelayAttemptsPerSecond paces relay methods in the exhaustive pass;
	// zero means unpaced.
	RelayAttemptsPerSecond int
	// Environment gathers the facts for the failure report. Nil assumes a
	// healthy environment.
	Environment func(ctx context.Context) diagnostics.EnvironmentFacts
	Tracer      trace.Tracer
	Now         func() time.Time
	// Name labels the retry ceiling metric.
	Name string
}

// Orchestrator owns one playback surface and the session playing on it.
// Play, Stop and Retry are safe for concurrent use.
type Orchestrator struct {
	cfg     Config
	order   []string
	limiter ratelimit.Limiter
	retries *resilience.Ceiling
	tracer  trace.Tracer
	logger  zerolog.Logger

	// ctl serialises Play, Stop and Retry.
	ctl sync.Mutex

	mu       sync.Mutex
	gen      uint64
	cancel   context.CancelFunc
	done     chan struct{}
	target   *playback.Target
	listener Listener
	status   playback.Status
	current  decoder.Binding
	route    *playback.Route
	attempts []playback.Attempt
	report   string
	lastErr  error
}

// New returns an idle orchestrator.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.Prober == nil {
		return nil, errors.New("orchestrator: prober is required")
	}
	if cfg.Bindings == nil {
		return nil, errors.New("orchestrator: bindings are required")
	}
	if cfg.Surface == nil {
		cfg.Surface = decoder.NewSurface(decoder.SurfaceOptions{})
	}
	switch {
	case cfg.RetryCeiling == 0:
		cfg.RetryCeiling = DefaultRetryCeiling
	case cfg.RetryCeiling < 0:
		cfg.RetryCeiling = 0
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Tracer == nil {
		cfg.Tracer = telemetry.Tracer("github.com/ManuGH/tvgrid/internal/playback/orchestrator")
	}
	if cfg.Name == "" {
		cfg.Name = "playback_retry"
	}

	order := cfg.Order
	if len(order) == 0 {
		order = browser.DefaultOrder()
	}

	limiter := ratelimit.NewUnlimited()
	if cfg.RelayAttemptsPerSecond > 0 {
		limiter = ratelimit.New(cfg.RelayAttemptsPerSecond)
	}

	o := &Orchestrator{
		cfg:     cfg,
		order:   order,
		limiter: limiter,
		retries: resilience.NewCeiling(cfg.Name, cfg.RetryCeiling),
		tracer:  cfg.Tracer,
		logger:  xglog.WithComponent("orchestrator"),
		status:  playback.StatusIdle,
	}
	cfg.Surface.OnVolumeChange(o.onVolume)
	return o, nil
}

// Surface returns the playback surface.
func (o *Orchestrator) Surface() *decoder.Surface { return o.cfg.Surface }

// Play starts resolving target and returns immediately. A run in flight is
// superseded: its callbacks are dropped and its binding is detached before
// Play returns. The retry ceiling is reset.
func (o *Orchestrator) Play(ctx context.Context, target playback.Target, onChange Listener) {
	o.ctl.Lock()
	defer o.ctl.Unlock()

	o.halt()
	o.retries.Reset()
	o.start(ctx, target, onChange)
}

// Stop aborts the current run and detaches the binding. It is a no-op when idle.
func (o *Orchestrator) Stop() {
	o.ctl.Lock()
	defer o.ctl.Unlock()

	gen := o.halt()

	o.mu.Lock()
	wasIdle := o.status == playback.StatusIdle
	o.status = playback.StatusIdle
	o.route = nil
	ev := o.eventLocked()
	listener := o.listener
	o.mu.Unlock()

	if !wasIdle && listener != nil {
		ev.Generation = gen
		listener(ev)
	}
}

// Retry re-runs the last target after a failure. Once the ceiling is reached
// it returns playback.ErrRetryCeilingReached and issues no network work.
func (o *Orchestrator) Retry(ctx context.Context) error {
	o.ctl.Lock()
	defer o.ctl.Unlock()

	o.mu.Lock()
	target, status, listener := o.target, o.status, o.listener
	o.mu.Unlock()

	if target == nil {
		return ErrNoTarget
	}
	if status != playback.StatusFailed {
		return ErrNotFailed
	}

	if err := o.retries.Acquire(); err != nil {
		metrics.IncRetryRejected()
		rejected := fmt.Errorf("%w: %d retries used for %q, open the stream in an external player",
			playback.ErrRetryCeilingReached, o.retries.Used(), channelName(*target))

		o.mu.Lock()
		o.lastErr = rejected
		ev := o.eventLocked()
		o.mu.Unlock()

		o.logger.Warn().
			Str(xglog.FieldEvent, "playback.retry_rejected").
			Str(xglog.FieldChannel, channelName(*target)).
			Msg("retry ceiling reached")
		if listener != nil {
			listener(ev)
		}
		return rejected
	}

	o.halt()
	o.start(ctx, *target, listener)
	return nil
}

// SetVolume forwards to the surface; listeners see the change as an event.
func (o *Orchestrator) SetVolume(v float64) { o.cfg.Surface.SetVolume(v) }

// SetMuted forwards to the surface.
func (o *Orchestrator) SetMuted(m bool) { o.cfg.Surface.SetMuted(m) }

// Session returns a snapshot of the current session.
func (o *Orchestrator) Session() Session {
	o.mu.Lock()
	defer o.mu.Unlock()

	s := Session{
		Generation:  o.gen,
		Status:      o.status,
		Attempts:    append([]playback.Attempt(nil), o.attempts...),
		RetryCount:  o.retries.Used(),
		RetriesLeft: o.retries.Remaining(),
		Report:      o.report,
		Volume:      o.cfg.Surface.Volume(),
		Code:        playback.Code(o.lastErr),
	}
	if o.target != nil {
		t := *o.target
		s.Target = &t
	}
	if o.current != nil {
		s.Binding = o.current.Name()
	}
	if o.route != nil {
		r := *o.route
		s.Route = &r
	}
	return s
}

// Close stops playback and closes the surface.
func (o *Orchestrator) Close() {
	o.Stop()
	o.cfg.Surface.Close()
}

// halt supersedes the current run, waits for it to exit and detaches the
// binding. It returns the new generation.
func (o *Orchestrator) halt() uint64 {
	o.mu.Lock()
	o.gen++
	gen := o.gen
	cancel, done := o.cancel, o.done
	o.cancel, o.done = nil, nil
	o.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}

	o.mu.Lock()
	current := o.current
	o.current = nil
	o.mu.Unlock()
	if current != nil {
		current.Detach()
	}
	return gen
}

func (o *Orchestrator) start(ctx context.Context, target playback.Target, onChange Listener) {
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})

	o.mu.Lock()
	o.gen++
	gen := o.gen
	o.cancel, o.done = cancel, done
	o.target = &target
	o.listener = onChange
	o.status = playback.StatusIdle
	o.route = nil
	o.attempts = nil
	o.report = ""
	o.lastErr = nil
	o.mu.Unlock()

	go o.run(runCtx, gen, target, done)
}

// transition moves a live generation to status and emits the event.
// Stale generations are dropped.
func (o *Orchestrator) transition(gen uint64, status playback.Status, mutate func()) bool {
	o.mu.Lock()
	if o.gen != gen {
		o.mu.Unlock()
		return false
	}
	old := o.status
	o.status = status
	if mutate != nil {
		mutate()
	}
	ev := o.eventLocked()
	listener := o.listener
	o.mu.Unlock()

	o.logger.Debug().
		Str(xglog.FieldEvent, "playback.transition").
		Uint64(xglog.FieldGeneration, gen).
		Str(xglog.FieldOldState, string(old)).
		Str(xglog.FieldNewState, string(status)).
		Str(xglog.FieldBinding, ev.Binding).
		Msg("playback status changed")

	if listener != nil {
		listener(ev)
	}
	return true
}

func (o *Orchestrator) onVolume(v playback.VolumeState) {
	o.mu.Lock()
	if o.target == nil {
		o.mu.Unlock()
		return
	}
	ev := o.eventLocked()
	ev.Volume = v
	listener := o.listener
	o.mu.Unlock()

	if listener != nil {
		listener(ev)
	}
}

func (o *Orchestrator) eventLocked() Event {
	ev := Event{
		Generation: o.gen,
		Status:     o.status,
		Volume:     o.cfg.Surface.Volume(),
		Attempts:   append([]playback.Attempt(nil), o.attempts...),
		Report:     o.report,
		Err:        o.lastErr,
	}
	if o.target != nil {
		ev.Target = *o.target
	}
	if o.current != nil {
		ev.Binding = o.current.Name()
	}
	if o.route != nil {
		r := *o.route
		ev.Route = &r
	}
	if o.lastErr != nil {
		ev.Code = playback.Code(o.lastErr)
		ev.Message = o.lastErr.Error()
	}
	return ev
}

func (o *Orchestrator) record(gen uint64, a playback.Attempt) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.gen == gen {
		o.attempts = append(o.attempts, a)
	}
}

func channelName(t playback.Target) string {
	if t.DisplayName != "" {
		return t.DisplayName
	}
	return t.URL
}
