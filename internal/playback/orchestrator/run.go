// SPDX-License-Identifier: MIT

package orchestrator

import (
	"context"
	"fmt"

	"github.com/ManuGH/tvgrid/internal/diagnostics"
	xglog "github.com/ManuGH/tvgrid/internal/log"
	"github.com/ManuGH/tvgrid/internal/metrics"
	"github.com/ManuGH/tvgrid/internal/playback"
	"github.com/ManuGH/tvgrid/internal/playback/decoder"
	"github.com/ManuGH/tvgrid/internal/playback/format"
	"github.com/ManuGH/tvgrid/internal/playback/probe"
	"github.com/ManuGH/tvgrid/internal/playback/proxychain"
	"github.com/ManuGH/tvgrid/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Resolution steps, recorded on every attempt.
const (
	StepDirect     = 1
	StepProbe      = 2
	StepFastest    = 3
	StepExhaustive = 4
	// StepPlayback marks a binding that stopped after it started playing.
	StepPlayback = 5
)

func (o *Orchestrator) run(ctx context.Context, gen uint64, target playback.Target, done chan struct{}) {
	defer close(done)

	hyp := format.Classify(target.URL)
	ctx, span := o.tracer.Start(ctx, "playback.run",
		trace.WithAttributes(telemetry.PlaybackAttributes(target.DisplayName, target.URL, hyp.Kind.String(), gen)...))
	defer span.End()

	logger := xglog.WithContext(ctx, o.logger).With().
		Uint64(xglog.FieldGeneration, gen).
		Str(xglog.FieldChannel, channelName(target)).
		Logger()
	started := o.cfg.Now()

	binding, ok := o.resolve(ctx, gen, target, hyp, span)

	switch {
	case ok:
		metrics.IncPlaybackRun("playing")
		metrics.ObserveTimeToPlay(binding, o.cfg.Now().Sub(started))
		span.SetAttributes(attribute.String(telemetry.PlaybackResultKey, "playing"))
		logger.Info().
			Str(xglog.FieldEvent, "playback.playing").
			Str(xglog.FieldBinding, binding).
			Int64(xglog.FieldLatencyMS, o.cfg.Now().Sub(started).Milliseconds()).
			Msg("stream playing")
		return

	case ctx.Err() != nil || !o.live(gen):
		metrics.IncPlaybackRun("superseded")
		span.SetAttributes(attribute.String(telemetry.PlaybackResultKey, "superseded"))
		return
	}

	env := diagnostics.EnvironmentFacts{Online: true, DNSReachable: true, CORSReachable: true}
	if o.cfg.Environment != nil {
		env = o.cfg.Environment(ctx)
	}

	attempts := o.snapshotAttempts()
	report := diagnostics.BuildReport(attempts, env)
	err := fmt.Errorf("%w: could not play %q after %d attempts, open the stream in an external player",
		playback.ErrAllMethodsExhausted, channelName(target), len(attempts))

	if !o.transition(gen, playback.StatusFailed, func() {
		o.current = nil
		o.route = nil
		o.report = report
		o.lastErr = err
	}) {
		metrics.IncPlaybackRun("superseded")
		return
	}

	metrics.IncPlaybackRun("failed")
	span.SetAttributes(
		attribute.String(telemetry.PlaybackResultKey, "failed"),
		attribute.Int(telemetry.PlaybackAttemptsKey, len(attempts)),
	)
	span.SetAttributes(telemetry.ErrorAttributes(playback.Code(err))...)
	span.SetStatus(codes.Error, err.Error())
	logger.Warn().
		Str(xglog.FieldEvent, "playback.failed").
		Int("attempts", len(attempts)).
		Err(err).
		Msg("all playback methods exhausted")
}

// resolve walks the steps in order; the first successful attach wins.
func (o *Orchestrator) resolve(ctx context.Context, gen uint64, target playback.Target, hyp format.Hypothesis, span trace.Span) (string, bool) {
	if hyp.Ambiguous() {
		o.logger.Debug().
			Str(xglog.FieldEvent, "playback.classification_ambiguous").
			Str(xglog.FieldFormat, hyp.Kind.String()).
			Str("code", playback.Code(playback.ErrClassificationAmbiguous)).
			Msg("no optimal binding for url, falling back to trial order")
	} else if b, ok := o.cfg.Bindings.ForKind(hyp.Kind); ok {
		if o.attempt(ctx, gen, StepDirect, playback.DirectRoute(target.URL), b, span) {
			return b.Name(), true
		}
	}

	if ctx.Err() != nil || !o.enter(gen, playback.StatusProbing) {
		return "", false
	}
	if route, err := o.cfg.Prober.Probe(ctx, target.URL, o.observer(gen, StepProbe, span)); err == nil {
		if name, ok := o.tryRoute(ctx, gen, StepProbe, route, span); ok {
			return name, true
		}
	}

	if ctx.Err() != nil || !o.enter(gen, playback.StatusProbing) {
		return "", false
	}
	if route, found := o.cfg.Prober.FindFastestProxy(ctx, target.URL, o.observer(gen, StepFastest, span)); found {
		if name, ok := o.tryRoute(ctx, gen, StepFastest, route, span); ok {
			return name, true
		}
	}

	return o.exhaust(ctx, gen, target, span)
}

// tryRoute reclassifies the resolved URL and attempts the matching binding,
// or every binding in trial order when the kind has none.
func (o *Orchestrator) tryRoute(ctx context.Context, gen uint64, step int, route playback.Route, span trace.Span) (string, bool) {
	if b, ok := o.cfg.Bindings.ForKind(format.Classify(route.ResolvedURL).Kind); ok {
		return b.Name(), o.attempt(ctx, gen, step, route, b, span)
	}
	return o.trial(ctx, gen, step, route, span)
}

func (o *Orchestrator) trial(ctx context.Context, gen uint64, step int, route playback.Route, span trace.Span) (string, bool) {
	for _, name := range o.order {
		b, ok := o.cfg.Bindings.Get(name)
		if !ok {
			continue
		}
		if ctx.Err() != nil {
			return "", false
		}
		if o.attempt(ctx, gen, step, route, b, span) {
			return name, true
		}
	}
	return "", false
}

// exhaust tries every binding in trial order against the three direct
// methods and then every relay.
func (o *Orchestrator) exhaust(ctx context.Context, gen uint64, target playback.Target, span trace.Span) (string, bool) {
	routes := make([]playback.Route, 0, 3)
	for _, m := range probe.DirectMethods {
		routes = append(routes, playback.Route{ResolvedURL: target.URL, MethodID: m.ID})
	}
	chain := o.cfg.Prober.Chain()
	for i := 0; i < chain.Len(); i++ {
		proxied, err := chain.Generate(target.URL, i)
		if err != nil {
			break
		}
		routes = append(routes, playback.Route{ResolvedURL: proxied, MethodID: proxychain.MethodID(i), ThroughProxy: true})
	}

	for _, route := range routes {
		if ctx.Err() != nil || !o.live(gen) {
			return "", false
		}
		if route.ThroughProxy {
			o.limiter.Take()
		}
		if name, ok := o.trial(ctx, gen, StepExhaustive, route, span); ok {
			return name, true
		}
	}
	return "", false
}

// attempt detaches whatever holds the surface, attaches b and records the
// outcome.
func (o *Orchestrator) attempt(ctx context.Context, gen uint64, step int, route playback.Route, b decoder.Binding, span trace.Span) bool {
	o.mu.Lock()
	if o.gen != gen {
		o.mu.Unlock()
		return false
	}
	prev := o.current
	o.mu.Unlock()
	if prev != nil && prev != b {
		prev.Detach()
	}

	r := route
	if !o.transition(gen, playback.StatusAttaching, func() {
		o.current = b
		o.route = &r
	}) {
		return false
	}

	start := o.cfg.Now()
	out := b.Attach(ctx, route, o.cfg.Surface)
	latency := o.cfg.Now().Sub(start)

	a := playback.Attempt{
		Step:     step,
		MethodID: route.MethodID,
		Binding:  b.Name(),
		URL:      route.ResolvedURL,
		Outcome:  playback.OutcomeOf(out.Err()),
		Detail:   out.Reason,
		Latency:  latency,
	}
	o.record(gen, a)
	metrics.IncPlaybackAttempt(a.Binding, string(a.Outcome))
	span.AddEvent("attempt", trace.WithAttributes(
		telemetry.AttemptAttributes(step, a.MethodID, a.Binding, string(a.Outcome), latency)...))

	if !out.OK {
		o.logger.Debug().
			Str(xglog.FieldEvent, "playback.attempt_failed").
			Int(xglog.FieldAttempt, step).
			Str(xglog.FieldMethod, a.MethodID).
			Str(xglog.FieldBinding, a.Binding).
			Str(xglog.FieldOutcome, string(a.Outcome)).
			Str("reason", out.Reason).
			Msg("binding did not attach")
		return false
	}

	if !o.transition(gen, playback.StatusPlaying, nil) {
		// Superseded between attach and now; halt detaches o.current.
		return false
	}
	if out.Ended != nil {
		go o.watchEnd(gen, route, b, out.Ended)
	}
	return true
}

// watchEnd fails a playing session whose binding stops on its own. The
// failure is a terminal event like exhaustion, so Retry and its ceiling apply.
func (o *Orchestrator) watchEnd(gen uint64, route playback.Route, b decoder.Binding, ended <-chan error) {
	cause, ok := <-ended
	if !ok {
		return
	}

	// ctl keeps a new run from reattaching b before it is detached below.
	o.ctl.Lock()
	defer o.ctl.Unlock()
	if !o.live(gen) {
		return
	}

	detail := "media source ended"
	if cause != nil {
		detail = cause.Error()
	}
	o.record(gen, playback.Attempt{
		Step:     StepPlayback,
		MethodID: route.MethodID,
		Binding:  b.Name(),
		URL:      route.ResolvedURL,
		Outcome:  playback.OutcomeFailure,
		Detail:   "playback stopped: " + detail,
	})
	metrics.IncPlaybackAttempt(b.Name(), string(playback.OutcomeFailure))

	o.mu.Lock()
	target := *o.target
	o.mu.Unlock()

	ctx := context.Background()
	env := diagnostics.EnvironmentFacts{Online: true, DNSReachable: true, CORSReachable: true}
	if o.cfg.Environment != nil {
		env = o.cfg.Environment(ctx)
	}
	attempts := o.snapshotAttempts()
	report := diagnostics.BuildReport(attempts, env)
	err := fmt.Errorf("%w: %q stopped playing via %s (%s), retry or open the stream in an external player",
		playback.ErrPlaybackInterrupted, channelName(target), b.Name(), detail)

	if !o.transition(gen, playback.StatusFailed, func() {
		o.current = nil
		o.route = nil
		o.report = report
		o.lastErr = err
	}) {
		return
	}
	b.Detach()

	metrics.IncPlaybackRun("interrupted")
	o.logger.Warn().
		Str(xglog.FieldEvent, "playback.interrupted").
		Uint64(xglog.FieldGeneration, gen).
		Str(xglog.FieldChannel, channelName(target)).
		Str(xglog.FieldBinding, b.Name()).
		Err(cause).
		Msg("binding stopped after playback had started")
}

// observer records reachability checks of a probe step.
func (o *Orchestrator) observer(gen uint64, step int, span trace.Span) probe.Observer {
	return func(a playback.Attempt) {
		a.Step = step
		o.record(gen, a)
		span.AddEvent("probe", trace.WithAttributes(
			telemetry.AttemptAttributes(step, a.MethodID, "", string(a.Outcome), a.Latency)...))
	}
}

// enter transitions to status unless the session is already there.
func (o *Orchestrator) enter(gen uint64, status playback.Status) bool {
	o.mu.Lock()
	same := o.gen == gen && o.status == status
	o.mu.Unlock()
	if same {
		return true
	}
	return o.transition(gen, status, func() {
		o.current = nil
		o.route = nil
	})
}

func (o *Orchestrator) live(gen uint64) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.gen == gen
}

func (o *Orchestrator) snapshotAttempts() []playback.Attempt {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]playback.Attempt(nil), o.attempts...)
}
