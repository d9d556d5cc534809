// SPDX-License-Identifier: MIT

// Package decoder binds stream demuxers to a playback surface behind one
// attach/detach contract.
package decoder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	xglog "github.com/ManuGH/tvgrid/internal/log"
	"github.com/ManuGH/tvgrid/internal/playback"
	"github.com/rs/zerolog"
)

// DefaultAttachTimeout is the ceiling after which an attach resolves as a
// timeout even if the decoder never reports an error.
const DefaultAttachTimeout = 15 * time.Second

// Binding names.
const (
	NameNative = "native"
	NameHLS    = "hls"
	NameFLV    = "flv"
	NameDASH   = "dash"
)

// Binding is the uniform contract of every decoder binding.
type Binding interface {
	Name() string
	// Attach resolves exactly once. On success playback has started on surface.
	Attach(ctx context.Context, route playback.Route, surface *Surface) Outcome
	// Detach is idempotent and safe before any Attach. It returns once the
	// binding has stopped writing and released the surface.
	Detach()
	State() State
}

// Stream is a loaded, playable media source.
type Stream interface {
	// Run writes media to w until the source ends, fails fatally or ctx is done.
	Run(ctx context.Context, w io.Writer) error
	// Close releases the source without running it.
	Close() error
}

// Engine loads a URL up to the point where the media is known to be playable
// (the decoder's "ready" event). Fatal problems are returned as errors;
// recoverable ones go to nonFatal and loading continues.
type Engine interface {
	Load(ctx context.Context, url string, nonFatal func(error)) (Stream, error)
}

// Options configures a Decoder.
type Options struct {
	AttachTimeout time.Duration
}

var ownerSeq atomic.Uint64

// Decoder is the Binding implementation shared by all formats: it owns the
// state machine, the timeout race and the pump goroutine, and delegates the
// format work to an Engine.
type Decoder struct {
	name    string
	owner   string
	engine  Engine
	timeout time.Duration
	logger  zerolog.Logger

	mu      sync.Mutex
	state   State
	gen     uint64
	cancel  context.CancelFunc
	done    chan struct{}
	surface *Surface
	lastErr error
}

// New wraps engine in a Binding called name.
func New(name string, engine Engine, opts Options) *Decoder {
	timeout := opts.AttachTimeout
	if timeout <= 0 {
		timeout = DefaultAttachTimeout
	}
	return &Decoder{
		name:    name,
		owner:   fmt.Sprintf("%s#%d", name, ownerSeq.Add(1)),
		engine:  engine,
		timeout: timeout,
		logger:  xglog.WithComponent("decoder").With().Str(xglog.FieldBinding, name).Logger(),
	}
}

// Name returns the binding name.
func (d *Decoder) Name() string { return d.name }

// State returns the current lifecycle state.
func (d *Decoder) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Err returns the error that ended the last playback, if any.
func (d *Decoder) Err() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastErr
}

type loadResult struct {
	stream Stream
	err    error
}

// Attach loads route on surface. The engine's ready event races the ceiling
// timer; whichever comes first decides the outcome and a late result from the
// loser is discarded without touching state.
func (d *Decoder) Attach(ctx context.Context, route playback.Route, surface *Surface) Outcome {
	// A binding holds at most one attachment.
	d.Detach()

	if err := surface.Acquire(d.owner); err != nil {
		return Failure(err.Error())
	}
	surface.Prepare()

	// The attachment outlives the caller's context once playing; only
	// Detach ends it. Values such as trace spans are kept.
	attachCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})

	d.mu.Lock()
	d.gen++
	gen := d.gen
	d.state = StateAttaching
	d.cancel = cancel
	d.done = done
	d.surface = surface
	d.lastErr = nil
	d.mu.Unlock()

	results := make(chan loadResult, 1)
	go func() {
		stream, err := d.engine.Load(attachCtx, route.ResolvedURL, d.nonFatal)
		results <- loadResult{stream: stream, err: err}
	}()

	timer := time.NewTimer(d.timeout)
	defer timer.Stop()

	select {
	case res := <-results:
		if res.err != nil {
			return d.fail(gen, Failure(res.err.Error()), cancel, done)
		}
		return d.start(gen, res.stream, attachCtx, cancel, done)

	case <-timer.C:
		d.discardLate(results)
		return d.fail(gen, TimedOut(), cancel, done)

	case <-ctx.Done():
		d.discardLate(results)
		return d.fail(gen, Failure("cancelled: "+ctx.Err().Error()), cancel, done)

	case <-attachCtx.Done():
		// Detached while attaching.
		d.discardLate(results)
		close(done)
		return Failure("detached")
	}
}

// discardLate drains a load result that lost the race and closes its stream.
func (d *Decoder) discardLate(results <-chan loadResult) {
	go func() {
		res := <-results
		if res.stream != nil {
			_ = res.stream.Close()
			d.logger.Debug().
				Str(xglog.FieldEvent, "decoder.late_ready_ignored").
				Msg("decoder became ready after the attach had already resolved")
		}
	}()
}

func (d *Decoder) fail(gen uint64, out Outcome, cancel context.CancelFunc, done chan struct{}) Outcome {
	cancel()
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.gen == gen {
		d.state = StateFailed
		d.cancel = nil
		d.done = nil
		if d.surface != nil {
			d.surface.Release(d.owner)
			d.surface = nil
		}
		d.lastErr = out.Err()
	}
	close(done)
	return out
}

func (d *Decoder) start(gen uint64, stream Stream, ctx context.Context, cancel context.CancelFunc, done chan struct{}) Outcome {
	d.mu.Lock()
	if d.gen != gen {
		d.mu.Unlock()
		_ = stream.Close()
		close(done)
		return Failure("detached")
	}
	surface := d.surface
	d.state = StatePlaying
	surface.MarkStarted(true)
	d.mu.Unlock()

	ended := make(chan error, 1)
	go func() {
		defer close(done)
		defer close(ended)
		err := stream.Run(ctx, surface)
		_ = stream.Close()

		d.mu.Lock()
		defer d.mu.Unlock()
		if d.gen != gen || errors.Is(err, context.Canceled) {
			return
		}
		surface.MarkStarted(false)
		if err == nil {
			d.state = StateIdle
			d.logger.Info().Str(xglog.FieldEvent, "decoder.ended").Msg("media source ended")
		} else {
			d.lastErr = err
			d.state = StateFailed
			d.logger.Warn().
				Str(xglog.FieldEvent, "decoder.playback_error").
				Err(err).
				Msg("fatal decoder error during playback")
		}
		ended <- err
	}()

	d.logger.Debug().Str(xglog.FieldEvent, "decoder.playing").Msg("binding attached")
	out := Success(surface.Volume())
	out.Ended = ended
	return out
}

func (d *Decoder) nonFatal(err error) {
	d.logger.Warn().
		Str(xglog.FieldEvent, "decoder.non_fatal").
		Err(err).
		Msg("non-fatal decoder error, playback continues")
}

// Detach stops playback, waits for the pump to exit and releases the surface.
func (d *Decoder) Detach() {
	d.mu.Lock()
	d.gen++
	cancel, done, surface := d.cancel, d.done, d.surface
	d.cancel, d.done, d.surface = nil, nil, nil
	d.state = StateIdle
	d.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
	if surface != nil {
		surface.Release(d.owner)
	}
}
