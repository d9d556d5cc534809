// SPDX-License-Identifier: MIT

package orchestrator

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ManuGH/tvgrid/internal/diagnostics"
	xglog "github.com/ManuGH/tvgrid/internal/log"
	"github.com/ManuGH/tvgrid/internal/metrics"
	"github.com/ManuGH/tvgrid/internal/playback"
	"github.com/ManuGH/tvgrid/internal/playback/browser"
	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v3"
)

// ErrTooManySessions is returned when the registry is full.
var ErrTooManySessions = errors.New("too many playback sessions")

// Factory builds the orchestrator for a new session.
type Factory func(hint browser.Hint) (*Orchestrator, error)

// RegistryOptions configures a Registry.
type RegistryOptions struct {
	MaxSessions int
	IdleTimeout time.Duration
	Now         func() time.Time
}

// Entry is one registered playback session.
type Entry struct {
	ID        string
	Hint      browser.Hint
	CreatedAt time.Time
	*Orchestrator

	hub      *hub
	lastSeen atomic.Int64
}

// touch marks the session as used.
func (e *Entry) touch(now time.Time) { e.lastSeen.Store(now.UnixNano()) }

// Subscribe streams the session's events. The current state is delivered first.
func (e *Entry) Subscribe() (<-chan Event, func()) { return e.hub.subscribe() }

// Registry holds the active playback sessions.
type Registry struct {
	sessions *xsync.MapOf[string, *Entry]
	factory  Factory
	opts     RegistryOptions
	count    atomic.Int64
}

// NewRegistry returns an empty registry.
func NewRegistry(factory Factory, opts RegistryOptions) *Registry {
	if opts.MaxSessions <= 0 {
		opts.MaxSessions = 64
	}
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = 30 * time.Minute
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Registry{
		sessions: xsync.NewMapOf[string, *Entry](),
		factory:  factory,
		opts:     opts,
	}
}

// Start creates a session for hint and starts playing target on it.
func (r *Registry) Start(ctx context.Context, target playback.Target, hint browser.Hint) (*Entry, error) {
	if r.count.Add(1) > int64(r.opts.MaxSessions) {
		r.count.Add(-1)
		return nil, ErrTooManySessions
	}

	o, err := r.factory(hint)
	if err != nil {
		r.count.Add(-1)
		return nil, err
	}

	now := r.opts.Now()
	e := &Entry{
		ID:           uuid.NewString(),
		Hint:         hint,
		CreatedAt:    now,
		Orchestrator: o,
		hub:          newHub(),
	}
	e.touch(now)
	r.sessions.Store(e.ID, e)
	metrics.SetActivePlaybackSessions(int(r.count.Load()))

	ctx = xglog.ContextWithPlaybackID(ctx, e.ID)
	o.Play(ctx, target, e.hub.publish)
	return e, nil
}

// Get returns the session and marks it used.
func (r *Registry) Get(id string) (*Entry, bool) {
	e, ok := r.sessions.Load(id)
	if ok {
		e.touch(r.opts.Now())
	}
	return e, ok
}

// Remove closes and forgets the session.
func (r *Registry) Remove(id string) bool {
	e, ok := r.sessions.LoadAndDelete(id)
	if !ok {
		return false
	}
	r.count.Add(-1)
	metrics.SetActivePlaybackSessions(int(r.count.Load()))
	e.Close()
	e.hub.close()
	return true
}

// Len returns the number of sessions.
func (r *Registry) Len() int { return r.sessions.Size() }

// Reap removes sessions idle for longer than the idle timeout.
func (r *Registry) Reap() int {
	cutoff := r.opts.Now().Add(-r.opts.IdleTimeout).UnixNano()
	var stale []string
	r.sessions.Range(func(id string, e *Entry) bool {
		if e.lastSeen.Load() < cutoff && !e.hub.watched() {
			stale = append(stale, id)
		}
		return true
	})
	n := 0
	for _, id := range stale {
		if r.Remove(id) {
			n++
		}
	}
	return n
}

// RunReaper reaps every interval until ctx is done.
func (r *Registry) RunReaper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	logger := xglog.WithComponent("playback_registry")
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := r.Reap(); n > 0 {
				logger.Info().Str(xglog.FieldEvent, "playback.reaped").Int("sessions", n).Msg("idle playback sessions removed")
			}
		}
	}
}

// Stats summarises the sessions for the health report.
func (r *Registry) Stats() diagnostics.PlaybackDetails {
	var d diagnostics.PlaybackDetails
	r.sessions.Range(func(_ string, e *Entry) bool {
		d.ActiveSessions++
		switch e.Session().Status {
		case playback.StatusPlaying:
			d.PlayingSessions++
		case playback.StatusFailed:
			d.FailedSessions++
		}
		return true
	})
	return d
}

// Close removes every session.
func (r *Registry) Close() {
	var ids []string
	r.sessions.Range(func(id string, _ *Entry) bool {
		ids = append(ids, id)
		return true
	})
	for _, id := range ids {
		r.Remove(id)
	}
}

// hub fans events out to subscribers and remembers the last one.
type hub struct {
	mu     sync.Mutex
	subs   map[int]chan Event
	next   int
	last   *Event
	closed bool
}

func newHub() *hub {
	return &hub{subs: make(map[int]chan Event)}
}

func (h *hub) publish(ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.last = &ev
	for _, ch := range h.subs {
		select {
		case ch <- ev:
			continue
		default:
		}
		if !ev.Terminal() {
			continue
		}
		// Only publish sends, under h.mu, so one freed slot is enough.
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- ev:
		default:
		}
	}
}

func (h *hub) subscribe() (<-chan Event, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch := make(chan Event, 32)
	if h.closed {
		close(ch)
		return ch, func() {}
	}
	if h.last != nil {
		ch <- *h.last
	}
	id := h.next
	h.next++
	h.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if c, ok := h.subs[id]; ok {
				delete(h.subs, id)
				close(c)
			}
		})
	}
}

func (h *hub) watched() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs) > 0
}

func (h *hub) close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for id, ch := range h.subs {
		delete(h.subs, id)
		close(ch)
	}
}
