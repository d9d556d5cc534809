// SPDX-License-Identifier: MIT

package decoder

import (
	"errors"
	"sync"

	"github.com/ManuGH/tvgrid/internal/playback"
)

// ErrSurfaceBusy is returned when a binding tries to take a surface that
// another binding still holds.
var ErrSurfaceBusy = errors.New("playback surface is held by another binding")

// CrossOriginAnonymous is the credentials mode applied before every attach.
const CrossOriginAnonymous = "anonymous"

// SurfaceOptions configures a Surface.
type SurfaceOptions struct {
	// Autoplay means playback starts without a user gesture, which requires a
	// muted start.
	Autoplay bool
	// Volume is the initial level in [0,1]; zero means full volume.
	Volume float64
	// SubscriberBuffer is the per-subscriber chunk queue length.
	SubscriberBuffer int
}

// Surface is the single media sink of a playback session. Exactly one binding
// may hold it at a time; media written to it is fanned out to subscribers.
type Surface struct {
	mu          sync.Mutex
	owner       string
	crossOrigin string
	autoplay    bool
	muted       bool
	volume      float64
	started     bool
	closed      bool
	written     int64
	subs        map[int]chan []byte
	nextSub     int
	subBuf      int
	onVolume    func(playback.VolumeState)
}

// NewSurface returns an unowned surface.
func NewSurface(opts SurfaceOptions) *Surface {
	vol := opts.Volume
	if vol <= 0 || vol > 1 {
		vol = 1
	}
	buf := opts.SubscriberBuffer
	if buf <= 0 {
		buf = 64
	}
	return &Surface{
		autoplay: opts.Autoplay,
		volume:   vol,
		subs:     make(map[int]chan []byte),
		subBuf:   buf,
	}
}

// Acquire hands the surface to owner. Re-acquiring by the current owner is allowed.
func (s *Surface) Acquire(owner string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.owner != "" && s.owner != owner {
		return ErrSurfaceBusy
	}
	s.owner = owner
	return nil
}

// Release frees the surface if owner holds it and stops playback.
func (s *Surface) Release(owner string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.owner != owner {
		return
	}
	s.owner = ""
	s.started = false
}

// Owner returns the current holder, or "" when free.
func (s *Surface) Owner() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.owner
}

// Prepare configures the surface for cross-origin playback: anonymous
// credentials, and a muted start where autoplay requires one.
func (s *Surface) Prepare() {
	s.mu.Lock()
	s.crossOrigin = CrossOriginAnonymous
	changed := s.autoplay && !s.muted
	if changed {
		s.muted = true
	}
	state, fn := s.volumeLocked(), s.onVolume
	s.mu.Unlock()

	if changed && fn != nil {
		fn(state)
	}
}

// CrossOrigin returns the credentials mode in effect.
func (s *Surface) CrossOrigin() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.crossOrigin
}

// MarkStarted records whether media is actively flowing.
func (s *Surface) MarkStarted(started bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started = started
}

// Started reports whether playback is actively running.
func (s *Surface) Started() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

// OnVolumeChange registers the single volume/mute listener.
func (s *Surface) OnVolumeChange(fn func(playback.VolumeState)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onVolume = fn
}

// SetVolume clamps v to [0,1] and notifies the listener on change.
func (s *Surface) SetVolume(v float64) {
	if v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	s.mu.Lock()
	changed := s.volume != v
	s.volume = v
	state, fn := s.volumeLocked(), s.onVolume
	s.mu.Unlock()

	if changed && fn != nil {
		fn(state)
	}
}

// SetMuted toggles mute and notifies the listener on change.
func (s *Surface) SetMuted(m bool) {
	s.mu.Lock()
	changed := s.muted != m
	s.muted = m
	state, fn := s.volumeLocked(), s.onVolume
	s.mu.Unlock()

	if changed && fn != nil {
		fn(state)
	}
}

// Volume returns the current audio state.
func (s *Surface) Volume() playback.VolumeState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.volumeLocked()
}

func (s *Surface) volumeLocked() playback.VolumeState {
	return playback.VolumeState{Volume: s.volume, Muted: s.muted}
}

// Write fans p out to every subscriber. Subscribers that are not keeping up
// lose the chunk; the writer is never blocked by a viewer.
func (s *Surface) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	chunk := make([]byte, len(p))
	copy(chunk, p)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.written += int64(len(p))
	for _, ch := range s.subs {
		select {
		case ch <- chunk:
		default:
		}
	}
	return len(p), nil
}

// BytesWritten returns the total number of media bytes written.
func (s *Surface) BytesWritten() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.written
}

// Subscribe returns a channel of media chunks and a cancel func. The channel
// is closed by cancel or by Close.
func (s *Surface) Subscribe() (<-chan []byte, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := make(chan []byte, s.subBuf)
	if s.closed {
		close(ch)
		return ch, func() {}
	}
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if c, ok := s.subs[id]; ok {
				delete(s.subs, id)
				close(c)
			}
		})
	}
}

// Close ends every subscription. The surface cannot be subscribed to afterwards.
func (s *Surface) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	for id, ch := range s.subs {
		delete(s.subs, id)
		close(ch)
	}
	s.owner = ""
	s.started = false
}
