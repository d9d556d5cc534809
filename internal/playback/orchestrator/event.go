// SPDX-License-Identifier: MIT

package orchestrator

import (
	"github.com/ManuGH/tvgrid/internal/playback"
)

// Event is delivered on every status transition and every volume/mute change
// of the attached binding.
type Event struct {
	Generation uint64               `json:"generation"`
	Status     playback.Status      `json:"status"`
	Target     playback.Target      `json:"target"`
	Binding    string               `json:"binding,omitempty"`
	Route      *playback.Route      `json:"route,omitempty"`
	Volume     playback.VolumeState `json:"volume"`
	Attempts   []playback.Attempt   `json:"attempts,omitempty"`
	Report     string               `json:"report,omitempty"`
	Err        error                `json:"-"`
	Code       string               `json:"code,omitempty"`
	Message    string               `json:"message,omitempty"`
}

// Terminal reports whether the run has resolved. A playing session can still
// fail later if its binding stops; no other status follows a terminal event
// without a new Play or Retry.
func (e Event) Terminal() bool {
	return e.Status == playback.StatusPlaying || e.Status == playback.StatusFailed
}

// Listener receives events on the orchestrator's goroutine. It must not call
// Play, Stop or Retry synchronously.
type Listener func(Event)

// Session is a point-in-time view of the playback session.
type Session struct {
	Generation  uint64               `json:"generation"`
	Target      *playback.Target     `json:"target,omitempty"`
	Status      playback.Status      `json:"status"`
	Binding     string               `json:"binding,omitempty"`
	Route       *playback.Route      `json:"route,omitempty"`
	Attempts    []playback.Attempt   `json:"attempts"`
	RetryCount  int                  `json:"retry_count"`
	RetriesLeft int                  `json:"retries_left"`
	Report      string               `json:"report,omitempty"`
	Volume      playback.VolumeState `json:"volume"`
	Code        string               `json:"code,omitempty"`
}
