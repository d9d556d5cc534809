// SPDX-License-Identifier: MIT

package decoder

import (
	"fmt"

	"github.com/ManuGH/tvgrid/internal/playback"
)

// State is the per-binding lifecycle: Idle -> Attaching -> {Playing | Failed},
// Playing -> Idle on Detach, Failed -> Attaching only through a new Attach.
type State int32

const (
	StateIdle State = iota
	StateAttaching
	StatePlaying
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAttaching:
		return "attaching"
	case StatePlaying:
		return "playing"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Outcome is the single resolution of an Attach call.
type Outcome struct {
	OK      bool
	Reason  string
	Timeout bool
	Volume  playback.VolumeState
	// Ended is set on success. It delivers the cause once playback stops on
	// its own, nil for a source that ended cleanly. It is closed without a
	// value when the attachment is detached or superseded instead.
	Ended <-chan error
}

// Success builds a successful outcome.
func Success(v playback.VolumeState) Outcome {
	return Outcome{OK: true, Volume: v}
}

// Failure builds a failed outcome.
func Failure(reason string) Outcome {
	return Outcome{Reason: reason}
}

// TimedOut builds the ceiling-timeout outcome.
func TimedOut() Outcome {
	return Outcome{Reason: "timeout", Timeout: true}
}

// Err maps the outcome to the playback error taxonomy.
func (o Outcome) Err() error {
	switch {
	case o.OK:
		return nil
	case o.Timeout:
		return playback.ErrAttachTimeout
	default:
		return fmt.Errorf("%w: %s", playback.ErrAttachFailure, o.Reason)
	}
}
