// SPDX-License-Identifier: MIT

package playback

import (
	"context"
	"errors"
	"net"
)

// Failure taxonomy of the resolution engine. Per-method failures are recorded
// and iteration continues; only ErrAllMethodsExhausted, ErrPlaybackInterrupted
// and ErrRetryCeilingReached reach the caller as user-visible failures.
var (
	ErrClassificationAmbiguous = errors.New("classification ambiguous")
	ErrProbeUnreachable        = errors.New("probe unreachable")
	ErrAttachFailure           = errors.New("decoder attach failed")
	ErrAttachTimeout           = errors.New("decoder attach timed out")
	ErrAllMethodsExhausted     = errors.New("all playback methods exhausted")
	ErrRetryCeilingReached     = errors.New("retry ceiling reached")
	// ErrPlaybackInterrupted ends a session whose binding stopped after it
	// had started playing.
	ErrPlaybackInterrupted = errors.New("playback interrupted")
)

// Code returns the stable error code used by diagnostics and the API.
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrRetryCeilingReached):
		return "retry_ceiling_reached"
	case errors.Is(err, ErrAllMethodsExhausted):
		return "all_methods_exhausted"
	case errors.Is(err, ErrPlaybackInterrupted):
		return "playback_interrupted"
	case errors.Is(err, ErrAttachTimeout):
		return "decoder_attach_timeout"
	case errors.Is(err, ErrAttachFailure):
		return "decoder_attach_failure"
	case errors.Is(err, ErrProbeUnreachable):
		return "probe_unreachable"
	case errors.Is(err, ErrClassificationAmbiguous):
		return "classification_ambiguous"
	default:
		return "internal"
	}
}

// IsTimeout reports whether err came from a deadline rather than a refusal.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, ErrAttachTimeout) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// OutcomeOf maps an attempt error to its outcome.
func OutcomeOf(err error) Outcome {
	switch {
	case err == nil:
		return OutcomeSuccess
	case IsTimeout(err):
		return OutcomeTimeout
	default:
		return OutcomeFailure
	}
}
