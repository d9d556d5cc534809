// SPDX-License-Identifier: MIT

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldSessionID  = "session_id"
	FieldRequestID  = "request_id"
	FieldPlaybackID = "playback_id"
	FieldChannelID  = "channel_id"
	FieldUserID     = "user_id"

	// Process fields
	FieldEvent     = "event"
	FieldComponent = "component"

	// Playback fields
	FieldChannel    = "channel"
	FieldMethod     = "method"
	FieldBinding    = "binding"
	FieldFormat     = "format"
	FieldOutcome    = "outcome"
	FieldAttempt    = "attempt"
	FieldLatencyMS  = "latency_ms"
	FieldGeneration = "generation"

	// State fields
	FieldOldState = "old_state"
	FieldNewState = "new_state"

	// Path / URL fields
	FieldURL  = "url"
	FieldPath = "path"
)
