// SPDX-License-Identifier: MIT

package diagnostics

// Subsystem error codes.
const (
	ErrNetworkOffline   = "NETWORK_OFFLINE"
	ErrNetworkTimeout   = "NETWORK_TIMEOUT"
	ErrDNSUnreachable   = "DNS_UNREACHABLE"
	ErrDNSNoAnswer      = "DNS_NO_ANSWER"
	ErrCORSRestricted   = "CORS_RESTRICTED"
	ErrStoreUnavailable = "STORE_UNAVAILABLE"
	ErrPlaybackFailing  = "PLAYBACK_FAILING"
)

// Playback error codes, as returned by playback.Code.
const (
	CodeClassificationAmbiguous = "classification_ambiguous"
	CodeProbeUnreachable        = "probe_unreachable"
	CodeAttachFailure           = "decoder_attach_failure"
	CodeAttachTimeout           = "decoder_attach_timeout"
	CodeAllMethodsExhausted     = "all_methods_exhausted"
	CodeRetryCeilingReached     = "retry_ceiling_reached"
	CodePlaybackInterrupted     = "playback_interrupted"
)

// ErrorMessages are the user-facing texts per code.
var ErrorMessages = map[string]string{
	ErrNetworkOffline:   "No network connection",
	ErrNetworkTimeout:   "Network responding slowly",
	ErrDNSUnreachable:   "DNS resolution failed",
	ErrDNSNoAnswer:      "DNS returned no records",
	ErrCORSRestricted:   "Cross-origin requests are restricted",
	ErrStoreUnavailable: "Channel database unavailable",
	ErrPlaybackFailing:  "Most playback sessions are failing",

	CodeClassificationAmbiguous: "Stream format could not be determined",
	CodeProbeUnreachable:        "Stream did not answer",
	CodeAttachFailure:           "Player could not open the stream",
	CodeAttachTimeout:           "Player timed out opening the stream",
	CodeAllMethodsExhausted:     "Stream could not be played with any method",
	CodeRetryCeilingReached:     "Retry limit reached",
	CodePlaybackInterrupted:     "Stream stopped while playing",
}

// SuggestedActions provides remediation guidance per code.
var SuggestedActions = map[string][]string{
	ErrNetworkOffline: {
		"Check the network connection",
		"Verify proxy or firewall settings",
	},
	ErrDNSUnreachable: {
		"Check the DNS settings",
		"Try a public resolver such as 8.8.8.8",
	},
	ErrCORSRestricted: {
		"Use a CORS relay for cross-origin streams",
		"Review the configured relay list",
	},
	ErrStoreUnavailable: {
		"Verify the database DSN",
		"Check that the database file or server is reachable",
	},
	CodeAllMethodsExhausted: {
		"Open the stream in an external player (VLC, mpv)",
		"Check whether the stream URL is still valid",
		"Try again later",
	},
	CodePlaybackInterrupted: {
		"Retry the channel",
		"Open the stream in an external player (VLC, mpv)",
	},
	CodeRetryCeilingReached: {
		"Open the stream in an external player (VLC, mpv)",
		"Select the channel again to start over",
	},
}

// Message returns the user-facing text for code, or code itself.
func Message(code string) string {
	if msg, ok := ErrorMessages[code]; ok {
		return msg
	}
	return code
}
