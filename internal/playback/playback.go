// SPDX-License-Identifier: MIT

// Package playback holds the values shared by the stream resolution engine:
// the target being resolved, the routes the prober finds and the attempt log
// the orchestrator keeps for diagnostics.
package playback

import (
	"time"
)

// Target is the immutable input of a playback run.
type Target struct {
	URL         string `json:"url"`
	DisplayName string `json:"display_name"`
}

// Route is a way of reaching a stream that answered a reachability check.
// It is consumed once by the orchestrator and never persisted.
type Route struct {
	ResolvedURL     string        `json:"resolved_url"`
	MethodID        string        `json:"method_id"`
	MeasuredLatency time.Duration `json:"measured_latency"`
	ThroughProxy    bool          `json:"through_proxy"`
}

// DirectRoute wraps a raw URL that has not been probed.
func DirectRoute(url string) Route {
	return Route{ResolvedURL: url, MethodID: MethodDirect}
}

// Outcome is the result of one attempt.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
	OutcomeTimeout Outcome = "timeout"
)

// Method identifiers used in attempt records.
const (
	MethodDirect            = "direct"
	MethodDirectHeadNoCORS  = "direct-head-no-cors"
	MethodDirectGetCORS     = "direct-get-cors"
	MethodDirectGetNoCORS   = "direct-get-no-cors"
	MethodFastestProxyRace  = "fastest-proxy"
	MethodDirectEncodingFmt = "direct-encoding-%d"
)

// Attempt is one append-only entry of the attempt log. Binding is empty for
// pure reachability checks.
type Attempt struct {
	Step     int           `json:"step"`
	MethodID string        `json:"method_id"`
	Binding  string        `json:"binding,omitempty"`
	URL      string        `json:"url,omitempty"`
	Outcome  Outcome       `json:"outcome"`
	Detail   string        `json:"detail,omitempty"`
	Latency  time.Duration `json:"latency"`
}

// Failed reports whether the attempt did not succeed.
func (a Attempt) Failed() bool {
	return a.Outcome != OutcomeSuccess
}

// Status is the playback session state.
type Status string

const (
	StatusIdle      Status = "idle"
	StatusProbing   Status = "probing"
	StatusAttaching Status = "attaching"
	StatusPlaying   Status = "playing"
	StatusFailed    Status = "failed"
)

// VolumeState is the audio level reported by an attached binding.
type VolumeState struct {
	Volume float64 `json:"volume"`
	Muted  bool    `json:"muted"`
}
