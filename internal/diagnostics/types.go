// SPDX-License-Identifier: MIT

package diagnostics

import (
	"time"
)

// HealthStatus represents the health state of a subsystem.
type HealthStatus int

const (
	Unknown HealthStatus = iota
	OK
	Degraded
	Unavailable
)

func (h HealthStatus) String() string {
	switch h {
	case OK:
		return "ok"
	case Degraded:
		return "degraded"
	case Unavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

func (h HealthStatus) MarshalJSON() ([]byte, error) {
	return []byte(`"` + h.String() + `"`), nil
}

// Criticality defines whether a subsystem is critical or optional.
type Criticality int

const (
	Critical Criticality = iota
	Optional
)

func (c Criticality) String() string {
	if c == Critical {
		return "critical"
	}
	return "optional"
}

func (c Criticality) MarshalJSON() ([]byte, error) {
	return []byte(`"` + c.String() + `"`), nil
}

// Source indicates how the health status was determined.
type Source string

const (
	SourceProbe   Source = "probe"   // Active check
	SourceCache   Source = "cache"   // Last-known-good cache
	SourceDerived Source = "derived" // Computed from in-process state
)

// Subsystem identifies the component being reported on.
type Subsystem string

const (
	SubsystemNetwork  Subsystem = "network"
	SubsystemDNS      Subsystem = "dns"
	SubsystemCORS     Subsystem = "cors"
	SubsystemStore    Subsystem = "store"
	SubsystemPlayback Subsystem = "playback"
)

// SubsystemHealth is the health of a single subsystem. Measured and derived
// state are kept apart through Source.
type SubsystemHealth struct {
	Subsystem    Subsystem    `json:"subsystem"`
	Status       HealthStatus `json:"status"`
	MeasuredAt   time.Time    `json:"measured_at"`
	Source       Source       `json:"source"`
	Criticality  Criticality  `json:"criticality"`
	LastOK       *time.Time   `json:"last_ok,omitempty"`
	ErrorCode    string       `json:"error_code,omitempty"`
	ErrorMessage string       `json:"error_message,omitempty"`
	Details      interface{}  `json:"details,omitempty"`
}

// SystemReport is the overall health served by the diagnostics endpoint.
type SystemReport struct {
	MeasuredAt         time.Time                     `json:"measured_at"`
	DerivedAt          time.Time                     `json:"derived_at"`
	OverallStatus      HealthStatus                  `json:"overall_status"`
	Subsystems         map[Subsystem]SubsystemHealth `json:"subsystems"`
	DegradationSummary []DegradationItem             `json:"degradation_summary,omitempty"`
}

// DegradationItem is actionable information about a failing subsystem.
type DegradationItem struct {
	Subsystem        Subsystem    `json:"subsystem"`
	Status           HealthStatus `json:"status"`
	Since            time.Time    `json:"since"`
	ErrorCode        string       `json:"error_code"`
	SuggestedActions []string     `json:"suggested_actions,omitempty"`
}

// NetworkDetails describes one outbound reachability check.
type NetworkDetails struct {
	Target         string `json:"target"`
	ResponseTimeMS int64  `json:"response_time_ms"`
	HTTPStatus     int    `json:"http_status,omitempty"`
}

// PlaybackDetails is derived from the playback session registry.
type PlaybackDetails struct {
	ActiveSessions  int `json:"active_sessions"`
	PlayingSessions int `json:"playing_sessions"`
	FailedSessions  int `json:"failed_sessions"`
}
