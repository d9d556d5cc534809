// SPDX-License-Identifier: MIT

package diagnostics

import (
	"context"
)

// HealthChecker defines the interface for subsystem health checks.
type HealthChecker interface {
	Check(ctx context.Context) SubsystemHealth
}

// ComputeOverallStatus derives the overall health:
//   - store unavailable → unavailable (no channels can be served)
//   - network and DNS both unavailable → unavailable (no stream can be reached)
//   - any subsystem degraded/unavailable → degraded
//   - otherwise ok
func ComputeOverallStatus(subsystems map[Subsystem]SubsystemHealth) HealthStatus {
	if store, ok := subsystems[SubsystemStore]; ok && store.Status == Unavailable {
		return Unavailable
	}

	network, hasNetwork := subsystems[SubsystemNetwork]
	dns, hasDNS := subsystems[SubsystemDNS]
	if hasNetwork && hasDNS && network.Status == Unavailable && dns.Status == Unavailable {
		return Unavailable
	}

	for _, health := range subsystems {
		if health.Status == Degraded || health.Status == Unavailable {
			return Degraded
		}
	}
	return OK
}

// BuildDegradationSummary creates actionable items for failing subsystems.
func BuildDegradationSummary(subsystems map[Subsystem]SubsystemHealth) []DegradationItem {
	var items []DegradationItem

	for _, health := range subsystems {
		if health.Status != Degraded && health.Status != Unavailable {
			continue
		}
		item := DegradationItem{
			Subsystem: health.Subsystem,
			Status:    health.Status,
			ErrorCode: health.ErrorCode,
			Since:     health.MeasuredAt,
		}
		if health.LastOK != nil {
			item.Since = *health.LastOK
		}
		if actions, ok := SuggestedActions[health.ErrorCode]; ok {
			item.SuggestedActions = actions
		}
		items = append(items, item)
	}
	return items
}
