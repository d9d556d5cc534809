// SPDX-License-Identifier: MIT

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	probeAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tvgrid_probe_attempts_total",
		Help: "Reachability probe attempts by method kind (direct, encoding, proxy) and result",
	}, []string{"method_kind", "result"})

	probeLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tvgrid_probe_latency_seconds",
		Help:    "Latency of successful reachability probes",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 4, 8, 15},
	}, []string{"method_kind"})

	playbackRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tvgrid_playback_runs_total",
		Help: "Completed playback resolution runs by result (playing, failed, superseded)",
	}, []string{"result"})

	playbackAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tvgrid_playback_attempts_total",
		Help: "Decoder attach attempts by binding and outcome",
	}, []string{"binding", "outcome"})

	playbackTimeToPlay = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tvgrid_playback_time_to_play_seconds",
		Help:    "Time from play request to an attached, started binding",
		Buckets: []float64{0.25, 0.5, 1, 2, 4, 8, 15, 30, 60, 120},
	}, []string{"binding"})

	playbackActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tvgrid_playback_active_sessions",
		Help: "Playback sessions currently registered",
	})

	playbackRetriesRejected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tvgrid_playback_retries_rejected_total",
		Help: "Caller retries refused because the retry ceiling was reached",
	})
)

// ObserveProbe records one probe attempt. Latency is only observed on success.
func ObserveProbe(methodKind string, ok bool, latency time.Duration) {
	result := "failure"
	if ok {
		result = "success"
		probeLatency.WithLabelValues(methodKind).Observe(latency.Seconds())
	}
	probeAttempts.WithLabelValues(methodKind, result).Inc()
}

// IncPlaybackRun records the end of an orchestration run.
func IncPlaybackRun(result string) {
	playbackRuns.WithLabelValues(result).Inc()
}

// IncPlaybackAttempt records one decoder attach attempt.
func IncPlaybackAttempt(binding, outcome string) {
	playbackAttempts.WithLabelValues(binding, outcome).Inc()
}

// ObserveTimeToPlay records the time it took to reach the playing state.
func ObserveTimeToPlay(binding string, d time.Duration) {
	playbackTimeToPlay.WithLabelValues(binding).Observe(d.Seconds())
}

// SetActivePlaybackSessions sets the registered playback session gauge.
func SetActivePlaybackSessions(n int) {
	playbackActive.Set(float64(n))
}

// IncRetryRejected counts a refused caller retry.
func IncRetryRejected() {
	playbackRetriesRejected.Inc()
}
