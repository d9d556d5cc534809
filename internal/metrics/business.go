// SPDX-License-Identifier: MIT

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	playlistImports = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tvgrid_playlist_imports_total",
		Help: "Playlist imports by detected format and result",
	}, []string{"format", "result"})

	playlistChannels = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tvgrid_playlist_channels_total",
		Help: "Channels seen while parsing playlists (kept or dropped)",
	}, []string{"disposition"})

	sweepResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tvgrid_sweep_channels_total",
		Help: "Channels checked by the reachability sweep by result",
	}, []string{"result"})

	ratingVotes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tvgrid_rating_votes_total",
		Help: "Channel votes by kind",
	}, []string{"vote"})

	channelsRemoved = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tvgrid_channels_removed_total",
		Help: "Channels deleted for falling below the rating threshold",
	})

	activations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tvgrid_activations_total",
		Help: "Activation code validations by result",
	}, []string{"result"})
)

// IncPlaylistImport records one import.
func IncPlaylistImport(format, result string) {
	playlistImports.WithLabelValues(format, result).Inc()
}

// AddPlaylistChannels records parsed channels by disposition ("kept", "dropped").
func AddPlaylistChannels(disposition string, n int) {
	if n <= 0 {
		return
	}
	playlistChannels.WithLabelValues(disposition).Add(float64(n))
}

// IncSweepResult records one sweep verdict ("reachable", "unreachable").
func IncSweepResult(result string) {
	sweepResults.WithLabelValues(result).Inc()
}

// IncRatingVote records a like or dislike.
func IncRatingVote(vote string) {
	ratingVotes.WithLabelValues(vote).Inc()
}

// AddChannelsRemoved records threshold deletions.
func AddChannelsRemoved(n int64) {
	if n <= 0 {
		return
	}
	channelsRemoved.Add(float64(n))
}

// IncActivation records an activation attempt result ("ok", "not_found", "used", "expired").
func IncActivation(result string) {
	activations.WithLabelValues(result).Inc()
}
