// SPDX-License-Identifier: MIT

package telemetry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/attribute"
)

func TestPlaybackAttributes_SkipsEmpty(t *testing.T) {
	attrs := PlaybackAttributes("News 24", "", "hls", 7)
	assert.Equal(t, []attribute.KeyValue{
		attribute.String(PlaybackChannelKey, "News 24"),
		attribute.String(PlaybackKindKey, "hls"),
		attribute.Int64(PlaybackGenKey, 7),
	}, attrs)
}

func TestAttemptAttributes(t *testing.T) {
	attrs := AttemptAttributes(4, "proxy-2", "", "timeout", 1500*time.Millisecond)
	assert.Len(t, attrs, 4, "binding is omitted for reachability checks")
	assert.Contains(t, attrs, attribute.Int64(AttemptLatencyKey, 1500))

	attrs = AttemptAttributes(1, "direct", "hls", "success", 0)
	assert.Contains(t, attrs, attribute.String(AttemptBindingKey, "hls"))
}

func TestHTTPAndPlaylistAttributes(t *testing.T) {
	assert.Contains(t, HTTPAttributes("GET", "/api/v1/channels", 200), attribute.Int(HTTPStatusCodeKey, 200))
	assert.Contains(t, PlaylistAttributes("url", "m3u", 12), attribute.Int(PlaylistChannelsKey, 12))
	assert.Equal(t, []attribute.KeyValue{attribute.String(ErrorTypeKey, "probe_unreachable")}, ErrorAttributes("probe_unreachable"))
}
