// SPDX-License-Identifier: MIT

package telemetry

import (
	"time"

	"go.opentelemetry.io/otel/attribute"
)

// Attribute keys shared by the playback spans.
const (
	HTTPMethodKey     = "http.method"
	HTTPStatusCodeKey = "http.status_code"
	HTTPRouteKey      = "http.route"

	PlaybackChannelKey  = "playback.channel"
	PlaybackURLKey      = "playback.url"
	PlaybackKindKey     = "playback.kind"
	PlaybackGenKey      = "playback.generation"
	PlaybackResultKey   = "playback.result"
	PlaybackAttemptsKey = "playback.attempts"

	AttemptStepKey    = "attempt.step"
	AttemptMethodKey  = "attempt.method"
	AttemptBindingKey = "attempt.binding"
	AttemptOutcomeKey = "attempt.outcome"
	AttemptLatencyKey = "attempt.latency_ms"

	PlaylistSourceKey   = "playlist.source"
	PlaylistFormatKey   = "playlist.format"
	PlaylistChannelsKey = "playlist.channels"

	ErrorTypeKey = "error.type"
)

// HTTPAttributes creates common HTTP span attributes.
func HTTPAttributes(method, route string, statusCode int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(HTTPMethodKey, method),
		attribute.String(HTTPRouteKey, route),
		attribute.Int(HTTPStatusCodeKey, statusCode),
	}
}

// PlaybackAttributes describes a playback run. Empty values are skipped.
func PlaybackAttributes(channel, url, kind string, generation uint64) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, 4)
	if channel != "" {
		attrs = append(attrs, attribute.String(PlaybackChannelKey, channel))
	}
	if url != "" {
		attrs = append(attrs, attribute.String(PlaybackURLKey, url))
	}
	if kind != "" {
		attrs = append(attrs, attribute.String(PlaybackKindKey, kind))
	}
	return append(attrs, attribute.Int64(PlaybackGenKey, int64(generation)))
}

// AttemptAttributes describes one attempt as a span event.
func AttemptAttributes(step int, method, binding, outcome string, latency time.Duration) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.Int(AttemptStepKey, step),
		attribute.String(AttemptMethodKey, method),
		attribute.String(AttemptOutcomeKey, outcome),
		attribute.Int64(AttemptLatencyKey, latency.Milliseconds()),
	}
	if binding != "" {
		attrs = append(attrs, attribute.String(AttemptBindingKey, binding))
	}
	return attrs
}

// PlaylistAttributes describes a playlist import.
func PlaylistAttributes(source, format string, channels int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(PlaylistSourceKey, source),
		attribute.String(PlaylistFormatKey, format),
		attribute.Int(PlaylistChannelsKey, channels),
	}
}

// ErrorAttributes tags a span with a stable error code.
func ErrorAttributes(code string) []attribute.KeyValue {
	return []attribute.KeyValue{attribute.String(ErrorTypeKey, code)}
}
