// SPDX-License-Identifier: MIT

package log

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
)

func captureBase(t *testing.T) *bytes.Buffer {
	t.Helper()
	buf := &bytes.Buffer{}
	Reconfigure(Config{Level: "debug", Output: buf, Service: "test", Version: "v0"})
	t.Cleanup(func() { Reconfigure(Config{}) })
	return buf
}

func lastLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.NotEmpty(t, lines)
	var m map[string]any
	require.NoError(t, json.Unmarshal(lines[len(lines)-1], &m))
	return m
}

func TestContextIDs(t *testing.T) {
	ctx := ContextWithRequestID(nil, "req-1") //nolint:staticcheck // nil context is handled
	ctx = ContextWithSessionID(ctx, "sess-1")
	ctx = ContextWithPlaybackID(ctx, "pb-1")

	assert.Equal(t, "req-1", RequestIDFromContext(ctx))
	assert.Equal(t, "sess-1", SessionIDFromContext(ctx))
	assert.Equal(t, "pb-1", PlaybackIDFromContext(ctx))
	assert.Empty(t, RequestIDFromContext(context.Background()))
}

func TestWithComponentFromContext(t *testing.T) {
	buf := captureBase(t)

	ctx := ContextWithRequestID(context.Background(), "req-42")
	l := WithComponentFromContext(ctx, "probe")
	l.Info().Str(FieldEvent, "probe.start").Msg("hello")

	m := lastLine(t, buf)
	assert.Equal(t, "probe", m["component"])
	assert.Equal(t, "req-42", m["request_id"])
	assert.Equal(t, "probe.start", m["event"])
	assert.Equal(t, "test", m["service"])
	assert.Equal(t, "v0", m["version"])
}

func TestWithContextTraceIDs(t *testing.T) {
	buf := captureBase(t)

	traceID, _ := trace.TraceIDFromHex("0102030405060708090a0b0c0d0e0f10")
	spanID, _ := trace.SpanIDFromHex("0102030405060708")
	sc := trace.NewSpanContext(trace.SpanContextConfig{TraceID: traceID, SpanID: spanID, TraceFlags: trace.FlagsSampled})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	l := WithContext(ctx, Base())
	l.Info().Msg("traced")

	m := lastLine(t, buf)
	assert.Equal(t, traceID.String(), m["trace_id"])
	assert.Equal(t, spanID.String(), m["span_id"])
}

func TestWithContextNoFieldsReturnsSameLogger(t *testing.T) {
	buf := captureBase(t)
	l := WithContext(context.Background(), WithComponent("x"))
	l.Info().Msg("plain")
	m := lastLine(t, buf)
	_, ok := m["request_id"]
	assert.False(t, ok)
}

func TestMiddlewareLogsStatus(t *testing.T) {
	buf := captureBase(t)

	h := Middleware()(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("short"))
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/channels", nil))

	m := lastLine(t, buf)
	assert.Equal(t, "http.request", m["event"])
	assert.EqualValues(t, http.StatusTeapot, m["status"])
	assert.EqualValues(t, 5, m["bytes"])
	assert.Equal(t, "/api/v1/channels", m["path"])
}
