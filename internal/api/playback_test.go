// SPDX-License-Identifier: MIT

package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/tvgrid/internal/playback"
	"github.com/ManuGH/tvgrid/internal/playback/browser"
	"github.com/ManuGH/tvgrid/internal/playback/decoder"
	"github.com/ManuGH/tvgrid/internal/playback/orchestrator"
	"github.com/ManuGH/tvgrid/internal/ratelimit"
)

const (
	liveURL = "http://streams.test/live/index.m3u8"
	deadURL = "http://streams.test/dead/index.m3u8"
)

func (f *fixture) start(t *testing.T, url string) PlaybackView {
	t.Helper()
	res := f.do(t, http.MethodPost, Prefix+"/playback", map[string]string{"url": url, "name": "Test"}, "")
	require.Equal(t, http.StatusCreated, res.Status, string(res.Body))
	var v PlaybackView
	res.decode(t, &v)
	assert.Equal(t, Prefix+"/playback/"+v.ID, res.Header.Get("Location"))
	return v
}

func (f *fixture) waitStatus(t *testing.T, id string, status playback.Status) PlaybackView {
	t.Helper()
	var v PlaybackView
	require.Eventually(t, func() bool {
		res := f.do(t, http.MethodGet, Prefix+"/playback/"+id, nil, "")
		if res.Status != http.StatusOK {
			return false
		}
		res.decode(t, &v)
		return v.Session.Status == status
	}, 5*time.Second, 10*time.Millisecond, "waiting for %s", status)
	return v
}

func TestPlayback_StartsWithBrowserHint(t *testing.T) {
	f := newFixture(t)
	v := f.start(t, liveURL)
	assert.Equal(t, browser.Chrome, v.Hint.Browser)

	v = f.waitStatus(t, v.ID, playback.StatusPlaying)
	assert.Equal(t, decoder.NameHLS, v.Session.Binding)
	require.NotEmpty(t, v.Session.Attempts)
	assert.Equal(t, orchestrator.DefaultRetryCeiling, v.Session.RetriesLeft)
}

func TestPlayback_RejectsBadInput(t *testing.T) {
	f := newFixture(t)
	res := f.do(t, http.MethodPost, Prefix+"/playback", map[string]string{"url": "file:///etc/passwd"}, "")
	assert.Equal(t, http.StatusBadRequest, res.Status)

	res = f.do(t, http.MethodGet, Prefix+"/playback/unknown", nil, "")
	assert.Equal(t, http.StatusNotFound, res.Status)
}

func TestPlayback_RetryCeiling(t *testing.T) {
	f := newFixture(t)
	v := f.start(t, deadURL)
	failed := f.waitStatus(t, v.ID, playback.StatusFailed)
	assert.Equal(t, "all_methods_exhausted", failed.Session.Code)
	assert.NotEmpty(t, failed.Session.Report)

	for i := 0; i < orchestrator.DefaultRetryCeiling; i++ {
		res := f.do(t, http.MethodPost, Prefix+"/playback/"+v.ID+"/retry", nil, "")
		require.Equal(t, http.StatusAccepted, res.Status, "retry %d: %s", i+1, res.Body)
		f.waitStatus(t, v.ID, playback.StatusFailed)
	}

	res := f.do(t, http.MethodPost, Prefix+"/playback/"+v.ID+"/retry", nil, "")
	assert.Equal(t, http.StatusConflict, res.Status)
	assert.Equal(t, "retry_ceiling_reached", res.errorCode(t))

	got := f.waitStatus(t, v.ID, playback.StatusFailed)
	assert.Equal(t, 0, got.Session.RetriesLeft)
}

func TestPlayback_RetryWhilePlayingConflicts(t *testing.T) {
	f := newFixture(t)
	v := f.start(t, liveURL)
	f.waitStatus(t, v.ID, playback.StatusPlaying)

	res := f.do(t, http.MethodPost, Prefix+"/playback/"+v.ID+"/retry", nil, "")
	assert.Equal(t, http.StatusConflict, res.Status)
	assert.Equal(t, "not_failed", res.errorCode(t))
}

func TestPlayback_VolumeStopDelete(t *testing.T) {
	f := newFixture(t)
	v := f.start(t, liveURL)
	f.waitStatus(t, v.ID, playback.StatusPlaying)
	path := Prefix + "/playback/" + v.ID

	res := f.do(t, http.MethodPut, path+"/volume", map[string]any{"volume": 1.7, "muted": false}, "")
	require.Equal(t, http.StatusOK, res.Status)
	var vol playback.VolumeState
	res.decode(t, &vol)
	assert.Equal(t, playback.VolumeState{Volume: 1, Muted: false}, vol)

	res = f.do(t, http.MethodPut, path+"/volume", map[string]any{}, "")
	assert.Equal(t, http.StatusBadRequest, res.Status)

	res = f.do(t, http.MethodPost, path+"/stop", nil, "")
	require.Equal(t, http.StatusOK, res.Status)
	f.waitStatus(t, v.ID, playback.StatusIdle)

	res = f.do(t, http.MethodDelete, path, nil, "")
	assert.Equal(t, http.StatusNoContent, res.Status)
	assert.Equal(t, 0, f.registry.Len())
	res = f.do(t, http.MethodDelete, path, nil, "")
	assert.Equal(t, http.StatusNotFound, res.Status)
}

func TestPlayback_StreamRelaysSurface(t *testing.T) {
	f := newFixture(t)
	v := f.start(t, liveURL)
	f.waitStatus(t, v.ID, playback.StatusPlaying)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.srv.URL+Prefix+"/playback/"+v.ID+"/stream", nil)
	require.NoError(t, err)
	resp, err := f.srv.Client().Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "video/mp2t", resp.Header.Get("Content-Type"))

	buf := make([]byte, len("media-chunk;"))
	_, err = io.ReadFull(resp.Body, buf)
	require.NoError(t, err)
	assert.Equal(t, "media-chunk;", string(buf))
}

func TestPlayback_TooManySessions(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 4; i++ {
		f.start(t, liveURL)
	}
	res := f.do(t, http.MethodPost, Prefix+"/playback", map[string]string{"url": liveURL}, "")
	assert.Equal(t, http.StatusServiceUnavailable, res.Status)
	assert.Equal(t, "too_many_sessions", res.errorCode(t))
}

func TestPlayback_StartIsRateLimitedPerClient(t *testing.T) {
	limiter := ratelimit.New(ratelimit.Config{Name: "api_test", PerMinute: 1, Burst: 1})
	f := newFixture(t, func(d *Deps) { d.StartLimit = limiter.Middleware })

	f.start(t, liveURL)
	res := f.do(t, http.MethodPost, Prefix+"/playback", map[string]string{"url": liveURL}, "")
	assert.Equal(t, http.StatusTooManyRequests, res.Status)
	assert.NotEmpty(t, res.Header.Get("Retry-After"))
}

func dialEvents(t *testing.T, f *fixture, id string) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(f.srv.URL, "http") + Prefix + "/playback/" + id + "/events"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	_ = resp.Body.Close()
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readUntil(t *testing.T, conn *websocket.Conn, match func(WSMessage) bool) WSMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		var msg WSMessage
		require.NoError(t, conn.ReadJSON(&msg))
		if match(msg) {
			return msg
		}
	}
}

func stateIs(status playback.Status) func(WSMessage) bool {
	return func(m WSMessage) bool {
		if m.Type != MsgState {
			return false
		}
		var ev orchestrator.Event
		if err := json.Unmarshal(m.Payload, &ev); err != nil {
			return false
		}
		return ev.Status == status
	}
}

func TestPlayback_EventsSocket(t *testing.T) {
	f := newFixture(t)
	v := f.start(t, liveURL)
	f.waitStatus(t, v.ID, playback.StatusPlaying)

	conn := dialEvents(t, f, v.ID)
	readUntil(t, conn, stateIs(playback.StatusPlaying))

	// Autoplay starts muted; unmuting over the socket comes back as an event.
	require.NoError(t, conn.WriteJSON(map[string]any{"type": "volume", "muted": false}))
	msg := readUntil(t, conn, func(m WSMessage) bool {
		var ev orchestrator.Event
		return m.Type == MsgState && json.Unmarshal(m.Payload, &ev) == nil && !ev.Volume.Muted
	})
	assert.Equal(t, MsgState, msg.Type)

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "dance"}))
	msg = readUntil(t, conn, func(m WSMessage) bool { return m.Type == MsgError })
	var body ErrorBody
	require.NoError(t, json.Unmarshal(msg.Payload, &body))
	assert.Equal(t, CodeBadRequest, body.Error)

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "stop"}))
	readUntil(t, conn, stateIs(playback.StatusIdle))
}

func TestPlayback_EventsSocketClosesWithSession(t *testing.T) {
	f := newFixture(t)
	v := f.start(t, deadURL)
	conn := dialEvents(t, f, v.ID)
	readUntil(t, conn, stateIs(playback.StatusFailed))

	require.True(t, f.registry.Remove(v.ID))
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		var msg WSMessage
		err := conn.ReadJSON(&msg)
		if err != nil {
			assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "unexpected error: %v", err)
			return
		}
	}
}
