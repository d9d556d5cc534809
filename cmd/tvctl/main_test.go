// SPDX-License-Identifier: MIT

package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/tvgrid/internal/playback/format"
	"github.com/ManuGH/tvgrid/internal/playback/probe"
	"github.com/ManuGH/tvgrid/internal/session"
	"github.com/ManuGH/tvgrid/internal/store"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestClassify(t *testing.T) {
	out, err := run(t, "classify", "http://cdn.test/live/index.m3u8")
	require.NoError(t, err)
	assert.Equal(t, "kind=hls confidence=optimal\n", out)

	out, err = run(t, "--json", "classify", "http://cdn.test/watch?id=7")
	require.NoError(t, err)
	var h struct {
		Kind       string `json:"kind"`
		Confidence string `json:"confidence"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &h))
	assert.Equal(t, format.Unknown.String(), h.Kind)
	assert.Equal(t, format.Fallback.String(), h.Confidence)

	_, err = run(t, "classify")
	assert.Error(t, err)
}

func TestParseFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "list.m3u")
	require.NoError(t, os.WriteFile(path, []byte(`#EXTM3U
#EXTINF:-1 group-title="News",News One
http://streams.test/news.m3u8
#EXTINF:-1,Movies
http://streams.test/movies.flv
#EXTINF:-1,Broken
ftp://streams.test/nope
`), 0o600))

	out, err := run(t, "parse", path)
	require.NoError(t, err)
	assert.Contains(t, out, "News One")
	assert.Contains(t, out, "http://streams.test/movies.flv")
	assert.Contains(t, out, "format=m3u channels=2 dropped=1")

	_, err = run(t, "parse", filepath.Join(t.TempDir(), "missing.m3u"))
	assert.Error(t, err)
}

func TestParseURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("http://streams.test/a.m3u8\nhttp://streams.test/b.m3u8\n"))
	}))
	defer srv.Close()

	out, err := run(t, "--json", "parse", srv.URL+"/list.txt")
	require.NoError(t, err)
	var res struct {
		Format   string          `json:"format"`
		Channels []store.Channel `json:"channels"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Len(t, res.Channels, 2)
}

func TestProbeDirect(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	out, err := run(t, "--no-relays", "probe", srv.URL+"/live.m3u8")
	require.NoError(t, err)
	assert.Contains(t, out, "reachable via direct-head-no-cors")

	_, err = run(t, "--no-relays", "probe", "--fastest", srv.URL+"/live.m3u8")
	assert.ErrorIs(t, err, probe.ErrUnreachable)

	_, err = run(t, "probe", "ftp://nope")
	assert.Error(t, err)

	_, err = run(t, "--relay", "ftp://relay/", "probe", srv.URL+"/live.m3u8")
	assert.Error(t, err)
}

func TestResolvePlaysProgressiveMedia(t *testing.T) {
	mp4 := string([]byte{0, 0, 0, 0x18}) + "ftypisom" + "moovdata"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "video/mp4")
		_, _ = w.Write([]byte(mp4))
	}))
	defer srv.Close()

	out, err := run(t, "--no-relays", "--timeout", "10s", "resolve", srv.URL+"/clip.mp4")
	require.NoError(t, err)
	assert.Contains(t, out, "playing with")
}

func TestLogin(t *testing.T) {
	sess := store.Session{ID: "sess-1", UserLevel: 2, ExpiresAt: time.Now().Add(time.Hour).UTC().Truncate(time.Second), CreatedAt: time.Now().UTC().Truncate(time.Second)}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Path != "/api/v1/auth/activate" || body["code"] != "GOODCODE" {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":"code_not_found","detail":"unknown code"}`))
			return
		}
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(sess)
	}))
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "tvgrid", "session.json")
	out, err := run(t, "--server", srv.URL, "login", "--session-file", path, "GOODCODE")
	require.NoError(t, err)
	assert.Contains(t, out, "logged in at level 2")

	saved, err := session.NewFileStore(path).Load()
	require.NoError(t, err)
	assert.Equal(t, sess.ID, saved.ID)

	_, err = run(t, "--server", srv.URL, "login", "--session-file", path, "BADCODE")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "code_not_found")
}
