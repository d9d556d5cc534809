// SPDX-License-Identifier: MIT

package playlist

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/tvgrid/internal/resilience"
)

func TestFetchCachesBody(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "audio/x-mpegurl; charset=gbk")
		_, _ = w.Write([]byte("#EXTM3U\n"))
	}))
	defer srv.Close()

	f := NewFetcher(FetchConfig{Client: srv.Client()})
	for i := 0; i < 3; i++ {
		data, label, err := f.Fetch(context.Background(), srv.URL+"/list.m3u")
		require.NoError(t, err)
		assert.Equal(t, "#EXTM3U\n", string(data))
		assert.Equal(t, "gbk", label)
	}
	assert.Equal(t, int32(1), hits.Load())

	f.Invalidate(srv.URL + "/list.m3u")
	_, _, err := f.Fetch(context.Background(), srv.URL+"/list.m3u")
	require.NoError(t, err)
	assert.Equal(t, int32(2), hits.Load())
}

func TestFetchDeduplicatesConcurrentCalls(t *testing.T) {
	var hits atomic.Int32
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		<-release
		_, _ = w.Write([]byte("http://a.test/x.m3u8\n"))
	}))
	defer srv.Close()

	f := NewFetcher(FetchConfig{Client: srv.Client(), CacheTTL: -1})

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := f.Fetch(context.Background(), srv.URL)
			assert.NoError(t, err)
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()
	assert.Equal(t, int32(1), hits.Load())
}

func TestFetchLimitsBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(strings.Repeat("x", 64)))
	}))
	defer srv.Close()

	f := NewFetcher(FetchConfig{Client: srv.Client(), MaxBodyBytes: 32})
	_, _, err := f.Fetch(context.Background(), srv.URL)
	require.ErrorIs(t, err, ErrTooLarge)
}

func TestFetchRejectsStatusAndScheme(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	f := NewFetcher(FetchConfig{Client: srv.Client()})
	_, _, err := f.Fetch(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")

	_, _, err = f.Fetch(context.Background(), "file:///etc/passwd")
	require.Error(t, err)
}

func TestFetchCallerCancel(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))
	defer srv.Close()
	defer close(block)

	f := NewFetcher(FetchConfig{Client: srv.Client()})
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, _, err := f.Fetch(ctx, srv.URL)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestFetchOpensBreakerPerHost(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	f := NewFetcher(FetchConfig{
		Client:   srv.Client(),
		Breakers: resilience.NewGroup("playlist_fetch_test", 2, time.Hour),
	})
	for i := 0; i < 2; i++ {
		_, _, err := f.Fetch(context.Background(), srv.URL+"/list.m3u")
		require.Error(t, err)
		assert.NotErrorIs(t, err, resilience.ErrCircuitOpen)
	}

	_, _, err := f.Fetch(context.Background(), srv.URL+"/other.m3u")
	assert.ErrorIs(t, err, resilience.ErrCircuitOpen)
	assert.Equal(t, int32(2), hits.Load())
}
