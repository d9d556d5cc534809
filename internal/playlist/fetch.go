// SPDX-License-Identifier: MIT

package playlist

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"time"

	"github.com/maypok86/otter/v2"
	"golang.org/x/sync/singleflight"

	xglog "github.com/ManuGH/tvgrid/internal/log"
	"github.com/ManuGH/tvgrid/internal/platform/httpx"
	platformnet "github.com/ManuGH/tvgrid/internal/platform/net"
	"github.com/ManuGH/tvgrid/internal/resilience"
)

const (
	DefaultCacheTTL     = 5 * time.Minute
	DefaultMaxBodyBytes = 16 << 20
	DefaultFetchTimeout = 15 * time.Second
	defaultCacheEntries = 256

	hostFailureThreshold = 3
	hostResetTimeout     = time.Minute
)

// ErrTooLarge is returned when a playlist exceeds the configured size.
var ErrTooLarge = errors.New("playlist body exceeds size limit")

// FetchConfig configures a Fetcher.
type FetchConfig struct {
	Client       httpx.Doer
	CacheTTL     time.Duration
	MaxBodyBytes int64
	// Breakers guards each upstream host. Nil gets a default group.
	Breakers *resilience.Group
}

// body is a cached response.
type body struct {
	data    []byte
	charset string
}

// Fetcher downloads remote playlists. Concurrent fetches of one URL share a
// single request and recent bodies are served from memory.
type Fetcher struct {
	client   httpx.Doer
	maxBody  int64
	group    singleflight.Group
	cache    *otter.Cache[string, body]
	breakers *resilience.Group
}

// NewFetcher returns a Fetcher with defaults filled in. A negative CacheTTL
// disables caching.
func NewFetcher(cfg FetchConfig) *Fetcher {
	if cfg.Client == nil {
		cfg.Client = httpx.NewClient(DefaultFetchTimeout)
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if cfg.CacheTTL == 0 {
		cfg.CacheTTL = DefaultCacheTTL
	}
	if cfg.Breakers == nil {
		cfg.Breakers = resilience.NewGroup("playlist_fetch", hostFailureThreshold, hostResetTimeout)
	}
	f := &Fetcher{client: cfg.Client, maxBody: cfg.MaxBodyBytes, breakers: cfg.Breakers}
	if cfg.CacheTTL > 0 {
		f.cache = otter.Must(&otter.Options[string, body]{
			MaximumSize:      defaultCacheEntries,
			ExpiryCalculator: otter.ExpiryWriting[string, body](cfg.CacheTTL),
		})
	}
	return f
}

// Fetch returns the body of the playlist at rawURL and its declared charset.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) ([]byte, string, error) {
	u, err := platformnet.ParseStreamURL(rawURL)
	if err != nil {
		return nil, "", err
	}
	key := u.String()

	if f.cache != nil {
		if b, ok := f.cache.GetIfPresent(key); ok {
			return b.data, b.charset, nil
		}
	}

	// The shared request must outlive the first caller's cancellation.
	ch := f.group.DoChan(key, func() (any, error) {
		var b body
		err := f.breakers.Get(u.Host).Execute(func() error {
			var err error
			b, err = f.download(context.WithoutCancel(ctx), key)
			return err
		})
		if errors.Is(err, resilience.ErrCircuitOpen) {
			return nil, fmt.Errorf("fetch playlist from %s: %w", u.Host, err)
		}
		return b, err
	})
	select {
	case <-ctx.Done():
		return nil, "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, "", res.Err
		}
		b := res.Val.(body)
		return b.data, b.charset, nil
	}
}

// Invalidate drops a cached body.
func (f *Fetcher) Invalidate(rawURL string) {
	if f.cache == nil {
		return
	}
	if u, err := platformnet.ParseStreamURL(rawURL); err == nil {
		f.cache.Invalidate(u.String())
	}
}

func (f *Fetcher) download(ctx context.Context, target string) (body, error) {
	logger := xglog.WithComponentFromContext(ctx, "playlist")
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return body{}, fmt.Errorf("build playlist request: %w", err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return body{}, fmt.Errorf("fetch playlist: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return body{}, fmt.Errorf("fetch playlist: unexpected status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBody+1))
	if err != nil {
		return body{}, fmt.Errorf("read playlist: %w", err)
	}
	if int64(len(data)) > f.maxBody {
		return body{}, ErrTooLarge
	}

	b := body{data: data}
	if _, params, err := mime.ParseMediaType(resp.Header.Get("Content-Type")); err == nil {
		b.charset = params["charset"]
	}
	if f.cache != nil {
		f.cache.Set(target, b)
	}

	logger.Info().
		Str(xglog.FieldEvent, "playlist.fetched").
		Str(xglog.FieldURL, platformnet.SanitizeURL(target)).
		Int("bytes", len(data)).
		Int64(xglog.FieldLatencyMS, time.Since(start).Milliseconds()).
		Msg("playlist downloaded")
	return b, nil
}
