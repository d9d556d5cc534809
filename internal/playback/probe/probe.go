// SPDX-License-Identifier: MIT

// Package probe decides whether a stream URL can be fetched directly and, if
// not, which relay of the proxy chain makes it fetchable.
package probe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	xglog "github.com/ManuGH/tvgrid/internal/log"
	"github.com/ManuGH/tvgrid/internal/metrics"
	"github.com/ManuGH/tvgrid/internal/platform/httpx"
	"github.com/ManuGH/tvgrid/internal/playback"
	"github.com/ManuGH/tvgrid/internal/playback/proxychain"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultDirectTimeout = 10 * time.Second
	DefaultProxyTimeout  = 15 * time.Second
	DefaultRaceTimeout   = 8 * time.Second
)

// Mode mirrors the two request styles a browser can issue against a foreign origin.
type Mode string

const (
	// ModeNoCORS yields an opaque response: any HTTP answer counts as reachable.
	ModeNoCORS Mode = "no-cors"
	// ModeCORS requires a 2xx answer that the configured origin may read.
	ModeCORS Mode = "cors"
)

// Method is one request style.
type Method struct {
	ID         string
	HTTPMethod string
	Mode       Mode
}

// DirectMethods are tried in order before any relay.
var DirectMethods = []Method{
	{ID: playback.MethodDirectHeadNoCORS, HTTPMethod: http.MethodHead, Mode: ModeNoCORS},
	{ID: playback.MethodDirectGetCORS, HTTPMethod: http.MethodGet, Mode: ModeCORS},
	{ID: playback.MethodDirectGetNoCORS, HTTPMethod: http.MethodGet, Mode: ModeNoCORS},
}

// Relay check style: a lightweight existence check through the relay.
var relayMethod = Method{HTTPMethod: http.MethodHead, Mode: ModeCORS}

// ErrUnreachable is returned by Probe when every method failed.
var ErrUnreachable = fmt.Errorf("%w: no direct method or relay answered", playback.ErrProbeUnreachable)

// Observer receives every check outcome in the order checks finish.
type Observer func(playback.Attempt)

// Config configures a Prober.
type Config struct {
	DirectTimeout time.Duration
	ProxyTimeout  time.Duration
	RaceTimeout   time.Duration
	// Origin is sent on cors-mode checks; when set, the answer must allow it.
	Origin string
	Chain  *proxychain.Chain
	Client httpx.Doer
	// Now replaces the clock used for latency measurement.
	Now func() time.Time
}

// Prober runs reachability checks. It keeps no state between calls.
type Prober struct {
	cfg    Config
	logger zerolog.Logger
}

// New returns a Prober with defaults filled in.
func New(cfg Config) *Prober {
	if cfg.DirectTimeout <= 0 {
		cfg.DirectTimeout = DefaultDirectTimeout
	}
	if cfg.ProxyTimeout <= 0 {
		cfg.ProxyTimeout = DefaultProxyTimeout
	}
	if cfg.RaceTimeout <= 0 {
		cfg.RaceTimeout = DefaultRaceTimeout
	}
	if cfg.Client == nil {
		cfg.Client = httpx.NewHeaderClient(nil, httpx.Headers{})
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Prober{cfg: cfg, logger: xglog.WithComponent("probe")}
}

// Chain returns the relay chain the prober iterates.
func (p *Prober) Chain() *proxychain.Chain {
	return p.cfg.Chain
}

// Probe tries the direct methods, then alternative encodings of non-ASCII
// URLs, then each relay in order. The first success wins; nothing is retried.
func (p *Prober) Probe(ctx context.Context, target string, observe Observer) (playback.Route, error) {
	var errs []error

	for _, m := range DirectMethods {
		if err := ctx.Err(); err != nil {
			return playback.Route{}, err
		}
		latency, err := p.check(ctx, target, m, p.cfg.DirectTimeout, observe)
		if err == nil {
			return playback.Route{ResolvedURL: target, MethodID: m.ID, MeasuredLatency: latency}, nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", m.ID, err))
	}

	for i, variant := range EncodingVariants(target) {
		if err := ctx.Err(); err != nil {
			return playback.Route{}, err
		}
		m := Method{ID: fmt.Sprintf(playback.MethodDirectEncodingFmt, i), HTTPMethod: http.MethodGet, Mode: ModeCORS}
		latency, err := p.check(ctx, variant, m, p.cfg.DirectTimeout, observe)
		if err == nil {
			return playback.Route{ResolvedURL: variant, MethodID: m.ID, MeasuredLatency: latency}, nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", m.ID, err))
	}

	for i := 0; i < p.cfg.Chain.Len(); i++ {
		if err := ctx.Err(); err != nil {
			return playback.Route{}, err
		}
		proxied, err := p.cfg.Chain.Generate(target, i)
		if err != nil {
			break
		}
		m := relayMethod
		m.ID = proxychain.MethodID(i)
		latency, err := p.check(ctx, proxied, m, p.cfg.ProxyTimeout, observe)
		if err == nil {
			return playback.Route{ResolvedURL: proxied, MethodID: m.ID, MeasuredLatency: latency, ThroughProxy: true}, nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", m.ID, err))
	}

	p.logger.Debug().
		Str(xglog.FieldEvent, "probe.unreachable").
		Int("methods", len(errs)).
		Msg("no method reached the stream")
	return playback.Route{}, fmt.Errorf("%w: %w", ErrUnreachable, errors.Join(errs...))
}

// FindFastestProxy issues the relay check to every relay at once. All checks
// start together, so the first success to arrive is the lowest-latency one;
// the remaining checks are cancelled and not reported.
func (p *Prober) FindFastestProxy(ctx context.Context, target string, observe Observer) (playback.Route, bool) {
	n := p.cfg.Chain.Len()
	if n == 0 {
		return playback.Route{}, false
	}

	raceCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		mu     sync.Mutex
		winner playback.Route
		found  bool
	)
	g, gctx := errgroup.WithContext(raceCtx)
	for i := 0; i < n; i++ {
		proxied, err := p.cfg.Chain.Generate(target, i)
		if err != nil {
			continue
		}
		m := relayMethod
		m.ID = proxychain.MethodID(i)
		g.Go(func() error {
			// Report only checks that finished on their own.
			filtered := func(a playback.Attempt) {
				if gctx.Err() != nil && a.Failed() {
					return
				}
				if observe != nil {
					observe(a)
				}
			}
			latency, err := p.check(gctx, proxied, m, p.cfg.RaceTimeout, filtered)
			if err != nil {
				return nil
			}
			mu.Lock()
			defer mu.Unlock()
			if !found {
				found = true
				winner = playback.Route{ResolvedURL: proxied, MethodID: m.ID, MeasuredLatency: latency, ThroughProxy: true}
				cancel()
			}
			return nil
		})
	}
	_ = g.Wait()

	mu.Lock()
	defer mu.Unlock()
	return winner, found
}

// Check runs a single request style against url under timeout.
func (p *Prober) Check(ctx context.Context, url string, m Method, timeout time.Duration) (time.Duration, error) {
	return p.check(ctx, url, m, timeout, nil)
}

func (p *Prober) check(ctx context.Context, url string, m Method, timeout time.Duration, observe Observer) (time.Duration, error) {
	start := p.cfg.Now()
	err := p.do(ctx, url, m, timeout)
	latency := p.cfg.Now().Sub(start)

	kind := methodKind(m.ID)
	metrics.ObserveProbe(kind, err == nil, latency)

	attempt := playback.Attempt{
		MethodID: m.ID,
		URL:      url,
		Outcome:  playback.OutcomeOf(err),
		Latency:  latency,
	}
	if err != nil {
		attempt.Detail = err.Error()
		p.logger.Debug().
			Str(xglog.FieldEvent, "probe.method_failed").
			Str(xglog.FieldMethod, m.ID).
			Err(err).
			Msg("reachability check failed")
	}
	if observe != nil {
		observe(attempt)
	}
	return latency, err
}

func (p *Prober) do(ctx context.Context, url string, m Method, timeout time.Duration) error {
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, m.HTTPMethod, url, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if m.Mode == ModeCORS && p.cfg.Origin != "" {
		req.Header.Set("Origin", p.cfg.Origin)
	}

	resp, err := p.cfg.Client.Do(req)
	if err != nil {
		return err
	}
	// A GET on a live stream never ends; only the status line matters here.
	defer resp.Body.Close()
	if m.HTTPMethod == http.MethodHead {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	}

	if m.Mode == ModeNoCORS {
		return nil
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("http status %d", resp.StatusCode)
	}
	if p.cfg.Origin != "" && !allowsOrigin(resp.Header.Get("Access-Control-Allow-Origin"), p.cfg.Origin) {
		return fmt.Errorf("origin %s not allowed by response", p.cfg.Origin)
	}
	return nil
}

func allowsOrigin(acao, origin string) bool {
	acao = strings.TrimSpace(acao)
	return acao == "*" || strings.EqualFold(acao, origin)
}

func methodKind(id string) string {
	switch {
	case strings.HasPrefix(id, "proxy-"):
		return "proxy"
	case strings.HasPrefix(id, "direct-encoding-"):
		return "encoding"
	default:
		return "direct"
	}
}
