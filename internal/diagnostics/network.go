// SPDX-License-Identifier: MIT

package diagnostics

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/ManuGH/tvgrid/internal/platform/httpx"
	"github.com/ManuGH/tvgrid/internal/playback"
)

// Default check targets.
const (
	DefaultOnlineURL = "https://www.google.com/generate_204"
	DefaultDNSURL    = "https://dns.google/resolve?name=google.com&type=A"
	DefaultCORSURL   = "https://httpbin.org/get"
	DefaultTimeout   = 5 * time.Second
)

func timeoutOr(d time.Duration) time.Duration {
	if d <= 0 {
		return DefaultTimeout
	}
	return d
}

func probeHealth(sub Subsystem, crit Criticality, target string, start time.Time) SubsystemHealth {
	return SubsystemHealth{
		Subsystem:   sub,
		Status:      OK,
		MeasuredAt:  start,
		Source:      SourceProbe,
		Criticality: crit,
		Details:     NetworkDetails{Target: target},
	}
}

func failHealth(h SubsystemHealth, code string, err error, elapsed time.Duration) SubsystemHealth {
	h.Status = Unavailable
	h.ErrorCode = code
	if playback.IsTimeout(err) {
		h.ErrorCode = ErrNetworkTimeout
	}
	h.ErrorMessage = err.Error()
	if d, ok := h.Details.(NetworkDetails); ok {
		d.ResponseTimeMS = elapsed.Milliseconds()
		h.Details = d
	}
	return h
}

// OnlineChecker issues a HEAD to a known host; any HTTP answer means online.
type OnlineChecker struct {
	Client  httpx.Doer
	URL     string
	Timeout time.Duration
}

func (c OnlineChecker) Check(ctx context.Context) SubsystemHealth {
	target := c.URL
	if target == "" {
		target = DefaultOnlineURL
	}
	start := time.Now()
	h := probeHealth(SubsystemNetwork, Critical, target, start)

	resp, err := do(ctx, c.Client, http.MethodHead, target, "", timeoutOr(c.Timeout))
	if err != nil {
		return failHealth(h, ErrNetworkOffline, err, time.Since(start))
	}
	h.Details = NetworkDetails{Target: target, ResponseTimeMS: time.Since(start).Milliseconds(), HTTPStatus: resp.StatusCode}
	return h
}

// DNSChecker resolves a well-known name, over DNS-over-HTTPS by default or
// through Resolver when set.
type DNSChecker struct {
	Client   httpx.Doer
	URL      string
	Resolver *net.Resolver
	Host     string
	Timeout  time.Duration
}

type dohAnswer struct {
	Status int `json:"Status"`
	Answer []struct {
		Data string `json:"data"`
	} `json:"Answer"`
}

func (c DNSChecker) Check(ctx context.Context) SubsystemHealth {
	start := time.Now()
	timeout := timeoutOr(c.Timeout)

	if c.Resolver != nil {
		host := c.Host
		if host == "" {
			host = "google.com"
		}
		h := probeHealth(SubsystemDNS, Optional, host, start)
		rctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		addrs, err := c.Resolver.LookupHost(rctx, host)
		if err != nil {
			return failHealth(h, ErrDNSUnreachable, err, time.Since(start))
		}
		if len(addrs) == 0 {
			return failHealth(h, ErrDNSNoAnswer, fmt.Errorf("no addresses for %s", host), time.Since(start))
		}
		return h
	}

	target := c.URL
	if target == "" {
		target = DefaultDNSURL
	}
	h := probeHealth(SubsystemDNS, Optional, target, start)
	resp, err := do(ctx, c.Client, http.MethodGet, target, "", timeout)
	if err != nil {
		return failHealth(h, ErrDNSUnreachable, err, time.Since(start))
	}
	if resp.StatusCode != http.StatusOK {
		return failHealth(h, ErrDNSUnreachable, fmt.Errorf("http status %d", resp.StatusCode), time.Since(start))
	}
	var ans dohAnswer
	if err := json.Unmarshal(resp.body, &ans); err != nil {
		return failHealth(h, ErrDNSUnreachable, fmt.Errorf("decode answer: %w", err), time.Since(start))
	}
	if ans.Status != 0 || len(ans.Answer) == 0 {
		return failHealth(h, ErrDNSNoAnswer, fmt.Errorf("dns status %d with %d answers", ans.Status, len(ans.Answer)), time.Since(start))
	}
	h.Details = NetworkDetails{Target: target, ResponseTimeMS: time.Since(start).Milliseconds(), HTTPStatus: resp.StatusCode}
	return h
}

// CORSChecker fetches a CORS-enabled endpoint and requires an
// Access-Control-Allow-Origin header on the answer.
type CORSChecker struct {
	Client  httpx.Doer
	URL     string
	Origin  string
	Timeout time.Duration
}

func (c CORSChecker) Check(ctx context.Context) SubsystemHealth {
	target := c.URL
	if target == "" {
		target = DefaultCORSURL
	}
	origin := c.Origin
	if origin == "" {
		origin = "http://localhost"
	}
	start := time.Now()
	h := probeHealth(SubsystemCORS, Optional, target, start)

	resp, err := do(ctx, c.Client, http.MethodGet, target, origin, timeoutOr(c.Timeout))
	if err != nil {
		return failHealth(h, ErrCORSRestricted, err, time.Since(start))
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 || resp.acao == "" {
		h = failHealth(h, ErrCORSRestricted, fmt.Errorf("status %d, allow-origin %q", resp.StatusCode, resp.acao), time.Since(start))
		h.Status = Degraded
		return h
	}
	h.Details = NetworkDetails{Target: target, ResponseTimeMS: time.Since(start).Milliseconds(), HTTPStatus: resp.StatusCode}
	return h
}

type checkResponse struct {
	StatusCode int
	acao       string
	body       []byte
}

func do(ctx context.Context, client httpx.Doer, method, target, origin string, timeout time.Duration) (*checkResponse, error) {
	if client == nil {
		client = httpx.NewClient(timeout)
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, target, nil)
	if err != nil {
		return nil, err
	}
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return nil, err
	}
	return &checkResponse{
		StatusCode: resp.StatusCode,
		acao:       resp.Header.Get("Access-Control-Allow-Origin"),
		body:       body,
	}, nil
}
