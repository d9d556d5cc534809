// SPDX-License-Identifier: MIT

// Package httpx builds the outbound HTTP clients used for probing relays,
// fetching playlists and pulling media.
package httpx

import (
	"net"
	"net/http"
	"time"
)

const (
	defaultClientTimeout         = 5 * time.Second
	defaultDialTimeout           = 3 * time.Second
	defaultResponseHeaderTimeout = 3 * time.Second
	defaultStreamHeaderTimeout   = 15 * time.Second
	defaultIdleConnTimeout       = 30 * time.Second
	defaultExpectContinueTimeout = 1 * time.Second
	defaultMaxIdleConns          = 16
	defaultMaxIdleConnsPerHost   = 4

	// DefaultUserAgent mimics a desktop browser; several IPTV origins refuse
	// unknown agents.
	DefaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0 Safari/537.36"
	// DefaultAccept covers playlists, manifests and raw media.
	DefaultAccept = "application/vnd.apple.mpegurl, audio/mpegurl, application/dash+xml, video/*, */*"
)

// Doer is the subset of *http.Client used by callers that want to inject a fake.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// NewClient returns a hardened HTTP client for short request/response calls.
func NewClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = defaultClientTimeout
	}

	dialTimeout := timeout
	if dialTimeout > defaultDialTimeout {
		dialTimeout = defaultDialTimeout
	}

	responseHeaderTimeout := timeout
	if responseHeaderTimeout > defaultResponseHeaderTimeout {
		responseHeaderTimeout = defaultResponseHeaderTimeout
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: newTransport(dialTimeout, responseHeaderTimeout),
	}
}

// NewStreamClient returns a client without an overall deadline. Live media
// bodies never end, so callers bound each request with a context instead and
// only the wait for response headers is capped here.
func NewStreamClient(headerTimeout time.Duration) *http.Client {
	if headerTimeout <= 0 {
		headerTimeout = defaultStreamHeaderTimeout
	}
	return &http.Client{
		Transport: newTransport(defaultDialTimeout, headerTimeout),
	}
}

func newTransport(dialTimeout, headerTimeout time.Duration) *http.Transport {
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: dialTimeout, KeepAlive: 30 * time.Second}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          defaultMaxIdleConns,
		MaxIdleConnsPerHost:   defaultMaxIdleConnsPerHost,
		IdleConnTimeout:       defaultIdleConnTimeout,
		TLSHandshakeTimeout:   dialTimeout,
		ResponseHeaderTimeout: headerTimeout,
		ExpectContinueTimeout: defaultExpectContinueTimeout,
	}
}

// Headers are stamped on every outbound request that does not already carry them.
type Headers struct {
	UserAgent string
	Accept    string
	Origin    string
	Referer   string
}

// HeaderClient wraps a Doer and fills in the configured request headers.
type HeaderClient struct {
	Doer    Doer
	Headers Headers
}

// NewHeaderClient wraps d. Empty header fields fall back to browser-like defaults
// for User-Agent and Accept; Origin and Referer are only sent when configured.
func NewHeaderClient(d Doer, h Headers) *HeaderClient {
	if d == nil {
		d = NewStreamClient(0)
	}
	if h.UserAgent == "" {
		h.UserAgent = DefaultUserAgent
	}
	if h.Accept == "" {
		h.Accept = DefaultAccept
	}
	return &HeaderClient{Doer: d, Headers: h}
}

// Do stamps headers and executes req.
func (c *HeaderClient) Do(req *http.Request) (*http.Response, error) {
	setDefault(req.Header, "User-Agent", c.Headers.UserAgent)
	setDefault(req.Header, "Accept", c.Headers.Accept)
	setDefault(req.Header, "Origin", c.Headers.Origin)
	setDefault(req.Header, "Referer", c.Headers.Referer)
	req.Header.Set("Cache-Control", "no-cache")
	return c.Doer.Do(req)
}

func setDefault(h http.Header, key, value string) {
	if value == "" || h.Get(key) != "" {
		return
	}
	h.Set(key, value)
}
