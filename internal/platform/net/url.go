// SPDX-License-Identifier: MIT

// Package net holds URL validation shared by the playlist importer, the
// prober and the API.
package net

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"

	"golang.org/x/net/idna"
)

var (
	// ErrInvalidScheme is returned for anything other than http and https.
	ErrInvalidScheme = errors.New("url scheme must be http or https")
	// ErrMissingHost is returned when the URL has no host component.
	ErrMissingHost = errors.New("url host is required")
	// ErrCredentials is returned when the URL embeds user info.
	ErrCredentials = errors.New("url must not embed credentials")
)

var hostProfile = idna.New(
	idna.MapForLookup(),
	idna.Transitional(false),
	idna.StrictDomainName(false),
)

// SanitizeURL removes user info and query parameters for safe logging.
func SanitizeURL(rawURL string) string {
	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return "invalid-url-redacted"
	}
	parsedURL.User = nil
	parsedURL.RawQuery = ""
	return parsedURL.String()
}

// ParseStreamURL validates that s is an absolute http(s) URL with a host and
// no embedded credentials. Internationalized host names are converted to
// their ASCII (punycode) form so every later request uses the same authority.
func ParseStreamURL(s string) (*url.URL, error) {
	s = strings.TrimSpace(s)
	u, err := url.Parse(s)
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}

	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return nil, ErrInvalidScheme
	}
	u.Scheme = scheme

	if u.Host == "" {
		return nil, ErrMissingHost
	}
	if u.User != nil {
		return nil, ErrCredentials
	}

	host, err := NormalizeHost(u.Hostname())
	if err != nil {
		return nil, err
	}
	if port := u.Port(); port != "" {
		u.Host = net.JoinHostPort(host, port)
	} else if strings.Contains(host, ":") {
		u.Host = "[" + host + "]"
	} else {
		u.Host = host
	}
	return u, nil
}

// IsStreamURL reports whether s passes ParseStreamURL.
func IsStreamURL(s string) bool {
	_, err := ParseStreamURL(s)
	return err == nil
}

// NormalizeHost lowercases host and converts IDN labels to punycode.
// IP literals are returned unchanged.
func NormalizeHost(host string) (string, error) {
	host = strings.TrimSuffix(strings.TrimSpace(host), ".")
	if host == "" {
		return "", ErrMissingHost
	}
	if ip := net.ParseIP(host); ip != nil {
		return ip.String(), nil
	}
	ascii, err := hostProfile.ToASCII(host)
	if err != nil {
		return "", fmt.Errorf("normalize host %q: %w", host, err)
	}
	return strings.ToLower(ascii), nil
}

// HasNonASCII reports whether s contains characters outside the ASCII range,
// which is the trigger for trying alternative URL encodings.
func HasNonASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= 0x80 {
			return true
		}
	}
	return false
}
