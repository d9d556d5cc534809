// SPDX-License-Identifier: MIT

// Package proxychain holds the ordered list of third-party passthrough relays
// used when a stream origin cannot be reached directly.
package proxychain

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Encoding selects how the target URL is spliced into a relay template.
type Encoding string

const (
	// EncodingQuery appends the escaped target to a query parameter (default).
	EncodingQuery Encoding = "query"
	// EncodingPath appends the escaped target as the final path segment.
	EncodingPath Encoding = "path"
	// EncodingRaw appends the target verbatim, for relays that reject an
	// escaped scheme.
	EncodingRaw Encoding = "raw"
	// EncodingCallback substitutes the escaped target for {url} and keeps the
	// rest of the template, e.g. a trailing callback parameter.
	EncodingCallback Encoding = "callback"
)

const urlPlaceholder = "{url}"

// ErrEmpty is returned by Generate on a chain without relays.
var ErrEmpty = errors.New("proxy chain is empty")

// Relay is one passthrough service.
type Relay struct {
	Name     string   `yaml:"name" json:"name"`
	Template string   `yaml:"template" json:"template"`
	Encoding Encoding `yaml:"encoding,omitempty" json:"encoding,omitempty"`
}

// Wrap returns target routed through the relay.
func (r Relay) Wrap(target string) string {
	switch r.Encoding {
	case EncodingRaw:
		return r.Template + target
	case EncodingCallback:
		if strings.Contains(r.Template, urlPlaceholder) {
			return strings.Replace(r.Template, urlPlaceholder, EscapeComponent(target), 1)
		}
		return r.Template + EscapeComponent(target)
	default:
		return r.Template + EscapeComponent(target)
	}
}

// EscapeComponent escapes s so it survives as a single query value or path
// segment. Spaces become %20, never +, since path relays do not decode +.
func EscapeComponent(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}

// DefaultRelays is the stock relay list. Availability of these services is
// volatile; operators are expected to override it in the config file.
func DefaultRelays() []Relay {
	return []Relay{
		{Name: "cors-anywhere", Template: "https://cors-anywhere.herokuapp.com/", Encoding: EncodingPath},
		{Name: "allorigins", Template: "https://api.allorigins.win/raw?url="},
		{Name: "codetabs", Template: "https://api.codetabs.com/v1/proxy?quest="},
		{Name: "corsproxy", Template: "https://corsproxy.io/?"},
		{Name: "thingproxy", Template: "https://thingproxy.freeboard.io/fetch/", Encoding: EncodingPath},
		{Name: "cors-sh", Template: "https://proxy.cors.sh/", Encoding: EncodingPath},
		{Name: "bridged", Template: "https://cors.bridged.cc/", Encoding: EncodingPath},
		{Name: "yacdn", Template: "https://yacdn.org/proxy/", Encoding: EncodingPath},
	}
}

// Chain is an immutable, deduplicated, ordered relay list.
type Chain struct {
	relays []Relay
}

// New validates relays and drops duplicates, keeping the first occurrence.
func New(relays ...Relay) (*Chain, error) {
	seen := make(map[string]struct{}, len(relays))
	out := make([]Relay, 0, len(relays))
	for i, r := range relays {
		r.Template = strings.TrimSpace(r.Template)
		if r.Template == "" {
			return nil, fmt.Errorf("relay %d: empty template", i)
		}
		u, err := url.Parse(strings.Replace(r.Template, urlPlaceholder, "", 1))
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return nil, fmt.Errorf("relay %d: template %q is not an http(s) url", i, r.Template)
		}
		switch r.Encoding {
		case "":
			r.Encoding = EncodingQuery
		case EncodingQuery, EncodingPath, EncodingRaw, EncodingCallback:
		default:
			return nil, fmt.Errorf("relay %d: unknown encoding %q", i, r.Encoding)
		}
		if r.Name == "" {
			r.Name = u.Host
		}

		key := strings.ToLower(r.Template)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, r)
	}
	return &Chain{relays: out}, nil
}

// MustDefault returns a chain over DefaultRelays.
func MustDefault() *Chain {
	c, err := New(DefaultRelays()...)
	if err != nil {
		panic(err)
	}
	return c
}

// Len returns the number of relays.
func (c *Chain) Len() int {
	if c == nil {
		return 0
	}
	return len(c.relays)
}

// Relays returns a copy of the relay list.
func (c *Chain) Relays() []Relay {
	if c == nil {
		return nil
	}
	out := make([]Relay, len(c.relays))
	copy(out, c.relays)
	return out
}

// Relay returns the relay at index mod Len.
func (c *Chain) Relay(index int) (Relay, error) {
	if c.Len() == 0 {
		return Relay{}, ErrEmpty
	}
	n := len(c.relays)
	return c.relays[((index%n)+n)%n], nil
}

// Generate wraps target with the relay at index mod Len so callers can
// iterate cyclically.
func (c *Chain) Generate(target string, index int) (string, error) {
	r, err := c.Relay(index)
	if err != nil {
		return "", err
	}
	return r.Wrap(target), nil
}

// MethodID names the relay at index for attempt records ("proxy-<i>").
func MethodID(index int) string {
	return fmt.Sprintf("proxy-%d", index)
}
