// SPDX-License-Identifier: MIT

// Package browser turns a client's user agent into a decoder binding order.
package browser

import (
	"strings"

	"github.com/ManuGH/tvgrid/internal/playback/decoder"
)

// Browser families with a distinct binding preference.
const (
	Chrome  = "chrome"
	Edge    = "edge"
	Firefox = "firefox"
	Safari  = "safari"
	Other   = "other"
)

// Hint is the binding preference for a client.
type Hint struct {
	Browser string   `json:"browser"`
	Order   []string `json:"order"`
	// NativeHLS is set for clients whose media element plays HLS itself.
	NativeHLS bool `json:"native_hls"`
}

// DefaultOrder is the trial order when nothing is known about the client.
func DefaultOrder() []string {
	return []string{decoder.NameNative, decoder.NameHLS, decoder.NameFLV}
}

// Detect is pure; vendor is navigator.vendor and may be empty.
func Detect(userAgent, vendor string) Hint {
	ua := userAgent
	v := strings.ToLower(vendor)

	switch {
	case strings.Contains(ua, "Edg/") || strings.Contains(ua, "Edge/"):
		return Hint{Browser: Edge, Order: []string{decoder.NameHLS, decoder.NameNative, decoder.NameFLV}}

	case (strings.Contains(ua, "Chrome/") || strings.Contains(ua, "CriOS/")) && (v == "" || strings.Contains(v, "google")):
		return Hint{Browser: Chrome, Order: []string{decoder.NameHLS, decoder.NameFLV, decoder.NameNative}}

	case strings.Contains(ua, "Firefox/") || strings.Contains(ua, "FxiOS/"):
		return Hint{Browser: Firefox, Order: []string{decoder.NameHLS, decoder.NameFLV, decoder.NameNative}}

	case strings.Contains(ua, "Safari/") && !strings.Contains(ua, "Chrome/") && !strings.Contains(ua, "Chromium/") &&
		(v == "" || strings.Contains(v, "apple")):
		return Hint{Browser: Safari, Order: []string{decoder.NameNative, decoder.NameHLS}, NativeHLS: true}
	}
	return Hint{Browser: Other, Order: DefaultOrder()}
}
