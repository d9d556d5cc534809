// SPDX-License-Identifier: MIT

package browser

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

const (
	uaChrome  = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"
	uaEdge    = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36 Edg/124.0.2478.51"
	uaFirefox = "Mozilla/5.0 (X11; Linux x86_64; rv:125.0) Gecko/20100101 Firefox/125.0"
	uaSafari  = "Mozilla/5.0 (Macintosh; Intel Mac OS X 14_4) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Safari/605.1.15"
)

func TestDetect(t *testing.T) {
	tests := []struct {
		name      string
		ua        string
		vendor    string
		browser   string
		order     []string
		nativeHLS bool
	}{
		{"chrome", uaChrome, "Google Inc.", Chrome, []string{"hls", "flv", "native"}, false},
		{"chrome without vendor", uaChrome, "", Chrome, []string{"hls", "flv", "native"}, false},
		{"edge", uaEdge, "Google Inc.", Edge, []string{"hls", "native", "flv"}, false},
		{"firefox", uaFirefox, "", Firefox, []string{"hls", "flv", "native"}, false},
		{"safari", uaSafari, "Apple Computer, Inc.", Safari, []string{"native", "hls"}, true},
		{"chrome ua with foreign vendor", uaChrome, "Opera Software", Other, []string{"native", "hls", "flv"}, false},
		{"curl", "curl/8.5.0", "", Other, []string{"native", "hls", "flv"}, false},
		{"empty", "", "", Other, []string{"native", "hls", "flv"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := Detect(tt.ua, tt.vendor)
			assert.Equal(t, tt.browser, h.Browser)
			assert.Equal(t, tt.order, h.Order)
			assert.Equal(t, tt.nativeHLS, h.NativeHLS)
		})
	}
}

func TestDefaultOrderIsFresh(t *testing.T) {
	o := DefaultOrder()
	o[0] = "mutated"
	assert.Equal(t, "native", DefaultOrder()[0])
}
