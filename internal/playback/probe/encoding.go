// SPDX-License-Identifier: MIT

package probe

import (
	"fmt"
	"strings"

	tvnet "github.com/ManuGH/tvgrid/internal/platform/net"
)

// EncodingVariants returns alternative spellings of a URL containing
// non-ASCII characters: the normalized form (punycode host, escaped path) and
// a byte-wise percent-encoding of every non-ASCII character. Variants equal to
// the input or to each other are omitted. ASCII URLs yield nothing.
func EncodingVariants(raw string) []string {
	if !tvnet.HasNonASCII(raw) {
		return nil
	}

	var out []string
	add := func(v string) {
		if v == "" || v == raw {
			return
		}
		for _, existing := range out {
			if existing == v {
				return
			}
		}
		out = append(out, v)
	}

	if u, err := tvnet.ParseStreamURL(raw); err == nil {
		add(u.String())
	}
	add(escapeNonASCII(raw))
	return out
}

func escapeNonASCII(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= 0x80 {
			fmt.Fprintf(&b, "%%%02X", c)
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}
