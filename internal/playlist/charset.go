// SPDX-License-Identifier: MIT

package playlist

import (
	"unicode/utf8"

	"golang.org/x/net/html/charset"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/encoding/traditionalchinese"
)

// fallbacks are tried in order for content that is not valid UTF-8.
var fallbacks = []encoding.Encoding{
	simplifiedchinese.GB18030,
	traditionalchinese.Big5,
}

// ToUTF8 returns content as UTF-8. A known charset label wins; otherwise
// valid UTF-8 passes through and the CJK fallbacks are tried in order. When
// nothing decodes cleanly the input is returned unchanged and bad names are
// repaired later.
func ToUTF8(content []byte, label string) []byte {
	if label != "" {
		if enc, name := charset.Lookup(label); enc != nil && name != "utf-8" {
			if out, err := enc.NewDecoder().Bytes(content); err == nil {
				return out
			}
		}
	}
	if utf8.Valid(content) {
		return content
	}
	for _, enc := range fallbacks {
		out, err := enc.NewDecoder().Bytes(content)
		if err == nil && utf8.Valid(out) && !containsReplacement(out) {
			return out
		}
	}
	return content
}

func containsReplacement(b []byte) bool {
	for len(b) > 0 {
		r, size := utf8.DecodeRune(b)
		if r == utf8.RuneError {
			return true
		}
		b = b[size:]
	}
	return false
}
