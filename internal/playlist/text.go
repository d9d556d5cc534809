// SPDX-License-Identifier: MIT

package playlist

import "strings"

// parseText reads `name,url` lines. A `Group,#genre#` line or a bare line
// without a URL starts a new category.
func parseText(text string) []entry {
	var (
		out      []entry
		category string
	)
	for _, line := range lines(text) {
		if strings.HasPrefix(line, "#") || strings.HasPrefix(line, "//") {
			continue
		}
		name, rest, ok := strings.Cut(line, ",")
		switch {
		case ok && isGenreMarker(rest):
			category = strings.TrimSpace(name)
		case ok && looksLikeURL(rest):
			// Some lists carry alternates as url#url; the first one is primary.
			u, _, _ := strings.Cut(strings.TrimSpace(rest), "#")
			out = append(out, entry{Name: name, URL: u, Category: category})
		case looksLikeURL(line):
			out = append(out, entry{URL: line, Category: category})
		case !ok:
			category = line
		}
	}
	return out
}

func parseURLList(text string) []entry {
	var out []entry
	for _, line := range lines(text) {
		if strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, entry{URL: line})
	}
	return out
}
