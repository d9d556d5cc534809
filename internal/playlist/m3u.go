// SPDX-License-Identifier: MIT

package playlist

import (
	"strings"

	"github.com/grafana/regexp"
)

var attrPattern = regexp.MustCompile(`([A-Za-z0-9_-]+)="([^"]*)"`)

// parseM3U reads #EXTINF entries; the URL is the next non-comment line.
// #EXTGRP sets the group of the following entry when group-title is absent.
func parseM3U(text string) []entry {
	var (
		out     []entry
		current *entry
		group   string
	)
	for _, line := range lines(text) {
		switch {
		case strings.HasPrefix(line, "#EXTINF:"):
			e := parseExtinf(line[len("#EXTINF:"):])
			current = &e
		case strings.HasPrefix(line, "#EXTGRP:"):
			group = strings.TrimSpace(line[len("#EXTGRP:"):])
		case strings.HasPrefix(line, "#"):
		default:
			e := entry{}
			if current != nil {
				e = *current
			}
			if e.Category == "" {
				e.Category = group
			}
			e.URL = line
			out = append(out, e)
			current, group = nil, ""
		}
	}
	return out
}

// parseExtinf splits `-1 tvg-logo="..." group-title="a,b",Name` into its
// attributes and the display name after the last unquoted comma.
func parseExtinf(info string) entry {
	split := -1
	inQuote := false
	for i := 0; i < len(info); i++ {
		switch info[i] {
		case '"':
			inQuote = !inQuote
		case ',':
			if !inQuote {
				split = i
			}
		}
	}

	attrs, name := info, ""
	if split >= 0 {
		attrs, name = info[:split], info[split+1:]
	}

	var e entry
	for _, m := range attrPattern.FindAllStringSubmatch(attrs, -1) {
		switch strings.ToLower(m[1]) {
		case "tvg-logo":
			e.Logo = m[2]
		case "group-title":
			e.Category = m[2]
		case "tvg-name":
			if name == "" {
				name = m[2]
			}
		}
	}
	e.Name = strings.TrimSpace(name)
	return e
}
