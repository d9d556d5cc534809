// SPDX-License-Identifier: MIT

// Package playlist parses, fetches, exports and imports channel lists.
package playlist

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	xglog "github.com/ManuGH/tvgrid/internal/log"
	platformnet "github.com/ManuGH/tvgrid/internal/platform/net"
	"github.com/ManuGH/tvgrid/internal/store"
)

// DefaultRating is assigned to channels that carry none.
const DefaultRating = 50

// Format is the detected playlist syntax.
type Format string

const (
	FormatM3U     Format = "m3u"
	FormatJSON    Format = "json"
	FormatText    Format = "txt"
	FormatURLList Format = "urls"
)

// ErrEmpty is returned when no valid channel was found.
var ErrEmpty = errors.New("playlist contains no playable channels")

// Result is a parsed playlist.
type Result struct {
	Format   Format          `json:"format"`
	Channels []store.Channel `json:"channels"`
	// Dropped counts entries rejected for an invalid URL.
	Dropped int `json:"dropped"`
}

// entry is a channel as found in the source, before validation.
type entry struct {
	ID       string
	Name     string
	URL      string
	Logo     string
	Category string
	Rating   int
}

// Parse detects the format of content and extracts its channels. Content that
// is not UTF-8 is transcoded first.
func Parse(content []byte) (Result, error) {
	return ParseCharset(content, "")
}

// ParseCharset is Parse with a charset label, typically from a Content-Type
// header, that takes precedence over detection.
func ParseCharset(content []byte, label string) (Result, error) {
	text := string(bytes.TrimPrefix(ToUTF8(content, label), []byte("\xef\xbb\xbf")))

	format := Detect(text)
	var (
		entries []entry
		err     error
	)
	switch format {
	case FormatJSON:
		entries, err = parseJSON(text)
	case FormatM3U:
		entries = parseM3U(text)
	case FormatText:
		entries = parseText(text)
	default:
		entries = parseURLList(text)
	}
	if err != nil {
		return Result{Format: format}, err
	}

	res := finalize(entries)
	res.Format = format
	if len(res.Channels) == 0 {
		return res, ErrEmpty
	}
	return res, nil
}

// Detect guesses the playlist format from its content.
func Detect(text string) Format {
	trimmed := strings.TrimSpace(text)
	switch {
	case strings.HasPrefix(trimmed, "[") || strings.HasPrefix(trimmed, "{"):
		return FormatJSON
	case strings.Contains(trimmed, "#EXTM3U") || strings.Contains(trimmed, "#EXTINF"):
		return FormatM3U
	}
	for _, line := range lines(trimmed) {
		if name, rest, ok := strings.Cut(line, ","); ok && name != "" && (looksLikeURL(rest) || isGenreMarker(rest)) {
			return FormatText
		}
	}
	return FormatURLList
}

// finalize validates URLs, repairs names and applies defaults. Position for
// generated names is the 1-based index among the source entries.
func finalize(entries []entry) Result {
	logger := xglog.WithComponent("playlist")
	var res Result
	for i, e := range entries {
		u, err := platformnet.ParseStreamURL(e.URL)
		if err != nil {
			res.Dropped++
			logger.Warn().
				Str(xglog.FieldEvent, "playlist.entry_dropped").
				Int("position", i+1).
				Str(xglog.FieldURL, platformnet.SanitizeURL(e.URL)).
				Err(err).
				Msg("dropping playlist entry with invalid url")
			continue
		}

		name := strings.TrimSpace(e.Name)
		if name == "" || Garbled(name) {
			name = fmt.Sprintf("Channel %d", i+1)
		}
		rating := e.Rating
		if rating <= 0 {
			rating = DefaultRating
		}
		res.Channels = append(res.Channels, store.Channel{
			ID:       e.ID,
			Name:     name,
			URL:      u.String(),
			Logo:     strings.TrimSpace(e.Logo),
			Category: strings.TrimSpace(e.Category),
			Rating:   rating,
		})
	}
	return res
}

// Garbled reports whether name is unusable as a display name: it holds a
// replacement character, a control character, or mostly non-printables.
func Garbled(name string) bool {
	if !utf8.ValidString(name) {
		return true
	}
	total, bad := 0, 0
	for _, r := range name {
		total++
		switch {
		case r == utf8.RuneError:
			return true
		case unicode.IsControl(r):
			return true
		case !unicode.IsPrint(r):
			bad++
		}
	}
	return total > 0 && bad*10 >= total*3
}

func lines(text string) []string {
	raw := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	out := make([]string, 0, len(raw))
	for _, l := range raw {
		if l = strings.TrimSpace(l); l != "" {
			out = append(out, l)
		}
	}
	return out
}

func looksLikeURL(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://") ||
		strings.HasPrefix(s, "rtmp://") || strings.HasPrefix(s, "rtsp://")
}

func isGenreMarker(s string) bool {
	return strings.EqualFold(strings.TrimSpace(s), "#genre#")
}
