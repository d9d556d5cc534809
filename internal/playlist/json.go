// SPDX-License-Identifier: MIT

package playlist

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// jsonChannel accepts the field aliases seen in the wild.
type jsonChannel struct {
	ID        any    `json:"id"`
	Name      string `json:"name"`
	Title     string `json:"title"`
	URL       string `json:"url"`
	StreamURL string `json:"stream_url"`
	Logo      string `json:"logo"`
	Icon      string `json:"icon"`
	Category  string `json:"category"`
	Group     string `json:"group"`
	Rating    any    `json:"rating"`
}

func parseJSON(text string) ([]entry, error) {
	trimmed := strings.TrimSpace(text)

	var raw []jsonChannel
	if strings.HasPrefix(trimmed, "{") {
		var wrapper struct {
			Channels []jsonChannel `json:"channels"`
		}
		if err := json.Unmarshal([]byte(trimmed), &wrapper); err != nil {
			return nil, fmt.Errorf("decode json playlist: %w", err)
		}
		raw = wrapper.Channels
	} else if err := json.Unmarshal([]byte(trimmed), &raw); err != nil {
		return nil, fmt.Errorf("decode json playlist: %w", err)
	}

	out := make([]entry, 0, len(raw))
	for _, c := range raw {
		out = append(out, entry{
			ID:       scalar(c.ID),
			Name:     first(c.Name, c.Title),
			URL:      strings.TrimSpace(first(c.URL, c.StreamURL)),
			Logo:     first(c.Logo, c.Icon),
			Category: first(c.Category, c.Group),
			Rating:   number(c.Rating),
		})
	}
	return out, nil
}

func first(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// scalar renders string or numeric ids; anything else is dropped.
func scalar(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	}
	return ""
}

func number(v any) int {
	switch t := v.(type) {
	case float64:
		return int(t)
	case string:
		n, _ := strconv.Atoi(strings.TrimSpace(t))
		return n
	}
	return 0
}
