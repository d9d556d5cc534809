// SPDX-License-Identifier: MIT

package playlist

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	xglog "github.com/ManuGH/tvgrid/internal/log"
	"github.com/ManuGH/tvgrid/internal/metrics"
	"github.com/ManuGH/tvgrid/internal/store"
	"github.com/ManuGH/tvgrid/internal/sweep"
)

var (
	// ErrNoSource is returned when an import names neither a URL nor content.
	ErrNoSource = errors.New("import needs a url or content")
	// ErrFetch wraps failures to download a playlist URL.
	ErrFetch = errors.New("playlist fetch failed")
)

// ChannelWriter is the store subset the importer needs.
type ChannelWriter interface {
	UpsertChannels(ctx context.Context, channels []store.Channel) ([]store.Channel, error)
}

// Sweeper checks channel reachability after an import.
type Sweeper interface {
	Run(ctx context.Context, channels []store.Channel) (sweep.Report, error)
}

// ImportRequest names the playlist to import. Content wins over URL.
type ImportRequest struct {
	URL     string `json:"url,omitempty"`
	Content string `json:"content,omitempty"`
	Sweep   bool   `json:"sweep,omitempty"`
}

// ImportResult summarizes an import.
type ImportResult struct {
	Format   Format          `json:"format"`
	Imported int             `json:"imported"`
	Dropped  int             `json:"dropped"`
	Channels []store.Channel `json:"channels"`
	Sweep    *sweep.Report   `json:"sweep,omitempty"`
}

// Importer runs fetch or parse, upsert, then an optional sweep.
type Importer struct {
	fetcher *Fetcher
	store   ChannelWriter
	sweeper Sweeper
}

// NewImporter wires an importer. sweeper may be nil.
func NewImporter(f *Fetcher, s ChannelWriter, sweeper Sweeper) *Importer {
	return &Importer{fetcher: f, store: s, sweeper: sweeper}
}

// Import executes req.
func (im *Importer) Import(ctx context.Context, req ImportRequest) (ImportResult, error) {
	logger := xglog.WithComponentFromContext(ctx, "playlist")

	var (
		content []byte
		label   string
	)
	switch {
	case req.Content != "":
		content = []byte(req.Content)
	case req.URL != "":
		if im.fetcher == nil {
			return ImportResult{}, errors.New("playlist fetcher not configured")
		}
		var err error
		content, label, err = im.fetcher.Fetch(ctx, req.URL)
		if err != nil {
			metrics.IncPlaylistImport("unknown", "fetch_error")
			return ImportResult{}, fmt.Errorf("%w: %w", ErrFetch, err)
		}
	default:
		return ImportResult{}, ErrNoSource
	}

	parsed, err := ParseCharset(content, label)
	metrics.AddPlaylistChannels("dropped", parsed.Dropped)
	if err != nil {
		metrics.IncPlaylistImport(string(parsed.Format), "parse_error")
		return ImportResult{Format: parsed.Format, Dropped: parsed.Dropped}, err
	}

	for i := range parsed.Channels {
		if parsed.Channels[i].ID == "" {
			parsed.Channels[i].ID = StableID(parsed.Channels[i].URL)
		}
	}

	stored, err := im.store.UpsertChannels(ctx, dedupe(parsed.Channels))
	if err != nil {
		metrics.IncPlaylistImport(string(parsed.Format), "store_error")
		return ImportResult{}, fmt.Errorf("store imported channels: %w", err)
	}
	metrics.IncPlaylistImport(string(parsed.Format), "success")
	metrics.AddPlaylistChannels("imported", len(stored))

	res := ImportResult{
		Format:   parsed.Format,
		Imported: len(stored),
		Dropped:  parsed.Dropped,
		Channels: stored,
	}

	if req.Sweep && im.sweeper != nil {
		report, err := im.sweeper.Run(ctx, stored)
		if err != nil {
			logger.Warn().Err(err).Str(xglog.FieldEvent, "playlist.sweep_failed").Msg("post-import sweep failed")
		} else {
			res.Sweep = &report
		}
	}

	logger.Info().
		Str(xglog.FieldEvent, "playlist.imported").
		Str(xglog.FieldFormat, string(parsed.Format)).
		Int("imported", res.Imported).
		Int("dropped", res.Dropped).
		Msg("playlist imported")
	return res, nil
}

// StableID derives a deterministic channel id from its stream URL, so a
// re-import updates rather than duplicates.
func StableID(streamURL string) string {
	sum := sha256.Sum256([]byte(streamURL))
	return "ch-" + hex.EncodeToString(sum[:8])
}

// dedupe keeps the last entry per id.
func dedupe(channels []store.Channel) []store.Channel {
	index := make(map[string]int, len(channels))
	out := make([]store.Channel, 0, len(channels))
	for _, ch := range channels {
		if i, ok := index[ch.ID]; ok {
			out[i] = ch
			continue
		}
		index[ch.ID] = len(out)
		out = append(out, ch)
	}
	return out
}
