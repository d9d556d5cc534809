// SPDX-License-Identifier: MIT

package jobs

import (
	"context"
	"fmt"

	xglog "github.com/ManuGH/tvgrid/internal/log"
	"github.com/ManuGH/tvgrid/internal/playlist"
	"github.com/ManuGH/tvgrid/internal/store"
)

// Importer is the playlist import step.
type Importer interface {
	Import(ctx context.Context, req playlist.ImportRequest) (playlist.ImportResult, error)
}

// Export rewrites the M3U file at Path after every successful import.
type Export struct {
	Importer Importer
	Channels ChannelLister
	Path     string
	// Limit caps the exported channels; zero means store.DefaultChannelLimit.
	Limit int
}

// Import runs the wrapped import and then the export. A failed export is
// logged and does not fail the import.
func (e *Export) Import(ctx context.Context, req playlist.ImportRequest) (playlist.ImportResult, error) {
	res, err := e.Importer.Import(ctx, req)
	if err != nil {
		return res, err
	}
	if _, werr := e.Write(ctx); werr != nil {
		logger := xglog.WithComponentFromContext(ctx, "jobs")
		logger.Warn().
			Err(werr).
			Str(xglog.FieldEvent, "export.failed").
			Str(xglog.FieldPath, e.Path).
			Msg("playlist export failed")
	}
	return res, nil
}

// Write exports the current top channels and returns how many were written.
func (e *Export) Write(ctx context.Context) (int, error) {
	limit := e.Limit
	if limit <= 0 {
		limit = store.DefaultChannelLimit
	}
	channels, err := e.Channels.TopChannels(ctx, limit)
	if err != nil {
		return 0, fmt.Errorf("list channels: %w", err)
	}
	if err := playlist.WriteFile(ctx, e.Path, channels); err != nil {
		return 0, err
	}
	logger := xglog.WithComponentFromContext(ctx, "jobs")
	logger.Info().
		Str(xglog.FieldEvent, "export.written").
		Str(xglog.FieldPath, e.Path).
		Int("channels", len(channels)).
		Msg("playlist exported")
	return len(channels), nil
}
