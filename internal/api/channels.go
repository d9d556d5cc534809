// SPDX-License-Identifier: MIT

package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	xglog "github.com/ManuGH/tvgrid/internal/log"
	platformnet "github.com/ManuGH/tvgrid/internal/platform/net"
	"github.com/ManuGH/tvgrid/internal/playlist"
	"github.com/ManuGH/tvgrid/internal/rating"
	"github.com/ManuGH/tvgrid/internal/store"
)

// maxChannelLimit caps ?limit=.
const maxChannelLimit = 5000

func parseLimit(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return store.DefaultChannelLimit, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 || n > maxChannelLimit {
		return 0, errors.New("limit must be between 1 and 5000")
	}
	return n, nil
}

// GET /channels?limit=&recommended=true
func (s *Server) handleListChannels(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, err.Error())
		return
	}
	channels, err := s.deps.Store.TopChannels(r.Context(), limit)
	if err != nil {
		writeInternal(w, r, err)
		return
	}
	if r.URL.Query().Get("recommended") == "true" {
		channels = rating.Recommended(channels, limit)
	}
	writeJSON(w, http.StatusOK, map[string]any{"channels": channels, "count": len(channels)})
}

func (s *Server) handleChannelStats(w http.ResponseWriter, r *http.Request) {
	channels, err := s.deps.Store.TopChannels(r.Context(), maxChannelLimit)
	if err != nil {
		writeInternal(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rating.Summarize(channels))
}

func (s *Server) handleExportM3U(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, err.Error())
		return
	}
	channels, err := s.deps.Store.TopChannels(r.Context(), limit)
	if err != nil {
		writeInternal(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "audio/x-mpegurl")
	w.Header().Set("Content-Disposition", `attachment; filename="tvgrid.m3u"`)
	if err := playlist.WriteM3U(w, channels); err != nil {
		logger := xglog.WithComponentFromContext(r.Context(), "api")
		logger.Warn().
			Err(err).
			Str(xglog.FieldEvent, "channels.export_failed").
			Msg("m3u export interrupted")
	}
}

type rateRequest struct {
	Vote store.Vote `json:"vote"`
}

func (s *Server) handleRateChannel(w http.ResponseWriter, r *http.Request) {
	if s.deps.Ratings == nil {
		writeError(w, http.StatusServiceUnavailable, CodeUnavailable, "ratings disabled")
		return
	}
	var req rateRequest
	if err := decodeJSON(w, r, 0, &req); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, err.Error())
		return
	}
	sess, _ := SessionFromContext(r.Context())

	res, err := s.deps.Ratings.Rate(r.Context(), chi.URLParam(r, "id"), sess.ID, req.Vote)
	switch {
	case errors.Is(err, rating.ErrInvalidVote):
		writeError(w, http.StatusBadRequest, CodeBadRequest, err.Error())
	case errors.Is(err, rating.ErrAlreadyRated):
		writeError(w, http.StatusConflict, "already_rated", err.Error())
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, CodeNotFound, "channel not found")
	case err != nil:
		writeInternal(w, r, err)
	default:
		writeJSON(w, http.StatusOK, res)
	}
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	if s.deps.Importer == nil {
		writeError(w, http.StatusServiceUnavailable, CodeUnavailable, "import disabled")
		return
	}
	var req playlist.ImportRequest
	// Inline content may be a whole playlist; leave room for JSON escaping.
	if err := decodeJSON(w, r, 2*s.deps.ImportMaxBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, err.Error())
		return
	}
	req.URL = strings.TrimSpace(req.URL)
	if req.Content == "" && req.URL != "" && !platformnet.IsStreamURL(req.URL) {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "url must be an absolute http(s) url")
		return
	}

	res, err := s.deps.Importer.Import(r.Context(), req)
	switch {
	case errors.Is(err, playlist.ErrNoSource):
		writeError(w, http.StatusBadRequest, CodeBadRequest, err.Error())
	case errors.Is(err, playlist.ErrEmpty):
		writeError(w, http.StatusUnprocessableEntity, "empty_playlist", err.Error())
	case errors.Is(err, playlist.ErrTooLarge):
		writeError(w, http.StatusRequestEntityTooLarge, "playlist_too_large", err.Error())
	case errors.Is(err, playlist.ErrFetch):
		logger := xglog.WithComponentFromContext(r.Context(), "api")
		logger.Warn().
			Err(err).
			Str(xglog.FieldEvent, "channels.import_fetch_failed").
			Str(xglog.FieldURL, platformnet.SanitizeURL(req.URL)).
			Msg("playlist fetch failed")
		writeError(w, http.StatusBadGateway, "fetch_failed", err.Error())
	case err != nil:
		writeInternal(w, r, err)
	default:
		writeJSON(w, http.StatusOK, res)
	}
}

func (s *Server) handleSweep(w http.ResponseWriter, r *http.Request) {
	if s.deps.Sweeper == nil {
		writeError(w, http.StatusServiceUnavailable, CodeUnavailable, "sweep disabled")
		return
	}
	limit, err := parseLimit(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, err.Error())
		return
	}
	channels, err := s.deps.Store.TopChannels(r.Context(), limit)
	if err != nil {
		writeInternal(w, r, err)
		return
	}
	report, err := s.deps.Sweeper.Run(r.Context(), channels)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, CodeUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, report)
}
