// SPDX-License-Identifier: MIT

package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	xglog "github.com/ManuGH/tvgrid/internal/log"
	platformnet "github.com/ManuGH/tvgrid/internal/platform/net"
	"github.com/ManuGH/tvgrid/internal/playback"
	"github.com/ManuGH/tvgrid/internal/playback/browser"
	"github.com/ManuGH/tvgrid/internal/playback/decoder"
	"github.com/ManuGH/tvgrid/internal/playback/orchestrator"
)

type startPlaybackRequest struct {
	URL  string `json:"url"`
	Name string `json:"name,omitempty"`
	// Vendor is navigator.vendor; it disambiguates Chromium-based user agents.
	Vendor string `json:"vendor,omitempty"`
}

// PlaybackView is the JSON shape of a playback session.
type PlaybackView struct {
	ID        string               `json:"id"`
	Hint      browser.Hint         `json:"hint"`
	CreatedAt time.Time            `json:"created_at"`
	Session   orchestrator.Session `json:"session"`
}

func viewOf(e *orchestrator.Entry) PlaybackView {
	return PlaybackView{ID: e.ID, Hint: e.Hint, CreatedAt: e.CreatedAt, Session: e.Session()}
}

// entry resolves {id} or answers 404.
func (s *Server) entry(w http.ResponseWriter, r *http.Request) (*orchestrator.Entry, bool) {
	id := chi.URLParam(r, "id")
	e, ok := s.deps.Playback.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, CodeNotFound, "playback session not found")
		return nil, false
	}
	return e, true
}

func (s *Server) handleStartPlayback(w http.ResponseWriter, r *http.Request) {
	var req startPlaybackRequest
	if err := decodeJSON(w, r, 0, &req); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, err.Error())
		return
	}
	req.URL = strings.TrimSpace(req.URL)
	if _, err := platformnet.ParseStreamURL(req.URL); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "url: "+err.Error())
		return
	}

	hint := browser.Detect(r.UserAgent(), req.Vendor)
	target := playback.Target{URL: req.URL, DisplayName: strings.TrimSpace(req.Name)}

	e, err := s.deps.Playback.Start(r.Context(), target, hint)
	switch {
	case errors.Is(err, orchestrator.ErrTooManySessions):
		writeError(w, http.StatusServiceUnavailable, "too_many_sessions", err.Error())
		return
	case err != nil:
		writeInternal(w, r, err)
		return
	}

	logger := xglog.WithComponentFromContext(xglog.ContextWithPlaybackID(r.Context(), e.ID), "api")
	logger.Info().
		Str(xglog.FieldEvent, "playback.created").
		Str("browser", hint.Browser).
		Str(xglog.FieldURL, platformnet.SanitizeURL(req.URL)).
		Msg("playback session started")
	w.Header().Set("Location", Prefix+"/playback/"+e.ID)
	writeJSON(w, http.StatusCreated, viewOf(e))
}

func (s *Server) handleGetPlayback(w http.ResponseWriter, r *http.Request) {
	e, ok := s.entry(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, viewOf(e))
}

func (s *Server) handleDeletePlayback(w http.ResponseWriter, r *http.Request) {
	if !s.deps.Playback.Remove(chi.URLParam(r, "id")) {
		writeError(w, http.StatusNotFound, CodeNotFound, "playback session not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRetryPlayback(w http.ResponseWriter, r *http.Request) {
	e, ok := s.entry(w, r)
	if !ok {
		return
	}
	err := e.Retry(r.Context())
	switch {
	case errors.Is(err, playback.ErrRetryCeilingReached):
		writeError(w, http.StatusConflict, playback.Code(err), err.Error())
	case errors.Is(err, orchestrator.ErrNotFailed), errors.Is(err, orchestrator.ErrNoTarget):
		writeError(w, http.StatusConflict, "not_failed", err.Error())
	case err != nil:
		writeInternal(w, r, err)
	default:
		writeJSON(w, http.StatusAccepted, viewOf(e))
	}
}

func (s *Server) handleStopPlayback(w http.ResponseWriter, r *http.Request) {
	e, ok := s.entry(w, r)
	if !ok {
		return
	}
	e.Stop()
	writeJSON(w, http.StatusOK, viewOf(e))
}

type volumeRequest struct {
	Volume *float64 `json:"volume,omitempty"`
	Muted  *bool    `json:"muted,omitempty"`
}

func (s *Server) handleSetVolume(w http.ResponseWriter, r *http.Request) {
	e, ok := s.entry(w, r)
	if !ok {
		return
	}
	var req volumeRequest
	if err := decodeJSON(w, r, 0, &req); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, err.Error())
		return
	}
	if req.Volume == nil && req.Muted == nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "volume or muted is required")
		return
	}
	applyVolume(e.Orchestrator, req)
	writeJSON(w, http.StatusOK, e.Surface().Volume())
}

func applyVolume(o *orchestrator.Orchestrator, req volumeRequest) {
	if req.Volume != nil {
		o.SetVolume(*req.Volume)
	}
	if req.Muted != nil {
		o.SetMuted(*req.Muted)
	}
}

func contentTypeFor(binding string) string {
	switch binding {
	case decoder.NameFLV:
		return "video/x-flv"
	case decoder.NameDASH:
		return "video/mp4"
	default:
		return "video/mp2t"
	}
}

// GET /playback/{id}/stream relays the surface's media to the client until
// it disconnects or the session ends.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	e, ok := s.entry(w, r)
	if !ok {
		return
	}
	chunks, cancel := e.Surface().Subscribe()
	defer cancel()

	logger := xglog.WithComponentFromContext(xglog.ContextWithPlaybackID(r.Context(), e.ID), "api")
	rc := http.NewResponseController(w)

	w.Header().Set("Content-Type", contentTypeFor(e.Session().Binding))
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)
	_ = rc.Flush()

	var sent int64
	defer func() {
		logger.Debug().
			Str(xglog.FieldEvent, "playback.stream_closed").
			Int64("bytes", sent).
			Msg("stream subscriber left")
	}()
	for {
		select {
		case <-r.Context().Done():
			return
		case chunk, ok := <-chunks:
			if !ok {
				return
			}
			n, err := w.Write(chunk)
			sent += int64(n)
			if err != nil {
				return
			}
			_ = rc.Flush()
		}
	}
}
