// SPDX-License-Identifier: MIT

package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/ManuGH/tvgrid/internal/activation"
	xglog "github.com/ManuGH/tvgrid/internal/log"
	"github.com/ManuGH/tvgrid/internal/store"
)

// HeaderSessionID carries the viewer session.
const HeaderSessionID = "X-Session-ID"

type ctxSessionKey struct{}

// SessionFromContext returns the authenticated session, if any.
func SessionFromContext(ctx context.Context) (store.Session, bool) {
	s, ok := ctx.Value(ctxSessionKey{}).(store.Session)
	return s, ok
}

// levelOf is the viewer level of the request; anonymous viewers are guests.
func levelOf(ctx context.Context) int {
	if s, ok := SessionFromContext(ctx); ok {
		return s.UserLevel
	}
	return activation.LevelGuest
}

// lookupSession loads a session and rejects expired ones.
func (s *Server) lookupSession(ctx context.Context, id string) (store.Session, error) {
	sess, err := s.deps.Store.Session(ctx, id)
	if err != nil {
		return store.Session{}, err
	}
	if !sess.ExpiresAt.After(s.now()) {
		return store.Session{}, store.ErrNotFound
	}
	return sess, nil
}

// sessionContext attaches the session named by X-Session-ID. A header that
// names no live session is rejected; a missing header passes as anonymous.
func (s *Server) sessionContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(HeaderSessionID))
		if id == "" {
			next.ServeHTTP(w, r)
			return
		}
		sess, err := s.lookupSession(r.Context(), id)
		switch {
		case errors.Is(err, store.ErrNotFound):
			logger := xglog.WithComponentFromContext(r.Context(), "auth")
			logger.Warn().
				Str(xglog.FieldEvent, "auth.session_invalid").
				Msg("unknown or expired session")
			writeError(w, http.StatusUnauthorized, CodeUnauthorized, "session unknown or expired")
			return
		case err != nil:
			writeInternal(w, r, err)
			return
		}
		ctx := xglog.ContextWithSessionID(r.Context(), sess.ID)
		ctx = context.WithValue(ctx, ctxSessionKey{}, sess)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireLevel demands a session of at least level.
func (s *Server) requireLevel(level int) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess, ok := SessionFromContext(r.Context())
			if !ok {
				writeError(w, http.StatusUnauthorized, CodeUnauthorized, "X-Session-ID required")
				return
			}
			if sess.UserLevel < level {
				logger := xglog.WithComponentFromContext(r.Context(), "auth")
				logger.Warn().
					Str(xglog.FieldEvent, "auth.forbidden").
					Int("level", sess.UserLevel).
					Int("required", level).
					Str(xglog.FieldPath, r.URL.Path).
					Msg("insufficient user level")
				writeError(w, http.StatusForbidden, CodeForbidden, "insufficient user level")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type activateRequest struct {
	Code string `json:"code"`
}

func (s *Server) handleActivate(w http.ResponseWriter, r *http.Request) {
	if s.deps.Activation == nil {
		writeError(w, http.StatusServiceUnavailable, CodeUnavailable, "activation disabled")
		return
	}
	var req activateRequest
	if err := decodeJSON(w, r, 0, &req); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, err.Error())
		return
	}
	sess, err := s.deps.Activation.Use(r.Context(), req.Code, "")
	switch {
	case errors.Is(err, activation.ErrCodeNotFound):
		writeError(w, http.StatusNotFound, "code_not_found", err.Error())
	case errors.Is(err, activation.ErrCodeUsed):
		writeError(w, http.StatusConflict, "code_used", err.Error())
	case errors.Is(err, activation.ErrCodeExpired):
		writeError(w, http.StatusGone, "code_expired", err.Error())
	case err != nil:
		writeInternal(w, r, err)
	default:
		writeJSON(w, http.StatusCreated, sess)
	}
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.lookupSession(r.Context(), chi.URLParam(r, "id"))
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, CodeNotFound, "session unknown or expired")
	case err != nil:
		writeInternal(w, r, err)
	default:
		writeJSON(w, http.StatusOK, sess)
	}
}

type generateCodesRequest struct {
	Level int `json:"level"`
	Count int `json:"count"`
}

func (s *Server) handleGenerateCodes(w http.ResponseWriter, r *http.Request) {
	if s.deps.Activation == nil {
		writeError(w, http.StatusServiceUnavailable, CodeUnavailable, "activation disabled")
		return
	}
	var req generateCodesRequest
	if err := decodeJSON(w, r, 0, &req); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, err.Error())
		return
	}
	if req.Count == 0 {
		req.Count = 1
	}
	codes, err := s.deps.Activation.Generate(r.Context(), req.Level, req.Count)
	switch {
	case errors.Is(err, activation.ErrInvalidLevel), errors.Is(err, activation.ErrInvalidCount):
		writeError(w, http.StatusBadRequest, CodeBadRequest, err.Error())
	case err != nil:
		writeInternal(w, r, err)
	default:
		writeJSON(w, http.StatusCreated, map[string]any{"level": req.Level, "codes": codes})
	}
}

func (s *Server) handleCodeStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.deps.Store.ActivationCodeStats(r.Context())
	if err != nil {
		writeInternal(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
