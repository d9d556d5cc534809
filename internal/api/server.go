// SPDX-License-Identifier: MIT

// Package api serves the tvgrid HTTP API.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/ManuGH/tvgrid/internal/activation"
	"github.com/ManuGH/tvgrid/internal/api/middleware"
	"github.com/ManuGH/tvgrid/internal/diagnostics"
	"github.com/ManuGH/tvgrid/internal/health"
	xglog "github.com/ManuGH/tvgrid/internal/log"
	"github.com/ManuGH/tvgrid/internal/playback/orchestrator"
	"github.com/ManuGH/tvgrid/internal/playlist"
	"github.com/ManuGH/tvgrid/internal/rating"
	"github.com/ManuGH/tvgrid/internal/store"
)

// Prefix is where the versioned API is mounted.
const Prefix = "/api/v1"

// Store is the persistence the handlers read directly.
type Store interface {
	TopChannels(ctx context.Context, limit int) ([]store.Channel, error)
	Session(ctx context.Context, id string) (store.Session, error)
	ActivationCodeStats(ctx context.Context) (store.CodeStats, error)
}

// Activator redeems and issues activation codes.
type Activator interface {
	Use(ctx context.Context, code, usedBy string) (store.Session, error)
	Generate(ctx context.Context, level, count int) ([]string, error)
}

// Rater applies channel votes.
type Rater interface {
	Rate(ctx context.Context, channelID, userID string, vote store.Vote) (rating.Result, error)
}

// Broadcasts lists and creates operator messages.
type Broadcasts interface {
	Active(ctx context.Context, level int) ([]store.Broadcast, error)
	Create(ctx context.Context, b store.Broadcast) (store.Broadcast, error)
}

// Importer runs a playlist import.
type Importer interface {
	Import(ctx context.Context, req playlist.ImportRequest) (playlist.ImportResult, error)
}

// Deps holds all dependencies for the API server.
type Deps struct {
	Version    string
	Store      Store
	Activation Activator
	Ratings    Rater
	Broadcasts Broadcasts
	Importer   Importer
	Sweeper    playlist.Sweeper
	Playback   *orchestrator.Registry
	Health     *health.Manager
	// Diagnostics gathers the system report; nil disables the endpoint.
	Diagnostics func(ctx context.Context) diagnostics.SystemReport
	// StartLimit guards POST /playback per client; nil means unlimited.
	StartLimit func(http.Handler) http.Handler
	// ImportMaxBytes bounds inline playlist content.
	ImportMaxBytes int64
	Stack          middleware.StackConfig
	Now            func() time.Time
}

// Server routes requests to the domain services.
type Server struct {
	deps    Deps
	now     func() time.Time
	logger  zerolog.Logger
	handler http.Handler
}

// New validates deps and builds the router.
func New(deps Deps) (*Server, error) {
	if deps.Store == nil {
		return nil, errors.New("api: store is required")
	}
	if deps.Playback == nil {
		return nil, errors.New("api: playback registry is required")
	}
	if deps.Health == nil {
		deps.Health = health.NewManager(deps.Version)
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.ImportMaxBytes <= 0 {
		deps.ImportMaxBytes = playlist.DefaultMaxBodyBytes
	}
	s := &Server{
		deps:   deps,
		now:    deps.Now,
		logger: xglog.WithComponent("api"),
	}
	s.handler = s.routes()
	return s, nil
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.handler }

func (s *Server) routes() http.Handler {
	r := middleware.NewRouter(s.deps.Stack)

	r.Get("/healthz", s.deps.Health.ServeHealth)
	r.Get("/readyz", s.deps.Health.ServeReady)
	r.Handle("/metrics", promhttp.Handler())

	r.Route(Prefix, func(r chi.Router) {
		r.Use(s.sessionContext)

		r.Get("/healthz", s.deps.Health.ServeHealth)
		r.Get("/readyz", s.deps.Health.ServeReady)
		r.Get("/system/diagnostics", s.handleDiagnostics)

		r.Post("/auth/activate", s.handleActivate)
		r.Get("/auth/session/{id}", s.handleGetSession)

		r.Get("/channels", s.handleListChannels)
		r.Get("/channels/stats", s.handleChannelStats)
		r.Get("/channels/export.m3u", s.handleExportM3U)
		r.With(s.requireLevel(activation.LevelGuest)).Post("/channels/{id}/rate", s.handleRateChannel)

		r.Get("/broadcasts", s.handleListBroadcasts)

		r.Group(func(r chi.Router) {
			r.Use(s.requireLevel(activation.LevelAdmin))
			r.Post("/channels/import", s.handleImport)
			r.Post("/channels/sweep", s.handleSweep)
			r.Post("/admin/codes", s.handleGenerateCodes)
			r.Get("/admin/codes/stats", s.handleCodeStats)
			r.Post("/admin/broadcasts", s.handleCreateBroadcast)
		})

		r.Route("/playback", func(r chi.Router) {
			start := http.Handler(http.HandlerFunc(s.handleStartPlayback))
			if s.deps.StartLimit != nil {
				start = s.deps.StartLimit(start)
			}
			r.Method(http.MethodPost, "/", start)
			r.Get("/{id}", s.handleGetPlayback)
			r.Delete("/{id}", s.handleDeletePlayback)
			r.Post("/{id}/retry", s.handleRetryPlayback)
			r.Post("/{id}/stop", s.handleStopPlayback)
			r.Put("/{id}/volume", s.handleSetVolume)
			r.Get("/{id}/stream", s.handleStream)
			r.Get("/{id}/events", s.handleEvents)
		})
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, CodeNotFound, "no such route")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, CodeBadRequest, "method not allowed")
	})
	return r
}

func (s *Server) handleDiagnostics(w http.ResponseWriter, r *http.Request) {
	if s.deps.Diagnostics == nil {
		writeError(w, http.StatusServiceUnavailable, CodeUnavailable, "diagnostics disabled")
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Diagnostics(r.Context()))
}
