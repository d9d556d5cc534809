// SPDX-License-Identifier: MIT

// Package middleware holds the HTTP ingress stack shared by every route.
package middleware

import (
	"github.com/go-chi/chi/v5"

	xglog "github.com/ManuGH/tvgrid/internal/log"
)

// StackConfig configures the canonical middleware stack.
type StackConfig struct {
	AllowedOrigins []string
	EnableGzip     bool
	EnableMetrics  bool
	// TracingService names the otelhttp handler; empty disables tracing.
	TracingService string
	EnableLogging  bool
	// RequestsPerMinute is the per-IP API budget; zero disables it.
	RequestsPerMinute int
}

// NewRouter returns a chi router with the stack applied.
func NewRouter(cfg StackConfig) *chi.Mux {
	r := chi.NewRouter()
	ApplyStack(r, cfg)
	return r
}

// ApplyStack installs the middleware in order. Recoverer is outermost so it
// also covers panics in the other layers.
func ApplyStack(r chi.Router, cfg StackConfig) {
	r.Use(Recoverer)
	r.Use(RequestID)
	r.Use(CORS(cfg.AllowedOrigins))
	r.Use(SecurityHeaders)
	if cfg.EnableGzip {
		r.Use(Gzip)
	}
	if cfg.EnableMetrics {
		r.Use(Metrics())
	}
	if cfg.TracingService != "" {
		r.Use(OTelHTTP(cfg.TracingService))
	}
	if cfg.EnableLogging {
		r.Use(xglog.Middleware())
	}
	if cfg.RequestsPerMinute > 0 {
		r.Use(APIRateLimit(cfg.RequestsPerMinute))
	}
}
