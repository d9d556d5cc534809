// SPDX-License-Identifier: MIT

package daemon

import (
	"context"
	"net/http"

	"github.com/rs/zerolog"
)

// Worker is a background loop owned by the manager. Run must return once
// ctx is cancelled.
type Worker struct {
	Name string
	Run  func(ctx context.Context)
}

// Deps contains dependencies required by the daemon Manager.
type Deps struct {
	// Logger is the structured logger for the daemon
	Logger zerolog.Logger

	// APIHandler is the HTTP handler for the API server
	APIHandler http.Handler

	// MetricsHandler is served on ServerConfig.MetricsListen when both are set.
	MetricsHandler http.Handler

	// Workers run for the lifetime of Start, e.g. the session reaper.
	Workers []Worker
}

// Validate checks if the dependencies are valid.
func (d *Deps) Validate() error {
	if d.Logger.GetLevel() == zerolog.Disabled {
		return ErrMissingLogger
	}
	if d.APIHandler == nil {
		return ErrMissingAPIHandler
	}
	return nil
}
