// SPDX-License-Identifier: MIT

// Package health serves liveness and readiness probes.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	xglog "github.com/ManuGH/tvgrid/internal/log"
)

// Status is the outcome of a probe.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// DefaultCheckTimeout bounds each checker.
const DefaultCheckTimeout = 2 * time.Second

// CheckResult is one component's answer.
type CheckResult struct {
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Response is the body of /healthz and /readyz.
type Response struct {
	Status    Status                 `json:"status"`
	Ready     bool                   `json:"ready"`
	Version   string                 `json:"version,omitempty"`
	Uptime    int64                  `json:"uptime_seconds"`
	Timestamp time.Time              `json:"timestamp"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
}

// Checker is one component probe.
type Checker interface {
	Name() string
	Check(ctx context.Context) CheckResult
}

// Manager runs registered checkers.
type Manager struct {
	version string
	started time.Time
	timeout time.Duration

	mu       sync.RWMutex
	checkers []Checker
}

// NewManager returns a manager with no checkers.
func NewManager(version string) *Manager {
	return &Manager{version: version, started: time.Now(), timeout: DefaultCheckTimeout}
}

// Register adds checkers.
func (m *Manager) Register(checkers ...Checker) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkers = append(m.checkers, checkers...)
}

// Health is the liveness answer. Components are only consulted when verbose,
// and never make the process look dead.
func (m *Manager) Health(ctx context.Context, verbose bool) Response {
	resp := m.base()
	if verbose {
		m.run(ctx, &resp)
	}
	resp.Ready = resp.Status != StatusUnhealthy
	return resp
}

// Ready is the readiness answer: any unhealthy component means not ready.
func (m *Manager) Ready(ctx context.Context) Response {
	resp := m.base()
	m.run(ctx, &resp)
	resp.Ready = resp.Status != StatusUnhealthy
	return resp
}

func (m *Manager) base() Response {
	return Response{
		Status:    StatusHealthy,
		Version:   m.version,
		Uptime:    int64(time.Since(m.started).Seconds()),
		Timestamp: time.Now().UTC(),
	}
}

// run executes every checker concurrently and folds their statuses.
func (m *Manager) run(ctx context.Context, resp *Response) {
	m.mu.RLock()
	checkers := append([]Checker(nil), m.checkers...)
	m.mu.RUnlock()
	if len(checkers) == 0 {
		return
	}

	results := make([]CheckResult, len(checkers))
	var wg sync.WaitGroup
	for i, c := range checkers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cctx, cancel := context.WithTimeout(ctx, m.timeout)
			defer cancel()
			results[i] = c.Check(cctx)
		}()
	}
	wg.Wait()

	resp.Checks = make(map[string]CheckResult, len(checkers))
	for i, c := range checkers {
		r := results[i]
		resp.Checks[c.Name()] = r
		switch {
		case r.Status == StatusUnhealthy:
			resp.Status = StatusUnhealthy
		case r.Status == StatusDegraded && resp.Status == StatusHealthy:
			resp.Status = StatusDegraded
		}
	}
}

// ServeHealth always answers 200 while the process runs.
func (m *Manager) ServeHealth(w http.ResponseWriter, r *http.Request) {
	resp := m.Health(r.Context(), r.URL.Query().Get("verbose") == "true")
	m.write(w, r, http.StatusOK, resp, "health")
}

// ServeReady answers 503 when a component is unhealthy.
func (m *Manager) ServeReady(w http.ResponseWriter, r *http.Request) {
	resp := m.Ready(r.Context())
	code := http.StatusOK
	if !resp.Ready {
		code = http.StatusServiceUnavailable
	}
	m.write(w, r, code, resp, "readiness")
}

func (m *Manager) write(w http.ResponseWriter, r *http.Request, code int, resp Response, kind string) {
	logger := xglog.WithComponentFromContext(r.Context(), "health")
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		logger.Error().Err(err).Str(xglog.FieldEvent, kind+".encode_error").Msg("failed to encode probe response")
	}
	logger.Debug().
		Str(xglog.FieldEvent, kind+".checked").
		Str("status", string(resp.Status)).
		Bool("ready", resp.Ready).
		Msg("probe answered")
}
