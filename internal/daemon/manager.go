// SPDX-License-Identifier: MIT

// Package daemon runs the tvgrid HTTP listeners and background workers and
// tears them down in order.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ManuGH/tvgrid/internal/config"
	xglog "github.com/ManuGH/tvgrid/internal/log"
)

const defaultShutdownTimeout = 10 * time.Second

// ShutdownHook is a function that performs cleanup during graceful shutdown.
// Hooks are executed in reverse registration order (LIFO).
type ShutdownHook func(ctx context.Context) error

// Manager manages the daemon lifecycle: starting servers, handling shutdown.
type Manager interface {
	// Start starts all configured servers and blocks until shutdown
	Start(ctx context.Context) error

	// Shutdown gracefully shuts down all servers
	Shutdown(ctx context.Context) error

	// RegisterShutdownHook registers a function to be called during shutdown
	RegisterShutdownHook(name string, hook ShutdownHook)
}

type manager struct {
	serverCfg config.ServerConfig
	deps      Deps

	apiServer     *http.Server
	metricsServer *http.Server

	workers       sync.WaitGroup
	cancelWorkers context.CancelFunc

	shutdownHooks []namedHook

	started  bool
	stopping bool
	mu       sync.Mutex

	logger zerolog.Logger
}

type namedHook struct {
	name string
	hook ShutdownHook
}

// NewManager creates a new daemon manager with the given configuration and dependencies.
func NewManager(serverCfg config.ServerConfig, deps Deps) (Manager, error) {
	if err := deps.Validate(); err != nil {
		return nil, fmt.Errorf("invalid dependencies: %w", err)
	}
	if serverCfg.ShutdownTimeout <= 0 {
		serverCfg.ShutdownTimeout = defaultShutdownTimeout
	}
	return &manager{
		serverCfg: serverCfg,
		deps:      deps,
		logger:    deps.Logger.With().Str(xglog.FieldComponent, "manager").Logger(),
	}, nil
}

// Start opens the listeners, runs the workers and blocks until ctx is
// cancelled or a server fails. Either way it shuts everything down before
// returning.
func (m *manager) Start(ctx context.Context) error {
	if ctx == nil {
		return errors.New("start context is nil")
	}

	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return ErrManagerStarted
	}
	m.started = true
	m.mu.Unlock()

	m.logger.Info().
		Str(xglog.FieldEvent, "daemon.starting").
		Str("listen", m.serverCfg.Listen).
		Str("metrics_listen", m.serverCfg.MetricsListen).
		Dur("read_timeout", m.serverCfg.ReadTimeout).
		Dur("shutdown_timeout", m.serverCfg.ShutdownTimeout).
		Int("workers", len(m.deps.Workers)).
		Msg("starting daemon manager")

	errChan := make(chan error, 2)

	apiLn, err := net.Listen("tcp", m.serverCfg.Listen)
	if err != nil {
		return fmt.Errorf("%w: API listener: %w", ErrServerStartFailed, err)
	}
	var metricsLn net.Listener
	if m.serverCfg.MetricsListen != "" && m.deps.MetricsHandler != nil {
		metricsLn, err = net.Listen("tcp", m.serverCfg.MetricsListen)
		if err != nil {
			_ = apiLn.Close()
			return fmt.Errorf("%w: metrics listener: %w", ErrServerStartFailed, err)
		}
	}

	m.startWorkers(ctx)
	m.apiServer = m.serve("api", apiLn, m.deps.APIHandler, errChan)
	if metricsLn != nil {
		m.metricsServer = m.serve("metrics", metricsLn, m.deps.MetricsHandler, errChan)
	}

	select {
	case err := <-errChan:
		m.logger.Error().Err(err).Str(xglog.FieldEvent, "daemon.server_failed").Msg("server error, initiating shutdown")
		if shutdownErr := m.Shutdown(context.WithoutCancel(ctx)); shutdownErr != nil {
			return fmt.Errorf("server error and shutdown failure: %w", errors.Join(err, shutdownErr))
		}
		return err
	case <-ctx.Done():
		m.logger.Info().Str(xglog.FieldEvent, "daemon.signal").Msg("shutdown signal received")
		return m.Shutdown(context.WithoutCancel(ctx))
	}
}

func (m *manager) serve(name string, ln net.Listener, h http.Handler, errChan chan<- error) *http.Server {
	srv := &http.Server{
		Handler:           h,
		ReadHeaderTimeout: m.serverCfg.ReadTimeout,
		IdleTimeout:       m.serverCfg.IdleTimeout,
		// No WriteTimeout: playback streams and event sockets are long-lived.
	}
	go func() {
		m.logger.Info().Str("server", name).Str("addr", ln.Addr().String()).Msg("server listening")
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			m.logger.Error().Err(err).Str("server", name).Str(xglog.FieldEvent, name+".server.failed").Msg("server failed")
			errChan <- fmt.Errorf("%s server: %w", name, err)
		}
	}()
	return srv
}

func (m *manager) startWorkers(parent context.Context) {
	ctx, cancel := context.WithCancel(context.WithoutCancel(parent))
	m.mu.Lock()
	m.cancelWorkers = cancel
	m.mu.Unlock()

	for _, w := range m.deps.Workers {
		m.workers.Add(1)
		go func(w Worker) {
			defer m.workers.Done()
			m.logger.Debug().Str("worker", w.Name).Msg("worker started")
			w.Run(ctx)
			m.logger.Debug().Str("worker", w.Name).Msg("worker stopped")
		}(w)
	}
}

// Shutdown stops the listeners, then the workers, then runs the hooks in
// reverse registration order. A second call is a no-op.
func (m *manager) Shutdown(ctx context.Context) error {
	if ctx == nil {
		return errors.New("shutdown context is nil")
	}

	m.mu.Lock()
	if m.stopping {
		m.mu.Unlock()
		return nil
	}
	if !m.started {
		m.mu.Unlock()
		return ErrManagerNotStarted
	}
	m.stopping = true
	cancelWorkers := m.cancelWorkers
	hooks := append([]namedHook(nil), m.shutdownHooks...)
	m.mu.Unlock()

	m.logger.Info().Str(xglog.FieldEvent, "daemon.stopping").Msg("shutting down daemon manager")

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.serverCfg.ShutdownTimeout)
	defer cancel()

	var errs []error
	for name, srv := range map[string]*http.Server{"api": m.apiServer, "metrics": m.metricsServer} {
		if srv == nil {
			continue
		}
		m.logger.Debug().Str("server", name).Msg("shutting down server")
		if err := srv.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("%s server shutdown: %w", name, err))
		}
	}

	if cancelWorkers != nil {
		cancelWorkers()
	}
	done := make(chan struct{})
	go func() {
		m.workers.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-shutdownCtx.Done():
		errs = append(errs, fmt.Errorf("workers: %w", shutdownCtx.Err()))
	}

	for i := len(hooks) - 1; i >= 0; i-- {
		hook := hooks[i]
		hookStart := time.Now()
		if err := hook.hook(shutdownCtx); err != nil {
			m.logger.Error().
				Err(err).
				Str("hook", hook.name).
				Dur("duration", time.Since(hookStart)).
				Msg("shutdown hook failed")
			errs = append(errs, fmt.Errorf("hook %s: %w", hook.name, err))
			continue
		}
		m.logger.Debug().
			Str("hook", hook.name).
			Dur("duration", time.Since(hookStart)).
			Msg("shutdown hook completed")
	}

	if len(errs) > 0 {
		m.logger.Error().Int("error_count", len(errs)).Msg("shutdown completed with errors")
		return fmt.Errorf("shutdown errors: %w", errors.Join(errs...))
	}
	m.logger.Info().Str(xglog.FieldEvent, "daemon.stopped").Msg("daemon manager stopped cleanly")
	return nil
}

// RegisterShutdownHook registers a cleanup function to be called during shutdown.
// Hooks are executed in reverse registration order (LIFO).
func (m *manager) RegisterShutdownHook(name string, hook ShutdownHook) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shutdownHooks = append(m.shutdownHooks, namedHook{name: name, hook: hook})
	m.logger.Debug().Str("hook", name).Msg("registered shutdown hook")
}
