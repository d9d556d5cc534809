// SPDX-License-Identifier: MIT

package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ManuGH/tvgrid/internal/activation"
	"github.com/ManuGH/tvgrid/internal/api"
	"github.com/ManuGH/tvgrid/internal/api/middleware"
	"github.com/ManuGH/tvgrid/internal/broadcast"
	"github.com/ManuGH/tvgrid/internal/cache"
	"github.com/ManuGH/tvgrid/internal/config"
	"github.com/ManuGH/tvgrid/internal/daemon"
	"github.com/ManuGH/tvgrid/internal/diagnostics"
	"github.com/ManuGH/tvgrid/internal/health"
	"github.com/ManuGH/tvgrid/internal/jobs"
	xglog "github.com/ManuGH/tvgrid/internal/log"
	"github.com/ManuGH/tvgrid/internal/platform/httpx"
	"github.com/ManuGH/tvgrid/internal/playback/browser"
	"github.com/ManuGH/tvgrid/internal/playback/decoder"
	"github.com/ManuGH/tvgrid/internal/playback/orchestrator"
	"github.com/ManuGH/tvgrid/internal/playback/probe"
	"github.com/ManuGH/tvgrid/internal/playback/proxychain"
	"github.com/ManuGH/tvgrid/internal/playlist"
	"github.com/ManuGH/tvgrid/internal/ratelimit"
	"github.com/ManuGH/tvgrid/internal/rating"
	"github.com/ManuGH/tvgrid/internal/store"
	"github.com/ManuGH/tvgrid/internal/sweep"
	"github.com/ManuGH/tvgrid/internal/telemetry"
)

const (
	environmentTimeout = 5 * time.Second
	healthTTL          = 30 * time.Second
	reapInterval       = time.Minute
)

// services is everything the daemon owns between start and shutdown.
type services struct {
	holder      *config.Holder
	store       *store.SQLStore
	cache       cache.Cache
	sweeper     *sweep.Sweeper
	registry    *orchestrator.Registry
	telemetry   *telemetry.Provider
	lkg         *diagnostics.LKGCache
	maintenance *jobs.Maintenance
	health      *health.Manager
	envClient   httpx.Doer
	server      *api.Server
}

// buildServices opens the store and cache and wires the playback engine and
// the API around them. On error everything opened so far is closed.
func buildServices(ctx context.Context, holder *config.Holder, version string) (_ *services, err error) {
	cfg := holder.Get()
	s := &services{
		holder:    holder,
		lkg:       diagnostics.NewLKGCache(healthTTL),
		envClient: httpx.NewClient(environmentTimeout),
	}
	defer func() {
		if err != nil {
			s.close(context.WithoutCancel(ctx))
		}
	}()

	if err := health.EnsureDataDir(cfg.DataDir); err != nil {
		return nil, err
	}

	s.telemetry, err = telemetry.NewProvider(ctx, withVersion(cfg.Telemetry, version))
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}
	s.store, err = store.Open(ctx, cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}
	s.cache, err = cache.New(ctx, cfg.Cache)
	if err != nil {
		return nil, fmt.Errorf("cache: %w", err)
	}

	prober, err := newProber(cfg.Playback)
	if err != nil {
		return nil, err
	}
	s.sweeper, err = sweep.New(prober, cfg.Sweep.Workers, cfg.Sweep.Timeout)
	if err != nil {
		return nil, err
	}

	s.registry = orchestrator.NewRegistry(s.newOrchestrator, orchestrator.RegistryOptions{
		MaxSessions: cfg.Playback.MaxSessions,
		IdleTimeout: cfg.Playback.IdleTimeout,
	})

	ratings := rating.NewService(s.store)
	s.maintenance = &jobs.Maintenance{
		Sessions: s.store,
		Channels: ratings,
		Evict:    s.lkg.EvictExpired,
	}

	fetcher := playlist.NewFetcher(playlist.FetchConfig{
		Client:       httpx.NewClient(cfg.Playlist.FetchTimeout),
		CacheTTL:     cfg.Playlist.CacheTTL,
		MaxBodyBytes: cfg.Playlist.MaxBodyBytes,
	})
	var importer api.Importer = playlist.NewImporter(fetcher, s.store, s.sweeper)
	if cfg.Playlist.ExportPath != "" {
		importer = &jobs.Export{Importer: importer, Channels: s.store, Path: cfg.Playlist.ExportPath}
	}

	s.health = health.NewManager(version)
	s.health.Register(
		health.NewStoreChecker(s.store),
		health.NewCacheChecker(s.cache),
		health.NewDirChecker("data_dir", cfg.DataDir),
	)

	startLimiter := ratelimit.New(ratelimit.Config{
		Name:      "playback_start",
		PerMinute: cfg.Server.PlaybackStartsPerMinute,
		Burst:     cfg.Server.PlaybackStartBurst,
		IdleTTL:   10 * time.Minute,
	})

	s.server, err = api.New(api.Deps{
		Version:        version,
		Store:          s.store,
		Activation:     activation.NewService(s.store),
		Ratings:        ratings,
		Broadcasts:     broadcast.NewCachedSource(s.store, s.cache, cfg.Broadcast.CacheTTL),
		Importer:       importer,
		Sweeper:        s.sweeper,
		Playback:       s.registry,
		Health:         s.health,
		Diagnostics:    s.systemReport,
		StartLimit:     startLimiter.Middleware,
		ImportMaxBytes: cfg.Playlist.MaxBodyBytes,
		Stack: middleware.StackConfig{
			AllowedOrigins:    cfg.Server.AllowedOrigins,
			EnableGzip:        true,
			EnableMetrics:     true,
			TracingService:    tracingService(cfg.Telemetry),
			EnableLogging:     true,
			RequestsPerMinute: cfg.Server.RequestsPerMinute,
		},
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}

// newOrchestrator builds one session's engine from the configuration current
// at the time, so reloaded relays and timeouts reach new sessions only.
func (s *services) newOrchestrator(hint browser.Hint) (*orchestrator.Orchestrator, error) {
	cfg := s.holder.Get().Playback
	prober, err := newProber(cfg)
	if err != nil {
		return nil, err
	}
	bindings := decoder.NewSet(decoder.SetConfig{
		Client:        httpx.NewHeaderClient(httpx.NewStreamClient(cfg.DirectTimeout), httpx.Headers{Origin: cfg.Origin}),
		AttachTimeout: cfg.AttachTimeout,
		NativeHLS:     cfg.NativeHLS || hint.NativeHLS,
	})
	return orchestrator.New(orchestrator.Config{
		Prober:                 prober,
		Bindings:               bindings,
		Surface:                decoder.NewSurface(decoder.SurfaceOptions{Autoplay: true}),
		Order:                  hint.Order,
		RetryCeiling:           cfg.RetryCeiling,
		RelayAttemptsPerSecond: cfg.RelayAttemptsPerSecond,
		Environment: func(ctx context.Context) diagnostics.EnvironmentFacts {
			return diagnostics.GatherEnvironment(ctx, s.envClient, environmentTimeout)
		},
		Tracer: telemetry.Tracer("tvgrid/playback"),
	})
}

func newProber(cfg config.PlaybackConfig) (*probe.Prober, error) {
	chain, err := proxychain.New(cfg.Relays...)
	if err != nil {
		return nil, fmt.Errorf("proxy chain: %w", err)
	}
	return probe.New(probe.Config{
		DirectTimeout: cfg.DirectTimeout,
		ProxyTimeout:  cfg.ProxyTimeout,
		RaceTimeout:   cfg.RaceTimeout,
		Origin:        cfg.Origin,
		Chain:         chain,
		Client:        httpx.NewHeaderClient(httpx.NewClient(cfg.ProxyTimeout), httpx.Headers{Origin: cfg.Origin}),
	}), nil
}

func (s *services) systemReport(ctx context.Context) diagnostics.SystemReport {
	checkers := append([]diagnostics.HealthChecker{
		diagnostics.StoreChecker{Store: s.store, Timeout: 2 * time.Second},
		diagnostics.PlaybackChecker{Stats: s.registry.Stats},
	}, diagnostics.EnvironmentCheckers(s.envClient, environmentTimeout)...)
	return diagnostics.Gather(ctx, s.lkg, checkers...)
}

// daemonDeps hands the manager its handlers and background loops.
func (s *services) daemonDeps() daemon.Deps {
	return daemon.Deps{
		Logger:         xglog.WithComponent("daemon"),
		APIHandler:     s.server.Handler(),
		MetricsHandler: promhttp.Handler(),
		Workers: []daemon.Worker{
			{Name: "playback_reaper", Run: func(ctx context.Context) { s.registry.RunReaper(ctx, reapInterval) }},
			{Name: "maintenance", Run: s.maintenance.Run},
			{Name: "log_level", Run: s.followLogLevel},
		},
	}
}

// followLogLevel applies reloaded log levels.
func (s *services) followLogLevel(ctx context.Context) {
	updates := make(chan config.AppConfig, 1)
	s.holder.Subscribe(updates)
	level := s.holder.Get().Log.Level
	for {
		select {
		case <-ctx.Done():
			return
		case cfg := <-updates:
			if cfg.Log.Level == level {
				continue
			}
			level = cfg.Log.Level
			xglog.Reconfigure(xglog.Config{Level: level, Service: "tvgrid", Version: cfg.Version})
			logger := xglog.WithComponent("daemon")
			logger.Info().Str(xglog.FieldEvent, "log.level_changed").Str("level", level).Msg("log level changed")
		}
	}
}

// registerHooks closes owned resources in reverse dependency order.
func (s *services) registerHooks(mgr daemon.Manager) {
	mgr.RegisterShutdownHook("telemetry", s.telemetry.Shutdown)
	mgr.RegisterShutdownHook("store", func(context.Context) error { return s.store.Close() })
	mgr.RegisterShutdownHook("cache", func(context.Context) error { return s.cache.Close() })
	mgr.RegisterShutdownHook("sweeper", func(context.Context) error { return s.sweeper.Close() })
	mgr.RegisterShutdownHook("playback", func(context.Context) error { s.registry.Close(); return nil })
	mgr.RegisterShutdownHook("config_watcher", func(context.Context) error { s.holder.Stop(); return nil })
}

// close releases whatever was opened; used when startup fails.
func (s *services) close(ctx context.Context) {
	var errs []error
	if s.registry != nil {
		s.registry.Close()
	}
	if s.sweeper != nil {
		errs = append(errs, s.sweeper.Close())
	}
	if s.cache != nil {
		errs = append(errs, s.cache.Close())
	}
	if s.store != nil {
		errs = append(errs, s.store.Close())
	}
	if s.telemetry != nil {
		errs = append(errs, s.telemetry.Shutdown(ctx))
	}
	if err := errors.Join(errs...); err != nil {
		logger := xglog.WithComponent("daemon")
		logger.Warn().Err(err).Msg("cleanup after failed startup")
	}
}

func withVersion(cfg telemetry.Config, version string) telemetry.Config {
	cfg.ServiceVersion = version
	return cfg
}

func tracingService(cfg telemetry.Config) string {
	if !cfg.Enabled {
		return ""
	}
	return cfg.ServiceName
}

// defaultConfigPath is data/config.yaml when it exists.
func defaultConfigPath(dataDir string) string {
	return filepath.Join(dataDir, "config.yaml")
}
