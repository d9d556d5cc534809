// SPDX-License-Identifier: MIT

// Command tvgrid serves the channel catalogue and the playback engine.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/ManuGH/tvgrid/internal/config"
	"github.com/ManuGH/tvgrid/internal/daemon"
	xglog "github.com/ManuGH/tvgrid/internal/log"
)

var (
	version   = "v0.1.0"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "healthcheck" {
		os.Exit(runHealthcheckCLI(os.Args[2:]))
	}

	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "path to config file (YAML)")
	envFile := flag.String("env-file", ".env", "environment file loaded before the config")
	flag.Parse()

	if *showVersion {
		fmt.Printf("%s (commit: %s, built: %s)\n", version, commit, buildDate)
		os.Exit(0)
	}

	// Safe defaults until the config is loaded.
	xglog.Configure(xglog.Config{Level: "info", Service: "tvgrid", Version: version})
	logger := xglog.WithComponent("daemon")

	if err := config.LoadDotEnv(*envFile); err != nil {
		logger.Fatal().Err(err).Str(xglog.FieldEvent, "config.dotenv_failed").Str(xglog.FieldPath, *envFile).Msg("failed to load environment file")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Explicit --config wins, then TVGRID_CONFIG, then <data dir>/config.yaml
	// when present.
	path := strings.TrimSpace(*configPath)
	if path == "" {
		path = strings.TrimSpace(config.ParseString(config.EnvPrefix+"CONFIG", ""))
	}
	if path == "" {
		auto := defaultConfigPath(config.ParseString(config.EnvPrefix+"DATA_DIR", config.Defaults().DataDir))
		if _, err := os.Stat(auto); err == nil {
			path = auto
		}
	}

	loader := config.NewLoader(path, version)
	cfg, err := loader.Load()
	if err != nil {
		logger.Fatal().Err(err).Str(xglog.FieldEvent, "config.load_failed").Str("config_path", path).Msg("failed to load configuration")
	}
	xglog.Reconfigure(xglog.Config{Level: cfg.Log.Level, Service: "tvgrid", Version: version})
	logger = xglog.WithComponent("daemon")

	source := "env+defaults"
	if path != "" {
		source = "file"
	}
	logger.Info().
		Str(xglog.FieldEvent, "startup").
		Str("version", version).
		Str("commit", commit).
		Str("build_date", buildDate).
		Str("addr", cfg.Server.Listen).
		Str("config_source", source).
		Str("store", cfg.Store.Driver).
		Str("cache", cfg.Cache.Backend).
		Int("relays", len(cfg.Playback.Relays)).
		Msg("starting tvgrid")

	holder := config.NewHolder(cfg, loader)
	if err := holder.Watch(ctx); err != nil {
		logger.Warn().Err(err).Str(xglog.FieldEvent, "config.watch_failed").Msg("config hot reload unavailable")
	}

	svc, err := buildServices(ctx, holder, version)
	if err != nil {
		holder.Stop()
		logger.Fatal().Err(err).Str(xglog.FieldEvent, "startup.failed").Msg("failed to build services")
	}

	mgr, err := daemon.NewManager(cfg.Server, svc.daemonDeps())
	if err != nil {
		svc.close(context.Background())
		holder.Stop()
		logger.Fatal().Err(err).Str(xglog.FieldEvent, "manager.creation.failed").Msg("failed to create daemon manager")
	}
	svc.registerHooks(mgr)

	if err := mgr.Start(ctx); err != nil {
		logger.Error().Err(err).Str(xglog.FieldEvent, "manager.failed").Msg("daemon stopped with error")
		os.Exit(1)
	}
	logger.Info().Msg("server exiting")
}
