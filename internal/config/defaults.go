// SPDX-License-Identifier: MIT

package config

import (
	"path/filepath"
	"time"

	"github.com/ManuGH/tvgrid/internal/broadcast"
	"github.com/ManuGH/tvgrid/internal/cache"
	"github.com/ManuGH/tvgrid/internal/playback/decoder"
	"github.com/ManuGH/tvgrid/internal/playback/orchestrator"
	"github.com/ManuGH/tvgrid/internal/playback/probe"
	"github.com/ManuGH/tvgrid/internal/playback/proxychain"
	"github.com/ManuGH/tvgrid/internal/playlist"
	"github.com/ManuGH/tvgrid/internal/store"
	"github.com/ManuGH/tvgrid/internal/sweep"
	"github.com/ManuGH/tvgrid/internal/telemetry"
)

const defaultDataDir = "data"

// Defaults returns the configuration used when neither file nor environment
// say otherwise.
func Defaults() AppConfig {
	return AppConfig{
		DataDir: defaultDataDir,
		Server: ServerConfig{
			Listen:                  ":8088",
			ReadTimeout:             15 * time.Second,
			IdleTimeout:             2 * time.Minute,
			ShutdownTimeout:         10 * time.Second,
			RequestsPerMinute:       600,
			PlaybackStartsPerMinute: 30,
			PlaybackStartBurst:      5,
		},
		Log: LogConfig{Level: "info"},
		Store: store.Config{
			Driver: store.DriverSQLite,
			Path:   filepath.Join(defaultDataDir, "tvgrid.db"),
		},
		Cache: cache.Config{Backend: cache.BackendMemory},
		Playback: PlaybackConfig{
			DirectTimeout:          probe.DefaultDirectTimeout,
			ProxyTimeout:           probe.DefaultProxyTimeout,
			RaceTimeout:            probe.DefaultRaceTimeout,
			AttachTimeout:          decoder.DefaultAttachTimeout,
			RetryCeiling:           orchestrator.DefaultRetryCeiling,
			RelayAttemptsPerSecond: 4,
			IdleTimeout:            5 * time.Minute,
			MaxSessions:            64,
			Relays:                 proxychain.DefaultRelays(),
		},
		Playlist: PlaylistConfig{
			CacheTTL:     playlist.DefaultCacheTTL,
			MaxBodyBytes: playlist.DefaultMaxBodyBytes,
			FetchTimeout: playlist.DefaultFetchTimeout,
		},
		Sweep: SweepConfig{
			Workers: sweep.DefaultWorkers,
			Timeout: sweep.DefaultTimeout,
		},
		Broadcast: BroadcastConfig{CacheTTL: broadcast.DefaultTTL},
		Telemetry: telemetry.Config{
			ServiceName:  "tvgrid",
			ExporterType: "grpc",
			Endpoint:     "localhost:4317",
			SamplingRate: 1.0,
		},
	}
}
