// SPDX-License-Identifier: MIT

package config

import (
	"time"

	"github.com/ManuGH/tvgrid/internal/cache"
	"github.com/ManuGH/tvgrid/internal/playback/proxychain"
	"github.com/ManuGH/tvgrid/internal/store"
	"github.com/ManuGH/tvgrid/internal/telemetry"
)

// AppConfig is the complete daemon configuration.
type AppConfig struct {
	Version string `yaml:"-"`

	DataDir   string           `yaml:"data_dir"`
	Server    ServerConfig     `yaml:"server"`
	Log       LogConfig        `yaml:"log"`
	Store     store.Config     `yaml:"store"`
	Cache     cache.Config     `yaml:"cache"`
	Playback  PlaybackConfig   `yaml:"playback"`
	Playlist  PlaylistConfig   `yaml:"playlist"`
	Sweep     SweepConfig      `yaml:"sweep"`
	Broadcast BroadcastConfig  `yaml:"broadcast"`
	Telemetry telemetry.Config `yaml:"telemetry"`
}

// ServerConfig is the HTTP listener and its middleware.
type ServerConfig struct {
	Listen string `yaml:"listen"`
	// MetricsListen serves /metrics on its own listener when set.
	MetricsListen   string        `yaml:"metrics_listen,omitempty"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	AllowedOrigins  []string      `yaml:"allowed_origins"`
	// RequestsPerMinute bounds API calls per client IP.
	RequestsPerMinute int `yaml:"requests_per_minute"`
	// PlaybackStartsPerMinute bounds POST /playback per client IP.
	PlaybackStartsPerMinute int `yaml:"playback_starts_per_minute"`
	PlaybackStartBurst      int `yaml:"playback_start_burst"`
}

// LogConfig controls the global logger.
type LogConfig struct {
	Level string `yaml:"level"`
}

// PlaybackConfig tunes the resolution engine.
type PlaybackConfig struct {
	DirectTimeout          time.Duration      `yaml:"direct_timeout"`
	ProxyTimeout           time.Duration      `yaml:"proxy_timeout"`
	RaceTimeout            time.Duration      `yaml:"race_timeout"`
	AttachTimeout          time.Duration      `yaml:"attach_timeout"`
	RetryCeiling           int                `yaml:"retry_ceiling"`
	RelayAttemptsPerSecond int                `yaml:"relay_attempts_per_second"`
	IdleTimeout            time.Duration      `yaml:"idle_timeout"`
	MaxSessions            int                `yaml:"max_sessions"`
	Origin                 string             `yaml:"origin"`
	NativeHLS              bool               `yaml:"native_hls"`
	Relays                 []proxychain.Relay `yaml:"relays"`
}

// PlaylistConfig controls remote playlist fetching and export.
type PlaylistConfig struct {
	CacheTTL     time.Duration `yaml:"cache_ttl"`
	MaxBodyBytes int64         `yaml:"max_body_bytes"`
	FetchTimeout time.Duration `yaml:"fetch_timeout"`
	// ExportPath, when set, receives an M3U export after every import.
	ExportPath string `yaml:"export_path"`
}

// SweepConfig sizes the reachability sweep.
type SweepConfig struct {
	Workers int           `yaml:"workers"`
	Timeout time.Duration `yaml:"timeout"`
}

// BroadcastConfig controls the announcement cache.
type BroadcastConfig struct {
	CacheTTL time.Duration `yaml:"cache_ttl"`
}
