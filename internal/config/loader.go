// SPDX-License-Identifier: MIT

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Loader reads configuration with precedence ENV > file > defaults.
type Loader struct {
	configPath string
	version    string
	// Consumed records every environment key the last Load looked at.
	Consumed map[string]struct{}
}

// NewLoader returns a loader for configPath; an empty path means env only.
func NewLoader(configPath, version string) *Loader {
	return &Loader{configPath: configPath, version: version, Consumed: map[string]struct{}{}}
}

// Path returns the config file, if any.
func (l *Loader) Path() string { return l.configPath }

// Load runs defaults, file, environment, then validation.
func (l *Loader) Load() (AppConfig, error) {
	cfg := Defaults()

	if l.configPath != "" {
		if err := l.loadFile(l.configPath, &cfg); err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
	}

	l.Consumed = map[string]struct{}{}
	l.mergeEnv(&cfg)

	cfg.Version = l.version
	cfg.Telemetry.ServiceVersion = l.version
	if abs, err := filepath.Abs(cfg.DataDir); err == nil {
		cfg.DataDir = abs
	}
	if cfg.Store.Path != "" && !filepath.IsAbs(cfg.Store.Path) {
		if abs, err := filepath.Abs(cfg.Store.Path); err == nil {
			cfg.Store.Path = abs
		}
	}

	if err := Validate(cfg); err != nil {
		return cfg, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// loadFile decodes path over cfg. Unknown keys and extra documents fail.
func (l *Loader) loadFile(path string, cfg *AppConfig) error {
	path = filepath.Clean(path)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
	default:
		return fmt.Errorf("unsupported config format %q (only YAML supported)", filepath.Ext(path))
	}

	// #nosec G304 -- the operator chooses the config path
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("strict config parse error: %w", err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return errors.New("config file contains multiple documents or trailing content")
	}
	return nil
}

func (l *Loader) key(name string) string {
	k := EnvPrefix + name
	l.Consumed[k] = struct{}{}
	return k
}

func (l *Loader) mergeEnv(cfg *AppConfig) {
	cfg.DataDir = ParseString(l.key("DATA_DIR"), cfg.DataDir)

	s := &cfg.Server
	s.Listen = ParseString(l.key("LISTEN"), s.Listen)
	s.MetricsListen = ParseString(l.key("METRICS_LISTEN"), s.MetricsListen)
	s.ShutdownTimeout = ParseDuration(l.key("SHUTDOWN_TIMEOUT"), s.ShutdownTimeout)
	s.AllowedOrigins = ParseList(l.key("ALLOWED_ORIGINS"), s.AllowedOrigins)
	s.RequestsPerMinute = ParseInt(l.key("REQUESTS_PER_MINUTE"), s.RequestsPerMinute)
	s.PlaybackStartsPerMinute = ParseInt(l.key("PLAYBACK_STARTS_PER_MINUTE"), s.PlaybackStartsPerMinute)

	// LOG_LEVEL is honoured without prefix as well; the prefixed key wins.
	cfg.Log.Level = ParseString("LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Level = ParseString(l.key("LOG_LEVEL"), cfg.Log.Level)

	st := &cfg.Store
	st.Driver = ParseString(l.key("STORE_DRIVER"), st.Driver)
	st.Path = ParseString(l.key("STORE_PATH"), st.Path)
	st.DSN = ParseString(l.key("STORE_DSN"), st.DSN)

	c := &cfg.Cache
	c.Backend = ParseString(l.key("CACHE_BACKEND"), c.Backend)
	c.Redis.Addr = ParseString(l.key("REDIS_ADDR"), c.Redis.Addr)
	c.Redis.Password = ParseString(l.key("REDIS_PASSWORD"), c.Redis.Password)
	c.Redis.DB = ParseInt(l.key("REDIS_DB"), c.Redis.DB)

	p := &cfg.Playback
	p.DirectTimeout = ParseDuration(l.key("PLAYBACK_DIRECT_TIMEOUT"), p.DirectTimeout)
	p.ProxyTimeout = ParseDuration(l.key("PLAYBACK_PROXY_TIMEOUT"), p.ProxyTimeout)
	p.RaceTimeout = ParseDuration(l.key("PLAYBACK_RACE_TIMEOUT"), p.RaceTimeout)
	p.AttachTimeout = ParseDuration(l.key("PLAYBACK_ATTACH_TIMEOUT"), p.AttachTimeout)
	p.RetryCeiling = ParseInt(l.key("PLAYBACK_RETRY_CEILING"), p.RetryCeiling)
	p.RelayAttemptsPerSecond = ParseInt(l.key("RELAY_ATTEMPTS_PER_SECOND"), p.RelayAttemptsPerSecond)
	p.IdleTimeout = ParseDuration(l.key("PLAYBACK_IDLE_TIMEOUT"), p.IdleTimeout)
	p.MaxSessions = ParseInt(l.key("PLAYBACK_MAX_SESSIONS"), p.MaxSessions)
	p.Origin = ParseString(l.key("PLAYBACK_ORIGIN"), p.Origin)

	pl := &cfg.Playlist
	pl.CacheTTL = ParseDuration(l.key("PLAYLIST_CACHE_TTL"), pl.CacheTTL)
	pl.MaxBodyBytes = ParseInt64(l.key("PLAYLIST_MAX_BYTES"), pl.MaxBodyBytes)
	pl.ExportPath = ParseString(l.key("PLAYLIST_EXPORT_PATH"), pl.ExportPath)

	cfg.Sweep.Workers = ParseInt(l.key("SWEEP_WORKERS"), cfg.Sweep.Workers)
	cfg.Sweep.Timeout = ParseDuration(l.key("SWEEP_TIMEOUT"), cfg.Sweep.Timeout)
	cfg.Broadcast.CacheTTL = ParseDuration(l.key("BROADCAST_CACHE_TTL"), cfg.Broadcast.CacheTTL)

	t := &cfg.Telemetry
	t.Enabled = ParseBool(l.key("TELEMETRY_ENABLED"), t.Enabled)
	t.ExporterType = ParseString(l.key("OTLP_EXPORTER"), t.ExporterType)
	t.Endpoint = ParseString(l.key("OTLP_ENDPOINT"), t.Endpoint)
	t.SamplingRate = ParseFloat(l.key("TRACE_SAMPLING_RATE"), t.SamplingRate)
}
