// SPDX-License-Identifier: MIT

package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/ManuGH/tvgrid/internal/cache"
	"github.com/ManuGH/tvgrid/internal/playback/proxychain"
	"github.com/ManuGH/tvgrid/internal/store"
)

// FieldError names the offending key.
type FieldError struct {
	Field  string
	Reason string
}

func (e FieldError) Error() string { return e.Field + ": " + e.Reason }

// Validate reports every problem in cfg at once.
func Validate(cfg AppConfig) error {
	var errs []error
	fail := func(field, format string, args ...any) {
		errs = append(errs, FieldError{Field: field, Reason: fmt.Sprintf(format, args...)})
	}

	if strings.TrimSpace(cfg.Server.Listen) == "" {
		fail("server.listen", "must not be empty")
	}
	if cfg.Server.RequestsPerMinute < 0 {
		fail("server.requests_per_minute", "must be >= 0")
	}
	if cfg.Server.PlaybackStartsPerMinute < 0 {
		fail("server.playback_starts_per_minute", "must be >= 0")
	}
	for _, o := range cfg.Server.AllowedOrigins {
		if o == "*" {
			continue
		}
		if u, err := url.Parse(o); err != nil || u.Scheme == "" || u.Host == "" {
			fail("server.allowed_origins", "invalid origin %q", o)
		}
	}

	if cfg.Log.Level != "" {
		if _, err := zerolog.ParseLevel(strings.ToLower(cfg.Log.Level)); err != nil {
			fail("log.level", "unknown level %q", cfg.Log.Level)
		}
	}

	switch cfg.Store.Driver {
	case store.DriverSQLite:
		if cfg.Store.Path == "" {
			fail("store.path", "required for the sqlite driver")
		}
	case store.DriverPostgres:
		if cfg.Store.DSN == "" {
			fail("store.dsn", "required for the postgres driver")
		}
	default:
		fail("store.driver", "must be %q or %q", store.DriverSQLite, store.DriverPostgres)
	}

	switch cfg.Cache.Backend {
	case cache.BackendMemory, cache.BackendNone, "":
	case cache.BackendRedis:
		if cfg.Cache.Redis.Addr == "" {
			fail("cache.redis.addr", "required for the redis backend")
		}
	default:
		fail("cache.backend", "unknown backend %q", cfg.Cache.Backend)
	}

	p := cfg.Playback
	for _, d := range []struct {
		field string
		value time.Duration
	}{
		{"playback.direct_timeout", p.DirectTimeout},
		{"playback.proxy_timeout", p.ProxyTimeout},
		{"playback.race_timeout", p.RaceTimeout},
		{"playback.attach_timeout", p.AttachTimeout},
		{"playback.idle_timeout", p.IdleTimeout},
	} {
		if d.value <= 0 {
			fail(d.field, "must be positive")
		}
	}
	if p.RetryCeiling < 0 {
		fail("playback.retry_ceiling", "must be >= 0")
	}
	if p.RelayAttemptsPerSecond < 0 {
		fail("playback.relay_attempts_per_second", "must be >= 0")
	}
	if p.MaxSessions < 0 {
		fail("playback.max_sessions", "must be >= 0")
	}
	if _, err := proxychain.New(p.Relays...); err != nil {
		fail("playback.relays", "%v", err)
	}

	if cfg.Playlist.MaxBodyBytes <= 0 {
		fail("playlist.max_body_bytes", "must be positive")
	}
	if cfg.Sweep.Workers < 1 || cfg.Sweep.Workers > 256 {
		fail("sweep.workers", "must be between 1 and 256")
	}
	if cfg.Sweep.Timeout <= 0 {
		fail("sweep.timeout", "must be positive")
	}
	if cfg.Broadcast.CacheTTL <= 0 {
		fail("broadcast.cache_ttl", "must be positive")
	}

	t := cfg.Telemetry
	if t.Enabled {
		if t.ExporterType != "grpc" && t.ExporterType != "http" {
			fail("telemetry.exporter", "must be grpc or http")
		}
		if t.Endpoint == "" {
			fail("telemetry.endpoint", "required when telemetry is enabled")
		}
	}
	if t.SamplingRate < 0 || t.SamplingRate > 1 {
		fail("telemetry.sampling_rate", "must be within [0,1]")
	}

	return errors.Join(errs...)
}
