// SPDX-License-Identifier: MIT

package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	xglog "github.com/ManuGH/tvgrid/internal/log"
)

// EnvPrefix namespaces every environment override.
const EnvPrefix = "TVGRID_"

// lookup returns the value of key when it is set and non-empty, logging
// where the effective value came from.
func lookup(logger zerolog.Logger, key string) (string, bool) {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		logger.Debug().Str("key", key).Str("source", "default").Msg("using default value")
		return "", false
	}
	ev := logger.Debug().Str("key", key).Str("source", "environment")
	if sensitive(key) {
		ev = ev.Bool("sensitive", true)
	} else {
		ev = ev.Str("value", v)
	}
	ev.Msg("using environment variable")
	return strings.TrimSpace(v), true
}

func sensitive(key string) bool {
	k := strings.ToLower(key)
	return strings.Contains(k, "password") || strings.Contains(k, "token") ||
		strings.Contains(k, "secret") || strings.Contains(k, "dsn")
}

func invalid(logger zerolog.Logger, key, value, kind string) {
	logger.Warn().
		Str("key", key).
		Str("value", value).
		Msgf("invalid %s in environment variable, using default", kind)
}

// ParseString reads key or returns def.
func ParseString(key, def string) string {
	if v, ok := lookup(xglog.WithComponent("config"), key); ok {
		return v
	}
	return def
}

// ParseInt reads an integer, falling back to def on parse errors.
func ParseInt(key string, def int) int {
	logger := xglog.WithComponent("config")
	v, ok := lookup(logger, key)
	if !ok {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		invalid(logger, key, v, "integer")
		return def
	}
	return i
}

// ParseInt64 reads a 64-bit integer, falling back to def on parse errors.
func ParseInt64(key string, def int64) int64 {
	logger := xglog.WithComponent("config")
	v, ok := lookup(logger, key)
	if !ok {
		return def
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		invalid(logger, key, v, "integer")
		return def
	}
	return i
}

// ParseBool reads a boolean in strconv.ParseBool syntax.
func ParseBool(key string, def bool) bool {
	logger := xglog.WithComponent("config")
	v, ok := lookup(logger, key)
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		invalid(logger, key, v, "boolean")
		return def
	}
	return b
}

// ParseFloat reads a float64.
func ParseFloat(key string, def float64) float64 {
	logger := xglog.WithComponent("config")
	v, ok := lookup(logger, key)
	if !ok {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		invalid(logger, key, v, "float")
		return def
	}
	return f
}

// ParseDuration reads a Go duration such as "5s".
func ParseDuration(key string, def time.Duration) time.Duration {
	logger := xglog.WithComponent("config")
	v, ok := lookup(logger, key)
	if !ok {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		invalid(logger, key, v, "duration")
		return def
	}
	return d
}

// ParseList reads a comma separated list, dropping empty items.
func ParseList(key string, def []string) []string {
	v, ok := lookup(xglog.WithComponent("config"), key)
	if !ok {
		return def
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
