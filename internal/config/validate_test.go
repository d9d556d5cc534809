// SPDX-License-Identifier: MIT

package config

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/tvgrid/internal/cache"
	"github.com/ManuGH/tvgrid/internal/playback/proxychain"
	"github.com/ManuGH/tvgrid/internal/store"
)

func TestValidateDefaults(t *testing.T) {
	require.NoError(t, Validate(Defaults()))
}

func TestValidateCollectsEveryField(t *testing.T) {
	cfg := Defaults()
	cfg.Server.Listen = ""
	cfg.Log.Level = "loud"
	cfg.Store = store.Config{Driver: store.DriverPostgres}
	cfg.Cache = cache.Config{Backend: cache.BackendRedis}
	cfg.Playback.AttachTimeout = 0
	cfg.Playback.Relays = []proxychain.Relay{{Template: "ftp://relay"}}
	cfg.Sweep.Workers = 0
	cfg.Telemetry.Enabled = true
	cfg.Telemetry.ExporterType = "zipkin"
	cfg.Telemetry.SamplingRate = 2

	err := Validate(cfg)
	require.Error(t, err)

	var fields []string
	for _, e := range err.(interface{ Unwrap() []error }).Unwrap() {
		var fe FieldError
		require.True(t, errors.As(e, &fe))
		fields = append(fields, fe.Field)
	}
	assert.Equal(t, []string{
		"server.listen",
		"log.level",
		"store.dsn",
		"cache.redis.addr",
		"playback.attach_timeout",
		"playback.relays",
		"sweep.workers",
		"telemetry.exporter",
		"telemetry.sampling_rate",
	}, fields)
}

func TestValidateOrigins(t *testing.T) {
	cfg := Defaults()
	cfg.Server.AllowedOrigins = []string{"*", "https://ok.example.com", "not an origin"}
	err := Validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `invalid origin "not an origin"`)
}
