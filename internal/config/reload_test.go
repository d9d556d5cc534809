// SPDX-License-Identifier: MIT

package config

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestHolderReload(t *testing.T) {
	path := writeConfig(t, "sweep:\n  workers: 2\n")
	l := NewLoader(path, "dev")
	initial, err := l.Load()
	require.NoError(t, err)

	h := NewHolder(initial, l)
	updates := make(chan AppConfig, 1)
	h.Subscribe(updates)

	require.NoError(t, os.WriteFile(path, []byte("sweep:\n  workers: 5\n"), 0o600))
	require.NoError(t, h.Reload(context.Background()))
	assert.Equal(t, 5, h.Get().Sweep.Workers)
	assert.Equal(t, 5, (<-updates).Sweep.Workers)

	// A broken file keeps the previous config.
	require.NoError(t, os.WriteFile(path, []byte("sweep:\n  workers: 0\n"), 0o600))
	require.Error(t, h.Reload(context.Background()))
	assert.Equal(t, 5, h.Get().Sweep.Workers)
}

func TestHolderWatch(t *testing.T) {
	defer goleak.VerifyNone(t)

	path := writeConfig(t, "sweep:\n  workers: 2\n")
	l := NewLoader(path, "dev")
	initial, err := l.Load()
	require.NoError(t, err)

	h := NewHolder(initial, l)
	h.Debounce = 20 * time.Millisecond
	updates := make(chan AppConfig, 4)
	h.Subscribe(updates)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, h.Watch(ctx))
	defer h.Stop()

	require.NoError(t, os.WriteFile(path, []byte("sweep:\n  workers: 7\n"), 0o600))

	select {
	case cfg := <-updates:
		assert.Equal(t, 7, cfg.Sweep.Workers)
	case <-time.After(5 * time.Second):
		t.Fatal("no reload after file change")
	}
	h.Stop()
}

func TestHolderWatchWithoutFile(t *testing.T) {
	h := NewHolder(Defaults(), NewLoader("", "dev"))
	require.NoError(t, h.Watch(context.Background()))
	h.Stop()
}
