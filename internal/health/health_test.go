// SPDX-License-Identifier: MIT

package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockChecker struct {
	name   string
	status Status
}

func (m *mockChecker) Name() string { return m.name }

func (m *mockChecker) Check(context.Context) CheckResult { return CheckResult{Status: m.status} }

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

func TestHealthVerboseFoldsStatus(t *testing.T) {
	m := NewManager("v1.0.0")
	m.Register(&mockChecker{name: "a", status: StatusHealthy}, &mockChecker{name: "b", status: StatusDegraded})

	resp := m.Health(context.Background(), false)
	assert.Equal(t, StatusHealthy, resp.Status)
	assert.Nil(t, resp.Checks)

	resp = m.Health(context.Background(), true)
	assert.Equal(t, StatusDegraded, resp.Status)
	assert.True(t, resp.Ready)
	assert.Len(t, resp.Checks, 2)
}

func TestReadyUnhealthy(t *testing.T) {
	m := NewManager("v1.0.0")
	m.Register(NewStoreChecker(pinger{err: errors.New("database is locked")}))

	resp := m.Ready(context.Background())
	assert.False(t, resp.Ready)
	assert.Equal(t, StatusUnhealthy, resp.Status)
	assert.Equal(t, "database is locked", resp.Checks["store"].Error)
}

func TestCacheCheckerDegrades(t *testing.T) {
	assert.Equal(t, StatusDegraded, NewCacheChecker(pinger{err: errors.New("refused")}).Check(context.Background()).Status)
	assert.Equal(t, StatusHealthy, NewCacheChecker(struct{}{}).Check(context.Background()).Status)
}

func TestServeReadyStatusCodes(t *testing.T) {
	m := NewManager("v1.0.0")
	rec := httptest.NewRecorder()
	m.ServeReady(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	m.Register(NewStoreChecker(pinger{err: errors.New("down")}))
	rec = httptest.NewRecorder()
	m.ServeReady(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body Response
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.False(t, body.Ready)

	rec = httptest.NewRecorder()
	m.ServeHealth(rec, httptest.NewRequest(http.MethodGet, "/healthz?verbose=true", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestDirChecker(t *testing.T) {
	dir := t.TempDir()
	assert.Equal(t, StatusHealthy, NewDirChecker("data", dir).Check(context.Background()).Status)
	assert.Equal(t, StatusUnhealthy, NewDirChecker("data", filepath.Join(dir, "missing")).Check(context.Background()).Status)

	file := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(file, nil, 0o600))
	assert.Equal(t, StatusUnhealthy, NewDirChecker("data", file).Check(context.Background()).Status)
}

func TestEnsureDataDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "b")
	require.NoError(t, EnsureDataDir(dir))
	_, err := os.Stat(filepath.Join(dir, ".write_test"))
	assert.True(t, os.IsNotExist(err))
}
