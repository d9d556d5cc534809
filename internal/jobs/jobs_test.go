// SPDX-License-Identifier: MIT

package jobs

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ManuGH/tvgrid/internal/playlist"
	"github.com/ManuGH/tvgrid/internal/store"
)

type mockStore struct{ mock.Mock }

func (m *mockStore) DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	args := m.Called(ctx, now)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockStore) Cleanup(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockStore) TopChannels(ctx context.Context, limit int) ([]store.Channel, error) {
	args := m.Called(ctx, limit)
	chs, _ := args.Get(0).([]store.Channel)
	return chs, args.Error(1)
}

func (m *mockStore) Import(ctx context.Context, req playlist.ImportRequest) (playlist.ImportResult, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(playlist.ImportResult), args.Error(1)
}

func TestMaintenance_RunOnce(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	st := &mockStore{}
	st.On("DeleteExpiredSessions", mock.Anything, now).Return(int64(3), nil).Once()
	st.On("Cleanup", mock.Anything).Return(int64(2), nil).Once()
	evicted := false

	m := &Maintenance{Sessions: st, Channels: st, Evict: func() { evicted = true }, Now: func() time.Time { return now }}
	status, err := m.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Status{LastRun: now, ExpiredSessions: 3, LowChannels: 2}, status)
	assert.True(t, evicted)
	assert.Equal(t, status, m.Last())
	st.AssertExpectations(t)
}

func TestMaintenance_RunOnceContinuesPastFailures(t *testing.T) {
	st := &mockStore{}
	dbDown := errors.New("db down")
	st.On("DeleteExpiredSessions", mock.Anything, mock.Anything).Return(int64(0), dbDown).Once()
	st.On("Cleanup", mock.Anything).Return(int64(1), nil).Once()

	m := &Maintenance{Sessions: st, Channels: st}
	status, err := m.RunOnce(context.Background())
	require.ErrorIs(t, err, dbDown)
	assert.Equal(t, int64(1), status.LowChannels)
	assert.Contains(t, status.Error, "expire sessions")
	st.AssertExpectations(t)
}

func TestMaintenance_RunStopsWithContext(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	var passes atomic.Int32
	m := &Maintenance{Evict: func() { passes.Add(1) }, Interval: 5 * time.Millisecond}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return passes.Load() >= 3 }, 2*time.Second, time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestExport_WritesAfterImport(t *testing.T) {
	path := filepath.Join(t.TempDir(), "export.m3u")
	st := &mockStore{}
	req := playlist.ImportRequest{Content: "#EXTM3U"}
	st.On("Import", mock.Anything, req).Return(playlist.ImportResult{Imported: 1}, nil).Once()
	st.On("TopChannels", mock.Anything, store.DefaultChannelLimit).
		Return([]store.Channel{{ID: "a", Name: "News", URL: "http://streams.test/news.m3u8"}}, nil).Once()

	e := &Export{Importer: st, Channels: st, Path: path}
	res, err := e.Import(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Imported)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(raw), "#EXTM3U\n"))
	assert.Contains(t, string(raw), "http://streams.test/news.m3u8")
	st.AssertExpectations(t)
}

func TestExport_ImportFailureSkipsExport(t *testing.T) {
	st := &mockStore{}
	st.On("Import", mock.Anything, mock.Anything).Return(playlist.ImportResult{}, playlist.ErrEmpty).Once()

	e := &Export{Importer: st, Channels: st, Path: filepath.Join(t.TempDir(), "x.m3u")}
	_, err := e.Import(context.Background(), playlist.ImportRequest{Content: "#EXTM3U"})
	require.ErrorIs(t, err, playlist.ErrEmpty)
	st.AssertNotCalled(t, "TopChannels", mock.Anything, mock.Anything)
}

func TestExport_ListFailureDoesNotFailImport(t *testing.T) {
	st := &mockStore{}
	st.On("Import", mock.Anything, mock.Anything).Return(playlist.ImportResult{Imported: 2}, nil).Once()
	st.On("TopChannels", mock.Anything, 10).Return(nil, errors.New("locked"))

	e := &Export{Importer: st, Channels: st, Path: filepath.Join(t.TempDir(), "x.m3u"), Limit: 10}
	res, err := e.Import(context.Background(), playlist.ImportRequest{Content: "#EXTM3U"})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Imported)

	_, err = e.Write(context.Background())
	require.Error(t, err)
}
