// SPDX-License-Identifier: MIT

package api

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/tvgrid/internal/activation"
	"github.com/ManuGH/tvgrid/internal/playlist"
	"github.com/ManuGH/tvgrid/internal/rating"
	"github.com/ManuGH/tvgrid/internal/store"
	"github.com/ManuGH/tvgrid/internal/sweep"
)

const samplePlaylist = `#EXTM3U
#EXTINF:-1 tvg-logo="http://logo.test/a.png" group-title="News",News One
http://streams.test/news/index.m3u8
#EXTINF:-1 group-title="Sports",Sports Two
http://streams.test/sports.flv
#EXTINF:-1,Broken
ftp://streams.test/nope
`

type mockSweeper struct{ mock.Mock }

func (m *mockSweeper) Run(ctx context.Context, channels []store.Channel) (sweep.Report, error) {
	args := m.Called(ctx, channels)
	return args.Get(0).(sweep.Report), args.Error(1)
}

func importSample(t *testing.T, f *fixture, admin string) playlist.ImportResult {
	t.Helper()
	res := f.do(t, http.MethodPost, Prefix+"/channels/import", map[string]string{"content": samplePlaylist}, admin)
	require.Equal(t, http.StatusOK, res.Status, string(res.Body))
	var out playlist.ImportResult
	res.decode(t, &out)
	return out
}

func TestImportListStatsExport(t *testing.T) {
	f := newFixture(t)
	admin := f.login(t, activation.LevelAdmin)

	res := f.do(t, http.MethodPost, Prefix+"/channels/import", map[string]string{"content": samplePlaylist}, "")
	require.Equal(t, http.StatusUnauthorized, res.Status)

	out := importSample(t, f, admin)
	assert.Equal(t, playlist.FormatM3U, out.Format)
	assert.Equal(t, 2, out.Imported)
	assert.Equal(t, 1, out.Dropped)

	var list struct {
		Channels []store.Channel `json:"channels"`
		Count    int             `json:"count"`
	}
	f.do(t, http.MethodGet, Prefix+"/channels?limit=10", nil, "").decode(t, &list)
	require.Equal(t, 2, list.Count)
	assert.Equal(t, playlist.DefaultRating, list.Channels[0].Rating)

	res = f.do(t, http.MethodGet, Prefix+"/channels?limit=0", nil, "")
	assert.Equal(t, http.StatusBadRequest, res.Status)

	var stats rating.Stats
	f.do(t, http.MethodGet, Prefix+"/channels/stats", nil, "").decode(t, &stats)
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 2, stats.Low)
	assert.InDelta(t, 50.0, stats.Average, 0.001)

	res = f.do(t, http.MethodGet, Prefix+"/channels/export.m3u", nil, "")
	require.Equal(t, http.StatusOK, res.Status)
	assert.Equal(t, "audio/x-mpegurl", res.Header.Get("Content-Type"))
	body := string(res.Body)
	assert.True(t, strings.HasPrefix(body, "#EXTM3U\n"))
	assert.Contains(t, body, `group-title="News"`)
	assert.Contains(t, body, "http://streams.test/sports.flv")
}

func TestImportErrors(t *testing.T) {
	f := newFixture(t)
	admin := f.login(t, activation.LevelAdmin)

	res := f.do(t, http.MethodPost, Prefix+"/channels/import", map[string]string{}, admin)
	assert.Equal(t, http.StatusBadRequest, res.Status)

	res = f.do(t, http.MethodPost, Prefix+"/channels/import", map[string]string{"url": "ftp://lists.test/x.m3u"}, admin)
	assert.Equal(t, http.StatusBadRequest, res.Status)

	res = f.do(t, http.MethodPost, Prefix+"/channels/import", map[string]string{"content": "#EXTM3U\n"}, admin)
	assert.Equal(t, http.StatusUnprocessableEntity, res.Status)
	assert.Equal(t, "empty_playlist", res.errorCode(t))
}

func TestRateChannel(t *testing.T) {
	f := newFixture(t)
	admin := f.login(t, activation.LevelAdmin)
	viewer := f.login(t, activation.LevelUser)
	id := importSample(t, f, admin).Channels[0].ID
	path := Prefix + "/channels/" + id + "/rate"

	res := f.do(t, http.MethodPost, path, map[string]string{"vote": "like"}, "")
	assert.Equal(t, http.StatusUnauthorized, res.Status)

	res = f.do(t, http.MethodPost, path, map[string]string{"vote": "like"}, viewer)
	require.Equal(t, http.StatusOK, res.Status, string(res.Body))
	var result rating.Result
	res.decode(t, &result)
	assert.Equal(t, 55, result.Rating)

	res = f.do(t, http.MethodPost, path, map[string]string{"vote": "like"}, viewer)
	assert.Equal(t, http.StatusConflict, res.Status)
	assert.Equal(t, "already_rated", res.errorCode(t))

	res = f.do(t, http.MethodPost, path, map[string]string{"vote": "meh"}, viewer)
	assert.Equal(t, http.StatusBadRequest, res.Status)

	res = f.do(t, http.MethodPost, Prefix+"/channels/missing/rate", map[string]string{"vote": "like"}, viewer)
	assert.Equal(t, http.StatusNotFound, res.Status)
}

func TestSweepEndpoint(t *testing.T) {
	sw := &mockSweeper{}
	f := newFixture(t, func(d *Deps) { d.Sweeper = sw })
	admin := f.login(t, activation.LevelAdmin)
	importSample(t, f, admin)

	sw.On("Run", mock.Anything, mock.MatchedBy(func(chs []store.Channel) bool { return len(chs) == 2 })).
		Return(sweep.Report{Reachable: 1, Unreachable: 1}, nil).Once()

	res := f.do(t, http.MethodPost, Prefix+"/channels/sweep", nil, admin)
	require.Equal(t, http.StatusOK, res.Status, string(res.Body))
	var report sweep.Report
	res.decode(t, &report)
	assert.Equal(t, 1, report.Reachable)
	assert.Equal(t, 1, report.Unreachable)
	sw.AssertExpectations(t)
}
