// SPDX-License-Identifier: MIT

package playlist

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/tvgrid/internal/store"
	"github.com/ManuGH/tvgrid/internal/sweep"
)

type mockWriter struct{ mock.Mock }

func (m *mockWriter) UpsertChannels(ctx context.Context, channels []store.Channel) ([]store.Channel, error) {
	args := m.Called(ctx, channels)
	out, _ := args.Get(0).([]store.Channel)
	return out, args.Error(1)
}

type mockSweeper struct{ mock.Mock }

func (m *mockSweeper) Run(ctx context.Context, channels []store.Channel) (sweep.Report, error) {
	args := m.Called(ctx, channels)
	return args.Get(0).(sweep.Report), args.Error(1)
}

func TestImportContentAssignsStableIDs(t *testing.T) {
	w := &mockWriter{}
	var stored []store.Channel
	w.On("UpsertChannels", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { stored = args.Get(1).([]store.Channel) }).
		Return(nil, nil).Once()

	content := "http://a.test/x.m3u8\nhttp://a.test/x.m3u8\nhttp://b.test/y.m3u8\n"
	_, err := NewImporter(nil, w, nil).Import(context.Background(), ImportRequest{Content: content})
	require.NoError(t, err)

	require.Len(t, stored, 2)
	assert.Equal(t, StableID("http://a.test/x.m3u8"), stored[0].ID)
	// The later duplicate wins.
	assert.Equal(t, "Channel 2", stored[0].Name)
	w.AssertExpectations(t)
}

func TestImportURLWithSweep(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("#EXTM3U\n#EXTINF:-1,News\nhttp://a.test/news.m3u8\n"))
	}))
	defer srv.Close()

	chs := []store.Channel{{ID: StableID("http://a.test/news.m3u8"), Name: "News", URL: "http://a.test/news.m3u8", Rating: DefaultRating}}
	w := &mockWriter{}
	w.On("UpsertChannels", mock.Anything, chs).Return(chs, nil).Once()
	sw := &mockSweeper{}
	sw.On("Run", mock.Anything, chs).Return(sweep.Report{Reachable: 1}, nil).Once()

	im := NewImporter(NewFetcher(FetchConfig{Client: srv.Client()}), w, sw)
	res, err := im.Import(context.Background(), ImportRequest{URL: srv.URL, Sweep: true})
	require.NoError(t, err)

	assert.Equal(t, FormatM3U, res.Format)
	assert.Equal(t, 1, res.Imported)
	require.NotNil(t, res.Sweep)
	assert.Equal(t, 1, res.Sweep.Reachable)
	w.AssertExpectations(t)
	sw.AssertExpectations(t)
}

func TestImportErrors(t *testing.T) {
	im := NewImporter(nil, &mockWriter{}, nil)
	_, err := im.Import(context.Background(), ImportRequest{})
	require.ErrorIs(t, err, ErrNoSource)

	_, err = im.Import(context.Background(), ImportRequest{Content: "nothing here"})
	require.ErrorIs(t, err, ErrEmpty)

	w := &mockWriter{}
	w.On("UpsertChannels", mock.Anything, mock.Anything).Return(nil, errors.New("disk full"))
	_, err = NewImporter(nil, w, nil).Import(context.Background(), ImportRequest{Content: "http://a.test/x.m3u8"})
	require.ErrorContains(t, err, "disk full")
}
