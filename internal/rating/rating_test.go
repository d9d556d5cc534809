// SPDX-License-Identifier: MIT

package rating

import (
	"context"
	"errors"
	"testing"

	"github.com/ManuGH/tvgrid/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockStore struct {
	mock.Mock
}

func (m *mockStore) Channel(ctx context.Context, id string) (store.Channel, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(store.Channel), args.Error(1)
}

func (m *mockStore) UserRating(ctx context.Context, channelID, userID string) (store.UserRating, error) {
	args := m.Called(ctx, channelID, userID)
	return args.Get(0).(store.UserRating), args.Error(1)
}

func (m *mockStore) UpsertUserRating(ctx context.Context, r store.UserRating) error {
	return m.Called(ctx, r).Error(0)
}

func (m *mockStore) UpdateRating(ctx context.Context, id string, rating int) error {
	return m.Called(ctx, id, rating).Error(0)
}

func (m *mockStore) DeleteChannel(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *mockStore) DeleteChannelsBelow(ctx context.Context, threshold int) (int64, error) {
	args := m.Called(ctx, threshold)
	return args.Get(0).(int64), args.Error(1)
}

func TestApply(t *testing.T) {
	tests := []struct {
		name    string
		current int
		vote    store.Vote
		want    int
		remove  bool
	}{
		{"like", Initial, store.VoteLike, 55, false},
		{"dislike", Initial, store.VoteDislike, 31, false},
		{"dislike below threshold", 28, store.VoteDislike, 9, true},
		{"clamped at zero", 5, store.VoteDislike, 0, true},
		{"clamped at max", Max - 1, store.VoteLike, Max, false},
		{"exactly threshold stays", 29, store.VoteDislike, 10, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, remove := Apply(tt.current, tt.vote)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.remove, remove)
		})
	}
}

func TestSwitch_RevertsPreviousVote(t *testing.T) {
	got, _ := Switch(55, store.VoteLike, store.VoteDislike)
	assert.Equal(t, 31, got)

	got, _ = Switch(31, store.VoteDislike, store.VoteLike)
	assert.Equal(t, 55, got)

	got, _ = Switch(50, "", store.VoteLike)
	assert.Equal(t, 55, got)
}

func TestRate_FirstVote(t *testing.T) {
	ctx := context.Background()
	m := &mockStore{}
	m.On("UserRating", ctx, "ch", "u").Return(store.UserRating{}, store.ErrNotFound)
	m.On("Channel", ctx, "ch").Return(store.Channel{ID: "ch", Name: "News", Rating: 50}, nil)
	m.On("UpsertUserRating", ctx, store.UserRating{ChannelID: "ch", UserID: "u", Rating: store.VoteLike}).Return(nil)
	m.On("UpdateRating", ctx, "ch", 55).Return(nil)

	res, err := NewService(m).Rate(ctx, "ch", "u", store.VoteLike)
	require.NoError(t, err)
	assert.Equal(t, Result{Rating: 55}, res)
	m.AssertExpectations(t)
	m.AssertNotCalled(t, "DeleteChannel", mock.Anything, mock.Anything)
}

func TestRate_RepeatedVoteIsRejected(t *testing.T) {
	ctx := context.Background()
	m := &mockStore{}
	m.On("UserRating", ctx, "ch", "u").Return(store.UserRating{Rating: store.VoteLike}, nil)

	_, err := NewService(m).Rate(ctx, "ch", "u", store.VoteLike)
	assert.ErrorIs(t, err, ErrAlreadyRated)
	m.AssertNotCalled(t, "UpdateRating", mock.Anything, mock.Anything, mock.Anything)
}

func TestRate_ChangedVoteDeletesLowChannel(t *testing.T) {
	ctx := context.Background()
	m := &mockStore{}
	m.On("UserRating", ctx, "ch", "u").Return(store.UserRating{Rating: store.VoteLike}, nil)
	m.On("Channel", ctx, "ch").Return(store.Channel{ID: "ch", Rating: 30}, nil)
	m.On("UpsertUserRating", ctx, mock.MatchedBy(func(r store.UserRating) bool { return r.Rating == store.VoteDislike })).Return(nil)
	m.On("UpdateRating", ctx, "ch", 6).Return(nil)
	m.On("DeleteChannel", ctx, "ch").Return(nil)

	res, err := NewService(m).Rate(ctx, "ch", "u", store.VoteDislike)
	require.NoError(t, err)
	assert.Equal(t, Result{Rating: 0, Deleted: true}, res)
	m.AssertExpectations(t)
}

func TestRate_Errors(t *testing.T) {
	ctx := context.Background()

	_, err := NewService(&mockStore{}).Rate(ctx, "ch", "u", "meh")
	assert.ErrorIs(t, err, ErrInvalidVote)

	m := &mockStore{}
	m.On("UserRating", ctx, "ch", "u").Return(store.UserRating{}, store.ErrNotFound)
	m.On("Channel", ctx, "ch").Return(store.Channel{}, store.ErrNotFound)
	_, err = NewService(m).Rate(ctx, "ch", "u", store.VoteLike)
	assert.ErrorIs(t, err, store.ErrNotFound)

	m = &mockStore{}
	m.On("UserRating", ctx, "ch", "u").Return(store.UserRating{}, errors.New("db down"))
	_, err = NewService(m).Rate(ctx, "ch", "u", store.VoteLike)
	assert.ErrorContains(t, err, "db down")
}

func TestCleanup(t *testing.T) {
	ctx := context.Background()
	m := &mockStore{}
	m.On("DeleteChannelsBelow", ctx, LowThreshold).Return(int64(4), nil)

	n, err := NewService(m).Cleanup(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 4, n)
}

func TestSummarizeAndRecommended(t *testing.T) {
	chs := []store.Channel{
		{Name: "a", Rating: 90},
		{Name: "b", Rating: 75},
		{Name: "c", Rating: 50},
		{Name: "d", Rating: 20},
		{Name: "e", Rating: 71},
	}
	st := Summarize(chs)
	assert.Equal(t, Stats{Total: 5, High: 1, Recommended: 3, Low: 2, Average: 61.2}, st)
	assert.Equal(t, Stats{}, Summarize(nil))

	rec := Recommended(chs, 2)
	require.Len(t, rec, 2)
	assert.Equal(t, "a", rec[0].Name)
	assert.Equal(t, "b", rec[1].Name)
}
