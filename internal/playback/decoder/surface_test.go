// SPDX-License-Identifier: MIT

package decoder

import (
	"testing"

	"github.com/ManuGH/tvgrid/internal/playback"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSurface_ExclusiveOwnership(t *testing.T) {
	s := NewSurface(SurfaceOptions{})

	require.NoError(t, s.Acquire("hls#1"))
	require.NoError(t, s.Acquire("hls#1"), "owner may re-acquire")
	assert.ErrorIs(t, s.Acquire("flv#2"), ErrSurfaceBusy)

	s.Release("flv#2")
	assert.Equal(t, "hls#1", s.Owner(), "release by non-owner is ignored")

	s.Release("hls#1")
	assert.Empty(t, s.Owner())
	require.NoError(t, s.Acquire("flv#2"))
}

func TestSurface_PrepareMutesForAutoplay(t *testing.T) {
	var events []playback.VolumeState
	s := NewSurface(SurfaceOptions{Autoplay: true, Volume: 0.5})
	s.OnVolumeChange(func(v playback.VolumeState) { events = append(events, v) })

	s.Prepare()
	assert.Equal(t, CrossOriginAnonymous, s.CrossOrigin())
	assert.True(t, s.Volume().Muted)
	require.Len(t, events, 1)

	s.Prepare()
	assert.Len(t, events, 1, "no event when already muted")
}

func TestSurface_PrepareWithoutAutoplayKeepsSound(t *testing.T) {
	s := NewSurface(SurfaceOptions{})
	s.Prepare()
	assert.False(t, s.Volume().Muted)
	assert.Equal(t, 1.0, s.Volume().Volume)
}

func TestSurface_VolumeChangesNotify(t *testing.T) {
	var events []playback.VolumeState
	s := NewSurface(SurfaceOptions{})
	s.OnVolumeChange(func(v playback.VolumeState) { events = append(events, v) })

	s.SetVolume(2)
	s.SetVolume(-1)
	s.SetVolume(0)
	s.SetMuted(true)
	s.SetMuted(true)

	assert.Equal(t, []playback.VolumeState{
		{Volume: 0, Muted: false},
		{Volume: 0, Muted: true},
	}, events)
}

func TestSurface_FanOutDropsForSlowSubscribers(t *testing.T) {
	s := NewSurface(SurfaceOptions{SubscriberBuffer: 1})
	fast, cancelFast := s.Subscribe()
	defer cancelFast()
	slow, cancelSlow := s.Subscribe()

	buf := []byte("a")
	_, err := s.Write(buf)
	require.NoError(t, err)
	buf[0] = 'z'
	assert.Equal(t, []byte("a"), <-fast, "chunks are copied")

	_, _ = s.Write([]byte("b"))
	_, _ = s.Write([]byte("c"))
	assert.Equal(t, []byte("b"), <-fast)
	assert.Equal(t, int64(3), s.BytesWritten())

	assert.Equal(t, []byte("a"), <-slow)
	cancelSlow()
	cancelSlow()
	_, open := <-slow
	assert.False(t, open)
}

func TestSurface_CloseEndsSubscriptions(t *testing.T) {
	s := NewSurface(SurfaceOptions{})
	ch, cancel := s.Subscribe()
	s.Close()
	_, open := <-ch
	assert.False(t, open)
	cancel()

	late, _ := s.Subscribe()
	_, open = <-late
	assert.False(t, open)
}
