// SPDX-License-Identifier: MIT

package resilience

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockClock struct {
	now time.Time
}

func (m *mockClock) Now() time.Time { return m.now }

var errBoom = errors.New("boom")

func TestCircuitBreaker_TripsAfterThreshold(t *testing.T) {
	clock := &mockClock{now: time.Now()}
	cb := NewCircuitBreaker("test", 2, 30*time.Second, WithClock(clock))

	assert.ErrorIs(t, cb.Execute(func() error { return errBoom }), errBoom)
	assert.Equal(t, StateClosed, cb.State())

	assert.ErrorIs(t, cb.Execute(func() error { return errBoom }), errBoom)
	assert.Equal(t, StateOpen, cb.State())

	called := false
	err := cb.Execute(func() error { called = true; return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called, "open breaker must not run fn")
}

func TestCircuitBreaker_HalfOpenRecovery(t *testing.T) {
	clock := &mockClock{now: time.Now()}
	cb := NewCircuitBreaker("test", 1, 10*time.Second, WithClock(clock))

	_ = cb.Execute(func() error { return errBoom })
	assert.Equal(t, StateOpen, cb.State())

	clock.now = clock.now.Add(11 * time.Second)
	assert.NoError(t, cb.Execute(func() error { return nil }))
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	clock := &mockClock{now: time.Now()}
	cb := NewCircuitBreaker("test", 1, 10*time.Second, WithClock(clock))

	_ = cb.Execute(func() error { return errBoom })
	clock.now = clock.now.Add(11 * time.Second)
	_ = cb.Execute(func() error { return errBoom })
	assert.Equal(t, StateOpen, cb.State())

	assert.ErrorIs(t, cb.Execute(func() error { return nil }), ErrCircuitOpen)
}

func TestCircuitBreaker_SuccessResetsFailures(t *testing.T) {
	cb := NewCircuitBreaker("test", 2, time.Minute)
	_ = cb.Execute(func() error { return errBoom })
	_ = cb.Execute(func() error { return nil })
	_ = cb.Execute(func() error { return errBoom })
	assert.Equal(t, StateClosed, cb.State())
}

func TestGroup_PerKeyIsolation(t *testing.T) {
	g := NewGroup("playlist", 1, time.Minute)
	_ = g.Get("a.example").Execute(func() error { return errBoom })

	assert.Equal(t, StateOpen, g.Get("a.example").State())
	assert.Equal(t, StateClosed, g.Get("b.example").State())
	assert.Same(t, g.Get("a.example"), g.Get("a.example"))
}

func TestCeiling(t *testing.T) {
	c := NewCeiling("retry", 3)
	for i := 0; i < 3; i++ {
		assert.NoError(t, c.Acquire(), "retry %d", i+1)
	}
	assert.Equal(t, 3, c.Used())
	assert.Zero(t, c.Remaining())
	assert.Equal(t, StateClosed, c.State())

	assert.ErrorIs(t, c.Acquire(), ErrCeilingReached)
	assert.ErrorIs(t, c.Acquire(), ErrCeilingReached)
	assert.Equal(t, 3, c.Used(), "refused acquisitions are not counted")
	assert.Equal(t, StateOpen, c.State())

	c.Reset()
	assert.Equal(t, StateClosed, c.State())
	assert.Equal(t, 3, c.Remaining())
	assert.NoError(t, c.Acquire())
}

// componentSeries sums the counter values and counts the series of the metric
// family name labelled with component.
func componentSeries(t *testing.T, name, component string) (float64, int) {
	t.Helper()
	families, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)

	var (
		sum float64
		n   int
	)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, l := range m.GetLabel() {
				if l.GetName() == "component" && l.GetValue() == component {
					sum += m.GetCounter().GetValue()
					n++
				}
			}
		}
	}
	return sum, n
}

func TestCeiling_SharedNameOnlyCountsTrips(t *testing.T) {
	name := "ceiling_" + strings.ToLower(t.Name())
	a, b := NewCeiling(name, 0), NewCeiling(name, 1)

	assert.ErrorIs(t, a.Acquire(), ErrCeilingReached)
	assert.ErrorIs(t, a.Acquire(), ErrCeilingReached)
	require.NoError(t, b.Acquire())
	assert.ErrorIs(t, b.Acquire(), ErrCeilingReached)
	b.Reset()
	_ = NewCeiling(name, 3)

	trips, _ := componentSeries(t, "tvgrid_circuit_breaker_trips_total", name)
	assert.Equal(t, 2.0, trips, "one trip per ceiling that opened")
	_, gauges := componentSeries(t, "tvgrid_circuit_breaker_state", name)
	assert.Zero(t, gauges, "sessions never write the shared state gauge")
}
