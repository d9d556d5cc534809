// SPDX-License-Identifier: MIT

package resilience

import (
	"errors"
	"sync"

	"github.com/ManuGH/tvgrid/internal/metrics"
)

// ErrCeilingReached is returned by Ceiling.Acquire once every retry is spent.
var ErrCeilingReached = errors.New("retry ceiling reached")

// Ceiling is a one-way breaker over caller-initiated retries: it stays closed
// for max acquisitions and then opens until Reset. Unlike CircuitBreaker it
// never half-opens on its own; only an explicit user action resets it.
//
// Many ceilings share one name, one per playback session, so a Ceiling only
// counts trips and never sets the per-component state gauge.
type Ceiling struct {
	mu    sync.Mutex
	name  string
	max   int
	used  int
	state State
}

// NewCeiling returns a closed ceiling allowing max retries.
func NewCeiling(name string, max int) *Ceiling {
	if max < 0 {
		max = 0
	}
	return &Ceiling{name: name, max: max, state: StateClosed}
}

// Acquire consumes one retry. When none remain the ceiling opens and
// ErrCeilingReached is returned without consuming anything.
func (c *Ceiling) Acquire() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.used >= c.max {
		if c.state != StateOpen {
			c.state = StateOpen
			metrics.RecordCircuitBreakerTrip(c.name, "retry_ceiling")
		}
		return ErrCeilingReached
	}
	c.used++
	return nil
}

// Reset closes the ceiling and restores every retry.
func (c *Ceiling) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.used = 0
	c.state = StateClosed
}

// Used returns how many retries have been consumed.
func (c *Ceiling) Used() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.used
}

// Remaining returns how many retries are left.
func (c *Ceiling) Remaining() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.max - c.used
}

// State returns StateOpen once an acquisition has been refused.
func (c *Ceiling) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}
