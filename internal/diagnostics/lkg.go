// SPDX-License-Identifier: MIT

package diagnostics

import (
	"sync"
	"time"
)

// LKGCache remembers the last time each subsystem was healthy, in memory only.
// Entries older than the TTL are treated as unknown.
type LKGCache struct {
	mu     sync.RWMutex
	ttl    time.Duration
	now    func() time.Time
	lastOK map[Subsystem]time.Time
	last   map[Subsystem]SubsystemHealth
}

// NewLKGCache returns a cache whose entries live for ttl.
func NewLKGCache(ttl time.Duration) *LKGCache {
	if ttl <= 0 {
		ttl = 6 * time.Hour
	}
	return &LKGCache{
		ttl:    ttl,
		now:    time.Now,
		lastOK: make(map[Subsystem]time.Time),
		last:   make(map[Subsystem]SubsystemHealth),
	}
}

// Observe records h and fills h.LastOK from the cache.
func (c *LKGCache) Observe(h SubsystemHealth) SubsystemHealth {
	c.mu.Lock()
	defer c.mu.Unlock()

	if h.Status == OK {
		c.lastOK[h.Subsystem] = h.MeasuredAt
	}
	if t, ok := c.lastOK[h.Subsystem]; ok && c.now().Sub(t) <= c.ttl {
		h.LastOK = &t
	}
	c.last[h.Subsystem] = h
	return h
}

// Last returns the most recent observation of sub, marked as cached.
func (c *LKGCache) Last(sub Subsystem) (SubsystemHealth, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	h, ok := c.last[sub]
	if !ok || c.now().Sub(h.MeasuredAt) > c.ttl {
		return SubsystemHealth{}, false
	}
	h.Source = SourceCache
	return h, true
}

// EvictExpired drops entries older than the TTL.
func (c *LKGCache) EvictExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for sub, t := range c.lastOK {
		if now.Sub(t) > c.ttl {
			delete(c.lastOK, sub)
		}
	}
	for sub, h := range c.last {
		if now.Sub(h.MeasuredAt) > c.ttl {
			delete(c.last, sub)
		}
	}
}
