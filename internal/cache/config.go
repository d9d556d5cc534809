// SPDX-License-Identifier: MIT

package cache

import (
	"context"
	"fmt"
	"time"
)

// Backends.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
	BackendNone   = "none"
)

// Config selects the cache backend.
type Config struct {
	Backend string      `yaml:"backend"`
	Redis   RedisConfig `yaml:"redis,omitempty"`
}

// New builds the configured cache.
func New(ctx context.Context, cfg Config) (Cache, error) {
	switch cfg.Backend {
	case BackendMemory, "":
		return NewMemoryCache(time.Minute), nil
	case BackendRedis:
		c, err := NewRedisCache(ctx, cfg.Redis)
		if err != nil {
			return nil, err
		}
		return c, nil
	case BackendNone:
		return NewNoopCache(), nil
	default:
		return nil, fmt.Errorf("cache: unknown backend %q", cfg.Backend)
	}
}
