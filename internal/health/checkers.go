// SPDX-License-Identifier: MIT

package health

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// Pinger is anything with a liveness round trip.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingChecker reports a Pinger. Optional components degrade instead of
// failing readiness.
type PingChecker struct {
	name     string
	target   Pinger
	optional bool
}

// NewStoreChecker checks the record store; its loss makes the daemon unready.
func NewStoreChecker(p Pinger) *PingChecker {
	return &PingChecker{name: "store", target: p}
}

// NewCacheChecker checks the broadcast cache. Without the cache reads go to
// the store, so failures only degrade.
func NewCacheChecker(c any) *PingChecker {
	p, _ := c.(Pinger)
	return &PingChecker{name: "cache", target: p, optional: true}
}

func (c *PingChecker) Name() string { return c.name }

func (c *PingChecker) Check(ctx context.Context) CheckResult {
	if c.target == nil {
		return CheckResult{Status: StatusHealthy, Message: "in-process"}
	}
	if err := c.target.Ping(ctx); err != nil {
		status := StatusUnhealthy
		if c.optional {
			status = StatusDegraded
		}
		return CheckResult{Status: status, Error: err.Error()}
	}
	return CheckResult{Status: StatusHealthy}
}

// DirChecker verifies a directory exists and is writable.
type DirChecker struct {
	name string
	path string
}

// NewDirChecker returns a checker for path.
func NewDirChecker(name, path string) *DirChecker {
	return &DirChecker{name: name, path: path}
}

func (c *DirChecker) Name() string { return c.name }

func (c *DirChecker) Check(context.Context) CheckResult {
	if c.path == "" {
		return CheckResult{Status: StatusHealthy, Message: "not configured (optional)"}
	}
	if err := writable(c.path); err != nil {
		return CheckResult{Status: StatusUnhealthy, Error: err.Error()}
	}
	return CheckResult{Status: StatusHealthy}
}

// EnsureDataDir creates path when missing and proves it is writable.
func EnsureDataDir(path string) error {
	if err := os.MkdirAll(path, 0o750); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}
	return writable(path)
}

func writable(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("path is not a directory: %s", path)
	}
	probe := filepath.Join(path, ".write_test")
	if err := os.WriteFile(probe, []byte("ok"), 0o600); err != nil {
		return fmt.Errorf("directory is not writable: %s: %w", path, err)
	}
	return os.Remove(probe)
}
