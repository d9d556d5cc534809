// SPDX-License-Identifier: MIT

// Package session keeps a viewer's activated session on local disk.
package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	xglog "github.com/ManuGH/tvgrid/internal/log"
	"github.com/ManuGH/tvgrid/internal/store"
	"github.com/google/renameio/v2"
)

// ErrNoSession is returned when no usable session is stored.
var ErrNoSession = errors.New("no stored session")

// FileStore persists one session as JSON.
type FileStore struct {
	path string
	now  func() time.Time
}

// NewFileStore stores the session at path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path, now: time.Now}
}

// DefaultPath is the per-user location used by tvctl.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "tvgrid", "session.json"), nil
}

// Path returns the backing file.
func (f *FileStore) Path() string { return f.path }

// Save atomically replaces the stored session.
func (f *FileStore) Save(s store.Session) error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	if err := renameio.WriteFile(f.path, append(data, '\n'), 0o600); err != nil {
		return fmt.Errorf("write session: %w", err)
	}
	return nil
}

// Load returns the stored session. Expired or unreadable sessions are
// removed and reported as ErrNoSession.
func (f *FileStore) Load() (store.Session, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return store.Session{}, ErrNoSession
	}
	if err != nil {
		return store.Session{}, fmt.Errorf("read session: %w", err)
	}

	var s store.Session
	if err := json.Unmarshal(data, &s); err != nil || s.ID == "" {
		f.discard("corrupt")
		return store.Session{}, ErrNoSession
	}
	if !s.ExpiresAt.IsZero() && !s.ExpiresAt.After(f.now()) {
		f.discard("expired")
		return store.Session{}, ErrNoSession
	}
	return s, nil
}

// Clear removes the stored session.
func (f *FileStore) Clear() error {
	if err := os.Remove(f.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func (f *FileStore) discard(reason string) {
	logger := xglog.WithComponent("session")
	if err := f.Clear(); err != nil {
		logger.Warn().Err(err).Str(xglog.FieldPath, f.path).Msg("could not remove stale session")
		return
	}
	logger.Info().
		Str(xglog.FieldEvent, "session.discarded").
		Str("reason", reason).
		Msg("stored session removed")
}
