// SPDX-License-Identifier: MIT

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	xglog "github.com/ManuGH/tvgrid/internal/log"
	"github.com/ManuGH/tvgrid/internal/persistence/sqlite"
	_ "github.com/lib/pq" // postgres driver
)

// Drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config selects and tunes the backend.
type Config struct {
	Driver string `yaml:"driver"`
	// Path is the SQLite database file.
	Path string `yaml:"path,omitempty"`
	// DSN is the PostgreSQL connection string.
	DSN          string        `yaml:"dsn,omitempty"`
	MaxOpenConns int           `yaml:"max_open_conns,omitempty"`
	BusyTimeout  time.Duration `yaml:"busy_timeout,omitempty"`
}

// Open connects to the configured backend and applies pending migrations.
func Open(ctx context.Context, cfg Config) (*SQLStore, error) {
	var (
		db  *sql.DB
		d   dialect
		err error
	)
	switch cfg.Driver {
	case DriverSQLite, "":
		if cfg.Path == "" {
			return nil, errors.New("store: sqlite path is required")
		}
		db, err = sqlite.Open(ctx, cfg.Path, sqlite.Config{BusyTimeout: cfg.BusyTimeout, MaxOpenConns: cfg.MaxOpenConns})
		d = sqliteDialect
	case DriverPostgres:
		db, err = openPostgres(ctx, cfg)
		d = postgresDialect
	default:
		return nil, fmt.Errorf("store: unknown driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}

	s := &SQLStore{db: db, d: d}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: migrate: %w", err)
	}

	logger := xglog.WithComponent("store")
	logger.Info().
		Str(xglog.FieldEvent, "store.opened").
		Str("driver", d.name).
		Msg("record store ready")
	return s, nil
}

func openPostgres(ctx context.Context, cfg Config) (*sql.DB, error) {
	if cfg.DSN == "" {
		return nil, errors.New("store: postgres dsn is required")
	}
	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}
	maxOpen := cfg.MaxOpenConns
	if maxOpen <= 0 {
		maxOpen = 10
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxOpen / 2)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	return db, nil
}

// dialect captures the differences between the backends.
type dialect struct {
	name string
	// numbered placeholders ($1, $2, ...) instead of ?.
	numbered bool
	// timestamp column type.
	timestamp string
	boolean   string
}

var (
	sqliteDialect   = dialect{name: DriverSQLite, timestamp: "DATETIME", boolean: "INTEGER"}
	postgresDialect = dialect{name: DriverPostgres, numbered: true, timestamp: "TIMESTAMPTZ", boolean: "BOOLEAN"}
)

// rebind rewrites ? placeholders for the dialect. Queries never contain a
// literal question mark.
func (d dialect) rebind(query string) string {
	if !d.numbered {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}
