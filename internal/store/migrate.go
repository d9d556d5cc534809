// SPDX-License-Identifier: MIT

package store

import (
	"context"
	"fmt"
	"strings"
)

// migrations are applied in order; the index+1 is the schema version.
// {{ts}} and {{bool}} are replaced per dialect.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS channels (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		url TEXT NOT NULL,
		logo TEXT NOT NULL DEFAULT '',
		category TEXT NOT NULL DEFAULT '',
		rating INTEGER NOT NULL DEFAULT 50,
		created_at {{ts}} NOT NULL,
		updated_at {{ts}} NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_channels_rating ON channels(rating);

	CREATE TABLE IF NOT EXISTS user_ratings (
		channel_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		rating TEXT NOT NULL CHECK (rating IN ('like', 'dislike')),
		created_at {{ts}} NOT NULL,
		PRIMARY KEY (channel_id, user_id)
	);

	CREATE TABLE IF NOT EXISTS broadcast_messages (
		id TEXT PRIMARY KEY,
		content TEXT NOT NULL,
		target_level INTEGER NOT NULL CHECK (target_level BETWEEN 1 AND 3),
		message_type TEXT NOT NULL CHECK (message_type IN ('text', 'icon')),
		is_active {{bool}} NOT NULL,
		schedule_time {{ts}},
		interval_minutes INTEGER,
		expires_at {{ts}},
		created_at {{ts}} NOT NULL
	);

	CREATE TABLE IF NOT EXISTS activation_codes (
		code TEXT PRIMARY KEY,
		user_level INTEGER NOT NULL CHECK (user_level BETWEEN 1 AND 3),
		expires_at {{ts}} NOT NULL,
		used_by TEXT NOT NULL DEFAULT '',
		used_at {{ts}},
		created_at {{ts}} NOT NULL
	);

	CREATE TABLE IF NOT EXISTS user_sessions (
		id TEXT PRIMARY KEY,
		activation_code TEXT NOT NULL DEFAULT '',
		user_level INTEGER NOT NULL,
		expires_at {{ts}} NOT NULL,
		created_at {{ts}} NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_user_sessions_expires ON user_sessions(expires_at);`,
}

func (s *SQLStore) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)`); err != nil {
		return err
	}

	var current int
	if err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_version`).Scan(&current); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	for i := current; i < len(migrations); i++ {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		for _, stmt := range splitStatements(s.d.expand(migrations[i])) {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				_ = tx.Rollback()
				return fmt.Errorf("migration %d: %w", i+1, err)
			}
		}
		if _, err := tx.ExecContext(ctx, s.d.rebind(`INSERT INTO schema_version (version) VALUES (?)`), i+1); err != nil {
			_ = tx.Rollback()
			return err
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("migration %d: commit: %w", i+1, err)
		}
	}
	return nil
}

func (d dialect) expand(ddl string) string {
	return strings.NewReplacer("{{ts}}", d.timestamp, "{{bool}}", d.boolean).Replace(ddl)
}

func splitStatements(script string) []string {
	var out []string
	for _, stmt := range strings.Split(script, ";") {
		if stmt = strings.TrimSpace(stmt); stmt != "" {
			out = append(out, stmt)
		}
	}
	return out
}
