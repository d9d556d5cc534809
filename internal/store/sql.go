// SPDX-License-Identifier: MIT

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrConflict is returned when a conditional update matched no eligible row.
var ErrConflict = errors.New("store: conflict")

// SQLStore implements Store on database/sql.
type SQLStore struct {
	db *sql.DB
	d  dialect
}

var _ Store = (*SQLStore)(nil)

// Driver returns the backend name.
func (s *SQLStore) Driver() string { return s.d.name }

// Ping checks connectivity.
func (s *SQLStore) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// Close closes the pool.
func (s *SQLStore) Close() error { return s.db.Close() }

func (s *SQLStore) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return s.db.ExecContext(ctx, s.d.rebind(query), args...)
}

func (s *SQLStore) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return s.db.QueryContext(ctx, s.d.rebind(query), args...)
}

func (s *SQLStore) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return s.db.QueryRowContext(ctx, s.d.rebind(query), args...)
}

func notFound(err error, what string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return err
}

func utc(t time.Time) time.Time { return t.UTC() }

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func timePtr(n sql.NullTime) *time.Time {
	if !n.Valid {
		return nil
	}
	t := n.Time.UTC()
	return &t
}

const channelColumns = `id, name, url, logo, category, rating, created_at, updated_at`

func scanChannel(sc interface{ Scan(...any) error }) (Channel, error) {
	var c Channel
	err := sc.Scan(&c.ID, &c.Name, &c.URL, &c.Logo, &c.Category, &c.Rating, &c.CreatedAt, &c.UpdatedAt)
	c.CreatedAt, c.UpdatedAt = utc(c.CreatedAt), utc(c.UpdatedAt)
	return c, err
}

// TopChannels returns channels ordered by rating, best first.
func (s *SQLStore) TopChannels(ctx context.Context, limit int) ([]Channel, error) {
	if limit <= 0 {
		limit = DefaultChannelLimit
	}
	rows, err := s.query(ctx, `SELECT `+channelColumns+` FROM channels ORDER BY rating DESC, name ASC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("top channels: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Channel
	for rows.Next() {
		c, err := scanChannel(rows)
		if err != nil {
			return nil, fmt.Errorf("scan channel: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Channel returns one channel.
func (s *SQLStore) Channel(ctx context.Context, id string) (Channel, error) {
	c, err := scanChannel(s.queryRow(ctx, `SELECT `+channelColumns+` FROM channels WHERE id = ?`, id))
	if err != nil {
		return Channel{}, notFound(err, "channel "+id)
	}
	return c, nil
}

// UpsertChannels inserts or updates channels by id in one transaction. Empty
// ids are assigned. The stored rows are returned.
func (s *SQLStore) UpsertChannels(ctx context.Context, channels []Channel) ([]Channel, error) {
	if len(channels) == 0 {
		return nil, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, s.d.rebind(`
		INSERT INTO channels (`+channelColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			url = excluded.url,
			logo = excluded.logo,
			category = excluded.category,
			rating = excluded.rating,
			updated_at = excluded.updated_at`))
	if err != nil {
		return nil, fmt.Errorf("prepare upsert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	now := time.Now().UTC()
	out := make([]Channel, 0, len(channels))
	for _, c := range channels {
		if c.ID == "" {
			c.ID = uuid.NewString()
		}
		if c.CreatedAt.IsZero() {
			c.CreatedAt = now
		}
		c.CreatedAt = utc(c.CreatedAt)
		c.UpdatedAt = now
		if _, err := stmt.ExecContext(ctx, c.ID, c.Name, c.URL, c.Logo, c.Category, c.Rating, c.CreatedAt, c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("upsert channel %q: %w", c.Name, err)
		}
		out = append(out, c)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit upsert: %w", err)
	}
	return out, nil
}

// UpdateRating sets a channel's rating.
func (s *SQLStore) UpdateRating(ctx context.Context, id string, rating int) error {
	res, err := s.exec(ctx, `UPDATE channels SET rating = ?, updated_at = ? WHERE id = ?`, rating, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("update rating: %w", err)
	}
	return requireRow(res, "channel "+id)
}

// DeleteChannel removes a channel and its votes.
func (s *SQLStore) DeleteChannel(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, s.d.rebind(`DELETE FROM user_ratings WHERE channel_id = ?`), id); err != nil {
		return fmt.Errorf("delete votes: %w", err)
	}
	res, err := tx.ExecContext(ctx, s.d.rebind(`DELETE FROM channels WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("delete channel: %w", err)
	}
	if err := requireRow(res, "channel "+id); err != nil {
		return err
	}
	return tx.Commit()
}

// DeleteChannelsBelow removes every channel rated under threshold.
func (s *SQLStore) DeleteChannelsBelow(ctx context.Context, threshold int) (int64, error) {
	res, err := s.exec(ctx, `DELETE FROM channels WHERE rating < ?`, threshold)
	if err != nil {
		return 0, fmt.Errorf("delete low-rated channels: %w", err)
	}
	return res.RowsAffected()
}

// UserRating returns a viewer's vote on a channel.
func (s *SQLStore) UserRating(ctx context.Context, channelID, userID string) (UserRating, error) {
	var r UserRating
	err := s.queryRow(ctx,
		`SELECT channel_id, user_id, rating, created_at FROM user_ratings WHERE channel_id = ? AND user_id = ?`,
		channelID, userID).Scan(&r.ChannelID, &r.UserID, &r.Rating, &r.CreatedAt)
	if err != nil {
		return UserRating{}, notFound(err, "rating")
	}
	r.CreatedAt = utc(r.CreatedAt)
	return r, nil
}

// UpsertUserRating records or replaces a vote.
func (s *SQLStore) UpsertUserRating(ctx context.Context, r UserRating) error {
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	_, err := s.exec(ctx, `
		INSERT INTO user_ratings (channel_id, user_id, rating, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (channel_id, user_id) DO UPDATE SET rating = excluded.rating, created_at = excluded.created_at`,
		r.ChannelID, r.UserID, string(r.Rating), r.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("upsert user rating: %w", err)
	}
	return nil
}

// ActiveBroadcasts returns the unexpired active messages visible at level.
func (s *SQLStore) ActiveBroadcasts(ctx context.Context, level int, now time.Time) ([]Broadcast, error) {
	rows, err := s.query(ctx, `
		SELECT id, content, target_level, message_type, is_active, schedule_time, interval_minutes, expires_at, created_at
		FROM broadcast_messages
		WHERE target_level <= ? AND is_active = ? AND (expires_at IS NULL OR expires_at > ?)
		ORDER BY created_at DESC`, level, true, now.UTC())
	if err != nil {
		return nil, fmt.Errorf("active broadcasts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Broadcast
	for rows.Next() {
		var (
			b                 Broadcast
			schedule, expires sql.NullTime
			interval          sql.NullInt64
		)
		if err := rows.Scan(&b.ID, &b.Content, &b.TargetLevel, &b.MessageType, &b.IsActive,
			&schedule, &interval, &expires, &b.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan broadcast: %w", err)
		}
		b.ScheduleTime, b.ExpiresAt = timePtr(schedule), timePtr(expires)
		b.CreatedAt = utc(b.CreatedAt)
		if interval.Valid {
			m := int(interval.Int64)
			b.IntervalMinutes = &m
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// CreateBroadcast stores a new message.
func (s *SQLStore) CreateBroadcast(ctx context.Context, b Broadcast) (Broadcast, error) {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	if b.MessageType == "" {
		b.MessageType = MessageText
	}
	b.CreatedAt = time.Now().UTC()

	var interval sql.NullInt64
	if b.IntervalMinutes != nil {
		interval = sql.NullInt64{Int64: int64(*b.IntervalMinutes), Valid: true}
	}
	_, err := s.exec(ctx, `
		INSERT INTO broadcast_messages (id, content, target_level, message_type, is_active, schedule_time, interval_minutes, expires_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.Content, b.TargetLevel, string(b.MessageType), b.IsActive,
		nullTime(b.ScheduleTime), interval, nullTime(b.ExpiresAt), b.CreatedAt)
	if err != nil {
		return Broadcast{}, fmt.Errorf("create broadcast: %w", err)
	}
	return b, nil
}

// CreateActivationCode stores an unused code.
func (s *SQLStore) CreateActivationCode(ctx context.Context, c ActivationCode) error {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	_, err := s.exec(ctx,
		`INSERT INTO activation_codes (code, user_level, expires_at, created_at) VALUES (?, ?, ?, ?)`,
		strings.ToUpper(c.Code), c.UserLevel, c.ExpiresAt.UTC(), c.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("create activation code: %w", err)
	}
	return nil
}

// ActivationCode looks a code up regardless of its state.
func (s *SQLStore) ActivationCode(ctx context.Context, code string) (ActivationCode, error) {
	var (
		c    ActivationCode
		used sql.NullTime
	)
	err := s.queryRow(ctx,
		`SELECT code, user_level, expires_at, used_by, used_at, created_at FROM activation_codes WHERE code = ?`,
		strings.ToUpper(code)).Scan(&c.Code, &c.UserLevel, &c.ExpiresAt, &c.UsedBy, &used, &c.CreatedAt)
	if err != nil {
		return ActivationCode{}, notFound(err, "activation code")
	}
	c.UsedAt = timePtr(used)
	c.ExpiresAt, c.CreatedAt = utc(c.ExpiresAt), utc(c.CreatedAt)
	return c, nil
}

// MarkActivationCodeUsed redeems a code. A code that is already used yields
// ErrConflict.
func (s *SQLStore) MarkActivationCodeUsed(ctx context.Context, code, usedBy string, at time.Time) error {
	res, err := s.exec(ctx,
		`UPDATE activation_codes SET used_by = ?, used_at = ? WHERE code = ? AND used_at IS NULL`,
		usedBy, at.UTC(), strings.ToUpper(code))
	if err != nil {
		return fmt.Errorf("mark code used: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("activation code already used: %w", ErrConflict)
	}
	return nil
}

// ActivationCodeStats counts codes by level and state.
func (s *SQLStore) ActivationCodeStats(ctx context.Context) (CodeStats, error) {
	rows, err := s.query(ctx, `SELECT user_level, used_at IS NOT NULL, COUNT(*) FROM activation_codes GROUP BY user_level, used_at IS NOT NULL`)
	if err != nil {
		return CodeStats{}, fmt.Errorf("code stats: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var st CodeStats
	for rows.Next() {
		var (
			level, n int
			used     bool
		)
		if err := rows.Scan(&level, &used, &n); err != nil {
			return CodeStats{}, err
		}
		st.Total += n
		switch {
		case used:
			st.Used += n
		case level == 3:
			st.Admin += n
		default:
			st.User += n
		}
	}
	return st, rows.Err()
}

// CreateSession stores a viewer session.
func (s *SQLStore) CreateSession(ctx context.Context, sess Session) error {
	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = time.Now()
	}
	_, err := s.exec(ctx,
		`INSERT INTO user_sessions (id, activation_code, user_level, expires_at, created_at) VALUES (?, ?, ?, ?, ?)`,
		sess.ID, sess.ActivationCode, sess.UserLevel, sess.ExpiresAt.UTC(), sess.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

// Session returns a viewer session, expired or not.
func (s *SQLStore) Session(ctx context.Context, id string) (Session, error) {
	var sess Session
	err := s.queryRow(ctx,
		`SELECT id, activation_code, user_level, expires_at, created_at FROM user_sessions WHERE id = ?`,
		id).Scan(&sess.ID, &sess.ActivationCode, &sess.UserLevel, &sess.ExpiresAt, &sess.CreatedAt)
	if err != nil {
		return Session{}, notFound(err, "session")
	}
	sess.ExpiresAt, sess.CreatedAt = utc(sess.ExpiresAt), utc(sess.CreatedAt)
	return sess, nil
}

// DeleteExpiredSessions removes sessions that expired before now.
func (s *SQLStore) DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.exec(ctx, `DELETE FROM user_sessions WHERE expires_at <= ?`, now.UTC())
	if err != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", err)
	}
	return res.RowsAffected()
}

func requireRow(res sql.Result, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return nil
}
