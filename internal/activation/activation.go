// SPDX-License-Identifier: MIT

// Package activation issues and redeems one-time activation codes.
package activation

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	xglog "github.com/ManuGH/tvgrid/internal/log"
	"github.com/ManuGH/tvgrid/internal/metrics"
	"github.com/ManuGH/tvgrid/internal/store"
	"github.com/google/uuid"
)

const (
	// CodeLength is the number of characters in a code.
	CodeLength = 8
	// Validity is how long a generated code stays redeemable.
	Validity = 365 * 24 * time.Hour
	// MaxBatch caps a single Generate call.
	MaxBatch = 1000

	alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// User levels.
const (
	LevelGuest = 1
	LevelUser  = 2
	LevelAdmin = 3
)

var (
	ErrCodeNotFound = errors.New("activation code not found")
	ErrCodeUsed     = errors.New("activation code already used")
	ErrCodeExpired  = errors.New("activation code expired")
	ErrInvalidLevel = errors.New("only user and admin codes can be generated")
	ErrInvalidCount = errors.New("code count out of range")
)

// Store is the persistence activation needs.
type Store interface {
	CreateActivationCode(ctx context.Context, c store.ActivationCode) error
	ActivationCode(ctx context.Context, code string) (store.ActivationCode, error)
	MarkActivationCodeUsed(ctx context.Context, code, usedBy string, at time.Time) error
	CreateSession(ctx context.Context, s store.Session) error
}

// Service generates, validates and redeems codes.
type Service struct {
	store Store
	now   func() time.Time
}

// NewService returns an activation service.
func NewService(s Store) *Service {
	return &Service{store: s, now: time.Now}
}

// NewCode draws one random code from crypto/rand.
func NewCode() (string, error) {
	var b strings.Builder
	b.Grow(CodeLength)
	limit := big.NewInt(int64(len(alphabet)))
	for i := 0; i < CodeLength; i++ {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", fmt.Errorf("generate code: %w", err)
		}
		b.WriteByte(alphabet[n.Int64()])
	}
	return b.String(), nil
}

// Normalize uppercases and trims a code as typed by a viewer.
func Normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Generate stores count fresh codes for level.
func (s *Service) Generate(ctx context.Context, level, count int) ([]string, error) {
	if level != LevelUser && level != LevelAdmin {
		return nil, fmt.Errorf("%w: %d", ErrInvalidLevel, level)
	}
	if count < 1 || count > MaxBatch {
		return nil, fmt.Errorf("%w: %d", ErrInvalidCount, count)
	}

	now := s.now()
	codes := make([]string, 0, count)
	for len(codes) < count {
		code, err := NewCode()
		if err != nil {
			return codes, err
		}
		if err := s.store.CreateActivationCode(ctx, store.ActivationCode{
			Code:      code,
			UserLevel: level,
			ExpiresAt: now.Add(Validity),
			CreatedAt: now,
		}); err != nil {
			return codes, fmt.Errorf("store code: %w", err)
		}
		codes = append(codes, code)
	}

	logger := xglog.WithComponentFromContext(ctx, "activation")
	logger.Info().
		Str(xglog.FieldEvent, "activation.generated").
		Int("level", level).
		Int("count", count).
		Msg("activation codes generated")
	return codes, nil
}

// Validate checks a code and returns it when redeemable.
func (s *Service) Validate(ctx context.Context, code string) (store.ActivationCode, error) {
	code = Normalize(code)
	if len(code) != CodeLength {
		return store.ActivationCode{}, ErrCodeNotFound
	}
	c, err := s.store.ActivationCode(ctx, code)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return store.ActivationCode{}, ErrCodeNotFound
	case err != nil:
		return store.ActivationCode{}, fmt.Errorf("load code: %w", err)
	case c.Used():
		return store.ActivationCode{}, ErrCodeUsed
	case !c.ExpiresAt.After(s.now()):
		return store.ActivationCode{}, ErrCodeExpired
	}
	return c, nil
}

// Use redeems code for usedBy and opens a session that expires with the code.
func (s *Service) Use(ctx context.Context, code, usedBy string) (store.Session, error) {
	c, err := s.Validate(ctx, code)
	if err != nil {
		metrics.IncActivation(resultOf(err))
		return store.Session{}, err
	}
	if usedBy == "" {
		usedBy = uuid.NewString()
	}

	now := s.now()
	if err := s.store.MarkActivationCodeUsed(ctx, c.Code, usedBy, now); err != nil {
		if errors.Is(err, store.ErrConflict) {
			metrics.IncActivation("used")
			return store.Session{}, ErrCodeUsed
		}
		return store.Session{}, fmt.Errorf("redeem code: %w", err)
	}

	sess := store.Session{
		ID:             uuid.NewString(),
		ActivationCode: c.Code,
		UserLevel:      c.UserLevel,
		ExpiresAt:      c.ExpiresAt,
		CreatedAt:      now,
	}
	if err := s.store.CreateSession(ctx, sess); err != nil {
		return store.Session{}, fmt.Errorf("create session: %w", err)
	}

	metrics.IncActivation("ok")
	logger := xglog.WithComponentFromContext(ctx, "activation")
	logger.Info().
		Str(xglog.FieldEvent, "activation.redeemed").
		Str(xglog.FieldSessionID, sess.ID).
		Int("level", sess.UserLevel).
		Msg("activation code redeemed")
	return sess, nil
}

func resultOf(err error) string {
	switch {
	case errors.Is(err, ErrCodeNotFound):
		return "not_found"
	case errors.Is(err, ErrCodeUsed):
		return "used"
	case errors.Is(err, ErrCodeExpired):
		return "expired"
	default:
		return "error"
	}
}
