package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"mailtriage/internal/model"
)

// DBTX is the subset of pgxpool.Pool the repository needs.
type DBTX interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

const schema = `
CREATE TABLE IF NOT EXISTS users (
    email             TEXT PRIMARY KEY,
    telegram_id       TEXT NULL,
    forward_confirmed BOOLEAN NOT NULL DEFAULT FALSE,
    updated_at        TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

type UserRepository struct {
	db DBTX
}

func NewUserRepository(db DBTX) *UserRepository {
	return &UserRepository{db: db}
}

// EnsureSchema creates the users table when missing.
func (r *UserRepository) EnsureSchema(ctx context.Context) error {
	_, err := r.db.Exec(ctx, schema)
	return err
}

// Resolve returns the user for email, or (nil, nil) when unknown.
func (r *UserRepository) Resolve(ctx context.Context, email string) (*model.KnownUser, error) {
	query := `
        SELECT email, telegram_id, forward_confirmed
        FROM users
        WHERE email = $1
    `
	var (
		u          model.KnownUser
		telegramID *string
	)
	err := r.db.QueryRow(ctx, query, normalizeEmail(email)).Scan(&u.Email, &telegramID, &u.ForwardConfirmed)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: resolve %s: %v", model.ErrLookupUnavailable, email, err)
	}
	if telegramID != nil {
		u.MessagingID = *telegramID
	}
	return &u, nil
}

// Exists reports whether email belongs to a known user.
func (r *UserRepository) Exists(ctx context.Context, email string) (bool, error) {
	u, err := r.Resolve(ctx, email)
	return u != nil, err
}

// MarkForwardConfirmed sets forward_confirmed for email, creating the row
// if needed. Repeating it is harmless.
func (r *UserRepository) MarkForwardConfirmed(ctx context.Context, email string) error {
	query := `
        INSERT INTO users (email, forward_confirmed, updated_at)
        VALUES ($1, TRUE, NOW())
        ON CONFLICT (email)
        DO UPDATE SET forward_confirmed = TRUE, updated_at = NOW()
    `
	if _, err := r.db.Exec(ctx, query, normalizeEmail(email)); err != nil {
		return fmt.Errorf("%w: mark forward confirmed %s: %v", model.ErrLookupUnavailable, email, err)
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
