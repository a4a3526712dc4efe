package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/jtaw5649/barforge-registry/internal/errs"
	"github.com/jtaw5649/barforge-registry/internal/model"
)

// SessionRepo implements SessionRepository using PostgreSQL.
type SessionRepo struct{ db *DB }

// NewSessionRepo constructs a session repository.
func NewSessionRepo(db *DB) *SessionRepo { return &SessionRepo{db: db} }

// Create inserts a session row.
func (r *SessionRepo) Create(ctx context.Context, s *model.Session) error {
	const q = `
INSERT INTO sessions (token_hash, user_id, expires_at)
VALUES ($1, $2, $3)
RETURNING created_at`
	err := r.db.Pool.QueryRow(ctx, q, s.TokenHash, s.UserID, s.ExpiresAt).Scan(&s.CreatedAt)
	if isUniqueViolation(err) {
		return errs.ErrConflict
	}
	return err
}

// GetByHash selects a session by token hash.
func (r *SessionRepo) GetByHash(ctx context.Context, hash []byte) (*model.Session, error) {
	const q = `SELECT token_hash, user_id, expires_at, created_at FROM sessions WHERE token_hash=$1`
	var s model.Session
	err := r.db.Pool.QueryRow(ctx, q, hash).Scan(&s.TokenHash, &s.UserID, &s.ExpiresAt, &s.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	return &s, nil
}

// Delete removes a session by token hash.
func (r *SessionRepo) Delete(ctx context.Context, hash []byte) error {
	const q = `DELETE FROM sessions WHERE token_hash=$1`
	_, err := r.db.Pool.Exec(ctx, q, hash)
	return err
}

// DeleteExpired removes sessions that expired at or before now.
func (r *SessionRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	const q = `DELETE FROM sessions WHERE expires_at <= $1`
	tag, err := r.db.Pool.Exec(ctx, q, now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
