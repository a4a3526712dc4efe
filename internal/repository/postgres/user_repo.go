package postgres

import (
	"context"
	"errors"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"

	"github.com/jtaw5649/barforge-registry/internal/errs"
	"github.com/jtaw5649/barforge-registry/internal/model"
)

// UserRepo implements UserRepository using PostgreSQL.
type UserRepo struct{ db *DB }

// NewUserRepo constructs a user repository.
func NewUserRepo(db *DB) *UserRepo { return &UserRepo{db: db} }

const userCols = `id, external_id, username, display_name, avatar_url, bio, website_url, role, verified, created_at`

func scanUser(row pgx.Row) (*model.User, error) {
	var (
		u    model.User
		role string
	)
	if err := row.Scan(&u.ID, &u.ExternalID, &u.Username, &u.DisplayName, &u.AvatarURL,
		&u.Bio, &u.WebsiteURL, &role, &u.Verified, &u.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	u.Role = model.Role(role)
	return &u, nil
}

// Create inserts a new user row.
func (r *UserRepo) Create(ctx context.Context, u *model.User) error {
	const q = `
INSERT INTO users (id, external_id, username, display_name, avatar_url, role, verified)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING created_at`
	err := r.db.Pool.QueryRow(ctx, q, u.ID, u.ExternalID, u.Username, u.DisplayName, u.AvatarURL,
		string(u.Role), u.Verified).Scan(&u.CreatedAt)
	if isUniqueViolation(err) {
		return errs.ErrConflict
	}
	return err
}

// GetByID selects a user by ID.
func (r *UserRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.User, error) {
	const q = `SELECT ` + userCols + ` FROM users WHERE id=$1`
	return scanUser(r.db.Pool.QueryRow(ctx, q, id))
}

// GetByExternalID selects a user by provider identity.
func (r *UserRepo) GetByExternalID(ctx context.Context, externalID string) (*model.User, error) {
	const q = `SELECT ` + userCols + ` FROM users WHERE external_id=$1`
	return scanUser(r.db.Pool.QueryRow(ctx, q, externalID))
}

// GetByUsername selects a user by handle.
func (r *UserRepo) GetByUsername(ctx context.Context, username string) (*model.User, error) {
	const q = `SELECT ` + userCols + ` FROM users WHERE username=$1`
	return scanUser(r.db.Pool.QueryRow(ctx, q, username))
}

// UpdateLoginProfile refreshes provider-asserted fields.
func (r *UserRepo) UpdateLoginProfile(ctx context.Context, id uuid.UUID, displayName, avatarURL string) error {
	const q = `UPDATE users SET display_name=$2, avatar_url=$3 WHERE id=$1`
	return r.execOne(ctx, q, id, displayName, avatarURL)
}

// UpdateProfile stores user-edited fields.
func (r *UserRepo) UpdateProfile(ctx context.Context, id uuid.UUID, p model.Profile) error {
	const q = `UPDATE users SET display_name=$2, bio=$3, website_url=$4 WHERE id=$1`
	return r.execOne(ctx, q, id, p.DisplayName, p.Bio, p.WebsiteURL)
}

// SetRole changes a user's role.
func (r *UserRepo) SetRole(ctx context.Context, id uuid.UUID, role model.Role) error {
	const q = `UPDATE users SET role=$2 WHERE id=$1`
	return r.execOne(ctx, q, id, string(role))
}

// SetVerified changes a user's verified flag.
func (r *UserRepo) SetVerified(ctx context.Context, id uuid.UUID, verified bool) error {
	const q = `UPDATE users SET verified=$2 WHERE id=$1`
	return r.execOne(ctx, q, id, verified)
}

// CountListedModules counts listed modules owned by the user.
func (r *UserRepo) CountListedModules(ctx context.Context, id uuid.UUID) (int64, error) {
	const q = `SELECT count(*) FROM modules WHERE owner_id=$1 AND listed`
	var n int64
	if err := r.db.Pool.QueryRow(ctx, q, id).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (r *UserRepo) execOne(ctx context.Context, q string, args ...any) error {
	tag, err := r.db.Pool.Exec(ctx, q, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}
