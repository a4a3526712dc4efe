// Package repository defines storage interfaces implemented by concrete backends.
package repository

import (
	"context"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/jtaw5649/barforge-registry/internal/model"
)

// UserRepository provides access to accounts.
type UserRepository interface {
	// Create inserts a new user. Duplicate external id or username yields errs.ErrConflict.
	Create(ctx context.Context, u *model.User) error
	// GetByID loads a user by ID.
	GetByID(ctx context.Context, id uuid.UUID) (*model.User, error)
	// GetByExternalID loads a user by "provider:subject".
	GetByExternalID(ctx context.Context, externalID string) (*model.User, error)
	// GetByUsername loads a user by handle.
	GetByUsername(ctx context.Context, username string) (*model.User, error)
	// UpdateLoginProfile refreshes fields asserted by the identity provider.
	UpdateLoginProfile(ctx context.Context, id uuid.UUID, displayName, avatarURL string) error
	// UpdateProfile stores user-edited fields.
	UpdateProfile(ctx context.Context, id uuid.UUID, p model.Profile) error
	// SetRole changes a user's role.
	SetRole(ctx context.Context, id uuid.UUID, role model.Role) error
	// SetVerified changes a user's verified flag.
	SetVerified(ctx context.Context, id uuid.UUID, verified bool) error
	// CountListedModules returns how many listed modules the user owns.
	CountListedModules(ctx context.Context, id uuid.UUID) (int64, error)
}

// SessionRepository stores token hashes.
type SessionRepository interface {
	// Create inserts a session.
	Create(ctx context.Context, s *model.Session) error
	// GetByHash loads a session by token hash, expired or not.
	GetByHash(ctx context.Context, hash []byte) (*model.Session, error)
	// Delete removes a session; missing rows are not an error.
	Delete(ctx context.Context, hash []byte) error
	// DeleteExpired removes sessions expiring at or before now.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
