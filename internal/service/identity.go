// Package service contains the registry's application services.
package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/jtaw5649/barforge-registry/internal/auth"
	"github.com/jtaw5649/barforge-registry/internal/authz"
	pkgcrypto "github.com/jtaw5649/barforge-registry/internal/crypto"
	"github.com/jtaw5649/barforge-registry/internal/errs"
	"github.com/jtaw5649/barforge-registry/internal/model"
	"github.com/jtaw5649/barforge-registry/internal/repository"
)

// IdentityService owns accounts and sessions.
type IdentityService interface {
	// UpsertFromExternalLogin returns the user for id, creating it on first sight.
	UpsertFromExternalLogin(ctx context.Context, id auth.Identity) (*model.User, error)
	// CreateSession issues a raw session token. Only its hash is stored.
	CreateSession(ctx context.Context, u *model.User) (token string, expiresAt time.Time, err error)
	// ValidateSession resolves a token to its user. Any failure yields ok=false.
	ValidateSession(ctx context.Context, token string) (u *model.User, ok bool)
	// Revoke deletes the session for token; unknown tokens are ignored.
	// It fails when the session cache cannot drop the token.
	Revoke(ctx context.Context, token string) error
	// SetRole changes target's role. Admin only.
	SetRole(ctx context.Context, actor *model.User, target uuid.UUID, role model.Role) error
	// SetVerified changes target's verified flag. Admin only.
	SetVerified(ctx context.Context, actor *model.User, target uuid.UUID, verified bool) error
	// UpdateProfile edits the caller's own profile.
	UpdateProfile(ctx context.Context, u *model.User, p model.Profile) (*model.User, error)
	// GetByUsername returns a public author profile.
	GetByUsername(ctx context.Context, username string) (*model.Author, error)
	// PurgeExpiredSessions deletes every expired session row.
	PurgeExpiredSessions(ctx context.Context) (int64, error)
}

// SessionCache is an optional lookaside cache for session validation.
// Get returns errs.ErrNotFound on a miss.
type SessionCache interface {
	Get(ctx context.Context, hash []byte) (userID uuid.UUID, expiresAt time.Time, err error)
	Set(ctx context.Context, hash []byte, userID uuid.UUID, expiresAt time.Time) error
	Delete(ctx context.Context, hash []byte) error
}

const (
	maxUsernameLen      = 39
	maxUsernameAttempts = 20
	maxDisplayNameLen   = 64
	maxBioLen           = 500
)

type IdentityServiceImpl struct {
	users    repository.UserRepository
	sessions repository.SessionRepository
	hasher   *pkgcrypto.Hasher
	ttl      time.Duration
	cache    SessionCache
	log      *zap.Logger
	now      func() time.Time
}

// NewIdentityService constructs IdentityService. cache may be nil.
func NewIdentityService(users repository.UserRepository, sessions repository.SessionRepository,
	hasher *pkgcrypto.Hasher, ttl time.Duration, cache SessionCache, log *zap.Logger) *IdentityServiceImpl {
	if log == nil {
		log = zap.NewNop()
	}
	return &IdentityServiceImpl{
		users: users, sessions: sessions, hasher: hasher, ttl: ttl, cache: cache, log: log, now: time.Now,
	}
}

// UpsertFromExternalLogin finds the user by external id or creates one with a
// unique username derived from the provider login.
func (s *IdentityServiceImpl) UpsertFromExternalLogin(ctx context.Context, id auth.Identity) (*model.User, error) {
	if id.Provider == "" || id.Subject == "" {
		return nil, fmt.Errorf("%w: identity provider and subject required", errs.ErrInvalidInput)
	}
	extID := id.ExternalID()

	u, err := s.users.GetByExternalID(ctx, extID)
	if err == nil {
		return s.refreshLoginProfile(ctx, u, id)
	}
	if !errors.Is(err, errs.ErrNotFound) {
		return nil, err
	}

	base := usernameFrom(id.Login)
	for attempt := 1; attempt <= maxUsernameAttempts; attempt++ {
		uid, err := uuid.NewV4()
		if err != nil {
			return nil, err
		}
		nu := &model.User{
			ID:          uid,
			ExternalID:  extID,
			Username:    withSuffix(base, attempt),
			DisplayName: id.DisplayName,
			AvatarURL:   id.AvatarURL,
			Role:        model.RoleUser,
		}
		err = s.users.Create(ctx, nu)
		if err == nil {
			s.log.Info("user created", zap.String("user_id", uid.String()), zap.String("username", nu.Username),
				zap.String("provider", id.Provider))
			return nu, nil
		}
		if !errors.Is(err, errs.ErrConflict) {
			return nil, err
		}
		// A concurrent first login for the same identity may have won.
		if existing, gerr := s.users.GetByExternalID(ctx, extID); gerr == nil {
			return existing, nil
		}
	}
	return nil, fmt.Errorf("%w: no free username for %q", errs.ErrConflict, base)
}

func (s *IdentityServiceImpl) refreshLoginProfile(ctx context.Context, u *model.User, id auth.Identity) (*model.User, error) {
	if u.DisplayName == id.DisplayName && u.AvatarURL == id.AvatarURL {
		return u, nil
	}
	if err := s.users.UpdateLoginProfile(ctx, u.ID, id.DisplayName, id.AvatarURL); err != nil {
		return nil, err
	}
	u.DisplayName, u.AvatarURL = id.DisplayName, id.AvatarURL
	return u, nil
}

// usernameFrom lowercases login and keeps [a-z0-9_-].
func usernameFrom(login string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(login) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' || r == '_' {
			b.WriteRune(r)
		}
	}
	name := strings.Trim(b.String(), "-_")
	if name == "" {
		return "user"
	}
	if len(name) > maxUsernameLen {
		name = name[:maxUsernameLen]
	}
	return name
}

func withSuffix(base string, attempt int) string {
	if attempt == 1 {
		return base
	}
	suffix := "-" + strconv.Itoa(attempt)
	if len(base)+len(suffix) > maxUsernameLen {
		base = base[:maxUsernameLen-len(suffix)]
	}
	return base + suffix
}

// CreateSession issues a fresh token for u.
func (s *IdentityServiceImpl) CreateSession(ctx context.Context, u *model.User) (string, time.Time, error) {
	if u == nil {
		return "", time.Time{}, errs.ErrUnauthenticated
	}
	token, err := pkgcrypto.NewToken()
	if err != nil {
		return "", time.Time{}, err
	}
	sess := &model.Session{
		TokenHash: s.hasher.Hash(token),
		UserID:    u.ID,
		ExpiresAt: s.now().Add(s.ttl).UTC(),
	}
	if err := s.sessions.Create(ctx, sess); err != nil {
		return "", time.Time{}, err
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, sess.TokenHash, u.ID, sess.ExpiresAt); err != nil {
			s.log.Warn("session cache set failed", zap.Error(err))
		}
	}
	return token, sess.ExpiresAt, nil
}

// ValidateSession fails closed: unknown, expired or unreadable sessions are absent.
func (s *IdentityServiceImpl) ValidateSession(ctx context.Context, token string) (*model.User, bool) {
	if token == "" {
		return nil, false
	}
	hash := s.hasher.Hash(token)
	now := s.now()

	if s.cache != nil {
		uid, exp, err := s.cache.Get(ctx, hash)
		switch {
		case err == nil && now.Before(exp):
			if u, err := s.users.GetByID(ctx, uid); err == nil {
				return u, true
			}
		case err != nil && !errors.Is(err, errs.ErrNotFound):
			s.log.Warn("session cache get failed", zap.Error(err))
		}
	}

	sess, err := s.sessions.GetByHash(ctx, hash)
	if err != nil {
		if !errors.Is(err, errs.ErrNotFound) {
			s.log.Error("session lookup failed", zap.Error(err))
		}
		return nil, false
	}
	if sess.Expired(now) {
		if err := s.sessions.Delete(ctx, hash); err != nil {
			s.log.Warn("expired session delete failed", zap.Error(err))
		}
		s.dropCached(ctx, hash)
		return nil, false
	}
	u, err := s.users.GetByID(ctx, sess.UserID)
	if err != nil {
		s.log.Error("session user lookup failed", zap.String("user_id", sess.UserID.String()), zap.Error(err))
		return nil, false
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, hash, sess.UserID, sess.ExpiresAt); err != nil {
			s.log.Warn("session cache set failed", zap.Error(err))
		}
	}
	return u, true
}

// Revoke deletes the token's session from the cache and storage. A cache
// failure aborts before storage is touched: a cached entry outliving its row
// would keep validating until its TTL.
func (s *IdentityServiceImpl) Revoke(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	hash := s.hasher.Hash(token)
	if s.cache != nil {
		if err := s.cache.Delete(ctx, hash); err != nil {
			return fmt.Errorf("revoke: session cache delete: %w", err)
		}
	}
	return s.sessions.Delete(ctx, hash)
}

func (s *IdentityServiceImpl) dropCached(ctx context.Context, hash []byte) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, hash); err != nil {
		s.log.Warn("session cache delete failed", zap.Error(err))
	}
}

// SetRole grants role to target.
func (s *IdentityServiceImpl) SetRole(ctx context.Context, actor *model.User, target uuid.UUID, role model.Role) error {
	if err := authz.Check(actor, authz.ActSetRole); err != nil {
		return err
	}
	if !role.Valid() {
		return fmt.Errorf("%w: unknown role %q", errs.ErrInvalidInput, role)
	}
	if err := s.users.SetRole(ctx, target, role); err != nil {
		return err
	}
	s.log.Info("role granted", zap.String("actor", actor.ID.String()), zap.String("target", target.String()),
		zap.String("role", string(role)))
	return nil
}

// SetVerified marks target as a verified author or clears the mark.
func (s *IdentityServiceImpl) SetVerified(ctx context.Context, actor *model.User, target uuid.UUID, verified bool) error {
	if err := authz.Check(actor, authz.ActVerifyUser); err != nil {
		return err
	}
	if err := s.users.SetVerified(ctx, target, verified); err != nil {
		return err
	}
	s.log.Info("verification changed", zap.String("actor", actor.ID.String()), zap.String("target", target.String()),
		zap.Bool("verified", verified))
	return nil
}

// UpdateProfile validates and stores the caller's editable fields.
func (s *IdentityServiceImpl) UpdateProfile(ctx context.Context, u *model.User, p model.Profile) (*model.User, error) {
	if err := authz.Check(u, authz.ActEditProfile); err != nil {
		return nil, err
	}
	p.DisplayName = strings.TrimSpace(p.DisplayName)
	p.Bio = strings.TrimSpace(p.Bio)
	p.WebsiteURL = strings.TrimSpace(p.WebsiteURL)
	switch {
	case tooLong(p.DisplayName, maxDisplayNameLen):
		return nil, fmt.Errorf("%w: display name too long", errs.ErrInvalidInput)
	case tooLong(p.Bio, maxBioLen):
		return nil, fmt.Errorf("%w: bio too long", errs.ErrInvalidInput)
	case p.WebsiteURL != "" && !validHTTPURL(p.WebsiteURL):
		return nil, fmt.Errorf("%w: website must be an http(s) URL", errs.ErrInvalidInput)
	}
	if err := s.users.UpdateProfile(ctx, u.ID, p); err != nil {
		return nil, err
	}
	return s.users.GetByID(ctx, u.ID)
}

// GetByUsername returns the public author view.
func (s *IdentityServiceImpl) GetByUsername(ctx context.Context, username string) (*model.Author, error) {
	u, err := s.users.GetByUsername(ctx, strings.ToLower(strings.TrimSpace(username)))
	if err != nil {
		return nil, err
	}
	n, err := s.users.CountListedModules(ctx, u.ID)
	if err != nil {
		return nil, err
	}
	return &model.Author{User: *u, ModuleCount: n}, nil
}

// PurgeExpiredSessions removes expired sessions.
func (s *IdentityServiceImpl) PurgeExpiredSessions(ctx context.Context) (int64, error) {
	n, err := s.sessions.DeleteExpired(ctx, s.now())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.log.Info("expired sessions purged", zap.Int64("count", n))
	}
	return n, nil
}
