package memory

import (
	"context"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/jtaw5649/barforge-registry/internal/errs"
	"github.com/jtaw5649/barforge-registry/internal/model"
)

// Users implements repository.UserRepository.
type Users Store

func (r *Users) st() *Store { return (*Store)(r) }

func (r *Users) Create(_ context.Context, u *model.User) error {
	s := r.st()
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range s.users {
		if o.ID == u.ID || o.ExternalID == u.ExternalID || o.Username == u.Username {
			return errs.ErrConflict
		}
	}
	u.CreatedAt = s.now()
	cp := *u
	s.users[u.ID] = &cp
	return nil
}

func (r *Users) GetByID(_ context.Context, id uuid.UUID) (*model.User, error) {
	return r.find(func(u *model.User) bool { return u.ID == id })
}

func (r *Users) GetByExternalID(_ context.Context, externalID string) (*model.User, error) {
	return r.find(func(u *model.User) bool { return u.ExternalID == externalID })
}

func (r *Users) GetByUsername(_ context.Context, username string) (*model.User, error) {
	return r.find(func(u *model.User) bool { return u.Username == username })
}

func (r *Users) find(match func(*model.User) bool) (*model.User, error) {
	s := r.st()
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if match(u) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, errs.ErrNotFound
}

func (r *Users) update(id uuid.UUID, fn func(*model.User)) error {
	s := r.st()
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return errs.ErrNotFound
	}
	fn(u)
	return nil
}

func (r *Users) UpdateLoginProfile(_ context.Context, id uuid.UUID, displayName, avatarURL string) error {
	return r.update(id, func(u *model.User) { u.DisplayName, u.AvatarURL = displayName, avatarURL })
}

func (r *Users) UpdateProfile(_ context.Context, id uuid.UUID, p model.Profile) error {
	return r.update(id, func(u *model.User) {
		u.DisplayName, u.Bio, u.WebsiteURL = p.DisplayName, p.Bio, p.WebsiteURL
	})
}

func (r *Users) SetRole(_ context.Context, id uuid.UUID, role model.Role) error {
	return r.update(id, func(u *model.User) { u.Role = role })
}

func (r *Users) SetVerified(_ context.Context, id uuid.UUID, verified bool) error {
	return r.update(id, func(u *model.User) { u.Verified = verified })
}

func (r *Users) CountListedModules(_ context.Context, id uuid.UUID) (int64, error) {
	s := r.st()
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, m := range s.modules {
		if m.OwnerID == id && m.Listed {
			n++
		}
	}
	return n, nil
}

// Sessions implements repository.SessionRepository.
type Sessions Store

func (r *Sessions) st() *Store { return (*Store)(r) }

func (r *Sessions) Create(_ context.Context, sess *model.Session) error {
	s := r.st()
	s.mu.Lock()
	defer s.mu.Unlock()
	key := string(sess.TokenHash)
	if _, ok := s.sessions[key]; ok {
		return errs.ErrConflict
	}
	sess.CreatedAt = s.now()
	cp := *sess
	cp.TokenHash = append([]byte(nil), sess.TokenHash...)
	s.sessions[key] = &cp
	return nil
}

func (r *Sessions) GetByHash(_ context.Context, hash []byte) (*model.Session, error) {
	s := r.st()
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[string(hash)]
	if !ok {
		return nil, errs.ErrNotFound
	}
	cp := *sess
	return &cp, nil
}

func (r *Sessions) Delete(_ context.Context, hash []byte) error {
	s := r.st()
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, string(hash))
	return nil
}

func (r *Sessions) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	s := r.st()
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for k, sess := range s.sessions {
		if sess.Expired(now) {
			delete(s.sessions, k)
			n++
		}
	}
	return n, nil
}
