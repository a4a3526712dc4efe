// Package memory is an in-process implementation of the repository
// interfaces. It serializes every call on one mutex and is meant for tests
// and local development, not for production traffic.
package memory

import (
	"sync"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/jtaw5649/barforge-registry/internal/model"
	"github.com/jtaw5649/barforge-registry/internal/repository"
)

// Store holds all registry state behind a single mutex.
type Store struct {
	mu  sync.Mutex
	now func() time.Time

	users       map[uuid.UUID]*model.User
	sessions    map[string]*model.Session
	submissions map[uuid.UUID]*model.Submission
	modules     map[string]*model.Module
	versions    map[string][]*model.Version
	reviews     map[string]map[uuid.UUID]*model.Review
	rollups     map[string]*model.RatingCounts
	featured    map[string]int
}

// New returns an empty store.
func New() *Store {
	return &Store{
		now:         time.Now,
		users:       map[uuid.UUID]*model.User{},
		sessions:    map[string]*model.Session{},
		submissions: map[uuid.UUID]*model.Submission{},
		modules:     map[string]*model.Module{},
		versions:    map[string][]*model.Version{},
		reviews:     map[string]map[uuid.UUID]*model.Review{},
		rollups:     map[string]*model.RatingCounts{},
		featured:    map[string]int{},
	}
}

// WithClock replaces the store's time source.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

// Users returns the user repository view.
func (s *Store) Users() *Users { return (*Users)(s) }

// Sessions returns the session repository view.
func (s *Store) Sessions() *Sessions { return (*Sessions)(s) }

// Submissions returns the moderation queue view.
func (s *Store) Submissions() *Submissions { return (*Submissions)(s) }

// Modules returns the version ledger view.
func (s *Store) Modules() *Modules { return (*Modules)(s) }

// Reviews returns the review view.
func (s *Store) Reviews() *Reviews { return (*Reviews)(s) }

// Catalog returns the discovery view.
func (s *Store) Catalog() *Catalog { return (*Catalog)(s) }

var (
	_ repository.UserRepository       = (*Users)(nil)
	_ repository.SessionRepository    = (*Sessions)(nil)
	_ repository.SubmissionRepository = (*Submissions)(nil)
	_ repository.ModuleRepository     = (*Modules)(nil)
	_ repository.ReviewRepository     = (*Reviews)(nil)
	_ repository.CatalogRepository    = (*Catalog)(nil)
)

func cloneStrings(in []string) []string {
	if in == nil {
		return []string{}
	}
	return append([]string(nil), in...)
}

func cloneModule(m *model.Module) model.Module {
	out := *m
	out.Tags = cloneStrings(m.Tags)
	return out
}

func cloneSubmission(sub *model.Submission) *model.Submission {
	out := *sub
	out.Draft.Tags = cloneStrings(sub.Draft.Tags)
	if sub.ResolvedAt != nil {
		t := *sub.ResolvedAt
		out.ResolvedAt = &t
	}
	return &out
}
