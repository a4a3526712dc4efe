package memory

import (
	"context"
	"sort"
	"strings"

	"github.com/gofrs/uuid/v5"

	"github.com/jtaw5649/barforge-registry/internal/errs"
	"github.com/jtaw5649/barforge-registry/internal/model"
	"github.com/jtaw5649/barforge-registry/internal/repository"
)

// Reviews implements repository.ReviewRepository.
type Reviews Store

func (r *Reviews) st() *Store { return (*Store)(r) }

func (r *Reviews) Upsert(_ context.Context, rv *model.Review) error {
	s := r.st()
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.modules[rv.ModuleUUID]
	if !ok || !m.Listed {
		return errs.ErrNotFound
	}
	byUser := s.reviews[rv.ModuleUUID]
	if byUser == nil {
		byUser = map[uuid.UUID]*model.Review{}
		s.reviews[rv.ModuleUUID] = byUser
	}
	now := s.now()
	if cur, ok := byUser[rv.UserID]; ok {
		cur.Rating, cur.Title, cur.Body, cur.UpdatedAt = rv.Rating, rv.Title, rv.Body, now
		rv.ID, rv.HelpfulCount, rv.CreatedAt, rv.UpdatedAt = cur.ID, cur.HelpfulCount, cur.CreatedAt, now
	} else {
		rv.CreatedAt, rv.UpdatedAt = now, now
		cp := *rv
		byUser[rv.UserID] = &cp
	}
	s.refreshRollup(rv.ModuleUUID)
	return nil
}

func (r *Reviews) Delete(_ context.Context, moduleUUID string, userID uuid.UUID) (bool, error) {
	s := r.st()
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.reviews[moduleUUID][userID]; !ok {
		return false, nil
	}
	delete(s.reviews[moduleUUID], userID)
	s.refreshRollup(moduleUUID)
	return true, nil
}

// refreshRollup recomputes the module's counts from its review rows.
func (s *Store) refreshRollup(moduleUUID string) {
	var c model.RatingCounts
	for _, rv := range s.reviews[moduleUUID] {
		c.Add(rv.Rating)
	}
	s.rollups[moduleUUID] = &c
}

func (s *Store) withAuthor(rv *model.Review) model.Review {
	out := *rv
	if u, ok := s.users[rv.UserID]; ok {
		out.Username, out.AvatarURL = u.Username, u.AvatarURL
	}
	return out
}

func (r *Reviews) Get(_ context.Context, moduleUUID string, userID uuid.UUID) (*model.Review, error) {
	s := r.st()
	s.mu.Lock()
	defer s.mu.Unlock()
	rv, ok := s.reviews[moduleUUID][userID]
	if !ok {
		return nil, errs.ErrNotFound
	}
	out := s.withAuthor(rv)
	return &out, nil
}

func (r *Reviews) List(_ context.Context, moduleUUID string, limit, offset int) ([]model.Review, int64, error) {
	s := r.st()
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []model.Review{}
	for _, rv := range s.reviews[moduleUUID] {
		out = append(out, s.withAuthor(rv))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.After(out[j].UpdatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return page(out, limit, offset), int64(len(out)), nil
}

func (r *Reviews) Counts(_ context.Context, moduleUUID string) (model.RatingCounts, error) {
	s := r.st()
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.rollups[moduleUUID]
	if !ok {
		return model.RatingCounts{}, errs.ErrNotFound
	}
	return *c, nil
}

// Catalog implements repository.CatalogRepository.
type Catalog Store

func (r *Catalog) st() *Store { return (*Store)(r) }

func (r *Catalog) SetFeatured(_ context.Context, moduleUUID string, position int) error {
	s := r.st()
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.modules[moduleUUID]; !ok {
		return errs.ErrNotFound
	}
	for id, pos := range s.featured {
		if pos == position && id != moduleUUID {
			return errs.ErrConflict
		}
	}
	s.featured[moduleUUID] = position
	return nil
}

func (r *Catalog) ClearFeatured(_ context.Context, moduleUUID string) error {
	s := r.st()
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.featured, moduleUUID)
	return nil
}

func (r *Catalog) ListFeatured(_ context.Context) ([]model.ModuleSummary, error) {
	s := r.st()
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.summaries(func(m *model.Module) bool {
		_, ok := s.featured[m.UUID]
		return ok && m.Listed
	})
	sort.Slice(out, func(i, j int) bool { return s.featured[out[i].UUID] < s.featured[out[j].UUID] })
	return out, nil
}

func (r *Catalog) Popular(_ context.Context, limit int) ([]model.ModuleSummary, error) {
	s := r.st()
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.summaries(func(m *model.Module) bool { return m.Listed })
	sortByDownloads(out)
	return page(out, limit, 0), nil
}

func (r *Catalog) Recent(_ context.Context, limit int) ([]model.ModuleSummary, error) {
	s := r.st()
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.summaries(func(m *model.Module) bool { return m.Listed })
	sort.Slice(out, func(i, j int) bool {
		if !out[i].LastUpdated.Equal(out[j].LastUpdated) {
			return out[i].LastUpdated.After(out[j].LastUpdated)
		}
		return out[i].UUID < out[j].UUID
	})
	return page(out, limit, 0), nil
}

func (r *Catalog) Search(_ context.Context, q repository.SearchQuery) ([]model.ModuleSummary, error) {
	s := r.st()
	s.mu.Lock()
	defer s.mu.Unlock()
	text := strings.ToLower(strings.TrimSpace(q.Text))
	out := s.summaries(func(m *model.Module) bool {
		if !m.Listed || (q.Category != "" && m.Category != q.Category) {
			return false
		}
		if text == "" {
			return true
		}
		fields := append([]string{m.Name, m.Description}, m.Tags...)
		if u, ok := s.users[m.OwnerID]; ok {
			fields = append(fields, u.Username)
		}
		for _, f := range fields {
			if strings.Contains(strings.ToLower(f), text) {
				return true
			}
		}
		return false
	})
	sortByDownloads(out)
	return page(out, q.Limit, q.Offset), nil
}

func (r *Catalog) Summary(_ context.Context, moduleUUID string) (*model.ModuleSummary, error) {
	s := r.st()
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.modules[moduleUUID]
	if !ok {
		return nil, errs.ErrNotFound
	}
	out := s.summary(m)
	return &out, nil
}

func (r *Catalog) ListByOwner(_ context.Context, owner uuid.UUID, includeUnlisted bool) ([]model.ModuleSummary, error) {
	s := r.st()
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.summaries(func(m *model.Module) bool {
		return m.OwnerID == owner && (m.Listed || includeUnlisted)
	})
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].UUID < out[j].UUID
	})
	return out, nil
}

func (s *Store) summaries(keep func(*model.Module) bool) []model.ModuleSummary {
	out := []model.ModuleSummary{}
	for _, m := range s.modules {
		if keep(m) {
			out = append(out, s.summary(m))
		}
	}
	return out
}

func (s *Store) summary(m *model.Module) model.ModuleSummary {
	sum := model.ModuleSummary{Module: cloneModule(m), LastUpdated: m.CreatedAt}
	if u, ok := s.users[m.OwnerID]; ok {
		sum.Author, sum.VerifiedAuthor = u.Username, u.Verified
	}
	ledger := s.versions[m.UUID]
	if n := len(ledger); n > 0 {
		sum.LatestVersion = ledger[n-1].Version
		sum.LastUpdated = ledger[n-1].PublishedAt
	}
	for _, v := range ledger {
		sum.Downloads += v.Downloads
	}
	if c, ok := s.rollups[m.UUID]; ok && c.Count > 0 {
		avg := c.Summary().Average
		sum.Rating = &avg
	}
	return sum
}

func sortByDownloads(out []model.ModuleSummary) {
	sort.Slice(out, func(i, j int) bool {
		if out[i].Downloads != out[j].Downloads {
			return out[i].Downloads > out[j].Downloads
		}
		return out[i].UUID < out[j].UUID
	})
}
