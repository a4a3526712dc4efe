package memory

import (
	"context"
	"sort"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/jtaw5649/barforge-registry/internal/errs"
	"github.com/jtaw5649/barforge-registry/internal/model"
)

// Submissions implements repository.SubmissionRepository.
type Submissions Store

func (r *Submissions) st() *Store { return (*Store)(r) }

func (r *Submissions) Create(_ context.Context, sub *model.Submission) error {
	s := r.st()
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.submissions[sub.ID]; ok {
		return errs.ErrConflict
	}
	sub.Status = model.StatusPending
	sub.CreatedAt = s.now()
	s.submissions[sub.ID] = cloneSubmission(sub)
	return nil
}

func (r *Submissions) Get(_ context.Context, id uuid.UUID) (*model.Submission, error) {
	s := r.st()
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.submissions[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	return cloneSubmission(sub), nil
}

func (r *Submissions) ListPending(_ context.Context, limit, offset int) ([]model.Submission, error) {
	out := r.filter(func(sub *model.Submission) bool { return sub.Status == model.StatusPending })
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return page(out, limit, offset), nil
}

func (r *Submissions) ListBySubmitter(_ context.Context, userID uuid.UUID) ([]model.Submission, error) {
	out := r.filter(func(sub *model.Submission) bool { return sub.SubmitterID == userID })
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *Submissions) filter(keep func(*model.Submission) bool) []model.Submission {
	s := r.st()
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []model.Submission{}
	for _, sub := range s.submissions {
		if keep(sub) {
			out = append(out, *cloneSubmission(sub))
		}
	}
	return out
}

func (r *Submissions) pending(id uuid.UUID, next model.SubmissionStatus) (*model.Submission, error) {
	sub, ok := r.submissions[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	if !model.CanTransition(sub.Status, next) {
		return nil, errs.ErrInvalidState
	}
	return sub, nil
}

func (r *Submissions) Approve(_ context.Context, id, reviewer uuid.UUID) (*model.Submission, error) {
	s := r.st()
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, err := r.pending(id, model.StatusApproved)
	if err != nil {
		return nil, err
	}
	d := sub.Draft
	if _, ok := s.modules[d.ModuleUUID]; ok {
		return nil, errs.ErrConflict
	}

	now := s.now()
	s.modules[d.ModuleUUID] = &model.Module{
		UUID:        d.ModuleUUID,
		Name:        d.Name,
		Description: d.Description,
		Category:    d.Category,
		OwnerID:     sub.SubmitterID,
		RepoURL:     d.RepoURL,
		Tags:        cloneStrings(d.Tags),
		License:     d.License,
		Listed:      true,
		CreatedAt:   now,
	}
	s.versions[d.ModuleUUID] = []*model.Version{{
		ModuleUUID:  d.ModuleUUID,
		Version:     d.Version,
		Changelog:   d.Changelog,
		PackageKey:  d.PackageKey,
		PublishedBy: sub.SubmitterID,
		PublishedAt: now,
		Seq:         1,
	}}
	s.rollups[d.ModuleUUID] = &model.RatingCounts{}

	r.resolve(sub, model.StatusApproved, reviewer, "", now)
	return cloneSubmission(sub), nil
}

func (r *Submissions) Reject(_ context.Context, id, reviewer uuid.UUID, reason string) (*model.Submission, error) {
	s := r.st()
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, err := r.pending(id, model.StatusRejected)
	if err != nil {
		return nil, err
	}
	r.resolve(sub, model.StatusRejected, reviewer, reason, s.now())
	return cloneSubmission(sub), nil
}

func (r *Submissions) resolve(sub *model.Submission, status model.SubmissionStatus, reviewer uuid.UUID, reason string, at time.Time) {
	sub.Status = status
	sub.Reason = reason
	sub.ReviewedBy = uuid.NullUUID{UUID: reviewer, Valid: true}
	sub.ResolvedAt = &at
}

// Modules implements repository.ModuleRepository.
type Modules Store

func (r *Modules) st() *Store { return (*Store)(r) }

func (r *Modules) Get(_ context.Context, moduleUUID string) (*model.Module, error) {
	s := r.st()
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.modules[moduleUUID]
	if !ok {
		return nil, errs.ErrNotFound
	}
	out := cloneModule(m)
	return &out, nil
}

func (r *Modules) SetListed(_ context.Context, moduleUUID string, listed bool) error {
	s := r.st()
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.modules[moduleUUID]
	if !ok {
		return errs.ErrNotFound
	}
	m.Listed = listed
	return nil
}

func (r *Modules) AppendVersion(_ context.Context, v *model.Version) error {
	s := r.st()
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.modules[v.ModuleUUID]; !ok {
		return errs.ErrNotFound
	}
	ledger := s.versions[v.ModuleUUID]
	for _, o := range ledger {
		if o.Version == v.Version {
			return errs.ErrConflict
		}
	}

	at := s.now()
	if n := len(ledger); n > 0 {
		if floor := ledger[n-1].PublishedAt.Add(time.Microsecond); at.Before(floor) {
			at = floor
		}
	}
	v.Seq = int64(len(ledger)) + 1
	v.PublishedAt = at
	v.Downloads = 0
	cp := *v
	s.versions[v.ModuleUUID] = append(ledger, &cp)
	return nil
}

func (r *Modules) GetVersion(_ context.Context, moduleUUID, version string) (*model.Version, error) {
	s := r.st()
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, v := range s.versions[moduleUUID] {
		if v.Version == version {
			cp := *v
			return &cp, nil
		}
	}
	return nil, errs.ErrNotFound
}

func (r *Modules) ListVersions(_ context.Context, moduleUUID string) ([]model.Version, error) {
	s := r.st()
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Version, 0, len(s.versions[moduleUUID]))
	for _, v := range s.versions[moduleUUID] {
		out = append(out, *v)
	}
	return out, nil
}

func (r *Modules) IncrementDownloads(_ context.Context, moduleUUID, version string) error {
	s := r.st()
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, v := range s.versions[moduleUUID] {
		if v.Version == version {
			v.Downloads++
			return nil
		}
	}
	return errs.ErrNotFound
}

func page[T any](in []T, limit, offset int) []T {
	if offset >= len(in) {
		return []T{}
	}
	in = in[offset:]
	if limit > 0 && limit < len(in) {
		in = in[:limit]
	}
	return in
}
