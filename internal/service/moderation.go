package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/jtaw5649/barforge-registry/internal/authz"
	"github.com/jtaw5649/barforge-registry/internal/errs"
	"github.com/jtaw5649/barforge-registry/internal/limiter"
	"github.com/jtaw5649/barforge-registry/internal/model"
	"github.com/jtaw5649/barforge-registry/internal/repository"
)

// ModerationService runs the submission state machine.
type ModerationService interface {
	// Submit validates a draft and queues it as pending.
	Submit(ctx context.Context, u *model.User, d model.ModuleDraft) (*model.Submission, error)
	// Review approves or rejects a pending submission.
	Review(ctx context.Context, moderator *model.User, id uuid.UUID, d model.Decision, reason string) (*model.Submission, error)
	// ListPending returns the queue oldest first.
	ListPending(ctx context.Context, moderator *model.User, limit, offset int) ([]model.Submission, error)
	// ListMine returns the caller's submissions newest first.
	ListMine(ctx context.Context, u *model.User) ([]model.Submission, error)
	// Get returns one submission to its submitter or a moderator.
	Get(ctx context.Context, actor *model.User, id uuid.UUID) (*model.Submission, error)
}

const (
	maxNameLen        = 64
	maxDescriptionLen = 1000
	maxChangelogLen   = 10000
	maxReasonLen      = 1000
	maxTags           = 10
	maxTagLen         = 32
	maxLicenseLen     = 64
)

type ModerationServiceImpl struct {
	subs repository.SubmissionRepository
	lim  limiter.Limiter
	log  *zap.Logger
}

// NewModerationService constructs ModerationService. lim may be nil to disable throttling.
func NewModerationService(subs repository.SubmissionRepository, lim limiter.Limiter, log *zap.Logger) *ModerationServiceImpl {
	if log == nil {
		log = zap.NewNop()
	}
	return &ModerationServiceImpl{subs: subs, lim: lim, log: log}
}

// Submit validates before touching storage, then applies the per-user throttle.
func (s *ModerationServiceImpl) Submit(ctx context.Context, u *model.User, d model.ModuleDraft) (*model.Submission, error) {
	if err := authz.Check(u, authz.ActSubmit); err != nil {
		return nil, err
	}
	d = normalizeDraft(d)
	if err := validateDraft(d); err != nil {
		return nil, err
	}

	if s.lim != nil {
		ok, retry, err := s.lim.Allow(ctx, limiter.SubmitKey(u.ID.String()))
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("%w: retry in %s", errs.ErrRateLimited, retry.Round(time.Second))
		}
	}

	id, err := uuid.NewV4()
	if err != nil {
		return nil, err
	}
	sub := &model.Submission{ID: id, Draft: d, Status: model.StatusPending, SubmitterID: u.ID}
	if err := s.subs.Create(ctx, sub); err != nil {
		return nil, err
	}
	s.log.Info("submission queued", zap.String("submission_id", id.String()),
		zap.String("module", d.ModuleUUID), zap.String("submitter", u.ID.String()))
	return sub, nil
}

func normalizeDraft(d model.ModuleDraft) model.ModuleDraft {
	d.ModuleUUID = strings.TrimSpace(d.ModuleUUID)
	d.Name = strings.TrimSpace(d.Name)
	d.Description = strings.TrimSpace(d.Description)
	d.Category = model.Category(strings.ToLower(strings.TrimSpace(string(d.Category))))
	d.Version = strings.TrimSpace(d.Version)
	d.RepoURL = strings.TrimSpace(d.RepoURL)
	d.PackageKey = strings.TrimSpace(d.PackageKey)
	d.License = strings.TrimSpace(d.License)
	d.Tags = normalizeTags(d.Tags)
	return d
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{errs.ErrInvalidSubmission}, args...)...)
}

func validateDraft(d model.ModuleDraft) error {
	if err := model.ValidateModuleUUID(d.ModuleUUID); err != nil {
		return invalid("module uuid: %v", err)
	}
	switch {
	case d.Name == "":
		return invalid("name is required")
	case tooLong(d.Name, maxNameLen):
		return invalid("name too long")
	case d.Description == "":
		return invalid("description is required")
	case tooLong(d.Description, maxDescriptionLen):
		return invalid("description too long")
	case !d.Category.Valid():
		return invalid("unknown category %q", d.Category)
	case d.Version == "":
		return invalid("version is required")
	case !model.ValidVersion(d.Version):
		return invalid("version %q is not semver", d.Version)
	case !validHTTPURL(d.RepoURL):
		return invalid("repo url must be an absolute http(s) URL")
	case tooLong(d.Changelog, maxChangelogLen):
		return invalid("changelog too long")
	case tooLong(d.License, maxLicenseLen):
		return invalid("license too long")
	case len(d.Tags) > maxTags:
		return invalid("at most %d tags", maxTags)
	}
	for _, t := range d.Tags {
		if tooLong(t, maxTagLen) {
			return invalid("tag %q too long", t)
		}
	}
	return nil
}

// Review applies a moderator decision. Storage enforces that only a pending
// submission moves, so concurrent reviews yield one winner.
func (s *ModerationServiceImpl) Review(ctx context.Context, moderator *model.User, id uuid.UUID, d model.Decision, reason string) (*model.Submission, error) {
	if err := authz.Check(moderator, authz.ActModerate); err != nil {
		return nil, err
	}
	target, ok := d.Target()
	if !ok {
		return nil, fmt.Errorf("%w: unknown decision %q", errs.ErrInvalidInput, d)
	}
	reason = strings.TrimSpace(reason)
	if tooLong(reason, maxReasonLen) {
		return nil, fmt.Errorf("%w: reason too long", errs.ErrInvalidInput)
	}

	var (
		sub *model.Submission
		err error
	)
	switch target {
	case model.StatusApproved:
		sub, err = s.subs.Approve(ctx, id, moderator.ID)
	case model.StatusRejected:
		sub, err = s.subs.Reject(ctx, id, moderator.ID, reason)
	}
	if err != nil {
		return nil, err
	}
	s.log.Info("submission resolved", zap.String("submission_id", id.String()),
		zap.String("module", sub.Draft.ModuleUUID), zap.String("status", string(sub.Status)),
		zap.String("moderator", moderator.ID.String()))
	return sub, nil
}

// ListPending returns pending submissions in arrival order.
func (s *ModerationServiceImpl) ListPending(ctx context.Context, moderator *model.User, limit, offset int) ([]model.Submission, error) {
	if err := authz.Check(moderator, authz.ActModerate); err != nil {
		return nil, err
	}
	if offset < 0 {
		return nil, fmt.Errorf("%w: negative offset", errs.ErrInvalidInput)
	}
	return s.subs.ListPending(ctx, clampLimit(limit), offset)
}

// ListMine returns the caller's own submissions.
func (s *ModerationServiceImpl) ListMine(ctx context.Context, u *model.User) ([]model.Submission, error) {
	if err := authz.Check(u, authz.ActSubmit); err != nil {
		return nil, err
	}
	return s.subs.ListBySubmitter(ctx, u.ID)
}

// Get returns a submission visible to actor.
func (s *ModerationServiceImpl) Get(ctx context.Context, actor *model.User, id uuid.UUID) (*model.Submission, error) {
	if actor == nil {
		return nil, errs.ErrUnauthenticated
	}
	sub, err := s.subs.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authz.CheckOwner(actor, sub.SubmitterID, authz.ActModerate); err != nil {
		return nil, err
	}
	return sub, nil
}
