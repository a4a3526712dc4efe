package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/jtaw5649/barforge-registry/internal/authz"
	"github.com/jtaw5649/barforge-registry/internal/errs"
	"github.com/jtaw5649/barforge-registry/internal/model"
	"github.com/jtaw5649/barforge-registry/internal/repository"
)

// ReviewService keeps one review per (module, user) and the module's rating.
type ReviewService interface {
	Upsert(ctx context.Context, u *model.User, moduleUUID string, rating int, title, body string) (*model.Review, error)
	Delete(ctx context.Context, actor *model.User, moduleUUID string, authorID uuid.UUID) error
	RatingSummary(ctx context.Context, moduleUUID string) (model.RatingSummary, error)
	List(ctx context.Context, moduleUUID string, limit, offset int) ([]model.Review, int64, error)
}

const (
	maxReviewTitleLen = 100
	maxReviewBodyLen  = 5000
)

type ReviewServiceImpl struct {
	reviews repository.ReviewRepository
	log     *zap.Logger
}

// NewReviewService constructs ReviewService.
func NewReviewService(reviews repository.ReviewRepository, log *zap.Logger) *ReviewServiceImpl {
	if log == nil {
		log = zap.NewNop()
	}
	return &ReviewServiceImpl{reviews: reviews, log: log}
}

// Upsert creates the caller's review or edits the existing one.
func (s *ReviewServiceImpl) Upsert(ctx context.Context, u *model.User, moduleUUID string, rating int, title, body string) (*model.Review, error) {
	if err := authz.Check(u, authz.ActReview); err != nil {
		return nil, err
	}
	if rating < model.MinRating || rating > model.MaxRating {
		return nil, fmt.Errorf("%w: %d not in %d..%d", errs.ErrInvalidRating, rating, model.MinRating, model.MaxRating)
	}
	title, body = strings.TrimSpace(title), strings.TrimSpace(body)
	if tooLong(title, maxReviewTitleLen) || tooLong(body, maxReviewBodyLen) {
		return nil, fmt.Errorf("%w: review text too long", errs.ErrInvalidInput)
	}

	id, err := uuid.NewV4()
	if err != nil {
		return nil, err
	}
	rv := &model.Review{ID: id, ModuleUUID: moduleUUID, UserID: u.ID, Rating: rating, Title: title, Body: body}
	if err := s.reviews.Upsert(ctx, rv); err != nil {
		return nil, err
	}
	rv.Username, rv.AvatarURL = u.Username, u.AvatarURL
	return rv, nil
}

// Delete removes authorID's review. Only the author or an admin may do so.
func (s *ReviewServiceImpl) Delete(ctx context.Context, actor *model.User, moduleUUID string, authorID uuid.UUID) error {
	if err := authz.CheckOwner(actor, authorID, authz.ActDeleteAnyReview); err != nil {
		return err
	}
	deleted, err := s.reviews.Delete(ctx, moduleUUID, authorID)
	if err != nil {
		return err
	}
	if deleted && actor.ID != authorID {
		s.log.Info("review removed by admin", zap.String("module", moduleUUID),
			zap.String("author", authorID.String()), zap.String("actor", actor.ID.String()))
	}
	return nil
}

// RatingSummary returns the module's aggregate from the stored rollup.
func (s *ReviewServiceImpl) RatingSummary(ctx context.Context, moduleUUID string) (model.RatingSummary, error) {
	c, err := s.reviews.Counts(ctx, moduleUUID)
	if err != nil {
		return model.RatingSummary{}, err
	}
	return c.Summary(), nil
}

// List pages through a module's reviews, newest first.
func (s *ReviewServiceImpl) List(ctx context.Context, moduleUUID string, limit, offset int) ([]model.Review, int64, error) {
	if offset < 0 {
		return nil, 0, fmt.Errorf("%w: negative offset", errs.ErrInvalidInput)
	}
	return s.reviews.List(ctx, moduleUUID, clampLimit(limit), offset)
}
