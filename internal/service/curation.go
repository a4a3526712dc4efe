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

// CurationService serves featured placement and discovery reads.
type CurationService interface {
	SetFeatured(ctx context.Context, admin *model.User, moduleUUID string, position int) error
	ClearFeatured(ctx context.Context, admin *model.User, moduleUUID string) error
	ListFeatured(ctx context.Context) ([]model.ModuleSummary, error)
	Popular(ctx context.Context, limit int) ([]model.ModuleSummary, error)
	Recent(ctx context.Context, limit int) ([]model.ModuleSummary, error)
	Search(ctx context.Context, query string, category model.Category, limit, offset int) ([]model.ModuleSummary, error)
	Categories() []model.CategoryInfo
	// Summary returns one module's read model, listed or not.
	Summary(ctx context.Context, moduleUUID string) (*model.ModuleSummary, error)
	// AuthorModules lists owner's modules; unlisted ones only for the owner or an admin.
	AuthorModules(ctx context.Context, viewer *model.User, owner uuid.UUID) ([]model.ModuleSummary, error)
}

const maxQueryLen = 100

type CurationServiceImpl struct {
	catalog repository.CatalogRepository
	log     *zap.Logger
}

// NewCurationService constructs CurationService.
func NewCurationService(catalog repository.CatalogRepository, log *zap.Logger) *CurationServiceImpl {
	if log == nil {
		log = zap.NewNop()
	}
	return &CurationServiceImpl{catalog: catalog, log: log}
}

// SetFeatured places a module at position; positions start at 1.
func (s *CurationServiceImpl) SetFeatured(ctx context.Context, admin *model.User, moduleUUID string, position int) error {
	if err := authz.Check(admin, authz.ActCurate); err != nil {
		return err
	}
	if position < 1 {
		return fmt.Errorf("%w: position must be positive", errs.ErrInvalidInput)
	}
	if err := s.catalog.SetFeatured(ctx, moduleUUID, position); err != nil {
		return err
	}
	s.log.Info("module featured", zap.String("module", moduleUUID), zap.Int("position", position))
	return nil
}

// ClearFeatured removes a module from the featured set.
func (s *CurationServiceImpl) ClearFeatured(ctx context.Context, admin *model.User, moduleUUID string) error {
	if err := authz.Check(admin, authz.ActCurate); err != nil {
		return err
	}
	return s.catalog.ClearFeatured(ctx, moduleUUID)
}

func (s *CurationServiceImpl) ListFeatured(ctx context.Context) ([]model.ModuleSummary, error) {
	return s.catalog.ListFeatured(ctx)
}

func (s *CurationServiceImpl) Popular(ctx context.Context, limit int) ([]model.ModuleSummary, error) {
	return s.catalog.Popular(ctx, clampLimit(limit))
}

func (s *CurationServiceImpl) Recent(ctx context.Context, limit int) ([]model.ModuleSummary, error) {
	return s.catalog.Recent(ctx, clampLimit(limit))
}

// Search matches listed modules. An empty query lists everything in category.
func (s *CurationServiceImpl) Search(ctx context.Context, query string, category model.Category, limit, offset int) ([]model.ModuleSummary, error) {
	query = strings.TrimSpace(query)
	switch {
	case tooLong(query, maxQueryLen):
		return nil, fmt.Errorf("%w: query too long", errs.ErrInvalidInput)
	case category != "" && !category.Valid():
		return nil, fmt.Errorf("%w: unknown category %q", errs.ErrInvalidInput, category)
	case offset < 0:
		return nil, fmt.Errorf("%w: negative offset", errs.ErrInvalidInput)
	}
	return s.catalog.Search(ctx, repository.SearchQuery{
		Text: query, Category: category, Limit: clampLimit(limit), Offset: offset,
	})
}

// Categories returns the fixed catalogue.
func (s *CurationServiceImpl) Categories() []model.CategoryInfo {
	return append([]model.CategoryInfo(nil), model.Categories...)
}

func (s *CurationServiceImpl) Summary(ctx context.Context, moduleUUID string) (*model.ModuleSummary, error) {
	return s.catalog.Summary(ctx, moduleUUID)
}

func (s *CurationServiceImpl) AuthorModules(ctx context.Context, viewer *model.User, owner uuid.UUID) ([]model.ModuleSummary, error) {
	all := viewer != nil && authz.CheckOwner(viewer, owner, authz.ActManageAnyModule) == nil
	return s.catalog.ListByOwner(ctx, owner, all)
}
