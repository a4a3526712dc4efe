package repository

import (
	"context"

	"github.com/gofrs/uuid/v5"

	"github.com/jtaw5649/barforge-registry/internal/model"
)

// SearchQuery filters listed modules.
type SearchQuery struct {
	Text     string
	Category model.Category
	Limit    int
	Offset   int
}

// CatalogRepository serves curation and discovery reads. Listings never include unlisted modules.
type CatalogRepository interface {
	// SetFeatured places a module at position, moving it if already featured.
	// A position held by another module yields errs.ErrConflict.
	SetFeatured(ctx context.Context, moduleUUID string, position int) error
	// ClearFeatured removes a module from the featured set.
	ClearFeatured(ctx context.Context, moduleUUID string) error
	// ListFeatured returns featured listed modules by position ascending.
	ListFeatured(ctx context.Context) ([]model.ModuleSummary, error)
	// Popular ranks listed modules by total downloads.
	Popular(ctx context.Context, limit int) ([]model.ModuleSummary, error)
	// Recent ranks listed modules by latest version publish time.
	Recent(ctx context.Context, limit int) ([]model.ModuleSummary, error)
	// Search matches listed modules by name, description, author or tag.
	Search(ctx context.Context, q SearchQuery) ([]model.ModuleSummary, error)
	// Summary loads one module's read model, listed or not.
	Summary(ctx context.Context, moduleUUID string) (*model.ModuleSummary, error)
	// ListByOwner returns a user's modules; unlisted ones only when includeUnlisted.
	ListByOwner(ctx context.Context, owner uuid.UUID, includeUnlisted bool) ([]model.ModuleSummary, error)
}
