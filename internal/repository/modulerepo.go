package repository

import (
	"context"

	"github.com/jtaw5649/barforge-registry/internal/model"
)

// ModuleRepository is the version ledger. Versions can be appended and
// counted, never edited or removed.
type ModuleRepository interface {
	// Get loads a module regardless of its listed flag.
	Get(ctx context.Context, moduleUUID string) (*model.Module, error)
	// SetListed flips the module's lifecycle flag.
	SetListed(ctx context.Context, moduleUUID string, listed bool) error

	// AppendVersion adds v to the module's ledger and fills PublishedAt and Seq.
	// Unknown module yields errs.ErrNotFound, duplicate version errs.ErrConflict.
	AppendVersion(ctx context.Context, v *model.Version) error
	// GetVersion loads one version.
	GetVersion(ctx context.Context, moduleUUID, version string) (*model.Version, error)
	// ListVersions returns the ledger in publish order.
	ListVersions(ctx context.Context, moduleUUID string) ([]model.Version, error)
	// IncrementDownloads atomically bumps a version's counter.
	IncrementDownloads(ctx context.Context, moduleUUID, version string) error
}
