package repository

import (
	"context"

	"github.com/gofrs/uuid/v5"

	"github.com/jtaw5649/barforge-registry/internal/model"
)

// ReviewRepository stores one review per (module, user) together with the
// module's rating rollup. Writes update both in one transaction.
type ReviewRepository interface {
	// Upsert inserts or replaces the caller's review and fills ID and timestamps.
	// Absent or unlisted modules yield errs.ErrNotFound.
	Upsert(ctx context.Context, r *model.Review) error
	// Delete removes a review and reports whether a row existed.
	Delete(ctx context.Context, moduleUUID string, userID uuid.UUID) (bool, error)
	// Get loads a single review.
	Get(ctx context.Context, moduleUUID string, userID uuid.UUID) (*model.Review, error)
	// List returns reviews newest first and the total count.
	List(ctx context.Context, moduleUUID string, limit, offset int) ([]model.Review, int64, error)
	// Counts returns the module's rollup.
	Counts(ctx context.Context, moduleUUID string) (model.RatingCounts, error)
}
