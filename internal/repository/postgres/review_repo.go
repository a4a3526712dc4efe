package postgres

import (
	"context"
	"errors"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"

	"github.com/jtaw5649/barforge-registry/internal/errs"
	"github.com/jtaw5649/barforge-registry/internal/model"
)

// ReviewRepo implements ReviewRepository using PostgreSQL.
type ReviewRepo struct{ db *DB }

// NewReviewRepo constructs a review repository.
func NewReviewRepo(db *DB) *ReviewRepo { return &ReviewRepo{db: db} }

const lockModule = `SELECT listed FROM modules WHERE uuid=$1 FOR UPDATE`

// refreshRollup recomputes the module's rollup from the review rows.
const refreshRollup = `
INSERT INTO rating_rollups (module_uuid, count, sum, r1, r2, r3, r4, r5)
SELECT $1, count(*), COALESCE(sum(rating), 0),
       count(*) FILTER (WHERE rating = 1),
       count(*) FILTER (WHERE rating = 2),
       count(*) FILTER (WHERE rating = 3),
       count(*) FILTER (WHERE rating = 4),
       count(*) FILTER (WHERE rating = 5)
FROM reviews WHERE module_uuid = $1
ON CONFLICT (module_uuid) DO UPDATE
SET count=EXCLUDED.count, sum=EXCLUDED.sum,
    r1=EXCLUDED.r1, r2=EXCLUDED.r2, r3=EXCLUDED.r3, r4=EXCLUDED.r4, r5=EXCLUDED.r5`

// Upsert inserts or edits the (module, user) review and refreshes the rollup
// under the module row lock.
func (r *ReviewRepo) Upsert(ctx context.Context, rv *model.Review) error {
	return r.db.inTx(ctx, func(tx pgx.Tx) error {
		var listed bool
		if err := tx.QueryRow(ctx, lockModule, rv.ModuleUUID).Scan(&listed); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return errs.ErrNotFound
			}
			return err
		}
		if !listed {
			return errs.ErrNotFound
		}

		const ups = `
INSERT INTO reviews (id, module_uuid, user_id, rating, title, body)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (module_uuid, user_id) DO UPDATE
SET rating=EXCLUDED.rating, title=EXCLUDED.title, body=EXCLUDED.body, updated_at=now()
RETURNING id, helpful_count, created_at, updated_at`
		if err := tx.QueryRow(ctx, ups, rv.ID, rv.ModuleUUID, rv.UserID, rv.Rating, rv.Title, rv.Body).
			Scan(&rv.ID, &rv.HelpfulCount, &rv.CreatedAt, &rv.UpdatedAt); err != nil {
			return err
		}

		_, err := tx.Exec(ctx, refreshRollup, rv.ModuleUUID)
		return err
	})
}

// Delete removes the (module, user) review and refreshes the rollup.
func (r *ReviewRepo) Delete(ctx context.Context, moduleUUID string, userID uuid.UUID) (bool, error) {
	var deleted bool
	err := r.db.inTx(ctx, func(tx pgx.Tx) error {
		var listed bool
		if err := tx.QueryRow(ctx, lockModule, moduleUUID).Scan(&listed); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil
			}
			return err
		}

		const del = `DELETE FROM reviews WHERE module_uuid=$1 AND user_id=$2`
		tag, err := tx.Exec(ctx, del, moduleUUID, userID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return nil
		}
		deleted = true
		_, err = tx.Exec(ctx, refreshRollup, moduleUUID)
		return err
	})
	return deleted, err
}

const reviewCols = `r.id, r.module_uuid, r.user_id, r.rating, r.title, r.body, r.helpful_count, r.created_at, r.updated_at, u.username, u.avatar_url`

func scanReview(row pgx.Row) (*model.Review, error) {
	var rv model.Review
	if err := row.Scan(&rv.ID, &rv.ModuleUUID, &rv.UserID, &rv.Rating, &rv.Title, &rv.Body,
		&rv.HelpfulCount, &rv.CreatedAt, &rv.UpdatedAt, &rv.Username, &rv.AvatarURL); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	return &rv, nil
}

// Get selects one review with its author.
func (r *ReviewRepo) Get(ctx context.Context, moduleUUID string, userID uuid.UUID) (*model.Review, error) {
	const q = `SELECT ` + reviewCols + `
FROM reviews r JOIN users u ON u.id = r.user_id
WHERE r.module_uuid=$1 AND r.user_id=$2`
	return scanReview(r.db.Pool.QueryRow(ctx, q, moduleUUID, userID))
}

// List returns a page of reviews newest first and the total number of reviews.
func (r *ReviewRepo) List(ctx context.Context, moduleUUID string, limit, offset int) ([]model.Review, int64, error) {
	const cnt = `SELECT count(*) FROM reviews WHERE module_uuid=$1`
	var total int64
	if err := r.db.Pool.QueryRow(ctx, cnt, moduleUUID).Scan(&total); err != nil {
		return nil, 0, err
	}

	const q = `SELECT ` + reviewCols + `
FROM reviews r JOIN users u ON u.id = r.user_id
WHERE r.module_uuid=$1
ORDER BY r.updated_at DESC, r.id ASC
LIMIT $2 OFFSET $3`
	rows, err := r.db.Pool.Query(ctx, q, moduleUUID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := []model.Review{}
	for rows.Next() {
		rv, err := scanReview(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *rv)
	}
	return out, total, rows.Err()
}

// Counts returns the module's stored rollup.
func (r *ReviewRepo) Counts(ctx context.Context, moduleUUID string) (model.RatingCounts, error) {
	const q = `SELECT count, sum, r1, r2, r3, r4, r5 FROM rating_rollups WHERE module_uuid=$1`
	var c model.RatingCounts
	h := &c.Histogram
	if err := r.db.Pool.QueryRow(ctx, q, moduleUUID).Scan(&c.Count, &c.Sum, &h[0], &h[1], &h[2], &h[3], &h[4]); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.RatingCounts{}, errs.ErrNotFound
		}
		return model.RatingCounts{}, err
	}
	return c, nil
}
