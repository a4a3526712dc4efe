package postgres

import (
	"context"
	"errors"
	"strings"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"

	"github.com/jtaw5649/barforge-registry/internal/errs"
	"github.com/jtaw5649/barforge-registry/internal/model"
	"github.com/jtaw5649/barforge-registry/internal/repository"
)

// CatalogRepo implements CatalogRepository using PostgreSQL.
type CatalogRepo struct{ db *DB }

// NewCatalogRepo constructs a catalog repository.
func NewCatalogRepo(db *DB) *CatalogRepo { return &CatalogRepo{db: db} }

// summarySelect joins each module with its author, latest version, download
// total and rating rollup.
const summarySelect = `
SELECT m.uuid, m.name, m.description, m.category, m.owner_id, m.repo_url, m.tags, m.license, m.listed, m.created_at,
       u.username, u.verified,
       COALESCE(lv.version, ''), COALESCE(lv.published_at, m.created_at),
       COALESCE(dl.total, 0)::bigint,
       COALESCE(rr.count, 0), COALESCE(rr.sum, 0)
FROM modules m
JOIN users u ON u.id = m.owner_id
LEFT JOIN LATERAL (
    SELECT version, published_at FROM versions WHERE module_uuid = m.uuid ORDER BY seq DESC LIMIT 1
) lv ON true
LEFT JOIN LATERAL (
    SELECT SUM(downloads) AS total FROM versions WHERE module_uuid = m.uuid
) dl ON true
LEFT JOIN rating_rollups rr ON rr.module_uuid = m.uuid`

func scanSummary(row pgx.Row) (*model.ModuleSummary, error) {
	var (
		s          model.ModuleSummary
		category   string
		count, sum int64
	)
	m := &s.Module
	err := row.Scan(&m.UUID, &m.Name, &m.Description, &category, &m.OwnerID, &m.RepoURL, &m.Tags,
		&m.License, &m.Listed, &m.CreatedAt, &s.Author, &s.VerifiedAuthor, &s.LatestVersion,
		&s.LastUpdated, &s.Downloads, &count, &sum)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	m.Category = model.Category(category)
	if count > 0 {
		avg := model.RatingCounts{Count: count, Sum: sum}.Summary().Average
		s.Rating = &avg
	}
	return &s, nil
}

func (r *CatalogRepo) list(ctx context.Context, q string, args ...any) ([]model.ModuleSummary, error) {
	rows, err := r.db.Pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.ModuleSummary{}
	for rows.Next() {
		s, err := scanSummary(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

// SetFeatured places the module at position. Re-featuring a module moves it.
func (r *CatalogRepo) SetFeatured(ctx context.Context, moduleUUID string, position int) error {
	return r.db.inTx(ctx, func(tx pgx.Tx) error {
		var id string
		if err := tx.QueryRow(ctx, `SELECT uuid FROM modules WHERE uuid=$1`, moduleUUID).Scan(&id); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return errs.ErrNotFound
			}
			return err
		}

		var holder string
		err := tx.QueryRow(ctx, `SELECT module_uuid FROM featured WHERE position=$1 FOR UPDATE`, position).Scan(&holder)
		switch {
		case errors.Is(err, pgx.ErrNoRows):
		case err != nil:
			return err
		case holder != moduleUUID:
			return errs.ErrConflict
		}

		const ups = `
INSERT INTO featured (module_uuid, position) VALUES ($1, $2)
ON CONFLICT (module_uuid) DO UPDATE SET position=EXCLUDED.position`
		if _, err := tx.Exec(ctx, ups, moduleUUID, position); err != nil {
			if isUniqueViolation(err) {
				return errs.ErrConflict
			}
			return err
		}
		return nil
	})
}

// ClearFeatured removes the module from the featured set; absent entries are ignored.
func (r *CatalogRepo) ClearFeatured(ctx context.Context, moduleUUID string) error {
	_, err := r.db.Pool.Exec(ctx, `DELETE FROM featured WHERE module_uuid=$1`, moduleUUID)
	return err
}

// ListFeatured returns featured listed modules by position.
func (r *CatalogRepo) ListFeatured(ctx context.Context) ([]model.ModuleSummary, error) {
	const q = summarySelect + `
JOIN featured f ON f.module_uuid = m.uuid
WHERE m.listed
ORDER BY f.position ASC`
	return r.list(ctx, q)
}

// Popular ranks listed modules by total downloads.
func (r *CatalogRepo) Popular(ctx context.Context, limit int) ([]model.ModuleSummary, error) {
	const q = summarySelect + `
WHERE m.listed
ORDER BY COALESCE(dl.total, 0) DESC, m.uuid ASC
LIMIT $1`
	return r.list(ctx, q, limit)
}

// Recent ranks listed modules by their latest publish time.
func (r *CatalogRepo) Recent(ctx context.Context, limit int) ([]model.ModuleSummary, error) {
	const q = summarySelect + `
WHERE m.listed
ORDER BY lv.published_at DESC NULLS LAST, m.uuid ASC
LIMIT $1`
	return r.list(ctx, q, limit)
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// Search matches listed modules case-insensitively by name, description,
// author or tag, optionally within one category.
func (r *CatalogRepo) Search(ctx context.Context, sq repository.SearchQuery) ([]model.ModuleSummary, error) {
	const q = summarySelect + `
WHERE m.listed
  AND ($1 = '' OR m.name ILIKE $2 OR m.description ILIKE $2 OR u.username ILIKE $2
       OR EXISTS (SELECT 1 FROM unnest(m.tags) AS t(tag) WHERE t.tag ILIKE $2))
  AND ($3 = '' OR m.category = $3)
ORDER BY COALESCE(dl.total, 0) DESC, m.uuid ASC
LIMIT $4 OFFSET $5`
	text := strings.TrimSpace(sq.Text)
	pattern := "%" + likeEscaper.Replace(text) + "%"
	return r.list(ctx, q, text, pattern, string(sq.Category), sq.Limit, sq.Offset)
}

// Summary loads one module's read model whether or not it is listed.
func (r *CatalogRepo) Summary(ctx context.Context, moduleUUID string) (*model.ModuleSummary, error) {
	const q = summarySelect + `
WHERE m.uuid=$1`
	return scanSummary(r.db.Pool.QueryRow(ctx, q, moduleUUID))
}

// ListByOwner returns the owner's modules, newest first.
func (r *CatalogRepo) ListByOwner(ctx context.Context, owner uuid.UUID, includeUnlisted bool) ([]model.ModuleSummary, error) {
	const q = summarySelect + `
WHERE m.owner_id=$1 AND (m.listed OR $2)
ORDER BY m.created_at DESC, m.uuid ASC`
	return r.list(ctx, q, owner, includeUnlisted)
}
