package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/jtaw5649/barforge-registry/internal/errs"
	"github.com/jtaw5649/barforge-registry/internal/model"
)

// ModuleRepo implements ModuleRepository (the version ledger) using PostgreSQL.
type ModuleRepo struct{ db *DB }

// NewModuleRepo constructs a module repository.
func NewModuleRepo(db *DB) *ModuleRepo { return &ModuleRepo{db: db} }

// Get selects a module by identifier.
func (r *ModuleRepo) Get(ctx context.Context, moduleUUID string) (*model.Module, error) {
	const q = `
SELECT uuid, name, description, category, owner_id, repo_url, tags, license, listed, created_at
FROM modules WHERE uuid=$1`
	var (
		m        model.Module
		category string
	)
	err := r.db.Pool.QueryRow(ctx, q, moduleUUID).Scan(&m.UUID, &m.Name, &m.Description, &category,
		&m.OwnerID, &m.RepoURL, &m.Tags, &m.License, &m.Listed, &m.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	m.Category = model.Category(category)
	return &m, nil
}

// SetListed flips the module's lifecycle flag.
func (r *ModuleRepo) SetListed(ctx context.Context, moduleUUID string, listed bool) error {
	const q = `UPDATE modules SET listed=$2 WHERE uuid=$1`
	tag, err := r.db.Pool.Exec(ctx, q, moduleUUID, listed)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// AppendVersion appends to the module's ledger. The module row lock serializes
// concurrent publishes so that seq and published_at strictly increase.
func (r *ModuleRepo) AppendVersion(ctx context.Context, v *model.Version) error {
	return r.db.inTx(ctx, func(tx pgx.Tx) error {
		const lock = `SELECT uuid FROM modules WHERE uuid=$1 FOR UPDATE`
		var id string
		if err := tx.QueryRow(ctx, lock, v.ModuleUUID).Scan(&id); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return errs.ErrNotFound
			}
			return err
		}

		const ins = `
INSERT INTO versions (module_uuid, version, seq, changelog, package_key, published_by, published_at)
SELECT $1, $2, COALESCE(MAX(seq), 0) + 1, $3, $4, $5,
       GREATEST(clock_timestamp(), COALESCE(MAX(published_at), '-infinity') + interval '1 microsecond')
FROM versions WHERE module_uuid = $1
RETURNING seq, published_at`
		err := tx.QueryRow(ctx, ins, v.ModuleUUID, v.Version, v.Changelog, v.PackageKey, v.PublishedBy).
			Scan(&v.Seq, &v.PublishedAt)
		if isUniqueViolation(err) {
			return errs.ErrConflict
		}
		if err != nil {
			return err
		}
		v.Downloads = 0
		return nil
	})
}

const versionCols = `module_uuid, version, changelog, package_key, downloads, published_by, published_at, seq`

func scanVersion(row pgx.Row) (*model.Version, error) {
	var v model.Version
	if err := row.Scan(&v.ModuleUUID, &v.Version, &v.Changelog, &v.PackageKey, &v.Downloads,
		&v.PublishedBy, &v.PublishedAt, &v.Seq); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	return &v, nil
}

// GetVersion selects one version of a module.
func (r *ModuleRepo) GetVersion(ctx context.Context, moduleUUID, version string) (*model.Version, error) {
	const q = `SELECT ` + versionCols + ` FROM versions WHERE module_uuid=$1 AND version=$2`
	return scanVersion(r.db.Pool.QueryRow(ctx, q, moduleUUID, version))
}

// ListVersions returns the module's ledger in publish order.
func (r *ModuleRepo) ListVersions(ctx context.Context, moduleUUID string) ([]model.Version, error) {
	const q = `SELECT ` + versionCols + ` FROM versions WHERE module_uuid=$1 ORDER BY seq ASC`
	rows, err := r.db.Pool.Query(ctx, q, moduleUUID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.Version{}
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *v)
	}
	return out, rows.Err()
}

// IncrementDownloads bumps the counter in a single statement so concurrent
// increments never overwrite each other.
func (r *ModuleRepo) IncrementDownloads(ctx context.Context, moduleUUID, version string) error {
	const q = `UPDATE versions SET downloads = downloads + 1 WHERE module_uuid=$1 AND version=$2`
	tag, err := r.db.Pool.Exec(ctx, q, moduleUUID, version)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}
