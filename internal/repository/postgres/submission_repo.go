package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"

	"github.com/jtaw5649/barforge-registry/internal/errs"
	"github.com/jtaw5649/barforge-registry/internal/model"
)

// SubmissionRepo implements SubmissionRepository using PostgreSQL.
type SubmissionRepo struct{ db *DB }

// NewSubmissionRepo constructs a submission repository.
func NewSubmissionRepo(db *DB) *SubmissionRepo { return &SubmissionRepo{db: db} }

const submissionCols = `id, module_uuid, name, description, category, version, repo_url, changelog, package_key, tags, license, status, reason, submitter_id, reviewed_by, created_at, resolved_at`

func scanSubmission(row pgx.Row) (*model.Submission, error) {
	var (
		s        model.Submission
		category string
		status   string
	)
	d := &s.Draft
	err := row.Scan(&s.ID, &d.ModuleUUID, &d.Name, &d.Description, &category, &d.Version, &d.RepoURL,
		&d.Changelog, &d.PackageKey, &d.Tags, &d.License, &status, &s.Reason, &s.SubmitterID,
		&s.ReviewedBy, &s.CreatedAt, &s.ResolvedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	d.Category = model.Category(category)
	s.Status = model.SubmissionStatus(status)
	return &s, nil
}

// Create inserts a pending submission.
func (r *SubmissionRepo) Create(ctx context.Context, s *model.Submission) error {
	const q = `
INSERT INTO submissions (id, module_uuid, name, description, category, version, repo_url, changelog, package_key, tags, license, status, submitter_id)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
RETURNING created_at`
	d := s.Draft
	tags := d.Tags
	if tags == nil {
		tags = []string{}
	}
	return r.db.Pool.QueryRow(ctx, q, s.ID, d.ModuleUUID, d.Name, d.Description, string(d.Category),
		d.Version, d.RepoURL, d.Changelog, d.PackageKey, tags, d.License, string(model.StatusPending),
		s.SubmitterID).Scan(&s.CreatedAt)
}

// Get selects a submission by ID.
func (r *SubmissionRepo) Get(ctx context.Context, id uuid.UUID) (*model.Submission, error) {
	const q = `SELECT ` + submissionCols + ` FROM submissions WHERE id=$1`
	return scanSubmission(r.db.Pool.QueryRow(ctx, q, id))
}

// ListPending returns pending submissions in arrival order.
func (r *SubmissionRepo) ListPending(ctx context.Context, limit, offset int) ([]model.Submission, error) {
	const q = `SELECT ` + submissionCols + `
FROM submissions
WHERE status='pending'
ORDER BY created_at ASC, id ASC
LIMIT $1 OFFSET $2`
	return r.list(ctx, q, limit, offset)
}

// ListBySubmitter returns a user's submissions, newest first.
func (r *SubmissionRepo) ListBySubmitter(ctx context.Context, userID uuid.UUID) ([]model.Submission, error) {
	const q = `SELECT ` + submissionCols + `
FROM submissions
WHERE submitter_id=$1
ORDER BY created_at DESC`
	return r.list(ctx, q, userID)
}

func (r *SubmissionRepo) list(ctx context.Context, q string, args ...any) ([]model.Submission, error) {
	rows, err := r.db.Pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.Submission{}
	for rows.Next() {
		s, err := scanSubmission(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

// lockPending loads the submission under a row lock and checks that it may move to next.
func lockPending(ctx context.Context, tx pgx.Tx, id uuid.UUID, next model.SubmissionStatus) (*model.Submission, error) {
	const sel = `SELECT ` + submissionCols + ` FROM submissions WHERE id=$1 FOR UPDATE`
	s, err := scanSubmission(tx.QueryRow(ctx, sel, id))
	if err != nil {
		return nil, err
	}
	if !model.CanTransition(s.Status, next) {
		return nil, errs.ErrInvalidState
	}
	return s, nil
}

const resolveSubmission = `
UPDATE submissions SET status=$2, reviewed_by=$3, reason=$4, resolved_at=now()
WHERE id=$1
RETURNING resolved_at`

// Approve resolves the submission and materializes the module with its first version.
func (r *SubmissionRepo) Approve(ctx context.Context, id, reviewer uuid.UUID) (*model.Submission, error) {
	var out *model.Submission
	err := r.db.inTx(ctx, func(tx pgx.Tx) error {
		s, err := lockPending(ctx, tx, id, model.StatusApproved)
		if err != nil {
			return err
		}
		d := s.Draft

		const insModule = `
INSERT INTO modules (uuid, name, description, category, owner_id, repo_url, tags, license)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
		if _, err := tx.Exec(ctx, insModule, d.ModuleUUID, d.Name, d.Description, string(d.Category),
			s.SubmitterID, d.RepoURL, d.Tags, d.License); err != nil {
			if isUniqueViolation(err) {
				return errs.ErrConflict
			}
			return err
		}

		const insVersion = `
INSERT INTO versions (module_uuid, version, seq, changelog, package_key, published_by, published_at)
VALUES ($1, $2, 1, $3, $4, $5, clock_timestamp())`
		if _, err := tx.Exec(ctx, insVersion, d.ModuleUUID, d.Version, d.Changelog, d.PackageKey, s.SubmitterID); err != nil {
			return err
		}

		const insRollup = `INSERT INTO rating_rollups (module_uuid) VALUES ($1)`
		if _, err := tx.Exec(ctx, insRollup, d.ModuleUUID); err != nil {
			return err
		}

		var resolved time.Time
		if err := tx.QueryRow(ctx, resolveSubmission, id, string(model.StatusApproved), reviewer, "").Scan(&resolved); err != nil {
			return err
		}
		s.Status = model.StatusApproved
		s.ReviewedBy = uuid.NullUUID{UUID: reviewer, Valid: true}
		s.ResolvedAt = &resolved
		out = s
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Reject resolves the submission as rejected.
func (r *SubmissionRepo) Reject(ctx context.Context, id, reviewer uuid.UUID, reason string) (*model.Submission, error) {
	var out *model.Submission
	err := r.db.inTx(ctx, func(tx pgx.Tx) error {
		s, err := lockPending(ctx, tx, id, model.StatusRejected)
		if err != nil {
			return err
		}
		var resolved time.Time
		if err := tx.QueryRow(ctx, resolveSubmission, id, string(model.StatusRejected), reviewer, reason).Scan(&resolved); err != nil {
			return err
		}
		s.Status = model.StatusRejected
		s.Reason = reason
		s.ReviewedBy = uuid.NullUUID{UUID: reviewer, Valid: true}
		s.ResolvedAt = &resolved
		out = s
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
