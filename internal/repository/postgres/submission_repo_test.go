package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"

	"github.com/jtaw5649/barforge-registry/internal/errs"
	"github.com/jtaw5649/barforge-registry/internal/model"
)

var submissionColNames = []string{"id", "module_uuid", "name", "description", "category", "version", "repo_url",
	"changelog", "package_key", "tags", "license", "status", "reason", "submitter_id", "reviewed_by",
	"created_at", "resolved_at"}

func submissionRow(id, submitter uuid.UUID, status string) *pgxmock.Rows {
	return pgxmock.NewRows(submissionColNames).AddRow(id, "clock@octo", "Clock", "shows time", "time", "1.0.0",
		"https://github.com/octo/clock", "", "pkg/clock-1.0.0.tar.gz", []string{"clock"}, "MIT", status, "",
		submitter, uuid.NullUUID{}, time.Now().UTC(), nil)
}

func TestSubmissionRepo_Create(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewSubmissionRepo(db)
	ctx := context.Background()
	ts := time.Now().UTC()
	s := &model.Submission{
		ID:          uuid.Must(uuid.NewV4()),
		SubmitterID: uuid.Must(uuid.NewV4()),
		Draft: model.ModuleDraft{
			ModuleUUID: "clock@octo", Name: "Clock", Description: "shows time",
			Category: model.CategoryTime, Version: "1.0.0", RepoURL: "https://github.com/octo/clock",
		},
	}

	mock.ExpectQuery(`INSERT INTO submissions`).
		WithArgs(s.ID, "clock@octo", "Clock", "shows time", "time", "1.0.0", "https://github.com/octo/clock",
			"", "", []string{}, "", "pending", s.SubmitterID).
		WillReturnRows(pgxmock.NewRows([]string{"created_at"}).AddRow(ts))
	require.NoError(t, r.Create(ctx, s))
	require.Equal(t, ts, s.CreatedAt)
}

func TestSubmissionRepo_ListPending_FIFO(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewSubmissionRepo(db)
	id := uuid.Must(uuid.NewV4())
	sub := uuid.Must(uuid.NewV4())

	mock.ExpectQuery(`WHERE status='pending' ORDER BY created_at ASC, id ASC LIMIT \$1 OFFSET \$2`).
		WithArgs(20, 0).
		WillReturnRows(submissionRow(id, sub, "pending"))
	out, err := r.ListPending(context.Background(), 20, 0)
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Equal(t, model.StatusPending, out[0].Status)
	require.False(t, out[0].ReviewedBy.Valid)
	require.Nil(t, out[0].ResolvedAt)
}

func TestSubmissionRepo_Approve_OK(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewSubmissionRepo(db)
	ctx := context.Background()
	id := uuid.Must(uuid.NewV4())
	sub := uuid.Must(uuid.NewV4())
	mod := uuid.Must(uuid.NewV4())
	resolved := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM submissions WHERE id=\$1 FOR UPDATE`).
		WithArgs(id).
		WillReturnRows(submissionRow(id, sub, "pending"))
	mock.ExpectExec(`INSERT INTO modules`).
		WithArgs("clock@octo", "Clock", "shows time", "time", sub, "https://github.com/octo/clock", []string{"clock"}, "MIT").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`INSERT INTO versions .* VALUES \(\$1, \$2, 1, \$3, \$4, \$5, clock_timestamp\(\)\)`).
		WithArgs("clock@octo", "1.0.0", "", "pkg/clock-1.0.0.tar.gz", sub).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`INSERT INTO rating_rollups \(module_uuid\) VALUES \(\$1\)`).
		WithArgs("clock@octo").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectQuery(`UPDATE submissions SET status=\$2, reviewed_by=\$3, reason=\$4, resolved_at=now\(\)`).
		WithArgs(id, "approved", mod, "").
		WillReturnRows(pgxmock.NewRows([]string{"resolved_at"}).AddRow(resolved))
	mock.ExpectCommit()

	s, err := r.Approve(ctx, id, mod)
	require.NoError(t, err)
	require.Equal(t, model.StatusApproved, s.Status)
	require.Equal(t, mod, s.ReviewedBy.UUID)
	require.Equal(t, resolved, *s.ResolvedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSubmissionRepo_Approve_ModuleExists_RollsBack(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewSubmissionRepo(db)
	id := uuid.Must(uuid.NewV4())
	sub := uuid.Must(uuid.NewV4())

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM submissions WHERE id=\$1 FOR UPDATE`).
		WithArgs(id).
		WillReturnRows(submissionRow(id, sub, "pending"))
	mock.ExpectExec(`INSERT INTO modules`).
		WithArgs("clock@octo", "Clock", "shows time", "time", sub, "https://github.com/octo/clock", []string{"clock"}, "MIT").
		WillReturnError(&pgconn.PgError{Code: "23505"})
	mock.ExpectRollback()

	_, err := r.Approve(context.Background(), id, uuid.Must(uuid.NewV4()))
	require.ErrorIs(t, err, errs.ErrConflict)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSubmissionRepo_Resolved_IsInvalidState(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewSubmissionRepo(db)
	id := uuid.Must(uuid.NewV4())
	sub := uuid.Must(uuid.NewV4())

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM submissions WHERE id=\$1 FOR UPDATE`).
		WithArgs(id).
		WillReturnRows(submissionRow(id, sub, "rejected"))
	mock.ExpectRollback()

	_, err := r.Reject(context.Background(), id, uuid.Must(uuid.NewV4()), "again")
	require.ErrorIs(t, err, errs.ErrInvalidState)
	require.ErrorIs(t, err, errs.ErrConflict)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSubmissionRepo_Reject_OK(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewSubmissionRepo(db)
	id := uuid.Must(uuid.NewV4())
	sub := uuid.Must(uuid.NewV4())
	mod := uuid.Must(uuid.NewV4())

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM submissions WHERE id=\$1 FOR UPDATE`).
		WithArgs(id).
		WillReturnRows(submissionRow(id, sub, "pending"))
	mock.ExpectQuery(`UPDATE submissions SET status=\$2`).
		WithArgs(id, "rejected", mod, "missing license").
		WillReturnRows(pgxmock.NewRows([]string{"resolved_at"}).AddRow(time.Now().UTC()))
	mock.ExpectCommit()

	s, err := r.Reject(context.Background(), id, mod, "missing license")
	require.NoError(t, err)
	require.Equal(t, model.StatusRejected, s.Status)
	require.Equal(t, "missing license", s.Reason)
	require.NoError(t, mock.ExpectationsWereMet())
}
