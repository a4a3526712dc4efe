package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"

	"github.com/jtaw5649/barforge-registry/internal/errs"
	"github.com/jtaw5649/barforge-registry/internal/model"
)

func TestReviewRepo_Upsert_RefreshesRollup(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewReviewRepo(db)
	ctx := context.Background()
	id := uuid.Must(uuid.NewV4())
	uid := uuid.Must(uuid.NewV4())
	ts := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT listed FROM modules WHERE uuid=\$1 FOR UPDATE`).
		WithArgs("clock@octo").
		WillReturnRows(pgxmock.NewRows([]string{"listed"}).AddRow(true))
	mock.ExpectQuery(`INSERT INTO reviews .* ON CONFLICT \(module_uuid, user_id\) DO UPDATE`).
		WithArgs(id, "clock@octo", uid, 5, "Great", "works").
		WillReturnRows(pgxmock.NewRows([]string{"id", "helpful_count", "created_at", "updated_at"}).
			AddRow(id, int64(0), ts, ts))
	mock.ExpectExec(`INSERT INTO rating_rollups .* FROM reviews WHERE module_uuid = \$1 ON CONFLICT \(module_uuid\) DO UPDATE`).
		WithArgs("clock@octo").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	rv := &model.Review{ID: id, ModuleUUID: "clock@octo", UserID: uid, Rating: 5, Title: "Great", Body: "works"}
	require.NoError(t, r.Upsert(ctx, rv))
	require.Equal(t, ts, rv.UpdatedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReviewRepo_Upsert_UnlistedModule(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewReviewRepo(db)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT listed FROM modules WHERE uuid=\$1 FOR UPDATE`).
		WithArgs("clock@octo").
		WillReturnRows(pgxmock.NewRows([]string{"listed"}).AddRow(false))
	mock.ExpectRollback()

	err := r.Upsert(context.Background(), &model.Review{ModuleUUID: "clock@octo", Rating: 3})
	require.ErrorIs(t, err, errs.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReviewRepo_Delete(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewReviewRepo(db)
	ctx := context.Background()
	uid := uuid.Must(uuid.NewV4())

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT listed FROM modules WHERE uuid=\$1 FOR UPDATE`).
		WithArgs("clock@octo").
		WillReturnRows(pgxmock.NewRows([]string{"listed"}).AddRow(true))
	mock.ExpectExec(`DELETE FROM reviews WHERE module_uuid=\$1 AND user_id=\$2`).
		WithArgs("clock@octo", uid).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectExec(`INSERT INTO rating_rollups`).
		WithArgs("clock@octo").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	deleted, err := r.Delete(ctx, "clock@octo", uid)
	require.NoError(t, err)
	require.True(t, deleted)

	// absent review: no rollup refresh
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT listed FROM modules WHERE uuid=\$1 FOR UPDATE`).
		WithArgs("clock@octo").
		WillReturnRows(pgxmock.NewRows([]string{"listed"}).AddRow(true))
	mock.ExpectExec(`DELETE FROM reviews`).
		WithArgs("clock@octo", uid).
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectCommit()

	deleted, err = r.Delete(ctx, "clock@octo", uid)
	require.NoError(t, err)
	require.False(t, deleted)

	// absent module
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT listed FROM modules WHERE uuid=\$1 FOR UPDATE`).
		WithArgs("gone@octo").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectCommit()

	deleted, err = r.Delete(ctx, "gone@octo", uid)
	require.NoError(t, err)
	require.False(t, deleted)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReviewRepo_List(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewReviewRepo(db)
	ts := time.Now().UTC()
	uid := uuid.Must(uuid.NewV4())

	mock.ExpectQuery(`SELECT count\(\*\) FROM reviews WHERE module_uuid=\$1`).
		WithArgs("clock@octo").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(7)))
	mock.ExpectQuery(`FROM reviews r JOIN users u ON u.id = r.user_id WHERE r.module_uuid=\$1 ORDER BY r.updated_at DESC`).
		WithArgs("clock@octo", 1, 0).
		WillReturnRows(pgxmock.NewRows([]string{"id", "module_uuid", "user_id", "rating", "title", "body",
			"helpful_count", "created_at", "updated_at", "username", "avatar_url"}).
			AddRow(uuid.Must(uuid.NewV4()), "clock@octo", uid, 4, "", "nice", int64(2), ts, ts, "octo", "https://a"))

	out, total, err := r.List(context.Background(), "clock@octo", 1, 0)
	require.NoError(t, err)
	require.Equal(t, int64(7), total)
	require.Len(t, out, 1)
	require.Equal(t, "octo", out[0].Username)
	require.Equal(t, int64(2), out[0].HelpfulCount)
}

func TestReviewRepo_Counts(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewReviewRepo(db)

	mock.ExpectQuery(`SELECT count, sum, r1, r2, r3, r4, r5 FROM rating_rollups WHERE module_uuid=\$1`).
		WithArgs("clock@octo").
		WillReturnRows(pgxmock.NewRows([]string{"count", "sum", "r1", "r2", "r3", "r4", "r5"}).
			AddRow(int64(3), int64(12), int64(0), int64(0), int64(1), int64(1), int64(1)))
	c, err := r.Counts(context.Background(), "clock@octo")
	require.NoError(t, err)
	s := c.Summary()
	require.Equal(t, 4.0, s.Average)
	require.Equal(t, int64(1), s.Histogram[3])

	mock.ExpectQuery(`FROM rating_rollups`).
		WithArgs("gone@octo").
		WillReturnError(pgx.ErrNoRows)
	_, err = r.Counts(context.Background(), "gone@octo")
	require.ErrorIs(t, err, errs.ErrNotFound)
}
