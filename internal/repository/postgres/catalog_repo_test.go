package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"

	"github.com/jtaw5649/barforge-registry/internal/errs"
	"github.com/jtaw5649/barforge-registry/internal/model"
	"github.com/jtaw5649/barforge-registry/internal/repository"
)

var summaryColNames = []string{"uuid", "name", "description", "category", "owner_id", "repo_url", "tags", "license",
	"listed", "created_at", "username", "verified", "version", "published_at", "downloads", "count", "sum"}

func addSummary(rows *pgxmock.Rows, id string, downloads, count, sum int64) *pgxmock.Rows {
	ts := time.Now().UTC()
	return rows.AddRow(id, id, "desc", "time", uuid.Must(uuid.NewV4()), "https://github.com/octo/x", []string{}, "MIT",
		true, ts, "octo", true, "1.0.0", ts, downloads, count, sum)
}

func TestCatalogRepo_ListFeatured(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewCatalogRepo(db)

	rows := pgxmock.NewRows(summaryColNames)
	addSummary(rows, "a@octo", 5, 2, 9)
	addSummary(rows, "c@octo", 0, 0, 0)
	mock.ExpectQuery(`JOIN featured f ON f.module_uuid = m.uuid WHERE m.listed ORDER BY f.position ASC`).
		WillReturnRows(rows)

	out, err := r.ListFeatured(context.Background())
	require.NoError(t, err)
	require.Len(t, out, 2)
	require.Equal(t, "a@octo", out[0].UUID)
	require.NotNil(t, out[0].Rating)
	require.Equal(t, 4.5, *out[0].Rating)
	require.Nil(t, out[1].Rating)
	require.True(t, out[0].VerifiedAuthor)
}

func TestCatalogRepo_SetFeatured(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewCatalogRepo(db)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT uuid FROM modules WHERE uuid=\$1`).
		WithArgs("a@octo").
		WillReturnRows(pgxmock.NewRows([]string{"uuid"}).AddRow("a@octo"))
	mock.ExpectQuery(`SELECT module_uuid FROM featured WHERE position=\$1 FOR UPDATE`).
		WithArgs(1).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectExec(`INSERT INTO featured \(module_uuid, position\) VALUES \(\$1, \$2\) ON CONFLICT \(module_uuid\) DO UPDATE`).
		WithArgs("a@octo", 1).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()
	require.NoError(t, r.SetFeatured(ctx, "a@octo", 1))

	// position held by another module
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT uuid FROM modules WHERE uuid=\$1`).
		WithArgs("b@octo").
		WillReturnRows(pgxmock.NewRows([]string{"uuid"}).AddRow("b@octo"))
	mock.ExpectQuery(`SELECT module_uuid FROM featured WHERE position=\$1 FOR UPDATE`).
		WithArgs(1).
		WillReturnRows(pgxmock.NewRows([]string{"module_uuid"}).AddRow("a@octo"))
	mock.ExpectRollback()
	require.ErrorIs(t, r.SetFeatured(ctx, "b@octo", 1), errs.ErrConflict)

	// concurrent insert won the position
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT uuid FROM modules WHERE uuid=\$1`).
		WithArgs("b@octo").
		WillReturnRows(pgxmock.NewRows([]string{"uuid"}).AddRow("b@octo"))
	mock.ExpectQuery(`SELECT module_uuid FROM featured WHERE position=\$1 FOR UPDATE`).
		WithArgs(2).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectExec(`INSERT INTO featured`).
		WithArgs("b@octo", 2).
		WillReturnError(&pgconn.PgError{Code: "23505"})
	mock.ExpectRollback()
	require.ErrorIs(t, r.SetFeatured(ctx, "b@octo", 2), errs.ErrConflict)

	// unknown module
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT uuid FROM modules WHERE uuid=\$1`).
		WithArgs("gone@octo").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectRollback()
	require.ErrorIs(t, r.SetFeatured(ctx, "gone@octo", 3), errs.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCatalogRepo_Search_EscapesPattern(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewCatalogRepo(db)

	mock.ExpectQuery(`WHERE m.listed AND \(\$1 = '' OR m.name ILIKE \$2`).
		WithArgs("50%_off", `%50\%\_off%`, "time", 10, 0).
		WillReturnRows(pgxmock.NewRows(summaryColNames))

	out, err := r.Search(context.Background(), repository.SearchQuery{
		Text: " 50%_off ", Category: model.CategoryTime, Limit: 10,
	})
	require.NoError(t, err)
	require.Empty(t, out)
}

func TestCatalogRepo_PopularAndRecent(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewCatalogRepo(db)
	ctx := context.Background()

	rows := pgxmock.NewRows(summaryColNames)
	addSummary(rows, "a@octo", 100, 0, 0)
	mock.ExpectQuery(`WHERE m.listed ORDER BY COALESCE\(dl.total, 0\) DESC, m.uuid ASC LIMIT \$1`).
		WithArgs(5).
		WillReturnRows(rows)
	out, err := r.Popular(ctx, 5)
	require.NoError(t, err)
	require.Equal(t, int64(100), out[0].Downloads)

	mock.ExpectQuery(`WHERE m.listed ORDER BY lv.published_at DESC NULLS LAST, m.uuid ASC LIMIT \$1`).
		WithArgs(5).
		WillReturnRows(pgxmock.NewRows(summaryColNames))
	out, err = r.Recent(ctx, 5)
	require.NoError(t, err)
	require.Empty(t, out)
}

func TestCatalogRepo_Summary_NotFound(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewCatalogRepo(db)

	mock.ExpectQuery(`WHERE m.uuid=\$1`).
		WithArgs("gone@octo").
		WillReturnError(pgx.ErrNoRows)
	_, err := r.Summary(context.Background(), "gone@octo")
	require.ErrorIs(t, err, errs.ErrNotFound)
}
