package limiter

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PG is a PostgreSQL-backed fixed-window limiter over the rate_limits table.
type PG struct {
	pool   pgxQuerier
	window time.Duration
	max    int
	now    func() time.Time
}

type pgxQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// NewPG constructs a PostgreSQL-backed limiter.
func NewPG(pool *pgxpool.Pool, window time.Duration, max int) *PG {
	return NewPGWithQuerier(pool, window, max)
}

// NewPGWithQuerier constructs a PostgreSQL-backed limiter.
func NewPGWithQuerier(q pgxQuerier, window time.Duration, max int) *PG {
	return &PG{pool: q, window: window, max: max, now: time.Now}
}

// Allow counts one hit for key. The window restarts on the first hit after it elapses.
func (l *PG) Allow(ctx context.Context, key string) (bool, time.Duration, error) {
	const q = `
INSERT INTO rate_limits (key, window_start, hits)
VALUES ($1, now(), 1)
ON CONFLICT (key) DO UPDATE
SET
  window_start = CASE WHEN now() - rate_limits.window_start >= $2::interval THEN now() ELSE rate_limits.window_start END,
  hits = CASE WHEN now() - rate_limits.window_start >= $2::interval THEN 1 ELSE rate_limits.hits + 1 END
RETURNING hits, window_start`
	var (
		hits  int
		start time.Time
	)
	if err := l.pool.QueryRow(ctx, q, key, l.window).Scan(&hits, &start); err != nil {
		return false, 0, err
	}
	if hits > l.max {
		retry := start.Add(l.window).Sub(l.now())
		if retry < 0 {
			retry = 0
		}
		return false, retry, nil
	}
	return true, 0, nil
}
