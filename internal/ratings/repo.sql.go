package ratings

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/chapterhouse/chapterhouse/internal/shared"
)

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// Upsert writes the score under the (user, series) uniqueness key. The
// xmax trick distinguishes a fresh insert from a replaced row.
func (r *PGRepository) Upsert(ctx context.Context, rating *Rating) (bool, error) {
	const query = `
		INSERT INTO ratings (series_id, user_id, value, created_at, updated_at)
		VALUES ($1, $2, $3, NOW(), NOW())
		ON CONFLICT (user_id, series_id)
		DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()
		RETURNING id, created_at, updated_at, (xmax = 0)`
	var created bool
	err := r.pool.QueryRow(ctx, query, rating.SeriesID, rating.UserID, rating.Value).
		Scan(&rating.ID, &rating.CreatedAt, &rating.UpdatedAt, &created)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return false, shared.ErrNotFound
		}
		return false, err
	}
	return created, nil
}

// Delete removes the reader's rating and returns the removed row's id.
func (r *PGRepository) Delete(ctx context.Context, seriesID, userID int64) (int64, error) {
	const query = `DELETE FROM ratings WHERE series_id = $1 AND user_id = $2 RETURNING id`
	var id int64
	if err := r.pool.QueryRow(ctx, query, seriesID, userID).Scan(&id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, shared.ErrNotFound
		}
		return 0, err
	}
	return id, nil
}

// Summarize aggregates the series' scores.
func (r *PGRepository) Summarize(ctx context.Context, seriesID int64) (Summary, error) {
	const query = `
		SELECT COALESCE(ROUND(AVG(value)::numeric, 1), 0), COUNT(*)
		FROM ratings
		WHERE series_id = $1`
	summary := Summary{SeriesID: seriesID}
	if err := r.pool.QueryRow(ctx, query, seriesID).Scan(&summary.Average, &summary.Count); err != nil {
		return Summary{}, err
	}
	return summary, nil
}

var _ Repository = (*PGRepository)(nil)
