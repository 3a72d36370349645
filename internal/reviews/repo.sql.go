package reviews

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

const reviewColumns = `v.id, v.series_id, v.user_id, u.username, v.content, v.has_spoiler, v.created_at, v.updated_at`

func scanReview(row pgx.Row, v *Review) error {
	return row.Scan(&v.ID, &v.SeriesID, &v.UserID, &v.Author, &v.Content, &v.HasSpoiler, &v.CreatedAt, &v.UpdatedAt)
}

// ListBySeries returns one window of a series' reviews, newest first.
func (r *PGRepository) ListBySeries(ctx context.Context, seriesID int64, offset, limit int) ([]Review, error) {
	const query = `
		SELECT ` + reviewColumns + `
		FROM reviews v
		JOIN users u ON u.id = v.user_id
		WHERE v.series_id = $1 AND v.deleted_at IS NULL
		ORDER BY v.created_at DESC, v.id DESC
		OFFSET $2 LIMIT $3`
	rows, err := r.pool.Query(ctx, query, seriesID, offset, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Review
	for rows.Next() {
		var v Review
		if err := scanReview(rows, &v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// Find fetches one live review by id. Removed reviews read as missing.
func (r *PGRepository) Find(ctx context.Context, id int64) (*Review, error) {
	const query = `
		SELECT ` + reviewColumns + `
		FROM reviews v
		JOIN users u ON u.id = v.user_id
		WHERE v.id = $1 AND v.deleted_at IS NULL`
	var v Review
	if err := scanReview(r.pool.QueryRow(ctx, query, id), &v); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &v, nil
}

// Create inserts a review and fills in its id and timestamps. A second
// review for the same series by the same reader is a uniqueness
// conflict.
func (r *PGRepository) Create(ctx context.Context, review *Review) error {
	const query = `
		INSERT INTO reviews (series_id, user_id, content, has_spoiler, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW(), NOW())
		RETURNING id, created_at, updated_at`
	err := r.pool.QueryRow(ctx, query, review.SeriesID, review.UserID, review.Content, review.HasSpoiler).
		Scan(&review.ID, &review.CreatedAt, &review.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			switch pgErr.Code {
			case "23505":
				return shared.ErrDuplicate
			case "23503":
				return shared.ErrNotFound
			}
		}
		return err
	}
	return nil
}

// Update rewrites a live review.
func (r *PGRepository) Update(ctx context.Context, id int64, content string, hasSpoiler bool) error {
	const query = `UPDATE reviews SET content = $2, has_spoiler = $3, updated_at = NOW() WHERE id = $1 AND deleted_at IS NULL`
	tag, err := r.pool.Exec(ctx, query, id, content, hasSpoiler)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// SoftDelete removes a review from every listing. Already-removed
// reviews are left untouched so the operation is idempotent.
func (r *PGRepository) SoftDelete(ctx context.Context, id int64) error {
	const query = `UPDATE reviews SET deleted_at = NOW(), updated_at = NOW() WHERE id = $1 AND deleted_at IS NULL`
	_, err := r.pool.Exec(ctx, query, id)
	return err
}

var _ Repository = (*PGRepository)(nil)
