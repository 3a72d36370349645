package catalog

import (
	"context"
	"errors"
	"fmt"

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

const seriesColumns = `id, title, slug, synopsis, genre, status, COALESCE(cover_url, ''), author_id, created_at, updated_at`

func scanSeries(row pgx.Row, s *Series) error {
	return row.Scan(&s.ID, &s.Title, &s.Slug, &s.Synopsis, &s.Genre, &s.Status, &s.CoverURL, &s.AuthorID, &s.CreatedAt, &s.UpdatedAt)
}

// ListSeries returns one window of the series listing, newest first.
func (r *PGRepository) ListSeries(ctx context.Context, filter SeriesFilter, offset, limit int) ([]Series, error) {
	query := `SELECT ` + seriesColumns + ` FROM series`
	args := []any{}
	conds := []string{}
	if filter.Genre != "" {
		args = append(args, filter.Genre)
		conds = append(conds, fmt.Sprintf("genre = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}
	for i, cond := range conds {
		if i == 0 {
			query += " WHERE " + cond
		} else {
			query += " AND " + cond
		}
	}
	args = append(args, offset, limit)
	query += fmt.Sprintf(" ORDER BY created_at DESC, id DESC OFFSET $%d LIMIT $%d", len(args)-1, len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Series
	for rows.Next() {
		var s Series
		if err := scanSeries(rows, &s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// FindSeries fetches one series by id.
func (r *PGRepository) FindSeries(ctx context.Context, id int64) (*Series, error) {
	var s Series
	err := scanSeries(r.pool.QueryRow(ctx, `SELECT `+seriesColumns+` FROM series WHERE id = $1`, id), &s)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &s, nil
}

// CreateSeries inserts a series and fills in its id and timestamps.
func (r *PGRepository) CreateSeries(ctx context.Context, s *Series) error {
	const query = `
		INSERT INTO series (title, slug, synopsis, genre, status, cover_url, author_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7, NOW(), NOW())
		RETURNING id, created_at, updated_at`
	err := r.pool.QueryRow(ctx, query, s.Title, s.Slug, s.Synopsis, s.Genre, s.Status, s.CoverURL, s.AuthorID).
		Scan(&s.ID, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return shared.ErrDuplicate
		}
		return err
	}
	return nil
}

// UpdateSeries rewrites the mutable columns of a series.
func (r *PGRepository) UpdateSeries(ctx context.Context, s *Series) error {
	const query = `
		UPDATE series
		SET title = $2, synopsis = $3, genre = $4, status = $5, cover_url = NULLIF($6, ''), updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`
	err := r.pool.QueryRow(ctx, query, s.ID, s.Title, s.Synopsis, s.Genre, s.Status, s.CoverURL).Scan(&s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return shared.ErrNotFound
	}
	return err
}

// DeleteSeries removes a series and, via cascade, its chapters.
func (r *PGRepository) DeleteSeries(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM series WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

const chapterColumns = `id, series_id, number, title, COALESCE(content_url, ''), early_access, published_at, created_at, updated_at`

func scanChapter(row pgx.Row, c *Chapter) error {
	return row.Scan(&c.ID, &c.SeriesID, &c.Number, &c.Title, &c.ContentURL, &c.EarlyAccess, &c.PublishedAt, &c.CreatedAt, &c.UpdatedAt)
}

// ListChapters returns one window of a series' chapters in reading order.
func (r *PGRepository) ListChapters(ctx context.Context, seriesID int64, offset, limit int) ([]Chapter, error) {
	const query = `SELECT ` + chapterColumns + ` FROM chapters WHERE series_id = $1 ORDER BY number ASC OFFSET $2 LIMIT $3`
	rows, err := r.pool.Query(ctx, query, seriesID, offset, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Chapter
	for rows.Next() {
		var c Chapter
		if err := scanChapter(rows, &c); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// FindChapter fetches one chapter scoped to its series.
func (r *PGRepository) FindChapter(ctx context.Context, seriesID, chapterID int64) (*Chapter, error) {
	var c Chapter
	err := scanChapter(r.pool.QueryRow(ctx, `SELECT `+chapterColumns+` FROM chapters WHERE series_id = $1 AND id = $2`, seriesID, chapterID), &c)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

// CreateChapter inserts a chapter and fills in its id and timestamps.
func (r *PGRepository) CreateChapter(ctx context.Context, c *Chapter) error {
	const query = `
		INSERT INTO chapters (series_id, number, title, content_url, early_access, published_at, created_at, updated_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, NOW(), NOW())
		RETURNING id, created_at, updated_at`
	err := r.pool.QueryRow(ctx, query, c.SeriesID, c.Number, c.Title, c.ContentURL, c.EarlyAccess, c.PublishedAt).
		Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return shared.ErrDuplicate
		}
		return err
	}
	return nil
}

var _ Repository = (*PGRepository)(nil)
