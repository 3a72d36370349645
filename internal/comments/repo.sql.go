package comments

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/chapterhouse/chapterhouse/internal/platform/db"
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

const commentColumns = `c.id, c.chapter_id, c.author_id, u.username, c.body, c.likes_count, c.deleted_at IS NOT NULL, c.created_at, c.updated_at`

func scanComment(row pgx.Row, c *Comment) error {
	return row.Scan(&c.ID, &c.ChapterID, &c.AuthorID, &c.Author, &c.Body, &c.Likes, &c.Deleted, &c.CreatedAt, &c.UpdatedAt)
}

// ListByChapter returns one window of the thread, oldest first.
func (r *PGRepository) ListByChapter(ctx context.Context, chapterID int64, offset, limit int) ([]Comment, error) {
	const query = `
		SELECT ` + commentColumns + `
		FROM comments c
		JOIN users u ON u.id = c.author_id
		WHERE c.chapter_id = $1
		ORDER BY c.created_at ASC, c.id ASC
		OFFSET $2 LIMIT $3`
	rows, err := r.pool.Query(ctx, query, chapterID, offset, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Comment
	for rows.Next() {
		var c Comment
		if err := scanComment(rows, &c); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Find fetches one comment by id, deleted or not.
func (r *PGRepository) Find(ctx context.Context, id int64) (*Comment, error) {
	const query = `
		SELECT ` + commentColumns + `
		FROM comments c
		JOIN users u ON u.id = c.author_id
		WHERE c.id = $1`
	var c Comment
	if err := scanComment(r.pool.QueryRow(ctx, query, id), &c); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

// Create inserts a comment and fills in its id and timestamps.
func (r *PGRepository) Create(ctx context.Context, c *Comment) error {
	const query = `
		INSERT INTO comments (chapter_id, author_id, body, likes_count, created_at, updated_at)
		VALUES ($1, $2, $3, 0, NOW(), NOW())
		RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, query, c.ChapterID, c.AuthorID, c.Body).Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
}

// UpdateBody rewrites the body of a live comment.
func (r *PGRepository) UpdateBody(ctx context.Context, id int64, body string) error {
	const query = `UPDATE comments SET body = $2, updated_at = NOW() WHERE id = $1 AND deleted_at IS NULL`
	tag, err := r.pool.Exec(ctx, query, id, body)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// SoftDelete tombstones a comment. Already-deleted comments are left
// untouched so the operation is idempotent.
func (r *PGRepository) SoftDelete(ctx context.Context, id int64) error {
	const query = `UPDATE comments SET deleted_at = NOW(), updated_at = NOW() WHERE id = $1 AND deleted_at IS NULL`
	_, err := r.pool.Exec(ctx, query, id)
	return err
}

// Like records one user's like. A second like from the same user is a
// uniqueness conflict. The insert and the counter bump commit together.
func (r *PGRepository) Like(ctx context.Context, commentID, userID int64) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `INSERT INTO comment_likes (comment_id, user_id, created_at) VALUES ($1, $2, NOW())`, commentID, userID); err != nil {
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
		_, err := tx.Exec(ctx, `UPDATE comments SET likes_count = likes_count + 1 WHERE id = $1`, commentID)
		return err
	})
}

// Unlike removes one user's like when present.
func (r *PGRepository) Unlike(ctx context.Context, commentID, userID int64) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `DELETE FROM comment_likes WHERE comment_id = $1 AND user_id = $2`, commentID, userID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return shared.ErrNotFound
		}
		_, err = tx.Exec(ctx, `UPDATE comments SET likes_count = GREATEST(likes_count - 1, 0) WHERE id = $1`, commentID)
		return err
	})
}

var _ Repository = (*PGRepository)(nil)
