package reports

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
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

const reportColumns = `id, reporter_id, type, entity_id, reason, description, status, notes, reviewed_by, reviewed_at, created_at, updated_at`

func scanReport(row pgx.Row, rp *Report) error {
	return row.Scan(&rp.ID, &rp.ReporterID, &rp.Type, &rp.EntityID, &rp.Reason, &rp.Description,
		&rp.Status, &rp.Notes, &rp.ReviewedBy, &rp.ReviewedAt, &rp.CreatedAt, &rp.UpdatedAt)
}

// Create files a report in PENDING state.
func (r *PGRepository) Create(ctx context.Context, report *Report) error {
	const query = `
		INSERT INTO reports (reporter_id, type, entity_id, reason, description, status, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, '', NOW(), NOW())
		RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, query, report.ReporterID, report.Type, report.EntityID, report.Reason, report.Description, StatusPending).
		Scan(&report.ID, &report.CreatedAt, &report.UpdatedAt)
}

// Find fetches one report by id.
func (r *PGRepository) Find(ctx context.Context, id int64) (*Report, error) {
	const query = `SELECT ` + reportColumns + ` FROM reports WHERE id = $1`
	var rp Report
	if err := scanReport(r.pool.QueryRow(ctx, query, id), &rp); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &rp, nil
}

// List returns one window of the queue, newest first. Empty filter
// fields match everything.
func (r *PGRepository) List(ctx context.Context, filters Filters, offset, limit int) ([]Report, error) {
	const query = `
		SELECT ` + reportColumns + `
		FROM reports
		WHERE ($1 = '' OR status = $1) AND ($2 = '' OR type = $2)
		ORDER BY created_at DESC, id DESC
		OFFSET $3 LIMIT $4`
	rows, err := r.pool.Query(ctx, query, string(filters.Status), string(filters.Type), offset, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Report
	for rows.Next() {
		var rp Report
		if err := scanReport(rows, &rp); err != nil {
			return nil, err
		}
		out = append(out, rp)
	}
	return out, rows.Err()
}

// SetStatus writes the lifecycle fields of an existing report.
func (r *PGRepository) SetStatus(ctx context.Context, report *Report) error {
	const query = `
		UPDATE reports
		SET status = $2, notes = $3, reviewed_by = $4, reviewed_at = $5, updated_at = NOW()
		WHERE id = $1`
	tag, err := r.pool.Exec(ctx, query, report.ID, report.Status, report.Notes, report.ReviewedBy, report.ReviewedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// TargetExists checks the table behind the report type for the entity.
// Reported comments may already be tombstoned, so comments are looked
// up without the deletion filter.
func (r *PGRepository) TargetExists(ctx context.Context, t ReportType, entityID int64) (bool, error) {
	var query string
	switch t {
	case TypeComment:
		query = `SELECT EXISTS (SELECT 1 FROM comments WHERE id = $1)`
	case TypeSeries:
		query = `SELECT EXISTS (SELECT 1 FROM series WHERE id = $1)`
	case TypeChapter:
		query = `SELECT EXISTS (SELECT 1 FROM chapters WHERE id = $1)`
	case TypeUser:
		query = `SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`
	default:
		return false, fmt.Errorf("unknown report type %q", t)
	}
	var exists bool
	if err := r.pool.QueryRow(ctx, query, entityID).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

var _ Repository = (*PGRepository)(nil)
