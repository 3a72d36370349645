package reports

import "context"

// Repository defines persistence operations for reports.
type Repository interface {
	Create(ctx context.Context, report *Report) error
	Find(ctx context.Context, id int64) (*Report, error)
	List(ctx context.Context, filters Filters, offset, limit int) ([]Report, error)
	// SetStatus writes the report's status, notes and reviewer fields.
	SetStatus(ctx context.Context, report *Report) error
	// TargetExists reports whether the entity a report points at is real.
	TargetExists(ctx context.Context, t ReportType, entityID int64) (bool, error)
}
