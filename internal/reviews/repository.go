package reviews

import "context"

// Repository defines persistence operations for reviews. Removed
// reviews are invisible to every method.
type Repository interface {
	ListBySeries(ctx context.Context, seriesID int64, offset, limit int) ([]Review, error)
	Find(ctx context.Context, id int64) (*Review, error)
	Create(ctx context.Context, review *Review) error
	Update(ctx context.Context, id int64, content string, hasSpoiler bool) error
	SoftDelete(ctx context.Context, id int64) error
}
