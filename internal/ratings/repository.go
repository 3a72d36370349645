package ratings

import "context"

// Repository defines persistence operations for ratings.
type Repository interface {
	// Upsert writes the rating, replacing the reader's previous score
	// for the series. It reports whether a new row was created.
	Upsert(ctx context.Context, rating *Rating) (bool, error)
	Delete(ctx context.Context, seriesID, userID int64) (int64, error)
	Summarize(ctx context.Context, seriesID int64) (Summary, error)
}
