package catalog

import "context"

// SeriesFilter narrows series listings.
type SeriesFilter struct {
	Genre  string
	Status string
}

// Repository defines persistence operations for the catalog.
type Repository interface {
	ListSeries(ctx context.Context, filter SeriesFilter, offset, limit int) ([]Series, error)
	FindSeries(ctx context.Context, id int64) (*Series, error)
	CreateSeries(ctx context.Context, s *Series) error
	UpdateSeries(ctx context.Context, s *Series) error
	DeleteSeries(ctx context.Context, id int64) error

	ListChapters(ctx context.Context, seriesID int64, offset, limit int) ([]Chapter, error)
	FindChapter(ctx context.Context, seriesID, chapterID int64) (*Chapter, error)
	CreateChapter(ctx context.Context, c *Chapter) error
}
