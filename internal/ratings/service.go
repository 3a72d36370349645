package ratings

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/chapterhouse/chapterhouse/internal/tagcache"
)

func seriesTag(seriesID int64) string { return fmt.Sprintf("ratings:series:%d", seriesID) }

// Service implements rating reads and writes. Summaries are cached per
// series; every write invalidates its series' summary.
type Service struct {
	repo   Repository
	cache  *tagcache.Cache
	ttl    tagcache.TTLSet
	logger *slog.Logger
}

// NewService constructs the ratings service.
func NewService(repo Repository, cache *tagcache.Cache, ttl tagcache.TTLSet, logger *slog.Logger) *Service {
	return &Service{repo: repo, cache: cache, ttl: ttl, logger: logger}
}

// Rate writes the reader's score for a series. It reports whether the
// score was new rather than a replacement.
func (s *Service) Rate(ctx context.Context, userID int64, in RatingInput) (*Rating, bool, error) {
	rating := &Rating{SeriesID: in.SeriesID, UserID: userID, Value: in.Value}
	created, err := s.repo.Upsert(ctx, rating)
	if err != nil {
		return nil, false, err
	}
	s.cache.Invalidate(seriesTag(in.SeriesID))
	return rating, created, nil
}

// Unrate withdraws the reader's score and returns the removed rating's id.
func (s *Service) Unrate(ctx context.Context, seriesID, userID int64) (int64, error) {
	id, err := s.repo.Delete(ctx, seriesID, userID)
	if err != nil {
		return 0, err
	}
	s.cache.Invalidate(seriesTag(seriesID))
	return id, nil
}

// Summary returns the series' aggregate score, served from cache when live.
func (s *Service) Summary(ctx context.Context, seriesID int64) (Summary, error) {
	key := fmt.Sprintf("ratings:series:%d:summary", seriesID)
	value, err := s.cache.GetOrCompute(ctx, key, []string{seriesTag(seriesID)}, s.ttl.Medium, func(ctx context.Context) (any, error) {
		return s.repo.Summarize(ctx, seriesID)
	})
	if err != nil {
		return Summary{}, err
	}
	return value.(Summary), nil
}
