package reviews

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/chapterhouse/chapterhouse/internal/tagcache"
)

const (
	defaultPageSize = 20
	maxPageSize     = 50
)

func seriesTag(seriesID int64) string { return fmt.Sprintf("reviews:series:%d", seriesID) }

// Service implements review reads and writes. Listing pages past the
// first go through the tag cache; every write invalidates its series.
type Service struct {
	repo   Repository
	cache  *tagcache.Cache
	ttl    tagcache.TTLSet
	logger *slog.Logger
}

// NewService constructs the reviews service.
func NewService(repo Repository, cache *tagcache.Cache, ttl tagcache.TTLSet, logger *slog.Logger) *Service {
	return &Service{repo: repo, cache: cache, ttl: ttl, logger: logger}
}

// ListBySeries returns one window of a series' reviews.
func (s *Service) ListBySeries(ctx context.Context, seriesID int64, page, size int) (Page, error) {
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = defaultPageSize
	}
	if size > maxPageSize {
		size = maxPageSize
	}

	compute := func(ctx context.Context) (any, error) {
		rows, err := s.repo.ListBySeries(ctx, seriesID, (page-1)*size, size+1)
		if err != nil {
			return nil, err
		}
		hasNext := len(rows) > size
		if hasNext {
			rows = rows[:size]
		}
		return Page{Items: rows, Page: page, PageSize: size, HasNext: hasNext}, nil
	}

	if page == 1 {
		value, err := compute(ctx)
		if err != nil {
			return Page{}, err
		}
		return value.(Page), nil
	}

	key := fmt.Sprintf("reviews:series:%d:p%d:s%d", seriesID, page, size)
	value, err := s.cache.GetOrCompute(ctx, key, []string{seriesTag(seriesID)}, s.ttl.Short, compute)
	if err != nil {
		return Page{}, err
	}
	return value.(Page), nil
}

// Get fetches one live review.
func (s *Service) Get(ctx context.Context, id int64) (*Review, error) {
	return s.repo.Find(ctx, id)
}

// Publish writes a reader's review of a series.
func (s *Service) Publish(ctx context.Context, userID int64, in ReviewInput) (*Review, error) {
	review := &Review{
		SeriesID:   in.SeriesID,
		UserID:     userID,
		Content:    strings.TrimSpace(in.Content),
		HasSpoiler: in.HasSpoiler,
	}
	if err := s.repo.Create(ctx, review); err != nil {
		return nil, err
	}
	s.cache.Invalidate(seriesTag(in.SeriesID))
	return review, nil
}

// Revise rewrites a review's content.
func (s *Service) Revise(ctx context.Context, review *Review, in ReviewUpdate) error {
	if err := s.repo.Update(ctx, review.ID, strings.TrimSpace(in.Content), in.HasSpoiler); err != nil {
		return err
	}
	s.cache.Invalidate(seriesTag(review.SeriesID))
	return nil
}

// Remove takes a review out of circulation.
func (s *Service) Remove(ctx context.Context, review *Review) error {
	if err := s.repo.SoftDelete(ctx, review.ID); err != nil {
		return err
	}
	s.cache.Invalidate(seriesTag(review.SeriesID))
	return nil
}
