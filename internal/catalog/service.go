package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"github.com/chapterhouse/chapterhouse/internal/tagcache"
)

const (
	defaultPageSize = 20
	maxPageSize     = 50
)

const tagSeriesList = "series:list"

func seriesTag(id int64) string   { return fmt.Sprintf("series:%d", id) }
func chaptersTag(id int64) string { return fmt.Sprintf("chapters:series:%d", id) }

// Service implements catalog reads and writes. Reads past the first
// page go through the tag cache; the first page of any listing is always
// computed fresh so a new publication is visible immediately.
type Service struct {
	repo   Repository
	cache  *tagcache.Cache
	ttl    tagcache.TTLSet
	logger *slog.Logger
	now    func() time.Time
}

// NewService constructs the catalog service.
func NewService(repo Repository, cache *tagcache.Cache, ttl tagcache.TTLSet, logger *slog.Logger) *Service {
	return &Service{repo: repo, cache: cache, ttl: ttl, logger: logger, now: time.Now}
}

func clampPage(page, size int) (int, int) {
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = defaultPageSize
	}
	if size > maxPageSize {
		size = maxPageSize
	}
	return page, size
}

// ListSeries returns one window of the catalog listing.
func (s *Service) ListSeries(ctx context.Context, filter SeriesFilter, page, size int) (Page[Series], error) {
	page, size = clampPage(page, size)
	compute := func(ctx context.Context) (any, error) {
		rows, err := s.repo.ListSeries(ctx, filter, (page-1)*size, size+1)
		if err != nil {
			return nil, err
		}
		return windowOf(rows, page, size), nil
	}

	if page == 1 {
		value, err := compute(ctx)
		if err != nil {
			return Page[Series]{}, err
		}
		return value.(Page[Series]), nil
	}

	key := fmt.Sprintf("series:list:p%d:s%d:g=%s:st=%s", page, size, filter.Genre, filter.Status)
	value, err := s.cache.GetOrCompute(ctx, key, []string{tagSeriesList}, s.ttl.Short, compute)
	if err != nil {
		return Page[Series]{}, err
	}
	return value.(Page[Series]), nil
}

// GetSeries returns one series, served from cache when live.
func (s *Service) GetSeries(ctx context.Context, id int64) (*Series, error) {
	key := fmt.Sprintf("series:%d", id)
	value, err := s.cache.GetOrCompute(ctx, key, []string{seriesTag(id)}, s.ttl.Medium, func(ctx context.Context) (any, error) {
		return s.repo.FindSeries(ctx, id)
	})
	if err != nil {
		return nil, err
	}
	return value.(*Series), nil
}

// CreateSeries publishes a new series owned by authorID.
func (s *Service) CreateSeries(ctx context.Context, authorID int64, in SeriesInput) (*Series, error) {
	status := in.Status
	if status == "" {
		status = StatusOngoing
	}
	series := &Series{
		Title:    strings.TrimSpace(in.Title),
		Slug:     Slugify(in.Title),
		Synopsis: strings.TrimSpace(in.Synopsis),
		Genre:    strings.TrimSpace(in.Genre),
		Status:   status,
		CoverURL: in.CoverURL,
		AuthorID: authorID,
	}
	if err := s.repo.CreateSeries(ctx, series); err != nil {
		return nil, err
	}
	s.cache.Invalidate(tagSeriesList)
	return series, nil
}

// UpdateSeries applies input to a fetched series. The argument may be a
// cache-shared record, so a copy is mutated and persisted instead.
func (s *Service) UpdateSeries(ctx context.Context, current *Series, in SeriesInput) (*Series, error) {
	updated := *current
	updated.Title = strings.TrimSpace(in.Title)
	updated.Synopsis = strings.TrimSpace(in.Synopsis)
	updated.Genre = strings.TrimSpace(in.Genre)
	if in.Status != "" {
		updated.Status = in.Status
	}
	if in.CoverURL != "" {
		updated.CoverURL = in.CoverURL
	}
	if err := s.repo.UpdateSeries(ctx, &updated); err != nil {
		return nil, err
	}
	s.cache.Invalidate(tagSeriesList, seriesTag(updated.ID))
	return &updated, nil
}

// DeleteSeries removes a series and everything cached under it.
func (s *Service) DeleteSeries(ctx context.Context, id int64) error {
	if err := s.repo.DeleteSeries(ctx, id); err != nil {
		return err
	}
	s.cache.Invalidate(tagSeriesList, seriesTag(id), chaptersTag(id))
	return nil
}

// ListChapters returns one window of a series' chapters.
func (s *Service) ListChapters(ctx context.Context, seriesID int64, page, size int) (Page[Chapter], error) {
	page, size = clampPage(page, size)
	compute := func(ctx context.Context) (any, error) {
		rows, err := s.repo.ListChapters(ctx, seriesID, (page-1)*size, size+1)
		if err != nil {
			return nil, err
		}
		return windowOf(rows, page, size), nil
	}

	if page == 1 {
		value, err := compute(ctx)
		if err != nil {
			return Page[Chapter]{}, err
		}
		return value.(Page[Chapter]), nil
	}

	key := fmt.Sprintf("series:%d:chapters:p%d:s%d", seriesID, page, size)
	value, err := s.cache.GetOrCompute(ctx, key, []string{seriesTag(seriesID), chaptersTag(seriesID)}, s.ttl.Short, compute)
	if err != nil {
		return Page[Chapter]{}, err
	}
	return value.(Page[Chapter]), nil
}

// GetChapter returns one chapter. Entitlement gating happens in the
// handler; the cached record is shared across principals.
func (s *Service) GetChapter(ctx context.Context, seriesID, chapterID int64) (*Chapter, error) {
	key := fmt.Sprintf("series:%d:chapter:%d", seriesID, chapterID)
	value, err := s.cache.GetOrCompute(ctx, key, []string{seriesTag(seriesID), chaptersTag(seriesID)}, s.ttl.Medium, func(ctx context.Context) (any, error) {
		return s.repo.FindChapter(ctx, seriesID, chapterID)
	})
	if err != nil {
		return nil, err
	}
	return value.(*Chapter), nil
}

// CreateChapter appends a chapter to a series.
func (s *Service) CreateChapter(ctx context.Context, seriesID int64, in ChapterInput) (*Chapter, error) {
	chapter := &Chapter{
		SeriesID:    seriesID,
		Number:      in.Number,
		Title:       strings.TrimSpace(in.Title),
		ContentURL:  in.ContentURL,
		EarlyAccess: in.EarlyAccess,
		PublishedAt: s.now(),
	}
	if err := s.repo.CreateChapter(ctx, chapter); err != nil {
		return nil, err
	}
	s.cache.Invalidate(seriesTag(seriesID), chaptersTag(seriesID))
	return chapter, nil
}

func windowOf[T any](rows []T, page, size int) Page[T] {
	hasNext := len(rows) > size
	if hasNext {
		rows = rows[:size]
	}
	return Page[T]{Items: rows, Page: page, PageSize: size, HasNext: hasNext}
}

// Slugify derives a URL slug from a title. Titles are NFC-normalised
// first so visually identical titles produce the same slug.
func Slugify(title string) string {
	title = norm.NFC.String(strings.ToLower(strings.TrimSpace(title)))
	var b strings.Builder
	lastDash := true
	for _, r := range title {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastDash = false
		case !lastDash:
			b.WriteByte('-')
			lastDash = true
		}
	}
	return strings.Trim(b.String(), "-")
}
