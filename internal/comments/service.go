package comments

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

func threadTag(chapterID int64) string { return fmt.Sprintf("comments:chapter:%d", chapterID) }

// Service implements comment reads and writes. Thread pages past the
// first go through the tag cache; every write invalidates its thread.
type Service struct {
	repo   Repository
	cache  *tagcache.Cache
	ttl    tagcache.TTLSet
	logger *slog.Logger
}

// NewService constructs the comments service.
func NewService(repo Repository, cache *tagcache.Cache, ttl tagcache.TTLSet, logger *slog.Logger) *Service {
	return &Service{repo: repo, cache: cache, ttl: ttl, logger: logger}
}

// ListThread returns one window of a chapter's comments. Tombstoned
// comments keep their place but carry no body.
func (s *Service) ListThread(ctx context.Context, chapterID int64, page, size int) (Page, error) {
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
		rows, err := s.repo.ListByChapter(ctx, chapterID, (page-1)*size, size+1)
		if err != nil {
			return nil, err
		}
		hasNext := len(rows) > size
		if hasNext {
			rows = rows[:size]
		}
		for i := range rows {
			if rows[i].Deleted {
				rows[i].Body = ""
			}
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

	key := fmt.Sprintf("comments:chapter:%d:p%d:s%d", chapterID, page, size)
	value, err := s.cache.GetOrCompute(ctx, key, []string{threadTag(chapterID)}, s.ttl.Short, compute)
	if err != nil {
		return Page{}, err
	}
	return value.(Page), nil
}

// Get fetches one comment.
func (s *Service) Get(ctx context.Context, id int64) (*Comment, error) {
	return s.repo.Find(ctx, id)
}

// Post appends a comment to a chapter's thread.
func (s *Service) Post(ctx context.Context, chapterID, authorID int64, in CommentInput) (*Comment, error) {
	comment := &Comment{
		ChapterID: chapterID,
		AuthorID:  authorID,
		Body:      strings.TrimSpace(in.Body),
	}
	if err := s.repo.Create(ctx, comment); err != nil {
		return nil, err
	}
	s.cache.Invalidate(threadTag(chapterID))
	return comment, nil
}

// Edit rewrites a comment's body.
func (s *Service) Edit(ctx context.Context, comment *Comment, in CommentInput) error {
	if err := s.repo.UpdateBody(ctx, comment.ID, strings.TrimSpace(in.Body)); err != nil {
		return err
	}
	s.cache.Invalidate(threadTag(comment.ChapterID))
	return nil
}

// Remove tombstones a comment.
func (s *Service) Remove(ctx context.Context, comment *Comment) error {
	if err := s.repo.SoftDelete(ctx, comment.ID); err != nil {
		return err
	}
	s.cache.Invalidate(threadTag(comment.ChapterID))
	return nil
}

// Like records one user's like on a comment.
func (s *Service) Like(ctx context.Context, comment *Comment, userID int64) error {
	if err := s.repo.Like(ctx, comment.ID, userID); err != nil {
		return err
	}
	s.cache.Invalidate(threadTag(comment.ChapterID))
	return nil
}

// Unlike withdraws one user's like from a comment.
func (s *Service) Unlike(ctx context.Context, comment *Comment, userID int64) error {
	if err := s.repo.Unlike(ctx, comment.ID, userID); err != nil {
		return err
	}
	s.cache.Invalidate(threadTag(comment.ChapterID))
	return nil
}
