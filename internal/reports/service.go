package reports

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/chapterhouse/chapterhouse/internal/shared"
)

const (
	defaultPageSize = 20
	maxPageSize     = 50
)

// Service implements report filing and the moderation queue. The queue
// is never cached; moderators always see the live state.
type Service struct {
	repo   Repository
	logger *slog.Logger
	now    func() time.Time
}

// NewService constructs the reports service.
func NewService(repo Repository, logger *slog.Logger) *Service {
	return &Service{repo: repo, logger: logger, now: time.Now}
}

// File records a complaint against an existing entity.
func (s *Service) File(ctx context.Context, reporterID int64, in ReportInput) (*Report, error) {
	exists, err := s.repo.TargetExists(ctx, in.Type, in.EntityID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("%w: reported entity", shared.ErrNotFound)
	}

	report := &Report{
		ReporterID:  reporterID,
		Type:        in.Type,
		EntityID:    in.EntityID,
		Reason:      strings.TrimSpace(in.Reason),
		Description: strings.TrimSpace(in.Description),
		Status:      StatusPending,
	}
	if err := s.repo.Create(ctx, report); err != nil {
		return nil, err
	}
	return report, nil
}

// Get fetches one report.
func (s *Service) Get(ctx context.Context, id int64) (*Report, error) {
	return s.repo.Find(ctx, id)
}

// Queue returns one window of the moderation queue.
func (s *Service) Queue(ctx context.Context, filters Filters, page, size int) (Page, error) {
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = defaultPageSize
	}
	if size > maxPageSize {
		size = maxPageSize
	}

	rows, err := s.repo.List(ctx, filters, (page-1)*size, size+1)
	if err != nil {
		return Page{}, err
	}
	hasNext := len(rows) > size
	if hasNext {
		rows = rows[:size]
	}
	return Page{Items: rows, Page: page, PageSize: size, HasNext: hasNext}, nil
}

// Resolve moves a report through its lifecycle and stamps the reviewer.
func (s *Service) Resolve(ctx context.Context, report *Report, in StatusInput, reviewerID int64) error {
	now := s.now()
	report.Status = in.Status
	report.Notes = strings.TrimSpace(in.Notes)
	report.ReviewedBy = &reviewerID
	report.ReviewedAt = &now
	return s.repo.SetStatus(ctx, report)
}
