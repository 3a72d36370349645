package audit

import (
	"context"
	"fmt"
)

// TimelineReader is the read side of the ledger store.
type TimelineReader interface {
	TimelineWindow(ctx context.Context, f TimelineFilters, offset, limit int) ([]Record, error)
}

// PagingInfo describes a timeline page.
type PagingInfo struct {
	Page     int
	PageSize int
	HasNext  bool
	PrevPage int
	NextPage int
}

// Result bundles timeline rows with paging information.
type Result struct {
	Rows   []Record
	Paging PagingInfo
}

// Timeline serves paged reads over the ledger for moderation review.
type Timeline struct {
	reader TimelineReader
}

// NewTimeline constructs the timeline read service.
func NewTimeline(reader TimelineReader) *Timeline {
	return &Timeline{reader: reader}
}

// Window fetches one page of ledger records matching the filters.
func (t *Timeline) Window(ctx context.Context, filters TimelineFilters) (Result, error) {
	if t.reader == nil {
		return Result{}, fmt.Errorf("audit: timeline reader not configured")
	}
	pageSize := filters.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > 50 {
		pageSize = 50
	}
	page := filters.Page
	if page <= 0 {
		page = 1
	}
	offset := (page - 1) * pageSize

	rows, err := t.reader.TimelineWindow(ctx, filters, offset, pageSize+1)
	if err != nil {
		return Result{}, err
	}
	hasNext := len(rows) > pageSize
	if hasNext {
		rows = rows[:pageSize]
	}
	paging := PagingInfo{Page: page, PageSize: pageSize, HasNext: hasNext}
	if page > 1 {
		paging.PrevPage = page - 1
	}
	if hasNext {
		paging.NextPage = page + 1
	}
	return Result{Rows: rows, Paging: paging}, nil
}
