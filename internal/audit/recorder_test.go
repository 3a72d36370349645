package audit_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chapterhouse/chapterhouse/internal/audit"
	_ "github.com/chapterhouse/chapterhouse/testing"
)

type stubStore struct {
	records  []audit.Record
	failures int
}

func (s *stubStore) Insert(ctx context.Context, rec audit.Record) error {
	if s.failures > 0 {
		s.failures--
		return errors.New("insert failed")
	}
	s.records = append(s.records, rec)
	return nil
}

func (s *stubStore) TimelineWindow(ctx context.Context, f audit.TimelineFilters, offset, limit int) ([]audit.Record, error) {
	end := offset + limit
	if offset >= len(s.records) {
		return nil, nil
	}
	if end > len(s.records) {
		end = len(s.records)
	}
	return s.records[offset:end], nil
}

type stubEnqueuer struct {
	queued []audit.Record
	err    error
}

func (s *stubEnqueuer) EnqueueAuditRecord(ctx context.Context, rec audit.Record) error {
	if s.err != nil {
		return s.err
	}
	s.queued = append(s.queued, rec)
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func validRecord() audit.Record {
	return audit.Record{
		ActorID:    7,
		Action:     audit.ActionCreate,
		EntityType: "COMMENT",
		EntityID:   "101",
		Details:    map[string]any{"chapter_id": 33},
		IPAddress:  "203.0.113.9",
		UserAgent:  "test-agent",
	}
}

func TestRecordWritesOnce(t *testing.T) {
	store := &stubStore{}
	recorder := audit.NewRecorder(store, nil, discardLogger())

	err := recorder.Record(context.Background(), validRecord())
	require.NoError(t, err)
	require.Len(t, store.records, 1)
	assert.Equal(t, int64(7), store.records[0].ActorID)
	assert.False(t, store.records[0].CreatedAt.IsZero(), "timestamp stamped at record time")
}

func TestRecordRejectsIncomplete(t *testing.T) {
	store := &stubStore{}
	recorder := audit.NewRecorder(store, nil, discardLogger())

	err := recorder.Record(context.Background(), audit.Record{Action: audit.ActionCreate})
	assert.Error(t, err)
	assert.Empty(t, store.records)
}

func TestRecordRetriesTransientFailure(t *testing.T) {
	store := &stubStore{failures: 2}
	recorder := audit.NewRecorder(store, nil, discardLogger())

	err := recorder.Record(context.Background(), validRecord())
	require.NoError(t, err)
	assert.Len(t, store.records, 1)
}

func TestRecordFallsBackToQueue(t *testing.T) {
	store := &stubStore{failures: 10}
	queue := &stubEnqueuer{}
	recorder := audit.NewRecorder(store, queue, discardLogger())

	err := recorder.Record(context.Background(), validRecord())
	require.NoError(t, err, "queued records count as recorded")
	assert.Empty(t, store.records)
	require.Len(t, queue.queued, 1)
	assert.False(t, queue.queued[0].CreatedAt.IsZero(), "queued record keeps its issue-time timestamp")
}

func TestRecordReportsTotalFailure(t *testing.T) {
	store := &stubStore{failures: 10}
	queue := &stubEnqueuer{err: errors.New("queue down")}
	recorder := audit.NewRecorder(store, queue, discardLogger())

	err := recorder.Record(context.Background(), validRecord())
	assert.Error(t, err)
}

func TestTimelinePaging(t *testing.T) {
	store := &stubStore{}
	for i := 0; i < 25; i++ {
		rec := validRecord()
		rec.CreatedAt = time.Now().Add(time.Duration(-i) * time.Minute)
		store.records = append(store.records, rec)
	}
	timeline := audit.NewTimeline(store)

	result, err := timeline.Window(context.Background(), audit.TimelineFilters{Page: 1, PageSize: 20})
	require.NoError(t, err)
	assert.Len(t, result.Rows, 20)
	assert.True(t, result.Paging.HasNext)
	assert.Equal(t, 2, result.Paging.NextPage)

	result, err = timeline.Window(context.Background(), audit.TimelineFilters{Page: 2, PageSize: 20})
	require.NoError(t, err)
	assert.Len(t, result.Rows, 5)
	assert.False(t, result.Paging.HasNext)
	assert.Equal(t, 1, result.Paging.PrevPage)
}

func TestTimelineClampsPageSize(t *testing.T) {
	store := &stubStore{}
	timeline := audit.NewTimeline(store)

	result, err := timeline.Window(context.Background(), audit.TimelineFilters{Page: 0, PageSize: 500})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Paging.Page)
	assert.Equal(t, 50, result.Paging.PageSize)
}
