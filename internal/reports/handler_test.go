package reports_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	auditpkg "github.com/chapterhouse/chapterhouse/internal/audit"
	"github.com/chapterhouse/chapterhouse/internal/identity"
	"github.com/chapterhouse/chapterhouse/internal/policy"
	"github.com/chapterhouse/chapterhouse/internal/reports"
	"github.com/chapterhouse/chapterhouse/internal/shared"
	"github.com/chapterhouse/chapterhouse/internal/throttle"
	_ "github.com/chapterhouse/chapterhouse/testing"
)

type memRepo struct {
	mu      sync.Mutex
	rows    map[int64]*reports.Report
	targets map[string]bool
	nextID  int64
}

func newMemRepo() *memRepo {
	return &memRepo{rows: make(map[int64]*reports.Report), targets: make(map[string]bool), nextID: 1}
}

func targetKey(t reports.ReportType, entityID int64) string {
	return fmt.Sprintf("%s:%d", t, entityID)
}

func (m *memRepo) seedTarget(t reports.ReportType, entityID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.targets[targetKey(t, entityID)] = true
}

func (m *memRepo) Create(ctx context.Context, report *reports.Report) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	report.ID = m.nextID
	m.nextID++
	report.CreatedAt = time.Now()
	report.UpdatedAt = report.CreatedAt
	copied := *report
	m.rows[report.ID] = &copied
	return nil
}

func (m *memRepo) Find(ctx context.Context, id int64) (*reports.Report, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rp, ok := m.rows[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	copied := *rp
	return &copied, nil
}

func (m *memRepo) List(ctx context.Context, filters reports.Filters, offset, limit int) ([]reports.Report, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var all []reports.Report
	for _, rp := range m.rows {
		if filters.Status != "" && rp.Status != filters.Status {
			continue
		}
		if filters.Type != "" && rp.Type != filters.Type {
			continue
		}
		all = append(all, *rp)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID > all[j].ID })
	if offset >= len(all) {
		return nil, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], nil
}

func (m *memRepo) SetStatus(ctx context.Context, report *reports.Report) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.rows[report.ID]
	if !ok {
		return shared.ErrNotFound
	}
	stored.Status = report.Status
	stored.Notes = report.Notes
	stored.ReviewedBy = report.ReviewedBy
	stored.ReviewedAt = report.ReviewedAt
	stored.UpdatedAt = time.Now()
	return nil
}

func (m *memRepo) TargetExists(ctx context.Context, t reports.ReportType, entityID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.targets[targetKey(t, entityID)], nil
}

type memStore struct {
	records []auditpkg.Record
}

func (m *memStore) Insert(ctx context.Context, rec auditpkg.Record) error {
	m.records = append(m.records, rec)
	return nil
}

type fixture struct {
	repo      *memRepo
	store     *memStore
	router    chi.Router
	principal *identity.Principal
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := slog.New(slog.DiscardHandler)
	repo := newMemRepo()
	store := &memStore{}
	service := reports.NewService(repo, logger)
	limiter := throttle.NewLimiter(throttle.Limits{
		throttle.ClassGeneral: {Max: 30, Window: time.Minute},
	}, logger)

	f := &fixture{repo: repo, store: store}

	handler := reports.NewHandler(service, policy.NewAuthorizer(), limiter, auditpkg.NewRecorder(store, nil, logger), logger)
	router := chi.NewRouter()
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if f.principal != nil {
				ctx = identity.ContextWithPrincipal(ctx, f.principal)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	})
	handler.MountRoutes(router)
	f.router = router
	return f
}

func (f *fixture) as(p *identity.Principal) { f.principal = p }

func (f *fixture) do(method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	req.RemoteAddr = "203.0.113.7:44000"
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func user(id int64) *identity.Principal {
	return &identity.Principal{ID: id, Username: fmt.Sprintf("user%d", id), Role: identity.RoleUser, Tier: identity.TierFree}
}

func moderator(id int64) *identity.Principal {
	return &identity.Principal{ID: id, Username: "mod", Role: identity.RoleModerator, Tier: identity.TierFree}
}

func TestFileReportRequiresAuth(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodPost, "/reports", `{"type":"COMMENT","entity_id":1,"reason":"spam"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestFileReportAgainstMissingEntity(t *testing.T) {
	f := newFixture(t)
	f.as(user(5))

	rec := f.do(http.MethodPost, "/reports", `{"type":"COMMENT","entity_id":404,"reason":"spam"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestFileReportCreatesAndAudits(t *testing.T) {
	f := newFixture(t)
	f.repo.seedTarget(reports.TypeComment, 7)
	f.as(user(5))

	rec := f.do(http.MethodPost, "/reports", `{"type":"COMMENT","entity_id":7,"reason":"spam","description":"same link in every thread"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var rp reports.Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rp))
	assert.Equal(t, int64(5), rp.ReporterID)
	assert.Equal(t, reports.StatusPending, rp.Status)

	require.Len(t, f.store.records, 1)
	assert.Equal(t, auditpkg.ActionCreate, f.store.records[0].Action)
	assert.Equal(t, "REPORT", f.store.records[0].EntityType)
}

func TestFileReportRejectsUnknownType(t *testing.T) {
	f := newFixture(t)
	f.as(user(5))

	rec := f.do(http.MethodPost, "/reports", `{"type":"TAG","entity_id":1,"reason":"spam"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestQueueVisibleFromModeratorUp(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodGet, "/reports", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	f.as(user(5))
	rec = f.do(http.MethodGet, "/reports", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	f.as(moderator(9))
	rec = f.do(http.MethodGet, "/reports", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestQueueFiltersAndPages(t *testing.T) {
	f := newFixture(t)
	f.repo.seedTarget(reports.TypeComment, 1)
	f.repo.seedTarget(reports.TypeSeries, 2)

	f.as(user(5))
	for i := 0; i < 3; i++ {
		rec := f.do(http.MethodPost, "/reports", `{"type":"COMMENT","entity_id":1,"reason":"spam"}`)
		require.Equal(t, http.StatusCreated, rec.Code)
	}
	rec := f.do(http.MethodPost, "/reports", `{"type":"SERIES","entity_id":2,"reason":"stolen art"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	f.as(moderator(9))
	rec = f.do(http.MethodGet, "/reports?type=COMMENT", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var window reports.Page
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &window))
	assert.Len(t, window.Items, 3)

	rec = f.do(http.MethodGet, "/reports?page_size=2", "")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &window))
	assert.Len(t, window.Items, 2)
	assert.True(t, window.HasNext)
}

func TestResolveReport(t *testing.T) {
	f := newFixture(t)
	f.repo.seedTarget(reports.TypeComment, 1)

	f.as(user(5))
	rec := f.do(http.MethodPost, "/reports", `{"type":"COMMENT","entity_id":1,"reason":"spam"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	var filed reports.Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &filed))

	// The reporter cannot work the queue.
	rec = f.do(http.MethodPatch, fmt.Sprintf("/reports/%d", filed.ID), `{"status":"RESOLVED"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	f.as(moderator(9))
	rec = f.do(http.MethodPatch, fmt.Sprintf("/reports/%d", filed.ID), `{"status":"RESOLVED","notes":"comment removed"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resolved reports.Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resolved))
	assert.Equal(t, reports.StatusResolved, resolved.Status)
	require.NotNil(t, resolved.ReviewedBy)
	assert.Equal(t, int64(9), *resolved.ReviewedBy)
	assert.NotNil(t, resolved.ReviewedAt)

	last := f.store.records[len(f.store.records)-1]
	assert.Equal(t, auditpkg.ActionUpdate, last.Action)
	assert.Equal(t, "RESOLVED", last.Details["status"])

	// The stored row carries the moderator's notes.
	stored, err := f.repo.Find(context.Background(), filed.ID)
	require.NoError(t, err)
	assert.Equal(t, "comment removed", stored.Notes)
}

func TestResolveMissingReport(t *testing.T) {
	f := newFixture(t)
	f.as(moderator(9))

	rec := f.do(http.MethodPatch, "/reports/404", `{"status":"DISMISSED"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestResolveRejectsUnknownStatus(t *testing.T) {
	f := newFixture(t)
	f.repo.seedTarget(reports.TypeComment, 1)

	f.as(user(5))
	rec := f.do(http.MethodPost, "/reports", `{"type":"COMMENT","entity_id":1,"reason":"spam"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	var filed reports.Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &filed))

	f.as(moderator(9))
	rec = f.do(http.MethodPatch, fmt.Sprintf("/reports/%d", filed.ID), `{"status":"SHREDDED"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}
