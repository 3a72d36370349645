package ratings_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	auditpkg "github.com/chapterhouse/chapterhouse/internal/audit"
	"github.com/chapterhouse/chapterhouse/internal/identity"
	"github.com/chapterhouse/chapterhouse/internal/policy"
	"github.com/chapterhouse/chapterhouse/internal/ratings"
	"github.com/chapterhouse/chapterhouse/internal/shared"
	"github.com/chapterhouse/chapterhouse/internal/tagcache"
	"github.com/chapterhouse/chapterhouse/internal/throttle"
	_ "github.com/chapterhouse/chapterhouse/testing"
)

type memRepo struct {
	mu     sync.Mutex
	rows   map[string]*ratings.Rating
	nextID int64
}

func newMemRepo() *memRepo {
	return &memRepo{rows: make(map[string]*ratings.Rating), nextID: 1}
}

func ratingKey(seriesID, userID int64) string { return fmt.Sprintf("%d:%d", seriesID, userID) }

func (m *memRepo) Upsert(ctx context.Context, rating *ratings.Rating) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := ratingKey(rating.SeriesID, rating.UserID)
	if existing, ok := m.rows[key]; ok {
		existing.Value = rating.Value
		existing.UpdatedAt = time.Now()
		*rating = *existing
		return false, nil
	}
	rating.ID = m.nextID
	m.nextID++
	rating.CreatedAt = time.Now()
	rating.UpdatedAt = rating.CreatedAt
	copied := *rating
	m.rows[key] = &copied
	return true, nil
}

func (m *memRepo) Delete(ctx context.Context, seriesID, userID int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := ratingKey(seriesID, userID)
	existing, ok := m.rows[key]
	if !ok {
		return 0, shared.ErrNotFound
	}
	delete(m.rows, key)
	return existing.ID, nil
}

func (m *memRepo) Summarize(ctx context.Context, seriesID int64) (ratings.Summary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	summary := ratings.Summary{SeriesID: seriesID}
	total := 0
	for _, row := range m.rows {
		if row.SeriesID == seriesID {
			total += row.Value
			summary.Count++
		}
	}
	if summary.Count > 0 {
		summary.Average = math.Round(float64(total)/float64(summary.Count)*10) / 10
	}
	return summary, nil
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
	cache := tagcache.New(nil)
	ttl := tagcache.TTLSet{Short: time.Minute, Medium: 5 * time.Minute, Long: 30 * time.Minute}
	service := ratings.NewService(repo, cache, ttl, logger)
	limiter := throttle.NewLimiter(throttle.Limits{
		throttle.ClassGeneral: {Max: 30, Window: time.Minute},
	}, logger)

	f := &fixture{repo: repo, store: store}

	handler := ratings.NewHandler(service, policy.NewAuthorizer(), limiter, auditpkg.NewRecorder(store, nil, logger), logger)
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

func TestRateRequiresAuth(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodPost, "/ratings", `{"series_id":1,"value":5}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRateCreatesThenReplaces(t *testing.T) {
	f := newFixture(t)
	f.as(user(5))

	rec := f.do(http.MethodPost, "/ratings", `{"series_id":1,"value":5}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var first ratings.Rating
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &first))
	assert.Equal(t, 5, first.Value)

	// A second score from the same reader replaces the first row.
	rec = f.do(http.MethodPost, "/ratings", `{"series_id":1,"value":2}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var second ratings.Rating
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &second))
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 2, second.Value)

	require.Len(t, f.store.records, 2)
	assert.Equal(t, auditpkg.ActionCreate, f.store.records[0].Action)
	assert.Equal(t, auditpkg.ActionUpdate, f.store.records[1].Action)
	assert.Equal(t, "RATING", f.store.records[1].EntityType)
}

func TestRateRejectsOutOfRangeValue(t *testing.T) {
	f := newFixture(t)
	f.as(user(5))

	rec := f.do(http.MethodPost, "/ratings", `{"series_id":1,"value":6}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = f.do(http.MethodPost, "/ratings", `{"series_id":1,"value":0}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestUnrate(t *testing.T) {
	f := newFixture(t)
	f.as(user(5))

	rec := f.do(http.MethodPost, "/ratings", `{"series_id":1,"value":4}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = f.do(http.MethodDelete, "/ratings?series_id=1", "")
	require.Equal(t, http.StatusNoContent, rec.Code)

	last := f.store.records[len(f.store.records)-1]
	assert.Equal(t, auditpkg.ActionDelete, last.Action)

	// Withdrawing again finds nothing.
	rec = f.do(http.MethodDelete, "/ratings?series_id=1", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSummaryRoundsToOneDecimal(t *testing.T) {
	f := newFixture(t)

	f.as(user(5))
	rec := f.do(http.MethodPost, "/ratings", `{"series_id":1,"value":5}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	f.as(user(6))
	rec = f.do(http.MethodPost, "/ratings", `{"series_id":1,"value":4}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	f.as(user(7))
	rec = f.do(http.MethodPost, "/ratings", `{"series_id":1,"value":4}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	f.as(nil)
	rec = f.do(http.MethodGet, "/ratings?series_id=1", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var summary ratings.Summary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summary))
	assert.Equal(t, 3, summary.Count)
	assert.Equal(t, 4.3, summary.Average)
}

func TestSummaryCachedUntilWrite(t *testing.T) {
	f := newFixture(t)
	f.as(user(5))
	rec := f.do(http.MethodPost, "/ratings", `{"series_id":1,"value":4}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = f.do(http.MethodGet, "/ratings?series_id=1", "")
	require.Equal(t, http.StatusOK, rec.Code)

	// A write behind the handler is invisible until invalidation.
	_, err := f.repo.Upsert(context.Background(), &ratings.Rating{SeriesID: 1, UserID: 99, Value: 1})
	require.NoError(t, err)

	rec = f.do(http.MethodGet, "/ratings?series_id=1", "")
	var cached ratings.Summary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cached))
	assert.Equal(t, 1, cached.Count, "summary still served from cache")

	// A write through the handler invalidates it.
	f.as(user(6))
	rec = f.do(http.MethodPost, "/ratings", `{"series_id":1,"value":2}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = f.do(http.MethodGet, "/ratings?series_id=1", "")
	var fresh ratings.Summary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &fresh))
	assert.Equal(t, 3, fresh.Count, "recomputed after invalidation")
}

func TestSummaryRequiresSeriesID(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodGet, "/ratings", "")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}
