package http_test

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chapterhouse/chapterhouse/internal/audit"
	audithttp "github.com/chapterhouse/chapterhouse/internal/audit/http"
	"github.com/chapterhouse/chapterhouse/internal/identity"
	"github.com/chapterhouse/chapterhouse/internal/policy"
	_ "github.com/chapterhouse/chapterhouse/testing"
)

type stubReader struct {
	records []audit.Record
	gotF    audit.TimelineFilters
}

func (s *stubReader) TimelineWindow(ctx context.Context, f audit.TimelineFilters, offset, limit int) ([]audit.Record, error) {
	s.gotF = f
	if offset >= len(s.records) {
		return nil, nil
	}
	end := offset + limit
	if end > len(s.records) {
		end = len(s.records)
	}
	return s.records[offset:end], nil
}

func newRouter(reader *stubReader, principal *identity.Principal) chi.Router {
	handler := audithttp.NewHandler(audit.NewTimeline(reader), policy.NewAuthorizer(), slog.New(slog.DiscardHandler))
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			ctx := req.Context()
			if principal != nil {
				ctx = identity.ContextWithPrincipal(ctx, principal)
			}
			next.ServeHTTP(w, req.WithContext(ctx))
		})
	})
	handler.MountRoutes(r)
	return r
}

func get(router chi.Router, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestTimelineRequiresModerator(t *testing.T) {
	reader := &stubReader{}

	anon := get(newRouter(reader, nil), "/audit")
	assert.Equal(t, http.StatusUnauthorized, anon.Code)

	user := get(newRouter(reader, &identity.Principal{ID: 1, Role: identity.RoleUser}), "/audit")
	assert.Equal(t, http.StatusForbidden, user.Code)

	creator := get(newRouter(reader, &identity.Principal{ID: 2, Role: identity.RoleCreator}), "/audit")
	assert.Equal(t, http.StatusForbidden, creator.Code)

	mod := get(newRouter(reader, &identity.Principal{ID: 3, Role: identity.RoleModerator}), "/audit")
	assert.Equal(t, http.StatusOK, mod.Code)
}

func TestTimelinePaging(t *testing.T) {
	reader := &stubReader{}
	for i := 0; i < 25; i++ {
		reader.records = append(reader.records, audit.Record{
			ActorID:    int64(i + 1),
			Action:     audit.ActionCreate,
			EntityType: "SERIES",
			CreatedAt:  time.Date(2026, 8, 1, 0, i, 0, 0, time.UTC),
		})
	}
	router := newRouter(reader, &identity.Principal{ID: 9, Role: identity.RoleAdmin})

	rec := get(router, "/audit?page=1&page_size=20")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Records []audit.Record `json:"records"`
		Paging  struct {
			Page     int  `json:"Page"`
			HasNext  bool `json:"HasNext"`
			NextPage int  `json:"NextPage"`
		} `json:"paging"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Len(t, body.Records, 20)
	assert.True(t, body.Paging.HasNext)
	assert.Equal(t, 2, body.Paging.NextPage)

	rec = get(router, "/audit?page=2&page_size=20")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Len(t, body.Records, 5)
	assert.False(t, body.Paging.HasNext)
}

func TestTimelineFilterParsing(t *testing.T) {
	reader := &stubReader{}
	router := newRouter(reader, &identity.Principal{ID: 9, Role: identity.RoleModerator})

	from := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	path := fmt.Sprintf("/audit?actor_id=7&entity=COMMENT&action=DELETE&from=%s", from.Format(time.RFC3339))
	rec := get(router, path)
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, int64(7), reader.gotF.ActorID)
	assert.Equal(t, "COMMENT", reader.gotF.Entity)
	assert.Equal(t, "DELETE", reader.gotF.Action)
	assert.True(t, from.Equal(reader.gotF.From))
}

func TestTimelineClampsPageSize(t *testing.T) {
	reader := &stubReader{}
	for i := 0; i < 60; i++ {
		reader.records = append(reader.records, audit.Record{ActorID: int64(i + 1), Action: audit.ActionUpdate, EntityType: "USER"})
	}
	router := newRouter(reader, &identity.Principal{ID: 9, Role: identity.RoleModerator})

	rec := get(router, "/audit?page_size=500")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Records []audit.Record `json:"records"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Len(t, body.Records, 50)
}