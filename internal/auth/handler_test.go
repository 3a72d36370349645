package auth_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	auditpkg "github.com/chapterhouse/chapterhouse/internal/audit"
	"github.com/chapterhouse/chapterhouse/internal/auth"
	"github.com/chapterhouse/chapterhouse/internal/identity"
	"github.com/chapterhouse/chapterhouse/internal/shared"
	"github.com/chapterhouse/chapterhouse/internal/throttle"
	_ "github.com/chapterhouse/chapterhouse/testing"
)

type stubRepo struct {
	users    map[string]*auth.User
	nextID   int64
	sessions map[string]int64
	failWith error
}

func newStubRepo() *stubRepo {
	return &stubRepo{users: make(map[string]*auth.User), nextID: 1, sessions: make(map[string]int64)}
}

func (s *stubRepo) FindByEmail(ctx context.Context, email string) (*auth.User, error) {
	if s.failWith != nil {
		return nil, s.failWith
	}
	user, ok := s.users[email]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return user, nil
}

func (s *stubRepo) CreateUser(ctx context.Context, email, username, passwordHash string) (int64, error) {
	if s.failWith != nil {
		return 0, s.failWith
	}
	if _, exists := s.users[email]; exists {
		return 0, shared.ErrDuplicate
	}
	id := s.nextID
	s.nextID++
	s.users[email] = &auth.User{ID: id, Email: email, Username: username, PasswordHash: passwordHash}
	return id, nil
}

func (s *stubRepo) CreateSession(ctx context.Context, id string, userID int64, expiresAt time.Time, ip, ua string) error {
	s.sessions[id] = userID
	return nil
}

func (s *stubRepo) DeleteSession(ctx context.Context, id string) error {
	delete(s.sessions, id)
	return nil
}

// commitWriter persists the session just before the first byte of the
// response so Set-Cookie headers are not written too late.
type commitWriter struct {
	http.ResponseWriter
	commit    func()
	committed bool
}

func (c *commitWriter) ensureCommitted() {
	if !c.committed {
		c.committed = true
		c.commit()
	}
}

func (c *commitWriter) WriteHeader(status int) {
	c.ensureCommitted()
	c.ResponseWriter.WriteHeader(status)
}

func (c *commitWriter) Write(b []byte) (int, error) {
	c.ensureCommitted()
	return c.ResponseWriter.Write(b)
}

type memStore struct {
	records []auditpkg.Record
}

func (m *memStore) Insert(ctx context.Context, rec auditpkg.Record) error {
	m.records = append(m.records, rec)
	return nil
}

type fixture struct {
	repo     *stubRepo
	store    *memStore
	sessions *shared.SessionManager
	router   chi.Router
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	logger := slog.New(slog.DiscardHandler)
	sessions := shared.NewSessionManager(client, "chapterhouse_session", "test-secret", time.Hour, false)
	repo := newStubRepo()
	store := &memStore{}
	limiter := throttle.NewLimiter(throttle.Limits{
		throttle.ClassAuth:     {Max: 5, Window: 15 * time.Minute},
		throttle.ClassRegister: {Max: 3, Window: time.Hour},
	}, logger)

	handler := auth.NewHandler(
		auth.NewService(repo, logger),
		sessions,
		limiter,
		auditpkg.NewRecorder(store, nil, logger),
		logger,
	)

	router := chi.NewRouter()
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess, err := sessions.Load(r.Context(), r)
			require.NoError(t, err)
			ctx := shared.ContextWithSession(r.Context(), sess)
			cw := &commitWriter{ResponseWriter: w, commit: func() {
				require.NoError(t, sessions.Commit(ctx, w, r, sess))
			}}
			next.ServeHTTP(cw, r.WithContext(ctx))
			cw.ensureCommitted()
		})
	})
	handler.MountRoutes(router)

	return &fixture{repo: repo, store: store, sessions: sessions, router: router}
}

func (f *fixture) seedUser(t *testing.T, email, password string) *auth.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	id, err := f.repo.CreateUser(context.Background(), email, "reader", string(hash))
	require.NoError(t, err)
	user := f.repo.users[email]
	user.ID = id
	return user
}

func postJSON(router chi.Router, path, body, ip string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	req.RemoteAddr = ip + ":52100"
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestRegisterCreatesAccount(t *testing.T) {
	f := newFixture(t)

	rec := postJSON(f.router, "/auth/register", `{"email":"reader@example.com","username":"reader1","password":"hunter2hunter2"}`, "203.0.113.10")

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Contains(t, f.repo.users, "reader@example.com")
	require.Len(t, f.store.records, 1)
	assert.Equal(t, auditpkg.ActionRegister, f.store.records[0].Action)
	assert.Equal(t, "203.0.113.10", f.store.records[0].IPAddress)
}

func TestRegisterDuplicateEmail(t *testing.T) {
	f := newFixture(t)
	f.seedUser(t, "reader@example.com", "hunter2hunter2")

	rec := postJSON(f.router, "/auth/register", `{"email":"reader@example.com","username":"reader1","password":"hunter2hunter2"}`, "203.0.113.10")

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestRegisterRejectsInvalidPayload(t *testing.T) {
	f := newFixture(t)

	rec := postJSON(f.router, "/auth/register", `{"email":"not-an-email","username":"x","password":"short"}`, "203.0.113.10")

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Empty(t, f.store.records)
}

func TestLoginSetsSessionCookie(t *testing.T) {
	f := newFixture(t)
	f.seedUser(t, "reader@example.com", "hunter2hunter2")

	rec := postJSON(f.router, "/auth/login", `{"email":"reader@example.com","password":"hunter2hunter2"}`, "203.0.113.10")

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	cookies := rec.Result().Cookies()
	require.NotEmpty(t, cookies)
	assert.Equal(t, "chapterhouse_session", cookies[0].Name)
	require.Len(t, f.store.records, 1)
	assert.Equal(t, auditpkg.ActionLogin, f.store.records[0].Action)
	assert.Len(t, f.repo.sessions, 1)
}

func TestLoginWrongPassword(t *testing.T) {
	f := newFixture(t)
	f.seedUser(t, "reader@example.com", "hunter2hunter2")

	rec := postJSON(f.router, "/auth/login", `{"email":"reader@example.com","password":"wrongwrong"}`, "203.0.113.10")

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, f.store.records)
}

func TestLoginUnknownEmailSameResponse(t *testing.T) {
	f := newFixture(t)

	rec := postJSON(f.router, "/auth/login", `{"email":"ghost@example.com","password":"hunter2hunter2"}`, "203.0.113.10")

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLoginThrottledAfterQuota(t *testing.T) {
	f := newFixture(t)
	f.seedUser(t, "reader@example.com", "hunter2hunter2")

	var rec *httptest.ResponseRecorder
	for i := 0; i < 6; i++ {
		rec = postJSON(f.router, "/auth/login", `{"email":"reader@example.com","password":"wrongwrong"}`, "203.0.113.10")
	}

	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	// A different address is unaffected.
	other := postJSON(f.router, "/auth/login", `{"email":"reader@example.com","password":"hunter2hunter2"}`, "203.0.113.99")
	assert.Equal(t, http.StatusOK, other.Code)
}

func TestLogoutRequiresPrincipal(t *testing.T) {
	f := newFixture(t)

	rec := postJSON(f.router, "/auth/logout", ``, "203.0.113.10")

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLogoutClearsSession(t *testing.T) {
	f := newFixture(t)

	principal := &identity.Principal{ID: 42, Username: "reader", Role: identity.RoleUser}
	router := chi.NewRouter()
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := identity.ContextWithPrincipal(r.Context(), principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	})
	router.Mount("/", f.router)

	rec := postJSON(router, "/auth/logout", ``, "203.0.113.10")

	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Len(t, f.store.records, 1)
	assert.Equal(t, auditpkg.ActionLogout, f.store.records[0].Action)
	assert.Equal(t, int64(42), f.store.records[0].ActorID)
}

func TestRegisterThrottledPerAddress(t *testing.T) {
	f := newFixture(t)

	var rec *httptest.ResponseRecorder
	for i := 0; i < 4; i++ {
		body := fmt.Sprintf(`{"email":"reader%d@example.com","username":"reader%d","password":"hunter2hunter2"}`, i, i)
		rec = postJSON(f.router, "/auth/register", body, "203.0.113.10")
	}

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestRegisterStorageError(t *testing.T) {
	f := newFixture(t)
	f.repo.failWith = errors.New("connection reset")

	rec := postJSON(f.router, "/auth/register", `{"email":"reader@example.com","username":"reader1","password":"hunter2hunter2"}`, "203.0.113.10")

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
