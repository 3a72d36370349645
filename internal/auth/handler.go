package auth

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/chapterhouse/chapterhouse/internal/audit"
	"github.com/chapterhouse/chapterhouse/internal/identity"
	"github.com/chapterhouse/chapterhouse/internal/platform/httpx"
	"github.com/chapterhouse/chapterhouse/internal/shared"
	"github.com/chapterhouse/chapterhouse/internal/throttle"
)

// Handler serves the authentication endpoints.
type Handler struct {
	service  *Service
	sessions *shared.SessionManager
	limiter  *throttle.Limiter
	recorder *audit.Recorder
	logger   *slog.Logger
	validate *validator.Validate
}

// NewHandler constructs the auth HTTP handler.
func NewHandler(service *Service, sessions *shared.SessionManager, limiter *throttle.Limiter, recorder *audit.Recorder, logger *slog.Logger) *Handler {
	return &Handler{
		service:  service,
		sessions: sessions,
		limiter:  limiter,
		recorder: recorder,
		logger:   logger,
		validate: validator.New(),
	}
}

// MountRoutes attaches auth routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/auth/register", h.register)
	r.Post("/auth/login", h.login)
	r.Post("/auth/logout", h.logout)
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	ip := shared.ClientIP(r)
	if res := h.limiter.Check(throttle.Identifier(0, ip), throttle.ClassRegister); !res.Allowed {
		httpx.RespondError(w, &shared.RateLimitedError{Limit: res.Limit, ResetAt: res.ResetAt})
		return
	}

	var reg Registration
	if err := httpx.DecodeJSON(r, &reg); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: malformed body", shared.ErrValidation))
		return
	}
	if err := h.validate.Struct(reg); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %v", shared.ErrValidation, err))
		return
	}

	id, err := h.service.Register(r.Context(), reg)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}

	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		sess.SetUser(strconv.FormatInt(id, 10))
		h.service.TrackSession(r.Context(), sess.ID, id, time.Now().Add(h.sessions.TTL()), ip, r.UserAgent())
	}

	_ = h.recorder.Record(r.Context(), audit.Record{
		ActorID:    id,
		Action:     audit.ActionRegister,
		EntityType: "USER",
		EntityID:   strconv.FormatInt(id, 10),
		IPAddress:  ip,
		UserAgent:  r.UserAgent(),
	})

	httpx.JSON(w, http.StatusCreated, map[string]any{"id": id})
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	ip := shared.ClientIP(r)
	if res := h.limiter.Check(throttle.Identifier(0, ip), throttle.ClassAuth); !res.Allowed {
		httpx.RespondError(w, &shared.RateLimitedError{Limit: res.Limit, ResetAt: res.ResetAt})
		return
	}

	var creds Credentials
	if err := httpx.DecodeJSON(r, &creds); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: malformed body", shared.ErrValidation))
		return
	}
	if err := h.validate.Struct(creds); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %v", shared.ErrValidation, err))
		return
	}

	user, err := h.service.Authenticate(r.Context(), creds)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}

	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		sess.SetUser(strconv.FormatInt(user.ID, 10))
		h.service.TrackSession(r.Context(), sess.ID, user.ID, time.Now().Add(h.sessions.TTL()), ip, r.UserAgent())
	}

	_ = h.recorder.Record(r.Context(), audit.Record{
		ActorID:    user.ID,
		Action:     audit.ActionLogin,
		EntityType: "USER",
		EntityID:   strconv.FormatInt(user.ID, 10),
		IPAddress:  ip,
		UserAgent:  r.UserAgent(),
	})

	httpx.JSON(w, http.StatusOK, map[string]any{
		"id":       user.ID,
		"username": user.Username,
	})
}

func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	principal := identity.PrincipalFromContext(r.Context())
	if principal == nil {
		httpx.RespondError(w, shared.ErrUnauthenticated)
		return
	}

	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		h.service.ForgetSession(r.Context(), sess.ID)
		h.sessions.Destroy(sess)
	}

	_ = h.recorder.Record(r.Context(), audit.Record{
		ActorID:    principal.ID,
		Action:     audit.ActionLogout,
		EntityType: "USER",
		EntityID:   strconv.FormatInt(principal.ID, 10),
		IPAddress:  shared.ClientIP(r),
		UserAgent:  r.UserAgent(),
	})

	w.WriteHeader(http.StatusNoContent)
}
