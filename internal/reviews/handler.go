package reviews

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/chapterhouse/chapterhouse/internal/audit"
	"github.com/chapterhouse/chapterhouse/internal/identity"
	"github.com/chapterhouse/chapterhouse/internal/platform/httpx"
	"github.com/chapterhouse/chapterhouse/internal/policy"
	"github.com/chapterhouse/chapterhouse/internal/shared"
	"github.com/chapterhouse/chapterhouse/internal/throttle"
)

// Handler serves the review endpoints.
type Handler struct {
	service  *Service
	authz    *policy.Authorizer
	limiter  *throttle.Limiter
	recorder *audit.Recorder
	logger   *slog.Logger
	validate *validator.Validate
}

// NewHandler constructs the reviews HTTP handler.
func NewHandler(service *Service, authz *policy.Authorizer, limiter *throttle.Limiter, recorder *audit.Recorder, logger *slog.Logger) *Handler {
	return &Handler{
		service:  service,
		authz:    authz,
		limiter:  limiter,
		recorder: recorder,
		logger:   logger,
		validate: validator.New(),
	}
}

// MountRoutes attaches review routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/reviews", func(r chi.Router) {
		r.Get("/", h.listBySeries)
		r.Post("/", h.publish)
		r.Route("/{reviewID}", func(r chi.Router) {
			r.Put("/", h.revise)
			r.Delete("/", h.remove)
		})
	})
}

func (h *Handler) listBySeries(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	seriesID, err := strconv.ParseInt(q.Get("series_id"), 10, 64)
	if err != nil || seriesID < 1 {
		httpx.RespondError(w, fmt.Errorf("%w: series_id is required", shared.ErrValidation))
		return
	}
	page, _ := strconv.Atoi(q.Get("page"))
	size, _ := strconv.Atoi(q.Get("page_size"))

	window, err := h.service.ListBySeries(r.Context(), seriesID, page, size)
	if err != nil {
		h.logger.Error("list reviews", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, window)
}

func (h *Handler) publish(w http.ResponseWriter, r *http.Request) {
	principal := identity.PrincipalFromContext(r.Context())
	if d := h.authz.RequireNotMuted(principal); !d.Allowed {
		httpx.RespondError(w, d.Err())
		return
	}
	if res := h.limiter.Check(throttle.Identifier(principal.ID, shared.ClientIP(r)), throttle.ClassComment); !res.Allowed {
		httpx.RespondError(w, &shared.RateLimitedError{Limit: res.Limit, ResetAt: res.ResetAt})
		return
	}

	var in ReviewInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: malformed body", shared.ErrValidation))
		return
	}
	if err := h.validate.Struct(in); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %v", shared.ErrValidation, err))
		return
	}

	review, err := h.service.Publish(r.Context(), principal.ID, in)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	review.Author = principal.Username

	h.record(r, principal, audit.ActionCreate, review.ID, map[string]any{"series_id": in.SeriesID})
	httpx.JSON(w, http.StatusCreated, review)
}

func (h *Handler) revise(w http.ResponseWriter, r *http.Request) {
	principal := identity.PrincipalFromContext(r.Context())
	review, ok := h.fetch(w, r)
	if !ok {
		return
	}
	if d := h.authz.RequireOwnership(principal, review.UserID); !d.Allowed {
		httpx.RespondError(w, d.Err())
		return
	}
	if d := h.authz.RequireNotMuted(principal); !d.Allowed {
		httpx.RespondError(w, d.Err())
		return
	}

	var in ReviewUpdate
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: malformed body", shared.ErrValidation))
		return
	}
	if err := h.validate.Struct(in); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %v", shared.ErrValidation, err))
		return
	}

	if err := h.service.Revise(r.Context(), review, in); err != nil {
		httpx.RespondError(w, err)
		return
	}

	h.record(r, principal, audit.ActionUpdate, review.ID, nil)
	w.WriteHeader(http.StatusNoContent)
}

// remove takes a review down. The author may remove their own; from
// MODERATOR upward anyone's, which is the moderation path.
func (h *Handler) remove(w http.ResponseWriter, r *http.Request) {
	principal := identity.PrincipalFromContext(r.Context())
	review, ok := h.fetch(w, r)
	if !ok {
		return
	}

	moderation := false
	if d := h.authz.RequireOwnership(principal, review.UserID); !d.Allowed {
		if md := h.authz.RequireRole(principal, identity.RoleModerator); !md.Allowed {
			httpx.RespondError(w, d.Err())
			return
		}
		moderation = true
	}

	if err := h.service.Remove(r.Context(), review); err != nil {
		httpx.RespondError(w, err)
		return
	}

	details := map[string]any{"series_id": review.SeriesID}
	if moderation {
		details["moderation"] = true
		details["author_id"] = review.UserID
	}
	h.record(r, principal, audit.ActionDelete, review.ID, details)
	w.WriteHeader(http.StatusNoContent)
}

// fetch loads the addressed review, responding 404 on any miss so the
// status never reveals whether a foreign review exists.
func (h *Handler) fetch(w http.ResponseWriter, r *http.Request) (*Review, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "reviewID"), 10, 64)
	if err != nil {
		httpx.RespondError(w, shared.ErrNotFound)
		return nil, false
	}
	review, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return nil, false
	}
	return review, true
}

func (h *Handler) record(r *http.Request, principal *identity.Principal, action audit.Action, reviewID int64, details map[string]any) {
	_ = h.recorder.Record(r.Context(), audit.Record{
		ActorID:    principal.ID,
		Action:     action,
		EntityType: "REVIEW",
		EntityID:   strconv.FormatInt(reviewID, 10),
		Details:    details,
		IPAddress:  shared.ClientIP(r),
		UserAgent:  r.UserAgent(),
	})
}
