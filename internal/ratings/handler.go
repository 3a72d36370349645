package ratings

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

// Handler serves the rating endpoints.
type Handler struct {
	service  *Service
	authz    *policy.Authorizer
	limiter  *throttle.Limiter
	recorder *audit.Recorder
	logger   *slog.Logger
	validate *validator.Validate
}

// NewHandler constructs the ratings HTTP handler.
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

// MountRoutes attaches rating routes. The series is addressed through a
// query parameter because a reader holds at most one rating per series.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/ratings", func(r chi.Router) {
		r.Get("/", h.summary)
		r.Post("/", h.rate)
		r.Delete("/", h.unrate)
	})
}

func (h *Handler) summary(w http.ResponseWriter, r *http.Request) {
	seriesID, err := queryID(r, "series_id")
	if err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: series_id is required", shared.ErrValidation))
		return
	}

	summary, err := h.service.Summary(r.Context(), seriesID)
	if err != nil {
		h.logger.Error("rating summary", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, summary)
}

func (h *Handler) rate(w http.ResponseWriter, r *http.Request) {
	principal := identity.PrincipalFromContext(r.Context())
	if d := h.authz.RequireAuth(principal); !d.Allowed {
		httpx.RespondError(w, d.Err())
		return
	}
	if res := h.limiter.Check(throttle.Identifier(principal.ID, shared.ClientIP(r)), throttle.ClassGeneral); !res.Allowed {
		httpx.RespondError(w, &shared.RateLimitedError{Limit: res.Limit, ResetAt: res.ResetAt})
		return
	}

	var in RatingInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: malformed body", shared.ErrValidation))
		return
	}
	if err := h.validate.Struct(in); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %v", shared.ErrValidation, err))
		return
	}

	rating, created, err := h.service.Rate(r.Context(), principal.ID, in)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}

	action := audit.ActionUpdate
	status := http.StatusOK
	if created {
		action = audit.ActionCreate
		status = http.StatusCreated
	}
	h.record(r, principal, action, rating.ID, map[string]any{"series_id": in.SeriesID, "value": in.Value})
	httpx.JSON(w, status, rating)
}

func (h *Handler) unrate(w http.ResponseWriter, r *http.Request) {
	principal := identity.PrincipalFromContext(r.Context())
	if d := h.authz.RequireAuth(principal); !d.Allowed {
		httpx.RespondError(w, d.Err())
		return
	}
	seriesID, err := queryID(r, "series_id")
	if err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: series_id is required", shared.ErrValidation))
		return
	}

	id, err := h.service.Unrate(r.Context(), seriesID, principal.ID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}

	h.record(r, principal, audit.ActionDelete, id, map[string]any{"series_id": seriesID})
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) record(r *http.Request, principal *identity.Principal, action audit.Action, ratingID int64, details map[string]any) {
	_ = h.recorder.Record(r.Context(), audit.Record{
		ActorID:    principal.ID,
		Action:     action,
		EntityType: "RATING",
		EntityID:   strconv.FormatInt(ratingID, 10),
		Details:    details,
		IPAddress:  shared.ClientIP(r),
		UserAgent:  r.UserAgent(),
	})
}

func queryID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(r.URL.Query().Get(name), 10, 64)
	if err != nil || id < 1 {
		return 0, fmt.Errorf("invalid %s", name)
	}
	return id, nil
}
