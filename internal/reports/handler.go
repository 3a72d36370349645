package reports

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

// Handler serves the report endpoints.
type Handler struct {
	service  *Service
	authz    *policy.Authorizer
	limiter  *throttle.Limiter
	recorder *audit.Recorder
	logger   *slog.Logger
	validate *validator.Validate
}

// NewHandler constructs the reports HTTP handler.
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

// MountRoutes attaches report routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/reports", func(r chi.Router) {
		r.Get("/", h.queue)
		r.Post("/", h.file)
		r.Patch("/{reportID}", h.resolve)
	})
}

func (h *Handler) file(w http.ResponseWriter, r *http.Request) {
	principal := identity.PrincipalFromContext(r.Context())
	if d := h.authz.RequireAuth(principal); !d.Allowed {
		httpx.RespondError(w, d.Err())
		return
	}
	if res := h.limiter.Check(throttle.Identifier(principal.ID, shared.ClientIP(r)), throttle.ClassGeneral); !res.Allowed {
		httpx.RespondError(w, &shared.RateLimitedError{Limit: res.Limit, ResetAt: res.ResetAt})
		return
	}

	var in ReportInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: malformed body", shared.ErrValidation))
		return
	}
	if err := h.validate.Struct(in); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %v", shared.ErrValidation, err))
		return
	}

	report, err := h.service.File(r.Context(), principal.ID, in)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}

	h.record(r, principal, audit.ActionCreate, report.ID, map[string]any{
		"type":      string(in.Type),
		"entity_id": in.EntityID,
	})
	httpx.JSON(w, http.StatusCreated, report)
}

// queue serves the moderation backlog. Visible from MODERATOR upward.
func (h *Handler) queue(w http.ResponseWriter, r *http.Request) {
	principal := identity.PrincipalFromContext(r.Context())
	if d := h.authz.RequireRole(principal, identity.RoleModerator); !d.Allowed {
		httpx.RespondError(w, d.Err())
		return
	}

	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	size, _ := strconv.Atoi(q.Get("page_size"))
	filters := Filters{Status: Status(q.Get("status")), Type: ReportType(q.Get("type"))}

	window, err := h.service.Queue(r.Context(), filters, page, size)
	if err != nil {
		h.logger.Error("report queue", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, window)
}

func (h *Handler) resolve(w http.ResponseWriter, r *http.Request) {
	principal := identity.PrincipalFromContext(r.Context())
	if d := h.authz.RequireRole(principal, identity.RoleModerator); !d.Allowed {
		httpx.RespondError(w, d.Err())
		return
	}

	id, err := strconv.ParseInt(chi.URLParam(r, "reportID"), 10, 64)
	if err != nil {
		httpx.RespondError(w, shared.ErrNotFound)
		return
	}
	report, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}

	var in StatusInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: malformed body", shared.ErrValidation))
		return
	}
	if err := h.validate.Struct(in); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %v", shared.ErrValidation, err))
		return
	}

	if err := h.service.Resolve(r.Context(), report, in, principal.ID); err != nil {
		httpx.RespondError(w, err)
		return
	}

	h.record(r, principal, audit.ActionUpdate, report.ID, map[string]any{"status": string(in.Status)})
	httpx.JSON(w, http.StatusOK, report)
}

func (h *Handler) record(r *http.Request, principal *identity.Principal, action audit.Action, reportID int64, details map[string]any) {
	_ = h.recorder.Record(r.Context(), audit.Record{
		ActorID:    principal.ID,
		Action:     action,
		EntityType: "REPORT",
		EntityID:   strconv.FormatInt(reportID, 10),
		Details:    details,
		IPAddress:  shared.ClientIP(r),
		UserAgent:  r.UserAgent(),
	})
}
