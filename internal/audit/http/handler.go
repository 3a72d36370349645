// Package http exposes the moderation-facing read endpoint over the
// audit ledger.
package http

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/chapterhouse/chapterhouse/internal/audit"
	"github.com/chapterhouse/chapterhouse/internal/identity"
	"github.com/chapterhouse/chapterhouse/internal/platform/httpx"
	"github.com/chapterhouse/chapterhouse/internal/policy"
)

// Handler serves the audit timeline to moderators and admins.
type Handler struct {
	timeline *audit.Timeline
	authz    *policy.Authorizer
	logger   *slog.Logger
}

// NewHandler constructs the audit HTTP handler.
func NewHandler(timeline *audit.Timeline, authz *policy.Authorizer, logger *slog.Logger) *Handler {
	return &Handler{timeline: timeline, authz: authz, logger: logger}
}

// MountRoutes attaches audit routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/audit", h.window)
}

func (h *Handler) window(w http.ResponseWriter, r *http.Request) {
	principal := identity.PrincipalFromContext(r.Context())
	if d := h.authz.RequireRole(principal, identity.RoleModerator); !d.Allowed {
		httpx.RespondError(w, d.Err())
		return
	}

	filters := parseFilters(r)
	result, err := h.timeline.Window(r.Context(), filters)
	if err != nil {
		h.logger.Error("audit timeline", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}

	httpx.JSON(w, http.StatusOK, map[string]any{
		"records": result.Rows,
		"paging":  result.Paging,
	})
}

func parseFilters(r *http.Request) audit.TimelineFilters {
	q := r.URL.Query()
	filters := audit.TimelineFilters{
		Entity: q.Get("entity"),
		Action: q.Get("action"),
	}
	if v, err := strconv.Atoi(q.Get("page")); err == nil {
		filters.Page = v
	}
	if v, err := strconv.Atoi(q.Get("page_size")); err == nil {
		filters.PageSize = v
	}
	if v, err := strconv.ParseInt(q.Get("actor_id"), 10, 64); err == nil {
		filters.ActorID = v
	}
	if v, err := time.Parse(time.RFC3339, q.Get("from")); err == nil {
		filters.From = v
	}
	if v, err := time.Parse(time.RFC3339, q.Get("to")); err == nil {
		filters.To = v
	}
	return filters
}
