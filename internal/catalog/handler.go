package catalog

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

// Handler serves the catalog endpoints.
type Handler struct {
	service  *Service
	authz    *policy.Authorizer
	limiter  *throttle.Limiter
	recorder *audit.Recorder
	logger   *slog.Logger
	validate *validator.Validate
}

// NewHandler constructs the catalog HTTP handler.
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

// MountRoutes attaches catalog routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/series", func(r chi.Router) {
		r.Get("/", h.listSeries)
		r.Post("/", h.createSeries)
		r.Route("/{seriesID}", func(r chi.Router) {
			r.Get("/", h.getSeries)
			r.Put("/", h.updateSeries)
			r.Delete("/", h.deleteSeries)
			r.Get("/chapters", h.listChapters)
			r.Post("/chapters", h.createChapter)
			r.Get("/chapters/{chapterID}", h.getChapter)
		})
	})
}

func (h *Handler) listSeries(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	size, _ := strconv.Atoi(q.Get("page_size"))
	filter := SeriesFilter{Genre: q.Get("genre"), Status: q.Get("status")}

	window, err := h.service.ListSeries(r.Context(), filter, page, size)
	if err != nil {
		h.logger.Error("list series", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, window)
}

func (h *Handler) getSeries(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "seriesID")
	if err != nil {
		httpx.RespondError(w, shared.ErrNotFound)
		return
	}
	series, err := h.service.GetSeries(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, series)
}

func (h *Handler) createSeries(w http.ResponseWriter, r *http.Request) {
	principal := identity.PrincipalFromContext(r.Context())
	if d := h.authz.RequireRole(principal, identity.RoleCreator); !d.Allowed {
		httpx.RespondError(w, d.Err())
		return
	}
	if res := h.limiter.Check(throttle.Identifier(principal.ID, shared.ClientIP(r)), throttle.ClassCreateSeries); !res.Allowed {
		httpx.RespondError(w, &shared.RateLimitedError{Limit: res.Limit, ResetAt: res.ResetAt})
		return
	}

	var in SeriesInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: malformed body", shared.ErrValidation))
		return
	}
	if err := h.validate.Struct(in); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %v", shared.ErrValidation, err))
		return
	}

	series, err := h.service.CreateSeries(r.Context(), principal.ID, in)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}

	h.record(r, principal, audit.ActionCreate, "SERIES", series.ID, map[string]any{"title": series.Title})
	httpx.JSON(w, http.StatusCreated, series)
}

func (h *Handler) updateSeries(w http.ResponseWriter, r *http.Request) {
	principal := identity.PrincipalFromContext(r.Context())
	id, err := pathID(r, "seriesID")
	if err != nil {
		httpx.RespondError(w, shared.ErrNotFound)
		return
	}

	// Existence is checked before ownership so the status code never
	// tells a foreign resource from a missing one.
	series, err := h.service.GetSeries(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if d := h.authz.RequireOwnership(principal, series.AuthorID); !d.Allowed {
		httpx.RespondError(w, d.Err())
		return
	}

	var in SeriesInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: malformed body", shared.ErrValidation))
		return
	}
	if err := h.validate.Struct(in); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %v", shared.ErrValidation, err))
		return
	}

	updated, err := h.service.UpdateSeries(r.Context(), series, in)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}

	h.record(r, principal, audit.ActionUpdate, "SERIES", id, nil)
	httpx.JSON(w, http.StatusOK, updated)
}

func (h *Handler) deleteSeries(w http.ResponseWriter, r *http.Request) {
	principal := identity.PrincipalFromContext(r.Context())
	id, err := pathID(r, "seriesID")
	if err != nil {
		httpx.RespondError(w, shared.ErrNotFound)
		return
	}

	series, err := h.service.GetSeries(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if d := h.authz.RequireOwnership(principal, series.AuthorID); !d.Allowed {
		httpx.RespondError(w, d.Err())
		return
	}

	if err := h.service.DeleteSeries(r.Context(), id); err != nil {
		httpx.RespondError(w, err)
		return
	}

	h.record(r, principal, audit.ActionDelete, "SERIES", id, map[string]any{"title": series.Title})
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listChapters(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "seriesID")
	if err != nil {
		httpx.RespondError(w, shared.ErrNotFound)
		return
	}
	series, err := h.service.GetSeries(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}

	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	size, _ := strconv.Atoi(q.Get("page_size"))

	window, err := h.service.ListChapters(r.Context(), id, page, size)
	if err != nil {
		h.logger.Error("list chapters", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}

	// Early-access chapters stay visible in the listing, but their
	// content pointer is only served to readers the detail endpoint
	// would let through.
	principal := identity.PrincipalFromContext(r.Context())
	if !canReadEarlyAccess(principal, series.AuthorID) {
		window = redactGated(window)
	}
	httpx.JSON(w, http.StatusOK, window)
}

func (h *Handler) getChapter(w http.ResponseWriter, r *http.Request) {
	seriesID, err := pathID(r, "seriesID")
	if err != nil {
		httpx.RespondError(w, shared.ErrNotFound)
		return
	}
	chapterID, err := pathID(r, "chapterID")
	if err != nil {
		httpx.RespondError(w, shared.ErrNotFound)
		return
	}

	series, err := h.service.GetSeries(r.Context(), seriesID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	chapter, err := h.service.GetChapter(r.Context(), seriesID, chapterID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}

	principal := identity.PrincipalFromContext(r.Context())
	if chapter.EarlyAccess && !isOwner(principal, series.AuthorID) {
		if d := h.authz.RequireTier(principal, identity.TierPremium); !d.Allowed {
			httpx.RespondError(w, d.Err())
			return
		}
	}

	httpx.JSON(w, http.StatusOK, chapter)
}

func (h *Handler) createChapter(w http.ResponseWriter, r *http.Request) {
	principal := identity.PrincipalFromContext(r.Context())
	seriesID, err := pathID(r, "seriesID")
	if err != nil {
		httpx.RespondError(w, shared.ErrNotFound)
		return
	}

	series, err := h.service.GetSeries(r.Context(), seriesID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if d := h.authz.RequireRole(principal, identity.RoleCreator); !d.Allowed {
		httpx.RespondError(w, d.Err())
		return
	}
	if d := h.authz.RequireOwnership(principal, series.AuthorID); !d.Allowed {
		httpx.RespondError(w, d.Err())
		return
	}
	if res := h.limiter.Check(throttle.Identifier(principal.ID, shared.ClientIP(r)), throttle.ClassCreateChapter); !res.Allowed {
		httpx.RespondError(w, &shared.RateLimitedError{Limit: res.Limit, ResetAt: res.ResetAt})
		return
	}

	var in ChapterInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: malformed body", shared.ErrValidation))
		return
	}
	if err := h.validate.Struct(in); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %v", shared.ErrValidation, err))
		return
	}

	chapter, err := h.service.CreateChapter(r.Context(), seriesID, in)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}

	h.record(r, principal, audit.ActionCreate, "CHAPTER", chapter.ID, map[string]any{"series_id": seriesID, "number": chapter.Number})
	httpx.JSON(w, http.StatusCreated, chapter)
}

func (h *Handler) record(r *http.Request, principal *identity.Principal, action audit.Action, entity string, entityID int64, details map[string]any) {
	_ = h.recorder.Record(r.Context(), audit.Record{
		ActorID:    principal.ID,
		Action:     action,
		EntityType: entity,
		EntityID:   strconv.FormatInt(entityID, 10),
		Details:    details,
		IPAddress:  shared.ClientIP(r),
		UserAgent:  r.UserAgent(),
	})
}

func isOwner(p *identity.Principal, authorID int64) bool {
	return p != nil && (p.ID == authorID || p.Role == identity.RoleAdmin)
}

func canReadEarlyAccess(p *identity.Principal, authorID int64) bool {
	return isOwner(p, authorID) || (p != nil && p.Tier.AtLeast(identity.TierPremium))
}

// redactGated blanks the content pointer of early-access chapters. The
// window may hold cache-shared records, so the items are copied first.
func redactGated(window Page[Chapter]) Page[Chapter] {
	items := make([]Chapter, len(window.Items))
	copy(items, window.Items)
	for i := range items {
		if items[i].EarlyAccess {
			items[i].ContentURL = ""
		}
	}
	window.Items = items
	return window
}

func pathID(r *http.Request, name string) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, name), 10, 64)
}
