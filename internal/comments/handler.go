package comments

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

// Handler serves the comment endpoints.
type Handler struct {
	service  *Service
	authz    *policy.Authorizer
	limiter  *throttle.Limiter
	recorder *audit.Recorder
	logger   *slog.Logger
	validate *validator.Validate
}

// NewHandler constructs the comments HTTP handler.
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

// MountRoutes attaches comment routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/chapters/{chapterID}/comments", func(r chi.Router) {
		r.Get("/", h.listThread)
		r.Post("/", h.post)
	})
	r.Route("/comments/{commentID}", func(r chi.Router) {
		r.Put("/", h.edit)
		r.Delete("/", h.remove)
		r.Post("/like", h.like)
		r.Delete("/like", h.unlike)
	})
}

func (h *Handler) listThread(w http.ResponseWriter, r *http.Request) {
	chapterID, err := pathID(r, "chapterID")
	if err != nil {
		httpx.RespondError(w, shared.ErrNotFound)
		return
	}

	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	size, _ := strconv.Atoi(q.Get("page_size"))

	window, err := h.service.ListThread(r.Context(), chapterID, page, size)
	if err != nil {
		h.logger.Error("list thread", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, window)
}

func (h *Handler) post(w http.ResponseWriter, r *http.Request) {
	principal := identity.PrincipalFromContext(r.Context())
	if d := h.authz.RequireNotMuted(principal); !d.Allowed {
		httpx.RespondError(w, d.Err())
		return
	}
	chapterID, err := pathID(r, "chapterID")
	if err != nil {
		httpx.RespondError(w, shared.ErrNotFound)
		return
	}
	if res := h.limiter.Check(throttle.Identifier(principal.ID, shared.ClientIP(r)), throttle.ClassComment); !res.Allowed {
		httpx.RespondError(w, &shared.RateLimitedError{Limit: res.Limit, ResetAt: res.ResetAt})
		return
	}

	var in CommentInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: malformed body", shared.ErrValidation))
		return
	}
	if err := h.validate.Struct(in); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %v", shared.ErrValidation, err))
		return
	}

	comment, err := h.service.Post(r.Context(), chapterID, principal.ID, in)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	comment.Author = principal.Username

	h.record(r, principal, audit.ActionCreate, comment.ID, map[string]any{"chapter_id": chapterID})
	httpx.JSON(w, http.StatusCreated, comment)
}

func (h *Handler) edit(w http.ResponseWriter, r *http.Request) {
	principal := identity.PrincipalFromContext(r.Context())
	comment, ok := h.fetch(w, r)
	if !ok {
		return
	}
	if d := h.authz.RequireOwnership(principal, comment.AuthorID); !d.Allowed {
		httpx.RespondError(w, d.Err())
		return
	}
	if d := h.authz.RequireNotMuted(principal); !d.Allowed {
		httpx.RespondError(w, d.Err())
		return
	}

	var in CommentInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: malformed body", shared.ErrValidation))
		return
	}
	if err := h.validate.Struct(in); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %v", shared.ErrValidation, err))
		return
	}

	if err := h.service.Edit(r.Context(), comment, in); err != nil {
		httpx.RespondError(w, err)
		return
	}

	h.record(r, principal, audit.ActionUpdate, comment.ID, nil)
	w.WriteHeader(http.StatusNoContent)
}

// remove tombstones a comment. The author may remove their own; from
// MODERATOR upward anyone's, which is the moderation path.
func (h *Handler) remove(w http.ResponseWriter, r *http.Request) {
	principal := identity.PrincipalFromContext(r.Context())
	comment, ok := h.fetch(w, r)
	if !ok {
		return
	}

	moderation := false
	if d := h.authz.RequireOwnership(principal, comment.AuthorID); !d.Allowed {
		if md := h.authz.RequireRole(principal, identity.RoleModerator); !md.Allowed {
			httpx.RespondError(w, d.Err())
			return
		}
		moderation = true
	}

	if err := h.service.Remove(r.Context(), comment); err != nil {
		httpx.RespondError(w, err)
		return
	}

	details := map[string]any{"chapter_id": comment.ChapterID}
	if moderation {
		details["moderation"] = true
		details["author_id"] = comment.AuthorID
	}
	h.record(r, principal, audit.ActionDelete, comment.ID, details)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) like(w http.ResponseWriter, r *http.Request) {
	principal := identity.PrincipalFromContext(r.Context())
	if d := h.authz.RequireAuth(principal); !d.Allowed {
		httpx.RespondError(w, d.Err())
		return
	}
	comment, ok := h.fetch(w, r)
	if !ok {
		return
	}
	if res := h.limiter.Check(throttle.Identifier(principal.ID, shared.ClientIP(r)), throttle.ClassLike); !res.Allowed {
		httpx.RespondError(w, &shared.RateLimitedError{Limit: res.Limit, ResetAt: res.ResetAt})
		return
	}

	if err := h.service.Like(r.Context(), comment, principal.ID); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) unlike(w http.ResponseWriter, r *http.Request) {
	principal := identity.PrincipalFromContext(r.Context())
	if d := h.authz.RequireAuth(principal); !d.Allowed {
		httpx.RespondError(w, d.Err())
		return
	}
	comment, ok := h.fetch(w, r)
	if !ok {
		return
	}

	if err := h.service.Unlike(r.Context(), comment, principal.ID); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// fetch loads the addressed comment, responding 404 on any miss so the
// status never reveals whether a foreign comment exists.
func (h *Handler) fetch(w http.ResponseWriter, r *http.Request) (*Comment, bool) {
	id, err := pathID(r, "commentID")
	if err != nil {
		httpx.RespondError(w, shared.ErrNotFound)
		return nil, false
	}
	comment, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return nil, false
	}
	return comment, true
}

func (h *Handler) record(r *http.Request, principal *identity.Principal, action audit.Action, commentID int64, details map[string]any) {
	_ = h.recorder.Record(r.Context(), audit.Record{
		ActorID:    principal.ID,
		Action:     action,
		EntityType: "COMMENT",
		EntityID:   strconv.FormatInt(commentID, 10),
		Details:    details,
		IPAddress:  shared.ClientIP(r),
		UserAgent:  r.UserAgent(),
	})
}

func pathID(r *http.Request, name string) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, name), 10, 64)
}
