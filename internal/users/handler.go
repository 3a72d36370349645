package users

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
	"github.com/chapterhouse/chapterhouse/internal/policy"
	"github.com/chapterhouse/chapterhouse/internal/shared"
)

// Handler serves profile and moderation endpoints.
type Handler struct {
	service  *Service
	authz    *policy.Authorizer
	recorder *audit.Recorder
	logger   *slog.Logger
	validate *validator.Validate
}

// NewHandler constructs the users HTTP handler.
func NewHandler(service *Service, authz *policy.Authorizer, recorder *audit.Recorder, logger *slog.Logger) *Handler {
	return &Handler{
		service:  service,
		authz:    authz,
		recorder: recorder,
		logger:   logger,
		validate: validator.New(),
	}
}

// MountRoutes attaches user routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/users/me/subscription", h.subscribe)
	r.Route("/users/{userID}", func(r chi.Router) {
		r.Get("/", h.getProfile)
		r.Put("/", h.updateProfile)
		r.Post("/ban", h.ban)
		r.Delete("/ban", h.unban)
		r.Post("/mute", h.mute)
		r.Delete("/mute", h.unmute)
	})
}

func (h *Handler) getProfile(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.RespondError(w, shared.ErrNotFound)
		return
	}
	profile, err := h.service.GetProfile(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, profile)
}

func (h *Handler) updateProfile(w http.ResponseWriter, r *http.Request) {
	principal := identity.PrincipalFromContext(r.Context())
	id, err := pathID(r)
	if err != nil {
		httpx.RespondError(w, shared.ErrNotFound)
		return
	}
	if _, err := h.service.GetProfile(r.Context(), id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if d := h.authz.RequireOwnership(principal, id); !d.Allowed {
		httpx.RespondError(w, d.Err())
		return
	}

	var in ProfileInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: malformed body", shared.ErrValidation))
		return
	}
	if err := h.validate.Struct(in); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %v", shared.ErrValidation, err))
		return
	}

	if err := h.service.UpdateProfile(r.Context(), id, in); err != nil {
		httpx.RespondError(w, err)
		return
	}

	h.record(r, principal, audit.ActionUpdate, id, nil)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ban(w http.ResponseWriter, r *http.Request) {
	principal := identity.PrincipalFromContext(r.Context())
	target, ok := h.moderationTarget(w, r, principal)
	if !ok {
		return
	}

	var in BanInput
	_ = httpx.DecodeJSON(r, &in)

	if err := h.service.Ban(r.Context(), target.ID); err != nil {
		httpx.RespondError(w, err)
		return
	}

	h.record(r, principal, audit.ActionBan, target.ID, reasonDetails(in.Reason))
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) unban(w http.ResponseWriter, r *http.Request) {
	principal := identity.PrincipalFromContext(r.Context())
	target, ok := h.moderationTarget(w, r, principal)
	if !ok {
		return
	}

	if err := h.service.Unban(r.Context(), target.ID); err != nil {
		httpx.RespondError(w, err)
		return
	}

	h.record(r, principal, audit.ActionUnban, target.ID, nil)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) mute(w http.ResponseWriter, r *http.Request) {
	principal := identity.PrincipalFromContext(r.Context())
	target, ok := h.moderationTarget(w, r, principal)
	if !ok {
		return
	}

	var in MuteInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: malformed body", shared.ErrValidation))
		return
	}
	if err := h.validate.Struct(in); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %v", shared.ErrValidation, err))
		return
	}

	until, err := h.service.Mute(r.Context(), target.ID, in.Minutes)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}

	details := reasonDetails(in.Reason)
	if until != nil {
		if details == nil {
			details = map[string]any{}
		}
		details["until"] = until.UTC().Format(time.RFC3339)
	}
	h.record(r, principal, audit.ActionMute, target.ID, details)
	httpx.JSON(w, http.StatusOK, map[string]any{"muted_until": until})
}

func (h *Handler) unmute(w http.ResponseWriter, r *http.Request) {
	principal := identity.PrincipalFromContext(r.Context())
	target, ok := h.moderationTarget(w, r, principal)
	if !ok {
		return
	}

	if err := h.service.Unmute(r.Context(), target.ID); err != nil {
		httpx.RespondError(w, err)
		return
	}

	h.record(r, principal, audit.ActionUnmute, target.ID, nil)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) subscribe(w http.ResponseWriter, r *http.Request) {
	principal := identity.PrincipalFromContext(r.Context())
	if d := h.authz.RequireAuth(principal); !d.Allowed {
		httpx.RespondError(w, d.Err())
		return
	}

	var in SubscriptionInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: malformed body", shared.ErrValidation))
		return
	}
	if err := h.validate.Struct(in); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %v", shared.ErrValidation, err))
		return
	}

	expiresAt, err := h.service.Subscribe(r.Context(), principal.ID, in)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}

	h.record(r, principal, audit.ActionSubscribe, principal.ID, map[string]any{"tier": in.Tier, "months": in.Months})
	httpx.JSON(w, http.StatusOK, map[string]any{"tier": in.Tier, "expires_at": expiresAt.UTC()})
}

// moderationTarget loads the addressed account and enforces the
// moderation rules: MODERATOR at minimum, and only over accounts of a
// strictly lower role. Existence is checked first so the status code
// never reveals whether a protected account exists.
func (h *Handler) moderationTarget(w http.ResponseWriter, r *http.Request, principal *identity.Principal) (*Profile, bool) {
	id, err := pathID(r)
	if err != nil {
		httpx.RespondError(w, shared.ErrNotFound)
		return nil, false
	}
	target, err := h.service.GetProfile(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return nil, false
	}
	if d := h.authz.RequireRole(principal, identity.RoleModerator); !d.Allowed {
		httpx.RespondError(w, d.Err())
		return nil, false
	}
	targetRole, err := identity.ParseRole(target.Role)
	if err != nil {
		h.logger.Error("parse role", slog.Int64("user_id", target.ID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return nil, false
	}
	if targetRole.Rank() >= principal.Role.Rank() {
		httpx.RespondError(w, shared.ErrForbidden)
		return nil, false
	}
	return target, true
}

func (h *Handler) record(r *http.Request, principal *identity.Principal, action audit.Action, targetID int64, details map[string]any) {
	_ = h.recorder.Record(r.Context(), audit.Record{
		ActorID:    principal.ID,
		Action:     action,
		EntityType: "USER",
		EntityID:   strconv.FormatInt(targetID, 10),
		Details:    details,
		IPAddress:  shared.ClientIP(r),
		UserAgent:  r.UserAgent(),
	})
}

func reasonDetails(reason string) map[string]any {
	if reason == "" {
		return nil
	}
	return map[string]any{"reason": reason}
}

func pathID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
}
