package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	audithttp "github.com/chapterhouse/chapterhouse/internal/audit/http"
	"github.com/chapterhouse/chapterhouse/internal/auth"
	"github.com/chapterhouse/chapterhouse/internal/catalog"
	"github.com/chapterhouse/chapterhouse/internal/comments"
	"github.com/chapterhouse/chapterhouse/internal/identity"
	"github.com/chapterhouse/chapterhouse/internal/observability"
	"github.com/chapterhouse/chapterhouse/internal/platform/httpx"
	"github.com/chapterhouse/chapterhouse/internal/ratings"
	"github.com/chapterhouse/chapterhouse/internal/reports"
	"github.com/chapterhouse/chapterhouse/internal/reviews"
	"github.com/chapterhouse/chapterhouse/internal/shared"
	"github.com/chapterhouse/chapterhouse/internal/users"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger          *slog.Logger
	Config          *Config
	SessionManager  *shared.SessionManager
	CSRFManager     *shared.CSRFManager
	Resolver        *identity.Resolver
	AuthHandler     *auth.Handler
	CatalogHandler  *catalog.Handler
	CommentsHandler *comments.Handler
	RatingsHandler  *ratings.Handler
	ReviewsHandler  *reviews.Handler
	ReportsHandler  *reports.Handler
	UsersHandler    *users.Handler
	AuditHandler    *audithttp.Handler
	Metrics         *observability.Metrics
}

// NewRouter constructs the chi.Router with Chapterhouse defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:         params.Logger,
		Config:         params.Config,
		SessionManager: params.SessionManager,
		CSRFManager:    params.CSRFManager,
		Resolver:       params.Resolver,
		Metrics:        params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Clients fetch the token here and send it back in the CSRF header
	// on every state-changing request.
	r.Get("/csrf", func(w http.ResponseWriter, r *http.Request) {
		sess := shared.SessionFromContext(r.Context())
		token, err := params.CSRFManager.EnsureToken(r.Context(), sess)
		if err != nil {
			params.Logger.Error("issue csrf token", slog.Any("error", err))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}
		httpx.JSON(w, http.StatusOK, map[string]string{"token": token})
	})

	if params.AuthHandler != nil {
		params.AuthHandler.MountRoutes(r)
	}
	if params.CatalogHandler != nil {
		params.CatalogHandler.MountRoutes(r)
	}
	if params.CommentsHandler != nil {
		params.CommentsHandler.MountRoutes(r)
	}
	if params.RatingsHandler != nil {
		params.RatingsHandler.MountRoutes(r)
	}
	if params.ReviewsHandler != nil {
		params.ReviewsHandler.MountRoutes(r)
	}
	if params.ReportsHandler != nil {
		params.ReportsHandler.MountRoutes(r)
	}
	if params.UsersHandler != nil {
		params.UsersHandler.MountRoutes(r)
	}
	if params.AuditHandler != nil {
		params.AuditHandler.MountRoutes(r)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
