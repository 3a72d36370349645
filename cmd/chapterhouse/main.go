package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/chapterhouse/chapterhouse/internal/app"
	"github.com/chapterhouse/chapterhouse/internal/audit"
	audithttp "github.com/chapterhouse/chapterhouse/internal/audit/http"
	"github.com/chapterhouse/chapterhouse/internal/auth"
	"github.com/chapterhouse/chapterhouse/internal/catalog"
	"github.com/chapterhouse/chapterhouse/internal/comments"
	"github.com/chapterhouse/chapterhouse/internal/identity"
	"github.com/chapterhouse/chapterhouse/internal/observability"
	"github.com/chapterhouse/chapterhouse/internal/platform/cache"
	"github.com/chapterhouse/chapterhouse/internal/platform/db"
	"github.com/chapterhouse/chapterhouse/internal/policy"
	"github.com/chapterhouse/chapterhouse/internal/ratings"
	"github.com/chapterhouse/chapterhouse/internal/reports"
	"github.com/chapterhouse/chapterhouse/internal/reviews"
	"github.com/chapterhouse/chapterhouse/internal/shared"
	"github.com/chapterhouse/chapterhouse/internal/tagcache"
	"github.com/chapterhouse/chapterhouse/internal/throttle"
	"github.com/chapterhouse/chapterhouse/internal/users"
	"github.com/chapterhouse/chapterhouse/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	sessionManager := shared.NewSessionManager(redisClient, "chapterhouse_session", cfg.SessionSecret, cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)

	metrics := observability.NewMetrics()

	authz := policy.NewAuthorizer()
	authz.SetMetrics(metrics)

	limiter := throttle.NewLimiter(cfg.Throttle.ThrottleLimits(), logger)
	limiter.SetMetrics(metrics)
	go limiter.Run(ctx)

	cache := tagcache.New(metrics)
	ttl := cfg.Cache.TTLs()

	queueClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("init queue client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := queueClient.Close(); err != nil {
			logger.Warn("queue client close", slog.Any("error", err))
		}
	}()

	auditStore := audit.NewStore(dbpool)
	recorder := audit.NewRecorder(auditStore, queueClient, logger)
	timeline := audit.NewTimeline(auditStore)

	resolver := identity.NewResolver(identity.NewRepository(dbpool), logger)

	authService := auth.NewService(auth.NewRepository(dbpool), logger)
	authHandler := auth.NewHandler(authService, sessionManager, limiter, recorder, logger)

	catalogService := catalog.NewService(catalog.NewRepository(dbpool), cache, ttl, logger)
	catalogHandler := catalog.NewHandler(catalogService, authz, limiter, recorder, logger)

	commentsService := comments.NewService(comments.NewRepository(dbpool), cache, ttl, logger)
	commentsHandler := comments.NewHandler(commentsService, authz, limiter, recorder, logger)

	ratingsService := ratings.NewService(ratings.NewRepository(dbpool), cache, ttl, logger)
	ratingsHandler := ratings.NewHandler(ratingsService, authz, limiter, recorder, logger)

	reviewsService := reviews.NewService(reviews.NewRepository(dbpool), cache, ttl, logger)
	reviewsHandler := reviews.NewHandler(reviewsService, authz, limiter, recorder, logger)

	reportsService := reports.NewService(reports.NewRepository(dbpool), logger)
	reportsHandler := reports.NewHandler(reportsService, authz, limiter, recorder, logger)

	usersService := users.NewService(users.NewRepository(dbpool), cache, ttl, logger)
	usersHandler := users.NewHandler(usersService, authz, recorder, logger)

	auditHandler := audithttp.NewHandler(timeline, authz, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:          logger,
		Config:          cfg,
		SessionManager:  sessionManager,
		CSRFManager:     csrfManager,
		Resolver:        resolver,
		AuthHandler:     authHandler,
		CatalogHandler:  catalogHandler,
		CommentsHandler: commentsHandler,
		RatingsHandler:  ratingsHandler,
		ReviewsHandler:  reviewsHandler,
		ReportsHandler:  reportsHandler,
		UsersHandler:    usersHandler,
		AuditHandler:    auditHandler,
		Metrics:         metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
