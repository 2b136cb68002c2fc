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
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/gastromanager/gastromanager/internal/app"
	"github.com/gastromanager/gastromanager/internal/auth"
	"github.com/gastromanager/gastromanager/internal/journal"
	"github.com/gastromanager/gastromanager/internal/ledger"
	"github.com/gastromanager/gastromanager/internal/masterdata/catalog"
	"github.com/gastromanager/gastromanager/internal/masterdata/ingredients"
	"github.com/gastromanager/gastromanager/internal/masterdata/recipes"
	"github.com/gastromanager/gastromanager/internal/observability"
	"github.com/gastromanager/gastromanager/internal/rbac"
	"github.com/gastromanager/gastromanager/internal/shared"
	"github.com/gastromanager/gastromanager/internal/users"
	"github.com/gastromanager/gastromanager/internal/view"
	"github.com/gastromanager/gastromanager/jobs"
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

	dbpool, err := pgxpool.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	sessionManager := shared.NewSessionManager(redisClient, "gastro_session", cfg.SessionSecret, cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)

	templates, err := view.NewEngine()
	if err != nil {
		logger.Error("parse templates", slog.Any("error", err))
		os.Exit(1)
	}

	metrics := observability.NewMetrics()
	auditLogger := shared.NewAuditLogger(dbpool)

	authRepo := auth.NewRepository(dbpool)
	authService := auth.NewService(authRepo)
	authHandler := auth.NewHandler(logger, authService, templates, sessionManager, csrfManager)

	rbacService := rbac.NewService(dbpool)
	rbacMiddleware := rbac.Middleware{Perms: rbacService, Logger: logger}

	shopCatalog := catalog.New(dbpool)

	ledgerRepo := ledger.NewRepository(dbpool)
	idempotencyStore := shared.NewIdempotencyStore(dbpool)
	ledgerService := ledger.NewService(ledgerRepo, shopCatalog, auditLogger, idempotencyStore)
	ledgerHandler := ledger.NewHandler(logger, ledgerService, shopCatalog, templates, csrfManager, sessionManager, rbacMiddleware, metrics)

	ingredientsRepo := ingredients.NewRepository(dbpool)
	ingredientsService := ingredients.NewService(ingredientsRepo)
	ingredientsHandler := ingredients.NewHandler(logger, ingredientsService, templates, csrfManager, sessionManager, rbacMiddleware)

	recipesRepo := recipes.NewRepository(dbpool)
	recipesService := recipes.NewService(recipesRepo)
	recipesHandler := recipes.NewHandler(logger, recipesService, ingredientsService, templates, csrfManager, sessionManager, rbacMiddleware)

	usersRepo := users.NewRepository(dbpool)
	usersService := users.NewService(usersRepo)
	usersHandler := users.NewHandler(logger, usersService, templates, csrfManager, sessionManager, rbacMiddleware)

	journalRepo := journal.NewRepository(dbpool)
	journalService := journal.NewService(journalRepo)
	journalHandler := journal.NewHandler(logger, journalService, templates, csrfManager, sessionManager, rbacMiddleware)

	jobsInspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	jobsHandler := jobs.NewHandler(jobsInspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		Templates:          templates,
		SessionManager:     sessionManager,
		CSRFManager:        csrfManager,
		AuthHandler:        authHandler,
		LedgerHandler:      ledgerHandler,
		IngredientsHandler: ingredientsHandler,
		RecipesHandler:     recipesHandler,
		UsersHandler:       usersHandler,
		JournalHandler:     journalHandler,
		JobsHandler:        jobsHandler,
		Metrics:            metrics,
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
