package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/userhub/userhub-web/internal/admin"
	"github.com/userhub/userhub-web/internal/app"
	"github.com/userhub/userhub-web/internal/auth"
	"github.com/userhub/userhub-web/internal/backend"
	"github.com/userhub/userhub-web/internal/dashboard"
	"github.com/userhub/userhub-web/internal/observability"
	"github.com/userhub/userhub-web/internal/platform/cache"
	"github.com/userhub/userhub-web/internal/profile"
	"github.com/userhub/userhub-web/internal/rbac"
	"github.com/userhub/userhub-web/internal/shared"
	"github.com/userhub/userhub-web/internal/view"
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

	redisClient, err := cache.New(ctx, cache.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	if err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	sessionManager := shared.NewSessionManager(redisClient, "userhub_session", cfg.SessionSecret, cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)

	templates, err := view.NewEngine()
	if err != nil {
		logger.Error("parse templates", slog.Any("error", err))
		os.Exit(1)
	}

	metrics := observability.NewMetrics()

	tracerProvider, err := observability.NewTracerProvider(cfg.TraceExporter, cfg.ServiceName, os.Stdout)
	if err != nil {
		logger.Error("tracer provider", slog.Any("error", err))
		os.Exit(1)
	}
	otel.SetTracerProvider(tracerProvider)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
			logger.Warn("tracer shutdown", slog.Any("error", err))
		}
	}()

	api := backend.NewClient(cfg.BackendURL,
		backend.WithTimeout(cfg.BackendTimeout),
		backend.WithObserver(metrics),
		backend.WithTracerProvider(tracerProvider),
	)

	authStore := auth.NewStore(api, sessionManager, csrfManager, logger)
	authHandler := auth.NewHandler(logger, authStore, templates, csrfManager, cfg.AuthRateLimitPerMinute)

	adminService := admin.NewService(api, admin.NewRedisGuard(redisClient), admin.Config{
		PageSize:     cfg.AdminPageSize,
		Grace:        cfg.AdminActionGrace,
		DismissAfter: cfg.BannerDismissAfter,
	}, logger)
	adminService.SetObserver(metrics)
	adminHandler := admin.NewHandler(logger, adminService, authStore, templates, csrfManager)

	profileHandler := profile.NewHandler(logger, profile.NewService(api), authStore, templates, csrfManager)
	dashboardHandler := dashboard.NewHandler(logger, templates, csrfManager)

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		SessionManager:   sessionManager,
		CSRFManager:      csrfManager,
		AuthStore:        authStore,
		AuthHandler:      authHandler,
		DashboardHandler: dashboardHandler,
		ProfileHandler:   profileHandler,
		AdminHandler:     adminHandler,
		RBACMiddleware:   rbac.Middleware{Logger: logger},
		Metrics:          metrics,
		HealthChecks: map[string]app.HealthCheck{
			"backend": api.Ping,
			"redis": func(ctx context.Context) error {
				return redisClient.Ping(ctx).Err()
			},
		},
		RequestLog: !cfg.IsProduction(),
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr), slog.String("backend", cfg.BackendURL))
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
