// cmd/main.go is the application entry point.
// It wires together all layers and starts the HTTP server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/glenn-app/glenn-backend/internal/auth"
	"github.com/glenn-app/glenn-backend/internal/config"
	"github.com/glenn-app/glenn-backend/internal/database"
	"github.com/glenn-app/glenn-backend/internal/handler"
	"github.com/glenn-app/glenn-backend/internal/logger"
	"github.com/glenn-app/glenn-backend/internal/metrics"
	"github.com/glenn-app/glenn-backend/internal/notify"
	"github.com/glenn-app/glenn-backend/internal/push"
	"github.com/glenn-app/glenn-backend/internal/repository"
	"github.com/glenn-app/glenn-backend/internal/service"
	"github.com/glenn-app/glenn-backend/internal/upload"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	ctx := context.Background()

	// ── 1. Configuration and logging ─────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	appLog, err := logger.New(logger.Config{
		Level:       cfg.App.LogLevel,
		ServiceName: cfg.App.Name,
		Development: !cfg.IsProduction(),
	})
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = appLog.Sync() }()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	// ── 2. Connect to PostgreSQL ──────────────────────────────────────────
	pool, err := database.NewPool(ctx, cfg.Database, appLog)
	if err != nil {
		appLog.Fatal("database", zap.Error(err))
	}
	defer pool.Close()
	if cfg.Database.AutoMigrate {
		if err := database.Migrate(ctx, pool); err != nil {
			appLog.Fatal("migrate", zap.Error(err))
		}
	}
	appLog.Info("connected to PostgreSQL")

	// ── 3. Notifications ──────────────────────────────────────────────────
	notificationRepo := repository.NewNotificationRepository(pool)
	dispatcher := notify.NewDispatcher(
		notificationRepo,
		repository.NewDeviceRepository(pool),
		push.NewOneSignalClient(cfg.OneSignal),
		notify.Options{
			Workers:       cfg.Notify.Workers,
			QueueSize:     cfg.Notify.QueueSize,
			RatePerSecond: cfg.Notify.PushRatePerSecond,
			Burst:         cfg.Notify.PushBurst,
			MaxAttempts:   cfg.Notify.MaxAttempts,
		},
		appLog, m,
	)
	dispatcher.Start()

	var reconciler *notify.Reconciler
	if cfg.Notify.ReconcileEnabled {
		reconciler = notify.NewReconciler(notificationRepo, dispatcher, notify.ReconcilerOptions{
			Interval:    cfg.Notify.ReconcileInterval,
			MinAge:      cfg.Notify.ReconcileMinAge,
			BatchSize:   cfg.Notify.ReconcileBatchSize,
			MaxAttempts: cfg.Notify.MaxAttempts,
		}, appLog)
		if err := reconciler.Start(); err != nil {
			appLog.Fatal("reconciler", zap.Error(err))
		}
	}

	// ── 4. Uploads ────────────────────────────────────────────────────────
	limits := upload.Limits{PerMinute: cfg.Upload.PerMinute, PerHour: cfg.Upload.PerHour}
	var limiter upload.Limiter = upload.NewMemoryLimiter(limits)
	var rdb *redis.Client
	if cfg.Redis.Enabled() {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			appLog.Fatal("redis", zap.Error(err))
		}
		limiter = upload.NewRedisLimiter(rdb, "", limits)
		appLog.Info("upload rate limits shared through Redis", zap.String("addr", cfg.Redis.Addr))
	}

	provider, err := upload.NewProvider(ctx, cfg.Upload)
	if err != nil {
		appLog.Fatal("upload provider", zap.Error(err))
	}
	uploads := upload.NewService(provider, limiter, upload.Options{
		MaxFileBytes:  cfg.Upload.MaxFileBytes,
		DefaultFolder: cfg.Upload.DefaultFolder,
		TagPrefix:     cfg.Upload.TagPrefix,
	}, appLog, m)

	// ── 5. Wire up layers ────────────────────────────────────────────────
	verifier, err := auth.New(cfg.Auth)
	if err != nil {
		appLog.Fatal("auth", zap.Error(err))
	}

	profileRepo := repository.NewProfileRepository(pool)
	coordinator := service.NewCoordinator(service.Stores{
		Tournaments:  repository.NewTournamentRepository(pool),
		Wallets:      repository.NewWalletRepository(pool),
		Transactions: repository.NewTransactionRepository(pool),
		Participants: repository.NewParticipantRepository(pool),
		Profiles:     profileRepo,
	}, dispatcher, appLog, m)
	follows := service.NewFollowService(profileRepo, repository.NewFollowRepository(pool), dispatcher, appLog)
	notifications := service.NewNotificationService(notificationRepo)

	// ── 6. Build the router ───────────────────────────────────────────────
	router := handler.NewRouter(handler.RouterDeps{
		Tournaments:    handler.NewTournamentHandler(coordinator, appLog),
		Social:         handler.NewSocialHandler(follows, appLog),
		Notifications:  handler.NewNotificationHandler(notifications, appLog),
		Uploads:        handler.NewUploadHandler(uploads, cfg.Upload.MaxFileBytes, appLog),
		Verifier:       verifier,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Log:            appLog,
		Metrics:        m,
	})

	// ── 7. Start server with graceful shutdown ────────────────────────────
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Run in background goroutine so we can listen for shutdown signal.
	go func() {
		appLog.Info("server listening", zap.Int("port", cfg.Server.Port), zap.String("env", cfg.App.Environment))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLog.Fatal("server error", zap.Error(err))
		}
	}()

	// Block until SIGINT or SIGTERM.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLog.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLog.Error("graceful shutdown failed", zap.Error(err))
	}
	if reconciler != nil {
		if err := reconciler.Stop(); err != nil {
			appLog.Warn("reconciler stop", zap.Error(err))
		}
	}
	if err := dispatcher.Stop(shutdownCtx); err != nil {
		appLog.Warn("notification dispatcher stop", zap.Error(err))
	}
	if rdb != nil {
		_ = rdb.Close()
	}
	appLog.Info("server stopped")
}
