package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/swapfolio/swapfolio-go/internal/api"
	"github.com/swapfolio/swapfolio-go/internal/cache"
	"github.com/swapfolio/swapfolio-go/internal/config"
	"github.com/swapfolio/swapfolio-go/internal/database"
	"github.com/swapfolio/swapfolio-go/internal/logging"
	"github.com/swapfolio/swapfolio-go/internal/middleware"
	"github.com/swapfolio/swapfolio-go/internal/services"
	"github.com/swapfolio/swapfolio-go/internal/telemetry"
	"github.com/swapfolio/swapfolio-go/internal/upstream"
	"github.com/swapfolio/swapfolio-go/pkg/interfaces"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Application failed: %v\n", err)
		os.Exit(1)
	}
}

// run owns the startup sequence: configuration, telemetry, stores,
// pipeline services, HTTP server, and the mirrored shutdown order.
func run() error {
	// Missing .env is fine; containers inject real environment variables.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logLevel := cfg.Telemetry.LogLevel
	if logLevel == "" {
		logLevel = cfg.LogLevel
	}
	logger := logging.NewLogger(logLevel, cfg.Environment)

	shutdownLogs := func(context.Context) error { return nil }
	if cfg.Telemetry.Enabled {
		shutdownLogs, err = logging.AttachOTLPHook(logger, logging.OTLPConfig{
			Endpoint:       cfg.Telemetry.OTLPEndpoint,
			ServiceName:    cfg.Telemetry.ServiceName,
			ServiceVersion: cfg.Telemetry.ServiceVersion,
			Environment:    cfg.Environment,
		})
		if err != nil {
			logger.WithError(err).Warn("OTLP log export disabled")
			shutdownLogs = func(context.Context) error { return nil }
		}
	}

	if err := telemetry.InitTelemetry(telemetry.TelemetryConfig{
		Enabled:        cfg.Telemetry.Enabled,
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: cfg.Telemetry.ServiceVersion,
		Environment:    cfg.Environment,
	}); err != nil {
		logger.WithError(err).Warn("Tracing disabled")
	}

	recovery := services.NewErrorRecoveryManager(logger)

	var db *database.PostgresDB
	err = recovery.ExecuteWithRetry(context.Background(), "database_connect", func() error {
		var connErr error
		db, connErr = database.NewPostgresConnection(&cfg.Database)
		return connErr
	})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	// Redis is a soft dependency: without it the result cache runs on the
	// in-process fallback alone and observations report degraded status.
	redisClient, err := database.NewRedisConnectionWithRetry(cfg.Redis, recovery)
	if err != nil {
		logger.WithError(err).Error("Failed to connect to Redis, running on in-process cache only")
		redisClient = nil
	} else {
		defer redisClient.Close()
	}

	subscriptions := database.NewSubscriptionRepository(db.Pool)
	notificationLog := database.NewNotificationLogRepository(db.Pool)

	fallbackCache := cache.NewMemoryResultCache()
	var resultCache interfaces.ResultCache
	if redisClient != nil {
		resultCache = cache.NewRedisResultCache(redisClient.Client, cfg.Cache.KeyPrefix, logger)
	}

	riskSource := upstream.NewSecurityScanner(cfg.Upstream.Security, logger)
	liquiditySource := upstream.NewLiquidityFeed(cfg.Upstream.Liquidity, logger)

	var sender interfaces.MessageSender
	delivery, err := services.NewTelegramDelivery(cfg.Telegram.BotToken, cfg.Notifications, logger)
	if err != nil {
		logger.WithError(err).Error("Telegram delivery unavailable, notifications will be rejected")
	} else {
		sender = delivery
	}

	escalations := services.NewEscalationDetector(cfg.Escalation)
	notifier := services.NewNotificationTrigger(subscriptions, sender, escalations, notificationLog, cfg.Notifications, logger)
	evaluator := services.NewSignalEvaluator(
		riskSource,
		liquiditySource,
		resultCache,
		fallbackCache,
		subscriptions,
		escalations,
		notifier,
		cfg,
		logger,
	)

	monitor := services.NewSystemMonitor(logger)
	sweeper := services.NewSweeper(evaluator, fallbackCache, notificationLog, recovery, monitor, cfg.Sweeper, logger)
	sweeper.Start()
	defer sweeper.Stop()

	authMiddleware := middleware.NewAuthMiddleware(cfg.Security.JWTSecret)
	adminMiddleware := middleware.NewAdminMiddleware(cfg.Security.AdminAPIKeyHash)

	if cfg.Environment != "development" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(cfg.Telemetry.ServiceName))
	router.Use(middleware.RequestLogger(logger))

	api.SetupRoutes(
		router,
		db,
		redisClient,
		evaluator,
		notifier,
		subscriptions,
		sweeper,
		monitor,
		resultCache,
		fallbackCache,
		cfg.Telemetry.ServiceVersion,
		authMiddleware,
		adminMiddleware,
		logger,
	)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       15 * time.Second,
	}

	go func() {
		logger.WithField("port", cfg.Server.Port).Info("Signal engine listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutdown signal received")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("Server forced to shutdown")
	}
	if err := telemetry.Shutdown(); err != nil {
		logger.WithError(err).Warn("Trace exporter shutdown failed")
	}
	if err := shutdownLogs(ctx); err != nil {
		logger.WithError(err).Warn("Log exporter shutdown failed")
	}

	logger.Info("Server exited gracefully")
	return nil
}
