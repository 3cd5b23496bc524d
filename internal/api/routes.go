package api

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/swapfolio/swapfolio-go/internal/api/handlers"
	"github.com/swapfolio/swapfolio-go/internal/database"
	"github.com/swapfolio/swapfolio-go/internal/middleware"
	"github.com/swapfolio/swapfolio-go/internal/services"
	"github.com/swapfolio/swapfolio-go/pkg/interfaces"
)

// SetupRoutes registers all HTTP routes and wires handlers to their
// dependencies.
//
// Route surface:
//   - /health, /ready, /live, /metrics: unauthenticated probes.
//   - GET /api/v1/signals/:chain/:token: public read-only observation.
//   - Wallet endpoints (evaluate, subscriptions, test notification): JWT
//     issued by the main webapp, wallet address taken from the token.
//   - /api/v1/admin/*: operator endpoints behind the admin API key.
func SetupRoutes(
	router *gin.Engine,
	db *database.PostgresDB,
	redis *database.RedisClient,
	evaluator *services.SignalEvaluator,
	notifier *services.NotificationTrigger,
	subscriptions *database.SubscriptionRepository,
	sweeper *services.Sweeper,
	monitor *services.SystemMonitor,
	resultCache interfaces.ResultCache,
	fallbackCache interfaces.ResultCache,
	version string,
	authMiddleware *middleware.AuthMiddleware,
	adminMiddleware *middleware.AdminMiddleware,
	logger *logrus.Logger,
) {
	healthHandler := handlers.NewHealthHandler(db, redis, monitor, version)
	signalsHandler := handlers.NewSignalsHandler(evaluator, logger)
	subscriptionsHandler := handlers.NewSubscriptionsHandler(subscriptions, notifier, logger)
	adminHandler := handlers.NewAdminHandler(evaluator, sweeper, monitor, resultCache, fallbackCache)

	router.GET("/health", healthHandler.Health)
	router.HEAD("/health", healthHandler.Health)
	router.GET("/ready", healthHandler.Ready)
	router.GET("/live", healthHandler.Live)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	v1.Use(middleware.RequestTelemetry())
	{
		signals := v1.Group("/signals")
		{
			signals.POST("/evaluate", authMiddleware.RequireAuth(), signalsHandler.EvaluateSignal)
			signals.GET("/:chain/:token", signalsHandler.GetSignal)
			signals.GET("/:chain/:token/status", adminMiddleware.RequireAdminAuth(), signalsHandler.SignalStatus)
		}

		subs := v1.Group("/subscriptions")
		subs.Use(authMiddleware.RequireAuth())
		{
			subs.GET("", subscriptionsHandler.GetSubscription)
			subs.PUT("", subscriptionsHandler.UpdateSubscription)
			subs.PATCH("/enabled", subscriptionsHandler.SetEnabled)
		}

		notifications := v1.Group("/notifications")
		notifications.Use(authMiddleware.RequireAuth())
		{
			notifications.POST("/test", subscriptionsHandler.TestNotification)
		}

		admin := v1.Group("/admin")
		admin.Use(adminMiddleware.RequireAdminAuth())
		{
			admin.GET("/status", adminHandler.Status)

			adminSweeper := admin.Group("/sweeper")
			{
				adminSweeper.GET("/status", adminHandler.SweeperStatus)
				adminSweeper.POST("/run", adminHandler.RunSweep)
				adminSweeper.POST("/pause", adminHandler.PauseSweeper)
				adminSweeper.POST("/resume", adminHandler.ResumeSweeper)
			}
		}
	}
}
