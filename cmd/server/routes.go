package main

import (
	"github.com/gin-gonic/gin"
	"github.com/huangang/timelogbot/internal/handlers"
	"github.com/huangang/timelogbot/internal/middleware"
	"github.com/huangang/timelogbot/pkg/logger"
)

// registerRoutes sets up the ops HTTP surface and returns the limiters so the
// caller can stop their sweepers on shutdown.
func registerRoutes(r *gin.Engine, svc *appServices) []*middleware.RateLimiter {
	r.Use(logger.GinLogger(), logger.GinRecovery())
	r.Use(middleware.CORS())

	apiLimiter := middleware.NewRateLimiter(1, 5)
	slackLimiter := middleware.NewRateLimiter(2, 10)

	healthHandler := handlers.NewHealthHandler(svc.taskQueue, svc.reportService)
	r.GET("/health", healthHandler.CheckHealth)

	slackHandler := handlers.NewSlackCommandHandler(svc.cfg.Slack.SigningSecret, svc.reportService, svc.taskQueue)
	r.POST("/slack/commands", slackLimiter.Middleware(), slackHandler.Handle)

	runHandler := handlers.NewRunHandler(svc.reportService, svc.taskQueue)
	api := r.Group("/api", middleware.AuthRequired())
	{
		api.POST("/runs", apiLimiter.Middleware(), runHandler.Trigger)
		api.GET("/runs/last", runHandler.Last)
	}

	return []*middleware.RateLimiter{apiLimiter, slackLimiter}
}
