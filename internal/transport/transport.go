package transport

import (
	"time"

	"github.com/ds124wfegd/chess-payments/internal/transport/middleware"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

type RouterConfig struct {
	AdminToken     string
	RequestTimeout time.Duration
}

func InitRoutes(webhook *WebhookHandler, admin *AdminHandler, health *HealthHandler,
	cfg RouterConfig, log logrus.FieldLogger) *gin.Engine {

	router := gin.New()

	// Middleware
	router.Use(gin.Recovery())
	router.Use(middleware.Logger(log))
	if cfg.RequestTimeout > 0 {
		router.Use(middleware.Timeout(cfg.RequestTimeout))
	}

	// Provider callbacks
	router.POST("/webhooks/payments", webhook.HandlePaymentEvent)

	// API routes
	api := router.Group("/api/v1")
	{
		// Admin routes
		ops := api.Group("/admin", middleware.AdminToken(cfg.AdminToken))
		{
			ops.GET("/bookings/:id/events", admin.GetBookingEvents)

			notifications := ops.Group("/notifications/failed")
			{
				notifications.GET("", admin.ListFailedNotifications)
				notifications.GET("/stats", admin.FailedNotificationStats)
				notifications.POST("/:id/resend", admin.ResendNotification)
				notifications.DELETE("/:id", admin.DiscardNotification)
			}
		}
	}

	// Health check
	router.GET("/health", health.Live)
	router.GET("/health/ready", health.Ready)

	return router
}
