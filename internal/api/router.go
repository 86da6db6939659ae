package api

import (
	"strings"
	"time"

	"github.com/clientcomm/core/internal/api/handlers"
	"github.com/clientcomm/core/internal/api/middleware"
	"github.com/clientcomm/core/internal/config"
	"github.com/clientcomm/core/internal/services"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Services are the application services the HTTP surface calls into
type Services struct {
	Users         *services.UserService
	Logs          *services.LogService
	Inbound       *services.InboundService
	Relationships *services.RelationshipService
	Messages      *services.MessageService
	Clients       *services.ClientService
	Court         *services.CourtReminderService
}

// SetupRouter initializes the Gin router with all routes configured
func SetupRouter(cfg *config.Config, auth *middleware.AuthManager, svc Services, logger *zap.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestLogger(logger))

	router.Use(cors.New(cors.Config{
		AllowOrigins:     strings.Split(cfg.CORSOrigins, ","),
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", middleware.APIKeyHeader},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	webhookHandler := handlers.NewWebhookHandler(svc.Inbound, cfg.VoiceResponse, logger)
	authHandler := handlers.NewAuthHandler(svc.Users, auth.JWTManager, svc.Logs)
	userHandler := handlers.NewUserHandler(svc.Users, svc.Logs)
	relationshipHandler := handlers.NewRelationshipHandler(svc.Relationships, svc.Messages)
	messageHandler := handlers.NewMessageHandler(svc.Messages)
	clientHandler := handlers.NewClientHandler(svc.Clients)
	courtHandler := handlers.NewCourtHandler(svc.Court)

	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Provider webhooks
	incoming := router.Group("/incoming")
	{
		if cfg.ValidateSignatures {
			incoming.Use(middleware.SignatureMiddleware(cfg.TwilioAuthToken, cfg.DeployBaseURL, logger))
		}
		incoming.POST("/sms", webhookHandler.IncomingSMS)
		incoming.POST("/sms/status", webhookHandler.IncomingStatus)
		incoming.POST("/voice", webhookHandler.IncomingVoice)
	}

	api := router.Group("/api")
	{
		api.Use(middleware.APIKeyMiddleware(auth.APIKeyManager))

		api.POST("/auth/login", authHandler.Login)

		protected := api.Group("")
		protected.Use(middleware.JWTMiddleware(auth.JWTManager))
		{
			protected.POST("/auth/refresh", authHandler.RefreshToken)
			protected.GET("/auth/me", authHandler.GetCurrentUser)

			protected.PUT("/user/profile", userHandler.UpdateProfile)
			protected.PUT("/user/password", userHandler.ChangePassword)

			relationships := protected.Group("/relationships")
			{
				relationships.GET("", relationshipHandler.ListRelationships)
				relationships.GET("/followups", relationshipHandler.ListFollowUps)
				relationships.PUT("/:id", clientHandler.UpdateDetails)
				relationships.GET("/:id/messages", relationshipHandler.ListMessages)
				relationships.POST("/:id/messages", relationshipHandler.SendMessage)
				relationships.PUT("/:id/read", relationshipHandler.MarkRead)
				relationships.POST("/:id/transfer", relationshipHandler.Transfer)
				relationships.POST("/:id/merge", relationshipHandler.Merge)
				relationships.POST("/:id/deactivate", relationshipHandler.Deactivate)
			}

			protected.PUT("/messages/:id", messageHandler.Reschedule)
			protected.DELETE("/messages/:id", messageHandler.Delete)

			protected.POST("/clients", clientHandler.Create)
			protected.PUT("/clients/:id/court_date", clientHandler.SetCourtDate)

			protected.POST("/court_dates", courtHandler.Upload)
		}
	}

	return router
}
