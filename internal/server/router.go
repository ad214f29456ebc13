package server

import (
	"github.com/gin-gonic/gin"

	"github.com/greenloop/recircle-backend/internal/http/handlers"
	"github.com/greenloop/recircle-backend/internal/http/middleware"
	"github.com/greenloop/recircle-backend/internal/pkg/logger"
)

type RouterConfig struct {
	Log             *logger.Logger
	AuthMiddleware  *middleware.AuthMiddleware
	HealthHandler   *handlers.HealthHandler
	AuthHandler     *handlers.AuthHandler
	UserHandler     *handlers.UserHandler
	ActionHandler   *handlers.ActionHandler
	PointHandler    *handlers.PointHandler
	RealtimeHandler *handlers.RealtimeHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS())
	router.Use(middleware.AttachTraceContext())
	router.Use(middleware.RequestLogger(cfg.Log))

	// ===============
	// || Public    ||
	// ===============
	router.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
	router.GET("/readyz", cfg.HealthHandler.Readiness)

	api := router.Group("/api")
	auth := api.Group("/auth")
	{
		auth.POST("/register", cfg.AuthHandler.Register)
		auth.POST("/login", cfg.AuthHandler.Login)
		// Refresh and logout carry the refresh token in the body, so
		// an expired access token never locks a client out.
		auth.POST("/refresh", cfg.AuthHandler.Refresh)
		auth.POST("/logout", cfg.AuthHandler.Logout)
	}

	// ===============
	// || Protected ||
	// ===============
	protected := api.Group("/")
	protected.Use(cfg.AuthMiddleware.RequireAuth())

	// User
	protected.GET("/me", cfg.UserHandler.GetMe)
	protected.GET("/me/trust", cfg.UserHandler.GetTrustHistory)
	protected.GET("/me/rewards", cfg.UserHandler.GetRewards)

	// Actions
	protected.POST("/actions", cfg.ActionHandler.Submit)
	protected.GET("/actions", cfg.ActionHandler.List)
	protected.GET("/actions/stream", cfg.RealtimeHandler.Stream)
	protected.GET("/actions/:id", cfg.ActionHandler.Get)

	// Points
	protected.GET("/points", cfg.PointHandler.ListActive)
	protected.GET("/points/nearby", cfg.PointHandler.ListNearby)
	protected.GET("/points/:id", cfg.PointHandler.Get)

	// ===============
	// || Admin     ||
	// ===============
	admin := api.Group("/admin")
	admin.Use(cfg.AuthMiddleware.RequireAuth(), cfg.AuthMiddleware.RequireAdmin())
	admin.POST("/points", cfg.PointHandler.Create)
	admin.PATCH("/points/:id/active", cfg.PointHandler.SetActive)

	return router
}
