package app

import (
	"github.com/gin-gonic/gin"

	"github.com/greenloop/recircle-backend/internal/pkg/logger"
	"github.com/greenloop/recircle-backend/internal/server"
)

func wireRouter(log *logger.Logger, handlers Handlers, middleware Middleware) *gin.Engine {
	return server.NewRouter(server.RouterConfig{
		Log:             log,
		AuthMiddleware:  middleware.Auth,
		HealthHandler:   handlers.Health,
		AuthHandler:     handlers.Auth,
		UserHandler:     handlers.User,
		ActionHandler:   handlers.Action,
		PointHandler:    handlers.Point,
		RealtimeHandler: handlers.Realtime,
	})
}
