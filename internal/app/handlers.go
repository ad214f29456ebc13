package app

import (
	"gorm.io/gorm"

	"github.com/greenloop/recircle-backend/internal/http/handlers"
	"github.com/greenloop/recircle-backend/internal/pkg/logger"
	"github.com/greenloop/recircle-backend/internal/realtime"
)

type Handlers struct {
	Health   *handlers.HealthHandler
	Auth     *handlers.AuthHandler
	User     *handlers.UserHandler
	Action   *handlers.ActionHandler
	Point    *handlers.PointHandler
	Realtime *handlers.RealtimeHandler
}

func wireHandlers(db *gorm.DB, log *logger.Logger, clients Clients, services Services, hub *realtime.Hub) Handlers {
	log.Info("Wiring handlers...")
	return Handlers{
		Health:   handlers.NewHealthHandler(db, clients.AI),
		Auth:     handlers.NewAuthHandler(services.Auth),
		User:     handlers.NewUserHandler(services.User),
		Action:   handlers.NewActionHandler(log, services.Action),
		Point:    handlers.NewPointHandler(services.Point),
		Realtime: handlers.NewRealtimeHandler(log, hub),
	}
}
