package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/greenloop/recircle-backend/internal/services"
)

type HealthHandler struct {
	db *gorm.DB
	ai services.AIClientService
}

func NewHealthHandler(db *gorm.DB, ai services.AIClientService) *HealthHandler {
	return &HealthHandler{db: db, ai: ai}
}

func (h *HealthHandler) HealthCheck(c *gin.Context) {
	c.String(http.StatusOK, "ok")
}

// Readiness reports database connectivity and the configured AI
// provider chain. An empty chain is not fatal (submissions score
// neutral) but is worth surfacing.
func (h *HealthHandler) Readiness(c *gin.Context) {
	status := http.StatusOK
	dbStatus := "ok"
	if h.db != nil {
		sqlDB, err := h.db.DB()
		if err == nil {
			err = sqlDB.PingContext(c.Request.Context())
		}
		if err != nil {
			dbStatus = err.Error()
			status = http.StatusServiceUnavailable
		}
	} else {
		dbStatus = "not configured"
		status = http.StatusServiceUnavailable
	}

	var providers []string
	if h.ai != nil {
		providers = h.ai.Providers()
	}

	c.JSON(status, gin.H{
		"database":     dbStatus,
		"ai_providers": providers,
	})
}
