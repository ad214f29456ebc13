package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/greenloop/recircle-backend/internal/http/response"
	"github.com/greenloop/recircle-backend/internal/services"
)

type PointHandler struct {
	pointService services.PointService
}

func NewPointHandler(pointService services.PointService) *PointHandler {
	return &PointHandler{pointService: pointService}
}

// POST /admin/points
func (ph *PointHandler) Create(c *gin.Context) {
	var req services.CreatePointRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	point, err := ph.pointService.Create(c.Request.Context(), req)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondCreated(c, gin.H{"point": point})
}

// GET /points/:id
func (ph *PointHandler) Get(c *gin.Context) {
	pointID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_point_id", err)
		return
	}
	point, err := ph.pointService.Get(c.Request.Context(), pointID)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"point": point})
}

// GET /points
func (ph *PointHandler) ListActive(c *gin.Context) {
	points, err := ph.pointService.ListActive(c.Request.Context())
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"points": points})
}

// GET /points/nearby?lat=..&lng=..&radius=..
func (ph *PointHandler) ListNearby(c *gin.Context) {
	lat, err := floatQuery(c, "lat")
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_lat", err)
		return
	}
	lng, err := floatQuery(c, "lng")
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_lng", err)
		return
	}
	radius := 1000.0
	if raw := strings.TrimSpace(c.Query("radius")); raw != "" {
		radius, err = strconv.ParseFloat(raw, 64)
		if err != nil {
			response.RespondError(c, http.StatusBadRequest, "invalid_radius", err)
			return
		}
	}
	points, err := ph.pointService.ListNearby(c.Request.Context(), lat, lng, radius)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"points": points})
}

// PATCH /admin/points/:id/active
func (ph *PointHandler) SetActive(c *gin.Context) {
	pointID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_point_id", err)
		return
	}
	var req struct {
		Active *bool `json:"active"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	if req.Active == nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", fmt.Errorf("missing active flag"))
		return
	}
	if err := ph.pointService.SetActive(c.Request.Context(), pointID, *req.Active); err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"ok": true})
}

func floatQuery(c *gin.Context, key string) (float64, error) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return 0, fmt.Errorf("missing %s query parameter", key)
	}
	return strconv.ParseFloat(raw, 64)
}
