package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/greenloop/recircle-backend/internal/http/response"
	"github.com/greenloop/recircle-backend/internal/pkg/logger"
	"github.com/greenloop/recircle-backend/internal/repos"
	"github.com/greenloop/recircle-backend/internal/requestdata"
	"github.com/greenloop/recircle-backend/internal/services"
	"github.com/greenloop/recircle-backend/internal/types"
)

// maxImageBytes caps the uploaded evidence photo. Anything bigger is
// rejected before it reaches the bucket.
const maxImageBytes = 10 << 20

type ActionHandler struct {
	log           *logger.Logger
	actionService services.ActionService
}

func NewActionHandler(log *logger.Logger, actionService services.ActionService) *ActionHandler {
	return &ActionHandler{
		log:           log.With("handler", "ActionHandler"),
		actionService: actionService,
	}
}

// submitActionPayload is the "metadata" part of the multipart
// submission. The photo travels as the "image" part.
type submitActionPayload struct {
	PointID              string              `json:"point_id"`
	Material             string              `json:"material"`
	IdempotencyKey       string              `json:"idempotency_key"`
	Confidence           float64             `json:"confidence"`
	BoundingBoxAreaRatio float64             `json:"bounding_box_area_ratio"`
	FrameCountDetected   int                 `json:"frame_count_detected"`
	MotionScore          float64             `json:"motion_score"`
	FrameSamples         []types.FrameSample `json:"frame_samples"`
	PerceptualHash       string              `json:"perceptual_hash"`
	GpsLat               float64             `json:"gps_lat"`
	GpsLng               float64             `json:"gps_lng"`
	GpsAccuracy          float64             `json:"gps_accuracy"`
	GpsAltitude          *float64            `json:"gps_altitude"`
}

// POST /actions
func (ah *ActionHandler) Submit(c *gin.Context) {
	rd := requestdata.GetRequestData(c.Request.Context())
	if rd == nil {
		response.RespondError(c, http.StatusUnauthorized, "unauthorized", fmt.Errorf("missing request identity"))
		return
	}

	metadataRaw := c.PostForm("metadata")
	if strings.TrimSpace(metadataRaw) == "" {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", fmt.Errorf("missing metadata form field"))
		return
	}
	var payload submitActionPayload
	if err := json.Unmarshal([]byte(metadataRaw), &payload); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", fmt.Errorf("malformed metadata: %w", err))
		return
	}
	pointID, err := uuid.Parse(payload.PointID)
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_point_id", err)
		return
	}
	idempotencyKey := payload.IdempotencyKey
	if idempotencyKey == "" {
		idempotencyKey = strings.TrimSpace(c.GetHeader("Idempotency-Key"))
	}

	fileHeader, err := c.FormFile("image")
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "missing_image", err)
		return
	}
	if fileHeader.Size > maxImageBytes {
		response.RespondError(c, http.StatusRequestEntityTooLarge, "image_too_large", fmt.Errorf("image exceeds %d bytes", maxImageBytes))
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "unreadable_image", err)
		return
	}
	defer file.Close()

	action, err := ah.actionService.Submit(c.Request.Context(), services.SubmitActionRequest{
		UserID:               rd.UserID,
		PointID:              pointID,
		Material:             types.Material(strings.ToLower(payload.Material)),
		IdempotencyKey:       idempotencyKey,
		Confidence:           payload.Confidence,
		BoundingBoxAreaRatio: payload.BoundingBoxAreaRatio,
		FrameCountDetected:   payload.FrameCountDetected,
		MotionScore:          payload.MotionScore,
		FrameSamples:         payload.FrameSamples,
		PerceptualHash:       payload.PerceptualHash,
		GpsLat:               payload.GpsLat,
		GpsLng:               payload.GpsLng,
		GpsAccuracy:          payload.GpsAccuracy,
		GpsAltitude:          payload.GpsAltitude,
		Image:                file,
	})
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondAccepted(c, gin.H{"action": action})
}

// GET /actions/:id
func (ah *ActionHandler) Get(c *gin.Context) {
	rd := requestdata.GetRequestData(c.Request.Context())
	if rd == nil {
		response.RespondError(c, http.StatusUnauthorized, "unauthorized", fmt.Errorf("missing request identity"))
		return
	}
	actionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_action_id", err)
		return
	}
	action, err := ah.actionService.Get(c.Request.Context(), rd.UserID, rd.Role == types.RoleAdmin, actionID)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"action": action})
}

// GET /actions
func (ah *ActionHandler) List(c *gin.Context) {
	rd := requestdata.GetRequestData(c.Request.Context())
	if rd == nil {
		response.RespondError(c, http.StatusUnauthorized, "unauthorized", fmt.Errorf("missing request identity"))
		return
	}
	filter := repos.ActionListFilter{
		Status:   strings.ToUpper(strings.TrimSpace(c.Query("status"))),
		Material: types.Material(strings.ToLower(strings.TrimSpace(c.Query("material")))),
		Limit:    intQuery(c, "limit", 0),
		Offset:   intQuery(c, "offset", 0),
	}
	if raw := strings.TrimSpace(c.Query("point_id")); raw != "" {
		pointID, err := uuid.Parse(raw)
		if err != nil {
			response.RespondError(c, http.StatusBadRequest, "invalid_point_id", err)
			return
		}
		filter.PointID = &pointID
	}
	if raw := strings.TrimSpace(c.Query("from")); raw != "" {
		from, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			response.RespondError(c, http.StatusBadRequest, "invalid_from", err)
			return
		}
		filter.From = &from
	}
	if raw := strings.TrimSpace(c.Query("to")); raw != "" {
		to, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			response.RespondError(c, http.StatusBadRequest, "invalid_to", err)
			return
		}
		filter.To = &to
	}
	actions, total, err := ah.actionService.List(c.Request.Context(), rd.UserID, filter)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"actions": actions, "total": total})
}

func intQuery(c *gin.Context, key string, fallback int) int {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}
