package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/greenloop/recircle-backend/internal/http/response"
	"github.com/greenloop/recircle-backend/internal/requestdata"
	"github.com/greenloop/recircle-backend/internal/services"
)

type UserHandler struct {
	userService services.UserService
}

func NewUserHandler(userService services.UserService) *UserHandler {
	return &UserHandler{userService: userService}
}

// GET /me
func (uh *UserHandler) GetMe(c *gin.Context) {
	rd := requestdata.GetRequestData(c.Request.Context())
	if rd == nil {
		response.RespondError(c, http.StatusUnauthorized, "unauthorized", fmt.Errorf("missing request identity"))
		return
	}
	profile, err := uh.userService.GetProfile(c.Request.Context(), rd.UserID)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"me": profile})
}

// GET /me/trust
func (uh *UserHandler) GetTrustHistory(c *gin.Context) {
	rd := requestdata.GetRequestData(c.Request.Context())
	if rd == nil {
		response.RespondError(c, http.StatusUnauthorized, "unauthorized", fmt.Errorf("missing request identity"))
		return
	}
	entries, err := uh.userService.GetTrustHistory(c.Request.Context(), rd.UserID, intQuery(c, "limit", 0), intQuery(c, "offset", 0))
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"trust_history": entries})
}

// GET /me/rewards
func (uh *UserHandler) GetRewards(c *gin.Context) {
	rd := requestdata.GetRequestData(c.Request.Context())
	if rd == nil {
		response.RespondError(c, http.StatusUnauthorized, "unauthorized", fmt.Errorf("missing request identity"))
		return
	}
	rewards, err := uh.userService.GetRewards(c.Request.Context(), rd.UserID, intQuery(c, "limit", 0), intQuery(c, "offset", 0))
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"rewards": rewards})
}
