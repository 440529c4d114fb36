package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"ms-bookings/internal/logger"
	"ms-bookings/internal/reputation"
	"ms-bookings/internal/utils"
)

type Handler struct {
	reputationService *reputation.Service
	logger            *logger.Logger
}

func NewHandler(reputationService *reputation.Service, logger *logger.Logger) *Handler {
	return &Handler{reputationService: reputationService, logger: logger}
}

// RegisterRoutes mounts the reputation endpoints on a gin engine.
func (h *Handler) RegisterRoutes(r gin.IRouter) {
	r.GET("/api/v1/reputation/:userId", h.GetSummary)
	r.POST("/internal/v1/reputation/recalculate", h.RecalculateAll)
}

// GetSummary returns a user's aggregate reputation, or 404 when the user has
// no reputation row yet.
func (h *Handler) GetSummary(c *gin.Context) {
	userID := c.Param("userId")

	score, err := h.reputationService.GetReputationSummary(c.Request.Context(), userID)
	if err != nil {
		h.logger.Error("REPUTATION", "Failed to load summary for "+userID+": "+err.Error())
		c.JSON(http.StatusInternalServerError, utils.ErrorResponse("Could not load reputation", err.Error()))
		return
	}
	if score == nil {
		c.JSON(http.StatusNotFound, utils.ErrorResponse("No reputation recorded", "user has no reputation events yet"))
		return
	}
	c.JSON(http.StatusOK, utils.SuccessResponse("Reputation summary", score))
}

// RecalculateAll is the maintenance entry point: it re-derives every user's
// aggregate from scratch. Triggered by infrastructure, not end users.
func (h *Handler) RecalculateAll(c *gin.Context) {
	result, err := h.reputationService.RecalculateAllScores(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, utils.ErrorResponse("Recalculation failed", err.Error()))
		return
	}
	c.JSON(http.StatusOK, utils.SuccessResponse("Recalculation complete", result))
}
