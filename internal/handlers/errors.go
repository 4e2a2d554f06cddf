package handlers

import (
	"errors"
	"net/http"

	"goal_planner/internal/services"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// respondError maps service errors to status codes. Anything unrecognized
// is logged and reported as a 500 without detail.
func respondError(c *gin.Context, logger *zap.Logger, err error) {
	var inputErr *services.InputError
	switch {
	case errors.As(err, &inputErr):
		c.JSON(http.StatusBadRequest, gin.H{"error": inputErr.Message, "field": inputErr.Field})
	case errors.Is(err, services.ErrSessionNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Session not found"})
	case errors.Is(err, services.ErrTaskNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Task not found"})
	case errors.Is(err, services.ErrNoGoal):
		c.JSON(http.StatusConflict, gin.H{"error": "No goal has been set"})
	case errors.Is(err, services.ErrInProgress):
		c.JSON(http.StatusConflict, gin.H{"error": "Operation already in progress"})
	default:
		logger.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}

func setSourceHeaders(c *gin.Context, source services.Source, reason *services.FailureReason) {
	c.Header(PlanSourceHeader, string(source))
	if reason != nil {
		c.Header(FallbackReasonHeader, string(reason.Kind))
	}
}
