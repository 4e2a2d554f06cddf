package handlers

import (
	"net/http"

	"goal_planner/internal/services"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	// PlanSourceHeader carries "ai" or "fallback".
	PlanSourceHeader = "X-Plan-Source"
	// FallbackReasonHeader carries the failure kind when the fallback was used.
	FallbackReasonHeader = "X-Plan-Fallback-Reason"
)

// PlannerHandler serves the stateless decomposition endpoints.
type PlannerHandler struct {
	planner  services.GoalPlanner
	splitter services.TaskSplitter
	logger   *zap.Logger
}

func NewPlannerHandler(planner services.GoalPlanner, splitter services.TaskSplitter, logger *zap.Logger) *PlannerHandler {
	return &PlannerHandler{
		planner:  planner,
		splitter: splitter,
		logger:   logger,
	}
}

type AnalyzeGoalRequest struct {
	Goal string `json:"goal"`
}

type SplitTaskRequest struct {
	TaskTitle string `json:"taskTitle"`
}

func (h *PlannerHandler) AnalyzeGoal(c *gin.Context) {
	var req AnalyzeGoalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format"})
		return
	}

	d, err := h.planner.Decompose(c.Request.Context(), req.Goal)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	setSourceHeaders(c, d.Source, d.Reason)
	c.JSON(http.StatusOK, d.Plan)
}

func (h *PlannerHandler) SplitTask(c *gin.Context) {
	var req SplitTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format"})
		return
	}

	split, err := h.splitter.Split(c.Request.Context(), req.TaskTitle)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	setSourceHeaders(c, split.Source, split.Reason)
	c.JSON(http.StatusOK, gin.H{"subtasks": split.Subtasks})
}
