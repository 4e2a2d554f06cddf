package handlers

import (
	"net/http"
	"strconv"

	"goal_planner/internal/services"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type SessionHandler struct {
	sessions services.SessionService
	logger   *zap.Logger
}

func NewSessionHandler(sessions services.SessionService, logger *zap.Logger) *SessionHandler {
	return &SessionHandler{
		sessions: sessions,
		logger:   logger,
	}
}

type SubmitGoalRequest struct {
	Goal string `json:"goal"`
}

type UpdateTaskRequest struct {
	Title string `json:"title"`
}

func (h *SessionHandler) CreateSession(c *gin.Context) {
	id, err := h.sessions.CreateSession(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"session_id": id})
}

func (h *SessionHandler) GetSession(c *gin.Context) {
	st, err := h.sessions.GetState(c.Request.Context(), c.Param("session_id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (h *SessionHandler) DeleteSession(c *gin.Context) {
	sessionID := c.Param("session_id")
	if err := h.sessions.DeleteSession(c.Request.Context(), sessionID); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"session_id": sessionID,
		"status":     "deleted",
	})
}

func (h *SessionHandler) SubmitGoal(c *gin.Context) {
	var req SubmitGoalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format"})
		return
	}

	res, err := h.sessions.SubmitGoal(c.Request.Context(), c.Param("session_id"), req.Goal)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	setSourceHeaders(c, res.Source, res.Reason)
	c.JSON(http.StatusOK, gin.H{
		"state":  res.State,
		"source": res.Source,
		"reason": res.Reason,
	})
}

func (h *SessionHandler) ResetGoal(c *gin.Context) {
	st, err := h.sessions.ResetGoal(c.Request.Context(), c.Param("session_id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (h *SessionHandler) GetProgress(c *gin.Context) {
	progress, err := h.sessions.Progress(c.Request.Context(), c.Param("session_id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, progress)
}

func (h *SessionHandler) ListTasks(c *gin.Context) {
	tasks, err := h.sessions.TasksForDate(c.Request.Context(), c.Param("session_id"), c.Query("date"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tasks": tasks})
}

func (h *SessionHandler) AddTask(c *gin.Context) {
	var req services.AddTaskInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format"})
		return
	}

	task, err := h.sessions.AddTask(c.Request.Context(), c.Param("session_id"), req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, task)
}

func (h *SessionHandler) UpdateTask(c *gin.Context) {
	taskID, ok := parseTaskID(c)
	if !ok {
		return
	}
	var req UpdateTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format"})
		return
	}

	task, err := h.sessions.UpdateTaskTitle(c.Request.Context(), c.Param("session_id"), taskID, req.Title)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

func (h *SessionHandler) DeleteTask(c *gin.Context) {
	taskID, ok := parseTaskID(c)
	if !ok {
		return
	}
	if err := h.sessions.DeleteTask(c.Request.Context(), c.Param("session_id"), taskID); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

func (h *SessionHandler) ToggleTask(c *gin.Context) {
	taskID, ok := parseTaskID(c)
	if !ok {
		return
	}
	task, err := h.sessions.ToggleTask(c.Request.Context(), c.Param("session_id"), taskID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

func (h *SessionHandler) SplitTask(c *gin.Context) {
	taskID, ok := parseTaskID(c)
	if !ok {
		return
	}
	res, err := h.sessions.SplitTask(c.Request.Context(), c.Param("session_id"), taskID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	setSourceHeaders(c, res.Source, res.Reason)
	c.JSON(http.StatusOK, gin.H{
		"tasks":  res.Tasks,
		"source": res.Source,
		"reason": res.Reason,
	})
}

func parseTaskID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("task_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid task ID"})
		return 0, false
	}
	return id, true
}
