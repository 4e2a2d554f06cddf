package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RegisterRoutes mounts the API on router. metrics may be nil.
func RegisterRoutes(router *gin.Engine, planner *PlannerHandler, sessions *SessionHandler, metrics http.Handler) {
	api := router.Group("/api")
	{
		api.POST("/analyze-goal", planner.AnalyzeGoal)
		api.POST("/split-task", planner.SplitTask)

		api.POST("/sessions", sessions.CreateSession)
		api.GET("/sessions/:session_id", sessions.GetSession)
		api.DELETE("/sessions/:session_id", sessions.DeleteSession)

		api.POST("/sessions/:session_id/goal", sessions.SubmitGoal)
		api.DELETE("/sessions/:session_id/goal", sessions.ResetGoal)
		api.GET("/sessions/:session_id/progress", sessions.GetProgress)

		api.GET("/sessions/:session_id/tasks", sessions.ListTasks)
		api.POST("/sessions/:session_id/tasks", sessions.AddTask)
		api.PATCH("/sessions/:session_id/tasks/:task_id", sessions.UpdateTask)
		api.DELETE("/sessions/:session_id/tasks/:task_id", sessions.DeleteTask)
		api.POST("/sessions/:session_id/tasks/:task_id/toggle", sessions.ToggleTask)
		api.POST("/sessions/:session_id/tasks/:task_id/split", sessions.SplitTask)
	}

	if metrics != nil {
		router.GET("/metrics", gin.WrapH(metrics))
	}
}
