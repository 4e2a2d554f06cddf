package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"goal_planner/internal/metrics"
	"goal_planner/internal/models"
	"goal_planner/internal/services"
	"goal_planner/internal/state"
	"goal_planner/pkg/glm"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// newRouter wires the full stack against completer. A nil completer means
// no credential is configured.
func newRouter(t *testing.T, completer services.Completer) *gin.Engine {
	t.Helper()
	if completer == nil {
		completer = glm.NewClient("", "", "", nil)
	}

	reg := prometheus.NewRegistry()
	recorder := metrics.NewPrometheusRecorder(reg)
	logger := zap.NewNop()
	planner := services.NewGoalPlanner(completer, nil, services.PlannerOptions{}, logger, recorder)
	splitter := services.NewTaskSplitter(completer, nil, services.PlannerOptions{}, logger, recorder)
	sessions := services.NewSessionService(planner, splitter, state.NewMemoryPersister(), logger, nil)

	router := gin.New()
	RegisterRoutes(router,
		NewPlannerHandler(planner, splitter, logger),
		NewSessionHandler(sessions, logger),
		promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	)
	return router
}

func doJSON(router *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func createSession(t *testing.T, router *gin.Engine) string {
	t.Helper()
	w := doJSON(router, http.MethodPost, "/api/sessions", nil)
	require.Equal(t, http.StatusCreated, w.Code)

	var resp struct {
		SessionID string `json:"session_id"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.SessionID)
	return resp.SessionID
}

func TestAnalyzeGoal_Fallback(t *testing.T) {
	router := newRouter(t, nil)

	w := doJSON(router, http.MethodPost, "/api/analyze-goal", AnalyzeGoalRequest{Goal: "考研上岸"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "fallback", w.Header().Get(PlanSourceHeader))
	assert.Equal(t, "configuration_absent", w.Header().Get(FallbackReasonHeader))

	var plan models.GoalPlan
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &plan))
	assert.Equal(t, "考研上岸", plan.Title)
	assert.Equal(t, "1个月", plan.Timeline)
	require.Len(t, plan.Milestones, 4)
	assert.Equal(t, "制定详细计划", plan.Milestones[0].Tasks[0].Title)
}

func TestAnalyzeGoal_AI(t *testing.T) {
	content := `{"title": "学游泳", "timeline": "1个月", "milestones": [
		{"title": "第1周：适应水性", "deadline": "第1周", "tasks": [{"title": "憋气练习"}]},
		{"title": "第2周：蛙泳腿", "deadline": "第2周", "tasks": [{"title": "蹬腿练习"}]},
		{"title": "第3周：换气", "deadline": "第3周", "tasks": [{"title": "换气练习"}]},
		{"title": "第4周：完整配合", "deadline": "第4周", "tasks": [{"title": "游完25米"}]}]}`
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"choices": []interface{}{
				map[string]interface{}{"message": map[string]string{"role": "assistant", "content": content}},
			},
		})
	}))
	defer upstream.Close()

	router := newRouter(t, glm.NewClient(upstream.URL, "test-key", "", upstream.Client()))

	w := doJSON(router, http.MethodPost, "/api/analyze-goal", AnalyzeGoalRequest{Goal: "学游泳"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ai", w.Header().Get(PlanSourceHeader))
	assert.Empty(t, w.Header().Get(FallbackReasonHeader))

	var plan models.GoalPlan
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &plan))
	assert.Equal(t, "游完25米", plan.Milestones[3].Tasks[0].Title)
	assert.Equal(t, 4, plan.Milestones[3].Tasks[0].ID)
}

func TestAnalyzeGoal_BadInput(t *testing.T) {
	router := newRouter(t, nil)

	w := doJSON(router, http.MethodPost, "/api/analyze-goal", AnalyzeGoalRequest{Goal: "   "})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "目标内容不能为空")

	req := httptest.NewRequest(http.MethodPost, "/api/analyze-goal", bytes.NewBufferString("{not json"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSplitTaskEndpoint(t *testing.T) {
	router := newRouter(t, nil)

	w := doJSON(router, http.MethodPost, "/api/split-task", SplitTaskRequest{TaskTitle: "准备简历"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"subtasks":[{"title":"拆解任务目标"},{"title":"收集必要资源"},{"title":"执行具体行动"}]}`, w.Body.String())

	w = doJSON(router, http.MethodPost, "/api/split-task", SplitTaskRequest{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "任务内容不能为空")
}

func TestSessionFlow(t *testing.T) {
	router := newRouter(t, nil)
	id := createSession(t, router)
	base := "/api/sessions/" + id

	w := doJSON(router, http.MethodGet, base+"/progress", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = doJSON(router, http.MethodPost, base+"/goal", SubmitGoalRequest{Goal: "考研上岸"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "fallback", w.Header().Get(PlanSourceHeader))

	var submitted struct {
		State  state.State `json:"state"`
		Source string      `json:"source"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &submitted))
	require.Len(t, submitted.State.Tasks, 3)
	first := submitted.State.Tasks[0]

	w = doJSON(router, http.MethodPost, fmt.Sprintf("%s/tasks/%d/toggle", base, first.ID), nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(router, http.MethodGet, base+"/progress", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var progress services.ProgressSummary
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &progress))
	assert.Equal(t, 8, progress.Percent)

	w = doJSON(router, http.MethodPatch, fmt.Sprintf("%s/tasks/%d", base, first.ID), UpdateTaskRequest{Title: "新标题"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "新标题")

	w = doJSON(router, http.MethodPost, fmt.Sprintf("%s/tasks/%d/split", base, submitted.State.Tasks[1].ID), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "fallback", w.Header().Get(PlanSourceHeader))

	w = doJSON(router, http.MethodGet, base+"/tasks", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var listed struct {
		Tasks []models.DailyTask `json:"tasks"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &listed))
	assert.Len(t, listed.Tasks, 5)

	w = doJSON(router, http.MethodPost, base+"/tasks", services.AddTaskInput{Title: "跑步", Time: "18:00", MilestoneID: 1})
	require.Equal(t, http.StatusCreated, w.Code)

	w = doJSON(router, http.MethodDelete, fmt.Sprintf("%s/tasks/%d", base, first.ID), nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(router, http.MethodDelete, fmt.Sprintf("%s/tasks/%d", base, first.ID), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(router, http.MethodDelete, base+"/goal", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var reset state.State
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &reset))
	assert.Nil(t, reset.Goal)
	assert.Empty(t, reset.Tasks)

	w = doJSON(router, http.MethodDelete, base, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(router, http.MethodGet, base, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSessionErrors(t *testing.T) {
	router := newRouter(t, nil)

	w := doJSON(router, http.MethodGet, "/api/sessions/unknown", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	id := createSession(t, router)
	w = doJSON(router, http.MethodPost, "/api/sessions/"+id+"/tasks/abc/toggle", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(router, http.MethodPost, "/api/sessions/"+id+"/goal", SubmitGoalRequest{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(router, http.MethodGet, "/api/sessions/"+id+"/tasks?date=yesterday", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(router, http.MethodPost, "/api/sessions/"+id+"/tasks", services.AddTaskInput{Title: "x", MilestoneID: 1})
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	router := newRouter(t, nil)
	doJSON(router, http.MethodPost, "/api/analyze-goal", AnalyzeGoalRequest{Goal: "考研上岸"})

	w := doJSON(router, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `planner_results_total{operation="decompose",reason="configuration_absent",source="fallback"} 1`)
}
