package services

import (
	"os"
	"path/filepath"
	"testing"

	"goal_planner/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildFallback_Lightweight(t *testing.T) {
	plan := BuildFallback("考研上岸", DensityLightweight)

	assert.Equal(t, "考研上岸", plan.Title)
	assert.Equal(t, "1个月", plan.Timeline)
	require.Len(t, plan.Milestones, models.MilestonesPerPlan)

	wantTitles := []string{"第1周：启动与准备", "第2周：基础建立", "第3周：深化实践", "第4周：巩固与成果"}
	wantTasks := [][]string{
		{"制定详细计划", "收集学习资料", "建立学习环境"},
		{"完成基础知识学习", "开始第一次练习", "记录学习笔记"},
		{"增加练习强度", "解决遇到的问题", "分享学习成果"},
		{"总结学习成果", "制定后续计划", "庆祝阶段性胜利"},
	}

	nextID := 1
	for i, m := range plan.Milestones {
		assert.Equal(t, i+1, m.ID)
		assert.Equal(t, wantTitles[i], m.Title)
		require.Len(t, m.Tasks, 3)
		for j, task := range m.Tasks {
			assert.Equal(t, wantTasks[i][j], task.Title)
			assert.Equal(t, nextID, task.ID)
			assert.False(t, task.Completed)
			nextID++
		}
	}
}

func TestBuildFallback_FullWeek(t *testing.T) {
	plan := BuildFallback("跑完半马", DensityFullWeek)

	require.Len(t, plan.Milestones, models.MilestonesPerPlan)
	for _, m := range plan.Milestones {
		assert.Len(t, m.Tasks, 7)
	}
	assert.Equal(t, 29, plan.NextTaskID())
}

func TestBuildFallback_BlankTitleUsesDefault(t *testing.T) {
	plan := BuildFallback("   ", DensityLightweight)
	assert.Equal(t, "默认目标规划", plan.Title)
}

func TestBuildFallback_Deterministic(t *testing.T) {
	assert.Equal(t, BuildFallback("x", DensityLightweight), BuildFallback("x", DensityLightweight))
}

func TestParseTaskDensity(t *testing.T) {
	d, err := ParseTaskDensity(7)
	require.NoError(t, err)
	assert.Equal(t, DensityFullWeek, d)

	_, err = ParseTaskDensity(5)
	assert.Error(t, err)
}

func TestLoadFallbackTemplate(t *testing.T) {
	t.Run("built-in", func(t *testing.T) {
		tpl, err := LoadFallbackTemplate("")
		require.NoError(t, err)
		assert.Equal(t, []Subtask{{"拆解任务目标"}, {"收集必要资源"}, {"执行具体行动"}}, tpl.Subtasks())
	})

	t.Run("wrong week count", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.yaml")
		require.NoError(t, os.WriteFile(path, []byte("weeks:\n  - title: only one\n"), 0o644))

		_, err := LoadFallbackTemplate(path)
		assert.ErrorContains(t, err, "needs 4 weeks")
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadFallbackTemplate(filepath.Join(t.TempDir(), "missing.yaml"))
		assert.Error(t, err)
	})
}
