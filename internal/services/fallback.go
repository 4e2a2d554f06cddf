package services

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"goal_planner/internal/models"

	"gopkg.in/yaml.v3"
)

// TaskDensity is the number of tasks per milestone.
type TaskDensity int

const (
	DensityLightweight TaskDensity = 3
	DensityFullWeek    TaskDensity = 7
)

func ParseTaskDensity(n int) (TaskDensity, error) {
	switch TaskDensity(n) {
	case DensityLightweight, DensityFullWeek:
		return TaskDensity(n), nil
	default:
		return 0, fmt.Errorf("tasks per milestone must be %d or %d, got %d", DensityLightweight, DensityFullWeek, n)
	}
}

//go:embed templates/fallback.yaml
var defaultTemplateYAML []byte

type FallbackTemplate struct {
	DefaultTitle  string         `yaml:"default_title"`
	Timeline      string         `yaml:"timeline"`
	Weeks         []WeekTemplate `yaml:"weeks"`
	SplitSubtasks []string       `yaml:"split_subtasks"`
}

type WeekTemplate struct {
	Title       string   `yaml:"title"`
	Deadline    string   `yaml:"deadline"`
	Lightweight []string `yaml:"lightweight"`
	FullWeek    []string `yaml:"full_week"`
}

func (w WeekTemplate) tasks(density TaskDensity) []string {
	if density == DensityFullWeek {
		return w.FullWeek
	}
	return w.Lightweight
}

// LoadFallbackTemplate reads a template file, or the built-in one when path is empty.
func LoadFallbackTemplate(path string) (*FallbackTemplate, error) {
	if path == "" {
		return ParseFallbackTemplate(defaultTemplateYAML)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read fallback template: %w", err)
	}
	return ParseFallbackTemplate(data)
}

func ParseFallbackTemplate(data []byte) (*FallbackTemplate, error) {
	var t FallbackTemplate
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("failed to parse fallback template: %w", err)
	}
	if err := t.validate(); err != nil {
		return nil, err
	}
	return &t, nil
}

func (t *FallbackTemplate) validate() error {
	if len(t.Weeks) != models.MilestonesPerPlan {
		return fmt.Errorf("fallback template needs %d weeks, got %d", models.MilestonesPerPlan, len(t.Weeks))
	}
	for i, w := range t.Weeks {
		if strings.TrimSpace(w.Title) == "" {
			return fmt.Errorf("fallback template week %d has no title", i+1)
		}
		if len(w.Lightweight) != int(DensityLightweight) {
			return fmt.Errorf("fallback template week %d needs %d lightweight tasks, got %d", i+1, DensityLightweight, len(w.Lightweight))
		}
		if len(w.FullWeek) != int(DensityFullWeek) {
			return fmt.Errorf("fallback template week %d needs %d full-week tasks, got %d", i+1, DensityFullWeek, len(w.FullWeek))
		}
	}
	if n := len(t.SplitSubtasks); n < MinSubtasks || n > MaxSubtasks {
		return fmt.Errorf("fallback template needs %d-%d split subtasks, got %d", MinSubtasks, MaxSubtasks, n)
	}
	if t.DefaultTitle == "" {
		t.DefaultTitle = "默认目标规划"
	}
	if t.Timeline == "" {
		t.Timeline = models.DefaultTimeline
	}
	return nil
}

// DefaultFallbackTemplate returns the built-in template.
func DefaultFallbackTemplate() *FallbackTemplate {
	t, err := ParseFallbackTemplate(defaultTemplateYAML)
	if err != nil {
		panic(err)
	}
	return t
}

// Build produces the static plan for goalTitle. It is pure and deterministic.
func (t *FallbackTemplate) Build(goalTitle string, density TaskDensity) *models.GoalPlan {
	title := goalTitle
	if strings.TrimSpace(title) == "" {
		title = t.DefaultTitle
	}

	plan := &models.GoalPlan{
		Title:      title,
		Timeline:   t.Timeline,
		Milestones: make([]models.Milestone, len(t.Weeks)),
	}
	for i, w := range t.Weeks {
		names := w.tasks(density)
		tasks := make([]models.MilestoneTask, len(names))
		for j, name := range names {
			tasks[j] = models.MilestoneTask{Title: name}
		}
		plan.Milestones[i] = models.Milestone{
			Title:    w.Title,
			Deadline: w.Deadline,
			Tasks:    tasks,
		}
	}
	plan.AssignIDs()
	return plan
}

// Subtasks returns the generic split fallback.
func (t *FallbackTemplate) Subtasks() []Subtask {
	out := make([]Subtask, len(t.SplitSubtasks))
	for i, s := range t.SplitSubtasks {
		out[i] = Subtask{Title: s}
	}
	return out
}

// BuildFallback builds the static plan from the built-in template.
func BuildFallback(goalTitle string, density TaskDensity) *models.GoalPlan {
	return DefaultFallbackTemplate().Build(goalTitle, density)
}
