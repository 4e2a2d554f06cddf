package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"goal_planner/internal/metrics"
	"goal_planner/internal/models"
	"goal_planner/internal/repair"
	"goal_planner/pkg/glm"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	decomposeMaxTokens = 2000
	splitMaxTokens     = 1000
)

// Completer is the chat-completion transport. *glm.Client implements it.
type Completer interface {
	Configured() bool
	Complete(ctx context.Context, req glm.CompletionRequest) (string, error)
}

type PlannerOptions struct {
	Density          TaskDensity
	Temperature      float64
	DecomposeTimeout time.Duration
	SplitTimeout     time.Duration
}

func (o PlannerOptions) withDefaults() PlannerOptions {
	if o.Density == 0 {
		o.Density = DensityLightweight
	}
	if o.DecomposeTimeout <= 0 {
		o.DecomposeTimeout = 15 * time.Second
	}
	if o.SplitTimeout <= 0 {
		o.SplitTimeout = 15 * time.Second
	}
	return o
}

// Decomposition is either an AI plan (Source == SourceAI, Reason == nil) or
// the fallback plan with the reason the AI path was abandoned.
type Decomposition struct {
	Plan   *models.GoalPlan
	Source Source
	Reason *FailureReason
}

type GoalPlanner interface {
	// Decompose always yields a usable 4-milestone plan. The only error is
	// an *InputError for empty goal text.
	Decompose(ctx context.Context, goalText string) (*Decomposition, error)
}

type goalPlanner struct {
	completer Completer
	templates *FallbackTemplate
	opts      PlannerOptions
	logger    *zap.Logger
	recorder  metrics.Recorder
	group     singleflight.Group
}

func NewGoalPlanner(completer Completer, templates *FallbackTemplate, opts PlannerOptions, logger *zap.Logger, recorder metrics.Recorder) GoalPlanner {
	if templates == nil {
		templates = DefaultFallbackTemplate()
	}
	if recorder == nil {
		recorder = metrics.Nop{}
	}
	return &goalPlanner{
		completer: completer,
		templates: templates,
		opts:      opts.withDefaults(),
		logger:    logger,
		recorder:  recorder,
	}
}

func (p *goalPlanner) Decompose(ctx context.Context, goalText string) (*Decomposition, error) {
	goal := strings.TrimSpace(goalText)
	if goal == "" {
		return nil, &InputError{Field: "goal", Message: "目标内容不能为空"}
	}

	// Identical goals submitted concurrently share one upstream call. The
	// call outlives whichever caller started it; DecomposeTimeout bounds it.
	v, _, _ := p.group.Do(goal, func() (interface{}, error) {
		return p.decompose(context.WithoutCancel(ctx), goal), nil
	})
	shared := v.(*Decomposition)

	return &Decomposition{
		Plan:   shared.Plan.Clone(),
		Source: shared.Source,
		Reason: shared.Reason,
	}, nil
}

func (p *goalPlanner) decompose(ctx context.Context, goal string) *Decomposition {
	start := time.Now()
	result := p.tryDecompose(ctx, goal)
	p.recorder.ObservePlan(metrics.OpDecompose, string(result.Source), result.Reason.kindLabel(), time.Since(start))
	return result
}

func (p *goalPlanner) tryDecompose(ctx context.Context, goal string) *Decomposition {
	content, reason := ask(ctx, p.completer, p.opts.DecomposeTimeout, glm.CompletionRequest{
		System:      decomposePrompt(p.templates, p.opts.Density),
		User:        "请帮我拆解这个目标：" + goal,
		Temperature: p.opts.Temperature,
		MaxTokens:   decomposeMaxTokens,
	})
	if reason != nil {
		return p.fallback(goal, reason)
	}

	var raw rawPlan
	if err := repair.Decode(content, &raw); err != nil {
		return p.fallback(goal, &FailureReason{Kind: FailureMalformedResponse, Message: err.Error()})
	}
	plan, err := raw.toPlan(goal)
	if err != nil {
		return p.fallback(goal, &FailureReason{Kind: FailureMalformedResponse, Message: err.Error()})
	}

	p.logger.Info("goal decomposed", zap.String("title", plan.Title))
	return &Decomposition{Plan: plan, Source: SourceAI}
}

func (p *goalPlanner) fallback(goal string, reason *FailureReason) *Decomposition {
	logFailure(p.logger, "goal decomposition", reason)
	return &Decomposition{
		Plan:   p.templates.Build(goal, p.opts.Density),
		Source: SourceFallback,
		Reason: reason,
	}
}

// ask performs one bounded completion call. A non-nil reason means the
// caller must fall back.
func ask(ctx context.Context, completer Completer, timeout time.Duration, req glm.CompletionRequest) (string, *FailureReason) {
	if completer == nil || !completer.Configured() {
		return "", &FailureReason{Kind: FailureConfigurationAbsent, Message: "GLM API key not configured"}
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	content, err := completer.Complete(ctx, req)
	if err != nil {
		reason := &FailureReason{Kind: FailureUpstream, Message: err.Error()}
		var apiErr *glm.APIError
		if errors.As(err, &apiErr) {
			reason.StatusCode = apiErr.StatusCode
		}
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			reason.Message = fmt.Sprintf("request timed out after %s", timeout)
		}
		return "", reason
	}
	return content, nil
}

func logFailure(logger *zap.Logger, operation string, reason *FailureReason) {
	fields := []zap.Field{
		zap.String("kind", string(reason.Kind)),
		zap.String("message", reason.Message),
	}
	if reason.StatusCode != 0 {
		fields = append(fields, zap.Int("status", reason.StatusCode))
	}

	if reason.Kind == FailureConfigurationAbsent {
		logger.Warn(operation+" using fallback", fields...)
		return
	}
	logger.Error(operation+" failed, using fallback", fields...)
}

// rawPlan is the model's JSON before validation. Pointers distinguish a
// missing key from an empty value.
type rawPlan struct {
	Title      *string         `json:"title"`
	Timeline   *string         `json:"timeline"`
	Milestones *[]rawMilestone `json:"milestones"`
}

type rawMilestone struct {
	Title    string     `json:"title"`
	Deadline string     `json:"deadline"`
	Tasks    *[]rawTask `json:"tasks"`
}

type rawTask struct {
	Title string `json:"title"`
}

func (r *rawPlan) toPlan(goal string) (*models.GoalPlan, error) {
	if r.Title == nil {
		return nil, errors.New("response has no title")
	}
	if r.Timeline == nil {
		return nil, errors.New("response has no timeline")
	}
	if r.Milestones == nil {
		return nil, errors.New("response has no milestones")
	}
	if n := len(*r.Milestones); n != models.MilestonesPerPlan {
		return nil, fmt.Errorf("response has %d milestones, want %d", n, models.MilestonesPerPlan)
	}

	title := strings.TrimSpace(*r.Title)
	if title == "" {
		title = goal
	}
	plan := &models.GoalPlan{
		Title:      title,
		Timeline:   models.DefaultTimeline,
		Milestones: make([]models.Milestone, 0, models.MilestonesPerPlan),
	}

	for i, m := range *r.Milestones {
		if m.Tasks == nil || len(*m.Tasks) == 0 {
			return nil, fmt.Errorf("milestone %d has no tasks", i+1)
		}
		tasks := make([]models.MilestoneTask, 0, len(*m.Tasks))
		for j, t := range *m.Tasks {
			if strings.TrimSpace(t.Title) == "" {
				return nil, fmt.Errorf("milestone %d task %d has no title", i+1, j+1)
			}
			tasks = append(tasks, models.MilestoneTask{Title: t.Title})
		}
		plan.Milestones = append(plan.Milestones, models.Milestone{
			Title:    m.Title,
			Deadline: m.Deadline,
			Tasks:    tasks,
		})
	}

	plan.AssignIDs()
	return plan, nil
}

func decomposePrompt(t *FallbackTemplate, density TaskDensity) string {
	var b strings.Builder
	b.WriteString(`你是一个专业的目标规划助手。用户会输入一个目标，你需要将其拆解为具体的里程碑和可执行的小任务。

规则：
1. 时间线固定为1个月（4周），快速见效
2. 拆解为4个里程碑，每周一个里程碑：
`)
	for i, w := range t.Weeks {
		fmt.Fprintf(&b, "   - 第%d周：%s\n", i+1, weekTheme(w.Title))
	}
	fmt.Fprintf(&b, "3. 每个里程碑包含%d个具体可执行的任务\n", density)
	b.WriteString("4. 任务要具体、可量化、每天可执行\n")
	b.WriteString("5. 每个任务对象的格式必须是 {\"title\": \"任务描述\"}，不要添加序号前缀\n\n")
	b.WriteString("返回格式（纯 JSON，不要其他内容）：\n")
	fmt.Fprintf(&b, "{\n  \"title\": \"目标标题\",\n  \"timeline\": \"%s\",\n  \"milestones\": [\n", t.Timeline)
	for i, w := range t.Weeks {
		fmt.Fprintf(&b, "    {\n      \"title\": %q,\n      \"deadline\": %q,\n      \"tasks\": [", w.Title, w.Deadline)
		for j := 1; j <= int(density); j++ {
			if j > 1 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "{\"title\": \"任务%d\"}", j)
		}
		b.WriteString("]\n    }")
		if i < len(t.Weeks)-1 {
			b.WriteString(",")
		}
		b.WriteString("\n")
	}
	b.WriteString("  ]\n}")
	return b.String()
}

// weekTheme strips the "第N周：" prefix from a week title.
func weekTheme(title string) string {
	if i := strings.Index(title, "："); i >= 0 {
		return title[i+len("："):]
	}
	return title
}
