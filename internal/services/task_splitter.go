package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"goal_planner/internal/metrics"
	"goal_planner/internal/repair"
	"goal_planner/pkg/glm"

	"go.uber.org/zap"
)

const (
	MinSubtasks = 3
	MaxSubtasks = 5
)

const splitSystemPrompt = `你是一个专业的任务拆解助手。将用户输入的任务拆解为 3-5 个具体可执行的子任务。

规则：
1. 子任务要具体、可执行
2. 每个子任务应该有明确的目标
3. 子任务之间要有逻辑顺序

严格按照以下 JSON 格式返回：
{
  "subtasks": [
    {"title": "子任务1描述"},
    {"title": "子任务2描述"},
    {"title": "子任务3描述"}
  ]
}

注意：每个 subtask 对象的格式必须是 {"title": "任务描述"}，不要添加序号前缀。`

type Subtask struct {
	Title string `json:"title"`
}

// Split holds 3 to 5 subtasks and where they came from.
type Split struct {
	Subtasks []Subtask
	Source   Source
	Reason   *FailureReason
}

type TaskSplitter interface {
	// Split always yields 3-5 subtasks. The only error is an *InputError
	// for an empty task title.
	Split(ctx context.Context, taskTitle string) (*Split, error)
}

type taskSplitter struct {
	completer Completer
	templates *FallbackTemplate
	opts      PlannerOptions
	logger    *zap.Logger
	recorder  metrics.Recorder
}

func NewTaskSplitter(completer Completer, templates *FallbackTemplate, opts PlannerOptions, logger *zap.Logger, recorder metrics.Recorder) TaskSplitter {
	if templates == nil {
		templates = DefaultFallbackTemplate()
	}
	if recorder == nil {
		recorder = metrics.Nop{}
	}
	return &taskSplitter{
		completer: completer,
		templates: templates,
		opts:      opts.withDefaults(),
		logger:    logger,
		recorder:  recorder,
	}
}

func (s *taskSplitter) Split(ctx context.Context, taskTitle string) (*Split, error) {
	title := strings.TrimSpace(taskTitle)
	if title == "" {
		return nil, &InputError{Field: "taskTitle", Message: "任务内容不能为空"}
	}

	start := time.Now()
	result := s.trySplit(ctx, title)
	s.recorder.ObservePlan(metrics.OpSplit, string(result.Source), result.Reason.kindLabel(), time.Since(start))
	return result, nil
}

func (s *taskSplitter) trySplit(ctx context.Context, title string) *Split {
	content, reason := ask(ctx, s.completer, s.opts.SplitTimeout, glm.CompletionRequest{
		System:      splitSystemPrompt,
		User:        "请帮我拆解这个任务：" + title,
		Temperature: s.opts.Temperature,
		MaxTokens:   splitMaxTokens,
	})
	if reason != nil {
		return s.fallback(reason)
	}

	var raw struct {
		Subtasks *[]Subtask `json:"subtasks"`
	}
	if err := repair.Decode(content, &raw); err != nil {
		return s.fallback(&FailureReason{Kind: FailureMalformedResponse, Message: err.Error()})
	}
	subtasks, err := validSubtasks(raw.Subtasks)
	if err != nil {
		return s.fallback(&FailureReason{Kind: FailureMalformedResponse, Message: err.Error()})
	}

	return &Split{Subtasks: subtasks, Source: SourceAI}
}

func (s *taskSplitter) fallback(reason *FailureReason) *Split {
	logFailure(s.logger, "task split", reason)
	return &Split{
		Subtasks: s.templates.Subtasks(),
		Source:   SourceFallback,
		Reason:   reason,
	}
}

// validSubtasks drops blank titles and keeps at most MaxSubtasks.
func validSubtasks(in *[]Subtask) ([]Subtask, error) {
	if in == nil {
		return nil, errors.New("response has no subtasks")
	}
	out := make([]Subtask, 0, MaxSubtasks)
	for _, st := range *in {
		t := strings.TrimSpace(st.Title)
		if t == "" {
			continue
		}
		out = append(out, Subtask{Title: t})
		if len(out) == MaxSubtasks {
			break
		}
	}
	if len(out) < MinSubtasks {
		return nil, fmt.Errorf("response has %d usable subtasks, want at least %d", len(out), MinSubtasks)
	}
	return out, nil
}
