package services

import (
	"context"
	"sync"

	"goal_planner/pkg/glm"
)

// fakeCompleter returns a canned completion and records the requests it saw.
type fakeCompleter struct {
	configured bool
	content    string
	err        error

	mu       sync.Mutex
	requests []glm.CompletionRequest
}

func (f *fakeCompleter) Configured() bool { return f.configured }

func (f *fakeCompleter) Complete(ctx context.Context, req glm.CompletionRequest) (string, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return f.content, f.err
}

func (f *fakeCompleter) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

const validPlanJSON = `{
  "title": "三个月学会日语",
  "timeline": "3个月",
  "milestones": [
    {"title": "第1周：五十音", "deadline": "第1周", "tasks": [{"title": "背平假名"}, {"title": "背片假名"}, {"title": "听写练习"}]},
    {"title": "第2周：基础语法", "deadline": "第2周", "tasks": [{"title": "学习助词"}, {"title": "学习动词变形"}, {"title": "完成练习册"}]},
    {"title": "第3周：词汇积累", "deadline": "第3周", "tasks": [{"title": "每天30个单词"}, {"title": "阅读短文"}, {"title": "复习错题"}]},
    {"title": "第4周：综合运用", "deadline": "第4周", "tasks": [{"title": "模拟考试"}, {"title": "口语练习"}, {"title": "总结笔记"}]}
  ]
}`
