package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"goal_planner/internal/models"
	"goal_planner/internal/state"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// MaxTaskTitleLength is measured in runes.
	MaxTaskTitleLength = 50
	DefaultTaskTime    = "09:00"

	firstTaskHour = 8
	taskHourStep  = 2
	lastTaskHour  = 22

	clockLayout = "15:04"
)

type MilestoneProgress struct {
	ID       int                    `json:"id"`
	Title    string                 `json:"title"`
	Deadline string                 `json:"deadline"`
	Progress int                    `json:"progress"`
	Status   models.MilestoneStatus `json:"status"`
}

type ProgressSummary struct {
	Title               string              `json:"title"`
	Timeline            string              `json:"timeline"`
	Percent             int                 `json:"percent"`
	CompletedMilestones int                 `json:"completed_milestones"`
	TotalMilestones     int                 `json:"total_milestones"`
	Milestones          []MilestoneProgress `json:"milestones"`
	TodayCompleted      int                 `json:"today_completed"`
	TodayTotal          int                 `json:"today_total"`
}

type AddTaskInput struct {
	Title string `json:"title"`
	// Time is HH:MM; empty means DefaultTaskTime.
	Time string `json:"time"`
	// Date is YYYY-MM-DD; empty means today.
	Date string `json:"date"`
	// MilestoneID links the task to a milestone, which gains a matching
	// MilestoneTask. Zero means no link.
	MilestoneID int `json:"milestoneId"`
}

type GoalResult struct {
	State  state.State
	Source Source
	Reason *FailureReason
}

type SplitResult struct {
	Tasks  []models.DailyTask
	Source Source
	Reason *FailureReason
}

type SessionService interface {
	CreateSession(ctx context.Context) (string, error)
	GetState(ctx context.Context, sessionID string) (*state.State, error)
	DeleteSession(ctx context.Context, sessionID string) error
	Progress(ctx context.Context, sessionID string) (*ProgressSummary, error)
	TasksForDate(ctx context.Context, sessionID, date string) ([]models.DailyTask, error)

	SubmitGoal(ctx context.Context, sessionID, goalText string) (*GoalResult, error)
	ResetGoal(ctx context.Context, sessionID string) (*state.State, error)
	SplitTask(ctx context.Context, sessionID string, taskID int64) (*SplitResult, error)

	AddTask(ctx context.Context, sessionID string, in AddTaskInput) (*models.DailyTask, error)
	ToggleTask(ctx context.Context, sessionID string, taskID int64) (*models.DailyTask, error)
	UpdateTaskTitle(ctx context.Context, sessionID string, taskID int64, title string) (*models.DailyTask, error)
	DeleteTask(ctx context.Context, sessionID string, taskID int64) error

	// EvictIdle drops in-memory sessions not changed since cutoff and
	// reports how many went. Persisted snapshots follow the backend's own
	// expiry.
	EvictIdle(cutoff time.Time) int
}

type sessionService struct {
	planner   GoalPlanner
	splitter  TaskSplitter
	persister state.Persister
	logger    *zap.Logger
	now       func() time.Time
	ids       *state.IDSource

	mu     sync.Mutex
	stores map[string]*state.Store
}

// NewSessionService wires the planner and splitter to per-session stores.
// persister may be nil for a purely in-process service; now defaults to
// time.Now.
func NewSessionService(planner GoalPlanner, splitter TaskSplitter, persister state.Persister, logger *zap.Logger, now func() time.Time) SessionService {
	if now == nil {
		now = time.Now
	}
	return &sessionService{
		planner:   planner,
		splitter:  splitter,
		persister: persister,
		logger:    logger,
		now:       now,
		ids:       state.NewIDSource(now),
		stores:    make(map[string]*state.Store),
	}
}

func (s *sessionService) CreateSession(ctx context.Context) (string, error) {
	id := uuid.NewString()
	store := state.NewStore(id, state.State{UpdatedAt: s.now()}, s.persister, s.logger, s.now)

	if s.persister != nil {
		initial := store.Snapshot()
		if err := s.persister.Save(ctx, id, &initial); err != nil {
			return "", fmt.Errorf("failed to create session: %w", err)
		}
	}

	s.mu.Lock()
	s.stores[id] = store
	s.mu.Unlock()

	s.logger.Info("session created", zap.String("session_id", id))
	return id, nil
}

// store returns the live store for a session, loading it from the
// persister on first use. A cached session whose snapshot the backend has
// since expired is dropped.
func (s *sessionService) store(ctx context.Context, sessionID string) (*state.Store, error) {
	s.mu.Lock()
	store, ok := s.stores[sessionID]
	s.mu.Unlock()

	if ok {
		if s.persister == nil {
			return store, nil
		}
		if _, err := s.persister.Load(ctx, sessionID); err != nil {
			if errors.Is(err, state.ErrNotFound) {
				s.forget(sessionID, store)
				s.logger.Info("session expired", zap.String("session_id", sessionID))
				return nil, ErrSessionNotFound
			}
			return nil, fmt.Errorf("failed to load session: %w", err)
		}
		return store, nil
	}
	if s.persister == nil {
		return nil, ErrSessionNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if store, ok := s.stores[sessionID]; ok {
		return store, nil
	}

	st, err := s.persister.Load(ctx, sessionID)
	if err != nil {
		if errors.Is(err, state.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	// A process that died mid-request leaves its loading flags behind.
	st.Analyzing = false
	st.AnalyzingGoal = ""
	st.PendingSplits = nil
	for _, t := range st.Tasks {
		s.ids.Observe(t.ID)
	}

	store = state.NewStore(sessionID, *st, s.persister, s.logger, s.now)
	s.stores[sessionID] = store
	return store, nil
}

// forget removes store from the cache unless it has already been replaced.
func (s *sessionService) forget(sessionID string, store *state.Store) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stores[sessionID] == store {
		delete(s.stores, sessionID)
	}
}

func (s *sessionService) EvictIdle(cutoff time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	evicted := 0
	for id, store := range s.stores {
		if store.IdleSince(cutoff) {
			delete(s.stores, id)
			evicted++
		}
	}
	return evicted
}

func (s *sessionService) GetState(ctx context.Context, sessionID string) (*state.State, error) {
	store, err := s.store(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	snap := store.Snapshot()
	return &snap, nil
}

func (s *sessionService) DeleteSession(ctx context.Context, sessionID string) error {
	if _, err := s.store(ctx, sessionID); err != nil {
		return err
	}

	s.mu.Lock()
	delete(s.stores, sessionID)
	s.mu.Unlock()

	if s.persister != nil {
		if err := s.persister.Delete(ctx, sessionID); err != nil {
			return fmt.Errorf("failed to delete session: %w", err)
		}
	}
	return nil
}

func (s *sessionService) Progress(ctx context.Context, sessionID string) (*ProgressSummary, error) {
	store, err := s.store(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	snap := store.Snapshot()
	if snap.Goal == nil {
		return nil, ErrNoGoal
	}

	summary := &ProgressSummary{
		Title:               snap.Goal.Title,
		Timeline:            snap.Goal.Timeline,
		Percent:             snap.Goal.Progress(),
		CompletedMilestones: snap.Goal.CompletedMilestones(),
		TotalMilestones:     len(snap.Goal.Milestones),
		Milestones:          make([]MilestoneProgress, 0, len(snap.Goal.Milestones)),
	}
	for i := range snap.Goal.Milestones {
		m := &snap.Goal.Milestones[i]
		summary.Milestones = append(summary.Milestones, MilestoneProgress{
			ID:       m.ID,
			Title:    m.Title,
			Deadline: m.Deadline,
			Progress: m.Progress(),
			Status:   m.Status(),
		})
	}

	today := models.DateKey(s.now())
	for _, t := range snap.Tasks {
		if t.Date != today {
			continue
		}
		summary.TodayTotal++
		if t.Completed {
			summary.TodayCompleted++
		}
	}
	return summary, nil
}

// TasksForDate returns the day view ordered by time. An empty date means today.
func (s *sessionService) TasksForDate(ctx context.Context, sessionID, date string) ([]models.DailyTask, error) {
	date, err := s.normalizeDate(date)
	if err != nil {
		return nil, err
	}
	store, err := s.store(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	snap := store.Snapshot()
	tasks := make([]models.DailyTask, 0)
	for _, t := range snap.Tasks {
		if t.Date == date {
			tasks = append(tasks, t)
		}
	}
	sort.SliceStable(tasks, func(i, j int) bool { return tasks[i].Time < tasks[j].Time })
	return tasks, nil
}

// SubmitGoal decomposes a goal, installs the plan and replaces the daily
// tasks with today's tasks for the first milestone.
func (s *sessionService) SubmitGoal(ctx context.Context, sessionID, goalText string) (*GoalResult, error) {
	goal := strings.TrimSpace(goalText)
	if goal == "" {
		return nil, &InputError{Field: "goal", Message: "目标内容不能为空"}
	}
	store, err := s.store(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	_, err = store.Update(ctx, func(st *state.State) error {
		if st.Analyzing {
			return ErrInProgress
		}
		st.Analyzing = true
		st.AnalyzingGoal = goal
		return nil
	})
	if err != nil {
		return nil, err
	}

	released := false
	defer func() {
		if released {
			return
		}
		store.Update(ctx, func(st *state.State) error {
			st.Analyzing = false
			st.AnalyzingGoal = ""
			return nil
		})
	}()

	d, err := s.planner.Decompose(ctx, goal)
	if err != nil {
		return nil, err
	}

	now := s.now()
	next, err := store.Update(ctx, func(st *state.State) error {
		st.Goal = d.Plan
		st.Tasks = s.materialize(d.Plan, now)
		st.PendingSplits = nil
		st.Analyzing = false
		st.AnalyzingGoal = ""
		return nil
	})
	if err != nil {
		return nil, err
	}
	released = true

	s.logger.Info("goal accepted",
		zap.String("session_id", sessionID),
		zap.String("title", d.Plan.Title),
		zap.String("source", string(d.Source)),
	)
	return &GoalResult{State: next, Source: d.Source, Reason: d.Reason}, nil
}

// materialize schedules the first milestone's tasks today at 08:00, 10:00
// and so on, never later than 22:00.
func (s *sessionService) materialize(plan *models.GoalPlan, now time.Time) []models.DailyTask {
	if len(plan.Milestones) == 0 {
		return nil
	}
	first := plan.Milestones[0]
	today := models.DateKey(now)

	tasks := make([]models.DailyTask, 0, len(first.Tasks))
	for i, mt := range first.Tasks {
		hour := firstTaskHour + i*taskHourStep
		if hour > lastTaskHour {
			hour = lastTaskHour
		}
		tasks = append(tasks, models.DailyTask{
			ID:        s.ids.Next(),
			Title:     mt.Title,
			Time:      fmt.Sprintf("%02d:00", hour),
			Date:      today,
			Completed: mt.Completed,
			Milestone: &models.MilestoneRef{
				MilestoneID:    first.ID,
				TaskID:         mt.ID,
				MilestoneTitle: first.Title,
			},
		})
	}
	return tasks
}

func (s *sessionService) ResetGoal(ctx context.Context, sessionID string) (*state.State, error) {
	store, err := s.store(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	next, err := store.Update(ctx, func(st *state.State) error {
		st.Goal = nil
		st.Tasks = nil
		st.PendingSplits = nil
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &next, nil
}

// SplitTask replaces a daily task in place with one task per subtask. The
// new tasks keep the original's time, date and milestone link.
func (s *sessionService) SplitTask(ctx context.Context, sessionID string, taskID int64) (*SplitResult, error) {
	store, err := s.store(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	var title string
	_, err = store.Update(ctx, func(st *state.State) error {
		idx := st.TaskIndex(taskID)
		if idx < 0 {
			return ErrTaskNotFound
		}
		if containsID(st.PendingSplits, taskID) {
			return ErrInProgress
		}
		title = st.Tasks[idx].Title
		st.PendingSplits = append(st.PendingSplits, taskID)
		return nil
	})
	if err != nil {
		return nil, err
	}

	defer store.Update(ctx, func(st *state.State) error {
		if !containsID(st.PendingSplits, taskID) {
			return errNoChange
		}
		st.PendingSplits = removeID(st.PendingSplits, taskID)
		return nil
	})

	split, err := s.splitter.Split(ctx, title)
	if err != nil {
		return nil, err
	}

	var created []models.DailyTask
	_, err = store.Update(ctx, func(st *state.State) error {
		idx := st.TaskIndex(taskID)
		if idx < 0 {
			return ErrTaskNotFound
		}
		original := st.Tasks[idx]

		created = make([]models.DailyTask, 0, len(split.Subtasks))
		for _, sub := range split.Subtasks {
			t := models.DailyTask{
				ID:        s.ids.Next(),
				Title:     sub.Title,
				Time:      original.Time,
				Date:      original.Date,
				Milestone: original.Milestone,
			}
			created = append(created, t.Clone())
		}

		tasks := make([]models.DailyTask, 0, len(st.Tasks)-1+len(created))
		tasks = append(tasks, st.Tasks[:idx]...)
		tasks = append(tasks, created...)
		tasks = append(tasks, st.Tasks[idx+1:]...)
		st.Tasks = tasks
		st.PendingSplits = removeID(st.PendingSplits, taskID)
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrTaskNotFound) {
			s.logger.Info("split result dropped, task was removed", zap.Int64("task_id", taskID))
		}
		return nil, err
	}

	out := make([]models.DailyTask, len(created))
	for i, t := range created {
		out[i] = t.Clone()
	}
	return &SplitResult{Tasks: out, Source: split.Source, Reason: split.Reason}, nil
}

// errNoChange aborts an Update that has nothing to do.
var errNoChange = errors.New("no change")

func (s *sessionService) AddTask(ctx context.Context, sessionID string, in AddTaskInput) (*models.DailyTask, error) {
	title, err := validTaskTitle(in.Title)
	if err != nil {
		return nil, err
	}
	clock := in.Time
	if clock == "" {
		clock = DefaultTaskTime
	}
	if _, err := time.Parse(clockLayout, clock); err != nil {
		return nil, &InputError{Field: "time", Message: "时间格式应为 HH:MM"}
	}
	date, err := s.normalizeDate(in.Date)
	if err != nil {
		return nil, err
	}

	store, err := s.store(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	task := models.DailyTask{
		ID:    s.ids.Next(),
		Title: title,
		Time:  clock,
		Date:  date,
	}
	_, err = store.Update(ctx, func(st *state.State) error {
		if in.MilestoneID != 0 {
			if st.Goal == nil {
				return ErrNoGoal
			}
			m := st.Goal.Milestone(in.MilestoneID)
			if m == nil {
				return &InputError{Field: "milestoneId", Message: "里程碑不存在"}
			}
			mt := models.MilestoneTask{ID: st.Goal.NextTaskID(), Title: title}
			m.Tasks = append(m.Tasks, mt)
			task.Milestone = &models.MilestoneRef{
				MilestoneID:    m.ID,
				TaskID:         mt.ID,
				MilestoneTitle: m.Title,
			}
		}
		st.Tasks = append([]models.DailyTask{task.Clone()}, st.Tasks...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &task, nil
}

// ToggleTask flips a task's completion and, when it is linked, the linked
// milestone task's completion in the same transition.
func (s *sessionService) ToggleTask(ctx context.Context, sessionID string, taskID int64) (*models.DailyTask, error) {
	return s.updateTask(ctx, sessionID, taskID, func(st *state.State, t *models.DailyTask) {
		t.Completed = !t.Completed
		if t.Milestone != nil && st.Goal != nil {
			st.Goal.SetTaskCompleted(t.Milestone.MilestoneID, t.Milestone.TaskID, t.Completed)
		}
	})
}

// UpdateTaskTitle renames a daily task. A linked milestone task keeps its title.
func (s *sessionService) UpdateTaskTitle(ctx context.Context, sessionID string, taskID int64, title string) (*models.DailyTask, error) {
	title, err := validTaskTitle(title)
	if err != nil {
		return nil, err
	}
	return s.updateTask(ctx, sessionID, taskID, func(_ *state.State, t *models.DailyTask) {
		t.Title = title
	})
}

func (s *sessionService) updateTask(ctx context.Context, sessionID string, taskID int64, fn func(st *state.State, t *models.DailyTask)) (*models.DailyTask, error) {
	store, err := s.store(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	var updated models.DailyTask
	_, err = store.Update(ctx, func(st *state.State) error {
		idx := st.TaskIndex(taskID)
		if idx < 0 {
			return ErrTaskNotFound
		}
		fn(st, &st.Tasks[idx])
		updated = st.Tasks[idx].Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// DeleteTask removes a daily task only; the milestone task it mirrors stays.
func (s *sessionService) DeleteTask(ctx context.Context, sessionID string, taskID int64) error {
	store, err := s.store(ctx, sessionID)
	if err != nil {
		return err
	}
	_, err = store.Update(ctx, func(st *state.State) error {
		idx := st.TaskIndex(taskID)
		if idx < 0 {
			return ErrTaskNotFound
		}
		st.Tasks = append(st.Tasks[:idx:idx], st.Tasks[idx+1:]...)
		return nil
	})
	return err
}

func (s *sessionService) normalizeDate(date string) (string, error) {
	if date == "" {
		return models.DateKey(s.now()), nil
	}
	if _, err := time.Parse(models.DateLayout, date); err != nil {
		return "", &InputError{Field: "date", Message: "日期格式应为 YYYY-MM-DD"}
	}
	return date, nil
}

func validTaskTitle(raw string) (string, error) {
	title := strings.TrimSpace(raw)
	if title == "" {
		return "", &InputError{Field: "title", Message: "任务内容不能为空"}
	}
	if utf8.RuneCountInString(title) > MaxTaskTitleLength {
		return "", &InputError{Field: "title", Message: fmt.Sprintf("任务标题不能超过%d个字符", MaxTaskTitleLength)}
	}
	return title, nil
}

func containsID(ids []int64, id int64) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func removeID(ids []int64, id int64) []int64 {
	out := ids[:0:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}
