package models

import "math"

// MilestonesPerPlan is fixed: one milestone per week of the one-month plan.
const MilestonesPerPlan = 4

// DefaultTimeline is the only timeline label this version produces.
const DefaultTimeline = "1个月"

type GoalPlan struct {
	Title      string      `json:"title"`
	Timeline   string      `json:"timeline"`
	Milestones []Milestone `json:"milestones"`
}

type Milestone struct {
	ID       int             `json:"id"`
	Title    string          `json:"title"`
	Deadline string          `json:"deadline"`
	Tasks    []MilestoneTask `json:"tasks"`
}

type MilestoneTask struct {
	ID        int    `json:"id"`
	Title     string `json:"title"`
	Completed bool   `json:"completed"`
}

type MilestoneStatus string

const (
	MilestoneNotStarted MilestoneStatus = "not_started"
	MilestoneInProgress MilestoneStatus = "in_progress"
	MilestoneCompleted  MilestoneStatus = "completed"
)

// Clone returns a deep copy of the plan.
func (g *GoalPlan) Clone() *GoalPlan {
	if g == nil {
		return nil
	}
	out := &GoalPlan{Title: g.Title, Timeline: g.Timeline}
	if g.Milestones != nil {
		out.Milestones = make([]Milestone, len(g.Milestones))
		for i, m := range g.Milestones {
			out.Milestones[i] = m
			if m.Tasks != nil {
				out.Milestones[i].Tasks = append([]MilestoneTask(nil), m.Tasks...)
			}
		}
	}
	return out
}

// AssignIDs numbers milestones 1..n and all milestone tasks from a single
// plan-wide counter, and resets every task to not completed.
func (g *GoalPlan) AssignIDs() {
	next := 1
	for i := range g.Milestones {
		g.Milestones[i].ID = i + 1
		for j := range g.Milestones[i].Tasks {
			g.Milestones[i].Tasks[j].ID = next
			g.Milestones[i].Tasks[j].Completed = false
			next++
		}
	}
}

// NextTaskID returns an ID not used by any milestone task of the plan.
func (g *GoalPlan) NextTaskID() int {
	highest := 0
	for _, m := range g.Milestones {
		for _, t := range m.Tasks {
			if t.ID > highest {
				highest = t.ID
			}
		}
	}
	return highest + 1
}

func (g *GoalPlan) Milestone(id int) *Milestone {
	for i := range g.Milestones {
		if g.Milestones[i].ID == id {
			return &g.Milestones[i]
		}
	}
	return nil
}

// SetTaskCompleted updates the linked milestone task. It reports whether the
// task was found.
func (g *GoalPlan) SetTaskCompleted(milestoneID, taskID int, completed bool) bool {
	m := g.Milestone(milestoneID)
	if m == nil {
		return false
	}
	for i := range m.Tasks {
		if m.Tasks[i].ID == taskID {
			m.Tasks[i].Completed = completed
			return true
		}
	}
	return false
}

// Progress is the rounded percentage of completed milestone tasks.
func (g *GoalPlan) Progress() int {
	total, done := 0, 0
	for _, m := range g.Milestones {
		total += len(m.Tasks)
		done += m.completedCount()
	}
	return percent(done, total)
}

// CompletedMilestones counts milestones whose tasks are all completed.
func (g *GoalPlan) CompletedMilestones() int {
	n := 0
	for _, m := range g.Milestones {
		if len(m.Tasks) > 0 && m.completedCount() == len(m.Tasks) {
			n++
		}
	}
	return n
}

func (m *Milestone) Progress() int {
	return percent(m.completedCount(), len(m.Tasks))
}

func (m *Milestone) Status() MilestoneStatus {
	switch p := m.Progress(); {
	case p == 100:
		return MilestoneCompleted
	case p > 0:
		return MilestoneInProgress
	default:
		return MilestoneNotStarted
	}
}

func (m *Milestone) completedCount() int {
	n := 0
	for _, t := range m.Tasks {
		if t.Completed {
			n++
		}
	}
	return n
}

func percent(part, total int) int {
	if total == 0 {
		return 0
	}
	return int(math.Round(float64(part) / float64(total) * 100))
}
