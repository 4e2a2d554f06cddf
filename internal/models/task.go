package models

import (
	"time"
)

// DateLayout is the calendar-day key used for DailyTask.Date.
const DateLayout = "2006-01-02"

// DailyTask is a scheduled instance shown in the day view. It may mirror a
// MilestoneTask; the milestone task stays the source of truth for progress.
type DailyTask struct {
	ID        int64         `json:"id"`
	Title     string        `json:"title"`
	Time      string        `json:"time"` // HH:MM
	Date      string        `json:"date"` // YYYY-MM-DD
	Completed bool          `json:"completed"`
	Milestone *MilestoneRef `json:"milestone,omitempty"`
}

// MilestoneRef is a non-owning link from a DailyTask to a MilestoneTask.
type MilestoneRef struct {
	MilestoneID    int    `json:"milestone_id"`
	TaskID         int    `json:"task_id"`
	MilestoneTitle string `json:"milestone_title"`
}

func (t DailyTask) Clone() DailyTask {
	if t.Milestone != nil {
		ref := *t.Milestone
		t.Milestone = &ref
	}
	return t
}

// DateKey formats a time as a DailyTask date key.
func DateKey(t time.Time) string {
	return t.Format(DateLayout)
}
