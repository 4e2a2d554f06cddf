// Package state holds one session's application state. Every mutation
// replaces the whole state under a lock, so readers always see either the
// complete previous state or the complete next one.
package state

import (
	"context"
	"errors"
	"sync"
	"time"

	"goal_planner/internal/models"

	"go.uber.org/zap"
)

// ErrNotFound is returned by a Persister that has no snapshot for a session.
var ErrNotFound = errors.New("snapshot not found")

type State struct {
	Goal          *models.GoalPlan   `json:"goal"`
	Tasks         []models.DailyTask `json:"tasks"`
	Analyzing     bool               `json:"analyzing"`
	AnalyzingGoal string             `json:"analyzing_goal,omitempty"`
	PendingSplits []int64            `json:"pending_splits,omitempty"`
	UpdatedAt     time.Time          `json:"updated_at"`
}

// Clone returns a deep copy.
func (s State) Clone() State {
	out := s
	out.Goal = s.Goal.Clone()
	if s.Tasks != nil {
		out.Tasks = make([]models.DailyTask, len(s.Tasks))
		for i, t := range s.Tasks {
			out.Tasks[i] = t.Clone()
		}
	}
	if s.PendingSplits != nil {
		out.PendingSplits = append([]int64(nil), s.PendingSplits...)
	}
	return out
}

// TaskIndex returns the position of the daily task with id, or -1.
func (s *State) TaskIndex(id int64) int {
	for i := range s.Tasks {
		if s.Tasks[i].ID == id {
			return i
		}
	}
	return -1
}

// Persister stores session snapshots.
type Persister interface {
	Load(ctx context.Context, sessionID string) (*State, error)
	Save(ctx context.Context, sessionID string, st *State) error
	Delete(ctx context.Context, sessionID string) error
}

type Store struct {
	id        string
	persister Persister
	logger    *zap.Logger
	now       func() time.Time

	mu      sync.RWMutex
	current State
}

// NewStore wraps initial. persister may be nil.
func NewStore(id string, initial State, persister Persister, logger *zap.Logger, now func() time.Time) *Store {
	if now == nil {
		now = time.Now
	}
	return &Store{
		id:        id,
		persister: persister,
		logger:    logger,
		now:       now,
		current:   initial.Clone(),
	}
}

func (s *Store) ID() string { return s.id }

// Snapshot returns a deep copy of the current state.
func (s *Store) Snapshot() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.Clone()
}

// IdleSince reports whether the state was last changed before cutoff and no
// goal analysis or split is in flight.
func (s *Store) IdleSince(cutoff time.Time) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current.Analyzing || len(s.current.PendingSplits) > 0 {
		return false
	}
	return s.current.UpdatedAt.Before(cutoff)
}

// Update runs fn on a private copy of the state and installs the result if
// fn returns nil. On error the state is left untouched. The new state is
// saved through the persister; a failed save is logged and the in-memory
// transition stands.
func (s *Store) Update(ctx context.Context, fn func(st *State) error) (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.current.Clone()
	if err := fn(&next); err != nil {
		return s.current.Clone(), err
	}
	next.UpdatedAt = s.now()
	s.current = next

	if s.persister != nil {
		if err := s.persister.Save(context.WithoutCancel(ctx), s.id, &next); err != nil {
			s.logger.Warn("failed to persist session snapshot", zap.String("session_id", s.id), zap.Error(err))
		}
	}
	return next.Clone(), nil
}
