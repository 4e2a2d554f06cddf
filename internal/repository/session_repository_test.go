package repository

import (
	"context"
	"os"
	"testing"
	"time"

	"goal_planner/internal/database"
	"goal_planner/internal/models"
	"goal_planner/internal/state"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestSnapshotEncoding(t *testing.T) {
	plan := &models.GoalPlan{Title: "考研上岸", Timeline: models.DefaultTimeline}
	in := &state.State{
		Goal:          plan,
		Tasks:         []models.DailyTask{{ID: 1, Title: "背单词", Milestone: &models.MilestoneRef{MilestoneID: 1, TaskID: 2}}},
		PendingSplits: []int64{1},
	}

	snap, err := encodeSnapshot("s1", in)
	require.NoError(t, err)
	assert.Equal(t, "s1", snap.ID)
	assert.Contains(t, snap.Payload, `"milestone_id":1`)

	out, err := decodeSnapshot(snap)
	require.NoError(t, err)
	assert.Equal(t, in.Goal, out.Goal)
	assert.Equal(t, in.Tasks, out.Tasks)
	assert.Equal(t, in.PendingSplits, out.PendingSplits)
}

func TestDecodeSnapshot_Corrupt(t *testing.T) {
	_, err := decodeSnapshot(&models.SessionSnapshot{ID: "bad", Payload: "{"})
	assert.ErrorContains(t, err, "bad")
}

// Runs against a real database when TEST_DATABASE_URL is set.
func TestSessionRepository_Postgres(t *testing.T) {
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	db, err := database.Initialize(url, zap.NewNop())
	require.NoError(t, err)
	repo := NewSessionRepository(db)
	ctx := context.Background()
	id := uuid.NewString()
	defer repo.Delete(ctx, id)

	_, err = repo.Load(ctx, id)
	require.ErrorIs(t, err, state.ErrNotFound)

	require.NoError(t, repo.Save(ctx, id, &state.State{AnalyzingGoal: "first"}))
	require.NoError(t, repo.Save(ctx, id, &state.State{AnalyzingGoal: "second"}))

	got, err := repo.Load(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "second", got.AnalyzingGoal)

	n, err := repo.DeleteOlderThan(ctx, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, n, int64(0))

	require.NoError(t, repo.Delete(ctx, id))
	_, err = repo.Load(ctx, id)
	assert.ErrorIs(t, err, state.ErrNotFound)
}
