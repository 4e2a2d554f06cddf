package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"goal_planner/internal/models"
	"goal_planner/internal/state"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SessionRepository persists session snapshots in the session_snapshots table.
type SessionRepository interface {
	state.Persister
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

type sessionRepository struct {
	db *gorm.DB
}

func NewSessionRepository(db *gorm.DB) SessionRepository {
	return &sessionRepository{db: db}
}

func (r *sessionRepository) Load(ctx context.Context, sessionID string) (*state.State, error) {
	var snap models.SessionSnapshot
	err := r.db.WithContext(ctx).First(&snap, "id = ?", sessionID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, state.ErrNotFound
		}
		return nil, err
	}
	return decodeSnapshot(&snap)
}

func (r *sessionRepository) Save(ctx context.Context, sessionID string, st *state.State) error {
	snap, err := encodeSnapshot(sessionID, st)
	if err != nil {
		return err
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"payload", "updated_at"}),
	}).Create(snap).Error
}

func (r *sessionRepository) Delete(ctx context.Context, sessionID string) error {
	return r.db.WithContext(ctx).Delete(&models.SessionSnapshot{}, "id = ?", sessionID).Error
}

// DeleteOlderThan removes snapshots not updated since cutoff.
func (r *sessionRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Where("updated_at < ?", cutoff).Delete(&models.SessionSnapshot{})
	return res.RowsAffected, res.Error
}

func encodeSnapshot(sessionID string, st *state.State) (*models.SessionSnapshot, error) {
	payload, err := json.Marshal(st)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal session snapshot: %w", err)
	}
	return &models.SessionSnapshot{ID: sessionID, Payload: string(payload)}, nil
}

func decodeSnapshot(snap *models.SessionSnapshot) (*state.State, error) {
	var st state.State
	if err := json.Unmarshal([]byte(snap.Payload), &st); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session snapshot %s: %w", snap.ID, err)
	}
	return &st, nil
}
