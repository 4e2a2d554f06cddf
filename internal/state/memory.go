package state

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

type memorySnapshot struct {
	data      []byte
	updatedAt time.Time
}

// MemoryPersister keeps serialized snapshots in process memory.
type MemoryPersister struct {
	mu        sync.RWMutex
	snapshots map[string]memorySnapshot
}

func NewMemoryPersister() *MemoryPersister {
	return &MemoryPersister{snapshots: make(map[string]memorySnapshot)}
}

func (m *MemoryPersister) Load(ctx context.Context, sessionID string) (*State, error) {
	m.mu.RLock()
	snap, ok := m.snapshots[sessionID]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}

	var st State
	if err := json.Unmarshal(snap.data, &st); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session snapshot: %w", err)
	}
	return &st, nil
}

func (m *MemoryPersister) Save(ctx context.Context, sessionID string, st *State) error {
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("failed to marshal session snapshot: %w", err)
	}

	m.mu.Lock()
	m.snapshots[sessionID] = memorySnapshot{data: data, updatedAt: st.UpdatedAt}
	m.mu.Unlock()
	return nil
}

func (m *MemoryPersister) Delete(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	delete(m.snapshots, sessionID)
	m.mu.Unlock()
	return nil
}

// DeleteOlderThan drops snapshots last updated before cutoff.
func (m *MemoryPersister) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for id, snap := range m.snapshots {
		if snap.updatedAt.Before(cutoff) {
			delete(m.snapshots, id)
			n++
		}
	}
	return n, nil
}
