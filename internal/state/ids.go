package state

import (
	"sync"
	"time"
)

// IDSource mints time-based IDs (Unix milliseconds) that strictly increase,
// even when the clock stalls or steps backwards.
type IDSource struct {
	mu   sync.Mutex
	last int64
	now  func() time.Time
}

func NewIDSource(now func() time.Time) *IDSource {
	if now == nil {
		now = time.Now
	}
	return &IDSource{now: now}
}

func (g *IDSource) Next() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()

	id := g.now().UnixMilli()
	if id <= g.last {
		id = g.last + 1
	}
	g.last = id
	return id
}

// Observe records an ID minted earlier (e.g. loaded from storage) so that
// it is never handed out again.
func (g *IDSource) Observe(id int64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if id > g.last {
		g.last = id
	}
}
