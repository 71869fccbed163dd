package store

import (
	"context"
	"sync"
	"time"

	"telemetry-svr/internal/codec"
)

// Memory keeps positions in process. It is used when no redis is
// configured. Like Redis it keeps only the most recent history entries per
// device.
type Memory struct {
	mu      sync.RWMutex
	seq     int64
	limit   int
	history map[string][]StoredPosition
}

// NewMemory keeps up to history positions per device; zero or less selects
// the same default as NewRedis.
func NewMemory(history int) *Memory {
	if history <= 0 {
		history = defaultHistory
	}
	return &Memory{limit: history, history: make(map[string][]StoredPosition)}
}

func (m *Memory) Save(_ context.Context, p codec.Position) (StoredPosition, error) {
	if err := validate(p); err != nil {
		return StoredPosition{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.seq++
	sp := StoredPosition{Position: p, ID: m.seq, ReceivedAt: time.Now().UTC()}
	h := append(m.history[p.DeviceID], sp)
	if len(h) > m.limit {
		n := copy(h, h[len(h)-m.limit:])
		clear(h[n:])
		h = h[:n]
	}
	m.history[p.DeviceID] = h
	return sp, nil
}

func (m *Memory) Latest(_ context.Context, deviceID string) (StoredPosition, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	h := m.history[deviceID]
	if len(h) == 0 {
		return StoredPosition{}, false, nil
	}
	return h[len(h)-1], true, nil
}

// History returns up to n recent positions, newest first.
func (m *Memory) History(_ context.Context, deviceID string, n int) ([]StoredPosition, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	h := m.history[deviceID]
	n = min(n, len(h))
	if n <= 0 {
		return nil, nil
	}
	out := make([]StoredPosition, 0, n)
	for i := len(h) - 1; i >= len(h)-n; i-- {
		out = append(out, h[i])
	}
	return out, nil
}

// Count returns how many positions are retained for deviceID.
func (m *Memory) Count(deviceID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.history[deviceID])
}
