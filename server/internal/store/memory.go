package store

import (
	"context"
	"sync"
	"time"

	"github.com/qualitypulse/qualitypulse/pkg/types"
)

// Memory is a thread-safe in-memory Store, keyed by metric UUID.
type Memory struct {
	mu      sync.RWMutex
	history map[string][]*types.Measurement // oldest first
	byID    map[string]*types.Measurement
}

// NewMemory returns an empty Memory store.
func NewMemory() *Memory {
	return &Memory{
		history: make(map[string][]*types.Measurement),
		byID:    make(map[string]*types.Measurement),
	}
}

// Latest implements Store.
func (s *Memory) Latest(_ context.Context, metricUUID string) (*types.Measurement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h := s.history[metricUUID]
	if len(h) == 0 {
		return nil, nil
	}
	return h[len(h)-1].Copy(), nil
}

// Insert implements Store. The store keeps its own copy of m.
func (s *Memory) Insert(_ context.Context, m *types.Measurement) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := m.Copy()
	s.history[m.MetricUUID] = append(s.history[m.MetricUUID], cp)
	s.byID[m.ID] = cp
	return nil
}

// ExtendEnd implements Store.
func (s *Memory) ExtendEnd(_ context.Context, id string, end time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.byID[id]
	if !ok {
		return ErrNotFound
	}
	m.End = end
	return nil
}

// History implements Store.
func (s *Memory) History(_ context.Context, metricUUID string, limit int) ([]*types.Measurement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h := s.history[metricUUID]
	n := len(h)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]*types.Measurement, 0, n)
	for i := len(h) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, h[i].Copy())
	}
	return out, nil
}

// LatestPerMetric implements Store.
func (s *Memory) LatestPerMetric(_ context.Context) (map[string]*types.Measurement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]*types.Measurement, len(s.history))
	for id, h := range s.history {
		if len(h) > 0 {
			out[id] = h[len(h)-1].Copy()
		}
	}
	return out, nil
}

// Count implements Store.
func (s *Memory) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID), nil
}

// Close implements Store.
func (s *Memory) Close() error { return nil }
