package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Memory is an in-process sliding-window-log limiter.
type Memory struct {
	clock  clockwork.Clock
	limit  int
	window time.Duration

	mu   sync.Mutex
	hits map[string][]time.Time
}

// NewMemory creates a limiter allowing limit requests per window for each key.
func NewMemory(limit int, window time.Duration, clock clockwork.Clock) *Memory {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Memory{
		clock:  clock,
		limit:  limit,
		window: window,
		hits:   make(map[string][]time.Time),
	}
}

// Allow implements Limiter. It never returns an error.
func (m *Memory) Allow(_ context.Context, key string) (bool, error) {
	now := m.clock.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	recent := prune(m.hits[key], now.Add(-m.window))
	if len(recent) >= m.limit {
		m.hits[key] = recent
		return false, nil
	}
	m.hits[key] = append(recent, now)
	return true, nil
}

// Sweep drops keys with no hits left in the window and returns how many were dropped.
func (m *Memory) Sweep() int {
	cutoff := m.clock.Now().Add(-m.window)

	m.mu.Lock()
	defer m.mu.Unlock()

	dropped := 0
	for key, hits := range m.hits {
		recent := prune(hits, cutoff)
		if len(recent) == 0 {
			delete(m.hits, key)
			dropped++
			continue
		}
		m.hits[key] = recent
	}
	return dropped
}

// Keys returns the number of tracked keys.
func (m *Memory) Keys() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.hits)
}

// prune returns the hits strictly after cutoff. hits are in ascending order.
func prune(hits []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(hits) && !hits[i].After(cutoff) {
		i++
	}
	return hits[i:]
}
