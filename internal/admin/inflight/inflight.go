// Package inflight keeps at most one login submission running per browser
// session, across requests and, with Redis, across replicas.
package inflight

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrBusy is returned when a submission for the key is already running.
var ErrBusy = errors.New("inflight: submission already in progress")

const defaultTTL = 30 * time.Second

// Release ends the hold taken by Acquire. Calling it more than once is a no-op.
type Release func()

// Guard grants exclusive holds per key. Holds lapse after their TTL so a
// crashed request cannot lock a session out indefinitely.
type Guard interface {
	Acquire(ctx context.Context, key string) (Release, error)
}

// Memory is a process-local Guard.
type Memory struct {
	mu    sync.Mutex
	ttl   time.Duration
	now   func() time.Time
	holds map[string]hold
	seq   uint64
}

type hold struct {
	id      uint64
	expires time.Time
}

// NewMemory constructs a Memory guard. A non-positive ttl uses 30s.
func NewMemory(ttl time.Duration) *Memory {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Memory{ttl: ttl, now: time.Now, holds: make(map[string]hold)}
}

// Acquire implements Guard.
func (m *Memory) Acquire(ctx context.Context, key string) (Release, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if current, ok := m.holds[key]; ok && now.Before(current.expires) {
		return nil, ErrBusy
	}
	m.seq++
	id := m.seq
	m.holds[key] = hold{id: id, expires: now.Add(m.ttl)}
	m.sweepLocked(now)

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			if current, ok := m.holds[key]; ok && current.id == id {
				delete(m.holds, key)
			}
		})
	}, nil
}

func (m *Memory) sweepLocked(now time.Time) {
	for key, h := range m.holds {
		if !now.Before(h.expires) {
			delete(m.holds, key)
		}
	}
}
