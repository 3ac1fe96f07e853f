package ratelimit

import (
	"context"
	"sync"
	"time"
)

// memoryStore backs the degraded no-redis configuration: a fixed-window
// counter per key with a janitor that drops idle entries.
type memoryStore struct {
	mu      sync.Mutex
	entries map[string]*memoryEntry
	idleTTL time.Duration
}

type memoryEntry struct {
	count    int64
	reset    time.Time
	lastSeen time.Time
}

func NewMemoryStore() *memoryStore {
	return &memoryStore{
		entries: make(map[string]*memoryEntry),
		idleTTL: 15 * time.Minute,
	}
}

func (s *memoryStore) Incr(ctx context.Context, key string, window time.Duration) (int64, error) {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	ent, ok := s.entries[key]
	if !ok || now.After(ent.reset) {
		ent = &memoryEntry{reset: now.Add(window)}
		s.entries[key] = ent
	}
	ent.lastSeen = now
	ent.count++
	return ent.count, nil
}

// Cleanup drops entries idle longer than the TTL.
func (s *memoryStore) Cleanup() {
	cutoff := time.Now().Add(-s.idleTTL)

	s.mu.Lock()
	defer s.mu.Unlock()

	for k, ent := range s.entries {
		if ent.lastSeen.Before(cutoff) {
			delete(s.entries, k)
		}
	}
}

// StartJanitor cleans idle keys until the context is done.
func (s *memoryStore) StartJanitor(ctx context.Context, every time.Duration) {
	if every <= 0 {
		return
	}

	t := time.NewTicker(every)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				s.Cleanup()
			}
		}
	}()
}
