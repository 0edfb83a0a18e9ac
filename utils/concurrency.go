package utils

import (
	"context"
	"sync"
	"time"
)

// Throttle spaces calls to a shared upstream so that consecutive requests,
// across all goroutines, are at least minInterval apart.
type Throttle struct {
	minInterval time.Duration

	mu          sync.Mutex
	lastRequest time.Time
}

// NewThrottle creates a Throttle with the given rate limit in milliseconds.
func NewThrottle(rateLimitMs int) *Throttle {
	return &Throttle{minInterval: time.Duration(rateLimitMs) * time.Millisecond}
}

// Wait blocks until the caller may issue its request or ctx is done.
func (t *Throttle) Wait(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.lastRequest.IsZero() {
		elapsed := time.Since(t.lastRequest)
		if elapsed < t.minInterval {
			if err := sleepCtx(ctx, t.minInterval-elapsed); err != nil {
				return err
			}
		}
	}
	t.lastRequest = time.Now()
	return nil
}

// KeySet is a thread-safe set of string keys.
type KeySet struct {
	mu   sync.RWMutex
	keys map[string]struct{}
}

// NewKeySet creates an empty KeySet.
func NewKeySet() *KeySet {
	return &KeySet{keys: make(map[string]struct{})}
}

// Add returns true if the key was newly added, false if already present.
func (s *KeySet) Add(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.keys[key]; exists {
		return false
	}
	s.keys[key] = struct{}{}
	return true
}

// Remove deletes key from the set.
func (s *KeySet) Remove(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.keys, key)
}

// Contains returns true if the key is present.
func (s *KeySet) Contains(key string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, exists := s.keys[key]
	return exists
}

// Size returns the number of keys tracked.
func (s *KeySet) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.keys)
}
