// Package limiter defines fixed-window throttles keyed by caller.
package limiter

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"
)

// Limiter counts hits per key within a window.
type Limiter interface {
	// Allow records one hit for key and reports whether it fits in the
	// current window, with the time left until the window resets.
	Allow(ctx context.Context, key string) (bool, time.Duration, error)
}

// SubmitKey is the throttle key for a user's submissions.
func SubmitKey(userID string) string { return "submit:" + userID }

// LoginKey is the throttle key for OAuth callbacks from one address.
func LoginKey(ip string) string { return "login:" + hex.EncodeToString(HashIP(ip)) }

// HashIP returns a stable hash for an IP string to avoid storing raw addresses.
func HashIP(ip string) []byte {
	h := sha256.Sum256([]byte(ip))
	return h[:]
}

// Memory is an in-process Limiter for tests and single-node development.
type Memory struct {
	mu     sync.Mutex
	window time.Duration
	max    int
	now    func() time.Time
	slots  map[string]*slot
}

type slot struct {
	start time.Time
	hits  int
}

// NewMemory constructs an in-process limiter allowing max hits per window.
func NewMemory(window time.Duration, max int) *Memory {
	return &Memory{window: window, max: max, now: time.Now, slots: map[string]*slot{}}
}

// Allow implements Limiter.
func (m *Memory) Allow(_ context.Context, key string) (bool, time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	s, ok := m.slots[key]
	if !ok || now.Sub(s.start) >= m.window {
		s = &slot{start: now}
		m.slots[key] = s
	}
	s.hits++
	if s.hits > m.max {
		return false, s.start.Add(m.window).Sub(now), nil
	}
	return true, 0, nil
}
