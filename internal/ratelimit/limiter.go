// Package ratelimit bounds request frequency per client identity with a
// fixed-window quota held in process memory. A process restart clears all
// counters; replicas do not coordinate.
package ratelimit

import (
	"errors"
	"sync"
	"time"
)

// pruneThreshold caps how many identities are tracked before expired
// counters are swept out.
const pruneThreshold = 4096

type counter struct {
	windowStart time.Time
	count       int
}

type Limiter struct {
	quota  int
	window time.Duration
	now    func() time.Time

	mu       sync.Mutex
	counters map[string]*counter
}

func New(quota int, window time.Duration) (*Limiter, error) {
	if quota <= 0 {
		return nil, errors.New("ratelimit: quota must be positive")
	}
	if window <= 0 {
		return nil, errors.New("ratelimit: window must be positive")
	}
	return &Limiter{
		quota:    quota,
		window:   window,
		now:      time.Now,
		counters: make(map[string]*counter),
	}, nil
}

// Allow reports whether one more request from identity fits in the active
// window and, if so, consumes the slot. The check and the increment happen
// under one lock, so concurrent callers cannot over-admit when a single slot
// remains.
func (l *Limiter) Allow(identity string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	c, ok := l.counters[identity]
	if !ok || now.Sub(c.windowStart) >= l.window {
		if len(l.counters) >= pruneThreshold {
			l.prune(now)
		}
		l.counters[identity] = &counter{windowStart: now, count: 1}
		return true
	}
	if c.count >= l.quota {
		return false
	}
	c.count++
	return true
}

// prune drops counters whose window already expired. Caller holds mu.
func (l *Limiter) prune(now time.Time) {
	for id, c := range l.counters {
		if now.Sub(c.windowStart) >= l.window {
			delete(l.counters, id)
		}
	}
}
