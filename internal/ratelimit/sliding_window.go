package ratelimit

import (
	"context"
	"sync"
	"time"
)

// SlidingWindow is the local-process strategy. It keeps the timestamps of
// admitted events per key and only counts those inside the trailing window.
//
// State lives in this process only; separate instances of the service do not
// see each other's events.
type SlidingWindow struct {
	mu     sync.Mutex
	events map[string][]time.Time
	cfg    Config
	now    func() time.Time
}

// NewSlidingWindow creates a sliding window controller. A nil clock uses time.Now.
func NewSlidingWindow(cfg Config, now func() time.Time) *SlidingWindow {
	if now == nil {
		now = time.Now
	}

	return &SlidingWindow{
		events: make(map[string][]time.Time),
		cfg:    cfg.withDefaults(),
		now:    now,
	}
}

func (l *SlidingWindow) IsAllowed(_ context.Context, key string) bool {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	recent := l.prune(key, now)
	if len(recent) >= l.cfg.MaxPerWindow {
		return false
	}

	l.events[key] = append(recent, now)

	return true
}

func (l *SlidingWindow) RemainingSeconds(_ context.Context, key string) int {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	recent := l.prune(key, now)
	if len(recent) < l.cfg.MaxPerWindow {
		return 0
	}

	oldest := recent[0]
	for _, ts := range recent[1:] {
		if ts.Before(oldest) {
			oldest = ts
		}
	}

	return ceilSeconds(oldest.Add(l.cfg.Window).Sub(now))
}

// Cleanup drops keys whose events have all left the window.
func (l *SlidingWindow) Cleanup() {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	for key := range l.events {
		l.prune(key, now)
	}
}

// RunJanitor calls Cleanup every interval until ctx is done.
func (l *SlidingWindow) RunJanitor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Cleanup()
		}
	}
}

// Keys returns the number of keys currently tracked.
func (l *SlidingWindow) Keys() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return len(l.events)
}

// prune removes expired timestamps for key and returns what is left.
// Callers must hold l.mu.
func (l *SlidingWindow) prune(key string, now time.Time) []time.Time {
	timestamps, ok := l.events[key]
	if !ok {
		return nil
	}

	recent := timestamps[:0]

	for _, ts := range timestamps {
		if now.Sub(ts) < l.cfg.Window {
			recent = append(recent, ts)
		}
	}

	if len(recent) == 0 {
		delete(l.events, key)

		return nil
	}

	l.events[key] = recent

	return recent
}

var _ Controller = (*SlidingWindow)(nil)
