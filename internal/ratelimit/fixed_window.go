package ratelimit

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// CounterStore is a shared store with atomic per-key counters.
type CounterStore interface {
	// Increment atomically adds one to key and returns the new value.
	Increment(ctx context.Context, key string) (int64, error)
	// Expire sets the time to live of key.
	Expire(ctx context.Context, key string, ttl time.Duration) error
	// TTL returns the remaining time to live of key, or a negative value
	// when the key has no expiry or does not exist.
	TTL(ctx context.Context, key string) (time.Duration, error)
	// Count returns the current value of key, 0 when absent.
	Count(ctx context.Context, key string) (int64, error)
}

// FailurePolicy decides admission when the counter store cannot be reached.
type FailurePolicy int

const (
	// FailOpen admits callers while the store is down.
	FailOpen FailurePolicy = iota
	// FailClosed denies callers while the store is down.
	FailClosed
)

// DefaultFailurePolicy is applied whenever the counter store is unreachable.
const DefaultFailurePolicy = FailOpen

func (p FailurePolicy) String() string {
	if p == FailClosed {
		return "fail-closed"
	}

	return "fail-open"
}

const keyPrefix = "rl:"

// FixedWindow is the shared-counter strategy. Each key has one counter that
// expires one window after the first event in it. Callers that arrive right
// at a window boundary can see two windows' worth of admissions.
type FixedWindow struct {
	store  CounterStore
	cfg    Config
	policy FailurePolicy
	logger *zap.Logger
}

// NewFixedWindow creates a shared-counter controller.
func NewFixedWindow(store CounterStore, cfg Config, policy FailurePolicy, logger *zap.Logger) *FixedWindow {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &FixedWindow{
		store:  store,
		cfg:    cfg.withDefaults(),
		policy: policy,
		logger: logger,
	}
}

func (l *FixedWindow) IsAllowed(ctx context.Context, key string) bool {
	k := keyPrefix + key

	count, err := l.store.Increment(ctx, k)
	if err != nil {
		return l.unavailable("increment", key, err)
	}

	if count == 1 {
		if err := l.store.Expire(ctx, k, l.cfg.Window); err != nil {
			return l.unavailable("expire", key, err)
		}
	} else {
		l.repairExpiry(ctx, k, key)
	}

	// Denied calls still count; the counter only resets when the key expires.
	return count <= int64(l.cfg.MaxPerWindow)
}

// repairExpiry gives a counter that lost its first Expire a fresh window,
// so one store hiccup cannot pin a key forever.
func (l *FixedWindow) repairExpiry(ctx context.Context, k, key string) {
	ttl, err := l.store.TTL(ctx, k)
	if err != nil {
		l.logger.Warn("admission ttl check failed", zap.String("key", key), zap.Error(err))

		return
	}

	if ttl >= 0 {
		return
	}

	if err := l.store.Expire(ctx, k, l.cfg.Window); err != nil {
		l.logger.Warn("admission expiry repair failed", zap.String("key", key), zap.Error(err))

		return
	}

	l.logger.Info("admission expiry repaired", zap.String("key", key))
}

func (l *FixedWindow) RemainingSeconds(ctx context.Context, key string) int {
	k := keyPrefix + key

	count, err := l.store.Count(ctx, k)
	if err != nil {
		return l.unavailableWait("count", key, err)
	}

	if count < int64(l.cfg.MaxPerWindow) {
		return 0
	}

	ttl, err := l.store.TTL(ctx, k)
	if err != nil {
		return l.unavailableWait("ttl", key, err)
	}

	if ttl == -1 {
		// expiry not repaired yet
		return ceilSeconds(l.cfg.Window)
	}

	return ceilSeconds(ttl)
}

func (l *FixedWindow) unavailable(op, key string, err error) bool {
	l.logger.Warn("admission store unavailable",
		zap.String("op", op),
		zap.String("key", key),
		zap.Stringer("policy", l.policy),
		zap.Error(err),
	)

	return l.policy == FailOpen
}

func (l *FixedWindow) unavailableWait(op, key string, err error) int {
	if l.unavailable(op, key, err) {
		return 0
	}

	return ceilSeconds(l.cfg.Window)
}

var _ Controller = (*FixedWindow)(nil)
