package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"
)

const (
	// DefaultWindow is the trailing interval submissions are counted over.
	DefaultWindow = time.Minute
	// DefaultMaxPerWindow is the contact endpoint allowance per window.
	DefaultMaxPerWindow = 5
	// StrictMaxPerWindow is the tighter allowance used for form-level checks.
	StrictMaxPerWindow = 3
)

var (
	ErrUnknownStrategy = errors.New("unknown admission strategy")
	ErrMissingStore    = errors.New("shared admission strategy requires a counter store")
)

// Controller decides whether a caller may submit right now.
type Controller interface {
	// IsAllowed reports whether the caller identified by key may proceed.
	// An allowed call records one event for key before returning.
	IsAllowed(ctx context.Context, key string) bool

	// RemainingSeconds returns how long the caller must wait before the next
	// call can be allowed. It returns 0 when the caller is currently allowed.
	RemainingSeconds(ctx context.Context, key string) int
}

// Config is fixed at construction.
type Config struct {
	Window       time.Duration
	MaxPerWindow int
}

// DefaultConfig returns the contact endpoint configuration.
func DefaultConfig() Config {
	return Config{
		Window:       DefaultWindow,
		MaxPerWindow: DefaultMaxPerWindow,
	}
}

func (c Config) withDefaults() Config {
	if c.Window <= 0 {
		c.Window = DefaultWindow
	}

	if c.MaxPerWindow <= 0 {
		c.MaxPerWindow = DefaultMaxPerWindow
	}

	return c
}

// Strategy selects the backing implementation of a Controller.
type Strategy string

const (
	// StrategyLocal keeps an exact sliding log per key inside this process.
	StrategyLocal Strategy = "local"
	// StrategyShared counts per key in a shared store using fixed windows.
	StrategyShared Strategy = "shared"
)

// New builds exactly one Controller for the given strategy.
// The store is only used by StrategyShared.
func New(strategy Strategy, cfg Config, store CounterStore, logger *zap.Logger) (Controller, error) {
	switch strategy {
	case StrategyLocal:
		return NewSlidingWindow(cfg, nil), nil
	case StrategyShared:
		if store == nil {
			return nil, ErrMissingStore
		}

		return NewFixedWindow(store, cfg, DefaultFailurePolicy, logger), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, strategy)
	}
}

// ceilSeconds rounds a positive wait up to whole seconds.
func ceilSeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}

	return int(math.Ceil(d.Seconds()))
}
