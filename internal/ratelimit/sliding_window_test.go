package ratelimit_test

import (
	"context"
	"testing"
	"time"

	"github.com/serroba/contact-intake/internal/ratelimit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

type fakeClock struct {
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, time.June, 23, 10, 15, 30, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func TestSlidingWindow_IsAllowed(t *testing.T) {
	t.Run("allows five then denies the sixth within one second", func(t *testing.T) {
		clock := newFakeClock()
		limiter := ratelimit.NewSlidingWindow(ratelimit.Config{Window: time.Minute, MaxPerWindow: 5}, clock.Now)
		ctx := context.Background()

		for i := range 5 {
			assert.True(t, limiter.IsAllowed(ctx, "x"), "call %d should be allowed", i+1)
			clock.Advance(100 * time.Millisecond)
		}

		assert.False(t, limiter.IsAllowed(ctx, "x"))

		remaining := limiter.RemainingSeconds(ctx, "x")
		assert.Greater(t, remaining, 0)
		assert.LessOrEqual(t, remaining, 60)
	})

	t.Run("tracks keys independently", func(t *testing.T) {
		limiter := ratelimit.NewSlidingWindow(ratelimit.Config{Window: time.Minute, MaxPerWindow: 2}, newFakeClock().Now)
		ctx := context.Background()

		assert.True(t, limiter.IsAllowed(ctx, "client1"))
		assert.True(t, limiter.IsAllowed(ctx, "client1"))
		assert.False(t, limiter.IsAllowed(ctx, "client1"), "client1 should be rate limited")

		assert.True(t, limiter.IsAllowed(ctx, "client2"), "client2 should still be allowed")
	})

	t.Run("denied calls are not recorded", func(t *testing.T) {
		clock := newFakeClock()
		limiter := ratelimit.NewSlidingWindow(ratelimit.Config{Window: time.Minute, MaxPerWindow: 1}, clock.Now)
		ctx := context.Background()

		require.True(t, limiter.IsAllowed(ctx, "k"))

		for range 10 {
			clock.Advance(time.Second)
			assert.False(t, limiter.IsAllowed(ctx, "k"))
		}

		// Only the first event counts, so the key frees up one window after it.
		clock.Advance(50 * time.Second)
		assert.True(t, limiter.IsAllowed(ctx, "k"))
	})

	t.Run("allows again after window expires", func(t *testing.T) {
		clock := newFakeClock()
		limiter := ratelimit.NewSlidingWindow(ratelimit.Config{Window: time.Minute, MaxPerWindow: 2}, clock.Now)
		ctx := context.Background()

		assert.True(t, limiter.IsAllowed(ctx, "client1"))
		assert.True(t, limiter.IsAllowed(ctx, "client1"))
		assert.False(t, limiter.IsAllowed(ctx, "client1"))

		clock.Advance(time.Minute)

		assert.True(t, limiter.IsAllowed(ctx, "client1"), "should be allowed after window expires")
	})

	t.Run("zero config falls back to defaults", func(t *testing.T) {
		limiter := ratelimit.NewSlidingWindow(ratelimit.Config{}, newFakeClock().Now)
		ctx := context.Background()

		for range ratelimit.DefaultMaxPerWindow {
			assert.True(t, limiter.IsAllowed(ctx, "k"))
		}

		assert.False(t, limiter.IsAllowed(ctx, "k"))
	})
}

func TestSlidingWindow_WindowBound(t *testing.T) {
	clock := newFakeClock()
	cfg := ratelimit.Config{Window: 10 * time.Second, MaxPerWindow: 3}
	limiter := ratelimit.NewSlidingWindow(cfg, clock.Now)
	ctx := context.Background()

	var admitted []time.Time

	// Irregular arrival pattern: bursts and gaps across several windows.
	steps := []time.Duration{0, 100, 200, 300, 2500, 4000, 7000, 9900, 10, 15000, 50, 50, 50, 9000, 1000, 1}
	for _, step := range steps {
		clock.Advance(step * time.Millisecond)

		if limiter.IsAllowed(ctx, "k") {
			admitted = append(admitted, clock.Now())
		}
	}

	require.NotEmpty(t, admitted)

	for i, end := range admitted {
		count := 0

		for _, ts := range admitted[:i+1] {
			if end.Sub(ts) < cfg.Window {
				count++
			}
		}

		assert.LessOrEqual(t, count, cfg.MaxPerWindow, "window ending at admission %d holds too many events", i)
	}
}

func TestSlidingWindow_RemainingSeconds(t *testing.T) {
	t.Run("returns zero when allowed", func(t *testing.T) {
		limiter := ratelimit.NewSlidingWindow(ratelimit.Config{Window: time.Minute, MaxPerWindow: 2}, newFakeClock().Now)
		ctx := context.Background()

		assert.Equal(t, 0, limiter.RemainingSeconds(ctx, "unknown"))

		limiter.IsAllowed(ctx, "k")
		assert.Equal(t, 0, limiter.RemainingSeconds(ctx, "k"))
	})

	t.Run("is non-increasing as time advances", func(t *testing.T) {
		clock := newFakeClock()
		limiter := ratelimit.NewSlidingWindow(ratelimit.Config{Window: time.Minute, MaxPerWindow: 2}, clock.Now)
		ctx := context.Background()

		require.True(t, limiter.IsAllowed(ctx, "k"))
		clock.Advance(10 * time.Second)
		require.True(t, limiter.IsAllowed(ctx, "k"))

		previous := limiter.RemainingSeconds(ctx, "k")
		assert.Equal(t, 50, previous)

		for elapsed := time.Duration(0); elapsed < 50*time.Second; elapsed += 700 * time.Millisecond {
			clock.Advance(700 * time.Millisecond)

			current := limiter.RemainingSeconds(ctx, "k")
			assert.LessOrEqual(t, current, previous)

			previous = current
		}
	})

	t.Run("reaches zero exactly one window after the oldest event", func(t *testing.T) {
		clock := newFakeClock()
		start := clock.Now()
		limiter := ratelimit.NewSlidingWindow(ratelimit.Config{Window: time.Minute, MaxPerWindow: 1}, clock.Now)
		ctx := context.Background()

		require.True(t, limiter.IsAllowed(ctx, "k"))

		clock.now = start.Add(time.Minute - time.Millisecond)
		assert.Equal(t, 1, limiter.RemainingSeconds(ctx, "k"))

		clock.now = start.Add(time.Minute)
		assert.Equal(t, 0, limiter.RemainingSeconds(ctx, "k"))
		assert.True(t, limiter.IsAllowed(ctx, "k"))
	})
}

func TestSlidingWindow_Cleanup(t *testing.T) {
	clock := newFakeClock()
	limiter := ratelimit.NewSlidingWindow(ratelimit.Config{Window: time.Minute, MaxPerWindow: 3}, clock.Now)
	ctx := context.Background()

	limiter.IsAllowed(ctx, "old")
	clock.Advance(45 * time.Second)
	limiter.IsAllowed(ctx, "fresh")

	assert.Equal(t, 2, limiter.Keys())

	clock.Advance(30 * time.Second)
	limiter.Cleanup()

	assert.Equal(t, 1, limiter.Keys(), "expired key should be dropped")
}

func TestSlidingWindow_RunJanitor(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	limiter := ratelimit.NewSlidingWindow(ratelimit.Config{Window: 10 * time.Millisecond, MaxPerWindow: 1}, nil)
	ctx, cancel := context.WithCancel(context.Background())

	limiter.IsAllowed(ctx, "k")

	done := make(chan struct{})

	go func() {
		limiter.RunJanitor(ctx, 5*time.Millisecond)
		close(done)
	}()

	assert.Eventually(t, func() bool { return limiter.Keys() == 0 }, time.Second, 5*time.Millisecond)

	cancel()
	<-done
}
