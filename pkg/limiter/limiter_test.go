// Copyright (C) 2025, MarketForge Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package limiter

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/marketforge/cpv/pkg/log"
)

// fakeClock is a manually advanced clock for deterministic window tests.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestLimiterLocksAfterMaxAttempts(t *testing.T) {
	require := require.New(t)
	clock := newFakeClock()
	lim := NewWithClock(3, time.Minute, clock.Now, log.NoOp())

	require.False(lim.CheckAndRecord("1.2.3.4").Limited)

	lim.RecordFailure("1.2.3.4")
	lim.RecordFailure("1.2.3.4")
	require.False(lim.CheckAndRecord("1.2.3.4").Limited)

	lim.RecordFailure("1.2.3.4")
	status := lim.CheckAndRecord("1.2.3.4")
	require.True(status.Limited)
	require.Equal(int64(60), status.RemainingLockoutSeconds)
}

func TestLimiterClearOnSuccess(t *testing.T) {
	require := require.New(t)
	clock := newFakeClock()
	lim := NewWithClock(3, time.Minute, clock.Now, log.NoOp())

	for i := 0; i < 3; i++ {
		lim.RecordFailure("key")
	}
	require.True(lim.CheckAndRecord("key").Limited)

	lim.ClearOnSuccess("key")
	require.False(lim.CheckAndRecord("key").Limited)
	require.Zero(lim.Tracked())
}

func TestLimiterWindowMeasuredFromLastFailure(t *testing.T) {
	require := require.New(t)
	clock := newFakeClock()
	lim := NewWithClock(2, time.Minute, clock.Now, log.NoOp())

	lim.RecordFailure("key")
	lim.RecordFailure("key")
	require.True(lim.CheckAndRecord("key").Limited)

	// A failure 30s into the lockout restarts the window from that
	// failure, so the key is still locked a full minute later.
	clock.Advance(30 * time.Second)
	lim.RecordFailure("key")

	clock.Advance(45 * time.Second)
	status := lim.CheckAndRecord("key")
	require.True(status.Limited)
	require.Equal(int64(15), status.RemainingLockoutSeconds)

	clock.Advance(15 * time.Second)
	require.False(lim.CheckAndRecord("key").Limited)
}

func TestLimiterWindowElapsesToClean(t *testing.T) {
	require := require.New(t)
	clock := newFakeClock()
	lim := NewWithClock(2, time.Minute, clock.Now, log.NoOp())

	lim.RecordFailure("key")
	lim.RecordFailure("key")
	require.True(lim.CheckAndRecord("key").Limited)

	clock.Advance(time.Minute)
	require.False(lim.CheckAndRecord("key").Limited)

	// Back to clean: old count must not carry over.
	lim.RecordFailure("key")
	require.False(lim.CheckAndRecord("key").Limited)
}

func TestLimiterSweep(t *testing.T) {
	require := require.New(t)
	clock := newFakeClock()
	lim := NewWithClock(5, time.Minute, clock.Now, log.NoOp())

	lim.RecordFailure("a")
	lim.RecordFailure("b")
	clock.Advance(30 * time.Second)
	lim.RecordFailure("c")

	clock.Advance(45 * time.Second)
	require.Equal(2, lim.Sweep())
	require.Equal(1, lim.Tracked())
}

func TestLimiterKeysAreIndependent(t *testing.T) {
	require := require.New(t)
	clock := newFakeClock()
	lim := NewWithClock(2, time.Minute, clock.Now, log.NoOp())

	lim.RecordFailure("a")
	lim.RecordFailure("a")
	require.True(lim.CheckAndRecord("a").Limited)
	require.False(lim.CheckAndRecord("b").Limited)
}

func TestLimiterConcurrentFailures(t *testing.T) {
	require := require.New(t)
	lim := New(100, time.Minute, log.NoOp())

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			lim.RecordFailure("shared")
		}()
	}
	wg.Wait()

	require.False(lim.CheckAndRecord("shared").Limited)
	for i := 0; i < 50; i++ {
		lim.RecordFailure("shared")
	}
	require.True(lim.CheckAndRecord("shared").Limited)
}
