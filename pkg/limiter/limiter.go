// Copyright (C) 2025, MarketForge Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package limiter

import (
	"sync"
	"time"

	"github.com/marketforge/cpv/pkg/log"
)

// AttemptLimiter is a sliding-lockout counter keyed by requester
// identity. After MaxAttempts failures a key is locked until
// LockoutWindow has elapsed since the most recent failure; failures
// during lockout keep extending it. Storage is process-local and
// ephemeral.
type AttemptLimiter struct {
	mu       sync.Mutex
	attempts map[string]*attemptRecord
	max      int
	window   time.Duration
	now      func() time.Time
	log      log.Logger
}

// attemptRecord tracks the failure count and the time of the most
// recent failure for one key.
type attemptRecord struct {
	count       int
	lastAttempt time.Time
}

// Status is the outcome of a limiter check.
type Status struct {
	Limited                 bool
	RemainingLockoutSeconds int64
}

// New creates a limiter with the real clock.
func New(maxAttempts int, window time.Duration, logger log.Logger) *AttemptLimiter {
	return NewWithClock(maxAttempts, window, time.Now, logger)
}

// NewWithClock creates a limiter with an injected clock for
// deterministic tests.
func NewWithClock(maxAttempts int, window time.Duration, now func() time.Time, logger log.Logger) *AttemptLimiter {
	return &AttemptLimiter{
		attempts: make(map[string]*attemptRecord),
		max:      maxAttempts,
		window:   window,
		now:      now,
		log:      logger,
	}
}

// CheckAndRecord reports whether the key is currently locked out. The
// remaining lockout is measured from the last failure, not from lockout
// entry. A record whose window has fully elapsed is reset to clean.
func (l *AttemptLimiter) CheckAndRecord(key string) Status {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec, exists := l.attempts[key]
	if !exists {
		return Status{}
	}

	elapsed := l.now().Sub(rec.lastAttempt)
	if elapsed >= l.window {
		delete(l.attempts, key)
		return Status{}
	}

	if rec.count >= l.max {
		remaining := int64((l.window - elapsed).Seconds())
		if remaining < 1 {
			remaining = 1
		}
		return Status{Limited: true, RemainingLockoutSeconds: remaining}
	}

	return Status{}
}

// RecordFailure counts a failed attempt against the key. Failures while
// already locked move lastAttempt forward, extending the lockout.
func (l *AttemptLimiter) RecordFailure(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	rec, exists := l.attempts[key]
	if !exists || now.Sub(rec.lastAttempt) >= l.window {
		l.attempts[key] = &attemptRecord{count: 1, lastAttempt: now}
		return
	}

	rec.count++
	rec.lastAttempt = now

	if rec.count == l.max {
		l.log.Warn("attempt limit reached, key locked",
			"key", key,
			"attempts", rec.count,
			"window", l.window.String())
	}
}

// ClearOnSuccess unconditionally resets a key to clean.
func (l *AttemptLimiter) ClearOnSuccess(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.attempts, key)
}

// Sweep drops records whose window has fully elapsed and returns how
// many were removed. Intended for periodic housekeeping.
func (l *AttemptLimiter) Sweep() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	removed := 0
	for key, rec := range l.attempts {
		if now.Sub(rec.lastAttempt) >= l.window {
			delete(l.attempts, key)
			removed++
		}
	}
	return removed
}

// Tracked returns the number of keys currently tracked.
func (l *AttemptLimiter) Tracked() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.attempts)
}
