package service

import (
	"context"
	"sync"
	"time"

	"loan-queue/internal/clock"
)

// RateLimiter implements per-member submission limits. A limit of zero or
// less disables that check.
type RateLimiter struct {
	mu    sync.Mutex
	clock clock.Clock

	// Per-member loans that are queued or under review
	maxActiveLoans int

	// Per-member submission rate limit
	maxSubmissionsPerMinute int
	submissionWindows       map[string]*submissionWindow
}

type submissionWindow struct {
	count     int
	windowEnd time.Time
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(clk clock.Clock, maxActiveLoans, maxSubmissionsPerMinute int) *RateLimiter {
	return &RateLimiter{
		clock:                   clk,
		maxActiveLoans:          maxActiveLoans,
		maxSubmissionsPerMinute: maxSubmissionsPerMinute,
		submissionWindows:       make(map[string]*submissionWindow),
	}
}

// CheckActiveLimit checks if a member may have another open application
func (rl *RateLimiter) CheckActiveLimit(ctx context.Context, memberID string, currentActive int) error {
	if rl.maxActiveLoans > 0 && currentActive >= rl.maxActiveLoans {
		return ErrRateLimitExceeded
	}
	return nil
}

// CheckSubmissionRate checks if a member can submit again. Only submissions
// recorded with RecordSubmission count against the limit.
func (rl *RateLimiter) CheckSubmissionRate(ctx context.Context, memberID string) error {
	if rl.maxSubmissionsPerMinute <= 0 {
		return nil
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	window, exists := rl.submissionWindows[memberID]
	if exists && !rl.clock.Now().After(window.windowEnd) && window.count >= rl.maxSubmissionsPerMinute {
		return ErrRateLimitExceeded
	}
	return nil
}

// RecordSubmission counts an accepted submission in the member's window
func (rl *RateLimiter) RecordSubmission(memberID string) {
	if rl.maxSubmissionsPerMinute <= 0 {
		return
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.clock.Now()
	window, exists := rl.submissionWindows[memberID]
	if !exists || now.After(window.windowEnd) {
		rl.submissionWindows[memberID] = &submissionWindow{
			count:     1,
			windowEnd: now.Add(1 * time.Minute),
		}
		rl.prune(now)
		return
	}
	window.count++
}

// prune drops expired windows; callers hold mu
func (rl *RateLimiter) prune(now time.Time) {
	for id, w := range rl.submissionWindows {
		if now.After(w.windowEnd) {
			delete(rl.submissionWindows, id)
		}
	}
}
