package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"loan-queue/internal/clock"
)

var limiterStart = time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)

// submitOnce checks and records one submission the way the queue does
func submitOnce(rl *RateLimiter, memberID string) error {
	if err := rl.CheckSubmissionRate(context.Background(), memberID); err != nil {
		return err
	}
	rl.RecordSubmission(memberID)
	return nil
}

func TestRateLimiter_CheckSubmissionRate_WithinLimit(t *testing.T) {
	rl := NewRateLimiter(clock.NewManual(limiterStart), 1, 10)

	assert.NoError(t, submitOnce(rl, "A-001"))
}

func TestRateLimiter_CheckSubmissionRate_ExceedsLimit(t *testing.T) {
	rl := NewRateLimiter(clock.NewManual(limiterStart), 1, 2)

	for i := 0; i < 2; i++ {
		assert.NoError(t, submitOnce(rl, "A-001"), "submission %d", i+1)
	}

	assert.ErrorIs(t, rl.CheckSubmissionRate(context.Background(), "A-001"), ErrRateLimitExceeded)
}

func TestRateLimiter_CheckDoesNotConsume(t *testing.T) {
	rl := NewRateLimiter(clock.NewManual(limiterStart), 1, 2)

	for i := 0; i < 5; i++ {
		assert.NoError(t, rl.CheckSubmissionRate(context.Background(), "A-001"))
	}

	rl.RecordSubmission("A-001")
	assert.NoError(t, rl.CheckSubmissionRate(context.Background(), "A-001"))
	rl.RecordSubmission("A-001")
	assert.ErrorIs(t, rl.CheckSubmissionRate(context.Background(), "A-001"), ErrRateLimitExceeded)
}

func TestRateLimiter_CheckSubmissionRate_WindowExpiry(t *testing.T) {
	clk := clock.NewManual(limiterStart)
	rl := NewRateLimiter(clk, 1, 2)

	submitOnce(rl, "A-001")
	submitOnce(rl, "A-001")
	assert.ErrorIs(t, rl.CheckSubmissionRate(context.Background(), "A-001"), ErrRateLimitExceeded)

	clk.Advance(61 * time.Second)
	assert.NoError(t, submitOnce(rl, "A-001"))
}

func TestRateLimiter_PrunesExpiredWindows(t *testing.T) {
	clk := clock.NewManual(limiterStart)
	rl := NewRateLimiter(clk, 1, 2)

	rl.RecordSubmission("A-001")
	clk.Advance(2 * time.Minute)
	rl.RecordSubmission("A-002")

	rl.mu.Lock()
	defer rl.mu.Unlock()
	assert.NotContains(t, rl.submissionWindows, "A-001")
	assert.Contains(t, rl.submissionWindows, "A-002")
}

func TestRateLimiter_CheckActiveLimit(t *testing.T) {
	rl := NewRateLimiter(clock.NewManual(limiterStart), 2, 10)

	assert.NoError(t, rl.CheckActiveLimit(context.Background(), "A-001", 1))
	assert.ErrorIs(t, rl.CheckActiveLimit(context.Background(), "A-001", 2), ErrRateLimitExceeded)
	assert.ErrorIs(t, rl.CheckActiveLimit(context.Background(), "A-001", 3), ErrRateLimitExceeded)
}

func TestRateLimiter_ZeroDisablesLimits(t *testing.T) {
	rl := NewRateLimiter(clock.NewManual(limiterStart), 0, 0)

	for i := 0; i < 50; i++ {
		assert.NoError(t, submitOnce(rl, "A-001"))
	}
	assert.NoError(t, rl.CheckActiveLimit(context.Background(), "A-001", 100))

	rl.mu.Lock()
	defer rl.mu.Unlock()
	assert.Empty(t, rl.submissionWindows)
}

func TestRateLimiter_MultipleMembers(t *testing.T) {
	rl := NewRateLimiter(clock.NewManual(limiterStart), 1, 2)

	submitOnce(rl, "A-001")
	submitOnce(rl, "A-001")

	assert.NoError(t, submitOnce(rl, "A-002"))
	assert.ErrorIs(t, rl.CheckSubmissionRate(context.Background(), "A-001"), ErrRateLimitExceeded)
}
