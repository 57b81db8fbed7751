package service

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loan-queue/internal/config"
	"loan-queue/internal/metrics"
)

func newTestAnalytics(t *testing.T, tq *testQueue) *AnalyticsService {
	t.Helper()
	loc, err := time.LoadLocation("Asia/Jakarta")
	require.NoError(t, err)
	return NewAnalyticsService(tq.repo, tq.clock, loc)
}

func TestAnalyticsService_Convoy(t *testing.T) {
	tq := newTestQueue(t)
	for i, amount := range []int64{100_000, 100_000, 100_000, 10_000_000, 100_000} {
		tq.submit(t, fmt.Sprintf("A-%03d", i+1), amount)
	}
	as := newTestAnalytics(t, tq)

	report, err := as.Convoy(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, report.QueueLength)
	assert.Equal(t, 1, report.Clusters)
	require.Len(t, report.Spans, 1)
	assert.Equal(t, 4, report.Spans[0].StartPosition)
}

func TestAnalyticsService_WaitSeries(t *testing.T) {
	tq := newTestQueue(t)
	tq.submit(t, "A-001", 1_000_000)
	tq.submit(t, "A-002", 100_000)
	as := newTestAnalytics(t, tq)

	points, err := as.WaitSeries(context.Background())
	require.NoError(t, err)
	require.Len(t, points, 2)
	assert.Equal(t, 25, points[0].EstimatedWait)
	assert.Equal(t, 45, points[1].EstimatedWait)
}

func TestAnalyticsService_Simulate(t *testing.T) {
	tq := newTestQueue(t)
	tq.submit(t, "A-001", 1_000_000)
	tq.clock.Advance(time.Minute)
	tq.submit(t, "A-002", 10_000_000)
	tq.clock.Advance(time.Minute)
	tq.submit(t, "A-003", 100_000)
	as := newTestAnalytics(t, tq)

	fcfs, err := as.Simulate(context.Background(), "", 0)
	require.NoError(t, err)
	assert.Equal(t, "fcfs", fcfs.Strategy)
	assert.Equal(t, 1.0, fcfs.Scale)
	assert.Equal(t, fcfs.AverageWaiting, fcfs.BaselineAverageWaiting)

	sjf, err := as.Simulate(context.Background(), "SJF", 1)
	require.NoError(t, err)
	assert.Less(t, sjf.AverageWaiting, fcfs.AverageWaiting)

	// the store is not reordered
	assert.Equal(t, []string{"P-20240304-001", "P-20240304-002", "P-20240304-003"}, tq.queuedIDs(t))
}

func TestAnalyticsService_Simulate_Validation(t *testing.T) {
	tq := newTestQueue(t)
	as := newTestAnalytics(t, tq)

	tests := []struct {
		name     string
		strategy string
		scale    float64
		field    string
	}{
		{"unknown strategy", "lifo", 1, "strategy"},
		{"negative scale", "fcfs", -1, "scale"},
		{"scale too large", "fcfs", 101, "scale"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := as.Simulate(context.Background(), tt.strategy, tt.scale)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
		})
	}

	_, err := as.Simulate(context.Background(), "fcfs", 100)
	assert.NoError(t, err)
}

func TestAnalyticsService_Throughput(t *testing.T) {
	tq := newTestQueue(t)
	res := tq.submit(t, "A-001", 1_000_000)
	_, err := tq.svc.AdvanceNext(context.Background(), reviewer)
	require.NoError(t, err)
	tq.clock.Advance(25 * time.Minute)
	_, err = tq.svc.Decide(context.Background(), reviewer, res.JobID, true, "")
	require.NoError(t, err)
	as := newTestAnalytics(t, tq)

	series, err := as.Throughput(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, series, 14)
	assert.Equal(t, "2024-03-04", series[13].Date)
	assert.Equal(t, 1, series[13].ProcessedCount)
	assert.Equal(t, 0, series[0].ProcessedCount)

	series, err = as.Throughput(context.Background(), 1)
	require.NoError(t, err)
	assert.Len(t, series, 1)

	for _, days := range []int{-1, 366} {
		_, err = as.Throughput(context.Background(), days)
		var verr *ValidationError
		assert.ErrorAs(t, err, &verr, "days=%d", days)
	}
}

func TestAnalyticsService_Verification(t *testing.T) {
	tq := newTestQueue(t, func(q *config.QueueConfig) { q.SingleReviewer = false })
	for i := 1; i <= 3; i++ {
		tq.submit(t, fmt.Sprintf("A-%03d", i), 1_000_000)
	}

	first, err := tq.svc.AdvanceNext(context.Background(), reviewer)
	require.NoError(t, err)
	second, err := tq.svc.AdvanceNext(context.Background(), reviewer)
	require.NoError(t, err)
	_, err = tq.svc.AdvanceNext(context.Background(), admin)
	require.NoError(t, err)

	tq.clock.Advance(20 * time.Minute)
	_, err = tq.svc.Decide(context.Background(), reviewer, first.ID, true, "")
	require.NoError(t, err)
	tq.clock.Advance(10 * time.Minute)
	_, err = tq.svc.Decide(context.Background(), reviewer, second.ID, false, "")
	require.NoError(t, err)

	as := newTestAnalytics(t, tq)
	stats, err := as.Verification(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 30, stats.WindowDays)
	assert.Equal(t, 1, stats.Approved)
	assert.Equal(t, 1, stats.Rejected)
	assert.Equal(t, 1, stats.InReview)
	assert.Equal(t, 25.0, stats.AvgProcessMinutes)
	require.Len(t, stats.Reviewers, 1)
	assert.Equal(t, reviewer.ID, stats.Reviewers[0].ReviewerID)
	assert.Equal(t, 2, stats.Reviewers[0].TotalProcessed)
}

func TestQueueMonitor_Refresh(t *testing.T) {
	tq := newTestQueue(t)
	tq.submit(t, "A-001", 1_000_000)
	tq.submit(t, "A-002", 1_000_000)
	tq.submit(t, "A-003", 1_000_000)
	_, err := tq.svc.AdvanceNext(context.Background(), reviewer)
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	monitor := NewQueueMonitor(tq.repo, metrics.NewMetrics(reg))
	require.NoError(t, monitor.Refresh(context.Background()))

	expected := `
# HELP loan_queue_in_review Loans currently under review
# TYPE loan_queue_in_review gauge
loan_queue_in_review 1
# HELP loan_queue_projected_average_wait_minutes Projected FCFS average waiting time of the current queue
# TYPE loan_queue_projected_average_wait_minutes gauge
loan_queue_projected_average_wait_minutes 12.5
# HELP loan_queue_queue_length Loans currently queued
# TYPE loan_queue_queue_length gauge
loan_queue_queue_length 2
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected),
		"loan_queue_queue_length", "loan_queue_in_review", "loan_queue_projected_average_wait_minutes"))
}

func TestQueueMonitor_RunStopsOnCancel(t *testing.T) {
	tq := newTestQueue(t)
	monitor := NewQueueMonitor(tq.repo, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- monitor.Run(ctx, time.Millisecond) }()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("monitor did not stop")
	}
}
