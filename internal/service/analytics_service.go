package service

import (
	"context"
	"fmt"
	"time"

	"loan-queue/internal/analytics"
	"loan-queue/internal/clock"
	"loan-queue/internal/models"
	"loan-queue/internal/repository"
	"loan-queue/internal/schedule"
)

const (
	defaultThroughputDays   = 14
	defaultVerificationDays = 30
	maxWindowDays           = 365
	maxSimulationScale      = 100
)

// AnalyticsService answers read-only questions about the queue. It never
// writes to the store.
type AnalyticsService struct {
	repo  repository.JobStore
	clock clock.Clock
	loc   *time.Location
}

// NewAnalyticsService creates a new analytics service
func NewAnalyticsService(repo repository.JobStore, clk clock.Clock, loc *time.Location) *AnalyticsService {
	if loc == nil {
		loc = time.UTC
	}
	return &AnalyticsService{repo: repo, clock: clk, loc: loc}
}

// Convoy reports clusters of long loans in the current queue
func (s *AnalyticsService) Convoy(ctx context.Context) (models.ConvoyReport, error) {
	queued, err := s.queued(ctx)
	if err != nil {
		return models.ConvoyReport{}, err
	}
	bursts := make([]int, 0, len(queued))
	for _, j := range queued {
		bursts = append(bursts, j.BurstTime)
	}
	return analytics.Convoy(bursts), nil
}

// WaitSeries returns the estimated wait at each queue position
func (s *AnalyticsService) WaitSeries(ctx context.Context) ([]models.WaitPoint, error) {
	queued, err := s.queued(ctx)
	if err != nil {
		return nil, err
	}
	return analytics.WaitSeries(queued), nil
}

// Throughput counts decisions per day over the trailing days. Zero means
// the default window.
func (s *AnalyticsService) Throughput(ctx context.Context, days int) ([]models.DailyThroughput, error) {
	days, err := windowDays(days, defaultThroughputDays)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	since := analytics.StartOfDay(now, s.loc).AddDate(0, 0, -(days - 1))
	finished, err := s.repo.ListFinishedSince(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("failed to list decisions: %w", err)
	}

	times := make([]time.Time, 0, len(finished))
	for _, j := range finished {
		if j.FinishProcessTime != nil {
			times = append(times, *j.FinishProcessTime)
		}
	}
	return analytics.Throughput(times, now, days, s.loc), nil
}

// Simulate replays the current queue under another strategy or with scaled
// review times. The store is untouched.
func (s *AnalyticsService) Simulate(ctx context.Context, strategy string, scale float64) (models.SimulationResult, error) {
	st, err := schedule.ParseStrategy(strategy)
	if err != nil {
		return models.SimulationResult{}, invalid("strategy", "must be fcfs or sjf")
	}
	if scale == 0 {
		scale = 1
	}
	if scale < 0 || scale > maxSimulationScale {
		return models.SimulationResult{}, invalid("scale", fmt.Sprintf("must be greater than 0 and at most %d", maxSimulationScale))
	}

	queued, err := s.queued(ctx)
	if err != nil {
		return models.SimulationResult{}, err
	}
	return analytics.Simulate(queued, st, scale), nil
}

// Verification summarizes review work over the trailing days. Zero means the
// default window.
func (s *AnalyticsService) Verification(ctx context.Context, days int) (models.VerificationStats, error) {
	days, err := windowDays(days, defaultVerificationDays)
	if err != nil {
		return models.VerificationStats{}, err
	}

	now := s.clock.Now()
	since := analytics.StartOfDay(now, s.loc).AddDate(0, 0, -(days - 1))
	decided, err := s.repo.ListFinishedSince(ctx, since)
	if err != nil {
		return models.VerificationStats{}, fmt.Errorf("failed to list decisions: %w", err)
	}
	inReview, err := s.repo.CountJobsByState(ctx, models.StateInReview)
	if err != nil {
		return models.VerificationStats{}, fmt.Errorf("failed to count loans in review: %w", err)
	}
	return analytics.Verification(decided, inReview, now, days, s.loc), nil
}

func (s *AnalyticsService) queued(ctx context.Context) ([]*models.Job, error) {
	queued, err := s.repo.ListJobsByState(ctx, models.StateQueued)
	if err != nil {
		return nil, fmt.Errorf("failed to list queue: %w", err)
	}
	return queued, nil
}

func windowDays(days, fallback int) (int, error) {
	if days == 0 {
		return fallback, nil
	}
	if days < 1 || days > maxWindowDays {
		return 0, invalid("days", fmt.Sprintf("must be between 1 and %d", maxWindowDays))
	}
	return days, nil
}
