package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"loan-queue/internal/analytics"
	"loan-queue/internal/metrics"
	"loan-queue/internal/models"
	"loan-queue/internal/repository"
)

// QueueMonitor keeps the queue gauges current
type QueueMonitor struct {
	repo    repository.JobStore
	metrics *metrics.Metrics
}

// NewQueueMonitor creates a new queue monitor
func NewQueueMonitor(repo repository.JobStore, m *metrics.Metrics) *QueueMonitor {
	return &QueueMonitor{
		repo:    repo,
		metrics: m,
	}
}

// Run refreshes the gauges every interval until ctx is cancelled
func (m *QueueMonitor) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := m.Refresh(ctx); err != nil {
			log.Error().Err(err).Msg("failed to refresh queue metrics")
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Refresh reads the queue once and sets the gauges
func (m *QueueMonitor) Refresh(ctx context.Context) error {
	queued, err := m.repo.ListJobsByState(ctx, models.StateQueued)
	if err != nil {
		return fmt.Errorf("failed to list queue: %w", err)
	}
	inReview, err := m.repo.CountJobsByState(ctx, models.StateInReview)
	if err != nil {
		return fmt.Errorf("failed to count loans in review: %w", err)
	}

	bursts := make([]int, 0, len(queued))
	for _, j := range queued {
		bursts = append(bursts, j.BurstTime)
	}
	convoy := analytics.Convoy(bursts)
	projection := analytics.Project(queued)

	m.metrics.SetQueueGauges(len(queued), inReview, convoy.Clusters, projection.AverageWaiting)
	log.Debug().
		Int("queued", len(queued)).
		Int("in_review", inReview).
		Int("clusters", convoy.Clusters).
		Float64("avg_wait", projection.AverageWaiting).
		Msg("queue metrics refreshed")
	return nil
}
