package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"loan-queue/internal/analytics"
	"loan-queue/internal/clock"
	"loan-queue/internal/config"
	"loan-queue/internal/events"
	"loan-queue/internal/metrics"
	"loan-queue/internal/models"
	"loan-queue/internal/repository"
)

const (
	defaultProcessedLimit = 50
	maxProcessedLimit     = 200
	defaultSkipNote       = "Skipped for further review"

	// loan numbers are three digits so IDs sort in submission order
	maxLoansPerDay = 999
)

// MemberDirectory resolves members kept by the member-management system
type MemberDirectory interface {
	MemberExists(ctx context.Context, memberID string) (bool, error)
	MemberIDForUser(ctx context.Context, userID string) (string, error)
}

// Options tunes queue behaviour
type Options struct {
	Queue    config.QueueConfig
	Location *time.Location
	// MemberRole is the role whose callers may only see their own loans
	MemberRole string
}

// QueueService owns the loan queue. Every mutation holds mu and runs in a
// single repository transaction, so queued positions stay exactly 1..N.
type QueueService struct {
	mu sync.Mutex

	repo    repository.JobRepository
	members MemberDirectory
	limiter *RateLimiter
	sink    events.Sink
	metrics *metrics.Metrics
	clock   clock.Clock
	opts    Options
}

// NewQueueService creates a new queue service
func NewQueueService(
	repo repository.JobRepository,
	members MemberDirectory,
	limiter *RateLimiter,
	sink events.Sink,
	m *metrics.Metrics,
	clk clock.Clock,
	opts Options,
) *QueueService {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if sink == nil {
		sink = events.Discard{}
	}
	if limiter == nil {
		limiter = NewRateLimiter(clk, 0, 0)
	}
	return &QueueService{
		repo:    repo,
		members: members,
		limiter: limiter,
		sink:    sink,
		metrics: m,
		clock:   clk,
		opts:    opts,
	}
}

// EstimateBurst returns the review time in minutes for a loan amount: the
// base plus one step for every started BurstStepAmount.
func EstimateBurst(amount decimal.Decimal, q config.QueueConfig) int {
	if !amount.IsPositive() || !q.BurstStepAmount.IsPositive() {
		return q.BurstBaseMinutes
	}
	steps := amount.Div(q.BurstStepAmount).Ceil()
	if q.BurstStepMinutes > 0 {
		limit := decimal.NewFromInt(int64((math.MaxInt32 - q.BurstBaseMinutes) / q.BurstStepMinutes))
		if steps.GreaterThan(limit) {
			steps = limit
		}
	}
	return int(steps.IntPart())*q.BurstStepMinutes + q.BurstBaseMinutes
}

// Submit validates a loan application and appends it to the queue
func (s *QueueService) Submit(ctx context.Context, actor models.Actor, req models.SubmitRequest) (*models.SubmitResult, error) {
	purpose := strings.TrimSpace(req.Purpose)
	if !req.Amount.IsPositive() {
		return nil, invalid("amount", "must be greater than zero")
	}
	if ceiling := s.opts.Queue.MaxAmount; ceiling.IsPositive() && req.Amount.GreaterThan(ceiling) {
		return nil, invalid("amount", "must not exceed "+ceiling.String())
	}
	if req.TenorMonths < 1 || req.TenorMonths > s.opts.Queue.MaxTenorMonths {
		return nil, invalid("tenor_months", fmt.Sprintf("must be between 1 and %d", s.opts.Queue.MaxTenorMonths))
	}
	if purpose == "" {
		return nil, invalid("purpose", "is required")
	}

	memberID, err := s.resolveMember(ctx, actor, req.MemberID)
	if err != nil {
		return nil, err
	}

	burst := EstimateBurst(req.Amount, s.opts.Queue)
	var result models.SubmitResult

	err = s.mutate(ctx, actor, func(ctx context.Context, tx *txn) error {
		if err := s.limiter.CheckSubmissionRate(ctx, memberID); err != nil {
			log.Warn().Str("member_id", memberID).Str("actor", actor.ID).Msg("submission rate limit reached")
			return err
		}

		active, err := tx.CountActiveJobsByMember(ctx, memberID)
		if err != nil {
			return err
		}
		if err := s.limiter.CheckActiveLimit(ctx, memberID, active); err != nil {
			return err
		}

		queued, err := tx.ListJobsByState(ctx, models.StateQueued)
		if err != nil {
			return err
		}

		id, err := s.nextJobID(ctx, tx)
		if err != nil {
			return err
		}

		position := len(queued) + 1
		job := &models.Job{
			ID:           id,
			MemberID:     memberID,
			Amount:       req.Amount,
			TenorMonths:  req.TenorMonths,
			InterestRate: s.opts.Queue.InterestRate,
			Purpose:      purpose,
			State:        models.StateQueued,
			Position:     &position,
			BurstTime:    burst,
			ArrivalTime:  tx.now,
			CreatedAt:    tx.now,
			UpdatedAt:    tx.now,
		}
		if err := tx.CreateJob(ctx, job); err != nil {
			return err
		}
		if err := tx.audit(ctx, models.ActionSubmit, job,
			fmt.Sprintf("Loan %s for %s submitted at position %d", id, req.Amount.String(), position)); err != nil {
			return err
		}

		tx.afterCommit(func() { s.limiter.RecordSubmission(memberID) })

		wait := burst
		for _, q := range queued {
			wait += q.BurstTime
		}
		result = models.SubmitResult{JobID: id, Position: position, BurstTime: burst, EstimatedWait: wait}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.IncSubmitted()
	log.Info().
		Str("job_id", result.JobID).
		Str("member_id", memberID).
		Int("position", result.Position).
		Int("burst_time", result.BurstTime).
		Msg("loan submitted")

	return &result, nil
}

// GetQueue returns queued loans in position order with their projected
// FCFS schedule and queue statistics
func (s *QueueService) GetQueue(ctx context.Context) (*models.QueueView, error) {
	queued, err := s.repo.ListJobsByState(ctx, models.StateQueued)
	if err != nil {
		return nil, fmt.Errorf("failed to list queue: %w", err)
	}
	inReview, err := s.repo.CountJobsByState(ctx, models.StateInReview)
	if err != nil {
		return nil, fmt.Errorf("failed to count loans in review: %w", err)
	}

	today := analytics.StartOfDay(s.clock.Now(), s.opts.Location)
	arrived, err := s.repo.CountArrivedSince(ctx, today)
	if err != nil {
		return nil, fmt.Errorf("failed to count arrivals: %w", err)
	}
	finished, err := s.repo.ListFinishedSince(ctx, today)
	if err != nil {
		return nil, fmt.Errorf("failed to list decisions: %w", err)
	}

	projection := analytics.Project(queued)
	logClamped(projection.Clamped)

	view := &models.QueueView{Jobs: make([]models.QueuedJob, 0, len(queued))}
	cumulative, maxBurst := 0, 0
	for i, job := range queued {
		e := projection.Entries[i]
		cumulative += job.BurstTime
		maxBurst = max(maxBurst, job.BurstTime)
		view.Jobs = append(view.Jobs, models.QueuedJob{
			Job:                 job,
			ProjectedStart:      analytics.Round(e.Start, 2),
			ProjectedFinish:     analytics.Round(e.Finish, 2),
			ProjectedWaiting:    analytics.Round(e.Waiting, 2),
			ProjectedTurnaround: analytics.Round(e.Turnaround, 2),
			EstimatedWait:       cumulative,
		})
	}

	view.Stats = models.QueueStats{
		TotalQueued:       len(queued),
		InReview:          inReview,
		MaxBurstTime:      maxBurst,
		ArrivedToday:      arrived,
		ProcessedToday:    len(finished),
		AverageWaiting:    analytics.Round(projection.AverageWaiting, 2),
		AverageTurnaround: analytics.Round(projection.AverageTurnaround, 2),
	}
	if len(queued) > 0 {
		view.Stats.AvgBurstTime = analytics.Round(float64(cumulative)/float64(len(queued)), 2)
	}
	return view, nil
}

// GetJob returns a loan with its notes. Members may only read their own.
func (s *QueueService) GetJob(ctx context.Context, actor models.Actor, id string) (*models.JobDetail, error) {
	job, err := s.repo.GetJobByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to get loan: %w", err)
	}

	if err := s.authorizeMember(ctx, actor, job.MemberID); err != nil {
		return nil, err
	}

	notes, err := s.repo.ListNotes(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list notes: %w", err)
	}
	activity, err := s.repo.ListAuditEvents(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list activity: %w", err)
	}
	return &models.JobDetail{Job: job, Notes: notes, Activity: activity}, nil
}

// PeekNext returns the head of the queue, or nil when it is empty
func (s *QueueService) PeekNext(ctx context.Context) (*models.Job, error) {
	queued, err := s.repo.ListJobsByState(ctx, models.StateQueued)
	if err != nil {
		return nil, fmt.Errorf("failed to list queue: %w", err)
	}
	if len(queued) == 0 {
		return nil, nil
	}
	return queued[0], nil
}

// AdvanceNext takes the head of the queue into review by actor
func (s *QueueService) AdvanceNext(ctx context.Context, actor models.Actor) (*models.Job, error) {
	var job *models.Job

	err := s.mutate(ctx, actor, func(ctx context.Context, tx *txn) error {
		if err := s.checkReviewSlot(ctx, tx); err != nil {
			return err
		}

		queued, err := tx.ListJobsByState(ctx, models.StateQueued)
		if err != nil {
			return err
		}
		if len(queued) == 0 {
			return ErrEmptyQueue
		}

		job = queued[0]
		if err := tx.startReview(ctx, job); err != nil {
			return err
		}
		return tx.audit(ctx, models.ActionProcess, job, fmt.Sprintf("Loan %s taken for review", job.ID))
	})
	if err != nil {
		return nil, err
	}

	s.metrics.ObserveDequeueWait(float64(*job.WaitingTime))
	log.Info().
		Str("job_id", job.ID).
		Str("actor", actor.ID).
		Str("role", actor.Role).
		Int("waiting_time", *job.WaitingTime).
		Msg("loan taken for review")

	return job, nil
}

// Decide approves or rejects a loan under review
func (s *QueueService) Decide(ctx context.Context, actor models.Actor, id string, approved bool, notes string) (*models.Job, error) {
	var job *models.Job

	err := s.mutate(ctx, actor, func(ctx context.Context, tx *txn) error {
		j, err := tx.job(ctx, id)
		if err != nil {
			return err
		}
		if j.State != models.StateInReview {
			return fmt.Errorf("%w: loan %s is %s, not in review", ErrInvalidState, id, j.State)
		}

		action, state := models.ActionReject, models.StateRejected
		if approved {
			action, state = models.ActionApprove, models.StateApproved
		}

		finish := tx.now
		j.State = state
		j.FinishProcessTime = &finish
		j.UpdatedAt = tx.now
		if j.ReviewerID == "" {
			j.ReviewerID = tx.actor.ID
		}
		if err := tx.UpdateJob(ctx, j); err != nil {
			return err
		}

		if body := strings.TrimSpace(notes); body != "" {
			if err := tx.note(ctx, id, models.NoteDecision, body); err != nil {
				return err
			}
		}

		job = j
		return tx.audit(ctx, action, j, fmt.Sprintf("Loan %s %s", id, state))
	})
	if err != nil {
		return nil, err
	}

	s.metrics.IncDecided(string(job.State))
	log.Info().
		Str("job_id", job.ID).
		Str("actor", actor.ID).
		Str("role", actor.Role).
		Str("decision", string(job.State)).
		Msg("loan decided")

	return job, nil
}

// Skip sends a loan back to the tail of the queue. A loan under review
// leaves review; a queued loan moves behind everyone else.
func (s *QueueService) Skip(ctx context.Context, actor models.Actor, id string, notes string) (*models.Job, error) {
	body := strings.TrimSpace(notes)
	if body == "" {
		body = defaultSkipNote
	}

	var job *models.Job
	err := s.mutate(ctx, actor, func(ctx context.Context, tx *txn) error {
		j, err := tx.job(ctx, id)
		if err != nil {
			return err
		}
		if j.State.Terminal() {
			return fmt.Errorf("%w: loan %s is already %s", ErrInvalidState, id, j.State)
		}

		n, err := tx.CountJobsByState(ctx, models.StateQueued)
		if err != nil {
			return err
		}

		switch j.State {
		case models.StateInReview:
			tail := n + 1
			j.State = models.StateQueued
			j.Position = &tail
			j.StartProcessTime = nil
			j.WaitingTime = nil
			j.ReviewerID = ""
		case models.StateQueued:
			old := *j.Position
			if old != n {
				if err := tx.ShiftQueuePositions(ctx, old+1, 0, -1); err != nil {
					return err
				}
				tail := n
				j.Position = &tail
			}
		default:
			return fmt.Errorf("%w: loan %s is %s", ErrInvalidState, id, j.State)
		}

		j.UpdatedAt = tx.now
		if err := tx.UpdateJob(ctx, j); err != nil {
			return err
		}
		if err := tx.note(ctx, id, models.NoteSkip, body); err != nil {
			return err
		}

		job = j
		return tx.audit(ctx, models.ActionSkip, j, fmt.Sprintf("Loan %s moved to position %d: %s", id, *j.Position, body))
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("job_id", job.ID).
		Str("actor", actor.ID).
		Str("role", actor.Role).
		Int("position", *job.Position).
		Msg("loan skipped")

	return job, nil
}

// Prioritize moves a queued loan to the front. This breaks FCFS order on
// purpose and is always audited.
func (s *QueueService) Prioritize(ctx context.Context, actor models.Actor, id, reason, approvedBy string) (int, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return 0, invalid("reason", "is required")
	}
	approver := strings.TrimSpace(approvedBy)
	if approver == "" {
		approver = actor.ID
	}

	var from int
	err := s.mutate(ctx, actor, func(ctx context.Context, tx *txn) error {
		j, err := tx.queuedJob(ctx, id)
		if err != nil {
			return err
		}

		from = *j.Position
		if from > 1 {
			if err := tx.ShiftQueuePositions(ctx, 1, from-1, 1); err != nil {
				return err
			}
			front := 1
			j.Position = &front
			j.UpdatedAt = tx.now
			if err := tx.UpdateJob(ctx, j); err != nil {
				return err
			}
		}

		if err := tx.note(ctx, id, models.NotePriority,
			fmt.Sprintf("[PRIORITY] %s (approved by %s)", reason, approver)); err != nil {
			return err
		}
		return tx.audit(ctx, models.ActionOverridePriority, j,
			fmt.Sprintf("Loan %s moved from position %d to 1, approved by %s: %s", id, from, approver, reason))
	})
	if err != nil {
		return 0, err
	}

	s.metrics.IncOverride("priority")
	log.Warn().
		Str("job_id", id).
		Str("actor", actor.ID).
		Str("role", actor.Role).
		Str("approved_by", approver).
		Int("from_position", from).
		Str("reason", reason).
		Msg("priority override applied")

	return 1, nil
}

// EmergencyBypass takes a queued loan straight into review regardless of
// its position
func (s *QueueService) EmergencyBypass(ctx context.Context, actor models.Actor, id, reason, approvedBy string) (*models.Job, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, invalid("reason", "is required")
	}
	approver := strings.TrimSpace(approvedBy)
	if approver == "" {
		approver = actor.ID
	}

	var job *models.Job
	var from int
	err := s.mutate(ctx, actor, func(ctx context.Context, tx *txn) error {
		j, err := tx.queuedJob(ctx, id)
		if err != nil {
			return err
		}

		if err := s.checkReviewSlot(ctx, tx); err != nil {
			return err
		}

		from = *j.Position
		if err := tx.startReview(ctx, j); err != nil {
			return err
		}
		if err := tx.note(ctx, id, models.NoteEmergency,
			fmt.Sprintf("[EMERGENCY] %s (approved by %s)", reason, approver)); err != nil {
			return err
		}

		job = j
		return tx.audit(ctx, models.ActionOverrideEmergency, j,
			fmt.Sprintf("Loan %s taken for review from position %d, approved by %s: %s", id, from, approver, reason))
	})
	if err != nil {
		return nil, err
	}

	s.metrics.IncOverride("emergency")
	s.metrics.ObserveDequeueWait(float64(*job.WaitingTime))
	log.Warn().
		Str("job_id", id).
		Str("actor", actor.ID).
		Str("role", actor.Role).
		Str("approved_by", approver).
		Int("from_position", from).
		Str("reason", reason).
		Msg("emergency bypass applied")

	return job, nil
}

// GetMemberStatus returns a member's latest application and its place in
// the queue
func (s *QueueService) GetMemberStatus(ctx context.Context, actor models.Actor, memberID string) (*models.MemberStatus, error) {
	if err := s.authorizeMember(ctx, actor, memberID); err != nil {
		return nil, err
	}

	job, err := s.repo.LatestJobByMember(ctx, memberID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to get latest loan: %w", err)
	}

	queued, err := s.repo.ListJobsByState(ctx, models.StateQueued)
	if err != nil {
		return nil, fmt.Errorf("failed to list queue: %w", err)
	}
	finished, err := s.repo.ListFinishedSince(ctx, analytics.StartOfDay(s.clock.Now(), s.opts.Location))
	if err != nil {
		return nil, fmt.Errorf("failed to list decisions: %w", err)
	}

	status := &models.MemberStatus{
		Job:            job,
		QueueLength:    len(queued),
		ProcessedToday: len(finished),
	}
	if job.State == models.StateQueued && job.Position != nil {
		for _, q := range queued {
			if q.Position != nil && *q.Position <= *job.Position {
				status.EstimatedWait += q.BurstTime
			}
		}
	}
	return status, nil
}

// ListProcessed returns loans that have left the queue, most recent first
func (s *QueueService) ListProcessed(ctx context.Context, limit int) ([]*models.Job, error) {
	if limit <= 0 {
		limit = defaultProcessedLimit
	}
	limit = min(limit, maxProcessedLimit)

	jobs, err := s.repo.ListProcessed(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list processed loans: %w", err)
	}
	return jobs, nil
}

// mutate runs fn in a transaction under the queue lock, retrying write
// conflicts, then hands the recorded activity to the sink
func (s *QueueService) mutate(ctx context.Context, actor models.Actor, fn func(ctx context.Context, tx *txn) error) error {
	recorded, err := s.commit(ctx, actor, fn)
	if err != nil {
		return err
	}

	for _, event := range recorded {
		if err := s.sink.Publish(ctx, event); err != nil {
			log.Warn().
				Err(err).
				Str("job_id", event.JobID).
				Str("action", string(event.Action)).
				Msg("failed to deliver activity event")
		}
	}
	return nil
}

func (s *QueueService) commit(ctx context.Context, actor models.Actor, fn func(ctx context.Context, tx *txn) error) ([]models.AuditEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for attempt := 0; ; attempt++ {
		tx := &txn{now: s.clock.Now(), actor: actor}
		err := s.repo.WithTx(ctx, func(ctx context.Context, store repository.JobStore) error {
			tx.JobStore = store
			return fn(ctx, tx)
		})
		if err == nil {
			for _, fn := range tx.committed {
				fn()
			}
			return tx.events, nil
		}
		if !errors.Is(err, repository.ErrConflict) {
			return nil, err
		}

		if attempt >= s.opts.Queue.MaxRetries {
			log.Error().Err(err).Int("attempts", attempt+1).Str("actor", actor.ID).Msg("giving up on conflicting queue mutation")
			return nil, fmt.Errorf("%w: %v", ErrConcurrencyConflict, err)
		}

		s.metrics.IncConflictRetry()
		log.Warn().Err(err).Int("attempt", attempt+1).Str("actor", actor.ID).Msg("write conflict, retrying")

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(s.opts.Queue.RetryBackoff * time.Duration(attempt+1)):
		}
	}
}

func (s *QueueService) nextJobID(ctx context.Context, tx *txn) (string, error) {
	prefix := "P-" + tx.now.In(s.opts.Location).Format("20060102") + "-"
	n, err := tx.CountJobsWithIDPrefix(ctx, prefix)
	if err != nil {
		return "", err
	}
	if n >= maxLoansPerDay {
		return "", ErrDailyLimitReached
	}
	return fmt.Sprintf("%s%03d", prefix, n+1), nil
}

// checkReviewSlot refuses to start another review while one is open in
// single-reviewer mode
func (s *QueueService) checkReviewSlot(ctx context.Context, tx *txn) error {
	if !s.opts.Queue.SingleReviewer {
		return nil
	}
	n, err := tx.CountJobsByState(ctx, models.StateInReview)
	if err != nil {
		return err
	}
	if n > 0 {
		return ErrReviewInProgress
	}
	return nil
}

func (s *QueueService) isMember(actor models.Actor) bool {
	return s.opts.MemberRole != "" && actor.Role == s.opts.MemberRole
}

// resolveMember decides which member a submission is for. Members always
// submit for themselves; staff must name the member.
func (s *QueueService) resolveMember(ctx context.Context, actor models.Actor, requested string) (string, error) {
	memberID := strings.TrimSpace(requested)

	if s.isMember(actor) {
		own, err := s.members.MemberIDForUser(ctx, actor.ID)
		if errors.Is(err, repository.ErrNotFound) {
			return "", invalid("member_id", "no member record is linked to this user")
		}
		if err != nil {
			return "", fmt.Errorf("failed to resolve member: %w", err)
		}
		if memberID != "" && memberID != own {
			return "", ErrForbidden
		}
		memberID = own
	}

	if memberID == "" {
		return "", invalid("member_id", "is required")
	}

	ok, err := s.members.MemberExists(ctx, memberID)
	if err != nil {
		return "", fmt.Errorf("failed to look up member: %w", err)
	}
	if !ok {
		return "", invalid("member_id", "unknown or inactive member")
	}
	return memberID, nil
}

// authorizeMember lets staff through and restricts members to memberID
func (s *QueueService) authorizeMember(ctx context.Context, actor models.Actor, memberID string) error {
	if !s.isMember(actor) {
		return nil
	}
	own, err := s.members.MemberIDForUser(ctx, actor.ID)
	if errors.Is(err, repository.ErrNotFound) {
		return ErrForbidden
	}
	if err != nil {
		return fmt.Errorf("failed to resolve member: %w", err)
	}
	if own != memberID {
		return ErrForbidden
	}
	return nil
}

func logClamped(ids []string) {
	for _, id := range ids {
		log.Warn().Str("job_id", id).Msg("negative burst time treated as zero")
	}
}

// txn is one attempt at a queue mutation
type txn struct {
	repository.JobStore
	now       time.Time
	actor     models.Actor
	events    []models.AuditEvent
	committed []func()
}

// afterCommit runs fn once the transaction has committed, still under the
// queue lock
func (t *txn) afterCommit(fn func()) {
	t.committed = append(t.committed, fn)
}

func (t *txn) job(ctx context.Context, id string) (*models.Job, error) {
	j, err := t.GetJobByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrJobNotFound
	}
	return j, err
}

func (t *txn) queuedJob(ctx context.Context, id string) (*models.Job, error) {
	j, err := t.job(ctx, id)
	if err != nil {
		return nil, err
	}
	if j.State != models.StateQueued || j.Position == nil {
		return nil, ErrNotQueued
	}
	return j, nil
}

// startReview moves a queued job into review and closes the gap it leaves
func (t *txn) startReview(ctx context.Context, job *models.Job) error {
	pos := *job.Position
	start := t.now
	waiting := int(max(0, start.Sub(job.ArrivalTime).Minutes()))

	job.State = models.StateInReview
	job.Position = nil
	job.StartProcessTime = &start
	job.WaitingTime = &waiting
	job.ReviewerID = t.actor.ID
	job.UpdatedAt = t.now

	if err := t.UpdateJob(ctx, job); err != nil {
		return err
	}
	return t.ShiftQueuePositions(ctx, pos+1, 0, -1)
}

func (t *txn) note(ctx context.Context, jobID string, kind models.NoteKind, body string) error {
	return t.AddNote(ctx, &models.Note{
		ID:        uuid.NewString(),
		JobID:     jobID,
		Kind:      kind,
		Author:    t.actor.ID,
		Body:      body,
		CreatedAt: t.now,
	})
}

func (t *txn) audit(ctx context.Context, action models.EventAction, job *models.Job, description string) error {
	event := models.AuditEvent{
		ID:          uuid.NewString(),
		ActorID:     t.actor.ID,
		ActorRole:   t.actor.Role,
		Action:      action,
		JobID:       job.ID,
		MemberID:    job.MemberID,
		Description: description,
		OccurredAt:  t.now,
	}
	if err := t.RecordAudit(ctx, &event); err != nil {
		return err
	}
	t.events = append(t.events, event)
	return nil
}
