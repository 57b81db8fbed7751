package repository

import (
	"context"
	"errors"
	"time"

	"loan-queue/internal/models"
)

var (
	// ErrNotFound is returned when a lookup matches nothing
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when the store could not serialize a write.
	// The operation may be retried.
	ErrConflict = errors.New("write conflict")
)

// JobStore is the set of queries available both on the repository and
// inside a transaction
type JobStore interface {
	CreateJob(ctx context.Context, job *models.Job) error
	GetJobByID(ctx context.Context, id string) (*models.Job, error)
	UpdateJob(ctx context.Context, job *models.Job) error
	// ListJobsByState returns queued jobs by position, others by arrival
	ListJobsByState(ctx context.Context, state models.JobState) ([]*models.Job, error)
	CountJobsByState(ctx context.Context, state models.JobState) (int, error)
	// ShiftQueuePositions adds delta to the position of every queued job with
	// from <= position <= to. A to of zero or less means no upper bound.
	ShiftQueuePositions(ctx context.Context, from, to, delta int) error
	CountJobsWithIDPrefix(ctx context.Context, prefix string) (int, error)
	// CountActiveJobsByMember counts a member's queued and in-review jobs
	CountActiveJobsByMember(ctx context.Context, memberID string) (int, error)
	LatestJobByMember(ctx context.Context, memberID string) (*models.Job, error)
	CountArrivedSince(ctx context.Context, since time.Time) (int, error)
	// ListFinishedSince returns approved and rejected jobs decided at or after since
	ListFinishedSince(ctx context.Context, since time.Time) ([]*models.Job, error)
	// ListProcessed returns jobs that have left the queue, most recent first
	ListProcessed(ctx context.Context, limit int) ([]*models.Job, error)

	AddNote(ctx context.Context, note *models.Note) error
	ListNotes(ctx context.Context, jobID string) ([]*models.Note, error)
	RecordAudit(ctx context.Context, event *models.AuditEvent) error
	ListAuditEvents(ctx context.Context, jobID string) ([]*models.AuditEvent, error)
}

// JobRepository defines the interface for loan queue persistence
type JobRepository interface {
	JobStore

	MemberExists(ctx context.Context, memberID string) (bool, error)
	// MemberIDForUser resolves the member record linked to a login
	MemberIDForUser(ctx context.Context, userID string) (string, error)

	// WithTx runs fn inside a single transaction. fn must only use the store
	// it is given. Returning an error rolls everything back.
	WithTx(ctx context.Context, fn func(ctx context.Context, store JobStore) error) error
	Close() error
}
