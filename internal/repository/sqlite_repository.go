package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"

	"loan-queue/internal/models"
)

// querier is satisfied by both *sql.DB and *sql.Tx
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type rowScanner interface {
	Scan(dest ...any) error
}

var _ JobRepository = (*SQLiteRepository)(nil)

// SQLiteRepository implements JobRepository using SQLite
type SQLiteRepository struct {
	*sqliteStore
	db *sql.DB
}

// sqliteStore runs JobStore queries against either the database or a tx
type sqliteStore struct {
	q querier
}

// NewSQLiteRepository creates a new SQLite repository. Transactions take
// the write lock when they begin, so a read-modify-write inside WithTx
// cannot interleave with another writer.
func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_timeout=5000&_txlock=immediate&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// one connection keeps :memory: databases alive and serializes writers
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	repo := &SQLiteRepository{sqliteStore: &sqliteStore{q: db}, db: db}
	if err := repo.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return repo, nil
}

// Close closes the database connection
func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}

func (r *SQLiteRepository) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS members (
		id TEXT PRIMARY KEY,
		user_id TEXT UNIQUE,
		name TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'active',
		created_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS loan_jobs (
		id TEXT PRIMARY KEY,
		member_id TEXT NOT NULL,
		amount TEXT NOT NULL,
		tenor_months INTEGER NOT NULL,
		interest_rate TEXT NOT NULL,
		purpose TEXT NOT NULL,
		state TEXT NOT NULL DEFAULT 'queued',
		position INTEGER,
		burst_time INTEGER NOT NULL,
		waiting_time INTEGER,
		reviewer_id TEXT NOT NULL DEFAULT '',
		arrival_time INTEGER NOT NULL,
		start_process_time INTEGER,
		finish_process_time INTEGER,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_loan_jobs_state_position ON loan_jobs(state, position);
	CREATE INDEX IF NOT EXISTS idx_loan_jobs_member_id ON loan_jobs(member_id);
	CREATE INDEX IF NOT EXISTS idx_loan_jobs_finish ON loan_jobs(finish_process_time);

	CREATE TABLE IF NOT EXISTS loan_notes (
		id TEXT PRIMARY KEY,
		job_id TEXT NOT NULL REFERENCES loan_jobs(id),
		kind TEXT NOT NULL,
		author TEXT NOT NULL,
		body TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_loan_notes_job_id ON loan_notes(job_id);

	CREATE TABLE IF NOT EXISTS activity_logs (
		id TEXT PRIMARY KEY,
		actor_id TEXT NOT NULL,
		actor_role TEXT NOT NULL,
		action TEXT NOT NULL,
		job_id TEXT NOT NULL,
		member_id TEXT NOT NULL,
		description TEXT NOT NULL,
		occurred_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_activity_logs_job_id ON activity_logs(job_id);
	`

	_, err := r.db.Exec(schema)
	return err
}

// WithTx runs fn inside one immediate transaction
func (r *SQLiteRepository) WithTx(ctx context.Context, fn func(ctx context.Context, store JobStore) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", mapSQLiteError(err))
	}
	defer tx.Rollback()

	if err := fn(ctx, &sqliteStore{q: tx}); err != nil {
		return mapSQLiteError(err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", mapSQLiteError(err))
	}
	return nil
}

// UpsertMember creates or updates a member record. Members are owned by
// the member-management system; this exists for seeding and tests.
func (r *SQLiteRepository) UpsertMember(ctx context.Context, memberID, userID, name, status string) error {
	query := `
		INSERT INTO members (id, user_id, name, status, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET user_id = excluded.user_id, name = excluded.name, status = excluded.status
	`

	var uid any
	if userID != "" {
		uid = userID
	}
	_, err := r.db.ExecContext(ctx, query, memberID, uid, name, status, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to upsert member: %w", err)
	}
	return nil
}

// MemberExists reports whether an active member with the given ID exists
func (r *SQLiteRepository) MemberExists(ctx context.Context, memberID string) (bool, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM members WHERE id = ? AND status = 'active'", memberID).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to look up member: %w", err)
	}
	return count > 0, nil
}

// MemberIDForUser returns the member linked to a login
func (r *SQLiteRepository) MemberIDForUser(ctx context.Context, userID string) (string, error) {
	var memberID string
	err := r.db.QueryRowContext(ctx, "SELECT id FROM members WHERE user_id = ?", userID).Scan(&memberID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("failed to look up member for user: %w", err)
	}
	return memberID, nil
}

// mapSQLiteError turns lock contention into ErrConflict
func mapSQLiteError(err error) error {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && (sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked) {
		return fmt.Errorf("%w: %v", ErrConflict, err)
	}
	return err
}

const jobColumns = `id, member_id, amount, tenor_months, interest_rate, purpose, state, position,
	burst_time, waiting_time, reviewer_id, arrival_time, start_process_time, finish_process_time,
	created_at, updated_at`

// CreateJob inserts a new job
func (s *sqliteStore) CreateJob(ctx context.Context, job *models.Job) error {
	query := `INSERT INTO loan_jobs (` + jobColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := s.q.ExecContext(ctx, query,
		job.ID,
		job.MemberID,
		job.Amount,
		job.TenorMonths,
		job.InterestRate,
		job.Purpose,
		job.State,
		nullInt(job.Position),
		job.BurstTime,
		nullInt(job.WaitingTime),
		job.ReviewerID,
		job.ArrivalTime.UnixMilli(),
		nullMillis(job.StartProcessTime),
		nullMillis(job.FinishProcessTime),
		job.CreatedAt.UnixMilli(),
		job.UpdatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}
	return nil
}

// GetJobByID retrieves a job by ID
func (s *sqliteStore) GetJobByID(ctx context.Context, id string) (*models.Job, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM loan_jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return job, nil
}

// UpdateJob writes every mutable column of job
func (s *sqliteStore) UpdateJob(ctx context.Context, job *models.Job) error {
	query := `
		UPDATE loan_jobs
		SET state = ?, position = ?, waiting_time = ?, reviewer_id = ?,
		    start_process_time = ?, finish_process_time = ?, updated_at = ?
		WHERE id = ?
	`

	res, err := s.q.ExecContext(ctx, query,
		job.State,
		nullInt(job.Position),
		nullInt(job.WaitingTime),
		job.ReviewerID,
		nullMillis(job.StartProcessTime),
		nullMillis(job.FinishProcessTime),
		job.UpdatedAt.UnixMilli(),
		job.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update job: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListJobsByState retrieves all jobs in a state
func (s *sqliteStore) ListJobsByState(ctx context.Context, state models.JobState) ([]*models.Job, error) {
	order := "arrival_time ASC, id ASC"
	if state == models.StateQueued {
		order = "position ASC, arrival_time ASC, id ASC"
	}
	return s.queryJobs(ctx, `SELECT `+jobColumns+` FROM loan_jobs WHERE state = ? ORDER BY `+order, state)
}

// CountJobsByState counts jobs in a state
func (s *sqliteStore) CountJobsByState(ctx context.Context, state models.JobState) (int, error) {
	return s.count(ctx, "SELECT COUNT(*) FROM loan_jobs WHERE state = ?", state)
}

// ShiftQueuePositions moves a range of queued positions by delta
func (s *sqliteStore) ShiftQueuePositions(ctx context.Context, from, to, delta int) error {
	query := `
		UPDATE loan_jobs
		SET position = position + ?
		WHERE state = 'queued' AND position >= ? AND (? <= 0 OR position <= ?)
	`

	if _, err := s.q.ExecContext(ctx, query, delta, from, to, to); err != nil {
		return fmt.Errorf("failed to shift queue positions: %w", err)
	}
	return nil
}

// CountJobsWithIDPrefix counts jobs whose ID starts with prefix
func (s *sqliteStore) CountJobsWithIDPrefix(ctx context.Context, prefix string) (int, error) {
	return s.count(ctx, "SELECT COUNT(*) FROM loan_jobs WHERE substr(id, 1, ?) = ?", len(prefix), prefix)
}

// CountActiveJobsByMember counts a member's jobs that are queued or in review
func (s *sqliteStore) CountActiveJobsByMember(ctx context.Context, memberID string) (int, error) {
	return s.count(ctx,
		"SELECT COUNT(*) FROM loan_jobs WHERE member_id = ? AND state IN ('queued', 'in_review')", memberID)
}

// LatestJobByMember returns the member's most recent application
func (s *sqliteStore) LatestJobByMember(ctx context.Context, memberID string) (*models.Job, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT `+jobColumns+` FROM loan_jobs WHERE member_id = ? ORDER BY arrival_time DESC, id DESC LIMIT 1`, memberID)
	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get latest job: %w", err)
	}
	return job, nil
}

// CountArrivedSince counts jobs submitted at or after since
func (s *sqliteStore) CountArrivedSince(ctx context.Context, since time.Time) (int, error) {
	return s.count(ctx, "SELECT COUNT(*) FROM loan_jobs WHERE arrival_time >= ?", since.UnixMilli())
}

// ListFinishedSince retrieves decided jobs, oldest decision first
func (s *sqliteStore) ListFinishedSince(ctx context.Context, since time.Time) ([]*models.Job, error) {
	return s.queryJobs(ctx, `
		SELECT `+jobColumns+` FROM loan_jobs
		WHERE state IN ('approved', 'rejected') AND finish_process_time >= ?
		ORDER BY finish_process_time ASC, id ASC`, since.UnixMilli())
}

// ListProcessed retrieves jobs that have left the queue
func (s *sqliteStore) ListProcessed(ctx context.Context, limit int) ([]*models.Job, error) {
	return s.queryJobs(ctx, `
		SELECT `+jobColumns+` FROM loan_jobs
		WHERE state IN ('in_review', 'approved', 'rejected')
		ORDER BY COALESCE(finish_process_time, start_process_time, updated_at) DESC, id DESC
		LIMIT ?`, limit)
}

// AddNote appends a note to a job
func (s *sqliteStore) AddNote(ctx context.Context, note *models.Note) error {
	query := `
		INSERT INTO loan_notes (id, job_id, kind, author, body, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err := s.q.ExecContext(ctx, query,
		note.ID, note.JobID, note.Kind, note.Author, note.Body, note.CreatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to add note: %w", err)
	}
	return nil
}

// ListNotes retrieves a job's notes in the order they were written
func (s *sqliteStore) ListNotes(ctx context.Context, jobID string) ([]*models.Note, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT id, job_id, kind, author, body, created_at
		FROM loan_notes
		WHERE job_id = ?
		ORDER BY created_at ASC, rowid ASC`, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to query notes: %w", err)
	}
	defer rows.Close()

	notes := []*models.Note{}
	for rows.Next() {
		var note models.Note
		var createdAt int64
		if err := rows.Scan(&note.ID, &note.JobID, &note.Kind, &note.Author, &note.Body, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan note: %w", err)
		}
		note.CreatedAt = fromMillis(createdAt)
		notes = append(notes, &note)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate notes: %w", err)
	}
	return notes, nil
}

// RecordAudit inserts an activity log row
func (s *sqliteStore) RecordAudit(ctx context.Context, event *models.AuditEvent) error {
	query := `
		INSERT INTO activity_logs (id, actor_id, actor_role, action, job_id, member_id, description, occurred_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.q.ExecContext(ctx, query,
		event.ID,
		event.ActorID,
		event.ActorRole,
		event.Action,
		event.JobID,
		event.MemberID,
		event.Description,
		event.OccurredAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to record activity: %w", err)
	}
	return nil
}

// ListAuditEvents retrieves a job's activity log, oldest first
func (s *sqliteStore) ListAuditEvents(ctx context.Context, jobID string) ([]*models.AuditEvent, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT id, actor_id, actor_role, action, job_id, member_id, description, occurred_at
		FROM activity_logs
		WHERE job_id = ?
		ORDER BY occurred_at ASC, rowid ASC`, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to query activity: %w", err)
	}
	defer rows.Close()

	events := []*models.AuditEvent{}
	for rows.Next() {
		var event models.AuditEvent
		var occurredAt int64
		err := rows.Scan(
			&event.ID,
			&event.ActorID,
			&event.ActorRole,
			&event.Action,
			&event.JobID,
			&event.MemberID,
			&event.Description,
			&occurredAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan activity: %w", err)
		}
		event.OccurredAt = fromMillis(occurredAt)
		events = append(events, &event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate activity: %w", err)
	}
	return events, nil
}

func (s *sqliteStore) count(ctx context.Context, query string, args ...any) (int, error) {
	var count int
	if err := s.q.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count jobs: %w", err)
	}
	return count, nil
}

func (s *sqliteStore) queryJobs(ctx context.Context, query string, args ...any) ([]*models.Job, error) {
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query jobs: %w", err)
	}
	defer rows.Close()

	jobs := []*models.Job{}
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		jobs = append(jobs, job)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate jobs: %w", err)
	}
	return jobs, nil
}

func scanJob(row rowScanner) (*models.Job, error) {
	var job models.Job
	var position, waitingTime, startProcess, finishProcess sql.NullInt64
	var arrival, createdAt, updatedAt int64

	err := row.Scan(
		&job.ID,
		&job.MemberID,
		&job.Amount,
		&job.TenorMonths,
		&job.InterestRate,
		&job.Purpose,
		&job.State,
		&position,
		&job.BurstTime,
		&waitingTime,
		&job.ReviewerID,
		&arrival,
		&startProcess,
		&finishProcess,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}
	if !job.State.Valid() {
		return nil, fmt.Errorf("job %s: unknown state %q", job.ID, job.State)
	}

	if position.Valid {
		p := int(position.Int64)
		job.Position = &p
	}
	if waitingTime.Valid {
		w := int(waitingTime.Int64)
		job.WaitingTime = &w
	}
	if startProcess.Valid {
		t := fromMillis(startProcess.Int64)
		job.StartProcessTime = &t
	}
	if finishProcess.Valid {
		t := fromMillis(finishProcess.Int64)
		job.FinishProcessTime = &t
	}
	job.ArrivalTime = fromMillis(arrival)
	job.CreatedAt = fromMillis(createdAt)
	job.UpdatedAt = fromMillis(updatedAt)

	return &job, nil
}

func nullInt(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullMillis(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
