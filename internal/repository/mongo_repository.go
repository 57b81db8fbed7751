package repository

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"loan-queue/internal/models"
)

var _ JobRepository = (*MongoRepository)(nil)

// MongoRepository implements JobRepository on MongoDB. Transactions need a
// replica set or sharded cluster.
type MongoRepository struct {
	*mongoStore
	client *mongo.Client
}

// mongoStore is stateless apart from its collections; passing a session
// context to its methods runs them inside that session's transaction.
type mongoStore struct {
	jobs     *mongo.Collection
	notes    *mongo.Collection
	activity *mongo.Collection
	members  *mongo.Collection
}

type jobDocument struct {
	ID                string     `bson:"_id"`
	MemberID          string     `bson:"member_id"`
	Amount            string     `bson:"amount"`
	TenorMonths       int        `bson:"tenor_months"`
	InterestRate      string     `bson:"interest_rate"`
	Purpose           string     `bson:"purpose"`
	State             string     `bson:"state"`
	Position          *int       `bson:"position"`
	BurstTime         int        `bson:"burst_time"`
	WaitingTime       *int       `bson:"waiting_time"`
	ReviewerID        string     `bson:"reviewer_id"`
	ArrivalTime       time.Time  `bson:"arrival_time"`
	StartProcessTime  *time.Time `bson:"start_process_time"`
	FinishProcessTime *time.Time `bson:"finish_process_time"`
	CreatedAt         time.Time  `bson:"created_at"`
	UpdatedAt         time.Time  `bson:"updated_at"`
}

type noteDocument struct {
	ID        string    `bson:"_id"`
	JobID     string    `bson:"job_id"`
	Kind      string    `bson:"kind"`
	Author    string    `bson:"author"`
	Body      string    `bson:"body"`
	CreatedAt time.Time `bson:"created_at"`
}

type memberDocument struct {
	ID     string `bson:"_id"`
	UserID string `bson:"user_id"`
	Status string `bson:"status"`
}

// NewMongoRepository connects to uri and prepares the collections in database
func NewMongoRepository(ctx context.Context, uri, database string) (*MongoRepository, error) {
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to create MongoDB client: %w", err)
	}

	if err := client.Ping(connectCtx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	db := client.Database(database)
	repo := &MongoRepository{
		mongoStore: &mongoStore{
			jobs:     db.Collection("loan_jobs"),
			notes:    db.Collection("loan_notes"),
			activity: db.Collection("activity_logs"),
			members:  db.Collection("members"),
		},
		client: client,
	}

	if err := repo.ensureIndexes(connectCtx); err != nil {
		return nil, fmt.Errorf("failed to create indexes: %w", err)
	}
	return repo, nil
}

// Close disconnects the client
func (r *MongoRepository) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return r.client.Disconnect(ctx)
}

func (r *MongoRepository) ensureIndexes(ctx context.Context) error {
	_, err := r.jobs.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "state", Value: 1}, {Key: "position", Value: 1}}},
		{Keys: bson.D{{Key: "member_id", Value: 1}, {Key: "arrival_time", Value: -1}}},
		{Keys: bson.D{{Key: "finish_process_time", Value: -1}}},
	})
	if err != nil {
		return err
	}
	if _, err := r.notes.Indexes().CreateOne(ctx, mongo.IndexModel{Keys: bson.D{{Key: "job_id", Value: 1}}}); err != nil {
		return err
	}
	_, err = r.activity.Indexes().CreateOne(ctx, mongo.IndexModel{Keys: bson.D{{Key: "job_id", Value: 1}}})
	return err
}

// WithTx runs fn inside a multi-document transaction
func (r *MongoRepository) WithTx(ctx context.Context, fn func(ctx context.Context, store JobStore) error) error {
	sess, err := r.client.StartSession()
	if err != nil {
		return fmt.Errorf("failed to start session: %w", err)
	}
	defer sess.EndSession(ctx)

	_, err = sess.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, fn(sc, r.mongoStore)
	})
	return mapMongoError(err)
}

// MemberExists reports whether an active member with the given ID exists
func (r *MongoRepository) MemberExists(ctx context.Context, memberID string) (bool, error) {
	n, err := r.members.CountDocuments(ctx, bson.M{"_id": memberID, "status": "active"})
	if err != nil {
		return false, fmt.Errorf("failed to look up member: %w", err)
	}
	return n > 0, nil
}

// MemberIDForUser returns the member linked to a login
func (r *MongoRepository) MemberIDForUser(ctx context.Context, userID string) (string, error) {
	var doc memberDocument
	err := r.members.FindOne(ctx, bson.M{"user_id": userID}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("failed to look up member for user: %w", err)
	}
	return doc.ID, nil
}

func mapMongoError(err error) error {
	if err == nil {
		return nil
	}
	var se mongo.ServerError
	if errors.As(err, &se) &&
		(se.HasErrorLabel("TransientTransactionError") || se.HasErrorLabel("UnknownTransactionCommitResult")) {
		return fmt.Errorf("%w: %v", ErrConflict, err)
	}
	return err
}

// CreateJob inserts a new job
func (s *mongoStore) CreateJob(ctx context.Context, job *models.Job) error {
	if _, err := s.jobs.InsertOne(ctx, toJobDocument(job)); err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}
	return nil
}

// GetJobByID retrieves a job by ID
func (s *mongoStore) GetJobByID(ctx context.Context, id string) (*models.Job, error) {
	return s.findOne(ctx, bson.M{"_id": id}, nil)
}

// UpdateJob replaces the stored job
func (s *mongoStore) UpdateJob(ctx context.Context, job *models.Job) error {
	res, err := s.jobs.ReplaceOne(ctx, bson.M{"_id": job.ID}, toJobDocument(job))
	if err != nil {
		return fmt.Errorf("failed to update job: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// ListJobsByState retrieves all jobs in a state
func (s *mongoStore) ListJobsByState(ctx context.Context, state models.JobState) ([]*models.Job, error) {
	sort := bson.D{{Key: "arrival_time", Value: 1}, {Key: "_id", Value: 1}}
	if state == models.StateQueued {
		sort = append(bson.D{{Key: "position", Value: 1}}, sort...)
	}
	return s.find(ctx, bson.M{"state": string(state)}, options.Find().SetSort(sort))
}

// CountJobsByState counts jobs in a state
func (s *mongoStore) CountJobsByState(ctx context.Context, state models.JobState) (int, error) {
	return s.count(ctx, bson.M{"state": string(state)})
}

// ShiftQueuePositions moves a range of queued positions by delta
func (s *mongoStore) ShiftQueuePositions(ctx context.Context, from, to, delta int) error {
	rng := bson.M{"$gte": from}
	if to > 0 {
		rng["$lte"] = to
	}
	filter := bson.M{"state": string(models.StateQueued), "position": rng}

	if _, err := s.jobs.UpdateMany(ctx, filter, bson.M{"$inc": bson.M{"position": delta}}); err != nil {
		return fmt.Errorf("failed to shift queue positions: %w", err)
	}
	return nil
}

// CountJobsWithIDPrefix counts jobs whose ID starts with prefix
func (s *mongoStore) CountJobsWithIDPrefix(ctx context.Context, prefix string) (int, error) {
	return s.count(ctx, bson.M{"_id": bson.M{"$regex": "^" + regexp.QuoteMeta(prefix)}})
}

// CountActiveJobsByMember counts a member's jobs that are queued or in review
func (s *mongoStore) CountActiveJobsByMember(ctx context.Context, memberID string) (int, error) {
	return s.count(ctx, bson.M{
		"member_id": memberID,
		"state":     bson.M{"$in": bson.A{string(models.StateQueued), string(models.StateInReview)}},
	})
}

// LatestJobByMember returns the member's most recent application
func (s *mongoStore) LatestJobByMember(ctx context.Context, memberID string) (*models.Job, error) {
	opts := options.FindOne().SetSort(bson.D{{Key: "arrival_time", Value: -1}, {Key: "_id", Value: -1}})
	return s.findOne(ctx, bson.M{"member_id": memberID}, opts)
}

// CountArrivedSince counts jobs submitted at or after since
func (s *mongoStore) CountArrivedSince(ctx context.Context, since time.Time) (int, error) {
	return s.count(ctx, bson.M{"arrival_time": bson.M{"$gte": since}})
}

// ListFinishedSince retrieves decided jobs, oldest decision first
func (s *mongoStore) ListFinishedSince(ctx context.Context, since time.Time) ([]*models.Job, error) {
	filter := bson.M{
		"state":               bson.M{"$in": bson.A{string(models.StateApproved), string(models.StateRejected)}},
		"finish_process_time": bson.M{"$gte": since},
	}
	opts := options.Find().SetSort(bson.D{{Key: "finish_process_time", Value: 1}, {Key: "_id", Value: 1}})
	return s.find(ctx, filter, opts)
}

// ListProcessed retrieves jobs that have left the queue
func (s *mongoStore) ListProcessed(ctx context.Context, limit int) ([]*models.Job, error) {
	cursor, err := s.jobs.Aggregate(ctx, processedPipeline(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to query processed jobs: %w", err)
	}
	return decodeJobs(ctx, cursor)
}

// processedPipeline orders by the latest of finish, start and update time,
// matching the SQLite store
func processedPipeline(limit int) mongo.Pipeline {
	return mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"state": bson.M{"$ne": string(models.StateQueued)}}}},
		{{Key: "$addFields", Value: bson.M{
			"processed_at": bson.M{"$ifNull": bson.A{
				"$finish_process_time",
				bson.M{"$ifNull": bson.A{"$start_process_time", "$updated_at"}},
			}},
		}}},
		{{Key: "$sort", Value: bson.D{{Key: "processed_at", Value: -1}, {Key: "_id", Value: -1}}}},
		{{Key: "$limit", Value: int64(limit)}},
		{{Key: "$project", Value: bson.M{"processed_at": 0}}},
	}
}

// AddNote appends a note to a job
func (s *mongoStore) AddNote(ctx context.Context, note *models.Note) error {
	doc := noteDocument{
		ID:        note.ID,
		JobID:     note.JobID,
		Kind:      string(note.Kind),
		Author:    note.Author,
		Body:      note.Body,
		CreatedAt: note.CreatedAt,
	}
	if _, err := s.notes.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("failed to add note: %w", err)
	}
	return nil
}

// ListNotes retrieves a job's notes in the order they were written
func (s *mongoStore) ListNotes(ctx context.Context, jobID string) ([]*models.Note, error) {
	cursor, err := s.notes.Find(ctx, bson.M{"job_id": jobID},
		options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to query notes: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []noteDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode notes: %w", err)
	}

	notes := make([]*models.Note, 0, len(docs))
	for _, d := range docs {
		notes = append(notes, &models.Note{
			ID:        d.ID,
			JobID:     d.JobID,
			Kind:      models.NoteKind(d.Kind),
			Author:    d.Author,
			Body:      d.Body,
			CreatedAt: d.CreatedAt.UTC(),
		})
	}
	return notes, nil
}

// RecordAudit inserts an activity log document
func (s *mongoStore) RecordAudit(ctx context.Context, event *models.AuditEvent) error {
	doc := bson.M{
		"_id":         event.ID,
		"actor_id":    event.ActorID,
		"actor_role":  event.ActorRole,
		"action":      string(event.Action),
		"job_id":      event.JobID,
		"member_id":   event.MemberID,
		"description": event.Description,
		"occurred_at": event.OccurredAt,
	}
	if _, err := s.activity.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("failed to record activity: %w", err)
	}
	return nil
}

// ListAuditEvents retrieves a job's activity log, oldest first
func (s *mongoStore) ListAuditEvents(ctx context.Context, jobID string) ([]*models.AuditEvent, error) {
	cursor, err := s.activity.Find(ctx, bson.M{"job_id": jobID},
		options.Find().SetSort(bson.D{{Key: "occurred_at", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to query activity: %w", err)
	}
	defer cursor.Close(ctx)

	events := []*models.AuditEvent{}
	for cursor.Next(ctx) {
		var doc struct {
			ID          string    `bson:"_id"`
			ActorID     string    `bson:"actor_id"`
			ActorRole   string    `bson:"actor_role"`
			Action      string    `bson:"action"`
			JobID       string    `bson:"job_id"`
			MemberID    string    `bson:"member_id"`
			Description string    `bson:"description"`
			OccurredAt  time.Time `bson:"occurred_at"`
		}
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode activity: %w", err)
		}
		events = append(events, &models.AuditEvent{
			ID:          doc.ID,
			ActorID:     doc.ActorID,
			ActorRole:   doc.ActorRole,
			Action:      models.EventAction(doc.Action),
			JobID:       doc.JobID,
			MemberID:    doc.MemberID,
			Description: doc.Description,
			OccurredAt:  doc.OccurredAt.UTC(),
		})
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate activity: %w", err)
	}
	return events, nil
}

func (s *mongoStore) count(ctx context.Context, filter bson.M) (int, error) {
	n, err := s.jobs.CountDocuments(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("failed to count jobs: %w", err)
	}
	return int(n), nil
}

func (s *mongoStore) findOne(ctx context.Context, filter bson.M, opts *options.FindOneOptions) (*models.Job, error) {
	var doc jobDocument
	var err error
	if opts != nil {
		err = s.jobs.FindOne(ctx, filter, opts).Decode(&doc)
	} else {
		err = s.jobs.FindOne(ctx, filter).Decode(&doc)
	}
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return fromJobDocument(doc)
}

func (s *mongoStore) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]*models.Job, error) {
	cursor, err := s.jobs.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query jobs: %w", err)
	}
	return decodeJobs(ctx, cursor)
}

func decodeJobs(ctx context.Context, cursor *mongo.Cursor) ([]*models.Job, error) {
	defer cursor.Close(ctx)

	var docs []jobDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode jobs: %w", err)
	}

	jobs := make([]*models.Job, 0, len(docs))
	for _, d := range docs {
		job, err := fromJobDocument(d)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

func toJobDocument(job *models.Job) jobDocument {
	return jobDocument{
		ID:                job.ID,
		MemberID:          job.MemberID,
		Amount:            job.Amount.String(),
		TenorMonths:       job.TenorMonths,
		InterestRate:      job.InterestRate.String(),
		Purpose:           job.Purpose,
		State:             string(job.State),
		Position:          job.Position,
		BurstTime:         job.BurstTime,
		WaitingTime:       job.WaitingTime,
		ReviewerID:        job.ReviewerID,
		ArrivalTime:       job.ArrivalTime,
		StartProcessTime:  job.StartProcessTime,
		FinishProcessTime: job.FinishProcessTime,
		CreatedAt:         job.CreatedAt,
		UpdatedAt:         job.UpdatedAt,
	}
}

func fromJobDocument(d jobDocument) (*models.Job, error) {
	amount, err := decimal.NewFromString(d.Amount)
	if err != nil {
		return nil, fmt.Errorf("job %s: bad amount %q: %w", d.ID, d.Amount, err)
	}
	rate, err := decimal.NewFromString(d.InterestRate)
	if err != nil {
		return nil, fmt.Errorf("job %s: bad interest rate %q: %w", d.ID, d.InterestRate, err)
	}

	state := models.JobState(d.State)
	if !state.Valid() {
		return nil, fmt.Errorf("job %s: unknown state %q", d.ID, d.State)
	}

	job := &models.Job{
		ID:           d.ID,
		MemberID:     d.MemberID,
		Amount:       amount,
		TenorMonths:  d.TenorMonths,
		InterestRate: rate,
		Purpose:      d.Purpose,
		State:        state,
		Position:     d.Position,
		BurstTime:    d.BurstTime,
		WaitingTime:  d.WaitingTime,
		ReviewerID:   d.ReviewerID,
		ArrivalTime:  d.ArrivalTime.UTC(),
		CreatedAt:    d.CreatedAt.UTC(),
		UpdatedAt:    d.UpdatedAt.UTC(),
	}
	if d.StartProcessTime != nil {
		t := d.StartProcessTime.UTC()
		job.StartProcessTime = &t
	}
	if d.FinishProcessTime != nil {
		t := d.FinishProcessTime.UTC()
		job.FinishProcessTime = &t
	}
	return job, nil
}
