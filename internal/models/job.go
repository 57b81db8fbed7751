package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// JobState represents the state of a loan application in the queue
type JobState string

const (
	StateQueued   JobState = "queued"
	StateInReview JobState = "in_review"
	StateApproved JobState = "approved"
	StateRejected JobState = "rejected"
)

// Valid reports whether s is a known state
func (s JobState) Valid() bool {
	switch s {
	case StateQueued, StateInReview, StateApproved, StateRejected:
		return true
	}
	return false
}

// Terminal reports whether no further transitions are allowed from s
func (s JobState) Terminal() bool {
	return s == StateApproved || s == StateRejected
}

// Job is a loan application treated as a job in the single-officer queue
type Job struct {
	ID           string          `json:"id"`
	MemberID     string          `json:"member_id"`
	Amount       decimal.Decimal `json:"amount"`
	TenorMonths  int             `json:"tenor_months"`
	InterestRate decimal.Decimal `json:"interest_rate"`
	Purpose      string          `json:"purpose"`

	State    JobState `json:"state"`
	Position *int     `json:"position"`

	// BurstTime is the estimated review duration in minutes
	BurstTime int `json:"burst_time"`
	// WaitingTime is the minutes spent queued, recorded when review starts
	WaitingTime *int   `json:"waiting_time,omitempty"`
	ReviewerID  string `json:"reviewer_id,omitempty"`

	ArrivalTime       time.Time  `json:"arrival_time"`
	StartProcessTime  *time.Time `json:"start_process_time,omitempty"`
	FinishProcessTime *time.Time `json:"finish_process_time,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// NoteKind classifies an annotation on a job
type NoteKind string

const (
	NoteGeneral   NoteKind = "general"
	NoteDecision  NoteKind = "decision"
	NoteSkip      NoteKind = "skip"
	NotePriority  NoteKind = "priority"
	NoteEmergency NoteKind = "emergency"
)

// Note is an append-only annotation on a job
type Note struct {
	ID        string    `json:"id"`
	JobID     string    `json:"job_id"`
	Kind      NoteKind  `json:"kind"`
	Author    string    `json:"author"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

// Actor is the caller identity asserted by the authentication gateway
type Actor struct {
	ID   string `json:"id"`
	Role string `json:"role"`
}

// SubmitRequest represents a request to enter the queue
type SubmitRequest struct {
	Amount      decimal.Decimal `json:"amount"`
	TenorMonths int             `json:"tenor_months"`
	Purpose     string          `json:"purpose"`
	MemberID    string          `json:"member_id"`
}

// SubmitResult is returned once a loan has entered the queue
type SubmitResult struct {
	JobID         string `json:"job_id"`
	Position      int    `json:"position"`
	BurstTime     int    `json:"burst_time"`
	EstimatedWait int    `json:"estimated_wait"`
}

// JobDetail is a job together with its notes and activity log
type JobDetail struct {
	Job      *Job          `json:"job"`
	Notes    []*Note       `json:"notes"`
	Activity []*AuditEvent `json:"activity"`
}
