package models

import "time"

// QueuedJob is a queued job with its projected schedule, in minutes
type QueuedJob struct {
	*Job
	ProjectedStart      float64 `json:"projected_start"`
	ProjectedFinish     float64 `json:"projected_finish"`
	ProjectedWaiting    float64 `json:"projected_waiting"`
	ProjectedTurnaround float64 `json:"projected_turnaround"`
	// EstimatedWait is the cumulative burst time up to and including this job
	EstimatedWait int `json:"estimated_wait"`
}

// QueueStats summarizes the current queue
type QueueStats struct {
	TotalQueued       int     `json:"total_queued"`
	InReview          int     `json:"in_review"`
	AvgBurstTime      float64 `json:"avg_burst_time"`
	MaxBurstTime      int     `json:"max_burst_time"`
	ArrivedToday      int     `json:"arrived_today"`
	ProcessedToday    int     `json:"processed_today"`
	AverageWaiting    float64 `json:"average_waiting"`
	AverageTurnaround float64 `json:"average_turnaround"`
}

// QueueView is the queue ordered by position plus statistics
type QueueView struct {
	Jobs  []QueuedJob `json:"jobs"`
	Stats QueueStats  `json:"stats"`
}

// MemberStatus is a member's most recent application and where it stands
type MemberStatus struct {
	Job            *Job `json:"job"`
	QueueLength    int  `json:"queue_length"`
	ProcessedToday int  `json:"processed_today"`
	EstimatedWait  int  `json:"estimated_wait"`
}

// ClusterSpan is one contiguous run of long jobs
type ClusterSpan struct {
	StartPosition int `json:"start_position"`
	Length        int `json:"length"`
}

// ConvoyReport describes how long jobs are distributed through the queue
type ConvoyReport struct {
	QueueLength int           `json:"queue_length"`
	AvgBurst    float64       `json:"avg_burst"`
	StdDevBurst float64       `json:"stddev_burst"`
	Threshold   float64       `json:"threshold"`
	Clusters    int           `json:"clusters"`
	Spans       []ClusterSpan `json:"spans"`
}

// WaitPoint is the estimated FCFS wait for a queue position
type WaitPoint struct {
	Position      int    `json:"position"`
	JobID         string `json:"job_id"`
	EstimatedWait int    `json:"estimated_wait"`
}

// DailyThroughput counts decisions recorded on one calendar day
type DailyThroughput struct {
	Date           string `json:"date"`
	ProcessedCount int    `json:"processed_count"`
}

// TimelineEntry is one job in a simulated schedule, times in minutes
type TimelineEntry struct {
	Order      int       `json:"order"`
	JobID      string    `json:"job_id"`
	Position   int       `json:"position"`
	Arrival    float64   `json:"arrival"`
	Burst      float64   `json:"burst"`
	Start      float64   `json:"start"`
	Finish     float64   `json:"finish"`
	Waiting    float64   `json:"waiting"`
	Turnaround float64   `json:"turnaround"`
	StartAt    time.Time `json:"start_at"`
	FinishAt   time.Time `json:"finish_at"`
}

// SimulationResult is the outcome of a what-if run over the queue
type SimulationResult struct {
	Strategy               string          `json:"strategy"`
	Scale                  float64         `json:"scale"`
	AverageWaiting         float64         `json:"avg_wait"`
	AverageTurnaround      float64         `json:"avg_turnaround"`
	BaselineAverageWaiting float64         `json:"baseline_avg_wait"`
	Timeline               []TimelineEntry `json:"timeline"`
}

// ReviewerStats is one reviewer's decision record
type ReviewerStats struct {
	ReviewerID        string  `json:"reviewer_id"`
	TotalProcessed    int     `json:"total_processed"`
	Approved          int     `json:"approved"`
	Rejected          int     `json:"rejected"`
	AvgProcessMinutes float64 `json:"avg_processing_minutes"`
}

// DailyProcessing is the mean review duration on one calendar day
type DailyProcessing struct {
	Date       string  `json:"date"`
	AvgMinutes float64 `json:"avg_minutes"`
}

// VerificationStats summarizes review work over a trailing window
type VerificationStats struct {
	WindowDays        int               `json:"window_days"`
	Approved          int               `json:"approved"`
	Rejected          int               `json:"rejected"`
	InReview          int               `json:"in_review"`
	AvgProcessMinutes float64           `json:"avg_processing_minutes"`
	Reviewers         []ReviewerStats   `json:"reviewers"`
	ProcessingTrend   []DailyProcessing `json:"processing_trend"`
}
