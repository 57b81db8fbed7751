package models

import "time"

// EventAction names a queue transition recorded in the activity log
type EventAction string

const (
	ActionSubmit            EventAction = "submit"
	ActionProcess           EventAction = "process"
	ActionApprove           EventAction = "approve"
	ActionReject            EventAction = "reject"
	ActionSkip              EventAction = "skip"
	ActionOverridePriority  EventAction = "override_priority"
	ActionOverrideEmergency EventAction = "override_emergency"
)

// AuditEvent is one activity-log record. It is persisted with the mutation
// and handed to the event sink after commit.
type AuditEvent struct {
	ID          string      `json:"id"`
	ActorID     string      `json:"actor_id"`
	ActorRole   string      `json:"actor_role"`
	Action      EventAction `json:"action"`
	JobID       string      `json:"job_id"`
	MemberID    string      `json:"member_id"`
	Description string      `json:"description"`
	OccurredAt  time.Time   `json:"occurred_at"`
}
