package events

import (
	"context"
	"fmt"

	pubnub "github.com/pubnub/go/v7"

	"loan-queue/internal/models"
)

// MessagePublisher sends a message on a realtime channel
type MessagePublisher interface {
	PublishMessage(channel string, message any) error
}

type pubnubPublisher struct {
	pn *pubnub.PubNub
}

// NewPubNubPublisher builds a publisher from PubNub keys
func NewPubNubPublisher(publishKey, subscribeKey, secretKey, userID string) MessagePublisher {
	cfg := pubnub.NewConfigWithUserId(pubnub.UserId(userID))
	cfg.PublishKey = publishKey
	cfg.SubscribeKey = subscribeKey
	cfg.SecretKey = secretKey

	return &pubnubPublisher{pn: pubnub.NewPubNub(cfg)}
}

func (p *pubnubPublisher) PublishMessage(channel string, message any) error {
	_, _, err := p.pn.Publish().
		Channel(channel).
		Message(message).
		Execute()
	return err
}

// PubNubSink notifies the member who owns a loan when something happens to
// it. Submissions are not forwarded since the member made them.
type PubNubSink struct {
	publisher MessagePublisher
}

// NewPubNubSink creates a member notification sink
func NewPubNubSink(publisher MessagePublisher) *PubNubSink {
	return &PubNubSink{publisher: publisher}
}

// MemberChannel is the channel a member's client subscribes to
func MemberChannel(memberID string) string {
	return "member-" + memberID
}

// Publish forwards member-facing events
func (s *PubNubSink) Publish(_ context.Context, event models.AuditEvent) error {
	status, ok := memberStatus(event.Action)
	if !ok || event.MemberID == "" {
		return nil
	}

	err := s.publisher.PublishMessage(MemberChannel(event.MemberID), map[string]any{
		"type":        "loan_status",
		"status":      status,
		"job_id":      event.JobID,
		"description": event.Description,
		"occurred_at": event.OccurredAt,
	})
	if err != nil {
		return fmt.Errorf("failed to notify member %s: %w", event.MemberID, err)
	}
	return nil
}

func memberStatus(action models.EventAction) (string, bool) {
	switch action {
	case models.ActionProcess, models.ActionOverrideEmergency:
		return string(models.StateInReview), true
	case models.ActionApprove:
		return string(models.StateApproved), true
	case models.ActionReject:
		return string(models.StateRejected), true
	case models.ActionSkip, models.ActionOverridePriority:
		return string(models.StateQueued), true
	}
	return "", false
}
