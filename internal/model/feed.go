package model

import "time"

// ActivityType labels activity-feed and notification records.
type ActivityType string

const (
	ActivityEventJoined     ActivityType = "event_joined"
	ActivityEventLeft       ActivityType = "event_left"
	ActivityEventCancelled  ActivityType = "event_cancelled"
	ActivityEventReopened   ActivityType = "event_reopened"
	ActivityEventCompleted  ActivityType = "event_completed"
	ActivityWaitlistJoined  ActivityType = "waitlist_joined"
	ActivityWaitlistOffered ActivityType = "waitlist_offered"
	ActivityWaitlistExpired ActivityType = "waitlist_expired"
	ActivityPaymentStarted  ActivityType = "payment_started"
	ActivityPaymentRefunded ActivityType = "payment_refunded"
)

// Activity is an append-only feed entry about something a user did.
type Activity struct {
	ID           string       `json:"id"`
	Type         ActivityType `json:"type"`
	UserID       string       `json:"user_id"`
	RelatedUser  string       `json:"related_user,omitempty"`
	RelatedEvent string       `json:"related_event,omitempty"`
	Message      string       `json:"message"`
	DedupeKey    string       `json:"-"`
	CreatedAt    time.Time    `json:"created_at"`
}

// Notification is an append-only message to a recipient. Only IsRead changes.
type Notification struct {
	ID           string       `json:"id"`
	Type         ActivityType `json:"type"`
	UserID       string       `json:"user_id"`
	RelatedUser  string       `json:"related_user,omitempty"`
	RelatedEvent string       `json:"related_event,omitempty"`
	Message      string       `json:"message"`
	IsRead       bool         `json:"is_read"`
	DedupeKey    string       `json:"-"`
	CreatedAt    time.Time    `json:"created_at"`
	ReadAt       *time.Time   `json:"read_at,omitempty"`
}

// Topic names a domain event written to the outbox.
type Topic string

const (
	TopicParticipantJoined Topic = "participant.joined"
	TopicParticipantLeft   Topic = "participant.left"
	TopicEventCancelled    Topic = "event.cancelled"
	TopicEventReopened     Topic = "event.reopened"
	TopicEventCompleted    Topic = "event.completed"
	TopicWaitlistJoined    Topic = "waitlist.joined"
	TopicWaitlistOffered   Topic = "waitlist.offered"
	TopicWaitlistExpired   Topic = "waitlist.expired"
	TopicPaymentPending    Topic = "payment.pending"
	TopicPaymentRefunded   Topic = "payment.refunded"
)

// OutboxPayload carries what the dispatcher needs to fan a domain event out.
type OutboxPayload struct {
	EventTitle     string     `json:"event_title"`
	HostID         string     `json:"host_id"`
	UserID         string     `json:"user_id,omitempty"`
	ActorID        string     `json:"actor_id,omitempty"`
	Recipients     []string   `json:"recipients,omitempty"`
	OfferExpiresAt *time.Time `json:"offer_expires_at,omitempty"`
	Position       int        `json:"position,omitempty"`
	PaymentID      string     `json:"payment_id,omitempty"`
	Amount         int64      `json:"amount,omitempty"`
	Currency       string     `json:"currency,omitempty"`
}

// OutboxEvent is a domain event recorded in the same unit of work as the
// ledger change that caused it.
type OutboxEvent struct {
	ID           string        `json:"id"`
	EventID      string        `json:"event_id"`
	Topic        Topic         `json:"topic"`
	Payload      OutboxPayload `json:"payload"`
	Attempts     int           `json:"attempts"`
	LastError    string        `json:"last_error,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
	DispatchedAt *time.Time    `json:"dispatched_at,omitempty"`
}
