// Package repository declares the persistence boundary of the participation
// service. Implementations live in the postgres and sqlite subpackages.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/Shivanand-hulikatti/events-activities/internal/model"
)

// ErrNotFound is returned when a requested resource does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when a write collides with a uniqueness key.
var ErrConflict = errors.New("conflict")

// Store is everything the service layer needs from a backing database.
type Store interface {
	EventStore
	UserStore
	FeedStore
	OutboxStore

	// GetPayment reads a payment outside of any event lock.
	GetPayment(ctx context.Context, id string) (*model.Payment, error)

	// WithEventLock runs fn in a transaction that holds an exclusive lock on
	// the event row. Concurrent callers for the same event are serialised;
	// fn returning an error rolls everything back. It returns ErrNotFound
	// when the event does not exist.
	WithEventLock(ctx context.Context, eventID string, fn func(tx EventTx) error) error

	Ping(ctx context.Context) error
	Close() error
}

// EventStore covers event reads and creation.
type EventStore interface {
	CreateEvent(ctx context.Context, ev *model.Event) error
	GetEvent(ctx context.Context, id string) (*model.Event, error)
	ListEvents(ctx context.Context, filter model.ListEventsFilter) ([]model.Event, error)
	ListWaitlist(ctx context.Context, eventID string) ([]model.WaitlistEntry, error)

	// EventsWithLapsedOffers lists open or full events holding an offer whose
	// deadline is not after now.
	EventsWithLapsedOffers(ctx context.Context, now time.Time) ([]string, error)
	// EventsEndedBefore lists open or full events whose end time is not after now.
	EventsEndedBefore(ctx context.Context, now time.Time) ([]string, error)
}

// UserStore is the user directory.
type UserStore interface {
	CreateUser(ctx context.Context, u *model.User) error
	GetUser(ctx context.Context, id string) (*model.User, error)
}

// FeedStore persists activity-feed and notification records. Appends with
// a dedupe key that already exists return ErrConflict.
type FeedStore interface {
	AppendActivity(ctx context.Context, a model.Activity) error
	AppendNotification(ctx context.Context, n model.Notification) error
	ListActivities(ctx context.Context, userID string, limit int) ([]model.Activity, error)
	ListNotifications(ctx context.Context, userID string, limit int) ([]model.Notification, error)
	MarkNotificationRead(ctx context.Context, userID, id string, at time.Time) (*model.Notification, error)
}

// OutboxStore is the relay side of the transactional outbox.
type OutboxStore interface {
	PendingOutbox(ctx context.Context, limit, maxAttempts int) ([]model.OutboxEvent, error)
	MarkOutboxDispatched(ctx context.Context, id string, at time.Time) error
	MarkOutboxFailed(ctx context.Context, id string, reason string) error
}

// EventTx is a unit of work scoped to one locked event.
type EventTx interface {
	// Event returns the locked event with its participants in join order.
	Event(ctx context.Context) (*model.Event, error)
	Waitlist(ctx context.Context) ([]model.WaitlistEntry, error)

	// SaveEvent writes status, capacity, counters and timestamps.
	SaveEvent(ctx context.Context, ev *model.Event) error
	AddParticipant(ctx context.Context, userID string, at time.Time) error
	RemoveParticipant(ctx context.Context, userID string) error
	PutWaitlistEntry(ctx context.Context, e model.WaitlistEntry) error

	GetPayment(ctx context.Context, id string) (*model.Payment, error)
	// OpenPayment returns the newest pending payment of userID for this event.
	OpenPayment(ctx context.Context, userID string) (*model.Payment, error)
	// SeatPayment returns the completed payment of userID applied most
	// recently for this event.
	SeatPayment(ctx context.Context, userID string) (*model.Payment, error)
	PutPayment(ctx context.Context, p *model.Payment) error

	AppendOutbox(ctx context.Context, events []model.OutboxEvent) error
}
