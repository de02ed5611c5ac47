// Package dispatch relays outbox rows into activity-feed entries and
// notifications. It runs after the ledger change has committed and never
// writes to the ledger itself, so a failed write here cannot undo a join.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Shivanand-hulikatti/events-activities/internal/model"
	"github.com/Shivanand-hulikatti/events-activities/internal/render"
	"github.com/Shivanand-hulikatti/events-activities/internal/repository"
)

const (
	defaultBatchSize   = 100
	defaultMaxAttempts = 5
)

// Store is the slice of persistence the dispatcher reads and writes.
type Store interface {
	repository.OutboxStore
	AppendActivity(ctx context.Context, a model.Activity) error
	AppendNotification(ctx context.Context, n model.Notification) error
	GetUser(ctx context.Context, id string) (*model.User, error)
}

// Option customises a Dispatcher.
type Option func(*Dispatcher)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) { d.now = now }
}

// WithIDGenerator overrides record id generation.
func WithIDGenerator(newID func() string) Option {
	return func(d *Dispatcher) { d.newID = newID }
}

// WithMaxAttempts caps how often a failing row is retried.
func WithMaxAttempts(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.maxAttempts = n
		}
	}
}

// Dispatcher fans outbox events out to activity and notification records.
type Dispatcher struct {
	store       Store
	render      *render.Renderer
	logger      *slog.Logger
	now         func() time.Time
	newID       func() string
	batchSize   int
	maxAttempts int

	mu sync.Mutex
}

// New constructs a Dispatcher.
func New(store Store, r *render.Renderer, logger *slog.Logger, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		store:       store,
		render:      r,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
		newID:       uuid.NewString,
		batchSize:   defaultBatchSize,
		maxAttempts: defaultMaxAttempts,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Flush relays every pending outbox row. Per-row failures are logged and
// counted against the row, never returned; the error result only reports
// that the outbox itself could not be read.
func (d *Dispatcher) Flush(ctx context.Context) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	seen := make(map[string]bool)
	dispatched := 0
	for {
		batch, err := d.store.PendingOutbox(ctx, d.batchSize, d.maxAttempts)
		if err != nil {
			return dispatched, fmt.Errorf("read outbox: %w", err)
		}
		progressed := false
		for _, ev := range batch {
			if seen[ev.ID] {
				continue
			}
			seen[ev.ID] = true
			progressed = true

			if err := d.Dispatch(ctx, ev); err != nil {
				d.logger.Warn("outbox dispatch failed",
					"outbox_id", ev.ID, "topic", ev.Topic, "event_id", ev.EventID,
					"attempt", ev.Attempts+1, "error", err)
				if markErr := d.store.MarkOutboxFailed(ctx, ev.ID, err.Error()); markErr != nil {
					d.logger.Error("record outbox failure", "outbox_id", ev.ID, "error", markErr)
				}
				continue
			}
			if err := d.store.MarkOutboxDispatched(ctx, ev.ID, d.now()); err != nil {
				d.logger.Error("mark outbox dispatched", "outbox_id", ev.ID, "error", err)
				continue
			}
			dispatched++
		}
		if !progressed || len(batch) < d.batchSize {
			return dispatched, nil
		}
	}
}

// Dispatch writes the records for a single outbox event. Records already
// written by an earlier attempt are skipped via their dedupe keys.
func (d *Dispatcher) Dispatch(ctx context.Context, ev model.OutboxEvent) error {
	p := ev.Payload
	title := p.EventTitle
	var errs []error
	activity := func(typ model.ActivityType, userID, relatedUser, msg string) {
		errs = append(errs, d.appendActivity(ctx, ev, typ, userID, relatedUser, msg))
	}
	notify := func(typ model.ActivityType, userID, relatedUser, msg string) {
		errs = append(errs, d.appendNotification(ctx, ev, typ, userID, relatedUser, msg))
	}

	switch ev.Topic {
	case model.TopicParticipantJoined:
		activity(model.ActivityEventJoined, p.UserID, p.HostID, d.render.Message(render.ActivityJoined, title))
		notify(model.ActivityEventJoined, p.HostID, p.UserID,
			d.render.Message(render.NotifyJoined, d.displayName(ctx, p.UserID), title))

	case model.TopicParticipantLeft:
		activity(model.ActivityEventLeft, p.UserID, p.HostID, d.render.Message(render.ActivityLeft, title))
		notify(model.ActivityEventLeft, p.HostID, p.UserID,
			d.render.Message(render.NotifyLeft, d.displayName(ctx, p.UserID), title))

	case model.TopicEventCancelled:
		activity(model.ActivityEventCancelled, p.HostID, p.ActorID, d.render.Message(render.ActivityCancelled, title))
		msg := d.render.Message(render.NotifyCancelled, title)
		for _, userID := range p.Recipients {
			notify(model.ActivityEventCancelled, userID, p.ActorID, msg)
		}

	case model.TopicEventReopened:
		msg := d.render.Message(render.NotifyReopened, title)
		for _, userID := range p.Recipients {
			notify(model.ActivityEventReopened, userID, p.ActorID, msg)
		}

	case model.TopicEventCompleted:
		activity(model.ActivityEventCompleted, p.HostID, "", d.render.Message(render.ActivityCompleted, title))
		msg := d.render.Message(render.ActivityAttended, title)
		for _, userID := range p.Recipients {
			activity(model.ActivityEventCompleted, userID, p.HostID, msg)
		}

	case model.TopicWaitlistJoined:
		activity(model.ActivityWaitlistJoined, p.UserID, "", d.render.Message(render.ActivityWaitlisted, p.Position, title))

	case model.TopicWaitlistOffered:
		deadline := ""
		if p.OfferExpiresAt != nil {
			deadline = d.render.Deadline(*p.OfferExpiresAt)
		}
		notify(model.ActivityWaitlistOffered, p.UserID, "", d.render.Message(render.NotifyOffered, title, deadline))

	case model.TopicWaitlistExpired:
		notify(model.ActivityWaitlistExpired, p.UserID, "", d.render.Message(render.NotifyOfferExpired, title))

	case model.TopicPaymentPending:
		activity(model.ActivityPaymentStarted, p.UserID, "",
			d.render.Message(render.ActivityPaymentStart, d.render.Amount(p.Amount, p.Currency), title))

	case model.TopicPaymentRefunded:
		notify(model.ActivityPaymentRefunded, p.UserID, "",
			d.render.Message(render.NotifyPaymentRefunded, d.render.Amount(p.Amount, p.Currency), title))

	default:
		return fmt.Errorf("unknown outbox topic %q", ev.Topic)
	}
	return errors.Join(errs...)
}

func dedupeKey(ev model.OutboxEvent, kind, userID string) string {
	return ev.ID + ":" + kind + ":" + userID
}

func (d *Dispatcher) appendActivity(ctx context.Context, ev model.OutboxEvent, typ model.ActivityType, userID, relatedUser, msg string) error {
	if userID == "" {
		return nil
	}
	err := d.store.AppendActivity(ctx, model.Activity{
		ID:           d.newID(),
		Type:         typ,
		UserID:       userID,
		RelatedUser:  relatedUser,
		RelatedEvent: ev.EventID,
		Message:      msg,
		DedupeKey:    dedupeKey(ev, "activity", userID),
		CreatedAt:    ev.CreatedAt,
	})
	if errors.Is(err, repository.ErrConflict) {
		return nil
	}
	return err
}

func (d *Dispatcher) appendNotification(ctx context.Context, ev model.OutboxEvent, typ model.ActivityType, userID, relatedUser, msg string) error {
	if userID == "" {
		return nil
	}
	err := d.store.AppendNotification(ctx, model.Notification{
		ID:           d.newID(),
		Type:         typ,
		UserID:       userID,
		RelatedUser:  relatedUser,
		RelatedEvent: ev.EventID,
		Message:      msg,
		DedupeKey:    dedupeKey(ev, "notification", userID),
		CreatedAt:    ev.CreatedAt,
	})
	if errors.Is(err, repository.ErrConflict) {
		return nil
	}
	return err
}

// displayName resolves a user's name for message text, falling back to the id.
func (d *Dispatcher) displayName(ctx context.Context, userID string) string {
	u, err := d.store.GetUser(ctx, userID)
	if err != nil || u.Name == "" {
		return userID
	}
	return u.Name
}
