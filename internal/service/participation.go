package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/Shivanand-hulikatti/events-activities/internal/lifecycle"
	"github.com/Shivanand-hulikatti/events-activities/internal/model"
	"github.com/Shivanand-hulikatti/events-activities/internal/payment"
	"github.com/Shivanand-hulikatti/events-activities/internal/repository"
)

// JoinEvent seats userID, queues them when the event is full, or opens a
// payment when the event charges a fee.
func (s *EventService) JoinEvent(ctx context.Context, eventID, userID string) (res *model.JoinResult, err error) {
	ctx, span := s.start(ctx, "JoinEvent", attribute.String("event.id", eventID), attribute.String("user.id", userID))
	defer func() { endSpan(span, err) }()

	user, err := s.user(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.join(ctx, eventID, user, false)
}

// AcceptOffer claims the seat held for userID by a waitlist offer.
func (s *EventService) AcceptOffer(ctx context.Context, eventID, userID string) (res *model.JoinResult, err error) {
	ctx, span := s.start(ctx, "AcceptOffer", attribute.String("event.id", eventID), attribute.String("user.id", userID))
	defer func() { endSpan(span, err) }()

	user, err := s.user(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.join(ctx, eventID, user, true)
}

func (s *EventService) join(ctx context.Context, eventID string, user *model.User, offerOnly bool) (*model.JoinResult, error) {
	now := s.now()
	res := &model.JoinResult{}
	ev, err := s.mutate(ctx, eventID, now, func(tx repository.EventTx, m *lifecycle.Machine) error {
		if offerOnly {
			m.ExpireOffers()
			if !m.HasLiveOffer(user.ID) {
				return model.ErrNoActiveOffer
			}
		}
		d, err := m.Evaluate(user.ID)
		if err != nil {
			return err
		}
		if d == lifecycle.DecisionWaitlist {
			e, err := m.Enqueue(user.ID)
			if err != nil {
				return err
			}
			ticket := *e
			res.Outcome = model.OutcomeWaitlisted
			res.Ticket = &ticket
			return nil
		}
		if !m.Event.IsPaid() {
			if err := m.Admit(user.ID); err != nil {
				return err
			}
			res.Outcome = model.OutcomeJoined
			return nil
		}
		p, err := openPayment(ctx, tx, m, user.ID, s.newID, now)
		if err != nil {
			return err
		}
		res.Outcome = model.OutcomePaymentRequired
		res.Payment = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	res.Event = ev

	switch res.Outcome {
	case model.OutcomeJoined:
		s.logger.Info("participant joined", "event_id", eventID, "user_id", user.ID, "current", ev.CurrentParticipants)
	case model.OutcomeWaitlisted:
		s.logger.Info("participant waitlisted", "event_id", eventID, "user_id", user.ID, "position", res.Ticket.Position)
	case model.OutcomePaymentRequired:
		if res.Payment.RedirectURL == "" {
			p, err := s.requestIntent(ctx, ev, user, res.Payment)
			if err != nil {
				return nil, err
			}
			res.Payment = p
		}
	}
	return res, nil
}

// openPayment reuses the user's pending payment for the event or starts a new one.
func openPayment(ctx context.Context, tx repository.EventTx, m *lifecycle.Machine, userID string, newID func() string, now time.Time) (*model.Payment, error) {
	p, err := tx.OpenPayment(ctx, userID)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}
	p = &model.Payment{
		ID:        newID(),
		EventID:   m.Event.ID,
		UserID:    userID,
		Amount:    m.Event.JoiningFee,
		Currency:  m.Event.Currency,
		Status:    model.PaymentPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := tx.PutPayment(ctx, p); err != nil {
		return nil, fmt.Errorf("create payment: %w", err)
	}
	m.Emit(model.TopicPaymentPending, model.OutboxPayload{
		UserID:    userID,
		PaymentID: p.ID,
		Amount:    p.Amount,
		Currency:  p.Currency,
	})
	return p, nil
}

// requestIntent asks the processor for a checkout outside the event lock and
// records the redirect. On failure the payment stays pending without one,
// so the next join attempt retries.
func (s *EventService) requestIntent(ctx context.Context, ev *model.Event, user *model.User, p *model.Payment) (*model.Payment, error) {
	if s.processor == nil {
		return nil, model.ErrPaymentProcessor.WithMessage("no payment processor configured")
	}
	intent, err := s.processor.CreateIntent(ctx, payment.Order{
		PaymentID:  p.ID,
		EventID:    ev.ID,
		EventTitle: ev.Title,
		Amount:     p.Amount,
		Currency:   p.Currency,
		Customer:   user,
	})
	if err != nil {
		s.logger.Error("create payment intent failed", "payment_id", p.ID, "event_id", ev.ID, "error", err)
		return nil, model.ErrPaymentProcessor.Wrap(err)
	}

	var out *model.Payment
	err = s.store.WithEventLock(ctx, ev.ID, func(tx repository.EventTx) error {
		cur, err := tx.GetPayment(ctx, p.ID)
		if err != nil {
			return err
		}
		if cur.Status == model.PaymentPending && cur.RedirectURL == "" {
			cur.RedirectURL = intent.RedirectURL
			cur.ProcessorRef = intent.Token
			cur.UpdatedAt = s.now()
			if err := tx.PutPayment(ctx, cur); err != nil {
				return err
			}
		}
		out = cur
		return nil
	})
	if err != nil {
		return nil, storeErr(err, model.ErrPaymentNotFound)
	}
	s.logger.Info("payment intent created", "payment_id", out.ID, "event_id", ev.ID, "user_id", user.ID)
	return out, nil
}

// LeaveEvent frees userID's seat and offers it to the front of the waitlist.
func (s *EventService) LeaveEvent(ctx context.Context, eventID, userID string) (ev *model.Event, err error) {
	ctx, span := s.start(ctx, "LeaveEvent", attribute.String("event.id", eventID), attribute.String("user.id", userID))
	defer func() { endSpan(span, err) }()

	user, err := s.user(ctx, userID)
	if err != nil {
		return nil, err
	}
	ev, err = s.mutate(ctx, eventID, s.now(), func(_ repository.EventTx, m *lifecycle.Machine) error {
		return m.Leave(user.ID)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("participant left", "event_id", eventID, "user_id", user.ID, "current", ev.CurrentParticipants)
	return ev, nil
}

// CancelEvent cancels an event on behalf of its host or an admin.
func (s *EventService) CancelEvent(ctx context.Context, eventID, actorID string) (ev *model.Event, err error) {
	ctx, span := s.start(ctx, "CancelEvent", attribute.String("event.id", eventID))
	defer func() { endSpan(span, err) }()

	actor, err := s.user(ctx, actorID)
	if err != nil {
		return nil, err
	}
	ev, err = s.mutate(ctx, eventID, s.now(), func(_ repository.EventTx, m *lifecycle.Machine) error {
		return m.Cancel(actor)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("event cancelled", "event_id", eventID, "actor_id", actor.ID, "participants", ev.CurrentParticipants)
	return ev, nil
}

// ReopenEvent lifts a cancellation. Admin only.
func (s *EventService) ReopenEvent(ctx context.Context, eventID, actorID string) (ev *model.Event, err error) {
	ctx, span := s.start(ctx, "ReopenEvent", attribute.String("event.id", eventID))
	defer func() { endSpan(span, err) }()

	actor, err := s.user(ctx, actorID)
	if err != nil {
		return nil, err
	}
	ev, err = s.mutate(ctx, eventID, s.now(), func(_ repository.EventTx, m *lifecycle.Machine) error {
		return m.Reopen(actor)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("event reopened", "event_id", eventID, "actor_id", actor.ID)
	return ev, nil
}

// CompleteEvent marks an event as taken place ahead of the sweep. Admin only.
func (s *EventService) CompleteEvent(ctx context.Context, eventID, actorID string) (*model.Event, error) {
	actor, err := s.user(ctx, actorID)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin() {
		return nil, model.ErrNotAuthorized
	}
	return s.mutate(ctx, eventID, s.now(), func(_ repository.EventTx, m *lifecycle.Machine) error {
		return m.Complete()
	})
}

// ResizeEvent changes the seat count of an event.
func (s *EventService) ResizeEvent(ctx context.Context, eventID, actorID string, req model.ResizeRequest) (ev *model.Event, err error) {
	ctx, span := s.start(ctx, "ResizeEvent", attribute.String("event.id", eventID), attribute.Int("max_participants", req.MaxParticipants))
	defer func() { endSpan(span, err) }()

	actor, err := s.user(ctx, actorID)
	if err != nil {
		return nil, err
	}
	if err := s.check(req); err != nil {
		return nil, err
	}
	return s.mutate(ctx, eventID, s.now(), func(_ repository.EventTx, m *lifecycle.Machine) error {
		return m.Resize(actor, req.MaxParticipants)
	})
}

// DeclineOffer turns down userID's seat offer.
func (s *EventService) DeclineOffer(ctx context.Context, eventID, userID string) (*model.Event, error) {
	user, err := s.user(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.mutate(ctx, eventID, s.now(), func(_ repository.EventTx, m *lifecycle.Machine) error {
		return m.DeclineOffer(user.ID)
	})
}

// LeaveWaitlist removes userID from an event's line.
func (s *EventService) LeaveWaitlist(ctx context.Context, eventID, userID string) (*model.Event, error) {
	user, err := s.user(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.mutate(ctx, eventID, s.now(), func(_ repository.EventTx, m *lifecycle.Machine) error {
		return m.LeaveWaitlist(user.ID)
	})
}

// ExpireWaitlistOffers lapses offers whose deadline passed at now and passes
// the seats on. It returns the events that changed.
func (s *EventService) ExpireWaitlistOffers(ctx context.Context, now time.Time) (changed []model.Event, err error) {
	ctx, span := s.start(ctx, "ExpireWaitlistOffers")
	defer func() { endSpan(span, err) }()

	ids, err := s.store.EventsWithLapsedOffers(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("find lapsed offers: %w", err)
	}
	var errs []error
	for _, id := range ids {
		var did bool
		ev, err := s.mutate(ctx, id, now, func(_ repository.EventTx, m *lifecycle.Machine) error {
			did = m.ExpireOffers()
			return nil
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("expire offers for %s: %w", id, err))
			continue
		}
		if did {
			changed = append(changed, *ev)
		}
	}
	span.SetAttributes(attribute.Int("events.changed", len(changed)))
	return changed, errors.Join(errs...)
}

// CompletePastEvents completes every open or full event whose end time is
// not after now.
func (s *EventService) CompletePastEvents(ctx context.Context, now time.Time) (done []model.Event, err error) {
	ctx, span := s.start(ctx, "CompletePastEvents")
	defer func() { endSpan(span, err) }()

	ids, err := s.store.EventsEndedBefore(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("find ended events: %w", err)
	}
	var errs []error
	for _, id := range ids {
		ev, err := s.mutate(ctx, id, now, func(_ repository.EventTx, m *lifecycle.Machine) error {
			return m.Complete()
		})
		switch {
		case err == nil:
			done = append(done, *ev)
		case errors.Is(err, model.ErrEventCancelled), errors.Is(err, model.ErrEventCompleted):
			// raced with a cancel or manual completion
		default:
			errs = append(errs, fmt.Errorf("complete %s: %w", id, err))
		}
	}
	span.SetAttributes(attribute.Int("events.completed", len(done)))
	return done, errors.Join(errs...)
}
