package service

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"

	"github.com/Shivanand-hulikatti/events-activities/internal/lifecycle"
	"github.com/Shivanand-hulikatti/events-activities/internal/model"
	"github.com/Shivanand-hulikatti/events-activities/internal/payment"
	"github.com/Shivanand-hulikatti/events-activities/internal/repository"
)

// GetPayment returns a payment visible to userID: its payer, the event
// host or an admin.
func (s *EventService) GetPayment(ctx context.Context, paymentID, userID string) (*model.Payment, error) {
	viewer, err := s.user(ctx, userID)
	if err != nil {
		return nil, err
	}
	p, err := s.store.GetPayment(ctx, paymentID)
	if err != nil {
		return nil, storeErr(err, model.ErrPaymentNotFound)
	}
	if p.UserID == viewer.ID || viewer.IsAdmin() {
		return p, nil
	}
	ev, err := s.GetEvent(ctx, p.EventID)
	if err != nil {
		return nil, err
	}
	if ev.HostID != viewer.ID {
		return nil, model.ErrPaymentNotFound
	}
	return p, nil
}

func (s *EventService) paymentEvent(ctx context.Context, paymentID string) (string, error) {
	p, err := s.store.GetPayment(ctx, paymentID)
	if err != nil {
		return "", storeErr(err, model.ErrPaymentNotFound)
	}
	return p.EventID, nil
}

// lockedPayment loads a payment inside the event transaction.
func lockedPayment(ctx context.Context, tx repository.EventTx, id string) (*model.Payment, error) {
	p, err := tx.GetPayment(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, model.ErrPaymentNotFound
	}
	return p, err
}

// ConfirmPayment settles a payment and seats its payer. Repeated calls for
// an applied payment are no-ops. When the seat is gone by the time the money
// arrives, the payment is still recorded as completed and a conflict is
// returned; such payments need a refund.
func (s *EventService) ConfirmPayment(ctx context.Context, paymentID string) (ev *model.Event, err error) {
	ctx, span := s.start(ctx, "ConfirmPayment", attribute.String("payment.id", paymentID))
	defer func() { endSpan(span, err) }()

	eventID, err := s.paymentEvent(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	var admitErr error
	var p *model.Payment
	ev, err = s.mutate(ctx, eventID, now, func(tx repository.EventTx, m *lifecycle.Machine) error {
		var lerr error
		if p, lerr = lockedPayment(ctx, tx, paymentID); lerr != nil {
			return lerr
		}
		switch p.Status {
		case model.PaymentFailed, model.PaymentRefunded:
			return model.ErrPaymentState.WithMessage("payment is " + string(p.Status))
		}
		if p.Applied() {
			return nil
		}
		p.Status = model.PaymentCompleted
		p.UpdatedAt = now
		if m.Ledger.Contains(p.UserID) {
			p.AppliedAt = &now
			return tx.PutPayment(ctx, p)
		}
		if admitErr = m.Admit(p.UserID); admitErr == nil {
			p.AppliedAt = &now
		}
		return tx.PutPayment(ctx, p)
	})
	if err != nil {
		return nil, err
	}
	if admitErr != nil {
		s.logger.Warn("payment completed without a seat, refund required",
			"payment_id", paymentID, "event_id", eventID, "user_id", p.UserID, "error", admitErr)
		return nil, admitErr
	}
	s.logger.Info("payment confirmed", "payment_id", paymentID, "event_id", eventID, "user_id", p.UserID)
	return ev, nil
}

// RefundPayment records a refund. When the payment backs the payer's current
// seat on a live event, the seat is given back.
func (s *EventService) RefundPayment(ctx context.Context, paymentID string) (ev *model.Event, err error) {
	ctx, span := s.start(ctx, "RefundPayment", attribute.String("payment.id", paymentID))
	defer func() { endSpan(span, err) }()

	eventID, err := s.paymentEvent(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	return s.mutate(ctx, eventID, now, func(tx repository.EventTx, m *lifecycle.Machine) error {
		p, err := lockedPayment(ctx, tx, paymentID)
		if err != nil {
			return err
		}
		switch p.Status {
		case model.PaymentRefunded:
			return nil
		case model.PaymentPending, model.PaymentFailed:
			return model.ErrPaymentState.WithMessage("only completed payments can be refunded")
		}
		if p.Applied() && !m.Event.IsTerminal() && m.Ledger.Contains(p.UserID) {
			// an older payment whose seat was given up and bought again
			// no longer backs the seat
			seat, err := tx.SeatPayment(ctx, p.UserID)
			if err != nil {
				return err
			}
			if seat.ID == p.ID {
				if err := m.Leave(p.UserID); err != nil {
					return err
				}
			}
		}
		p.Status = model.PaymentRefunded
		p.UpdatedAt = now
		if err := tx.PutPayment(ctx, p); err != nil {
			return err
		}
		m.Emit(model.TopicPaymentRefunded, model.OutboxPayload{
			UserID:    p.UserID,
			PaymentID: p.ID,
			Amount:    p.Amount,
			Currency:  p.Currency,
		})
		return nil
	})
}

// FailPayment closes a pending payment that the processor rejected or let expire.
func (s *EventService) FailPayment(ctx context.Context, paymentID string) (*model.Event, error) {
	eventID, err := s.paymentEvent(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	return s.mutate(ctx, eventID, now, func(tx repository.EventTx, m *lifecycle.Machine) error {
		p, err := lockedPayment(ctx, tx, paymentID)
		if err != nil {
			return err
		}
		switch p.Status {
		case model.PaymentFailed:
			return nil
		case model.PaymentPending:
		default:
			return model.ErrPaymentState.WithMessage("only pending payments can fail")
		}
		p.Status = model.PaymentFailed
		p.UpdatedAt = now
		return tx.PutPayment(ctx, p)
	})
}

// HandlePaymentNotification verifies and applies a processor webhook.
// Notifications for unknown payments are acknowledged and dropped.
func (s *EventService) HandlePaymentNotification(ctx context.Context, n payment.Notification) (err error) {
	ctx, span := s.start(ctx, "HandlePaymentNotification",
		attribute.String("payment.id", n.OrderID), attribute.String("payment.status", n.TransactionStatus))
	defer func() { endSpan(span, err) }()

	if !n.Verify(s.webhookKey) {
		return model.ErrInvalidSignature
	}
	action := n.Classify()
	s.logger.Info("payment notification", "payment_id", n.OrderID, "status", n.TransactionStatus, "action", action.String())

	switch action {
	case payment.ActionConfirm:
		_, err = s.ConfirmPayment(ctx, n.OrderID)
	case payment.ActionRefund:
		_, err = s.RefundPayment(ctx, n.OrderID)
	case payment.ActionFail:
		_, err = s.FailPayment(ctx, n.OrderID)
	default:
		return nil
	}

	switch {
	case err == nil:
		return nil
	case errors.Is(err, model.ErrPaymentNotFound):
		s.logger.Warn("notification for unknown payment", "payment_id", n.OrderID)
		return nil
	case model.KindOf(err) == model.KindStateConflict:
		// not retryable
		s.logger.Warn("payment notification not applied", "payment_id", n.OrderID, "error", err)
		return nil
	}
	return err
}
