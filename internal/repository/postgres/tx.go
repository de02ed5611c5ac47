package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/Shivanand-hulikatti/events-activities/internal/model"
	"github.com/Shivanand-hulikatti/events-activities/internal/repository"
)

type eventTx struct {
	tx      pgx.Tx
	eventID string
}

func (t *eventTx) Event(ctx context.Context) (*model.Event, error) {
	return getEvent(ctx, t.tx, t.eventID, true)
}

func (t *eventTx) Waitlist(ctx context.Context) ([]model.WaitlistEntry, error) {
	return listWaitlist(ctx, t.tx, t.eventID)
}

func (t *eventTx) SaveEvent(ctx context.Context, ev *model.Event) error {
	_, err := t.tx.Exec(ctx, `
UPDATE events
SET status = $1, max_participants = $2, current_participants = $3, waitlist_seq = $4,
    updated_at = $5, cancelled_at = $6
WHERE id = $7`,
		string(ev.Status), ev.MaxParticipants, ev.CurrentParticipants, ev.WaitlistSeq,
		ev.UpdatedAt, ev.CancelledAt, t.eventID,
	)
	if err != nil {
		return fmt.Errorf("update event: %w", err)
	}
	return nil
}

func (t *eventTx) AddParticipant(ctx context.Context, userID string, at time.Time) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO event_participants (event_id, user_id, joined_at) VALUES ($1, $2, $3)`,
		t.eventID, userID, at)
	if err != nil {
		if isUniqueViolation(err) {
			return repository.ErrConflict
		}
		return fmt.Errorf("insert participant: %w", err)
	}
	return nil
}

func (t *eventTx) RemoveParticipant(ctx context.Context, userID string) error {
	tag, err := t.tx.Exec(ctx,
		`DELETE FROM event_participants WHERE event_id = $1 AND user_id = $2`, t.eventID, userID)
	if err != nil {
		return fmt.Errorf("delete participant: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (t *eventTx) PutWaitlistEntry(ctx context.Context, e model.WaitlistEntry) error {
	_, err := t.tx.Exec(ctx, `
INSERT INTO waitlist_entries (`+waitlistColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (id) DO UPDATE SET
    seq = EXCLUDED.seq,
    status = EXCLUDED.status,
    offer_expires_at = EXCLUDED.offer_expires_at,
    updated_at = EXCLUDED.updated_at`,
		e.ID, t.eventID, e.UserID, e.Seq, string(e.Status), e.OfferExpiresAt, e.CreatedAt, e.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return repository.ErrConflict
		}
		return fmt.Errorf("upsert waitlist entry: %w", err)
	}
	return nil
}

func (t *eventTx) GetPayment(ctx context.Context, id string) (*model.Payment, error) {
	p, err := getPayment(ctx, t.tx, id)
	if err != nil {
		return nil, err
	}
	if p.EventID != t.eventID {
		return nil, repository.ErrNotFound
	}
	return p, nil
}

func (t *eventTx) OpenPayment(ctx context.Context, userID string) (*model.Payment, error) {
	p, err := scanPayment(t.tx.QueryRow(ctx, `
SELECT `+paymentColumns+` FROM payments
WHERE event_id = $1 AND user_id = $2 AND status = 'pending'
ORDER BY created_at DESC, id DESC
LIMIT 1`, t.eventID, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("find open payment: %w", err)
	}
	return p, nil
}

func (t *eventTx) SeatPayment(ctx context.Context, userID string) (*model.Payment, error) {
	p, err := scanPayment(t.tx.QueryRow(ctx, `
SELECT `+paymentColumns+` FROM payments
WHERE event_id = $1 AND user_id = $2 AND status = 'completed' AND applied_at IS NOT NULL
ORDER BY applied_at DESC, created_at DESC, id DESC
LIMIT 1`, t.eventID, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("find seat payment: %w", err)
	}
	return p, nil
}

func (t *eventTx) PutPayment(ctx context.Context, p *model.Payment) error {
	_, err := t.tx.Exec(ctx, `
INSERT INTO payments (`+paymentColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
ON CONFLICT (id) DO UPDATE SET
    status = EXCLUDED.status,
    redirect_url = EXCLUDED.redirect_url,
    processor_ref = EXCLUDED.processor_ref,
    applied_at = EXCLUDED.applied_at,
    updated_at = EXCLUDED.updated_at`,
		p.ID, t.eventID, p.UserID, p.Amount, p.Currency, string(p.Status), p.RedirectURL,
		p.ProcessorRef, p.AppliedAt, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert payment: %w", err)
	}
	return nil
}

func (t *eventTx) AppendOutbox(ctx context.Context, events []model.OutboxEvent) error {
	if len(events) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, e := range events {
		payload, err := json.Marshal(e.Payload)
		if err != nil {
			return fmt.Errorf("encode outbox payload: %w", err)
		}
		batch.Queue(`
INSERT INTO outbox (id, event_id, topic, payload, created_at)
VALUES ($1, $2, $3, $4, $5)`, e.ID, e.EventID, string(e.Topic), payload, e.CreatedAt)
	}
	if err := t.tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert outbox events: %w", err)
	}
	return nil
}
