package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Shivanand-hulikatti/events-activities/internal/model"
	"github.com/Shivanand-hulikatti/events-activities/internal/repository"
)

type eventTx struct {
	tx      *sql.Tx
	eventID string
}

func (t *eventTx) Event(ctx context.Context) (*model.Event, error) {
	return getEvent(ctx, t.tx, t.eventID)
}

func (t *eventTx) Waitlist(ctx context.Context) ([]model.WaitlistEntry, error) {
	return listWaitlist(ctx, t.tx, t.eventID)
}

func (t *eventTx) SaveEvent(ctx context.Context, ev *model.Event) error {
	_, err := t.tx.ExecContext(ctx, `
UPDATE events
SET status = ?, max_participants = ?, current_participants = ?, waitlist_seq = ?,
    updated_at = ?, cancelled_at = ?
WHERE id = ?`,
		string(ev.Status), ev.MaxParticipants, ev.CurrentParticipants, ev.WaitlistSeq,
		toMillis(ev.UpdatedAt), toNullMillis(ev.CancelledAt), t.eventID,
	)
	if err != nil {
		return fmt.Errorf("update event: %w", err)
	}
	return nil
}

func (t *eventTx) AddParticipant(ctx context.Context, userID string, at time.Time) error {
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO event_participants (event_id, user_id, joined_at) VALUES (?, ?, ?)`,
		t.eventID, userID, toMillis(at))
	if err != nil {
		if isConstraintError(err) {
			return repository.ErrConflict
		}
		return fmt.Errorf("insert participant: %w", err)
	}
	return nil
}

func (t *eventTx) RemoveParticipant(ctx context.Context, userID string) error {
	res, err := t.tx.ExecContext(ctx,
		`DELETE FROM event_participants WHERE event_id = ? AND user_id = ?`, t.eventID, userID)
	if err != nil {
		return fmt.Errorf("delete participant: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (t *eventTx) PutWaitlistEntry(ctx context.Context, e model.WaitlistEntry) error {
	_, err := t.tx.ExecContext(ctx, `
INSERT INTO waitlist_entries (`+waitlistColumns+`)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET
    seq = excluded.seq,
    status = excluded.status,
    offer_expires_at = excluded.offer_expires_at,
    updated_at = excluded.updated_at`,
		e.ID, t.eventID, e.UserID, e.Seq, string(e.Status), toNullMillis(e.OfferExpiresAt),
		toMillis(e.CreatedAt), toMillis(e.UpdatedAt),
	)
	if err != nil {
		if isConstraintError(err) {
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
	row := t.tx.QueryRowContext(ctx, `
SELECT `+paymentColumns+` FROM payments
WHERE event_id = ? AND user_id = ? AND status = 'pending'
ORDER BY created_at DESC, rowid DESC
LIMIT 1`, t.eventID, userID)
	p, err := scanPayment(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("find open payment: %w", err)
	}
	return p, nil
}

func (t *eventTx) SeatPayment(ctx context.Context, userID string) (*model.Payment, error) {
	row := t.tx.QueryRowContext(ctx, `
SELECT `+paymentColumns+` FROM payments
WHERE event_id = ? AND user_id = ? AND status = 'completed' AND applied_at IS NOT NULL
ORDER BY applied_at DESC, created_at DESC, rowid DESC
LIMIT 1`, t.eventID, userID)
	p, err := scanPayment(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("find seat payment: %w", err)
	}
	return p, nil
}

func (t *eventTx) PutPayment(ctx context.Context, p *model.Payment) error {
	_, err := t.tx.ExecContext(ctx, `
INSERT INTO payments (`+paymentColumns+`)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET
    status = excluded.status,
    redirect_url = excluded.redirect_url,
    processor_ref = excluded.processor_ref,
    applied_at = excluded.applied_at,
    updated_at = excluded.updated_at`,
		p.ID, t.eventID, p.UserID, p.Amount, p.Currency, string(p.Status), p.RedirectURL,
		p.ProcessorRef, toNullMillis(p.AppliedAt), toMillis(p.CreatedAt), toMillis(p.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("upsert payment: %w", err)
	}
	return nil
}

func (t *eventTx) AppendOutbox(ctx context.Context, events []model.OutboxEvent) error {
	for _, e := range events {
		payload, err := json.Marshal(e.Payload)
		if err != nil {
			return fmt.Errorf("encode outbox payload: %w", err)
		}
		if _, err := t.tx.ExecContext(ctx, `
INSERT INTO outbox (id, event_id, topic, payload, attempts, last_error, created_at)
VALUES (?, ?, ?, ?, 0, '', ?)`,
			e.ID, e.EventID, string(e.Topic), string(payload), toMillis(e.CreatedAt),
		); err != nil {
			return fmt.Errorf("insert outbox event: %w", err)
		}
	}
	return nil
}
