package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Shivanand-hulikatti/events-activities/internal/model"
	"github.com/Shivanand-hulikatti/events-activities/internal/repository"
)

const eventColumns = `id, host_id, title, description, location, starts_at, ends_at,
	min_participants, max_participants, current_participants, joining_fee, currency,
	status, waitlist_enabled, waitlist_seq, created_at, updated_at, cancelled_at`

const waitlistColumns = `id, event_id, user_id, seq, status, offer_expires_at, created_at, updated_at`

const paymentColumns = `id, event_id, user_id, amount, currency, status, redirect_url,
	processor_ref, applied_at, created_at, updated_at`

func scanEvent(scan func(dest ...any) error) (*model.Event, error) {
	var (
		ev                             model.Event
		status                         string
		startsAt, createdAt, updatedAt int64
		endsAt, cancelledAt            sql.NullInt64
	)
	if err := scan(
		&ev.ID, &ev.HostID, &ev.Title, &ev.Description, &ev.Location, &startsAt, &endsAt,
		&ev.MinParticipants, &ev.MaxParticipants, &ev.CurrentParticipants, &ev.JoiningFee, &ev.Currency,
		&status, &ev.WaitlistEnabled, &ev.WaitlistSeq, &createdAt, &updatedAt, &cancelledAt,
	); err != nil {
		return nil, err
	}
	ev.Status = model.EventStatus(status)
	ev.StartsAt = fromMillis(startsAt)
	ev.EndsAt = fromNullMillis(endsAt)
	ev.CreatedAt = fromMillis(createdAt)
	ev.UpdatedAt = fromMillis(updatedAt)
	ev.CancelledAt = fromNullMillis(cancelledAt)
	ev.Participants = []string{}
	return &ev, nil
}

func scanWaitlistEntry(scan func(dest ...any) error) (model.WaitlistEntry, error) {
	var (
		e                    model.WaitlistEntry
		status               string
		createdAt, updatedAt int64
		expiresAt            sql.NullInt64
	)
	if err := scan(&e.ID, &e.EventID, &e.UserID, &e.Seq, &status, &expiresAt, &createdAt, &updatedAt); err != nil {
		return model.WaitlistEntry{}, err
	}
	e.Status = model.WaitlistStatus(status)
	e.OfferExpiresAt = fromNullMillis(expiresAt)
	e.CreatedAt = fromMillis(createdAt)
	e.UpdatedAt = fromMillis(updatedAt)
	return e, nil
}

func scanPayment(scan func(dest ...any) error) (*model.Payment, error) {
	var (
		p                    model.Payment
		status               string
		createdAt, updatedAt int64
		appliedAt            sql.NullInt64
	)
	if err := scan(
		&p.ID, &p.EventID, &p.UserID, &p.Amount, &p.Currency, &status, &p.RedirectURL,
		&p.ProcessorRef, &appliedAt, &createdAt, &updatedAt,
	); err != nil {
		return nil, err
	}
	p.Status = model.PaymentStatus(status)
	p.AppliedAt = fromNullMillis(appliedAt)
	p.CreatedAt = fromMillis(createdAt)
	p.UpdatedAt = fromMillis(updatedAt)
	return &p, nil
}

func loadParticipants(ctx context.Context, q queryer, ev *model.Event) error {
	rows, err := q.QueryContext(ctx,
		`SELECT user_id FROM event_participants WHERE event_id = ? ORDER BY joined_at, rowid`, ev.ID)
	if err != nil {
		return fmt.Errorf("query participants: %w", err)
	}
	defer rows.Close()

	ev.Participants = ev.Participants[:0]
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return fmt.Errorf("scan participant: %w", err)
		}
		ev.Participants = append(ev.Participants, id)
	}
	return rows.Err()
}

func getEvent(ctx context.Context, q queryer, id string) (*model.Event, error) {
	row := q.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM events WHERE id = ?`, id)
	ev, err := scanEvent(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("get event: %w", err)
	}
	if err := loadParticipants(ctx, q, ev); err != nil {
		return nil, err
	}
	return ev, nil
}

func listWaitlist(ctx context.Context, q queryer, eventID string) ([]model.WaitlistEntry, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT `+waitlistColumns+` FROM waitlist_entries WHERE event_id = ? ORDER BY seq`, eventID)
	if err != nil {
		return nil, fmt.Errorf("query waitlist: %w", err)
	}
	defer rows.Close()

	var entries []model.WaitlistEntry
	for rows.Next() {
		e, err := scanWaitlistEntry(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan waitlist entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func getPayment(ctx context.Context, q queryer, id string) (*model.Payment, error) {
	row := q.QueryRowContext(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id = ?`, id)
	p, err := scanPayment(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("get payment: %w", err)
	}
	return p, nil
}

// CreateEvent inserts a new event. Participants are not written here.
func (s *Store) CreateEvent(ctx context.Context, ev *model.Event) error {
	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO events (`+eventColumns+`)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.ID, ev.HostID, ev.Title, ev.Description, ev.Location, toMillis(ev.StartsAt), toNullMillis(ev.EndsAt),
		ev.MinParticipants, ev.MaxParticipants, ev.CurrentParticipants, ev.JoiningFee, ev.Currency,
		string(ev.Status), ev.WaitlistEnabled, ev.WaitlistSeq, toMillis(ev.CreatedAt), toMillis(ev.UpdatedAt),
		toNullMillis(ev.CancelledAt),
	)
	if err != nil {
		if isConstraintError(err) {
			return repository.ErrConflict
		}
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// GetEvent fetches an event with its participants.
func (s *Store) GetEvent(ctx context.Context, id string) (*model.Event, error) {
	return getEvent(ctx, s.sqlDB, id)
}

// ListEvents returns events ordered by start time.
func (s *Store) ListEvents(ctx context.Context, filter model.ListEventsFilter) ([]model.Event, error) {
	var (
		where []string
		args  []any
	)
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.HostID != "" {
		where = append(where, "host_id = ?")
		args = append(args, filter.HostID)
	}
	query := `SELECT ` + eventColumns + ` FROM events`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY starts_at, id LIMIT ?`
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit)

	rows, err := s.sqlDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	var events []model.Event
	for rows.Next() {
		ev, err := scanEvent(rows.Scan)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, *ev)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	// A single connection means participants must be read after the cursor is closed.
	for i := range events {
		if err := loadParticipants(ctx, s.sqlDB, &events[i]); err != nil {
			return nil, err
		}
	}
	return events, nil
}

// ListWaitlist returns every entry of an event, terminal ones included, in seq order.
func (s *Store) ListWaitlist(ctx context.Context, eventID string) ([]model.WaitlistEntry, error) {
	return listWaitlist(ctx, s.sqlDB, eventID)
}

// EventsWithLapsedOffers lists open or full events holding an offer whose
// deadline is not after now.
func (s *Store) EventsWithLapsedOffers(ctx context.Context, now time.Time) ([]string, error) {
	return s.eventIDs(ctx, `
SELECT DISTINCT w.event_id FROM waitlist_entries w
JOIN events e ON e.id = w.event_id
WHERE w.status = 'offered' AND w.offer_expires_at <= ?
  AND e.status IN ('open', 'full')
ORDER BY w.event_id`, toMillis(now))
}

// EventsEndedBefore lists open or full events whose end time is not after now.
func (s *Store) EventsEndedBefore(ctx context.Context, now time.Time) ([]string, error) {
	return s.eventIDs(ctx, `
SELECT id FROM events
WHERE status IN ('open', 'full') AND COALESCE(ends_at, starts_at) <= ?
ORDER BY id`, toMillis(now))
}

func (s *Store) eventIDs(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := s.sqlDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query event ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan event id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// GetPayment reads one payment.
func (s *Store) GetPayment(ctx context.Context, id string) (*model.Payment, error) {
	return getPayment(ctx, s.sqlDB, id)
}

// CreateUser inserts a directory entry. Duplicate emails return ErrConflict.
func (s *Store) CreateUser(ctx context.Context, u *model.User) error {
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO users (id, name, email, role, created_at) VALUES (?, ?, ?, ?, ?)`,
		u.ID, u.Name, u.Email, string(u.Role), toMillis(u.CreatedAt))
	if err != nil {
		if isConstraintError(err) {
			return repository.ErrConflict
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// GetUser fetches a directory entry.
func (s *Store) GetUser(ctx context.Context, id string) (*model.User, error) {
	var (
		u         model.User
		role      string
		createdAt int64
	)
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT id, name, email, role, created_at FROM users WHERE id = ?`, id,
	).Scan(&u.ID, &u.Name, &u.Email, &role, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	u.Role = model.Role(role)
	u.CreatedAt = fromMillis(createdAt)
	return &u, nil
}
