// Package postgres implements the repository on PostgreSQL using pgx directly
// (no ORM). Per-event serialisation comes from SELECT … FOR UPDATE on the
// event row.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Shivanand-hulikatti/events-activities/internal/model"
	"github.com/Shivanand-hulikatti/events-activities/internal/repository"
)

// Store handles persistence for events, participation and feeds.
type Store struct {
	db *pgxpool.Pool
}

var _ repository.Store = (*Store)(nil)

// New constructs a Store. The caller owns the pool's schema; see database.Migrate.
func New(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func utc(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

const eventColumns = `id, host_id, title, description, location, starts_at, ends_at,
	min_participants, max_participants, current_participants, joining_fee, currency,
	status, waitlist_enabled, waitlist_seq, created_at, updated_at, cancelled_at`

const waitlistColumns = `id, event_id, user_id, seq, status, offer_expires_at, created_at, updated_at`

const paymentColumns = `id, event_id, user_id, amount, currency, status, redirect_url,
	processor_ref, applied_at, created_at, updated_at`

func scanEvent(row pgx.Row) (*model.Event, error) {
	var (
		ev     model.Event
		status string
	)
	if err := row.Scan(
		&ev.ID, &ev.HostID, &ev.Title, &ev.Description, &ev.Location, &ev.StartsAt, &ev.EndsAt,
		&ev.MinParticipants, &ev.MaxParticipants, &ev.CurrentParticipants, &ev.JoiningFee, &ev.Currency,
		&status, &ev.WaitlistEnabled, &ev.WaitlistSeq, &ev.CreatedAt, &ev.UpdatedAt, &ev.CancelledAt,
	); err != nil {
		return nil, err
	}
	ev.Status = model.EventStatus(status)
	ev.StartsAt = ev.StartsAt.UTC()
	ev.EndsAt = utc(ev.EndsAt)
	ev.CreatedAt = ev.CreatedAt.UTC()
	ev.UpdatedAt = ev.UpdatedAt.UTC()
	ev.CancelledAt = utc(ev.CancelledAt)
	ev.Participants = []string{}
	return &ev, nil
}

func scanWaitlistEntry(row pgx.Row) (model.WaitlistEntry, error) {
	var (
		e      model.WaitlistEntry
		status string
	)
	if err := row.Scan(&e.ID, &e.EventID, &e.UserID, &e.Seq, &status, &e.OfferExpiresAt, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return model.WaitlistEntry{}, err
	}
	e.Status = model.WaitlistStatus(status)
	e.OfferExpiresAt = utc(e.OfferExpiresAt)
	e.CreatedAt = e.CreatedAt.UTC()
	e.UpdatedAt = e.UpdatedAt.UTC()
	return e, nil
}

func scanPayment(row pgx.Row) (*model.Payment, error) {
	var (
		p      model.Payment
		status string
	)
	if err := row.Scan(
		&p.ID, &p.EventID, &p.UserID, &p.Amount, &p.Currency, &status, &p.RedirectURL,
		&p.ProcessorRef, &p.AppliedAt, &p.CreatedAt, &p.UpdatedAt,
	); err != nil {
		return nil, err
	}
	p.Status = model.PaymentStatus(status)
	p.AppliedAt = utc(p.AppliedAt)
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	return &p, nil
}

func loadParticipants(ctx context.Context, q querier, ev *model.Event) error {
	rows, err := q.Query(ctx,
		`SELECT user_id FROM event_participants WHERE event_id = $1 ORDER BY joined_at, user_id`, ev.ID)
	if err != nil {
		return fmt.Errorf("query participants: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return fmt.Errorf("scan participants: %w", err)
	}
	ev.Participants = append(ev.Participants[:0], ids...)
	return nil
}

func getEvent(ctx context.Context, q querier, id string, lock bool) (*model.Event, error) {
	query := `SELECT ` + eventColumns + ` FROM events WHERE id = $1`
	if lock {
		query += ` FOR UPDATE`
	}
	ev, err := scanEvent(q.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("get event: %w", err)
	}
	if err := loadParticipants(ctx, q, ev); err != nil {
		return nil, err
	}
	return ev, nil
}

func listWaitlist(ctx context.Context, q querier, eventID string) ([]model.WaitlistEntry, error) {
	rows, err := q.Query(ctx,
		`SELECT `+waitlistColumns+` FROM waitlist_entries WHERE event_id = $1 ORDER BY seq`, eventID)
	if err != nil {
		return nil, fmt.Errorf("query waitlist: %w", err)
	}
	defer rows.Close()

	var entries []model.WaitlistEntry
	for rows.Next() {
		e, err := scanWaitlistEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan waitlist entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func getPayment(ctx context.Context, q querier, id string) (*model.Payment, error) {
	p, err := scanPayment(q.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("get payment: %w", err)
	}
	return p, nil
}

// Ping checks the pool can reach the server.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close releases the pool.
func (s *Store) Close() error {
	s.db.Close()
	return nil
}

// WithEventLock runs fn inside a transaction holding the event row lock.
//
// Two joins racing for the last seat would otherwise both read the same
// counter snapshot and both write it back incremented. SELECT … FOR UPDATE
// makes the second transaction block on the row until the first commits or
// rolls back, so every read-check-write on one event runs serially.
func (s *Store) WithEventLock(ctx context.Context, eventID string, fn func(tx repository.EventTx) error) (err error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	var locked string
	err = tx.QueryRow(ctx, `SELECT id FROM events WHERE id = $1 FOR UPDATE`, eventID).Scan(&locked)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return repository.ErrNotFound
		}
		return fmt.Errorf("lock event row: %w", err)
	}

	if err = fn(&eventTx{tx: tx, eventID: eventID}); err != nil {
		return err
	}
	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// CreateEvent inserts a new event.
func (s *Store) CreateEvent(ctx context.Context, ev *model.Event) error {
	_, err := s.db.Exec(ctx, `
INSERT INTO events (`+eventColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`,
		ev.ID, ev.HostID, ev.Title, ev.Description, ev.Location, ev.StartsAt, ev.EndsAt,
		ev.MinParticipants, ev.MaxParticipants, ev.CurrentParticipants, ev.JoiningFee, ev.Currency,
		string(ev.Status), ev.WaitlistEnabled, ev.WaitlistSeq, ev.CreatedAt, ev.UpdatedAt, ev.CancelledAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return repository.ErrConflict
		}
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// GetEvent returns a single event with participants or ErrNotFound.
func (s *Store) GetEvent(ctx context.Context, id string) (*model.Event, error) {
	return getEvent(ctx, s.db, id, false)
}

// ListEvents returns events ordered by start time.
func (s *Store) ListEvents(ctx context.Context, filter model.ListEventsFilter) ([]model.Event, error) {
	var (
		where []string
		args  []any
	)
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.HostID != "" {
		args = append(args, filter.HostID)
		where = append(where, fmt.Sprintf("host_id = $%d", len(args)))
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit)

	query := `SELECT ` + eventColumns + ` FROM events`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += fmt.Sprintf(` ORDER BY starts_at, id LIMIT $%d`, len(args))

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var events []model.Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, *ev)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()

	for i := range events {
		if err := loadParticipants(ctx, s.db, &events[i]); err != nil {
			return nil, err
		}
	}
	return events, nil
}

// ListWaitlist returns every entry of an event in seq order.
func (s *Store) ListWaitlist(ctx context.Context, eventID string) ([]model.WaitlistEntry, error) {
	return listWaitlist(ctx, s.db, eventID)
}

// EventsWithLapsedOffers lists open or full events holding an offer whose
// deadline is not after now.
func (s *Store) EventsWithLapsedOffers(ctx context.Context, now time.Time) ([]string, error) {
	return s.eventIDs(ctx, `
SELECT DISTINCT w.event_id FROM waitlist_entries w
JOIN events e ON e.id = w.event_id
WHERE w.status = 'offered' AND w.offer_expires_at <= $1
  AND e.status IN ('open', 'full')
ORDER BY w.event_id`, now)
}

// EventsEndedBefore lists open or full events whose end time is not after now.
func (s *Store) EventsEndedBefore(ctx context.Context, now time.Time) ([]string, error) {
	return s.eventIDs(ctx, `
SELECT id FROM events
WHERE status IN ('open', 'full') AND COALESCE(ends_at, starts_at) <= $1
ORDER BY id`, now)
}

func (s *Store) eventIDs(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query event ids: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scan event ids: %w", err)
	}
	return ids, nil
}

// GetPayment reads one payment.
func (s *Store) GetPayment(ctx context.Context, id string) (*model.Payment, error) {
	return getPayment(ctx, s.db, id)
}

// CreateUser inserts a directory entry. Duplicate emails return ErrConflict.
func (s *Store) CreateUser(ctx context.Context, u *model.User) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO users (id, name, email, role, created_at) VALUES ($1, $2, $3, $4, $5)`,
		u.ID, u.Name, u.Email, string(u.Role), u.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return repository.ErrConflict
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// GetUser fetches a directory entry or ErrNotFound.
func (s *Store) GetUser(ctx context.Context, id string) (*model.User, error) {
	var (
		u    model.User
		role string
	)
	err := s.db.QueryRow(ctx,
		`SELECT id, name, email, role, created_at FROM users WHERE id = $1`, id,
	).Scan(&u.ID, &u.Name, &u.Email, &role, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	u.Role = model.Role(role)
	u.CreatedAt = u.CreatedAt.UTC()
	return &u, nil
}
