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

const notificationColumns = `id, type, user_id, related_user, related_event, message, is_read,
	dedupe_key, created_at, read_at`

func scanNotification(scan func(dest ...any) error) (*model.Notification, error) {
	var (
		n         model.Notification
		typ       string
		createdAt int64
		readAt    sql.NullInt64
	)
	if err := scan(&n.ID, &typ, &n.UserID, &n.RelatedUser, &n.RelatedEvent, &n.Message, &n.IsRead,
		&n.DedupeKey, &createdAt, &readAt); err != nil {
		return nil, err
	}
	n.Type = model.ActivityType(typ)
	n.CreatedAt = fromMillis(createdAt)
	n.ReadAt = fromNullMillis(readAt)
	return &n, nil
}

// AppendActivity stores a feed entry; a repeated dedupe key returns ErrConflict.
func (s *Store) AppendActivity(ctx context.Context, a model.Activity) error {
	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO activities (id, type, user_id, related_user, related_event, message, dedupe_key, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, string(a.Type), a.UserID, a.RelatedUser, a.RelatedEvent, a.Message, a.DedupeKey, toMillis(a.CreatedAt))
	if err != nil {
		if isConstraintError(err) {
			return repository.ErrConflict
		}
		return fmt.Errorf("insert activity: %w", err)
	}
	return nil
}

// AppendNotification stores a notification; a repeated dedupe key returns ErrConflict.
func (s *Store) AppendNotification(ctx context.Context, n model.Notification) error {
	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO notifications (`+notificationColumns+`)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		n.ID, string(n.Type), n.UserID, n.RelatedUser, n.RelatedEvent, n.Message, n.IsRead,
		n.DedupeKey, toMillis(n.CreatedAt), toNullMillis(n.ReadAt))
	if err != nil {
		if isConstraintError(err) {
			return repository.ErrConflict
		}
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

// ListActivities returns a user's feed newest-first.
func (s *Store) ListActivities(ctx context.Context, userID string, limit int) ([]model.Activity, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT id, type, user_id, related_user, related_event, message, dedupe_key, created_at
FROM activities
WHERE user_id = ?
ORDER BY created_at DESC, rowid DESC
LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list activities: %w", err)
	}
	defer rows.Close()

	var out []model.Activity
	for rows.Next() {
		var (
			a         model.Activity
			typ       string
			createdAt int64
		)
		if err := rows.Scan(&a.ID, &typ, &a.UserID, &a.RelatedUser, &a.RelatedEvent, &a.Message, &a.DedupeKey, &createdAt); err != nil {
			return nil, fmt.Errorf("scan activity: %w", err)
		}
		a.Type = model.ActivityType(typ)
		a.CreatedAt = fromMillis(createdAt)
		out = append(out, a)
	}
	return out, rows.Err()
}

// ListNotifications returns a user's inbox newest-first.
func (s *Store) ListNotifications(ctx context.Context, userID string, limit int) ([]model.Notification, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT `+notificationColumns+`
FROM notifications
WHERE user_id = ?
ORDER BY created_at DESC, rowid DESC
LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	var out []model.Notification
	for rows.Next() {
		n, err := scanNotification(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		out = append(out, *n)
	}
	return out, rows.Err()
}

// MarkNotificationRead flips is_read for a notification owned by userID.
// The first read time is kept.
func (s *Store) MarkNotificationRead(ctx context.Context, userID, id string, at time.Time) (*model.Notification, error) {
	res, err := s.sqlDB.ExecContext(ctx, `
UPDATE notifications SET is_read = 1, read_at = COALESCE(read_at, ?)
WHERE id = ? AND user_id = ?`, toMillis(at), id, userID)
	if err != nil {
		return nil, fmt.Errorf("mark notification read: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, repository.ErrNotFound
	}
	row := s.sqlDB.QueryRowContext(ctx, `SELECT `+notificationColumns+` FROM notifications WHERE id = ?`, id)
	n, err := scanNotification(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("get notification: %w", err)
	}
	return n, nil
}

// PendingOutbox returns undispatched outbox rows oldest first.
func (s *Store) PendingOutbox(ctx context.Context, limit, maxAttempts int) ([]model.OutboxEvent, error) {
	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT id, event_id, topic, payload, attempts, last_error, created_at
FROM outbox
WHERE dispatched_at IS NULL AND attempts < ?
ORDER BY created_at, rowid
LIMIT ?`, maxAttempts, limit)
	if err != nil {
		return nil, fmt.Errorf("query outbox: %w", err)
	}
	defer rows.Close()

	var out []model.OutboxEvent
	for rows.Next() {
		var (
			e         model.OutboxEvent
			topic     string
			payload   string
			createdAt int64
		)
		if err := rows.Scan(&e.ID, &e.EventID, &topic, &payload, &e.Attempts, &e.LastError, &createdAt); err != nil {
			return nil, fmt.Errorf("scan outbox event: %w", err)
		}
		if err := json.Unmarshal([]byte(payload), &e.Payload); err != nil {
			return nil, fmt.Errorf("decode outbox payload %s: %w", e.ID, err)
		}
		e.Topic = model.Topic(topic)
		e.CreatedAt = fromMillis(createdAt)
		out = append(out, e)
	}
	return out, rows.Err()
}

// MarkOutboxDispatched records a successful relay.
func (s *Store) MarkOutboxDispatched(ctx context.Context, id string, at time.Time) error {
	_, err := s.sqlDB.ExecContext(ctx,
		`UPDATE outbox SET dispatched_at = ?, attempts = attempts + 1 WHERE id = ? AND dispatched_at IS NULL`,
		toMillis(at), id)
	if err != nil {
		return fmt.Errorf("mark outbox dispatched: %w", err)
	}
	return nil
}

// MarkOutboxFailed counts a failed relay attempt.
func (s *Store) MarkOutboxFailed(ctx context.Context, id string, reason string) error {
	_, err := s.sqlDB.ExecContext(ctx,
		`UPDATE outbox SET attempts = attempts + 1, last_error = ? WHERE id = ?`, reason, id)
	if err != nil {
		return fmt.Errorf("mark outbox failed: %w", err)
	}
	return nil
}
