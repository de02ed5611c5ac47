package service

import (
	"context"
	"fmt"

	"github.com/Shivanand-hulikatti/events-activities/internal/model"
)

const defaultFeedLimit = 50

func feedLimit(limit int) int {
	if limit <= 0 || limit > 200 {
		return defaultFeedLimit
	}
	return limit
}

// ListActivities returns userID's activity feed, newest first.
func (s *EventService) ListActivities(ctx context.Context, userID string, limit int) ([]model.Activity, error) {
	if userID == "" {
		return nil, model.ErrUnauthenticated
	}
	out, err := s.store.ListActivities(ctx, userID, feedLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("list activities: %w", err)
	}
	return out, nil
}

// ListNotifications returns userID's inbox, newest first.
func (s *EventService) ListNotifications(ctx context.Context, userID string, limit int) ([]model.Notification, error) {
	if userID == "" {
		return nil, model.ErrUnauthenticated
	}
	out, err := s.store.ListNotifications(ctx, userID, feedLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	return out, nil
}

// MarkNotificationRead flags one of userID's notifications as read. Marking
// twice keeps the first read time.
func (s *EventService) MarkNotificationRead(ctx context.Context, userID, notificationID string) (*model.Notification, error) {
	if userID == "" {
		return nil, model.ErrUnauthenticated
	}
	n, err := s.store.MarkNotificationRead(ctx, userID, notificationID, s.now())
	if err != nil {
		return nil, storeErr(err, model.ErrNotificationNotFound)
	}
	return n, nil
}
