package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/Shivanand-hulikatti/events-activities/internal/model"
	"github.com/Shivanand-hulikatti/events-activities/internal/repository"
)

func openTempStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "events.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Fatalf("close store: %v", err)
		}
	})
	return store
}

func seedEvent(t *testing.T, store *Store, id string, now time.Time) *model.Event {
	t.Helper()
	ev := &model.Event{
		ID:              id,
		HostID:          "host-1",
		Title:           "Sunday hike",
		StartsAt:        now.Add(48 * time.Hour),
		MaxParticipants: 2,
		Status:          model.StatusOpen,
		WaitlistEnabled: true,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := store.CreateEvent(context.Background(), ev); err != nil {
		t.Fatalf("create event: %v", err)
	}
	return ev
}

func TestOpenRequiresPath(t *testing.T) {
	t.Parallel()

	if _, err := Open(""); err == nil {
		t.Fatal("expected empty path error")
	}
}

func TestEventLockPersistsParticipantsAndWaitlist(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := openTempStore(t)
	now := time.Date(2026, 2, 21, 21, 0, 0, 0, time.UTC)
	seedEvent(t, store, "ev-1", now)

	offerDeadline := now.Add(time.Hour)
	err := store.WithEventLock(ctx, "ev-1", func(tx repository.EventTx) error {
		ev, err := tx.Event(ctx)
		if err != nil {
			return err
		}
		for i, id := range []string{"u1", "u2"} {
			if err := tx.AddParticipant(ctx, id, now.Add(time.Duration(i)*time.Second)); err != nil {
				return err
			}
		}
		ev.CurrentParticipants = 2
		ev.Status = model.StatusFull
		ev.WaitlistSeq = 1
		ev.UpdatedAt = now
		if err := tx.SaveEvent(ctx, ev); err != nil {
			return err
		}
		return tx.PutWaitlistEntry(ctx, model.WaitlistEntry{
			ID: "wl-1", EventID: "ev-1", UserID: "u3", Seq: 1,
			Status: model.WaitlistOffered, OfferExpiresAt: &offerDeadline,
			CreatedAt: now, UpdatedAt: now,
		})
	})
	if err != nil {
		t.Fatalf("with event lock: %v", err)
	}

	got, err := store.GetEvent(ctx, "ev-1")
	if err != nil {
		t.Fatalf("get event: %v", err)
	}
	if got.Status != model.StatusFull || got.CurrentParticipants != 2 || len(got.Participants) != 2 {
		t.Fatalf("unexpected event after commit: %+v", got)
	}
	if got.Participants[0] != "u1" || got.Participants[1] != "u2" {
		t.Fatalf("participants out of join order: %v", got.Participants)
	}
	if got.WaitlistSeq != 1 {
		t.Fatalf("waitlist seq = %d, want 1", got.WaitlistSeq)
	}

	entries, err := store.ListWaitlist(ctx, "ev-1")
	if err != nil {
		t.Fatalf("list waitlist: %v", err)
	}
	if len(entries) != 1 || entries[0].OfferExpiresAt == nil || !entries[0].OfferExpiresAt.Equal(offerDeadline) {
		t.Fatalf("unexpected waitlist: %+v", entries)
	}

	lapsed, err := store.EventsWithLapsedOffers(ctx, offerDeadline)
	if err != nil {
		t.Fatalf("lapsed offers: %v", err)
	}
	if len(lapsed) != 1 || lapsed[0] != "ev-1" {
		t.Fatalf("lapsed = %v, want [ev-1]", lapsed)
	}
	if lapsed, _ := store.EventsWithLapsedOffers(ctx, now); len(lapsed) != 0 {
		t.Fatalf("offer should still be live at now, got %v", lapsed)
	}

	err = store.WithEventLock(ctx, "ev-1", func(tx repository.EventTx) error {
		ev, err := tx.Event(ctx)
		if err != nil {
			return err
		}
		ev.Status = model.StatusCancelled
		return tx.SaveEvent(ctx, ev)
	})
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if lapsed, _ := store.EventsWithLapsedOffers(ctx, offerDeadline); len(lapsed) != 0 {
		t.Fatalf("cancelled event listed with lapsed offers: %v", lapsed)
	}
}

func TestEventLockRollsBackOnError(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := openTempStore(t)
	now := time.Date(2026, 2, 21, 21, 0, 0, 0, time.UTC)
	seedEvent(t, store, "ev-1", now)

	boom := errors.New("boom")
	err := store.WithEventLock(ctx, "ev-1", func(tx repository.EventTx) error {
		if err := tx.AddParticipant(ctx, "u1", now); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected callback error, got %v", err)
	}
	got, err := store.GetEvent(ctx, "ev-1")
	if err != nil {
		t.Fatalf("get event: %v", err)
	}
	if len(got.Participants) != 0 {
		t.Fatalf("rolled back participant leaked: %v", got.Participants)
	}
}

func TestEventLockMissingEvent(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	err := store.WithEventLock(context.Background(), "nope", func(repository.EventTx) error {
		t.Fatal("callback should not run")
		return nil
	})
	if !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDuplicateParticipantIsConflict(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := openTempStore(t)
	now := time.Date(2026, 2, 21, 21, 0, 0, 0, time.UTC)
	seedEvent(t, store, "ev-1", now)

	err := store.WithEventLock(ctx, "ev-1", func(tx repository.EventTx) error {
		if err := tx.AddParticipant(ctx, "u1", now); err != nil {
			return err
		}
		return tx.AddParticipant(ctx, "u1", now)
	})
	if !errors.Is(err, repository.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestPaymentsOpenPaymentPicksNewestPending(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := openTempStore(t)
	now := time.Date(2026, 2, 21, 21, 0, 0, 0, time.UTC)
	seedEvent(t, store, "ev-1", now)

	err := store.WithEventLock(ctx, "ev-1", func(tx repository.EventTx) error {
		if _, err := tx.OpenPayment(ctx, "u1"); !errors.Is(err, repository.ErrNotFound) {
			t.Errorf("expected no open payment, got %v", err)
		}
		for i, status := range []model.PaymentStatus{model.PaymentFailed, model.PaymentPending} {
			p := &model.Payment{
				ID: []string{"pay-1", "pay-2"}[i], EventID: "ev-1", UserID: "u1",
				Amount: 5000, Currency: "IDR", Status: status,
				CreatedAt: now.Add(time.Duration(i) * time.Minute), UpdatedAt: now,
			}
			if err := tx.PutPayment(ctx, p); err != nil {
				return err
			}
		}
		open, err := tx.OpenPayment(ctx, "u1")
		if err != nil {
			return err
		}
		if open.ID != "pay-2" {
			t.Errorf("open payment = %s, want pay-2", open.ID)
		}
		applied := now.Add(time.Hour)
		open.Status = model.PaymentCompleted
		open.AppliedAt = &applied
		return tx.PutPayment(ctx, open)
	})
	if err != nil {
		t.Fatalf("with event lock: %v", err)
	}

	p, err := store.GetPayment(ctx, "pay-2")
	if err != nil {
		t.Fatalf("get payment: %v", err)
	}
	if p.Status != model.PaymentCompleted || !p.Applied() {
		t.Fatalf("payment update not persisted: %+v", p)
	}
	if _, err := store.GetPayment(ctx, "missing"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSeatPaymentPicksLatestApplied(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := openTempStore(t)
	now := time.Date(2026, 2, 21, 21, 0, 0, 0, time.UTC)
	seedEvent(t, store, "ev-1", now)

	err := store.WithEventLock(ctx, "ev-1", func(tx repository.EventTx) error {
		if _, err := tx.SeatPayment(ctx, "u1"); !errors.Is(err, repository.ErrNotFound) {
			t.Errorf("expected no seat payment, got %v", err)
		}
		first, second := now.Add(time.Minute), now.Add(time.Hour)
		payments := []*model.Payment{
			{ID: "pay-1", Status: model.PaymentCompleted, AppliedAt: &first},
			{ID: "pay-2", Status: model.PaymentCompleted, AppliedAt: &second},
			{ID: "pay-3", Status: model.PaymentCompleted},
			{ID: "pay-4", Status: model.PaymentPending},
		}
		for _, p := range payments {
			p.EventID, p.UserID, p.Amount, p.Currency = "ev-1", "u1", 5000, "JPY"
			p.CreatedAt, p.UpdatedAt = now, now
			if err := tx.PutPayment(ctx, p); err != nil {
				return err
			}
		}
		seat, err := tx.SeatPayment(ctx, "u1")
		if err != nil {
			return err
		}
		if seat.ID != "pay-2" {
			t.Errorf("seat payment = %s, want pay-2", seat.ID)
		}

		seat.Status = model.PaymentRefunded
		if err := tx.PutPayment(ctx, seat); err != nil {
			return err
		}
		if seat, err = tx.SeatPayment(ctx, "u1"); err != nil {
			return err
		}
		if seat.ID != "pay-1" {
			t.Errorf("seat payment after refund = %s, want pay-1", seat.ID)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("with event lock: %v", err)
	}
}

func TestFeedDedupeAndMarkRead(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := openTempStore(t)
	now := time.Date(2026, 2, 21, 21, 0, 0, 0, time.UTC)

	n := model.Notification{
		ID: "n-1", Type: model.ActivityEventCancelled, UserID: "u1",
		RelatedEvent: "ev-1", Message: "cancelled", DedupeKey: "ob-1:u1", CreatedAt: now,
	}
	if err := store.AppendNotification(ctx, n); err != nil {
		t.Fatalf("append notification: %v", err)
	}
	n.ID = "n-2"
	if err := store.AppendNotification(ctx, n); !errors.Is(err, repository.ErrConflict) {
		t.Fatalf("duplicate dedupe key: got %v, want ErrConflict", err)
	}

	if _, err := store.MarkNotificationRead(ctx, "u2", "n-1", now); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("other user's notification: got %v, want ErrNotFound", err)
	}
	read, err := store.MarkNotificationRead(ctx, "u1", "n-1", now.Add(time.Minute))
	if err != nil {
		t.Fatalf("mark read: %v", err)
	}
	if !read.IsRead || read.ReadAt == nil || !read.ReadAt.Equal(now.Add(time.Minute)) {
		t.Fatalf("unexpected read state: %+v", read)
	}
	again, err := store.MarkNotificationRead(ctx, "u1", "n-1", now.Add(time.Hour))
	if err != nil {
		t.Fatalf("mark read again: %v", err)
	}
	if !again.ReadAt.Equal(now.Add(time.Minute)) {
		t.Fatalf("read_at should keep the first read, got %v", again.ReadAt)
	}

	list, err := store.ListNotifications(ctx, "u1", 10)
	if err != nil {
		t.Fatalf("list notifications: %v", err)
	}
	if len(list) != 1 || list[0].ID != "n-1" {
		t.Fatalf("unexpected inbox: %+v", list)
	}

	a := model.Activity{ID: "a-1", Type: model.ActivityEventJoined, UserID: "u1", Message: "joined", DedupeKey: "ob-2:u1", CreatedAt: now}
	if err := store.AppendActivity(ctx, a); err != nil {
		t.Fatalf("append activity: %v", err)
	}
	a.ID = "a-2"
	if err := store.AppendActivity(ctx, a); !errors.Is(err, repository.ErrConflict) {
		t.Fatalf("duplicate activity: got %v, want ErrConflict", err)
	}
	feed, err := store.ListActivities(ctx, "u1", 0)
	if err != nil || len(feed) != 1 {
		t.Fatalf("list activities = %+v, %v", feed, err)
	}
}

func TestOutboxLifecycle(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := openTempStore(t)
	now := time.Date(2026, 2, 21, 21, 0, 0, 0, time.UTC)
	seedEvent(t, store, "ev-1", now)

	err := store.WithEventLock(ctx, "ev-1", func(tx repository.EventTx) error {
		return tx.AppendOutbox(ctx, []model.OutboxEvent{
			{ID: "ob-1", EventID: "ev-1", Topic: model.TopicParticipantJoined, Payload: model.OutboxPayload{UserID: "u1", EventTitle: "Sunday hike"}, CreatedAt: now},
			{ID: "ob-2", EventID: "ev-1", Topic: model.TopicEventCancelled, Payload: model.OutboxPayload{Recipients: []string{"u1", "u2"}}, CreatedAt: now},
		})
	})
	if err != nil {
		t.Fatalf("append outbox: %v", err)
	}

	pending, err := store.PendingOutbox(ctx, 10, 3)
	if err != nil {
		t.Fatalf("pending outbox: %v", err)
	}
	if len(pending) != 2 || pending[0].ID != "ob-1" || pending[0].Payload.UserID != "u1" {
		t.Fatalf("unexpected pending outbox: %+v", pending)
	}
	if got := pending[1].Payload.Recipients; len(got) != 2 {
		t.Fatalf("recipients did not round-trip: %v", got)
	}

	if err := store.MarkOutboxDispatched(ctx, "ob-1", now); err != nil {
		t.Fatalf("mark dispatched: %v", err)
	}
	for i := 0; i < 3; i++ {
		if err := store.MarkOutboxFailed(ctx, "ob-2", "store down"); err != nil {
			t.Fatalf("mark failed: %v", err)
		}
	}
	pending, err = store.PendingOutbox(ctx, 10, 3)
	if err != nil {
		t.Fatalf("pending outbox: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("dispatched and exhausted rows should not be pending: %+v", pending)
	}
}

func TestListEventsAndEndedSweep(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := openTempStore(t)
	now := time.Date(2026, 2, 21, 21, 0, 0, 0, time.UTC)
	seedEvent(t, store, "ev-1", now)
	seedEvent(t, store, "ev-2", now.Add(time.Hour))

	events, err := store.ListEvents(ctx, model.ListEventsFilter{Status: model.StatusOpen})
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(events) != 2 || events[0].ID != "ev-1" {
		t.Fatalf("unexpected listing: %+v", events)
	}
	if events, _ := store.ListEvents(ctx, model.ListEventsFilter{HostID: "someone-else"}); len(events) != 0 {
		t.Fatalf("host filter leaked %d events", len(events))
	}

	ended, err := store.EventsEndedBefore(ctx, now.Add(48*time.Hour))
	if err != nil {
		t.Fatalf("ended events: %v", err)
	}
	if len(ended) != 1 || ended[0] != "ev-1" {
		t.Fatalf("ended = %v, want [ev-1]", ended)
	}
}

func TestUsers(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := openTempStore(t)
	now := time.Date(2026, 2, 21, 21, 0, 0, 0, time.UTC)

	u := &model.User{ID: "u1", Name: "Ana", Email: "ana@example.com", Role: model.RoleAdmin, CreatedAt: now}
	if err := store.CreateUser(ctx, u); err != nil {
		t.Fatalf("create user: %v", err)
	}
	dup := &model.User{ID: "u2", Name: "Ana again", Email: "ana@example.com", Role: model.RoleUser, CreatedAt: now}
	if err := store.CreateUser(ctx, dup); !errors.Is(err, repository.ErrConflict) {
		t.Fatalf("duplicate email: got %v, want ErrConflict", err)
	}
	got, err := store.GetUser(ctx, "u1")
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if !got.IsAdmin() || !got.CreatedAt.Equal(now) {
		t.Fatalf("unexpected user: %+v", got)
	}
	if _, err := store.GetUser(ctx, "u9"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("missing user: got %v", err)
	}
}
