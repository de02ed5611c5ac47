package cache

import (
	"context"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/Shivanand-hulikatti/events-activities/internal/model"
)

func TestKey(t *testing.T) {
	t.Parallel()

	if got := key("ev-1"); got != "events:event:ev-1" {
		t.Fatalf("key = %q", got)
	}
}

func TestEventCacheRoundTrip(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	ctx := context.Background()
	rdb, err := Connect(ctx, addr, "")
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { _ = rdb.Close() })

	c := New(rdb, time.Minute, slog.New(slog.NewTextHandler(io.Discard, nil)))
	id := uuid.NewString()
	if _, ok := c.GetEvent(ctx, id); ok {
		t.Fatal("unexpected hit before set")
	}

	c.SetEvent(ctx, &model.Event{ID: id, Title: "Sunday hike", MaxParticipants: 3, Participants: []string{"u1"}})
	got, ok := c.GetEvent(ctx, id)
	if !ok || got.Title != "Sunday hike" || len(got.Participants) != 1 {
		t.Fatalf("cached = %+v, %v", got, ok)
	}

	c.Invalidate(ctx, id)
	if _, ok := c.GetEvent(ctx, id); ok {
		t.Fatal("hit after invalidate")
	}
}

func TestConnectFailsFast(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := Connect(ctx, "127.0.0.1:1", ""); err == nil {
		t.Fatal("expected connection error")
	}
}
