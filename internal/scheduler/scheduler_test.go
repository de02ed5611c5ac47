package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/Shivanand-hulikatti/events-activities/internal/model"
)

type fakeSweeper struct {
	expireAt   []time.Time
	completeAt []time.Time
	failExpire bool
}

func (f *fakeSweeper) ExpireWaitlistOffers(_ context.Context, now time.Time) ([]model.Event, error) {
	f.expireAt = append(f.expireAt, now)
	if f.failExpire {
		return nil, errors.New("store down")
	}
	return []model.Event{{ID: "ev-1"}}, nil
}

func (f *fakeSweeper) CompletePastEvents(_ context.Context, now time.Time) ([]model.Event, error) {
	f.completeAt = append(f.completeAt, now)
	return nil, nil
}

type fakeFlusher struct{ calls int }

func (f *fakeFlusher) Flush(context.Context) (int, error) {
	f.calls++
	return 2, nil
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRunOnceSweepsWithOneClockReading(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	sw := &fakeSweeper{failExpire: true}
	fl := &fakeFlusher{}
	s, err := New("@every 1m", sw, fl, discard(), func() time.Time { return now })
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	s.RunOnce(context.Background())

	if len(sw.expireAt) != 1 || len(sw.completeAt) != 1 || fl.calls != 1 {
		t.Fatalf("calls: expire=%d complete=%d flush=%d", len(sw.expireAt), len(sw.completeAt), fl.calls)
	}
	if !sw.expireAt[0].Equal(now) || !sw.completeAt[0].Equal(now) {
		t.Fatalf("sweep times = %v / %v", sw.expireAt, sw.completeAt)
	}
}

func TestNewRejectsBadSchedule(t *testing.T) {
	t.Parallel()

	if _, err := New("every now and then", &fakeSweeper{}, &fakeFlusher{}, discard(), nil); err == nil {
		t.Fatal("expected schedule parse error")
	}
}

func TestStartStop(t *testing.T) {
	t.Parallel()

	s, err := New("*/5 * * * *", &fakeSweeper{}, &fakeFlusher{}, discard(), nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	s.Start()
	select {
	case <-s.Stop().Done():
	case <-time.After(time.Second):
		t.Fatal("stop did not return")
	}
}
