package lifecycle

import (
	"errors"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/Shivanand-hulikatti/events-activities/internal/model"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newEvent(max int, participants ...string) *model.Event {
	status := model.StatusOpen
	if len(participants) >= max {
		status = model.StatusFull
	}
	return &model.Event{
		ID:                  "ev-1",
		HostID:              "host",
		Title:               "Board games night",
		MaxParticipants:     max,
		CurrentParticipants: len(participants),
		Participants:        append([]string(nil), participants...),
		Status:              status,
		WaitlistEnabled:     true,
	}
}

func newMachine(ev *model.Event, entries []model.WaitlistEntry, now time.Time) *Machine {
	return New(ev, entries, Options{Now: now, OfferTTL: time.Hour, NewID: sequentialIDs("id")})
}

func topics(m *Machine) []model.Topic {
	var out []model.Topic
	for _, e := range m.Outbox() {
		out = append(out, e.Topic)
	}
	return out
}

func checkInvariants(t *testing.T, ev *model.Event) {
	t.Helper()
	if ev.CurrentParticipants != len(ev.Participants) {
		t.Fatalf("counter %d != |participants| %d", ev.CurrentParticipants, len(ev.Participants))
	}
	if ev.CurrentParticipants > ev.MaxParticipants {
		t.Fatalf("overbooked: %d > %d", ev.CurrentParticipants, ev.MaxParticipants)
	}
	full := ev.CurrentParticipants == ev.MaxParticipants && !ev.IsTerminal()
	if (ev.Status == model.StatusFull) != full {
		t.Fatalf("status %s inconsistent with %d/%d", ev.Status, ev.CurrentParticipants, ev.MaxParticipants)
	}
}

func TestJoinFreeSingleSeat(t *testing.T) {
	t.Parallel()

	ev := newEvent(1)
	ev.WaitlistEnabled = false
	m := newMachine(ev, nil, testNow)

	outcome, _, err := m.Join("userB")
	if err != nil {
		t.Fatalf("join B: %v", err)
	}
	if outcome != model.OutcomeJoined || ev.CurrentParticipants != 1 || ev.Status != model.StatusFull {
		t.Fatalf("after B: outcome=%s count=%d status=%s", outcome, ev.CurrentParticipants, ev.Status)
	}
	if _, _, err := m.Join("userC"); !errors.Is(err, model.ErrEventFull) {
		t.Fatalf("join C: got %v, want ErrEventFull", err)
	}
	checkInvariants(t, ev)
}

func TestJoinFullEventEnqueuesWhenWaitlistEnabled(t *testing.T) {
	t.Parallel()

	ev := newEvent(1, "userB")
	m := newMachine(ev, nil, testNow)

	outcome, ticket, err := m.Join("userC")
	if err != nil {
		t.Fatalf("join C: %v", err)
	}
	if outcome != model.OutcomeWaitlisted || ticket == nil || ticket.Position != 1 {
		t.Fatalf("expected waitlist ticket at position 1, got outcome=%s ticket=%+v", outcome, ticket)
	}
	if ev.CurrentParticipants != 1 {
		t.Fatalf("waitlisting must not touch the ledger, count=%d", ev.CurrentParticipants)
	}
	if _, _, err := m.Join("userC"); !errors.Is(err, model.ErrAlreadyWaitlisted) {
		t.Fatalf("second join C: got %v, want ErrAlreadyWaitlisted", err)
	}
}

func TestJoinPreconditions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		status model.EventStatus
		user   string
		want   error
	}{
		{name: "host", status: model.StatusOpen, user: "host", want: model.ErrIsHost},
		{name: "already joined", status: model.StatusOpen, user: "u1", want: model.ErrAlreadyJoined},
		{name: "cancelled", status: model.StatusCancelled, user: "u9", want: model.ErrEventCancelled},
		{name: "completed", status: model.StatusCompleted, user: "u9", want: model.ErrEventCompleted},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ev := newEvent(3, "u1")
			ev.Status = tt.status
			m := newMachine(ev, nil, testNow)
			if _, _, err := m.Join(tt.user); !errors.Is(err, tt.want) {
				t.Fatalf("got %v, want %v", err, tt.want)
			}
			if ev.CurrentParticipants != 1 {
				t.Fatalf("failed join changed count to %d", ev.CurrentParticipants)
			}
		})
	}
}

func TestLeaveFullEventReopensAndOffersSeat(t *testing.T) {
	t.Parallel()

	ev := newEvent(2, "userA", "userX")
	entries := []model.WaitlistEntry{
		{ID: "w1", EventID: "ev-1", UserID: "userW", Seq: 1, Status: model.WaitlistWaiting},
	}
	m := newMachine(ev, entries, testNow)

	if err := m.Leave("userA"); err != nil {
		t.Fatalf("leave: %v", err)
	}
	if ev.CurrentParticipants != 1 || ev.Status != model.StatusOpen {
		t.Fatalf("after leave: count=%d status=%s", ev.CurrentParticipants, ev.Status)
	}
	entry, _ := m.Waitlist.Entry("userW")
	if entry.Status != model.WaitlistOffered {
		t.Fatalf("waitlisted user should be offered the seat, got %s", entry.Status)
	}
	want := testNow.Add(time.Hour)
	if entry.OfferExpiresAt == nil || !entry.OfferExpiresAt.Equal(want) {
		t.Fatalf("offer deadline = %v, want %v", entry.OfferExpiresAt, want)
	}
	got := topics(m)
	if len(got) != 2 || got[0] != model.TopicParticipantLeft || got[1] != model.TopicWaitlistOffered {
		t.Fatalf("outbox topics = %v", got)
	}
	checkInvariants(t, ev)
}

func TestLeaveRequiresParticipant(t *testing.T) {
	t.Parallel()

	m := newMachine(newEvent(2, "u1"), nil, testNow)
	if err := m.Leave("u2"); !errors.Is(err, model.ErrNotAParticipant) {
		t.Fatalf("got %v, want ErrNotAParticipant", err)
	}
	if len(m.Outbox()) != 0 {
		t.Fatalf("failed leave emitted %v", topics(m))
	}
}

func TestOfferedSeatIsReservedFromPublicJoins(t *testing.T) {
	t.Parallel()

	ev := newEvent(2, "u1", "u2")
	m := newMachine(ev, nil, testNow)
	if _, _, err := m.Join("w1"); err != nil {
		t.Fatalf("enqueue w1: %v", err)
	}
	if err := m.Leave("u1"); err != nil {
		t.Fatalf("leave: %v", err)
	}

	outcome, _, err := m.Join("stranger")
	if err != nil {
		t.Fatalf("stranger join: %v", err)
	}
	if outcome != model.OutcomeWaitlisted {
		t.Fatalf("stranger should queue behind the offer, got %s", outcome)
	}

	outcome, _, err = m.Join("w1")
	if err != nil {
		t.Fatalf("w1 accepts by joining: %v", err)
	}
	if outcome != model.OutcomeJoined || ev.Status != model.StatusFull {
		t.Fatalf("w1 join: outcome=%s status=%s", outcome, ev.Status)
	}
	entry, _ := m.Waitlist.Entry("w1")
	if entry.Status != model.WaitlistAccepted {
		t.Fatalf("offer should be consumed, got %s", entry.Status)
	}
	checkInvariants(t, ev)
}

func TestExpiredOfferPassesToNextAndIsIdempotent(t *testing.T) {
	t.Parallel()

	ev := newEvent(1, "u0")
	m := newMachine(ev, nil, testNow)
	for _, id := range []string{"U1", "U2", "U3"} {
		if _, _, err := m.Join(id); err != nil {
			t.Fatalf("enqueue %s: %v", id, err)
		}
	}
	if err := m.Leave("u0"); err != nil {
		t.Fatalf("leave: %v", err)
	}
	if e, _ := m.Waitlist.Entry("U1"); e.Status != model.WaitlistOffered {
		t.Fatalf("U1 should hold the first offer, got %s", e.Status)
	}

	later := testNow.Add(2 * time.Hour)
	m2 := newMachine(ev, m.Waitlist.Changed(), later)
	if !m2.ExpireOffers() {
		t.Fatal("expected expiry to change state")
	}
	u1, _ := m2.Waitlist.Entry("U1")
	u2, _ := m2.Waitlist.Entry("U2")
	u3, _ := m2.Waitlist.Entry("U3")
	if u1.Status != model.WaitlistExpired || u2.Status != model.WaitlistOffered {
		t.Fatalf("after expiry: U1=%s U2=%s", u1.Status, u2.Status)
	}
	if u3.Position != 2 {
		t.Fatalf("U3 position = %d, want 2", u3.Position)
	}
	if m2.ExpireOffers() {
		t.Fatal("second expiry pass should be a no-op")
	}
}

func TestCancelNotifiesParticipantsAndWaitlist(t *testing.T) {
	t.Parallel()

	ev := newEvent(3, "p1", "p2", "p3")
	entries := []model.WaitlistEntry{
		{ID: "w1", EventID: "ev-1", UserID: "w1", Seq: 1, Status: model.WaitlistWaiting},
		{ID: "w2", EventID: "ev-1", UserID: "w2", Seq: 2, Status: model.WaitlistWaiting},
		{ID: "w3", EventID: "ev-1", UserID: "w3", Seq: 3, Status: model.WaitlistDeclined},
	}
	m := newMachine(ev, entries, testNow)

	if err := m.Cancel(&model.User{ID: "p1", Role: model.RoleUser}); !errors.Is(err, model.ErrNotAuthorized) {
		t.Fatalf("participant cancel: got %v, want ErrNotAuthorized", err)
	}
	if err := m.Cancel(&model.User{ID: "host"}); err != nil {
		t.Fatalf("host cancel: %v", err)
	}
	if ev.Status != model.StatusCancelled || ev.CurrentParticipants != 3 || ev.CancelledAt == nil {
		t.Fatalf("after cancel: status=%s count=%d", ev.Status, ev.CurrentParticipants)
	}
	out := m.Outbox()
	if len(out) != 1 || out[0].Topic != model.TopicEventCancelled {
		t.Fatalf("outbox = %v", topics(m))
	}
	if got := len(out[0].Payload.Recipients); got != 5 {
		t.Fatalf("cancel recipients = %d, want 5 (%v)", got, out[0].Payload.Recipients)
	}
	if err := m.Cancel(&model.User{ID: "admin", Role: model.RoleAdmin}); !errors.Is(err, model.ErrAlreadyCancelled) {
		t.Fatalf("second cancel: got %v, want ErrAlreadyCancelled", err)
	}
	if _, _, err := m.Join("newcomer"); !errors.Is(err, model.ErrEventCancelled) {
		t.Fatalf("join after cancel: got %v", err)
	}
	if err := m.Leave("p1"); !errors.Is(err, model.ErrEventCancelled) {
		t.Fatalf("leave after cancel: got %v", err)
	}
}

func TestReopenIsAdminOnlyAndPromotes(t *testing.T) {
	t.Parallel()

	ev := newEvent(2, "p1")
	ev.Status = model.StatusCancelled
	entries := []model.WaitlistEntry{
		{ID: "w1", EventID: "ev-1", UserID: "w1", Seq: 1, Status: model.WaitlistWaiting},
	}
	m := newMachine(ev, entries, testNow)

	if err := m.Reopen(&model.User{ID: "host"}); !errors.Is(err, model.ErrNotAuthorized) {
		t.Fatalf("host reopen: got %v, want ErrNotAuthorized", err)
	}
	if err := m.Reopen(&model.User{ID: "admin", Role: model.RoleAdmin}); err != nil {
		t.Fatalf("admin reopen: %v", err)
	}
	if ev.Status != model.StatusOpen || ev.CancelledAt != nil {
		t.Fatalf("after reopen: status=%s", ev.Status)
	}
	if e, _ := m.Waitlist.Entry("w1"); e.Status != model.WaitlistOffered {
		t.Fatalf("reopened seat should be offered, got %s", e.Status)
	}
	if err := m.Reopen(&model.User{ID: "admin", Role: model.RoleAdmin}); !errors.Is(err, model.ErrEventNotCancelled) {
		t.Fatalf("reopen open event: got %v", err)
	}
}

func TestResizeBoundsAndGrowth(t *testing.T) {
	t.Parallel()

	ev := newEvent(2, "p1", "p2")
	ev.MinParticipants = 2
	entries := []model.WaitlistEntry{
		{ID: "w1", EventID: "ev-1", UserID: "w1", Seq: 1, Status: model.WaitlistWaiting},
		{ID: "w2", EventID: "ev-1", UserID: "w2", Seq: 2, Status: model.WaitlistWaiting},
	}
	m := newMachine(ev, entries, testNow)
	host := &model.User{ID: "host"}

	if err := m.Resize(host, 1); !errors.Is(err, model.ErrInvalidCapacity) {
		t.Fatalf("shrink below count: got %v", err)
	}
	if err := m.Resize(&model.User{ID: "p1"}, 5); !errors.Is(err, model.ErrNotAuthorized) {
		t.Fatalf("participant resize: got %v", err)
	}
	if err := m.Resize(host, 4); err != nil {
		t.Fatalf("grow: %v", err)
	}
	if ev.Status != model.StatusOpen || m.Waitlist.Outstanding(testNow) != 2 {
		t.Fatalf("growth should reopen and offer both seats: status=%s outstanding=%d", ev.Status, m.Waitlist.Outstanding(testNow))
	}
	if err := m.Resize(host, 3); !errors.Is(err, model.ErrInvalidCapacity) {
		t.Fatalf("shrink below held offers: got %v", err)
	}
	checkInvariants(t, ev)
}

func TestExpireOffersSkipsTerminalEvents(t *testing.T) {
	t.Parallel()

	for _, status := range []model.EventStatus{model.StatusCancelled, model.StatusCompleted} {
		status := status
		t.Run(string(status), func(t *testing.T) {
			t.Parallel()

			ev := newEvent(1, "u0")
			m := newMachine(ev, nil, testNow)
			if _, _, err := m.Join("U1"); err != nil {
				t.Fatalf("enqueue: %v", err)
			}
			if err := m.Leave("u0"); err != nil {
				t.Fatalf("leave: %v", err)
			}
			if status == model.StatusCancelled {
				if err := m.Cancel(&model.User{ID: "host"}); err != nil {
					t.Fatalf("cancel: %v", err)
				}
			} else if err := m.Complete(); err != nil {
				t.Fatalf("complete: %v", err)
			}

			m2 := newMachine(ev, m.Waitlist.Changed(), testNow.Add(2*time.Hour))
			if m2.ExpireOffers() {
				t.Fatal("expiry should not touch a terminal event")
			}
			if e, _ := m2.Waitlist.Entry("U1"); e.Status != model.WaitlistOffered {
				t.Fatalf("U1 status = %s, want offered", e.Status)
			}
			if len(m2.Outbox()) != 0 {
				t.Fatalf("unexpected outbox %v", topics(m2))
			}
		})
	}
}

func TestCompleteIsTerminal(t *testing.T) {
	t.Parallel()

	ev := newEvent(2, "p1")
	m := newMachine(ev, nil, testNow)
	if err := m.Complete(); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if err := m.Complete(); !errors.Is(err, model.ErrEventCompleted) {
		t.Fatalf("complete twice: got %v", err)
	}
	if err := m.Cancel(&model.User{ID: "host"}); !errors.Is(err, model.ErrEventCompleted) {
		t.Fatalf("cancel completed: got %v", err)
	}
}

func TestRandomOperationsPreserveInvariants(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewSource(42))
	ev := newEvent(4)
	var entries []model.WaitlistEntry
	now := testNow

	for step := 0; step < 500; step++ {
		now = now.Add(time.Duration(rng.Intn(90)) * time.Minute)
		m := newMachine(ev, entries, now)
		user := fmt.Sprintf("u%d", rng.Intn(12))
		var err error
		switch rng.Intn(5) {
		case 0, 1:
			_, _, err = m.Join(user)
		case 2:
			err = m.Leave(user)
		case 3:
			err = m.DeclineOffer(user)
		case 4:
			m.ExpireOffers()
		}
		_ = err
		checkInvariants(t, ev)
		if got := m.Ledger.Count() + m.Waitlist.Outstanding(now); got > ev.MaxParticipants {
			t.Fatalf("step %d: seats plus live offers %d exceed capacity", step, got)
		}
		entries = mergeEntries(entries, m.Waitlist.Changed())
	}
}

func mergeEntries(stored, changed []model.WaitlistEntry) []model.WaitlistEntry {
	idx := map[string]int{}
	for i, e := range stored {
		idx[e.UserID] = i
	}
	for _, e := range changed {
		if i, ok := idx[e.UserID]; ok {
			stored[i] = e
			continue
		}
		idx[e.UserID] = len(stored)
		stored = append(stored, e)
	}
	return stored
}
