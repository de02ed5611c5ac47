package lifecycle

import (
	"sort"
	"time"

	"github.com/Shivanand-hulikatti/events-activities/internal/model"
)

// Waitlist is the FIFO queue of users waiting for a seat in one event.
// Order comes from Seq, which the queue takes from the event's counter, so
// positions compact on their own when an entry leaves the active set.
type Waitlist struct {
	ev      *model.Event
	entries []*model.WaitlistEntry
	byUser  map[string]*model.WaitlistEntry
	dirty   map[string]*model.WaitlistEntry
	newID   func() string
}

// NewWaitlist builds the queue for ev from its stored entries.
func NewWaitlist(ev *model.Event, entries []model.WaitlistEntry, newID func() string) *Waitlist {
	w := &Waitlist{
		ev:     ev,
		byUser: make(map[string]*model.WaitlistEntry, len(entries)),
		dirty:  make(map[string]*model.WaitlistEntry),
		newID:  newID,
	}
	for i := range entries {
		e := entries[i]
		w.entries = append(w.entries, &e)
		w.byUser[e.UserID] = &e
		if e.Seq > ev.WaitlistSeq {
			ev.WaitlistSeq = e.Seq
		}
	}
	w.sort()
	w.Active()
	return w
}

func (w *Waitlist) sort() {
	sort.SliceStable(w.entries, func(i, j int) bool { return w.entries[i].Seq < w.entries[j].Seq })
}

func (w *Waitlist) touch(e *model.WaitlistEntry, now time.Time) {
	e.UpdatedAt = now
	w.dirty[e.UserID] = e
}

// Entry returns userID's entry, terminal or not.
func (w *Waitlist) Entry(userID string) (*model.WaitlistEntry, bool) {
	e, ok := w.byUser[userID]
	return e, ok
}

// Active returns waiting and offered entries in line order with positions set.
func (w *Waitlist) Active() []*model.WaitlistEntry {
	var out []*model.WaitlistEntry
	pos := 0
	for _, e := range w.entries {
		if !e.IsActive() {
			e.Position = 0
			continue
		}
		pos++
		e.Position = pos
		out = append(out, e)
	}
	return out
}

// Outstanding counts offers that still reserve a seat at now.
func (w *Waitlist) Outstanding(now time.Time) int {
	n := 0
	for _, e := range w.entries {
		if e.OfferLive(now) {
			n++
		}
	}
	return n
}

// Enqueue appends userID to the back of the line. A user whose previous
// entry ended may queue again under a fresh sequence number.
func (w *Waitlist) Enqueue(userID string, now time.Time) (*model.WaitlistEntry, error) {
	if e, ok := w.byUser[userID]; ok {
		if e.IsActive() {
			return nil, model.ErrAlreadyWaitlisted
		}
		w.ev.WaitlistSeq++
		e.Seq = w.ev.WaitlistSeq
		e.Status = model.WaitlistWaiting
		e.OfferExpiresAt = nil
		w.touch(e, now)
		w.sort()
		w.Active()
		return e, nil
	}
	w.ev.WaitlistSeq++
	e := &model.WaitlistEntry{
		ID:        w.newID(),
		EventID:   w.ev.ID,
		UserID:    userID,
		Seq:       w.ev.WaitlistSeq,
		Status:    model.WaitlistWaiting,
		CreatedAt: now,
	}
	w.entries = append(w.entries, e)
	w.byUser[userID] = e
	w.touch(e, now)
	w.Active()
	return e, nil
}

// Next returns the lowest-sequence waiting entry.
func (w *Waitlist) Next() (*model.WaitlistEntry, bool) {
	for _, e := range w.entries {
		if e.Status == model.WaitlistWaiting {
			return e, true
		}
	}
	return nil, false
}

// Promote offers up to seats places to the front of the line. Offers do
// not seat anyone; the user must accept before the deadline.
func (w *Waitlist) Promote(seats int, now time.Time, ttl time.Duration) []*model.WaitlistEntry {
	var offered []*model.WaitlistEntry
	for seats > 0 {
		e, ok := w.Next()
		if !ok {
			break
		}
		deadline := now.Add(ttl)
		e.Status = model.WaitlistOffered
		e.OfferExpiresAt = &deadline
		w.touch(e, now)
		offered = append(offered, e)
		seats--
	}
	if len(offered) > 0 {
		w.Active()
	}
	return offered
}

// ExpireOffers moves offers whose deadline has passed to expired. Calling it
// again with the same now is a no-op.
func (w *Waitlist) ExpireOffers(now time.Time) []*model.WaitlistEntry {
	var expired []*model.WaitlistEntry
	for _, e := range w.entries {
		if e.Status != model.WaitlistOffered || e.OfferLive(now) {
			continue
		}
		e.Status = model.WaitlistExpired
		w.touch(e, now)
		expired = append(expired, e)
	}
	if len(expired) > 0 {
		w.Active()
	}
	return expired
}

// Accept closes userID's active entry because they took a seat.
func (w *Waitlist) Accept(userID string, now time.Time) (*model.WaitlistEntry, error) {
	e, ok := w.byUser[userID]
	if !ok || !e.IsActive() {
		return nil, model.ErrNotOnWaitlist
	}
	e.Status = model.WaitlistAccepted
	w.touch(e, now)
	w.Active()
	return e, nil
}

// Decline turns down userID's live offer.
func (w *Waitlist) Decline(userID string, now time.Time) (*model.WaitlistEntry, error) {
	e, ok := w.byUser[userID]
	if !ok || !e.OfferLive(now) {
		return nil, model.ErrNoActiveOffer
	}
	e.Status = model.WaitlistDeclined
	w.touch(e, now)
	w.Active()
	return e, nil
}

// Withdraw removes userID from the line whether waiting or offered. It
// reports whether a reserved seat was released.
func (w *Waitlist) Withdraw(userID string, now time.Time) (*model.WaitlistEntry, bool, error) {
	e, ok := w.byUser[userID]
	if !ok || !e.IsActive() {
		return nil, false, model.ErrNotOnWaitlist
	}
	released := e.OfferLive(now)
	e.Status = model.WaitlistDeclined
	w.touch(e, now)
	w.Active()
	return e, released, nil
}

// Changed returns the entries touched since the queue was built.
func (w *Waitlist) Changed() []model.WaitlistEntry {
	out := make([]model.WaitlistEntry, 0, len(w.dirty))
	for _, e := range w.entries {
		if _, ok := w.dirty[e.UserID]; ok {
			out = append(out, *e)
		}
	}
	return out
}

// Users returns the ids of users holding an active entry, in line order.
func (w *Waitlist) Users() []string {
	var ids []string
	for _, e := range w.Active() {
		ids = append(ids, e.UserID)
	}
	return ids
}
