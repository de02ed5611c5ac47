package lifecycle

import (
	"time"

	"github.com/google/uuid"

	"github.com/Shivanand-hulikatti/events-activities/internal/model"
)

// DefaultOfferTTL is how long a promoted waitlist user has to claim a seat.
const DefaultOfferTTL = 24 * time.Hour

// Options configures a Machine.
type Options struct {
	Now      time.Time
	OfferTTL time.Duration
	NewID    func() string
}

// Decision is what a join request should turn into.
type Decision int

const (
	// DecisionAdmit means a seat is available to the requester now.
	DecisionAdmit Decision = iota + 1
	// DecisionWaitlist means the requester should be queued.
	DecisionWaitlist
)

// Machine is the capacity state machine for one event loaded under its lock.
// A Machine that returned an error must be discarded along with the
// transaction it was loaded in.
type Machine struct {
	Event    *model.Event
	Ledger   *Ledger
	Waitlist *Waitlist

	now      time.Time
	offerTTL time.Duration
	newID    func() string
	outbox   []model.OutboxEvent
}

// New wraps ev and its waitlist entries.
func New(ev *model.Event, entries []model.WaitlistEntry, opts Options) *Machine {
	if opts.Now.IsZero() {
		opts.Now = time.Now().UTC()
	}
	if opts.OfferTTL <= 0 {
		opts.OfferTTL = DefaultOfferTTL
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	m := &Machine{
		Event:    ev,
		now:      opts.Now,
		offerTTL: opts.OfferTTL,
		newID:    opts.NewID,
	}
	m.Ledger = NewLedger(ev)
	m.Waitlist = NewWaitlist(ev, entries, opts.NewID)
	return m
}

// Outbox returns the domain events emitted so far.
func (m *Machine) Outbox() []model.OutboxEvent {
	return m.outbox
}

// Emit records a domain event for ev.
func (m *Machine) Emit(topic model.Topic, payload model.OutboxPayload) {
	payload.EventTitle = m.Event.Title
	payload.HostID = m.Event.HostID
	m.outbox = append(m.outbox, model.OutboxEvent{
		ID:        m.newID(),
		EventID:   m.Event.ID,
		Topic:     topic,
		Payload:   payload,
		CreatedAt: m.now,
	})
}

func (m *Machine) touch() {
	m.Event.UpdatedAt = m.now
}

// syncStatus derives open/full from the counter for non-terminal events.
func (m *Machine) syncStatus() {
	if m.Event.IsTerminal() {
		return
	}
	if m.Ledger.Count() >= m.Event.MaxParticipants {
		m.Event.Status = model.StatusFull
	} else {
		m.Event.Status = model.StatusOpen
	}
}

func (m *Machine) terminalErr() error {
	switch m.Event.Status {
	case model.StatusCancelled:
		return model.ErrEventCancelled
	case model.StatusCompleted:
		return model.ErrEventCompleted
	}
	return nil
}

// unreserved is the number of seats neither taken nor held by a live offer.
func (m *Machine) unreserved() int {
	n := m.Event.MaxParticipants - m.Ledger.Count() - m.Waitlist.Outstanding(m.now)
	if n < 0 {
		return 0
	}
	return n
}

// sweep expires stale offers and, when the event can still seat people,
// hands the released seats to the next in line.
func (m *Machine) sweep() bool {
	expired := m.Waitlist.ExpireOffers(m.now)
	for _, e := range expired {
		m.Emit(model.TopicWaitlistExpired, model.OutboxPayload{UserID: e.UserID})
	}
	offered := m.promote()
	return len(expired) > 0 || offered > 0
}

func (m *Machine) promote() int {
	if m.Event.Status != model.StatusOpen || !m.Event.WaitlistEnabled {
		return 0
	}
	offered := m.Waitlist.Promote(m.unreserved(), m.now, m.offerTTL)
	for _, e := range offered {
		m.Emit(model.TopicWaitlistOffered, model.OutboxPayload{
			UserID:         e.UserID,
			OfferExpiresAt: e.OfferExpiresAt,
		})
	}
	return len(offered)
}

func (m *Machine) checkJoinable(userID string) error {
	if err := m.terminalErr(); err != nil {
		return err
	}
	if userID == m.Event.HostID {
		return model.ErrIsHost
	}
	if m.Ledger.Contains(userID) {
		return model.ErrAlreadyJoined
	}
	return nil
}

// Evaluate decides how a join request from userID should proceed without
// seating anyone. Users holding a live offer are always admitted.
func (m *Machine) Evaluate(userID string) (Decision, error) {
	if err := m.checkJoinable(userID); err != nil {
		return 0, err
	}
	m.sweep()
	if e, ok := m.Waitlist.Entry(userID); ok && e.OfferLive(m.now) {
		return DecisionAdmit, nil
	}
	if m.Event.Status == model.StatusOpen && m.unreserved() > 0 {
		return DecisionAdmit, nil
	}
	if !m.Event.WaitlistEnabled {
		return 0, model.ErrEventFull
	}
	if e, ok := m.Waitlist.Entry(userID); ok && e.IsActive() {
		return 0, model.ErrAlreadyWaitlisted
	}
	return DecisionWaitlist, nil
}

// Admit seats userID, consuming their offer when they hold one. The caller
// is expected to have received DecisionAdmit from Evaluate in the same
// locked section, or to be applying a confirmed payment.
func (m *Machine) Admit(userID string) error {
	if err := m.checkJoinable(userID); err != nil {
		return err
	}
	if m.Ledger.Count() >= m.Event.MaxParticipants {
		return model.ErrEventFull
	}
	if !m.HasLiveOffer(userID) && (m.Event.Status != model.StatusOpen || m.unreserved() == 0) {
		return model.ErrEventFull
	}
	if e, ok := m.Waitlist.Entry(userID); ok && e.IsActive() {
		if _, err := m.Waitlist.Accept(userID, m.now); err != nil {
			return err
		}
	}
	if err := m.Ledger.Add(userID); err != nil {
		return err
	}
	m.syncStatus()
	m.touch()
	m.Emit(model.TopicParticipantJoined, model.OutboxPayload{UserID: userID})
	return nil
}

// Enqueue places userID on the waitlist.
func (m *Machine) Enqueue(userID string) (*model.WaitlistEntry, error) {
	if err := m.checkJoinable(userID); err != nil {
		return nil, err
	}
	if !m.Event.WaitlistEnabled {
		return nil, model.ErrEventFull
	}
	e, err := m.Waitlist.Enqueue(userID, m.now)
	if err != nil {
		return nil, err
	}
	m.touch()
	m.Emit(model.TopicWaitlistJoined, model.OutboxPayload{UserID: userID, Position: e.Position})
	return e, nil
}

// Join runs the synchronous join path used for free events: admit when a
// seat is available, otherwise queue.
func (m *Machine) Join(userID string) (model.JoinOutcome, *model.WaitlistEntry, error) {
	d, err := m.Evaluate(userID)
	if err != nil {
		return "", nil, err
	}
	if d == DecisionWaitlist {
		e, err := m.Enqueue(userID)
		if err != nil {
			return "", nil, err
		}
		return model.OutcomeWaitlisted, e, nil
	}
	if err := m.Admit(userID); err != nil {
		return "", nil, err
	}
	return model.OutcomeJoined, nil, nil
}

// Leave frees userID's seat and offers it to the waitlist.
func (m *Machine) Leave(userID string) error {
	if err := m.terminalErr(); err != nil {
		return err
	}
	if err := m.Ledger.Remove(userID); err != nil {
		return err
	}
	m.syncStatus()
	m.touch()
	m.Emit(model.TopicParticipantLeft, model.OutboxPayload{UserID: userID})
	m.sweep()
	return nil
}

func (m *Machine) canModerate(actor *model.User) bool {
	return actor != nil && (actor.IsAdmin() || actor.ID == m.Event.HostID)
}

// Cancel moves the event to cancelled. Seats and queue entries are kept for
// audit; everyone holding either is told.
func (m *Machine) Cancel(actor *model.User) error {
	if !m.canModerate(actor) {
		return model.ErrNotAuthorized
	}
	switch m.Event.Status {
	case model.StatusCancelled:
		return model.ErrAlreadyCancelled
	case model.StatusCompleted:
		return model.ErrEventCompleted
	}
	m.Event.Status = model.StatusCancelled
	at := m.now
	m.Event.CancelledAt = &at
	m.touch()

	recipients := append([]string(nil), m.Event.Participants...)
	recipients = append(recipients, m.Waitlist.Users()...)
	m.Emit(model.TopicEventCancelled, model.OutboxPayload{ActorID: actor.ID, Recipients: recipients})
	return nil
}

// Reopen lifts a cancellation. Admin only.
func (m *Machine) Reopen(actor *model.User) error {
	if !actor.IsAdmin() {
		return model.ErrNotAuthorized
	}
	if m.Event.Status != model.StatusCancelled {
		return model.ErrEventNotCancelled
	}
	m.Event.Status = model.StatusOpen
	m.Event.CancelledAt = nil
	m.syncStatus()
	m.touch()
	m.Emit(model.TopicEventReopened, model.OutboxPayload{
		ActorID:    actor.ID,
		Recipients: append([]string(nil), m.Event.Participants...),
	})
	m.sweep()
	return nil
}

// Complete marks a finished event. Queue entries are kept as they stand;
// the offer sweep skips terminal events.
func (m *Machine) Complete() error {
	if err := m.terminalErr(); err != nil {
		return err
	}
	m.Event.Status = model.StatusCompleted
	m.touch()
	m.Emit(model.TopicEventCompleted, model.OutboxPayload{
		Recipients: append([]string(nil), m.Event.Participants...),
	})
	return nil
}

// Resize changes the seat count. Growth offers the new seats to the queue.
func (m *Machine) Resize(actor *model.User, maxParticipants int) error {
	if !m.canModerate(actor) {
		return model.ErrNotAuthorized
	}
	if err := m.terminalErr(); err != nil {
		return err
	}
	switch {
	case maxParticipants < 1:
		return model.ErrInvalidCapacity.WithMessage("max participants must be at least 1")
	case maxParticipants < m.Ledger.Count():
		return model.ErrInvalidCapacity.WithMessage("max participants cannot drop below current participants")
	case maxParticipants < m.Event.MinParticipants:
		return model.ErrInvalidCapacity.WithMessage("max participants cannot drop below min participants")
	case maxParticipants < m.Ledger.Count()+m.Waitlist.Outstanding(m.now):
		return model.ErrInvalidCapacity.WithMessage("max participants cannot drop below seats held by open offers")
	}
	m.Event.MaxParticipants = maxParticipants
	m.syncStatus()
	m.touch()
	m.sweep()
	return nil
}

// ExpireOffers is the idempotent check-and-expire step. It reports whether
// anything changed. Cancelled and completed events are left alone.
func (m *Machine) ExpireOffers() bool {
	if m.Event.IsTerminal() {
		return false
	}
	changed := m.sweep()
	if changed {
		m.touch()
	}
	return changed
}

// DeclineOffer turns down userID's offer and passes the seat on.
func (m *Machine) DeclineOffer(userID string) error {
	if err := m.terminalErr(); err != nil {
		return err
	}
	m.sweep()
	if _, err := m.Waitlist.Decline(userID, m.now); err != nil {
		return err
	}
	m.touch()
	m.promote()
	return nil
}

// LeaveWaitlist drops userID from the line.
func (m *Machine) LeaveWaitlist(userID string) error {
	_, released, err := m.Waitlist.Withdraw(userID, m.now)
	if err != nil {
		return err
	}
	m.touch()
	if released {
		m.promote()
	}
	return nil
}

// HasLiveOffer reports whether userID currently holds a seat offer.
func (m *Machine) HasLiveOffer(userID string) bool {
	e, ok := m.Waitlist.Entry(userID)
	return ok && e.OfferLive(m.now)
}
