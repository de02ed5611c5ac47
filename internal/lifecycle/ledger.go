// Package lifecycle holds the participation rules for a single event: the
// ledger of seated users, the waitlist queue and the capacity state
// machine that ties them together. Nothing here touches storage; callers
// load an event under its lock, run one operation and persist the changes.
package lifecycle

import "github.com/Shivanand-hulikatti/events-activities/internal/model"

// LedgerChange is one membership mutation recorded by a Ledger.
type LedgerChange struct {
	UserID string
	Added  bool
}

// Ledger keeps an event's participant set and its cached counter in lockstep.
type Ledger struct {
	ev      *model.Event
	members map[string]struct{}
	changes []LedgerChange
}

// NewLedger indexes the participants of ev. The counter is re-derived from
// the set so a drifted row heals on its next write.
func NewLedger(ev *model.Event) *Ledger {
	l := &Ledger{ev: ev, members: make(map[string]struct{}, len(ev.Participants))}
	uniq := ev.Participants[:0:0]
	for _, id := range ev.Participants {
		if _, ok := l.members[id]; ok {
			continue
		}
		l.members[id] = struct{}{}
		uniq = append(uniq, id)
	}
	ev.Participants = uniq
	ev.CurrentParticipants = len(uniq)
	return l
}

// Contains reports whether userID holds a seat.
func (l *Ledger) Contains(userID string) bool {
	_, ok := l.members[userID]
	return ok
}

// Count returns the number of seated users.
func (l *Ledger) Count() int {
	return len(l.members)
}

// Add seats userID.
func (l *Ledger) Add(userID string) error {
	if l.Contains(userID) {
		return model.ErrAlreadyJoined
	}
	l.members[userID] = struct{}{}
	l.ev.Participants = append(l.ev.Participants, userID)
	l.ev.CurrentParticipants = len(l.members)
	l.changes = append(l.changes, LedgerChange{UserID: userID, Added: true})
	return nil
}

// Remove frees userID's seat.
func (l *Ledger) Remove(userID string) error {
	if !l.Contains(userID) {
		return model.ErrNotAParticipant
	}
	delete(l.members, userID)
	for i, id := range l.ev.Participants {
		if id == userID {
			l.ev.Participants = append(l.ev.Participants[:i], l.ev.Participants[i+1:]...)
			break
		}
	}
	l.ev.CurrentParticipants = len(l.members)
	l.changes = append(l.changes, LedgerChange{UserID: userID, Added: false})
	return nil
}

// Changes returns the mutations applied since the ledger was built.
func (l *Ledger) Changes() []LedgerChange {
	return l.changes
}
