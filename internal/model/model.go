// Package model defines the core domain types for the events and activities service.
package model

import (
	"slices"
	"time"
)

// EventStatus is the capacity state of an event.
type EventStatus string

const (
	StatusOpen      EventStatus = "open"
	StatusFull      EventStatus = "full"
	StatusCancelled EventStatus = "cancelled"
	StatusCompleted EventStatus = "completed"
)

// Event represents a joinable event created by a host.
type Event struct {
	ID                  string      `json:"id"`
	HostID              string      `json:"host_id"`
	Title               string      `json:"title"`
	Description         string      `json:"description"`
	Location            string      `json:"location"`
	StartsAt            time.Time   `json:"starts_at"`
	EndsAt              *time.Time  `json:"ends_at,omitempty"`
	MinParticipants     int         `json:"min_participants"`
	MaxParticipants     int         `json:"max_participants"`
	CurrentParticipants int         `json:"current_participants"`
	JoiningFee          int64       `json:"joining_fee"`
	Currency            string      `json:"currency"`
	Status              EventStatus `json:"status"`
	WaitlistEnabled     bool        `json:"waitlist_enabled"`
	Participants        []string    `json:"participants"`
	CreatedAt           time.Time   `json:"created_at"`
	UpdatedAt           time.Time   `json:"updated_at"`
	CancelledAt         *time.Time  `json:"cancelled_at,omitempty"`

	// WaitlistSeq is the last sequence number handed to a waitlist entry.
	WaitlistSeq int64 `json:"-"`
}

// Remaining returns the number of seats not held by a participant.
func (e *Event) Remaining() int {
	return e.MaxParticipants - e.CurrentParticipants
}

// IsFull returns true when no seats remain.
func (e *Event) IsFull() bool {
	return e.CurrentParticipants >= e.MaxParticipants
}

// IsTerminal reports whether the event no longer accepts ledger changes.
func (e *Event) IsTerminal() bool {
	return e.Status == StatusCancelled || e.Status == StatusCompleted
}

// IsPaid reports whether joining requires a payment.
func (e *Event) IsPaid() bool {
	return e.JoiningFee > 0
}

// EndTime is the moment after which the event counts as finished.
func (e *Event) EndTime() time.Time {
	if e.EndsAt != nil {
		return *e.EndsAt
	}
	return e.StartsAt
}

// Clone returns a deep copy safe to hand out of a locked section.
func (e *Event) Clone() *Event {
	if e == nil {
		return nil
	}
	c := *e
	c.Participants = slices.Clone(e.Participants)
	if e.EndsAt != nil {
		t := *e.EndsAt
		c.EndsAt = &t
	}
	if e.CancelledAt != nil {
		t := *e.CancelledAt
		c.CancelledAt = &t
	}
	return &c
}

// Role is a user's privilege level in the directory.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// User is the subset of the user directory the participation core consumes.
type User struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

// IsAdmin reports whether the user may moderate any event.
func (u *User) IsAdmin() bool {
	return u != nil && u.Role == RoleAdmin
}

// RegisterUserRequest is the payload for adding a user to the directory.
type RegisterUserRequest struct {
	Name  string `json:"name" validate:"required,max=100"`
	Email string `json:"email" validate:"required,email,max=254"`
}

// CreateEventRequest is the payload for creating a new event.
type CreateEventRequest struct {
	Title           string     `json:"title" validate:"required,max=200"`
	Description     string     `json:"description" validate:"max=5000"`
	Location        string     `json:"location" validate:"max=500"`
	StartsAt        time.Time  `json:"starts_at" validate:"required"`
	EndsAt          *time.Time `json:"ends_at,omitempty"`
	MinParticipants int        `json:"min_participants" validate:"gte=0"`
	MaxParticipants int        `json:"max_participants" validate:"required,gte=1,lte=100000"`
	JoiningFee      int64      `json:"joining_fee" validate:"gte=0"`
	Currency        string     `json:"currency" validate:"omitempty,len=3,alpha"`
	WaitlistEnabled bool       `json:"waitlist_enabled"`
}

// ResizeRequest is the payload for changing an event's capacity.
type ResizeRequest struct {
	MaxParticipants int `json:"max_participants" validate:"required,gte=1,lte=100000"`
}

// ListEventsFilter narrows event listings.
type ListEventsFilter struct {
	Status EventStatus
	HostID string
	Limit  int
}

// ErrorResponse is a standard JSON error envelope.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// JoinOutcome tells the caller which branch a join request took.
type JoinOutcome string

const (
	OutcomeJoined          JoinOutcome = "joined"
	OutcomeWaitlisted      JoinOutcome = "waitlisted"
	OutcomePaymentRequired JoinOutcome = "payment_required"
)

// JoinResult summarises the outcome of a single join attempt.
type JoinResult struct {
	Outcome JoinOutcome    `json:"outcome"`
	Event   *Event         `json:"event"`
	Ticket  *WaitlistEntry `json:"ticket,omitempty"`
	Payment *Payment       `json:"payment,omitempty"`
}
