package model

import "errors"

// Kind groups error codes by how callers should react to them.
type Kind int

const (
	KindInternal Kind = iota
	KindNotFound
	KindValidation
	KindStateConflict
	KindAuthorization
	KindExternalDependency
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindValidation:
		return "validation"
	case KindStateConflict:
		return "state_conflict"
	case KindAuthorization:
		return "authorization"
	case KindExternalDependency:
		return "external_dependency"
	default:
		return "internal"
	}
}

// Code is a machine-readable error code.
type Code string

// Error is the domain error type. Two errors match under errors.Is when
// their codes are equal, so wrapped copies still match the sentinels below.
type Error struct {
	Kind    Kind
	Code    Code
	Message string
	Cause   error
}

// NewError creates a domain error.
func NewError(kind Kind, code Code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target carries the same code.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Code == t.Code
	}
	return false
}

// Wrap returns a copy of e carrying cause.
func (e *Error) Wrap(cause error) *Error {
	c := *e
	c.Cause = cause
	return &c
}

// WithMessage returns a copy of e with a more specific message.
func (e *Error) WithMessage(message string) *Error {
	c := *e
	c.Message = message
	return &c
}

// KindOf extracts the kind of a domain error; anything else is internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Invalid builds a validation error with a free-form message.
func Invalid(message string) *Error {
	return NewError(KindValidation, "VALIDATION_FAILED", message)
}

var (
	ErrEventNotFound        = NewError(KindNotFound, "EVENT_NOT_FOUND", "event not found")
	ErrUserNotFound         = NewError(KindNotFound, "USER_NOT_FOUND", "user not found")
	ErrPaymentNotFound      = NewError(KindNotFound, "PAYMENT_NOT_FOUND", "payment not found")
	ErrNotificationNotFound = NewError(KindNotFound, "NOTIFICATION_NOT_FOUND", "notification not found")
	ErrNotOnWaitlist        = NewError(KindNotFound, "NOT_ON_WAITLIST", "you are not on the waitlist for this event")

	ErrInvalidCapacity   = NewError(KindValidation, "INVALID_CAPACITY", "capacity is out of bounds")
	ErrIsHost            = NewError(KindValidation, "IS_HOST", "hosts cannot join their own event")
	ErrAlreadyWaitlisted = NewError(KindValidation, "ALREADY_WAITLISTED", "you are already on the waitlist for this event")

	ErrEventFull         = NewError(KindStateConflict, "EVENT_FULL", "event is fully booked")
	ErrAlreadyJoined     = NewError(KindStateConflict, "ALREADY_JOINED", "you already joined this event")
	ErrNotAParticipant   = NewError(KindStateConflict, "NOT_A_PARTICIPANT", "you are not a participant of this event")
	ErrEventCancelled    = NewError(KindStateConflict, "EVENT_CANCELLED", "event has been cancelled")
	ErrEventCompleted    = NewError(KindStateConflict, "EVENT_COMPLETED", "event has already taken place")
	ErrAlreadyCancelled  = NewError(KindStateConflict, "ALREADY_CANCELLED", "event is already cancelled")
	ErrEventNotCancelled = NewError(KindStateConflict, "EVENT_NOT_CANCELLED", "only cancelled events can be reopened")
	ErrNoActiveOffer     = NewError(KindStateConflict, "NO_ACTIVE_OFFER", "you have no open seat offer for this event")
	ErrPaymentState      = NewError(KindStateConflict, "PAYMENT_STATE", "payment cannot make this transition")
	ErrEmailTaken        = NewError(KindStateConflict, "EMAIL_TAKEN", "a user with this email already exists")

	ErrNotAuthorized    = NewError(KindAuthorization, "NOT_AUTHORIZED", "only the host or an admin can do this")
	ErrUnauthenticated  = NewError(KindAuthorization, "UNAUTHENTICATED", "authentication required")
	ErrInvalidSignature = NewError(KindAuthorization, "INVALID_SIGNATURE", "invalid payment notification signature")

	ErrPaymentProcessor = NewError(KindExternalDependency, "PAYMENT_PROCESSOR", "payment processor unavailable")
)
