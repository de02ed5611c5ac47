// Package render turns domain events into the human-readable text stored on
// activity and notification records.
package render

import (
	"math"
	"strings"
	"time"

	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

// Key names a message in the catalog.
type Key string

const (
	ActivityJoined        Key = "activity.event_joined"
	ActivityLeft          Key = "activity.event_left"
	ActivityCancelled     Key = "activity.event_cancelled"
	ActivityCompleted     Key = "activity.event_completed"
	ActivityAttended      Key = "activity.event_attended"
	ActivityWaitlisted    Key = "activity.waitlist_joined"
	ActivityPaymentStart  Key = "activity.payment_started"
	NotifyJoined          Key = "notify.participant_joined"
	NotifyLeft            Key = "notify.participant_left"
	NotifyCancelled       Key = "notify.event_cancelled"
	NotifyReopened        Key = "notify.event_reopened"
	NotifyOffered         Key = "notify.waitlist_offered"
	NotifyOfferExpired    Key = "notify.waitlist_expired"
	NotifyPaymentRefunded Key = "notify.payment_refunded"
)

// DeadlineLayout formats offer deadlines.
const DeadlineLayout = "Mon 2 Jan 15:04 MST"

// Renderer prints catalog messages for one locale.
type Renderer struct {
	tag     language.Tag
	printer *message.Printer
	loc     *time.Location
}

// New returns a Renderer for locale, falling back to English for unknown
// tags. Deadlines are shown in loc, or UTC when loc is nil.
func New(locale string, loc *time.Location) *Renderer {
	tag := language.English
	if t, err := language.Parse(strings.TrimSpace(locale)); err == nil {
		_, idx, _ := matcher.Match(t)
		tag = supported[idx]
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Renderer{tag: tag, printer: message.NewPrinter(tag), loc: loc}
}

// Tag reports the locale actually in use.
func (r *Renderer) Tag() language.Tag {
	return r.tag
}

// Message prints key with args.
func (r *Renderer) Message(key Key, args ...any) string {
	return r.printer.Sprintf(string(key), args...)
}

// Deadline formats t in the renderer's zone.
func (r *Renderer) Deadline(t time.Time) string {
	return t.In(r.loc).Format(DeadlineLayout)
}

// Amount formats a value held in minor units, e.g. "IDR 150,000" or "USD 12.50".
func (r *Renderer) Amount(minor int64, code string) string {
	unit, err := currency.ParseISO(code)
	if err != nil {
		return r.printer.Sprintf("%d", minor)
	}
	scale, _ := currency.Standard.Rounding(unit)
	if scale == 0 {
		return r.printer.Sprintf("%v %d", unit, minor)
	}
	major := float64(minor) / math.Pow10(scale)
	return r.printer.Sprintf("%v %v", unit, number.Decimal(major, number.Scale(scale)))
}
