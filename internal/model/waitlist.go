package model

import (
	"sort"
	"time"
)

// WaitlistStatus is the lifecycle state of a waitlist entry.
type WaitlistStatus string

const (
	WaitlistWaiting  WaitlistStatus = "waiting"
	WaitlistOffered  WaitlistStatus = "offered"
	WaitlistAccepted WaitlistStatus = "accepted"
	WaitlistDeclined WaitlistStatus = "declined"
	WaitlistExpired  WaitlistStatus = "expired"
)

// WaitlistEntry is a user's place in line for a full event.
//
// Seq is assigned under the event lock and never reused; Position is
// derived from it on read.
type WaitlistEntry struct {
	ID             string         `json:"id"`
	EventID        string         `json:"event_id"`
	UserID         string         `json:"user_id"`
	Seq            int64          `json:"-"`
	Position       int            `json:"position,omitempty"`
	Status         WaitlistStatus `json:"status"`
	OfferExpiresAt *time.Time     `json:"offer_expires_at,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// IsActive reports whether the entry still holds a place in line.
func (w *WaitlistEntry) IsActive() bool {
	return w.Status == WaitlistWaiting || w.Status == WaitlistOffered
}

// OfferLive reports whether the entry holds an offer that has not expired at now.
func (w *WaitlistEntry) OfferLive(now time.Time) bool {
	return w.Status == WaitlistOffered && w.OfferExpiresAt != nil && now.Before(*w.OfferExpiresAt)
}

// AssignPositions orders entries by sequence and numbers the active ones
// from 1. Terminal entries get position 0.
func AssignPositions(entries []WaitlistEntry) []WaitlistEntry {
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].Seq < entries[j].Seq })
	pos := 0
	for i := range entries {
		if entries[i].IsActive() {
			pos++
			entries[i].Position = pos
		} else {
			entries[i].Position = 0
		}
	}
	return entries
}
