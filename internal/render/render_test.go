package render

import (
	"testing"
	"time"

	"golang.org/x/text/language"
)

func TestMessageEnglish(t *testing.T) {
	t.Parallel()

	r := New("en-US", nil)
	if got, want := r.Message(NotifyJoined, "Ana", "Sunday hike"), "Ana joined your event Sunday hike"; got != want {
		t.Fatalf("message = %q, want %q", got, want)
	}
	if got, want := r.Message(ActivityWaitlisted, 3, "Sunday hike"), "You are #3 on the waitlist for Sunday hike"; got != want {
		t.Fatalf("message = %q, want %q", got, want)
	}
}

func TestNewFallsBackToEnglish(t *testing.T) {
	t.Parallel()

	for _, locale := range []string{"", "not a tag", "fr"} {
		if got := New(locale, nil).Tag(); got != language.English {
			t.Fatalf("New(%q).Tag() = %v, want en", locale, got)
		}
	}
	if got := New("id", nil).Tag(); got != language.Indonesian {
		t.Fatalf("indonesian tag = %v", got)
	}
}

func TestIndonesianCatalog(t *testing.T) {
	t.Parallel()

	r := New("id", nil)
	if got, want := r.Message(NotifyCancelled, "Yoga pagi"), "Yoga pagi dibatalkan"; got != want {
		t.Fatalf("message = %q, want %q", got, want)
	}
}

func TestAmount(t *testing.T) {
	t.Parallel()

	r := New("en", nil)
	tests := []struct {
		minor int64
		code  string
		want  string
	}{
		{minor: 1500, code: "JPY", want: "JPY 1,500"},
		{minor: 1250, code: "USD", want: "USD 12.50"},
		{minor: 42, code: "", want: "42"},
	}
	for _, tc := range tests {
		if got := r.Amount(tc.minor, tc.code); got != tc.want {
			t.Errorf("Amount(%d, %q) = %q, want %q", tc.minor, tc.code, got, tc.want)
		}
	}
}

func TestDeadlineUsesLocation(t *testing.T) {
	t.Parallel()

	jakarta := time.FixedZone("WIB", 7*3600)
	r := New("en", jakarta)
	at := time.Date(2026, 3, 2, 5, 30, 0, 0, time.UTC)
	if got, want := r.Deadline(at), "Mon 2 Mar 12:30 WIB"; got != want {
		t.Fatalf("deadline = %q, want %q", got, want)
	}
}
