package model

import "time"

// PaymentStatus mirrors the processor-side state of a joining fee.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentFailed    PaymentStatus = "failed"
	PaymentRefunded  PaymentStatus = "refunded"
)

// Payment is a joining fee for one (user, event) pair. ID doubles as the
// order id sent to the processor.
type Payment struct {
	ID           string        `json:"id"`
	EventID      string        `json:"event_id"`
	UserID       string        `json:"user_id"`
	Amount       int64         `json:"amount"`
	Currency     string        `json:"currency"`
	Status       PaymentStatus `json:"status"`
	RedirectURL  string        `json:"redirect_url,omitempty"`
	ProcessorRef string        `json:"processor_ref,omitempty"`
	AppliedAt    *time.Time    `json:"applied_at,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// Applied reports whether the payment already produced a seat.
func (p *Payment) Applied() bool {
	return p.AppliedAt != nil
}

// PaymentIntent is what the processor hands back for a new payment.
type PaymentIntent struct {
	Token       string
	RedirectURL string
}
