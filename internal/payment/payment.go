// Package payment talks to the payment processor that gates paid joins.
package payment

import (
	"context"
	"fmt"
	"math"

	"golang.org/x/text/currency"

	"github.com/Shivanand-hulikatti/events-activities/internal/model"
)

// Order is what the processor needs to open a checkout for one payment.
type Order struct {
	PaymentID  string
	EventID    string
	EventTitle string
	Amount     int64
	Currency   string
	Customer   *model.User
}

// Processor creates checkout intents. Implementations must be safe for
// concurrent use.
type Processor interface {
	CreateIntent(ctx context.Context, order Order) (model.PaymentIntent, error)
}

// MajorUnits converts an amount held in ISO 4217 minor units to whole units.
// It refuses amounts that do not divide evenly.
func MajorUnits(minor int64, code string) (int64, error) {
	unit, err := currency.ParseISO(code)
	if err != nil {
		return 0, fmt.Errorf("currency %q: %w", code, err)
	}
	scale, _ := currency.Standard.Rounding(unit)
	div := int64(math.Pow10(scale))
	if minor%div != 0 {
		return 0, fmt.Errorf("amount %d %s has a fractional major unit", minor, code)
	}
	return minor / div, nil
}

// Manual issues local intents without contacting a processor. Payments are
// then settled by an admin through the confirm route.
type Manual struct {
	BaseURL string
}

// CreateIntent returns a redirect to the payment's confirm page.
func (m Manual) CreateIntent(ctx context.Context, order Order) (model.PaymentIntent, error) {
	if err := ctx.Err(); err != nil {
		return model.PaymentIntent{}, err
	}
	return model.PaymentIntent{
		Token:       order.PaymentID,
		RedirectURL: m.BaseURL + "/payments/" + order.PaymentID,
	}, nil
}
