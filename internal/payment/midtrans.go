package payment

import (
	"context"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strings"

	midtrans "github.com/midtrans/midtrans-go"
	"github.com/midtrans/midtrans-go/snap"

	"github.com/Shivanand-hulikatti/events-activities/internal/model"
)

// Midtrans creates Snap checkouts.
type Midtrans struct {
	client    snap.Client
	serverKey string
}

// NewMidtrans returns a Snap processor for the sandbox or production environment.
func NewMidtrans(serverKey string, production bool) *Midtrans {
	m := &Midtrans{serverKey: serverKey}
	env := midtrans.Sandbox
	if production {
		env = midtrans.Production
	}
	m.client.New(serverKey, env)
	return m
}

// ServerKey is the key webhook signatures are checked against.
func (m *Midtrans) ServerKey() string {
	return m.serverKey
}

// CreateIntent opens a Snap transaction using the payment id as order id.
func (m *Midtrans) CreateIntent(ctx context.Context, order Order) (model.PaymentIntent, error) {
	if err := ctx.Err(); err != nil {
		return model.PaymentIntent{}, err
	}
	gross, err := MajorUnits(order.Amount, order.Currency)
	if err != nil {
		return model.PaymentIntent{}, err
	}
	if gross <= 0 {
		return model.PaymentIntent{}, fmt.Errorf("invalid gross amount %d", gross)
	}

	req := &snap.Request{
		TransactionDetails: midtrans.TransactionDetails{
			OrderID:  order.PaymentID,
			GrossAmt: gross,
		},
		Items: &[]midtrans.ItemDetails{{
			ID:    order.EventID,
			Name:  truncate(order.EventTitle, 50),
			Price: gross,
			Qty:   1,
		}},
	}
	if c := order.Customer; c != nil {
		req.CustomerDetail = &midtrans.CustomerDetails{FName: c.Name, Email: c.Email}
	}

	resp, mErr := m.client.CreateTransaction(req)
	if mErr != nil {
		return model.PaymentIntent{}, mErr
	}
	return model.PaymentIntent{Token: resp.Token, RedirectURL: resp.RedirectURL}, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// Notification is the HTTP notification Midtrans posts on status changes.
type Notification struct {
	TransactionTime   string `json:"transaction_time"`
	TransactionStatus string `json:"transaction_status"`
	TransactionID     string `json:"transaction_id"`
	StatusCode        string `json:"status_code"`
	SignatureKey      string `json:"signature_key"`
	OrderID           string `json:"order_id"`
	GrossAmount       string `json:"gross_amount"`
	PaymentType       string `json:"payment_type"`
	FraudStatus       string `json:"fraud_status"`
}

// Signature computes SHA512(order_id + status_code + gross_amount + server_key).
func Signature(orderID, statusCode, grossAmount, serverKey string) string {
	sum := sha512.Sum512([]byte(orderID + statusCode + grossAmount + serverKey))
	return hex.EncodeToString(sum[:])
}

// Verify reports whether n was signed with serverKey.
func (n Notification) Verify(serverKey string) bool {
	want := strings.ToLower(strings.TrimSpace(n.SignatureKey))
	if want == "" || serverKey == "" {
		return false
	}
	got := Signature(n.OrderID, n.StatusCode, n.GrossAmount, serverKey)
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}

// Action is what a notification asks the service to do with a payment.
type Action int

const (
	ActionNone Action = iota
	ActionConfirm
	ActionRefund
	ActionFail
)

func (a Action) String() string {
	switch a {
	case ActionConfirm:
		return "confirm"
	case ActionRefund:
		return "refund"
	case ActionFail:
		return "fail"
	}
	return "none"
}

// Classify maps transaction_status (and fraud_status for card captures).
// Pending and challenged captures need no action yet.
func (n Notification) Classify() Action {
	switch strings.ToLower(n.TransactionStatus) {
	case "settlement":
		return ActionConfirm
	case "capture":
		switch strings.ToLower(n.FraudStatus) {
		case "accept", "":
			return ActionConfirm
		case "challenge":
			return ActionNone
		}
		return ActionFail
	case "refund", "partial_refund":
		return ActionRefund
	case "deny", "cancel", "expire", "failure":
		return ActionFail
	}
	return ActionNone
}
