package payment

import (
	"context"
	"testing"
)

func TestNotificationVerify(t *testing.T) {
	t.Parallel()

	const key = "SB-Mid-server-test"
	n := Notification{OrderID: "pay-1", StatusCode: "200", GrossAmount: "150000.00"}
	n.SignatureKey = Signature(n.OrderID, n.StatusCode, n.GrossAmount, key)

	if !n.Verify(key) {
		t.Fatal("expected signature to verify")
	}
	if n.Verify("other-key") {
		t.Fatal("signature verified with the wrong key")
	}

	tampered := n
	tampered.GrossAmount = "1.00"
	if tampered.Verify(key) {
		t.Fatal("tampered amount verified")
	}

	unsigned := n
	unsigned.SignatureKey = ""
	if unsigned.Verify(key) {
		t.Fatal("empty signature verified")
	}
}

func TestNotificationClassify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status string
		fraud  string
		want   Action
	}{
		{status: "settlement", want: ActionConfirm},
		{status: "capture", fraud: "accept", want: ActionConfirm},
		{status: "capture", fraud: "challenge", want: ActionNone},
		{status: "capture", fraud: "deny", want: ActionFail},
		{status: "pending", want: ActionNone},
		{status: "refund", want: ActionRefund},
		{status: "partial_refund", want: ActionRefund},
		{status: "deny", want: ActionFail},
		{status: "cancel", want: ActionFail},
		{status: "expire", want: ActionFail},
		{status: "failure", want: ActionFail},
		{status: "SETTLEMENT", want: ActionConfirm},
		{status: "something_new", want: ActionNone},
	}
	for _, tc := range tests {
		n := Notification{TransactionStatus: tc.status, FraudStatus: tc.fraud}
		if got := n.Classify(); got != tc.want {
			t.Errorf("Classify(%s/%s) = %v, want %v", tc.status, tc.fraud, got, tc.want)
		}
	}
}

func TestMajorUnits(t *testing.T) {
	t.Parallel()

	if got, err := MajorUnits(1500, "JPY"); err != nil || got != 1500 {
		t.Fatalf("JPY: got %d, %v", got, err)
	}
	if got, err := MajorUnits(1200, "USD"); err != nil || got != 12 {
		t.Fatalf("USD: got %d, %v", got, err)
	}
	if _, err := MajorUnits(1250, "USD"); err == nil {
		t.Fatal("expected fractional dollars to be rejected")
	}
	if _, err := MajorUnits(100, "not-a-currency"); err == nil {
		t.Fatal("expected unknown currency error")
	}
}

func TestManualIntent(t *testing.T) {
	t.Parallel()

	intent, err := Manual{BaseURL: "http://localhost:8080"}.CreateIntent(context.Background(), Order{PaymentID: "pay-1"})
	if err != nil {
		t.Fatalf("create intent: %v", err)
	}
	if intent.RedirectURL != "http://localhost:8080/payments/pay-1" || intent.Token != "pay-1" {
		t.Fatalf("unexpected intent: %+v", intent)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := (Manual{}).CreateIntent(ctx, Order{PaymentID: "pay-2"}); err == nil {
		t.Fatal("expected cancelled context error")
	}
}
