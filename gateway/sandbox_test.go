package gateway

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/xraph/telco/types"
)

func TestSandboxPaymentLifecycle(t *testing.T) {
	ctx := context.Background()
	gw := NewSandbox(WithSeed(1))

	link, err := gw.CreatePaymentLink(ctx, types.KGS(50000), "top-up")
	if err != nil {
		t.Fatalf("CreatePaymentLink failed: %v", err)
	}
	if link.TransactionID == "" {
		t.Error("expected a transaction id")
	}
	if !strings.Contains(link.URL, link.TransactionID) {
		t.Errorf("link URL %q does not reference the transaction", link.URL)
	}

	status, err := gw.CheckStatus(ctx, link.TransactionID)
	if err != nil {
		t.Fatalf("CheckStatus failed: %v", err)
	}
	if status != StatusCompleted {
		t.Errorf("full success rate: expected completed, got %s", status)
	}

	// Outcome sticks across polls.
	again, _ := gw.CheckStatus(ctx, link.TransactionID)
	if again != StatusCompleted {
		t.Errorf("expected stable outcome, got %s", again)
	}
}

func TestSandboxRejectsNonPositiveAmount(t *testing.T) {
	gw := NewSandbox()
	if _, err := gw.CreatePaymentLink(context.Background(), types.KGS(0), ""); !errors.Is(err, ErrInvalidAmount) {
		t.Errorf("expected ErrInvalidAmount, got %v", err)
	}
}

func TestSandboxDeclineVariant(t *testing.T) {
	ctx := context.Background()
	gw := NewAlwaysDecline()

	link, err := gw.CreatePaymentLink(ctx, types.KGS(10000), "")
	if err != nil {
		t.Fatal(err)
	}
	status, err := gw.CheckStatus(ctx, link.TransactionID)
	if err != nil {
		t.Fatal(err)
	}
	if status != StatusFailed {
		t.Errorf("decline variant: expected failed, got %s", status)
	}
}

func TestSandboxRefund(t *testing.T) {
	ctx := context.Background()
	gw := NewSandbox()

	link, _ := gw.CreatePaymentLink(ctx, types.KGS(20000), "")

	// Pending payments cannot be refunded.
	if err := gw.Refund(ctx, link.TransactionID, types.KGS(20000)); !errors.Is(err, ErrDeclined) {
		t.Errorf("refund of pending payment: expected ErrGatewayDeclined, got %v", err)
	}

	if _, err := gw.CheckStatus(ctx, link.TransactionID); err != nil {
		t.Fatal(err)
	}

	if err := gw.Refund(ctx, link.TransactionID, types.KGS(30000)); !errors.Is(err, ErrInvalidAmount) {
		t.Errorf("over-refund: expected ErrInvalidAmount, got %v", err)
	}
	if err := gw.Refund(ctx, link.TransactionID, types.KGS(20000)); err != nil {
		t.Fatalf("refund failed: %v", err)
	}

	status, _ := gw.CheckStatus(ctx, link.TransactionID)
	if status != StatusRefunded {
		t.Errorf("expected refunded, got %s", status)
	}

	if err := gw.Refund(ctx, "missing", types.KGS(100)); !errors.Is(err, ErrUnknownTransaction) {
		t.Errorf("unknown transaction: expected ErrPaymentNotFound, got %v", err)
	}
}
