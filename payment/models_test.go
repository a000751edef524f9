package payment

import (
	"errors"
	"testing"
	"time"

	"github.com/xraph/telco/id"
	"github.com/xraph/telco/types"
)

var now = time.Date(2025, 3, 15, 12, 0, 0, 0, time.UTC)

func pendingEntry(t *testing.T, typ Type) *Entry {
	t.Helper()
	e, err := New(id.NewContractID(), typ, MethodCash, types.KGS(10000), "test entry", now)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return e
}

func TestNewRejectsNonPositive(t *testing.T) {
	for _, amount := range []types.Money{types.KGS(0), types.KGS(-100)} {
		_, err := New(id.NewContractID(), TypePayment, MethodCash, amount, "", now)
		if !errors.Is(err, ErrInvalidAmount) {
			t.Errorf("New(%v): expected ErrInvalidAmount, got %v", amount, err)
		}
	}
}

func TestSignedEffect(t *testing.T) {
	tests := []struct {
		typ      Type
		expected types.Money
	}{
		{TypePayment, types.KGS(10000)},
		{TypeRefund, types.KGS(-10000)},
		{TypeCorrection, types.KGS(10000)},
		{TypeCharge, types.KGS(-10000)},
	}

	for _, tt := range tests {
		t.Run(string(tt.typ), func(t *testing.T) {
			e := pendingEntry(t, tt.typ)
			if got := e.SignedEffect(); !got.Equal(tt.expected) {
				t.Errorf("SignedEffect = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestMarkSuccess(t *testing.T) {
	e := pendingEntry(t, TypePayment)

	if err := e.MarkSuccess(types.KGS(10000), "operator-1", now); err != nil {
		t.Fatalf("MarkSuccess failed: %v", err)
	}
	if e.Status != StatusSuccess {
		t.Errorf("expected success, got %s", e.Status)
	}
	if e.BalanceAfter == nil || !e.BalanceAfter.Equal(types.KGS(10000)) {
		t.Errorf("expected balance_after 10000, got %v", e.BalanceAfter)
	}
	if e.ProcessedAt == nil || !e.ProcessedAt.Equal(now) {
		t.Errorf("expected processed_at %v, got %v", now, e.ProcessedAt)
	}
	if e.ProcessedBy != "operator-1" {
		t.Errorf("expected processed_by operator-1, got %q", e.ProcessedBy)
	}

	// Settlement is exactly-once: the snapshot is immutable.
	if err := e.MarkSuccess(types.KGS(99999), "operator-2", now); !errors.Is(err, ErrAlreadyFinal) {
		t.Errorf("second settle: expected ErrAlreadyFinal, got %v", err)
	}
	if !e.BalanceAfter.Equal(types.KGS(10000)) {
		t.Errorf("balance_after mutated on failed resettle: %v", e.BalanceAfter)
	}
}

func TestMarkProcessing(t *testing.T) {
	e := pendingEntry(t, TypePayment)

	if err := e.MarkProcessing(now); err != nil {
		t.Fatalf("MarkProcessing failed: %v", err)
	}
	if e.Status != StatusProcessing {
		t.Errorf("expected processing, got %s", e.Status)
	}
	if err := e.MarkProcessing(now); !errors.Is(err, ErrNotPending) {
		t.Errorf("double processing: expected ErrNotPending, got %v", err)
	}

	// Processing entries can still settle.
	if err := e.MarkSuccess(types.KGS(10000), "", now); err != nil {
		t.Fatalf("settle from processing failed: %v", err)
	}
}

func TestMarkFailed(t *testing.T) {
	e := pendingEntry(t, TypePayment)

	if err := e.MarkFailed("declined", now); err != nil {
		t.Fatalf("MarkFailed failed: %v", err)
	}
	if e.Status != StatusFailed {
		t.Errorf("expected failed, got %s", e.Status)
	}
	if e.FailureReason != "declined" {
		t.Errorf("expected failure reason, got %q", e.FailureReason)
	}
	if e.BalanceAfter != nil {
		t.Error("failed entry must not carry a balance snapshot")
	}

	if err := e.MarkSuccess(types.KGS(1), "", now); !errors.Is(err, ErrAlreadyFinal) {
		t.Errorf("settle after failure: expected ErrAlreadyFinal, got %v", err)
	}
}

func TestMarkRefunded(t *testing.T) {
	e := pendingEntry(t, TypePayment)
	if err := e.MarkSuccess(types.KGS(10000), "", now); err != nil {
		t.Fatal(err)
	}

	if err := e.MarkRefunded(now); err != nil {
		t.Fatalf("MarkRefunded failed: %v", err)
	}
	if e.Status != StatusRefunded {
		t.Errorf("expected refunded, got %s", e.Status)
	}

	// Only successful payments are refundable.
	charge := pendingEntry(t, TypeCharge)
	if err := charge.MarkSuccess(types.KGS(0), "", now); err != nil {
		t.Fatal(err)
	}
	if err := charge.MarkRefunded(now); !errors.Is(err, ErrNotRefundable) {
		t.Errorf("refund of charge: expected ErrNotRefundable, got %v", err)
	}

	pending := pendingEntry(t, TypePayment)
	if err := pending.MarkRefunded(now); !errors.Is(err, ErrNotRefundable) {
		t.Errorf("refund of pending: expected ErrNotRefundable, got %v", err)
	}
}

func TestIsFinal(t *testing.T) {
	tests := []struct {
		status Status
		final  bool
	}{
		{StatusPending, false},
		{StatusProcessing, false},
		{StatusSuccess, true},
		{StatusFailed, true},
		{StatusRefunded, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			e := pendingEntry(t, TypePayment)
			e.Status = tt.status
			if got := e.IsFinal(); got != tt.final {
				t.Errorf("IsFinal() = %v, want %v", got, tt.final)
			}
		})
	}
}
