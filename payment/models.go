// Package payment models the ledger: every balance mutation is
// recorded as exactly one entry carrying the post-transaction balance
// snapshot.
package payment

import (
	"errors"
	"time"

	"github.com/xraph/telco/id"
	"github.com/xraph/telco/types"
)

type Type string

const (
	TypePayment    Type = "payment"    // increases balance
	TypeCharge     Type = "charge"     // decreases balance
	TypeRefund     Type = "refund"     // decreases balance, reverses a payment
	TypeCorrection Type = "correction" // operator credit adjustment, increases balance
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusSuccess    Status = "success"
	StatusFailed     Status = "failed"
	StatusRefunded   Status = "refunded"
)

type Method string

const (
	MethodCash      Method = "cash"
	MethodCard      Method = "card"
	MethodBank      Method = "bank_transfer"
	MethodGateway   Method = "gateway"
	MethodAutoTopUp Method = "auto_topup"
	MethodSystem    Method = "system"
)

var (
	ErrNotPending    = errors.New("payment: entry is not pending")
	ErrNotSuccess    = errors.New("payment: entry is not successful")
	ErrNotRefundable = errors.New("payment: only successful payments are refundable")
	ErrInvalidAmount = errors.New("payment: amount must be positive")
	ErrAlreadyFinal  = errors.New("payment: entry already finalized")
)

// Entry is one ledger record. Amount is always the non-negative
// magnitude; the direction is implied by Type. BalanceAfter and
// ProcessedAt are set exactly once, at the success transition, which is
// also the only point the owning contract's balance mutates.
type Entry struct {
	types.Entity
	ID         id.PaymentID  `json:"id"`
	ContractID id.ContractID `json:"contract_id"`
	Type       Type          `json:"type"`
	Status     Status        `json:"status"`
	Method     Method        `json:"method"`
	Amount     types.Money   `json:"amount"`

	// TransactionID is the external gateway reference, unique when set.
	TransactionID string `json:"transaction_id,omitempty"`
	Description   string `json:"description,omitempty"`

	// RefundOf links a refund entry back to the refunded payment.
	RefundOf id.PaymentID `json:"refund_of,omitempty"`

	// BillingPeriod tags monthly-fee charges with their due date
	// (YYYY-MM-DD) so a rerun sweep can detect an already-billed period.
	BillingPeriod string `json:"billing_period,omitempty"`

	BalanceAfter *types.Money `json:"balance_after,omitempty"`
	ProcessedAt  *time.Time   `json:"processed_at,omitempty"`
	ProcessedBy  string       `json:"processed_by,omitempty"`

	FailureReason string `json:"failure_reason,omitempty"`
}

// New creates a pending entry. The engine settles it immediately for
// interactive credits/debits, or later for gateway payments.
func New(contractID id.ContractID, typ Type, method Method, amount types.Money, description string, now time.Time) (*Entry, error) {
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}

	return &Entry{
		Entity:      types.NewEntityAt(now),
		ID:          id.NewPaymentID(),
		ContractID:  contractID,
		Type:        typ,
		Status:      StatusPending,
		Method:      method,
		Amount:      amount,
		Description: description,
	}, nil
}

// SignedEffect is the entry's contribution to the contract balance:
// positive for payment and correction, negative for charge and refund.
// A refund debits the balance because the money leaves the account and
// returns to the subscriber through the gateway; it reverses the
// credit the refunded payment applied rather than granting a second
// one.
func (e *Entry) SignedEffect() types.Money {
	if e.Type == TypeCharge || e.Type == TypeRefund {
		return e.Amount.Negate()
	}
	return e.Amount
}

// IsFinal reports whether the entry has reached a terminal status.
func (e *Entry) IsFinal() bool {
	switch e.Status {
	case StatusSuccess, StatusFailed, StatusRefunded:
		return true
	default:
		return false
	}
}

// MarkProcessing moves a pending entry into processing while waiting on
// an external gateway.
func (e *Entry) MarkProcessing(now time.Time) error {
	if e.Status != StatusPending {
		return ErrNotPending
	}

	e.Status = StatusProcessing
	e.Touch(now)
	return nil
}

// MarkSuccess finalizes the entry with the post-transaction balance
// snapshot. It is the exactly-once settlement point: a second call on
// an already-settled entry fails.
func (e *Entry) MarkSuccess(balanceAfter types.Money, processedBy string, now time.Time) error {
	if e.IsFinal() {
		return ErrAlreadyFinal
	}

	e.Status = StatusSuccess
	e.BalanceAfter = &balanceAfter
	e.ProcessedAt = &now
	e.ProcessedBy = processedBy
	e.Touch(now)
	return nil
}

// MarkFailed finalizes the entry without touching any balance.
func (e *Entry) MarkFailed(reason string, now time.Time) error {
	if e.IsFinal() {
		return ErrAlreadyFinal
	}

	e.Status = StatusFailed
	e.FailureReason = reason
	e.ProcessedAt = &now
	e.Touch(now)
	return nil
}

// MarkRefunded flips a successful payment to refunded. The refund
// amount itself travels on a new linked entry, never by mutating this
// one.
func (e *Entry) MarkRefunded(now time.Time) error {
	if e.Type != TypePayment || e.Status != StatusSuccess {
		return ErrNotRefundable
	}

	e.Status = StatusRefunded
	e.Touch(now)
	return nil
}
