// Package gateway defines the payment gateway abstraction used to
// collect online top-ups. The engine only ever talks to the Client
// interface; the sandbox implementation in this package stands in for
// a real provider integration.
package gateway

import (
	"context"
	"errors"
	"time"

	"github.com/xraph/telco/types"
)

var (
	ErrDeclined           = errors.New("gateway: payment declined")
	ErrUnknownTransaction = errors.New("gateway: unknown transaction")
	ErrInvalidAmount      = errors.New("gateway: amount must be positive")
)

// Status is the provider-side state of a payment.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusRefunded  Status = "refunded"
)

// Link is a hosted payment page created at the provider. The
// TransactionID is the provider's identifier and is stored on the
// ledger entry so the settlement sweep can poll for it.
type Link struct {
	TransactionID string      `json:"transaction_id"`
	URL           string      `json:"url"`
	Amount        types.Money `json:"amount"`
	CreatedAt     time.Time   `json:"created_at"`
	ExpiresAt     time.Time   `json:"expires_at"`
}

// Client is a payment gateway integration.
type Client interface {
	// Name identifies the gateway in logs and ledger entries.
	Name() string

	// CreatePaymentLink registers a pending payment at the provider
	// and returns the hosted page the subscriber should be sent to.
	CreatePaymentLink(ctx context.Context, amount types.Money, description string) (*Link, error)

	// CheckStatus polls the provider for the current state of a
	// transaction.
	CheckStatus(ctx context.Context, transactionID string) (Status, error)

	// Refund asks the provider to return a completed payment.
	Refund(ctx context.Context, transactionID string, amount types.Money) error
}
