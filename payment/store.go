package payment

import (
	"context"
	"time"

	"github.com/xraph/telco/id"
)

type Store interface {
	Create(ctx context.Context, e *Entry) error
	Get(ctx context.Context, paymentID id.PaymentID) (*Entry, error)
	GetByTransactionID(ctx context.Context, transactionID string) (*Entry, error)
	List(ctx context.Context, opts ListOpts) ([]*Entry, error)
	Update(ctx context.Context, e *Entry) error

	// ListUnsettled returns pending and processing entries older than
	// the cutoff, for the settlement sweep.
	ListUnsettled(ctx context.Context, before time.Time) ([]*Entry, error)

	// HasChargeForPeriod reports whether a successful monthly-fee
	// charge tagged with the period already exists for the contract.
	HasChargeForPeriod(ctx context.Context, contractID id.ContractID, period string) (bool, error)
}

type ListOpts struct {
	ContractID id.ContractID
	Type       Type
	Status     Status
	Limit      int
	Offset     int
}
