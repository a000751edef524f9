package contract

import (
	"context"
	"time"

	"github.com/xraph/telco/id"
)

type Store interface {
	Create(ctx context.Context, c *Contract) error
	Get(ctx context.Context, contractID id.ContractID) (*Contract, error)
	GetByNumber(ctx context.Context, number string) (*Contract, error)
	List(ctx context.Context, opts ListOpts) ([]*Contract, error)
	Update(ctx context.Context, c *Contract) error

	// Sweep selectors.
	ListBillingDue(ctx context.Context, asOf time.Time) ([]*Contract, error)
	ListNegativeBalance(ctx context.Context) ([]*Contract, error)
}

type ListOpts struct {
	Status     Status
	CustomerID id.CustomerID
	Limit      int
	Offset     int
}

// Stats is the aggregate view over the contract book. Balances are in
// minor units of the book currency.
type Stats struct {
	Total        int64            `json:"total"`
	ByStatus     map[Status]int64 `json:"by_status"`
	TotalBalance int64            `json:"total_balance"`
	AvgBalance   int64            `json:"avg_balance"`
	Currency     string           `json:"currency"`
}
