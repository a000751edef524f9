// Package store defines the unified storage interface implemented by
// the memory, sqlite, postgres, and mongo backends.
package store

import (
	"context"
	"time"

	"github.com/xraph/telco/contract"
	"github.com/xraph/telco/id"
	"github.com/xraph/telco/payment"
	"github.com/xraph/telco/sim"
	"github.com/xraph/telco/tariff"
	"github.com/xraph/telco/traffic"
)

// Store is the unified storage interface for all Telco entities.
// Instead of embedding the sub-interfaces, we explicitly declare all methods
// to avoid naming conflicts.
type Store interface {
	// Tariff methods
	CreateTariff(ctx context.Context, t *tariff.Tariff) error
	GetTariff(ctx context.Context, tariffID id.TariffID) (*tariff.Tariff, error)
	ListTariffs(ctx context.Context, opts tariff.ListOpts) ([]*tariff.Tariff, error)
	UpdateTariff(ctx context.Context, t *tariff.Tariff) error
	DeleteTariff(ctx context.Context, tariffID id.TariffID) error

	// SIM methods
	CreateSIM(ctx context.Context, s *sim.SIM) error
	GetSIM(ctx context.Context, simID id.SIMID) (*sim.SIM, error)
	GetSIMByICCID(ctx context.Context, iccid string) (*sim.SIM, error)
	GetSIMByMSISDN(ctx context.Context, msisdn string) (*sim.SIM, error)
	ListSIMs(ctx context.Context, opts sim.ListOpts) ([]*sim.SIM, error)
	UpdateSIM(ctx context.Context, s *sim.SIM) error

	// Contract methods
	CreateContract(ctx context.Context, c *contract.Contract) error
	GetContract(ctx context.Context, contractID id.ContractID) (*contract.Contract, error)
	GetContractByNumber(ctx context.Context, number string) (*contract.Contract, error)
	ListContracts(ctx context.Context, opts contract.ListOpts) ([]*contract.Contract, error)
	ListContractsBillingDue(ctx context.Context, asOf time.Time) ([]*contract.Contract, error)
	ListContractsNegativeBalance(ctx context.Context) ([]*contract.Contract, error)
	ContractStats(ctx context.Context) (*contract.Stats, error)

	// Payment methods
	GetPayment(ctx context.Context, paymentID id.PaymentID) (*payment.Entry, error)
	GetPaymentByTransactionID(ctx context.Context, transactionID string) (*payment.Entry, error)
	ListPayments(ctx context.Context, opts payment.ListOpts) ([]*payment.Entry, error)
	ListUnsettledPayments(ctx context.Context, before time.Time) ([]*payment.Entry, error)

	// Traffic metric methods
	InsertMetrics(ctx context.Context, metrics []*traffic.Metric) error
	ListMetrics(ctx context.Context, opts traffic.ListOpts) ([]*traffic.Metric, error)
	PurgeMetrics(ctx context.Context, before time.Time) (int64, error)

	// InContractTx runs fn inside a transaction scoped to one contract.
	// All writes staged through the Tx commit atomically; two concurrent
	// transactions on the same contract serialize. Transactions on
	// different contracts are independent.
	InContractTx(ctx context.Context, contractID id.ContractID, fn func(tx Tx) error) error

	// Core methods
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

// Tx is the transactional view handed to InContractTx callbacks. Reads
// observe staged writes from the same transaction. The contract row is
// locked for the duration; SIM access is included because state
// cascades touch the bound (or about-to-be-bound) card.
type Tx interface {
	Contract(ctx context.Context) (*contract.Contract, error)
	SaveContract(ctx context.Context, c *contract.Contract) error

	SIM(ctx context.Context, simID id.SIMID) (*sim.SIM, error)
	SaveSIM(ctx context.Context, s *sim.SIM) error

	Payment(ctx context.Context, paymentID id.PaymentID) (*payment.Entry, error)
	AppendPayment(ctx context.Context, e *payment.Entry) error
	SavePayment(ctx context.Context, e *payment.Entry) error
	HasChargeForPeriod(ctx context.Context, period string) (bool, error)
}
