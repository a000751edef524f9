// Package memory implements the store on in-process maps. It is the
// reference backend for tests and single-node development, with the
// same transactional semantics the durable backends provide.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/xraph/telco"
	"github.com/xraph/telco/contract"
	"github.com/xraph/telco/id"
	"github.com/xraph/telco/payment"
	"github.com/xraph/telco/sim"
	"github.com/xraph/telco/store"
	"github.com/xraph/telco/tariff"
	"github.com/xraph/telco/traffic"
)

// commitRetries bounds the automatic re-run of a contract transaction
// after a concurrent writer bumped a SIM version under us.
const commitRetries = 3

type Store struct {
	mu sync.RWMutex

	tariffs   map[string]*tariff.Tariff
	sims      map[string]*sim.SIM
	contracts map[string]*contract.Contract

	// payments preserves append order; paymentIdx maps id -> position.
	payments   []*payment.Entry
	paymentIdx map[string]int

	metrics []*traffic.Metric

	// contractLocks serializes transactions per contract. Entries are
	// created on first use and never removed.
	lockMu        sync.Mutex
	contractLocks map[string]*sync.Mutex
}

var _ store.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		tariffs:       make(map[string]*tariff.Tariff),
		sims:          make(map[string]*sim.SIM),
		contracts:     make(map[string]*contract.Contract),
		payments:      make([]*payment.Entry, 0),
		paymentIdx:    make(map[string]int),
		metrics:       make([]*traffic.Metric, 0),
		contractLocks: make(map[string]*sync.Mutex),
	}
}

// Tariff Store implementation

func (s *Store) CreateTariff(_ context.Context, t *tariff.Tariff) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tariffs[t.ID.String()]; exists {
		return telco.ErrAlreadyExists
	}
	s.tariffs[t.ID.String()] = cloneTariff(t)
	return nil
}

func (s *Store) GetTariff(_ context.Context, tariffID id.TariffID) (*tariff.Tariff, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if t, ok := s.tariffs[tariffID.String()]; ok {
		return cloneTariff(t), nil
	}
	return nil, telco.ErrTariffNotFound
}

func (s *Store) ListTariffs(_ context.Context, opts tariff.ListOpts) ([]*tariff.Tariff, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*tariff.Tariff, 0)
	for _, t := range s.tariffs {
		if opts.ActiveOnly && !t.IsActive {
			continue
		}
		if opts.Kind != "" && t.Kind != opts.Kind {
			continue
		}
		result = append(result, cloneTariff(t))
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Priority != result[j].Priority {
			return result[i].Priority > result[j].Priority
		}
		return result[i].ID.String() < result[j].ID.String()
	})
	return paginate(result, opts.Offset, opts.Limit), nil
}

func (s *Store) UpdateTariff(_ context.Context, t *tariff.Tariff) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tariffs[t.ID.String()]; !exists {
		return telco.ErrTariffNotFound
	}
	s.tariffs[t.ID.String()] = cloneTariff(t)
	return nil
}

func (s *Store) DeleteTariff(_ context.Context, tariffID id.TariffID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.tariffs, tariffID.String())
	return nil
}

// SIM Store implementation

func (s *Store) CreateSIM(_ context.Context, card *sim.SIM) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sims[card.ID.String()]; exists {
		return telco.ErrAlreadyExists
	}
	for _, existing := range s.sims {
		if existing.ICCID == card.ICCID || existing.IMSI == card.IMSI || existing.MSISDN == card.MSISDN {
			return telco.ErrAlreadyExists
		}
	}
	s.sims[card.ID.String()] = cloneSIM(card)
	return nil
}

func (s *Store) GetSIM(_ context.Context, simID id.SIMID) (*sim.SIM, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if card, ok := s.sims[simID.String()]; ok {
		return cloneSIM(card), nil
	}
	return nil, telco.ErrSIMNotFound
}

func (s *Store) GetSIMByICCID(_ context.Context, iccid string) (*sim.SIM, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, card := range s.sims {
		if card.ICCID == iccid {
			return cloneSIM(card), nil
		}
	}
	return nil, telco.ErrSIMNotFound
}

func (s *Store) GetSIMByMSISDN(_ context.Context, msisdn string) (*sim.SIM, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, card := range s.sims {
		if card.MSISDN == msisdn {
			return cloneSIM(card), nil
		}
	}
	return nil, telco.ErrSIMNotFound
}

func (s *Store) ListSIMs(_ context.Context, opts sim.ListOpts) ([]*sim.SIM, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*sim.SIM, 0)
	for _, card := range s.sims {
		if opts.Status == "" || card.Status == opts.Status {
			result = append(result, cloneSIM(card))
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ICCID < result[j].ICCID })
	return paginate(result, opts.Offset, opts.Limit), nil
}

func (s *Store) UpdateSIM(_ context.Context, card *sim.SIM) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, exists := s.sims[card.ID.String()]
	if !exists {
		return telco.ErrSIMNotFound
	}
	if stored.Version != card.Version {
		return telco.ErrVersionConflict
	}
	updated := cloneSIM(card)
	updated.Version++
	s.sims[card.ID.String()] = updated
	return nil
}

// Contract Store implementation

func (s *Store) CreateContract(_ context.Context, c *contract.Contract) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.contracts[c.ID.String()]; exists {
		return telco.ErrAlreadyExists
	}
	for _, existing := range s.contracts {
		if existing.Number == c.Number {
			return telco.ErrAlreadyExists
		}
	}
	s.contracts[c.ID.String()] = cloneContract(c)
	return nil
}

func (s *Store) GetContract(_ context.Context, contractID id.ContractID) (*contract.Contract, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if c, ok := s.contracts[contractID.String()]; ok {
		return cloneContract(c), nil
	}
	return nil, telco.ErrContractNotFound
}

func (s *Store) GetContractByNumber(_ context.Context, number string) (*contract.Contract, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, c := range s.contracts {
		if c.Number == number {
			return cloneContract(c), nil
		}
	}
	return nil, telco.ErrContractNotFound
}

func (s *Store) ListContracts(_ context.Context, opts contract.ListOpts) ([]*contract.Contract, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*contract.Contract, 0)
	for _, c := range s.contracts {
		if opts.Status != "" && c.Status != opts.Status {
			continue
		}
		if !opts.CustomerID.IsNil() && c.CustomerID != opts.CustomerID {
			continue
		}
		result = append(result, cloneContract(c))
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Number < result[j].Number })
	return paginate(result, opts.Offset, opts.Limit), nil
}

func (s *Store) ListContractsBillingDue(_ context.Context, asOf time.Time) ([]*contract.Contract, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*contract.Contract, 0)
	for _, c := range s.contracts {
		if c.BillingDue(asOf) {
			result = append(result, cloneContract(c))
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Number < result[j].Number })
	return result, nil
}

func (s *Store) ListContractsNegativeBalance(_ context.Context) ([]*contract.Contract, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*contract.Contract, 0)
	for _, c := range s.contracts {
		if c.Status == contract.StatusActive && c.Balance.IsNegative() {
			result = append(result, cloneContract(c))
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Number < result[j].Number })
	return result, nil
}

func (s *Store) ContractStats(_ context.Context) (*contract.Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := &contract.Stats{ByStatus: make(map[contract.Status]int64)}

	var activeCount, activeBalance int64
	for _, c := range s.contracts {
		stats.Total++
		stats.ByStatus[c.Status]++
		stats.TotalBalance += c.Balance.Amount
		if stats.Currency == "" {
			stats.Currency = c.Balance.Currency
		}
		if c.Status == contract.StatusActive {
			activeCount++
			activeBalance += c.Balance.Amount
		}
	}
	if activeCount > 0 {
		stats.AvgBalance = activeBalance / activeCount
	}
	return stats, nil
}

// Payment Store implementation

func (s *Store) GetPayment(_ context.Context, paymentID id.PaymentID) (*payment.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if idx, ok := s.paymentIdx[paymentID.String()]; ok {
		return clonePayment(s.payments[idx]), nil
	}
	return nil, telco.ErrPaymentNotFound
}

func (s *Store) GetPaymentByTransactionID(_ context.Context, transactionID string) (*payment.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if transactionID == "" {
		return nil, telco.ErrPaymentNotFound
	}
	for _, e := range s.payments {
		if e.TransactionID == transactionID {
			return clonePayment(e), nil
		}
	}
	return nil, telco.ErrPaymentNotFound
}

func (s *Store) ListPayments(_ context.Context, opts payment.ListOpts) ([]*payment.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*payment.Entry, 0)
	for _, e := range s.payments {
		if !opts.ContractID.IsNil() && e.ContractID != opts.ContractID {
			continue
		}
		if opts.Type != "" && e.Type != opts.Type {
			continue
		}
		if opts.Status != "" && e.Status != opts.Status {
			continue
		}
		result = append(result, clonePayment(e))
	}
	return paginate(result, opts.Offset, opts.Limit), nil
}

func (s *Store) ListUnsettledPayments(_ context.Context, before time.Time) ([]*payment.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*payment.Entry, 0)
	for _, e := range s.payments {
		if e.Status != payment.StatusPending && e.Status != payment.StatusProcessing {
			continue
		}
		if e.CreatedAt.Before(before) {
			result = append(result, clonePayment(e))
		}
	}
	return result, nil
}

// Traffic metric Store implementation

func (s *Store) InsertMetrics(_ context.Context, metrics []*traffic.Metric) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, m := range metrics {
		clone := *m
		s.metrics = append(s.metrics, &clone)
	}
	return nil
}

func (s *Store) ListMetrics(_ context.Context, opts traffic.ListOpts) ([]*traffic.Metric, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*traffic.Metric, 0)
	for _, m := range s.metrics {
		if opts.Source != "" && m.Source != opts.Source {
			continue
		}
		if !opts.Since.IsZero() && m.RecordedAt.Before(opts.Since) {
			continue
		}
		if !opts.Until.IsZero() && !m.RecordedAt.Before(opts.Until) {
			continue
		}
		clone := *m
		result = append(result, &clone)
	}
	return paginate(result, opts.Offset, opts.Limit), nil
}

func (s *Store) PurgeMetrics(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var count int64
	kept := make([]*traffic.Metric, 0, len(s.metrics))
	for _, m := range s.metrics {
		if m.RecordedAt.Before(before) {
			count++
		} else {
			kept = append(kept, m)
		}
	}
	s.metrics = kept
	return count, nil
}

// Store management

func (s *Store) Migrate(_ context.Context) error {
	return nil // No migration needed for memory store
}

func (s *Store) Ping(_ context.Context) error {
	return nil // Always available
}

func (s *Store) Close() error {
	return nil // Nothing to close
}

// Helper functions

func (s *Store) contractLock(contractID id.ContractID) *sync.Mutex {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()

	key := contractID.String()
	if l, ok := s.contractLocks[key]; ok {
		return l
	}
	l := &sync.Mutex{}
	s.contractLocks[key] = l
	return l
}

func paginate[T any](items []T, offset, limit int) []T {
	start := offset
	if start > len(items) {
		start = len(items)
	}
	end := start + limit
	if limit == 0 || end > len(items) {
		end = len(items)
	}
	return items[start:end]
}

func cloneTariff(t *tariff.Tariff) *tariff.Tariff {
	clone := *t
	return &clone
}

func cloneSIM(card *sim.SIM) *sim.SIM {
	clone := *card
	clone.ActivatedAt = cloneTime(card.ActivatedAt)
	clone.DeactivatedAt = cloneTime(card.DeactivatedAt)
	return &clone
}

func cloneContract(c *contract.Contract) *contract.Contract {
	clone := *c
	clone.ActivationDate = cloneTime(c.ActivationDate)
	clone.TerminationDate = cloneTime(c.TerminationDate)
	clone.NextBillingDate = cloneTime(c.NextBillingDate)
	return &clone
}

func clonePayment(e *payment.Entry) *payment.Entry {
	clone := *e
	clone.ProcessedAt = cloneTime(e.ProcessedAt)
	if e.BalanceAfter != nil {
		ba := *e.BalanceAfter
		clone.BalanceAfter = &ba
	}
	return &clone
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	clone := *t
	return &clone
}
