package memory

import (
	"context"
	"errors"

	"github.com/xraph/telco"
	"github.com/xraph/telco/contract"
	"github.com/xraph/telco/id"
	"github.com/xraph/telco/payment"
	"github.com/xraph/telco/sim"
	"github.com/xraph/telco/store"
)

// InContractTx serializes transactions per contract with a dedicated
// mutex, stages all writes in the Tx view, and commits them in one
// critical section. SIM rows are not covered by the contract lock (a
// free card can be fought over by two contracts), so staged SIM writes
// are verified against the version observed at read time; on a
// conflict the whole callback re-runs with fresh reads.
func (s *Store) InContractTx(ctx context.Context, contractID id.ContractID, fn func(tx store.Tx) error) error {
	lock := s.contractLock(contractID)
	lock.Lock()
	defer lock.Unlock()

	var err error
	for attempt := 0; attempt < commitRetries; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		t := &memTx{store: s, contractID: contractID}
		if err = fn(t); err != nil {
			return err
		}

		err = s.commit(t)
		if !errors.Is(err, telco.ErrVersionConflict) {
			return err
		}
	}
	return err
}

type simStage struct {
	card        *sim.SIM
	readVersion int64
	dirty       bool
}

type memTx struct {
	store      *Store
	contractID id.ContractID

	contract      *contract.Contract
	contractDirty bool

	sims map[string]*simStage

	appended []*payment.Entry
	updated  map[string]*payment.Entry
}

var _ store.Tx = (*memTx)(nil)

func (t *memTx) Contract(_ context.Context) (*contract.Contract, error) {
	if t.contract != nil {
		return t.contract, nil
	}

	t.store.mu.RLock()
	defer t.store.mu.RUnlock()

	c, ok := t.store.contracts[t.contractID.String()]
	if !ok {
		return nil, telco.ErrContractNotFound
	}
	t.contract = cloneContract(c)
	return t.contract, nil
}

func (t *memTx) SaveContract(_ context.Context, c *contract.Contract) error {
	if c.ID != t.contractID {
		return telco.ErrTransactionFailed
	}
	t.contract = c
	t.contractDirty = true
	return nil
}

func (t *memTx) SIM(_ context.Context, simID id.SIMID) (*sim.SIM, error) {
	if t.sims == nil {
		t.sims = make(map[string]*simStage)
	}
	if stage, ok := t.sims[simID.String()]; ok {
		return stage.card, nil
	}

	t.store.mu.RLock()
	defer t.store.mu.RUnlock()

	card, ok := t.store.sims[simID.String()]
	if !ok {
		return nil, telco.ErrSIMNotFound
	}
	stage := &simStage{card: cloneSIM(card), readVersion: card.Version}
	t.sims[simID.String()] = stage
	return stage.card, nil
}

func (t *memTx) SaveSIM(_ context.Context, card *sim.SIM) error {
	if t.sims == nil {
		t.sims = make(map[string]*simStage)
	}
	stage, ok := t.sims[card.ID.String()]
	if !ok {
		// Saved without a prior read inside this tx.
		stage = &simStage{readVersion: card.Version}
		t.sims[card.ID.String()] = stage
	}
	stage.card = card
	stage.dirty = true
	return nil
}

func (t *memTx) Payment(_ context.Context, paymentID id.PaymentID) (*payment.Entry, error) {
	key := paymentID.String()
	if e, ok := t.updated[key]; ok {
		return e, nil
	}
	for _, e := range t.appended {
		if e.ID == paymentID {
			return e, nil
		}
	}

	t.store.mu.RLock()
	defer t.store.mu.RUnlock()

	if idx, ok := t.store.paymentIdx[key]; ok {
		return clonePayment(t.store.payments[idx]), nil
	}
	return nil, telco.ErrPaymentNotFound
}

func (t *memTx) AppendPayment(_ context.Context, e *payment.Entry) error {
	t.appended = append(t.appended, e)
	return nil
}

func (t *memTx) SavePayment(_ context.Context, e *payment.Entry) error {
	for _, staged := range t.appended {
		if staged.ID == e.ID {
			*staged = *e
			return nil
		}
	}
	if t.updated == nil {
		t.updated = make(map[string]*payment.Entry)
	}
	t.updated[e.ID.String()] = e
	return nil
}

func (t *memTx) HasChargeForPeriod(_ context.Context, period string) (bool, error) {
	match := func(e *payment.Entry) bool {
		return e.ContractID == t.contractID &&
			e.Type == payment.TypeCharge &&
			e.Status == payment.StatusSuccess &&
			e.BillingPeriod == period
	}

	for _, e := range t.appended {
		if match(e) {
			return true, nil
		}
	}

	t.store.mu.RLock()
	defer t.store.mu.RUnlock()

	for _, e := range t.store.payments {
		if staged, ok := t.updated[e.ID.String()]; ok {
			e = staged
		}
		if match(e) {
			return true, nil
		}
	}
	return false, nil
}

// commit applies staged writes atomically. Returns ErrVersionConflict
// if any staged SIM was modified by another transaction since it was
// read here.
func (s *Store) commit(t *memTx) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, stage := range t.sims {
		if !stage.dirty {
			continue
		}
		stored, ok := s.sims[key]
		if !ok {
			return telco.ErrSIMNotFound
		}
		if stored.Version != stage.readVersion {
			return telco.ErrVersionConflict
		}
	}

	for _, e := range t.appended {
		if e.TransactionID != "" {
			for _, existing := range s.payments {
				if existing.TransactionID == e.TransactionID {
					return telco.ErrAlreadyExists
				}
			}
		}
	}

	if t.contractDirty {
		stored, ok := s.contracts[t.contractID.String()]
		if !ok {
			return telco.ErrContractNotFound
		}
		updated := cloneContract(t.contract)
		updated.Version = stored.Version + 1
		s.contracts[t.contractID.String()] = updated
	}

	for key, stage := range t.sims {
		if !stage.dirty {
			continue
		}
		updated := cloneSIM(stage.card)
		updated.Version = stage.readVersion + 1
		s.sims[key] = updated
	}

	for _, e := range t.appended {
		s.paymentIdx[e.ID.String()] = len(s.payments)
		s.payments = append(s.payments, clonePayment(e))
	}
	for key, e := range t.updated {
		idx, ok := s.paymentIdx[key]
		if !ok {
			return telco.ErrPaymentNotFound
		}
		s.payments[idx] = clonePayment(e)
	}

	return nil
}
