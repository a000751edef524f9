package telco

import (
	"context"
	"fmt"
	"time"

	"github.com/xraph/telco/contract"
	"github.com/xraph/telco/id"
	"github.com/xraph/telco/notify"
	"github.com/xraph/telco/sim"
	"github.com/xraph/telco/store"
	"github.com/xraph/telco/tariff"
	"github.com/xraph/telco/types"
)

// ──────────────────────────────────────────────────
// Tariff Management
// ──────────────────────────────────────────────────

// CreateTariff creates a new tariff plan.
func (e *Engine) CreateTariff(ctx context.Context, t *tariff.Tariff) error {
	if t.ID.IsNil() {
		t.ID = id.NewTariffID()
	}
	t.Entity = types.NewEntityAt(e.clock())

	if t.Name == "" {
		return types.ValidationError{Field: "name", Message: "is required"}
	}

	if err := e.store.CreateTariff(ctx, t); err != nil {
		return err
	}

	e.logger.Info("tariff created",
		"tariff_id", t.ID,
		"name", t.Name,
		"kind", t.Kind,
	)
	return nil
}

// GetTariff retrieves a tariff by ID.
func (e *Engine) GetTariff(ctx context.Context, tariffID id.TariffID) (*tariff.Tariff, error) {
	return e.store.GetTariff(ctx, tariffID)
}

// ListTariffs lists tariffs.
func (e *Engine) ListTariffs(ctx context.Context, opts tariff.ListOpts) ([]*tariff.Tariff, error) {
	return e.store.ListTariffs(ctx, opts)
}

// UpdateTariff updates a tariff. Existing contracts keep their tariff
// reference; changed prices apply from the next rating.
func (e *Engine) UpdateTariff(ctx context.Context, t *tariff.Tariff) error {
	t.Touch(e.clock())
	return e.store.UpdateTariff(ctx, t)
}

// ArchiveTariff takes a tariff off sale. Contracts already on it are
// unaffected, but no new contract can select it.
func (e *Engine) ArchiveTariff(ctx context.Context, tariffID id.TariffID) error {
	t, err := e.store.GetTariff(ctx, tariffID)
	if err != nil {
		return err
	}

	t.IsActive = false
	t.Touch(e.clock())
	if err := e.store.UpdateTariff(ctx, t); err != nil {
		return err
	}

	e.logger.Info("tariff archived", "tariff_id", tariffID, "name", t.Name)
	return nil
}

// ──────────────────────────────────────────────────
// SIM Management
// ──────────────────────────────────────────────────

// RegisterSIM adds a new card to the free pool.
func (e *Engine) RegisterSIM(ctx context.Context, card *sim.SIM) error {
	if card.ID.IsNil() {
		card.ID = id.NewSIMID()
	}
	card.Entity = types.NewEntityAt(e.clock())
	if card.Status == "" {
		card.Status = sim.StatusFree
	}

	if err := card.Validate(); err != nil {
		return err
	}

	return e.store.CreateSIM(ctx, card)
}

// GetSIM retrieves a SIM by ID.
func (e *Engine) GetSIM(ctx context.Context, simID id.SIMID) (*sim.SIM, error) {
	return e.store.GetSIM(ctx, simID)
}

// GetSIMByMSISDN retrieves a SIM by phone number.
func (e *Engine) GetSIMByMSISDN(ctx context.Context, msisdn string) (*sim.SIM, error) {
	return e.store.GetSIMByMSISDN(ctx, msisdn)
}

// ListSIMs lists SIM cards.
func (e *Engine) ListSIMs(ctx context.Context, opts sim.ListOpts) ([]*sim.SIM, error) {
	return e.store.ListSIMs(ctx, opts)
}

// BlockSIM blocks a card, typically reported lost or stolen. The
// owning contract keeps its status; service resumes when the card is
// unblocked or replaced.
func (e *Engine) BlockSIM(ctx context.Context, simID id.SIMID, reason string) error {
	card, err := e.store.GetSIM(ctx, simID)
	if err != nil {
		return err
	}

	if err := card.Block(e.clock()); err != nil {
		return err
	}
	if err := e.store.UpdateSIM(ctx, card); err != nil {
		return err
	}

	e.logger.Info("sim blocked", "sim_id", simID, "msisdn", card.MSISDN, "reason", reason)
	e.plugins.EmitSIMBlocked(ctx, card, reason)
	if !card.ContractID.IsNil() {
		e.notify(ctx, card.ContractID, notify.KindSIMBlocked,
			fmt.Sprintf("SIM %s blocked: %s", card.MSISDN, reason))
	}
	return nil
}

// UnblockSIM restores a blocked card after PUK verification.
func (e *Engine) UnblockSIM(ctx context.Context, simID id.SIMID, puk string) error {
	card, err := e.store.GetSIM(ctx, simID)
	if err != nil {
		return err
	}

	if card.PUK != "" && card.PUK != puk {
		return types.ValidationError{Field: "puk", Message: "does not match"}
	}

	if err := card.Unblock(e.clock()); err != nil {
		return err
	}
	if err := e.store.UpdateSIM(ctx, card); err != nil {
		return err
	}

	e.logger.Info("sim unblocked", "sim_id", simID, "msisdn", card.MSISDN)
	e.plugins.EmitSIMUnblocked(ctx, card)
	return nil
}

// CloseSIM permanently retires a free card.
func (e *Engine) CloseSIM(ctx context.Context, simID id.SIMID) error {
	card, err := e.store.GetSIM(ctx, simID)
	if err != nil {
		return err
	}

	if err := card.Close(e.clock()); err != nil {
		return err
	}
	return e.store.UpdateSIM(ctx, card)
}

// ──────────────────────────────────────────────────
// Contract Management
// ──────────────────────────────────────────────────

// CreateContract creates a draft contract for a customer on a tariff.
// The contract currency follows the tariff.
func (e *Engine) CreateContract(ctx context.Context, customerID id.CustomerID, tariffID id.TariffID) (*contract.Contract, error) {
	if customerID.IsNil() {
		return nil, ErrMissingCustomer
	}

	if e.customers != nil {
		ok, err := e.customers.Exists(ctx, customerID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, ErrCustomerNotFound
		}
	}

	t, err := e.store.GetTariff(ctx, tariffID)
	if err != nil {
		return nil, err
	}
	if !t.IsActive {
		return nil, ErrTariffArchived
	}

	c := contract.New(customerID, tariffID, t.MonthlyFee.Currency, e.clock())
	if err := e.store.CreateContract(ctx, c); err != nil {
		return nil, err
	}

	e.logger.Info("contract created",
		"contract_id", c.ID,
		"number", c.Number,
		"customer_id", customerID,
		"tariff_id", tariffID,
	)
	e.plugins.EmitContractCreated(ctx, c)
	return c, nil
}

// GetContract retrieves a contract by ID.
func (e *Engine) GetContract(ctx context.Context, contractID id.ContractID) (*contract.Contract, error) {
	return e.store.GetContract(ctx, contractID)
}

// GetContractByNumber retrieves a contract by its printed number.
func (e *Engine) GetContractByNumber(ctx context.Context, number string) (*contract.Contract, error) {
	return e.store.GetContractByNumber(ctx, number)
}

// ListContracts lists contracts.
func (e *Engine) ListContracts(ctx context.Context, opts contract.ListOpts) ([]*contract.Contract, error) {
	return e.store.ListContracts(ctx, opts)
}

// Statistics returns the aggregate view over the contract book.
func (e *Engine) Statistics(ctx context.Context) (*contract.Stats, error) {
	return e.store.ContractStats(ctx)
}

// ActivateContract moves a draft contract into service by binding a
// free SIM to it. The contract mutation and the card binding commit
// atomically; a concurrent activation of the same card loses with
// sim.ErrNotFree.
func (e *Engine) ActivateContract(ctx context.Context, contractID id.ContractID, simID id.SIMID) (*contract.Contract, error) {
	now := e.clock()
	var activated *contract.Contract

	err := e.store.InContractTx(ctx, contractID, func(tx store.Tx) error {
		c, err := tx.Contract(ctx)
		if err != nil {
			return err
		}

		effects, err := c.Activate(simID, now)
		if err != nil {
			return err
		}
		if err := e.applySIMEffects(ctx, tx, c, simID, effects, now); err != nil {
			return err
		}

		if err := tx.SaveContract(ctx, c); err != nil {
			return err
		}
		activated = c
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("contract activated",
		"contract_id", contractID,
		"sim_id", simID,
		"next_billing", activated.NextBillingDate,
	)
	e.plugins.EmitContractActivated(ctx, activated)
	return activated, nil
}

// SuspendContract pauses service on an active contract. The bound SIM
// suspends in the same transaction.
func (e *Engine) SuspendContract(ctx context.Context, contractID id.ContractID, reason string) (*contract.Contract, error) {
	now := e.clock()
	var suspended *contract.Contract

	err := e.store.InContractTx(ctx, contractID, func(tx store.Tx) error {
		c, err := tx.Contract(ctx)
		if err != nil {
			return err
		}

		simID := c.SIMID
		effects, err := c.Suspend(reason, now)
		if err != nil {
			return err
		}
		if err := e.applySIMEffects(ctx, tx, c, simID, effects, now); err != nil {
			return err
		}

		if err := tx.SaveContract(ctx, c); err != nil {
			return err
		}
		suspended = c
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("contract suspended", "contract_id", contractID, "reason", reason)
	e.plugins.EmitContractSuspended(ctx, suspended, reason)
	e.notify(ctx, contractID, notify.KindSuspended, "service suspended: "+reason)
	return suspended, nil
}

// ResumeContract reactivates a suspended contract and its SIM.
func (e *Engine) ResumeContract(ctx context.Context, contractID id.ContractID) (*contract.Contract, error) {
	now := e.clock()
	var resumed *contract.Contract

	err := e.store.InContractTx(ctx, contractID, func(tx store.Tx) error {
		c, err := tx.Contract(ctx)
		if err != nil {
			return err
		}

		simID := c.SIMID
		effects, err := c.Resume(now)
		if err != nil {
			return err
		}
		if err := e.applySIMEffects(ctx, tx, c, simID, effects, now); err != nil {
			return err
		}

		if err := tx.SaveContract(ctx, c); err != nil {
			return err
		}
		resumed = c
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("contract resumed", "contract_id", contractID)
	e.plugins.EmitContractResumed(ctx, resumed)
	e.notify(ctx, contractID, notify.KindResumed, "service resumed")
	return resumed, nil
}

// TerminateContract permanently ends a contract and returns its SIM to
// the free pool.
func (e *Engine) TerminateContract(ctx context.Context, contractID id.ContractID) (*contract.Contract, error) {
	now := e.clock()
	var terminated *contract.Contract

	err := e.store.InContractTx(ctx, contractID, func(tx store.Tx) error {
		c, err := tx.Contract(ctx)
		if err != nil {
			return err
		}

		// Terminate clears the SIM reference, so capture it first.
		simID := c.SIMID
		effects, err := c.Terminate(now)
		if err != nil {
			return err
		}
		if err := e.applySIMEffects(ctx, tx, c, simID, effects, now); err != nil {
			return err
		}

		if err := tx.SaveContract(ctx, c); err != nil {
			return err
		}
		terminated = c
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("contract terminated", "contract_id", contractID)
	e.plugins.EmitContractTerminated(ctx, terminated)
	return terminated, nil
}

// applySIMEffects executes the SIM cascades a contract transition
// returned, inside the same transaction. simID is the affected card;
// it is passed explicitly because Terminate clears c.SIMID before
// returning the release effect.
func (e *Engine) applySIMEffects(ctx context.Context, tx store.Tx, c *contract.Contract, simID id.SIMID, effects []contract.Effect, now time.Time) error {
	for _, effect := range effects {
		if simID.IsNil() {
			return contract.ErrNoSIM
		}

		card, err := tx.SIM(ctx, simID)
		if err != nil {
			return err
		}

		switch effect {
		case contract.EffectBindSIM:
			err = card.Bind(c.ID, now)
		case contract.EffectSuspendSIM:
			err = card.Suspend(now)
		case contract.EffectResumeSIM:
			err = card.Resume(now)
		case contract.EffectReleaseSIM:
			err = card.Unbind(now)
		default:
			return fmt.Errorf("%w: unknown effect %q", ErrInvalidInput, effect)
		}
		if err != nil {
			return err
		}

		if err := tx.SaveSIM(ctx, card); err != nil {
			return err
		}
	}
	return nil
}
