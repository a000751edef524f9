package telco

import (
	"context"
	"fmt"
	"time"

	"github.com/xraph/telco/contract"
	"github.com/xraph/telco/gateway"
	"github.com/xraph/telco/id"
	"github.com/xraph/telco/notify"
	"github.com/xraph/telco/payment"
	"github.com/xraph/telco/store"
	"github.com/xraph/telco/tariff"
	"github.com/xraph/telco/types"
)

// systemOperator marks ledger entries settled by the engine itself
// rather than a human operator.
const systemOperator = "system"

// ──────────────────────────────────────────────────
// Balance Operations
// ──────────────────────────────────────────────────

// AddBalance credits a contract and settles the ledger entry in the
// same transaction. A suspended contract whose balance turns positive
// auto-resumes, SIM included.
func (e *Engine) AddBalance(ctx context.Context, contractID id.ContractID, amount types.Money, method payment.Method, description string) (*payment.Entry, error) {
	now := e.clock()
	var (
		entry   *payment.Entry
		resumed *contract.Contract
	)

	err := e.store.InContractTx(ctx, contractID, func(tx store.Tx) error {
		c, err := tx.Contract(ctx)
		if err != nil {
			return err
		}

		if amount.Currency != c.Balance.Currency {
			return ErrCurrencyMismatch
		}

		resumed = nil
		entry, err = payment.New(c.ID, payment.TypePayment, method, amount, description, now)
		if err != nil {
			return err
		}

		wasSuspended := c.Status == contract.StatusSuspended
		simID := c.SIMID
		effects, err := c.ApplyCredit(amount, now)
		if err != nil {
			return err
		}
		if err := e.applySIMEffects(ctx, tx, c, simID, effects, now); err != nil {
			return err
		}
		if wasSuspended && c.Status == contract.StatusActive {
			resumed = c
		}

		if err := entry.MarkSuccess(c.Balance, systemOperator, now); err != nil {
			return err
		}
		if err := tx.AppendPayment(ctx, entry); err != nil {
			return err
		}
		return tx.SaveContract(ctx, c)
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("balance credited",
		"contract_id", contractID,
		"amount", amount,
		"method", method,
		"balance_after", entry.BalanceAfter,
	)
	e.plugins.EmitPaymentProcessed(ctx, entry)
	if method == payment.MethodAutoTopUp {
		e.plugins.EmitAutoTopUp(ctx, contractID, entry)
		e.notify(ctx, contractID, notify.KindAutoTopUp,
			fmt.Sprintf("auto top-up: %s", amount.FormatMajor()))
	} else {
		e.notify(ctx, contractID, notify.KindPaymentReceipt,
			fmt.Sprintf("payment received: %s", amount.FormatMajor()))
	}
	if resumed != nil {
		e.plugins.EmitContractResumed(ctx, resumed)
		e.notify(ctx, contractID, notify.KindResumed, "service resumed")
	}
	return entry, nil
}

// ApplyCorrection credits a contract with an operator adjustment,
// recorded as a correction entry attributed to the operator.
func (e *Engine) ApplyCorrection(ctx context.Context, contractID id.ContractID, amount types.Money, operator, reason string) (*payment.Entry, error) {
	now := e.clock()
	var (
		entry   *payment.Entry
		resumed *contract.Contract
	)

	err := e.store.InContractTx(ctx, contractID, func(tx store.Tx) error {
		c, err := tx.Contract(ctx)
		if err != nil {
			return err
		}

		if amount.Currency != c.Balance.Currency {
			return ErrCurrencyMismatch
		}

		resumed = nil
		entry, err = payment.New(c.ID, payment.TypeCorrection, payment.MethodSystem, amount, reason, now)
		if err != nil {
			return err
		}

		wasSuspended := c.Status == contract.StatusSuspended
		simID := c.SIMID
		effects, err := c.ApplyCredit(amount, now)
		if err != nil {
			return err
		}
		if err := e.applySIMEffects(ctx, tx, c, simID, effects, now); err != nil {
			return err
		}
		if wasSuspended && c.Status == contract.StatusActive {
			resumed = c
		}

		if err := entry.MarkSuccess(c.Balance, operator, now); err != nil {
			return err
		}
		if err := tx.AppendPayment(ctx, entry); err != nil {
			return err
		}
		return tx.SaveContract(ctx, c)
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("correction applied",
		"contract_id", contractID,
		"operator", operator,
		"amount", amount,
		"reason", reason,
	)
	e.plugins.EmitPaymentProcessed(ctx, entry)
	if resumed != nil {
		e.plugins.EmitContractResumed(ctx, resumed)
		e.notify(ctx, contractID, notify.KindResumed, "service resumed")
	}
	return entry, nil
}

// DeductBalance debits a contract and settles the ledger entry in the
// same transaction. An active contract driven negative auto-suspends,
// SIM included.
func (e *Engine) DeductBalance(ctx context.Context, contractID id.ContractID, amount types.Money, description string) (*payment.Entry, error) {
	return e.applyCharge(ctx, contractID, amount, "", description)
}

// applyCharge is the shared debit path for direct deductions, monthly
// fees, and usage rating. A non-empty billingPeriod tags the entry and
// enforces once-per-period idempotency.
func (e *Engine) applyCharge(ctx context.Context, contractID id.ContractID, amount types.Money, billingPeriod, description string) (*payment.Entry, error) {
	now := e.clock()
	var (
		entry     *payment.Entry
		suspended *contract.Contract
	)

	err := e.store.InContractTx(ctx, contractID, func(tx store.Tx) error {
		c, err := tx.Contract(ctx)
		if err != nil {
			return err
		}

		if amount.Currency != c.Balance.Currency {
			return ErrCurrencyMismatch
		}

		if billingPeriod != "" {
			charged, err := tx.HasChargeForPeriod(ctx, billingPeriod)
			if err != nil {
				return err
			}
			if charged {
				return ErrAlreadyBilled
			}
		}

		suspended = nil
		entry, err = payment.New(c.ID, payment.TypeCharge, payment.MethodSystem, amount, description, now)
		if err != nil {
			return err
		}
		entry.BillingPeriod = billingPeriod

		wasActive := c.Status == contract.StatusActive
		simID := c.SIMID
		effects, err := c.ApplyDebit(amount, now)
		if err != nil {
			return err
		}
		if err := e.applySIMEffects(ctx, tx, c, simID, effects, now); err != nil {
			return err
		}
		if wasActive && c.Status == contract.StatusSuspended {
			suspended = c
		}

		if billingPeriod != "" {
			due, err := time.Parse("2006-01-02", billingPeriod)
			if err != nil {
				return fmt.Errorf("%w: bad billing period %q", ErrInvalidInput, billingPeriod)
			}
			c.AdvanceBilling(due)
		}

		if err := entry.MarkSuccess(c.Balance, systemOperator, now); err != nil {
			return err
		}
		if err := tx.AppendPayment(ctx, entry); err != nil {
			return err
		}
		return tx.SaveContract(ctx, c)
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("balance debited",
		"contract_id", contractID,
		"amount", amount,
		"billing_period", billingPeriod,
		"balance_after", entry.BalanceAfter,
	)
	e.plugins.EmitPaymentProcessed(ctx, entry)
	if suspended != nil {
		e.plugins.EmitBalanceNegative(ctx, suspended)
		e.plugins.EmitContractSuspended(ctx, suspended, "insufficient balance")
		e.notify(ctx, contractID, notify.KindSuspended, "service suspended: insufficient balance")
	}
	return entry, nil
}

// ChargeMonthlyFee charges the contract's monthly fee for the billing
// period currently due. The next billing date advances one month from
// the due date, not from now, so late sweeps do not drift the cycle.
// Charging an already-billed period fails with ErrAlreadyBilled.
func (e *Engine) ChargeMonthlyFee(ctx context.Context, contractID id.ContractID) (*payment.Entry, error) {
	c, err := e.store.GetContract(ctx, contractID)
	if err != nil {
		return nil, err
	}
	if c.Status != contract.StatusActive {
		return nil, contract.ErrNotActive
	}
	if !c.BillingDue(e.clock()) {
		return nil, ErrBillingNotDue
	}

	t, err := e.store.GetTariff(ctx, c.TariffID)
	if err != nil {
		return nil, err
	}

	due := *c.NextBillingDate
	period := due.Format("2006-01-02")

	if !t.MonthlyFee.IsPositive() {
		// Free tariff: advance the cycle without a ledger entry.
		err := e.store.InContractTx(ctx, contractID, func(tx store.Tx) error {
			cc, err := tx.Contract(ctx)
			if err != nil {
				return err
			}
			cc.AdvanceBilling(due)
			cc.Touch(e.clock())
			return tx.SaveContract(ctx, cc)
		})
		return nil, err
	}

	return e.applyCharge(ctx, contractID, t.MonthlyFee, period,
		fmt.Sprintf("monthly fee %s (%s)", period, t.Name))
}

// RecordUsage rates a usage sample against the contract's tariff
// allowances and debits any overage. Usage within allowances returns
// a nil entry and no charge.
func (e *Engine) RecordUsage(ctx context.Context, contractID id.ContractID, usage tariff.Usage) (*payment.Entry, error) {
	if usage.Minutes < 0 || usage.SMS < 0 || usage.DataGB < 0 {
		return nil, ErrInvalidInput
	}

	c, err := e.store.GetContract(ctx, contractID)
	if err != nil {
		return nil, err
	}
	if c.Status != contract.StatusActive {
		return nil, contract.ErrNotActive
	}

	t, err := e.store.GetTariff(ctx, c.TariffID)
	if err != nil {
		return nil, err
	}

	cost := t.OverageCost(usage)
	if !cost.IsPositive() {
		return nil, nil
	}

	return e.applyCharge(ctx, contractID, cost, "",
		fmt.Sprintf("usage overage: %dmin %dsms %.2fGB", usage.Minutes, usage.SMS, usage.DataGB))
}

// ──────────────────────────────────────────────────
// Gateway Payments
// ──────────────────────────────────────────────────

// CreatePaymentLink opens a pending gateway payment and returns the
// hosted page for the subscriber. The ledger entry settles later via
// SettlePayment or the pending-payment sweep.
func (e *Engine) CreatePaymentLink(ctx context.Context, contractID id.ContractID, amount types.Money) (*payment.Entry, *gateway.Link, error) {
	if e.gateway == nil {
		return nil, nil, ErrGatewayNotConfigured
	}

	now := e.clock()
	link, err := e.gateway.CreatePaymentLink(ctx, amount, "balance top-up")
	if err != nil {
		return nil, nil, err
	}

	var entry *payment.Entry
	err = e.store.InContractTx(ctx, contractID, func(tx store.Tx) error {
		c, err := tx.Contract(ctx)
		if err != nil {
			return err
		}

		if amount.Currency != c.Balance.Currency {
			return ErrCurrencyMismatch
		}

		entry, err = payment.New(c.ID, payment.TypePayment, payment.MethodGateway, amount, "gateway top-up", now)
		if err != nil {
			return err
		}
		entry.TransactionID = link.TransactionID
		return tx.AppendPayment(ctx, entry)
	})
	if err != nil {
		return nil, nil, err
	}

	e.logger.Info("payment link created",
		"contract_id", contractID,
		"transaction_id", link.TransactionID,
		"amount", amount,
	)
	return entry, link, nil
}

// SettlePayment polls the gateway for a pending payment and applies
// the outcome. Settling an already-final entry is a no-op returning
// the entry as is, so webhook retries and the sweep stay idempotent.
func (e *Engine) SettlePayment(ctx context.Context, transactionID string) (*payment.Entry, error) {
	if e.gateway == nil {
		return nil, ErrGatewayNotConfigured
	}

	known, err := e.store.GetPaymentByTransactionID(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if known.IsFinal() {
		return known, nil
	}

	status, err := e.gateway.CheckStatus(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	e.plugins.EmitGatewayStatusChecked(ctx, transactionID, string(status))

	switch status {
	case gateway.StatusCompleted:
		return e.settleCompleted(ctx, known)
	case gateway.StatusFailed:
		return e.settleFailed(ctx, known, "declined by gateway")
	default:
		// Still pending at the provider.
		return known, nil
	}
}

func (e *Engine) settleCompleted(ctx context.Context, known *payment.Entry) (*payment.Entry, error) {
	now := e.clock()
	var (
		entry   *payment.Entry
		resumed *contract.Contract
	)

	err := e.store.InContractTx(ctx, known.ContractID, func(tx store.Tx) error {
		c, err := tx.Contract(ctx)
		if err != nil {
			return err
		}
		entry, err = tx.Payment(ctx, known.ID)
		if err != nil {
			return err
		}
		// Re-check under the lock: a concurrent settle may have won.
		if entry.IsFinal() {
			resumed = nil
			return nil
		}

		wasSuspended := c.Status == contract.StatusSuspended
		simID := c.SIMID
		effects, err := c.ApplyCredit(entry.Amount, now)
		if err != nil {
			return err
		}
		if err := e.applySIMEffects(ctx, tx, c, simID, effects, now); err != nil {
			return err
		}
		resumed = nil
		if wasSuspended && c.Status == contract.StatusActive {
			resumed = c
		}

		if err := entry.MarkSuccess(c.Balance, e.gateway.Name(), now); err != nil {
			return err
		}
		if err := tx.SavePayment(ctx, entry); err != nil {
			return err
		}
		return tx.SaveContract(ctx, c)
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("gateway payment settled",
		"contract_id", entry.ContractID,
		"transaction_id", entry.TransactionID,
		"amount", entry.Amount,
	)
	e.plugins.EmitPaymentProcessed(ctx, entry)
	e.notify(ctx, entry.ContractID, notify.KindPaymentReceipt,
		fmt.Sprintf("payment received: %s", entry.Amount.FormatMajor()))
	if resumed != nil {
		e.plugins.EmitContractResumed(ctx, resumed)
		e.notify(ctx, entry.ContractID, notify.KindResumed, "service resumed")
	}
	return entry, nil
}

func (e *Engine) settleFailed(ctx context.Context, known *payment.Entry, reason string) (*payment.Entry, error) {
	now := e.clock()
	var entry *payment.Entry

	err := e.store.InContractTx(ctx, known.ContractID, func(tx store.Tx) error {
		var err error
		entry, err = tx.Payment(ctx, known.ID)
		if err != nil {
			return err
		}
		if entry.IsFinal() {
			return nil
		}
		if err := entry.MarkFailed(reason, now); err != nil {
			return err
		}
		return tx.SavePayment(ctx, entry)
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("gateway payment failed",
		"contract_id", entry.ContractID,
		"transaction_id", entry.TransactionID,
		"reason", reason,
	)
	e.plugins.EmitPaymentProcessed(ctx, entry)
	return entry, nil
}

// ──────────────────────────────────────────────────
// Manual Payment Review
// ──────────────────────────────────────────────────

// SubmitPayment records a manual payment (cash at an office, bank
// transfer) as pending. The balance moves only when an operator
// approves it.
func (e *Engine) SubmitPayment(ctx context.Context, contractID id.ContractID, amount types.Money, method payment.Method, description string) (*payment.Entry, error) {
	now := e.clock()
	var entry *payment.Entry

	err := e.store.InContractTx(ctx, contractID, func(tx store.Tx) error {
		c, err := tx.Contract(ctx)
		if err != nil {
			return err
		}

		if amount.Currency != c.Balance.Currency {
			return ErrCurrencyMismatch
		}

		entry, err = payment.New(c.ID, payment.TypePayment, method, amount, description, now)
		if err != nil {
			return err
		}
		return tx.AppendPayment(ctx, entry)
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("payment submitted",
		"contract_id", contractID,
		"payment_id", entry.ID,
		"method", method,
		"amount", amount,
	)
	return entry, nil
}

// ApprovePayment settles a pending manual payment (cash or bank
// transfer) on an operator's say-so.
func (e *Engine) ApprovePayment(ctx context.Context, paymentID id.PaymentID, operator string) (*payment.Entry, error) {
	known, err := e.store.GetPayment(ctx, paymentID)
	if err != nil {
		return nil, err
	}

	now := e.clock()
	var (
		entry   *payment.Entry
		resumed *contract.Contract
	)

	err = e.store.InContractTx(ctx, known.ContractID, func(tx store.Tx) error {
		c, err := tx.Contract(ctx)
		if err != nil {
			return err
		}
		entry, err = tx.Payment(ctx, paymentID)
		if err != nil {
			return err
		}
		if entry.Status != payment.StatusPending {
			return payment.ErrNotPending
		}

		wasSuspended := c.Status == contract.StatusSuspended
		simID := c.SIMID
		effects, err := c.ApplyCredit(entry.Amount, now)
		if err != nil {
			return err
		}
		if err := e.applySIMEffects(ctx, tx, c, simID, effects, now); err != nil {
			return err
		}
		resumed = nil
		if wasSuspended && c.Status == contract.StatusActive {
			resumed = c
		}

		if err := entry.MarkSuccess(c.Balance, operator, now); err != nil {
			return err
		}
		if err := tx.SavePayment(ctx, entry); err != nil {
			return err
		}
		return tx.SaveContract(ctx, c)
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("payment approved",
		"payment_id", paymentID,
		"operator", operator,
		"amount", entry.Amount,
	)
	e.plugins.EmitPaymentProcessed(ctx, entry)
	if resumed != nil {
		e.plugins.EmitContractResumed(ctx, resumed)
		e.notify(ctx, entry.ContractID, notify.KindResumed, "service resumed")
	}
	return entry, nil
}

// RejectPayment fails a pending manual payment without touching the
// balance.
func (e *Engine) RejectPayment(ctx context.Context, paymentID id.PaymentID, operator, reason string) (*payment.Entry, error) {
	known, err := e.store.GetPayment(ctx, paymentID)
	if err != nil {
		return nil, err
	}

	now := e.clock()
	var entry *payment.Entry

	err = e.store.InContractTx(ctx, known.ContractID, func(tx store.Tx) error {
		var err error
		entry, err = tx.Payment(ctx, paymentID)
		if err != nil {
			return err
		}
		if entry.Status != payment.StatusPending {
			return payment.ErrNotPending
		}
		if err := entry.MarkFailed(reason, now); err != nil {
			return err
		}
		entry.ProcessedBy = operator
		return tx.SavePayment(ctx, entry)
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("payment rejected",
		"payment_id", paymentID,
		"operator", operator,
		"reason", reason,
	)
	e.plugins.EmitPaymentProcessed(ctx, entry)
	return entry, nil
}

// RefundPayment reverses a successful payment. The original entry
// flips to refunded; the amount travels back out of the balance on a
// new linked entry. Gateway payments are also refunded at the
// provider.
func (e *Engine) RefundPayment(ctx context.Context, paymentID id.PaymentID, operator, reason string) (*payment.Entry, error) {
	known, err := e.store.GetPayment(ctx, paymentID)
	if err != nil {
		return nil, err
	}

	if known.Method == payment.MethodGateway && known.TransactionID != "" {
		if e.gateway == nil {
			return nil, ErrGatewayNotConfigured
		}
		if err := e.gateway.Refund(ctx, known.TransactionID, known.Amount); err != nil {
			return nil, err
		}
	}

	now := e.clock()
	var refund *payment.Entry

	err = e.store.InContractTx(ctx, known.ContractID, func(tx store.Tx) error {
		c, err := tx.Contract(ctx)
		if err != nil {
			return err
		}
		original, err := tx.Payment(ctx, paymentID)
		if err != nil {
			return err
		}
		if err := original.MarkRefunded(now); err != nil {
			return err
		}

		refund, err = payment.New(c.ID, payment.TypeRefund, original.Method, original.Amount,
			"refund: "+reason, now)
		if err != nil {
			return err
		}
		refund.RefundOf = original.ID

		// Refunds reduce the balance directly rather than through
		// ApplyDebit: returned money is not accrued service cost, so
		// TotalCost stays untouched. The auto-suspend cascade still
		// applies.
		c.Balance = c.Balance.Subtract(original.Amount)
		c.Touch(now)
		if c.Status == contract.StatusActive && c.Balance.IsNegative() {
			simID := c.SIMID
			effects, err := c.Suspend("balance negative after refund", now)
			if err != nil {
				return err
			}
			if err := e.applySIMEffects(ctx, tx, c, simID, effects, now); err != nil {
				return err
			}
		}

		if err := refund.MarkSuccess(c.Balance, operator, now); err != nil {
			return err
		}
		if err := tx.SavePayment(ctx, original); err != nil {
			return err
		}
		if err := tx.AppendPayment(ctx, refund); err != nil {
			return err
		}
		return tx.SaveContract(ctx, c)
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("payment refunded",
		"payment_id", paymentID,
		"refund_id", refund.ID,
		"operator", operator,
		"reason", reason,
	)
	e.plugins.EmitPaymentProcessed(ctx, refund)
	return refund, nil
}

// GetPayment retrieves a ledger entry by ID.
func (e *Engine) GetPayment(ctx context.Context, paymentID id.PaymentID) (*payment.Entry, error) {
	return e.store.GetPayment(ctx, paymentID)
}

// ListPayments lists ledger entries.
func (e *Engine) ListPayments(ctx context.Context, opts payment.ListOpts) ([]*payment.Entry, error) {
	return e.store.ListPayments(ctx, opts)
}
