package telco

import (
	"context"
	"errors"
	"time"

	"github.com/xraph/telco/contract"
	"github.com/xraph/telco/notify"
	"github.com/xraph/telco/payment"
)

// SweepResult summarizes one pass of a billing sweep.
type SweepResult struct {
	Name      string        `json:"name"`
	Total     int           `json:"total"`
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
	Skipped   int           `json:"skipped"`
	Elapsed   time.Duration `json:"elapsed"`
}

// RunMonthlyFeeSweep charges the monthly fee on every active contract
// whose billing date has arrived. One contract failing does not stop
// the sweep; failures are logged and counted. Contracts another sweep
// already billed for the period count as skipped.
func (e *Engine) RunMonthlyFeeSweep(ctx context.Context) (*SweepResult, error) {
	start := time.Now()
	due, err := e.store.ListContractsBillingDue(ctx, e.clock())
	if err != nil {
		return nil, err
	}

	result := &SweepResult{Name: "monthly_fee", Total: len(due)}
	for _, c := range due {
		_, err := e.ChargeMonthlyFee(ctx, c.ID)
		switch {
		case err == nil:
			result.Succeeded++
		case errors.Is(err, ErrAlreadyBilled), errors.Is(err, ErrBillingNotDue):
			result.Skipped++
		default:
			result.Failed++
			e.logger.Error("monthly fee charge failed",
				"contract_id", c.ID,
				"number", c.Number,
				"error", err,
			)
		}
	}
	result.Elapsed = time.Since(start)

	e.logger.Info("monthly fee sweep completed",
		"total", result.Total,
		"succeeded", result.Succeeded,
		"failed", result.Failed,
		"skipped", result.Skipped,
		"elapsed_ms", result.Elapsed.Milliseconds(),
	)
	e.plugins.EmitSweepCompleted(ctx, result.Name, result.Succeeded, result.Failed)
	return result, nil
}

// RunLowBalanceSweep suspends active contracts whose balance is
// negative. The per-debit cascade normally catches these at charge
// time; the sweep backstops contracts that slipped through (imported
// data, refunds applied out of band) and sends low balance warnings.
func (e *Engine) RunLowBalanceSweep(ctx context.Context) (*SweepResult, error) {
	start := time.Now()
	negatives, err := e.store.ListContractsNegativeBalance(ctx)
	if err != nil {
		return nil, err
	}

	result := &SweepResult{Name: "low_balance", Total: len(negatives)}
	for _, c := range negatives {
		if c.Status != contract.StatusActive {
			result.Skipped++
			continue
		}
		if _, err := e.SuspendContract(ctx, c.ID, "negative balance"); err != nil {
			// A concurrent payment may have resumed or terminated it.
			if IsInvalidState(err) {
				result.Skipped++
				continue
			}
			result.Failed++
			e.logger.Error("low balance suspension failed",
				"contract_id", c.ID,
				"error", err,
			)
			continue
		}
		result.Succeeded++
		e.notify(ctx, c.ID, notify.KindLowBalance, "balance is negative, service suspended")
	}
	result.Elapsed = time.Since(start)

	e.logger.Info("low balance sweep completed",
		"total", result.Total,
		"succeeded", result.Succeeded,
		"failed", result.Failed,
		"skipped", result.Skipped,
		"elapsed_ms", result.Elapsed.Milliseconds(),
	)
	e.plugins.EmitSweepCompleted(ctx, result.Name, result.Succeeded, result.Failed)
	return result, nil
}

// RunPendingPaymentSweep polls the gateway for unsettled gateway
// payments older than the grace period and applies their outcomes.
// Manual payments awaiting operator review are left alone.
func (e *Engine) RunPendingPaymentSweep(ctx context.Context, olderThan time.Duration) (*SweepResult, error) {
	start := time.Now()
	pending, err := e.store.ListUnsettledPayments(ctx, e.clock().Add(-olderThan))
	if err != nil {
		return nil, err
	}

	result := &SweepResult{Name: "pending_payment", Total: len(pending)}
	for _, entry := range pending {
		if entry.Method != payment.MethodGateway || entry.TransactionID == "" {
			result.Skipped++
			continue
		}
		settled, err := e.SettlePayment(ctx, entry.TransactionID)
		if err != nil {
			result.Failed++
			e.logger.Error("pending payment settlement failed",
				"payment_id", entry.ID,
				"transaction_id", entry.TransactionID,
				"error", err,
			)
			continue
		}
		if settled.IsFinal() {
			result.Succeeded++
		} else {
			result.Skipped++
		}
	}
	result.Elapsed = time.Since(start)

	e.logger.Info("pending payment sweep completed",
		"total", result.Total,
		"succeeded", result.Succeeded,
		"failed", result.Failed,
		"skipped", result.Skipped,
		"elapsed_ms", result.Elapsed.Milliseconds(),
	)
	e.plugins.EmitSweepCompleted(ctx, result.Name, result.Succeeded, result.Failed)
	return result, nil
}
