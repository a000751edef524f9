package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/xraph/telco"
	"github.com/xraph/telco/contract"
	"github.com/xraph/telco/id"
	"github.com/xraph/telco/payment"
	"github.com/xraph/telco/sim"
	"github.com/xraph/telco/store"
)

// commitRetries bounds the automatic re-run of a contract transaction
// after a SIM version conflict.
const commitRetries = 3

// InContractTx runs fn inside a database transaction holding a row
// lock on the contract. The lock is taken before the callback runs, so
// two transactions on the same contract serialize while transactions
// on different contracts proceed in parallel. SIM rows are not part of
// the contract lock; the version check in SaveSIM catches two
// contracts racing over the same free card, and the loser re-runs the
// callback with fresh reads so it surfaces the precondition it then
// hits (the card reads as bound) instead of the conflict.
func (s *Store) InContractTx(ctx context.Context, contractID id.ContractID, fn func(tx store.Tx) error) error {
	var err error
	for attempt := 0; attempt < commitRetries; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		err = s.runContractTx(ctx, contractID, fn)
		if !errors.Is(err, telco.ErrVersionConflict) {
			return err
		}
	}
	return err
}

func (s *Store) runContractTx(ctx context.Context, contractID id.ContractID, fn func(tx store.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	t := &sqlTx{tx: tx, contractID: contractID}
	if _, err := t.lockContract(ctx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := fn(t); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

type sqlTx struct {
	tx         *sql.Tx
	contractID id.ContractID
}

var _ store.Tx = (*sqlTx)(nil)

func (t *sqlTx) lockContract(ctx context.Context) (*contract.Contract, error) {
	row := t.tx.QueryRowContext(ctx,
		`SELECT `+contractCols+` FROM telco_contracts WHERE id = $1 FOR UPDATE`,
		t.contractID)
	c, err := scanContract(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, telco.ErrContractNotFound
	}
	return c, err
}

func (t *sqlTx) Contract(ctx context.Context) (*contract.Contract, error) {
	return t.lockContract(ctx)
}

func (t *sqlTx) SaveContract(ctx context.Context, c *contract.Contract) error {
	if c.ID != t.contractID {
		return telco.ErrTransactionFailed
	}
	res, err := t.tx.ExecContext(ctx,
		`UPDATE telco_contracts SET
		   number = $1, customer_id = $2, tariff_id = $3, sim_id = $4, status = $5,
		   currency = $6, balance = $7, total_cost = $8,
		   signed_date = $9, activation_date = $10, termination_date = $11,
		   next_billing_date = $12,
		   notes = $13, version = version + 1, updated_at = $14
		 WHERE id = $15`,
		c.Number, c.CustomerID, c.TariffID, c.SIMID, c.Status,
		c.Balance.Currency, c.Balance.Amount, c.TotalCost.Amount,
		c.SignedDate, timeArg(c.ActivationDate), timeArg(c.TerminationDate),
		timeArg(c.NextBillingDate),
		c.Notes, c.UpdatedAt, c.ID,
	)
	if err != nil {
		return err
	}
	return mustAffect(res, telco.ErrContractNotFound)
}

func (t *sqlTx) SIM(ctx context.Context, simID id.SIMID) (*sim.SIM, error) {
	row := t.tx.QueryRowContext(ctx,
		`SELECT `+simCols+` FROM telco_sims WHERE id = $1`, simID)
	card, err := scanSIM(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, telco.ErrSIMNotFound
	}
	return card, err
}

func (t *sqlTx) SaveSIM(ctx context.Context, card *sim.SIM) error {
	return updateSIMExec(ctx, t.tx, card)
}

func (t *sqlTx) Payment(ctx context.Context, paymentID id.PaymentID) (*payment.Entry, error) {
	return getPaymentWhere(ctx, t.tx, `id = $1`, paymentID)
}

func (t *sqlTx) AppendPayment(ctx context.Context, e *payment.Entry) error {
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO telco_payments (`+paymentCols+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
		paymentArgs(e)...,
	)
	return mapWriteErr(err)
}

func (t *sqlTx) SavePayment(ctx context.Context, e *payment.Entry) error {
	var balanceAfter any
	if e.BalanceAfter != nil {
		balanceAfter = e.BalanceAfter.Amount
	}
	res, err := t.tx.ExecContext(ctx,
		`UPDATE telco_payments SET
		   contract_id = $1, type = $2, status = $3, method = $4,
		   currency = $5, amount = $6,
		   transaction_id = $7, description = $8, refund_of = $9, billing_period = $10,
		   balance_after = $11, processed_at = $12, processed_by = $13, failure_reason = $14,
		   updated_at = $15
		 WHERE id = $16`,
		e.ContractID, e.Type, e.Status, e.Method,
		e.Amount.Currency, e.Amount.Amount,
		e.TransactionID, e.Description, e.RefundOf, e.BillingPeriod,
		balanceAfter, timeArg(e.ProcessedAt), e.ProcessedBy, e.FailureReason,
		e.UpdatedAt, e.ID,
	)
	if err != nil {
		return err
	}
	return mustAffect(res, telco.ErrPaymentNotFound)
}

func (t *sqlTx) HasChargeForPeriod(ctx context.Context, period string) (bool, error) {
	var n int
	err := t.tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM telco_payments
		 WHERE contract_id = $1 AND type = $2 AND status = $3 AND billing_period = $4`,
		t.contractID, payment.TypeCharge, payment.StatusSuccess, period,
	).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
