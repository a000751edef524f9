package sqlite

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

// InContractTx runs fn inside a database transaction. The _txlock
// setting makes every transaction take the write lock on begin, so
// two contract transactions never interleave: SQLite gives us the
// per-contract serialization (and more) for free. A SIM version
// conflict rolls the transaction back and re-runs the callback with
// fresh reads, so a stale writer surfaces the precondition it then
// hits (a raced-over card reads as bound) instead of the conflict.
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

func (t *sqlTx) Contract(ctx context.Context) (*contract.Contract, error) {
	return getContractWhere(ctx, t.tx, `id = ?`, t.contractID)
}

func (t *sqlTx) SaveContract(ctx context.Context, c *contract.Contract) error {
	if c.ID != t.contractID {
		return telco.ErrTransactionFailed
	}
	res, err := t.tx.ExecContext(ctx,
		`UPDATE telco_contracts SET
		   number = ?, customer_id = ?, tariff_id = ?, sim_id = ?, status = ?,
		   currency = ?, balance = ?, total_cost = ?,
		   signed_date = ?, activation_date = ?, termination_date = ?, next_billing_date = ?,
		   notes = ?, version = version + 1, updated_at = ?
		 WHERE id = ?`,
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
		`SELECT `+simCols+` FROM telco_sims WHERE id = ?`, simID)
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
	return getPaymentWhere(ctx, t.tx, `id = ?`, paymentID)
}

func (t *sqlTx) AppendPayment(ctx context.Context, e *payment.Entry) error {
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO telco_payments (`+paymentCols+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
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
		   contract_id = ?, type = ?, status = ?, method = ?,
		   currency = ?, amount = ?,
		   transaction_id = ?, description = ?, refund_of = ?, billing_period = ?,
		   balance_after = ?, processed_at = ?, processed_by = ?, failure_reason = ?,
		   updated_at = ?
		 WHERE id = ?`,
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
		 WHERE contract_id = ? AND type = ? AND status = ? AND billing_period = ?`,
		t.contractID, payment.TypeCharge, payment.StatusSuccess, period,
	).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
