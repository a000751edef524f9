// Package sqlite implements the store on a single SQLite file via
// modernc.org/sqlite. The DSN enables WAL and immediate transactions,
// so contract transactions take the write lock up front instead of
// failing on a lock upgrade mid-callback.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sqlite3 "modernc.org/sqlite"

	"github.com/xraph/telco"
	"github.com/xraph/telco/contract"
	"github.com/xraph/telco/id"
	"github.com/xraph/telco/payment"
	"github.com/xraph/telco/sim"
	"github.com/xraph/telco/store"
	"github.com/xraph/telco/tariff"
	"github.com/xraph/telco/traffic"
)

var _ store.Store = (*Store)(nil)

type Store struct {
	db *sql.DB
}

// New opens (or creates) the SQLite database at path. Use ":memory:"
// for an ephemeral database.
func New(path string) (*Store, error) {
	dsn := "file:" + path +
		"?_txlock=immediate" +
		"&_pragma=journal_mode(WAL)" +
		"&_pragma=busy_timeout(5000)" +
		"&_pragma=foreign_keys(1)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("telco/sqlite: open %s: %w", path, err)
	}

	// SQLite allows one writer; a single pooled connection avoids
	// SQLITE_BUSY churn under concurrent contract transactions.
	db.SetMaxOpenConns(1)

	return &Store{db: db}, nil
}

// DB exposes the underlying handle for ad-hoc queries.
func (s *Store) DB() *sql.DB { return s.db }

// Migrate applies pending schema migrations in order.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS telco_schema_migrations (
    version    TEXT PRIMARY KEY,
    name       TEXT NOT NULL,
    applied_at TIMESTAMP NOT NULL
)`)
	if err != nil {
		return fmt.Errorf("%w: %v", telco.ErrMigrationFailed, err)
	}

	for _, m := range migrations {
		var applied int
		err := s.db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM telco_schema_migrations WHERE version = ?`, m.Version,
		).Scan(&applied)
		if err != nil {
			return fmt.Errorf("%w: %v", telco.ErrMigrationFailed, err)
		}
		if applied > 0 {
			continue
		}

		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("%w: %v", telco.ErrMigrationFailed, err)
		}
		if _, err := tx.ExecContext(ctx, m.Up); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("%w: %s: %v", telco.ErrMigrationFailed, m.Name, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO telco_schema_migrations (version, name, applied_at) VALUES (?, ?, ?)`,
			m.Version, m.Name, time.Now().UTC(),
		); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("%w: %s: %v", telco.ErrMigrationFailed, m.Name, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("%w: %s: %v", telco.ErrMigrationFailed, m.Name, err)
		}
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Tariff Store implementation

func (s *Store) CreateTariff(ctx context.Context, t *tariff.Tariff) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO telco_tariffs (`+tariffCols+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tariffArgs(t)...,
	)
	return mapWriteErr(err)
}

func (s *Store) GetTariff(ctx context.Context, tariffID id.TariffID) (*tariff.Tariff, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+tariffCols+` FROM telco_tariffs WHERE id = ?`, tariffID)
	t, err := scanTariff(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, telco.ErrTariffNotFound
	}
	return t, err
}

func (s *Store) ListTariffs(ctx context.Context, opts tariff.ListOpts) ([]*tariff.Tariff, error) {
	q := `SELECT ` + tariffCols + ` FROM telco_tariffs WHERE 1=1`
	var args []any
	if opts.ActiveOnly {
		q += ` AND is_active = 1`
	}
	if opts.Kind != "" {
		q += ` AND kind = ?`
		args = append(args, opts.Kind)
	}
	q += ` ORDER BY priority DESC, id ASC`
	q, args = withLimit(q, args, opts.Limit, opts.Offset)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]*tariff.Tariff, 0)
	for rows.Next() {
		t, err := scanTariff(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, t)
	}
	return result, rows.Err()
}

func (s *Store) UpdateTariff(ctx context.Context, t *tariff.Tariff) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE telco_tariffs SET
		   name = ?, description = ?, kind = ?, priority = ?, is_active = ?,
		   currency = ?, monthly_fee = ?,
		   minutes_included = ?, sms_included = ?, data_gb_included = ?,
		   minute_overage = ?, sms_overage = ?, data_gb_overage = ?,
		   updated_at = ?
		 WHERE id = ?`,
		t.Name, t.Description, t.Kind, t.Priority, t.IsActive,
		t.MonthlyFee.Currency, t.MonthlyFee.Amount,
		t.MinutesIncluded, t.SMSIncluded, t.DataGBIncluded,
		t.MinuteOverageCost.Amount, t.SMSOverageCost.Amount, t.DataGBOverageCost.Amount,
		t.UpdatedAt, t.ID,
	)
	if err != nil {
		return err
	}
	return mustAffect(res, telco.ErrTariffNotFound)
}

func (s *Store) DeleteTariff(ctx context.Context, tariffID id.TariffID) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM telco_tariffs WHERE id = ?`, tariffID)
	return err
}

// SIM Store implementation

func (s *Store) CreateSIM(ctx context.Context, card *sim.SIM) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO telco_sims (`+simCols+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		simArgs(card)...,
	)
	return mapWriteErr(err)
}

func (s *Store) GetSIM(ctx context.Context, simID id.SIMID) (*sim.SIM, error) {
	return s.getSIMWhere(ctx, `id = ?`, simID)
}

func (s *Store) GetSIMByICCID(ctx context.Context, iccid string) (*sim.SIM, error) {
	return s.getSIMWhere(ctx, `iccid = ?`, iccid)
}

func (s *Store) GetSIMByMSISDN(ctx context.Context, msisdn string) (*sim.SIM, error) {
	return s.getSIMWhere(ctx, `msisdn = ?`, msisdn)
}

func (s *Store) getSIMWhere(ctx context.Context, cond string, arg any) (*sim.SIM, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+simCols+` FROM telco_sims WHERE `+cond, arg)
	card, err := scanSIM(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, telco.ErrSIMNotFound
	}
	return card, err
}

func (s *Store) ListSIMs(ctx context.Context, opts sim.ListOpts) ([]*sim.SIM, error) {
	q := `SELECT ` + simCols + ` FROM telco_sims WHERE 1=1`
	var args []any
	if opts.Status != "" {
		q += ` AND status = ?`
		args = append(args, opts.Status)
	}
	q += ` ORDER BY iccid ASC`
	q, args = withLimit(q, args, opts.Limit, opts.Offset)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]*sim.SIM, 0)
	for rows.Next() {
		card, err := scanSIM(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, card)
	}
	return result, rows.Err()
}

// UpdateSIM writes the card back with an optimistic version check: the
// row version must still match the one the caller read.
func (s *Store) UpdateSIM(ctx context.Context, card *sim.SIM) error {
	return updateSIMExec(ctx, s.db, card)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func updateSIMExec(ctx context.Context, db execer, card *sim.SIM) error {
	res, err := db.ExecContext(ctx,
		`UPDATE telco_sims SET
		   iccid = ?, imsi = ?, msisdn = ?, puk = ?, status = ?, contract_id = ?,
		   activated_at = ?, deactivated_at = ?, version = version + 1, updated_at = ?
		 WHERE id = ? AND version = ?`,
		card.ICCID, card.IMSI, card.MSISDN, card.PUK, card.Status, card.ContractID,
		timeArg(card.ActivatedAt), timeArg(card.DeactivatedAt), card.UpdatedAt,
		card.ID, card.Version,
	)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		var n int
		if err := db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM telco_sims WHERE id = ?`, card.ID,
		).Scan(&n); err != nil {
			return err
		}
		if n == 0 {
			return telco.ErrSIMNotFound
		}
		return telco.ErrVersionConflict
	}
	return nil
}

// Contract Store implementation

func (s *Store) CreateContract(ctx context.Context, c *contract.Contract) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO telco_contracts (`+contractCols+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		contractArgs(c)...,
	)
	return mapWriteErr(err)
}

func (s *Store) GetContract(ctx context.Context, contractID id.ContractID) (*contract.Contract, error) {
	return getContractWhere(ctx, s.db, `id = ?`, contractID)
}

func (s *Store) GetContractByNumber(ctx context.Context, number string) (*contract.Contract, error) {
	return getContractWhere(ctx, s.db, `number = ?`, number)
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getContractWhere(ctx context.Context, db querier, cond string, arg any) (*contract.Contract, error) {
	row := db.QueryRowContext(ctx,
		`SELECT `+contractCols+` FROM telco_contracts WHERE `+cond, arg)
	c, err := scanContract(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, telco.ErrContractNotFound
	}
	return c, err
}

func (s *Store) ListContracts(ctx context.Context, opts contract.ListOpts) ([]*contract.Contract, error) {
	q := `SELECT ` + contractCols + ` FROM telco_contracts WHERE 1=1`
	var args []any
	if opts.Status != "" {
		q += ` AND status = ?`
		args = append(args, opts.Status)
	}
	if !opts.CustomerID.IsNil() {
		q += ` AND customer_id = ?`
		args = append(args, opts.CustomerID)
	}
	q += ` ORDER BY number ASC`
	q, args = withLimit(q, args, opts.Limit, opts.Offset)

	return s.queryContracts(ctx, q, args...)
}

func (s *Store) ListContractsBillingDue(ctx context.Context, asOf time.Time) ([]*contract.Contract, error) {
	return s.queryContracts(ctx,
		`SELECT `+contractCols+` FROM telco_contracts
		 WHERE status = ? AND next_billing_date IS NOT NULL AND next_billing_date <= ?
		 ORDER BY number ASC`,
		contract.StatusActive, asOf,
	)
}

func (s *Store) ListContractsNegativeBalance(ctx context.Context) ([]*contract.Contract, error) {
	return s.queryContracts(ctx,
		`SELECT `+contractCols+` FROM telco_contracts
		 WHERE status = ? AND balance < 0
		 ORDER BY number ASC`,
		contract.StatusActive,
	)
}

func (s *Store) queryContracts(ctx context.Context, q string, args ...any) ([]*contract.Contract, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]*contract.Contract, 0)
	for rows.Next() {
		c, err := scanContract(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, c)
	}
	return result, rows.Err()
}

func (s *Store) ContractStats(ctx context.Context) (*contract.Stats, error) {
	stats := &contract.Stats{ByStatus: make(map[contract.Status]int64)}

	rows, err := s.db.QueryContext(ctx,
		`SELECT status, COUNT(*), COALESCE(SUM(balance), 0) FROM telco_contracts GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var activeCount, activeBalance int64
	for rows.Next() {
		var (
			status  contract.Status
			count   int64
			balance int64
		)
		if err := rows.Scan(&status, &count, &balance); err != nil {
			return nil, err
		}
		stats.Total += count
		stats.ByStatus[status] = count
		stats.TotalBalance += balance
		if status == contract.StatusActive {
			activeCount = count
			activeBalance = balance
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if activeCount > 0 {
		stats.AvgBalance = activeBalance / activeCount
	}

	_ = s.db.QueryRowContext(ctx,
		`SELECT currency FROM telco_contracts LIMIT 1`).Scan(&stats.Currency)
	return stats, nil
}

// Payment Store implementation

func (s *Store) GetPayment(ctx context.Context, paymentID id.PaymentID) (*payment.Entry, error) {
	return getPaymentWhere(ctx, s.db, `id = ?`, paymentID)
}

func (s *Store) GetPaymentByTransactionID(ctx context.Context, transactionID string) (*payment.Entry, error) {
	if transactionID == "" {
		return nil, telco.ErrPaymentNotFound
	}
	return getPaymentWhere(ctx, s.db, `transaction_id = ?`, transactionID)
}

func getPaymentWhere(ctx context.Context, db querier, cond string, arg any) (*payment.Entry, error) {
	row := db.QueryRowContext(ctx,
		`SELECT `+paymentCols+` FROM telco_payments WHERE `+cond, arg)
	e, err := scanPayment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, telco.ErrPaymentNotFound
	}
	return e, err
}

func (s *Store) ListPayments(ctx context.Context, opts payment.ListOpts) ([]*payment.Entry, error) {
	q := `SELECT ` + paymentCols + ` FROM telco_payments WHERE 1=1`
	var args []any
	if !opts.ContractID.IsNil() {
		q += ` AND contract_id = ?`
		args = append(args, opts.ContractID)
	}
	if opts.Type != "" {
		q += ` AND type = ?`
		args = append(args, opts.Type)
	}
	if opts.Status != "" {
		q += ` AND status = ?`
		args = append(args, opts.Status)
	}
	q += ` ORDER BY created_at ASC, id ASC`
	q, args = withLimit(q, args, opts.Limit, opts.Offset)

	return s.queryPayments(ctx, q, args...)
}

func (s *Store) ListUnsettledPayments(ctx context.Context, before time.Time) ([]*payment.Entry, error) {
	return s.queryPayments(ctx,
		`SELECT `+paymentCols+` FROM telco_payments
		 WHERE status IN (?, ?) AND created_at < ?
		 ORDER BY created_at ASC`,
		payment.StatusPending, payment.StatusProcessing, before,
	)
}

func (s *Store) queryPayments(ctx context.Context, q string, args ...any) ([]*payment.Entry, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]*payment.Entry, 0)
	for rows.Next() {
		e, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, e)
	}
	return result, rows.Err()
}

// Traffic metric Store implementation

func (s *Store) InsertMetrics(ctx context.Context, metrics []*traffic.Metric) error {
	if len(metrics) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	for _, m := range metrics {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO telco_traffic_metrics (`+metricCols+`)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			metricArgs(m)...,
		); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

func (s *Store) ListMetrics(ctx context.Context, opts traffic.ListOpts) ([]*traffic.Metric, error) {
	q := `SELECT ` + metricCols + ` FROM telco_traffic_metrics WHERE 1=1`
	var args []any
	if opts.Source != "" {
		q += ` AND source = ?`
		args = append(args, opts.Source)
	}
	if !opts.Since.IsZero() {
		q += ` AND recorded_at >= ?`
		args = append(args, opts.Since)
	}
	if !opts.Until.IsZero() {
		q += ` AND recorded_at < ?`
		args = append(args, opts.Until)
	}
	q += ` ORDER BY recorded_at ASC`
	q, args = withLimit(q, args, opts.Limit, opts.Offset)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]*traffic.Metric, 0)
	for rows.Next() {
		m, err := scanMetric(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, m)
	}
	return result, rows.Err()
}

func (s *Store) PurgeMetrics(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM telco_traffic_metrics WHERE recorded_at < ?`, before)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Helpers

func withLimit(q string, args []any, limit, offset int) (string, []any) {
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	} else if offset > 0 {
		q += ` LIMIT -1`
	}
	if offset > 0 {
		q += ` OFFSET ?`
		args = append(args, offset)
	}
	return q, args
}

func mustAffect(res sql.Result, notFound error) error {
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return notFound
	}
	return nil
}

// SQLite extended result codes for constraint violations.
const (
	sqliteConstraintUnique     = 2067
	sqliteConstraintPrimaryKey = 1555
)

func mapWriteErr(err error) error {
	if err == nil {
		return nil
	}
	var serr *sqlite3.Error
	if errors.As(err, &serr) {
		switch serr.Code() {
		case sqliteConstraintUnique, sqliteConstraintPrimaryKey:
			return telco.ErrAlreadyExists
		}
	}
	return err
}
