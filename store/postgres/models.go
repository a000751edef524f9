package postgres

import (
	"database/sql"
	"time"

	"github.com/xraph/telco/contract"
	"github.com/xraph/telco/payment"
	"github.com/xraph/telco/sim"
	"github.com/xraph/telco/tariff"
	"github.com/xraph/telco/traffic"
	"github.com/xraph/telco/types"
)

// scanner covers *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// Column lists shared between single-row and list queries. Keep these
// in sync with the scan functions below.
const (
	tariffCols = `id, name, description, kind, priority, is_active, currency, monthly_fee,
		minutes_included, sms_included, data_gb_included,
		minute_overage, sms_overage, data_gb_overage, created_at, updated_at`

	simCols = `id, iccid, imsi, msisdn, puk, status, contract_id,
		activated_at, deactivated_at, version, created_at, updated_at`

	contractCols = `id, number, customer_id, tariff_id, sim_id, status, currency,
		balance, total_cost, signed_date, activation_date, termination_date,
		next_billing_date, notes, version, created_at, updated_at`

	paymentCols = `id, contract_id, type, status, method, currency, amount,
		transaction_id, description, refund_of, billing_period, balance_after,
		processed_at, processed_by, failure_reason, created_at, updated_at`

	metricCols = `id, calls, sms, data_mb, topups, currency, charges, source,
		recorded_at, created_at, updated_at`
)

func scanTariff(row scanner) (*tariff.Tariff, error) {
	var (
		t        tariff.Tariff
		currency string
		fee      int64
		minOver  int64
		smsOver  int64
		dataOver int64
	)
	err := row.Scan(
		&t.ID, &t.Name, &t.Description, &t.Kind, &t.Priority, &t.IsActive,
		&currency, &fee,
		&t.MinutesIncluded, &t.SMSIncluded, &t.DataGBIncluded,
		&minOver, &smsOver, &dataOver,
		&t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	t.MonthlyFee = types.Money{Amount: fee, Currency: currency}
	t.MinuteOverageCost = types.Money{Amount: minOver, Currency: currency}
	t.SMSOverageCost = types.Money{Amount: smsOver, Currency: currency}
	t.DataGBOverageCost = types.Money{Amount: dataOver, Currency: currency}
	return &t, nil
}

func tariffArgs(t *tariff.Tariff) []any {
	return []any{
		t.ID, t.Name, t.Description, t.Kind, t.Priority, t.IsActive,
		t.MonthlyFee.Currency, t.MonthlyFee.Amount,
		t.MinutesIncluded, t.SMSIncluded, t.DataGBIncluded,
		t.MinuteOverageCost.Amount, t.SMSOverageCost.Amount, t.DataGBOverageCost.Amount,
		t.CreatedAt, t.UpdatedAt,
	}
}

func scanSIM(row scanner) (*sim.SIM, error) {
	var (
		card          sim.SIM
		activatedAt   sql.NullTime
		deactivatedAt sql.NullTime
	)
	err := row.Scan(
		&card.ID, &card.ICCID, &card.IMSI, &card.MSISDN, &card.PUK,
		&card.Status, &card.ContractID,
		&activatedAt, &deactivatedAt, &card.Version,
		&card.CreatedAt, &card.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	card.ActivatedAt = nullableTime(activatedAt)
	card.DeactivatedAt = nullableTime(deactivatedAt)
	return &card, nil
}

func simArgs(card *sim.SIM) []any {
	return []any{
		card.ID, card.ICCID, card.IMSI, card.MSISDN, card.PUK,
		card.Status, card.ContractID,
		timeArg(card.ActivatedAt), timeArg(card.DeactivatedAt), card.Version,
		card.CreatedAt, card.UpdatedAt,
	}
}

func scanContract(row scanner) (*contract.Contract, error) {
	var (
		c           contract.Contract
		currency    string
		balance     int64
		totalCost   int64
		activation  sql.NullTime
		termination sql.NullTime
		nextBilling sql.NullTime
	)
	err := row.Scan(
		&c.ID, &c.Number, &c.CustomerID, &c.TariffID, &c.SIMID, &c.Status,
		&currency, &balance, &totalCost,
		&c.SignedDate, &activation, &termination, &nextBilling,
		&c.Notes, &c.Version, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	c.Balance = types.Money{Amount: balance, Currency: currency}
	c.TotalCost = types.Money{Amount: totalCost, Currency: currency}
	c.ActivationDate = nullableTime(activation)
	c.TerminationDate = nullableTime(termination)
	c.NextBillingDate = nullableTime(nextBilling)
	return &c, nil
}

func contractArgs(c *contract.Contract) []any {
	return []any{
		c.ID, c.Number, c.CustomerID, c.TariffID, c.SIMID, c.Status,
		c.Balance.Currency, c.Balance.Amount, c.TotalCost.Amount,
		c.SignedDate, timeArg(c.ActivationDate), timeArg(c.TerminationDate),
		timeArg(c.NextBillingDate),
		c.Notes, c.Version, c.CreatedAt, c.UpdatedAt,
	}
}

func scanPayment(row scanner) (*payment.Entry, error) {
	var (
		e            payment.Entry
		currency     string
		amount       int64
		balanceAfter sql.NullInt64
		processedAt  sql.NullTime
	)
	err := row.Scan(
		&e.ID, &e.ContractID, &e.Type, &e.Status, &e.Method,
		&currency, &amount,
		&e.TransactionID, &e.Description, &e.RefundOf, &e.BillingPeriod,
		&balanceAfter, &processedAt, &e.ProcessedBy, &e.FailureReason,
		&e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	e.Amount = types.Money{Amount: amount, Currency: currency}
	if balanceAfter.Valid {
		m := types.Money{Amount: balanceAfter.Int64, Currency: currency}
		e.BalanceAfter = &m
	}
	e.ProcessedAt = nullableTime(processedAt)
	return &e, nil
}

func paymentArgs(e *payment.Entry) []any {
	var balanceAfter any
	if e.BalanceAfter != nil {
		balanceAfter = e.BalanceAfter.Amount
	}
	return []any{
		e.ID, e.ContractID, e.Type, e.Status, e.Method,
		e.Amount.Currency, e.Amount.Amount,
		e.TransactionID, e.Description, e.RefundOf, e.BillingPeriod,
		balanceAfter, timeArg(e.ProcessedAt), e.ProcessedBy, e.FailureReason,
		e.CreatedAt, e.UpdatedAt,
	}
}

func scanMetric(row scanner) (*traffic.Metric, error) {
	var (
		m        traffic.Metric
		currency string
		charges  int64
	)
	err := row.Scan(
		&m.ID, &m.Calls, &m.SMS, &m.DataMB, &m.TopUps,
		&currency, &charges, &m.Source,
		&m.RecordedAt, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	m.Charges = types.Money{Amount: charges, Currency: currency}
	return &m, nil
}

func metricArgs(m *traffic.Metric) []any {
	return []any{
		m.ID, m.Calls, m.SMS, m.DataMB, m.TopUps,
		m.Charges.Currency, m.Charges.Amount, m.Source,
		m.RecordedAt, m.CreatedAt, m.UpdatedAt,
	}
}

func nullableTime(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func timeArg(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}
