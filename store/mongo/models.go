package mongo

import (
	"time"

	"github.com/xraph/telco/contract"
	"github.com/xraph/telco/id"
	"github.com/xraph/telco/payment"
	"github.com/xraph/telco/sim"
	"github.com/xraph/telco/tariff"
	"github.com/xraph/telco/traffic"
	"github.com/xraph/telco/types"
)

// IDs are stored as their string form in _id; the converters parse
// them back. Money fields store the integer amount next to a single
// per-document currency.

// Tariff models

type tariffModel struct {
	ID              string    `bson:"_id"`
	Name            string    `bson:"name"`
	Description     string    `bson:"description"`
	Kind            string    `bson:"kind"`
	Priority        int       `bson:"priority"`
	IsActive        bool      `bson:"is_active"`
	Currency        string    `bson:"currency"`
	MonthlyFee      int64     `bson:"monthly_fee"`
	MinutesIncluded int64     `bson:"minutes_included"`
	SMSIncluded     int64     `bson:"sms_included"`
	DataGBIncluded  float64   `bson:"data_gb_included"`
	MinuteOverage   int64     `bson:"minute_overage"`
	SMSOverage      int64     `bson:"sms_overage"`
	DataGBOverage   int64     `bson:"data_gb_overage"`
	CreatedAt       time.Time `bson:"created_at"`
	UpdatedAt       time.Time `bson:"updated_at"`
}

func toTariffModel(t *tariff.Tariff) *tariffModel {
	return &tariffModel{
		ID:              t.ID.String(),
		Name:            t.Name,
		Description:     t.Description,
		Kind:            string(t.Kind),
		Priority:        t.Priority,
		IsActive:        t.IsActive,
		Currency:        t.MonthlyFee.Currency,
		MonthlyFee:      t.MonthlyFee.Amount,
		MinutesIncluded: t.MinutesIncluded,
		SMSIncluded:     t.SMSIncluded,
		DataGBIncluded:  t.DataGBIncluded,
		MinuteOverage:   t.MinuteOverageCost.Amount,
		SMSOverage:      t.SMSOverageCost.Amount,
		DataGBOverage:   t.DataGBOverageCost.Amount,
		CreatedAt:       t.CreatedAt,
		UpdatedAt:       t.UpdatedAt,
	}
}

func fromTariffModel(m *tariffModel) (*tariff.Tariff, error) {
	tariffID, err := id.ParseTariffID(m.ID)
	if err != nil {
		return nil, err
	}
	return &tariff.Tariff{
		Entity:            types.Entity{CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt},
		ID:                tariffID,
		Name:              m.Name,
		Description:       m.Description,
		Kind:              tariff.Kind(m.Kind),
		Priority:          m.Priority,
		IsActive:          m.IsActive,
		MonthlyFee:        types.Money{Amount: m.MonthlyFee, Currency: m.Currency},
		MinutesIncluded:   m.MinutesIncluded,
		SMSIncluded:       m.SMSIncluded,
		DataGBIncluded:    m.DataGBIncluded,
		MinuteOverageCost: types.Money{Amount: m.MinuteOverage, Currency: m.Currency},
		SMSOverageCost:    types.Money{Amount: m.SMSOverage, Currency: m.Currency},
		DataGBOverageCost: types.Money{Amount: m.DataGBOverage, Currency: m.Currency},
	}, nil
}

// SIM models

type simModel struct {
	ID            string     `bson:"_id"`
	ICCID         string     `bson:"iccid"`
	IMSI          string     `bson:"imsi"`
	MSISDN        string     `bson:"msisdn"`
	PUK           string     `bson:"puk"`
	Status        string     `bson:"status"`
	ContractID    string     `bson:"contract_id,omitempty"`
	ActivatedAt   *time.Time `bson:"activated_at,omitempty"`
	DeactivatedAt *time.Time `bson:"deactivated_at,omitempty"`
	Version       int64      `bson:"version"`
	CreatedAt     time.Time  `bson:"created_at"`
	UpdatedAt     time.Time  `bson:"updated_at"`
}

func toSIMModel(card *sim.SIM) *simModel {
	return &simModel{
		ID:            card.ID.String(),
		ICCID:         card.ICCID,
		IMSI:          card.IMSI,
		MSISDN:        card.MSISDN,
		PUK:           card.PUK,
		Status:        string(card.Status),
		ContractID:    card.ContractID.String(),
		ActivatedAt:   card.ActivatedAt,
		DeactivatedAt: card.DeactivatedAt,
		Version:       card.Version,
		CreatedAt:     card.CreatedAt,
		UpdatedAt:     card.UpdatedAt,
	}
}

func fromSIMModel(m *simModel) (*sim.SIM, error) {
	simID, err := id.ParseSIMID(m.ID)
	if err != nil {
		return nil, err
	}
	card := &sim.SIM{
		Entity:        types.Entity{CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt},
		ID:            simID,
		ICCID:         m.ICCID,
		IMSI:          m.IMSI,
		MSISDN:        m.MSISDN,
		PUK:           m.PUK,
		Status:        sim.Status(m.Status),
		ActivatedAt:   m.ActivatedAt,
		DeactivatedAt: m.DeactivatedAt,
		Version:       m.Version,
	}
	if m.ContractID != "" {
		contractID, err := id.ParseContractID(m.ContractID)
		if err != nil {
			return nil, err
		}
		card.ContractID = contractID
	}
	return card, nil
}

// Contract models

type contractModel struct {
	ID              string     `bson:"_id"`
	Number          string     `bson:"number"`
	CustomerID      string     `bson:"customer_id"`
	TariffID        string     `bson:"tariff_id"`
	SIMID           string     `bson:"sim_id,omitempty"`
	Status          string     `bson:"status"`
	Currency        string     `bson:"currency"`
	Balance         int64      `bson:"balance"`
	TotalCost       int64      `bson:"total_cost"`
	SignedDate      time.Time  `bson:"signed_date"`
	ActivationDate  *time.Time `bson:"activation_date,omitempty"`
	TerminationDate *time.Time `bson:"termination_date,omitempty"`
	NextBillingDate *time.Time `bson:"next_billing_date,omitempty"`
	Notes           string     `bson:"notes,omitempty"`
	Version         int64      `bson:"version"`
	CreatedAt       time.Time  `bson:"created_at"`
	UpdatedAt       time.Time  `bson:"updated_at"`
}

func toContractModel(c *contract.Contract) *contractModel {
	return &contractModel{
		ID:              c.ID.String(),
		Number:          c.Number,
		CustomerID:      c.CustomerID.String(),
		TariffID:        c.TariffID.String(),
		SIMID:           c.SIMID.String(),
		Status:          string(c.Status),
		Currency:        c.Balance.Currency,
		Balance:         c.Balance.Amount,
		TotalCost:       c.TotalCost.Amount,
		SignedDate:      c.SignedDate,
		ActivationDate:  c.ActivationDate,
		TerminationDate: c.TerminationDate,
		NextBillingDate: c.NextBillingDate,
		Notes:           c.Notes,
		Version:         c.Version,
		CreatedAt:       c.CreatedAt,
		UpdatedAt:       c.UpdatedAt,
	}
}

func fromContractModel(m *contractModel) (*contract.Contract, error) {
	contractID, err := id.ParseContractID(m.ID)
	if err != nil {
		return nil, err
	}
	customerID, err := id.ParseCustomerID(m.CustomerID)
	if err != nil {
		return nil, err
	}
	tariffID, err := id.ParseTariffID(m.TariffID)
	if err != nil {
		return nil, err
	}
	c := &contract.Contract{
		Entity:          types.Entity{CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt},
		ID:              contractID,
		Number:          m.Number,
		CustomerID:      customerID,
		TariffID:        tariffID,
		Status:          contract.Status(m.Status),
		Balance:         types.Money{Amount: m.Balance, Currency: m.Currency},
		TotalCost:       types.Money{Amount: m.TotalCost, Currency: m.Currency},
		SignedDate:      m.SignedDate,
		ActivationDate:  m.ActivationDate,
		TerminationDate: m.TerminationDate,
		NextBillingDate: m.NextBillingDate,
		Notes:           m.Notes,
		Version:         m.Version,
	}
	if m.SIMID != "" {
		simID, err := id.ParseSIMID(m.SIMID)
		if err != nil {
			return nil, err
		}
		c.SIMID = simID
	}
	return c, nil
}

// Payment models

type paymentModel struct {
	ID            string     `bson:"_id"`
	ContractID    string     `bson:"contract_id"`
	Type          string     `bson:"type"`
	Status        string     `bson:"status"`
	Method        string     `bson:"method"`
	Currency      string     `bson:"currency"`
	Amount        int64      `bson:"amount"`
	TransactionID string     `bson:"transaction_id,omitempty"`
	Description   string     `bson:"description,omitempty"`
	RefundOf      string     `bson:"refund_of,omitempty"`
	BillingPeriod string     `bson:"billing_period,omitempty"`
	BalanceAfter  *int64     `bson:"balance_after,omitempty"`
	ProcessedAt   *time.Time `bson:"processed_at,omitempty"`
	ProcessedBy   string     `bson:"processed_by,omitempty"`
	FailureReason string     `bson:"failure_reason,omitempty"`
	CreatedAt     time.Time  `bson:"created_at"`
	UpdatedAt     time.Time  `bson:"updated_at"`
}

func toPaymentModel(e *payment.Entry) *paymentModel {
	m := &paymentModel{
		ID:            e.ID.String(),
		ContractID:    e.ContractID.String(),
		Type:          string(e.Type),
		Status:        string(e.Status),
		Method:        string(e.Method),
		Currency:      e.Amount.Currency,
		Amount:        e.Amount.Amount,
		TransactionID: e.TransactionID,
		Description:   e.Description,
		RefundOf:      e.RefundOf.String(),
		BillingPeriod: e.BillingPeriod,
		ProcessedAt:   e.ProcessedAt,
		ProcessedBy:   e.ProcessedBy,
		FailureReason: e.FailureReason,
		CreatedAt:     e.CreatedAt,
		UpdatedAt:     e.UpdatedAt,
	}
	if e.BalanceAfter != nil {
		amount := e.BalanceAfter.Amount
		m.BalanceAfter = &amount
	}
	return m
}

func fromPaymentModel(m *paymentModel) (*payment.Entry, error) {
	paymentID, err := id.ParsePaymentID(m.ID)
	if err != nil {
		return nil, err
	}
	contractID, err := id.ParseContractID(m.ContractID)
	if err != nil {
		return nil, err
	}
	e := &payment.Entry{
		Entity:        types.Entity{CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt},
		ID:            paymentID,
		ContractID:    contractID,
		Type:          payment.Type(m.Type),
		Status:        payment.Status(m.Status),
		Method:        payment.Method(m.Method),
		Amount:        types.Money{Amount: m.Amount, Currency: m.Currency},
		TransactionID: m.TransactionID,
		Description:   m.Description,
		BillingPeriod: m.BillingPeriod,
		ProcessedAt:   m.ProcessedAt,
		ProcessedBy:   m.ProcessedBy,
		FailureReason: m.FailureReason,
	}
	if m.RefundOf != "" {
		refundOf, err := id.ParsePaymentID(m.RefundOf)
		if err != nil {
			return nil, err
		}
		e.RefundOf = refundOf
	}
	if m.BalanceAfter != nil {
		balance := types.Money{Amount: *m.BalanceAfter, Currency: m.Currency}
		e.BalanceAfter = &balance
	}
	return e, nil
}

// Traffic metric models

type metricModel struct {
	ID         string    `bson:"_id"`
	Calls      int64     `bson:"calls"`
	SMS        int64     `bson:"sms"`
	DataMB     float64   `bson:"data_mb"`
	TopUps     int64     `bson:"topups"`
	Currency   string    `bson:"currency"`
	Charges    int64     `bson:"charges"`
	Source     string    `bson:"source"`
	RecordedAt time.Time `bson:"recorded_at"`
	CreatedAt  time.Time `bson:"created_at"`
	UpdatedAt  time.Time `bson:"updated_at"`
}

func toMetricModel(m *traffic.Metric) *metricModel {
	return &metricModel{
		ID:         m.ID.String(),
		Calls:      m.Calls,
		SMS:        m.SMS,
		DataMB:     m.DataMB,
		TopUps:     m.TopUps,
		Currency:   m.Charges.Currency,
		Charges:    m.Charges.Amount,
		Source:     string(m.Source),
		RecordedAt: m.RecordedAt,
		CreatedAt:  m.CreatedAt,
		UpdatedAt:  m.UpdatedAt,
	}
}

func fromMetricModel(m *metricModel) (*traffic.Metric, error) {
	metricID, err := id.ParseMetricID(m.ID)
	if err != nil {
		return nil, err
	}
	return &traffic.Metric{
		Entity:     types.Entity{CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt},
		ID:         metricID,
		Calls:      m.Calls,
		SMS:        m.SMS,
		DataMB:     m.DataMB,
		TopUps:     m.TopUps,
		Charges:    types.Money{Amount: m.Charges, Currency: m.Currency},
		Source:     traffic.Source(m.Source),
		RecordedAt: m.RecordedAt,
	}, nil
}
