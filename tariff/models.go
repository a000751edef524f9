package tariff

import (
	"github.com/xraph/telco/id"
	"github.com/xraph/telco/types"
)

type Kind string

const (
	KindPrepaid  Kind = "prepaid"
	KindPostpaid Kind = "postpaid"
)

// Tariff is a rate plan: a recurring monthly fee, included usage
// allowances, and per-unit overage prices. An included allowance of 0
// means unlimited for that dimension. Deactivating a tariff only blocks
// new contract bindings; existing contracts keep billing on it.
type Tariff struct {
	types.Entity
	ID          id.TariffID `json:"id"`
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Kind        Kind        `json:"kind"`
	Priority    int         `json:"priority"`
	IsActive    bool        `json:"is_active"`
	MonthlyFee  types.Money `json:"monthly_fee"`

	MinutesIncluded int64   `json:"minutes_included"`
	SMSIncluded     int64   `json:"sms_included"`
	DataGBIncluded  float64 `json:"data_gb_included"`

	MinuteOverageCost types.Money `json:"minute_overage_cost"`
	SMSOverageCost    types.Money `json:"sms_overage_cost"`
	DataGBOverageCost types.Money `json:"data_gb_overage_cost"`
}

// Usage is one rating input: consumed volume per dimension.
type Usage struct {
	Minutes int64   `json:"minutes"`
	SMS     int64   `json:"sms"`
	DataGB  float64 `json:"data_gb"`
}

// OverageCost rates usage against the tariff's allowances. Each
// dimension is independent: unlimited allowances (included = 0) never
// charge, otherwise the charge is the volume above the allowance times
// the overage unit price. Fractional data volume rounds half-up to the
// minor unit at this point; the dimensions are summed already rounded.
func (t *Tariff) OverageCost(u Usage) types.Money {
	total := types.Zero(t.MonthlyFee.Currency)

	if t.MinutesIncluded > 0 && u.Minutes > t.MinutesIncluded {
		total = total.Add(t.MinuteOverageCost.Multiply(u.Minutes - t.MinutesIncluded))
	}
	if t.SMSIncluded > 0 && u.SMS > t.SMSIncluded {
		total = total.Add(t.SMSOverageCost.Multiply(u.SMS - t.SMSIncluded))
	}
	if t.DataGBIncluded > 0 && u.DataGB > t.DataGBIncluded {
		total = total.Add(t.DataGBOverageCost.MulFloat(u.DataGB - t.DataGBIncluded))
	}

	return total
}
