// Package traffic holds per-tick usage aggregates. Metrics are an
// observability record, not authoritative financial data; the ledger
// remains the source of truth for money.
package traffic

import (
	"time"

	"github.com/xraph/telco/id"
	"github.com/xraph/telco/types"
)

type Source string

const (
	SourceEmulator Source = "emulator"
	SourceImport   Source = "import"
)

// Metric aggregates one tick of usage activity across the sampled
// contracts: event counts, data volume, top-ups triggered, and the
// total amount charged.
type Metric struct {
	types.Entity
	ID         id.MetricID `json:"id"`
	Calls      int64       `json:"calls"`
	SMS        int64       `json:"sms"`
	DataMB     float64     `json:"data_mb"`
	TopUps     int64       `json:"topups"`
	Charges    types.Money `json:"charges"`
	Source     Source      `json:"source"`
	RecordedAt time.Time   `json:"recorded_at"`
}

// HasActivity reports whether the tick saw any usage at all. Quiet
// ticks are not persisted.
func (m *Metric) HasActivity() bool {
	return m.Calls > 0 || m.SMS > 0 || m.DataMB > 0 || m.TopUps > 0
}
