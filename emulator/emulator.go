// Package emulator generates synthetic subscriber traffic against a
// running billing engine. It exists for load testing and demo
// environments: each tick a random sample of active contracts makes
// calls, sends SMS, and consumes data at flat external prices, with an
// optional automatic top-up for subscribers who run low.
package emulator

import (
	"context"
	"log/slog"
	"math/rand"
	"time"

	"github.com/xraph/telco"
	"github.com/xraph/telco/contract"
	"github.com/xraph/telco/payment"
	"github.com/xraph/telco/traffic"
	"github.com/xraph/telco/types"
)

// Config controls the synthetic traffic shape. Rates are per contract
// per tick; each draw is uniform between zero and the rate.
type Config struct {
	// SampleSize is how many active contracts participate per tick.
	// Zero means all of them.
	SampleSize int

	CallRate   int64   // max calls per tick
	SMSRate    int64   // max SMS per tick
	DataRateMB float64 // max megabytes per tick

	// Flat external prices, applied per unit.
	CallPrice   types.Money
	SMSPrice    types.Money
	DataPriceMB types.Money

	// AutoTopUp refills a subscriber whose balance falls below the
	// threshold after charging. Zero threshold disables it.
	TopUpThreshold types.Money
	TopUpAmount    types.Money

	// Seed makes runs reproducible. Zero seeds from the wall clock.
	Seed int64
}

// Summary aggregates a completed run.
type Summary struct {
	Ticks       int         `json:"ticks"`
	Calls       int64       `json:"calls"`
	SMS         int64       `json:"sms"`
	DataMB      float64     `json:"data_mb"`
	TopUps      int64       `json:"topups"`
	Charged     types.Money `json:"charged"`
	ToppedUp    types.Money `json:"topped_up"`
	ChargeFails int64       `json:"charge_fails"`
}

// Emulator drives synthetic traffic through an engine.
type Emulator struct {
	engine *telco.Engine
	cfg    Config
	rand   *rand.Rand
	logger *slog.Logger
}

// New creates an emulator over the given engine.
func New(engine *telco.Engine, cfg Config) *Emulator {
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Emulator{
		engine: engine,
		cfg:    cfg,
		rand:   rand.New(rand.NewSource(seed)),
		logger: slog.Default(),
	}
}

// WithLogger sets the logger.
func (em *Emulator) WithLogger(logger *slog.Logger) *Emulator {
	em.logger = logger
	return em
}

// Run executes the given number of ticks and returns the aggregate
// summary. A failed charge is counted in ChargeFails and excluded from
// Charged, never fatal; the drawn usage still counts toward the totals
// and the contract still gets its top-up check.
func (em *Emulator) Run(ctx context.Context, ticks int) (*Summary, error) {
	currency := em.cfg.CallPrice.Currency
	summary := &Summary{
		Charged:  types.Zero(currency),
		ToppedUp: types.Zero(currency),
	}

	for tick := 0; tick < ticks; tick++ {
		select {
		case <-ctx.Done():
			return summary, ctx.Err()
		default:
		}

		if err := em.runTick(ctx, summary); err != nil {
			return summary, err
		}
		summary.Ticks++
	}

	em.logger.Info("emulation finished",
		"ticks", summary.Ticks,
		"calls", summary.Calls,
		"sms", summary.SMS,
		"data_mb", summary.DataMB,
		"topups", summary.TopUps,
		"charged", summary.Charged,
	)
	return summary, nil
}

func (em *Emulator) runTick(ctx context.Context, summary *Summary) error {
	active, err := em.engine.ListContracts(ctx, contract.ListOpts{Status: contract.StatusActive})
	if err != nil {
		return err
	}
	sample := em.sample(active)

	var (
		tickCalls   int64
		tickSMS     int64
		tickData    float64
		tickTopUps  int64
		tickCharges = types.Zero(em.cfg.CallPrice.Currency)
	)

	for _, c := range sample {
		calls := em.draw(em.cfg.CallRate)
		sms := em.draw(em.cfg.SMSRate)
		dataMB := em.rand.Float64() * em.cfg.DataRateMB

		// The usage happened regardless of whether charging succeeds.
		tickCalls += calls
		tickSMS += sms
		tickData += dataMB

		// One ledger entry per usage dimension, each rounded at the
		// minor unit on its own.
		charges := []struct {
			cost types.Money
			desc string
		}{
			{em.cfg.CallPrice.Multiply(calls), "voice traffic"},
			{em.cfg.SMSPrice.Multiply(sms), "SMS traffic"},
			{em.cfg.DataPriceMB.MulFloat(dataMB), "data traffic"},
		}
		for _, ch := range charges {
			if !ch.cost.IsPositive() {
				continue
			}
			if _, err := em.engine.DeductBalance(ctx, c.ID, ch.cost, ch.desc); err != nil {
				summary.ChargeFails++
				em.logger.Debug("traffic charge skipped",
					"contract_id", c.ID,
					"kind", ch.desc,
					"error", err,
				)
				continue
			}
			tickCharges = tickCharges.Add(ch.cost)
		}

		if topped, err := em.maybeTopUp(ctx, c.ID, summary); err == nil && topped {
			tickTopUps++
		}
	}

	summary.Calls += tickCalls
	summary.SMS += tickSMS
	summary.DataMB += tickData
	summary.TopUps += tickTopUps
	summary.Charged = summary.Charged.Add(tickCharges)

	// Quiet ticks leave no metric behind.
	metric := &traffic.Metric{
		Calls:      tickCalls,
		SMS:        tickSMS,
		DataMB:     tickData,
		TopUps:     tickTopUps,
		Charges:    tickCharges,
		Source:     traffic.SourceEmulator,
		RecordedAt: time.Now(),
	}
	if !metric.HasActivity() {
		return nil
	}
	if err := em.engine.RecordTraffic(ctx, metric); err != nil {
		em.logger.Warn("traffic metric dropped", "error", err)
	}
	return nil
}

// maybeTopUp refills the contract when its balance dropped below the
// configured threshold.
func (em *Emulator) maybeTopUp(ctx context.Context, contractID telco.ID, summary *Summary) (bool, error) {
	if !em.cfg.TopUpThreshold.IsPositive() || !em.cfg.TopUpAmount.IsPositive() {
		return false, nil
	}

	c, err := em.engine.GetContract(ctx, contractID)
	if err != nil {
		return false, err
	}
	if !c.Balance.LessThan(em.cfg.TopUpThreshold) {
		return false, nil
	}

	if _, err := em.engine.AddBalance(ctx, c.ID, em.cfg.TopUpAmount, payment.MethodAutoTopUp, "auto top-up"); err != nil {
		return false, err
	}
	summary.ToppedUp = summary.ToppedUp.Add(em.cfg.TopUpAmount)
	return true, nil
}

// sample picks SampleSize contracts without replacement, preserving no
// particular order.
func (em *Emulator) sample(contracts []*contract.Contract) []*contract.Contract {
	n := em.cfg.SampleSize
	if n <= 0 || n >= len(contracts) {
		return contracts
	}

	picked := make([]*contract.Contract, len(contracts))
	copy(picked, contracts)
	em.rand.Shuffle(len(picked), func(i, j int) {
		picked[i], picked[j] = picked[j], picked[i]
	})
	return picked[:n]
}

// draw returns a uniform value in [0, max].
func (em *Emulator) draw(max int64) int64 {
	if max <= 0 {
		return 0
	}
	return em.rand.Int63n(max + 1)
}
