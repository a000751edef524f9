package extension

import (
	"time"

	telco "github.com/xraph/telco"
	"github.com/xraph/telco/plugin"
	"github.com/xraph/telco/store"
)

// Option configures the Telco Forge extension.
type Option func(*Extension)

// WithStore sets the store for the billing engine.
func WithStore(s store.Store) Option {
	return func(e *Extension) {
		e.store = s
	}
}

// WithEngineOption passes a telco.Option through to the underlying engine.
func WithEngineOption(opt telco.Option) Option {
	return func(e *Extension) {
		e.engineOpts = append(e.engineOpts, opt)
	}
}

// WithPlugin registers an engine plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Extension) {
		e.engineOpts = append(e.engineOpts, telco.WithPlugin(p))
	}
}

// WithConfig sets the Forge extension configuration.
func WithConfig(cfg Config) Option {
	return func(e *Extension) { e.config = cfg }
}

// WithDisableMigrate prevents auto-migration on start.
func WithDisableMigrate() Option {
	return func(e *Extension) { e.config.DisableMigrate = true }
}

// WithDisableSweeps prevents the cron scheduler from running billing sweeps.
func WithDisableSweeps() Option {
	return func(e *Extension) { e.config.DisableSweeps = true }
}

// WithRequireConfig requires config to be present in YAML files.
// If true and no config is found, Register returns an error.
func WithRequireConfig(require bool) Option {
	return func(e *Extension) { e.config.RequireConfig = require }
}

// WithTrafficBatchSize sets the number of traffic metrics to buffer before flushing.
func WithTrafficBatchSize(size int) Option {
	return func(e *Extension) { e.config.TrafficBatchSize = size }
}

// WithTrafficFlushInterval sets how frequently the traffic buffer is flushed.
func WithTrafficFlushInterval(d time.Duration) Option {
	return func(e *Extension) { e.config.TrafficFlushInterval = d }
}

// WithMonthlyFeeSchedule sets the cron expression for the monthly fee sweep.
func WithMonthlyFeeSchedule(expr string) Option {
	return func(e *Extension) { e.config.MonthlyFeeSchedule = expr }
}

// WithLowBalanceSchedule sets the cron expression for the low balance sweep.
func WithLowBalanceSchedule(expr string) Option {
	return func(e *Extension) { e.config.LowBalanceSchedule = expr }
}

// WithPendingPaymentSchedule sets the cron expression for the pending payment sweep.
func WithPendingPaymentSchedule(expr string) Option {
	return func(e *Extension) { e.config.PendingPaymentSchedule = expr }
}

// WithPendingPaymentAge sets how old a pending payment must be before the
// reconciliation sweep polls the gateway for it.
func WithPendingPaymentAge(d time.Duration) Option {
	return func(e *Extension) { e.config.PendingPaymentAge = d }
}
