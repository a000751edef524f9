package extension

import "time"

// Config holds the Telco extension configuration.
// Fields can be set programmatically via Option functions or loaded from
// YAML configuration files (under "extensions.telco" or "telco" keys).
type Config struct {
	// DisableMigrate prevents auto-migration on start.
	DisableMigrate bool `json:"disable_migrate" mapstructure:"disable_migrate" yaml:"disable_migrate"`

	// DisableSweeps prevents the cron scheduler from running the billing
	// sweeps. Sweeps can still be triggered manually through the engine.
	DisableSweeps bool `json:"disable_sweeps" mapstructure:"disable_sweeps" yaml:"disable_sweeps"`

	// TrafficBatchSize is the number of traffic metrics to buffer before
	// flushing to the store (default: 100).
	TrafficBatchSize int `json:"traffic_batch_size" mapstructure:"traffic_batch_size" yaml:"traffic_batch_size"`

	// TrafficFlushInterval is how frequently the traffic buffer is flushed
	// even if the batch size has not been reached (default: 5s).
	TrafficFlushInterval time.Duration `json:"traffic_flush_interval" mapstructure:"traffic_flush_interval" yaml:"traffic_flush_interval"`

	// MonthlyFeeSchedule is the cron expression for the monthly fee sweep
	// (default: "0 3 * * *", daily at 03:00).
	MonthlyFeeSchedule string `json:"monthly_fee_schedule" mapstructure:"monthly_fee_schedule" yaml:"monthly_fee_schedule"`

	// LowBalanceSchedule is the cron expression for the low balance sweep
	// (default: "0 */6 * * *", every six hours).
	LowBalanceSchedule string `json:"low_balance_schedule" mapstructure:"low_balance_schedule" yaml:"low_balance_schedule"`

	// PendingPaymentSchedule is the cron expression for the pending payment
	// reconciliation sweep (default: "*/15 * * * *", every 15 minutes).
	PendingPaymentSchedule string `json:"pending_payment_schedule" mapstructure:"pending_payment_schedule" yaml:"pending_payment_schedule"`

	// PendingPaymentAge is how old a pending payment must be before the
	// reconciliation sweep polls the gateway for it (default: 30m).
	PendingPaymentAge time.Duration `json:"pending_payment_age" mapstructure:"pending_payment_age" yaml:"pending_payment_age"`

	// RequireConfig requires config to be present in YAML files.
	// If true and no config is found, Register returns an error.
	RequireConfig bool `json:"-" yaml:"-"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		TrafficBatchSize:       100,
		TrafficFlushInterval:   5 * time.Second,
		MonthlyFeeSchedule:     "0 3 * * *",
		LowBalanceSchedule:     "0 */6 * * *",
		PendingPaymentSchedule: "*/15 * * * *",
		PendingPaymentAge:      30 * time.Minute,
	}
}
