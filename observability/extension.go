// Package observability provides a metrics extension that records billing
// lifecycle event counts through a pluggable MetricFactory.
package observability

import (
	"context"
	"time"

	"github.com/xraph/telco/payment"
	"github.com/xraph/telco/plugin"
)

// Ensure MetricsExtension implements required interfaces.
var (
	_ plugin.Plugin               = (*MetricsExtension)(nil)
	_ plugin.OnInit               = (*MetricsExtension)(nil)
	_ plugin.OnContractCreated    = (*MetricsExtension)(nil)
	_ plugin.OnContractActivated  = (*MetricsExtension)(nil)
	_ plugin.OnContractSuspended  = (*MetricsExtension)(nil)
	_ plugin.OnContractResumed    = (*MetricsExtension)(nil)
	_ plugin.OnContractTerminated = (*MetricsExtension)(nil)
	_ plugin.OnSIMBlocked         = (*MetricsExtension)(nil)
	_ plugin.OnSIMUnblocked       = (*MetricsExtension)(nil)
	_ plugin.OnPaymentProcessed   = (*MetricsExtension)(nil)
	_ plugin.OnBalanceNegative    = (*MetricsExtension)(nil)
	_ plugin.OnAutoTopUp          = (*MetricsExtension)(nil)
	_ plugin.OnTrafficFlushed     = (*MetricsExtension)(nil)
	_ plugin.OnSweepCompleted     = (*MetricsExtension)(nil)
)

// Counter interface for metric counters.
type Counter interface {
	Inc()
	Add(float64)
}

// Histogram interface for metric histograms.
type Histogram interface {
	Observe(float64)
}

// MetricFactory creates metrics.
type MetricFactory interface {
	Counter(name string) Counter
	Histogram(name string) Histogram
}

// MetricsExtension records system-wide lifecycle metrics.
// Register it as an engine plugin to automatically track billing metrics.
type MetricsExtension struct {
	factory MetricFactory

	// Contract metrics
	ContractCreated    Counter
	ContractActivated  Counter
	ContractSuspended  Counter
	ContractResumed    Counter
	ContractTerminated Counter

	// SIM metrics
	SIMBlocked   Counter
	SIMUnblocked Counter

	// Ledger metrics
	PaymentsProcessed Counter
	PaymentsFailed    Counter
	PaymentAmount     Histogram
	BalanceNegative   Counter
	AutoTopUps        Counter

	// Traffic metrics
	TrafficFlushed      Counter
	TrafficBatchSize    Histogram
	TrafficFlushLatency Histogram

	// Sweep metrics
	SweepRuns     Counter
	SweepFailures Counter
	SweepBatch    Histogram
}

// NewMetricsExtension creates a MetricsExtension with the provided MetricFactory.
func NewMetricsExtension(factory MetricFactory) *MetricsExtension {
	return &MetricsExtension{
		factory: factory,

		// Contract metrics
		ContractCreated:    factory.Counter("telco.contract.created"),
		ContractActivated:  factory.Counter("telco.contract.activated"),
		ContractSuspended:  factory.Counter("telco.contract.suspended"),
		ContractResumed:    factory.Counter("telco.contract.resumed"),
		ContractTerminated: factory.Counter("telco.contract.terminated"),

		// SIM metrics
		SIMBlocked:   factory.Counter("telco.sim.blocked"),
		SIMUnblocked: factory.Counter("telco.sim.unblocked"),

		// Ledger metrics
		PaymentsProcessed: factory.Counter("telco.payment.processed"),
		PaymentsFailed:    factory.Counter("telco.payment.failed"),
		PaymentAmount:     factory.Histogram("telco.payment.amount"),
		BalanceNegative:   factory.Counter("telco.balance.negative"),
		AutoTopUps:        factory.Counter("telco.balance.auto_top_up"),

		// Traffic metrics
		TrafficFlushed:      factory.Counter("telco.traffic.flushed"),
		TrafficBatchSize:    factory.Histogram("telco.traffic.batch.size"),
		TrafficFlushLatency: factory.Histogram("telco.traffic.flush.latency_ms"),

		// Sweep metrics
		SweepRuns:     factory.Counter("telco.sweep.runs"),
		SweepFailures: factory.Counter("telco.sweep.failures"),
		SweepBatch:    factory.Histogram("telco.sweep.batch.size"),
	}
}

// Name implements plugin.Plugin.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// OnInit implements plugin.OnInit.
func (m *MetricsExtension) OnInit(_ context.Context, _ interface{}) error {
	// No initialization needed
	return nil
}

// ──────────────────────────────────────────────────
// Contract lifecycle hooks
// ──────────────────────────────────────────────────

// OnContractCreated implements plugin.OnContractCreated.
func (m *MetricsExtension) OnContractCreated(_ context.Context, _ interface{}) error {
	m.ContractCreated.Inc()
	return nil
}

// OnContractActivated implements plugin.OnContractActivated.
func (m *MetricsExtension) OnContractActivated(_ context.Context, _ interface{}) error {
	m.ContractActivated.Inc()
	return nil
}

// OnContractSuspended implements plugin.OnContractSuspended.
func (m *MetricsExtension) OnContractSuspended(_ context.Context, _ interface{}, _ string) error {
	m.ContractSuspended.Inc()
	return nil
}

// OnContractResumed implements plugin.OnContractResumed.
func (m *MetricsExtension) OnContractResumed(_ context.Context, _ interface{}) error {
	m.ContractResumed.Inc()
	return nil
}

// OnContractTerminated implements plugin.OnContractTerminated.
func (m *MetricsExtension) OnContractTerminated(_ context.Context, _ interface{}) error {
	m.ContractTerminated.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// SIM lifecycle hooks
// ──────────────────────────────────────────────────

// OnSIMBlocked implements plugin.OnSIMBlocked.
func (m *MetricsExtension) OnSIMBlocked(_ context.Context, _ interface{}, _ string) error {
	m.SIMBlocked.Inc()
	return nil
}

// OnSIMUnblocked implements plugin.OnSIMUnblocked.
func (m *MetricsExtension) OnSIMUnblocked(_ context.Context, _ interface{}) error {
	m.SIMUnblocked.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Ledger hooks
// ──────────────────────────────────────────────────

// OnPaymentProcessed implements plugin.OnPaymentProcessed.
func (m *MetricsExtension) OnPaymentProcessed(_ context.Context, v interface{}) error {
	m.PaymentsProcessed.Inc()
	if entry, ok := v.(*payment.Entry); ok && entry != nil {
		if entry.Status == payment.StatusFailed {
			m.PaymentsFailed.Inc()
		}
		m.PaymentAmount.Observe(float64(entry.Amount.Amount))
	}
	return nil
}

// OnBalanceNegative implements plugin.OnBalanceNegative.
func (m *MetricsExtension) OnBalanceNegative(_ context.Context, _ interface{}) error {
	m.BalanceNegative.Inc()
	return nil
}

// OnAutoTopUp implements plugin.OnAutoTopUp.
func (m *MetricsExtension) OnAutoTopUp(_ context.Context, _ interface{}, _ interface{}) error {
	m.AutoTopUps.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Traffic hooks
// ──────────────────────────────────────────────────

// OnTrafficFlushed implements plugin.OnTrafficFlushed.
func (m *MetricsExtension) OnTrafficFlushed(_ context.Context, count int, elapsed time.Duration) error {
	m.TrafficFlushed.Inc()
	m.TrafficBatchSize.Observe(float64(count))
	m.TrafficFlushLatency.Observe(float64(elapsed.Milliseconds()))
	return nil
}

// ──────────────────────────────────────────────────
// Sweep hooks
// ──────────────────────────────────────────────────

// OnSweepCompleted implements plugin.OnSweepCompleted.
func (m *MetricsExtension) OnSweepCompleted(_ context.Context, _ string, succeeded, failed int) error {
	m.SweepRuns.Inc()
	if failed > 0 {
		m.SweepFailures.Add(float64(failed))
	}
	m.SweepBatch.Observe(float64(succeeded + failed))
	return nil
}
