package telco

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/xraph/telco/gateway"
	"github.com/xraph/telco/id"
	"github.com/xraph/telco/notify"
	"github.com/xraph/telco/plugin"
	"github.com/xraph/telco/store"
	"github.com/xraph/telco/traffic"
)

// CustomerDirectory resolves customer identities. The engine does not
// own customer records; the surrounding CRM injects a lookup so
// contract creation can reject unknown customers.
type CustomerDirectory interface {
	Exists(ctx context.Context, customerID id.CustomerID) (bool, error)
}

// Engine is the subscriber billing engine.
type Engine struct {
	store     store.Store
	gateway   gateway.Client
	plugins   *plugin.Registry
	notifier  notify.Sink
	customers CustomerDirectory
	logger    *slog.Logger
	clock     func() time.Time

	// Background workers
	metricBuffer chan *traffic.Metric
	stopChan     chan struct{}
	stopOnce     sync.Once
	wg           sync.WaitGroup

	// Configuration
	metricBatchSize     int
	metricFlushInterval time.Duration
}

// New creates a new Engine instance.
func New(s store.Store, opts ...Option) *Engine {
	e := &Engine{
		store:               s,
		plugins:             plugin.NewRegistry(),
		notifier:            notify.NewFeed(notify.DefaultFeedSize),
		logger:              slog.Default(),
		clock:               time.Now,
		metricBuffer:        make(chan *traffic.Metric, 10000),
		stopChan:            make(chan struct{}),
		metricBatchSize:     100,
		metricFlushInterval: 5 * time.Second,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Option configures an Engine instance.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
		e.plugins.WithLogger(logger)
	}
}

// WithClock sets the time source. Tests use this to freeze billing
// dates.
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) {
		e.clock = clock
	}
}

// WithGateway sets the payment gateway used for online top-ups.
func WithGateway(gw gateway.Client) Option {
	return func(e *Engine) {
		e.gateway = gw
	}
}

// WithNotifier sets the notification sink.
func WithNotifier(sink notify.Sink) Option {
	return func(e *Engine) {
		e.notifier = sink
	}
}

// WithCustomerDirectory sets the customer lookup used to validate
// contract creation.
func WithCustomerDirectory(dir CustomerDirectory) Option {
	return func(e *Engine) {
		e.customers = dir
	}
}

// WithPlugin registers a plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Engine) {
		_ = e.plugins.Register(p) //nolint:errcheck // best-effort plugin registration during init
	}
}

// WithTrafficConfig configures traffic metric buffering.
func WithTrafficConfig(batchSize int, flushInterval time.Duration) Option {
	return func(e *Engine) {
		e.metricBatchSize = batchSize
		e.metricFlushInterval = flushInterval
	}
}

// Start begins background workers.
func (e *Engine) Start(ctx context.Context) error {
	// Migrate database
	if err := e.store.Migrate(ctx); err != nil {
		return err
	}

	// Initialize plugins
	e.plugins.EmitInit(ctx, e)

	// Start traffic flush worker
	e.wg.Add(1)
	go e.trafficFlushWorker(ctx)

	e.logger.Info("billing engine started",
		"batch_size", e.metricBatchSize,
		"flush_interval", e.metricFlushInterval,
		"gateway", e.gatewayName(),
	)

	return nil
}

// Stop shuts down the Engine. Safe to call more than once.
func (e *Engine) Stop() error {
	var err error
	e.stopOnce.Do(func() {
		close(e.stopChan)
		e.wg.Wait()

		ctx := context.Background()
		e.plugins.EmitShutdown(ctx)

		err = e.store.Close()
	})
	return err
}

// Plugins exposes the plugin registry.
func (e *Engine) Plugins() *plugin.Registry {
	return e.plugins
}

func (e *Engine) gatewayName() string {
	if e.gateway == nil {
		return "none"
	}
	return e.gateway.Name()
}

// ──────────────────────────────────────────────────
// Traffic metrics
// ──────────────────────────────────────────────────

// RecordTraffic buffers a traffic metric for asynchronous persistence
// (non-blocking).
func (e *Engine) RecordTraffic(ctx context.Context, m *traffic.Metric) error {
	if m.ID.IsNil() {
		m.ID = id.NewMetricID()
	}
	if m.RecordedAt.IsZero() {
		m.RecordedAt = e.clock()
	}

	select {
	case e.metricBuffer <- m:
		return nil
	default:
		return ErrMetricBufferFull
	}
}

// ListTraffic returns persisted traffic metrics.
func (e *Engine) ListTraffic(ctx context.Context, opts traffic.ListOpts) ([]*traffic.Metric, error) {
	return e.store.ListMetrics(ctx, opts)
}

// PurgeTraffic removes metrics recorded before the cutoff.
func (e *Engine) PurgeTraffic(ctx context.Context, before time.Time) (int64, error) {
	return e.store.PurgeMetrics(ctx, before)
}

// trafficFlushWorker flushes buffered metrics to the store.
func (e *Engine) trafficFlushWorker(ctx context.Context) {
	defer e.wg.Done()

	batch := make([]*traffic.Metric, 0, e.metricBatchSize)
	ticker := time.NewTicker(e.metricFlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.stopChan:
			// Final flush, draining anything still buffered
			for {
				select {
				case m := <-e.metricBuffer:
					batch = append(batch, m)
				default:
					if len(batch) > 0 {
						e.flushTrafficBatch(ctx, batch)
					}
					return
				}
			}

		case m := <-e.metricBuffer:
			batch = append(batch, m)
			if len(batch) >= e.metricBatchSize {
				e.flushTrafficBatch(ctx, batch)
				batch = make([]*traffic.Metric, 0, e.metricBatchSize)
			}

		case <-ticker.C:
			if len(batch) > 0 {
				e.flushTrafficBatch(ctx, batch)
				batch = make([]*traffic.Metric, 0, e.metricBatchSize)
			}
		}
	}
}

func (e *Engine) flushTrafficBatch(ctx context.Context, batch []*traffic.Metric) {
	start := time.Now()

	if err := e.store.InsertMetrics(ctx, batch); err != nil {
		e.logger.Error("failed to flush traffic batch",
			"error", err,
			"batch_size", len(batch),
		)
		return
	}

	elapsed := time.Since(start)
	e.plugins.EmitTrafficFlushed(ctx, len(batch), elapsed)

	e.logger.Debug("flushed traffic batch",
		"batch_size", len(batch),
		"elapsed_ms", elapsed.Milliseconds(),
	)
}

// notify sends a subscriber-facing notification through the configured
// sink and any registered plugin sinks. Delivery failures are logged,
// never propagated into billing paths.
func (e *Engine) notify(ctx context.Context, contractID id.ContractID, kind notify.Kind, message string) {
	n := notify.Notification{
		ContractID: contractID,
		Kind:       kind,
		Message:    message,
		SentAt:     e.clock(),
	}

	if e.notifier != nil {
		if err := e.notifier.Notify(ctx, n); err != nil {
			e.logger.Warn("notification delivery failed",
				"contract_id", contractID,
				"kind", kind,
				"error", err,
			)
		}
	}

	for _, sink := range e.plugins.GetNotificationSinks() {
		if err := sink.Notify(ctx, contractID.String(), string(kind), message); err != nil {
			e.logger.Warn("plugin notification delivery failed",
				"plugin", sink.Name(),
				"contract_id", contractID,
				"error", err,
			)
		}
	}
}
