// Package extension provides the Forge extension adapter for Telco.
//
// It implements the forge.Extension interface to integrate the billing
// engine into a Forge application with DI registration, lifecycle
// management, and cron-scheduled billing sweeps.
//
// Configuration can be provided programmatically via Option functions
// or via YAML configuration files under "extensions.telco" or "telco" keys.
package extension

import (
	"context"
	"errors"

	"github.com/robfig/cron/v3"
	"github.com/xraph/forge"
	"github.com/xraph/vessel"

	telco "github.com/xraph/telco"
	"github.com/xraph/telco/store"
	"github.com/xraph/telco/store/memory"
)

// ExtensionName is the name registered with Forge.
const ExtensionName = "telco"

// ExtensionDescription is the human-readable description.
const ExtensionDescription = "Subscriber contract and balance billing engine"

// ExtensionVersion is the semantic version.
const ExtensionVersion = "0.1.0"

// Ensure Extension implements forge.Extension at compile time.
var _ forge.Extension = (*Extension)(nil)

// Extension adapts the Telco billing engine as a Forge extension.
type Extension struct {
	*forge.BaseExtension

	config     Config
	engine     *telco.Engine
	store      store.Store
	engineOpts []telco.Option
	scheduler  *cron.Cron
}

// New creates a new Telco Forge extension with the given options.
func New(opts ...Option) *Extension {
	e := &Extension{
		BaseExtension: forge.NewBaseExtension(ExtensionName, ExtensionVersion, ExtensionDescription),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Engine returns the underlying billing engine.
// This is nil until Register is called.
func (e *Extension) Engine() *telco.Engine { return e.engine }

// Register implements [forge.Extension]. It loads configuration,
// initializes the billing engine, and registers it in the DI container.
func (e *Extension) Register(fapp forge.App) error {
	if err := e.BaseExtension.Register(fapp); err != nil {
		return err
	}

	if err := e.loadConfiguration(); err != nil {
		return err
	}

	// Use memory store if no store was provided programmatically.
	if e.store == nil {
		e.store = memory.New()
	}

	opts := e.buildEngineOpts()

	eng := telco.New(e.store, opts...)
	e.engine = eng

	return vessel.Provide(fapp.Container(), func() (*telco.Engine, error) {
		return e.engine, nil
	})
}

// Start implements [forge.Extension].
func (e *Extension) Start(ctx context.Context) error {
	if e.engine == nil {
		return errors.New("telco: extension not initialized")
	}

	if !e.config.DisableMigrate {
		if err := e.engine.Start(ctx); err != nil {
			return err
		}
	}

	if !e.config.DisableSweeps {
		if err := e.startScheduler(); err != nil {
			return err
		}
	}

	e.MarkStarted()
	return nil
}

// Stop implements [forge.Extension].
func (e *Extension) Stop(_ context.Context) error {
	if e.scheduler != nil {
		<-e.scheduler.Stop().Done()
	}
	if e.engine != nil {
		if err := e.engine.Stop(); err != nil {
			e.MarkStopped()
			return err
		}
	}
	e.MarkStopped()
	return nil
}

// Health implements [forge.Extension].
func (e *Extension) Health(ctx context.Context) error {
	if e.store == nil {
		return errors.New("telco: store not initialized")
	}
	return e.store.Ping(ctx)
}

// startScheduler registers the three billing sweeps with a cron scheduler.
func (e *Extension) startScheduler() error {
	c := cron.New()

	jobs := []struct {
		name string
		spec string
		run  func(ctx context.Context) error
	}{
		{"monthly_fee", e.config.MonthlyFeeSchedule, func(ctx context.Context) error {
			_, err := e.engine.RunMonthlyFeeSweep(ctx)
			return err
		}},
		{"low_balance", e.config.LowBalanceSchedule, func(ctx context.Context) error {
			_, err := e.engine.RunLowBalanceSweep(ctx)
			return err
		}},
		{"pending_payment", e.config.PendingPaymentSchedule, func(ctx context.Context) error {
			_, err := e.engine.RunPendingPaymentSweep(ctx, e.config.PendingPaymentAge)
			return err
		}},
	}

	for _, job := range jobs {
		name, run := job.name, job.run
		_, err := c.AddFunc(job.spec, func() {
			if err := run(context.Background()); err != nil {
				e.Logger().Error("telco: sweep failed",
					forge.F("sweep", name),
					forge.F("error", err.Error()),
				)
			}
		})
		if err != nil {
			return err
		}
	}

	c.Start()
	e.scheduler = c
	return nil
}

// buildEngineOpts constructs telco.Option values from the resolved config.
func (e *Extension) buildEngineOpts() []telco.Option {
	opts := make([]telco.Option, 0, len(e.engineOpts)+1)

	if e.config.TrafficBatchSize > 0 || e.config.TrafficFlushInterval > 0 {
		batchSize := e.config.TrafficBatchSize
		flushInterval := e.config.TrafficFlushInterval
		defaults := DefaultConfig()
		if batchSize == 0 {
			batchSize = defaults.TrafficBatchSize
		}
		if flushInterval == 0 {
			flushInterval = defaults.TrafficFlushInterval
		}
		opts = append(opts, telco.WithTrafficConfig(batchSize, flushInterval))
	}

	// Append any pass-through engine options.
	opts = append(opts, e.engineOpts...)

	return opts
}

// --- Config Loading ---

// loadConfiguration loads config from YAML files or programmatic sources.
func (e *Extension) loadConfiguration() error {
	programmaticConfig := e.config

	fileConfig, configLoaded := e.tryLoadFromConfigFile()

	if !configLoaded {
		if programmaticConfig.RequireConfig {
			return errors.New("telco: configuration is required but not found in config files; " +
				"ensure 'extensions.telco' or 'telco' key exists in your config")
		}

		e.config = e.mergeWithDefaults(programmaticConfig)
	} else {
		e.config = e.mergeConfigurations(fileConfig, programmaticConfig)
	}

	e.Logger().Debug("telco: configuration loaded",
		forge.F("disable_migrate", e.config.DisableMigrate),
		forge.F("disable_sweeps", e.config.DisableSweeps),
		forge.F("traffic_batch_size", e.config.TrafficBatchSize),
		forge.F("traffic_flush_interval", e.config.TrafficFlushInterval),
		forge.F("monthly_fee_schedule", e.config.MonthlyFeeSchedule),
		forge.F("low_balance_schedule", e.config.LowBalanceSchedule),
		forge.F("pending_payment_schedule", e.config.PendingPaymentSchedule),
	)

	return nil
}

// tryLoadFromConfigFile attempts to load config from YAML files.
func (e *Extension) tryLoadFromConfigFile() (Config, bool) {
	cm := e.App().Config()
	var cfg Config

	// Try "extensions.telco" first (namespaced pattern).
	if cm.IsSet("extensions.telco") {
		if err := cm.Bind("extensions.telco", &cfg); err == nil {
			e.Logger().Debug("telco: loaded config from file",
				forge.F("key", "extensions.telco"),
			)
			return cfg, true
		}
		e.Logger().Warn("telco: failed to bind extensions.telco config",
			forge.F("error", "bind failed"),
		)
	}

	// Try legacy "telco" key.
	if cm.IsSet("telco") {
		if err := cm.Bind("telco", &cfg); err == nil {
			e.Logger().Debug("telco: loaded config from file",
				forge.F("key", "telco"),
			)
			return cfg, true
		}
		e.Logger().Warn("telco: failed to bind telco config",
			forge.F("error", "bind failed"),
		)
	}

	return Config{}, false
}

// mergeWithDefaults fills zero-valued fields with defaults.
func (e *Extension) mergeWithDefaults(cfg Config) Config {
	defaults := DefaultConfig()
	if cfg.TrafficBatchSize == 0 {
		cfg.TrafficBatchSize = defaults.TrafficBatchSize
	}
	if cfg.TrafficFlushInterval == 0 {
		cfg.TrafficFlushInterval = defaults.TrafficFlushInterval
	}
	if cfg.MonthlyFeeSchedule == "" {
		cfg.MonthlyFeeSchedule = defaults.MonthlyFeeSchedule
	}
	if cfg.LowBalanceSchedule == "" {
		cfg.LowBalanceSchedule = defaults.LowBalanceSchedule
	}
	if cfg.PendingPaymentSchedule == "" {
		cfg.PendingPaymentSchedule = defaults.PendingPaymentSchedule
	}
	if cfg.PendingPaymentAge == 0 {
		cfg.PendingPaymentAge = defaults.PendingPaymentAge
	}
	return cfg
}

// mergeConfigurations merges YAML config with programmatic options.
// YAML config takes precedence for most fields; programmatic bool flags fill gaps.
func (e *Extension) mergeConfigurations(yamlConfig, programmaticConfig Config) Config {
	// Programmatic bool flags override when true.
	if programmaticConfig.DisableMigrate {
		yamlConfig.DisableMigrate = true
	}
	if programmaticConfig.DisableSweeps {
		yamlConfig.DisableSweeps = true
	}

	// Duration/int/string fields: YAML takes precedence, programmatic fills gaps.
	if yamlConfig.TrafficBatchSize == 0 && programmaticConfig.TrafficBatchSize != 0 {
		yamlConfig.TrafficBatchSize = programmaticConfig.TrafficBatchSize
	}
	if yamlConfig.TrafficFlushInterval == 0 && programmaticConfig.TrafficFlushInterval != 0 {
		yamlConfig.TrafficFlushInterval = programmaticConfig.TrafficFlushInterval
	}
	if yamlConfig.MonthlyFeeSchedule == "" && programmaticConfig.MonthlyFeeSchedule != "" {
		yamlConfig.MonthlyFeeSchedule = programmaticConfig.MonthlyFeeSchedule
	}
	if yamlConfig.LowBalanceSchedule == "" && programmaticConfig.LowBalanceSchedule != "" {
		yamlConfig.LowBalanceSchedule = programmaticConfig.LowBalanceSchedule
	}
	if yamlConfig.PendingPaymentSchedule == "" && programmaticConfig.PendingPaymentSchedule != "" {
		yamlConfig.PendingPaymentSchedule = programmaticConfig.PendingPaymentSchedule
	}
	if yamlConfig.PendingPaymentAge == 0 && programmaticConfig.PendingPaymentAge != 0 {
		yamlConfig.PendingPaymentAge = programmaticConfig.PendingPaymentAge
	}

	// Fill remaining zeros with defaults.
	return e.mergeWithDefaults(yamlConfig)
}
