package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"time"
)

// Registry manages all registered plugins and provides efficient dispatch.
// It uses type-cached discovery for O(1) dispatch performance.
type Registry struct {
	mu      sync.RWMutex
	plugins []Plugin
	logger  *slog.Logger

	// Type-cached plugin lists for efficient dispatch
	onInit                 []OnInit
	onShutdown             []OnShutdown
	onContractCreated      []OnContractCreated
	onContractActivated    []OnContractActivated
	onContractSuspended    []OnContractSuspended
	onContractResumed      []OnContractResumed
	onContractTerminated   []OnContractTerminated
	onSIMBlocked           []OnSIMBlocked
	onSIMUnblocked         []OnSIMUnblocked
	onPaymentProcessed     []OnPaymentProcessed
	onBalanceNegative      []OnBalanceNegative
	onAutoTopUp            []OnAutoTopUp
	onTrafficFlushed       []OnTrafficFlushed
	onSweepCompleted       []OnSweepCompleted
	onGatewayStatusChecked []OnGatewayStatusChecked
	gateways               []GatewayPlugin
	ratingStrategies       map[string]RatingStrategy
	notificationSinks      []NotificationSink
}

// NewRegistry creates a new plugin registry.
func NewRegistry() *Registry {
	return &Registry{
		logger:           slog.Default(),
		ratingStrategies: make(map[string]RatingStrategy),
	}
}

// WithLogger sets the logger for the registry.
func (r *Registry) WithLogger(logger *slog.Logger) *Registry {
	r.logger = logger
	return r
}

// Register adds a plugin to the registry and caches its interfaces.
func (r *Registry) Register(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Check for duplicate
	for _, existing := range r.plugins {
		if existing.Name() == p.Name() {
			return fmt.Errorf("plugin: duplicate registration: %s", p.Name())
		}
	}

	r.plugins = append(r.plugins, p)

	// Type-switch to cache interfaces
	if v, ok := p.(OnInit); ok {
		r.onInit = append(r.onInit, v)
	}
	if v, ok := p.(OnShutdown); ok {
		r.onShutdown = append(r.onShutdown, v)
	}
	if v, ok := p.(OnContractCreated); ok {
		r.onContractCreated = append(r.onContractCreated, v)
	}
	if v, ok := p.(OnContractActivated); ok {
		r.onContractActivated = append(r.onContractActivated, v)
	}
	if v, ok := p.(OnContractSuspended); ok {
		r.onContractSuspended = append(r.onContractSuspended, v)
	}
	if v, ok := p.(OnContractResumed); ok {
		r.onContractResumed = append(r.onContractResumed, v)
	}
	if v, ok := p.(OnContractTerminated); ok {
		r.onContractTerminated = append(r.onContractTerminated, v)
	}
	if v, ok := p.(OnSIMBlocked); ok {
		r.onSIMBlocked = append(r.onSIMBlocked, v)
	}
	if v, ok := p.(OnSIMUnblocked); ok {
		r.onSIMUnblocked = append(r.onSIMUnblocked, v)
	}
	if v, ok := p.(OnPaymentProcessed); ok {
		r.onPaymentProcessed = append(r.onPaymentProcessed, v)
	}
	if v, ok := p.(OnBalanceNegative); ok {
		r.onBalanceNegative = append(r.onBalanceNegative, v)
	}
	if v, ok := p.(OnAutoTopUp); ok {
		r.onAutoTopUp = append(r.onAutoTopUp, v)
	}
	if v, ok := p.(OnTrafficFlushed); ok {
		r.onTrafficFlushed = append(r.onTrafficFlushed, v)
	}
	if v, ok := p.(OnSweepCompleted); ok {
		r.onSweepCompleted = append(r.onSweepCompleted, v)
	}
	if v, ok := p.(OnGatewayStatusChecked); ok {
		r.onGatewayStatusChecked = append(r.onGatewayStatusChecked, v)
	}
	if v, ok := p.(GatewayPlugin); ok {
		r.gateways = append(r.gateways, v)
	}
	if v, ok := p.(RatingStrategy); ok {
		r.ratingStrategies[v.StrategyName()] = v
	}
	if v, ok := p.(NotificationSink); ok {
		r.notificationSinks = append(r.notificationSinks, v)
	}

	r.logger.Info("plugin registered",
		"name", p.Name(),
		"interfaces", r.getImplementedInterfaces(p),
	)

	return nil
}

// getImplementedInterfaces returns a list of interfaces implemented by the plugin.
func (r *Registry) getImplementedInterfaces(p Plugin) []string {
	var interfaces []string
	v := reflect.TypeOf(p)

	// Check each interface
	checkInterface := func(iface reflect.Type, name string) {
		if v.Implements(iface) {
			interfaces = append(interfaces, name)
		}
	}

	// List all interfaces to check
	checkInterface(reflect.TypeOf((*OnInit)(nil)).Elem(), "OnInit")
	checkInterface(reflect.TypeOf((*OnShutdown)(nil)).Elem(), "OnShutdown")
	checkInterface(reflect.TypeOf((*OnContractCreated)(nil)).Elem(), "OnContractCreated")
	checkInterface(reflect.TypeOf((*OnContractActivated)(nil)).Elem(), "OnContractActivated")
	checkInterface(reflect.TypeOf((*OnContractSuspended)(nil)).Elem(), "OnContractSuspended")
	checkInterface(reflect.TypeOf((*OnContractTerminated)(nil)).Elem(), "OnContractTerminated")
	checkInterface(reflect.TypeOf((*OnPaymentProcessed)(nil)).Elem(), "OnPaymentProcessed")
	checkInterface(reflect.TypeOf((*OnSweepCompleted)(nil)).Elem(), "OnSweepCompleted")
	checkInterface(reflect.TypeOf((*GatewayPlugin)(nil)).Elem(), "Gateway")
	checkInterface(reflect.TypeOf((*RatingStrategy)(nil)).Elem(), "RatingStrategy")
	checkInterface(reflect.TypeOf((*NotificationSink)(nil)).Elem(), "NotificationSink")

	return interfaces
}

// Get returns a plugin by name.
func (r *Registry) Get(name string) Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.plugins {
		if p.Name() == name {
			return p
		}
	}
	return nil
}

// List returns all registered plugins.
func (r *Registry) List() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Plugin, len(r.plugins))
	copy(result, r.plugins)
	return result
}

// Count returns the number of registered plugins.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plugins)
}

// ──────────────────────────────────────────────────
// Event emission methods
// ──────────────────────────────────────────────────

// EmitInit calls OnInit for all plugins that implement it.
func (r *Registry) EmitInit(ctx context.Context, engine interface{}) {
	r.mu.RLock()
	plugins := r.onInit
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnInit(ctx, engine)
		}); err != nil {
			r.logger.Warn("plugin OnInit failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitShutdown calls OnShutdown for all plugins that implement it.
func (r *Registry) EmitShutdown(ctx context.Context) {
	r.mu.RLock()
	plugins := r.onShutdown
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnShutdown(ctx)
		}); err != nil {
			r.logger.Warn("plugin OnShutdown failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitContractCreated emits a contract created event.
func (r *Registry) EmitContractCreated(ctx context.Context, contract interface{}) {
	r.mu.RLock()
	plugins := r.onContractCreated
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnContractCreated(ctx, contract)
		}); err != nil {
			r.logger.Warn("plugin OnContractCreated failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitContractActivated emits a contract activated event.
func (r *Registry) EmitContractActivated(ctx context.Context, contract interface{}) {
	r.mu.RLock()
	plugins := r.onContractActivated
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnContractActivated(ctx, contract)
		}); err != nil {
			r.logger.Warn("plugin OnContractActivated failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitContractSuspended emits a contract suspended event.
func (r *Registry) EmitContractSuspended(ctx context.Context, contract interface{}, reason string) {
	r.mu.RLock()
	plugins := r.onContractSuspended
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnContractSuspended(ctx, contract, reason)
		}); err != nil {
			r.logger.Warn("plugin OnContractSuspended failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitContractResumed emits a contract resumed event.
func (r *Registry) EmitContractResumed(ctx context.Context, contract interface{}) {
	r.mu.RLock()
	plugins := r.onContractResumed
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnContractResumed(ctx, contract)
		}); err != nil {
			r.logger.Warn("plugin OnContractResumed failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitContractTerminated emits a contract terminated event.
func (r *Registry) EmitContractTerminated(ctx context.Context, contract interface{}) {
	r.mu.RLock()
	plugins := r.onContractTerminated
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnContractTerminated(ctx, contract)
		}); err != nil {
			r.logger.Warn("plugin OnContractTerminated failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitSIMBlocked emits a SIM blocked event.
func (r *Registry) EmitSIMBlocked(ctx context.Context, card interface{}, reason string) {
	r.mu.RLock()
	plugins := r.onSIMBlocked
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnSIMBlocked(ctx, card, reason)
		}); err != nil {
			r.logger.Warn("plugin OnSIMBlocked failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitSIMUnblocked emits a SIM unblocked event.
func (r *Registry) EmitSIMUnblocked(ctx context.Context, card interface{}) {
	r.mu.RLock()
	plugins := r.onSIMUnblocked
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnSIMUnblocked(ctx, card)
		}); err != nil {
			r.logger.Warn("plugin OnSIMUnblocked failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitPaymentProcessed emits a payment processed event.
func (r *Registry) EmitPaymentProcessed(ctx context.Context, entry interface{}) {
	r.mu.RLock()
	plugins := r.onPaymentProcessed
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnPaymentProcessed(ctx, entry)
		}); err != nil {
			r.logger.Warn("plugin OnPaymentProcessed failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitBalanceNegative emits a negative balance event.
func (r *Registry) EmitBalanceNegative(ctx context.Context, contract interface{}) {
	r.mu.RLock()
	plugins := r.onBalanceNegative
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnBalanceNegative(ctx, contract)
		}); err != nil {
			r.logger.Warn("plugin OnBalanceNegative failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitAutoTopUp emits an auto top-up event.
func (r *Registry) EmitAutoTopUp(ctx context.Context, contractID interface{}, entry interface{}) {
	r.mu.RLock()
	plugins := r.onAutoTopUp
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnAutoTopUp(ctx, contractID, entry)
		}); err != nil {
			r.logger.Warn("plugin OnAutoTopUp failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitTrafficFlushed emits a traffic flushed event.
func (r *Registry) EmitTrafficFlushed(ctx context.Context, count int, elapsed time.Duration) {
	r.mu.RLock()
	plugins := r.onTrafficFlushed
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnTrafficFlushed(ctx, count, elapsed)
		}); err != nil {
			r.logger.Warn("plugin OnTrafficFlushed failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitSweepCompleted emits a sweep completed event.
func (r *Registry) EmitSweepCompleted(ctx context.Context, name string, succeeded, failed int) {
	r.mu.RLock()
	plugins := r.onSweepCompleted
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnSweepCompleted(ctx, name, succeeded, failed)
		}); err != nil {
			r.logger.Warn("plugin OnSweepCompleted failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitGatewayStatusChecked emits a gateway status checked event.
func (r *Registry) EmitGatewayStatusChecked(ctx context.Context, transactionID, status string) {
	r.mu.RLock()
	plugins := r.onGatewayStatusChecked
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnGatewayStatusChecked(ctx, transactionID, status)
		}); err != nil {
			r.logger.Warn("plugin OnGatewayStatusChecked failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// GetGateways returns all registered gateway plugins.
func (r *Registry) GetGateways() []GatewayPlugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]GatewayPlugin, len(r.gateways))
	copy(result, r.gateways)
	return result
}

// GetRatingStrategy returns a rating strategy by name.
func (r *Registry) GetRatingStrategy(name string) RatingStrategy {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.ratingStrategies[name]
}

// GetNotificationSinks returns all registered notification sinks.
func (r *Registry) GetNotificationSinks() []NotificationSink {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]NotificationSink, len(r.notificationSinks))
	copy(result, r.notificationSinks)
	return result
}

// callWithTimeout calls a plugin function with a timeout.
// Plugins should never block the billing pipeline.
func (r *Registry) callWithTimeout(ctx context.Context, pluginName string, fn func() error) error {
	done := make(chan error, 1)

	go func() {
		done <- fn()
	}()

	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		return fmt.Errorf("plugin timeout: %s", pluginName)
	case <-ctx.Done():
		return ctx.Err()
	}
}
