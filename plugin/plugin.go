// Package plugin provides an extensible plugin system for the billing
// engine. Plugins can hook into various lifecycle events to extend
// functionality.
package plugin

import (
	"context"
	"time"
)

// Plugin is the base interface that all plugins must implement.
type Plugin interface {
	Name() string
}

// ──────────────────────────────────────────────────
// Lifecycle hooks
// ──────────────────────────────────────────────────

// OnInit is called when the plugin is initialized.
type OnInit interface {
	Plugin
	OnInit(ctx context.Context, engine interface{}) error
}

// OnShutdown is called when the plugin is shutting down.
type OnShutdown interface {
	Plugin
	OnShutdown(ctx context.Context) error
}

// ──────────────────────────────────────────────────
// Contract lifecycle hooks
// ──────────────────────────────────────────────────

// OnContractCreated is called when a new contract is created.
type OnContractCreated interface {
	Plugin
	OnContractCreated(ctx context.Context, contract interface{}) error
}

// OnContractActivated is called when a contract is activated and a SIM
// is bound to it.
type OnContractActivated interface {
	Plugin
	OnContractActivated(ctx context.Context, contract interface{}) error
}

// OnContractSuspended is called when a contract is suspended.
type OnContractSuspended interface {
	Plugin
	OnContractSuspended(ctx context.Context, contract interface{}, reason string) error
}

// OnContractResumed is called when a suspended contract returns to
// active service.
type OnContractResumed interface {
	Plugin
	OnContractResumed(ctx context.Context, contract interface{}) error
}

// OnContractTerminated is called when a contract is terminated.
type OnContractTerminated interface {
	Plugin
	OnContractTerminated(ctx context.Context, contract interface{}) error
}

// ──────────────────────────────────────────────────
// SIM lifecycle hooks
// ──────────────────────────────────────────────────

// OnSIMBlocked is called when a SIM card is blocked.
type OnSIMBlocked interface {
	Plugin
	OnSIMBlocked(ctx context.Context, card interface{}, reason string) error
}

// OnSIMUnblocked is called when a blocked SIM card is restored.
type OnSIMUnblocked interface {
	Plugin
	OnSIMUnblocked(ctx context.Context, card interface{}) error
}

// ──────────────────────────────────────────────────
// Ledger hooks
// ──────────────────────────────────────────────────

// OnPaymentProcessed is called when a ledger entry reaches a final
// status (success, failed or refunded).
type OnPaymentProcessed interface {
	Plugin
	OnPaymentProcessed(ctx context.Context, entry interface{}) error
}

// OnBalanceNegative is called when a debit drives a contract balance
// below zero.
type OnBalanceNegative interface {
	Plugin
	OnBalanceNegative(ctx context.Context, contract interface{}) error
}

// OnAutoTopUp is called when an automatic top-up fires for a contract
// whose balance dropped below its threshold.
type OnAutoTopUp interface {
	Plugin
	OnAutoTopUp(ctx context.Context, contractID interface{}, entry interface{}) error
}

// ──────────────────────────────────────────────────
// Traffic hooks
// ──────────────────────────────────────────────────

// OnTrafficFlushed is called when buffered traffic metrics are flushed
// to the store.
type OnTrafficFlushed interface {
	Plugin
	OnTrafficFlushed(ctx context.Context, count int, elapsed time.Duration) error
}

// ──────────────────────────────────────────────────
// Sweep hooks
// ──────────────────────────────────────────────────

// OnSweepCompleted is called after a billing sweep finishes. Name is
// one of "monthly_fee", "low_balance" or "pending_payment".
type OnSweepCompleted interface {
	Plugin
	OnSweepCompleted(ctx context.Context, name string, succeeded, failed int) error
}

// ──────────────────────────────────────────────────
// Payment gateway hooks
// ──────────────────────────────────────────────────

// GatewayPlugin provides a payment gateway implementation.
type GatewayPlugin interface {
	Plugin
	Gateway() interface{} // Returns gateway.Client
}

// OnGatewayStatusChecked is called after polling a gateway for a
// pending payment's status.
type OnGatewayStatusChecked interface {
	Plugin
	OnGatewayStatusChecked(ctx context.Context, transactionID string, status string) error
}

// ──────────────────────────────────────────────────
// Rating strategies
// ──────────────────────────────────────────────────

// RatingStrategy provides custom usage rating. Compute receives the
// tariff and raw usage counters and returns the overage as Money.
type RatingStrategy interface {
	Plugin
	StrategyName() string
	Compute(tariff interface{}, usage interface{}) interface{} // Returns Money
}

// ──────────────────────────────────────────────────
// Notification sinks
// ──────────────────────────────────────────────────

// NotificationSink receives subscriber-facing notifications produced
// by the engine (suspension, low balance, payment receipts).
type NotificationSink interface {
	Plugin
	Notify(ctx context.Context, contractID string, kind string, message string) error
}
