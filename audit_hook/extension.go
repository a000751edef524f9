// Package audithook bridges billing engine lifecycle events to an audit
// trail backend.
//
// It defines a local Recorder interface so the package does not depend on
// any concrete audit store. Callers inject a RecorderFunc adapter that
// bridges to their backend at wiring time.
package audithook

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/xraph/telco/contract"
	"github.com/xraph/telco/payment"
	"github.com/xraph/telco/plugin"
	"github.com/xraph/telco/sim"
)

// Compile-time interface checks.
var (
	_ plugin.Plugin                 = (*Extension)(nil)
	_ plugin.OnContractCreated      = (*Extension)(nil)
	_ plugin.OnContractActivated    = (*Extension)(nil)
	_ plugin.OnContractSuspended    = (*Extension)(nil)
	_ plugin.OnContractResumed      = (*Extension)(nil)
	_ plugin.OnContractTerminated   = (*Extension)(nil)
	_ plugin.OnSIMBlocked           = (*Extension)(nil)
	_ plugin.OnSIMUnblocked         = (*Extension)(nil)
	_ plugin.OnPaymentProcessed     = (*Extension)(nil)
	_ plugin.OnBalanceNegative      = (*Extension)(nil)
	_ plugin.OnAutoTopUp            = (*Extension)(nil)
	_ plugin.OnSweepCompleted       = (*Extension)(nil)
	_ plugin.OnGatewayStatusChecked = (*Extension)(nil)
)

// Recorder is the interface that audit backends must implement.
type Recorder interface {
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is the audit trail record produced by the hook.
type AuditEvent struct {
	Action     string         `json:"action"`
	Resource   string         `json:"resource"`
	Category   string         `json:"category"`
	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

// Record implements Recorder.
func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// Extension bridges engine lifecycle events to an audit trail backend.
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
}

// New creates an Extension that emits audit events through the provided Recorder.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements plugin.Plugin.
func (e *Extension) Name() string { return "audit-hook" }

// ──────────────────────────────────────────────────
// Contract lifecycle hooks
// ──────────────────────────────────────────────────

// OnContractCreated implements plugin.OnContractCreated.
func (e *Extension) OnContractCreated(ctx context.Context, v interface{}) error {
	c, _ := v.(*contract.Contract)
	return e.record(ctx, ActionContractCreated, SeverityInfo, OutcomeSuccess,
		ResourceContract, contractID(c), CategoryLifecycle, nil,
		contractMeta(c)...,
	)
}

// OnContractActivated implements plugin.OnContractActivated.
func (e *Extension) OnContractActivated(ctx context.Context, v interface{}) error {
	c, _ := v.(*contract.Contract)
	return e.record(ctx, ActionContractActivated, SeverityInfo, OutcomeSuccess,
		ResourceContract, contractID(c), CategoryLifecycle, nil,
		contractMeta(c)...,
	)
}

// OnContractSuspended implements plugin.OnContractSuspended.
func (e *Extension) OnContractSuspended(ctx context.Context, v interface{}, reason string) error {
	c, _ := v.(*contract.Contract)
	meta := append(contractMeta(c), "suspend_reason", reason)
	return e.record(ctx, ActionContractSuspended, SeverityWarning, OutcomeSuccess,
		ResourceContract, contractID(c), CategoryLifecycle, nil,
		meta...,
	)
}

// OnContractResumed implements plugin.OnContractResumed.
func (e *Extension) OnContractResumed(ctx context.Context, v interface{}) error {
	c, _ := v.(*contract.Contract)
	return e.record(ctx, ActionContractResumed, SeverityInfo, OutcomeSuccess,
		ResourceContract, contractID(c), CategoryLifecycle, nil,
		contractMeta(c)...,
	)
}

// OnContractTerminated implements plugin.OnContractTerminated.
func (e *Extension) OnContractTerminated(ctx context.Context, v interface{}) error {
	c, _ := v.(*contract.Contract)
	return e.record(ctx, ActionContractTerminated, SeverityInfo, OutcomeSuccess,
		ResourceContract, contractID(c), CategoryLifecycle, nil,
		contractMeta(c)...,
	)
}

// ──────────────────────────────────────────────────
// SIM lifecycle hooks
// ──────────────────────────────────────────────────

// OnSIMBlocked implements plugin.OnSIMBlocked.
func (e *Extension) OnSIMBlocked(ctx context.Context, v interface{}, reason string) error {
	card, _ := v.(*sim.SIM)
	meta := append(simMeta(card), "block_reason", reason)
	return e.record(ctx, ActionSIMBlocked, SeverityWarning, OutcomeSuccess,
		ResourceSIM, simID(card), CategoryNetwork, nil,
		meta...,
	)
}

// OnSIMUnblocked implements plugin.OnSIMUnblocked.
func (e *Extension) OnSIMUnblocked(ctx context.Context, v interface{}) error {
	card, _ := v.(*sim.SIM)
	return e.record(ctx, ActionSIMUnblocked, SeverityInfo, OutcomeSuccess,
		ResourceSIM, simID(card), CategoryNetwork, nil,
		simMeta(card)...,
	)
}

// ──────────────────────────────────────────────────
// Ledger hooks
// ──────────────────────────────────────────────────

// OnPaymentProcessed implements plugin.OnPaymentProcessed.
func (e *Extension) OnPaymentProcessed(ctx context.Context, v interface{}) error {
	entry, _ := v.(*payment.Entry)
	severity := SeverityInfo
	outcome := OutcomeSuccess
	if entry != nil && entry.Status == payment.StatusFailed {
		severity = SeverityError
		outcome = OutcomeFailure
	}
	return e.record(ctx, ActionPaymentProcessed, severity, outcome,
		ResourcePayment, entryID(entry), CategoryPayment, nil,
		entryMeta(entry)...,
	)
}

// OnBalanceNegative implements plugin.OnBalanceNegative.
func (e *Extension) OnBalanceNegative(ctx context.Context, v interface{}) error {
	c, _ := v.(*contract.Contract)
	return e.record(ctx, ActionBalanceNegative, SeverityWarning, OutcomeFailure,
		ResourceContract, contractID(c), CategoryBilling, nil,
		contractMeta(c)...,
	)
}

// OnAutoTopUp implements plugin.OnAutoTopUp.
func (e *Extension) OnAutoTopUp(ctx context.Context, contractID interface{}, v interface{}) error {
	entry, _ := v.(*payment.Entry)
	meta := append(entryMeta(entry), "contract_id", fmt.Sprintf("%v", contractID))
	return e.record(ctx, ActionAutoTopUp, SeverityInfo, OutcomeSuccess,
		ResourcePayment, entryID(entry), CategoryBilling, nil,
		meta...,
	)
}

// ──────────────────────────────────────────────────
// Sweep and gateway hooks
// ──────────────────────────────────────────────────

// OnSweepCompleted implements plugin.OnSweepCompleted.
func (e *Extension) OnSweepCompleted(ctx context.Context, name string, succeeded, failed int) error {
	outcome := OutcomeSuccess
	severity := SeverityInfo
	switch {
	case failed > 0 && succeeded > 0:
		outcome = OutcomePartial
		severity = SeverityWarning
	case failed > 0:
		outcome = OutcomeFailure
		severity = SeverityError
	}
	return e.record(ctx, ActionSweepCompleted, severity, outcome,
		ResourceSweep, name, CategoryBilling, nil,
		"sweep", name,
		"succeeded", succeeded,
		"failed", failed,
	)
}

// OnGatewayStatusChecked implements plugin.OnGatewayStatusChecked.
func (e *Extension) OnGatewayStatusChecked(ctx context.Context, transactionID, status string) error {
	return e.record(ctx, ActionGatewayStatusChecked, SeverityInfo, OutcomeSuccess,
		ResourceGateway, transactionID, CategoryPayment, nil,
		"transaction_id", transactionID,
		"status", status,
	)
}

// ──────────────────────────────────────────────────
// Internal helpers
// ──────────────────────────────────────────────────

func contractID(c *contract.Contract) string {
	if c == nil {
		return ""
	}
	return c.ID.String()
}

func contractMeta(c *contract.Contract) []any {
	if c == nil {
		return nil
	}
	return []any{
		"contract_id", c.ID.String(),
		"number", c.Number,
		"status", string(c.Status),
		"balance", c.Balance.String(),
	}
}

func simID(card *sim.SIM) string {
	if card == nil {
		return ""
	}
	return card.ID.String()
}

func simMeta(card *sim.SIM) []any {
	if card == nil {
		return nil
	}
	return []any{
		"sim_id", card.ID.String(),
		"iccid", card.ICCID,
		"msisdn", card.MSISDN,
		"status", string(card.Status),
	}
}

func entryID(entry *payment.Entry) string {
	if entry == nil {
		return ""
	}
	return entry.ID.String()
}

func entryMeta(entry *payment.Entry) []any {
	if entry == nil {
		return nil
	}
	meta := []any{
		"payment_id", entry.ID.String(),
		"contract_id", entry.ContractID.String(),
		"type", string(entry.Type),
		"status", string(entry.Status),
		"amount", entry.Amount.String(),
	}
	if entry.TransactionID != "" {
		meta = append(meta, "transaction_id", entry.TransactionID)
	}
	return meta
}

// record builds and sends an audit event if the action is enabled.
func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome string,
	resource, resourceID, category string,
	err error,
	kvPairs ...any,
) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2+1)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	var reason string
	if err != nil {
		reason = err.Error()
		meta["error"] = err.Error()
	}

	evt := &AuditEvent{
		Action:     action,
		Resource:   resource,
		Category:   category,
		ResourceID: resourceID,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audit_hook: failed to record audit event",
			"action", action,
			"resource_id", resourceID,
			"error", recErr,
		)
	}
	return nil
}
