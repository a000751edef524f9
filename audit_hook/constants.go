package audithook

// Action constants for audit events.
const (
	// Contract actions
	ActionContractCreated    = "contract.created"
	ActionContractActivated  = "contract.activated"
	ActionContractSuspended  = "contract.suspended"
	ActionContractResumed    = "contract.resumed"
	ActionContractTerminated = "contract.terminated"

	// SIM actions
	ActionSIMBlocked   = "sim.blocked"
	ActionSIMUnblocked = "sim.unblocked"

	// Ledger actions
	ActionPaymentProcessed = "payment.processed"
	ActionBalanceNegative  = "balance.negative"
	ActionAutoTopUp        = "balance.auto_top_up"

	// Sweep actions
	ActionSweepCompleted = "sweep.completed"

	// Gateway actions
	ActionGatewayStatusChecked = "gateway.status_checked"
)

// Resource constants for audit events.
const (
	ResourceContract = "contract"
	ResourceSIM      = "sim"
	ResourcePayment  = "payment"
	ResourceSweep    = "sweep"
	ResourceGateway  = "gateway"
)

// Category constants for audit events.
const (
	CategoryLifecycle = "lifecycle"
	CategoryNetwork   = "network"
	CategoryPayment   = "payment"
	CategoryBilling   = "billing"
)

// Severity levels for audit events.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityError    = "error"
	SeverityCritical = "critical"
)

// Outcome values for audit events.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomePartial = "partial"
)
