package telco

import (
	"errors"
	"fmt"

	"github.com/xraph/telco/contract"
	"github.com/xraph/telco/gateway"
	"github.com/xraph/telco/payment"
	"github.com/xraph/telco/sim"
)

// Sentinel errors for common failure scenarios.
var (
	// General errors
	ErrNotFound      = errors.New("telco: not found")
	ErrAlreadyExists = errors.New("telco: already exists")
	ErrInvalidInput  = errors.New("telco: invalid input")

	// State machine errors. ErrInvalidState is the root of every
	// illegal-transition failure; entity-specific variants wrap it so
	// callers can match either level with errors.Is.
	ErrInvalidState       = errors.New("telco: invalid state transition")
	ErrContractNotDraft   = fmt.Errorf("%w: contract is not draft", ErrInvalidState)
	ErrContractNotActive  = fmt.Errorf("%w: contract is not active", ErrInvalidState)
	ErrContractSuspended  = fmt.Errorf("%w: contract is suspended", ErrInvalidState)
	ErrContractTerminated = fmt.Errorf("%w: contract is terminated", ErrInvalidState)
	ErrPaymentNotPending  = fmt.Errorf("%w: payment is not pending", ErrInvalidState)
	ErrPaymentNotSuccess  = fmt.Errorf("%w: payment is not successful", ErrInvalidState)

	// Amount errors
	ErrInvalidAmount    = errors.New("telco: amount must be positive")
	ErrCurrencyMismatch = errors.New("telco: currency mismatch")

	// Precondition errors
	ErrSIMNotFree      = errors.New("telco: sim card is not free")
	ErrSIMNotBound     = errors.New("telco: sim card is not bound to a contract")
	ErrSIMBlocked      = errors.New("telco: sim card is blocked")
	ErrTariffArchived  = errors.New("telco: tariff is archived")
	ErrAlreadyBilled   = errors.New("telco: billing period already charged")
	ErrBillingNotDue   = errors.New("telco: no billing period due")
	ErrMissingTariff   = errors.New("telco: contract has no tariff")
	ErrMissingCustomer = errors.New("telco: contract has no customer")

	// Entity not-found errors
	ErrCustomerNotFound = errors.New("telco: customer not found")
	ErrTariffNotFound   = errors.New("telco: tariff not found")
	ErrContractNotFound = errors.New("telco: contract not found")
	ErrSIMNotFound      = errors.New("telco: sim card not found")
	ErrPaymentNotFound  = errors.New("telco: payment not found")

	// Gateway errors. ErrGatewayDeclined aliases the gateway package
	// sentinel so callers can match it without importing gateway.
	ErrGatewayNotConfigured = errors.New("telco: payment gateway not configured")
	ErrGatewayDeclined      = gateway.ErrDeclined

	// Store errors
	ErrStoreNotReady     = errors.New("telco: store not ready")
	ErrStoreClosed       = errors.New("telco: store is closed")
	ErrTransactionFailed = errors.New("telco: transaction failed")
	ErrMigrationFailed   = errors.New("telco: migration failed")
	ErrVersionConflict   = errors.New("telco: concurrent modification detected")

	// Metric buffer errors
	ErrMetricBufferFull = errors.New("telco: traffic metric buffer full")
)

// ValidationError represents a validation failure with details.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("telco: validation failed for %s: %s", e.Field, e.Message)
}

// MultiError represents multiple errors that occurred.
type MultiError struct {
	Errors []error
}

func (e MultiError) Error() string {
	if len(e.Errors) == 0 {
		return "telco: no errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	return fmt.Sprintf("telco: %d errors occurred", len(e.Errors))
}

// Add adds an error to the multi-error.
func (e *MultiError) Add(err error) {
	if err != nil {
		e.Errors = append(e.Errors, err)
	}
}

// HasErrors returns true if there are any errors.
func (e MultiError) HasErrors() bool {
	return len(e.Errors) > 0
}

// First returns the first error or nil.
func (e MultiError) First() error {
	if len(e.Errors) > 0 {
		return e.Errors[0]
	}
	return nil
}

// IsNotFound returns true if the error is a not found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrCustomerNotFound) ||
		errors.Is(err, ErrTariffNotFound) ||
		errors.Is(err, ErrContractNotFound) ||
		errors.Is(err, ErrSIMNotFound) ||
		errors.Is(err, ErrPaymentNotFound)
}

// IsInvalidState returns true if the error is an illegal state
// transition. Covers both the engine-level sentinels and the
// transition errors returned by the contract, sim, and payment state
// machines.
func IsInvalidState(err error) bool {
	return errors.Is(err, ErrInvalidState) ||
		errors.Is(err, contract.ErrNotDraft) ||
		errors.Is(err, contract.ErrNotActive) ||
		errors.Is(err, contract.ErrNotSuspended) ||
		errors.Is(err, contract.ErrTerminated) ||
		errors.Is(err, sim.ErrNotActive) ||
		errors.Is(err, sim.ErrNotSuspended) ||
		errors.Is(err, sim.ErrNotBlocked) ||
		errors.Is(err, sim.ErrClosed) ||
		errors.Is(err, payment.ErrNotPending) ||
		errors.Is(err, payment.ErrAlreadyFinal)
}

// IsPrecondition returns true if the error reports an unmet operation
// precondition rather than a bad transition or missing entity.
func IsPrecondition(err error) bool {
	return errors.Is(err, ErrSIMNotFree) ||
		errors.Is(err, ErrSIMNotBound) ||
		errors.Is(err, ErrSIMBlocked) ||
		errors.Is(err, ErrTariffArchived) ||
		errors.Is(err, ErrAlreadyBilled) ||
		errors.Is(err, ErrBillingNotDue) ||
		errors.Is(err, sim.ErrNotFree) ||
		errors.Is(err, sim.ErrNotBound) ||
		errors.Is(err, sim.ErrBlocked) ||
		errors.Is(err, contract.ErrNoSIM) ||
		errors.Is(err, payment.ErrNotRefundable)
}

// IsRetryable returns true if the error is temporary and the operation can be retried.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrMetricBufferFull) ||
		errors.Is(err, ErrStoreNotReady) ||
		errors.Is(err, ErrTransactionFailed) ||
		errors.Is(err, ErrVersionConflict)
}
