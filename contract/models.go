// Package contract models service contracts and their state machine.
//
// Transition methods mutate only the contract itself and return the
// follow-up effects (SIM cascades) the caller must execute in the same
// transaction. This keeps the cascade explicit and testable instead of
// hiding it inside setters.
package contract

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/xraph/telco/id"
	"github.com/xraph/telco/types"
)

type Status string

const (
	StatusDraft      Status = "draft"
	StatusActive     Status = "active"
	StatusSuspended  Status = "suspended"
	StatusTerminated Status = "terminated"
)

var (
	ErrNotDraft      = errors.New("contract: not draft")
	ErrNotActive     = errors.New("contract: not active")
	ErrNotSuspended  = errors.New("contract: not suspended")
	ErrTerminated    = errors.New("contract: already terminated")
	ErrInvalidAmount = errors.New("contract: amount must be positive")
	ErrNoSIM         = errors.New("contract: no bound sim card")
)

// Effect is a follow-up action a transition requires from its caller,
// executed within the same atomic scope as the contract mutation.
type Effect string

const (
	EffectBindSIM    Effect = "bind_sim"    // sim free -> active, attach to contract
	EffectSuspendSIM Effect = "suspend_sim" // sim active -> suspended
	EffectResumeSIM  Effect = "resume_sim"  // sim suspended -> active
	EffectReleaseSIM Effect = "release_sim" // sim -> free, detach from contract
)

type Contract struct {
	types.Entity
	ID         id.ContractID `json:"id"`
	Number     string        `json:"number"`
	CustomerID id.CustomerID `json:"customer_id"`
	TariffID   id.TariffID   `json:"tariff_id"`

	// SIMID is the explicit ownership reference: nil in draft and after
	// termination, set while a card is bound.
	SIMID id.SIMID `json:"sim_id,omitempty"`

	Status Status `json:"status"`

	// Balance moves through ApplyCredit/ApplyDebit (refunds excepted);
	// the engine pairs every mutation with a ledger entry.
	Balance   types.Money `json:"balance"`
	TotalCost types.Money `json:"total_cost"`

	SignedDate      time.Time  `json:"signed_date"`
	ActivationDate  *time.Time `json:"activation_date,omitempty"`
	TerminationDate *time.Time `json:"termination_date,omitempty"`
	NextBillingDate *time.Time `json:"next_billing_date,omitempty"`

	Notes string `json:"notes,omitempty"`

	// Version increments on every persisted change, for optimistic
	// conflict detection in stores.
	Version int64 `json:"version"`
}

// New creates a draft contract with a generated number and zero balance.
func New(customerID id.CustomerID, tariffID id.TariffID, currency string, now time.Time) *Contract {
	return &Contract{
		Entity:     types.NewEntityAt(now),
		ID:         id.NewContractID(),
		Number:     NewNumber(now),
		CustomerID: customerID,
		TariffID:   tariffID,
		Status:     StatusDraft,
		Balance:    types.Zero(currency),
		TotalCost:  types.Zero(currency),
		SignedDate: now,
	}
}

// NewNumber generates a contract number in the form YYYYMM-XXXXXXXX
// where the suffix is the uppercased head of a random UUID.
func NewNumber(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))[:8]
	return fmt.Sprintf("%s-%s", now.Format("200601"), suffix)
}

// Activate moves a draft contract to active, records the activation
// date, schedules the first billing date one month out, and takes
// ownership of the given SIM. The caller binds the card.
func (c *Contract) Activate(simID id.SIMID, now time.Time) ([]Effect, error) {
	if c.Status != StatusDraft {
		return nil, ErrNotDraft
	}

	c.Status = StatusActive
	c.SIMID = simID
	c.ActivationDate = &now
	next := now.AddDate(0, 1, 0)
	c.NextBillingDate = &next
	c.Touch(now)
	return []Effect{EffectBindSIM}, nil
}

// Suspend pauses an active contract and cascades to the bound SIM.
// The reason is appended to the contract notes.
func (c *Contract) Suspend(reason string, now time.Time) ([]Effect, error) {
	if c.Status != StatusActive {
		return nil, ErrNotActive
	}

	c.Status = StatusSuspended
	c.appendNote(fmt.Sprintf("suspended %s: %s", now.Format("2006-01-02"), reason))
	c.Touch(now)

	if c.SIMID.IsNil() {
		return nil, nil
	}
	return []Effect{EffectSuspendSIM}, nil
}

// Resume reactivates a suspended contract and cascades to the SIM.
func (c *Contract) Resume(now time.Time) ([]Effect, error) {
	if c.Status != StatusSuspended {
		return nil, ErrNotSuspended
	}

	c.Status = StatusActive
	c.Touch(now)

	if c.SIMID.IsNil() {
		return nil, nil
	}
	return []Effect{EffectResumeSIM}, nil
}

// Terminate ends the contract permanently and releases the SIM back to
// the free pool. Legal from any non-terminated state.
func (c *Contract) Terminate(now time.Time) ([]Effect, error) {
	if c.Status == StatusTerminated {
		return nil, ErrTerminated
	}

	hadSIM := !c.SIMID.IsNil()
	c.Status = StatusTerminated
	c.TerminationDate = &now
	c.SIMID = id.Nil
	c.NextBillingDate = nil
	c.Touch(now)

	if !hadSIM {
		return nil, nil
	}
	return []Effect{EffectReleaseSIM}, nil
}

// ApplyCredit increases the balance. If the contract was suspended and
// the new balance is positive it auto-resumes, returning the resume
// cascade for the caller to execute.
func (c *Contract) ApplyCredit(amount types.Money, now time.Time) ([]Effect, error) {
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}

	c.Balance = c.Balance.Add(amount)
	c.Touch(now)

	if c.Status == StatusSuspended && c.Balance.IsPositive() {
		return c.Resume(now)
	}
	return nil, nil
}

// ApplyDebit decreases the balance and accrues total cost. If the
// contract was active and the new balance is negative it auto-suspends,
// returning the suspend cascade for the caller to execute.
func (c *Contract) ApplyDebit(amount types.Money, now time.Time) ([]Effect, error) {
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}

	c.Balance = c.Balance.Subtract(amount)
	c.TotalCost = c.TotalCost.Add(amount)
	c.Touch(now)

	if c.Status == StatusActive && c.Balance.IsNegative() {
		return c.Suspend("insufficient balance", now)
	}
	return nil, nil
}

// AdvanceBilling moves the next billing date one month past the due
// date. Anchoring to the due date instead of the processing time keeps
// recurring billing from drifting when a sweep runs late.
func (c *Contract) AdvanceBilling(dueDate time.Time) {
	next := dueDate.AddDate(0, 1, 0)
	c.NextBillingDate = &next
}

// BillingDue reports whether the contract owes a monthly fee as of the
// given date.
func (c *Contract) BillingDue(asOf time.Time) bool {
	return c.Status == StatusActive &&
		c.NextBillingDate != nil &&
		!c.NextBillingDate.After(asOf)
}

func (c *Contract) appendNote(note string) {
	if c.Notes == "" {
		c.Notes = note
		return
	}
	c.Notes = c.Notes + "\n" + note
}
