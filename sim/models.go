// Package sim models physical SIM cards and their lifecycle.
//
// SIM cards are pre-provisioned into a free pool and bound to exactly
// one contract at a time. A card returns to the free pool when its
// contract releases it and can then be bound again.
package sim

import (
	"errors"
	"regexp"
	"time"

	"github.com/xraph/telco/id"
	"github.com/xraph/telco/types"
)

type Status string

const (
	StatusFree      Status = "free"
	StatusActive    Status = "active"
	StatusSuspended Status = "suspended"
	StatusBlocked   Status = "blocked"
	StatusClosed    Status = "closed"
)

var (
	ErrNotFree      = errors.New("sim: card is not free")
	ErrNotActive    = errors.New("sim: card is not active")
	ErrNotSuspended = errors.New("sim: card is not suspended")
	ErrNotBound     = errors.New("sim: card is not bound to a contract")
	ErrBlocked      = errors.New("sim: card is blocked")
	ErrNotBlocked   = errors.New("sim: card is not blocked")
	ErrClosed       = errors.New("sim: card is closed")
)

var (
	iccidPattern  = regexp.MustCompile(`^\d{19,20}$`)
	imsiPattern   = regexp.MustCompile(`^\d{15}$`)
	msisdnPattern = regexp.MustCompile(`^\+996\d{9}$`)
	pukPattern    = regexp.MustCompile(`^\d{8}$`)
)

type SIM struct {
	types.Entity
	ID     id.SIMID `json:"id"`
	ICCID  string   `json:"iccid"`
	IMSI   string   `json:"imsi"`
	MSISDN string   `json:"msisdn"`
	PUK    string   `json:"puk,omitempty"`
	Status Status   `json:"status"`

	// ContractID is set while the card is bound. Free and closed cards
	// carry the nil ID.
	ContractID id.ContractID `json:"contract_id,omitempty"`

	ActivatedAt   *time.Time `json:"activated_at,omitempty"`
	DeactivatedAt *time.Time `json:"deactivated_at,omitempty"`

	// Version increments on every persisted state change. Stores use it
	// to detect two writers racing over the same card.
	Version int64 `json:"version"`
}

// Validate checks identifier formats: ICCID 19-20 digits, IMSI 15
// digits, MSISDN in the +996 numbering plan, PUK 8 digits if present.
func (s *SIM) Validate() error {
	if !iccidPattern.MatchString(s.ICCID) {
		return types.ValidationError{Field: "iccid", Message: "must be 19-20 digits"}
	}
	if !imsiPattern.MatchString(s.IMSI) {
		return types.ValidationError{Field: "imsi", Message: "must be 15 digits"}
	}
	if !msisdnPattern.MatchString(s.MSISDN) {
		return types.ValidationError{Field: "msisdn", Message: "must match +996XXXXXXXXX"}
	}
	if s.PUK != "" && !pukPattern.MatchString(s.PUK) {
		return types.ValidationError{Field: "puk", Message: "must be 8 digits"}
	}
	return nil
}

// Bind attaches the card to a contract and activates it. Only free
// cards are bindable.
func (s *SIM) Bind(contractID id.ContractID, now time.Time) error {
	if s.Status != StatusFree {
		return ErrNotFree
	}

	s.Status = StatusActive
	s.ContractID = contractID
	s.ActivatedAt = &now
	s.DeactivatedAt = nil
	s.Touch(now)
	return nil
}

// Unbind releases the card back to the free pool.
func (s *SIM) Unbind(now time.Time) error {
	if s.ContractID.IsNil() {
		return ErrNotBound
	}
	if s.Status == StatusClosed {
		return ErrClosed
	}

	s.Status = StatusFree
	s.ContractID = id.Nil
	s.DeactivatedAt = &now
	s.Touch(now)
	return nil
}

// Suspend pauses service on an active card.
func (s *SIM) Suspend(now time.Time) error {
	if s.Status != StatusActive {
		return ErrNotActive
	}

	s.Status = StatusSuspended
	s.Touch(now)
	return nil
}

// Resume reactivates a suspended card.
func (s *SIM) Resume(now time.Time) error {
	if s.Status != StatusSuspended {
		return ErrNotSuspended
	}

	s.Status = StatusActive
	s.Touch(now)
	return nil
}

// Block disables the card (lost or stolen). Free and closed cards
// cannot be blocked.
func (s *SIM) Block(now time.Time) error {
	switch s.Status {
	case StatusActive, StatusSuspended:
		s.Status = StatusBlocked
		s.Touch(now)
		return nil
	case StatusBlocked:
		return ErrBlocked
	default:
		return ErrNotActive
	}
}

// Unblock restores a blocked card: back to active if still bound,
// otherwise to the free pool.
func (s *SIM) Unblock(now time.Time) error {
	if s.Status != StatusBlocked {
		return ErrNotBlocked
	}

	if s.ContractID.IsNil() {
		s.Status = StatusFree
	} else {
		s.Status = StatusActive
	}
	s.Touch(now)
	return nil
}

// Close permanently retires a free card. Closed is terminal.
func (s *SIM) Close(now time.Time) error {
	if s.Status != StatusFree {
		return ErrNotFree
	}

	s.Status = StatusClosed
	s.Touch(now)
	return nil
}
