package gateway

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/xraph/telco/types"
)

// Sandbox is an in-memory gateway for development and tests. Created
// payments sit in pending until CheckStatus is called, at which point
// each one resolves to completed or failed according to SuccessRate.
// A resolved transaction keeps its outcome across subsequent polls.
type Sandbox struct {
	mu       sync.Mutex
	name     string
	rand     *rand.Rand
	linkTTL  time.Duration
	rate     float64
	payments map[string]*sandboxPayment
}

type sandboxPayment struct {
	amount types.Money
	status Status
}

// SandboxOption configures a Sandbox.
type SandboxOption func(*Sandbox)

// WithSuccessRate sets the fraction of payments that complete, in
// [0, 1]. The default is 1.
func WithSuccessRate(rate float64) SandboxOption {
	return func(s *Sandbox) {
		s.rate = rate
	}
}

// WithSeed makes payment outcomes reproducible.
func WithSeed(seed int64) SandboxOption {
	return func(s *Sandbox) {
		s.rand = rand.New(rand.NewSource(seed))
	}
}

// WithLinkTTL sets how long generated payment links stay valid.
func WithLinkTTL(ttl time.Duration) SandboxOption {
	return func(s *Sandbox) {
		s.linkTTL = ttl
	}
}

// NewSandbox creates a sandbox gateway.
func NewSandbox(opts ...SandboxOption) *Sandbox {
	s := &Sandbox{
		name:     "sandbox",
		rand:     rand.New(rand.NewSource(time.Now().UnixNano())),
		linkTTL:  24 * time.Hour,
		rate:     1.0,
		payments: make(map[string]*sandboxPayment),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewAlwaysDecline returns a sandbox whose payments all fail. Useful
// for exercising failure paths in tests.
func NewAlwaysDecline() *Sandbox {
	s := NewSandbox(WithSuccessRate(0))
	s.name = "sandbox-decline"
	return s
}

func (s *Sandbox) Name() string { return s.name }

func (s *Sandbox) CreatePaymentLink(ctx context.Context, amount types.Money, description string) (*Link, error) {
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	txID := uuid.NewString()
	s.payments[txID] = &sandboxPayment{amount: amount, status: StatusPending}

	now := time.Now()
	return &Link{
		TransactionID: txID,
		URL:           fmt.Sprintf("https://pay.sandbox.invalid/checkout/%s", txID),
		Amount:        amount,
		CreatedAt:     now,
		ExpiresAt:     now.Add(s.linkTTL),
	}, nil
}

func (s *Sandbox) CheckStatus(ctx context.Context, transactionID string) (Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.payments[transactionID]
	if !ok {
		return "", fmt.Errorf("%w: unknown transaction %s", ErrUnknownTransaction, transactionID)
	}

	// First poll resolves the payment; the outcome then sticks.
	if p.status == StatusPending {
		if s.rand.Float64() < s.rate {
			p.status = StatusCompleted
		} else {
			p.status = StatusFailed
		}
	}
	return p.status, nil
}

func (s *Sandbox) Refund(ctx context.Context, transactionID string, amount types.Money) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.payments[transactionID]
	if !ok {
		return fmt.Errorf("%w: unknown transaction %s", ErrUnknownTransaction, transactionID)
	}
	if p.status != StatusCompleted {
		return ErrDeclined
	}
	if amount.Currency != p.amount.Currency || amount.Amount > p.amount.Amount {
		return ErrInvalidAmount
	}

	p.status = StatusRefunded
	return nil
}

// Complete forces a pending transaction to completed. Tests use this
// to settle a specific payment without relying on the success rate.
func (s *Sandbox) Complete(transactionID string) error {
	return s.resolve(transactionID, StatusCompleted)
}

// Fail forces a pending transaction to failed.
func (s *Sandbox) Fail(transactionID string) error {
	return s.resolve(transactionID, StatusFailed)
}

func (s *Sandbox) resolve(transactionID string, status Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.payments[transactionID]
	if !ok {
		return fmt.Errorf("%w: unknown transaction %s", ErrUnknownTransaction, transactionID)
	}
	p.status = status
	return nil
}

var _ Client = (*Sandbox)(nil)
