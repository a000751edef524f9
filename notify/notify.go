// Package notify carries subscriber-facing notifications out of the
// billing engine: suspension notices, low balance warnings, payment
// receipts. The Feed type keeps a bounded in-memory history; real
// deployments register additional sinks (SMS, push) as plugins.
package notify

import (
	"context"
	"sync"
	"time"

	"github.com/xraph/telco/id"
)

// Kind classifies a notification.
type Kind string

const (
	KindSuspended      Kind = "suspended"
	KindResumed        Kind = "resumed"
	KindLowBalance     Kind = "low_balance"
	KindPaymentReceipt Kind = "payment_receipt"
	KindAutoTopUp      Kind = "auto_topup"
	KindSIMBlocked     Kind = "sim_blocked"
)

// Notification is a single message addressed to a contract.
type Notification struct {
	ContractID id.ContractID `json:"contract_id"`
	Kind       Kind          `json:"kind"`
	Message    string        `json:"message"`
	SentAt     time.Time     `json:"sent_at"`
}

// Sink receives notifications emitted by the engine.
type Sink interface {
	Notify(ctx context.Context, n Notification) error
}

// DefaultFeedSize bounds the in-memory notification history.
const DefaultFeedSize = 50

// Feed is a Sink that retains the most recent notifications in a
// fixed-size ring. Older entries are dropped once the ring is full.
type Feed struct {
	mu    sync.Mutex
	ring  []Notification
	next  int
	count int
}

// NewFeed creates a feed holding up to size notifications. A size of
// zero or less falls back to DefaultFeedSize.
func NewFeed(size int) *Feed {
	if size <= 0 {
		size = DefaultFeedSize
	}
	return &Feed{ring: make([]Notification, size)}
}

func (f *Feed) Notify(ctx context.Context, n Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.ring[f.next] = n
	f.next = (f.next + 1) % len(f.ring)
	if f.count < len(f.ring) {
		f.count++
	}
	return nil
}

// Recent returns retained notifications, newest first.
func (f *Feed) Recent() []Notification {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]Notification, 0, f.count)
	for i := 1; i <= f.count; i++ {
		idx := (f.next - i + len(f.ring)) % len(f.ring)
		out = append(out, f.ring[idx])
	}
	return out
}

// ForContract returns retained notifications for one contract, newest
// first.
func (f *Feed) ForContract(contractID id.ContractID) []Notification {
	var out []Notification
	for _, n := range f.Recent() {
		if n.ContractID == contractID {
			out = append(out, n)
		}
	}
	return out
}

var _ Sink = (*Feed)(nil)
