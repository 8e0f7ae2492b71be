package notify

import (
	"context"
	"fmt"
	"sync"

	"github.com/artpar/relayledger/domain/billing"
)

// Kind names the notice that was sent.
type Kind string

const (
	KindSuspended  Kind = "suspended"
	KindReinstated Kind = "reinstated"
)

// Sent records one notice delivered by a Mock.
type Sent struct {
	Kind       Kind
	OrgID      string
	To         string
	Transition billing.Transition
}

// Mock stores notices in memory instead of sending them.
type Mock struct {
	mu   sync.Mutex
	sent []Sent

	// Optional: fail if set
	ShouldFail bool
	FailError  error
}

// NewMock creates a mock notifier.
func NewMock() *Mock {
	return &Mock{}
}

func (m *Mock) record(kind Kind, org billing.Organization, t billing.Transition) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ShouldFail {
		if m.FailError != nil {
			return m.FailError
		}
		return fmt.Errorf("mock notify failure")
	}
	m.sent = append(m.sent, Sent{Kind: kind, OrgID: org.ID, To: org.BillingEmail, Transition: t})
	return nil
}

// NotifySuspended records a suspension notice.
func (m *Mock) NotifySuspended(ctx context.Context, org billing.Organization, t billing.Transition) error {
	return m.record(KindSuspended, org, t)
}

// NotifyReinstated records a reinstatement notice.
func (m *Mock) NotifyReinstated(ctx context.Context, org billing.Organization, t billing.Transition) error {
	return m.record(KindReinstated, org, t)
}

// Sent returns a copy of every recorded notice.
func (m *Mock) Sent() []Sent {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Sent, len(m.sent))
	copy(out, m.sent)
	return out
}

// Count returns how many notices of kind were recorded.
func (m *Mock) Count(kind Kind) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, s := range m.sent {
		if s.Kind == kind {
			n++
		}
	}
	return n
}

// Reset clears recorded notices.
func (m *Mock) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = nil
}
