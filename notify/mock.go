package notify

import (
	"context"
	"sync"

	"github.com/deadhandprotocol/deadhand-backend/interfaces"
)

// MockNotifier records deliveries for tests and can be scripted to fail.
type MockNotifier struct {
	mu sync.Mutex

	// FailTimes makes the next N calls return FailErr.
	FailTimes int
	FailErr   error

	deliveries []Delivery
}

// Delivery is one recorded notification.
type Delivery struct {
	Recipient    interfaces.Contact
	Notification interfaces.Notification
}

// NewMockNotifier creates an empty recorder.
func NewMockNotifier() *MockNotifier {
	return &MockNotifier{}
}

// Notify records the delivery, or fails while FailTimes is positive.
func (m *MockNotifier) Notify(ctx context.Context, recipient interfaces.Contact, n interfaces.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailTimes > 0 {
		m.FailTimes--
		return m.FailErr
	}
	m.deliveries = append(m.deliveries, Delivery{Recipient: recipient, Notification: n})
	return nil
}

// Deliveries returns a copy of all recorded deliveries.
func (m *MockNotifier) Deliveries() []Delivery {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Delivery(nil), m.deliveries...)
}

// DeliveriesOfKind returns recorded deliveries of one kind.
func (m *MockNotifier) DeliveriesOfKind(kind interfaces.NotificationKind) []Delivery {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Delivery
	for _, d := range m.deliveries {
		if d.Notification.Kind == kind {
			out = append(out, d)
		}
	}
	return out
}
