package nats

import (
	"context"
	"sync"

	"github.com/solanare/reclaimer/service/reclaim"
)

// MockPublisher is a mock implementation of Publisher for testing.
type MockPublisher struct {
	mu              sync.RWMutex
	publishedEvents []*ReclaimEvent
	publishError    error
	closed          bool
}

// NewMockPublisher creates a new mock publisher for testing.
func NewMockPublisher() *MockPublisher {
	return &MockPublisher{
		publishedEvents: make([]*ReclaimEvent, 0),
	}
}

// PublishReclaim records the event and returns any configured error.
func (m *MockPublisher) PublishReclaim(ctx context.Context, rec reclaim.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.publishError != nil {
		return m.publishError
	}

	m.publishedEvents = append(m.publishedEvents, FromRecord(rec))
	return nil
}

// Close marks the publisher as closed.
func (m *MockPublisher) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// GetPublishedEvents returns all published events (for testing).
func (m *MockPublisher) GetPublishedEvents() []*ReclaimEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*ReclaimEvent, len(m.publishedEvents))
	copy(out, m.publishedEvents)
	return out
}

// SetPublishError configures the error returned by PublishReclaim.
func (m *MockPublisher) SetPublishError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.publishError = err
}
