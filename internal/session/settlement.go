// ABOUTME: In-memory fan-out of session settlements to subscribers
// ABOUTME: Buffered per-subscriber channels, drop on slow consumer, ctx-scoped cleanup

package session

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// subscriberBufferSize is the channel buffer for each subscriber. Settlements
// are rare (one per lifecycle operation), so a small buffer suffices.
const subscriberBufferSize = 8

// Settlement is published exactly once per lifecycle operation that reaches a
// final state. Snapshot is the final session state; Loading is always false.
type Settlement struct {
	Snapshot Snapshot
}

// subscribers is an in-memory fan-out of settlements.
type subscribers struct {
	mu   sync.RWMutex
	subs map[string]chan Settlement
}

func newSubscribers() *subscribers {
	return &subscribers{
		subs: make(map[string]chan Settlement),
	}
}

// Subscribe registers a subscriber for settlements. Returns a channel that
// receives settlements and a subscription ID for later unsubscription. The
// subscription is automatically cleaned up when ctx is cancelled.
func (m *Manager) Subscribe(ctx context.Context) (<-chan Settlement, string) {
	subID := uuid.New().String()
	ch := make(chan Settlement, subscriberBufferSize)

	m.subs.mu.Lock()
	m.subs.subs[subID] = ch
	m.subs.mu.Unlock()

	m.logger.Debug("settlement subscriber added", "sub_id", subID)

	// Auto-cleanup on context cancellation
	go func() {
		<-ctx.Done()
		m.Unsubscribe(subID)
	}()

	return ch, subID
}

// Unsubscribe removes a subscription and closes its channel.
func (m *Manager) Unsubscribe(subID string) {
	m.subs.mu.Lock()
	defer m.subs.mu.Unlock()

	ch, ok := m.subs.subs[subID]
	if !ok {
		return
	}
	delete(m.subs.subs, subID)
	close(ch)
}

// publish sends a settlement to all subscribers. Non-blocking: settlements are
// dropped for subscribers whose channels are full.
func (s *subscribers) publish(st Settlement, logger *slog.Logger) {
	s.mu.RLock()
	targets := make([]chan Settlement, 0, len(s.subs))
	for _, ch := range s.subs {
		targets = append(targets, ch)
	}
	s.mu.RUnlock()

	for _, ch := range targets {
		select {
		case ch <- st:
			// Sent
		default:
			logger.Debug("dropped settlement for slow subscriber")
		}
	}
}
