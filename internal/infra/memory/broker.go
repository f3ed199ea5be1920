package memory

import (
	"context"
	"sync"

	"contest-service/internal/app"
	"contest-service/internal/domain"

	"go.uber.org/zap"
)

const subscriberBuffer = 64

// Broker is an in-process event bus keyed by contest. Slow subscribers miss
// events instead of blocking publishers.
type Broker struct {
	mu          sync.RWMutex
	subscribers map[string][]chan domain.ContestEvent
}

var (
	_ app.Notifier        = (*Broker)(nil)
	_ app.EventSubscriber = (*Broker)(nil)
)

func NewBroker() *Broker {
	return &Broker{subscribers: make(map[string][]chan domain.ContestEvent)}
}

func (b *Broker) Publish(_ context.Context, event domain.ContestEvent) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subscribers[event.ContestID] {
		select {
		case ch <- event:
		default:
			zap.L().Debug("dropping event for slow subscriber",
				zap.String("contest_id", event.ContestID),
				zap.String("type", string(event.Type)))
		}
	}
	return nil
}

func (b *Broker) Subscribe(_ context.Context, contestID string) (<-chan domain.ContestEvent, func(), error) {
	ch := make(chan domain.ContestEvent, subscriberBuffer)

	b.mu.Lock()
	b.subscribers[contestID] = append(b.subscribers[contestID], ch)
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			subs := b.subscribers[contestID]
			for i, sub := range subs {
				if sub == ch {
					b.subscribers[contestID] = append(subs[:i], subs[i+1:]...)
					break
				}
			}
			if len(b.subscribers[contestID]) == 0 {
				delete(b.subscribers, contestID)
			}
			close(ch)
		})
	}
	return ch, cancel, nil
}

// Subscribers reports how many listeners a contest has.
func (b *Broker) Subscribers(contestID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers[contestID])
}
