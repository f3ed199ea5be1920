package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"contest-service/internal/app"
	"contest-service/internal/domain"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const subscriberBuffer = 64

// EventBus fans contest events out across instances through Redis pub/sub,
// one channel per contest.
type EventBus struct {
	client *redis.Client
	logger *zap.Logger
}

var (
	_ app.Notifier        = (*EventBus)(nil)
	_ app.EventSubscriber = (*EventBus)(nil)
)

func NewEventBus(client *redis.Client, logger *zap.Logger) *EventBus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventBus{client: client, logger: logger}
}

func (b *EventBus) Publish(ctx context.Context, event domain.ContestEvent) error {
	raw, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, eventsChannel(event.ContestID), raw).Err()
}

// Subscribe returns once Redis has confirmed the subscription, so events
// published afterwards are not missed.
func (b *EventBus) Subscribe(ctx context.Context, contestID string) (<-chan domain.ContestEvent, func(), error) {
	pubsub := b.client.Subscribe(ctx, eventsChannel(contestID))
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, nil, fmt.Errorf("subscribe contest events: %w", err)
	}

	out := make(chan domain.ContestEvent, subscriberBuffer)
	messages := pubsub.Channel()
	go func() {
		defer close(out)
		for msg := range messages {
			var event domain.ContestEvent
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				b.logger.Warn("discarding malformed contest event", zap.String("channel", msg.Channel), zap.Error(err))
				continue
			}
			select {
			case out <- event:
			default:
				b.logger.Debug("dropping event for slow subscriber", zap.String("contest_id", contestID))
			}
		}
	}()

	var once sync.Once
	cancel := func() {
		once.Do(func() { _ = pubsub.Close() })
	}
	return out, cancel, nil
}

func eventsChannel(contestID string) string {
	return "contest:" + contestID + ":events"
}
