package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisBroker fans events out over Redis pub/sub so that every API replica
// sees changes made by the others.
type RedisBroker struct {
	rdb    *redis.Client
	logger *zap.Logger
}

func NewRedisBroker(rdb *redis.Client, logger *zap.Logger) *RedisBroker {
	return &RedisBroker{rdb: rdb, logger: logger}
}

func (b *RedisBroker) Publish(ctx context.Context, events ...Event) error {
	for _, ev := range events {
		data, err := json.Marshal(ev)
		if err != nil {
			return fmt.Errorf("marshal event: %w", err)
		}
		if err := b.rdb.Publish(ctx, string(ev.Topic), data).Err(); err != nil {
			return fmt.Errorf("publish %s: %w", ev.Topic, err)
		}
	}
	return nil
}

func (b *RedisBroker) Subscribe(ctx context.Context, topics ...Topic) (Subscription, error) {
	channels := make([]string, 0, len(topics))
	for _, topic := range topics {
		channels = append(channels, string(topic))
	}

	pubsub := b.rdb.Subscribe(ctx, channels...)
	// Ждём подтверждения подписки, иначе ранние публикации теряются
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("subscribe %v: %w", channels, err)
	}

	sub := &redisSubscription{
		pubsub: pubsub,
		ch:     make(chan Event, 1),
		done:   make(chan struct{}),
	}
	go sub.pump(b.logger)
	return sub, nil
}

type redisSubscription struct {
	pubsub *redis.PubSub
	ch     chan Event
	done   chan struct{}
	once   sync.Once
}

func (s *redisSubscription) pump(logger *zap.Logger) {
	defer close(s.ch)

	msgs := s.pubsub.Channel()
	for {
		select {
		case <-s.done:
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			var ev Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				logger.Warn("Invalid event payload",
					zap.String("channel", msg.Channel),
					zap.Error(err))
				continue
			}
			offer(s.ch, ev)
		}
	}
}

func (s *redisSubscription) Events() <-chan Event {
	return s.ch
}

func (s *redisSubscription) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		err = s.pubsub.Close()
	})
	return err
}
