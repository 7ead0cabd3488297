package events

import (
	"context"
	"sync"
)

// MemoryBroker is an in-process Broker.
type MemoryBroker struct {
	mu   sync.RWMutex
	subs map[Topic]map[*memorySubscription]struct{}
}

func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{subs: make(map[Topic]map[*memorySubscription]struct{})}
}

func (b *MemoryBroker) Publish(_ context.Context, events ...Event) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ev := range events {
		for sub := range b.subs[ev.Topic] {
			offer(sub.ch, ev)
		}
	}
	return nil
}

func (b *MemoryBroker) Subscribe(_ context.Context, topics ...Topic) (Subscription, error) {
	sub := &memorySubscription{
		broker: b,
		topics: topics,
		ch:     make(chan Event, 1),
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for _, topic := range topics {
		if b.subs[topic] == nil {
			b.subs[topic] = make(map[*memorySubscription]struct{})
		}
		b.subs[topic][sub] = struct{}{}
	}
	return sub, nil
}

// Subscribers returns the number of open subscriptions on topic.
func (b *MemoryBroker) Subscribers(topic Topic) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[topic])
}

func (b *MemoryBroker) remove(sub *memorySubscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, topic := range sub.topics {
		delete(b.subs[topic], sub)
		if len(b.subs[topic]) == 0 {
			delete(b.subs, topic)
		}
	}
}

type memorySubscription struct {
	broker *MemoryBroker
	topics []Topic
	ch     chan Event
	once   sync.Once
}

func (s *memorySubscription) Events() <-chan Event {
	return s.ch
}

func (s *memorySubscription) Close() error {
	s.once.Do(func() {
		s.broker.remove(s)
		close(s.ch)
	})
	return nil
}
