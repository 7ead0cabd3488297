package events

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Feed turns a Subscription into a stream of snapshots. Every notification
// triggers load; the result is delivered on Snapshots. The first snapshot is
// loaded immediately.
type Feed[T any] struct {
	snapshots chan T
	cancel    context.CancelFunc
	done      chan struct{}
	once      sync.Once
}

// NewFeed starts the feed. It stops when ctx is cancelled or Close is called,
// closing the subscription and the Snapshots channel.
func NewFeed[T any](ctx context.Context, sub Subscription, load func(context.Context) (T, error), logger *zap.Logger) *Feed[T] {
	ctx, cancel := context.WithCancel(ctx)
	f := &Feed[T]{
		snapshots: make(chan T),
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	go f.run(ctx, sub, load, logger)
	return f
}

func (f *Feed[T]) run(ctx context.Context, sub Subscription, load func(context.Context) (T, error), logger *zap.Logger) {
	defer close(f.done)
	defer close(f.snapshots)
	defer sub.Close()

	emit := func() bool {
		snapshot, err := load(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return false
			}
			// Ошибка чтения не закрывает поток: следующее событие перечитает состояние
			logger.Error("Failed to load snapshot", zap.Error(err))
			return true
		}
		select {
		case f.snapshots <- snapshot:
			return true
		case <-ctx.Done():
			return false
		}
	}

	if !emit() {
		return
	}

	events := sub.Events()
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-events:
			if !ok {
				return
			}
			if !emit() {
				return
			}
		}
	}
}

// Snapshots delivers the current state after every change.
func (f *Feed[T]) Snapshots() <-chan T {
	return f.snapshots
}

// Close stops the feed and waits for it to release the subscription.
func (f *Feed[T]) Close() {
	f.once.Do(f.cancel)
	<-f.done
}
