package app

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Expirer удаляет просроченные заявки
type Expirer interface {
	ExpirePending(ctx context.Context) (int, error)
}

// Scheduler управляет фоновыми задачами
type Scheduler struct {
	expirer  Expirer
	interval time.Duration
	logger   *zap.Logger
	stopChan chan struct{}
	done     chan struct{}
}

// NewScheduler создаёт новый планировщик
func NewScheduler(expirer Expirer, interval time.Duration, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		expirer:  expirer,
		interval: interval,
		logger:   logger,
		stopChan: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start запускает фоновые задачи
func (s *Scheduler) Start(ctx context.Context) {
	s.logger.Info("Starting background scheduler", zap.Duration("expiry_interval", s.interval))

	go s.runExpiryTask(ctx)
}

// Stop останавливает фоновые задачи и ждёт их завершения
func (s *Scheduler) Stop() {
	s.logger.Info("Stopping background scheduler")
	close(s.stopChan)
	<-s.done
}

// runExpiryTask периодически удаляет pending заявки с прошедшей датой
func (s *Scheduler) runExpiryTask(ctx context.Context) {
	defer close(s.done)

	// Первый запуск сразу при старте
	s.expire(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.expire(ctx)
		case <-s.stopChan:
			s.logger.Info("Expiry task stopped")
			return
		case <-ctx.Done():
			s.logger.Info("Expiry task cancelled")
			return
		}
	}
}

func (s *Scheduler) expire(ctx context.Context) {
	n, err := s.expirer.ExpirePending(ctx)
	if err != nil {
		s.logger.Error("Failed to expire pending sessions", zap.Error(err))
		return
	}

	if n > 0 {
		s.logger.Info("Expired pending sessions removed", zap.Int("count", n))
	}
}
