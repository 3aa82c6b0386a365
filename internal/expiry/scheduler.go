// Package expiry — периодический запуск sweep простаивающих сессий.
package expiry

import (
	"context"
	"time"

	"github.com/sessiond/internal/clock"
	"github.com/sessiond/internal/logger"
)

// Sweeper удаляет сессии, простаивающие дольше таймаута, относительно now.
type Sweeper interface {
	Sweep(ctx context.Context, now time.Time) (int, error)
}

// Scheduler вызывает Sweep с фиксированным периодом до отмены ctx (остановка процесса).
// Ошибка или паника одного sweep логируется, цикл продолжается.
type Scheduler struct {
	sweeper  Sweeper
	clock    clock.Clock
	interval time.Duration
}

func NewScheduler(sweeper Sweeper, clk clock.Clock, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Scheduler{sweeper: sweeper, clock: clk, interval: interval}
}

func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	logger.Infof("expiry scheduler started, interval=%s", s.interval)
	for {
		select {
		case <-ctx.Done():
			logger.Info("expiry scheduler stopped")
			return
		case <-ticker.C:
			s.SweepOnce(ctx)
		}
	}
}

// SweepOnce выполняет один проход до конца (без дедлайна) и возвращает число удалённых сессий.
func (s *Scheduler) SweepOnce(ctx context.Context) (removed int) {
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("expiry sweep panic: %v", r)
			removed = 0
		}
	}()
	defer logger.DeferLogDuration("expiry.SweepOnce", time.Now())()
	n, err := s.sweeper.Sweep(ctx, s.clock.Now())
	if err != nil {
		logger.Errorf("expiry sweep: %v", err)
		return 0
	}
	if n > 0 {
		logger.Infof("expiry sweep removed %d sessions", n)
	}
	return n
}
