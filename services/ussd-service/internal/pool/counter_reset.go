package pool

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/grigta/simgate/services/ussd-service/internal/repository"
)

const dayLayout = "2006-01-02"

// CounterResetWorker zeroes the per-card daily counters once the calendar day changes.
type CounterResetWorker struct {
	repo          repository.SimCardRepository
	checkInterval time.Duration
	now           func() time.Time
	logger        *logrus.Logger
	lastDay       string
	stopChan      chan struct{}
	stopOnce      sync.Once
	wg            sync.WaitGroup
}

func NewCounterResetWorker(repo repository.SimCardRepository, checkInterval time.Duration, logger *logrus.Logger) *CounterResetWorker {
	if checkInterval <= 0 {
		checkInterval = time.Minute
	}
	return &CounterResetWorker{
		repo:          repo,
		checkInterval: checkInterval,
		now:           time.Now,
		logger:        logger,
		stopChan:      make(chan struct{}),
	}
}

func (w *CounterResetWorker) Start(ctx context.Context) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.run(ctx)
	}()
}

func (w *CounterResetWorker) Stop() {
	w.stopOnce.Do(func() { close(w.stopChan) })
	w.wg.Wait()
}

func (w *CounterResetWorker) run(ctx context.Context) {
	ticker := time.NewTicker(w.checkInterval)
	defer ticker.Stop()

	w.logger.Info("Starting daily counter reset worker")
	w.Check(ctx)

	for {
		select {
		case <-ticker.C:
			w.Check(ctx)
		case <-w.stopChan:
			w.logger.Info("Stopping daily counter reset worker")
			return
		case <-ctx.Done():
			return
		}
	}
}

// Check resets the counters when the day differs from the last one seen. It returns the number
// of cards reset.
func (w *CounterResetWorker) Check(ctx context.Context) int64 {
	day := w.now().Format(dayLayout)
	if day == w.lastDay {
		return 0
	}

	n, err := w.repo.ResetDailyCounters(ctx, day)
	if err != nil {
		w.logger.WithError(err).Error("Failed to reset daily counters")
		return 0
	}
	w.lastDay = day

	if n > 0 {
		w.logger.WithFields(logrus.Fields{"day": day, "sim_cards": n}).Info("Daily counters reset")
	}
	return n
}
