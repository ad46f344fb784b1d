package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/storify-asia/storify/pkg/logger"
)

const expiryJobTimeout = time.Minute

// Expirer moves overdue pending transactions out of pending.
type Expirer interface {
	ExpireStale(ctx context.Context, batch int) (int, error)
}

type Scheduler struct {
	cron     *cron.Cron
	payments Expirer
	schedule string
	batch    int
	log      *slog.Logger
}

func NewScheduler(payments Expirer, schedule string, batch int, log *slog.Logger) *Scheduler {
	log = log.With(logger.Component("scheduler"))
	cl := cronLogger{log: log}
	return &Scheduler{
		cron:     cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl))),
		payments: payments,
		schedule: schedule,
		batch:    batch,
		log:      log,
	}
}

// Start registers the jobs and starts the cron loop. An invalid schedule is
// an error.
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.schedule, s.expirePayments); err != nil {
		return err
	}
	s.cron.Start()
	s.log.Info("scheduled payment expiry", slog.String("schedule", s.schedule))
	return nil
}

// Stop waits for running jobs or for ctx to expire.
func (s *Scheduler) Stop(ctx context.Context) {
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
	}
}

func (s *Scheduler) expirePayments() {
	ctx, cancel := context.WithTimeout(context.Background(), expiryJobTimeout)
	defer cancel()
	_, _ = s.ExpirePayments(ctx)
}

// ExpirePayments runs one expiry sweep.
func (s *Scheduler) ExpirePayments(ctx context.Context) (int, error) {
	start := time.Now()
	n, err := s.payments.ExpireStale(ctx, s.batch)
	if err != nil {
		s.log.ErrorContext(ctx, "payment expiry sweep failed", logger.Error(err))
		return n, err
	}
	if n > 0 {
		s.log.InfoContext(ctx, "expired stale payments",
			slog.Int("count", n),
			logger.Duration(time.Since(start)),
		)
	}
	return n, nil
}

// cronLogger routes cron's own messages through slog.
type cronLogger struct {
	log *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error(msg, append(keysAndValues, logger.Error(err))...)
}
