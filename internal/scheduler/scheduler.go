package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/acme/campaign-dispatch/internal/app"
	"github.com/acme/campaign-dispatch/internal/config"
)

// Scheduler triggers dispatch ticks on a fixed interval or a cron expression.
type Scheduler struct {
	runner   *Runner
	interval time.Duration
	expr     string
	logger   *zap.Logger
}

// New wires a scheduler that publishes batches to Kafka.
func New(container *app.Container) *Scheduler {
	svc := container.Services()
	runner := NewRunner(
		svc.Orchestrator,
		container.Publishers().Batches,
		container.Repositories().Summaries,
		container.Metrics,
		container.Logger.Named("scheduler").Logger,
	)
	return newScheduler(runner, container.Config.Scheduler, container.Logger.Named("scheduler").Logger)
}

func newScheduler(runner *Runner, cfg config.SchedulerConfig, logger *zap.Logger) *Scheduler {
	interval := cfg.TickInterval
	if interval <= 0 {
		interval = 2 * time.Minute
	}
	return &Scheduler{runner: runner, interval: interval, expr: cfg.Cron, logger: logger}
}

// Run triggers ticks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	if s.expr != "" {
		return s.runCron(ctx)
	}
	return s.runInterval(ctx)
}

func (s *Scheduler) runInterval(ctx context.Context) error {
	s.logger.Info("scheduler: started", zap.Duration("interval", s.interval))

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	go s.fire(ctx)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler: stopped")
			return ctx.Err()
		case <-ticker.C:
			go s.fire(ctx)
		}
	}
}

func (s *Scheduler) runCron(ctx context.Context) error {
	schedule, err := ParseSpec(s.expr)
	if err != nil {
		return err
	}

	c := cron.New(cron.WithParser(specParser))
	c.Schedule(schedule, cron.FuncJob(func() { s.fire(ctx) }))
	c.Start()
	s.logger.Info("scheduler: started", zap.String("cron", s.expr))

	<-ctx.Done()
	<-c.Stop().Done()
	s.logger.Info("scheduler: stopped")
	return ctx.Err()
}

// fire runs one tick; a trigger that lands on a running tick is dropped.
func (s *Scheduler) fire(ctx context.Context) {
	_, err := s.runner.RunOnce(ctx)
	switch {
	case err == nil:
	case errors.Is(err, ErrTickInProgress):
		s.logger.Warn("scheduler: previous tick still running, trigger dropped")
	case ctx.Err() != nil:
	default:
		s.logger.Error("scheduler: tick failed", zap.Error(err))
	}
}

var specParser = cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ParseSpec parses a six-field, seconds-first cron expression.
func ParseSpec(expr string) (cron.Schedule, error) {
	schedule, err := specParser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("scheduler: invalid cron %q: %w", expr, err)
	}
	return schedule, nil
}
