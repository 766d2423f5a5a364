// Package scheduler runs cron jobs on trading days only, such as the
// nightly conversion of daily candles to the coarser intervals.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"equity-calendar/internal/calendar"
	"equity-calendar/internal/clock"
	"equity-calendar/internal/model"
)

// Job is one scheduled unit of work.
type Job func(ctx context.Context) error

// Scheduler wraps a seconds-resolution cron in the exchange location.
type Scheduler struct {
	Cron *cron.Cron

	ctx  context.Context
	days calendar.TradingDays
	loc  *time.Location
	log  *slog.Logger
	now  func() time.Time

	// OnRun is called after each job run (optional).
	OnRun func(name string, err error, took time.Duration)
}

// New creates a Scheduler. Jobs receive ctx.
func New(ctx context.Context, days calendar.TradingDays, loc *time.Location, log *slog.Logger) *Scheduler {
	if log == nil {
		log = slog.Default()
	}
	return &Scheduler{
		Cron: cron.New(cron.WithSeconds(), cron.WithLocation(loc)),
		ctx:  ctx,
		days: days,
		loc:  loc,
		log:  log.With("component", "scheduler"),
		now:  time.Now,
	}
}

// AddTradingDayJob registers job under a six-field cron spec. Runs that
// fall on a non-trading day in the scheduler location are skipped.
func (s *Scheduler) AddTradingDayJob(name, spec string, job Job) error {
	if _, err := s.Cron.AddFunc(spec, func() { s.run(name, job) }); err != nil {
		return fmt.Errorf("register %s job: %w", name, err)
	}
	s.log.Info("job registered", "job", name, "spec", spec)
	return nil
}

// run executes job if today is a trading day. It reports whether it ran.
func (s *Scheduler) run(name string, job Job) bool {
	today := calendar.Truncate(s.now().In(s.loc))
	if !s.days.IsTradingDay(today) {
		s.log.Debug("skipping job on non-trading day", "job", name, "date", today.Format(calendar.DateLayout))
		return false
	}

	start := time.Now()
	err := job(s.ctx)
	took := time.Since(start)
	if err != nil {
		s.log.Error("job failed", "job", name, "error", err, "took", took)
	} else {
		s.log.Info("job done", "job", name, "took", took)
	}
	if s.OnRun != nil {
		s.OnRun(name, err, took)
	}
	return true
}

// RunNow executes job immediately, subject to the trading-day check.
func (s *Scheduler) RunNow(name string, job Job) bool {
	return s.run(name, job)
}

// Start starts the cron.
func (s *Scheduler) Start() {
	s.Cron.Start()
	s.log.Info("scheduler started", "jobs", len(s.Cron.Entries()))
}

// Stop stops the cron and waits for running jobs.
func (s *Scheduler) Stop() {
	<-s.Cron.Stop().Done()
	s.log.Info("scheduler stopped")
}

// Runner converts one symbol's daily history; aggregate.Converter implements it.
type Runner interface {
	RunAll(ctx context.Context, symbol string, targets []model.Interval, from, to time.Time) error
}

// ConversionJob converts every symbol returned by symbols to targets over
// the last lookback of daily history, read from clk. A zero lookback converts
// everything. Failures for one symbol do not stop the others.
func ConversionJob(r Runner, symbols func(ctx context.Context) ([]string, error), targets []model.Interval, lookback time.Duration, clk clock.Source) Job {
	clk = clock.OrSystem(clk)
	return func(ctx context.Context) error {
		syms, err := symbols(ctx)
		if err != nil {
			return fmt.Errorf("list symbols: %w", err)
		}
		var from time.Time
		if lookback > 0 {
			from = calendar.Truncate(clk.Now().Add(-lookback))
		}
		var errs []error
		for _, sym := range syms {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := r.RunAll(ctx, sym, targets, from, time.Time{}); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", sym, err))
			}
		}
		return errors.Join(errs...)
	}
}
