// Package worker runs the periodic jobs of the economy: market price ticks,
// monthly deposit accrual and outbox delivery.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"casebank/internal/economy"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"
)

// Parser accepts standard five-field expressions and descriptors like "@every 5m".
var Parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

type Options struct {
	PriceSchedule   string
	AccrualSchedule string
	OutboxEvery     time.Duration
	OutboxBatch     int
	Admins          []int64
}

type Runner struct {
	eng      *economy.Engine
	notifier economy.Notifier
	log      *slog.Logger
	opts     Options

	prices  cron.Schedule
	accrual cron.Schedule
	now     func() time.Time
}

func New(eng *economy.Engine, notifier economy.Notifier, logger *slog.Logger, opts Options) (*Runner, error) {
	if eng == nil {
		return nil, fmt.Errorf("engine is required")
	}
	if notifier == nil {
		return nil, fmt.Errorf("notifier is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if opts.OutboxEvery <= 0 {
		return nil, fmt.Errorf("outbox interval must be > 0")
	}
	prices, err := Parser.Parse(opts.PriceSchedule)
	if err != nil {
		return nil, fmt.Errorf("parse price schedule %q: %w", opts.PriceSchedule, err)
	}
	accrual, err := Parser.Parse(opts.AccrualSchedule)
	if err != nil {
		return nil, fmt.Errorf("parse accrual schedule %q: %w", opts.AccrualSchedule, err)
	}
	return &Runner{
		eng:      eng,
		notifier: notifier,
		log:      logger,
		opts:     opts,
		prices:   prices,
		accrual:  accrual,
		now:      time.Now,
	}, nil
}

// RunOnce performs one price tick, one accrual for the current period and
// one outbox pass.
func (r *Runner) RunOnce(ctx context.Context) error {
	if err := r.tickPrices(ctx); err != nil {
		return err
	}
	if err := r.accrue(ctx); err != nil {
		return err
	}
	return r.dispatch(ctx)
}

// Run blocks until ctx is cancelled or a job loop fails to start.
func (r *Runner) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return r.scheduleLoop(gctx, "prices", r.prices, r.tickPrices) })
	g.Go(func() error { return r.scheduleLoop(gctx, "accrual", r.accrual, r.accrue) })
	g.Go(func() error { return r.outboxLoop(gctx) })
	r.log.Info("worker started",
		"price_schedule", r.opts.PriceSchedule,
		"accrual_schedule", r.opts.AccrualSchedule,
		"outbox_every", r.opts.OutboxEvery.String(),
	)
	err := g.Wait()
	if ctx.Err() != nil {
		r.log.Info("worker shutdown")
		return nil
	}
	return err
}

// scheduleLoop runs job at each activation of sched. Job failures are logged
// and the loop keeps going.
func (r *Runner) scheduleLoop(ctx context.Context, name string, sched cron.Schedule, job func(context.Context) error) error {
	for {
		now := r.now()
		next := sched.Next(now)
		if next.IsZero() {
			return fmt.Errorf("%s schedule has no future activation", name)
		}
		timer := time.NewTimer(next.Sub(now))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		if err := job(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			r.log.Error("job failed", "job", name, "err", err)
		}
	}
}

func (r *Runner) outboxLoop(ctx context.Context) error {
	ticker := time.NewTicker(r.opts.OutboxEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := r.dispatch(ctx); err != nil && ctx.Err() == nil {
				r.log.Error("outbox dispatch failed", "err", err)
			}
		}
	}
}

func (r *Runner) tickPrices(ctx context.Context) error {
	stocks, err := r.eng.Market.UpdatePrices(ctx)
	if err != nil {
		return fmt.Errorf("update prices: %w", err)
	}
	r.log.Info("market tick complete", "stocks", len(stocks))
	return nil
}

func (r *Runner) accrue(ctx context.Context) error {
	period := r.eng.Deposits.CurrentPeriod()
	res, err := r.eng.Deposits.AccrueAll(ctx, period)
	if err != nil {
		return fmt.Errorf("accrue %s: %w", period, err)
	}
	r.log.Info("accrual complete", "period", res.Period, "accounts", res.Accounts, "skipped", res.Skipped, "total", res.TotalProfit.StringFixed(2))
	return nil
}

func (r *Runner) dispatch(ctx context.Context) error {
	res, err := r.eng.DispatchOutbox(ctx, r.notifier, r.opts.Admins, r.opts.OutboxBatch)
	if err != nil {
		return fmt.Errorf("dispatch outbox: %w", err)
	}
	if res.Sent+res.Failed+res.Dropped > 0 {
		r.log.Info("outbox dispatched", "sent", res.Sent, "failed", res.Failed, "dropped", res.Dropped)
	}
	return nil
}
