package main

import (
	"context"
	"log/slog"
	"time"

	"equity-calendar/internal/calendar"
	"equity-calendar/internal/closedetector"
	"equity-calendar/internal/clock"
	"equity-calendar/internal/feed"
	"equity-calendar/internal/logger"
	"equity-calendar/internal/markethours"
	"equity-calendar/internal/merge"
	"equity-calendar/internal/metrics"
	"equity-calendar/internal/model"
)

// announcer publishes applied outcomes; the redis tail cache implements it.
type announcer interface {
	Announce(ctx context.Context, kind string, cd model.Candle) error
}

// engine serializes every merge of the daemon. Points from the feed and
// closing prices released by the detector go through the same loop so two
// decisions never race on one series tail.
type engine struct {
	hours  *markethours.Hours
	merger *merge.Merger
	sink   *merge.Sink
	pub    announcer // nil without redis
	clock  clock.Source
	prom   *metrics.Metrics
	health *metrics.HealthStatus
	log    *slog.Logger

	stableFor time.Duration
	maxGrace  time.Duration

	session  time.Time
	detector *closedetector.Detector
}

// sessionDetector returns the close detector of now's session, starting a
// new one when the exchange date changes. Returns nil on non-trading days.
func (e *engine) sessionDetector(now time.Time) *closedetector.Detector {
	today := e.hours.Today(now)
	if e.detector != nil && e.session.Equal(today) {
		return e.detector
	}
	e.session = today
	e.detector = nil
	if !e.hours.IsTradingDay(today) {
		return nil
	}
	d := closedetector.New(e.hours.Close(today))
	if e.stableFor > 0 {
		d.StableFor = e.stableFor
	}
	if e.maxGrace > 0 {
		d.MaxGrace = e.maxGrace
	}
	e.detector = d
	e.log.Info("session started", "date", today.Format(calendar.DateLayout),
		"close", d.CloseTime().In(e.hours.Location()).Format("15:04"))
	return d
}

// handle merges one feed point. Daily quotes also feed the close detector.
func (e *engine) handle(ctx context.Context, p feed.Point) {
	ctx = logger.WithTraceID(ctx, logger.GenerateTraceID(p.Candle.Key(), p.At))
	e.health.SetLastPointTime(p.At)

	e.apply(ctx, p.Kind, p.Candle)

	if p.Kind != merge.Quote || p.Candle.Interval != model.Daily {
		return
	}
	now := e.clock.Now()
	d := e.sessionDetector(now)
	if d == nil || !calendar.Truncate(p.Candle.TS).Equal(e.session) {
		return
	}
	if closing, ok := d.Observe(p.Candle, now); ok {
		e.prom.ClosingPrices.Inc()
		e.apply(ctx, merge.ClosingPrice, closing)
	}
}

// tick releases closing prices still pending past the grace period and
// refreshes the session gauges.
func (e *engine) tick(ctx context.Context) {
	now := e.clock.Now()
	e.prom.SetMarketOpen(e.hours.IsOpen(now))
	e.health.SetMarketStatus(e.hours.StatusString(now))

	d := e.sessionDetector(now)
	if d == nil {
		return
	}
	for _, closing := range d.Expire(now) {
		e.prom.ClosingPrices.Inc()
		e.apply(ctx, merge.ClosingPrice, closing)
	}
}

func (e *engine) apply(ctx context.Context, kind merge.PointKind, point model.Candle) {
	o, err := e.merger.Merge(ctx, kind, point, nil)
	if err != nil {
		e.log.Error("merge failed", append(logger.LogWithTrace(ctx), "key", point.Key(), "error", err)...)
		return
	}
	if !o.Changed() {
		return
	}
	if err := e.sink.Apply(ctx, o); err != nil {
		e.log.Error("persist failed", append(logger.LogWithTrace(ctx), "key", o.Candle.Key(), "error", err)...)
		return
	}
	if e.pub != nil {
		if err := e.pub.Announce(ctx, kind.String(), o.Candle); err != nil {
			e.log.Warn("announce failed", append(logger.LogWithTrace(ctx), "key", o.Candle.Key(), "error", err)...)
		}
	}
}

// run consumes points until ctx is done or points is closed.
func (e *engine) run(ctx context.Context, points <-chan feed.Point, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	e.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case p, ok := <-points:
			if !ok {
				return
			}
			e.handle(ctx, p)
		case <-ticker.C:
			e.tick(ctx)
		}
	}
}
