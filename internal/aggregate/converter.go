package aggregate

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"equity-calendar/internal/calendar"
	"equity-calendar/internal/cursor"
	"equity-calendar/internal/model"
)

// Replacer is implemented by stores that can swap a series tail in one
// transaction. Converter prefers it over DeleteFrom + WriteCandles.
type Replacer interface {
	ReplaceFrom(ctx context.Context, symbol string, iv model.Interval, from time.Time, candles []model.Candle) error
}

// Converter reads stored daily candles, converts them and replaces the
// stored target-interval candles from the earliest converted timestamp on.
// A from inside a period is widened to the period's first trading day, so
// running it again from any date leaves the same candle set.
type Converter struct {
	store model.CandleStore
	days  calendar.TradingDays
	agg   *Aggregator
	log   *slog.Logger

	// OnConverted is called after a successful conversion (optional).
	OnConverted func(iv model.Interval, n int, took time.Duration)
}

// NewConverter creates a Converter over store. days locates period starts.
// A nil logger uses slog.Default().
func NewConverter(store model.CandleStore, days calendar.TradingDays, log *slog.Logger) *Converter {
	if log == nil {
		log = slog.Default()
	}
	return &Converter{store: store, days: days, agg: New(), log: log}
}

// Run converts symbol's daily candles in [from, to] to target and persists
// them. A zero from means the whole history, a zero to up to the latest
// stored candle.
func (c *Converter) Run(ctx context.Context, symbol string, target model.Interval, from, to time.Time) ([]model.Candle, error) {
	start := time.Now()

	from, err := c.periodStart(target, from)
	if err != nil {
		return nil, fmt.Errorf("convert %s to %s: %w", symbol, target, err)
	}

	daily, err := c.store.ReadCandles(ctx, symbol, model.Daily, from, to)
	if err != nil {
		return nil, fmt.Errorf("convert %s to %s: %w", symbol, target, err)
	}
	if len(daily) == 0 {
		c.log.Info("no daily candles to convert", "symbol", symbol, "interval", target.String())
		return nil, nil
	}

	out, err := c.agg.Convert(daily, target)
	if err != nil {
		return nil, fmt.Errorf("convert %s to %s: %w", symbol, target, err)
	}

	if err := c.replace(ctx, symbol, target, from, out); err != nil {
		return nil, fmt.Errorf("convert %s to %s: %w", symbol, target, err)
	}

	took := time.Since(start)
	c.log.Info("converted candles",
		"symbol", symbol,
		"interval", target.String(),
		"daily", len(daily),
		"converted", len(out),
		"from", out[0].TS.Format("2006-01-02"),
		"took", took)
	if c.OnConverted != nil {
		c.OnConverted(target, len(out), took)
	}
	return out, nil
}

// RunAll converts to every target interval in turn.
func (c *Converter) RunAll(ctx context.Context, symbol string, targets []model.Interval, from, to time.Time) error {
	for _, iv := range targets {
		if _, err := c.Run(ctx, symbol, iv, from, to); err != nil {
			return err
		}
	}
	return nil
}

// periodStart widens from to the first trading day of its target period.
// Dates before the trading range mean the whole history.
func (c *Converter) periodStart(target model.Interval, from time.Time) (time.Time, error) {
	if from.IsZero() || from.Before(calendar.Range.Lower) {
		return time.Time{}, nil
	}
	return cursor.PeriodStart(c.days, target, from)
}

// replace swaps the stored candles from the earlier of from and the first
// converted candle on.
func (c *Converter) replace(ctx context.Context, symbol string, iv model.Interval, from time.Time, out []model.Candle) error {
	if from.IsZero() || out[0].TS.Before(from) {
		from = out[0].TS
	}
	if r, ok := c.store.(Replacer); ok {
		return r.ReplaceFrom(ctx, symbol, iv, from, out)
	}
	n, err := c.store.DeleteFrom(ctx, symbol, iv, from)
	if err != nil {
		return err
	}
	c.log.Debug("deleted stale converted candles", "symbol", symbol, "interval", iv.String(), "deleted", n)
	return c.store.WriteCandles(ctx, out)
}
