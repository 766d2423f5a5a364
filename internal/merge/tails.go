package merge

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"equity-calendar/internal/calendar"
	"equity-calendar/internal/model"
)

// TailCache is a TailReader that can also be filled, such as the redis tail cache.
type TailCache interface {
	model.TailReader
	PutTail(ctx context.Context, c model.Candle) error
}

// Invalidator drops a cached tail so an older one can be installed.
type Invalidator interface {
	Invalidate(ctx context.Context, symbol string, iv model.Interval) error
}

// Chain looks a tail up in each source in turn. Errors from a source are
// skipped while a later source can still answer. A hit in a later source
// is written back to earlier sources implementing TailCache.
type Chain []model.TailReader

// Tail returns the first tail found.
func (ch Chain) Tail(ctx context.Context, symbol string, iv model.Interval) (*model.Candle, error) {
	var errs []error
	for i, src := range ch {
		c, err := src.Tail(ctx, symbol, iv)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if c == nil {
			continue
		}
		for _, earlier := range ch[:i] {
			if tc, ok := earlier.(TailCache); ok {
				putTail(ctx, tc, *c)
			}
		}
		return c, nil
	}
	if len(errs) == len(ch) && len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return nil, nil
}

// Refresh reads the tail from the last source, the store of record, and
// replaces whatever the earlier sources cache for the series.
func (ch Chain) Refresh(ctx context.Context, symbol string, iv model.Interval) (*model.Candle, error) {
	if len(ch) == 0 {
		return nil, nil
	}
	c, err := ch[len(ch)-1].Tail(ctx, symbol, iv)
	if err != nil {
		return nil, err
	}
	for _, earlier := range ch[:len(ch)-1] {
		if inv, ok := earlier.(Invalidator); ok {
			if err := inv.Invalidate(ctx, symbol, iv); err != nil {
				slog.Warn("tail cache invalidate failed", "series", symbol+":"+iv.String(), "error", err)
				continue
			}
		}
		if tc, ok := earlier.(TailCache); ok && c != nil {
			putTail(ctx, tc, *c)
		}
	}
	return c, nil
}

// putTail fills a cache, logging a failure instead of returning it.
func putTail(ctx context.Context, tc TailCache, c model.Candle) {
	if err := tc.PutTail(ctx, c); err != nil {
		slog.Warn("tail cache write failed", "series", c.Key(), "date", c.TS.Format(calendar.DateLayout), "error", err)
	}
}

// Sink applies outcomes to a store and keeps caches in step.
type Sink struct {
	Store  model.CandleWriter
	Caches []TailCache

	// OnCommit is called with the write duration (optional).
	OnCommit func(took time.Duration)
}

// Apply writes o to the store, then refreshes the caches.
func (s *Sink) Apply(ctx context.Context, o Outcome) error {
	if !o.Changed() {
		return nil
	}
	start := time.Now()
	if err := Apply(ctx, s.Store, o); err != nil {
		return err
	}
	if s.OnCommit != nil {
		s.OnCommit(time.Since(start))
	}
	for _, c := range s.Caches {
		putTail(ctx, c, o.Candle)
	}
	return nil
}
