// Package merge folds one freshly observed price point onto the tail of a
// stored series without introducing gaps or duplicate period timestamps.
package merge

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"equity-calendar/internal/calendar"
	"equity-calendar/internal/clock"
	"equity-calendar/internal/cursor"
	"equity-calendar/internal/model"
)

// Session answers the exchange-hours questions the merger gates on.
// markethours.Hours implements it.
type Session interface {
	// Today returns the exchange-local civil date of now.
	Today(now time.Time) time.Time
	IsOpen(now time.Time) bool
	HasEnded(day, now time.Time) bool
}

// Refresher re-reads a tail from the store of record, replacing any cached
// copy. Chain implements it.
type Refresher interface {
	Refresh(ctx context.Context, symbol string, iv model.Interval) (*model.Candle, error)
}

// Merger decides how a point relates to a series tail.
type Merger struct {
	days    calendar.TradingDays
	session Session
	clock   clock.Source
	tails   model.TailReader
	log     *slog.Logger

	// OnOutcome is called after every decision (optional).
	OnOutcome func(iv model.Interval, o Outcome)
}

// New creates a Merger. tails is consulted when the caller passes no tail;
// it may be nil when callers always pass one. A nil clock uses the system
// clock and a nil logger slog.Default().
func New(days calendar.TradingDays, session Session, clk clock.Source, tails model.TailReader, log *slog.Logger) *Merger {
	if log == nil {
		log = slog.Default()
	}
	return &Merger{
		days:    days,
		session: session,
		clock:   clock.OrSystem(clk),
		tails:   tails,
		log:     log,
	}
}

// MergeQuote merges an intraday quote. Quotes only apply on the current
// exchange date while the session is open.
func (m *Merger) MergeQuote(ctx context.Context, point model.Candle, tail *model.Candle) (Outcome, error) {
	return m.Merge(ctx, Quote, point, tail)
}

// MergeClosingPrice merges an end-of-day price. It only applies once the
// session of the point's date has ended.
func (m *Merger) MergeClosingPrice(ctx context.Context, point model.Candle, tail *model.Candle) (Outcome, error) {
	return m.Merge(ctx, ClosingPrice, point, tail)
}

// Merge dispatches on kind. A nil tail is looked up in the configured
// TailReader. A gap against a looked-up tail is decided again against the
// refreshed tail when the TailReader is a Refresher.
func (m *Merger) Merge(ctx context.Context, kind PointKind, point model.Candle, tail *model.Candle) (Outcome, error) {
	if !point.Interval.Valid() {
		return Outcome{}, fmt.Errorf("%w: point interval %d", model.ErrInvalidArgument, int(point.Interval))
	}
	if point.Symbol == "" {
		return Outcome{}, fmt.Errorf("%w: point without symbol", model.ErrInvalidArgument)
	}
	if tail != nil && !point.SameSeries(tail) {
		return Outcome{}, fmt.Errorf("%w: cannot merge %s onto %s", model.ErrInvalidArgument, point.Key(), tail.Key())
	}

	now := m.clock.Now()
	date := m.pointDate(point.TS)

	if o, gated := m.gate(kind, date, now); gated {
		return m.done(kind, point, o), nil
	}

	looked := false
	if tail == nil && m.tails != nil {
		t, err := m.tails.Tail(ctx, point.Symbol, point.Interval)
		if err != nil {
			return Outcome{}, fmt.Errorf("merge %s: read tail: %w", point.Key(), err)
		}
		if t != nil && !point.SameSeries(t) {
			return Outcome{}, fmt.Errorf("%w: stored tail %s for %s", model.ErrInvalidArgument, t.Key(), point.Key())
		}
		tail, looked = t, true
	}

	o, err := m.decide(point, date, tail)
	if err != nil {
		return Outcome{}, fmt.Errorf("merge %s: %w", point.Key(), err)
	}
	if o.Kind == Gap && looked {
		if o, err = m.recheck(ctx, point, date, tail, o); err != nil {
			return Outcome{}, fmt.Errorf("merge %s: %w", point.Key(), err)
		}
	}
	return m.done(kind, point, o), nil
}

// pointDate returns the exchange date of a point timestamp. Midnight in the
// timestamp's own location is read as a civil date, any other instant is
// converted to the exchange's local date.
func (m *Merger) pointDate(ts time.Time) time.Time {
	if ts.Hour() == 0 && ts.Minute() == 0 && ts.Second() == 0 && ts.Nanosecond() == 0 {
		return calendar.Truncate(ts)
	}
	return m.session.Today(ts)
}

// recheck decides a gap again once the tail has been re-read from the
// store of record. A cached tail can trail a backfill.
func (m *Merger) recheck(ctx context.Context, point model.Candle, date time.Time, tail *model.Candle, gap Outcome) (Outcome, error) {
	r, ok := m.tails.(Refresher)
	if !ok {
		return gap, nil
	}
	fresh, err := r.Refresh(ctx, point.Symbol, point.Interval)
	if err != nil {
		return Outcome{}, fmt.Errorf("refresh tail: %w", err)
	}
	if fresh != nil && !point.SameSeries(fresh) {
		return Outcome{}, fmt.Errorf("%w: stored tail %s for %s", model.ErrInvalidArgument, fresh.Key(), point.Key())
	}
	if fresh != nil && tail != nil && fresh.TS.Equal(tail.TS) {
		return gap, nil
	}
	m.log.Info("merge: stale cached tail replaced", "series", point.Key(), "cached", tail.TS.Format(calendar.DateLayout))
	return m.decide(point, date, fresh)
}

// gate applies the date and session preconditions for kind.
func (m *Merger) gate(kind PointKind, date, now time.Time) (Outcome, bool) {
	switch kind {
	case Quote:
		if today := m.session.Today(now); !date.Equal(today) {
			return Outcome{Kind: NoOp, Reason: "quote not dated today " + today.Format(calendar.DateLayout)}, true
		}
		if !m.session.IsOpen(now) {
			return Outcome{Kind: NoOp, Reason: "session closed"}, true
		}
	case ClosingPrice:
		if !m.session.HasEnded(date, now) {
			return Outcome{Kind: NoOp, Reason: "session not ended"}, true
		}
	}
	return Outcome{}, false
}

// decide compares the point with the tail at the series' granularity.
func (m *Merger) decide(point model.Candle, date time.Time, tail *model.Candle) (Outcome, error) {
	start, err := cursor.PeriodStart(m.days, point.Interval, date)
	if err != nil {
		return Outcome{}, err
	}

	next := point
	next.TS = start

	if tail == nil {
		return Outcome{Kind: Appended, Candle: next}, nil
	}
	prev := *tail

	last, err := cursor.PeriodStart(m.days, point.Interval, calendar.Truncate(tail.TS))
	if err != nil {
		return Outcome{}, err
	}
	if last.Equal(start) {
		next.TS = tail.TS
		return Outcome{Kind: Overwritten, Candle: next, Prev: &prev}, nil
	}

	prevT, err := cursor.PreviousPeriodStart(m.days, point.Interval, start)
	if err != nil {
		return Outcome{}, err
	}
	if last.Equal(prevT) {
		return Outcome{Kind: Appended, Candle: next, Prev: &prev}, nil
	}
	return Outcome{
		Kind:   Gap,
		Prev:   &prev,
		Reason: fmt.Sprintf("tail at %s, expected %s", last.Format(calendar.DateLayout), prevT.Format(calendar.DateLayout)),
	}, nil
}

func (m *Merger) done(kind PointKind, point model.Candle, o Outcome) Outcome {
	args := []any{
		"series", point.Key(),
		"kind", kind.String(),
		"date", point.TS.Format(calendar.DateLayout),
		"outcome", o.Kind.String(),
	}
	if o.Reason != "" {
		args = append(args, "reason", o.Reason)
	}
	if o.Kind == Gap {
		m.log.Warn("merge: gap in series, backfill required", args...)
	} else {
		m.log.Debug("merge: decided", args...)
	}
	if m.OnOutcome != nil {
		m.OnOutcome(point.Interval, o)
	}
	return o
}

// Apply writes a changed outcome. NoOp and Gap leave storage untouched.
func Apply(ctx context.Context, w model.CandleWriter, o Outcome) error {
	if !o.Changed() {
		return nil
	}
	if err := w.WriteCandles(ctx, []model.Candle{o.Candle}); err != nil {
		return fmt.Errorf("apply %s to %s: %w", o.Kind, o.Candle.Key(), err)
	}
	return nil
}
