// Package aggregate converts ordered daily candles into weekly, monthly,
// quarterly and yearly candles. The scan keeps one in-progress candle and
// decides, for every daily row, whether the previous row closed the period
// or the row extends it.
package aggregate

import (
	"fmt"
	"time"

	"equity-calendar/internal/calendar"
	"equity-calendar/internal/model"
)

// transition is the outcome of comparing two consecutive daily rows.
type transition int

const (
	extend transition = iota
	closePeriod
	restart // drop the in-progress candle and start over from the current row
)

// boundaryFunc compares the previous and current daily timestamps.
type boundaryFunc func(prev, cur time.Time) transition

// byOrdinal closes the period when the ordinal decreases, extends it when it
// increases and restarts on equality.
func byOrdinal(ordinal func(time.Time) int) boundaryFunc {
	return func(prev, cur time.Time) transition {
		a, b := ordinal(prev), ordinal(cur)
		switch {
		case b < a:
			return closePeriod
		case b > a:
			return extend
		default:
			return restart
		}
	}
}

func isoWeekday(t time.Time) int { return (int(t.Weekday())+6)%7 + 1 }

// quarterBoundary closes when the month position inside the quarter goes
// from 2 to 0 and extends otherwise. Unlike the other rules it never
// restarts on equality.
// TODO: confirm whether quarters should restart on a repeated position like the other intervals.
func quarterBoundary(prev, cur time.Time) transition {
	if (int(prev.Month())-1)%3 == 2 && (int(cur.Month())-1)%3 == 0 {
		return closePeriod
	}
	return extend
}

var boundaries = map[model.Interval]boundaryFunc{
	model.Weekly:    byOrdinal(isoWeekday),
	model.Monthly:   byOrdinal(func(t time.Time) int { return t.Day() }),
	model.Quarterly: quarterBoundary,
	model.Yearly:    byOrdinal(func(t time.Time) int { return t.YearDay() }),
}

// Aggregator converts daily candles. It keeps no state between calls.
type Aggregator struct {
	// OnCandle is called for every emitted candle (optional).
	OnCandle func(c model.Candle)
	// OnRestart is called when an in-progress candle is dropped (optional).
	OnRestart func(dropped model.Candle)
}

// New creates an Aggregator.
func New() *Aggregator {
	return &Aggregator{}
}

// Convert is New().Convert.
func Convert(daily []model.Candle, target model.Interval) ([]model.Candle, error) {
	return New().Convert(daily, target)
}

// Convert folds daily candles, ordered oldest first, into target-interval
// candles. The last candle is emitted even if its period is incomplete.
// Input completeness is not checked; gaps must be resolved beforehand.
func (a *Aggregator) Convert(daily []model.Candle, target model.Interval) ([]model.Candle, error) {
	boundary, ok := boundaries[target]
	if !ok {
		return nil, fmt.Errorf("%w: cannot convert daily candles to %s", model.ErrInvalidArgument, target)
	}
	if len(daily) == 0 {
		return nil, nil
	}
	symbol := daily[0].Symbol
	for i := range daily {
		if daily[i].Interval != model.Daily || daily[i].Symbol != symbol {
			return nil, fmt.Errorf("%w: row %d is %s, expected %s:%s",
				model.ErrInvalidArgument, i, daily[i].Key(), symbol, model.Daily)
		}
	}

	out := make([]model.Candle, 0, len(daily)/expectedRows(target)+1)
	forming := begin(daily[0], target)

	for i := 1; i < len(daily); i++ {
		cur := daily[i]
		switch boundary(daily[i-1].TS, cur.TS) {
		case closePeriod:
			out = a.emit(out, forming)
			forming = begin(cur, target)
		case restart:
			if a.OnRestart != nil {
				a.OnRestart(forming)
			}
			forming = begin(cur, target)
		default:
			fold(&forming, cur)
		}
	}
	return a.emit(out, forming), nil
}

func (a *Aggregator) emit(out []model.Candle, c model.Candle) []model.Candle {
	if a.OnCandle != nil {
		a.OnCandle(c)
	}
	return append(out, c)
}

// begin starts an in-progress candle from one daily row.
func begin(d model.Candle, target model.Interval) model.Candle {
	c := d
	c.Interval = target
	c.TS = calendar.Truncate(d.TS)
	return c
}

// fold merges a daily row into the in-progress candle. Open and TS stay.
func fold(c *model.Candle, d model.Candle) {
	if d.High.GreaterThan(c.High) {
		c.High = d.High
	}
	if d.Low.LessThan(c.Low) {
		c.Low = d.Low
	}
	c.Volume += d.Volume
	c.Close = d.Close
}

func expectedRows(iv model.Interval) int {
	switch iv {
	case model.Weekly:
		return 5
	case model.Monthly:
		return 21
	case model.Quarterly:
		return 63
	default:
		return 252
	}
}
