package cursor

import (
	"fmt"
	"time"

	"equity-calendar/internal/calendar"
	"equity-calendar/internal/model"
)

// period describes a calendar period: where it starts and how to step it.
type period interface {
	start(t time.Time) time.Time
	add(start time.Time, n int) time.Time
}

type week struct{}

func (week) start(t time.Time) time.Time {
	d := calendar.Truncate(t)
	return d.AddDate(0, 0, -((int(d.Weekday()) + 6) % 7)) // ISO Monday
}

func (week) add(s time.Time, n int) time.Time { return s.AddDate(0, 0, 7*n) }

type month struct{}

func (month) start(t time.Time) time.Time { return calendar.Date(t.Year(), t.Month(), 1) }

func (month) add(s time.Time, n int) time.Time { return s.AddDate(0, n, 0) }

type quarter struct{}

func (quarter) start(t time.Time) time.Time {
	return calendar.Date(t.Year(), time.Month((int(t.Month())-1)/3*3+1), 1)
}

func (quarter) add(s time.Time, n int) time.Time { return s.AddDate(0, 3*n, 0) }

type year struct{}

func (year) start(t time.Time) time.Time { return calendar.Date(t.Year(), time.January, 1) }

func (year) add(s time.Time, n int) time.Time { return s.AddDate(n, 0, 0) }

// PeriodCursor walks the first trading day of consecutive calendar periods.
// A period whose first calendar day is not a trading day starts on the next
// trading day; if the whole period is closed, the start spills into the
// following period.
type PeriodCursor struct {
	p     period
	iv    model.Interval
	days  calendar.TradingDays
	rng   calendar.TradingRange
	dates *DateCursor // scratch cursor used for snapping

	st         State
	positioned bool

	// calendar starts of the anchor and current periods
	anchorStart time.Time
	curStart    time.Time
}

func newPeriodCursor(days calendar.TradingDays, p period, iv model.Interval) *PeriodCursor {
	return &PeriodCursor{
		p:     p,
		iv:    iv,
		days:  days,
		rng:   calendar.Range,
		dates: NewDateCursor(days),
		st:    State{Direction: Forward},
	}
}

// NewWeekCursor returns a cursor over ISO weeks.
func NewWeekCursor(days calendar.TradingDays) *PeriodCursor {
	return newPeriodCursor(days, week{}, model.Weekly)
}

// NewMonthCursor returns a cursor over calendar months.
func NewMonthCursor(days calendar.TradingDays) *PeriodCursor {
	return newPeriodCursor(days, month{}, model.Monthly)
}

// NewQuarterCursor returns a cursor over calendar quarters.
func NewQuarterCursor(days calendar.TradingDays) *PeriodCursor {
	return newPeriodCursor(days, quarter{}, model.Quarterly)
}

// NewYearCursor returns a cursor over calendar years.
func NewYearCursor(days calendar.TradingDays) *PeriodCursor {
	return newPeriodCursor(days, year{}, model.Yearly)
}

// NewPeriodCursor returns the cursor matching a non-daily interval.
func NewPeriodCursor(days calendar.TradingDays, iv model.Interval) (*PeriodCursor, error) {
	switch iv {
	case model.Weekly:
		return NewWeekCursor(days), nil
	case model.Monthly:
		return NewMonthCursor(days), nil
	case model.Quarterly:
		return NewQuarterCursor(days), nil
	case model.Yearly:
		return NewYearCursor(days), nil
	}
	return nil, fmt.Errorf("%w: no period cursor for interval %s", model.ErrInvalidArgument, iv)
}

// Interval returns the interval the cursor steps by.
func (c *PeriodCursor) Interval() model.Interval { return c.iv }

// ToBeginning returns the first trading day of the period containing t.
func (c *PeriodCursor) ToBeginning(t time.Time) (time.Time, error) {
	if err := c.rng.Check(t); err != nil {
		return time.Time{}, err
	}
	return c.snap(c.p.start(t))
}

// SetStartDate positions the cursor on the period containing t. The anchor
// is the first trading day of that period.
func (c *PeriodCursor) SetStartDate(t time.Time) error {
	if err := c.rng.Check(t); err != nil {
		return err
	}
	s := c.p.start(t)
	d, err := c.snap(s)
	if err != nil {
		return err
	}
	c.anchorStart = s
	c.st.Anchor = d
	c.positioned = true
	c.Rewind()
	return nil
}

// SetDirection sets Forward for positive n and Backward otherwise.
func (c *PeriodCursor) SetDirection(n int) {
	c.st.Direction = Normalize(n)
}

// SetDirectionValue is SetDirection for loosely typed input.
func (c *PeriodCursor) SetDirectionValue(v any) error {
	d, err := ParseDirection(v)
	if err != nil {
		return err
	}
	c.st.Direction = d
	return nil
}

// Rewind moves the position back to the anchor.
func (c *PeriodCursor) Rewind() {
	c.st.Position = c.st.Anchor
	c.curStart = c.anchorStart
}

// Current returns the first trading day of the current period.
func (c *PeriodCursor) Current() time.Time { return c.st.Position }

// State returns a copy of the cursor state.
func (c *PeriodCursor) State() State { return c.st }

// Next moves exactly one period in the cursor's direction.
func (c *PeriodCursor) Next() (time.Time, error) {
	if !c.positioned {
		return time.Time{}, errNotPositioned
	}
	s := c.curStart
	for {
		s = c.p.add(s, int(c.st.Direction))
		d, err := c.snap(s)
		if err != nil {
			return time.Time{}, err
		}
		// a fully closed period snaps onto its neighbour's start
		if d.Equal(c.st.Position) {
			continue
		}
		c.st.Position, c.curStart = d, s
		return d, nil
	}
}

// Seek jumps n periods from the anchor in the cursor's direction, so with a
// Backward cursor Seek(10) lands ten periods before the anchor.
func (c *PeriodCursor) Seek(n int) (time.Time, error) {
	if !c.positioned {
		return time.Time{}, errNotPositioned
	}
	s := c.p.add(c.anchorStart, n*int(c.st.Direction))
	d, err := c.snap(s)
	if err != nil {
		return time.Time{}, err
	}
	c.st.Position, c.curStart = d, s
	return d, nil
}

// Valid reports whether Next would stay inside the trading range.
func (c *PeriodCursor) Valid() bool {
	if !c.positioned {
		return false
	}
	_, err := c.snap(c.p.add(c.curStart, int(c.st.Direction)))
	return err == nil
}

// snap returns the first trading day at or after the period start s.
func (c *PeriodCursor) snap(s time.Time) (time.Time, error) {
	if s.After(c.rng.Upper) {
		return time.Time{}, c.rng.Check(s)
	}
	d := s
	if d.Before(c.rng.Lower) {
		// only the period straddling the lower bound may start before it
		if !c.p.start(c.rng.Lower).Equal(s) {
			return time.Time{}, c.rng.Check(s)
		}
		d = c.rng.Lower
	}
	if c.days.IsTradingDay(d) {
		return d, nil
	}
	if err := c.dates.SetStartDate(d); err != nil {
		return time.Time{}, err
	}
	c.dates.SetDirection(int(Forward))
	return c.dates.Next()
}

// PeriodStart returns the date identifying the iv period containing t: the
// date itself for Daily, the first trading day of the period otherwise.
func PeriodStart(days calendar.TradingDays, iv model.Interval, t time.Time) (time.Time, error) {
	if iv == model.Daily {
		if err := calendar.Range.Check(t); err != nil {
			return time.Time{}, err
		}
		return calendar.Truncate(t), nil
	}
	c, err := NewPeriodCursor(days, iv)
	if err != nil {
		return time.Time{}, err
	}
	return c.ToBeginning(t)
}

// PreviousPeriodStart returns the date identifying the iv period right
// before the one containing t: the previous trading day for Daily.
func PreviousPeriodStart(days calendar.TradingDays, iv model.Interval, t time.Time) (time.Time, error) {
	if iv == model.Daily {
		return PreviousTradingDay(days, t)
	}
	c, err := NewPeriodCursor(days, iv)
	if err != nil {
		return time.Time{}, err
	}
	if err := c.SetStartDate(t); err != nil {
		return time.Time{}, err
	}
	c.SetDirection(int(Backward))
	return c.Next()
}
