// Package cursor provides bidirectional, boundary-checked iterators over
// trading days and over the first trading day of weeks, months, quarters
// and years.
//
// Cursors are mutable and single-owner: two independent traversals need two
// cursor instances.
package cursor

import (
	"fmt"
	"time"

	"equity-calendar/internal/calendar"
	"equity-calendar/internal/model"
)

// State is the mutable position of a cursor. Anchor is where Rewind returns to.
type State struct {
	Position  time.Time
	Direction Direction
	Anchor    time.Time
}

// Cursor is the shape shared by DateCursor and PeriodCursor.
type Cursor interface {
	SetStartDate(t time.Time) error
	SetDirection(n int)
	Rewind()
	Current() time.Time
	Next() (time.Time, error)
	Valid() bool
	Seek(n int) (time.Time, error)
	State() State
}

// DateCursor walks trading days within calendar.Range.
type DateCursor struct {
	days       calendar.TradingDays
	rng        calendar.TradingRange
	st         State
	positioned bool
}

var errNotPositioned = fmt.Errorf("%w: cursor has no start date", model.ErrInvalidArgument)

// NewDateCursor returns an unpositioned forward cursor.
func NewDateCursor(days calendar.TradingDays) *DateCursor {
	return &DateCursor{
		days: days,
		rng:  calendar.Range,
		st:   State{Direction: Forward},
	}
}

// SetStartDate sets the anchor and rewinds to it. The anchor is not
// normalized to a trading day; the first Next moves to the nearest trading
// day in the cursor's direction.
func (c *DateCursor) SetStartDate(t time.Time) error {
	if err := c.rng.Check(t); err != nil {
		return err
	}
	c.st.Anchor = calendar.Truncate(t)
	c.positioned = true
	c.Rewind()
	return nil
}

// SetDirection sets Forward for positive n and Backward otherwise.
func (c *DateCursor) SetDirection(n int) {
	c.st.Direction = Normalize(n)
}

// SetDirectionValue is SetDirection for loosely typed input.
func (c *DateCursor) SetDirectionValue(v any) error {
	d, err := ParseDirection(v)
	if err != nil {
		return err
	}
	c.st.Direction = d
	return nil
}

// Direction returns the current direction.
func (c *DateCursor) Direction() Direction { return c.st.Direction }

// Rewind moves the position back to the anchor.
func (c *DateCursor) Rewind() {
	c.st.Position = c.st.Anchor
}

// Current returns the position; zero before SetStartDate.
func (c *DateCursor) Current() time.Time { return c.st.Position }

// State returns a copy of the cursor state.
func (c *DateCursor) State() State { return c.st }

// Next advances to the next trading day in the cursor's direction. Leaving
// the trading range is an ErrOutOfRange error and leaves the position as it was.
func (c *DateCursor) Next() (time.Time, error) {
	if !c.positioned {
		return time.Time{}, errNotPositioned
	}
	d, err := c.step(c.st.Position, c.st.Direction)
	if err != nil {
		return time.Time{}, err
	}
	c.st.Position = d
	return d, nil
}

// Seek moves n trading days from the current position: along the cursor's
// direction for positive n, against it for negative n. The position is
// unchanged on error.
func (c *DateCursor) Seek(n int) (time.Time, error) {
	if !c.positioned {
		return time.Time{}, errNotPositioned
	}
	dir := c.st.Direction
	if n < 0 {
		dir, n = -dir, -n
	}
	d := c.st.Position
	for i := 0; i < n; i++ {
		var err error
		if d, err = c.step(d, dir); err != nil {
			return time.Time{}, err
		}
	}
	c.st.Position = d
	return d, nil
}

// Valid reports whether Next would find another trading day inside the range.
func (c *DateCursor) Valid() bool {
	if !c.positioned {
		return false
	}
	_, err := c.step(c.st.Position, c.st.Direction)
	return err == nil
}

// step returns the first trading day strictly after (or before) from.
func (c *DateCursor) step(from time.Time, dir Direction) (time.Time, error) {
	d := from
	for {
		d = d.AddDate(0, 0, int(dir))
		if err := c.rng.Check(d); err != nil {
			return time.Time{}, err
		}
		if c.days.IsTradingDay(d) {
			return d, nil
		}
	}
}

// PreviousTradingDay returns the trading day immediately before t.
func PreviousTradingDay(days calendar.TradingDays, t time.Time) (time.Time, error) {
	return adjacentTradingDay(days, t, Backward)
}

// NextTradingDay returns the trading day immediately after t.
func NextTradingDay(days calendar.TradingDays, t time.Time) (time.Time, error) {
	return adjacentTradingDay(days, t, Forward)
}

func adjacentTradingDay(days calendar.TradingDays, t time.Time, dir Direction) (time.Time, error) {
	c := NewDateCursor(days)
	if err := c.SetStartDate(t); err != nil {
		return time.Time{}, err
	}
	c.SetDirection(int(dir))
	return c.Next()
}
