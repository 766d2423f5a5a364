// Package calendar implements the composite US-equities trading calendar:
// weekdays minus observed federal holidays, plus Good Friday, minus the
// federal holidays the exchange trades through, adjusted by ad-hoc
// closures and openings. Dates are civil dates carried as UTC midnight.
package calendar

import (
	"fmt"
	"time"

	"equity-calendar/internal/model"
)

// DateLayout is the layout used for civil dates in config files and logs.
const DateLayout = "2006-01-02"

// Date returns the civil date y-m-d as UTC midnight.
func Date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Truncate drops the clock part of t, keeping the calendar date as read in
// t's own location.
func Truncate(t time.Time) time.Time {
	return Date(t.Year(), t.Month(), t.Day())
}

// SameDay reports whether a and b fall on the same civil date.
func SameDay(a, b time.Time) bool {
	return Truncate(a).Equal(Truncate(b))
}

// ParseDate parses a yyyy-mm-dd civil date.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: date %q: %v", model.ErrInvalidArgument, s, err)
	}
	return t, nil
}

// TradingRange bounds the dates the cursor system is defined over.
type TradingRange struct {
	Lower time.Time
	Upper time.Time
}

// Range is the fixed trading range used throughout.
var Range = TradingRange{
	Lower: Date(2000, time.January, 1),
	Upper: Date(2100, time.December, 31),
}

// Contains reports whether the civil date of t lies within [Lower, Upper].
func (r TradingRange) Contains(t time.Time) bool {
	d := Truncate(t)
	return !d.Before(r.Lower) && !d.After(r.Upper)
}

// Check returns an ErrOutOfRange error when t is outside the range.
func (r TradingRange) Check(t time.Time) error {
	if !r.Contains(t) {
		return fmt.Errorf("%w: %s not in [%s, %s]", model.ErrOutOfRange,
			t.Format(DateLayout), r.Lower.Format(DateLayout), r.Upper.Format(DateLayout))
	}
	return nil
}

func dateKey(t time.Time) int {
	return t.Year()*10000 + int(t.Month())*100 + t.Day()
}
