package model

import (
	"fmt"
	"strings"
)

// Interval is the closed set of candle timeframes.
type Interval int

const (
	Daily Interval = iota + 1
	Weekly
	Monthly
	Quarterly
	Yearly
)

// Length is the canonical length of an interval, used for equality and ordering.
type Length struct {
	Days   int
	Months int
}

var lengths = map[Interval]Length{
	Daily:     {Days: 1},
	Weekly:    {Days: 7},
	Monthly:   {Months: 1},
	Quarterly: {Months: 3},
	Yearly:    {Months: 12},
}

// Intervals lists every interval, shortest first.
var Intervals = []Interval{Daily, Weekly, Monthly, Quarterly, Yearly}

// Superlative lists the intervals a daily series can be converted to.
var Superlative = []Interval{Weekly, Monthly, Quarterly, Yearly}

// Length returns the canonical length. Unknown intervals have a zero length.
func (iv Interval) Length() Length {
	return lengths[iv]
}

// Valid reports whether iv is one of the known intervals.
func (iv Interval) Valid() bool {
	_, ok := lengths[iv]
	return ok
}

// Equal reports whether both intervals have exactly the same canonical length.
func (iv Interval) Equal(o Interval) bool {
	return iv.Valid() && o.Valid() && iv.Length() == o.Length()
}

// Less orders intervals by canonical length.
func (iv Interval) Less(o Interval) bool {
	a, b := iv.Length(), o.Length()
	return a.Months*31+a.Days < b.Months*31+b.Days
}

func (iv Interval) String() string {
	switch iv {
	case Daily:
		return "1d"
	case Weekly:
		return "1w"
	case Monthly:
		return "1M"
	case Quarterly:
		return "1Q"
	case Yearly:
		return "1y"
	default:
		return "invalid"
	}
}

// ParseInterval accepts the short form ("1d", "1w", "1M", "1Q", "1y") or the
// long name ("daily", "weekly", ...). Long names are case-insensitive.
func ParseInterval(s string) (Interval, error) {
	s = strings.TrimSpace(s)
	switch s {
	case "1d":
		return Daily, nil
	case "1w":
		return Weekly, nil
	case "1M":
		return Monthly, nil
	case "1Q":
		return Quarterly, nil
	case "1y":
		return Yearly, nil
	}
	switch strings.ToLower(s) {
	case "d", "day", "daily":
		return Daily, nil
	case "w", "week", "weekly":
		return Weekly, nil
	case "m", "month", "monthly":
		return Monthly, nil
	case "q", "quarter", "quarterly":
		return Quarterly, nil
	case "y", "year", "yearly":
		return Yearly, nil
	}
	return 0, fmt.Errorf("%w: unknown interval %q", ErrInvalidArgument, s)
}

// MarshalText encodes the short form.
func (iv Interval) MarshalText() ([]byte, error) {
	if !iv.Valid() {
		return nil, fmt.Errorf("%w: interval %d", ErrInvalidArgument, int(iv))
	}
	return []byte(iv.String()), nil
}

// UnmarshalText accepts anything ParseInterval accepts.
func (iv *Interval) UnmarshalText(b []byte) error {
	v, err := ParseInterval(string(b))
	if err != nil {
		return err
	}
	*iv = v
	return nil
}
