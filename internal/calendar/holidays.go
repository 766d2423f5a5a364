package calendar

import "time"

// Holiday names. Calculators and Rules refer to holidays by these names.
const (
	NewYearsDay         = "new_years_day"
	MartinLutherKingDay = "mlk_day"
	WashingtonsBirthday = "presidents_day"
	MemorialDay         = "memorial_day"
	Juneteenth          = "juneteenth"
	IndependenceDay     = "independence_day"
	LaborDay            = "labor_day"
	ColumbusDay         = "columbus_day"
	VeteransDay         = "veterans_day"
	ThanksgivingDay     = "thanksgiving"
	ChristmasDay        = "christmas"

	GoodFriday = "good_friday"
)

// Holiday is a named observed holiday date.
type Holiday struct {
	Name string
	Date time.Time
}

// Calculator computes the holidays observed in a calendar year.
// Implementations must be pure functions of the year.
type Calculator interface {
	Holidays(year int) []Holiday
}

// USFederal computes observed US federal holidays: a holiday falling on a
// Saturday is observed the Friday before, on a Sunday the Monday after.
// A Saturday New Year's Day is therefore observed on December 31 of the
// previous year and reported for that year.
type USFederal struct{}

// Holidays implements Calculator.
func (USFederal) Holidays(year int) []Holiday {
	hs := make([]Holiday, 0, 12)
	add := func(name string, d time.Time) {
		if d.Year() == year {
			hs = append(hs, Holiday{Name: name, Date: d})
		}
	}

	add(NewYearsDay, observed(Date(year, time.January, 1)))
	add(MartinLutherKingDay, nthWeekday(year, time.January, time.Monday, 3))
	add(WashingtonsBirthday, nthWeekday(year, time.February, time.Monday, 3))
	add(MemorialDay, lastWeekday(year, time.May, time.Monday))
	if year >= 2021 {
		add(Juneteenth, observed(Date(year, time.June, 19)))
	}
	add(IndependenceDay, observed(Date(year, time.July, 4)))
	add(LaborDay, nthWeekday(year, time.September, time.Monday, 1))
	add(ColumbusDay, nthWeekday(year, time.October, time.Monday, 2))
	add(VeteransDay, observed(Date(year, time.November, 11)))
	add(ThanksgivingDay, nthWeekday(year, time.November, time.Thursday, 4))
	add(ChristmasDay, observed(Date(year, time.December, 25)))
	// next year's New Year's Day may be observed on December 31
	add(NewYearsDay, observed(Date(year+1, time.January, 1)))
	return hs
}

// extraRules are holidays computed here rather than by the Calculator.
// Rules.Include refers to them by name.
var extraRules = map[string]func(year int) time.Time{
	GoodFriday: func(year int) time.Time { return Easter(year).AddDate(0, 0, -2) },
}

func observed(d time.Time) time.Time {
	switch d.Weekday() {
	case time.Saturday:
		return d.AddDate(0, 0, -1)
	case time.Sunday:
		return d.AddDate(0, 0, 1)
	}
	return d
}

// nthWeekday returns the n-th (1-based) given weekday of the month.
func nthWeekday(year int, month time.Month, wd time.Weekday, n int) time.Time {
	first := Date(year, month, 1)
	offset := (int(wd) - int(first.Weekday()) + 7) % 7
	return first.AddDate(0, 0, offset+7*(n-1))
}

// lastWeekday returns the last given weekday of the month.
func lastWeekday(year int, month time.Month, wd time.Weekday) time.Time {
	last := Date(year, month+1, 0)
	offset := (int(last.Weekday()) - int(wd) + 7) % 7
	return last.AddDate(0, 0, -offset)
}

// Easter returns Gregorian Easter Sunday (anonymous Gregorian algorithm).
func Easter(year int) time.Time {
	a := year % 19
	b := year / 100
	c := year % 100
	d := b / 4
	e := b % 4
	f := (b + 8) / 25
	g := (b - f + 1) / 3
	h := (19*a + b - d - g + 15) % 30
	i := c / 4
	k := c % 4
	l := (32 + 2*e + 2*i - h - k) % 7
	m := (a + 11*h + 22*l) / 451
	month := (h + l - 7*m + 114) / 31
	day := (h+l-7*m+114)%31 + 1
	return Date(year, time.Month(month), day)
}
