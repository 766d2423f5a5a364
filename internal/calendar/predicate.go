package calendar

import (
	"log/slog"
	"sync"
	"time"
)

// TradingDays reports whether a calendar date is a trading day.
type TradingDays interface {
	IsTradingDay(t time.Time) bool
}

// Predicate answers trading-day queries for one Rules composition. The
// holiday set is held for a single calendar year and rebuilt whenever a
// date from another year is queried.
type Predicate struct {
	mu    sync.Mutex
	rules Rules
	c     *compiled
	calc  Calculator

	year   int
	closed map[int]string // dateKey -> holiday name
	early  map[int]string // dateKey -> early-close rule

	// OnRebuild is called after the holiday set is rebuilt (optional).
	OnRebuild func(year int)
}

// NewPredicate compiles rules against a holiday calculator.
func NewPredicate(rules Rules, calc Calculator) (*Predicate, error) {
	c, err := rules.compile()
	if err != nil {
		return nil, err
	}
	if calc == nil {
		calc = USFederal{}
	}
	return &Predicate{rules: rules, c: c, calc: calc}, nil
}

// NewUSEquities returns the predicate for the composite US-equities calendar.
func NewUSEquities() *Predicate {
	p, err := NewPredicate(USEquities(), USFederal{})
	if err != nil {
		panic("calendar: built-in rules invalid: " + err.Error())
	}
	return p
}

// Rules returns the composition the predicate was built from.
func (p *Predicate) Rules() Rules { return p.rules }

// IsTradingDay reports whether the civil date of t is a trading day.
func (p *Predicate) IsTradingDay(t time.Time) bool {
	d := Truncate(t)
	if !p.c.weekdays[d.Weekday()] {
		return false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ensureYear(d.Year())
	_, closed := p.closed[dateKey(d)]
	return !closed
}

// Holiday returns the name of the holiday closing the exchange on t.
func (p *Predicate) Holiday(t time.Time) (string, bool) {
	d := Truncate(t)
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ensureYear(d.Year())
	name, ok := p.closed[dateKey(d)]
	return name, ok
}

// EarlyClose returns the early-close rule in effect on t, if any.
func (p *Predicate) EarlyClose(t time.Time) (string, bool) {
	d := Truncate(t)
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ensureYear(d.Year())
	name, ok := p.early[dateKey(d)]
	return name, ok
}

// ensureYear rebuilds the holiday set when year differs from the cached one.
// Caller holds p.mu.
func (p *Predicate) ensureYear(year int) {
	if p.closed != nil && p.year == year {
		return
	}
	p.rebuild(year)
	if p.OnRebuild != nil {
		p.OnRebuild(year)
	}
}

func (p *Predicate) rebuild(year int) {
	c := p.c
	closed := make(map[int]string, 16)

	for _, h := range p.calc.Holidays(year) {
		if c.exclude[h.Name] || c.since[h.Name] > year {
			continue
		}
		if c.skipFriNY && h.Name == NewYearsDay && h.Date.Month() == time.December {
			continue
		}
		closed[dateKey(h.Date)] = h.Name
	}
	for name := range c.include {
		if c.since[name] > year {
			continue
		}
		closed[dateKey(extraRules[name](year))] = name
	}
	for k := range c.closures {
		if k/10000 == year {
			closed[k] = "closure"
		}
	}
	for k := range c.openings {
		delete(closed, k)
	}

	early := make(map[int]string, len(c.earlyCloses))
	open := func(d time.Time) bool {
		_, shut := closed[dateKey(d)]
		return c.weekdays[d.Weekday()] && !shut
	}
	for name := range c.earlyCloses {
		var d time.Time
		switch name {
		case IndependenceEve:
			d = Date(year, time.July, 3)
			if wd := d.AddDate(0, 0, 1).Weekday(); wd < time.Tuesday || wd > time.Friday {
				continue
			}
		case BlackFriday:
			d = nthWeekday(year, time.November, time.Thursday, 4).AddDate(0, 0, 1)
		case ChristmasEve:
			d = Date(year, time.December, 24)
		}
		if open(d) {
			early[dateKey(d)] = name
		}
	}

	p.year = year
	p.closed = closed
	p.early = early
	slog.Debug("calendar: holiday set rebuilt",
		"rules", p.rules.Name, "year", year, "holidays", len(closed), "early_closes", len(early))
}
