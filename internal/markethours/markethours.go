// Package markethours answers session questions for the US equities
// exchange: whether it is open at an instant, when today's session ends and
// when the next one starts. Trading days and early closes come from the
// calendar package.
package markethours

import (
	"fmt"
	"time"
	_ "time/tzdata" // embedded zone database for America/New_York

	"equity-calendar/internal/calendar"
)

// NewYork is the exchange location. It falls back to a fixed EST zone if
// the zone database cannot be loaded.
var NewYork = loadNewYork()

func loadNewYork() *time.Location {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		return time.FixedZone("EST", -5*3600)
	}
	return loc
}

// Session hours in exchange local time.
const (
	OpenHour    = 9
	OpenMinute  = 30
	CloseHour   = 16
	CloseMinute = 0

	EarlyCloseHour = 13
)

// Calendar is the subset of calendar.Predicate the session clock needs.
type Calendar interface {
	calendar.TradingDays
	EarlyClose(t time.Time) (string, bool)
}

// Hours computes session boundaries over a trading calendar.
type Hours struct {
	days Calendar
	loc  *time.Location
}

// New creates Hours in the NewYork location.
func New(days Calendar) *Hours {
	return &Hours{days: days, loc: NewYork}
}

// Location returns the exchange location.
func (h *Hours) Location() *time.Location { return h.loc }

// Today returns the exchange-local civil date of now.
func (h *Hours) Today(now time.Time) time.Time {
	return calendar.Truncate(now.In(h.loc))
}

// IsTradingDay reports whether the civil date day has a session.
func (h *Hours) IsTradingDay(day time.Time) bool {
	return h.days.IsTradingDay(calendar.Truncate(day))
}

// Open returns the session open of the civil date day.
func (h *Hours) Open(day time.Time) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), OpenHour, OpenMinute, 0, 0, h.loc)
}

// Close returns the session close of the civil date day, 13:00 on early-close days.
func (h *Hours) Close(day time.Time) time.Time {
	if _, early := h.days.EarlyClose(calendar.Truncate(day)); early {
		return time.Date(day.Year(), day.Month(), day.Day(), EarlyCloseHour, 0, 0, 0, h.loc)
	}
	return time.Date(day.Year(), day.Month(), day.Day(), CloseHour, CloseMinute, 0, 0, h.loc)
}

// IsOpen reports whether t falls inside a session.
func (h *Hours) IsOpen(t time.Time) bool {
	day := h.Today(t)
	if !h.days.IsTradingDay(day) {
		return false
	}
	return !t.Before(h.Open(day)) && t.Before(h.Close(day))
}

// HasEnded reports whether the session of the civil date day has closed by
// now. Days without a session never end.
func (h *Hours) HasEnded(day, now time.Time) bool {
	day = calendar.Truncate(day)
	if !h.days.IsTradingDay(day) {
		return false
	}
	return !now.Before(h.Close(day))
}

// NextOpen returns the next session open strictly after t, or today's open
// if t is before it.
func (h *Hours) NextOpen(t time.Time) time.Time {
	day := h.Today(t)
	if h.days.IsTradingDay(day) && t.Before(h.Open(day)) {
		return h.Open(day)
	}
	// Longest run of closed days is well under a month.
	for i := 1; i <= 31; i++ {
		d := day.AddDate(0, 0, i)
		if h.days.IsTradingDay(d) {
			return h.Open(d)
		}
	}
	return h.Open(day.AddDate(0, 0, 1))
}

// TimeUntilClose returns the time left in today's session, 0 when closed.
func (h *Hours) TimeUntilClose(t time.Time) time.Duration {
	if !h.IsOpen(t) {
		return 0
	}
	return h.Close(h.Today(t)).Sub(t)
}

// StatusString returns a human-readable market status.
func (h *Hours) StatusString(t time.Time) string {
	if h.IsOpen(t) {
		return fmt.Sprintf("Market Open, closes in %s", fmtDur(h.TimeUntilClose(t)))
	}
	next := h.NextOpen(t)
	return fmt.Sprintf("Market Closed, opens %s %s (%s)",
		next.Weekday().String()[:3], next.Format("2006-01-02 15:04"), fmtDur(next.Sub(t)))
}

func fmtDur(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	if h > 0 {
		return fmt.Sprintf("%dh%dm", h, m)
	}
	return fmt.Sprintf("%dm", m)
}
