// cmd/tradingdays walks the trading calendar from the command line.
//
// Usage:
//
//	tradingdays -from 2020-05-15 -n 5                  # next five trading days
//	tradingdays -from 2020-05-15 -n 5 -direction -1    # previous five
//	tradingdays -from 2020-05-15 -interval 1M -n 3     # next three month starts
//	tradingdays -holidays 2021                         # closures and early closes
//	tradingdays -status                                # session status now
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"equity-calendar/internal/calendar"
	"equity-calendar/internal/cursor"
	"equity-calendar/internal/logger"
	"equity-calendar/internal/markethours"
	"equity-calendar/internal/model"
)

func main() {
	fromFlag := flag.String("from", "", "Start date, yyyy-mm-dd (default: today in New York)")
	n := flag.Int("n", 10, "Number of steps")
	direction := flag.String("direction", "1", "Positive walks forward, anything else backward")
	intervalFlag := flag.String("interval", "1d", "1d walks trading days; 1w, 1M, 1Q or 1y walk period starts")
	rulesPath := flag.String("rules", "", "YAML calendar rules (default: built-in US equities)")
	holidayYear := flag.Int("holidays", 0, "List the closures and early closes of a year")
	status := flag.Bool("status", false, "Print the session status")
	flag.Parse()

	logger.Init("tradingdays", slog.LevelWarn, "text")

	days, err := loadPredicate(*rulesPath)
	if err != nil {
		fatal(err)
	}
	hours := markethours.New(days)

	switch {
	case *status:
		fmt.Println(hours.StatusString(time.Now()))
	case *holidayYear != 0:
		err = listHolidays(os.Stdout, days, *holidayYear)
	default:
		from := hours.Today(time.Now())
		if *fromFlag != "" {
			if from, err = calendar.ParseDate(*fromFlag); err != nil {
				fatal(err)
			}
		}
		var iv model.Interval
		if iv, err = model.ParseInterval(*intervalFlag); err != nil {
			fatal(err)
		}
		var c cursor.Cursor
		if c, err = newCursor(days, iv, *direction); err != nil {
			fatal(err)
		}
		err = walk(os.Stdout, c, from, *n)
	}
	if err != nil {
		fatal(err)
	}
}

func loadPredicate(path string) (*calendar.Predicate, error) {
	if path == "" {
		return calendar.NewUSEquities(), nil
	}
	rules, err := calendar.LoadRules(path)
	if err != nil {
		return nil, err
	}
	return calendar.NewPredicate(rules, nil)
}

func newCursor(days calendar.TradingDays, iv model.Interval, direction string) (cursor.Cursor, error) {
	if iv == model.Daily {
		c := cursor.NewDateCursor(days)
		return c, c.SetDirectionValue(direction)
	}
	c, err := cursor.NewPeriodCursor(days, iv)
	if err != nil {
		return nil, err
	}
	return c, c.SetDirectionValue(direction)
}

// walk prints the n steps of c after from. Running into the calendar
// bounds ends the walk early.
func walk(w io.Writer, c cursor.Cursor, from time.Time, n int) error {
	if err := c.SetStartDate(from); err != nil {
		return err
	}
	for i := 0; i < n; i++ {
		d, err := c.Next()
		if errors.Is(err, model.ErrOutOfRange) {
			fmt.Fprintf(w, "-- %v\n", err)
			return nil
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%s %s\n", d.Format(calendar.DateLayout), d.Weekday().String()[:3])
	}
	return nil
}

func listHolidays(w io.Writer, days *calendar.Predicate, year int) error {
	if err := calendar.Range.Check(calendar.Date(year, time.January, 1)); err != nil {
		return err
	}
	for d := calendar.Date(year, time.January, 1); d.Year() == year; d = d.AddDate(0, 0, 1) {
		if name, ok := days.Holiday(d); ok {
			fmt.Fprintf(w, "%s %s closed (%s)\n", d.Format(calendar.DateLayout), d.Weekday().String()[:3], name)
			continue
		}
		if name, ok := days.EarlyClose(d); ok {
			fmt.Fprintf(w, "%s %s early close (%s)\n", d.Format(calendar.DateLayout), d.Weekday().String()[:3], name)
		}
	}
	return nil
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, "tradingdays:", err)
	os.Exit(1)
}
