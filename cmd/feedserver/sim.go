package main

import (
	"log/slog"
	"math/rand"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"equity-calendar/internal/calendar"
	"equity-calendar/internal/feed"
	"equity-calendar/internal/markethours"
	"equity-calendar/internal/merge"
	"equity-calendar/internal/model"
)

const simProvider = "feedserver"

// instrument holds the simulated session of one symbol.
type instrument struct {
	Symbol string
	Price  decimal.Decimal

	day    time.Time
	candle model.Candle
	closed bool // closing price sent for day
}

// simulator walks prices during the session and emits one closing price per
// symbol once the session has ended.
type simulator struct {
	hours       *markethours.Hours
	instruments []*instrument
	rng         *rand.Rand
	alwaysOpen  bool
}

func newSimulator(hours *markethours.Hours, instruments []*instrument, seed int64) *simulator {
	return &simulator{hours: hours, instruments: instruments, rng: rand.New(rand.NewSource(seed))}
}

// walkPrice applies a tiny random walk (±0.1%) rounded to cents.
func (s *simulator) walkPrice(price decimal.Decimal) decimal.Decimal {
	pct := (s.rng.Float64()*0.2 - 0.1) / 100.0
	next := price.Mul(decimal.NewFromFloat(1 + pct)).Round(2)
	if next.LessThan(decimal.New(1, -2)) {
		next = decimal.New(1, -2)
	}
	return next
}

// step advances every instrument to now and returns the points to send.
func (s *simulator) step(now time.Time) []feed.Point {
	today := s.hours.Today(now)
	if !s.hours.IsTradingDay(today) {
		return nil
	}
	open := s.alwaysOpen || s.hours.IsOpen(now)
	ended := !s.alwaysOpen && s.hours.HasEnded(today, now)

	var out []feed.Point
	for _, in := range s.instruments {
		if !in.day.Equal(today) {
			in.day = today
			in.closed = false
			in.candle = model.Candle{}
		}
		switch {
		case open:
			in.Price = s.walkPrice(in.Price)
			in.update(today, in.Price, int64(s.rng.Intn(100)+1))
			out = append(out, feed.Point{Kind: merge.Quote, Candle: in.candle, At: now})
		case ended && !in.closed && in.candle.Symbol != "":
			in.closed = true
			out = append(out, feed.Point{Kind: merge.ClosingPrice, Candle: in.candle})
		}
	}
	return out
}

func (in *instrument) update(day time.Time, px decimal.Decimal, qty int64) {
	if in.candle.Symbol == "" {
		in.candle = model.Candle{
			Symbol: in.Symbol, Interval: model.Daily, TS: day,
			Open: px, High: px, Low: px, Provider: simProvider,
		}
	}
	if px.GreaterThan(in.candle.High) {
		in.candle.High = px
	}
	if px.LessThan(in.candle.Low) {
		in.candle.Low = px
	}
	in.candle.Close = px
	in.candle.Volume += qty
}

// parseInstruments parses "SYMBOL:PRICE,..." pairs. A missing price starts at 100.
func parseInstruments(s string) []*instrument {
	var out []*instrument
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		sym, px, _ := strings.Cut(part, ":")
		price := decimal.NewFromInt(100)
		if px != "" {
			p, err := decimal.NewFromString(strings.TrimSpace(px))
			if err != nil || !p.IsPositive() {
				slog.Warn("feedserver: skipping invalid instrument", "spec", part)
				continue
			}
			price = p
		}
		out = append(out, &instrument{Symbol: strings.ToUpper(strings.TrimSpace(sym)), Price: price})
	}
	return out
}

func dayString(t time.Time) string { return t.Format(calendar.DateLayout) }
