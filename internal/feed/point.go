package feed

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"equity-calendar/internal/calendar"
	"equity-calendar/internal/markethours"
	"equity-calendar/internal/merge"
	"equity-calendar/internal/model"
)

// Message is the JSON wire form of one price point:
//
//	{"kind":"quote","symbol":"LIN","interval":"1d","ts":"2020-05-13T14:05:00Z",
//	 "open":"190.1","high":"191","low":"189.5","close":"190.7","volume":120300}
//
// ts is RFC3339 or a yyyy-mm-dd date. Timestamps are mapped to their
// New York trading date.
type Message struct {
	Kind     string          `json:"kind"`
	Symbol   string          `json:"symbol"`
	Interval string          `json:"interval,omitempty"`
	TS       string          `json:"ts"`
	Open     decimal.Decimal `json:"open"`
	High     decimal.Decimal `json:"high"`
	Low      decimal.Decimal `json:"low"`
	Close    decimal.Decimal `json:"close"`
	Volume   int64           `json:"volume"`
	Provider string          `json:"provider,omitempty"`
}

// Point is a decoded message.
type Point struct {
	Kind   merge.PointKind
	Candle model.Candle
	// At is the observation time, the message timestamp or the date's midnight.
	At time.Time
}

// Decode parses and validates one wire message.
func Decode(raw []byte) (Point, error) {
	var m Message
	if err := json.Unmarshal(raw, &m); err != nil {
		return Point{}, fmt.Errorf("%w: feed message: %v", model.ErrInvalidArgument, err)
	}
	return m.Point()
}

// Point validates m and converts it.
func (m Message) Point() (Point, error) {
	var p Point
	switch strings.ToLower(m.Kind) {
	case "quote", "":
		p.Kind = merge.Quote
	case "close", "closing_price":
		p.Kind = merge.ClosingPrice
	default:
		return Point{}, fmt.Errorf("%w: feed message kind %q", model.ErrInvalidArgument, m.Kind)
	}
	if m.Symbol == "" {
		return Point{}, fmt.Errorf("%w: feed message without symbol", model.ErrInvalidArgument)
	}

	iv := model.Daily
	if m.Interval != "" {
		var err error
		if iv, err = model.ParseInterval(m.Interval); err != nil {
			return Point{}, err
		}
	}

	at, date, err := parseTS(m.TS)
	if err != nil {
		return Point{}, err
	}

	p.At = at
	p.Candle = model.Candle{
		Symbol:   strings.ToUpper(m.Symbol),
		Interval: iv,
		TS:       date,
		Open:     m.Open,
		High:     m.High,
		Low:      m.Low,
		Close:    m.Close,
		Volume:   m.Volume,
		Provider: m.Provider,
	}
	if !p.Candle.Consistent() {
		return Point{}, fmt.Errorf("%w: inconsistent OHLC for %s", model.ErrInvalidArgument, p.Candle.Key())
	}
	return p, nil
}

func parseTS(s string) (at, date time.Time, err error) {
	if t, perr := time.Parse(time.RFC3339, s); perr == nil {
		return t, calendar.Truncate(t.In(markethours.NewYork)), nil
	}
	d, err := calendar.ParseDate(s)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return d, d, nil
}

// Encode returns the wire form of a point.
func Encode(p Point) ([]byte, error) {
	ts := p.Candle.TS.Format(calendar.DateLayout)
	if !p.At.IsZero() && !p.At.Equal(p.Candle.TS) {
		ts = p.At.Format(time.RFC3339)
	}
	return json.Marshal(Message{
		Kind:     p.Kind.String(),
		Symbol:   p.Candle.Symbol,
		Interval: p.Candle.Interval.String(),
		TS:       ts,
		Open:     p.Candle.Open,
		High:     p.Candle.High,
		Low:      p.Candle.Low,
		Close:    p.Candle.Close,
		Volume:   p.Candle.Volume,
		Provider: p.Candle.Provider,
	})
}
