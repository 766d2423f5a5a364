package model

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// Candle is one OHLCV record for a fixed time bucket of one instrument.
// TS is the bucket start: the trading date for daily candles, the first
// trading day of the period for converted candles.
type Candle struct {
	Symbol   string          `json:"symbol"`
	Interval Interval        `json:"interval"`
	TS       time.Time       `json:"ts"`
	Open     decimal.Decimal `json:"open"`
	High     decimal.Decimal `json:"high"`
	Low      decimal.Decimal `json:"low"`
	Close    decimal.Decimal `json:"close"`
	Volume   int64           `json:"volume"`
	Provider string          `json:"provider,omitempty"`
}

// Key returns "symbol:interval", the identity of the series the candle belongs to.
func (c *Candle) Key() string {
	return c.Symbol + ":" + c.Interval.String()
}

// SameSeries reports whether both candles belong to the same instrument and interval.
func (c *Candle) SameSeries(o *Candle) bool {
	return c.Symbol == o.Symbol && c.Interval.Equal(o.Interval)
}

// Consistent reports whether low <= {open, close} <= high.
// Only upstream data can violate it.
func (c *Candle) Consistent() bool {
	if c.Low.GreaterThan(c.High) {
		return false
	}
	for _, p := range []decimal.Decimal{c.Open, c.Close} {
		if p.LessThan(c.Low) || p.GreaterThan(c.High) {
			return false
		}
	}
	return true
}

// JSON returns the JSON-encoded candle (ignoring errors).
func (c *Candle) JSON() []byte {
	b, _ := json.Marshal(c)
	return b
}
