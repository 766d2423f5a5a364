package model

import (
	"context"
	"time"
)

// ── Storage Port Interfaces ──
// These decouple the time-series engine from the concrete stores
// (SQLite, Redis). The engine never retains history itself.

// CandleReader reads stored candles.
type CandleReader interface {
	// ReadCandles returns candles for symbol+interval with from <= ts <= to,
	// ordered oldest first. A zero to means no upper bound.
	ReadCandles(ctx context.Context, symbol string, iv Interval, from, to time.Time) ([]Candle, error)
}

// CandleWriter persists candles, replacing any candle with the same
// symbol, interval and timestamp.
type CandleWriter interface {
	WriteCandles(ctx context.Context, candles []Candle) error
}

// CandleDeleter removes stored candles.
type CandleDeleter interface {
	// DeleteFrom removes every candle of symbol+interval with ts >= from.
	DeleteFrom(ctx context.Context, symbol string, iv Interval, from time.Time) (int64, error)
}

// TailReader returns the most recent stored candle of a series.
type TailReader interface {
	// Tail returns nil, nil when the series is empty.
	Tail(ctx context.Context, symbol string, iv Interval) (*Candle, error)
}

// CandleStore is everything the converter and merger need from persistence.
type CandleStore interface {
	CandleReader
	CandleWriter
	CandleDeleter
	TailReader
}
