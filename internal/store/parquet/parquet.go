// Package parquet exports candle series to Parquet files.
package parquet

import (
	"fmt"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/shopspring/decimal"

	"equity-calendar/internal/calendar"
	"equity-calendar/internal/model"
)

// Row is the on-disk candle layout. Prices keep their decimal text form.
type Row struct {
	Symbol   string `parquet:"symbol"`
	Interval string `parquet:"interval"`
	Date     string `parquet:"date"`
	TS       int64  `parquet:"ts"` // unix milliseconds
	Open     string `parquet:"open"`
	High     string `parquet:"high"`
	Low      string `parquet:"low"`
	Close    string `parquet:"close"`
	Volume   int64  `parquet:"volume"`
	Provider string `parquet:"provider,optional"`
}

// FromCandle converts a candle to its row.
func FromCandle(c model.Candle) Row {
	return Row{
		Symbol:   c.Symbol,
		Interval: c.Interval.String(),
		Date:     c.TS.Format(calendar.DateLayout),
		TS:       c.TS.UnixMilli(),
		Open:     c.Open.String(),
		High:     c.High.String(),
		Low:      c.Low.String(),
		Close:    c.Close.String(),
		Volume:   c.Volume,
		Provider: c.Provider,
	}
}

// Candle converts a row back.
func (r Row) Candle() (model.Candle, error) {
	iv, err := model.ParseInterval(r.Interval)
	if err != nil {
		return model.Candle{}, err
	}
	c := model.Candle{
		Symbol:   r.Symbol,
		Interval: iv,
		TS:       time.UnixMilli(r.TS).UTC(),
		Volume:   r.Volume,
		Provider: r.Provider,
	}
	for _, f := range []struct {
		dst *decimal.Decimal
		src string
	}{{&c.Open, r.Open}, {&c.High, r.High}, {&c.Low, r.Low}, {&c.Close, r.Close}} {
		if *f.dst, err = decimal.NewFromString(f.src); err != nil {
			return model.Candle{}, fmt.Errorf("%w: parquet price %q", model.ErrInvalidArgument, f.src)
		}
	}
	return c, nil
}

// Export writes candles to path.
func Export(path string, candles []model.Candle) error {
	rows := make([]Row, len(candles))
	for i, c := range candles {
		rows[i] = FromCandle(c)
	}
	if err := parquet.WriteFile(path, rows); err != nil {
		return fmt.Errorf("parquet export %s: %w", path, err)
	}
	return nil
}

// Import reads candles written by Export.
func Import(path string) ([]model.Candle, error) {
	rows, err := parquet.ReadFile[Row](path)
	if err != nil {
		return nil, fmt.Errorf("parquet import %s: %w", path, err)
	}
	out := make([]model.Candle, 0, len(rows))
	for _, r := range rows {
		c, err := r.Candle()
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}
