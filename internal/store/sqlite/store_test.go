package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"equity-calendar/internal/aggregate"
	"equity-calendar/internal/calendar"
	"equity-calendar/internal/model"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	s, err := New(Config{DBPath: filepath.Join(t.TempDir(), "candles.db")})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func daily(symbol string, day time.Time, close string) model.Candle {
	c := decimal.RequireFromString(close)
	return model.Candle{
		Symbol: symbol, Interval: model.Daily, TS: day,
		Open: c, High: c.Add(decimal.RequireFromString("0.25")), Low: c.Sub(decimal.RequireFromString("0.25")), Close: c,
		Volume: 1000, Provider: "test",
	}
}

func TestWriteReadRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openTemp(t)

	in := []model.Candle{
		daily("LIN", calendar.Date(2020, time.May, 13), "190.10"),
		daily("LIN", calendar.Date(2020, time.May, 11), "188.55"),
		daily("LIN", calendar.Date(2020, time.May, 12), "189.0001"),
		daily("AAPL", calendar.Date(2020, time.May, 12), "311.41"),
	}
	if err := s.WriteCandles(ctx, in); err != nil {
		t.Fatal(err)
	}

	got, err := s.ReadCandles(ctx, "LIN", model.Daily, calendar.Date(2020, time.May, 1), time.Time{})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d candles, want 3", len(got))
	}
	for i := 1; i < len(got); i++ {
		if !got[i].TS.After(got[i-1].TS) {
			t.Errorf("not ordered at %d", i)
		}
	}
	if !got[1].Close.Equal(decimal.RequireFromString("189.0001")) {
		t.Errorf("decimal precision lost: %s", got[1].Close)
	}
	if got[0].Interval != model.Daily || got[0].Provider != "test" || got[0].TS.Location() != time.UTC {
		t.Errorf("fields: %+v", got[0])
	}

	bounded, err := s.ReadCandles(ctx, "LIN", model.Daily, calendar.Date(2020, time.May, 12), calendar.Date(2020, time.May, 12))
	if err != nil {
		t.Fatal(err)
	}
	if len(bounded) != 1 {
		t.Errorf("bounded read: got %d, want 1", len(bounded))
	}

	syms, err := s.Symbols(ctx, model.Daily)
	if err != nil {
		t.Fatal(err)
	}
	if len(syms) != 2 || syms[0] != "AAPL" || syms[1] != "LIN" {
		t.Errorf("symbols: %v", syms)
	}
}

func TestUpsertAndTail(t *testing.T) {
	ctx := context.Background()
	s := openTemp(t)

	tail, err := s.Tail(ctx, "LIN", model.Daily)
	if err != nil || tail != nil {
		t.Fatalf("empty series tail: %v, %v", tail, err)
	}

	day := calendar.Date(2020, time.May, 13)
	if err := s.WriteCandles(ctx, []model.Candle{daily("LIN", calendar.Date(2020, time.May, 12), "1"), daily("LIN", day, "2")}); err != nil {
		t.Fatal(err)
	}
	if err := s.WriteCandles(ctx, []model.Candle{daily("LIN", day, "3")}); err != nil {
		t.Fatal(err)
	}

	tail, err = s.Tail(ctx, "LIN", model.Daily)
	if err != nil {
		t.Fatal(err)
	}
	if tail == nil || !tail.TS.Equal(day) || !tail.Close.Equal(decimal.NewFromInt(3)) {
		t.Errorf("tail: %+v", tail)
	}
	all, _ := s.ReadCandles(ctx, "LIN", model.Daily, time.Time{}, time.Time{})
	if len(all) != 2 {
		t.Errorf("upsert created duplicates: %d rows", len(all))
	}
}

func TestDeleteAndReplaceFrom(t *testing.T) {
	ctx := context.Background()
	s := openTemp(t)

	var in []model.Candle
	for d := 11; d <= 15; d++ {
		in = append(in, daily("LIN", calendar.Date(2020, time.May, d), "1"))
	}
	if err := s.WriteCandles(ctx, in); err != nil {
		t.Fatal(err)
	}

	n, err := s.DeleteFrom(ctx, "LIN", model.Daily, calendar.Date(2020, time.May, 14))
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("deleted %d, want 2", n)
	}

	var commits int
	s.OnCommit = func(int, time.Duration) { commits++ }
	repl := []model.Candle{daily("LIN", calendar.Date(2020, time.May, 12), "9")}
	if err := s.ReplaceFrom(ctx, "LIN", model.Daily, calendar.Date(2020, time.May, 12), repl); err != nil {
		t.Fatal(err)
	}
	all, _ := s.ReadCandles(ctx, "LIN", model.Daily, time.Time{}, time.Time{})
	if len(all) != 2 || !all[1].Close.Equal(decimal.NewFromInt(9)) {
		t.Errorf("after replace: %+v", all)
	}
	if commits != 1 {
		t.Errorf("commits: %d", commits)
	}
}

func TestConverterOverStore(t *testing.T) {
	ctx := context.Background()
	s := openTemp(t)

	days := calendar.NewUSEquities()
	var in []model.Candle
	for d := calendar.Date(2020, time.January, 1); !d.After(calendar.Date(2020, time.June, 30)); d = d.AddDate(0, 0, 1) {
		if days.IsTradingDay(d) {
			in = append(in, daily("LIN", d, "10"))
		}
	}
	if err := s.WriteCandles(ctx, in); err != nil {
		t.Fatal(err)
	}

	conv := aggregate.NewConverter(s, calendar.NewUSEquities(), nil)
	for i := 0; i < 2; i++ {
		if _, err := conv.Run(ctx, "LIN", model.Monthly, time.Time{}, time.Time{}); err != nil {
			t.Fatal(err)
		}
	}
	monthly, err := s.ReadCandles(ctx, "LIN", model.Monthly, time.Time{}, time.Time{})
	if err != nil {
		t.Fatal(err)
	}
	if len(monthly) != 6 {
		t.Errorf("monthly candles: got %d, want 6", len(monthly))
	}
	if !monthly[0].TS.Equal(calendar.Date(2020, time.January, 2)) {
		t.Errorf("first month starts %s", monthly[0].TS)
	}
}
