package merge

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"equity-calendar/internal/calendar"
	"equity-calendar/internal/clock"
	"equity-calendar/internal/markethours"
	"equity-calendar/internal/model"
)

type memStore struct {
	rows map[string]map[int64]model.Candle
	fail error
	puts int

	putErr        error
	invalidations int
}

func newMemStore(candles ...model.Candle) *memStore {
	m := &memStore{rows: make(map[string]map[int64]model.Candle)}
	_ = m.WriteCandles(context.Background(), candles)
	return m
}

func (m *memStore) WriteCandles(_ context.Context, candles []model.Candle) error {
	for _, c := range candles {
		k := c.Key()
		if m.rows[k] == nil {
			m.rows[k] = make(map[int64]model.Candle)
		}
		m.rows[k][c.TS.Unix()] = c
	}
	return nil
}

func (m *memStore) series(symbol string, iv model.Interval) []model.Candle {
	var out []model.Candle
	for _, c := range m.rows[symbol+":"+iv.String()] {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TS.Before(out[j].TS) })
	return out
}

func (m *memStore) Tail(_ context.Context, symbol string, iv model.Interval) (*model.Candle, error) {
	if m.fail != nil {
		return nil, m.fail
	}
	s := m.series(symbol, iv)
	if len(s) == 0 {
		return nil, nil
	}
	return &s[len(s)-1], nil
}

func (m *memStore) PutTail(ctx context.Context, c model.Candle) error {
	m.puts++
	if m.putErr != nil {
		return m.putErr
	}
	return m.WriteCandles(ctx, []model.Candle{c})
}

func (m *memStore) Invalidate(_ context.Context, symbol string, iv model.Interval) error {
	m.invalidations++
	delete(m.rows, symbol+":"+iv.String())
	return nil
}

func candle(iv model.Interval, day time.Time, px int64) model.Candle {
	p := decimal.NewFromInt(px)
	return model.Candle{
		Symbol: "LIN", Interval: iv, TS: day,
		Open: p, High: p.Add(decimal.NewFromInt(1)), Low: p.Sub(decimal.NewFromInt(1)), Close: p,
		Volume: px * 10,
	}
}

func d(y int, m time.Month, day int) time.Time { return calendar.Date(y, m, day) }

func ny(y int, m time.Month, day, hh, mm int) time.Time {
	return time.Date(y, m, day, hh, mm, 0, 0, markethours.NewYork)
}

func newMerger(now time.Time, tails model.TailReader) *Merger {
	days := calendar.NewUSEquities()
	return New(days, markethours.New(days), clock.Fixed{T: now},
		tails, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestMergeQuoteOverwrite(t *testing.T) {
	ctx := context.Background()
	store := newMemStore(
		candle(model.Daily, d(2020, 5, 12), 100),
		candle(model.Daily, d(2020, 5, 13), 101),
	)
	m := newMerger(ny(2020, 5, 13, 12, 0), store)

	point := candle(model.Daily, d(2020, 5, 13), 105)
	o, err := m.MergeQuote(ctx, point, nil)
	if err != nil {
		t.Fatal(err)
	}
	if o.Kind != Overwritten {
		t.Fatalf("got %s, want overwritten (%s)", o.Kind, o.Reason)
	}
	if !o.Candle.TS.Equal(d(2020, 5, 13)) || !o.Candle.Close.Equal(decimal.NewFromInt(105)) {
		t.Errorf("new tail: %+v", o.Candle)
	}
	if o.Prev == nil || !o.Prev.Close.Equal(decimal.NewFromInt(101)) {
		t.Errorf("prev tail: %+v", o.Prev)
	}

	if err := Apply(ctx, store, o); err != nil {
		t.Fatal(err)
	}
	s := store.series("LIN", model.Daily)
	if len(s) != 2 {
		t.Fatalf("series length changed to %d", len(s))
	}
	if !s[1].Close.Equal(decimal.NewFromInt(105)) || s[1].Volume != 1050 {
		t.Errorf("tail not replaced: %+v", s[1])
	}
}

func TestMergeQuoteAppend(t *testing.T) {
	tests := []struct {
		name string
		tail time.Time
		now  time.Time
	}{
		{"next day", d(2020, 5, 12), ny(2020, 5, 13, 10, 0)},
		{"over weekend", d(2020, 5, 15), ny(2020, 5, 18, 10, 0)},
		{"over memorial day", d(2020, 5, 22), ny(2020, 5, 26, 10, 0)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			first := candle(model.Daily, tt.tail.AddDate(0, 0, -7), 90)
			tail := candle(model.Daily, tt.tail, 100)
			store := newMemStore(first, tail)

			m := newMerger(tt.now, store)
			today := calendar.Truncate(tt.now)
			o, err := m.MergeQuote(ctx, candle(model.Daily, today, 110), &tail)
			if err != nil {
				t.Fatal(err)
			}
			if o.Kind != Appended {
				t.Fatalf("got %s, want appended (%s)", o.Kind, o.Reason)
			}
			if err := Apply(ctx, store, o); err != nil {
				t.Fatal(err)
			}
			s := store.series("LIN", model.Daily)
			if len(s) != 3 {
				t.Fatalf("series length %d, want 3", len(s))
			}
			if !s[0].Close.Equal(first.Close) || !s[1].Close.Equal(tail.Close) {
				t.Error("prior records modified")
			}
			if !s[2].TS.Equal(today) {
				t.Errorf("appended at %s", s[2].TS)
			}
		})
	}
}

func TestMergeQuoteGap(t *testing.T) {
	ctx := context.Background()
	tail := candle(model.Daily, d(2020, 5, 11), 100)
	store := newMemStore(tail)
	m := newMerger(ny(2020, 5, 13, 10, 0), store)

	o, err := m.MergeQuote(ctx, candle(model.Daily, d(2020, 5, 13), 110), nil)
	if err != nil {
		t.Fatal(err)
	}
	if o.Kind != Gap {
		t.Fatalf("got %s, want gap", o.Kind)
	}
	if o.Changed() {
		t.Error("gap reported as changed")
	}
	if err := Apply(ctx, store, o); err != nil {
		t.Fatal(err)
	}
	if s := store.series("LIN", model.Daily); len(s) != 1 || !s[0].TS.Equal(d(2020, 5, 11)) {
		t.Errorf("series modified: %+v", s)
	}
}

func TestSessionGating(t *testing.T) {
	ctx := context.Background()
	tail := candle(model.Daily, d(2020, 5, 12), 100)
	point := candle(model.Daily, d(2020, 5, 13), 110)

	tests := []struct {
		name  string
		kind  PointKind
		point model.Candle
		now   time.Time
		want  Kind
	}{
		{"quote after close", Quote, point, ny(2020, 5, 13, 17, 0), NoOp},
		{"quote before open", Quote, point, ny(2020, 5, 13, 9, 0), NoOp},
		{"quote on weekend", Quote, candle(model.Daily, d(2020, 5, 16), 110), ny(2020, 5, 16, 12, 0), NoOp},
		{"quote not today", Quote, point, ny(2020, 5, 14, 12, 0), NoOp},
		{"quote in session", Quote, point, ny(2020, 5, 13, 12, 0), Appended},
		{"close during session", ClosingPrice, point, ny(2020, 5, 13, 12, 0), NoOp},
		{"close after session", ClosingPrice, point, ny(2020, 5, 13, 16, 5), Appended},
		{"close next day", ClosingPrice, point, ny(2020, 5, 14, 8, 0), Appended},
		{"close for a holiday", ClosingPrice, candle(model.Daily, d(2020, 5, 25), 110), ny(2020, 5, 26, 8, 0), NoOp},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tl := tail
			o, err := newMerger(tt.now, nil).Merge(ctx, tt.kind, tt.point, &tl)
			if err != nil {
				t.Fatal(err)
			}
			if o.Kind != tt.want {
				t.Errorf("got %s, want %s (%s)", o.Kind, tt.want, o.Reason)
			}
		})
	}
}

func TestMergeEmptySeries(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	m := newMerger(ny(2020, 5, 13, 16, 30), store)

	o, err := m.MergeClosingPrice(ctx, candle(model.Daily, d(2020, 5, 13), 100), nil)
	if err != nil {
		t.Fatal(err)
	}
	if o.Kind != Appended || o.Prev != nil {
		t.Fatalf("got %s prev=%v, want appended onto empty series", o.Kind, o.Prev)
	}
	if err := Apply(ctx, store, o); err != nil {
		t.Fatal(err)
	}
	if n := len(store.series("LIN", model.Daily)); n != 1 {
		t.Errorf("series length %d, want 1", n)
	}

	// Without any tail source the point is still the sole record.
	o, err = newMerger(ny(2020, 5, 13, 16, 30), nil).MergeClosingPrice(ctx, candle(model.Daily, d(2020, 5, 13), 100), nil)
	if err != nil || o.Kind != Appended {
		t.Errorf("got %s, %v", o.Kind, err)
	}
}

func TestMergeSeriesMismatch(t *testing.T) {
	ctx := context.Background()
	m := newMerger(ny(2020, 5, 13, 12, 0), nil)
	point := candle(model.Daily, d(2020, 5, 13), 100)

	other := point
	other.Symbol = "AAPL"
	if _, err := m.MergeQuote(ctx, point, &other); !errors.Is(err, model.ErrInvalidArgument) {
		t.Errorf("symbol mismatch: got %v", err)
	}

	weekly := point
	weekly.Interval = model.Weekly
	if _, err := m.MergeQuote(ctx, point, &weekly); !errors.Is(err, model.ErrInvalidArgument) {
		t.Errorf("interval mismatch: got %v", err)
	}

	bad := point
	bad.Interval = model.Interval(0)
	if _, err := m.MergeQuote(ctx, bad, nil); !errors.Is(err, model.ErrInvalidArgument) {
		t.Errorf("invalid interval: got %v", err)
	}
}

func TestMergeReadsClockOnce(t *testing.T) {
	calls := 0
	clk := clock.Func(func() time.Time {
		calls++
		return ny(2020, 5, 13, 12, 0)
	})
	days := calendar.NewUSEquities()
	m := New(days, markethours.New(days), clk, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	tail := candle(model.Daily, d(2020, 5, 12), 100)
	if _, err := m.MergeQuote(context.Background(), candle(model.Daily, d(2020, 5, 13), 101), &tail); err != nil {
		t.Fatal(err)
	}
	if calls != 1 {
		t.Errorf("clock read %d times, want 1", calls)
	}
}

func TestMergeNonDaily(t *testing.T) {
	ctx := context.Background()
	now := ny(2020, 5, 15, 17, 0)

	tests := []struct {
		name   string
		iv     model.Interval
		tail   time.Time
		point  time.Time
		want   Kind
		wantTS time.Time
	}{
		{"weekly same week", model.Weekly, d(2020, 5, 11), d(2020, 5, 15), Overwritten, d(2020, 5, 11)},
		{"weekly next week", model.Weekly, d(2020, 5, 4), d(2020, 5, 15), Appended, d(2020, 5, 11)},
		{"weekly gap", model.Weekly, d(2020, 4, 27), d(2020, 5, 15), Gap, time.Time{}},
		{"monthly next month", model.Monthly, d(2020, 4, 1), d(2020, 5, 15), Appended, d(2020, 5, 1)},
		{"monthly same month", model.Monthly, d(2020, 5, 1), d(2020, 5, 15), Overwritten, d(2020, 5, 1)},
		{"quarterly next quarter", model.Quarterly, d(2020, 1, 2), d(2020, 5, 15), Appended, d(2020, 4, 1)},
		{"yearly same year", model.Yearly, d(2020, 1, 2), d(2020, 5, 15), Overwritten, d(2020, 1, 2)},
		{"yearly gap", model.Yearly, d(2018, 1, 2), d(2020, 5, 15), Gap, time.Time{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tail := candle(tt.iv, tt.tail, 100)
			o, err := newMerger(now, nil).MergeClosingPrice(ctx, candle(tt.iv, tt.point, 120), &tail)
			if err != nil {
				t.Fatal(err)
			}
			if o.Kind != tt.want {
				t.Fatalf("got %s, want %s (%s)", o.Kind, tt.want, o.Reason)
			}
			if o.Changed() && !o.Candle.TS.Equal(tt.wantTS) {
				t.Errorf("TS: got %s, want %s", o.Candle.TS.Format(calendar.DateLayout), tt.wantTS.Format(calendar.DateLayout))
			}
		})
	}
}

func TestChain(t *testing.T) {
	ctx := context.Background()
	cache := newMemStore()
	broken := newMemStore()
	broken.fail = errors.New("redis: circuit open")
	store := newMemStore(candle(model.Daily, d(2020, 5, 12), 100))

	got, err := Chain{broken, cache, store}.Tail(ctx, "LIN", model.Daily)
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || !got.TS.Equal(d(2020, 5, 12)) {
		t.Fatalf("tail: %+v", got)
	}
	if cache.puts != 1 {
		t.Errorf("cache fills: got %d, want 1", cache.puts)
	}

	if got, err := (Chain{cache, store}).Tail(ctx, "AAPL", model.Daily); got != nil || err != nil {
		t.Errorf("empty series: got %v, %v", got, err)
	}
	if _, err := (Chain{broken}).Tail(ctx, "LIN", model.Daily); err == nil {
		t.Error("all sources failing should error")
	}
}

func TestSink(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	cache := newMemStore()
	var commits int
	s := &Sink{Store: store, Caches: []TailCache{cache}, OnCommit: func(time.Duration) { commits++ }}

	c := candle(model.Daily, d(2020, 5, 13), 100)
	if err := s.Apply(ctx, Outcome{Kind: Appended, Candle: c}); err != nil {
		t.Fatal(err)
	}
	if err := s.Apply(ctx, Outcome{Kind: Gap}); err != nil {
		t.Fatal(err)
	}
	if commits != 1 || cache.puts != 1 || len(store.series("LIN", model.Daily)) != 1 {
		t.Errorf("commits=%d puts=%d", commits, cache.puts)
	}
}

func TestMergeStaleCachedTail(t *testing.T) {
	ctx := context.Background()
	// The cache still holds the tail from before a backfill of 05-12 and 05-13.
	cache := newMemStore(candle(model.Daily, d(2020, 5, 11), 100))
	store := newMemStore(
		candle(model.Daily, d(2020, 5, 11), 100),
		candle(model.Daily, d(2020, 5, 12), 101),
		candle(model.Daily, d(2020, 5, 13), 102),
	)
	m := newMerger(ny(2020, 5, 14, 10, 0), Chain{cache, store})

	o, err := m.MergeQuote(ctx, candle(model.Daily, d(2020, 5, 14), 110), nil)
	if err != nil {
		t.Fatal(err)
	}
	if o.Kind != Appended {
		t.Fatalf("got %s, want appended (%s)", o.Kind, o.Reason)
	}
	if !o.Candle.TS.Equal(d(2020, 5, 14)) || o.Prev == nil || !o.Prev.TS.Equal(d(2020, 5, 13)) {
		t.Errorf("candle %s onto %+v", o.Candle.TS, o.Prev)
	}
	if cache.invalidations != 1 {
		t.Errorf("invalidations: got %d, want 1", cache.invalidations)
	}
	if got, _ := cache.Tail(ctx, "LIN", model.Daily); got == nil || !got.TS.Equal(d(2020, 5, 13)) {
		t.Errorf("cached tail after refresh: %+v", got)
	}
}

func TestMergeGapConfirmedByStore(t *testing.T) {
	ctx := context.Background()
	cache := newMemStore(candle(model.Daily, d(2020, 5, 11), 100))
	store := newMemStore(candle(model.Daily, d(2020, 5, 11), 100))
	m := newMerger(ny(2020, 5, 14, 10, 0), Chain{cache, store})

	o, err := m.MergeQuote(ctx, candle(model.Daily, d(2020, 5, 14), 110), nil)
	if err != nil {
		t.Fatal(err)
	}
	if o.Kind != Gap {
		t.Fatalf("got %s, want gap", o.Kind)
	}
	if !strings.Contains(o.Reason, "tail at 2020-05-11") {
		t.Errorf("reason: %q", o.Reason)
	}
}

func TestMergeInstantTimestamp(t *testing.T) {
	ctx := context.Background()
	tail := candle(model.Daily, d(2020, 5, 14), 100)
	// 00:30 UTC on May 16 is 20:30 on May 15 in New York.
	point := candle(model.Daily, time.Date(2020, time.May, 16, 0, 30, 0, 0, time.UTC), 110)

	o, err := newMerger(ny(2020, 5, 15, 20, 45), nil).MergeClosingPrice(ctx, point, &tail)
	if err != nil {
		t.Fatal(err)
	}
	if o.Kind != Appended {
		t.Fatalf("got %s, want appended (%s)", o.Kind, o.Reason)
	}
	if !o.Candle.TS.Equal(d(2020, 5, 15)) {
		t.Errorf("TS: got %s, want 2020-05-15", o.Candle.TS)
	}

	quote := candle(model.Daily, ny(2020, 5, 15, 11, 0), 111)
	o, err = newMerger(ny(2020, 5, 15, 11, 5), nil).MergeQuote(ctx, quote, &tail)
	if err != nil {
		t.Fatal(err)
	}
	if o.Kind != Appended || !o.Candle.TS.Equal(d(2020, 5, 15)) {
		t.Errorf("quote: got %s at %s (%s)", o.Kind, o.Candle.TS, o.Reason)
	}
}

func TestCacheWriteFailureLogged(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	defer slog.SetDefault(prev)

	ctx := context.Background()
	cache := newMemStore()
	cache.putErr = errors.New("redis: connection refused")
	store := newMemStore(candle(model.Daily, d(2020, 5, 12), 100))

	if _, err := (Chain{cache, store}).Tail(ctx, "LIN", model.Daily); err != nil {
		t.Fatal(err)
	}
	s := &Sink{Store: store, Caches: []TailCache{cache}}
	if err := s.Apply(ctx, Outcome{Kind: Appended, Candle: candle(model.Daily, d(2020, 5, 13), 101)}); err != nil {
		t.Fatalf("cache failure must not fail the write: %v", err)
	}

	out := buf.String()
	if n := strings.Count(out, "tail cache write failed"); n != 2 {
		t.Errorf("logged %d cache write failures, want 2:\n%s", n, out)
	}
	if !strings.Contains(out, "connection refused") || !strings.Contains(out, "series=LIN:1d") {
		t.Errorf("log lacks error or series:\n%s", out)
	}
}

func TestChainRefresh(t *testing.T) {
	ctx := context.Background()
	cache := newMemStore(candle(model.Daily, d(2020, 5, 8), 90))
	store := newMemStore()

	got, err := Chain{cache, store}.Refresh(ctx, "LIN", model.Daily)
	if err != nil || got != nil {
		t.Fatalf("got %v, %v", got, err)
	}
	if cached, _ := cache.Tail(ctx, "LIN", model.Daily); cached != nil {
		t.Errorf("cached tail survived an empty store: %+v", cached)
	}
	if cache.puts != 0 {
		t.Errorf("puts: got %d, want 0", cache.puts)
	}
}
