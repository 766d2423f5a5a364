package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"equity-calendar/internal/calendar"
	"equity-calendar/internal/clock"
	"equity-calendar/internal/model"
)

func newTestScheduler(now time.Time) *Scheduler {
	s := New(context.Background(), calendar.NewUSEquities(), time.UTC, nil)
	s.now = func() time.Time { return now }
	return s
}

func TestRunSkipsNonTradingDays(t *testing.T) {
	tests := []struct {
		name string
		now  time.Time
		want bool
	}{
		{"wednesday", time.Date(2020, 5, 13, 22, 0, 0, 0, time.UTC), true},
		{"saturday", time.Date(2020, 5, 16, 22, 0, 0, 0, time.UTC), false},
		{"christmas", time.Date(2020, 12, 25, 22, 0, 0, 0, time.UTC), false},
	}
	for _, tt := range tests {
		s := newTestScheduler(tt.now)
		ran := false
		got := s.RunNow("test", func(context.Context) error { ran = true; return nil })
		if got != tt.want || ran != tt.want {
			t.Errorf("%s: RunNow = %v (ran=%v), want %v", tt.name, got, ran, tt.want)
		}
	}
}

func TestRunReportsErrors(t *testing.T) {
	s := newTestScheduler(time.Date(2020, 5, 13, 22, 0, 0, 0, time.UTC))
	boom := errors.New("boom")
	var gotErr error
	s.OnRun = func(name string, err error, _ time.Duration) { gotErr = err }
	s.RunNow("fail", func(context.Context) error { return boom })
	if !errors.Is(gotErr, boom) {
		t.Errorf("OnRun error: got %v", gotErr)
	}
}

func TestAddTradingDayJob(t *testing.T) {
	s := newTestScheduler(time.Now())
	if err := s.AddTradingDayJob("convert", "0 30 18 * * 1-5", func(context.Context) error { return nil }); err != nil {
		t.Fatal(err)
	}
	if err := s.AddTradingDayJob("bad", "every night", func(context.Context) error { return nil }); err == nil {
		t.Error("expected an error for an invalid spec")
	}
	if n := len(s.Cron.Entries()); n != 1 {
		t.Errorf("entries: got %d, want 1", n)
	}
}

type fakeRunner struct {
	calls map[string][]model.Interval
	from  time.Time
	fail  string
}

func (f *fakeRunner) RunAll(_ context.Context, symbol string, targets []model.Interval, from, _ time.Time) error {
	if symbol == f.fail {
		return errors.New("no data")
	}
	f.calls[symbol] = targets
	f.from = from
	return nil
}

func TestConversionJob(t *testing.T) {
	r := &fakeRunner{calls: map[string][]model.Interval{}, fail: "BAD"}
	symbols := func(context.Context) ([]string, error) { return []string{"AAPL", "BAD", "LIN"}, nil }

	err := ConversionJob(r, symbols, model.Superlative, 0, nil)(context.Background())
	if err == nil {
		t.Error("expected the failing symbol to be reported")
	}
	if len(r.calls) != 2 || len(r.calls["LIN"]) != 4 {
		t.Errorf("calls: %v", r.calls)
	}

	listErr := errors.New("db down")
	err = ConversionJob(r, func(context.Context) ([]string, error) { return nil, listErr }, model.Superlative, 0, nil)(context.Background())
	if !errors.Is(err, listErr) {
		t.Errorf("got %v, want list error", err)
	}
}

func TestConversionJobLookbackFromClock(t *testing.T) {
	r := &fakeRunner{calls: map[string][]model.Interval{}}
	symbols := func(context.Context) ([]string, error) { return []string{"LIN"}, nil }
	now := clock.Fixed{T: time.Date(2020, time.May, 16, 1, 30, 0, 0, time.UTC)}

	job := ConversionJob(r, symbols, model.Superlative, 10*24*time.Hour, now)
	if err := job(context.Background()); err != nil {
		t.Fatal(err)
	}
	if want := calendar.Date(2020, time.May, 6); !r.from.Equal(want) {
		t.Errorf("from = %v, want %v", r.from, want)
	}

	if err := ConversionJob(r, symbols, model.Superlative, 0, now)(context.Background()); err != nil {
		t.Fatal(err)
	}
	if !r.from.IsZero() {
		t.Errorf("zero lookback from = %v, want the whole history", r.from)
	}
}
