// Package closedetector derives end-of-day closing prices from the quote
// stream. After the session close each symbol's last quote is watched;
// once its price stops changing for StableFor, or MaxGrace has passed since
// the close, the quote is released as the closing price for the day.
package closedetector

import (
	"log/slog"
	"sync"
	"time"

	"equity-calendar/internal/model"
)

type pending struct {
	quote       model.Candle
	stableSince time.Time
	released    bool
}

// Detector tracks one session's post-close quotes, per symbol.
type Detector struct {
	mu        sync.Mutex
	closeTime time.Time
	symbols   map[string]*pending

	// StableFor is how long the price must remain constant to be taken as
	// the closing price. Default: 30 seconds.
	StableFor time.Duration

	// MaxGrace is the hard deadline after closeTime. Symbols still moving
	// by closeTime + MaxGrace are released with their last quote.
	// Default: 5 minutes.
	MaxGrace time.Duration
}

// New creates a Detector for a session ending at closeTime.
func New(closeTime time.Time) *Detector {
	return &Detector{
		closeTime: closeTime,
		symbols:   make(map[string]*pending),
		StableFor: 30 * time.Second,
		MaxGrace:  5 * time.Minute,
	}
}

// CloseTime returns the session close the detector was created for.
func (d *Detector) CloseTime() time.Time { return d.closeTime }

// IsPostClose reports whether now is at or after the close.
func (d *Detector) IsPostClose(now time.Time) bool {
	return !now.Before(d.closeTime)
}

// Deadline reports whether the grace period is over.
func (d *Detector) Deadline(now time.Time) bool {
	return now.After(d.closeTime.Add(d.MaxGrace))
}

// Observe records a quote and returns the closing-price point when the
// quote's symbol has just settled. Each symbol is released at most once.
func (d *Detector) Observe(q model.Candle, now time.Time) (model.Candle, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	p, ok := d.symbols[q.Symbol]
	if !ok {
		p = &pending{}
		d.symbols[q.Symbol] = p
	}
	if p.released {
		return model.Candle{}, false
	}

	// Only start timing after the close.
	if !d.IsPostClose(now) {
		p.quote = q
		return model.Candle{}, false
	}

	if d.Deadline(now) {
		p.quote = q
		slog.Info("closedetector: hard deadline reached", "symbol", q.Symbol, "grace", d.MaxGrace)
		return d.release(p), true
	}

	// A price change restarts the stability timer.
	if !q.Close.Equal(p.quote.Close) || p.stableSince.IsZero() {
		p.quote = q
		p.stableSince = now
		return model.Candle{}, false
	}
	p.quote = q

	if now.Sub(p.stableSince) >= d.StableFor {
		slog.Info("closedetector: closing price captured",
			"symbol", q.Symbol, "close", q.Close.String(), "stable_for", d.StableFor)
		return d.release(p), true
	}
	return model.Candle{}, false
}

// Expire releases every symbol still pending once the grace period is over.
func (d *Detector) Expire(now time.Time) []model.Candle {
	if !d.Deadline(now) {
		return nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []model.Candle
	for sym, p := range d.symbols {
		if p.released || p.quote.Symbol == "" {
			continue
		}
		slog.Info("closedetector: released on deadline", "symbol", sym, "close", p.quote.Close.String())
		out = append(out, d.release(p))
	}
	return out
}

// Pending returns the number of symbols not yet released.
func (d *Detector) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, p := range d.symbols {
		if !p.released {
			n++
		}
	}
	return n
}

func (d *Detector) release(p *pending) model.Candle {
	p.released = true
	return p.quote
}
