// Package clock supplies "now" to components that need today's date.
// Components take a Source instead of calling time.Now so tests can pin
// the date.
package clock

import "time"

// Source returns the current time. Callers read it once per logical
// operation.
type Source interface {
	Now() time.Time
}

// System reads the wall clock.
type System struct{}

// Now implements Source.
func (System) Now() time.Time { return time.Now() }

// Fixed always returns the same instant.
type Fixed struct {
	T time.Time
}

// Now implements Source.
func (f Fixed) Now() time.Time { return f.T }

// Func adapts a function to Source.
type Func func() time.Time

// Now implements Source.
func (f Func) Now() time.Time { return f() }

// OrSystem returns s, or System when s is nil.
func OrSystem(s Source) Source {
	if s == nil {
		return System{}
	}
	return s
}
