package calendar

import (
	"fmt"

	"github.com/dgraph-io/ristretto"
)

// CachedCalculator memoizes another Calculator per year. Holiday sets are
// pure functions of the year, so any number of predicates may share one.
type CachedCalculator struct {
	calc  Calculator
	cache *ristretto.Cache
}

// NewCachedCalculator wraps calc with a cache holding up to maxYears years.
func NewCachedCalculator(calc Calculator, maxYears int64) (*CachedCalculator, error) {
	if maxYears <= 0 {
		maxYears = 128
	}
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: maxYears * 10,
		MaxCost:     maxYears,
		BufferItems: 64,
		// Each year costs 1; ristretto's per-entry overhead would exceed MaxCost.
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, fmt.Errorf("holiday cache: %w", err)
	}
	return &CachedCalculator{calc: calc, cache: cache}, nil
}

// Holidays implements Calculator.
func (c *CachedCalculator) Holidays(year int) []Holiday {
	if v, ok := c.cache.Get(year); ok {
		if hs, ok := v.([]Holiday); ok {
			return hs
		}
	}
	hs := c.calc.Holidays(year)
	c.cache.Set(year, hs, 1)
	return hs
}

// Wait blocks until pending cache writes are visible.
func (c *CachedCalculator) Wait() { c.cache.Wait() }

// Close releases the cache.
func (c *CachedCalculator) Close() { c.cache.Close() }
