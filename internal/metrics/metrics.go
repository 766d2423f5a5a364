// Package metrics exposes Prometheus metrics and the /healthz endpoint.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus metrics of the engine.
type Metrics struct {
	// Merges
	MergeOutcomes *prometheus.CounterVec // labels: outcome, interval
	ClosingPrices prometheus.Counter

	// Conversion
	ConvertedCandles *prometheus.CounterVec // labels: interval
	ConvertDur       *prometheus.HistogramVec

	// Storage
	SQLiteCommitDur          prometheus.Histogram
	TailCacheLookups         *prometheus.CounterVec // labels: result=hit|miss
	RedisCircuitBreakerState prometheus.Gauge       // 0=closed, 1=open, 2=half-open
	RedisCircuitBreakerTrips prometheus.Counter

	// Calendar
	HolidayRebuilds prometheus.Counter

	// Feed
	FeedMessages   *prometheus.CounterVec // labels: status=ok|bad
	FeedReconnects prometheus.Counter

	// Market session state
	MarketState prometheus.Gauge // 0=closed, 1=open
	JobRuns     *prometheus.CounterVec
}

// NewMetrics creates all metrics and registers them with reg. A nil reg
// uses prometheus.DefaultRegisterer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		MergeOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "equitycal_merge_outcomes_total",
			Help: "Merge decisions by outcome and interval",
		}, []string{"outcome", "interval"}),
		ClosingPrices: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "equitycal_closing_prices_detected_total",
			Help: "Closing prices released by the close detector",
		}),

		ConvertedCandles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "equitycal_converted_candles_total",
			Help: "Candles written by conversions (by interval)",
		}, []string{"interval"}),
		ConvertDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "equitycal_convert_duration_seconds",
			Help:    "Duration of one symbol conversion",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}, []string{"interval"}),

		SQLiteCommitDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "equitycal_sqlite_commit_duration_seconds",
			Help:    "SQLite write transaction latency",
			Buckets: prometheus.DefBuckets,
		}),
		TailCacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "equitycal_tail_cache_lookups_total",
			Help: "Redis tail cache lookups by result",
		}, []string{"result"}),
		RedisCircuitBreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "equitycal_redis_circuit_breaker_state",
			Help: "Redis circuit breaker state (0=closed, 1=open, 2=half-open)",
		}),
		RedisCircuitBreakerTrips: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "equitycal_redis_circuit_breaker_trips_total",
			Help: "Times the Redis circuit breaker tripped open",
		}),

		HolidayRebuilds: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "equitycal_holiday_year_rebuilds_total",
			Help: "Holiday set rebuilds on a change of year",
		}),

		FeedMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "equitycal_feed_messages_total",
			Help: "Feed messages received by decode status",
		}, []string{"status"}),
		FeedReconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "equitycal_feed_reconnects_total",
			Help: "Feed WebSocket reconnection attempts",
		}),

		MarketState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "equitycal_market_state",
			Help: "Market session state (0=closed, 1=open)",
		}),
		JobRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "equitycal_job_runs_total",
			Help: "Scheduled job runs by job and result",
		}, []string{"job", "result"}),
	}

	reg.MustRegister(
		m.MergeOutcomes,
		m.ClosingPrices,
		m.ConvertedCandles,
		m.ConvertDur,
		m.SQLiteCommitDur,
		m.TailCacheLookups,
		m.RedisCircuitBreakerState,
		m.RedisCircuitBreakerTrips,
		m.HolidayRebuilds,
		m.FeedMessages,
		m.FeedReconnects,
		m.MarketState,
		m.JobRuns,
	)

	return m
}

// ObserveFeedMessage counts one decoded (ok) or rejected feed frame.
func (m *Metrics) ObserveFeedMessage(ok bool) {
	if ok {
		m.FeedMessages.WithLabelValues("ok").Inc()
		return
	}
	m.FeedMessages.WithLabelValues("bad").Inc()
}

// ObserveTailLookup counts one tail cache lookup.
func (m *Metrics) ObserveTailLookup(hit bool) {
	if hit {
		m.TailCacheLookups.WithLabelValues("hit").Inc()
		return
	}
	m.TailCacheLookups.WithLabelValues("miss").Inc()
}

// ObserveJob counts one scheduled job run.
func (m *Metrics) ObserveJob(name string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.JobRuns.WithLabelValues(name, result).Inc()
}

// SetMarketOpen records the session state.
func (m *Metrics) SetMarketOpen(open bool) {
	if open {
		m.MarketState.Set(1)
		return
	}
	m.MarketState.Set(0)
}
