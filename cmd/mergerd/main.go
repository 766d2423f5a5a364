// cmd/mergerd merges live quotes and closing prices from the point feed
// into the stored daily series, and rebuilds the weekly, monthly, quarterly
// and yearly series on a nightly trading-day schedule.
//
// Config: -config <yaml> plus environment overrides (see config.Load).
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"equity-calendar/config"
	"equity-calendar/internal/aggregate"
	"equity-calendar/internal/calendar"
	"equity-calendar/internal/clock"
	"equity-calendar/internal/feed"
	"equity-calendar/internal/logger"
	"equity-calendar/internal/markethours"
	"equity-calendar/internal/merge"
	"equity-calendar/internal/metrics"
	"equity-calendar/internal/model"
	"equity-calendar/internal/scheduler"
	redisstore "equity-calendar/internal/store/redis"
	sqlitestore "equity-calendar/internal/store/sqlite"
)

const (
	holidayCacheYears = 64
	convertLookback   = 400 * 24 * time.Hour
)

func main() {
	configPath := flag.String("config", "", "YAML config file (optional)")
	convertNow := flag.Bool("convert-now", false, "Run the conversion job once at startup")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("mergerd: config", "error", err)
		os.Exit(1)
	}
	log := logger.Init("mergerd", logger.ParseLevel(cfg.LogLevel), cfg.LogFormat)
	log.Info("starting", "feed", cfg.FeedURL, "sqlite", cfg.SQLitePath, "redis", cfg.RedisAddr)

	// ---- Metrics & health ----
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	prom := metrics.NewMetrics(reg)
	health := metrics.NewHealthStatus()
	metricsSrv := metrics.NewServer(cfg.MetricsAddr, health, reg)
	metricsSrv.Start()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// ---- Calendar ----
	rules, err := cfg.CalendarRulesOrDefault()
	if err != nil {
		log.Error("calendar rules", "error", err)
		os.Exit(1)
	}
	holidays, err := calendar.NewCachedCalculator(calendar.USFederal{}, holidayCacheYears)
	if err != nil {
		log.Error("holiday cache", "error", err)
		os.Exit(1)
	}
	defer holidays.Close()
	days, err := calendar.NewPredicate(rules, holidays)
	if err != nil {
		log.Error("calendar predicate", "error", err)
		os.Exit(1)
	}
	days.OnRebuild = func(year int) {
		prom.HolidayRebuilds.Inc()
		log.Debug("holiday set rebuilt", "year", year)
	}
	hours := markethours.New(days)
	log.Info("calendar ready", "rules", rules.Name, "status", hours.StatusString(time.Now()))

	// ---- SQLite store ----
	if dir := filepath.Dir(cfg.SQLitePath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			log.Error("sqlite dir", "error", err)
			os.Exit(1)
		}
	}
	store, err := sqlitestore.New(sqlitestore.Config{DBPath: cfg.SQLitePath})
	if err != nil {
		log.Error("sqlite init failed", "error", err)
		os.Exit(1)
	}
	defer store.Close()
	store.OnCommit = func(_ int, took time.Duration) {
		prom.SQLiteCommitDur.Observe(took.Seconds())
	}

	// ---- Redis tail cache (optional) ----
	tails := merge.Chain{}
	sink := &merge.Sink{Store: store}
	var (
		cache       *redisstore.TailCache
		redisPinger metrics.Pinger
	)
	if cfg.RedisAddr != "" {
		health.SetRedisEnabled(true)
		cache, err = redisstore.New(redisstore.Config{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			log.Warn("redis init failed, continuing without tail cache", "error", err)
			cache = nil
		}
	}
	if cache != nil {
		defer cache.Close()
		cache.OnLookup = prom.ObserveTailLookup
		cache.Breaker().OnStateChange = func(from, to redisstore.State) {
			prom.RedisCircuitBreakerState.Set(float64(to))
			if to == redisstore.StateOpen {
				prom.RedisCircuitBreakerTrips.Inc()
			}
			log.Warn("redis circuit breaker", "from", from.String(), "to", to.String())
		}
		tails = append(tails, cache)
		sink.Caches = append(sink.Caches, cache)
		redisPinger = cache
	}
	tails = append(tails, store)
	health.StartLivenessChecker(ctx, redisPinger, store, 10*time.Second)

	// ---- Merger ----
	merger := merge.New(days, hours, clock.System{}, tails, log)
	merger.OnOutcome = func(iv model.Interval, o merge.Outcome) {
		prom.MergeOutcomes.WithLabelValues(o.Kind.String(), iv.String()).Inc()
	}
	eng := &engine{
		hours:     hours,
		merger:    merger,
		sink:      sink,
		clock:     clock.System{},
		prom:      prom,
		health:    health,
		log:       log.With("component", "engine"),
		stableFor: cfg.CloseStableFor,
		maxGrace:  cfg.CloseMaxGrace,
	}
	if cache != nil {
		eng.pub = cache
	}

	// ---- Conversion schedule ----
	targets := cfg.ParseIntervals()
	converter := aggregate.NewConverter(store, days, log)
	converter.OnConverted = func(iv model.Interval, n int, took time.Duration) {
		prom.ConvertedCandles.WithLabelValues(iv.String()).Add(float64(n))
		prom.ConvertDur.WithLabelValues(iv.String()).Observe(took.Seconds())
	}
	symbols := func(ctx context.Context) ([]string, error) {
		if syms := cfg.ParseSymbols(); len(syms) > 0 {
			return syms, nil
		}
		return store.Symbols(ctx, model.Daily)
	}
	convertJob := scheduler.ConversionJob(converter, symbols, targets, convertLookback, clock.System{})

	sched := scheduler.New(ctx, days, hours.Location(), log)
	sched.OnRun = func(name string, err error, _ time.Duration) {
		prom.ObserveJob(name, err)
	}
	if err := sched.AddTradingDayJob("convert", cfg.ConvertCron, convertJob); err != nil {
		log.Error("scheduler", "error", err)
		os.Exit(1)
	}
	sched.Start()
	if *convertNow {
		go sched.RunNow("convert", convertJob)
	}

	// ---- Feed ----
	client, err := feed.New(feed.Config{URL: cfg.FeedURL}, log)
	if err != nil {
		log.Error("feed init failed", "error", err)
		os.Exit(1)
	}
	client.OnReconnect = func() {
		prom.FeedReconnects.Inc()
		health.SetFeedConnected(false)
	}
	client.OnMessage = func(ok bool) {
		prom.ObserveFeedMessage(ok)
		health.SetFeedConnected(true)
	}

	points := make(chan feed.Point, 1024)
	go func() {
		if err := client.Start(ctx, points); err != nil && ctx.Err() == nil {
			log.Error("feed stopped", "error", err)
			health.SetFeedConnected(false)
		}
	}()

	done := make(chan struct{})
	go func() {
		defer close(done)
		eng.run(ctx, points, time.Second)
	}()

	log.Info("ready", "targets", targets, "convert_cron", cfg.ConvertCron)

	// ---- Wait for shutdown signal ----
	<-sigCh
	log.Info("shutdown signal received, cleaning up...")
	cancel()
	<-done
	sched.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := metricsSrv.Stop(shutdownCtx); err != nil {
		log.Warn("metrics server shutdown", "error", err)
	}
	log.Info("shutdown complete")
}
