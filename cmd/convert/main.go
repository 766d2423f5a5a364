// cmd/convert rebuilds weekly, monthly, quarterly and yearly candles from
// the stored daily series, and optionally exports or imports Parquet files.
//
// Usage:
//
//	convert -symbol LIN -intervals 1w,1M -from 2011-01-03 -to 2020-05-15
//	convert -symbol LIN -intervals 1M -parquet out/     # also export each target
//	convert -import daily.parquet                       # load daily candles first
//
// An import drops the cached Redis tails of the imported series.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"equity-calendar/config"
	"equity-calendar/internal/aggregate"
	"equity-calendar/internal/calendar"
	"equity-calendar/internal/logger"
	"equity-calendar/internal/model"
	parquetstore "equity-calendar/internal/store/parquet"
	redisstore "equity-calendar/internal/store/redis"
	sqlitestore "equity-calendar/internal/store/sqlite"
)

func main() {
	configPath := flag.String("config", "", "YAML config file (optional)")
	dbPath := flag.String("db", "", "SQLite database (overrides config)")
	symbolFlag := flag.String("symbol", "", "Comma-separated symbols (default: config symbols, else every stored symbol)")
	intervalsFlag := flag.String("intervals", "", "Comma-separated targets, e.g. 1w,1M,1Q,1y (default: config)")
	fromFlag := flag.String("from", "", "First daily date, yyyy-mm-dd (default: all)")
	toFlag := flag.String("to", "", "Last daily date, yyyy-mm-dd (default: latest)")
	parquetDir := flag.String("parquet", "", "Directory to export converted candles to")
	importPath := flag.String("import", "", "Parquet file of daily candles to load before converting")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fatal("config", err)
	}
	if *dbPath != "" {
		cfg.SQLitePath = *dbPath
	}
	if *symbolFlag != "" {
		cfg.Symbols = *symbolFlag
	}
	if *intervalsFlag != "" {
		cfg.Intervals = *intervalsFlag
	}
	log := logger.Init("convert", logger.ParseLevel(cfg.LogLevel), "text")

	from, err := optionalDate(*fromFlag)
	if err != nil {
		fatal("-from", err)
	}
	to, err := optionalDate(*toFlag)
	if err != nil {
		fatal("-to", err)
	}
	targets := cfg.ParseIntervals()
	if len(targets) == 0 {
		fatal("-intervals", fmt.Errorf("%w: no conversion targets", model.ErrInvalidArgument))
	}

	rules, err := cfg.CalendarRulesOrDefault()
	if err != nil {
		fatal("calendar rules", err)
	}
	days, err := calendar.NewPredicate(rules, nil)
	if err != nil {
		fatal("calendar", err)
	}

	store, err := sqlitestore.New(sqlitestore.Config{DBPath: cfg.SQLitePath})
	if err != nil {
		fatal("sqlite", err)
	}
	defer store.Close()

	ctx := context.Background()
	if *importPath != "" {
		candles, err := parquetstore.Import(*importPath)
		if err != nil {
			fatal("import", err)
		}
		if err := store.WriteCandles(ctx, candles); err != nil {
			fatal("import", err)
		}
		log.Info("imported", "path", *importPath, "candles", len(candles))
		invalidateTails(ctx, cfg, candles)
	}

	symbols := cfg.ParseSymbols()
	if len(symbols) == 0 {
		if symbols, err = store.Symbols(ctx, model.Daily); err != nil {
			fatal("list symbols", err)
		}
	}

	conv := aggregate.NewConverter(store, days, log)
	var errs []error
	for _, sym := range symbols {
		for _, iv := range targets {
			start := time.Now()
			out, err := conv.Run(ctx, sym, iv, from, to)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s %s: %w", sym, iv, err))
				continue
			}
			fmt.Printf("%-8s %-3s %5d candles  %v\n", sym, iv, len(out), time.Since(start).Truncate(time.Microsecond))
			if *parquetDir == "" || len(out) == 0 {
				continue
			}
			if err := exportSeries(ctx, store, *parquetDir, sym, iv); err != nil {
				errs = append(errs, err)
			}
		}
	}
	if err := errors.Join(errs...); err != nil {
		fatal("convert", err)
	}
}

// invalidateTails drops the cached tails of the imported series so the
// merger reads the backfilled ones from sqlite.
func invalidateTails(ctx context.Context, cfg *config.Config, candles []model.Candle) {
	if cfg.RedisAddr == "" {
		return
	}
	cache, err := redisstore.New(redisstore.Config{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	if err != nil {
		slog.Warn("redis unavailable, cached tails not invalidated", "error", err)
		return
	}
	defer cache.Close()

	seen := make(map[string]bool)
	for _, c := range candles {
		if seen[c.Key()] {
			continue
		}
		seen[c.Key()] = true
		if err := cache.Invalidate(ctx, c.Symbol, c.Interval); err != nil {
			slog.Warn("invalidate cached tail", "series", c.Key(), "error", err)
		}
	}
	slog.Info("invalidated cached tails", "series", len(seen))
}

// exportSeries writes the whole stored series, not only the converted tail.
func exportSeries(ctx context.Context, store *sqlitestore.Store, dir, symbol string, iv model.Interval) error {
	candles, err := store.ReadCandles(ctx, symbol, iv, time.Time{}, time.Time{})
	if err != nil {
		return fmt.Errorf("export %s %s: %w", symbol, iv, err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	path := filepath.Join(dir, fmt.Sprintf("%s_%s.parquet", strings.ToLower(symbol), iv))
	if err := parquetstore.Export(path, candles); err != nil {
		return err
	}
	slog.Info("exported", "path", path, "candles", len(candles))
	return nil
}

func optionalDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return calendar.ParseDate(s)
}

func fatal(what string, err error) {
	slog.Error("convert: "+what, "error", err)
	os.Exit(1)
}
