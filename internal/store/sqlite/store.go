// Package sqlite is the candle persistence layer over SQLite. Prices are
// stored as decimal TEXT, timestamps as unix seconds of the UTC civil date.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"equity-calendar/internal/model"
)

// Config configures the SQLite store.
type Config struct {
	DBPath string // path to SQLite database file, e.g. "data/candles.db"
}

// Store reads and writes candles. It implements model.CandleStore.
type Store struct {
	db *sql.DB

	// OnCommit is called after each write transaction (optional).
	OnCommit func(rows int, took time.Duration)
}

// DB returns the underlying sql.DB for health checks.
func (s *Store) DB() *sql.DB { return s.db }

// New opens the database with WAL mode and creates the schema.
func New(cfg Config) (*Store, error) {
	db, err := sql.Open("sqlite3", cfg.DBPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}

	// Single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	slog.Info("sqlite: opened database", "path", cfg.DBPath)
	return &Store{db: db}, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS candles (
			symbol   TEXT    NOT NULL,
			interval TEXT    NOT NULL,
			ts       INTEGER NOT NULL,
			open     TEXT    NOT NULL,
			high     TEXT    NOT NULL,
			low      TEXT    NOT NULL,
			close    TEXT    NOT NULL,
			volume   INTEGER NOT NULL DEFAULT 0,
			provider TEXT    NOT NULL DEFAULT '',
			PRIMARY KEY (symbol, interval, ts)
		);
	`)
	return err
}

const selectCandles = `SELECT symbol, interval, ts, open, high, low, close, volume, provider FROM candles`

// ReadCandles returns candles with from <= ts <= to ordered by ts. A zero
// to means no upper bound.
func (s *Store) ReadCandles(ctx context.Context, symbol string, iv model.Interval, from, to time.Time) ([]model.Candle, error) {
	upper := int64(1<<62 - 1)
	if !to.IsZero() {
		upper = to.Unix()
	}
	rows, err := s.db.QueryContext(ctx, selectCandles+`
		WHERE symbol = ? AND interval = ? AND ts >= ? AND ts <= ?
		ORDER BY ts ASC
	`, symbol, iv.String(), from.Unix(), upper)
	if err != nil {
		return nil, fmt.Errorf("sqlite read candles: %w", err)
	}
	defer rows.Close()

	var candles []model.Candle
	for rows.Next() {
		c, err := scanCandle(rows)
		if err != nil {
			return nil, err
		}
		candles = append(candles, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite read candles: %w", err)
	}
	return candles, nil
}

// Tail returns the latest candle of the series, nil if it is empty.
func (s *Store) Tail(ctx context.Context, symbol string, iv model.Interval) (*model.Candle, error) {
	row := s.db.QueryRowContext(ctx, selectCandles+`
		WHERE symbol = ? AND interval = ?
		ORDER BY ts DESC
		LIMIT 1
	`, symbol, iv.String())
	c, err := scanCandle(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// Symbols lists the symbols with stored candles of interval iv.
func (s *Store) Symbols(ctx context.Context, iv model.Interval) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT symbol FROM candles WHERE interval = ? ORDER BY symbol`, iv.String())
	if err != nil {
		return nil, fmt.Errorf("sqlite list symbols: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var sym string
		if err := rows.Scan(&sym); err != nil {
			return nil, fmt.Errorf("sqlite list symbols: %w", err)
		}
		out = append(out, sym)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanCandle(r scanner) (model.Candle, error) {
	var (
		c      model.Candle
		iv     string
		tsUnix int64
	)
	if err := r.Scan(&c.Symbol, &iv, &tsUnix, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume, &c.Provider); err != nil {
		if err == sql.ErrNoRows {
			return c, err
		}
		return c, fmt.Errorf("sqlite scan candle: %w", err)
	}
	parsed, err := model.ParseInterval(iv)
	if err != nil {
		return c, fmt.Errorf("sqlite scan candle: %w", err)
	}
	c.Interval = parsed
	c.TS = time.Unix(tsUnix, 0).UTC()
	return c, nil
}

// WriteCandles upserts candles in a single transaction.
func (s *Store) WriteCandles(ctx context.Context, candles []model.Candle) error {
	if len(candles) == 0 {
		return nil
	}
	return s.inTx(ctx, len(candles), func(tx *sql.Tx) error {
		return insertBatch(ctx, tx, candles)
	})
}

// DeleteFrom removes candles of the series with ts >= from.
func (s *Store) DeleteFrom(ctx context.Context, symbol string, iv model.Interval, from time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM candles WHERE symbol = ? AND interval = ? AND ts >= ?`,
		symbol, iv.String(), from.Unix())
	if err != nil {
		return 0, fmt.Errorf("sqlite delete candles: %w", err)
	}
	return res.RowsAffected()
}

// ReplaceFrom deletes the series from from onwards and writes candles in
// the same transaction.
func (s *Store) ReplaceFrom(ctx context.Context, symbol string, iv model.Interval, from time.Time, candles []model.Candle) error {
	return s.inTx(ctx, len(candles), func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM candles WHERE symbol = ? AND interval = ? AND ts >= ?`,
			symbol, iv.String(), from.Unix()); err != nil {
			return err
		}
		return insertBatch(ctx, tx, candles)
	})
}

func (s *Store) inTx(ctx context.Context, n int, fn func(tx *sql.Tx) error) error {
	start := time.Now()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite begin: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return fmt.Errorf("sqlite write candles: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite commit: %w", err)
	}
	took := time.Since(start)
	slog.Debug("sqlite: committed candles", "rows", n, "took", took)
	if s.OnCommit != nil {
		s.OnCommit(n, took)
	}
	return nil
}

func insertBatch(ctx context.Context, tx *sql.Tx, candles []model.Candle) error {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO candles (symbol, interval, ts, open, high, low, close, volume, provider)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, c := range candles {
		if _, err := stmt.ExecContext(ctx, c.Symbol, c.Interval.String(), c.TS.Unix(),
			c.Open.String(), c.High.String(), c.Low.String(), c.Close.String(), c.Volume, c.Provider); err != nil {
			return err
		}
	}
	return nil
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
