// Package redis caches series tails in Redis so the merger can decide
// without hitting SQLite, and announces merged candles on a stream and a
// pub/sub channel. Every call goes through a circuit breaker; when it is
// open the cache reports errors and callers fall back to SQLite.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"equity-calendar/internal/model"
)

const (
	defaultTailTTL = 24 * time.Hour
	streamMaxLen   = 10000
)

// Config configures the Redis tail cache.
type Config struct {
	Addr     string // Redis address, e.g. "localhost:6379"
	Password string
	DB       int

	// TailTTL bounds how long a cached tail is trusted. Defaults to 24h.
	TailTTL time.Duration
}

// TailCache stores the latest candle of each series.
type TailCache struct {
	client  *goredis.Client
	breaker *CircuitBreaker
	ttl     time.Duration

	// OnLookup is called per Tail call with whether it hit (optional).
	OnLookup func(hit bool)
}

// New connects to Redis and pings it.
func New(cfg Config) (*TailCache, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	slog.Info("redis: connected", "addr", cfg.Addr)
	return NewWithClient(client, cfg.TailTTL), nil
}

// NewWithClient wraps an existing client without pinging it.
func NewWithClient(client *goredis.Client, ttl time.Duration) *TailCache {
	if ttl <= 0 {
		ttl = defaultTailTTL
	}
	return &TailCache{
		client:  client,
		breaker: NewCircuitBreaker(5, 10*time.Second),
		ttl:     ttl,
	}
}

// Client returns the underlying Redis client for health checks.
func (c *TailCache) Client() *goredis.Client { return c.client }

// Breaker returns the circuit breaker guarding every call.
func (c *TailCache) Breaker() *CircuitBreaker { return c.breaker }

func tailKey(symbol string, iv model.Interval) string {
	return "tail:" + symbol + ":" + iv.String()
}

// StreamKey is the stream merged candles of interval iv are appended to.
func StreamKey(iv model.Interval) string {
	return "candles:" + iv.String()
}

// ChannelKey is the pub/sub channel merged candles of a series are published on.
func ChannelKey(symbol string, iv model.Interval) string {
	return "pub:candle:" + iv.String() + ":" + symbol
}

// Tail returns the cached tail, nil on a miss.
func (c *TailCache) Tail(ctx context.Context, symbol string, iv model.Interval) (*model.Candle, error) {
	var raw []byte
	err := c.breaker.Execute(func() error {
		b, err := c.client.Get(ctx, tailKey(symbol, iv)).Bytes()
		if err == goredis.Nil {
			return nil
		}
		raw = b
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("redis get tail: %w", err)
	}
	if c.OnLookup != nil {
		c.OnLookup(raw != nil)
	}
	if raw == nil {
		return nil, nil
	}

	var cd model.Candle
	if err := json.Unmarshal(raw, &cd); err != nil {
		return nil, fmt.Errorf("redis decode tail %s: %w", tailKey(symbol, iv), err)
	}
	return &cd, nil
}

// PutTail caches cd as its series tail. An older candle never replaces a
// newer cached one.
func (c *TailCache) PutTail(ctx context.Context, cd model.Candle) error {
	cur, err := c.Tail(ctx, cd.Symbol, cd.Interval)
	if err != nil {
		return err
	}
	if cur != nil && cur.TS.After(cd.TS) {
		return nil
	}
	return c.breaker.Execute(func() error {
		return c.client.Set(ctx, tailKey(cd.Symbol, cd.Interval), cd.JSON(), c.ttl).Err()
	})
}

// Invalidate drops a cached tail so that PutTail accepts an older one, as
// after a backfill or when the merger refreshes a stale tail.
func (c *TailCache) Invalidate(ctx context.Context, symbol string, iv model.Interval) error {
	return c.breaker.Execute(func() error {
		return c.client.Del(ctx, tailKey(symbol, iv)).Err()
	})
}

// Announce appends a merged candle to its interval stream and publishes it
// on the series channel, in one pipeline.
func (c *TailCache) Announce(ctx context.Context, kind string, cd model.Candle) error {
	data := string(cd.JSON())
	return c.breaker.Execute(func() error {
		pipe := c.client.Pipeline()
		pipe.XAdd(ctx, &goredis.XAddArgs{
			Stream: StreamKey(cd.Interval),
			MaxLen: streamMaxLen,
			Approx: true,
			Values: map[string]interface{}{
				"kind":   kind,
				"symbol": cd.Symbol,
				"ts":     cd.TS.Unix(),
				"data":   data,
			},
		})
		pipe.Publish(ctx, ChannelKey(cd.Symbol, cd.Interval), data)
		_, err := pipe.Exec(ctx)
		return err
	})
}

// Ping checks the connection, bypassing the breaker.
func (c *TailCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the client.
func (c *TailCache) Close() error {
	return c.client.Close()
}
