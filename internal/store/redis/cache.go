// Package redis provides a short-TTL cache for upstream responses.
// With per-connection push-sessions, N viewers of one instrument mean N
// identical upstream calls per refresh tick; the cache collapses those
// without coalescing the sessions themselves.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"kiwoom-gateway/internal/model"
)

const (
	// TTLs sit below the refresh intervals (15s quote, 60s candle) so a
	// single session never sees its own stale write twice.
	quoteTTL  = 5 * time.Second
	candleTTL = 30 * time.Second
)

// Config configures the Redis cache connection.
type Config struct {
	Addr     string
	Password string
	DB       int
}

// Cache stores normalized quotes and candle series under short TTLs.
type Cache struct {
	client *goredis.Client
}

// New creates a Cache and pings the server.
func New(cfg Config) (*Cache, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	log.Printf("[redis] connected to %s", cfg.Addr)
	return &Cache{client: client}, nil
}

// Close releases the underlying connection pool.
func (c *Cache) Close() error { return c.client.Close() }

func quoteKey(symbol string) string { return "kiwoom:quote:" + symbol }

func candleKey(symbol string, tf model.Timeframe) string {
	return "kiwoom:candles:" + symbol + ":" + string(tf)
}

// GetQuote returns a cached quote, if present and unexpired.
func (c *Cache) GetQuote(ctx context.Context, symbol string) (model.Quote, bool) {
	data, err := c.client.Get(ctx, quoteKey(symbol)).Bytes()
	if err != nil {
		if err != goredis.Nil {
			log.Printf("[redis] quote read error: %v", err)
		}
		return model.Quote{}, false
	}
	var q model.Quote
	if err := json.Unmarshal(data, &q); err != nil {
		log.Printf("[redis] quote decode error: %v", err)
		return model.Quote{}, false
	}
	return q, true
}

// SetQuote caches a quote. Cache writes are best-effort.
func (c *Cache) SetQuote(ctx context.Context, symbol string, q model.Quote) {
	data, err := json.Marshal(q)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, quoteKey(symbol), data, quoteTTL).Err(); err != nil {
		log.Printf("[redis] quote write error: %v", err)
	}
}

// GetCandles returns a cached series, if present and unexpired.
func (c *Cache) GetCandles(ctx context.Context, symbol string, tf model.Timeframe) ([]model.Candle, bool) {
	data, err := c.client.Get(ctx, candleKey(symbol, tf)).Bytes()
	if err != nil {
		if err != goredis.Nil {
			log.Printf("[redis] candles read error: %v", err)
		}
		return nil, false
	}
	var series []model.Candle
	if err := json.Unmarshal(data, &series); err != nil {
		log.Printf("[redis] candles decode error: %v", err)
		return nil, false
	}
	return series, true
}

// SetCandles caches a series. Cache writes are best-effort.
func (c *Cache) SetCandles(ctx context.Context, symbol string, tf model.Timeframe, series []model.Candle) {
	data, err := json.Marshal(series)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, candleKey(symbol, tf), data, candleTTL).Err(); err != nil {
		log.Printf("[redis] candles write error: %v", err)
	}
}
