// Package cache publishes the newest stored trade and candle to Redis
// so readers can see the head of the session without querying the store.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"binance-recorder/internal/domain"
)

// DefaultTTL is applied when no TTL is configured.
const DefaultTTL = time.Minute

// LatestTrade is the cached snapshot of the newest stored trade.
type LatestTrade struct {
	SessionID    int64           `json:"session_id"`
	Symbol       string          `json:"symbol"`
	TradeID      int64           `json:"trade_id"`
	TradeTime    int64           `json:"trade_time"`
	Price        decimal.Decimal `json:"price"`
	Quantity     decimal.Decimal `json:"quantity"`
	IsBuyerMaker bool            `json:"is_buyer_maker"`
}

// LatestCandle is the cached snapshot of the newest stored candle.
type LatestCandle struct {
	SessionID int64           `json:"session_id"`
	Symbol    string          `json:"symbol"`
	OpenTime  int64           `json:"open_time"`
	CloseTime int64           `json:"close_time"`
	Open      decimal.Decimal `json:"open"`
	High      decimal.Decimal `json:"high"`
	Low       decimal.Decimal `json:"low"`
	Close     decimal.Decimal `json:"close"`
	Volume    decimal.Decimal `json:"volume"`
	NumTrades int64           `json:"num_trades"`
	Closed    bool            `json:"closed"`
}

// RedisPublisher writes latest-record snapshots under
// latest:binance:<symbol>:trade and latest:binance:<symbol>:kline.
type RedisPublisher struct {
	client *redis.Client
	symbol string
	ttl    time.Duration
}

// NewRedisPublisher connects to Redis and verifies the connection.
func NewRedisPublisher(ctx context.Context, addr, password string, db int, symbol string, ttl time.Duration) (*RedisPublisher, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	if ttl <= 0 {
		ttl = DefaultTTL
	}

	return &RedisPublisher{
		client: client,
		symbol: strings.ToUpper(symbol),
		ttl:    ttl,
	}, nil
}

func (p *RedisPublisher) key(kind string) string {
	return fmt.Sprintf("latest:binance:%s:%s", p.symbol, kind)
}

// Ping checks the connection.
func (p *RedisPublisher) Ping(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}

// PublishTrade stores t as the latest trade.
func (p *RedisPublisher) PublishTrade(ctx context.Context, t *domain.Trade) error {
	return p.set(ctx, "trade", LatestTrade{
		SessionID:    t.SessionID,
		Symbol:       p.symbol,
		TradeID:      t.TradeID,
		TradeTime:    t.TradeTime,
		Price:        t.Price,
		Quantity:     t.Quantity,
		IsBuyerMaker: t.IsBuyerMaker,
	})
}

// PublishCandle stores c as the latest candle.
func (p *RedisPublisher) PublishCandle(ctx context.Context, c *domain.Candle) error {
	return p.set(ctx, "kline", LatestCandle{
		SessionID: c.SessionID,
		Symbol:    p.symbol,
		OpenTime:  c.OpenTime,
		CloseTime: c.CloseTime,
		Open:      c.OpenPrice,
		High:      c.HighPrice,
		Low:       c.LowPrice,
		Close:     c.ClosePrice,
		Volume:    c.BaseAssetVolume,
		NumTrades: c.NumTrades,
		Closed:    c.Closed,
	})
}

func (p *RedisPublisher) set(ctx context.Context, kind string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal latest %s: %w", kind, err)
	}
	if err := p.client.Set(ctx, p.key(kind), data, p.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set latest %s in redis: %w", kind, err)
	}
	return nil
}

// LatestTrade returns the cached trade snapshot, or nil if none is cached.
func (p *RedisPublisher) LatestTrade(ctx context.Context) (*LatestTrade, error) {
	var t LatestTrade
	ok, err := p.get(ctx, "trade", &t)
	if err != nil || !ok {
		return nil, err
	}
	return &t, nil
}

// LatestCandle returns the cached candle snapshot, or nil if none is cached.
func (p *RedisPublisher) LatestCandle(ctx context.Context) (*LatestCandle, error) {
	var c LatestCandle
	ok, err := p.get(ctx, "kline", &c)
	if err != nil || !ok {
		return nil, err
	}
	return &c, nil
}

func (p *RedisPublisher) get(ctx context.Context, kind string, v interface{}) (bool, error) {
	data, err := p.client.Get(ctx, p.key(kind)).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to get latest %s from redis: %w", kind, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("failed to unmarshal latest %s: %w", kind, err)
	}
	return true, nil
}

// Close closes the Redis client.
func (p *RedisPublisher) Close() error {
	return p.client.Close()
}
