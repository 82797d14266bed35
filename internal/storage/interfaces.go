package storage

import (
	"context"

	"binance-recorder/internal/domain"
)

// SessionStore provides access to sessions storage.
type SessionStore interface {
	// Create inserts a session with null bounds and returns the store-assigned ID.
	Create(ctx context.Context, symbol string) (int64, error)

	// GetByID retrieves a session. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, id int64) (*domain.Session, error)

	// UpdateBounds sets begin_time/end_time. Returns ErrNotFound if the session does not exist.
	UpdateBounds(ctx context.Context, id int64, begin, end int64) error
}

// TradeStore provides access to trades storage.
type TradeStore interface {
	// InsertBulk adds multiple trades atomically. Fails entire batch on any error.
	InsertBulk(ctx context.Context, trades []*domain.Trade) error

	// TimeBounds returns min and max trade_time for a session.
	// Returns ErrNotFound if the session has no trades.
	TimeBounds(ctx context.Context, sessionID int64) (begin, end int64, err error)

	// GetBySession retrieves all trades for a session in insertion order.
	GetBySession(ctx context.Context, sessionID int64) ([]*domain.Trade, error)
}

// CandleStore provides access to klines_1s storage.
type CandleStore interface {
	// InsertBulk appends multiple candles atomically. Fails entire batch on any error.
	InsertBulk(ctx context.Context, candles []*domain.Candle) error

	// UpsertBulk writes multiple candles atomically, replacing any row
	// with the same (session_id, open_time).
	UpsertBulk(ctx context.Context, candles []*domain.Candle) error

	// GetBySession retrieves all candle rows for a session in insertion order.
	GetBySession(ctx context.Context, sessionID int64) ([]*domain.Candle, error)
}
