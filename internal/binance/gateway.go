package binance

import (
	"context"

	"binance-recorder/internal/domain"
)

// MarketData is the pull side of the exchange: backfill queries.
type MarketData interface {
	// RecentTrades returns up to limit of the most recent trades, oldest first.
	RecentTrades(ctx context.Context, symbol string, limit int) ([]*domain.Trade, error)

	// Klines returns candles whose open time falls in the query range, oldest first.
	Klines(ctx context.Context, q KlineQuery) ([]*domain.Candle, error)
}

// Stream is the push side of the exchange: one live subscription connection.
// It is not restartable; once Messages is closed the stream is over.
type Stream interface {
	// Subscribe adds streams to the connection and waits for the acknowledgement.
	Subscribe(ctx context.Context, streams []string) error

	// Unsubscribe cancels streams on the exchange side and waits for the acknowledgement.
	Unsubscribe(ctx context.Context, streams []string) error

	// Messages yields raw event payloads. Closed when the connection ends.
	Messages() <-chan []byte

	// Err reports why Messages was closed. Nil after a local Close.
	Err() error

	// Close terminates the connection.
	Close() error
}

// KlineQuery selects a page of candles.
type KlineQuery struct {
	Symbol    string
	Interval  string
	StartTime int64  // inclusive, Unix ms
	EndTime   *int64 // inclusive, Unix ms; nil for open-ended
	Limit     int
}
