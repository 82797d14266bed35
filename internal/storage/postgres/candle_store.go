package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"binance-recorder/internal/domain"
	"binance-recorder/internal/storage"
)

// CandleStore implements storage.CandleStore using PostgreSQL.
type CandleStore struct {
	pool *Pool
}

// NewCandleStore creates a new CandleStore.
func NewCandleStore(pool *Pool) *CandleStore {
	return &CandleStore{pool: pool}
}

// Compile-time interface check.
var _ storage.CandleStore = (*CandleStore)(nil)

const insertCandleQuery = `
	INSERT INTO klines_1s (
		session_id, open_time, close_time, first_trade_id, last_trade_id,
		open_price, close_price, high_price, low_price, base_asset_volume,
		num_trades, quote_asset_volume, taker_buy_base_volume, taker_buy_quote_volume
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
`

const updateCandleQuery = `
	UPDATE klines_1s SET
		close_time = $3, first_trade_id = $4, last_trade_id = $5,
		open_price = $6, close_price = $7, high_price = $8, low_price = $9,
		base_asset_volume = $10, num_trades = $11, quote_asset_volume = $12,
		taker_buy_base_volume = $13, taker_buy_quote_volume = $14
	WHERE session_id = $1 AND open_time = $2
`

func candleArgs(c *domain.Candle) []any {
	return []any{
		c.SessionID,
		c.OpenTime,
		c.CloseTime,
		c.FirstTradeID,
		c.LastTradeID,
		c.OpenPrice,
		c.ClosePrice,
		c.HighPrice,
		c.LowPrice,
		c.BaseAssetVolume,
		c.NumTrades,
		c.QuoteAssetVolume,
		c.TakerBuyBaseVolume,
		c.TakerBuyQuoteVolume,
	}
}

// InsertBulk appends multiple candles atomically.
func (s *CandleStore) InsertBulk(ctx context.Context, candles []*domain.Candle) error {
	if len(candles) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, c := range candles {
		if c == nil || c.SessionID == 0 {
			return storage.ErrInvalidInput
		}
		batch.Queue(insertCandleQuery, candleArgs(c)...)
	}

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert candles in bulk: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	return nil
}

// UpsertBulk updates the row for each (session_id, open_time) in place,
// inserting when none exists. Runs in one transaction.
func (s *CandleStore) UpsertBulk(ctx context.Context, candles []*domain.Candle) error {
	if len(candles) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, c := range candles {
		if c == nil || c.SessionID == 0 {
			return storage.ErrInvalidInput
		}
		args := candleArgs(c)
		tag, err := tx.Exec(ctx, updateCandleQuery, args...)
		if err != nil {
			return fmt.Errorf("update candle: %w", err)
		}
		if tag.RowsAffected() > 0 {
			continue
		}
		if _, err := tx.Exec(ctx, insertCandleQuery, args...); err != nil {
			return fmt.Errorf("insert candle: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	return nil
}

// GetBySession retrieves all candle rows for a session in insertion order.
func (s *CandleStore) GetBySession(ctx context.Context, sessionID int64) ([]*domain.Candle, error) {
	query := `
		SELECT session_id, open_time, close_time, first_trade_id, last_trade_id,
		       open_price, close_price, high_price, low_price, base_asset_volume,
		       num_trades, quote_asset_volume, taker_buy_base_volume, taker_buy_quote_volume
		FROM klines_1s
		WHERE session_id = $1
		ORDER BY id ASC
	`

	rows, err := s.pool.Query(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("get candles by session: %w", err)
	}
	defer rows.Close()

	return scanCandles(rows)
}

// scanCandles scans multiple rows into a slice of Candle.
func scanCandles(rows pgx.Rows) ([]*domain.Candle, error) {
	var candles []*domain.Candle

	for rows.Next() {
		var c domain.Candle
		err := rows.Scan(
			&c.SessionID,
			&c.OpenTime,
			&c.CloseTime,
			&c.FirstTradeID,
			&c.LastTradeID,
			&c.OpenPrice,
			&c.ClosePrice,
			&c.HighPrice,
			&c.LowPrice,
			&c.BaseAssetVolume,
			&c.NumTrades,
			&c.QuoteAssetVolume,
			&c.TakerBuyBaseVolume,
			&c.TakerBuyQuoteVolume,
		)
		if err != nil {
			return nil, fmt.Errorf("scan candle: %w", err)
		}
		candles = append(candles, &c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate candles: %w", err)
	}

	return candles, nil
}
