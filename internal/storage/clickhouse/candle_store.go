package clickhouse

import (
	"context"
	"fmt"

	"binance-recorder/internal/domain"
	"binance-recorder/internal/storage"
)

// CandleStore implements storage.CandleStore using ClickHouse.
type CandleStore struct {
	conn *Conn
	seq  *sequence
}

// NewCandleStore creates a new CandleStore.
func NewCandleStore(conn *Conn) *CandleStore {
	return &CandleStore{conn: conn, seq: newSequence()}
}

// Compile-time interface check.
var _ storage.CandleStore = (*CandleStore)(nil)

// InsertBulk appends multiple candles in one batch.
func (s *CandleStore) InsertBulk(ctx context.Context, candles []*domain.Candle) error {
	if len(candles) == 0 {
		return nil
	}
	for _, c := range candles {
		if c == nil || c.SessionID == 0 {
			return storage.ErrInvalidInput
		}
	}
	return s.send(ctx, candles)
}

// UpsertBulk inserts the new versions of each (session_id, open_time) and then
// removes the older rows for those buckets. The insert is the commit point:
// when it fails the stored versions are untouched. When the cleanup fails the
// call errors with the new rows already stored, and a retry of the same batch
// removes every superseded row.
func (s *CandleStore) UpsertBulk(ctx context.Context, candles []*domain.Candle) error {
	if len(candles) == 0 {
		return nil
	}
	for _, c := range candles {
		if c == nil || c.SessionID == 0 {
			return storage.ErrInvalidInput
		}
	}

	// Later entries win when one batch carries several versions of a bucket.
	type key struct {
		sessionID int64
		openTime  int64
	}
	latest := make(map[key]int, len(candles))
	for i, c := range candles {
		latest[key{c.SessionID, c.OpenTime}] = i
	}
	deduped := make([]*domain.Candle, 0, len(latest))
	bySession := make(map[int64][]int64)
	for i, c := range candles {
		if latest[key{c.SessionID, c.OpenTime}] == i {
			deduped = append(deduped, c)
			bySession[c.SessionID] = append(bySession[c.SessionID], c.OpenTime)
		}
	}

	firstSeq, err := s.insert(ctx, deduped)
	if err != nil {
		return err
	}

	for sessionID, openTimes := range bySession {
		err := s.conn.Exec(ctx, `
			DELETE FROM klines_1s
			WHERE session_id = ? AND has(?, open_time) AND insert_seq < ?
		`, sessionID, openTimes, firstSeq)
		if err != nil {
			return fmt.Errorf("delete replaced candles: %w", err)
		}
	}
	return nil
}

func (s *CandleStore) send(ctx context.Context, candles []*domain.Candle) error {
	_, err := s.insert(ctx, candles)
	return err
}

// insert writes candles in one batch and returns the insert_seq of the first row.
func (s *CandleStore) insert(ctx context.Context, candles []*domain.Candle) (uint64, error) {
	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO klines_1s (
			session_id, open_time, close_time, first_trade_id, last_trade_id,
			open_price, close_price, high_price, low_price, base_asset_volume,
			num_trades, quote_asset_volume, taker_buy_base_volume, taker_buy_quote_volume,
			insert_seq
		)
	`)
	if err != nil {
		return 0, fmt.Errorf("prepare batch: %w", err)
	}

	var firstSeq uint64
	for i, c := range candles {
		seq := s.seq.next()
		if i == 0 {
			firstSeq = seq
		}
		err = batch.Append(
			c.SessionID, c.OpenTime, c.CloseTime, c.FirstTradeID, c.LastTradeID,
			c.OpenPrice, c.ClosePrice, c.HighPrice, c.LowPrice, c.BaseAssetVolume,
			c.NumTrades, c.QuoteAssetVolume, c.TakerBuyBaseVolume, c.TakerBuyQuoteVolume,
			seq,
		)
		if err != nil {
			return 0, fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return 0, fmt.Errorf("send batch: %w", err)
	}
	return firstSeq, nil
}

// GetBySession retrieves all candle rows for a session in insertion order.
func (s *CandleStore) GetBySession(ctx context.Context, sessionID int64) ([]*domain.Candle, error) {
	query := `
		SELECT session_id, open_time, close_time, first_trade_id, last_trade_id,
		       open_price, close_price, high_price, low_price, base_asset_volume,
		       num_trades, quote_asset_volume, taker_buy_base_volume, taker_buy_quote_volume
		FROM klines_1s
		WHERE session_id = ?
		ORDER BY insert_seq ASC
	`

	rows, err := s.conn.Query(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query candles by session: %w", err)
	}
	defer rows.Close()

	return scanCandles(rows)
}

func scanCandles(rows chRows) ([]*domain.Candle, error) {
	var candles []*domain.Candle

	for rows.Next() {
		var c domain.Candle
		err := rows.Scan(
			&c.SessionID, &c.OpenTime, &c.CloseTime, &c.FirstTradeID, &c.LastTradeID,
			&c.OpenPrice, &c.ClosePrice, &c.HighPrice, &c.LowPrice, &c.BaseAssetVolume,
			&c.NumTrades, &c.QuoteAssetVolume, &c.TakerBuyBaseVolume, &c.TakerBuyQuoteVolume,
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
