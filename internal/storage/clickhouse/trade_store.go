package clickhouse

import (
	"context"
	"fmt"

	"binance-recorder/internal/domain"
	"binance-recorder/internal/storage"
)

// TradeStore implements storage.TradeStore using ClickHouse.
type TradeStore struct {
	conn *Conn
	seq  *sequence
}

// NewTradeStore creates a new TradeStore.
func NewTradeStore(conn *Conn) *TradeStore {
	return &TradeStore{conn: conn, seq: newSequence()}
}

// Compile-time interface check.
var _ storage.TradeStore = (*TradeStore)(nil)

// InsertBulk adds multiple trades. Fails entire batch on duplicate (session_id, trade_id).
func (s *TradeStore) InsertBulk(ctx context.Context, trades []*domain.Trade) error {
	if len(trades) == 0 {
		return nil
	}

	// Check for intra-batch duplicates
	type key struct {
		sessionID int64
		tradeID   int64
	}
	seen := make(map[key]struct{}, len(trades))
	bySession := make(map[int64][]int64)
	for _, t := range trades {
		if t == nil || t.SessionID == 0 {
			return storage.ErrInvalidInput
		}
		k := key{t.SessionID, t.TradeID}
		if _, exists := seen[k]; exists {
			return storage.ErrDuplicateKey
		}
		seen[k] = struct{}{}
		bySession[t.SessionID] = append(bySession[t.SessionID], t.TradeID)
	}

	// Check for duplicates against existing DB rows
	for sessionID, ids := range bySession {
		var count uint64
		err := s.conn.QueryRow(ctx, `
			SELECT count() FROM trades
			WHERE session_id = ? AND has(?, trade_id)
		`, sessionID, ids).Scan(&count)
		if err != nil {
			return fmt.Errorf("check exists: %w", err)
		}
		if count > 0 {
			return storage.ErrDuplicateKey
		}
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO trades (
			session_id, trade_time, trade_id, price, quantity,
			buyer_order_id, seller_order_id, is_buyer_maker, insert_seq
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, t := range trades {
		err = batch.Append(
			t.SessionID, t.TradeTime, t.TradeID, t.Price, t.Quantity,
			t.BuyerOrderID, t.SellerOrderID, t.IsBuyerMaker, s.seq.next(),
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	return nil
}

// TimeBounds returns min and max trade_time for a session.
func (s *TradeStore) TimeBounds(ctx context.Context, sessionID int64) (int64, int64, error) {
	var count uint64
	var begin, end int64
	err := s.conn.QueryRow(ctx, `
		SELECT count(), min(trade_time), max(trade_time)
		FROM trades
		WHERE session_id = ?
	`, sessionID).Scan(&count, &begin, &end)
	if err != nil {
		return 0, 0, fmt.Errorf("query trade bounds: %w", err)
	}
	if count == 0 {
		return 0, 0, storage.ErrNotFound
	}
	return begin, end, nil
}

// GetBySession retrieves all trades for a session in insertion order.
func (s *TradeStore) GetBySession(ctx context.Context, sessionID int64) ([]*domain.Trade, error) {
	query := `
		SELECT session_id, trade_time, trade_id, price, quantity,
		       buyer_order_id, seller_order_id, is_buyer_maker
		FROM trades
		WHERE session_id = ?
		ORDER BY insert_seq ASC
	`

	rows, err := s.conn.Query(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query trades by session: %w", err)
	}
	defer rows.Close()

	return scanTrades(rows)
}

func scanTrades(rows chRows) ([]*domain.Trade, error) {
	var trades []*domain.Trade

	for rows.Next() {
		var t domain.Trade
		err := rows.Scan(
			&t.SessionID, &t.TradeTime, &t.TradeID, &t.Price, &t.Quantity,
			&t.BuyerOrderID, &t.SellerOrderID, &t.IsBuyerMaker,
		)
		if err != nil {
			return nil, fmt.Errorf("scan trade: %w", err)
		}
		trades = append(trades, &t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trades: %w", err)
	}

	return trades, nil
}
