package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"binance-recorder/internal/domain"
	"binance-recorder/internal/storage"
)

// TradeStore implements storage.TradeStore using PostgreSQL.
type TradeStore struct {
	pool *Pool
}

// NewTradeStore creates a new TradeStore.
func NewTradeStore(pool *Pool) *TradeStore {
	return &TradeStore{pool: pool}
}

// Compile-time interface check.
var _ storage.TradeStore = (*TradeStore)(nil)

const insertTradeQuery = `
	INSERT INTO trades (
		session_id, trade_time, trade_id, price, quantity,
		buyer_order_id, seller_order_id, is_buyer_maker
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
`

// InsertBulk adds multiple trades atomically. Fails entire batch on any duplicate.
func (s *TradeStore) InsertBulk(ctx context.Context, trades []*domain.Trade) error {
	if len(trades) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, t := range trades {
		if t == nil || t.SessionID == 0 {
			return storage.ErrInvalidInput
		}
		batch.Queue(insertTradeQuery,
			t.SessionID,
			t.TradeTime,
			t.TradeID,
			t.Price,
			t.Quantity,
			t.BuyerOrderID,
			t.SellerOrderID,
			t.IsBuyerMaker,
		)
	}

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert trades in bulk: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	return nil
}

// TimeBounds returns min and max trade_time for a session.
func (s *TradeStore) TimeBounds(ctx context.Context, sessionID int64) (int64, int64, error) {
	var begin, end *int64
	err := s.pool.QueryRow(ctx, `
		SELECT MIN(trade_time), MAX(trade_time)
		FROM trades
		WHERE session_id = $1
	`, sessionID).Scan(&begin, &end)
	if err != nil {
		return 0, 0, fmt.Errorf("query trade bounds: %w", err)
	}
	if begin == nil || end == nil {
		return 0, 0, storage.ErrNotFound
	}
	return *begin, *end, nil
}

// GetBySession retrieves all trades for a session in insertion order.
func (s *TradeStore) GetBySession(ctx context.Context, sessionID int64) ([]*domain.Trade, error) {
	query := `
		SELECT session_id, trade_time, trade_id, price, quantity,
		       buyer_order_id, seller_order_id, is_buyer_maker
		FROM trades
		WHERE session_id = $1
		ORDER BY id ASC
	`

	rows, err := s.pool.Query(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("get trades by session: %w", err)
	}
	defer rows.Close()

	return scanTrades(rows)
}

// scanTrades scans multiple rows into a slice of Trade.
func scanTrades(rows pgx.Rows) ([]*domain.Trade, error) {
	var trades []*domain.Trade

	for rows.Next() {
		var t domain.Trade
		err := rows.Scan(
			&t.SessionID,
			&t.TradeTime,
			&t.TradeID,
			&t.Price,
			&t.Quantity,
			&t.BuyerOrderID,
			&t.SellerOrderID,
			&t.IsBuyerMaker,
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
