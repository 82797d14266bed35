package memory

import (
	"context"
	"sync"

	"binance-recorder/internal/domain"
	"binance-recorder/internal/storage"
)

type tradeKey struct {
	sessionID int64
	tradeID   int64
}

// TradeStore is an in-memory implementation of storage.TradeStore.
// Rows are kept in insertion order; (session_id, trade_id) is unique.
type TradeStore struct {
	mu   sync.RWMutex
	rows []*domain.Trade
	keys map[tradeKey]struct{}
}

// NewTradeStore creates a new in-memory trade store.
func NewTradeStore() *TradeStore {
	return &TradeStore{
		keys: make(map[tradeKey]struct{}),
	}
}

// InsertBulk adds multiple trades atomically. Fails entire batch on any duplicate.
func (s *TradeStore) InsertBulk(_ context.Context, trades []*domain.Trade) error {
	if len(trades) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Track keys in this batch to detect intra-batch duplicates
	batchKeys := make(map[tradeKey]struct{}, len(trades))

	for _, t := range trades {
		if t == nil || t.SessionID == 0 {
			return storage.ErrInvalidInput
		}
		k := tradeKey{t.SessionID, t.TradeID}
		if _, exists := s.keys[k]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := batchKeys[k]; exists {
			return storage.ErrDuplicateKey
		}
		batchKeys[k] = struct{}{}
	}

	for _, t := range trades {
		copy := *t
		s.rows = append(s.rows, &copy)
		s.keys[tradeKey{t.SessionID, t.TradeID}] = struct{}{}
	}

	return nil
}

// TimeBounds returns min and max trade_time for a session.
func (s *TradeStore) TimeBounds(_ context.Context, sessionID int64) (int64, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var begin, end int64
	found := false
	for _, t := range s.rows {
		if t.SessionID != sessionID {
			continue
		}
		if !found || t.TradeTime < begin {
			begin = t.TradeTime
		}
		if !found || t.TradeTime > end {
			end = t.TradeTime
		}
		found = true
	}

	if !found {
		return 0, 0, storage.ErrNotFound
	}
	return begin, end, nil
}

// GetBySession retrieves all trades for a session in insertion order.
func (s *TradeStore) GetBySession(_ context.Context, sessionID int64) ([]*domain.Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Trade
	for _, t := range s.rows {
		if t.SessionID == sessionID {
			copy := *t
			result = append(result, &copy)
		}
	}
	return result, nil
}

var _ storage.TradeStore = (*TradeStore)(nil)
