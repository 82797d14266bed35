package memory

import (
	"context"
	"sync"

	"binance-recorder/internal/domain"
	"binance-recorder/internal/storage"
)

// CandleStore is an in-memory implementation of storage.CandleStore.
// Rows are kept in insertion order.
type CandleStore struct {
	mu    sync.RWMutex
	rows  []*domain.Candle
	first map[candleKey]int // index of the first row per bucket
}

type candleKey struct {
	sessionID int64
	openTime  int64
}

// NewCandleStore creates a new in-memory candle store.
func NewCandleStore() *CandleStore {
	return &CandleStore{first: make(map[candleKey]int)}
}

func (s *CandleStore) appendLocked(c *domain.Candle) {
	key := candleKey{c.SessionID, c.OpenTime}
	if _, ok := s.first[key]; !ok {
		s.first[key] = len(s.rows)
	}
	s.rows = append(s.rows, c)
}

// InsertBulk appends multiple candles atomically.
func (s *CandleStore) InsertBulk(_ context.Context, candles []*domain.Candle) error {
	if len(candles) == 0 {
		return nil
	}
	if err := validateCandles(candles); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range candles {
		copy := *c
		s.appendLocked(&copy)
	}
	return nil
}

// UpsertBulk replaces rows with the same (session_id, open_time) in place
// and appends the rest.
func (s *CandleStore) UpsertBulk(_ context.Context, candles []*domain.Candle) error {
	if len(candles) == 0 {
		return nil
	}
	if err := validateCandles(candles); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range candles {
		copy := *c
		if i, ok := s.first[candleKey{c.SessionID, c.OpenTime}]; ok {
			s.rows[i] = &copy
			continue
		}
		s.appendLocked(&copy)
	}
	return nil
}

// GetBySession retrieves all candle rows for a session in insertion order.
func (s *CandleStore) GetBySession(_ context.Context, sessionID int64) ([]*domain.Candle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Candle
	for _, c := range s.rows {
		if c.SessionID == sessionID {
			copy := *c
			result = append(result, &copy)
		}
	}
	return result, nil
}

func validateCandles(candles []*domain.Candle) error {
	for _, c := range candles {
		if c == nil || c.SessionID == 0 {
			return storage.ErrInvalidInput
		}
	}
	return nil
}

var _ storage.CandleStore = (*CandleStore)(nil)
