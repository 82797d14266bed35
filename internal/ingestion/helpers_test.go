package ingestion

import (
	"context"
	"errors"
	"sync"

	"github.com/shopspring/decimal"

	"binance-recorder/internal/domain"
	"binance-recorder/internal/storage"
	"binance-recorder/internal/storage/memory"
)

const baseTime int64 = 1_700_000_000_000

// orderValidatingTradeStore wraps a TradeStore and rejects any batch that is
// not strictly increasing, either internally or relative to earlier batches.
type orderValidatingTradeStore struct {
	storage.TradeStore
	mu   sync.Mutex
	last int64
}

func (s *orderValidatingTradeStore) InsertBulk(ctx context.Context, trades []*domain.Trade) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ValidateTradeOrdering(trades); err != nil {
		return err
	}
	if len(trades) > 0 && trades[0].TradeID <= s.last {
		return ErrInvalidOrdering
	}
	if err := s.TradeStore.InsertBulk(ctx, trades); err != nil {
		return err
	}
	if len(trades) > 0 {
		s.last = trades[len(trades)-1].TradeID
	}
	return nil
}

// orderValidatingCandleStore wraps a CandleStore with the same check on open_time.
type orderValidatingCandleStore struct {
	storage.CandleStore
	mu   sync.Mutex
	last int64
}

func (s *orderValidatingCandleStore) InsertBulk(ctx context.Context, candles []*domain.Candle) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ValidateCandleOrdering(candles); err != nil {
		return err
	}
	if len(candles) > 0 && candles[0].OpenTime <= s.last {
		return ErrInvalidOrdering
	}
	if err := s.CandleStore.InsertBulk(ctx, candles); err != nil {
		return err
	}
	if len(candles) > 0 {
		s.last = candles[len(candles)-1].OpenTime
	}
	return nil
}

// failingTradeStore fails the next failures InsertBulk calls.
type failingTradeStore struct {
	storage.TradeStore
	failures int
	calls    int
}

func (s *failingTradeStore) InsertBulk(ctx context.Context, trades []*domain.Trade) error {
	s.calls++
	if s.failures > 0 {
		s.failures--
		return errStoreDown
	}
	return s.TradeStore.InsertBulk(ctx, trades)
}

var errStoreDown = errors.New("store unavailable")

// recordingPublisher remembers the last published records.
type recordingPublisher struct {
	mu         sync.Mutex
	trades     []int64
	candles    []int64
	failTrades bool
}

func (p *recordingPublisher) PublishTrade(_ context.Context, t *domain.Trade) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failTrades {
		return errStoreDown
	}
	p.trades = append(p.trades, t.TradeID)
	return nil
}

func (p *recordingPublisher) PublishCandle(_ context.Context, c *domain.Candle) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.candles = append(p.candles, c.OpenTime)
	return nil
}

// tradeTime maps a trade id to a deterministic trade time, 10ms apart.
func tradeTime(id int64) int64 {
	return baseTime + id*10
}

// makeTrades builds REST-style trades with ids in [from, to].
func makeTrades(from, to int64) []*domain.Trade {
	trades := make([]*domain.Trade, 0, to-from+1)
	for id := from; id <= to; id++ {
		trades = append(trades, &domain.Trade{
			TradeID:      id,
			TradeTime:    tradeTime(id),
			Price:        decimal.RequireFromString("2000.50"),
			Quantity:     decimal.RequireFromString("0.125"),
			IsBuyerMaker: id%2 == 0,
		})
	}
	return trades
}

// makeCandles builds REST-style closed candles every second in [from, to].
func makeCandles(from, to int64) []*domain.Candle {
	var candles []*domain.Candle
	for open := from; open <= to; open += 1000 {
		candles = append(candles, &domain.Candle{
			OpenTime:            open,
			CloseTime:           open + 999,
			OpenPrice:           decimal.RequireFromString("2000.00"),
			ClosePrice:          decimal.RequireFromString("2001.00"),
			HighPrice:           decimal.RequireFromString("2002.00"),
			LowPrice:            decimal.RequireFromString("1999.00"),
			BaseAssetVolume:     decimal.RequireFromString("3.5"),
			NumTrades:           7,
			QuoteAssetVolume:    decimal.RequireFromString("7003.5"),
			TakerBuyBaseVolume:  decimal.RequireFromString("1.5"),
			TakerBuyQuoteVolume: decimal.RequireFromString("3001.5"),
			Closed:              true,
		})
	}
	return candles
}

func newMemoryStores() (*memory.SessionStore, *memory.TradeStore, *memory.CandleStore) {
	return memory.NewSessionStore(), memory.NewTradeStore(), memory.NewCandleStore()
}
