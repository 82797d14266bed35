package ingestion

import (
	"errors"
	"sort"

	"binance-recorder/internal/domain"
)

// ErrInvalidOrdering is returned when records are not strictly increasing.
var ErrInvalidOrdering = errors.New("records are not in strictly increasing order")

// SortTrades orders trades by trade_id ASC.
func SortTrades(trades []*domain.Trade) {
	sort.Slice(trades, func(i, j int) bool {
		return trades[i].TradeID < trades[j].TradeID
	})
}

// SortCandles orders candles by open_time ASC.
func SortCandles(candles []*domain.Candle) {
	sort.SliceStable(candles, func(i, j int) bool {
		return candles[i].OpenTime < candles[j].OpenTime
	})
}

// ValidateTradeOrdering checks that trade ids strictly increase.
// Returns ErrInvalidOrdering if not.
func ValidateTradeOrdering(trades []*domain.Trade) error {
	for i := 1; i < len(trades); i++ {
		if trades[i].TradeID <= trades[i-1].TradeID {
			return ErrInvalidOrdering
		}
	}
	return nil
}

// ValidateCandleOrdering checks that candle open times strictly increase.
// Returns ErrInvalidOrdering if not.
func ValidateCandleOrdering(candles []*domain.Candle) error {
	for i := 1; i < len(candles); i++ {
		if candles[i].OpenTime <= candles[i-1].OpenTime {
			return ErrInvalidOrdering
		}
	}
	return nil
}
