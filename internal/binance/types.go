package binance

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"

	"binance-recorder/internal/domain"
)

// restTrade is one element of GET /api/v3/trades.
type restTrade struct {
	ID           int64  `json:"id"`
	Price        string `json:"price"`
	Qty          string `json:"qty"`
	QuoteQty     string `json:"quoteQty"`
	Time         int64  `json:"time"`
	IsBuyerMaker bool   `json:"isBuyerMaker"`
	IsBestMatch  bool   `json:"isBestMatch"`
}

func (r *restTrade) toDomain() (*domain.Trade, error) {
	price, err := decimal.NewFromString(r.Price)
	if err != nil {
		return nil, fmt.Errorf("price %q: %w", r.Price, err)
	}
	qty, err := decimal.NewFromString(r.Qty)
	if err != nil {
		return nil, fmt.Errorf("qty %q: %w", r.Qty, err)
	}
	return &domain.Trade{
		TradeTime:    r.Time,
		TradeID:      r.ID,
		Price:        price,
		Quantity:     qty,
		IsBuyerMaker: r.IsBuyerMaker,
	}, nil
}

// restKline is one row of GET /api/v3/klines, decoded positionally:
// [openTime, open, high, low, close, volume, closeTime, quoteVolume,
// numTrades, takerBuyBase, takerBuyQuote, ignore].
type restKline []json.RawMessage

const restKlineMinFields = 11

func (r restKline) toDomain() (*domain.Candle, error) {
	if len(r) < restKlineMinFields {
		return nil, fmt.Errorf("expected %d fields, got %d", restKlineMinFields, len(r))
	}

	var c domain.Candle
	var err error

	if c.OpenTime, err = rawInt(r[0]); err != nil {
		return nil, fmt.Errorf("open time: %w", err)
	}
	if c.CloseTime, err = rawInt(r[6]); err != nil {
		return nil, fmt.Errorf("close time: %w", err)
	}
	if c.NumTrades, err = rawInt(r[8]); err != nil {
		return nil, fmt.Errorf("trade count: %w", err)
	}

	decimals := []struct {
		idx int
		dst *decimal.Decimal
	}{
		{1, &c.OpenPrice},
		{2, &c.HighPrice},
		{3, &c.LowPrice},
		{4, &c.ClosePrice},
		{5, &c.BaseAssetVolume},
		{7, &c.QuoteAssetVolume},
		{9, &c.TakerBuyBaseVolume},
		{10, &c.TakerBuyQuoteVolume},
	}
	for _, d := range decimals {
		if *d.dst, err = rawDecimal(r[d.idx]); err != nil {
			return nil, fmt.Errorf("field %d: %w", d.idx, err)
		}
	}

	return &c, nil
}

func rawInt(raw json.RawMessage) (int64, error) {
	var n int64
	if err := json.Unmarshal(raw, &n); err != nil {
		return 0, err
	}
	return n, nil
}

func rawDecimal(raw json.RawMessage) (decimal.Decimal, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromString(s)
}

// parseDecimal parses a wire decimal string.
func parseDecimal(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, fmt.Errorf("empty decimal")
	}
	return decimal.NewFromString(s)
}
