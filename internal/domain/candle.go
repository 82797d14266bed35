package domain

import "github.com/shopspring/decimal"

// Candle represents one kline bucket.
// Corresponds to klines_1s table. Wire fields of the live kline stream (k.*) are noted per field.
type Candle struct {
	SessionID           int64           // FK sessions.id
	OpenTime            int64           // k.t: bucket identity, Unix ms
	CloseTime           int64           // k.T
	FirstTradeID        *int64          // k.f: live stream only (nullable)
	LastTradeID         *int64          // k.L: live stream only (nullable)
	OpenPrice           decimal.Decimal // k.o
	ClosePrice          decimal.Decimal // k.c
	HighPrice           decimal.Decimal // k.h
	LowPrice            decimal.Decimal // k.l
	BaseAssetVolume     decimal.Decimal // k.v
	NumTrades           int64           // k.n
	QuoteAssetVolume    decimal.Decimal // k.q
	TakerBuyBaseVolume  decimal.Decimal // k.V
	TakerBuyQuoteVolume decimal.Decimal // k.Q

	// Closed is k.x. It is not persisted; it only drives live acceptance.
	Closed bool
}

// Version orders successive updates of the same bucket.
// An update is newer when it covers more trades or closes the bucket.
type CandleVersion struct {
	OpenTime    int64
	LastTradeID int64
	Closed      bool
}

// Version returns the ordering key of this candle update.
func (c *Candle) Version() CandleVersion {
	v := CandleVersion{OpenTime: c.OpenTime, Closed: c.Closed, LastTradeID: -1}
	if c.LastTradeID != nil {
		v.LastTradeID = *c.LastTradeID
	}
	return v
}

// After reports whether v is strictly newer than other.
func (v CandleVersion) After(other CandleVersion) bool {
	if v.OpenTime != other.OpenTime {
		return v.OpenTime > other.OpenTime
	}
	if v.LastTradeID != other.LastTradeID {
		return v.LastTradeID > other.LastTradeID
	}
	return v.Closed && !other.Closed
}
