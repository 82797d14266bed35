package domain

import "github.com/shopspring/decimal"

// Trade represents one executed trade.
// Corresponds to trades table. Wire fields of the live trade stream are noted per field.
type Trade struct {
	SessionID     int64           // FK sessions.id
	TradeTime     int64           // T: trade time, Unix ms
	TradeID       int64           // t: exchange trade id, increasing per symbol
	Price         decimal.Decimal // p
	Quantity      decimal.Decimal // q
	BuyerOrderID  *int64          // b: live stream only (nullable)
	SellerOrderID *int64          // a: live stream only (nullable)
	IsBuyerMaker  bool            // m
}
