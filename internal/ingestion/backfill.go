package ingestion

import (
	"context"
	"log"
	"time"

	"binance-recorder/internal/binance"
	"binance-recorder/internal/domain"
	"binance-recorder/internal/observability"
	"binance-recorder/internal/storage"
)

// Backfill defaults.
const (
	DefaultRecentTrades   = 1000
	DefaultKlinePageLimit = 1000
	DefaultInterval       = "1s"
)

// Backfiller seeds a session from the REST API and computes the cutover boundary.
type Backfiller struct {
	market    binance.MarketData
	trades    storage.TradeStore
	candles   storage.CandleStore
	pageLimit int
	logger    *log.Logger
}

// BackfillOptions contains configuration for creating a Backfiller.
type BackfillOptions struct {
	MarketData  binance.MarketData
	TradeStore  storage.TradeStore
	CandleStore storage.CandleStore
	PageLimit   int // Default: 1000 candles per request
	Logger      *log.Logger
}

// NewBackfiller creates a new Backfiller.
func NewBackfiller(opts BackfillOptions) *Backfiller {
	pageLimit := opts.PageLimit
	if pageLimit <= 0 {
		pageLimit = DefaultKlinePageLimit
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	return &Backfiller{
		market:    opts.MarketData,
		trades:    opts.TradeStore,
		candles:   opts.CandleStore,
		pageLimit: pageLimit,
		logger:    logger,
	}
}

// TradeWindow summarizes the persisted recent-trade window.
type TradeWindow struct {
	FirstTime   int64 // earliest trade_time
	LastTime    int64 // latest trade_time
	LastTradeID int64 // highest trade_id
	Count       int
}

// Run backfills trades then candles and returns the boundary markers.
// Any failure is wrapped in *BackfillError.
func (b *Backfiller) Run(ctx context.Context, sessionID int64, symbol, interval string, recentTrades int) (domain.Boundary, error) {
	start := time.Now()

	window, err := b.FetchRecentTrades(ctx, sessionID, symbol, recentTrades)
	if err != nil {
		return domain.Boundary{}, &BackfillError{Stage: "trades", Err: err}
	}

	lastOpen, err := b.FetchCandles(ctx, sessionID, symbol, interval, window.FirstTime, window.LastTime)
	if err != nil {
		return domain.Boundary{}, &BackfillError{Stage: "candles", Err: err}
	}

	boundary := domain.Boundary{
		LastTradeID:       window.LastTradeID,
		LastKlineOpenTime: lastOpen,
	}
	observability.UpdateBoundary(boundary.LastTradeID, boundary.LastKlineOpenTime)
	b.logger.Printf("Backfill complete in %v: %d trades, boundary trade_id=%d kline_open_time=%d",
		time.Since(start), window.Count, boundary.LastTradeID, boundary.LastKlineOpenTime)

	return boundary, nil
}

// FetchRecentTrades pulls the most recent limit trades, persists them in one
// bulk insert and returns their time range and highest id.
func (b *Backfiller) FetchRecentTrades(ctx context.Context, sessionID int64, symbol string, limit int) (TradeWindow, error) {
	if limit <= 0 {
		limit = DefaultRecentTrades
	}

	trades, err := b.market.RecentTrades(ctx, symbol, limit)
	if err != nil {
		return TradeWindow{}, &GatewayError{Op: "recent trades", Err: err}
	}
	if len(trades) == 0 {
		return TradeWindow{}, ErrNoRecentTrades
	}

	SortTrades(trades)

	window := TradeWindow{
		FirstTime:   trades[0].TradeTime,
		LastTime:    trades[0].TradeTime,
		LastTradeID: trades[len(trades)-1].TradeID,
		Count:       len(trades),
	}
	for _, t := range trades {
		t.SessionID = sessionID
		if t.TradeTime < window.FirstTime {
			window.FirstTime = t.TradeTime
		}
		if t.TradeTime > window.LastTime {
			window.LastTime = t.TradeTime
		}
	}

	if err := b.trades.InsertBulk(ctx, trades); err != nil {
		return TradeWindow{}, &StorageError{Op: "insert backfill trades", Err: err}
	}
	observability.RecordRowsStored("trade", "backfill", len(trades))

	b.logger.Printf("Backfilled %d trades [%d..%d], time [%d, %d]",
		len(trades), trades[0].TradeID, window.LastTradeID, window.FirstTime, window.LastTime)

	return window, nil
}

// FetchCandles pages candles forward from floor(from) until a page ends at or
// beyond floor(to), persisting every page as it arrives. Each request starts
// just past the previous page's last open time. Returns the last open time
// persisted, or 0 if the exchange had no candles in range.
func (b *Backfiller) FetchCandles(ctx context.Context, sessionID int64, symbol, interval string, from, to int64) (int64, error) {
	if interval == "" {
		interval = DefaultInterval
	}

	start := domain.FloorToSecond(from)
	target := domain.FloorToSecond(to)

	var last int64
	pages := 0

	for {
		if err := ctx.Err(); err != nil {
			return last, err
		}

		page, err := b.market.Klines(ctx, binance.KlineQuery{
			Symbol:    symbol,
			Interval:  interval,
			StartTime: start,
			Limit:     b.pageLimit,
		})
		if err != nil {
			return last, &GatewayError{Op: "klines", Err: err}
		}
		observability.RecordBackfillPage()

		if len(page) == 0 {
			break
		}

		SortCandles(page)
		pageLast := page[len(page)-1].OpenTime
		if pages > 0 && pageLast <= last {
			return last, &BackfillStalledError{Start: start, LastOpenTime: pageLast, PrevOpenTime: last}
		}

		for _, c := range page {
			c.SessionID = sessionID
		}
		if err := b.candles.InsertBulk(ctx, page); err != nil {
			return last, &StorageError{Op: "insert backfill candles", Err: err}
		}
		observability.RecordRowsStored("kline", "backfill", len(page))

		last = pageLast
		pages++

		if last >= target {
			break
		}
		start = last + 1
	}

	b.logger.Printf("Backfilled candles over %d pages, last open time %d (target %d)", pages, last, target)
	return last, nil
}
