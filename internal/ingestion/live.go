package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"binance-recorder/internal/binance"
	"binance-recorder/internal/domain"
	"binance-recorder/internal/observability"
	"binance-recorder/internal/storage"
)

// DefaultBatchSize is the combined pending count that triggers a flush.
const DefaultBatchSize = 30

// CandlePolicy selects how live kline updates are stored.
type CandlePolicy string

const (
	// CandleAppend stores every accepted update as a new row.
	CandleAppend CandlePolicy = "append"
	// CandleLatest keeps one row per open time holding the newest update.
	CandleLatest CandlePolicy = "latest"
	// CandleClosed stores only final klines, once per bucket.
	CandleClosed CandlePolicy = "closed"
)

// ParseCandlePolicy converts a config string to a CandlePolicy.
// Empty string yields CandleAppend.
func ParseCandlePolicy(s string) (CandlePolicy, error) {
	switch CandlePolicy(s) {
	case "", CandleAppend:
		return CandleAppend, nil
	case CandleLatest:
		return CandleLatest, nil
	case CandleClosed:
		return CandleClosed, nil
	default:
		return "", fmt.Errorf("unknown candle policy %q", s)
	}
}

// Publisher receives the newest trade and candle after each successful flush.
type Publisher interface {
	PublishTrade(ctx context.Context, trade *domain.Trade) error
	PublishCandle(ctx context.Context, candle *domain.Candle) error
}

// LiveState is the live ingestor lifecycle state.
type LiveState int

const (
	// StateDraining accepts nothing for persistence until the boundary is set.
	StateDraining LiveState = iota
	// StateActive filters events against the boundary and persists them.
	StateActive
	// StateStopped rejects all further events.
	StateStopped
)

func (s LiveState) String() string {
	switch s {
	case StateDraining:
		return "draining"
	case StateActive:
		return "active"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Rejection reasons.
const (
	reasonBoundary = "boundary" // at or before the backfill marker
	reasonStale    = "stale"    // at or before the running watermark
	reasonOpen     = "open"     // kline not final under the closed policy
)

// LiveStats counts live ingestor activity.
type LiveStats struct {
	Received         int
	TradesAccepted   int
	CandlesAccepted  int
	Rejected         int
	SchemaMismatches int
	UnknownEvents    int
	Flushes          int
	FlushErrors      int
	RetryRowsDropped int
	TradesStored     int
	CandlesStored    int
}

// LiveOptions contains configuration for creating a LiveIngestor.
type LiveOptions struct {
	SessionID    int64
	TradeStore   storage.TradeStore
	CandleStore  storage.CandleStore
	BatchSize    int          // Default: 30
	CandlePolicy CandlePolicy // Default: append
	Publisher    Publisher    // optional
	Logger       *log.Logger
}

// LiveIngestor filters live events against the backfill boundary and
// persists accepted records in count-triggered batches.
type LiveIngestor struct {
	sessionID int64
	trades    storage.TradeStore
	candles   storage.CandleStore
	batchSize int
	policy    CandlePolicy
	publisher Publisher
	logger    *log.Logger

	mu       sync.Mutex
	state    LiveState
	boundary domain.Boundary

	// Running watermarks, seeded from the boundary.
	lastTradeID    int64
	lastCandle     domain.CandleVersion
	lastClosedOpen int64

	pendingTrades  []*domain.Trade
	pendingCandles []*domain.Candle

	// Rows from a failed flush, kept for one more attempt.
	retryTrades  []*domain.Trade
	retryCandles []*domain.Candle

	stats LiveStats
}

// NewLiveIngestor creates a LiveIngestor in the draining state.
func NewLiveIngestor(opts LiveOptions) *LiveIngestor {
	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	policy := opts.CandlePolicy
	if policy == "" {
		policy = CandleAppend
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	return &LiveIngestor{
		sessionID: opts.SessionID,
		trades:    opts.TradeStore,
		candles:   opts.CandleStore,
		batchSize: batchSize,
		policy:    policy,
		publisher: opts.Publisher,
		logger:    logger,
		state:     StateDraining,
	}
}

// Activate sets the boundary markers and moves Draining -> Active.
// It succeeds only once.
func (l *LiveIngestor) Activate(b domain.Boundary) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	switch l.state {
	case StateStopped:
		return ErrStopped
	case StateActive:
		return errors.New("ingestor already active")
	}

	l.boundary = b
	l.lastTradeID = b.LastTradeID
	l.lastCandle = domain.CandleVersion{OpenTime: b.LastKlineOpenTime, LastTradeID: -1}
	l.lastClosedOpen = b.LastKlineOpenTime
	l.state = StateActive

	l.logger.Printf("Live ingestion active: trade_id > %d, kline open_time > %d",
		b.LastTradeID, b.LastKlineOpenTime)
	return nil
}

// State returns the current lifecycle state.
func (l *LiveIngestor) State() LiveState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Stats returns a snapshot of the counters.
func (l *LiveIngestor) Stats() LiveStats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stats
}

// Pending returns the number of accepted records not yet flushed.
func (l *LiveIngestor) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.pendingTrades) + len(l.pendingCandles)
}

// Run consumes raw events from q until ctx is cancelled or q is closed.
// Per-event errors are logged and never stop the loop.
func (l *LiveIngestor) Run(ctx context.Context, q *Queue) error {
	for {
		raw, err := q.Pop(ctx)
		if err != nil {
			if errors.Is(err, ErrQueueClosed) {
				return nil
			}
			return err
		}

		if err := l.HandleRaw(ctx, raw); err != nil {
			if errors.Is(err, ErrStopped) {
				return nil
			}
			var sm *SchemaMismatchError
			if !errors.As(err, &sm) {
				l.logger.Printf("WARN: live event: %v", err)
			}
		}
	}
}

// HandleRaw decodes a raw stream payload and applies it.
// Malformed events are logged, counted and returned as *SchemaMismatchError.
// Payloads that are not trade or kline events are ignored.
func (l *LiveIngestor) HandleRaw(ctx context.Context, raw []byte) error {
	ev, err := binance.DecodeEvent(raw)
	if err == nil {
		return l.HandleEvent(ctx, ev)
	}

	if errors.Is(err, binance.ErrUnknownEvent) {
		l.mu.Lock()
		l.stats.UnknownEvents++
		l.mu.Unlock()
		return nil
	}

	mismatch := &SchemaMismatchError{Event: "payload", Err: err}
	var se *binance.SchemaError
	if errors.As(err, &se) {
		mismatch.Event = se.Event
		mismatch.Field = se.Field
	}

	l.mu.Lock()
	l.stats.SchemaMismatches++
	l.mu.Unlock()

	observability.RecordSchemaMismatch(mismatch.Event)
	l.logger.Printf("WARN: dropping event: %v", mismatch)
	return mismatch
}

// HandleEvent applies one decoded event: boundary filter, batch append and,
// when the threshold is reached, a flush. Flush failures are logged only.
func (l *LiveIngestor) HandleEvent(ctx context.Context, ev binance.Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	switch l.state {
	case StateDraining:
		return ErrNotActive
	case StateStopped:
		return ErrStopped
	}

	l.stats.Received++
	observability.RecordEventReceived(ev.Kind)

	switch ev.Kind {
	case binance.KindTrade:
		l.acceptTrade(ev.Trade)
	case binance.KindKline:
		l.acceptCandle(ev.Candle)
	default:
		l.stats.UnknownEvents++
		return nil
	}

	if len(l.pendingTrades)+len(l.pendingCandles) >= l.batchSize {
		if err := l.flushLocked(ctx); err != nil {
			l.logger.Printf("ERROR: flush failed: %v", err)
		}
	}
	return nil
}

func (l *LiveIngestor) acceptTrade(t *domain.Trade) {
	if t.TradeID <= l.boundary.LastTradeID {
		l.reject(binance.KindTrade, reasonBoundary)
		return
	}
	if t.TradeID <= l.lastTradeID {
		l.reject(binance.KindTrade, reasonStale)
		return
	}

	t.SessionID = l.sessionID
	l.lastTradeID = t.TradeID
	l.pendingTrades = append(l.pendingTrades, t)
	l.stats.TradesAccepted++
	observability.RecordEventAccepted(binance.KindTrade)
	observability.UpdatePendingBatch(len(l.pendingTrades) + len(l.pendingCandles))
}

func (l *LiveIngestor) acceptCandle(c *domain.Candle) {
	if c.OpenTime <= l.boundary.LastKlineOpenTime {
		l.reject(binance.KindKline, reasonBoundary)
		return
	}

	if l.policy == CandleClosed {
		if !c.Closed {
			l.reject(binance.KindKline, reasonOpen)
			return
		}
		if c.OpenTime <= l.lastClosedOpen {
			l.reject(binance.KindKline, reasonStale)
			return
		}
		l.lastClosedOpen = c.OpenTime
	} else {
		v := c.Version()
		if !v.After(l.lastCandle) {
			l.reject(binance.KindKline, reasonStale)
			return
		}
		l.lastCandle = v
	}

	c.SessionID = l.sessionID
	l.pendingCandles = append(l.pendingCandles, c)
	l.stats.CandlesAccepted++
	observability.RecordEventAccepted(binance.KindKline)
	observability.UpdatePendingBatch(len(l.pendingTrades) + len(l.pendingCandles))
}

func (l *LiveIngestor) reject(kind, reason string) {
	l.stats.Rejected++
	observability.RecordEventRejected(kind, reason)
}

// Flush persists pending and retained rows regardless of the threshold.
func (l *LiveIngestor) Flush(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.flushLocked(ctx)
}

// DrainAndStop flushes whatever is pending and stops accepting events.
// The ingestor is stopped even when the final flush fails.
func (l *LiveIngestor) DrainAndStop(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state == StateStopped {
		return nil
	}
	wasActive := l.state == StateActive
	l.state = StateStopped

	if !wasActive {
		return nil
	}

	err := l.flushLocked(ctx)
	if n := len(l.retryTrades) + len(l.retryCandles); n > 0 {
		l.stats.RetryRowsDropped += n
		observability.RecordRetryDropped(binance.KindTrade, len(l.retryTrades))
		observability.RecordRetryDropped(binance.KindKline, len(l.retryCandles))
		l.logger.Printf("ERROR: abandoning %d unflushed rows at shutdown", n)
		l.retryTrades = nil
		l.retryCandles = nil
	}

	l.logger.Printf("Live ingestion stopped: %d trades and %d candles stored",
		l.stats.TradesStored, l.stats.CandlesStored)
	return err
}

// flushLocked writes trades then candles. Each store write is all-or-nothing;
// rows from a failed write are kept for exactly one more attempt and rows
// that fail their second attempt are dropped.
func (l *LiveIngestor) flushLocked(ctx context.Context) error {
	if len(l.pendingTrades)+len(l.pendingCandles)+len(l.retryTrades)+len(l.retryCandles) == 0 {
		return nil
	}

	start := time.Now()
	var errs []error

	trades := make([]*domain.Trade, 0, len(l.retryTrades)+len(l.pendingTrades))
	trades = append(trades, l.retryTrades...)
	trades = append(trades, l.pendingTrades...)
	if len(trades) > 0 {
		if err := l.trades.InsertBulk(ctx, trades); err != nil {
			errs = append(errs, &StorageError{Op: "insert live trades", Err: err})
			l.dropRetried(binance.KindTrade, len(l.retryTrades))
			l.retryTrades = l.pendingTrades
		} else {
			l.retryTrades = nil
			l.stats.TradesStored += len(trades)
			observability.RecordRowsStored(binance.KindTrade, "live", len(trades))
			l.publishTrade(ctx, trades[len(trades)-1])
		}
	}
	l.pendingTrades = nil

	candles := make([]*domain.Candle, 0, len(l.retryCandles)+len(l.pendingCandles))
	candles = append(candles, l.retryCandles...)
	candles = append(candles, l.pendingCandles...)
	if l.policy == CandleLatest {
		candles = latestPerOpenTime(candles)
	}
	if len(candles) > 0 {
		if err := l.writeCandles(ctx, candles); err != nil {
			errs = append(errs, &StorageError{Op: "insert live candles", Err: err})
			l.dropRetried(binance.KindKline, len(l.retryCandles))
			l.retryCandles = l.pendingCandles
		} else {
			l.retryCandles = nil
			l.stats.CandlesStored += len(candles)
			observability.RecordRowsStored(binance.KindKline, "live", len(candles))
			l.publishCandle(ctx, candles[len(candles)-1])
		}
	}
	l.pendingCandles = nil

	err := errors.Join(errs...)
	observability.RecordFlush(time.Since(start).Seconds(), err)
	observability.UpdatePendingBatch(0)
	if err != nil {
		l.stats.FlushErrors++
		return err
	}
	l.stats.Flushes++
	return nil
}

func (l *LiveIngestor) writeCandles(ctx context.Context, candles []*domain.Candle) error {
	if l.policy == CandleLatest {
		return l.candles.UpsertBulk(ctx, candles)
	}
	return l.candles.InsertBulk(ctx, candles)
}

func (l *LiveIngestor) dropRetried(kind string, n int) {
	if n == 0 {
		return
	}
	l.stats.RetryRowsDropped += n
	observability.RecordRetryDropped(kind, n)
	l.logger.Printf("ERROR: dropping %d %s rows after failed retry", n, kind)
}

func (l *LiveIngestor) publishTrade(ctx context.Context, t *domain.Trade) {
	if l.publisher == nil {
		return
	}
	if err := l.publisher.PublishTrade(ctx, t); err != nil {
		observability.RecordCachePublishError()
		l.logger.Printf("WARN: publish trade %d: %v", t.TradeID, err)
	}
}

func (l *LiveIngestor) publishCandle(ctx context.Context, c *domain.Candle) {
	if l.publisher == nil {
		return
	}
	if err := l.publisher.PublishCandle(ctx, c); err != nil {
		observability.RecordCachePublishError()
		l.logger.Printf("WARN: publish candle %d: %v", c.OpenTime, err)
	}
}

// latestPerOpenTime keeps the last update of each open time, preserving
// the order in which buckets first appeared.
func latestPerOpenTime(candles []*domain.Candle) []*domain.Candle {
	index := make(map[int64]int, len(candles))
	out := make([]*domain.Candle, 0, len(candles))
	for _, c := range candles {
		if i, ok := index[c.OpenTime]; ok {
			out[i] = c
			continue
		}
		index[c.OpenTime] = len(out)
		out = append(out, c)
	}
	return out
}
