package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"binance-recorder/internal/binance"
	"binance-recorder/internal/storage"
)

// DefaultShutdownTimeout bounds the final drain and session finalization.
const DefaultShutdownTimeout = 30 * time.Second

const unsubscribeTimeout = 2 * time.Second

// PipelineOptions contains configuration for creating a Pipeline.
type PipelineOptions struct {
	Symbol          string
	Interval        string // Default: 1s
	RecentTrades    int    // Default: 1000
	PageLimit       int    // Default: 1000
	BatchSize       int    // Default: 30
	CandlePolicy    CandlePolicy
	QueueCapacity   int // Default: 65536
	Overflow        OverflowPolicy
	ShutdownTimeout time.Duration // Default: 30s

	MarketData binance.MarketData
	Stream     binance.Stream

	SessionStore storage.SessionStore
	TradeStore   storage.TradeStore
	CandleStore  storage.CandleStore

	Publisher Publisher // optional
	Logger    *log.Logger
}

// Pipeline runs one ingestion session: open, backfill, live, shutdown.
type Pipeline struct {
	opts     PipelineOptions
	sessions *SessionManager
	backfill *Backfiller
	logger   *log.Logger

	mu        sync.Mutex
	sessionID int64
	live      *LiveIngestor
}

// NewPipeline creates a new Pipeline.
func NewPipeline(opts PipelineOptions) (*Pipeline, error) {
	if opts.Symbol == "" {
		return nil, errors.New("symbol is required")
	}
	if opts.MarketData == nil || opts.Stream == nil {
		return nil, errors.New("market data and stream are required")
	}
	if opts.SessionStore == nil || opts.TradeStore == nil || opts.CandleStore == nil {
		return nil, errors.New("session, trade and candle stores are required")
	}

	if opts.Interval == "" {
		opts.Interval = DefaultInterval
	}
	if opts.RecentTrades <= 0 {
		opts.RecentTrades = DefaultRecentTrades
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = DefaultShutdownTimeout
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}

	return &Pipeline{
		opts: opts,
		sessions: NewSessionManager(SessionManagerOptions{
			SessionStore: opts.SessionStore,
			TradeStore:   opts.TradeStore,
			Logger:       opts.Logger,
		}),
		backfill: NewBackfiller(BackfillOptions{
			MarketData:  opts.MarketData,
			TradeStore:  opts.TradeStore,
			CandleStore: opts.CandleStore,
			PageLimit:   opts.PageLimit,
			Logger:      opts.Logger,
		}),
		logger: opts.Logger,
	}, nil
}

// SessionID returns the session opened by Run, or 0 before that.
func (p *Pipeline) SessionID() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sessionID
}

// Stats returns the live ingestor counters.
func (p *Pipeline) Stats() LiveStats {
	p.mu.Lock()
	live := p.live
	p.mu.Unlock()

	if live == nil {
		return LiveStats{}
	}
	return live.Stats()
}

// Run executes the pipeline until ctx is cancelled or a stage fails fatally.
//
// Three tasks run under one errgroup: the receiver copies stream payloads
// into the bounded queue, the closer tears down the socket and queue on
// cancellation, and the ingest task backfills, activates the live ingestor
// and consumes the queue. Events arriving during backfill wait in the queue.
//
// On the way out the live ingestor is drained and the session finalized
// exactly once, even after a failed backfill. Their failures are logged.
// Cancellation of ctx is a clean exit and returns nil.
func (p *Pipeline) Run(ctx context.Context) error {
	sessionID, err := p.sessions.Open(ctx, p.opts.Symbol)
	if err != nil {
		return err
	}

	live := NewLiveIngestor(LiveOptions{
		SessionID:    sessionID,
		TradeStore:   p.opts.TradeStore,
		CandleStore:  p.opts.CandleStore,
		BatchSize:    p.opts.BatchSize,
		CandlePolicy: p.opts.CandlePolicy,
		Publisher:    p.opts.Publisher,
		Logger:       p.logger,
	})

	p.mu.Lock()
	p.sessionID = sessionID
	p.live = live
	p.mu.Unlock()

	runErr := p.run(ctx, sessionID, live)

	p.shutdown(ctx, sessionID, live)

	if runErr != nil && ctx.Err() != nil && errors.Is(runErr, ctx.Err()) {
		return nil
	}
	return runErr
}

func (p *Pipeline) run(ctx context.Context, sessionID int64, live *LiveIngestor) error {
	streams := []string{
		binance.StreamName(p.opts.Symbol, binance.KindTrade),
		binance.StreamName(p.opts.Symbol, binance.KindKline, p.opts.Interval),
	}
	if err := p.opts.Stream.Subscribe(ctx, streams); err != nil {
		p.opts.Stream.Close()
		return &GatewayError{Op: "subscribe", Err: err}
	}
	p.logger.Printf("Subscribed to %v", streams)

	queue := NewQueue(p.opts.QueueCapacity, p.opts.Overflow, p.logger)

	g, gctx := errgroup.WithContext(ctx)

	// Receive: stream -> queue.
	g.Go(func() error {
		msgs := p.opts.Stream.Messages()
		for {
			select {
			case <-gctx.Done():
				return nil
			case raw, ok := <-msgs:
				if !ok {
					if gctx.Err() != nil {
						return nil
					}
					cause := p.opts.Stream.Err()
					if cause == nil {
						cause = ErrStreamClosed
					} else {
						cause = fmt.Errorf("%w: %w", ErrStreamClosed, cause)
					}
					return &GatewayError{Op: "live stream", Err: cause}
				}
				if err := queue.Push(gctx, raw); err != nil {
					if gctx.Err() != nil || errors.Is(err, ErrQueueClosed) {
						return nil
					}
					return err
				}
			}
		}
	})

	// Unsubscribe, then close the socket and queue once anything ends the run.
	g.Go(func() error {
		<-gctx.Done()
		p.unsubscribe(ctx, streams)
		if err := p.opts.Stream.Close(); err != nil {
			p.logger.Printf("WARN: close stream: %v", err)
		}
		queue.Close()
		return nil
	})

	// Ingest: backfill, hand the boundary over, then consume.
	g.Go(func() error {
		boundary, err := p.backfill.Run(gctx, sessionID, p.opts.Symbol, p.opts.Interval, p.opts.RecentTrades)
		if err != nil {
			if gctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		if err := live.Activate(boundary); err != nil {
			return err
		}
		if err := live.Run(gctx, queue); err != nil && gctx.Err() == nil {
			return err
		}
		return ctx.Err()
	})

	return g.Wait()
}

// unsubscribe cancels the exchange subscription of a still healthy stream.
// Payloads arriving meanwhile are discarded so the acknowledgement gets read.
func (p *Pipeline) unsubscribe(ctx context.Context, streams []string) {
	if p.opts.Stream.Err() != nil {
		return
	}

	uctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), unsubscribeTimeout)
	defer cancel()

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		msgs := p.opts.Stream.Messages()
		for {
			select {
			case <-stop:
				return
			case _, ok := <-msgs:
				if !ok {
					return
				}
			}
		}
	}()

	err := p.opts.Stream.Unsubscribe(uctx, streams)
	if err != nil && !errors.Is(err, binance.ErrClientClosed) {
		p.logger.Printf("WARN: unsubscribe %v: %v", streams, err)
		return
	}
	if err == nil {
		p.logger.Printf("Unsubscribed from %v", streams)
	}
}

func (p *Pipeline) shutdown(ctx context.Context, sessionID int64, live *LiveIngestor) {
	sdCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.opts.ShutdownTimeout)
	defer cancel()

	p.logger.Printf("Shutting down session %d...", sessionID)

	if err := live.DrainAndStop(sdCtx); err != nil {
		p.logger.Printf("ERROR: drain live batches: %v", err)
	}

	if _, err := p.sessions.Finalize(sdCtx, sessionID); err != nil {
		p.logger.Printf("ERROR: finalize session %d: %v", sessionID, err)
	}

	stats := live.Stats()
	p.logger.Printf("Session %d closed: received=%d accepted=%d/%d rejected=%d mismatches=%d flushes=%d flush_errors=%d",
		sessionID, stats.Received, stats.TradesAccepted, stats.CandlesAccepted,
		stats.Rejected, stats.SchemaMismatches, stats.Flushes, stats.FlushErrors)
}
