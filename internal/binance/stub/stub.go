// Package stub provides in-memory exchange gateways for tests.
package stub

import (
	"context"
	"errors"
	"sort"
	"sync"

	"binance-recorder/internal/binance"
	"binance-recorder/internal/domain"
)

// ErrInjected is the default failure returned by configured fail hooks.
var ErrInjected = errors.New("injected failure")

// MarketData implements binance.MarketData from fixed data.
// Klines answers range queries over Candles, so pagination behaves like the exchange.
type MarketData struct {
	mu sync.Mutex

	Trades  []*domain.Trade
	Candles []*domain.Candle

	// TradesErr and KlinesErr, when set, are returned by the respective call.
	TradesErr error
	KlinesErr error

	// Pages, when set, is returned page by page instead of querying Candles.
	Pages [][]*domain.Candle

	// Queries records every Klines call in order.
	Queries []binance.KlineQuery
}

// Compile-time interface check.
var _ binance.MarketData = (*MarketData)(nil)

// RecentTrades returns the last limit trades, oldest first.
func (m *MarketData) RecentTrades(_ context.Context, _ string, limit int) ([]*domain.Trade, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.TradesErr != nil {
		return nil, m.TradesErr
	}

	trades := m.Trades
	if limit > 0 && limit < len(trades) {
		trades = trades[len(trades)-limit:]
	}
	out := make([]*domain.Trade, len(trades))
	for i, t := range trades {
		copy := *t
		out[i] = &copy
	}
	return out, nil
}

// Klines returns candles with open time in [StartTime, EndTime], up to Limit.
func (m *MarketData) Klines(_ context.Context, q binance.KlineQuery) ([]*domain.Candle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Queries = append(m.Queries, q)
	if m.KlinesErr != nil {
		return nil, m.KlinesErr
	}

	if m.Pages != nil {
		if len(m.Pages) == 0 {
			return nil, nil
		}
		page := m.Pages[0]
		m.Pages = m.Pages[1:]
		return copyCandles(page), nil
	}

	sorted := make([]*domain.Candle, len(m.Candles))
	copy(sorted, m.Candles)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].OpenTime < sorted[j].OpenTime })

	var out []*domain.Candle
	for _, c := range sorted {
		if c.OpenTime < q.StartTime {
			continue
		}
		if q.EndTime != nil && c.OpenTime > *q.EndTime {
			break
		}
		out = append(out, c)
		if q.Limit > 0 && len(out) == q.Limit {
			break
		}
	}
	return copyCandles(out), nil
}

func copyCandles(in []*domain.Candle) []*domain.Candle {
	out := make([]*domain.Candle, len(in))
	for i, c := range in {
		copy := *c
		out[i] = &copy
	}
	return out
}

// Stream implements binance.Stream over a channel fed by the test.
type Stream struct {
	mu           sync.Mutex
	msgs         chan []byte
	closed       bool
	err          error
	subscribed   []string
	unsubscribed []string

	// SubscribeErr, when set, is returned by Subscribe.
	SubscribeErr error
}

// Compile-time interface check.
var _ binance.Stream = (*Stream)(nil)

// NewStream creates a stream whose Messages channel has the given capacity.
func NewStream(buffer int) *Stream {
	return &Stream{msgs: make(chan []byte, buffer)}
}

// Subscribe records the requested streams.
func (s *Stream) Subscribe(_ context.Context, streams []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.SubscribeErr != nil {
		return s.SubscribeErr
	}
	if s.closed {
		return binance.ErrClientClosed
	}
	s.subscribed = append(s.subscribed, streams...)
	return nil
}

// Subscribed returns the streams passed to Subscribe so far.
func (s *Stream) Subscribed() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.subscribed...)
}

// Unsubscribe records the cancelled streams.
func (s *Stream) Unsubscribe(_ context.Context, streams []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return binance.ErrClientClosed
	}
	s.unsubscribed = append(s.unsubscribed, streams...)
	return nil
}

// Unsubscribed returns the streams passed to Unsubscribe so far.
func (s *Stream) Unsubscribed() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.unsubscribed...)
}

// Push delivers a raw payload. Blocks when the buffer is full.
func (s *Stream) Push(raw []byte) {
	s.msgs <- raw
}

// Messages yields pushed payloads.
func (s *Stream) Messages() <-chan []byte {
	return s.msgs
}

// Fail ends the stream with err, as a remote disconnect would.
func (s *Stream) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.err = err
	s.closed = true
	close(s.msgs)
}

// Err reports the failure passed to Fail.
func (s *Stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close ends the stream without error.
func (s *Stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.msgs)
	}
	return nil
}

// Closed reports whether Close or Fail was called.
func (s *Stream) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
