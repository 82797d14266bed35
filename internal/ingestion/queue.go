package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"binance-recorder/internal/observability"
)

// DefaultQueueCapacity is the default number of raw events the queue holds.
const DefaultQueueCapacity = 65536

// ErrQueueClosed is returned by Pop once the queue is closed and empty,
// and by Push after Close.
var ErrQueueClosed = errors.New("queue closed")

// OverflowPolicy decides what Push does when the queue is full.
type OverflowPolicy string

const (
	// OverflowBlock makes the producer wait for free space.
	OverflowBlock OverflowPolicy = "block"
	// OverflowDropOldest evicts the oldest queued event.
	OverflowDropOldest OverflowPolicy = "drop_oldest"
)

// ParseOverflowPolicy converts a config string to an OverflowPolicy.
// Empty string yields OverflowBlock.
func ParseOverflowPolicy(s string) (OverflowPolicy, error) {
	switch OverflowPolicy(s) {
	case "", OverflowBlock:
		return OverflowBlock, nil
	case OverflowDropOldest:
		return OverflowDropOldest, nil
	default:
		return "", fmt.Errorf("unknown overflow policy %q", s)
	}
}

// Queue is a bounded single-producer/single-consumer queue of raw stream events.
// Events received while the live ingestor is draining wait here.
type Queue struct {
	ch     chan []byte
	policy OverflowPolicy
	logger *log.Logger

	closeOnce sync.Once
	closed    chan struct{}
	dropped   int64
	mu        sync.Mutex // guards dropped
}

// NewQueue creates a bounded queue.
func NewQueue(capacity int, policy OverflowPolicy, logger *log.Logger) *Queue {
	if capacity <= 0 {
		capacity = DefaultQueueCapacity
	}
	if policy == "" {
		policy = OverflowBlock
	}
	if logger == nil {
		logger = log.Default()
	}

	return &Queue{
		ch:     make(chan []byte, capacity),
		policy: policy,
		logger: logger,
		closed: make(chan struct{}),
	}
}

// Push enqueues one raw event, applying the overflow policy when full.
func (q *Queue) Push(ctx context.Context, raw []byte) error {
	select {
	case <-q.closed:
		return ErrQueueClosed
	default:
	}

	select {
	case q.ch <- raw:
		observability.UpdateQueueDepth(len(q.ch))
		return nil
	default:
	}

	if q.policy == OverflowDropOldest {
		for {
			select {
			case <-q.ch:
				q.recordDrop()
			default:
			}
			select {
			case q.ch <- raw:
				observability.UpdateQueueDepth(len(q.ch))
				return nil
			default:
			}
		}
	}

	select {
	case q.ch <- raw:
		observability.UpdateQueueDepth(len(q.ch))
		return nil
	case <-q.closed:
		return ErrQueueClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *Queue) recordDrop() {
	q.mu.Lock()
	q.dropped++
	n := q.dropped
	q.mu.Unlock()

	observability.RecordQueueOverflowDrop()
	if n == 1 || n%1000 == 0 {
		q.logger.Printf("WARN: queue full, dropped oldest event (%d dropped so far)", n)
	}
}

// Pop dequeues the next event. Remaining events are still delivered after
// Close; ErrQueueClosed is returned once the queue is closed and empty.
func (q *Queue) Pop(ctx context.Context) ([]byte, error) {
	select {
	case raw := <-q.ch:
		observability.UpdateQueueDepth(len(q.ch))
		return raw, nil
	default:
	}

	select {
	case raw := <-q.ch:
		observability.UpdateQueueDepth(len(q.ch))
		return raw, nil
	case <-q.closed:
		select {
		case raw := <-q.ch:
			observability.UpdateQueueDepth(len(q.ch))
			return raw, nil
		default:
			return nil, ErrQueueClosed
		}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close marks the queue closed. Safe to call more than once.
func (q *Queue) Close() {
	q.closeOnce.Do(func() { close(q.closed) })
}

// Len returns the number of queued events.
func (q *Queue) Len() int {
	return len(q.ch)
}

// Dropped returns how many events the drop_oldest policy has evicted.
func (q *Queue) Dropped() int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}
