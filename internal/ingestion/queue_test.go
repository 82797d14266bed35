package ingestion

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestQueue_FIFO(t *testing.T) {
	q := NewQueue(4, OverflowBlock, nil)
	ctx := context.Background()

	for _, s := range []string{"a", "b", "c"} {
		if err := q.Push(ctx, []byte(s)); err != nil {
			t.Fatalf("Push failed: %v", err)
		}
	}
	if q.Len() != 3 {
		t.Errorf("Expected len 3, got %d", q.Len())
	}

	for _, want := range []string{"a", "b", "c"} {
		got, err := q.Pop(ctx)
		if err != nil {
			t.Fatalf("Pop failed: %v", err)
		}
		if string(got) != want {
			t.Errorf("Expected %s, got %s", want, got)
		}
	}
}

func TestQueue_BlockWaitsForSpace(t *testing.T) {
	q := NewQueue(1, OverflowBlock, nil)
	ctx := context.Background()

	if err := q.Push(ctx, []byte("a")); err != nil {
		t.Fatalf("Push failed: %v", err)
	}

	timeout, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	if err := q.Push(timeout, []byte("b")); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected producer to block until deadline, got %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- q.Push(ctx, []byte("c")) }()

	if got, _ := q.Pop(ctx); string(got) != "a" {
		t.Errorf("Expected a, got %s", got)
	}
	if err := <-done; err != nil {
		t.Errorf("Blocked push failed: %v", err)
	}
	if got, _ := q.Pop(ctx); string(got) != "c" {
		t.Errorf("Expected c, got %s", got)
	}
}

func TestQueue_DropOldest(t *testing.T) {
	q := NewQueue(2, OverflowDropOldest, nil)
	ctx := context.Background()

	for _, s := range []string{"a", "b", "c", "d"} {
		if err := q.Push(ctx, []byte(s)); err != nil {
			t.Fatalf("Push failed: %v", err)
		}
	}

	if q.Dropped() != 2 {
		t.Errorf("Expected 2 dropped, got %d", q.Dropped())
	}
	for _, want := range []string{"c", "d"} {
		got, _ := q.Pop(ctx)
		if string(got) != want {
			t.Errorf("Expected %s, got %s", want, got)
		}
	}
}

func TestQueue_CloseDeliversRemaining(t *testing.T) {
	q := NewQueue(4, OverflowBlock, nil)
	ctx := context.Background()

	_ = q.Push(ctx, []byte("a"))
	q.Close()
	q.Close()

	if err := q.Push(ctx, []byte("b")); !errors.Is(err, ErrQueueClosed) {
		t.Errorf("Expected ErrQueueClosed on push after close, got %v", err)
	}
	if got, err := q.Pop(ctx); err != nil || string(got) != "a" {
		t.Errorf("Expected remaining event a, got %s/%v", got, err)
	}
	if _, err := q.Pop(ctx); !errors.Is(err, ErrQueueClosed) {
		t.Errorf("Expected ErrQueueClosed when empty, got %v", err)
	}
}

func TestQueue_PopHonoursCancellation(t *testing.T) {
	q := NewQueue(1, OverflowBlock, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := q.Pop(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

func TestParseOverflowPolicy(t *testing.T) {
	if p, err := ParseOverflowPolicy(""); err != nil || p != OverflowBlock {
		t.Errorf("Expected block default, got %q/%v", p, err)
	}
	if p, err := ParseOverflowPolicy("drop_oldest"); err != nil || p != OverflowDropOldest {
		t.Errorf("Expected drop_oldest, got %q/%v", p, err)
	}
	if _, err := ParseOverflowPolicy("spill"); err == nil {
		t.Error("Expected error for unknown policy")
	}
}
