package memory

import (
	"context"
	"errors"
	"testing"

	"binance-recorder/internal/storage"
)

func TestSessionStore_CreateAssignsIncreasingIDs(t *testing.T) {
	store := NewSessionStore()
	ctx := context.Background()

	id1, err := store.Create(ctx, "ETHUSDT")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	id2, err := store.Create(ctx, "ETHUSDT")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if id2 <= id1 {
		t.Errorf("Expected increasing IDs, got %d then %d", id1, id2)
	}

	sess, err := store.GetByID(ctx, id1)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if sess.Symbol != "ETHUSDT" {
		t.Errorf("Symbol mismatch: got %s", sess.Symbol)
	}
	if sess.BeginTime != nil || sess.EndTime != nil {
		t.Error("Expected null bounds on a fresh session")
	}
}

func TestSessionStore_CreateRejectsEmptySymbol(t *testing.T) {
	store := NewSessionStore()

	_, err := store.Create(context.Background(), " ")
	if !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput, got %v", err)
	}
}

func TestSessionStore_UpdateBounds(t *testing.T) {
	store := NewSessionStore()
	ctx := context.Background()

	id, _ := store.Create(ctx, "ETHUSDT")
	if err := store.UpdateBounds(ctx, id, 1000, 5000); err != nil {
		t.Fatalf("UpdateBounds failed: %v", err)
	}

	sess, err := store.GetByID(ctx, id)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if !sess.Finalized() {
		t.Fatal("Expected session to be finalized")
	}
	if *sess.BeginTime != 1000 || *sess.EndTime != 5000 {
		t.Errorf("Bounds mismatch: got [%d, %d]", *sess.BeginTime, *sess.EndTime)
	}
}

func TestSessionStore_NotFound(t *testing.T) {
	store := NewSessionStore()
	ctx := context.Background()

	if _, err := store.GetByID(ctx, 42); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
	if err := store.UpdateBounds(ctx, 42, 1, 2); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}
