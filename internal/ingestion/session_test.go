package ingestion

import (
	"context"
	"errors"
	"testing"

	"binance-recorder/internal/domain"
	"binance-recorder/internal/storage"
)

type failingSessionStore struct {
	storage.SessionStore
}

func (failingSessionStore) Create(context.Context, string) (int64, error) {
	return 0, errStoreDown
}

func TestSessionManager_Open(t *testing.T) {
	sessions, trades, _ := newMemoryStores()
	mgr := NewSessionManager(SessionManagerOptions{SessionStore: sessions, TradeStore: trades})

	ctx := context.Background()
	id, err := mgr.Open(ctx, "ETHUSDT")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	sess, err := sessions.GetByID(ctx, id)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if sess.Symbol != "ETHUSDT" {
		t.Errorf("Expected symbol ETHUSDT, got %s", sess.Symbol)
	}
	if sess.BeginTime != nil || sess.EndTime != nil {
		t.Errorf("Expected null bounds on a new session, got %v/%v", sess.BeginTime, sess.EndTime)
	}
}

func TestSessionManager_Open_StorageError(t *testing.T) {
	_, trades, _ := newMemoryStores()
	mgr := NewSessionManager(SessionManagerOptions{SessionStore: failingSessionStore{}, TradeStore: trades})

	_, err := mgr.Open(context.Background(), "ETHUSDT")
	var se *StorageError
	if !errors.As(err, &se) {
		t.Fatalf("Expected *StorageError, got %v", err)
	}
	if !errors.Is(err, errStoreDown) {
		t.Errorf("Expected wrapped store error, got %v", err)
	}
}

func TestSessionManager_Finalize_SetsTradeTimeBounds(t *testing.T) {
	sessions, trades, _ := newMemoryStores()
	mgr := NewSessionManager(SessionManagerOptions{SessionStore: sessions, TradeStore: trades})

	ctx := context.Background()
	id, err := mgr.Open(ctx, "ETHUSDT")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	// Insertion order differs from time order.
	batch := []*domain.Trade{
		{SessionID: id, TradeID: 2, TradeTime: 5000},
		{SessionID: id, TradeID: 3, TradeTime: 9000},
		{SessionID: id, TradeID: 1, TradeTime: 1000},
	}
	if err := trades.InsertBulk(ctx, batch); err != nil {
		t.Fatalf("InsertBulk failed: %v", err)
	}

	finalized, err := mgr.Finalize(ctx, id)
	if err != nil {
		t.Fatalf("Finalize failed: %v", err)
	}
	if !finalized {
		t.Fatal("Expected session to be finalized")
	}

	sess, _ := sessions.GetByID(ctx, id)
	if sess.BeginTime == nil || *sess.BeginTime != 1000 {
		t.Errorf("Expected begin_time 1000, got %v", sess.BeginTime)
	}
	if sess.EndTime == nil || *sess.EndTime != 9000 {
		t.Errorf("Expected end_time 9000, got %v", sess.EndTime)
	}
}

func TestSessionManager_Finalize_NoTradesLeavesBoundsNull(t *testing.T) {
	sessions, trades, _ := newMemoryStores()
	mgr := NewSessionManager(SessionManagerOptions{SessionStore: sessions, TradeStore: trades})

	ctx := context.Background()
	id, _ := mgr.Open(ctx, "ETHUSDT")

	finalized, err := mgr.Finalize(ctx, id)
	if err != nil {
		t.Fatalf("Finalize must not fail without trades: %v", err)
	}
	if finalized {
		t.Error("Expected finalized=false without trades")
	}

	sess, _ := sessions.GetByID(ctx, id)
	if sess.Finalized() {
		t.Errorf("Expected null bounds, got %v/%v", sess.BeginTime, sess.EndTime)
	}
}

func TestSessionManager_Finalize_IgnoresOtherSessions(t *testing.T) {
	sessions, trades, _ := newMemoryStores()
	mgr := NewSessionManager(SessionManagerOptions{SessionStore: sessions, TradeStore: trades})

	ctx := context.Background()
	first, _ := mgr.Open(ctx, "ETHUSDT")
	second, _ := mgr.Open(ctx, "ETHUSDT")

	if err := trades.InsertBulk(ctx, []*domain.Trade{{SessionID: first, TradeID: 1, TradeTime: 100}}); err != nil {
		t.Fatalf("InsertBulk failed: %v", err)
	}

	finalized, err := mgr.Finalize(ctx, second)
	if err != nil {
		t.Fatalf("Finalize failed: %v", err)
	}
	if finalized {
		t.Error("Trades of another session must not finalize this one")
	}
}
