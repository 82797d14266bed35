package ingestion

import (
	"context"
	"errors"
	"log"

	"binance-recorder/internal/storage"
)

// SessionManager creates sessions and finalizes their time bounds.
type SessionManager struct {
	sessions storage.SessionStore
	trades   storage.TradeStore
	logger   *log.Logger
}

// SessionManagerOptions contains configuration for creating a SessionManager.
type SessionManagerOptions struct {
	SessionStore storage.SessionStore
	TradeStore   storage.TradeStore
	Logger       *log.Logger
}

// NewSessionManager creates a new SessionManager.
func NewSessionManager(opts SessionManagerOptions) *SessionManager {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	return &SessionManager{
		sessions: opts.SessionStore,
		trades:   opts.TradeStore,
		logger:   logger,
	}
}

// Open inserts a new session with null bounds and returns its ID.
func (m *SessionManager) Open(ctx context.Context, symbol string) (int64, error) {
	id, err := m.sessions.Create(ctx, symbol)
	if err != nil {
		return 0, &StorageError{Op: "create session", Err: err}
	}
	m.logger.Printf("Opened session %d for %s", id, symbol)
	return id, nil
}

// Finalize writes the min/max trade_time persisted under the session as its bounds.
// When the session has no trades the bounds stay null and finalized is false.
func (m *SessionManager) Finalize(ctx context.Context, sessionID int64) (finalized bool, err error) {
	begin, end, err := m.trades.TimeBounds(ctx, sessionID)
	if errors.Is(err, storage.ErrNotFound) {
		m.logger.Printf("Session %d has no trades, leaving bounds unset", sessionID)
		return false, nil
	}
	if err != nil {
		return false, &StorageError{Op: "read trade bounds", Err: err}
	}

	if err := m.sessions.UpdateBounds(ctx, sessionID, begin, end); err != nil {
		return false, &StorageError{Op: "update session bounds", Err: err}
	}

	m.logger.Printf("Finalized session %d: [%d, %d]", sessionID, begin, end)
	return true, nil
}
