package postgres

import (
	"context"
	"fmt"
	"strings"

	"binance-recorder/internal/domain"
	"binance-recorder/internal/storage"
)

// SessionStore implements storage.SessionStore using PostgreSQL.
type SessionStore struct {
	pool *Pool
}

// NewSessionStore creates a new SessionStore.
func NewSessionStore(pool *Pool) *SessionStore {
	return &SessionStore{pool: pool}
}

// Compile-time interface check.
var _ storage.SessionStore = (*SessionStore)(nil)

// Create inserts a session with null bounds and returns its ID.
func (s *SessionStore) Create(ctx context.Context, symbol string) (int64, error) {
	if strings.TrimSpace(symbol) == "" {
		return 0, storage.ErrInvalidInput
	}

	var id int64
	err := s.pool.QueryRow(ctx, `
		INSERT INTO sessions (symbol, begin_time, end_time)
		VALUES ($1, NULL, NULL)
		RETURNING id
	`, symbol).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert session: %w", err)
	}
	return id, nil
}

// GetByID retrieves a session. Returns ErrNotFound if not exists.
func (s *SessionStore) GetByID(ctx context.Context, id int64) (*domain.Session, error) {
	var sess domain.Session
	err := s.pool.QueryRow(ctx, `
		SELECT id, symbol, begin_time, end_time
		FROM sessions
		WHERE id = $1
	`, id).Scan(&sess.ID, &sess.Symbol, &sess.BeginTime, &sess.EndTime)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get session by id: %w", err)
	}
	return &sess, nil
}

// UpdateBounds sets begin_time/end_time. Returns ErrNotFound if the session does not exist.
func (s *SessionStore) UpdateBounds(ctx context.Context, id int64, begin, end int64) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE sessions SET begin_time = $2, end_time = $3
		WHERE id = $1
	`, id, begin, end)
	if err != nil {
		return fmt.Errorf("update session bounds: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}
