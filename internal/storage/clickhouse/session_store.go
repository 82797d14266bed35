package clickhouse

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"binance-recorder/internal/domain"
	"binance-recorder/internal/storage"
)

// SessionStore implements storage.SessionStore using ClickHouse.
// sessions is a ReplacingMergeTree keyed by id; updates insert a newer version.
type SessionStore struct {
	conn *Conn
	mu   sync.Mutex // serializes id allocation
}

// NewSessionStore creates a new SessionStore.
func NewSessionStore(conn *Conn) *SessionStore {
	return &SessionStore{conn: conn}
}

// Compile-time interface check.
var _ storage.SessionStore = (*SessionStore)(nil)

// Create inserts a session with null bounds and returns its ID.
// IDs are allocated as max(id)+1; a single recorder writes sessions.
func (s *SessionStore) Create(ctx context.Context, symbol string) (int64, error) {
	if strings.TrimSpace(symbol) == "" {
		return 0, storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var maxID int64
	if err := s.conn.QueryRow(ctx, `SELECT toInt64(max(id)) FROM sessions`).Scan(&maxID); err != nil {
		return 0, fmt.Errorf("allocate session id: %w", err)
	}
	id := maxID + 1

	err := s.conn.Exec(ctx, `
		INSERT INTO sessions (id, symbol, begin_time, end_time, version)
		VALUES (?, ?, NULL, NULL, ?)
	`, id, symbol, uint64(time.Now().UnixNano()))
	if err != nil {
		return 0, fmt.Errorf("insert session: %w", err)
	}
	return id, nil
}

// GetByID retrieves the latest version of a session. Returns ErrNotFound if not exists.
func (s *SessionStore) GetByID(ctx context.Context, id int64) (*domain.Session, error) {
	query := `
		SELECT id, symbol, begin_time, end_time
		FROM sessions FINAL
		WHERE id = ?
	`

	rows, err := s.conn.Query(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("get session by id: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("iterate sessions: %w", err)
		}
		return nil, storage.ErrNotFound
	}

	var sess domain.Session
	if err := rows.Scan(&sess.ID, &sess.Symbol, &sess.BeginTime, &sess.EndTime); err != nil {
		return nil, fmt.Errorf("scan session: %w", err)
	}
	return &sess, nil
}

// UpdateBounds writes a new version of the session with begin/end time set.
func (s *SessionStore) UpdateBounds(ctx context.Context, id int64, begin, end int64) error {
	sess, err := s.GetByID(ctx, id)
	if err != nil {
		return err
	}

	err = s.conn.Exec(ctx, `
		INSERT INTO sessions (id, symbol, begin_time, end_time, version)
		VALUES (?, ?, ?, ?, ?)
	`, id, sess.Symbol, begin, end, uint64(time.Now().UnixNano()))
	if err != nil {
		return fmt.Errorf("update session bounds: %w", err)
	}
	return nil
}
