package memory

import (
	"context"
	"strings"
	"sync"

	"binance-recorder/internal/domain"
	"binance-recorder/internal/storage"
)

// SessionStore is an in-memory implementation of storage.SessionStore.
type SessionStore struct {
	mu     sync.RWMutex
	nextID int64
	data   map[int64]*domain.Session
}

// NewSessionStore creates a new in-memory session store.
func NewSessionStore() *SessionStore {
	return &SessionStore{
		nextID: 1,
		data:   make(map[int64]*domain.Session),
	}
}

// Create inserts a session with null bounds and returns its ID.
func (s *SessionStore) Create(_ context.Context, symbol string) (int64, error) {
	if strings.TrimSpace(symbol) == "" {
		return 0, storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++
	s.data[id] = &domain.Session{ID: id, Symbol: symbol}
	return id, nil
}

// GetByID retrieves a session. Returns ErrNotFound if not exists.
func (s *SessionStore) GetByID(_ context.Context, id int64) (*domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.data[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	copy := *sess
	return &copy, nil
}

// UpdateBounds sets begin/end time for a session.
func (s *SessionStore) UpdateBounds(_ context.Context, id int64, begin, end int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.data[id]
	if !ok {
		return storage.ErrNotFound
	}
	sess.BeginTime = &begin
	sess.EndTime = &end
	return nil
}

var _ storage.SessionStore = (*SessionStore)(nil)
