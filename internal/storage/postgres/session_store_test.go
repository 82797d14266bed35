package postgres_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"binance-recorder/internal/storage"
	pgstore "binance-recorder/internal/storage/postgres"
)

func TestSessionStore_CreateAndGet(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := pgstore.NewSessionStore(pool)

	id, err := store.Create(ctx, "ETHUSDT")
	require.NoError(t, err)
	assert.NotZero(t, id)

	sess, err := store.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, id, sess.ID)
	assert.Equal(t, "ETHUSDT", sess.Symbol)
	assert.Nil(t, sess.BeginTime)
	assert.Nil(t, sess.EndTime)
	assert.False(t, sess.Finalized())
}

func TestSessionStore_UpdateBounds(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := pgstore.NewSessionStore(pool)

	id, err := store.Create(ctx, "ETHUSDT")
	require.NoError(t, err)

	require.NoError(t, store.UpdateBounds(ctx, id, 1700000000000, 1700000005000))

	sess, err := store.GetByID(ctx, id)
	require.NoError(t, err)
	require.True(t, sess.Finalized())
	assert.Equal(t, int64(1700000000000), *sess.BeginTime)
	assert.Equal(t, int64(1700000005000), *sess.EndTime)
}

func TestSessionStore_NotFound(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := pgstore.NewSessionStore(pool)

	_, err := store.GetByID(ctx, 999)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	err = store.UpdateBounds(ctx, 999, 1, 2)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
