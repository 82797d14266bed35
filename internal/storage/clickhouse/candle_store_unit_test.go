package clickhouse

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"binance-recorder/internal/domain"
)

var errSendFailed = errors.New("send failed")

// recordingConn records the statements a store issues. Unused driver.Conn
// methods panic through the nil embedded interface.
type recordingConn struct {
	driver.Conn
	sendErr error
	calls   []string
	execArg [][]any
	batch   *recordingBatch
}

func (c *recordingConn) PrepareBatch(_ context.Context, query string, _ ...driver.PrepareBatchOption) (driver.Batch, error) {
	c.calls = append(c.calls, "insert")
	c.batch = &recordingBatch{sendErr: c.sendErr}
	return c.batch, nil
}

func (c *recordingConn) Exec(_ context.Context, query string, args ...any) error {
	if strings.Contains(query, "DELETE") {
		c.calls = append(c.calls, "delete")
	}
	c.execArg = append(c.execArg, args)
	return nil
}

type recordingBatch struct {
	driver.Batch
	sendErr error
	rows    [][]any
}

func (b *recordingBatch) Append(v ...any) error {
	b.rows = append(b.rows, v)
	return nil
}

func (b *recordingBatch) Send() error {
	return b.sendErr
}

func testCandle(openTime int64, closePrice string) *domain.Candle {
	return &domain.Candle{
		SessionID:  1,
		OpenTime:   openTime,
		CloseTime:  openTime + 999,
		ClosePrice: decimal.RequireFromString(closePrice),
		NumTrades:  1,
	}
}

func TestCandleStore_UpsertBulkFailedSendKeepsStoredVersions(t *testing.T) {
	conn := &recordingConn{sendErr: errSendFailed}
	store := NewCandleStore(&Conn{Conn: conn})

	err := store.UpsertBulk(context.Background(), []*domain.Candle{testCandle(1000, "1")})
	require.ErrorIs(t, err, errSendFailed)

	assert.Equal(t, []string{"insert"}, conn.calls, "no delete may run when the insert fails")
}

func TestCandleStore_UpsertBulkDeletesOnlyOlderRows(t *testing.T) {
	conn := &recordingConn{}
	store := NewCandleStore(&Conn{Conn: conn})

	err := store.UpsertBulk(context.Background(), []*domain.Candle{
		testCandle(1000, "1"),
		testCandle(2000, "2"),
		testCandle(1000, "3"),
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"insert", "delete"}, conn.calls)

	// One row per bucket, the later version of 1000 wins.
	require.Len(t, conn.batch.rows, 2)
	assert.Equal(t, int64(2000), conn.batch.rows[0][1])
	assert.Equal(t, int64(1000), conn.batch.rows[1][1])

	require.Len(t, conn.execArg, 1)
	args := conn.execArg[0]
	assert.Equal(t, int64(1), args[0])
	assert.ElementsMatch(t, []int64{2000, 1000}, args[1])
	firstSeq := conn.batch.rows[0][14].(uint64)
	assert.Equal(t, firstSeq, args[2], "delete must spare the rows just inserted")
}
