package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"postviews/api/database"
	"postviews/api/models"
)

type fakeBatch struct {
	driver.Batch
	appendErr error
	appended  int
	sent      bool
	aborted   bool
}

func (b *fakeBatch) Append(v ...any) error {
	if b.appendErr != nil {
		return b.appendErr
	}
	b.appended++
	return nil
}

func (b *fakeBatch) Send() error {
	b.sent = true
	return nil
}

func (b *fakeBatch) Abort() error {
	b.aborted = true
	return nil
}

type fakeCHConn struct {
	driver.Conn
	batch *fakeBatch
}

func (c *fakeCHConn) PrepareBatch(context.Context, string, ...driver.PrepareBatchOption) (driver.Batch, error) {
	return c.batch, nil
}

func newFakeSink(batch *fakeBatch) *ClickHouseSink {
	return NewClickHouseSink(&database.ClickHouseClient{Conn: &fakeCHConn{batch: batch}}, zap.NewNop())
}

func mirrorViews() []models.ViewEvent {
	at := time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC)
	return []models.ViewEvent{
		{ID: "v1", ContentID: "C1", ViewedAt: at},
		{ID: "v2", ContentID: "C2", ViewedAt: at},
	}
}

func TestClickHouseSink_MirrorViewsSendsBatch(t *testing.T) {
	batch := &fakeBatch{}
	require.NoError(t, newFakeSink(batch).MirrorViews(context.Background(), mirrorViews()))
	assert.Equal(t, 2, batch.appended)
	assert.True(t, batch.sent)
}

func TestClickHouseSink_AppendFailureIsReturned(t *testing.T) {
	batch := &fakeBatch{appendErr: errors.New("column type mismatch")}

	err := newFakeSink(batch).MirrorViews(context.Background(), mirrorViews())
	require.Error(t, err)
	assert.ErrorIs(t, err, batch.appendErr)
	assert.False(t, batch.sent, "a partial batch must not be sent")
	assert.True(t, batch.aborted)
}

func TestClickHouseSink_EmptyInputSkipsBatch(t *testing.T) {
	conn := &fakeCHConn{}
	sink := NewClickHouseSink(&database.ClickHouseClient{Conn: conn}, zap.NewNop())
	assert.NoError(t, sink.MirrorViews(context.Background(), nil))
}
