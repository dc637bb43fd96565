package runner

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/research-patron/kikidoko/internal/store"
)

func setupBatchWriter(t *testing.T, size int) (*sql.DB, sqlmock.Sqlmock, *BatchWriter) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	collection := store.New(db, zap.NewNop()).Collection("equipment")
	retry := RetryPolicy{MaxRetries: 1, BaseDelay: time.Millisecond, Sleep: func(time.Duration) {}}
	writer := NewBatchWriter(collection, size, 0, retry, zap.NewNop())
	return db, mock, writer
}

func expectCommit(mock sqlmock.Sqlmock, docs int) {
	mock.ExpectBegin()
	for i := 0; i < docs; i++ {
		mock.ExpectExec(`INSERT INTO documents`).WillReturnResult(sqlmock.NewResult(0, 1))
	}
	mock.ExpectCommit()
}

func TestBatchWriter_FlushAtCapacity(t *testing.T) {
	db, mock, writer := setupBatchWriter(t, 2)
	defer db.Close()

	expectCommit(mock, 2)

	ctx := context.Background()
	require.NoError(t, writer.Set(ctx, "doc-1", map[string]any{"name": "A"}, true))
	assert.Equal(t, 0, writer.Commits())
	// 2件目で容量到達 → 自動コミット
	require.NoError(t, writer.Set(ctx, "doc-2", map[string]any{"name": "B"}, true))
	assert.Equal(t, 1, writer.Commits())
	assert.Equal(t, 2, writer.Written())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBatchWriter_FinalFlush(t *testing.T) {
	db, mock, writer := setupBatchWriter(t, 10)
	defer db.Close()

	expectCommit(mock, 1)

	ctx := context.Background()
	require.NoError(t, writer.Set(ctx, "doc-1", map[string]any{"name": "A"}, true))
	assert.Equal(t, 0, writer.Commits())

	require.NoError(t, writer.Flush(ctx))
	assert.Equal(t, 1, writer.Commits())
	assert.Equal(t, 1, writer.Written())

	// 空バッチのFlushはno-op
	require.NoError(t, writer.Flush(ctx))
	assert.Equal(t, 1, writer.Commits())
}

func TestBatchWriter_RetriesTransientCommit(t *testing.T) {
	db, mock, writer := setupBatchWriter(t, 1)
	defer db.Close()

	// 1回目のコミットは接続断、リトライで成功
	mock.ExpectBegin().WillReturnError(&pq.Error{Code: "08006"})
	expectCommit(mock, 1)

	require.NoError(t, writer.Set(context.Background(), "doc-1", map[string]any{"name": "A"}, true))
	assert.Equal(t, 1, writer.Commits())
	assert.NoError(t, mock.ExpectationsWereMet())
}
