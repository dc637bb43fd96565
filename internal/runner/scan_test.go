package runner

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/research-patron/kikidoko/internal/store"
)

func setupScanner(t *testing.T, pageSize int) (*sql.DB, sqlmock.Sqlmock, *Scanner) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	collection := store.New(db, zap.NewNop()).Collection("equipment")
	scanner := &Scanner{
		Collection: collection,
		PageSize:   pageSize,
		Retry:      RetryPolicy{MaxRetries: 1, BaseDelay: time.Millisecond, Sleep: func(time.Duration) {}},
		Logger:     zap.NewNop(),
	}
	return db, mock, scanner
}

func pageRows(ids ...string) *sqlmock.Rows {
	rows := sqlmock.NewRows([]string{"doc_id", "data"})
	for _, id := range ids {
		rows.AddRow(id, []byte(`{}`))
	}
	return rows
}

func TestScanner_PaginatesByCursor(t *testing.T) {
	db, mock, scanner := setupScanner(t, 2)
	defer db.Close()

	// 満杯ページ → 次ページは最後のdoc_idの後から
	mock.ExpectQuery(`doc_id > \$2`).
		WithArgs("equipment", "", 2).
		WillReturnRows(pageRows("doc-1", "doc-2"))
	mock.ExpectQuery(`doc_id > \$2`).
		WithArgs("equipment", "doc-2", 2).
		WillReturnRows(pageRows("doc-3"))

	var seen []string
	err := scanner.Scan(context.Background(), func(doc store.Document) error {
		seen = append(seen, doc.ID)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"doc-1", "doc-2", "doc-3"}, seen)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestScanner_StopSentinel(t *testing.T) {
	db, mock, scanner := setupScanner(t, 2)
	defer db.Close()

	mock.ExpectQuery(`doc_id > \$2`).
		WithArgs("equipment", "", 2).
		WillReturnRows(pageRows("doc-1", "doc-2"))

	count := 0
	err := scanner.Scan(context.Background(), func(doc store.Document) error {
		count++
		if count >= 1 {
			return ErrStop
		}
		return nil
	})
	// ErrStopは正常終了
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestScanner_CallbackErrorAborts(t *testing.T) {
	db, mock, scanner := setupScanner(t, 2)
	defer db.Close()

	mock.ExpectQuery(`doc_id > \$2`).
		WillReturnRows(pageRows("doc-1", "doc-2"))

	fatal := errors.New("processing failed")
	err := scanner.Scan(context.Background(), func(doc store.Document) error {
		return fatal
	})
	assert.ErrorIs(t, err, fatal)
}

func TestScanner_RetriesPageRead(t *testing.T) {
	db, mock, scanner := setupScanner(t, 2)
	defer db.Close()

	mock.ExpectQuery(`doc_id > \$2`).
		WillReturnError(errors.New("read tcp: i/o timeout"))
	mock.ExpectQuery(`doc_id > \$2`).
		WillReturnRows(pageRows("doc-1"))

	var seen []string
	err := scanner.Scan(context.Background(), func(doc store.Document) error {
		seen = append(seen, doc.ID)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"doc-1"}, seen)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestScanner_EmptyCollection(t *testing.T) {
	db, mock, scanner := setupScanner(t, 2)
	defer db.Close()

	mock.ExpectQuery(`doc_id > \$2`).
		WillReturnRows(pageRows())

	err := scanner.Scan(context.Background(), func(store.Document) error {
		t.Fatal("callback should not be called")
		return nil
	})
	require.NoError(t, err)
}
