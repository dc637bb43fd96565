package store

import (
	"context"
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupMockStore(t *testing.T) (*sql.DB, sqlmock.Sqlmock, *Collection) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	s := New(db, zap.NewNop())
	return db, mock, s.Collection("equipment")
}

func TestCollection_Get(t *testing.T) {
	db, mock, collection := setupMockStore(t)
	defer db.Close()

	rows := sqlmock.NewRows([]string{"data"}).
		AddRow([]byte(`{"name":"走査電子顕微鏡","org_name":"東京大学"}`))
	mock.ExpectQuery(`SELECT data FROM documents`).
		WithArgs("equipment", "doc-1").
		WillReturnRows(rows)

	data, found, err := collection.Get(context.Background(), "doc-1")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "走査電子顕微鏡", data["name"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCollection_Get_NotFound(t *testing.T) {
	db, mock, collection := setupMockStore(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT data FROM documents`).
		WithArgs("equipment", "missing").
		WillReturnError(sql.ErrNoRows)

	_, found, err := collection.Get(context.Background(), "missing")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestCollection_Set_Merge(t *testing.T) {
	db, mock, collection := setupMockStore(t)
	defer db.Close()

	// merge書き込みは data || EXCLUDED.data のupsert
	mock.ExpectExec(`DO UPDATE SET data = documents\.data \|\| EXCLUDED\.data`).
		WithArgs("equipment", "doc-1", []byte(`{"name":"SEM"}`)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := collection.Set(context.Background(), "doc-1", map[string]any{"name": "SEM"}, true)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCollection_Set_Overwrite(t *testing.T) {
	db, mock, collection := setupMockStore(t)
	defer db.Close()

	mock.ExpectExec(`DO UPDATE SET data = EXCLUDED\.data`).
		WithArgs("equipment", "doc-1", []byte(`{"name":"SEM"}`)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := collection.Set(context.Background(), "doc-1", map[string]any{"name": "SEM"}, false)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCollection_FindOneByField(t *testing.T) {
	db, mock, collection := setupMockStore(t)
	defer db.Close()

	rows := sqlmock.NewRows([]string{"doc_id", "data"}).
		AddRow("doc-1", []byte(`{"equipment_id":"eq-1"}`))
	mock.ExpectQuery(`WHERE collection = \$1 AND data->>\$2 = \$3`).
		WithArgs("equipment", "equipment_id", "eq-1").
		WillReturnRows(rows)

	doc, err := collection.FindOneByField(context.Background(), "equipment_id", "eq-1")
	require.NoError(t, err)
	require.NotNil(t, doc)
	assert.Equal(t, "doc-1", doc.ID)
	assert.Equal(t, "eq-1", doc.Data["equipment_id"])
}

func TestCollection_FindOneByField_Absent(t *testing.T) {
	db, mock, collection := setupMockStore(t)
	defer db.Close()

	mock.ExpectQuery(`WHERE collection = \$1 AND data->>\$2 = \$3`).
		WithArgs("equipment", "dedupe_key", "nope").
		WillReturnRows(sqlmock.NewRows([]string{"doc_id", "data"}))

	doc, err := collection.FindOneByField(context.Background(), "dedupe_key", "nope")
	require.NoError(t, err)
	assert.Nil(t, doc)
}

func TestCollection_Page(t *testing.T) {
	db, mock, collection := setupMockStore(t)
	defer db.Close()

	rows := sqlmock.NewRows([]string{"doc_id", "data"}).
		AddRow("doc-1", []byte(`{"name":"A"}`)).
		AddRow("doc-2", []byte(`{"name":"B"}`))
	mock.ExpectQuery(`WHERE collection = \$1 AND doc_id > \$2`).
		WithArgs("equipment", "", 2).
		WillReturnRows(rows)

	docs, err := collection.Page(context.Background(), "", 2)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "doc-1", docs[0].ID)
	assert.Equal(t, "doc-2", docs[1].ID)
}

func TestWriteBatch_CommitInTransaction(t *testing.T) {
	db, mock, collection := setupMockStore(t)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO documents`).
		WithArgs("equipment", "doc-1", []byte(`{"name":"A"}`)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO documents`).
		WithArgs("equipment", "doc-2", []byte(`{"name":"B"}`)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	batch := collection.Batch()
	batch.Set("doc-1", map[string]any{"name": "A"}, true)
	batch.Set("doc-2", map[string]any{"name": "B"}, true)
	assert.Equal(t, 2, batch.Len())

	require.NoError(t, batch.Commit(context.Background()))
	// 成功時はバッチがクリアされる
	assert.Equal(t, 0, batch.Len())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWriteBatch_EmptyCommitIsNoop(t *testing.T) {
	db, mock, collection := setupMockStore(t)
	defer db.Close()

	batch := collection.Batch()
	require.NoError(t, batch.Commit(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsureSchema(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s := New(db, zap.NewNop())
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS documents`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`idx_documents_equipment_id`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`idx_documents_dedupe_key`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`idx_documents_org_name`).WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, s.EnsureSchema(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
