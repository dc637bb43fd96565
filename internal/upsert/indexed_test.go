package upsert

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/research-patron/kikidoko/internal/models"
	"github.com/research-patron/kikidoko/internal/runner"
	"github.com/research-patron/kikidoko/internal/store"
)

func setupIndexedEngine(t *testing.T) (*sql.DB, sqlmock.Sqlmock, *IndexedEngine) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	collection := store.New(db, zap.NewNop()).Collection("equipment")
	retry := runner.RetryPolicy{MaxRetries: 0, Sleep: func(time.Duration) {}}
	engine := NewIndexedEngine(collection, retry, zap.NewNop())
	return db, mock, engine
}

func TestIndexedEngine_BuildIndexAndResolve(t *testing.T) {
	db, mock, engine := setupIndexedEngine(t)
	defer db.Close()

	mock.ExpectQuery(`WHERE collection = \$1 AND data->>\$2 = \$3`).
		WithArgs("equipment", "org_name", "東京大学").
		WillReturnRows(sqlmock.NewRows([]string{"doc_id", "data"}).
			AddRow("doc-1", []byte(`{"equipment_id":"eq-1","dedupe_key":"key-1"}`)))

	require.NoError(t, engine.BuildIndex(context.Background(), []string{"東京大学", "", "東京大学"}))
	assert.Equal(t, ModeIndexed, engine.Mode())

	// 既存equipment_idヒット → updated
	docID, status := engine.Resolve(models.EquipmentRecord{EquipmentID: "eq-1"})
	assert.Equal(t, "doc-1", docID)
	assert.Equal(t, StatusUpdated, status)

	// 既存dedupe_keyヒット → updated
	docID, status = engine.Resolve(models.EquipmentRecord{DedupeKey: "key-1"})
	assert.Equal(t, "doc-1", docID)
	assert.Equal(t, StatusUpdated, status)

	// 未知キー → created、同一実行内の再出現は同じdocに収束
	docID, status = engine.Resolve(models.EquipmentRecord{EquipmentID: "eq-2", DedupeKey: "key-2"})
	assert.Equal(t, StatusCreated, status)
	again, status := engine.Resolve(models.EquipmentRecord{EquipmentID: "eq-2"})
	assert.Equal(t, docID, again)
	assert.Equal(t, StatusUpdated, status)
}

func TestIndexedEngine_DegradeOnIndexFailure(t *testing.T) {
	db, mock, engine := setupIndexedEngine(t)
	defer db.Close()

	mock.ExpectQuery(`WHERE collection = \$1 AND data->>\$2 = \$3`).
		WithArgs("equipment", "org_name", "東京大学").
		WillReturnError(assert.AnError)

	// 非一時エラーでリトライなし → 降格するがエラーにはしない
	require.NoError(t, engine.BuildIndex(context.Background(), []string{"東京大学"}))
	assert.Equal(t, ModeDegraded, engine.Mode())

	// degradedモード：equipment_idをそのままdoc_idに使うbest-effort書き込み
	docID, status := engine.Resolve(models.EquipmentRecord{EquipmentID: "eqnet/1"})
	assert.Equal(t, "eqnet_1", docID)
	assert.Equal(t, StatusCreated, status)

	// equipment_idなしは新規ID
	docID, status = engine.Resolve(models.EquipmentRecord{DedupeKey: "key-1"})
	assert.NotEmpty(t, docID)
	assert.Equal(t, StatusCreated, status)
}
