// Package store PostgreSQL JSONB文档库
//
// 文档以 (collection, doc_id, data jsonb) 存储。merge写入用
// `data || excluded.data` 实现（新payload未覆盖的存量字段保留），
// 等值检索走 data->>field 表达式索引，扫描用doc_id游标分页
// （并发写入下比offset分页稳定）。
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/research-patron/kikidoko/internal/config"
)

// Open 创建PostgreSQL连接
func Open(cfg *config.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if cfg.MaxConns > 0 {
		db.SetMaxOpenConns(cfg.MaxConns)
	}
	if cfg.MaxIdle > 0 {
		db.SetMaxIdleConns(cfg.MaxIdle)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}

// Document 一条文档（ID + 解码后的data）
type Document struct {
	ID   string
	Data map[string]any
}

// Store 文档库客户端
type Store struct {
	db     *sql.DB
	logger *zap.Logger
}

// New 创建文档库客户端
func New(db *sql.DB, logger *zap.Logger) *Store {
	return &Store{db: db, logger: logger}
}

// EnsureSchema 建表和表达式索引（幂等）
func (s *Store) EnsureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS documents (
			collection TEXT NOT NULL,
			doc_id     TEXT NOT NULL,
			data       JSONB NOT NULL DEFAULT '{}'::jsonb,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (collection, doc_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_documents_equipment_id
			ON documents (collection, (data->>'equipment_id'))`,
		`CREATE INDEX IF NOT EXISTS idx_documents_dedupe_key
			ON documents (collection, (data->>'dedupe_key'))`,
		`CREATE INDEX IF NOT EXISTS idx_documents_org_name
			ON documents (collection, (data->>'org_name'))`,
	}
	for _, statement := range statements {
		if _, err := s.db.ExecContext(ctx, statement); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// Collection 取得collection句柄
func (s *Store) Collection(name string) *Collection {
	return &Collection{store: s, name: name}
}

// Collection 单个collection上的文档操作
type Collection struct {
	store *Store
	name  string
}

// Name collection名
func (c *Collection) Name() string { return c.name }

// NewDocID 生成库侧文档ID
func (c *Collection) NewDocID() string {
	return uuid.NewString()
}

// Get 按doc_id读取文档
func (c *Collection) Get(ctx context.Context, docID string) (map[string]any, bool, error) {
	var raw []byte
	err := c.store.db.QueryRowContext(ctx,
		`SELECT data FROM documents WHERE collection = $1 AND doc_id = $2`,
		c.name, docID,
	).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get document %s: %w", docID, err)
	}
	data, err := decodeData(raw)
	if err != nil {
		return nil, false, fmt.Errorf("get document %s: %w", docID, err)
	}
	return data, true, nil
}

// Set 写入文档。merge=true时新payload与存量做浅合并，否则整体覆盖
func (c *Collection) Set(ctx context.Context, docID string, data map[string]any, merge bool) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode document %s: %w", docID, err)
	}
	query := setOverwriteSQL
	if merge {
		query = setMergeSQL
	}
	if _, err := c.store.db.ExecContext(ctx, query, c.name, docID, payload); err != nil {
		return fmt.Errorf("set document %s: %w", docID, err)
	}
	return nil
}

const (
	setMergeSQL = `INSERT INTO documents (collection, doc_id, data) VALUES ($1, $2, $3)
		ON CONFLICT (collection, doc_id)
		DO UPDATE SET data = documents.data || EXCLUDED.data, updated_at = now()`
	setOverwriteSQL = `INSERT INTO documents (collection, doc_id, data) VALUES ($1, $2, $3)
		ON CONFLICT (collection, doc_id)
		DO UPDATE SET data = EXCLUDED.data, updated_at = now()`
)

// FindOneByField 按顶层字段等值取一条（doc_id顺序的第一条），不存在返回nil
func (c *Collection) FindOneByField(ctx context.Context, field, value string) (*Document, error) {
	var docID string
	var raw []byte
	err := c.store.db.QueryRowContext(ctx,
		`SELECT doc_id, data FROM documents
			WHERE collection = $1 AND data->>$2 = $3
			ORDER BY doc_id LIMIT 1`,
		c.name, field, value,
	).Scan(&docID, &raw)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find by %s: %w", field, err)
	}
	data, err := decodeData(raw)
	if err != nil {
		return nil, fmt.Errorf("find by %s: %w", field, err)
	}
	return &Document{ID: docID, Data: data}, nil
}

// WhereEqual 按顶层字段等值流式遍历全部命中文档
func (c *Collection) WhereEqual(ctx context.Context, field, value string, fn func(Document) error) error {
	rows, err := c.store.db.QueryContext(ctx,
		`SELECT doc_id, data FROM documents
			WHERE collection = $1 AND data->>$2 = $3
			ORDER BY doc_id`,
		c.name, field, value,
	)
	if err != nil {
		return fmt.Errorf("where %s = %s: %w", field, value, err)
	}
	defer rows.Close()

	for rows.Next() {
		var docID string
		var raw []byte
		if err := rows.Scan(&docID, &raw); err != nil {
			return fmt.Errorf("where %s: scan: %w", field, err)
		}
		data, err := decodeData(raw)
		if err != nil {
			return fmt.Errorf("where %s: %w", field, err)
		}
		if err := fn(Document{ID: docID, Data: data}); err != nil {
			return err
		}
	}
	return rows.Err()
}

// Page 游标分页：返回doc_id大于afterID的下一页（afterID空串=第一页）
func (c *Collection) Page(ctx context.Context, afterID string, limit int) ([]Document, error) {
	rows, err := c.store.db.QueryContext(ctx,
		`SELECT doc_id, data FROM documents
			WHERE collection = $1 AND doc_id > $2
			ORDER BY doc_id LIMIT $3`,
		c.name, afterID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("page after %q: %w", afterID, err)
	}
	defer rows.Close()

	docs := make([]Document, 0, limit)
	for rows.Next() {
		var docID string
		var raw []byte
		if err := rows.Scan(&docID, &raw); err != nil {
			return nil, fmt.Errorf("page scan: %w", err)
		}
		data, err := decodeData(raw)
		if err != nil {
			return nil, fmt.Errorf("page decode: %w", err)
		}
		docs = append(docs, Document{ID: docID, Data: data})
	}
	return docs, rows.Err()
}

// Batch 创建写批次
func (c *Collection) Batch() *WriteBatch {
	return &WriteBatch{collection: c}
}

type batchOp struct {
	docID string
	data  map[string]any
	merge bool
}

// WriteBatch 缓冲的写批次，Commit在单事务内提交
// 批次内不做去重：同键后写覆盖先写（与单写入者顺序语义一致）
type WriteBatch struct {
	collection *Collection
	ops        []batchOp
}

// Set 追加一条写入
func (b *WriteBatch) Set(docID string, data map[string]any, merge bool) {
	b.ops = append(b.ops, batchOp{docID: docID, data: data, merge: merge})
}

// Len 在途写入条数
func (b *WriteBatch) Len() int { return len(b.ops) }

// Commit 事务提交全部在途写入，成功后清空批次
func (b *WriteBatch) Commit(ctx context.Context) error {
	if len(b.ops) == 0 {
		return nil
	}
	tx, err := b.collection.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("batch begin: %w", err)
	}
	for _, op := range b.ops {
		payload, err := json.Marshal(op.data)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("batch encode %s: %w", op.docID, err)
		}
		query := setOverwriteSQL
		if op.merge {
			query = setMergeSQL
		}
		if _, err := tx.ExecContext(ctx, query, b.collection.name, op.docID, payload); err != nil {
			tx.Rollback()
			return fmt.Errorf("batch set %s: %w", op.docID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("batch commit: %w", err)
	}
	b.ops = b.ops[:0]
	return nil
}

func decodeData(raw []byte) (map[string]any, error) {
	if len(raw) == 0 {
		return map[string]any{}, nil
	}
	var data map[string]any
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("decode data: %w", err)
	}
	if data == nil {
		data = map[string]any{}
	}
	return data, nil
}
