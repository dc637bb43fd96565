// Package upsert 按equipment_id/dedupe_key的幂等写入协议
//
// 全局唯一性不变量：共享同一键的两次写入必须收敛到同一文档。
// 前提是单写入者顺序执行——并发写入者在键集合重叠且不共享索引时
// 可能产生重复，按运维约定每collection同一时刻只跑一个任务。
package upsert

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/research-patron/kikidoko/internal/models"
	"github.com/research-patron/kikidoko/internal/store"
)

// 写入结果状态
type Status string

const (
	StatusCreated Status = "created"
	StatusUpdated Status = "updated"
)

// Engine 逐条查找型upsert引擎
type Engine struct {
	collection *store.Collection
	logger     *zap.Logger
}

// NewEngine 创建upsert引擎
func NewEngine(collection *store.Collection, logger *zap.Logger) *Engine {
	return &Engine{collection: collection, logger: logger}
}

// Write 幂等写入一条记录
// 查找顺序：(1) equipment_id完全一致 (2) dedupe_key完全一致 (3) 都没有则新建，
// 新建且记录无ID时把库侧ID采用为equipment_id。命中时做merge写入
// （新payload未覆盖的存量字段保留）
func (e *Engine) Write(ctx context.Context, record models.EquipmentRecord) (string, Status, error) {
	data := record.Document()

	if record.EquipmentID != "" {
		doc, err := e.collection.FindOneByField(ctx, "equipment_id", record.EquipmentID)
		if err != nil {
			return "", "", fmt.Errorf("upsert lookup by equipment_id: %w", err)
		}
		if doc != nil {
			if err := e.collection.Set(ctx, doc.ID, data, true); err != nil {
				return "", "", err
			}
			return doc.ID, StatusUpdated, nil
		}
	}

	if record.DedupeKey != "" {
		doc, err := e.collection.FindOneByField(ctx, "dedupe_key", record.DedupeKey)
		if err != nil {
			return "", "", fmt.Errorf("upsert lookup by dedupe_key: %w", err)
		}
		if doc != nil {
			if err := e.collection.Set(ctx, doc.ID, data, true); err != nil {
				return "", "", err
			}
			return doc.ID, StatusUpdated, nil
		}
	}

	docID := e.collection.NewDocID()
	if record.EquipmentID == "" {
		data["equipment_id"] = docID
	}
	if err := e.collection.Set(ctx, docID, data, false); err != nil {
		return "", "", err
	}
	return docID, StatusCreated, nil
}

// SafeDocID equipment_id转为可用的doc_id（"/"替换）
func SafeDocID(value string) string {
	return strings.ReplaceAll(value, "/", "_")
}
