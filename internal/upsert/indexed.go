package upsert

import (
	"context"
	"sort"

	"go.uber.org/zap"

	"github.com/research-patron/kikidoko/internal/models"
	"github.com/research-patron/kikidoko/internal/runner"
	"github.com/research-patron/kikidoko/internal/store"
)

// Mode 索引引擎的运行模式
type Mode string

const (
	// ModeIndexed 预构建索引可用，保证去重
	ModeIndexed Mode = "indexed"
	// ModeDegraded 索引构建失败后的只写模式：best-effort ID、无去重保证
	// 是完整性换可用性的显式取舍，必须可观测（状态迁移打warn日志）
	ModeDegraded Mode = "degraded"
)

// IndexedEngine 高吞吐upsert变体
// 批量写入前按机构分区预构建 {equipment_id→doc_id, dedupe_key→doc_id} 索引，
// 之后Resolve只查内存。持续配额错误导致索引建不起来时降级为只写模式，
// 而不是中止运行。索引归单次运行独占，不跨运行共享
type IndexedEngine struct {
	collection    *store.Collection
	retry         runner.RetryPolicy
	logger        *zap.Logger
	mode          Mode
	byEquipmentID map[string]string
	byDedupeKey   map[string]string
}

// NewIndexedEngine 创建索引引擎（初始为indexed模式，索引为空）
func NewIndexedEngine(collection *store.Collection, retry runner.RetryPolicy, logger *zap.Logger) *IndexedEngine {
	return &IndexedEngine{
		collection:    collection,
		retry:         retry,
		logger:        logger,
		mode:          ModeIndexed,
		byEquipmentID: make(map[string]string),
		byDedupeKey:   make(map[string]string),
	}
}

// Mode 当前运行模式
func (e *IndexedEngine) Mode() Mode { return e.mode }

// BuildIndex 按机构名分区预读存量文档构建键索引
// 任一分区在重试耗尽后仍失败时整体降级（显式日志状态迁移），不报错中止
func (e *IndexedEngine) BuildIndex(ctx context.Context, orgNames []string) error {
	unique := make(map[string]struct{}, len(orgNames))
	for _, name := range orgNames {
		if name != "" {
			unique[name] = struct{}{}
		}
	}
	sorted := make([]string, 0, len(unique))
	for name := range unique {
		sorted = append(sorted, name)
	}
	sort.Strings(sorted)

	for _, orgName := range sorted {
		err := e.retry.Do(ctx, func() error {
			return e.collection.WhereEqual(ctx, "org_name", orgName, func(doc store.Document) error {
				if id, ok := doc.Data["equipment_id"].(string); ok && id != "" {
					e.byEquipmentID[id] = doc.ID
				}
				if key, ok := doc.Data["dedupe_key"].(string); ok && key != "" {
					e.byDedupeKey[key] = doc.ID
				}
				return nil
			})
		})
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			e.degrade(orgName, err)
			return nil
		}
	}

	e.logger.Info("Dedupe index built",
		zap.Int("orgs", len(sorted)),
		zap.Int("equipment_ids", len(e.byEquipmentID)),
		zap.Int("dedupe_keys", len(e.byDedupeKey)),
	)
	return nil
}

func (e *IndexedEngine) degrade(orgName string, err error) {
	e.mode = ModeDegraded
	e.byEquipmentID = make(map[string]string)
	e.byDedupeKey = make(map[string]string)
	e.logger.Warn("Index construction failed, degrading to write-only mode (no dedupe guarantee)",
		zap.String("org_name", orgName),
		zap.Error(err),
	)
}

// Resolve 解析一条记录应写入的doc_id与写入状态
// indexed模式：键索引命中→updated，未命中→新ID并回填索引
// （同一运行内同键的后续写入收敛到同一文档）
// degraded模式：有equipment_id时以其为doc_id（best-effort），否则新ID
func (e *IndexedEngine) Resolve(record models.EquipmentRecord) (string, Status) {
	if e.mode == ModeIndexed {
		if record.EquipmentID != "" {
			if docID, ok := e.byEquipmentID[record.EquipmentID]; ok {
				e.remember(record, docID)
				return docID, StatusUpdated
			}
		}
		if record.DedupeKey != "" {
			if docID, ok := e.byDedupeKey[record.DedupeKey]; ok {
				e.remember(record, docID)
				return docID, StatusUpdated
			}
		}
		docID := e.collection.NewDocID()
		e.remember(record, docID)
		return docID, StatusCreated
	}

	if record.EquipmentID != "" {
		return SafeDocID(record.EquipmentID), StatusCreated
	}
	return e.collection.NewDocID(), StatusCreated
}

func (e *IndexedEngine) remember(record models.EquipmentRecord, docID string) {
	if record.EquipmentID != "" {
		e.byEquipmentID[record.EquipmentID] = docID
	}
	if record.DedupeKey != "" {
		e.byDedupeKey[record.DedupeKey] = docID
	}
}
