// Package service 跑批任务的编排层
// 每个任务一个服务：依赖注入构造，Run(ctx)返回运行汇总
package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/research-patron/kikidoko/internal/config"
	"github.com/research-patron/kikidoko/internal/models"
	"github.com/research-patron/kikidoko/internal/normalizer"
	"github.com/research-patron/kikidoko/internal/report"
	"github.com/research-patron/kikidoko/internal/runner"
	"github.com/research-patron/kikidoko/internal/sources"
	"github.com/research-patron/kikidoko/internal/store"
	"github.com/research-patron/kikidoko/internal/upsert"
)

// RegistrySync 来源登记簿同步任务
// 登记簿的各机构站点逐个取得→归一化→幂等写入，
// 结果（含未同步机构的action hint）输出到预览报表
type RegistrySync struct {
	cfg        *config.Config
	collection *store.Collection
	engine     *upsert.IndexedEngine
	logger     *zap.Logger
	now        func() time.Time
}

// NewRegistrySync 创建同步任务
func NewRegistrySync(cfg *config.Config, collection *store.Collection, engine *upsert.IndexedEngine, logger *zap.Logger) *RegistrySync {
	return &RegistrySync{
		cfg:        cfg,
		collection: collection,
		engine:     engine,
		logger:     logger,
		now:        time.Now,
	}
}

type syncRecord struct {
	entryKey string
	record   models.EquipmentRecord
}

// classifyPreview 取得状态 → (action_hint, 诊断)
// 诊断用日语：预览报表的读者是数据运维
func classifyPreview(fetchStatus string, normalizedCount int) (string, string) {
	switch {
	case fetchStatus == "query_only":
		return "implement_source", "公式URLと取得方式(parser_type)の設定が未完了"
	case fetchStatus == "ok" && normalizedCount > 0:
		return "sync_now", "取得成功"
	case fetchStatus == "ok":
		return "verify_url", "取得0件（URL/selectorの要再確認）"
	case strings.HasPrefix(fetchStatus, "error:"):
		return "verify_url", strings.TrimPrefix(fetchStatus, "error:")
	case fetchStatus == "":
		return "verify_url", "unknown"
	default:
		return "verify_url", fetchStatus
	}
}

// Run 执行同步
func (s *RegistrySync) Run(ctx context.Context) (runner.Summary, error) {
	summary := runner.Summary{}

	version, entries, err := sources.LoadRegistry(s.cfg.Sync.RegistryPath)
	if err != nil {
		return summary, err
	}
	if s.cfg.Sync.RegistryVersion != "" {
		version = s.cfg.Sync.RegistryVersion
	}
	if version == "" {
		version = s.now().UTC().Format("2006-01-02")
	}

	enabled := make([]sources.RegistryEntry, 0, len(entries))
	for _, entry := range entries {
		if entry.Enabled {
			enabled = append(enabled, entry)
		}
	}
	if s.cfg.Sync.LimitOrgs > 0 && len(enabled) > s.cfg.Sync.LimitOrgs {
		enabled = enabled[:s.cfg.Sync.LimitOrgs]
	}
	s.logger.Info("Source registry loaded",
		zap.String("version", version),
		zap.Int("entries", len(entries)),
		zap.Int("enabled", len(enabled)),
	)

	previewRows := make([]report.PreviewRow, 0, len(enabled))
	normalized := make([]syncRecord, 0, 256)

	for _, entry := range enabled {
		rawRows, fetchStatus := sources.FetchForEntry(ctx, entry, s.cfg.Sync.FetchTimeout, s.cfg.Sync.LimitRecordsPerOrg)
		if ctx.Err() != nil {
			return summary, ctx.Err()
		}
		recordCount := 0
		for _, raw := range rawRows {
			hydrated := sources.Hydrate(raw, entry)
			normalized = append(normalized, syncRecord{
				entryKey: entry.Key,
				record:   normalizer.Normalize(hydrated),
			})
			recordCount++
		}
		actionHint, diagnosis := classifyPreview(fetchStatus, recordCount)
		previewRows = append(previewRows, report.PreviewRow{
			RegistryKey:     entry.Key,
			OrgName:         entry.OrgName,
			Prefecture:      entry.Prefecture,
			ParserType:      entry.ParserType,
			SourceHandler:   entry.SourceHandler,
			URL:             entry.URL,
			FetchedRawCount: len(rawRows),
			NormalizedCount: recordCount,
			FetchStatus:     fetchStatus,
			ActionHint:      actionHint,
			Diagnosis:       diagnosis,
		})
	}

	if len(normalized) == 0 {
		if err := s.writePreview(previewRows); err != nil {
			return summary, err
		}
		s.logger.Info("No normalized records, preview only",
			zap.String("preview", s.cfg.Sync.PreviewOut),
		)
		return summary, nil
	}

	orgNames := make([]string, 0, len(normalized))
	for _, item := range normalized {
		if item.record.OrgName != "" {
			orgNames = append(orgNames, item.record.OrgName)
		}
	}
	if err := s.engine.BuildIndex(ctx, orgNames); err != nil {
		return summary, err
	}

	retry := runner.RetryPolicy{
		MaxRetries: s.cfg.Run.MaxRetries,
		BaseDelay:  s.cfg.Run.BaseDelay,
		MaxDelay:   s.cfg.Run.MaxDelay,
		Logger:     s.logger,
	}
	writer := runner.NewBatchWriter(s.collection, s.cfg.Run.BatchSize, s.cfg.Run.BatchSleep, retry, s.logger)

	nowISO := s.now().UTC().Format(time.RFC3339)
	createdByEntry := make(map[string]int)
	updatedByEntry := make(map[string]int)

	for _, item := range normalized {
		summary.Processed++
		data := item.record.Document()
		data["source_site"] = item.entryKey
		data["source_registry_synced_at"] = nowISO
		data["source_registry_version"] = version
		if url, ok := data["source_url"].(string); ok && url != "" {
			data["source_registry_url"] = url
		}

		docID, status := s.engine.Resolve(item.record)
		if item.record.EquipmentID == "" {
			data["equipment_id"] = docID
		}
		if status == upsert.StatusUpdated {
			summary.Updated++
			updatedByEntry[item.entryKey]++
		} else {
			summary.Created++
			createdByEntry[item.entryKey]++
		}

		if s.cfg.Run.DryRun {
			continue
		}
		if err := writer.Set(ctx, docID, data, true); err != nil {
			return summary, fmt.Errorf("sync write: %w", err)
		}
	}
	if !s.cfg.Run.DryRun {
		if err := writer.Flush(ctx); err != nil {
			return summary, fmt.Errorf("sync flush: %w", err)
		}
	}

	for i := range previewRows {
		previewRows[i].WouldCreate = createdByEntry[previewRows[i].RegistryKey]
		previewRows[i].WouldUpdate = updatedByEntry[previewRows[i].RegistryKey]
	}
	if err := s.writePreview(previewRows); err != nil {
		return summary, err
	}

	s.logger.Info("Registry sync finished",
		zap.String("mode", string(s.engine.Mode())),
		zap.Bool("dry_run", s.cfg.Run.DryRun),
		zap.Int("commits", writer.Commits()),
		zap.String("preview", s.cfg.Sync.PreviewOut),
	)
	return summary, nil
}

func (s *RegistrySync) writePreview(rows []report.PreviewRow) error {
	payload, err := report.GenerateSyncPreview(rows)
	if err != nil {
		return fmt.Errorf("generate preview: %w", err)
	}
	return report.WriteFile(s.cfg.Sync.PreviewOut, payload)
}
