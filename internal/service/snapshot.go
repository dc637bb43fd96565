package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/research-patron/kikidoko/internal/config"
	"github.com/research-patron/kikidoko/internal/export"
	"github.com/research-patron/kikidoko/internal/runner"
	"github.com/research-patron/kikidoko/internal/store"
)

// SnapshotExport 前端静态快照导出任务
type SnapshotExport struct {
	cfg        *config.Config
	collection *store.Collection
	logger     *zap.Logger
	now        func() time.Time
}

// NewSnapshotExport 创建导出任务
func NewSnapshotExport(cfg *config.Config, collection *store.Collection, logger *zap.Logger) *SnapshotExport {
	return &SnapshotExport{
		cfg:        cfg,
		collection: collection,
		logger:     logger,
		now:        time.Now,
	}
}

// Run 执行导出
func (s *SnapshotExport) Run(ctx context.Context) (runner.Summary, error) {
	summary := runner.Summary{}

	retry := runner.RetryPolicy{
		MaxRetries: s.cfg.Run.MaxRetries,
		BaseDelay:  s.cfg.Run.BaseDelay,
		MaxDelay:   s.cfg.Run.MaxDelay,
		Logger:     s.logger,
	}
	scanner := &runner.Scanner{
		Collection: s.collection,
		PageSize:   s.cfg.Run.PageSize,
		Retry:      retry,
		Logger:     s.logger,
	}

	items := make([]map[string]any, 0, 1024)
	err := scanner.Scan(ctx, func(doc store.Document) error {
		summary.Processed++
		items = append(items, export.CompactDocument(doc.Data, doc.ID))
		if s.cfg.Run.LogEvery > 0 && summary.Processed%s.cfg.Run.LogEvery == 0 {
			s.logger.Info("Snapshot collection progress", zap.Int("collected", summary.Processed))
		}
		if s.cfg.Run.Limit > 0 && summary.Processed >= s.cfg.Run.Limit {
			return runner.ErrStop
		}
		return nil
	})
	if err != nil {
		return summary, err
	}

	export.SortItems(items)
	snapshot := export.Snapshot{
		SchemaVersion: export.SchemaVersion,
		SortedBy:      export.SortedBy,
		GeneratedAt:   s.now().UTC().Format(time.RFC3339),
		Count:         len(items),
		Items:         items,
	}

	if s.cfg.Run.DryRun {
		s.logger.Info("[dry-run] snapshot skipped",
			zap.Int("count", snapshot.Count),
			zap.String("output", s.cfg.Export.Output),
		)
		return summary, nil
	}

	if err := export.WriteSnapshot(s.cfg.Export.Output, snapshot); err != nil {
		return summary, err
	}
	summary.Created = snapshot.Count
	s.logger.Info("Snapshot exported",
		zap.Int("count", snapshot.Count),
		zap.String("output", s.cfg.Export.Output),
	)
	return summary, nil
}
