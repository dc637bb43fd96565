package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/research-patron/kikidoko/internal/config"
	"github.com/research-patron/kikidoko/internal/matcher"
	"github.com/research-patron/kikidoko/internal/runner"
	"github.com/research-patron/kikidoko/internal/store"
)

// EqnetBackfill EQNET对账任务
// 存量设备文档逐条与主登记簿模糊匹配，匹配字段merge写回。
// 已有判定的文档默认跳过（error状态除外），Force时全量重算
type EqnetBackfill struct {
	cfg        *config.Config
	collection *store.Collection
	matcher    *matcher.Matcher
	logger     *zap.Logger
	sleepFn    func(time.Duration)
}

// NewEqnetBackfill 创建对账任务
func NewEqnetBackfill(cfg *config.Config, collection *store.Collection, m *matcher.Matcher, logger *zap.Logger) *EqnetBackfill {
	return &EqnetBackfill{
		cfg:        cfg,
		collection: collection,
		matcher:    m,
		logger:     logger,
		sleepFn:    time.Sleep,
	}
}

// Run 执行对账
func (s *EqnetBackfill) Run(ctx context.Context) (runner.Summary, error) {
	summary := runner.Summary{}

	retry := runner.RetryPolicy{
		MaxRetries: s.cfg.Run.MaxRetries,
		BaseDelay:  s.cfg.Run.BaseDelay,
		MaxDelay:   s.cfg.Run.MaxDelay,
		Logger:     s.logger,
	}
	writer := runner.NewBatchWriter(s.collection, s.cfg.Run.BatchSize, s.cfg.Run.BatchSleep, retry, s.logger)
	scanner := &runner.Scanner{
		Collection: s.collection,
		PageSize:   s.cfg.Run.PageSize,
		Retry:      retry,
		Logger:     s.logger,
	}

	err := scanner.Scan(ctx, func(doc store.Document) error {
		summary.Processed++

		existingID := matcher.ParseRegistryID(doc.Data["eqnet_equipment_id"])
		if existingID == "" {
			existingID = matcher.ParseRegistryID(doc.Data["eqnet_url"])
		}
		status := strings.TrimSpace(stringValue(doc.Data, "eqnet_match_status"))
		if (existingID != "" || (status != "" && status != "error")) && !s.cfg.Eqnet.Force {
			summary.Skipped++
			return s.checkpoint(summary)
		}

		updates := s.matcher.BuildUpdates(doc.Data)
		if matcher.HasUpdates(doc.Data, updates) {
			summary.Updated++
			if s.cfg.Run.DryRun {
				name := strings.TrimSpace(stringValue(doc.Data, "name"))
				if name == "" {
					name = doc.ID
				}
				s.logger.Info("[dry-run] match resolved",
					zap.String("doc_id", doc.ID),
					zap.String("name", name),
					zap.Any("status", updates["eqnet_match_status"]),
				)
			} else if err := writer.Set(ctx, doc.ID, updates, true); err != nil {
				return fmt.Errorf("backfill write: %w", err)
			}
		} else {
			summary.Skipped++
		}

		if s.cfg.Run.RequestSleep > 0 {
			s.sleepFn(s.cfg.Run.RequestSleep)
		}
		return s.checkpoint(summary)
	})
	if err != nil {
		return summary, err
	}

	if !s.cfg.Run.DryRun {
		if err := writer.Flush(ctx); err != nil {
			return summary, fmt.Errorf("backfill flush: %w", err)
		}
	}
	return summary, nil
}

// checkpoint 进度日志与条数上限判定
func (s *EqnetBackfill) checkpoint(summary runner.Summary) error {
	if s.cfg.Run.LogEvery > 0 && summary.Processed%s.cfg.Run.LogEvery == 0 {
		summary.Log(s.logger, "Backfill progress")
	}
	if s.cfg.Run.Limit > 0 && summary.Processed >= s.cfg.Run.Limit {
		return runner.ErrStop
	}
	return nil
}

func stringValue(data map[string]any, key string) string {
	if value, ok := data[key].(string); ok {
		return value
	}
	return ""
}
