package runner

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/research-patron/kikidoko/internal/store"
)

// BatchWriter 满批即冲刷的缓冲写入器
// 部分运行（条数上限）下调用方必须在退出前调用Flush冲刷在途批
type BatchWriter struct {
	collection *store.Collection
	batch      *store.WriteBatch
	size       int
	sleep      time.Duration // 每批提交后的限流休眠
	retry      RetryPolicy
	logger     *zap.Logger
	commits    int
	written    int
	sleepFn    func(time.Duration)
}

// NewBatchWriter 创建批量写入器
func NewBatchWriter(collection *store.Collection, size int, sleep time.Duration, retry RetryPolicy, logger *zap.Logger) *BatchWriter {
	if size <= 0 {
		size = 200
	}
	sleepFn := retry.Sleep
	if sleepFn == nil {
		sleepFn = time.Sleep
	}
	return &BatchWriter{
		collection: collection,
		batch:      collection.Batch(),
		size:       size,
		sleep:      sleep,
		retry:      retry,
		logger:     logger,
		sleepFn:    sleepFn,
	}
}

// Set 追加一条写入，批次到达容量即提交
func (w *BatchWriter) Set(ctx context.Context, docID string, data map[string]any, merge bool) error {
	w.batch.Set(docID, data, merge)
	if w.batch.Len() >= w.size {
		return w.Flush(ctx)
	}
	return nil
}

// Flush 提交在途批（带重试）。空批为no-op
func (w *BatchWriter) Flush(ctx context.Context) error {
	pending := w.batch.Len()
	if pending == 0 {
		return nil
	}
	if err := w.retry.Do(ctx, func() error { return w.batch.Commit(ctx) }); err != nil {
		return err
	}
	w.commits++
	w.written += pending
	if w.logger != nil {
		w.logger.Debug("Batch committed",
			zap.Int("size", pending),
			zap.Int("commits", w.commits),
		)
	}
	if w.sleep > 0 {
		w.sleepFn(w.sleep)
	}
	return nil
}

// Commits 已提交批次数
func (w *BatchWriter) Commits() int { return w.commits }

// Written 已提交写入条数
func (w *BatchWriter) Written() int { return w.written }
