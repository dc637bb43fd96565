package runner

import (
	"fmt"

	"go.uber.org/zap"
)

// Summary 运行汇总。每个驱动结束时必须输出，
// 便于运维不翻日志就能判断部分运行的结果
type Summary struct {
	Processed int
	Created   int
	Updated   int
	Skipped   int
	Errors    int
}

// String 运维可读的一行汇总
func (s Summary) String() string {
	return fmt.Sprintf("processed=%d created=%d updated=%d skipped=%d errors=%d",
		s.Processed, s.Created, s.Updated, s.Skipped, s.Errors)
}

// Log 结构化输出汇总
func (s Summary) Log(logger *zap.Logger, message string) {
	logger.Info(message,
		zap.Int("processed", s.Processed),
		zap.Int("created", s.Created),
		zap.Int("updated", s.Updated),
		zap.Int("skipped", s.Skipped),
		zap.Int("errors", s.Errors),
	)
}
