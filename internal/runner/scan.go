package runner

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/research-patron/kikidoko/internal/store"
)

// ErrStop 扫描回调返回此错误时正常终止扫描（条数上限用）
var ErrStop = errors.New("runner: stop scan")

// Scanner 文档collection的游标扫描器
// "从上次看到的doc_id之后继续"式分页，页级读取按瞬断重试
type Scanner struct {
	Collection *store.Collection
	PageSize   int
	Retry      RetryPolicy
	Logger     *zap.Logger
}

// Scan 按doc_id升序遍历全部文档
// fn返回ErrStop时停止且Scan返回nil；其他错误原样上抛中止运行
func (s *Scanner) Scan(ctx context.Context, fn func(store.Document) error) error {
	pageSize := s.PageSize
	if pageSize <= 0 {
		pageSize = 200
	}

	lastID := ""
	for {
		var docs []store.Document
		err := s.Retry.Do(ctx, func() error {
			var pageErr error
			docs, pageErr = s.Collection.Page(ctx, lastID, pageSize)
			return pageErr
		})
		if err != nil {
			return fmt.Errorf("scan page after %q: %w", lastID, err)
		}
		if len(docs) == 0 {
			return nil
		}

		for _, doc := range docs {
			if err := fn(doc); err != nil {
				if errors.Is(err, ErrStop) {
					return nil
				}
				return err
			}
		}

		if len(docs) < pageSize {
			return nil
		}
		lastID = docs[len(docs)-1].ID
	}
}
