// Package runner 跑批共通基盘：瞬断重试、批量写冲刷、游标扫描、运行汇总
package runner

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"

	"github.com/lib/pq"
	"go.uber.org/zap"
)

// transientKeywords 错误文本层面的瞬断特征（驱动报错文本不统一时的兜底）
var transientKeywords = []string{
	"dns resolution failed",
	"could not contact dns servers",
	"statuscode.unavailable",
	"deadline exceeded",
	"timed out",
	"timeout",
	"temporarily unavailable",
	"connection refused",
	"connection reset",
	"resource has been exhausted",
	"too many connections",
	"the database system is starting up",
}

// IsTransient 判定错误是否为可重试的瞬断
// 覆盖：PostgreSQL连接/资源类错误码、网络超时、context超时、文本特征
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code.Class() {
		case "08": // connection exception
			return true
		case "53": // insufficient resources（配额/连接数耗尽）
			return true
		case "57": // operator intervention（含57P03 cannot_connect_now）
			return true
		}
		if pqErr.Code == "40001" { // serialization_failure
			return true
		}
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	message := strings.ToLower(err.Error())
	for _, keyword := range transientKeywords {
		if strings.Contains(message, keyword) {
			return true
		}
	}
	return false
}

// RetryPolicy 指数退避重试策略（base×2^attempt，封顶MaxDelay）
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	Logger     *zap.Logger
	// Sleep 可注入（测试用），nil时为time.Sleep
	Sleep func(time.Duration)
}

// Backoff 第attempt次重试前的等待时间
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	delay := p.BaseDelay
	if delay <= 0 {
		delay = time.Second
	}
	delay = delay << uint(attempt)
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		delay = p.MaxDelay
	}
	return delay
}

// Do 执行op，瞬断错误按退避重试到上限
// 非瞬断错误或重试耗尽时返回最后一次错误（调用方以此中止运行）
func (p RetryPolicy) Do(ctx context.Context, op func() error) error {
	sleep := p.Sleep
	if sleep == nil {
		sleep = time.Sleep
	}
	for attempt := 0; ; attempt++ {
		err := op()
		if err == nil {
			return nil
		}
		if !IsTransient(err) || attempt >= p.MaxRetries {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		delay := p.Backoff(attempt)
		if p.Logger != nil {
			p.Logger.Warn("Transient error, retrying",
				zap.Error(err),
				zap.Int("attempt", attempt+1),
				zap.Int("max_retries", p.MaxRetries),
				zap.Duration("backoff", delay),
			)
		}
		sleep(delay)
	}
}
