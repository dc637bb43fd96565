package runner

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsTransient(t *testing.T) {
	assert.False(t, IsTransient(nil))
	assert.False(t, IsTransient(context.Canceled))
	assert.True(t, IsTransient(context.DeadlineExceeded))

	// PostgreSQLのエラークラス
	assert.True(t, IsTransient(&pq.Error{Code: "08006"}))  // connection_failure
	assert.True(t, IsTransient(&pq.Error{Code: "53300"}))  // too_many_connections
	assert.True(t, IsTransient(&pq.Error{Code: "57P03"}))  // cannot_connect_now
	assert.True(t, IsTransient(&pq.Error{Code: "40001"}))  // serialization_failure
	assert.False(t, IsTransient(&pq.Error{Code: "23505"})) // unique_violation

	// ラップされてもerrors.Asで届く
	wrapped := fmt.Errorf("batch commit: %w", &pq.Error{Code: "08006"})
	assert.True(t, IsTransient(wrapped))

	// テキスト特徴
	assert.True(t, IsTransient(errors.New("dial tcp: i/o timeout")))
	assert.True(t, IsTransient(errors.New("DNS resolution failed")))
	assert.False(t, IsTransient(errors.New("syntax error at or near")))
}

func TestBackoff(t *testing.T) {
	policy := RetryPolicy{BaseDelay: time.Second, MaxDelay: 30 * time.Second}
	assert.Equal(t, time.Second, policy.Backoff(0))
	assert.Equal(t, 2*time.Second, policy.Backoff(1))
	assert.Equal(t, 8*time.Second, policy.Backoff(3))
	// 上限で頭打ち
	assert.Equal(t, 30*time.Second, policy.Backoff(10))
}

func TestDo_RetriesTransientThenSucceeds(t *testing.T) {
	slept := []time.Duration{}
	policy := RetryPolicy{
		MaxRetries: 3,
		BaseDelay:  time.Millisecond,
		Sleep:      func(d time.Duration) { slept = append(slept, d) },
	}

	calls := 0
	err := policy.Do(context.Background(), func() error {
		calls++
		if calls == 1 {
			return &pq.Error{Code: "08006"}
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Len(t, slept, 1)
}

func TestDo_NonTransientAbortsImmediately(t *testing.T) {
	policy := RetryPolicy{
		MaxRetries: 3,
		BaseDelay:  time.Millisecond,
		Sleep:      func(time.Duration) {},
	}

	calls := 0
	fatal := errors.New("syntax error")
	err := policy.Do(context.Background(), func() error {
		calls++
		return fatal
	})
	assert.ErrorIs(t, err, fatal)
	assert.Equal(t, 1, calls)
}

func TestDo_ExhaustsRetries(t *testing.T) {
	policy := RetryPolicy{
		MaxRetries: 2,
		BaseDelay:  time.Millisecond,
		Sleep:      func(time.Duration) {},
	}

	calls := 0
	err := policy.Do(context.Background(), func() error {
		calls++
		return &pq.Error{Code: "53300"}
	})
	assert.Error(t, err)
	// 初回 + リトライ2回
	assert.Equal(t, 3, calls)
}

func TestDo_ContextCancelStops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	policy := RetryPolicy{
		MaxRetries: 5,
		BaseDelay:  time.Millisecond,
		Sleep:      func(time.Duration) {},
	}

	calls := 0
	err := policy.Do(ctx, func() error {
		calls++
		cancel()
		return &pq.Error{Code: "08006"}
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}
