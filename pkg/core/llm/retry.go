package llm

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"github.com/easyops/contextengine-go/pkg/core/errors"
)

// RetryFunc 可重试的函数类型
type RetryFunc func() error

// retry 执行带指数退避的重试，只重试限流、超时和服务不可用
func retry(ctx context.Context, maxRetries int, baseDelay time.Duration, fn RetryFunc) error {
	r := RetryWithCallback{MaxRetries: maxRetries, BaseDelay: baseDelay}
	return r.Do(ctx, fn)
}

// calculateBackoff 计算指数退避时间
// 使用公式: baseDelay * 2^attempt + jitter(0~10%)
// 最大延迟限制为 30 秒
func calculateBackoff(attempt int, baseDelay time.Duration) time.Duration {
	exp := math.Pow(2, float64(attempt))
	delay := time.Duration(float64(baseDelay) * exp)

	if delay > 0 {
		delay += time.Duration(rand.Int64N(int64(delay)/10 + 1))
	}

	maxDelay := 30 * time.Second
	if delay > maxDelay {
		delay = maxDelay
	}

	return delay
}

// RetryWithCallback 带回调的重试
type RetryWithCallback struct {
	MaxRetries int
	BaseDelay  time.Duration
	OnRetry    func(attempt int, err error)
}

// Do 执行带回调的重试
func (r *RetryWithCallback) Do(ctx context.Context, fn RetryFunc) error {
	var lastErr error

	for attempt := 0; attempt <= r.MaxRetries; attempt++ {
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %w", errors.ErrContextCanceled, ctx.Err())
		default:
		}

		err := fn()
		if err == nil {
			return nil
		}

		lastErr = err

		if !errors.IsRetryable(err) {
			return err
		}

		if r.OnRetry != nil {
			r.OnRetry(attempt, err)
		}

		if attempt < r.MaxRetries {
			delay := calculateBackoff(attempt, r.BaseDelay)
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return fmt.Errorf("%w: %w", errors.ErrContextCanceled, ctx.Err())
			case <-timer.C:
			}
		}
	}

	return lastErr
}
