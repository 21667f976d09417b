package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

const (
	// initialBackoff は起動時リトライの初回遅延。
	initialBackoff = 500 * time.Millisecond
	// maxBackoff は起動時リトライの最大遅延。
	maxBackoff = 8 * time.Second
	// startupAttempts はバックエンド接続の最大試行回数。
	startupAttempts = 6
)

// calculateBackoff は連続失敗回数に基づいて指数バックオフ遅延を計算する。
// 初回500ミリ秒、2倍ずつ増加、最大8秒。
func calculateBackoff(consecutiveFailures int) time.Duration {
	delay := initialBackoff
	for i := 0; i < consecutiveFailures; i++ {
		delay *= 2
		if delay > maxBackoff {
			return maxBackoff
		}
	}
	return delay
}

// waitContext はdだけ待機する。ctxが先に終了した場合はctxのエラーを返す。
func waitContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// retryStartup はコンテナ同時起動時にDBやオブジェクトストレージの準備を待つため、
// fnが成功するまで最大attempts回、指数バックオフで再試行する。
func retryStartup(ctx context.Context, backend string, attempts int, wait func(context.Context, time.Duration) error, fn func(context.Context) error) error {
	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		if attempt == attempts-1 {
			break
		}

		delay := calculateBackoff(attempt)
		slog.Warn("backend not ready, retrying",
			slog.String("backend", backend),
			slog.Int("attempt", attempt+1),
			slog.Duration("retry_in", delay),
			slog.String("error", err.Error()),
		)
		if werr := wait(ctx, delay); werr != nil {
			return fmt.Errorf("%s: %w", backend, werr)
		}
	}
	return fmt.Errorf("%s unavailable after %d attempts: %w", backend, attempts, err)
}
