package utils

import (
	"context"
	"fmt"
	"time"
)

// RunWithTimeout は fn を timeout 以内で実行します
// タイムアウトした場合はコンテキストをキャンセルし、fn の完了を待たずにエラーを返します
func RunWithTimeout(ctx context.Context, timeout time.Duration, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	errChan := make(chan error, 1)
	go func() {
		errChan <- fn(ctx)
	}()

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
		return fmt.Errorf("%w after %v", ErrTimeout, timeout)
	}
}
