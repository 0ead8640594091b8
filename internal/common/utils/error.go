package utils

import (
	"errors"
	"fmt"
	"runtime/debug"
)

// ErrTimeout は RunWithTimeout が時間切れになったことを表します
var ErrTimeout = errors.New("operation timed out")

// GetStackWithError は、エラーとスタックトレースを組み合わせて返します
func GetStackWithError(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w\nStack trace:\n%s", err, debug.Stack())
}
