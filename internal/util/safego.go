package util

import (
	"github.com/jmehdipour/journal-gateway/internal/logger"
	"go.uber.org/zap"
)

// SafeGo launches fn in a new goroutine and logs instead of crashing if it panics.
// Use it for fire-and-forget work that runs after the response has been written.
func SafeGo(fn func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Log.Error("recovered panic in background goroutine", zap.Any("panic", r))
			}
		}()
		fn()
	}()
}
