package repository

import (
	"context"
	"time"
)

// LoginAttemptRepository counts failed logins per key inside a sliding window.
type LoginAttemptRepository interface {
	// Count returns the failures recorded for key in the current window.
	Count(ctx context.Context, key string) (int, error)
	// Increment records a failure and returns the new count. The window starts at the first failure.
	Increment(ctx context.Context, key string, window time.Duration) (int, error)
	Reset(ctx context.Context, key string) error
}
