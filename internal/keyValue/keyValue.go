// Package keyValue is a small TTL cache. It is backed by an in-memory map
// when running self contained, and by redis otherwise.
package keyValue

import (
	"context"
	"time"
)

// Store returns "" for missing or expired keys instead of an error.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	GetDel(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value string, expires time.Duration) error
	Del(ctx context.Context, key string) error
	// Incr increments a counter, starting its expiry window on first use,
	// and returns the new count with the time left in the window.
	Incr(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error)
}
