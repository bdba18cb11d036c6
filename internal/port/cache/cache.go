// Package cache defines the byte cache behind knowledge query results and
// idempotent API responses.
package cache

import (
	"context"
	"time"
)

// Cache stores opaque values under string keys. A miss is (nil, false, nil);
// errors are reserved for backend failures. Backends that expire whole
// buckets ignore ttl.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}
