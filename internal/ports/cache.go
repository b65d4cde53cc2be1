package ports

import (
	"context"
	"time"
)

// Cache is a key-value store with optional expiry. A zero ttl keeps the
// value until it is overwritten or deleted.
type Cache interface {
	Get(ctx context.Context, key string) (value string, found bool, err error)
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}
