// Package cache is a small byte-value store with TTLs, used for the
// delegation capability flag and other ephemeral operational state. The
// memory implementation is the default; redis backs multi-instance
// deployments.
package cache

import (
	"context"
	"time"
)

type Store interface {
	Get(ctx context.Context, key string) (value []byte, found bool, err error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}
