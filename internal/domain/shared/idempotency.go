package shared

import (
	"context"
	"time"
)

// IdempotencyStore records keys that have already been acted upon.
// It backs side-effect deduplication (reminder emails, receipts notices);
// financial idempotency is enforced by the payments table itself.
type IdempotencyStore interface {
	// MarkProcessed returns true if key was newly marked, false if it was
	// already present.
	MarkProcessed(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// IsProcessed checks if key has already been marked
	IsProcessed(ctx context.Context, key string) (bool, error)

	// Release removes key so the side effect can be retried
	Release(ctx context.Context, key string) error

	Close() error
}

// IdempotencyConfig holds configuration for side-effect deduplication
type IdempotencyConfig struct {
	// TTL after which the same key can be processed again. Default: 48 hours,
	// long enough to cover a sweep day across time zones.
	TTL time.Duration

	Enabled bool
}

// DefaultIdempotencyConfig returns the default idempotency configuration
func DefaultIdempotencyConfig() IdempotencyConfig {
	return IdempotencyConfig{
		TTL:     48 * time.Hour,
		Enabled: true,
	}
}
