package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const dedupTTL = 5 * time.Minute

// FixDedup provides duplicate-fix suppression backed by Redis. Mobile
// clients on flaky networks retransmit the same fix; the key marks an
// (identity, capture time) pair as already ingested.
// Key format: fix:<identity>:<unix_capture_time>
type FixDedup struct {
	client *redis.Client
}

// NewFixDedup creates a FixDedup wrapping the given Redis client.
func NewFixDedup(client *redis.Client) *FixDedup {
	return &FixDedup{client: client}
}

// IsDuplicate reports whether this exact fix has already been ingested.
func (d *FixDedup) IsDuplicate(ctx context.Context, identity int64, capturedAt time.Time) (bool, error) {
	n, err := d.client.Exists(ctx, d.key(identity, capturedAt)).Result()
	if err != nil {
		return false, fmt.Errorf("dedup check: %w", err)
	}
	return n > 0, nil
}

// Mark records that this fix has been ingested (expires after dedupTTL).
func (d *FixDedup) Mark(ctx context.Context, identity int64, capturedAt time.Time) error {
	return d.client.Set(ctx, d.key(identity, capturedAt), "1", dedupTTL).Err()
}

func (d *FixDedup) key(identity int64, capturedAt time.Time) string {
	return fmt.Sprintf("fix:%d:%d", identity, capturedAt.Unix())
}
