package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// JobCache keeps upstream generation job snapshots for a short TTL so that
// concurrent pollers share one upstream call.
type JobCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewJobCache(client *redis.Client, ttl time.Duration) *JobCache {
	if ttl <= 0 {
		ttl = 2 * time.Second
	}
	return &JobCache{client: client, prefix: "blogwriter:job:", ttl: ttl}
}

// Get returns the cached snapshot and whether it was present.
func (c *JobCache) Get(ctx context.Context, jobID string) ([]byte, bool, error) {
	raw, err := c.client.Get(ctx, c.prefix+jobID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read job cache: %w", err)
	}
	return raw, true, nil
}

func (c *JobCache) Set(ctx context.Context, jobID string, snapshot []byte) error {
	if err := c.client.Set(ctx, c.prefix+jobID, snapshot, c.ttl).Err(); err != nil {
		return fmt.Errorf("write job cache: %w", err)
	}
	return nil
}
