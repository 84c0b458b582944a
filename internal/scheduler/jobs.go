package scheduler

import (
	"context"
	"fmt"
	"time"
)

type CachePurger interface {
	PurgeExpiredKeywordCache(ctx context.Context) (int64, error)
	PurgeExpiredAuth(ctx context.Context) (int64, error)
}

type QueueSweeper interface {
	FailStaleQueueItems(ctx context.Context, cutoff time.Time) (int64, error)
}

type Reindexer interface {
	Reindex(ctx context.Context) (int, error)
}

// PurgeExpired drops expired keyword cache rows and stale auth records.
func PurgeExpired(spec string, store CachePurger) Job {
	return Job{
		Name: "purge-expired",
		Spec: spec,
		Run: func(ctx context.Context) (int64, error) {
			cache, err := store.PurgeExpiredKeywordCache(ctx)
			if err != nil {
				return 0, fmt.Errorf("purge keyword cache: %w", err)
			}
			auth, err := store.PurgeExpiredAuth(ctx)
			if err != nil {
				return cache, fmt.Errorf("purge auth records: %w", err)
			}
			return cache + auth, nil
		},
	}
}

// SweepQueue fails queued or generating items older than staleAfter.
func SweepQueue(spec string, store QueueSweeper, staleAfter time.Duration, now func() time.Time) Job {
	if now == nil {
		now = time.Now
	}
	return Job{
		Name: "sweep-generation-queue",
		Spec: spec,
		Run: func(ctx context.Context) (int64, error) {
			return store.FailStaleQueueItems(ctx, now().Add(-staleAfter))
		},
	}
}

func ReindexSearch(spec string, indexer Reindexer) Job {
	return Job{
		Name: "reindex-search",
		Spec: spec,
		Run: func(ctx context.Context) (int64, error) {
			n, err := indexer.Reindex(ctx)
			return int64(n), err
		},
	}
}
