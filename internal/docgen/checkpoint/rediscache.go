package checkpoint

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ferg-cod3s/docuforge/internal/docgen/model"
	"github.com/ferg-cod3s/docuforge/internal/observability"
)

// cacheTTL bounds how long a cached checkpoint is trusted before Get falls
// back to sqlite; long enough to absorb the orchestrator's per-phase
// save cadence without serving a stale resume decision.
const cacheTTL = 5 * time.Minute

// CachedStore fronts a Store with a Redis read-through/write-through cache
// for Get. A Redis outage degrades silently to direct sqlite reads: the
// checkpoint contract never fails because the cache is unavailable.
type CachedStore struct {
	*Store
	redis *redis.Client
	log   *observability.Logger
}

// NewCachedStore wraps store with a Redis cache reachable at redisAddr.
func NewCachedStore(store *Store, redisAddr string, log *observability.Logger) *CachedStore {
	client := redis.NewClient(&redis.Options{Addr: redisAddr})
	return &CachedStore{Store: store, redis: client, log: log}
}

// Close closes both the Redis client and the underlying sqlite store.
func (c *CachedStore) Close() error {
	_ = c.redis.Close()
	return c.Store.Close()
}

// Save writes through to sqlite then best-effort refreshes the cache entry.
func (c *CachedStore) Save(ctx context.Context, job model.GenerationJob) error {
	if err := c.Store.Save(ctx, job); err != nil {
		return err
	}
	c.writeCache(ctx, job)
	return nil
}

// Get reads the cache first; on a miss or Redis error it falls through to
// sqlite and repopulates the cache.
func (c *CachedStore) Get(ctx context.Context, repoID string) (*model.GenerationJob, error) {
	if cached, ok := c.readCache(ctx, repoID); ok {
		return cached, nil
	}
	job, err := c.Store.Get(ctx, repoID)
	if err != nil || job == nil {
		return job, err
	}
	c.writeCache(ctx, *job)
	return job, nil
}

func (c *CachedStore) readCache(ctx context.Context, repoID string) (*model.GenerationJob, bool) {
	data, err := c.redis.Get(ctx, cacheKey(repoID)).Bytes()
	if err != nil {
		return nil, false
	}
	var job model.GenerationJob
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, false
	}
	return &job, true
}

func (c *CachedStore) writeCache(ctx context.Context, job model.GenerationJob) {
	data, err := json.Marshal(job)
	if err != nil {
		return
	}
	if err := c.redis.Set(ctx, cacheKey(job.RepoID), data, cacheTTL).Err(); err != nil && c.log != nil {
		c.log.Warn("checkpoint cache write failed", "repo_id", job.RepoID, "error", err)
	}
}

func cacheKey(repoID string) string {
	return "docuforge:checkpoint:" + repoID
}
