package redis

import (
	"context"
	"errors"
	"time"

	"github.com/alem-hub/learnsync/internal/domain/notes"
	"github.com/alem-hub/learnsync/internal/domain/progress"
	"github.com/alem-hub/learnsync/internal/domain/syncmerge"
	"github.com/alem-hub/learnsync/pkg/circuitbreaker"
	"github.com/alem-hub/learnsync/pkg/logger"
	"github.com/alem-hub/learnsync/pkg/retry"
)

// valueCache is the subset of Cache the snapshot cache needs.
type valueCache interface {
	Get(ctx context.Context, key string, dest any) error
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// cachedSnapshot is the cached form of a remote snapshot.
type cachedSnapshot struct {
	Progress *progress.Progress `json:"progress"`
	Notes    notes.Collection   `json:"notes"`
	CachedAt time.Time          `json:"cached_at"`
}

// SnapshotCacheOption configures a SnapshotCache.
type SnapshotCacheOption func(*SnapshotCache)

// WithBreaker routes every cache call through cb.
func WithBreaker(cb *circuitbreaker.CircuitBreaker) SnapshotCacheOption {
	return func(c *SnapshotCache) {
		c.breaker = cb
	}
}

// WithInvalidateRetrier retries failed invalidations with r.
func WithInvalidateRetrier(r *retry.Retrier) SnapshotCacheOption {
	return func(c *SnapshotCache) {
		c.retrier = r
	}
}

// SnapshotCache keeps a short-lived copy of each user's remote snapshot so
// that back-to-back sync triggers don't hit the database twice.
type SnapshotCache struct {
	cache   valueCache
	ttl     time.Duration
	log     *logger.Logger
	now     func() time.Time
	breaker *circuitbreaker.CircuitBreaker
	retrier *retry.Retrier
}

// NewSnapshotCache creates a new SnapshotCache.
func NewSnapshotCache(cache valueCache, ttl time.Duration, log *logger.Logger, opts ...SnapshotCacheOption) *SnapshotCache {
	if ttl <= 0 {
		ttl = TTLRemoteSnapshot
	}
	if log == nil {
		log = logger.Nop()
	}
	c := &SnapshotCache{
		cache: cache,
		ttl:   ttl,
		log:   log.With(logger.Component("snapshot_cache")),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *SnapshotCache) guard(ctx context.Context, fn func(context.Context) error) error {
	if c.breaker == nil {
		return fn(ctx)
	}
	return c.breaker.Execute(ctx, fn)
}

// Get returns the cached snapshot. An undecodable entry is dropped and
// reported as a miss.
func (c *SnapshotCache) Get(ctx context.Context, userID string) (syncmerge.Snapshot, bool, error) {
	key := RemoteSnapshotKey(userID)

	var (
		cached  cachedSnapshot
		readErr error
	)
	err := c.guard(ctx, func(ctx context.Context) error {
		readErr = c.cache.Get(ctx, key, &cached)
		if errors.Is(readErr, ErrCacheMiss) || errors.Is(readErr, ErrCacheSerialization) {
			return nil
		}
		return readErr
	})
	if err == nil {
		err = readErr
	}

	switch {
	case err == nil:
	case errors.Is(err, ErrCacheMiss):
		return syncmerge.Snapshot{}, false, nil
	case errors.Is(err, ErrCacheSerialization):
		c.log.Warn("dropping undecodable cached snapshot", logger.StorageKey(key), logger.Err(err))
		return syncmerge.Snapshot{}, false, c.cache.Delete(ctx, key)
	default:
		return syncmerge.Snapshot{}, false, err
	}

	snap := syncmerge.Snapshot{Notes: cached.Notes.Normalize()}
	if cached.Progress != nil {
		p := cached.Progress.Normalize()
		snap.Progress = &p
	}
	return snap, true, nil
}

// Put caches snap for the configured TTL.
func (c *SnapshotCache) Put(ctx context.Context, userID string, snap syncmerge.Snapshot) error {
	value := cachedSnapshot{
		Progress: snap.Progress,
		Notes:    snap.Notes,
		CachedAt: c.now().UTC(),
	}
	return c.guard(ctx, func(ctx context.Context) error {
		return c.cache.Set(ctx, RemoteSnapshotKey(userID), value, c.ttl)
	})
}

// Invalidate drops the cached snapshot. Failures are retried when a
// retrier is set.
func (c *SnapshotCache) Invalidate(ctx context.Context, userID string) error {
	del := func(ctx context.Context) error {
		return c.guard(ctx, func(ctx context.Context) error {
			return c.cache.Delete(ctx, RemoteSnapshotKey(userID))
		})
	}
	if c.retrier == nil {
		return del(ctx)
	}
	return c.retrier.Do(ctx, func(ctx context.Context) error {
		if err := del(ctx); err != nil {
			if circuitbreaker.IsRejected(err) {
				return retry.Permanent(err)
			}
			return retry.Retryable(err)
		}
		return nil
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// READ-THROUGH REMOTE
// ══════════════════════════════════════════════════════════════════════════════

// Remote is the remote store the cache sits in front of.
type Remote interface {
	Fetch(ctx context.Context, userID string) (syncmerge.Snapshot, error)
	Upsert(ctx context.Context, userID string, p progress.Progress, n notes.Collection) error
}

// CachedRemote serves Fetch from the snapshot cache when it can and drops
// the cached copy after every write. Cache failures are logged and never
// surface as remote failures.
type CachedRemote struct {
	remote Remote
	cache  *SnapshotCache
	log    *logger.Logger
}

// NewCachedRemote wraps remote with cache.
func NewCachedRemote(remote Remote, cache *SnapshotCache, log *logger.Logger) *CachedRemote {
	if log == nil {
		log = logger.Nop()
	}
	return &CachedRemote{remote: remote, cache: cache, log: log.With(logger.Component("cached_remote"))}
}

// Fetch implements Remote.
func (r *CachedRemote) Fetch(ctx context.Context, userID string) (syncmerge.Snapshot, error) {
	snap, ok, err := r.cache.Get(ctx, userID)
	if err != nil {
		r.log.Warn("snapshot cache read failed", logger.UserID(userID), logger.Err(err))
	}
	if ok {
		r.log.Debug("remote snapshot served from cache", logger.UserID(userID))
		return snap, nil
	}

	snap, err = r.remote.Fetch(ctx, userID)
	if err != nil {
		return syncmerge.Snapshot{}, err
	}

	if err := r.cache.Put(ctx, userID, snap); err != nil {
		r.log.Warn("snapshot cache write failed", logger.UserID(userID), logger.Err(err))
	}
	return snap, nil
}

// Upsert implements Remote.
func (r *CachedRemote) Upsert(ctx context.Context, userID string, p progress.Progress, n notes.Collection) error {
	if err := r.remote.Upsert(ctx, userID, p, n); err != nil {
		return err
	}

	if err := r.cache.Invalidate(ctx, userID); err != nil {
		r.log.Warn("snapshot cache invalidation failed", logger.UserID(userID), logger.Err(err))
	}
	return nil
}
