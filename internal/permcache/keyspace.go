package permcache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// sharedRetries bounds how often a caller re-runs a computation whose leader was cancelled.
const sharedRetries = 3

// Keyspace is one typed region of the cache. Values handed out may be shared between callers
// and must be treated as read-only.
type Keyspace[T any] struct {
	cache *Cache
	name  string
	group singleflight.Group

	localMu  sync.Mutex
	localGen uint64
	local    *expirable.LRU[string, T]
}

// NewKeyspace registers a keyspace on c.
func NewKeyspace[T any](c *Cache, name string) *Keyspace[T] {
	ks := &Keyspace[T]{cache: c, name: name}
	if c.cfg.LocalSize > 0 && c.cfg.LocalTTL > 0 {
		ks.local = expirable.NewLRU[string, T](c.cfg.LocalSize, nil, c.cfg.LocalTTL)
	}
	c.register(name, ks)
	return ks
}

// Name returns the keyspace name.
func (k *Keyspace[T]) Name() string { return k.name }

// GetOrCompute returns the cached value for key or computes it with fn. Concurrent misses on
// the same key share one computation, which runs with the context of the caller that started
// it. Errors from fn are returned to every waiting caller and never cached. If Redis is
// unreachable the value is computed without caching.
func (k *Keyspace[T]) GetOrCompute(ctx context.Context, key string, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	c := k.cache

	gen := k.generation()
	if v, ok := k.localGet(key); ok {
		c.recordRequest(k.name, ResultLocalHit)
		return v, nil
	}

	version, err := c.version(ctx, k.name)
	if err != nil {
		return k.bypass(ctx, key, fn, err)
	}

	raw, err := c.client.Get(ctx, c.valueKey(k.name, version, key)).Bytes()
	switch {
	case err == nil:
		var v T
		decodeErr := json.Unmarshal(raw, &v)
		if decodeErr == nil {
			c.recordRequest(k.name, ResultHit)
			k.localAdd(key, v, gen)
			return v, nil
		}
		c.logger.Warn("permcache decode", slog.String("keyspace", k.name), slog.String("key", key), slog.Any("error", decodeErr))
	case errors.Is(err, redis.Nil):
	default:
		return k.bypass(ctx, key, fn, err)
	}

	for attempt := 0; ; attempt++ {
		ch := k.group.DoChan(flightKey(version, key), func() (any, error) {
			return k.compute(ctx, version, key, fn)
		})
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case res := <-ch:
			if res.Err != nil {
				if res.Shared && isContextError(res.Err) && ctx.Err() == nil && attempt < sharedRetries {
					continue
				}
				return zero, res.Err
			}
			if res.Shared {
				c.recordRequest(k.name, ResultShared)
			} else {
				c.recordRequest(k.name, ResultMiss)
			}
			return res.Val.(T), nil
		}
	}
}

func (k *Keyspace[T]) compute(ctx context.Context, version int64, key string, fn func(context.Context) (T, error)) (any, error) {
	c := k.cache
	gen := k.generation()

	cacheable := true
	epoch, err := c.epoch(ctx, k.name, key)
	if err != nil {
		c.logger.Warn("permcache epoch", slog.String("keyspace", k.name), slog.String("key", key), slog.Any("error", err))
		cacheable = false
	}

	started := time.Now()
	v, err := fn(ctx)
	c.recordCompute(k.name, time.Since(started))
	if err != nil {
		return nil, err
	}
	if !cacheable {
		return v, nil
	}

	stored, err := c.store(ctx, k.name, version, epoch, key, v)
	if err != nil {
		c.logger.Warn("permcache store", slog.Any("error", err))
	}
	if stored {
		k.localAdd(key, v, gen)
	}
	return v, nil
}

func (k *Keyspace[T]) bypass(ctx context.Context, key string, fn func(context.Context) (T, error), cause error) (T, error) {
	k.cache.logger.Warn("permcache unavailable, computing uncached",
		slog.String("keyspace", k.name), slog.String("key", key), slog.Any("error", cause))
	k.cache.recordRequest(k.name, ResultBypass)
	return fn(ctx)
}

// Evict removes key. The in-process entry is dropped even when Redis fails, in which case the
// error is returned so the caller can retry.
func (k *Keyspace[T]) Evict(ctx context.Context, key string) error {
	c := k.cache
	version, err := c.version(ctx, k.name)
	if err == nil {
		eKey := c.epochKey(k.name, key)
		_, err = c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Incr(ctx, eKey)
			pipe.Expire(ctx, eKey, c.epochTTL())
			pipe.Del(ctx, c.valueKey(k.name, version, key))
			return nil
		})
		k.group.Forget(flightKey(version, key))
	}
	k.dropLocal(key, false)
	c.recordEviction(k.name, ScopeKey)
	c.publish(ctx, invalidation{Keyspace: k.name, Key: key})
	if err != nil {
		return fmt.Errorf("permcache: evict %s/%s: %w", k.name, key, err)
	}
	return nil
}

// EvictAll invalidates every entry of the keyspace by bumping its version. Entries written
// under older versions become unreachable and expire on their own.
func (k *Keyspace[T]) EvictAll(ctx context.Context) error {
	c := k.cache
	_, err := c.version(ctx, k.name)
	if err == nil {
		err = c.client.Incr(ctx, c.versionKey(k.name)).Err()
	}
	k.dropLocal("", true)
	c.recordEviction(k.name, ScopeAll)
	c.publish(ctx, invalidation{Keyspace: k.name, All: true})
	if err != nil {
		return fmt.Errorf("permcache: evict all %s: %w", k.name, err)
	}
	return nil
}

func (k *Keyspace[T]) generation() uint64 {
	k.localMu.Lock()
	defer k.localMu.Unlock()
	return k.localGen
}

func (k *Keyspace[T]) localGet(key string) (T, bool) {
	if k.local == nil {
		var zero T
		return zero, false
	}
	return k.local.Get(key)
}

// localAdd stores v unless an eviction happened since gen was read.
func (k *Keyspace[T]) localAdd(key string, v T, gen uint64) {
	if k.local == nil {
		return
	}
	k.localMu.Lock()
	defer k.localMu.Unlock()
	if k.localGen != gen {
		return
	}
	k.local.Add(key, v)
}

func (k *Keyspace[T]) dropLocal(key string, all bool) {
	k.localMu.Lock()
	defer k.localMu.Unlock()
	k.localGen++
	if k.local == nil {
		return
	}
	if all {
		k.local.Purge()
		return
	}
	k.local.Remove(key)
}

func isContextError(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
