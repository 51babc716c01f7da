// Package permcache caches resolved permission codes and profiles in Redis.
//
// Every keyspace carries a version counter and every key an epoch counter. A computation
// captures both before it starts and its result is written with WATCH/MULTI only when neither
// moved, so an eviction that lands while a computation is in flight always wins. Concurrent
// misses on one key are coalesced per process with singleflight. An optional in-process LRU
// sits in front of Redis and is kept coherent across nodes through Redis pub/sub.
package permcache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Keyspace names.
const (
	KeyspaceCodes   = "codes"
	KeyspaceProfile = "profile"
)

// Request results reported to the Recorder.
const (
	ResultHit      = "hit"
	ResultLocalHit = "local_hit"
	ResultMiss     = "miss"
	ResultShared   = "shared"
	ResultBypass   = "bypass"
)

// Eviction scopes reported to the Recorder.
const (
	ScopeKey = "key"
	ScopeAll = "all"
)

// ErrUnknownKeyspace is returned when an eviction names a keyspace that was never registered.
var ErrUnknownKeyspace = errors.New("permcache: unknown keyspace")

const (
	defaultPrefix = "rbac"
	defaultTTL    = 30 * time.Minute
)

// Recorder receives cache instrumentation.
type Recorder interface {
	CacheRequest(keyspace, result string)
	CacheEviction(keyspace, scope string)
	CacheCompute(keyspace string, elapsed time.Duration)
}

// Config controls key layout and expiry.
type Config struct {
	Prefix string
	TTL    time.Duration
	// LocalSize and LocalTTL size the in-process layer. Either being zero disables it.
	LocalSize int
	LocalTTL  time.Duration
}

// Cache owns the Redis client and the registry of keyspaces.
type Cache struct {
	client  *redis.Client
	cfg     Config
	origin  string
	logger  *slog.Logger
	metrics Recorder

	mu        sync.RWMutex
	keyspaces map[string]evictable
}

type evictable interface {
	Evict(ctx context.Context, key string) error
	EvictAll(ctx context.Context) error
	dropLocal(key string, all bool)
}

// Option configures a Cache.
type Option func(*Cache)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Cache) { c.logger = logger }
}

// WithMetrics sets the instrumentation sink.
func WithMetrics(r Recorder) Option {
	return func(c *Cache) { c.metrics = r }
}

// New constructs a Cache. Keyspaces are attached with NewKeyspace.
func New(client *redis.Client, cfg Config, opts ...Option) *Cache {
	if cfg.Prefix == "" {
		cfg.Prefix = defaultPrefix
	}
	if cfg.TTL <= 0 {
		cfg.TTL = defaultTTL
	}
	c := &Cache{
		client:    client,
		cfg:       cfg,
		origin:    uuid.NewString(),
		keyspaces: make(map[string]evictable),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c
}

// TTL returns the entry lifetime.
func (c *Cache) TTL() time.Duration { return c.cfg.TTL }

// Keyspaces lists the registered keyspace names.
func (c *Cache) Keyspaces() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.keyspaces))
	for name := range c.keyspaces {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Evict removes key from the named keyspace.
func (c *Cache) Evict(ctx context.Context, keyspace, key string) error {
	ks, err := c.lookup(keyspace)
	if err != nil {
		return err
	}
	return ks.Evict(ctx, key)
}

// EvictAll clears the named keyspace.
func (c *Cache) EvictAll(ctx context.Context, keyspace string) error {
	ks, err := c.lookup(keyspace)
	if err != nil {
		return err
	}
	return ks.EvictAll(ctx)
}

func (c *Cache) lookup(name string) (evictable, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ks, ok := c.keyspaces[name]
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownKeyspace, name)
	}
	return ks, nil
}

func (c *Cache) register(name string, ks evictable) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.keyspaces[name] = ks
}

// version returns the keyspace version, initialising it to 1 when missing.
func (c *Cache) version(ctx context.Context, keyspace string) (int64, error) {
	key := c.versionKey(keyspace)
	ver, err := c.client.Get(ctx, key).Int64()
	if err == nil {
		return ver, nil
	}
	if !errors.Is(err, redis.Nil) {
		return 0, err
	}
	if err := c.client.SetNX(ctx, key, 1, 0).Err(); err != nil {
		return 0, err
	}
	return c.client.Get(ctx, key).Int64()
}

func (c *Cache) epoch(ctx context.Context, keyspace, key string) (int64, error) {
	return readCounter(c.client.Get(ctx, c.epochKey(keyspace, key)))
}

func readCounter(cmd *redis.StringCmd) (int64, error) {
	v, err := cmd.Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return v, err
}

// store writes value only if neither the keyspace version nor the key epoch moved since the
// computation started. It reports whether the value was written.
func (c *Cache) store(ctx context.Context, keyspace string, version, epoch int64, key string, value any) (bool, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return false, fmt.Errorf("permcache: encode %s/%s: %w", keyspace, key, err)
	}
	vKey := c.versionKey(keyspace)
	eKey := c.epochKey(keyspace, key)

	fenced := false
	err = c.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, vKey).Int64()
		if errors.Is(err, redis.Nil) {
			fenced = true
			return nil
		}
		if err != nil {
			return err
		}
		currentEpoch, err := readCounter(tx.Get(ctx, eKey))
		if err != nil {
			return err
		}
		if current != version || currentEpoch != epoch {
			fenced = true
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, c.valueKey(keyspace, version, key), raw, c.cfg.TTL)
			return nil
		})
		return err
	}, vKey, eKey)
	if errors.Is(err, redis.TxFailedErr) {
		fenced, err = true, nil
	}
	if err != nil {
		return false, fmt.Errorf("permcache: store %s/%s: %w", keyspace, key, err)
	}
	if fenced {
		c.logger.Debug("permcache store fenced", slog.String("keyspace", keyspace), slog.String("key", key))
	}
	return !fenced, nil
}

func (c *Cache) epochTTL() time.Duration {
	return 2 * c.cfg.TTL
}

func (c *Cache) recordRequest(keyspace, result string) {
	if c.metrics != nil {
		c.metrics.CacheRequest(keyspace, result)
	}
}

func (c *Cache) recordEviction(keyspace, scope string) {
	if c.metrics != nil {
		c.metrics.CacheEviction(keyspace, scope)
	}
}

func (c *Cache) recordCompute(keyspace string, elapsed time.Duration) {
	if c.metrics != nil {
		c.metrics.CacheCompute(keyspace, elapsed)
	}
}

// UserKey formats a user id as a codes keyspace key.
func UserKey(userID int64) string {
	return strconv.FormatInt(userID, 10)
}

func (c *Cache) versionKey(keyspace string) string {
	return c.cfg.Prefix + ":" + keyspace + ":version"
}

func (c *Cache) epochKey(keyspace, key string) string {
	return c.cfg.Prefix + ":" + keyspace + ":epoch:" + key
}

func (c *Cache) valueKey(keyspace string, version int64, key string) string {
	return c.cfg.Prefix + ":" + keyspace + ":v" + strconv.FormatInt(version, 10) + ":" + key
}

func (c *Cache) channel() string {
	return c.cfg.Prefix + ":invalidate"
}

func flightKey(version int64, key string) string {
	return strconv.FormatInt(version, 10) + ":" + key
}
