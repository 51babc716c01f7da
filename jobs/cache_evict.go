package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/odyssey-rbac/internal/jobs"
	"github.com/odyssey-erp/odyssey-rbac/internal/permcache"
)

// Evicter is the part of the permission cache the retry job drives.
type Evicter interface {
	Evict(ctx context.Context, keyspace, key string) error
	EvictAll(ctx context.Context, keyspace string) error
}

// CacheEvictJob replays evictions that failed while a mutation was being committed.
type CacheEvictJob struct {
	Cache   Evicter
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewCacheEvictJob wires dependencies for the eviction handler.
func NewCacheEvictJob(cache Evicter, logger *slog.Logger, metrics *jobmetrics.Metrics) *CacheEvictJob {
	return &CacheEvictJob{Cache: cache, Logger: logger, Metrics: metrics}
}

// Handle processes TaskCacheEvict tasks. Keys that were evicted successfully are not retried
// individually; the whole task is retried while any key still fails.
func (j *CacheEvictJob) Handle(ctx context.Context, t *asynq.Task) (resultErr error) {
	if j == nil || j.Cache == nil {
		return errors.New("cache evict: handler not configured")
	}
	var payload EvictPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if err := payload.Validate(); err != nil {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}

	tracker := j.Metrics.Track(TaskCacheEvict)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger().With(slog.String("keyspace", payload.Keyspace), slog.Bool("all", payload.All))
	if payload.All {
		if err := j.Cache.EvictAll(ctx, payload.Keyspace); err != nil {
			return j.fail(logger, err)
		}
		j.Metrics.AddEvicted(payload.Keyspace, 1)
		logger.Info("cache keyspace evicted")
		return nil
	}

	var failed error
	evicted := 0
	for _, key := range payload.Keys {
		if err := j.Cache.Evict(ctx, payload.Keyspace, key); err != nil {
			if errors.Is(err, permcache.ErrUnknownKeyspace) {
				return j.fail(logger, err)
			}
			logger.Warn("cache key eviction failed", slog.String("key", key), slog.Any("error", err))
			failed = errors.Join(failed, err)
			continue
		}
		evicted++
	}
	j.Metrics.AddEvicted(payload.Keyspace, evicted)
	if failed != nil {
		return failed
	}
	logger.Info("cache keys evicted", slog.Int("keys", len(payload.Keys)))
	return nil
}

func (j *CacheEvictJob) fail(logger *slog.Logger, err error) error {
	logger.Error("cache eviction failed", slog.Any("error", err))
	if errors.Is(err, permcache.ErrUnknownKeyspace) {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	return err
}

func (j *CacheEvictJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
