package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-rbac/jobs"
)

// JobsCLI wraps manual management helpers for the eviction retry queue.
type JobsCLI struct {
	client    *jobs.Client
	inspector *asynq.Inspector
}

// NewJobsCLI initialises the CLI helpers using the provided Redis connection options.
func NewJobsCLI(opts asynq.RedisClientOpt) *JobsCLI {
	return &JobsCLI{client: jobs.NewClient(opts), inspector: asynq.NewInspector(opts)}
}

// Close releases underlying resources.
func (c *JobsCLI) Close() error {
	var errs []error
	if c.inspector != nil {
		errs = append(errs, c.inspector.Close())
	}
	if c.client != nil {
		errs = append(errs, c.client.Close())
	}
	return errors.Join(errs...)
}

// RequeueFlush enqueues a full keyspace eviction, for use when an instance missed invalidations.
func (c *JobsCLI) RequeueFlush(ctx context.Context, keyspace string) error {
	if c == nil || c.client == nil {
		return errors.New("jobs cli: client not configured")
	}
	return c.client.EnqueueEviction(ctx, keyspace, nil, true)
}

// StatsCommand prints the eviction queue statistics.
func (c *JobsCLI) StatsCommand(ctx context.Context, jsonOutput bool, stdout, stderr io.Writer) int {
	if stdout == nil {
		stdout = os.Stdout
	}
	if stderr == nil {
		stderr = os.Stderr
	}
	if c == nil || c.inspector == nil {
		_, _ = fmt.Fprintln(stderr, "jobs stats: inspector not configured")
		return 1
	}
	stats, err := jobs.Stats(c.inspector)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "jobs stats: %v\n", err)
		return 1
	}
	return renderStats(stats, jsonOutput, stdout, stderr)
}

func renderStats(stats jobs.QueueStats, jsonOutput bool, stdout, stderr io.Writer) int {
	if jsonOutput {
		if err := json.NewEncoder(stdout).Encode(stats); err != nil {
			_, _ = fmt.Fprintf(stderr, "jobs stats: encode json: %v\n", err)
			return 1
		}
		return 0
	}
	_, _ = fmt.Fprintf(stdout, "queue %s: pending=%d active=%d retry=%d archived=%d processed=%d failed=%d\n",
		stats.Queue, stats.Pending, stats.Active, stats.Retry, stats.Archived, stats.Processed, stats.Failed)
	return 0
}
