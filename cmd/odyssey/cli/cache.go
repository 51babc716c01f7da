package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/odyssey-erp/odyssey-rbac/internal/permcache"
)

// Evicter is the permission cache surface the operator commands use.
type Evicter interface {
	Evict(ctx context.Context, keyspace, key string) error
	EvictAll(ctx context.Context, keyspace string) error
	Keyspaces() []string
}

// CacheCLI offers operator helpers to evict permission cache entries by hand.
type CacheCLI struct {
	cache Evicter
}

// NewCacheCLI constructs the helper around a cache.
func NewCacheCLI(cache Evicter) (*CacheCLI, error) {
	if cache == nil {
		return nil, errors.New("cache cli: cache not configured")
	}
	return &CacheCLI{cache: cache}, nil
}

// CacheOptions defines the output flags shared by the cache commands.
type CacheOptions struct {
	JSONOutput bool
	Stdout     io.Writer
	Stderr     io.Writer
}

// CacheResult describes one command outcome.
type CacheResult struct {
	Keyspace string   `json:"keyspace"`
	Keys     []string `json:"keys,omitempty"`
	All      bool     `json:"all,omitempty"`
}

// EvictUserCommand drops the codes entry of a user id. The profile entry is keyed by username,
// see EvictProfileCommand.
func (c *CacheCLI) EvictUserCommand(ctx context.Context, rawID string, opts CacheOptions) int {
	opts = opts.withDefaults()
	id, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil || id <= 0 {
		_, _ = fmt.Fprintf(opts.Stderr, "cache evict-user: invalid user id %q\n", rawID)
		return 1
	}
	key := permcache.UserKey(id)
	if err := c.cache.Evict(ctx, permcache.KeyspaceCodes, key); err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "cache evict-user: %v\n", err)
		return 1
	}
	return opts.report(CacheResult{Keyspace: permcache.KeyspaceCodes, Keys: []string{key}})
}

// EvictProfileCommand drops the profile entry of a username.
func (c *CacheCLI) EvictProfileCommand(ctx context.Context, username string, opts CacheOptions) int {
	opts = opts.withDefaults()
	if username == "" {
		_, _ = fmt.Fprintln(opts.Stderr, "cache evict-profile: username is required")
		return 1
	}
	if err := c.cache.Evict(ctx, permcache.KeyspaceProfile, username); err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "cache evict-profile: %v\n", err)
		return 1
	}
	return opts.report(CacheResult{Keyspace: permcache.KeyspaceProfile, Keys: []string{username}})
}

// FlushCommand drops every entry of a keyspace.
func (c *CacheCLI) FlushCommand(ctx context.Context, keyspace string, opts CacheOptions) int {
	opts = opts.withDefaults()
	if err := c.cache.EvictAll(ctx, keyspace); err != nil {
		if errors.Is(err, permcache.ErrUnknownKeyspace) {
			_, _ = fmt.Fprintf(opts.Stderr, "cache flush: unknown keyspace %q (known: %v)\n", keyspace, c.cache.Keyspaces())
			return 2
		}
		_, _ = fmt.Fprintf(opts.Stderr, "cache flush: %v\n", err)
		return 1
	}
	return opts.report(CacheResult{Keyspace: keyspace, All: true})
}

func (o CacheOptions) withDefaults() CacheOptions {
	if o.Stdout == nil {
		o.Stdout = os.Stdout
	}
	if o.Stderr == nil {
		o.Stderr = os.Stderr
	}
	return o
}

func (o CacheOptions) report(res CacheResult) int {
	if o.JSONOutput {
		if err := json.NewEncoder(o.Stdout).Encode(res); err != nil {
			_, _ = fmt.Fprintf(o.Stderr, "cache: encode json: %v\n", err)
			return 1
		}
		return 0
	}
	if res.All {
		_, _ = fmt.Fprintf(o.Stdout, "flushed keyspace %s\n", res.Keyspace)
		return 0
	}
	for _, key := range res.Keys {
		_, _ = fmt.Fprintf(o.Stdout, "evicted %s/%s\n", res.Keyspace, key)
	}
	return 0
}
