package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-rbac/internal/permcache"
	"github.com/odyssey-erp/odyssey-rbac/jobs"
)

func newCache(t *testing.T) (*permcache.Cache, *permcache.Keyspace[[]string], *permcache.Keyspace[string]) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	cache := permcache.New(client, permcache.Config{Prefix: "cli"})
	return cache,
		permcache.NewKeyspace[[]string](cache, permcache.KeyspaceCodes),
		permcache.NewKeyspace[string](cache, permcache.KeyspaceProfile)
}

func TestEvictUserCommandForcesRecompute(t *testing.T) {
	ctx := context.Background()
	cache, codes, _ := newCache(t)
	calls := 0
	compute := func(context.Context) ([]string, error) {
		calls++
		return []string{"sys:user:list"}, nil
	}
	_, err := codes.GetOrCompute(ctx, permcache.UserKey(3), compute)
	require.NoError(t, err)

	cli, err := NewCacheCLI(cache)
	require.NoError(t, err)
	stdout := new(bytes.Buffer)
	require.Equal(t, 0, cli.EvictUserCommand(ctx, "3", CacheOptions{Stdout: stdout}))
	require.Equal(t, "evicted codes/3\n", stdout.String())

	_, err = codes.GetOrCompute(ctx, permcache.UserKey(3), compute)
	require.NoError(t, err)
	require.Equal(t, 2, calls)
}

func TestEvictCommandsRejectBadInput(t *testing.T) {
	cache, _, _ := newCache(t)
	cli, err := NewCacheCLI(cache)
	require.NoError(t, err)

	stderr := new(bytes.Buffer)
	require.Equal(t, 1, cli.EvictUserCommand(context.Background(), "abc", CacheOptions{Stderr: stderr}))
	require.Contains(t, stderr.String(), `invalid user id "abc"`)

	stderr.Reset()
	require.Equal(t, 1, cli.EvictProfileCommand(context.Background(), "", CacheOptions{Stderr: stderr}))

	stderr.Reset()
	require.Equal(t, 2, cli.FlushCommand(context.Background(), "sessions", CacheOptions{Stderr: stderr}))
	require.Contains(t, stderr.String(), "unknown keyspace")
}

func TestFlushCommandJSON(t *testing.T) {
	ctx := context.Background()
	cache, _, profiles := newCache(t)
	_, err := profiles.GetOrCompute(ctx, "tom", func(context.Context) (string, error) { return "v1", nil })
	require.NoError(t, err)

	cli, err := NewCacheCLI(cache)
	require.NoError(t, err)
	stdout := new(bytes.Buffer)
	require.Equal(t, 0, cli.FlushCommand(ctx, permcache.KeyspaceProfile, CacheOptions{JSONOutput: true, Stdout: stdout}))

	var res CacheResult
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &res))
	require.Equal(t, CacheResult{Keyspace: permcache.KeyspaceProfile, All: true}, res)

	v, err := profiles.GetOrCompute(ctx, "tom", func(context.Context) (string, error) { return "v2", nil })
	require.NoError(t, err)
	require.Equal(t, "v2", v)
}

func TestRenderStats(t *testing.T) {
	stats := jobs.QueueStats{Queue: jobs.QueueDefault, Pending: 2, Retry: 1}

	stdout := new(bytes.Buffer)
	require.Equal(t, 0, renderStats(stats, false, stdout, nil))
	require.Equal(t, "queue default: pending=2 active=0 retry=1 archived=0 processed=0 failed=0\n", stdout.String())

	stdout.Reset()
	require.Equal(t, 0, renderStats(stats, true, stdout, nil))
	require.JSONEq(t, `{"queue":"default","pending":2,"active":0,"retry":1,"archived":0,"processed":0,"failed":0}`, stdout.String())
}
