package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/odyssey-erp/odyssey-rbac/cmd/odyssey/cli"
	"github.com/odyssey-erp/odyssey-rbac/internal/app"
	"github.com/odyssey-erp/odyssey-rbac/internal/directory"
	"github.com/odyssey-erp/odyssey-rbac/internal/observability"
	"github.com/odyssey-erp/odyssey-rbac/internal/permcache"
	"github.com/odyssey-erp/odyssey-rbac/internal/platform/cache"
	"github.com/odyssey-erp/odyssey-rbac/internal/platform/db"
	"github.com/odyssey-erp/odyssey-rbac/internal/shared"
	"github.com/odyssey-erp/odyssey-rbac/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCommand().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:          "odyssey",
		Short:        "RBAC permission service",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context())
		},
	}
	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run the HTTP API",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return serve(cmd.Context())
			},
		},
		cacheCommand(),
		jobsCommand(),
	)
	return root
}

func serve(ctx context.Context) error {
	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		return err
	}
	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		return err
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		return err
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	redisOpts := asynqOpts(cfg)
	retry := jobs.NewClient(redisOpts)
	defer func() {
		if err := retry.Close(); err != nil {
			logger.Warn("asynq client close", slog.Any("error", err))
		}
	}()
	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	container, err := app.Build(app.Deps{
		Config:    cfg,
		Logger:    logger,
		Store:     directory.NewRepository(pool),
		Redis:     redisClient,
		Metrics:   observability.NewMetrics(),
		Retry:     retry,
		Inspector: inspector,
		Auditor:   shared.NewAuditLogger(pool),
	})
	if err != nil {
		logger.Error("build app", slog.Any("error", err))
		return err
	}
	if err := container.Start(ctx); err != nil {
		logger.Error("start app", slog.Any("error", err))
		return err
	}

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      container.Router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			logger.Error("http server", slog.Any("error", err))
			return err
		}
	}
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
		return err
	}
	return nil
}

func cacheCommand() *cobra.Command {
	var opts cli.CacheOptions
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Evict permission cache entries",
	}
	cmd.PersistentFlags().BoolVar(&opts.JSONOutput, "json", false, "Print the result as JSON")

	run := func(fn func(ctx context.Context, c *cli.CacheCLI, arg string) int) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			cfg, err := app.LoadConfig()
			if err != nil {
				return err
			}
			client, err := cache.New(cmd.Context(), cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
			if err != nil {
				return err
			}
			defer func() { _ = client.Close() }()
			c, err := cli.NewCacheCLI(newOperatorCache(client, cfg))
			if err != nil {
				return err
			}
			if code := fn(cmd.Context(), c, args[0]); code != 0 {
				return fmt.Errorf("exit status %d", code)
			}
			return nil
		}
	}
	opts.Stdout, opts.Stderr = os.Stdout, os.Stderr

	cmd.AddCommand(
		&cobra.Command{
			Use:   "evict-user <user-id>",
			Short: "Evict the cached permission codes of a user",
			Args:  cobra.ExactArgs(1),
			RunE: run(func(ctx context.Context, c *cli.CacheCLI, arg string) int {
				return c.EvictUserCommand(ctx, arg, opts)
			}),
		},
		&cobra.Command{
			Use:   "evict-profile <username>",
			Short: "Evict the cached profile of a user",
			Args:  cobra.ExactArgs(1),
			RunE: run(func(ctx context.Context, c *cli.CacheCLI, arg string) int {
				return c.EvictProfileCommand(ctx, arg, opts)
			}),
		},
		&cobra.Command{
			Use:       "flush <codes|profile>",
			Short:     "Evict every entry of a keyspace",
			Args:      cobra.ExactArgs(1),
			ValidArgs: []string{permcache.KeyspaceCodes, permcache.KeyspaceProfile},
			RunE: run(func(ctx context.Context, c *cli.CacheCLI, arg string) int {
				return c.FlushCommand(ctx, arg, opts)
			}),
		},
	)
	return cmd
}

// newOperatorCache registers both keyspaces so evictions by name resolve. Values are never
// read through it, so the element types are irrelevant.
func newOperatorCache(client *redis.Client, cfg *app.Config) *permcache.Cache {
	c := permcache.New(client, permcache.Config{Prefix: cfg.CachePrefix, TTL: cfg.CacheTTL})
	permcache.NewKeyspace[[]string](c, permcache.KeyspaceCodes)
	permcache.NewKeyspace[struct{}](c, permcache.KeyspaceProfile)
	return c
}

func jobsCommand() *cobra.Command {
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect the eviction retry queue",
	}
	stats := &cobra.Command{
		Use:   "stats",
		Short: "Print queue statistics",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := app.LoadConfig()
			if err != nil {
				return err
			}
			c := cli.NewJobsCLI(asynqOpts(cfg))
			defer func() { _ = c.Close() }()
			if code := c.StatsCommand(cmd.Context(), jsonOutput, os.Stdout, os.Stderr); code != 0 {
				return fmt.Errorf("exit status %d", code)
			}
			return nil
		},
	}
	stats.Flags().BoolVar(&jsonOutput, "json", false, "Print the result as JSON")
	requeue := &cobra.Command{
		Use:   "requeue-flush <codes|profile>",
		Short: "Enqueue a full keyspace eviction for the worker",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.LoadConfig()
			if err != nil {
				return err
			}
			c := cli.NewJobsCLI(asynqOpts(cfg))
			defer func() { _ = c.Close() }()
			return c.RequeueFlush(cmd.Context(), args[0])
		},
	}
	cmd.AddCommand(stats, requeue)
	return cmd
}

func asynqOpts(cfg *app.Config) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB}
}
