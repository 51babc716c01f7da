package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/odyssey-rbac/internal/auth"
	"github.com/odyssey-erp/odyssey-rbac/internal/credential"
	"github.com/odyssey-erp/odyssey-rbac/internal/directory"
	"github.com/odyssey-erp/odyssey-rbac/internal/invalidation"
	"github.com/odyssey-erp/odyssey-rbac/internal/observability"
	"github.com/odyssey-erp/odyssey-rbac/internal/permcache"
	"github.com/odyssey-erp/odyssey-rbac/internal/permissions"
	"github.com/odyssey-erp/odyssey-rbac/internal/rbac"
	"github.com/odyssey-erp/odyssey-rbac/internal/roles"
	"github.com/odyssey-erp/odyssey-rbac/internal/users"
	"github.com/odyssey-erp/odyssey-rbac/jobs"
)

// Deps are the external resources the API process is assembled from.
type Deps struct {
	Config  *Config
	Logger  *slog.Logger
	Store   directory.Store
	Redis   *redis.Client
	Metrics *observability.Metrics
	// Retry receives evictions that failed. Nil keeps failures log-only.
	Retry invalidation.RetryQueue
	// Inspector backs /jobs/health. Nil leaves the route unmounted.
	Inspector *asynq.Inspector
	// Auditor records every invalidation notification. Optional.
	Auditor invalidation.Auditor
}

// Container holds the wired components of the API process.
type Container struct {
	Cache        *permcache.Cache
	Codes        *permcache.Keyspace[[]string]
	Profiles     *permcache.Keyspace[rbac.Profile]
	Issuer       *credential.Issuer
	Orchestrator *invalidation.Orchestrator
	Auth         *auth.Service
	Router       http.Handler
}

// Build wires the cache, issuer, orchestrator, services and router.
func Build(d Deps) (*Container, error) {
	if d.Config == nil || d.Store == nil || d.Redis == nil {
		return nil, errors.New("app: config, store and redis are required")
	}
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}

	opts := []permcache.Option{permcache.WithLogger(logger)}
	if d.Metrics != nil {
		opts = append(opts, permcache.WithMetrics(d.Metrics))
	}
	cache := permcache.New(d.Redis, permcache.Config{
		Prefix:    d.Config.CachePrefix,
		TTL:       d.Config.CacheTTL,
		LocalSize: d.Config.LocalCacheSize,
		LocalTTL:  d.Config.LocalCacheTTL,
	}, opts...)
	codes := permcache.NewKeyspace[[]string](cache, permcache.KeyspaceCodes)
	profiles := permcache.NewKeyspace[rbac.Profile](cache, permcache.KeyspaceProfile)

	issuer, err := credential.New([]byte(d.Config.JWTSecret), d.Config.JWTTTL)
	if err != nil {
		return nil, err
	}

	orchestrator := invalidation.New(d.Store, codes, profiles, d.Retry, logger)
	if d.Auditor != nil {
		orchestrator.WithAuditor(d.Auditor)
	}
	authService := auth.NewService(d.Store, codes, profiles, issuer, logger)
	mw := rbac.Middleware{Logger: logger}

	params := RouterParams{
		Logger:             logger,
		Config:             d.Config,
		Issuer:             issuer,
		AuthHandler:        auth.NewHandler(logger, authService, mw),
		TreeHandler:        rbac.NewTreeHandler(logger, authService.Resolver(), mw),
		PermissionsHandler: permissions.NewHandler(logger, permissions.NewService(d.Store, orchestrator, logger), mw),
		RolesHandler:       roles.NewHandler(logger, roles.NewService(d.Store, orchestrator), mw),
		UsersHandler:       users.NewHandler(logger, users.NewService(d.Store, orchestrator), mw),
		Metrics:            d.Metrics,
	}
	if d.Inspector != nil {
		params.JobHandler = jobs.NewHandler(d.Inspector, logger)
	}

	return &Container{
		Cache:        cache,
		Codes:        codes,
		Profiles:     profiles,
		Issuer:       issuer,
		Orchestrator: orchestrator,
		Auth:         authService,
		Router:       NewRouter(params),
	}, nil
}

// Start subscribes to cross-instance invalidations. It is a no-op in test mode.
func (c *Container) Start(ctx context.Context) error {
	if InTestMode() {
		return nil
	}
	if err := c.Cache.Listen(ctx); err != nil {
		return fmt.Errorf("app: subscribe invalidations: %w", err)
	}
	return nil
}
