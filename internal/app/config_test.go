package app_test

import (
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-rbac/internal/app"
	"github.com/odyssey-erp/odyssey-rbac/internal/shared"
	rbactesting "github.com/odyssey-erp/odyssey-rbac/testing"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", rbactesting.Secret)
	// testing mode presets the prefix; drop it to observe the default.
	t.Setenv("RBAC_CACHE_PREFIX", "")
	require.NoError(t, os.Unsetenv("RBAC_CACHE_PREFIX"))

	cfg, err := app.LoadConfig()
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.AppAddr)
	require.Equal(t, 24*time.Hour, cfg.JWTTTL)
	require.Equal(t, 30*time.Minute, cfg.CacheTTL)
	require.Equal(t, "rbac", cfg.CachePrefix)
	require.Equal(t, 4096, cfg.LocalCacheSize)
	require.Equal(t, 5*time.Second, cfg.LocalCacheTTL)
	require.False(t, cfg.IsProduction())
}

func TestLoadConfigRejectsShortSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", strings.Repeat("s", 63))

	_, err := app.LoadConfig()
	require.ErrorIs(t, err, shared.ErrConfiguration)
}

func TestLoadConfigRejectsBadDuration(t *testing.T) {
	t.Setenv("JWT_SECRET", rbactesting.Secret)
	t.Setenv("RBAC_CACHE_TTL", "soon")

	_, err := app.LoadConfig()
	require.ErrorIs(t, err, shared.ErrConfiguration)
}
