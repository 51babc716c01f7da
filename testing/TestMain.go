package testing

import (
	"os"
	"strings"
	"sync"
	stdtesting "testing"
)

// Secret is a signing key long enough for the credential issuer, used when tests do not set one.
var Secret = strings.Repeat("odyssey-rbac-test-signing-key!", 3)

var once sync.Once

func ensureTestMode() {
	once.Do(func() {
		_ = os.Setenv("ODYSSEY_TEST_MODE", "1")
		if os.Getenv("JWT_SECRET") == "" {
			_ = os.Setenv("JWT_SECRET", Secret)
		}
		if os.Getenv("RBAC_CACHE_PREFIX") == "" {
			_ = os.Setenv("RBAC_CACHE_PREFIX", "rbac-test")
		}
	})
}

func init() {
	ensureTestMode()
}

func TestMain(m *stdtesting.M) {
	ensureTestMode()
	os.Exit(m.Run())
}
