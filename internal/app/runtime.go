package app

import "os"

const testModeEnv = "ODYSSEY_TEST_MODE"

// InTestMode reports whether binaries run under go test and must skip runtime side effects
// such as binding ports or subscribing to the invalidation channel.
func InTestMode() bool {
	return os.Getenv(testModeEnv) == "1"
}
