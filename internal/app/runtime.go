package app

import (
	"os"
	"sync"
	"sync/atomic"
)

// TestModeEnv makes both binaries exit before touching postgres or redis.
const TestModeEnv = "RUKUN_TEST_MODE"

var (
	testMode     atomic.Bool
	testModeOnce sync.Once
)

func loadTestMode() {
	testMode.Store(os.Getenv(TestModeEnv) == "1")
}

// InTestMode reports whether startup side effects should be skipped.
func InTestMode() bool {
	testModeOnce.Do(loadTestMode)
	return testMode.Load()
}

// RefreshTestMode re-reads the flag after the environment changed.
func RefreshTestMode() {
	testModeOnce.Do(func() {})
	loadTestMode()
}
