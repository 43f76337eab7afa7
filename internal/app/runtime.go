package app

import (
	"os"
	"sync"
	"sync/atomic"
)

// WARELOG_TEST_MODE=1 makes the binaries exit before opening any external
// connection, so package tests can exercise main wiring without Postgres or
// Redis running.
const testModeEnv = "WARELOG_TEST_MODE"

var (
	testModeFlag atomic.Bool
	testModeOnce sync.Once
)

// InTestMode reports whether runtime side effects should be skipped.
func InTestMode() bool {
	testModeOnce.Do(func() {
		testModeFlag.Store(os.Getenv(testModeEnv) == "1")
	})
	return testModeFlag.Load()
}

// RefreshTestMode re-reads the flag after the environment changes.
func RefreshTestMode() {
	testModeFlag.Store(os.Getenv(testModeEnv) == "1")
}
