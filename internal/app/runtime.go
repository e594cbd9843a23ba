package app

import (
	"os"
	"strconv"
	"sync/atomic"
)

// TestModeEnv disables the worker's external side effects when truthy.
const TestModeEnv = "FOLIO_TEST_MODE"

var testMode atomic.Pointer[bool]

// InTestMode reports whether binaries should skip connecting to Postgres and
// Redis. The environment is read once and cached.
func InTestMode() bool {
	if v := testMode.Load(); v != nil {
		return *v
	}
	return RefreshTestMode()
}

// RefreshTestMode re-reads the environment and returns the new value.
func RefreshTestMode() bool {
	enabled, err := strconv.ParseBool(os.Getenv(TestModeEnv))
	enabled = err == nil && enabled
	testMode.Store(&enabled)
	return enabled
}
