package app

import (
	"os"
	"strconv"
	"sync/atomic"
)

// TestModeEnv, when truthy, makes the binaries return before dialing
// Postgres or Redis.
const TestModeEnv = "ODYSSEY_TEST_MODE"

const (
	testModeUnknown int32 = iota
	testModeOff
	testModeOn
)

var testMode atomic.Int32

// InTestMode reports whether ODYSSEY_TEST_MODE is set. The variable is read
// on first use and cached until RefreshTestMode.
func InTestMode() bool {
	if testMode.Load() == testModeUnknown {
		RefreshTestMode()
	}
	return testMode.Load() == testModeOn
}

// RefreshTestMode re-reads the environment.
func RefreshTestMode() {
	on, _ := strconv.ParseBool(os.Getenv(TestModeEnv))
	if on {
		testMode.Store(testModeOn)
		return
	}
	testMode.Store(testModeOff)
}
