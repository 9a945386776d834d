package app

import (
	"os"
	"strconv"
	"sync"
)

// TestModeEnv disables process side effects such as listeners and workers.
const TestModeEnv = "GEMLEDGER_TEST_MODE"

var testMode = sync.OnceValue(func() bool {
	on, err := strconv.ParseBool(os.Getenv(TestModeEnv))
	return err == nil && on
})

// InTestMode reports whether the binaries should exit before binding ports.
// The environment is read once per process.
func InTestMode() bool {
	return testMode()
}
