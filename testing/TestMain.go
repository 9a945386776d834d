package testing

import (
	"os"
	stdtesting "testing"
)

// testEnv is applied before any test in an importing package runs. Existing
// values win so CI can still override them.
var testEnv = map[string]string{
	"GEMLEDGER_TEST_MODE": "1",
	"LOG_FORMAT":          "text",
	"LOG_LEVEL":           "warn",
}

func init() {
	for key, value := range testEnv {
		if _, ok := os.LookupEnv(key); !ok {
			_ = os.Setenv(key, value)
		}
	}
}

// TestMain can be delegated to from packages that need the ledger test env.
func TestMain(m *stdtesting.M) {
	os.Exit(m.Run())
}
