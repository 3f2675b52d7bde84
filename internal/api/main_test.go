package api

import (
	"testing"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		// httptest keeps idle keep-alive connections briefly after Close.
		goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"),
	)
}
