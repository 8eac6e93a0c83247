// Package testutil holds in-memory stores and helpers shared by birdlens tests.
package testutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// DefaultTestTimeout bounds waits for asynchronous work in tests.
const DefaultTestTimeout = 5 * time.Second

// Receive returns the next value from ch, failing the test if none arrives within timeout.
func Receive[T any](t *testing.T, ch <-chan T, timeout time.Duration, msg string) T {
	t.Helper()
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case v := <-ch:
		return v
	case <-timer.C:
		require.FailNow(t, msg)
	}
	var zero T
	return zero
}
