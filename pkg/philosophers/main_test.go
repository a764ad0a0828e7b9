package philosophers_test

import (
	"testing"

	"go.uber.org/goleak"
)

// TestMain asserts that no goroutine started while acquiring or
// releasing forks outlives the test that started it: AcquireForks
// blocks its caller's own goroutine rather than spawning a detached
// one, so a leak here would mean a missed cond.Broadcast somewhere.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}
