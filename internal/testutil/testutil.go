// Package testutil holds helpers shared by parflow tests and benchmarks.
package testutil

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

// TestTimeout is the default timeout for tests
const TestTimeout = 5 * time.Second

// WithTimeout creates a context with the default test timeout
func WithTimeout(t *testing.T) (context.Context, context.CancelFunc) {
	t.Helper()
	return context.WithTimeout(context.Background(), TestTimeout)
}

// RunWithin fails the test if fn does not return within d. It is used to
// turn a deadlock into a test failure instead of a hung test binary.
func RunWithin(t testing.TB, d time.Duration, fn func()) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		defer close(done)
		fn()
	}()

	select {
	case <-done:
	case <-time.After(d):
		t.Fatalf("did not finish within %v", d)
	}
}

// Eventually polls cond every tick until it holds or timeout passes.
func Eventually(t testing.TB, cond func() bool, timeout, tick time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for {
		if cond() {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("condition not met within %v", timeout)
		}
		time.Sleep(tick)
	}
}

// WaitForInt64 waits until *v equals want.
func WaitForInt64(t testing.TB, v *atomic.Int64, want int64, timeout time.Duration) {
	t.Helper()
	Eventually(t, func() bool { return v.Load() == want }, timeout, time.Millisecond)
}

// Ints returns 0, 1, ..., n-1.
func Ints(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

// Spin burns roughly iters iterations of CPU and returns a value the
// compiler cannot discard.
func Spin(iters int) uint64 {
	x := uint64(iters) | 1
	for i := 0; i < iters; i++ {
		x ^= x << 13
		x ^= x >> 7
		x ^= x << 17
	}
	return x
}
