//go:build !windows

package evaluator

import "time"

var hiresEpoch = time.Now()

// hiresNow returns a high-resolution monotonic timestamp in nanoseconds.
func hiresNow() int64 {
	return time.Since(hiresEpoch).Nanoseconds()
}

// hiresSinceMs returns the elapsed milliseconds since startNano.
func hiresSinceMs(startNano int64) int64 {
	return (hiresNow() - startNano) / 1_000_000
}

// hiresSince returns the elapsed duration since startNano.
func hiresSince(startNano int64) time.Duration {
	return time.Duration(hiresNow() - startNano)
}
