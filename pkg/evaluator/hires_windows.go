//go:build windows

package evaluator

import (
	"syscall"
	"time"
	"unsafe"
)

var (
	kernel32DLL = syscall.NewLazyDLL("kernel32.dll")
	qpcProc     = kernel32DLL.NewProc("QueryPerformanceCounter")
	qpfProc     = kernel32DLL.NewProc("QueryPerformanceFrequency")
	qpcFreq     int64
)

func init() {
	qpfProc.Call(uintptr(unsafe.Pointer(&qpcFreq)))
}

// hiresNow returns a high-resolution monotonic timestamp (QPC count).
func hiresNow() int64 {
	var count int64
	qpcProc.Call(uintptr(unsafe.Pointer(&count)))
	return count
}

// hiresSinceMs returns the elapsed milliseconds since startCount using QPC.
func hiresSinceMs(startCount int64) int64 {
	return (hiresNow() - startCount) * 1000 / qpcFreq
}

// hiresSince returns the elapsed duration since startCount using QPC.
func hiresSince(startCount int64) time.Duration {
	ticks := hiresNow() - startCount
	secs := ticks / qpcFreq
	rem := ticks % qpcFreq
	return time.Duration(secs)*time.Second + time.Duration(rem*int64(time.Second)/qpcFreq)
}
