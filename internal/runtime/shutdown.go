// Package runtime holds the single process-wide shutdown signal.
//
// Everything else in this repository is owned by an explicit context
// (see internal/dsdctx); the exit flag is the one piece of state that is
// intentionally global, because it must be settable from a signal handler
// where no allocation or locking is safe.
package runtime

import "sync/atomic"

var exitFlag int32

// RequestShutdown sets the process-wide exit flag. Safe to call from a
// signal handler: no allocation, no locking.
func RequestShutdown() {
	atomic.StoreInt32(&exitFlag, 1)
}

// ShuttingDown reports whether RequestShutdown has been called.
func ShuttingDown() bool {
	return atomic.LoadInt32(&exitFlag) != 0
}

// resetForTest clears the flag. Only exported to _test.go files in this
// package via the lowercase name below.
func resetForTest() {
	atomic.StoreInt32(&exitFlag, 0)
}
