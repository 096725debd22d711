// Package osthread exposes the native thread identity and per-thread
// subsystem setup used by thread-pinned goroutines.
package osthread

// ID returns the calling OS thread's id, or 0 where the platform has none we
// can read. Meaningful only while the goroutine is locked to its thread.
func ID() int { return currentID() }

// Init prepares the calling thread for native calls and returns its release
// function. On Windows this joins the COM multithreaded apartment; elsewhere
// it is a no-op.
func Init() (release func(), err error) { return initThread() }
