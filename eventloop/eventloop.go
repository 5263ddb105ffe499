// Package eventloop provides a single-threaded, timer-driven callback loop.
//
// Every callback scheduled on a Loop runs on the loop's own goroutine, one at a
// time, so state owned by those callbacks needs no locking. Code running on
// other goroutines enters the loop with Call.
package eventloop

import (
	"errors"
	"time"
)

// ErrClosed is returned by Call once the loop has stopped.
var ErrClosed = errors.New("eventloop: closed")

// Handle identifies a scheduled timer. The zero Handle is never issued.
type Handle uint64

// Loop schedules callbacks on a single logical thread.
type Loop interface {
	// Now returns the loop's notion of the current wall-clock time.
	Now() time.Time

	// SetTimeout runs fn once, d after the call. A non-positive d runs fn on
	// the next loop turn.
	SetTimeout(d time.Duration, fn func()) Handle

	// SetInterval runs fn every d until cleared.
	SetInterval(d time.Duration, fn func()) Handle

	// Clear cancels a timer. Clearing an expired or unknown handle is a no-op.
	// Once Clear returns on the loop, fn for that handle never runs again.
	Clear(h Handle)

	// Call runs fn on the loop and waits for it to return. It must not be
	// invoked from inside a loop callback.
	Call(fn func()) error
}
