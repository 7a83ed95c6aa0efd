// Package scheduler serializes all session work onto a single event loop.
//
// Audio callbacks, transport callbacks and timers never touch session state
// directly; they post closures to a Scheduler, which runs them one at a time.
// Each closure therefore runs to completion without interleaving, and no
// session component needs a lock.
package scheduler

import "time"

// Timer is a handle to a callback registered with After or Every.
type Timer interface {
	// Stop cancels the timer. A callback that has not started yet will not
	// run once Stop returns on the loop goroutine. Stop is idempotent.
	Stop()
}

// Scheduler runs closures sequentially and provides the clock they observe.
type Scheduler interface {
	// Now returns the scheduler's current time.
	Now() time.Time

	// Post queues fn to run on the loop.
	Post(fn func())

	// After runs fn once on the loop after d has elapsed.
	After(d time.Duration, fn func()) Timer

	// Every runs fn on the loop every d until stopped. d must be positive.
	Every(d time.Duration, fn func()) Timer
}
