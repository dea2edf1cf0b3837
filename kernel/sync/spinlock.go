// Package sync provides the synchronization primitives that the simulated
// kernel consumes from its cooperative scheduler.
package sync

import (
	"runtime"
	"sync/atomic"
)

// attemptsBeforeYielding bounds the busy-wait loop in Acquire before the
// calling task gives up the processor.
const attemptsBeforeYielding = 64

var (
	// yieldFn hands the processor to another runnable task. Tests replace
	// it to observe contention.
	yieldFn = runtime.Gosched
)

// Spinlock implements a lock where each task trying to acquire it busy-waits
// for a while and then yields until the lock becomes available.
type Spinlock struct {
	state uint32
}

// Acquire blocks until the lock can be acquired by the currently active task.
// Any attempt to re-acquire a lock already held by the current task will cause
// a deadlock.
func (l *Spinlock) Acquire() {
	for {
		for attempt := 0; attempt < attemptsBeforeYielding; attempt++ {
			if l.TryToAcquire() {
				return
			}
		}

		yieldFn()
	}
}

// TryToAcquire attempts to acquire the lock and returns true if the lock could
// be acquired or false otherwise.
func (l *Spinlock) TryToAcquire() bool {
	return atomic.SwapUint32(&l.state, 1) == 0
}

// Release relinquishes a held lock allowing other tasks to acquire it. Calling
// Release while the lock is free has no effect.
func (l *Spinlock) Release() {
	atomic.StoreUint32(&l.state, 0)
}

// Held returns true if the lock is currently acquired by some task.
func (l *Spinlock) Held() bool {
	return atomic.LoadUint32(&l.state) == 1
}
