package encodemgr

import "sync"

// JobID identifies one enqueued encode job for the lifetime of the process.
type JobID int64

// maxJobID is the wrap boundary for job identifiers (§3: "at least 2^53").
// float64's exact-integer range is the natural boundary for a value that
// may eventually cross an XML/HTTP API boundary as a JSON number, so we
// wrap one below it rather than at the raw int64 ceiling.
const maxJobID JobID = 1<<53 - 1

// idAllocator hands out monotonically increasing, wrap-around Job
// Identifiers. Mirrors the allocate/skip-in-use discipline of the
// teacher's PID allocator, but job ids are never "released" back into a
// free pool: a job is either live (Wait Queue or Running Set) or gone, and
// the wrap only has to avoid colliding with ids that are still live.
//
// Per the resolved Open Question (§9), the counter wraps to 1, not 0: job
// id 0 is reserved as a "no such job" sentinel for consumers.
type idAllocator struct {
	mu   sync.Mutex
	next JobID
}

func newIDAllocator() *idAllocator {
	return &idAllocator{next: 1}
}

// alloc returns the next id, skipping any id for which inUse reports true,
// and wraps from maxJobID back to 1. inUse is consulted under the
// allocator's lock via a caller-supplied closure so the caller's own
// locking (the gate ticket held by Enqueue) is respected without a second
// lock order.
func (a *idAllocator) alloc(inUse func(JobID) bool) JobID {
	a.mu.Lock()
	defer a.mu.Unlock()

	start := a.next
	for {
		id := a.next
		a.next++
		if a.next > maxJobID {
			a.next = 1
		}

		if !inUse(id) {
			return id
		}

		if a.next == start {
			// Every id in the space is live. This cannot happen while
			// |Running Set| + |Wait Queue| stays far below 2^53, but we
			// must not spin forever if it somehow does.
			return id
		}
	}
}
