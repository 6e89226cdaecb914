package encodemgr

import (
	"container/heap"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Priority constants for the Execution Gate (§3). Larger values are
// served earlier; ties are broken by arrival order.
const (
	PriorityEncode       = 10 // reserved for process-priority niceness, not a gate priority
	PriorityClearQueue   = 3  // finalize
	PriorityAddEncode    = 2  // enqueue
	PriorityCreateProcess = 2  // promotion
	PriorityCancel       = 1
)

// acquireTimeout bounds how long acquire() waits for a ticket before
// failing with ErrGetExecutionTimeout (§4.1). A var, not a const, solely
// so tests can shrink it rather than waiting out the real 60s bound.
var acquireTimeout = 60 * time.Second

// Ticket is the sole right to mutate the Wait Queue, Running Set, or the
// gate's own waiter queue. Obtained via ExecutionGate.acquire and must be
// returned via ExecutionGate.release on every exit path.
type Ticket struct {
	id       string
	priority int
}

// waiter is one pending acquire() call. grant is buffered so handoff can
// signal it while holding the gate's mutex without the send ever blocking.
//
// This is the design notes' "broadcast unlock, self-filter by id"
// warning made concrete the other way: instead of one shared unlock
// channel every waiter re-checks, each waiter gets its own private
// channel, so handoff only ever talks to the one waiter whose turn it is.
type waiter struct {
	id       string
	priority int
	seq      uint64
	grant    chan struct{}
	index    int // heap index, maintained by container/heap
}

// ExecutionGate serializes all mutations of the manager's internal state
// (Wait Queue, Running Set, and the gate's own waiter queue) behind a
// single held ticket, honoring strict priority order with FIFO tie-break
// among equal priorities (§4.1).
type ExecutionGate struct {
	mu      sync.Mutex
	waiters waiterHeap
	index   map[string]*waiter // id -> waiter, for O(1) timeout removal
	holder  string             // "" when no ticket is held
	seq     uint64
}

// NewExecutionGate constructs an unheld gate.
func NewExecutionGate() *ExecutionGate {
	g := &ExecutionGate{index: make(map[string]*waiter)}
	heap.Init(&g.waiters)
	return g
}

// acquire blocks until a ticket at the given priority is granted, or
// ErrGetExecutionTimeout after acquireTimeout. The returned Ticket must be
// released exactly once.
func (g *ExecutionGate) acquire(priority int) (Ticket, error) {
	w := &waiter{
		id:       uuid.NewString(),
		priority: priority,
		grant:    make(chan struct{}, 1),
	}

	g.mu.Lock()
	g.seq++
	w.seq = g.seq
	heap.Push(&g.waiters, w)
	g.index[w.id] = w
	g.handoffLocked()
	g.mu.Unlock()

	timer := time.NewTimer(acquireTimeout)
	defer timer.Stop()

	select {
	case <-w.grant:
		return Ticket{id: w.id, priority: priority}, nil
	case <-timer.C:
		g.mu.Lock()
		if _, stillWaiting := g.index[w.id]; stillWaiting {
			heap.Remove(&g.waiters, w.index)
			delete(g.index, w.id)
			g.mu.Unlock()
			return Ticket{}, ErrGetExecutionTimeout
		}
		g.mu.Unlock()
		// Lost the race with handoff: it already granted us the ticket
		// concurrently with the timer firing. Take it rather than leak it.
		<-w.grant
		return Ticket{id: w.id, priority: priority}, nil
	}
}

// release returns the ticket and triggers handoff to the next waiter, if
// any. release on a ticket that is not the current holder (e.g. called
// twice) is a no-op.
func (g *ExecutionGate) release(t Ticket) {
	g.mu.Lock()
	if g.holder == t.id {
		g.holder = ""
		g.handoffLocked()
	}
	g.mu.Unlock()
}

// handoffLocked grants the gate to the head of the waiter queue if no
// ticket is currently held. Must be called with g.mu held.
func (g *ExecutionGate) handoffLocked() {
	if g.holder != "" {
		return
	}
	if g.waiters.Len() == 0 {
		return
	}
	w := heap.Pop(&g.waiters).(*waiter)
	delete(g.index, w.id)
	g.holder = w.id
	w.grant <- struct{}{}
}

// waiterHeap orders waiters by descending priority, then ascending
// arrival sequence — the same container/heap shape as the teacher's
// deadline scheduler (internal/infrastructure/processmgr/scheduler.go),
// reordered on priority instead of time.
type waiterHeap []*waiter

func (h waiterHeap) Len() int { return len(h) }

func (h waiterHeap) Less(i, j int) bool {
	if h[i].priority != h[j].priority {
		return h[i].priority > h[j].priority
	}
	return h[i].seq < h[j].seq
}

func (h waiterHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *waiterHeap) Push(x any) {
	w := x.(*waiter)
	w.index = len(*h)
	*h = append(*h, w)
}

func (h *waiterHeap) Pop() any {
	old := *h
	n := len(old)
	w := old[n-1]
	w.index = -1
	*h = old[:n-1]
	return w
}
