package encodemgr

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Manager is the Encode Manager (§2): the single owner of the Wait Queue,
// the Running Set, and the Execution Gate that orders access to both. All
// collaborators named in §6 are injected; Manager performs no I/O of its
// own outside of what they provide.
type Manager struct {
	log  *zap.Logger
	cfg  *Config
	gate *ExecutionGate
	ids  *idAllocator
	wait *waitQueue
	run  *runningSet

	recorded  RecordedStore
	videoFile VideoFileStore
	video     VideoUtil
	fs        FSUtil
	spawner   ProcessSpawner
	procutil  ProcessUtil
	events    EventEmitter

	trigger chan struct{}
	done    chan struct{}
}

// New constructs a Manager and starts its scheduler-trigger loop. Callers
// should arrange for ctx to be cancelled at shutdown; New itself does not
// block.
func New(
	ctx context.Context,
	cfg *Config,
	log *zap.Logger,
	recorded RecordedStore,
	videoFile VideoFileStore,
	video VideoUtil,
	fs FSUtil,
	spawner ProcessSpawner,
	procutil ProcessUtil,
	events EventEmitter,
) *Manager {
	m := &Manager{
		log:       log.Named("encodemgr"),
		cfg:       cfg,
		gate:      NewExecutionGate(),
		ids:       newIDAllocator(),
		wait:      &waitQueue{},
		run:       newRunningSet(),
		recorded:  recorded,
		videoFile: videoFile,
		video:     video,
		fs:        fs,
		spawner:   spawner,
		procutil:  procutil,
		events:    events,
		trigger:   make(chan struct{}, 1),
		done:      make(chan struct{}),
	}
	go m.schedulerLoop(ctx)
	return m
}

// schedulerLoop drains trigger signals one at a time and runs checkQueue.
// Re-entrant calls to the scheduler (§4.4: "triggered... the dispatch of
// this trigger is deferred to the next tick, never invoked synchronously
// from within an in-progress run") collapse onto the same buffered slot,
// so a burst of enqueue/cancel/finalize calls yields at most one queued
// extra run rather than an unbounded pile-up.
func (m *Manager) schedulerLoop(ctx context.Context) {
	defer close(m.done)
	for {
		select {
		case <-ctx.Done():
			return
		case <-m.trigger:
			m.checkQueue(ctx)
		}
	}
}

// triggerCheckQueue asks the scheduler loop to run checkQueue on its next
// tick. Safe to call from any goroutine, any number of times; excess
// signals while one is already pending are dropped, not queued (§9: the
// re-entrant trigger must be bounded, not free to pile up).
func (m *Manager) triggerCheckQueue() {
	select {
	case m.trigger <- struct{}{}:
	default:
	}
}

// Enqueue admits a new job request, assigns it a Job Identifier, appends
// it to the Wait Queue, and triggers the scheduler (§4.7).
func (m *Manager) Enqueue(req JobRequest) (JobID, error) {
	if m.cfg.ConcurrentEncodeNum <= 0 {
		return 0, ErrConcurrentEncodeNumIsZero
	}

	ticket, err := m.gate.acquire(PriorityAddEncode)
	if err != nil {
		return 0, err
	}
	defer m.gate.release(ticket)

	id := m.ids.alloc(func(id JobID) bool {
		if _, ok := m.run.get(id); ok {
			return true
		}
		for _, e := range m.wait.snapshot() {
			if e.ID == id {
				return true
			}
		}
		return false
	})

	entry := WaitEntry{ID: id, JobRequest: req}
	m.wait.push(entry)
	m.events.EmitAddEncode(id)
	m.triggerCheckQueue()
	return id, nil
}

// Cancel stops job id, whether it is still waiting or already running
// (§4.7). Cancelling an id that is in neither collection is a no-op: no
// event is emitted and no error is returned (the Open Question of §9 is
// resolved the same way here — silence, not an error, for an unknown id).
func (m *Manager) Cancel(id JobID) error {
	ticket, err := m.gate.acquire(PriorityCancel)
	if err != nil {
		return err
	}
	defer m.gate.release(ticket)

	if entry, ok := m.run.get(id); ok {
		if !entry.cancelled.CompareAndSwap(false, true) {
			return nil
		}
		if entry.killFunc != nil {
			entry.killFunc()
		}
		return nil
	}

	if m.wait.removeByID(id) {
		m.triggerCheckQueue()
	}
	return nil
}

// CancelByRecordedID cancels every job — waiting or running — associated
// with recordedID (§4.7). It attempts every matching job even if some
// fail, then joins the failures into a single ErrStopEncode rather than
// stopping at the first error (the teacher's errgroup fan-out idiom,
// generalized from "first error wins" to "collect every error").
func (m *Manager) CancelByRecordedID(recordedID int64) error {
	var ids []JobID
	for _, e := range m.wait.snapshot() {
		if e.RecordedID == recordedID {
			ids = append(ids, e.ID)
		}
	}
	for id, e := range m.run.snapshot() {
		if e.Job.RecordedID == recordedID {
			ids = append(ids, id)
		}
	}

	if len(ids) == 0 {
		return nil
	}

	// errgroup.Group.Wait only ever surfaces the first member's error, which
	// would silently drop every cancel failure but the first — wrong for
	// "attempt every job, report every failure" (§4.7). It is still the
	// right tool for the fan-out/join-all itself; the per-job errors are
	// collected separately via multierr, matching the aggregation idiom
	// zap's own dependency tree uses for exactly this shape of problem.
	var (
		g        errgroup.Group
		mu       sync.Mutex
		combined error
	)
	for _, id := range ids {
		id := id
		g.Go(func() error {
			if err := m.Cancel(id); err != nil {
				mu.Lock()
				combined = multierr.Append(combined, fmt.Errorf("job %d: %w", id, err))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	if combined != nil {
		return errors.Join(ErrStopEncode, combined)
	}
	return nil
}

// RecordedIndexEntry is one row of GetRecordedIndex's result (§4.7).
type RecordedIndexEntry struct {
	JobID  JobID
	Mode   string
	Status string // "waiting" or "running"
}

// GetRecordedIndex reports every job (waiting or running) associated with
// recordedID (§4.7). Used by callers to answer "is this recording
// currently being encoded".
func (m *Manager) GetRecordedIndex(recordedID int64) []RecordedIndexEntry {
	var out []RecordedIndexEntry
	for _, e := range m.wait.snapshot() {
		if e.RecordedID == recordedID {
			out = append(out, RecordedIndexEntry{JobID: e.ID, Mode: e.Mode, Status: "waiting"})
		}
	}
	for _, e := range m.run.snapshot() {
		if e.Job.RecordedID == recordedID {
			out = append(out, RecordedIndexEntry{JobID: e.Job.ID, Mode: e.Job.Mode, Status: "running"})
		}
	}
	return out
}

// checkQueue is the Scheduler Loop body (§4.4). It is re-entrant-safe: it
// only ever runs from schedulerLoop, one invocation at a time, and every
// caller that wants another run goes through triggerCheckQueue rather than
// calling checkQueue directly.
func (m *Manager) checkQueue(ctx context.Context) {
	if m.run.len() >= m.cfg.ConcurrentEncodeNum {
		return
	}
	if m.wait.len() == 0 {
		return
	}

	ticket, err := m.gate.acquire(PriorityCreateProcess)
	if err != nil {
		m.log.Error("checkQueue: failed to acquire execution ticket", zap.Error(err))
		return
	}

	entry, ok := m.wait.popFront()
	if !ok {
		m.gate.release(ticket)
		return
	}

	err = m.promote(ctx, entry)
	m.gate.release(ticket)

	if err != nil {
		m.log.Error("checkQueue: promotion failed",
			zap.Int64("jobId", int64(entry.ID)),
			zap.Int64("recordedId", entry.RecordedID),
			zap.Error(err),
		)
		m.events.EmitErrorEncode()
		m.finalize(entry.ID)
		return
	}

	// One promotion may have left either capacity or queued work behind;
	// let the next tick decide whether there is more to do.
	m.triggerCheckQueue()
}

// finalize removes jobId's bookkeeping from the Running Set (clearing its
// deadline timer first, per I4) and from the Wait Queue if it is somehow
// still there, then re-triggers the scheduler (§4.5). finalize is a no-op,
// not an error, if jobId is in neither collection — the promote-failure
// path calls it for jobs that were popped from the Wait Queue but never
// made it into the Running Set.
func (m *Manager) finalize(id JobID) {
	ticket, err := m.gate.acquire(PriorityClearQueue)
	if err != nil {
		m.log.Error("finalize: failed to acquire execution ticket", zap.Error(err))
		return
	}
	defer m.gate.release(ticket)

	if entry, ok := m.run.get(id); ok {
		if entry.deadlineTimer != nil {
			entry.deadlineTimer.Stop()
		}
		m.run.remove(id)
	}
	m.wait.removeByID(id)

	m.triggerCheckQueue()
}
