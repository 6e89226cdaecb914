package encodemgr

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWaitQueue_FIFO(t *testing.T) {
	var q waitQueue
	q.push(WaitEntry{ID: 1})
	q.push(WaitEntry{ID: 2})
	q.push(WaitEntry{ID: 3})

	e, ok := q.popFront()
	require.True(t, ok)
	require.Equal(t, JobID(1), e.ID)

	require.Equal(t, 2, q.len())
}

func TestWaitQueue_RemoveByID_PreservesOrder(t *testing.T) {
	var q waitQueue
	q.push(WaitEntry{ID: 1})
	q.push(WaitEntry{ID: 2})
	q.push(WaitEntry{ID: 3})

	require.True(t, q.removeByID(2))
	require.False(t, q.removeByID(2), "already removed")

	snap := q.snapshot()
	require.Len(t, snap, 2)
	require.Equal(t, JobID(1), snap[0].ID)
	require.Equal(t, JobID(3), snap[1].ID)
}

func TestWaitQueue_HasSourceVideoFileID(t *testing.T) {
	var q waitQueue
	q.push(WaitEntry{ID: 1, JobRequest: JobRequest{SourceVideoFileID: 42}})

	require.True(t, q.hasSourceVideoFileID(42))
	require.False(t, q.hasSourceVideoFileID(7))
}

func TestRunningSet_PutGetRemove(t *testing.T) {
	s := newRunningSet()
	s.put(1, &RunningEntry{Job: WaitEntry{ID: 1}})

	_, ok := s.get(1)
	require.True(t, ok)
	require.Equal(t, 1, s.len())

	s.remove(1)
	_, ok = s.get(1)
	require.False(t, ok)
	require.Equal(t, 0, s.len())
}

func TestRunningSet_HasSourceVideoFileID(t *testing.T) {
	s := newRunningSet()
	s.put(1, &RunningEntry{Job: WaitEntry{ID: 1, JobRequest: JobRequest{SourceVideoFileID: 42}}})

	require.True(t, s.hasSourceVideoFileID(42))
	require.False(t, s.hasSourceVideoFileID(7))
}
