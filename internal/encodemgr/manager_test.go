package encodemgr_test

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/edirooss/encode-manager/internal/encodemgr"
)

func testLogger(t *testing.T) *zap.Logger {
	t.Helper()
	return zap.NewNop()
}

// --- fakes -----------------------------------------------------------------

type fakeRecordedStore struct {
	mu       sync.Mutex
	duration float64
	missing  map[int64]bool
}

func (f *fakeRecordedStore) FindByID(_ context.Context, id int64) (*encodemgr.RecordedMetadata, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.missing[id] {
		return nil, nil
	}
	d := f.duration
	if d == 0 {
		d = 600
	}
	return &encodemgr.RecordedMetadata{ID: id, Name: fmt.Sprintf("rec-%d", id), Duration: d}, nil
}

type fakeVideoFileStore struct{}

func (fakeVideoFileStore) FindByID(_ context.Context, id int64) (*encodemgr.VideoFile, error) {
	return &encodemgr.VideoFile{ID: id}, nil
}

type fakeVideoUtil struct{}

func (fakeVideoUtil) FullFilePath(id int64) (string, bool) {
	return fmt.Sprintf("/media/in/%d.ts", id), true
}

func (fakeVideoUtil) ParentDirPath(name string) (string, bool) {
	return "/media/out/" + name, true
}

type fakeFSUtil struct {
	mu      sync.Mutex
	removed []string
}

// Stat reports source inputs (under /media/in/) as present and every other
// path as absent, so output names never collide.
func (*fakeFSUtil) Stat(path string) (os.FileInfo, error) {
	if strings.HasPrefix(path, "/media/in/") {
		return nil, nil
	}
	return nil, os.ErrNotExist
}

func (f *fakeFSUtil) MkdirAll(path string) error { return nil }

func (f *fakeFSUtil) Remove(path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, path)
	return nil
}

func (f *fakeFSUtil) removedPaths() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.removed))
	copy(out, f.removed)
	return out
}

type fakeProcess struct {
	done chan encodemgr.ExitResult
}

func newFakeProcess() *fakeProcess {
	return &fakeProcess{done: make(chan encodemgr.ExitResult, 1)}
}

func (p *fakeProcess) Stderr() io.Reader                     { return strings.NewReader("") }
func (p *fakeProcess) Done() <-chan encodemgr.ExitResult     { return p.done }
func (p *fakeProcess) finish(res encodemgr.ExitResult)       { p.done <- res }

type fakeSpawner struct {
	mu    sync.Mutex
	procs []*fakeProcess
}

func (s *fakeSpawner) Create(_ context.Context, _ encodemgr.ProcessSpec) (encodemgr.Process, error) {
	p := newFakeProcess()
	s.mu.Lock()
	s.procs = append(s.procs, p)
	s.mu.Unlock()
	return p, nil
}

func (s *fakeSpawner) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.procs)
}

func (s *fakeSpawner) at(i int) *fakeProcess {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.procs[i]
}

// fakeProcessUtil simulates a kill by immediately finishing the process,
// as a real SIGTERM eventually would.
type fakeProcessUtil struct{}

func (fakeProcessUtil) Kill(p encodemgr.Process) error {
	if fp, ok := p.(*fakeProcess); ok {
		select {
		case fp.done <- encodemgr.ExitResult{Signal: "terminated"}:
		default:
		}
	}
	return nil
}

type fakeEvents struct {
	mu      sync.Mutex
	added   []encodemgr.JobID
	finishes []encodemgr.FinishRecord
	errors  int
}

func (e *fakeEvents) EmitAddEncode(id encodemgr.JobID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.added = append(e.added, id)
}

func (e *fakeEvents) EmitFinishEncode(rec encodemgr.FinishRecord) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.finishes = append(e.finishes, rec)
}

func (e *fakeEvents) EmitErrorEncode() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.errors++
}

func (e *fakeEvents) finishCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.finishes)
}

// --- harness -----------------------------------------------------------------

type harness struct {
	mgr     *encodemgr.Manager
	spawner *fakeSpawner
	fs      *fakeFSUtil
	events  *fakeEvents
	rec     *fakeRecordedStore
}

func newHarness(t *testing.T, concurrentEncodeNum int) *harness {
	t.Helper()
	cfg := &encodemgr.Config{
		ConcurrentEncodeNum: concurrentEncodeNum,
		FFmpeg:              "/usr/bin/ffmpeg",
		Encode: []encodemgr.EncodeProfile{
			{Name: "copy", Cmd: "noop", Suffix: ""},
		},
	}

	h := &harness{
		spawner: &fakeSpawner{},
		fs:      &fakeFSUtil{},
		events:  &fakeEvents{},
		rec:     &fakeRecordedStore{missing: map[int64]bool{}},
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	h.mgr = encodemgr.New(ctx, cfg, testLogger(t), h.rec, fakeVideoFileStore{}, fakeVideoUtil{}, h.fs, h.spawner, fakeProcessUtil{}, h.events)
	return h
}

func req(recordedID, sourceVideoFileID int64) encodemgr.JobRequest {
	return encodemgr.JobRequest{RecordedID: recordedID, SourceVideoFileID: sourceVideoFileID, Mode: "copy", ParentDir: "default"}
}

// --- tests -----------------------------------------------------------------

func TestManager_CapEnforcement(t *testing.T) {
	h := newHarness(t, 1)

	id1, err := h.mgr.Enqueue(req(1, 100))
	require.NoError(t, err)
	id2, err := h.mgr.Enqueue(req(2, 200))
	require.NoError(t, err)
	require.NotEqual(t, id1, id2)

	require.Eventually(t, func() bool { return h.spawner.count() == 1 }, time.Second, 5*time.Millisecond,
		"only one job should be promoted while concurrentEncodeNum=1")

	// Still only one process a little later: the second stays queued.
	time.Sleep(30 * time.Millisecond)
	require.Equal(t, 1, h.spawner.count())

	h.spawner.at(0).finish(encodemgr.ExitResult{})

	require.Eventually(t, func() bool { return h.spawner.count() == 2 }, time.Second, 5*time.Millisecond,
		"second job should be promoted once the first finishes")
}

func TestManager_CancelUnknownIDIsNoop(t *testing.T) {
	h := newHarness(t, 1)
	err := h.mgr.Cancel(encodemgr.JobID(999))
	require.NoError(t, err)
	require.Equal(t, 0, h.events.errors)
}

func TestManager_DuplicateSourceInterlock(t *testing.T) {
	h := newHarness(t, 2)

	r1 := req(1, 42)
	r1.RemoveOriginal = true
	r2 := req(2, 42)
	r2.RemoveOriginal = true

	_, err := h.mgr.Enqueue(r1)
	require.NoError(t, err)
	_, err = h.mgr.Enqueue(r2)
	require.NoError(t, err)

	require.Eventually(t, func() bool { return h.spawner.count() == 2 }, time.Second, 5*time.Millisecond)

	h.spawner.at(0).finish(encodemgr.ExitResult{})

	require.Eventually(t, func() bool { return h.events.finishCount() == 1 }, time.Second, 5*time.Millisecond)

	require.False(t, h.events.finishes[0].RemoveOriginal,
		"removeOriginal must be coerced false while a sibling job still references the same source")
	require.Empty(t, h.fs.removedPaths(), "original source must not be deleted while job 2 still needs it")
}

func TestManager_CancelByRecordedID(t *testing.T) {
	h := newHarness(t, 2)

	_, err := h.mgr.Enqueue(req(7, 1))
	require.NoError(t, err)
	_, err = h.mgr.Enqueue(req(7, 2))
	require.NoError(t, err)
	_, err = h.mgr.Enqueue(req(9, 3))
	require.NoError(t, err)

	require.Eventually(t, func() bool { return len(h.mgr.GetRecordedIndex(7)) == 2 }, time.Second, 5*time.Millisecond)

	err = h.mgr.CancelByRecordedID(7)
	require.NoError(t, err)

	require.Eventually(t, func() bool { return len(h.mgr.GetRecordedIndex(7)) == 0 }, time.Second, 5*time.Millisecond)

	remaining := h.mgr.GetRecordedIndex(9)
	require.Len(t, remaining, 1)
	want := []encodemgr.RecordedIndexEntry{{JobID: remaining[0].JobID, Mode: "copy", Status: remaining[0].Status}}
	if diff := cmp.Diff(want, remaining); diff != "" {
		t.Errorf("GetRecordedIndex(9) mismatch (-want +got):\n%s", diff)
	}
}
