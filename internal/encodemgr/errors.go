package encodemgr

import "errors"

// Error kinds surfaced to callers or logged at the scheduler boundary.
// Named to match the lifecycle stage that produces them (§7).
var (
	// ErrConcurrentEncodeNumIsZero is returned by Enqueue when the
	// configured concurrency cap disables encoding entirely.
	ErrConcurrentEncodeNumIsZero = errors.New("encodemgr: concurrentEncodeNum is zero")

	// ErrGetExecutionTimeout is returned by the Execution Gate when a
	// waiter has not been granted a ticket within the acquisition timeout.
	ErrGetExecutionTimeout = errors.New("encodemgr: timed out waiting for execution ticket")

	// ErrVideoFileIDIsNotFound means the video file store has no record
	// for the job's sourceVideoFileId.
	ErrVideoFileIDIsNotFound = errors.New("encodemgr: video file id is not found")

	// ErrRecordedIsNotFound means the recorded metadata store has no
	// record for the job's recordedId.
	ErrRecordedIsNotFound = errors.New("encodemgr: recorded is not found")

	// ErrVideoPathIsNotFound means no input path could be resolved for
	// the job's sourceVideoFileId. A failing stat probe on a resolved
	// path is returned as the wrapped stat error instead.
	ErrVideoPathIsNotFound = errors.New("encodemgr: video path is not found")

	// ErrEncodeCommandIsNotFound means no configured encoder profile has
	// a name matching the job's requested mode.
	ErrEncodeCommandIsNotFound = errors.New("encodemgr: encode command is not found")

	// ErrParentDirIsNotFound means the configured parent directory path
	// for the job's parentDir could not be resolved.
	ErrParentDirIsNotFound = errors.New("encodemgr: parent dir is not found")

	// ErrGetFilePathError is returned when the filename-collision probe
	// exhausts its retry budget without finding a free name.
	ErrGetFilePathError = errors.New("encodemgr: could not resolve a free output file path")

	// ErrStopEncode aggregates failures from cancelByRecordedId.
	ErrStopEncode = errors.New("encodemgr: one or more jobs failed to cancel")
)
