package encodemgr

import (
	"context"
	"io"
	"os"
)

// RecordedMetadata is what the recorded metadata store (§6) exposes for
// one recording. Optional string fields are empty when absent; Duration
// is in seconds.
type RecordedMetadata struct {
	ID                 int64
	Name               string
	Description        string
	Extended           string
	VideoType          string
	VideoResolution    string
	VideoStreamContent string
	VideoComponentType string
	AudioSamplingRate  string
	AudioComponentType string
	ChannelID          string
	Genre1, Genre2, Genre3          string
	SubGenre1, SubGenre2, SubGenre3 string
	Duration           float64
}

// RecordedStore resolves recordedId -> RecordedMetadata (§6). FindByID
// returns (nil, nil) when no record exists for the id, matching the
// spec's "Record | null" contract; it returns a non-nil error only for
// genuine lookup failures (I/O, context cancellation, etc.).
type RecordedStore interface {
	FindByID(ctx context.Context, recordedID int64) (*RecordedMetadata, error)
}

// VideoFile is what the video file store (§6) exposes for one source
// video artifact.
type VideoFile struct {
	ID int64
}

// VideoFileStore resolves sourceVideoFileId -> VideoFile.
type VideoFileStore interface {
	FindByID(ctx context.Context, videoFileID int64) (*VideoFile, error)
}

// VideoUtil resolves path-shaped configuration (§6). Both methods return
// ("", false) when the lookup yields nothing.
type VideoUtil interface {
	FullFilePath(videoFileID int64) (string, bool)
	ParentDirPath(parentDir string) (string, bool)
}

// FSUtil is the filesystem collaborator (§6): stat/mkdir/unlink.
type FSUtil interface {
	Stat(path string) (os.FileInfo, error)
	MkdirAll(path string) error
	Remove(path string) error
}

// ProcessSpec is the argument to ProcessSpawner.Create (§4.6 step 4).
type ProcessSpec struct {
	Input    string
	Output   string // "" when the profile has no suffix
	Cmd      string // rendered command line (after template substitution)
	Priority int    // ENCODE_PRIORITY = 10; OS niceness, not a gate priority
	Env      []string
}

// ExitResult is delivered on Process.Done() exactly once (§4.6 step 6).
type ExitResult struct {
	Code   int
	Signal string // empty if the process was not terminated by a signal
}

// Process is a handle to a spawned encoder child (§6).
type Process interface {
	Stderr() io.Reader
	Done() <-chan ExitResult
}

// ProcessSpawner is the process-spawning collaborator (§6).
type ProcessSpawner interface {
	Create(ctx context.Context, spec ProcessSpec) (Process, error)
}

// ProcessUtil kills a running child (§6). Errors are logged, never
// propagated (§7 Propagation policy).
type ProcessUtil interface {
	Kill(p Process) error
}

// FinishRecord is the payload of a successful finish event (§4.6 step 6).
type FinishRecord struct {
	RecordedID     int64
	VideoFileID    int64
	ParentDirName  string
	FilePath       string // directory/basename, or basename alone
	FullOutputPath string
	Mode           string
	RemoveOriginal bool
}

// EventEmitter is the event-bus collaborator (§6).
type EventEmitter interface {
	EmitAddEncode(id JobID)
	EmitFinishEncode(rec FinishRecord)
	EmitErrorEncode()
}
