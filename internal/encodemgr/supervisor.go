package encodemgr

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"
	"time"

	"go.uber.org/zap"
)

// maxOutputPathAttempts bounds the filename-collision resolution loop of
// step 3 below. The spec's own design notes (§9) flag the unbounded
// "(1), (2), ... forever" loop as a latent bug in non-atomic, racy
// collision resolution; capping it turns a possible infinite loop into a
// reported error.
const maxOutputPathAttempts = 1000

// cleanupDelay is how long the exit handler waits before deleting a
// partial output file, giving the encoder's own process group time to
// release its file handles after exit.
const cleanupDelay = time.Second

// templateData is the substitution set available to an encode profile's
// Cmd template (§4.6 step 2/4).
type templateData struct {
	Input  string
	Output string
	Dir    string
	FFmpeg string
}

// promote is the Process Supervisor (§4.6): resolve inputs, resolve the
// encode profile, resolve a free output path, spawn the encoder, and
// install its deadline timer and exit handler. It runs while checkQueue
// holds a CREATE_PROCESS ticket, so every step here must be bounded and
// must not itself re-enter the gate.
func (m *Manager) promote(ctx context.Context, entry WaitEntry) error {
	vf, err := m.videoFile.FindByID(ctx, entry.SourceVideoFileID)
	if err != nil {
		return fmt.Errorf("resolve video file: %w", err)
	}
	if vf == nil {
		return ErrVideoFileIDIsNotFound
	}

	rec, err := m.recorded.FindByID(ctx, entry.RecordedID)
	if err != nil {
		return fmt.Errorf("resolve recorded: %w", err)
	}
	if rec == nil {
		return ErrRecordedIsNotFound
	}

	inputPath, ok := m.video.FullFilePath(entry.SourceVideoFileID)
	if !ok {
		return ErrVideoPathIsNotFound
	}
	if _, err := m.fs.Stat(inputPath); err != nil {
		return fmt.Errorf("stat input: %w", err)
	}

	profile, ok := m.cfg.findProfile(entry.Mode)
	if !ok {
		return ErrEncodeCommandIsNotFound
	}

	var outputPath, outputDir string
	if profile.Suffix != "" {
		outputDir, outputPath, err = m.resolveOutputPath(entry, inputPath, profile)
		if err != nil {
			return err
		}
	}

	cmd, err := renderCmd(profile.Cmd, templateData{
		Input:  inputPath,
		Output: outputPath,
		Dir:    outputDir,
		FFmpeg: m.cfg.FFmpeg,
	})
	if err != nil {
		return fmt.Errorf("render encode command: %w", err)
	}

	env := buildEnv(envParams{
		recordedID: entry.RecordedID,
		input:      inputPath,
		output:     outputPath,
		dir:        outputDir,
		ffmpeg:     m.cfg.FFmpeg,
		rec:        rec,
	})

	proc, err := m.spawner.Create(ctx, ProcessSpec{
		Input:    inputPath,
		Output:   outputPath,
		Cmd:      cmd,
		Priority: PriorityEncode,
		Env:      env,
	})
	if err != nil {
		return fmt.Errorf("spawn encoder: %w", err)
	}

	deadline := time.Duration(rec.Duration * profile.rate() * float64(time.Second))
	running := &RunningEntry{Job: entry}
	running.killFunc = func() {
		if err := m.procutil.Kill(proc); err != nil {
			m.log.Error("kill encoder failed",
				zap.Int64("jobId", int64(entry.ID)),
				zap.Error(err),
			)
		}
	}
	running.deadlineTimer = time.AfterFunc(deadline, func() {
		m.log.Warn("encode deadline exceeded, cancelling",
			zap.Int64("jobId", int64(entry.ID)),
			zap.Duration("deadline", deadline),
		)
		_ = m.Cancel(entry.ID)
	})

	m.run.put(entry.ID, running)

	go m.watchExit(entry, proc, outputPath, vf.ID)
	return nil
}

// resolveOutputPath computes the directory and free file path for a
// profile with a tracked output (§4.6 step 3). It creates the target
// directory if absent and resolves basename collisions by appending
// " (n)" before the suffix, capped at maxOutputPathAttempts.
func (m *Manager) resolveOutputPath(entry WaitEntry, inputPath string, profile EncodeProfile) (dir, path string, err error) {
	parentDirPath, ok := m.video.ParentDirPath(entry.ParentDir)
	if !ok {
		return "", "", ErrParentDirIsNotFound
	}

	dir = parentDirPath
	if entry.Directory != "" {
		dir = filepath.Join(parentDirPath, entry.Directory)
	}

	if _, err := m.fs.Stat(dir); err != nil {
		if err := m.fs.MkdirAll(dir); err != nil {
			return "", "", fmt.Errorf("create output dir: %w", err)
		}
	}

	base := strings.TrimSuffix(filepath.Base(inputPath), filepath.Ext(inputPath))

	for n := 0; n < maxOutputPathAttempts; n++ {
		name := base + profile.Suffix
		if n > 0 {
			name = fmt.Sprintf("%s (%d)%s", base, n, profile.Suffix)
		}
		candidate := filepath.Join(dir, name)
		if _, err := m.fs.Stat(candidate); err != nil {
			// Stat failing means nothing occupies this name. The check-then-
			// create gap here mirrors the race the design notes call out in
			// §9; the real fix is an atomic create-exclusive, which FSUtil
			// does not expose.
			return dir, candidate, nil
		}
	}
	return "", "", ErrGetFilePathError
}

// renderCmd substitutes a profile's Cmd template against data using
// text/template, the same mechanism the teacher uses for systemd unit
// templating.
func renderCmd(tmpl string, data templateData) (string, error) {
	t, err := template.New("cmd").Parse(tmpl)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// watchExit is the exit handler of §4.6 step 6. It runs for the lifetime
// of one spawned encoder and is the sole place a job transitions out of
// the Running Set other than a never-promoted job's finalize() call.
func (m *Manager) watchExit(entry WaitEntry, proc Process, outputPath string, videoFileID int64) {
	res := <-proc.Done()

	running, ok := m.run.get(entry.ID)
	if !ok {
		m.log.Error("exit handler: running entry vanished before exit", zap.Int64("jobId", int64(entry.ID)))
		return
	}

	switch {
	case running.cancelled.Load():
		m.log.Info("encode cancelled", zap.Int64("jobId", int64(entry.ID)))
		m.cleanupOutput(outputPath)

	case res.Code != 0 || res.Signal != "":
		m.log.Error("encode process exited abnormally",
			zap.Int64("jobId", int64(entry.ID)),
			zap.Int("code", res.Code),
			zap.String("signal", res.Signal),
		)
		m.events.EmitErrorEncode()
		m.cleanupOutput(outputPath)

	default:
		removeOriginal := entry.RemoveOriginal
		if removeOriginal && m.anyOtherJobSharesSource(entry.ID, entry.SourceVideoFileID) {
			// I6 / duplicate-source interlock: never tell the consumer to
			// remove a source file still needed by a sibling job.
			removeOriginal = false
		}
		// Source deletion itself belongs to the finish event's consumer, not
		// the core: RemoveOriginal here is the byte-exact signal handed
		// downstream (§4.6 step 6), not an instruction the core acts on.
		m.events.EmitFinishEncode(FinishRecord{
			RecordedID:     entry.RecordedID,
			VideoFileID:    videoFileID,
			ParentDirName:  entry.ParentDir,
			FilePath:       filepath.Join(entry.Directory, filepath.Base(outputPath)),
			FullOutputPath: outputPath,
			Mode:           entry.Mode,
			RemoveOriginal: removeOriginal,
		})
	}

	m.finalize(entry.ID)
}

// anyOtherJobSharesSource reports whether any job other than excludeID —
// waiting or running — references the same source video file.
func (m *Manager) anyOtherJobSharesSource(excludeID JobID, sourceVideoFileID int64) bool {
	if m.wait.hasSourceVideoFileID(sourceVideoFileID) {
		return true
	}
	for id, e := range m.run.snapshot() {
		if id != excludeID && e.Job.SourceVideoFileID == sourceVideoFileID {
			return true
		}
	}
	return false
}

// cleanupOutput deletes a partial output file after a short delay,
// swallowing errors (§7: deletion failures are logged, never propagated).
// outputPath may be empty (profile with no tracked output), in which case
// there is nothing to remove.
func (m *Manager) cleanupOutput(outputPath string) {
	if outputPath == "" {
		return
	}
	time.AfterFunc(cleanupDelay, func() {
		if err := m.fs.Remove(outputPath); err != nil && !os.IsNotExist(err) {
			m.log.Error("cleanup: remove partial output failed",
				zap.String("path", outputPath),
				zap.Error(err),
			)
		}
	})
}
