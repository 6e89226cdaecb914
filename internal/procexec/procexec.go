//go:build linux

// Package procexec implements the encodemgr.ProcessSpawner and
// encodemgr.ProcessUtil collaborators over os/exec, adapting the process
// lifecycle and pipe/signal discipline of the teacher's process
// supervisor to a single spawn-run-to-completion encoder invocation
// instead of a restart-on-exit supervised service.
package procexec

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/edirooss/encode-manager/internal/encodemgr"
)

// gracePeriod bounds how long Kill waits for SIGTERM to take effect before
// escalating to SIGKILL, mirroring the teacher's process.Close timeout.
const gracePeriod = 3 * time.Second

// Spawner implements encodemgr.ProcessSpawner by running a profile's
// rendered command line through a shell, each in its own process group so
// a kill reaches every descendant.
type Spawner struct {
	log *zap.Logger
}

// New constructs a Spawner.
func New(log *zap.Logger) *Spawner {
	return &Spawner{log: log.Named("procexec")}
}

// Create starts spec.Cmd under "sh -c", since an encode profile's Cmd is
// user-configured template text (arbitrary shell, possibly a pipeline),
// not a fixed argv (§4.6 step 4).
func (s *Spawner) Create(ctx context.Context, spec encodemgr.ProcessSpec) (encodemgr.Process, error) {
	cmd := exec.CommandContext(ctx, "sh", "-c", spec.Cmd)
	cmd.Env = spec.Env
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid:   true,
		Pdeathsig: syscall.SIGKILL,
	}

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start: %w", err)
	}

	p := &process{
		log:    s.log,
		cmd:    cmd,
		stderr: stderr,
		done:   make(chan encodemgr.ExitResult, 1),
		exited: make(chan struct{}),
	}
	go p.wait()
	return p, nil
}

// Util implements encodemgr.ProcessUtil.
type Util struct{}

// NewUtil constructs a Util.
func NewUtil() Util { return Util{} }

// Kill escalates SIGTERM to the process group, then SIGKILL after
// gracePeriod if the process has not exited, mirroring the teacher's
// process.Close deterministic teardown.
func (Util) Kill(p encodemgr.Process) error {
	proc, ok := p.(*process)
	if !ok {
		return fmt.Errorf("procexec: Kill called with foreign Process")
	}
	return proc.kill()
}

type process struct {
	log    *zap.Logger
	cmd    *exec.Cmd
	stderr io.ReadCloser
	done   chan encodemgr.ExitResult
	exited chan struct{} // closed once Wait returns, ahead of the done send

	killOnce sync.Once
}

func (p *process) Stderr() io.Reader { return p.stderr }

func (p *process) Done() <-chan encodemgr.ExitResult { return p.done }

// wait reaps the child exactly once and classifies its termination.
func (p *process) wait() {
	err := p.cmd.Wait()

	res := encodemgr.ExitResult{}
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			status := exitErr.ProcessState.Sys().(syscall.WaitStatus)
			if status.Signaled() {
				res.Signal = status.Signal().String()
			} else {
				res.Code = status.ExitStatus()
			}
		} else {
			p.log.Error("wait failed", zap.Error(err))
			res.Code = -1
		}
	}

	close(p.exited)
	p.done <- res
}

// kill sends SIGTERM to the process group immediately and SIGKILL after
// gracePeriod if the process is still alive.
func (p *process) kill() error {
	var killErr error
	p.killOnce.Do(func() {
		pid := p.cmd.Process.Pid
		if err := syscall.Kill(-pid, syscall.SIGTERM); err != nil {
			killErr = fmt.Errorf("sigterm: %w", err)
		}

		go func() {
			timer := time.NewTimer(gracePeriod)
			defer timer.Stop()
			select {
			case <-p.exited:
			case <-timer.C:
				if err := syscall.Kill(-pid, syscall.SIGKILL); err != nil {
					p.log.Warn("sigkill failed", zap.Error(err), zap.Int("pid", pid))
				}
			}
		}()
	})
	return killErr
}
