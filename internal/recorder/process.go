package recorder

import (
	"context"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/tphakala/rtp-recorder/internal/errors"
)

// waitDelay bounds how long Wait blocks on stderr after the process exits,
// e.g. when a grandchild inherited the pipe.
const waitDelay = 2 * time.Second

// ExitStatus is the result of a finished capture subprocess.
type ExitStatus struct {
	Code int // -1 when terminated by a signal
	Err  error
}

// Process is a running capture subprocess.
type Process interface {
	Pid() int
	// Signal delivers sig to the process.
	Signal(sig os.Signal) error
	// Kill terminates the whole process group.
	Kill() error
	// WaitExit blocks until the process exits or ctx is done.
	WaitExit(ctx context.Context) (ExitStatus, error)
}

// CommandSpec describes a subprocess to launch.
type CommandSpec struct {
	Path   string
	Args   []string
	Stderr io.Writer
}

// Spawner launches capture subprocesses.
type Spawner interface {
	Spawn(spec CommandSpec) (Process, error)
}

// ExecSpawner runs subprocesses with os/exec in their own process group.
type ExecSpawner struct{}

// Spawn starts the command. The process is not tied to any request context.
func (ExecSpawner) Spawn(spec CommandSpec) (Process, error) {
	cmd := exec.Command(spec.Path, spec.Args...) //nolint:gosec // path and args come from configuration
	cmd.Stdin = nil
	cmd.Stdout = nil
	cmd.Stderr = spec.Stderr
	cmd.WaitDelay = waitDelay
	setupProcessGroup(cmd)

	if err := cmd.Start(); err != nil {
		return nil, errors.New(err).
			Component("recorder").
			Category(errors.CategoryCommandExecution).
			Context("operation", "spawn").
			Context("path", spec.Path).
			Build()
	}

	p := &execProcess{cmd: cmd, done: make(chan struct{})}
	go p.wait()
	return p, nil
}

type execProcess struct {
	cmd    *exec.Cmd
	done   chan struct{}
	status ExitStatus
	once   sync.Once
}

func (p *execProcess) wait() {
	err := p.cmd.Wait()
	status := ExitStatus{Code: -1, Err: err}
	if p.cmd.ProcessState != nil {
		status.Code = p.cmd.ProcessState.ExitCode()
	}
	// a non-zero exit is reported through Code, not Err
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		status.Err = nil
	}
	p.status = status
	close(p.done)
}

func (p *execProcess) Pid() int {
	return p.cmd.Process.Pid
}

func (p *execProcess) Signal(sig os.Signal) error {
	select {
	case <-p.done:
		return nil
	default:
	}
	return signalProcess(p.cmd, sig)
}

func (p *execProcess) Kill() error {
	var err error
	p.once.Do(func() {
		err = killProcessGroup(p.cmd)
	})
	return err
}

func (p *execProcess) WaitExit(ctx context.Context) (ExitStatus, error) {
	select {
	case <-p.done:
		return p.status, nil
	case <-ctx.Done():
		return ExitStatus{}, ctx.Err()
	}
}
