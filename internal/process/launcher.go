package process

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"syscall"
)

// Proc is a started OS process as seen by the supervisor. Stdout and
// Stderr must each be consumed to completion before Wait is called.
type Proc interface {
	PID() int
	Stdout() io.Reader
	Stderr() io.Reader
	Signal(sig os.Signal) error
	Kill() error
	Wait() (ExitStatus, error)
}

// Launcher starts processes. The local implementation uses os/exec;
// the docker subpackage runs the command inside a container instead.
type Launcher interface {
	Start(ctx context.Context, spec Spec) (Proc, error)
}

// NewLocalLauncher returns a Launcher that spawns processes directly on
// the host.
func NewLocalLauncher() Launcher {
	return &localLauncher{}
}

type localLauncher struct{}

func (l *localLauncher) Start(ctx context.Context, spec Spec) (Proc, error) {
	if len(spec.Command) == 0 {
		return nil, &LaunchError{Err: errors.New("empty command")}
	}

	cmd := exec.Command(spec.Command[0], spec.Command[1:]...)
	cmd.Dir = spec.WorkingDir
	// Own process group, so signals reach shell-spawned grandchildren.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	if len(spec.Environment) > 0 {
		env := os.Environ()
		for k, v := range spec.Environment {
			env = append(env, k+"="+v)
		}
		cmd.Env = env
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, &LaunchError{Command: spec.Command[0], Err: err}
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, &LaunchError{Command: spec.Command[0], Err: err}
	}

	if err := cmd.Start(); err != nil {
		return nil, &LaunchError{Command: strings.Join(spec.Command, " "), Err: err}
	}

	return &localProc{cmd: cmd, stdout: stdout, stderr: stderr}, nil
}

type localProc struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser
	stderr io.ReadCloser
}

func (p *localProc) PID() int          { return p.cmd.Process.Pid }
func (p *localProc) Stdout() io.Reader { return p.stdout }
func (p *localProc) Stderr() io.Reader { return p.stderr }

// Signal delivers sig to the whole process group, treating an
// already-exited process as success.
func (p *localProc) Signal(sig os.Signal) error {
	if s, ok := sig.(syscall.Signal); ok {
		return ignoreGone(syscall.Kill(-p.cmd.Process.Pid, s))
	}
	err := p.cmd.Process.Signal(sig)
	if errors.Is(err, os.ErrProcessDone) {
		return nil
	}
	return err
}

func (p *localProc) Kill() error {
	return ignoreGone(syscall.Kill(-p.cmd.Process.Pid, syscall.SIGKILL))
}

func ignoreGone(err error) error {
	if errors.Is(err, syscall.ESRCH) || errors.Is(err, os.ErrProcessDone) {
		return nil
	}
	return err
}

// Wait blocks until the process exits and reports how. A signal death
// surfaces as Code -1 plus the signal name; wait infrastructure
// failures are returned as errors.
func (p *localProc) Wait() (ExitStatus, error) {
	err := p.cmd.Wait()
	if err == nil {
		return ExitStatus{Code: 0}, nil
	}

	var ee *exec.ExitError
	if !errors.As(err, &ee) {
		return ExitStatus{Code: -1}, fmt.Errorf("wait failed: %w", err)
	}

	status := ExitStatus{Code: ee.ExitCode()}
	if ws, ok := ee.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		status.Code = -1
		status.Signal = ws.Signal().String()
	}
	return status, nil
}
