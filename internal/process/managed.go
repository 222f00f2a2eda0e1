package process

import (
	"fmt"
	"sync"
	"time"

	"github.com/yte121/openswarm/internal/buffer"
)

// Process is one managed subprocess: its spec, its lifecycle state, and
// the two ring buffers holding its captured output. All mutation goes
// through the owning supervisor.
type Process struct {
	ID            string
	Spec          Spec
	StartTime     time.Time
	RestartedFrom string

	proc   Proc
	stdout *buffer.Ring
	stderr *buffer.Ring
	done   chan struct{}

	mu            sync.Mutex
	state         State
	exitCode      int
	signalName    string
	endTime       time.Time
	termRequested bool
}

// Ring returns the ring buffer for the given stream kind.
func (p *Process) Ring(kind buffer.StreamKind) (*buffer.Ring, error) {
	switch kind {
	case buffer.StreamStdout:
		return p.stdout, nil
	case buffer.StreamStderr:
		return p.stderr, nil
	}
	return nil, fmt.Errorf("unknown stream kind %q", kind)
}

// Done is closed when the process reaches a terminal state and all of
// its output has been captured.
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// State returns the current lifecycle state.
func (p *Process) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// ExitStatus returns how the process ended. Only meaningful once the
// state is terminal.
func (p *Process) ExitStatus() ExitStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	return ExitStatus{Code: p.exitCode, Signal: p.signalName}
}

// Snapshot returns a serializable view of the process.
func (p *Process) Snapshot() Info {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Info{
		ID:            p.ID,
		Command:       p.Spec.Command,
		WorkingDir:    p.Spec.WorkingDir,
		State:         p.state,
		ExitCode:      p.exitCode,
		Signal:        p.signalName,
		StartTime:     p.StartTime,
		EndTime:       p.endTime,
		RestartedFrom: p.RestartedFrom,
		Policy:        p.Spec.SubscriberPolicy,
	}
}

// markTerminateRequested records that an explicit terminate preceded the
// exit, so the waiter classifies the end as Terminated, not Crashed.
func (p *Process) markTerminateRequested() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.termRequested = true
}

func (p *Process) terminateRequested() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.termRequested
}

func (p *Process) setState(s State) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = s
}

func (p *Process) setEnd(s State, status ExitStatus) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = s
	p.exitCode = status.Code
	p.signalName = status.Signal
	p.endTime = time.Now()
}
