package process

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/yte121/openswarm/internal/buffer"
	"github.com/yte121/openswarm/internal/filter"
	"github.com/yte121/openswarm/internal/intercept"
	"github.com/yte121/openswarm/internal/logger"
	"github.com/yte121/openswarm/internal/metrics"
	"github.com/yte121/openswarm/internal/validation"
)

/*
PROCESS SUPERVISION

The supervisor owns an arena of managed processes, indexed by opaque id.
There is no ambient registry; everything that holds a process does so by
asking the supervisor.

Per launched process the supervisor runs three goroutines: one
interceptor per output stream and one waiter. The waiter joins both
interceptors before calling Wait (pipe readers must drain first), then
classifies the exit:

    terminate was requested        → Terminated
    exit code 0, no signal         → Exited
    anything else                  → Crashed

Every state transition emits a LifecycleEvent on the control channel.
The send never blocks; if the channel is full the event is dropped and
counted, because stalling capture to preserve a control message would
invert the system's priorities.

Restart never mutates an existing process. It launches a brand-new one
(new id, new sequence space) that records its predecessor's id, so two
instances' sequences can never be conflated.
*/

const (
	// DefaultGracePeriod is how long terminate waits after the
	// cooperative signal before escalating to a kill.
	DefaultGracePeriod = 10 * time.Second

	eventChannelSize = 256
)

// Options tunes supervisor defaults applied to every launch.
type Options struct {
	GracePeriod     time.Duration
	FlushInterval   time.Duration
	MaxBufferChunks int
	MaxBufferBytes  int64
	DefaultPolicy   string
}

// Supervisor launches processes and owns their lifecycles.
type Supervisor struct {
	launcher Launcher
	chain    *filter.Chain
	notifier intercept.Notifier
	opts     Options
	events   chan LifecycleEvent

	mu    sync.RWMutex
	procs map[string]*Process
}

// NewSupervisor creates a supervisor. The chain may be nil (no
// redaction); the notifier is told about every captured chunk.
func NewSupervisor(launcher Launcher, chain *filter.Chain, notifier intercept.Notifier, opts Options) *Supervisor {
	if opts.GracePeriod <= 0 {
		opts.GracePeriod = DefaultGracePeriod
	}
	return &Supervisor{
		launcher: launcher,
		chain:    chain,
		notifier: notifier,
		opts:     opts,
		events:   make(chan LifecycleEvent, eventChannelSize),
		procs:    make(map[string]*Process),
	}
}

// Events returns the control channel carrying lifecycle events.
// Intended for a single consumer (the stream multiplexer).
func (s *Supervisor) Events() <-chan LifecycleEvent {
	return s.events
}

// Launch creates a managed process and starts capturing its output.
// Returns a *LaunchError (and creates nothing) if the executable cannot
// be started.
func (s *Supervisor) Launch(ctx context.Context, spec Spec) (*Process, error) {
	return s.launch(ctx, spec, "")
}

func (s *Supervisor) launch(ctx context.Context, spec Spec, restartedFrom string) (*Process, error) {
	if err := validation.ValidateCommand(spec.Command); err != nil {
		return nil, &LaunchError{Err: err}
	}
	if err := validation.ValidateEnvironment(spec.Environment); err != nil {
		return nil, &LaunchError{Command: spec.Command[0], Err: err}
	}
	if spec.MaxBufferChunks <= 0 {
		spec.MaxBufferChunks = s.opts.MaxBufferChunks
	}
	if spec.MaxBufferBytes <= 0 {
		spec.MaxBufferBytes = s.opts.MaxBufferBytes
	}
	if spec.SubscriberPolicy == "" {
		spec.SubscriberPolicy = s.opts.DefaultPolicy
	}

	id := uuid.NewString()
	p := &Process{
		ID:            id,
		Spec:          spec,
		StartTime:     time.Now(),
		RestartedFrom: restartedFrom,
		stdout:        buffer.NewRing(id, buffer.StreamStdout, spec.MaxBufferChunks, spec.MaxBufferBytes),
		stderr:        buffer.NewRing(id, buffer.StreamStderr, spec.MaxBufferChunks, spec.MaxBufferBytes),
		done:          make(chan struct{}),
		state:         StateStarting,
	}

	proc, err := s.launcher.Start(ctx, spec)
	if err != nil {
		var le *LaunchError
		if errors.As(err, &le) {
			return nil, le
		}
		return nil, &LaunchError{Command: spec.Command[0], Err: err}
	}
	p.proc = proc

	s.mu.Lock()
	s.procs[id] = p
	s.mu.Unlock()

	s.emit(p, StateStarting)
	p.setState(StateRunning)
	s.emit(p, StateRunning)
	metrics.RecordProcessStart()
	logger.Info("launched process %s (pid %d): %v", id, proc.PID(), spec.Command)

	go s.supervise(p)
	return p, nil
}

// supervise drains both output streams, waits for the exit, and
// publishes the terminal transition.
func (s *Supervisor) supervise(p *Process) {
	iopts := intercept.Options{FlushInterval: s.opts.FlushInterval}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		if err := intercept.New(p.stdout, s.chain, s.notifier, iopts).Run(context.Background(), p.proc.Stdout()); err != nil {
			logger.Error("stdout capture for %s ended with error: %v", p.ID, err)
		}
	}()
	go func() {
		defer wg.Done()
		if err := intercept.New(p.stderr, s.chain, s.notifier, iopts).Run(context.Background(), p.proc.Stderr()); err != nil {
			logger.Error("stderr capture for %s ended with error: %v", p.ID, err)
		}
	}()
	wg.Wait()

	status, err := p.proc.Wait()
	if err != nil {
		logger.Error("wait for process %s: %v", p.ID, err)
	}

	var final State
	switch {
	case p.terminateRequested():
		final = StateTerminated
	case status.Code == 0 && status.Signal == "":
		final = StateExited
	default:
		final = StateCrashed
	}

	p.setEnd(final, status)
	close(p.done)
	metrics.RecordProcessEnd(string(final), time.Since(p.StartTime).Seconds())
	s.emit(p, final)
	logger.Info("process %s ended: state=%s code=%d signal=%q", p.ID, final, status.Code, status.Signal)
}

// Get returns the managed process with the given id.
func (s *Supervisor) Get(id string) (*Process, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.procs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return p, nil
}

// List returns snapshots of every process in the arena.
func (s *Supervisor) List() []Info {
	s.mu.RLock()
	defer s.mu.RUnlock()
	infos := make([]Info, 0, len(s.procs))
	for _, p := range s.procs {
		infos = append(infos, p.Snapshot())
	}
	return infos
}

// Terminate stops a process in two phases: the given signal first, then
// a kill after the grace period. Idempotent; terminating a process that
// already ended is a no-op. A nil sig defaults to SIGTERM.
func (s *Supervisor) Terminate(ctx context.Context, id string, sig os.Signal) error {
	p, err := s.Get(id)
	if err != nil {
		return err
	}
	if p.State().Terminal() {
		return nil
	}
	if sig == nil {
		sig = syscall.SIGTERM
	}

	p.markTerminateRequested()
	if err := p.proc.Signal(sig); err != nil {
		return fmt.Errorf("failed to signal process %s: %w", id, err)
	}

	select {
	case <-p.done:
	case <-time.After(s.opts.GracePeriod):
		logger.Info("process %s ignored %v, escalating to kill", id, sig)
		_ = p.proc.Kill()
		<-p.done
	case <-ctx.Done():
		_ = p.proc.Kill()
		<-p.done
	}
	return nil
}

// Restart launches a replacement for a process. The original keeps its
// id, state, and buffered output; the replacement gets a new id and a
// fresh sequence space, recording where it came from. A still-running
// original is terminated first.
func (s *Supervisor) Restart(ctx context.Context, id string) (*Process, error) {
	old, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	if !old.State().Terminal() {
		if err := s.Terminate(ctx, id, nil); err != nil {
			return nil, fmt.Errorf("failed to stop %s before restart: %w", id, err)
		}
	}
	return s.launch(ctx, old.Spec, id)
}

// Release removes a terminal process from the arena, freeing its ring
// buffers. Fails with ErrStillRunning for live processes.
func (s *Supervisor) Release(id string) error {
	p, err := s.Get(id)
	if err != nil {
		return err
	}
	if !p.State().Terminal() {
		return fmt.Errorf("%w: %s", ErrStillRunning, id)
	}

	s.mu.Lock()
	delete(s.procs, id)
	s.mu.Unlock()

	p.stdout.Clear()
	p.stderr.Clear()
	return nil
}

// emit publishes a lifecycle event without ever blocking the caller.
func (s *Supervisor) emit(p *Process, state State) {
	status := p.ExitStatus()
	ev := LifecycleEvent{
		ProcessID:     p.ID,
		State:         state,
		ExitCode:      status.Code,
		Signal:        status.Signal,
		RestartedFrom: p.RestartedFrom,
		Timestamp:     time.Now(),
	}
	select {
	case s.events <- ev:
	default:
		metrics.LifecycleEventsDropped.Inc()
		logger.Error("lifecycle event channel full, dropped %s for %s", state, p.ID)
	}
}
