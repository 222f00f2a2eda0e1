package process

import (
	"errors"
	"fmt"
	"time"
)

// State tracks a managed process through its lifecycle.
//
//	Starting → Running → Exited | Crashed | Terminated
//
// Exited, Crashed, and Terminated are terminal. A restart never revives
// a terminal process; it creates a new one with a fresh id.
type State string

const (
	StateStarting   State = "starting"
	StateRunning    State = "running"
	StateExited     State = "exited"
	StateCrashed    State = "crashed"
	StateTerminated State = "terminated"
)

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool {
	switch s {
	case StateExited, StateCrashed, StateTerminated:
		return true
	}
	return false
}

var (
	// ErrNotFound is returned when a process id is not in the arena.
	ErrNotFound = errors.New("process not found")

	// ErrStillRunning is returned when an operation requires a terminal
	// process (release) but the process is still alive.
	ErrStillRunning = errors.New("process is still running")
)

// LaunchError reports that the OS process could not be started. No
// managed process exists after a launch error.
type LaunchError struct {
	Command string
	Err     error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("failed to launch %q: %v", e.Command, e.Err)
}

func (e *LaunchError) Unwrap() error {
	return e.Err
}

// ExitStatus describes how a process ended. Signal is the name of the
// terminating signal when the process did not exit on its own, in which
// case Code is -1.
type ExitStatus struct {
	Code   int    `json:"code"`
	Signal string `json:"signal,omitempty"`
}

// Spec describes a process to launch.
type Spec struct {
	Command          []string          `json:"command"`
	WorkingDir       string            `json:"working_directory,omitempty"`
	Environment      map[string]string `json:"environment,omitempty"`
	MaxBufferChunks  int               `json:"max_buffer_chunks,omitempty"`
	MaxBufferBytes   int64             `json:"max_buffer_bytes,omitempty"`
	SubscriberPolicy string            `json:"subscriber_policy,omitempty"`
}

// LifecycleEvent is the control-plane record of a state transition. It
// travels on the supervisor's event channel, never through the data
// rings, so subscribers learn about exits independent of the byte
// stream.
type LifecycleEvent struct {
	ProcessID     string    `json:"process_id"`
	State         State     `json:"state"`
	ExitCode      int       `json:"exit_code"`
	Signal        string    `json:"signal,omitempty"`
	RestartedFrom string    `json:"restarted_from,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

// Info is a point-in-time snapshot of a managed process, safe to
// serialize while the process keeps running.
type Info struct {
	ID            string    `json:"id"`
	Command       []string  `json:"command"`
	WorkingDir    string    `json:"working_directory,omitempty"`
	State         State     `json:"state"`
	ExitCode      int       `json:"exit_code"`
	Signal        string    `json:"signal,omitempty"`
	StartTime     time.Time `json:"start_time"`
	EndTime       time.Time `json:"end_time,omitzero"`
	RestartedFrom string    `json:"restarted_from,omitempty"`
	Policy        string    `json:"subscriber_policy,omitempty"`
}
