package gateway

import (
	"context"
	"fmt"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/yte121/openswarm/internal/audit"
	"github.com/yte121/openswarm/internal/buffer"
	"github.com/yte121/openswarm/internal/process"
	"github.com/yte121/openswarm/internal/stream"
)

// Gateway is the externally facing entry point for launching processes
// and attaching observers. Every handle it returns corresponds to
// exactly one managed process; a restarted process is a new handle,
// never a mutation of the old one.
type Gateway struct {
	sup *process.Supervisor
	mux *stream.Multiplexer
}

// New wires a gateway over a supervisor and multiplexer. The caller is
// responsible for running the multiplexer against the supervisor's
// event channel.
func New(sup *process.Supervisor, mux *stream.Multiplexer) *Gateway {
	return &Gateway{sup: sup, mux: mux}
}

// LaunchRequest describes a process to run.
type LaunchRequest struct {
	Command          []string          `json:"command"`
	WorkingDirectory string            `json:"workingDirectory,omitempty"`
	Environment      map[string]string `json:"environment,omitempty"`
	MaxBufferChunks  int               `json:"maxBufferChunks,omitempty"`
	MaxBufferBytes   int64             `json:"maxBufferBytes,omitempty"`
	SubscriberPolicy string            `json:"subscriberPolicy,omitempty"`
}

func (r LaunchRequest) spec() process.Spec {
	return process.Spec{
		Command:          r.Command,
		WorkingDir:       r.WorkingDirectory,
		Environment:      r.Environment,
		MaxBufferChunks:  r.MaxBufferChunks,
		MaxBufferBytes:   r.MaxBufferBytes,
		SubscriberPolicy: r.SubscriberPolicy,
	}
}

// ExecuteResult is the outcome of a run-to-completion execution. A
// crash without an exit code reports Code -1 plus the signal name.
// Dropped counts are nonzero when output outran the buffer bounds.
type ExecuteResult struct {
	ProcessID     string        `json:"processId"`
	State         process.State `json:"state"`
	ExitCode      int           `json:"exitCode"`
	Signal        string        `json:"signal,omitempty"`
	Stdout        string        `json:"stdout"`
	Stderr        string        `json:"stderr"`
	StdoutDropped int64         `json:"stdoutDropped,omitempty"`
	StderrDropped int64         `json:"stderrDropped,omitempty"`
	Duration      time.Duration `json:"duration"`
}

// Execute launches a process, waits for it to finish, and returns the
// final status with the full captured output of both streams.
func (g *Gateway) Execute(ctx context.Context, req LaunchRequest) (*ExecuteResult, error) {
	if _, err := stream.ParsePolicy(req.SubscriberPolicy); err != nil {
		return nil, err
	}

	p, err := g.sup.Launch(ctx, req.spec())
	if err != nil {
		audit.LogFailure(audit.OpProcessLaunch, "", "", "", err)
		return nil, err
	}
	audit.LogSuccess(audit.OpProcessLaunch, "", "", p.ID)

	stdout, stdoutDropped, err := g.collect(p, buffer.StreamStdout)
	if err != nil {
		return nil, err
	}
	stderr, stderrDropped, err := g.collect(p, buffer.StreamStderr)
	if err != nil {
		return nil, err
	}

	select {
	case <-p.Done():
	case <-ctx.Done():
		_ = g.sup.Terminate(context.Background(), p.ID, nil)
		return nil, ctx.Err()
	}

	status := p.ExitStatus()
	return &ExecuteResult{
		ProcessID:     p.ID,
		State:         p.State(),
		ExitCode:      status.Code,
		Signal:        status.Signal,
		Stdout:        <-stdout,
		Stderr:        <-stderr,
		StdoutDropped: <-stdoutDropped,
		StderrDropped: <-stderrDropped,
		Duration:      time.Since(p.StartTime),
	}, nil
}

// collect subscribes to one stream and accumulates everything up to the
// terminal marker in the background.
func (g *Gateway) collect(p *process.Process, kind buffer.StreamKind) (<-chan string, <-chan int64, error) {
	ring, err := p.Ring(kind)
	if err != nil {
		return nil, nil, err
	}
	// Subscribe from the first sequence, not the oldest retained one,
	// so chunks already evicted surface as a gap in the drop count.
	origin := int64(0)
	sub, err := g.mux.Subscribe(ring, stream.SubscribeOptions{From: &origin})
	if err != nil {
		return nil, nil, err
	}

	text := make(chan string, 1)
	dropped := make(chan int64, 1)
	go func() {
		defer g.mux.Unsubscribe(sub.ClientID)
		var out strings.Builder
		var drops int64
		for msg := range sub.Messages() {
			drops += msg.DroppedCount
			switch msg.Type {
			case stream.TypeData:
				out.WriteString(msg.Payload)
			case stream.TypeEOF:
				text <- out.String()
				dropped <- drops
				return
			}
		}
		text <- out.String()
		dropped <- drops
	}()
	return text, dropped, nil
}

// Stream launches a process and returns its handle immediately. The
// caller attaches observers via Subscribe.
func (g *Gateway) Stream(ctx context.Context, req LaunchRequest) (*process.Process, error) {
	if _, err := stream.ParsePolicy(req.SubscriberPolicy); err != nil {
		return nil, err
	}
	p, err := g.sup.Launch(ctx, req.spec())
	if err != nil {
		audit.LogFailure(audit.OpProcessLaunch, "", "", "", err)
		return nil, err
	}
	audit.LogSuccess(audit.OpProcessLaunch, "", "", p.ID)
	return p, nil
}

// Subscribe attaches an observer to one stream of a process. The
// process's own subscriber policy applies unless opts overrides it.
func (g *Gateway) Subscribe(processID string, kind buffer.StreamKind, opts stream.SubscribeOptions) (*stream.Subscriber, error) {
	if !buffer.IsValidStreamKind(kind) {
		return nil, fmt.Errorf("unknown stream kind %q", kind)
	}
	p, err := g.sup.Get(processID)
	if err != nil {
		return nil, err
	}
	ring, err := p.Ring(kind)
	if err != nil {
		return nil, err
	}
	if opts.Policy == "" {
		opts.Policy = stream.Policy(p.Spec.SubscriberPolicy)
	}
	return g.mux.Subscribe(ring, opts)
}

// Unsubscribe detaches one observer.
func (g *Gateway) Unsubscribe(clientID string) error {
	return g.mux.Unsubscribe(clientID)
}

// Interrupt delivers the conventional interrupt signal, escalating to a
// kill after the grace period.
func (g *Gateway) Interrupt(ctx context.Context, processID string) error {
	err := g.sup.Terminate(ctx, processID, syscall.SIGINT)
	if err != nil {
		audit.LogFailure(audit.OpProcessTerminate, "", "", processID, err)
		return err
	}
	audit.LogSuccess(audit.OpProcessTerminate, "", "", processID)
	return nil
}

// Terminate stops a process with the given signal (SIGTERM when nil).
func (g *Gateway) Terminate(ctx context.Context, processID string, sig os.Signal) error {
	err := g.sup.Terminate(ctx, processID, sig)
	if err != nil {
		audit.LogFailure(audit.OpProcessTerminate, "", "", processID, err)
		return err
	}
	audit.LogSuccess(audit.OpProcessTerminate, "", "", processID)
	return nil
}

// Restart launches a replacement process and returns the new handle.
func (g *Gateway) Restart(ctx context.Context, processID string) (*process.Process, error) {
	p, err := g.sup.Restart(ctx, processID)
	if err != nil {
		audit.LogFailure(audit.OpProcessRestart, "", "", processID, err)
		return nil, err
	}
	audit.LogSuccess(audit.OpProcessRestart, "", "", p.ID)
	return p, nil
}

// Get returns a process handle by id.
func (g *Gateway) Get(processID string) (*process.Process, error) {
	return g.sup.Get(processID)
}

// List returns snapshots of all managed processes.
func (g *Gateway) List() []process.Info {
	return g.sup.List()
}

// SubscriberCount reports how many observers a process currently has.
func (g *Gateway) SubscriberCount(processID string) int {
	return g.mux.SubscriberCount(processID)
}

// Release frees a terminal, unobserved process. Used by the cleanup
// reaper once the retention window elapses.
func (g *Gateway) Release(processID string) error {
	return g.sup.Release(processID)
}
