// Package docker provides a process.Launcher that runs each command in
// its own container instead of directly on the host. Output capture,
// buffering, and fan-out are identical to the local launcher; only the
// spawn mechanism differs.
package docker

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"syscall"
	"time"

	"github.com/docker/docker/api/types"
	dockercontainer "github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"

	"github.com/yte121/openswarm/internal/process"
)

// Options configures the containers launched for processes.
type Options struct {
	// Image is the container image every process runs in. Required.
	Image string

	// NetworkMode is passed through to the container host config.
	NetworkMode string

	// Memory caps container memory, e.g. "512M" or "2G".
	Memory string

	// CPUs caps container CPU count. 0 means unlimited.
	CPUs int
}

// Launcher starts one container per launched process.
type Launcher struct {
	client *client.Client
	opts   Options
}

// NewLauncher connects to the Docker daemon using the standard
// environment configuration.
func NewLauncher(opts Options) (*Launcher, error) {
	if opts.Image == "" {
		return nil, fmt.Errorf("docker launcher requires an image")
	}
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}
	return &Launcher{client: cli, opts: opts}, nil
}

// Ping verifies connectivity to the Docker daemon.
func (l *Launcher) Ping(ctx context.Context) error {
	_, err := l.client.Ping(ctx)
	return err
}

// Close closes the Docker client connection.
func (l *Launcher) Close() error {
	return l.client.Close()
}

// Start creates and starts a container running the spec's command,
// attached so both output streams can be captured.
func (l *Launcher) Start(ctx context.Context, spec process.Spec) (process.Proc, error) {
	if len(spec.Command) == 0 {
		return nil, &process.LaunchError{Err: fmt.Errorf("empty command")}
	}

	env := make([]string, 0, len(spec.Environment))
	for k, v := range spec.Environment {
		env = append(env, k+"="+v)
	}

	containerConfig := &dockercontainer.Config{
		Image:      l.opts.Image,
		Cmd:        spec.Command,
		Env:        env,
		WorkingDir: spec.WorkingDir,
		Labels:     map[string]string{"openswarm.managed": "true"},
		Tty:        false,
	}
	hostConfig := &dockercontainer.HostConfig{
		NetworkMode: dockercontainer.NetworkMode(l.opts.NetworkMode),
		Resources:   buildResourceConstraints(l.opts.Memory, l.opts.CPUs),
	}

	resp, err := l.client.ContainerCreate(ctx, containerConfig, hostConfig, nil, nil, "")
	if err != nil {
		return nil, &process.LaunchError{Command: spec.Command[0], Err: err}
	}

	// Attach before starting so no output is lost.
	attachResp, err := l.client.ContainerAttach(ctx, resp.ID, dockercontainer.AttachOptions{
		Stream: true,
		Stdout: true,
		Stderr: true,
	})
	if err != nil {
		_ = l.client.ContainerRemove(context.Background(), resp.ID, dockercontainer.RemoveOptions{Force: true})
		return nil, &process.LaunchError{Command: spec.Command[0], Err: err}
	}

	if err := l.client.ContainerStart(ctx, resp.ID, dockercontainer.StartOptions{}); err != nil {
		attachResp.Close()
		_ = l.client.ContainerRemove(context.Background(), resp.ID, dockercontainer.RemoveOptions{Force: true})
		return nil, &process.LaunchError{Command: spec.Command[0], Err: err}
	}

	// Demux the multiplexed attach stream into per-kind pipes. The
	// writers close when the container exits and the stream ends, which
	// is what lets the interceptors observe end-of-data.
	stdoutReader, stdoutWriter := io.Pipe()
	stderrReader, stderrWriter := io.Pipe()
	go func() {
		defer func() { _ = stdoutWriter.Close() }()
		defer func() { _ = stderrWriter.Close() }()
		_, _ = stdcopy.StdCopy(stdoutWriter, stderrWriter, attachResp.Reader)
	}()

	pid := 0
	if inspect, err := l.client.ContainerInspect(ctx, resp.ID); err == nil && inspect.State != nil {
		pid = inspect.State.Pid
	}

	return &containerProc{
		client:      l.client,
		containerID: resp.ID,
		attach:      attachResp,
		stdout:      stdoutReader,
		stderr:      stderrReader,
		pid:         pid,
	}, nil
}

type containerProc struct {
	client      *client.Client
	containerID string
	attach      types.HijackedResponse
	stdout      io.Reader
	stderr      io.Reader
	pid         int
}

func (p *containerProc) PID() int          { return p.pid }
func (p *containerProc) Stdout() io.Reader { return p.stdout }
func (p *containerProc) Stderr() io.Reader { return p.stderr }

// Signal forwards sig to the container's init process. Docker accepts
// numeric signal strings, which avoids name mapping.
func (p *containerProc) Signal(sig os.Signal) error {
	num, ok := sig.(syscall.Signal)
	if !ok {
		return fmt.Errorf("unsupported signal %v", sig)
	}
	err := p.client.ContainerKill(context.Background(), p.containerID, strconv.Itoa(int(num)))
	if err != nil && client.IsErrNotFound(err) {
		return nil
	}
	return err
}

func (p *containerProc) Kill() error {
	err := p.client.ContainerKill(context.Background(), p.containerID, "KILL")
	if err != nil && client.IsErrNotFound(err) {
		return nil
	}
	return err
}

// Wait polls until the container stops, then reads the exit code and
// removes the container.
func (p *containerProc) Wait() (process.ExitStatus, error) {
	ctx := context.Background()
	defer p.attach.Close()

	for {
		inspect, err := p.client.ContainerInspect(ctx, p.containerID)
		if err != nil {
			return process.ExitStatus{Code: -1}, fmt.Errorf("failed to inspect container: %w", err)
		}
		if inspect.State != nil && !inspect.State.Running {
			code := inspect.State.ExitCode
			_ = p.client.ContainerRemove(ctx, p.containerID, dockercontainer.RemoveOptions{Force: true})
			status := process.ExitStatus{Code: code}
			// Container runtimes report signal deaths as 128+n.
			if code > 128 && code < 160 {
				status.Code = -1
				status.Signal = syscall.Signal(code - 128).String()
			}
			return status, nil
		}
		time.Sleep(100 * time.Millisecond)
	}
}

func buildResourceConstraints(memory string, cpus int) dockercontainer.Resources {
	resources := dockercontainer.Resources{}
	if memory != "" {
		if memBytes := parseMemoryString(memory); memBytes > 0 {
			resources.Memory = memBytes
		}
	}
	if cpus > 0 {
		resources.NanoCPUs = int64(cpus) * 1e9
	}
	return resources
}

// parseMemoryString converts memory strings like "4G", "2048M" to bytes
func parseMemoryString(mem string) int64 {
	if mem == "" {
		return 0
	}

	var multiplier int64 = 1
	numStr := mem

	if len(mem) > 1 {
		suffix := mem[len(mem)-1]
		switch suffix {
		case 'K', 'k':
			multiplier = 1024
			numStr = mem[:len(mem)-1]
		case 'M', 'm':
			multiplier = 1024 * 1024
			numStr = mem[:len(mem)-1]
		case 'G', 'g':
			multiplier = 1024 * 1024 * 1024
			numStr = mem[:len(mem)-1]
		case 'T', 't':
			multiplier = 1024 * 1024 * 1024 * 1024
			numStr = mem[:len(mem)-1]
		}
	}

	var value int64
	_, _ = fmt.Sscanf(numStr, "%d", &value)
	return value * multiplier
}
