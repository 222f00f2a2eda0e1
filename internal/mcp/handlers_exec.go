package mcp

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/yte121/openswarm/internal/audit"
	"github.com/yte121/openswarm/internal/gateway"
)

// ExecParams is the params struct for the exec tool
type ExecParams struct {
	Command          []string          `json:"command"`
	WorkingDirectory string            `json:"working_directory,omitempty"`
	Environment      map[string]string `json:"environment,omitempty"`
	MaxBufferChunks  int               `json:"max_buffer_chunks,omitempty"`
	MaxBufferBytes   int64             `json:"max_buffer_bytes,omitempty"`
	TimeoutSeconds   int               `json:"timeout_seconds,omitempty"`
}

// handleExec runs a command to completion and returns its captured output
func (s *Server) handleExec(ctx context.Context, request *mcp.CallToolRequest, params *ExecParams) (*mcp.CallToolResult, any, error) {
	authCtx, err := requireWriteAccess(ctx)
	if err != nil {
		return nil, nil, err
	}

	if len(params.Command) == 0 {
		return nil, nil, fmt.Errorf("command is required")
	}

	if params.TimeoutSeconds > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(params.TimeoutSeconds)*time.Second)
		defer cancel()
	}

	tokenID, tokenScope := getTokenInfo(authCtx)
	res, err := s.gateway.Execute(ctx, gateway.LaunchRequest{
		Command:          params.Command,
		WorkingDirectory: params.WorkingDirectory,
		Environment:      params.Environment,
		MaxBufferChunks:  params.MaxBufferChunks,
		MaxBufferBytes:   params.MaxBufferBytes,
	})
	if err != nil {
		audit.LogFailure(audit.OpProcessLaunch, tokenID, tokenScope, "", err)
		return nil, nil, SanitizeError(err, "exec")
	}
	audit.LogSuccess(audit.OpProcessLaunch, tokenID, tokenScope, res.ProcessID)

	var sb strings.Builder
	if res.ExitCode == 0 && res.Signal == "" {
		sb.WriteString(fmt.Sprintf("✅ Command finished (exit 0, %s)\n", res.Duration.Round(time.Millisecond)))
	} else if res.Signal != "" {
		sb.WriteString(fmt.Sprintf("⚠️  Command killed by %s (%s)\n", res.Signal, res.Duration.Round(time.Millisecond)))
	} else {
		sb.WriteString(fmt.Sprintf("⚠️  Command failed (exit %d, %s)\n", res.ExitCode, res.Duration.Round(time.Millisecond)))
	}
	if res.Stdout != "" {
		sb.WriteString("\nstdout:\n")
		sb.WriteString(res.Stdout)
	}
	if res.Stderr != "" {
		sb.WriteString("\nstderr:\n")
		sb.WriteString(res.Stderr)
	}
	if res.StdoutDropped > 0 || res.StderrDropped > 0 {
		sb.WriteString(fmt.Sprintf("\n⚠️  Output truncated: %d stdout and %d stderr chunks evicted from the buffer.",
			res.StdoutDropped, res.StderrDropped))
	}

	return NewTextResult(sb.String()), res, nil
}
