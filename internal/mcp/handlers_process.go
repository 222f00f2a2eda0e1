package mcp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"syscall"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/yte121/openswarm/internal/audit"
	"github.com/yte121/openswarm/internal/gateway"
	"github.com/yte121/openswarm/internal/process"
)

// ProcessParams is the unified params struct for the process tool
type ProcessParams struct {
	Action string `json:"action"` // Required: launch, list, get, interrupt, terminate, restart, release

	// For launch
	Command          []string          `json:"command,omitempty"`
	WorkingDirectory string            `json:"working_directory,omitempty"`
	Environment      map[string]string `json:"environment,omitempty"`
	MaxBufferChunks  int               `json:"max_buffer_chunks,omitempty"`
	MaxBufferBytes   int64             `json:"max_buffer_bytes,omitempty"`
	SubscriberPolicy string            `json:"subscriber_policy,omitempty"`

	// For get, interrupt, terminate, restart, release
	ProcessID string `json:"process_id,omitempty"`
}

var processActions = []string{"launch", "list", "get", "interrupt", "terminate", "restart", "release"}

// handleProcess is the unified handler for the process tool
func (s *Server) handleProcess(ctx context.Context, request *mcp.CallToolRequest, params *ProcessParams) (*mcp.CallToolResult, any, error) {
	if params.Action == "" {
		return nil, nil, missingActionError("process", processActions)
	}

	switch params.Action {
	case "launch":
		return s.processLaunch(ctx, params)
	case "list":
		return s.processList(ctx)
	case "get":
		return s.processGet(ctx, params)
	case "interrupt":
		return s.processInterrupt(ctx, params)
	case "terminate":
		return s.processTerminate(ctx, params)
	case "restart":
		return s.processRestart(ctx, params)
	case "release":
		return s.processRelease(ctx, params)
	default:
		return nil, nil, actionError("process", params.Action, processActions)
	}
}

func (s *Server) processLaunch(ctx context.Context, params *ProcessParams) (*mcp.CallToolResult, any, error) {
	authCtx, err := requireWriteAccess(ctx)
	if err != nil {
		return nil, nil, err
	}

	if len(params.Command) == 0 {
		return nil, nil, fmt.Errorf("command is required")
	}

	tokenID, tokenScope := getTokenInfo(authCtx)
	p, err := s.gateway.Stream(ctx, gateway.LaunchRequest{
		Command:          params.Command,
		WorkingDirectory: params.WorkingDirectory,
		Environment:      params.Environment,
		MaxBufferChunks:  params.MaxBufferChunks,
		MaxBufferBytes:   params.MaxBufferBytes,
		SubscriberPolicy: params.SubscriberPolicy,
	})
	if err != nil {
		audit.LogFailure(audit.OpProcessLaunch, tokenID, tokenScope, "", err)
		return nil, nil, SanitizeError(err, "process launch")
	}
	audit.LogSuccess(audit.OpProcessLaunch, tokenID, tokenScope, p.ID)

	info := p.Snapshot()
	result := "✅ Process launched!\n\n"
	result += fmt.Sprintf("Process ID: %s\n", info.ID)
	result += fmt.Sprintf("Command:    %s\n", strings.Join(info.Command, " "))
	result += fmt.Sprintf("State:      %s\n", info.State)
	result += "\nUse the stream tool with this process_id to read output."

	return NewTextResult(result), info, nil
}

func (s *Server) processList(ctx context.Context) (*mcp.CallToolResult, any, error) {
	if _, err := requireAuth(ctx); err != nil {
		return nil, nil, err
	}

	infos := s.gateway.List()
	if len(infos) == 0 {
		return NewTextResult("No processes found."), infos, nil
	}

	result := fmt.Sprintf("Found %d process(es):\n\n", len(infos))
	for _, info := range infos {
		result += fmt.Sprintf("• %s\n", info.ID)
		result += fmt.Sprintf("  Command: %s\n", strings.Join(info.Command, " "))
		result += fmt.Sprintf("  State:   %s\n", info.State)
		if info.State.Terminal() {
			result += fmt.Sprintf("  Exit:    code=%d", info.ExitCode)
			if info.Signal != "" {
				result += fmt.Sprintf(" signal=%s", info.Signal)
			}
			result += "\n"
		}
		result += "\n"
	}

	return NewTextResult(result), infos, nil
}

func (s *Server) processGet(ctx context.Context, params *ProcessParams) (*mcp.CallToolResult, any, error) {
	if _, err := requireAuth(ctx); err != nil {
		return nil, nil, err
	}
	if params.ProcessID == "" {
		return nil, nil, fmt.Errorf("process_id is required")
	}

	p, err := s.gateway.Get(params.ProcessID)
	if err != nil {
		return nil, nil, SanitizeError(err, "process get")
	}

	return nil, p.Snapshot(), nil
}

func (s *Server) processInterrupt(ctx context.Context, params *ProcessParams) (*mcp.CallToolResult, any, error) {
	if _, err := requireWriteAccess(ctx); err != nil {
		return nil, nil, err
	}
	if params.ProcessID == "" {
		return nil, nil, fmt.Errorf("process_id is required")
	}

	if err := s.gateway.Interrupt(ctx, params.ProcessID); err != nil {
		return nil, nil, SanitizeError(err, "process interrupt")
	}

	return NewTextResult(fmt.Sprintf("✅ Sent SIGINT to process %s.", params.ProcessID)), nil, nil
}

func (s *Server) processTerminate(ctx context.Context, params *ProcessParams) (*mcp.CallToolResult, any, error) {
	authCtx, err := requireWriteAccess(ctx)
	if err != nil {
		return nil, nil, err
	}
	if params.ProcessID == "" {
		return nil, nil, fmt.Errorf("process_id is required")
	}

	tokenID, tokenScope := getTokenInfo(authCtx)
	if err := s.gateway.Terminate(ctx, params.ProcessID, syscall.SIGTERM); err != nil {
		audit.LogFailure(audit.OpProcessTerminate, tokenID, tokenScope, params.ProcessID, err)
		return nil, nil, SanitizeError(err, "process terminate")
	}
	audit.LogSuccess(audit.OpProcessTerminate, tokenID, tokenScope, params.ProcessID)

	return NewTextResult(fmt.Sprintf("✅ Process %s terminated.", params.ProcessID)), nil, nil
}

func (s *Server) processRestart(ctx context.Context, params *ProcessParams) (*mcp.CallToolResult, any, error) {
	authCtx, err := requireWriteAccess(ctx)
	if err != nil {
		return nil, nil, err
	}
	if params.ProcessID == "" {
		return nil, nil, fmt.Errorf("process_id is required")
	}

	tokenID, tokenScope := getTokenInfo(authCtx)
	p, err := s.gateway.Restart(ctx, params.ProcessID)
	if err != nil {
		audit.LogFailure(audit.OpProcessRestart, tokenID, tokenScope, params.ProcessID, err)
		return nil, nil, SanitizeError(err, "process restart")
	}
	audit.LogSuccess(audit.OpProcessRestart, tokenID, tokenScope, p.ID)

	info := p.Snapshot()
	result := "✅ Process restarted!\n\n"
	result += fmt.Sprintf("New Process ID: %s\n", info.ID)
	result += fmt.Sprintf("Restarted From: %s\n", info.RestartedFrom)
	result += "\n⚠️  The old process keeps its id and buffers; stream from the new id for fresh output."

	return NewTextResult(result), info, nil
}

func (s *Server) processRelease(ctx context.Context, params *ProcessParams) (*mcp.CallToolResult, any, error) {
	if _, err := requireWriteAccess(ctx); err != nil {
		return nil, nil, err
	}
	if params.ProcessID == "" {
		return nil, nil, fmt.Errorf("process_id is required")
	}

	if err := s.gateway.Release(params.ProcessID); err != nil {
		if errors.Is(err, process.ErrStillRunning) {
			return nil, nil, fmt.Errorf("process %s is still running; terminate it first", params.ProcessID)
		}
		return nil, nil, SanitizeError(err, "process release")
	}

	return NewTextResult(fmt.Sprintf("✅ Process %s released, buffers reclaimed.", params.ProcessID)), nil, nil
}
