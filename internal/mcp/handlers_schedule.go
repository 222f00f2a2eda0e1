package mcp

import (
	"context"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/yte121/openswarm/internal/audit"
	"github.com/yte121/openswarm/internal/schedule"
)

// ScheduleParams is the unified params struct for the schedule tool
type ScheduleParams struct {
	Action string `json:"action"` // Required: create, list, get, update, delete, trigger, history

	ScheduleID string `json:"schedule_id,omitempty"`

	// For create and update
	Name            string            `json:"name,omitempty"`
	CronExpr        string            `json:"cron_expr,omitempty"`
	Command         []string          `json:"command,omitempty"`
	WorkingDir      string            `json:"working_dir,omitempty"`
	Environment     map[string]string `json:"environment,omitempty"`
	Enabled         *bool             `json:"enabled,omitempty"`
	OverlapBehavior string            `json:"overlap_behavior,omitempty"`

	// For history
	Limit int `json:"limit,omitempty"`
}

var scheduleActions = []string{"create", "list", "get", "update", "delete", "trigger", "history"}

// handleSchedule is the unified handler for the schedule tool
func (s *Server) handleSchedule(ctx context.Context, request *mcp.CallToolRequest, params *ScheduleParams) (*mcp.CallToolResult, any, error) {
	if s.scheduleStore == nil {
		return nil, nil, fmt.Errorf("scheduling is not enabled on this server")
	}
	if params.Action == "" {
		return nil, nil, missingActionError("schedule", scheduleActions)
	}

	switch params.Action {
	case "create":
		return s.scheduleCreate(ctx, params)
	case "list":
		return s.scheduleList(ctx)
	case "get":
		return s.scheduleGet(ctx, params)
	case "update":
		return s.scheduleUpdate(ctx, params)
	case "delete":
		return s.scheduleDelete(ctx, params)
	case "trigger":
		return s.scheduleTrigger(ctx, params)
	case "history":
		return s.scheduleHistory(ctx, params)
	default:
		return nil, nil, actionError("schedule", params.Action, scheduleActions)
	}
}

func (s *Server) scheduleCreate(ctx context.Context, params *ScheduleParams) (*mcp.CallToolResult, any, error) {
	authCtx, err := requireWriteAccess(ctx)
	if err != nil {
		return nil, nil, err
	}

	if params.Name == "" {
		return nil, nil, fmt.Errorf("name is required")
	}
	if params.CronExpr == "" {
		return nil, nil, fmt.Errorf("cron_expr is required")
	}
	if len(params.Command) == 0 {
		return nil, nil, fmt.Errorf("command is required")
	}

	behavior := schedule.OverlapBehavior(params.OverlapBehavior)
	if behavior == "" {
		behavior = schedule.OverlapSkip
	}
	if !schedule.IsValidOverlapBehavior(behavior) {
		return nil, nil, fmt.Errorf("invalid overlap_behavior '%s'; valid: skip, parallel", params.OverlapBehavior)
	}

	enabled := true
	if params.Enabled != nil {
		enabled = *params.Enabled
	}

	tokenID, tokenScope := getTokenInfo(authCtx)
	sched := &schedule.Schedule{
		Name:            params.Name,
		CronExpr:        params.CronExpr,
		Command:         params.Command,
		WorkingDir:      params.WorkingDir,
		Environment:     params.Environment,
		Enabled:         enabled,
		OverlapBehavior: behavior,
		CreatorTokenID:  tokenID,
	}
	if err := s.scheduleStore.Create(sched); err != nil {
		audit.LogFailure(audit.OpScheduleCreate, tokenID, tokenScope, "", err)
		return nil, nil, SanitizeError(err, "schedule create")
	}

	audit.Log(&audit.Event{
		Operation:  audit.OpScheduleCreate,
		TokenID:    tokenID,
		TokenScope: tokenScope,
		Success:    true,
		Details:    map[string]interface{}{"schedule_id": sched.ID, "cron_expr": sched.CronExpr},
	})

	result := "✅ Schedule created!\n\n"
	result += fmt.Sprintf("Schedule ID: %s\n", sched.ID)
	result += fmt.Sprintf("Name:        %s\n", sched.Name)
	result += fmt.Sprintf("Cron:        %s\n", sched.CronExpr)
	result += fmt.Sprintf("Command:     %s\n", strings.Join(sched.Command, " "))
	if sched.NextRunAt != nil {
		result += fmt.Sprintf("Next Run:    %s\n", sched.NextRunAt.Format("2006-01-02 15:04"))
	}

	return NewTextResult(result), sched, nil
}

func (s *Server) scheduleList(ctx context.Context) (*mcp.CallToolResult, any, error) {
	if _, err := requireAuth(ctx); err != nil {
		return nil, nil, err
	}

	schedules, err := s.scheduleStore.List(nil)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list schedules: %w", err)
	}

	if len(schedules) == 0 {
		return NewTextResult("No schedules found."), schedules, nil
	}

	result := fmt.Sprintf("Found %d schedule(s):\n\n", len(schedules))
	for _, sched := range schedules {
		status := "enabled"
		if !sched.Enabled {
			status = "disabled"
		}
		result += fmt.Sprintf("• %s (%s)\n", sched.ID, status)
		result += fmt.Sprintf("  Name:    %s\n", sched.Name)
		result += fmt.Sprintf("  Cron:    %s\n", sched.CronExpr)
		result += fmt.Sprintf("  Command: %s\n", strings.Join(sched.Command, " "))
		if sched.NextRunAt != nil {
			result += fmt.Sprintf("  Next:    %s\n", sched.NextRunAt.Format("2006-01-02 15:04"))
		}
		result += "\n"
	}

	return NewTextResult(result), schedules, nil
}

func (s *Server) scheduleGet(ctx context.Context, params *ScheduleParams) (*mcp.CallToolResult, any, error) {
	if _, err := requireAuth(ctx); err != nil {
		return nil, nil, err
	}
	if params.ScheduleID == "" {
		return nil, nil, fmt.Errorf("schedule_id is required")
	}

	sched, err := s.scheduleStore.Get(params.ScheduleID)
	if err != nil {
		return nil, nil, SanitizeError(err, "schedule get")
	}

	return nil, sched, nil
}

func (s *Server) scheduleUpdate(ctx context.Context, params *ScheduleParams) (*mcp.CallToolResult, any, error) {
	if _, err := requireWriteAccess(ctx); err != nil {
		return nil, nil, err
	}
	if params.ScheduleID == "" {
		return nil, nil, fmt.Errorf("schedule_id is required")
	}

	update := &schedule.ScheduleUpdate{
		Command:     params.Command,
		Environment: params.Environment,
		Enabled:     params.Enabled,
	}
	if params.Name != "" {
		update.Name = &params.Name
	}
	if params.CronExpr != "" {
		update.CronExpr = &params.CronExpr
	}
	if params.WorkingDir != "" {
		update.WorkingDir = &params.WorkingDir
	}
	if params.OverlapBehavior != "" {
		behavior := schedule.OverlapBehavior(params.OverlapBehavior)
		if !schedule.IsValidOverlapBehavior(behavior) {
			return nil, nil, fmt.Errorf("invalid overlap_behavior '%s'; valid: skip, parallel", params.OverlapBehavior)
		}
		update.OverlapBehavior = &behavior
	}

	if err := s.scheduleStore.Update(params.ScheduleID, update); err != nil {
		return nil, nil, SanitizeError(err, "schedule update")
	}

	sched, err := s.scheduleStore.Get(params.ScheduleID)
	if err != nil {
		return nil, nil, SanitizeError(err, "schedule update")
	}

	return NewTextResult(fmt.Sprintf("✅ Schedule %s updated.", params.ScheduleID)), sched, nil
}

func (s *Server) scheduleDelete(ctx context.Context, params *ScheduleParams) (*mcp.CallToolResult, any, error) {
	authCtx, err := requireWriteAccess(ctx)
	if err != nil {
		return nil, nil, err
	}
	if params.ScheduleID == "" {
		return nil, nil, fmt.Errorf("schedule_id is required")
	}

	tokenID, tokenScope := getTokenInfo(authCtx)
	if err := s.scheduleStore.Delete(params.ScheduleID); err != nil {
		audit.LogFailure(audit.OpScheduleDelete, tokenID, tokenScope, "", err)
		return nil, nil, SanitizeError(err, "schedule delete")
	}

	audit.Log(&audit.Event{
		Operation:  audit.OpScheduleDelete,
		TokenID:    tokenID,
		TokenScope: tokenScope,
		Success:    true,
		Details:    map[string]interface{}{"schedule_id": params.ScheduleID},
	})

	return NewTextResult(fmt.Sprintf("✅ Schedule %s deleted.", params.ScheduleID)), nil, nil
}

func (s *Server) scheduleTrigger(ctx context.Context, params *ScheduleParams) (*mcp.CallToolResult, any, error) {
	if _, err := requireWriteAccess(ctx); err != nil {
		return nil, nil, err
	}
	if params.ScheduleID == "" {
		return nil, nil, fmt.Errorf("schedule_id is required")
	}
	if s.scheduleRunner == nil {
		return nil, nil, fmt.Errorf("schedule runner is not running")
	}

	sched, err := s.scheduleStore.Get(params.ScheduleID)
	if err != nil {
		return nil, nil, SanitizeError(err, "schedule trigger")
	}

	processID, err := s.scheduleRunner.TriggerNow(sched)
	if err != nil {
		return nil, nil, SanitizeError(err, "schedule trigger")
	}

	result := "✅ Schedule triggered!\n\n"
	result += fmt.Sprintf("Schedule:   %s\n", sched.Name)
	result += fmt.Sprintf("Process ID: %s\n", processID)
	result += "\nUse the stream tool with this process_id to read output."

	return NewTextResult(result), nil, nil
}

func (s *Server) scheduleHistory(ctx context.Context, params *ScheduleParams) (*mcp.CallToolResult, any, error) {
	if _, err := requireAuth(ctx); err != nil {
		return nil, nil, err
	}
	if params.ScheduleID == "" {
		return nil, nil, fmt.Errorf("schedule_id is required")
	}

	execs, err := s.scheduleStore.ListExecutions(params.ScheduleID, params.Limit)
	if err != nil {
		return nil, nil, SanitizeError(err, "schedule history")
	}

	if len(execs) == 0 {
		return NewTextResult("No executions recorded."), execs, nil
	}

	result := fmt.Sprintf("Last %d execution(s):\n\n", len(execs))
	for _, e := range execs {
		result += fmt.Sprintf("• %s  %s", e.ExecutedAt.Format("2006-01-02 15:04:05"), e.Status)
		if e.ProcessID != "" {
			result += fmt.Sprintf("  process=%s", e.ProcessID)
		}
		if e.Error != "" {
			result += fmt.Sprintf("  error=%s", e.Error)
		}
		result += "\n"
	}

	return NewTextResult(result), execs, nil
}
