package mcp

// registerAllTools registers all MCP tools with the registry
func (s *Server) registerAllTools(r *Registry) {
	s.registerProcessTools(r)
	s.registerStreamTools(r)
	s.registerScheduleTools(r)
	s.registerTokenTools(r)
}

func (s *Server) registerProcessTools(r *Registry) {
	Register(r, ToolDef{
		Name: "process",
		Description: `Manage captured processes - launch commands and control their lifecycle.

Actions:
  launch    - Launch a command with output capture. Requires command (string array).
  list      - List all managed processes. No parameters required.
  get       - Get a process snapshot by process_id.
  interrupt - Send SIGINT to a running process. Requires process_id.
  terminate - Send SIGTERM and wait for exit. Requires process_id.
  restart   - Launch a fresh process with the same spec. Returns a new process_id.
  release   - Reclaim buffers of a finished process. Requires process_id.

Key parameters (launch):
  command           - Argv to run, e.g. ["npm", "test"] (required)
  working_directory - Directory for the process
  environment       - Extra environment variables (map)
  max_buffer_chunks - Ring buffer bound per stream (default: 1000)
  max_buffer_bytes  - Byte bound per stream (0 = chunks only)
  subscriber_policy - "drop-oldest" (default) or "disconnect-on-overflow"`,
		Target: TargetGlobal,
		Access: AccessWrite,
	}, s.handleProcess)

	Register(r, ToolDef{
		Name: "exec",
		Description: `Run a command to completion and return its captured output in one call.

Blocks until the process exits. Returns exit code, signal (if killed), and the
full filtered stdout and stderr. Long or unbounded commands should use the
process tool with streaming instead. Set timeout_seconds to bound the wait.`,
		Target: TargetGlobal,
		Access: AccessWrite,
	}, s.handleExec)
}

func (s *Server) registerStreamTools(r *Registry) {
	Register(r, ToolDef{
		Name: "stream",
		Description: `Read buffered output from a managed process.

Actions:
  read  - Return chunks with sequence >= since_sequence. Requires process_id.
          Pass the returned next_sequence on the next call to poll incrementally.
          If requested chunks were evicted, the result carries a gap record and
          resumes from the oldest retained sequence.
  stats - Ring buffer occupancy and subscriber count for a stream.

Key parameters:
  process_id     - Target process (required)
  stream         - "stdout" (default) or "stderr"
  since_sequence - First sequence to return (read)
  max_chunks     - Cap on returned chunks (read)`,
		Target: TargetProcess,
		Access: AccessRead,
	}, s.handleStream)
}

func (s *Server) registerScheduleTools(r *Registry) {
	Register(r, ToolDef{
		Name: "schedule",
		Description: `Manage cron schedules that launch commands automatically.

Actions:
  create  - Create a schedule. Requires name, cron_expr (5-field), command.
  list    - List all schedules.
  get     - Get schedule details by schedule_id.
  update  - Update fields of a schedule. Requires schedule_id.
  delete  - Delete a schedule and its history. Requires schedule_id.
  trigger - Launch the schedule's command immediately. Requires schedule_id.
  history - List recent executions. Requires schedule_id, optional limit.

Overlap behavior: "skip" (default) skips a run while the previous is active,
"parallel" allows concurrent runs.`,
		Target: TargetGlobal,
		Access: AccessWrite,
	}, s.handleSchedule)
}

func (s *Server) registerTokenTools(r *Registry) {
	Register(r, ToolDef{
		Name: "token",
		Description: `Manage API tokens (admin only).

Actions:
  create - Create a token. Requires name and scope ("admin" or "admin:ro").
  list   - List tokens (masked).
  revoke - Revoke a token by token_id.

The token value is returned once at creation and cannot be retrieved later.`,
		Target: TargetGlobal,
		Access: AccessAdmin,
	}, s.handleToken)
}
