package mcp

// ToolTarget defines what a tool operates on
type ToolTarget string

const (
	// TargetGlobal - tool operates system-wide (e.g., token_create)
	TargetGlobal ToolTarget = "global"
	// TargetProcess - tool operates on a specific managed process
	TargetProcess ToolTarget = "process"
)

// ToolAccess defines the access level required for a tool
type ToolAccess string

const (
	// AccessRead - read-only operation
	AccessRead ToolAccess = "read"
	// AccessWrite - modifies data
	AccessWrite ToolAccess = "write"
	// AccessAdmin - admin-only (token management)
	AccessAdmin ToolAccess = "admin"
)
