package mcp

import "github.com/yte121/openswarm/internal/auth"

// IsToolAllowed checks if a tool is allowed for a given token scope
func IsToolAllowed(tool *ToolDef, tokenScope string) bool {
	if !auth.IsValidScope(tokenScope) {
		return false
	}

	// Admin-only tools (token management) require full admin
	if tool.Access == AccessAdmin {
		return tokenScope == auth.ScopeAdmin
	}

	// Write access check - read-only tokens can't write
	if tool.Access == AccessWrite && auth.IsReadOnlyScope(tokenScope) {
		return false
	}

	return true
}
