package mcp

import (
	"fmt"
	"strings"
)

// actionError rejects an unrecognized action, listing what the tool accepts.
func actionError(tool, action string, valid []string) error {
	return fmt.Errorf("unknown action '%s' for %s tool; valid actions: %s", action, tool, strings.Join(valid, ", "))
}

// missingActionError rejects a call that omitted the action parameter.
func missingActionError(tool string, valid []string) error {
	return fmt.Errorf("action parameter is required for %s tool; valid actions: %s", tool, strings.Join(valid, ", "))
}
