package validation

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	// UUIDRegex matches standard UUID format
	uuidRegex = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)

	// envNameRegex matches POSIX environment variable names
	envNameRegex = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
)

// ValidateUUID checks if the string is a valid UUID
func ValidateUUID(id string) error {
	if id == "" {
		return fmt.Errorf("ID cannot be empty")
	}
	if !uuidRegex.MatchString(id) {
		return fmt.Errorf("invalid UUID format: %s", id)
	}
	return nil
}

// ValidateProcessID validates a process ID
func ValidateProcessID(id string) error {
	return ValidateUUID(id)
}

// ValidateCommand checks that an argv is non-empty and contains no
// empty or NUL-bearing arguments.
func ValidateCommand(command []string) error {
	if len(command) == 0 {
		return fmt.Errorf("command cannot be empty")
	}
	if command[0] == "" {
		return fmt.Errorf("command name cannot be empty")
	}
	for i, arg := range command {
		if strings.ContainsRune(arg, 0) {
			return fmt.Errorf("command argument %d contains NUL byte", i)
		}
	}
	return nil
}

// ValidateEnvironment checks environment variable names
func ValidateEnvironment(env map[string]string) error {
	for name := range env {
		if !envNameRegex.MatchString(name) {
			return fmt.Errorf("invalid environment variable name: %s", name)
		}
	}
	return nil
}

// ValidateContainerID validates a container ID (hex string)
func ValidateContainerID(id string) error {
	if id == "" {
		return fmt.Errorf("container ID cannot be empty")
	}

	// Container IDs are hex strings, typically 64 chars but can be shorter for short IDs
	if len(id) < 12 || len(id) > 64 {
		return fmt.Errorf("invalid container ID length: %s", id)
	}

	for _, c := range id {
		isDigit := c >= '0' && c <= '9'
		isLowerHex := c >= 'a' && c <= 'f'
		isUpperHex := c >= 'A' && c <= 'F'
		if !isDigit && !isLowerHex && !isUpperHex {
			return fmt.Errorf("invalid container ID format: %s", id)
		}
	}

	return nil
}
