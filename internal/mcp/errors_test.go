package mcp

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestSanitizeErrorNil(t *testing.T) {
	if err := SanitizeError(nil, "op"); err != nil {
		t.Errorf("SanitizeError(nil) = %v, want nil", err)
	}
}

func TestSanitizeErrorHidesSensitiveDetail(t *testing.T) {
	err := fmt.Errorf("cannot read /etc/shadow: password=hunter2")
	got := SanitizeError(err, "launch")
	if strings.Contains(got.Error(), "hunter2") {
		t.Errorf("sanitized error leaked secret: %v", got)
	}
}

func TestSanitizeErrorPassesUserFacing(t *testing.T) {
	tests := []string{
		"process not found",
		"invalid subscriber policy \"x\"",
		"process is still running",
		"chunks before sequence 5 have been evicted (oldest available: 10, missed: 5)",
	}

	for _, msg := range tests {
		err := errors.New(msg)
		if got := SanitizeError(err, "op"); got.Error() != msg {
			t.Errorf("SanitizeError(%q) = %q, want unchanged", msg, got.Error())
		}
	}
}

func TestSanitizeErrorGenericizesInternal(t *testing.T) {
	err := errors.New("dial tcp 10.0.0.5:2375: connection refused")
	got := SanitizeError(err, "launch")
	if strings.Contains(got.Error(), "10.0.0.5") {
		t.Errorf("sanitized error leaked address: %v", got)
	}
	if !strings.Contains(got.Error(), "launch failed") {
		t.Errorf("sanitized error = %v, want prefixed with operation", got)
	}
}
