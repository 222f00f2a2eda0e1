package schedule

import (
	"context"
	"errors"
	"testing"
)

func TestRunner_TriggerNow(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	sched := &Schedule{
		Name:           "manual",
		CronExpr:       "0 0 * * *",
		Command:        []string{"echo", "hi"},
		Enabled:        true,
		CreatorTokenID: "t",
	}
	if err := store.Create(sched); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	var gotCommand []string
	runner := NewRunner(store, func(ctx context.Context, s *Schedule) (string, error) {
		gotCommand = s.Command
		return "proc-123", nil
	})
	defer runner.Stop()

	processID, err := runner.TriggerNow(sched)
	if err != nil {
		t.Fatalf("TriggerNow() error = %v", err)
	}
	if processID != "proc-123" {
		t.Errorf("TriggerNow() processID = %v, want proc-123", processID)
	}
	if len(gotCommand) != 2 || gotCommand[0] != "echo" {
		t.Errorf("execute func received command %v", gotCommand)
	}

	// TriggerNow records an execution
	execs, err := store.ListExecutions(sched.ID, 10)
	if err != nil {
		t.Fatalf("ListExecutions() error = %v", err)
	}
	if len(execs) != 1 {
		t.Fatalf("expected 1 execution, got %d", len(execs))
	}
	if execs[0].Status != ExecutionSuccess {
		t.Errorf("execution status = %v, want success", execs[0].Status)
	}
	if execs[0].ProcessID != "proc-123" {
		t.Errorf("execution process ID = %v", execs[0].ProcessID)
	}
}

func TestRunner_TriggerNowRecordsFailure(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	sched := &Schedule{
		Name:           "failing",
		CronExpr:       "0 0 * * *",
		Command:        []string{"nope"},
		Enabled:        true,
		CreatorTokenID: "t",
	}
	if err := store.Create(sched); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	launchErr := errors.New("launch failed")
	runner := NewRunner(store, func(ctx context.Context, s *Schedule) (string, error) {
		return "", launchErr
	})
	defer runner.Stop()

	if _, err := runner.TriggerNow(sched); !errors.Is(err, launchErr) {
		t.Fatalf("TriggerNow() error = %v, want %v", err, launchErr)
	}

	execs, err := store.ListExecutions(sched.ID, 10)
	if err != nil {
		t.Fatalf("ListExecutions() error = %v", err)
	}
	if len(execs) != 1 || execs[0].Status != ExecutionFailed {
		t.Fatalf("expected 1 failed execution, got %+v", execs)
	}
	if execs[0].Error != "launch failed" {
		t.Errorf("execution error = %q", execs[0].Error)
	}
}

func TestRunner_IsRunningEmpty(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	runner := NewRunner(store, func(ctx context.Context, s *Schedule) (string, error) {
		return "", nil
	})
	defer runner.Stop()

	if n := runner.IsRunning("sched_missing"); n != 0 {
		t.Errorf("IsRunning() = %d, want 0", n)
	}
}
