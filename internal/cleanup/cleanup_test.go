package cleanup

import (
	"errors"
	"testing"
	"time"

	"github.com/yte121/openswarm/internal/process"
)

type fakeRegistry struct {
	infos       []process.Info
	subscribers map[string]int
	released    []string
	releaseErr  error
}

func (f *fakeRegistry) List() []process.Info { return f.infos }

func (f *fakeRegistry) SubscriberCount(processID string) int {
	return f.subscribers[processID]
}

func (f *fakeRegistry) Release(processID string) error {
	if f.releaseErr != nil {
		return f.releaseErr
	}
	f.released = append(f.released, processID)
	return nil
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Interval != 5*time.Minute {
		t.Errorf("Interval = %v, want %v", cfg.Interval, 5*time.Minute)
	}
	if cfg.Retention != 30*time.Minute {
		t.Errorf("Retention = %v, want %v", cfg.Retention, 30*time.Minute)
	}
}

func TestSweep_ReleasesExpiredTerminalProcesses(t *testing.T) {
	old := time.Now().Add(-2 * time.Hour)
	recent := time.Now().Add(-1 * time.Minute)

	reg := &fakeRegistry{
		infos: []process.Info{
			{ID: "expired", State: process.StateExited, EndTime: old},
			{ID: "fresh", State: process.StateExited, EndTime: recent},
			{ID: "running", State: process.StateRunning},
		},
		subscribers: map[string]int{},
	}

	cleaner := New(reg, Config{Interval: time.Minute, Retention: time.Hour})

	if got := cleaner.Sweep(); got != 1 {
		t.Errorf("Sweep() = %d, want 1", got)
	}
	if len(reg.released) != 1 || reg.released[0] != "expired" {
		t.Errorf("released = %v, want [expired]", reg.released)
	}
}

func TestSweep_SkipsProcessesWithSubscribers(t *testing.T) {
	old := time.Now().Add(-2 * time.Hour)

	reg := &fakeRegistry{
		infos: []process.Info{
			{ID: "watched", State: process.StateCrashed, EndTime: old},
		},
		subscribers: map[string]int{"watched": 2},
	}

	cleaner := New(reg, Config{Interval: time.Minute, Retention: time.Hour})

	if got := cleaner.Sweep(); got != 0 {
		t.Errorf("Sweep() = %d, want 0", got)
	}
	if len(reg.released) != 0 {
		t.Errorf("released = %v, want none", reg.released)
	}
}

func TestSweep_ToleratesReleaseErrors(t *testing.T) {
	old := time.Now().Add(-2 * time.Hour)

	reg := &fakeRegistry{
		infos: []process.Info{
			{ID: "stuck", State: process.StateTerminated, EndTime: old},
		},
		subscribers: map[string]int{},
		releaseErr:  errors.New("still referenced"),
	}

	cleaner := New(reg, Config{Interval: time.Minute, Retention: time.Hour})

	if got := cleaner.Sweep(); got != 0 {
		t.Errorf("Sweep() = %d, want 0", got)
	}
}

func TestStartStop(t *testing.T) {
	reg := &fakeRegistry{subscribers: map[string]int{}}
	cleaner := New(reg, Config{Interval: time.Hour, Retention: time.Hour})

	cleaner.Start()
	cleaner.Stop()
}

func TestNew_AppliesDefaults(t *testing.T) {
	reg := &fakeRegistry{}
	cleaner := New(reg, Config{})

	if cleaner.interval != 5*time.Minute {
		t.Errorf("interval = %v", cleaner.interval)
	}
	if cleaner.retention != 30*time.Minute {
		t.Errorf("retention = %v", cleaner.retention)
	}
}
