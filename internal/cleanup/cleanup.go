// Package cleanup reclaims buffers of exited processes once their
// retention window has passed and no subscribers remain attached.
package cleanup

import (
	"context"
	"sync"
	"time"

	"github.com/yte121/openswarm/internal/logger"
	"github.com/yte121/openswarm/internal/process"
)

// Registry is the process surface the reaper sweeps. Satisfied by
// gateway.Gateway.
type Registry interface {
	List() []process.Info
	SubscriberCount(processID string) int
	Release(processID string) error
}

// Cleaner performs periodic release of retained process buffers.
type Cleaner struct {
	registry  Registry
	interval  time.Duration
	retention time.Duration
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// Config holds cleanup configuration.
type Config struct {
	Interval  time.Duration // How often to sweep
	Retention time.Duration // How long to keep buffers of exited processes
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Interval:  5 * time.Minute,
		Retention: 30 * time.Minute,
	}
}

// New creates a new Cleaner over the given registry.
func New(registry Registry, cfg Config) *Cleaner {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Minute
	}
	if cfg.Retention <= 0 {
		cfg.Retention = 30 * time.Minute
	}
	return &Cleaner{
		registry:  registry,
		interval:  cfg.Interval,
		retention: cfg.Retention,
	}
}

// Start begins the periodic sweep loop.
func (c *Cleaner) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.wg.Add(1)

	go func() {
		defer c.wg.Done()
		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.Sweep()
			}
		}
	}()

	logger.Printf("🧹 Cleanup started (interval=%v, retention=%v)", c.interval, c.retention)
}

// Stop halts the sweep loop.
func (c *Cleaner) Stop() {
	if c.cancel != nil {
		c.cancel()
		c.wg.Wait()
		logger.Println("🧹 Cleanup stopped")
	}
}

// Sweep releases every process that exited before the retention cutoff
// and has no remaining subscribers. Returns the number released.
func (c *Cleaner) Sweep() int {
	cutoff := time.Now().Add(-c.retention)
	var released int

	for _, info := range c.registry.List() {
		if !info.State.Terminal() {
			continue
		}
		if info.EndTime.IsZero() || info.EndTime.After(cutoff) {
			continue
		}
		if c.registry.SubscriberCount(info.ID) > 0 {
			continue
		}
		if err := c.registry.Release(info.ID); err != nil {
			logger.Printf("⚠️  Failed to release process %s: %v", info.ID, err)
			continue
		}
		released++
	}

	if released > 0 {
		logger.Printf("🧹 Released %d retained processes", released)
	}
	return released
}
