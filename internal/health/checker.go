// Package health provides the daemon's periodic self-checks: ledger
// connectivity, control socket presence, and backend responsiveness.
package health

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/gpuhold-net/gpuhold/internal/backend"
	"github.com/gpuhold-net/gpuhold/internal/infra/sqlite"
)

// Check defines a single health check.
type Check struct {
	Name    string
	CheckFn func(ctx context.Context) error
}

// Status represents the result of a health check.
type Status struct {
	Name      string    `json:"name"`
	Healthy   bool      `json:"healthy"`
	Error     string    `json:"error,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
}

// Checker runs periodic health checks.
type Checker struct {
	mu       sync.RWMutex
	checks   []Check
	statuses []Status
	interval time.Duration
}

// NewChecker creates a checker with the standard checks. db may be nil when
// the ledger is disabled.
func NewChecker(db *sqlite.DB, be backend.DeviceBackend, socketPath string) *Checker {
	c := &Checker{interval: 60 * time.Second}

	if db != nil {
		c.checks = append(c.checks, Check{
			Name: "ledger",
			CheckFn: func(ctx context.Context) error {
				return db.Ping()
			},
		})
	}

	// A vanished socket file means the daemon was torn out from under us
	// (someone removed the runtime dir); clients can no longer reach it.
	c.checks = append(c.checks, Check{
		Name: "control_socket",
		CheckFn: func(ctx context.Context) error {
			if _, err := os.Stat(socketPath); err != nil {
				return fmt.Errorf("control socket missing: %w", err)
			}
			return nil
		},
	})

	c.checks = append(c.checks, Check{
		Name: "backend",
		CheckFn: func(ctx context.Context) error {
			devices, err := be.ListDevices(ctx)
			if err != nil {
				return fmt.Errorf("list devices: %w", err)
			}
			if len(devices) == 0 {
				return fmt.Errorf("backend reports no devices")
			}
			return nil
		},
	})

	return c
}

// Run starts the health check loop. Call in a goroutine.
func (c *Checker) Run(ctx context.Context) {
	c.runAll(ctx)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.runAll(ctx)
		}
	}
}

func (c *Checker) runAll(ctx context.Context) {
	statuses := make([]Status, len(c.checks))
	for i, check := range c.checks {
		s := Status{
			Name:      check.Name,
			CheckedAt: time.Now(),
		}
		if err := check.CheckFn(ctx); err != nil {
			s.Healthy = false
			s.Error = err.Error()
		} else {
			s.Healthy = true
		}
		statuses[i] = s
	}

	c.mu.Lock()
	c.statuses = statuses
	c.mu.Unlock()
}

// Statuses returns the latest health check results.
func (c *Checker) Statuses() []Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	result := make([]Status, len(c.statuses))
	copy(result, c.statuses)
	return result
}

// IsHealthy returns true if all checks pass.
func (c *Checker) IsHealthy() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, s := range c.statuses {
		if !s.Healthy {
			return false
		}
	}
	return true
}
