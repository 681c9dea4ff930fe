package hold

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gpuhold-net/gpuhold/internal/backend"
	"github.com/gpuhold-net/gpuhold/internal/domain"
)

// dutyModel ties the simulated utilization to the controller's last sleep:
// u = 1 / (1 + s). With target 0.5 the warm-up must converge to s ≈ 1.0.
type dutyModel struct {
	mu        sync.Mutex
	lastSleep float64
}

func (m *dutyModel) sleep(ctx context.Context, d time.Duration) error {
	m.mu.Lock()
	m.lastSleep = d.Seconds()
	m.mu.Unlock()
	return ctx.Err()
}

func (m *dutyModel) util(int) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return 1 / (1 + m.lastSleep)
}

func controllerConfig() domain.HoldConfig {
	cfg := domain.DefaultHoldConfig()
	cfg.HoldUtilTarget = 0.5
	cfg.UtilEps = 0.01
	cfg.MinSleepSeconds = 0
	cfg.MaxSleepSeconds = 3
	cfg.UtilSamplesNum = 5
	return cfg
}

func always() bool { return true }

func TestWarmupConvergesOnDutyCycleModel(t *testing.T) {
	sim := backend.NewSim(1, 16*gib)
	model := &dutyModel{}
	sim.SetUtilFn(model.util)

	c := NewController(0, sim, controllerConfig(), time.Second)
	c.sleep = model.sleep

	adopted, converged, err := c.Warmup(context.Background(), always)
	if err != nil {
		t.Fatalf("Warmup: %v", err)
	}
	if !converged {
		t.Fatal("Warmup did not converge on a reachable target")
	}
	// |1/(1+s) - 0.5| <= 0.01 bounds the adopted sleep to [0.961, 1.041].
	if adopted < 0.95 || adopted > 1.05 {
		t.Errorf("adopted sleep = %v, want ≈ 1.0", adopted)
	}
	if got := c.CurrentSleep(); got != adopted {
		t.Errorf("CurrentSleep() = %v, want adopted %v", got, adopted)
	}
}

func TestWarmupTerminatesWhenTargetUnreachable(t *testing.T) {
	sim := backend.NewSim(1, 16*gib)
	model := &dutyModel{}
	sim.SetUtilFn(model.util)

	// With s >= 1 utilization tops out at 0.5; a 0.9 target is unreachable,
	// so the bounds collapse at the low end instead of looping forever.
	cfg := controllerConfig()
	cfg.HoldUtilTarget = 0.9
	cfg.MinSleepSeconds = 1
	c := NewController(0, sim, cfg, time.Second)
	c.sleep = model.sleep

	adopted, converged, err := c.Warmup(context.Background(), always)
	if err != nil {
		t.Fatalf("Warmup: %v", err)
	}
	if converged {
		t.Error("Warmup reported convergence on an unreachable target")
	}
	if adopted > 1.05 {
		t.Errorf("adopted sleep = %v, want pinned near the 1.0 lower bound", adopted)
	}
}

func TestWarmupAbortsOnStaleFence(t *testing.T) {
	sim := backend.NewSim(1, 16*gib)
	model := &dutyModel{}
	sim.SetUtilFn(model.util)

	c := NewController(0, sim, controllerConfig(), time.Second)
	c.sleep = model.sleep

	_, _, err := c.Warmup(context.Background(), func() bool { return false })
	if !errors.Is(err, errStale) {
		t.Errorf("Warmup with stale fence returned %v, want errStale", err)
	}
}

func TestHoldNudgesSleepTowardEquilibrium(t *testing.T) {
	sim := backend.NewSim(1, 16*gib)
	model := &dutyModel{}
	sim.SetUtilFn(model.util)

	ctx, cancel := context.WithCancel(context.Background())
	var calls int
	c := NewController(0, sim, controllerConfig(), time.Second)
	c.sleep = func(sctx context.Context, d time.Duration) error {
		if err := model.sleep(sctx, d); err != nil {
			return err
		}
		calls++
		if calls >= 100 {
			cancel()
		}
		return nil
	}

	// Start well below equilibrium: u(0.3) ≈ 0.77 > 0.5, so the nudges must
	// push the sleep up.
	err := c.Hold(ctx, always, 0.3)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Hold exited with %v, want context.Canceled", err)
	}
	if got := c.CurrentSleep(); got <= 0.3 {
		t.Errorf("CurrentSleep() = %v after holding, want > 0.3", got)
	}
}

func TestHoldAbortsOnStaleFence(t *testing.T) {
	sim := backend.NewSim(1, 16*gib)
	c := NewController(0, sim, controllerConfig(), time.Second)
	c.sleep = func(ctx context.Context, d time.Duration) error { return ctx.Err() }

	err := c.Hold(context.Background(), func() bool { return false }, 0.5)
	if !errors.Is(err, errStale) {
		t.Errorf("Hold with stale fence returned %v, want errStale", err)
	}
}

// ─── Acquire ────────────────────────────────────────────────────────────────

func TestAcquireDefaultsToHalfFreeMemory(t *testing.T) {
	sim := backend.NewSim(1, 16*gib)
	cfg := controllerConfig()
	cfg.HoldMemBytes = 0
	c := NewController(0, sim, cfg, time.Second)

	alloc, err := c.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer alloc.Release()

	if got, want := alloc.Bytes(), uint64(8*gib); got != want {
		t.Errorf("alloc.Bytes() = %d, want %d (half of free)", got, want)
	}
	if got := c.HeldBytes(); got != alloc.Bytes() {
		t.Errorf("HeldBytes() = %d, want %d", got, alloc.Bytes())
	}
}

func TestAcquireExplicitSize(t *testing.T) {
	sim := backend.NewSim(1, 16*gib)
	cfg := controllerConfig()
	cfg.HoldMemBytes = 2 * gib
	c := NewController(0, sim, cfg, time.Second)

	alloc, err := c.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer alloc.Release()
	if got := alloc.Bytes(); got != 2*gib {
		t.Errorf("alloc.Bytes() = %d, want %d", got, 2*gib)
	}
}

func TestAcquireOversizedWithoutShrinkFails(t *testing.T) {
	sim := backend.NewSim(1, 16*gib)
	cfg := controllerConfig()
	cfg.HoldMemBytes = 32 * gib
	cfg.ShrinkToFit = false
	c := NewController(0, sim, cfg, time.Second)

	_, err := c.Acquire(context.Background())
	if !errors.Is(err, domain.ErrAllocationFailed) {
		t.Fatalf("Acquire returned %v, want ErrAllocationFailed", err)
	}
	if allocs, _ := sim.Counts(0); allocs != 0 {
		t.Errorf("allocation count = %d after a failed acquire, want 0", allocs)
	}
}

func TestAcquireShrinksToFit(t *testing.T) {
	sim := backend.NewSim(1, 16*gib)
	cfg := controllerConfig()
	cfg.HoldMemBytes = 32 * gib
	cfg.ShrinkToFit = true
	c := NewController(0, sim, cfg, time.Second)

	alloc, err := c.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire with shrink_to_fit: %v", err)
	}
	defer alloc.Release()

	if got, want := alloc.Bytes(), uint64(16*gib)/10*9; got != want {
		t.Errorf("shrunk alloc.Bytes() = %d, want %d (90%% of free)", got, want)
	}
}

func TestAcquireTimeoutIsBackendTimeout(t *testing.T) {
	slow := &backend.Slow{DeviceBackend: backend.NewSim(1, 16*gib), Delay: 200 * time.Millisecond}
	c := NewController(0, slow, controllerConfig(), 20*time.Millisecond)

	_, err := c.Acquire(context.Background())
	if !errors.Is(err, domain.ErrBackendTimeout) {
		t.Errorf("Acquire against a stalled backend returned %v, want ErrBackendTimeout", err)
	}
}
