package hold

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gpuhold-net/gpuhold/internal/backend"
	"github.com/gpuhold-net/gpuhold/internal/domain"
)

// errStale aborts a controller loop whose config generation has been
// superseded. The supervisor releases and restarts the cycle.
var errStale = errors.New("hold cycle superseded by newer generation")

// maxWarmupIters bounds the binary search. The search also stops once the
// bounds collapse below sleepResolution.
const (
	maxWarmupIters  = 20
	sleepResolution = 1e-3
)

// SleepFunc suspends for d or until ctx is done. Swapped out in tests.
type SleepFunc func(ctx context.Context, d time.Duration) error

func defaultSleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Controller holds one device: it owns the allocation for the duration of a
// hold cycle and shapes measured utilization toward the target with a duty
// cycle of compute bursts and sleeps.
type Controller struct {
	index   int
	backend backend.DeviceBackend
	cfg     domain.HoldConfig
	sampler Sampler
	timeout time.Duration
	sleep   SleepFunc

	mu        sync.Mutex
	heldBytes uint64
	sleepSecs float64
}

// NewController creates a controller for one device under one config
// snapshot. A new controller is built per hold cycle; it carries no state
// across cycles.
func NewController(index int, be backend.DeviceBackend, cfg domain.HoldConfig, callTimeout time.Duration) *Controller {
	return &Controller{
		index:   index,
		backend: be,
		cfg:     cfg,
		sampler: Sampler{Samples: cfg.UtilSamplesNum},
		timeout: callTimeout,
		sleep:   defaultSleep,
	}
}

// HeldBytes returns the size of the current allocation, zero when none.
func (c *Controller) HeldBytes() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.heldBytes
}

// CurrentSleep returns the duty-cycle sleep in seconds.
func (c *Controller) CurrentSleep() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sleepSecs
}

// Acquire allocates the configured hold memory. A zero HoldMemBytes means
// half of the device's free memory, measured now. On an out-of-memory
// failure with ShrinkToFit set, one retry is made at 90% of live free memory;
// otherwise the caller backs off to a later tick.
func (c *Controller) Acquire(ctx context.Context) (backend.Allocation, error) {
	free, err := c.freeMemory(ctx)
	if err != nil {
		return nil, err
	}

	want := c.cfg.HoldMemBytes
	if want == 0 {
		want = free / 2
	}
	if want == 0 {
		return nil, fmt.Errorf("%w: device %d has no free memory", domain.ErrAllocationFailed, c.index)
	}

	alloc, err := c.allocate(ctx, want)
	if err == nil {
		c.setHeld(alloc.Bytes())
		return alloc, nil
	}
	if !c.cfg.ShrinkToFit {
		return nil, err
	}

	// Free memory may have moved since the first query; re-read and shrink.
	free, ferr := c.freeMemory(ctx)
	if ferr != nil {
		return nil, ferr
	}
	shrunk := free / 10 * 9
	if shrunk == 0 {
		return nil, err
	}
	alloc, err = c.allocate(ctx, shrunk)
	if err != nil {
		return nil, err
	}
	log.Printf("[controller %d] shrank hold to %s after allocation failure", c.index, domain.HumanSize(shrunk))
	c.setHeld(alloc.Bytes())
	return alloc, nil
}

// Warmup binary-searches the sleep duration until measured utilization lands
// within UtilEps of the target. fence reports whether this cycle's generation
// is still current; a stale fence aborts with errStale at the next loop
// boundary. Returns the adopted sleep and whether it truly converged — on an
// exhausted iteration budget the last midpoint is adopted best-effort.
func (c *Controller) Warmup(ctx context.Context, fence func() bool) (float64, bool, error) {
	lo, hi := c.cfg.MinSleepSeconds, c.cfg.MaxSleepSeconds
	mid := (lo + hi) / 2

	for i := 0; i < maxWarmupIters; i++ {
		if err := ctx.Err(); err != nil {
			return mid, false, err
		}
		if !fence() {
			return mid, false, errStale
		}

		c.setSleepSecs(mid)
		u, err := c.measure(ctx, fence, mid)
		if err != nil {
			return mid, false, err
		}

		diff := u - c.cfg.HoldUtilTarget
		if diff <= c.cfg.UtilEps && diff >= -c.cfg.UtilEps {
			return mid, true, nil
		}
		if diff > 0 {
			// Too much utilization: more sleep.
			lo = mid
		} else {
			hi = mid
		}
		mid = (lo + hi) / 2
		if hi-lo < sleepResolution {
			// Bounds resolved; the target is outside the reachable range.
			c.setSleepSecs(mid)
			return mid, false, nil
		}
	}

	c.setSleepSecs(mid)
	return mid, false, nil
}

// Hold runs the steady-state duty cycle at the adopted sleep, re-measuring
// every UtilSamplesNum inspection windows and nudging the sleep
// proportionally so drift from co-resident workloads is absorbed without a
// full re-search. Runs until cancellation, a stale fence, or a backend fault.
func (c *Controller) Hold(ctx context.Context, fence func() bool, adopted float64) error {
	s := clamp(adopted, c.cfg.MinSleepSeconds, c.cfg.MaxSleepSeconds)
	c.setSleepSecs(s)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !fence() {
			return errStale
		}

		u, err := c.measure(ctx, fence, s)
		if err != nil {
			return err
		}

		// Proportional correction: a tenth of the error scaled by the sleep
		// range per measurement keeps single adjustments small.
		s += 0.1 * (u - c.cfg.HoldUtilTarget) * (c.cfg.MaxSleepSeconds - c.cfg.MinSleepSeconds)
		s = clamp(s, c.cfg.MinSleepSeconds, c.cfg.MaxSleepSeconds)
		c.setSleepSecs(s)
	}
}

// measure runs UtilSamplesNum inspection windows at the given sleep. One
// window is a compute burst (hinted at the inspect interval) followed by the
// duty-cycle sleep, then a utilization reading. The readings are reduced to a
// trimmed mean.
func (c *Controller) measure(ctx context.Context, fence func() bool, sleepSecs float64) (float64, error) {
	vals := make([]float64, 0, c.cfg.UtilSamplesNum)
	for i := 0; i < c.cfg.UtilSamplesNum; i++ {
		if err := c.backend.RunComputeBurst(ctx, c.index, c.cfg.OperatorBytes, c.cfg.InspectIntervalSeconds); err != nil {
			return 0, fmt.Errorf("compute burst on device %d: %w", c.index, err)
		}
		if err := c.sleep(ctx, time.Duration(sleepSecs*float64(time.Second))); err != nil {
			return 0, err
		}
		if !fence() {
			return 0, errStale
		}
		u, err := c.utilization(ctx)
		if err != nil {
			return 0, err
		}
		vals = append(vals, u)
	}
	return c.sampler.Reduce(vals), nil
}

// ─── Bounded backend calls ──────────────────────────────────────────────────
// Every backend query runs under the configured timeout; exceeding it is a
// device-level fault.

func (c *Controller) freeMemory(ctx context.Context) (uint64, error) {
	cctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	free, err := c.backend.FreeMemory(cctx, c.index)
	if err != nil {
		return 0, c.faultErr("query free memory", err)
	}
	return free, nil
}

func (c *Controller) utilization(ctx context.Context) (float64, error) {
	cctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	u, err := c.backend.Utilization(cctx, c.index)
	if err != nil {
		return 0, c.faultErr("query utilization", err)
	}
	return u, nil
}

func (c *Controller) allocate(ctx context.Context, bytes uint64) (backend.Allocation, error) {
	cctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	alloc, err := c.backend.Allocate(cctx, c.index, bytes)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("allocate on device %d: %w", c.index, domain.ErrBackendTimeout)
		}
		return nil, fmt.Errorf("allocate %s on device %d: %w (%v)",
			domain.HumanSize(bytes), c.index, domain.ErrAllocationFailed, err)
	}
	return alloc, nil
}

func (c *Controller) faultErr(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s on device %d: %w", op, c.index, domain.ErrBackendTimeout)
	}
	return fmt.Errorf("%s on device %d: %w", op, c.index, err)
}

func (c *Controller) setHeld(bytes uint64) {
	c.mu.Lock()
	c.heldBytes = bytes
	c.mu.Unlock()
}

func (c *Controller) setSleepSecs(s float64) {
	c.mu.Lock()
	c.sleepSecs = s
	c.mu.Unlock()
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
