package backend

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// ─── Simulated Backend (for testing and --sim runs) ─────────────────────────

// Sim implements DeviceBackend in memory. Free memory is tracked through
// allocations, utilization comes from a pluggable per-device function, and
// allocate/release calls are counted so tests can assert exactly-once release.
type Sim struct {
	mu      sync.Mutex
	devices []simDevice
	closed  bool

	// UtilFn supplies utilization readings. Defaults to a constant idle 0.
	UtilFn func(index int) float64

	// BurstFn is invoked on every compute burst, after the hint elapses.
	// Tests use it to observe duty-cycle timing.
	BurstFn func(index int, operatorBytes uint64, durationHint float64)

	allocCount   map[int]int
	releaseCount map[int]int
}

type simDevice struct {
	info DeviceInfo
	used uint64
}

// NewSim creates a simulated backend with count identical devices.
func NewSim(count int, totalMemoryBytes uint64) *Sim {
	s := &Sim{
		allocCount:   make(map[int]int),
		releaseCount: make(map[int]int),
	}
	for i := 0; i < count; i++ {
		s.devices = append(s.devices, simDevice{info: DeviceInfo{
			Index:            i,
			Name:             fmt.Sprintf("SimGPU-%d", i),
			TotalMemoryBytes: totalMemoryBytes,
		}})
	}
	return s
}

func (s *Sim) ListDevices(ctx context.Context) ([]DeviceInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	infos := make([]DeviceInfo, len(s.devices))
	for i, d := range s.devices {
		infos[i] = d.info
	}
	return infos, nil
}

func (s *Sim) FreeMemory(ctx context.Context, index int) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, err := s.device(index)
	if err != nil {
		return 0, err
	}
	return d.info.TotalMemoryBytes - d.used, nil
}

func (s *Sim) Utilization(ctx context.Context, index int) (float64, error) {
	s.mu.Lock()
	fn := s.UtilFn
	s.mu.Unlock()
	if fn == nil {
		return 0, nil
	}
	return fn(index), nil
}

func (s *Sim) Allocate(ctx context.Context, index int, bytes uint64) (Allocation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, err := s.device(index)
	if err != nil {
		return nil, err
	}
	if d.used+bytes > d.info.TotalMemoryBytes {
		return nil, fmt.Errorf("allocate %d bytes on device %d: out of memory", bytes, index)
	}
	d.used += bytes
	s.allocCount[index]++
	return &simAllocation{sim: s, index: index, bytes: bytes}, nil
}

func (s *Sim) RunComputeBurst(ctx context.Context, index int, operatorBytes uint64, durationHint float64) error {
	// Bursts complete immediately in simulation; the hint only reaches the
	// observer hook.
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	s.mu.Lock()
	fn := s.BurstFn
	s.mu.Unlock()
	if fn != nil {
		fn(index, operatorBytes, durationHint)
	}
	return nil
}

func (s *Sim) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}

// SetUsed forces a device's externally used memory, so tests can script
// busy/idle transitions.
func (s *Sim) SetUsed(index int, bytes uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d, err := s.device(index); err == nil {
		d.used = bytes
	}
}

// SetUtilFn replaces the utilization model.
func (s *Sim) SetUtilFn(fn func(index int) float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.UtilFn = fn
}

// Counts returns (allocations, releases) seen for a device.
func (s *Sim) Counts(index int) (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.allocCount[index], s.releaseCount[index]
}

func (s *Sim) device(index int) (*simDevice, error) {
	if index < 0 || index >= len(s.devices) {
		return nil, fmt.Errorf("no such device: %d", index)
	}
	return &s.devices[index], nil
}

type simAllocation struct {
	sim      *Sim
	index    int
	bytes    uint64
	released bool
}

func (a *simAllocation) Bytes() uint64 { return a.bytes }

func (a *simAllocation) Release() error {
	a.sim.mu.Lock()
	defer a.sim.mu.Unlock()
	if a.released {
		panic(fmt.Sprintf("double release of allocation on device %d", a.index))
	}
	a.released = true
	a.sim.releaseCount[a.index]++
	if d, err := a.sim.device(a.index); err == nil {
		if a.bytes > d.used {
			d.used = 0
		} else {
			d.used -= a.bytes
		}
	}
	return nil
}

// ─── Slow wrapper ───────────────────────────────────────────────────────────

// Slow wraps a backend and delays every call, for exercising the timeout
// path in tests.
type Slow struct {
	DeviceBackend
	Delay time.Duration
}

func (s *Slow) wait(ctx context.Context) error {
	t := time.NewTimer(s.Delay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (s *Slow) FreeMemory(ctx context.Context, index int) (uint64, error) {
	if err := s.wait(ctx); err != nil {
		return 0, err
	}
	return s.DeviceBackend.FreeMemory(ctx, index)
}

func (s *Slow) Utilization(ctx context.Context, index int) (float64, error) {
	if err := s.wait(ctx); err != nil {
		return 0, err
	}
	return s.DeviceBackend.Utilization(ctx, index)
}
