package hold

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gpuhold-net/gpuhold/internal/backend"
	"github.com/gpuhold-net/gpuhold/internal/domain"
)

// Options configures a Manager.
type Options struct {
	// PollInterval is the supervisor scheduling tick. It should be at least
	// as fine as the configured inspect interval.
	PollInterval time.Duration

	// CallTimeout bounds every backend call; a stalled call is a device-level
	// fault.
	CallTimeout time.Duration

	// Defaults fills fields a start request leaves unset.
	Defaults domain.HoldConfig

	// Recorder receives session accounting. Nil means NopRecorder.
	Recorder Recorder
}

// Manager is the process-wide daemon state and command surface. It owns one
// supervisor per device, the active config (read-copy-update), and the
// generation counter that fences in-flight hold cycles. All mutating commands
// are serialized and idempotent.
type Manager struct {
	be           backend.DeviceBackend
	devices      []backend.DeviceInfo
	sups         []*Supervisor
	recorder     Recorder
	defaults     domain.HoldConfig
	pollInterval time.Duration
	callTimeout  time.Duration
	launchedAt   time.Time

	cfg atomic.Pointer[domain.HoldConfig]
	gen atomic.Uint64

	cmdMu        sync.Mutex // serializes start/stop/restart/shutdown
	running      bool
	shuttingDown bool
	cancel       context.CancelFunc
	wg           sync.WaitGroup
	reason       atomic.Value // domain.ReleaseReason for the next teardown
	done         chan struct{}

	// sleep overrides the controllers' sleep function in tests.
	sleep SleepFunc
}

// NewManager enumerates devices and builds their supervisors. No devices, or
// a backend failure, is fatal: the daemon refuses to launch.
func NewManager(be backend.DeviceBackend, opts Options) (*Manager, error) {
	if opts.PollInterval <= 0 {
		opts.PollInterval = time.Second
	}
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = 10 * time.Second
	}
	if opts.Recorder == nil {
		opts.Recorder = NopRecorder{}
	}

	ctx, cancel := context.WithTimeout(context.Background(), opts.CallTimeout)
	defer cancel()
	devices, err := be.ListDevices(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrBackendUnavailable, err)
	}
	if len(devices) == 0 {
		return nil, fmt.Errorf("%w: no devices found", domain.ErrBackendUnavailable)
	}

	m := &Manager{
		be:           be,
		devices:      devices,
		recorder:     opts.Recorder,
		defaults:     opts.Defaults,
		pollInterval: opts.PollInterval,
		callTimeout:  opts.CallTimeout,
		launchedAt:   time.Now(),
		done:         make(chan struct{}),
	}
	m.reason.Store(domain.ReleaseStop)
	for _, d := range devices {
		m.sups = append(m.sups, newSupervisor(d, be, m))
	}
	return m, nil
}

// Generation returns the current config generation.
func (m *Manager) Generation() uint64 { return m.gen.Load() }

// Done is closed once a shutdown command has fully torn the manager down.
func (m *Manager) Done() <-chan struct{} { return m.done }

// configSnapshot returns the active config. Valid only after a start.
func (m *Manager) configSnapshot() domain.HoldConfig {
	if c := m.cfg.Load(); c != nil {
		return *c
	}
	return m.defaults
}

func (m *Manager) stopReason() domain.ReleaseReason {
	return m.reason.Load().(domain.ReleaseReason)
}

// Start begins supervision under the patched defaults. Starting while already
// started is a no-op that reports the active config; reconfiguration is
// Restart's job.
func (m *Manager) Start(patch domain.HoldConfigPatch) (domain.HoldConfig, uint64, error) {
	m.cmdMu.Lock()
	defer m.cmdMu.Unlock()

	if m.shuttingDown {
		return domain.HoldConfig{}, m.gen.Load(), domain.ErrShuttingDown
	}
	if m.running {
		return m.configSnapshot(), m.gen.Load(), nil
	}

	merged := patch.Apply(m.defaults)
	if err := merged.Validate(); err != nil {
		return domain.HoldConfig{}, m.gen.Load(), err
	}
	m.startLocked(merged)
	return merged, m.gen.Load(), nil
}

// Stop forces every supervisor to release and halts supervision. The server
// keeps running; stopping twice is a no-op.
func (m *Manager) Stop() error {
	m.cmdMu.Lock()
	defer m.cmdMu.Unlock()

	if m.shuttingDown {
		return domain.ErrShuttingDown
	}
	m.stopLocked(domain.ReleaseStop)
	return nil
}

// Restart applies the patch onto the active config (or the defaults when
// stopped) under a new generation. The generation bump and config swap are
// complete before Restart returns; the per-device release-then-reacquire
// happens asynchronously and is observable via Status.
func (m *Manager) Restart(patch domain.HoldConfigPatch) (domain.HoldConfig, uint64, error) {
	m.cmdMu.Lock()
	defer m.cmdMu.Unlock()

	if m.shuttingDown {
		return domain.HoldConfig{}, m.gen.Load(), domain.ErrShuttingDown
	}

	merged := patch.Apply(m.configSnapshot())
	if err := merged.Validate(); err != nil {
		return domain.HoldConfig{}, m.gen.Load(), err
	}

	if !m.running {
		m.startLocked(merged)
		return merged, m.gen.Load(), nil
	}

	m.reason.Store(domain.ReleaseRestart)
	m.cfg.Store(&merged)
	gen := m.gen.Add(1)
	log.Printf("[manager] restart: generation %d", gen)
	return merged, gen, nil
}

// Shutdown stops all devices and marks the manager terminal. Commands after
// shutdown fail with ErrShuttingDown rather than being silently ignored.
func (m *Manager) Shutdown() error {
	m.cmdMu.Lock()
	defer m.cmdMu.Unlock()

	if m.shuttingDown {
		return domain.ErrShuttingDown
	}
	m.stopLocked(domain.ReleaseShutdown)
	m.shuttingDown = true
	close(m.done)
	return nil
}

// Status is a pure read of daemon state.
func (m *Manager) Status() domain.StatusResponse {
	resp := domain.StatusResponse{
		OK:            true,
		UptimeSeconds: time.Since(m.launchedAt).Seconds(),
		Generation:    m.gen.Load(),
	}
	m.cmdMu.Lock()
	resp.Started = m.running
	m.cmdMu.Unlock()
	for _, s := range m.sups {
		resp.Devices = append(resp.Devices, s.Status())
	}
	return resp
}

func (m *Manager) startLocked(cfg domain.HoldConfig) {
	m.reason.Store(domain.ReleaseStop)
	m.cfg.Store(&cfg)
	gen := m.gen.Add(1)

	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	for _, s := range m.sups {
		m.wg.Add(1)
		go func(s *Supervisor) {
			defer m.wg.Done()
			s.run(ctx, gen)
		}(s)
	}
	m.running = true
	log.Printf("[manager] started %d device supervisors (generation %d)", len(m.sups), gen)
}

// stopLocked cancels the supervisors and waits for every allocation to be
// released from its well-defined teardown point.
func (m *Manager) stopLocked(reason domain.ReleaseReason) {
	if !m.running {
		return
	}
	m.reason.Store(reason)
	m.cancel()
	m.wg.Wait()
	m.running = false
	log.Printf("[manager] stopped (%s)", reason)
}
