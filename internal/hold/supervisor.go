package hold

import (
	"context"
	"errors"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/gpuhold-net/gpuhold/internal/backend"
	"github.com/gpuhold-net/gpuhold/internal/domain"
	"github.com/gpuhold-net/gpuhold/internal/infra/metrics"
)

// utilEMAAlpha smooths the per-device utilization reported by status.
const utilEMAAlpha = 0.3

// Supervisor owns one device: its idle detector, at most one live hold
// controller, and the device's externally visible status. It is the only
// component that mutates the device's held/released state. No device is ever
// touched by more than one supervisor.
type Supervisor struct {
	info backend.DeviceInfo
	be   backend.DeviceBackend
	mgr  *Manager

	mu    sync.Mutex
	state domain.DeviceState
	free  uint64
	util  float64
	ctrl  *Controller // non-nil only during a hold cycle
}

func newSupervisor(info backend.DeviceInfo, be backend.DeviceBackend, mgr *Manager) *Supervisor {
	return &Supervisor{
		info:  info,
		be:    be,
		mgr:   mgr,
		state: domain.StateIdle,
		free:  info.TotalMemoryBytes,
	}
}

// Status snapshots the device for the control surface.
func (s *Supervisor) Status() domain.DeviceStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := domain.DeviceStatus{
		Index:            s.info.Index,
		State:            s.state,
		StateName:        s.state.String(),
		TotalMemoryBytes: s.info.TotalMemoryBytes,
		FreeMemoryBytes:  s.free,
		Utilization:      s.util,
	}
	if s.ctrl != nil {
		st.HeldBytes = s.ctrl.HeldBytes()
		st.CurrentSleepSeconds = s.ctrl.CurrentSleep()
	}
	return st
}

// run is the supervisor's scheduling loop: one tick per poll interval while
// detecting, blocking inside runHoldCycle while a device is held. Exits only
// on context cancellation (stop/shutdown).
func (s *Supervisor) run(ctx context.Context, gen uint64) {
	cfg := s.mgr.configSnapshot()
	det := NewIdleDetector(s.info.TotalMemoryBytes, cfg)
	s.setState(domain.StateIdle)

	ticker := time.NewTicker(s.mgr.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.setState(domain.StateIdle)
			return
		case <-ticker.C:
		}

		// A restart swapped the config: drop detector progress and start the
		// cycle over under the new generation.
		if g := s.mgr.Generation(); g != gen {
			gen = g
			cfg = s.mgr.configSnapshot()
			det = NewIdleDetector(s.info.TotalMemoryBytes, cfg)
			s.setState(domain.StateIdle)
		}

		free, ok := s.poll(ctx)
		if !ok {
			continue
		}

		switch s.currentState() {
		case domain.StateIdle, domain.StateWatching:
			if det.Observe(free, time.Now()) == domain.ActivityIdle {
				s.runHoldCycle(ctx, gen, cfg)
			} else if det.Watching() {
				s.setState(domain.StateWatching)
			} else {
				s.setState(domain.StateIdle)
			}
		case domain.StateConverging:
			// Re-entry after a backend timeout: retry the claim without
			// waiting out the idle window again.
			s.runHoldCycle(ctx, gen, cfg)
		}

		// Any cycle that ended back in Idle released its hold; the device
		// must earn a full fresh window before the next claim.
		if s.currentState() == domain.StateIdle {
			det.Reset()
		}
	}
}

// poll refreshes free memory and EMA-smoothed utilization. Poll failures are
// device-local: logged, counted, and retried next tick.
func (s *Supervisor) poll(ctx context.Context) (uint64, bool) {
	cctx, cancel := context.WithTimeout(ctx, s.mgr.callTimeout)
	defer cancel()

	free, err := s.be.FreeMemory(cctx, s.info.Index)
	if err != nil {
		s.fault("poll free memory", err)
		return 0, false
	}
	u, err := s.be.Utilization(cctx, s.info.Index)
	if err != nil {
		s.fault("poll utilization", err)
		return 0, false
	}

	s.mu.Lock()
	s.free = free
	s.util = EMA(s.util, u, utilEMAAlpha)
	util := s.util
	s.mu.Unlock()

	metrics.DeviceFreeMemory.WithLabelValues(s.label()).Set(float64(free))
	metrics.DeviceUtilization.WithLabelValues(s.label()).Set(util)
	return free, true
}

// runHoldCycle executes one full Converging→Holding→Releasing pass. The
// allocation made here is released exactly once, on every exit path.
func (s *Supervisor) runHoldCycle(ctx context.Context, gen uint64, cfg domain.HoldConfig) {
	ctrl := NewController(s.info.Index, s.be, cfg, s.mgr.callTimeout)
	if s.mgr.sleep != nil {
		ctrl.sleep = s.mgr.sleep
	}
	fence := func() bool { return s.mgr.Generation() == gen }

	s.setController(ctrl)
	defer s.setController(nil)
	s.setState(domain.StateConverging)

	alloc, err := ctrl.Acquire(ctx)
	if err != nil {
		s.fault("acquire", err)
		if errors.Is(err, domain.ErrBackendTimeout) {
			return // state stays Converging; retried next tick
		}
		// Allocation failed: back off and retry on a later tick while the
		// device remains idle.
		s.setState(domain.StateWatching)
		return
	}

	log.Printf("[supervisor %d] holding %s (generation %d)",
		s.info.Index, domain.HumanSize(alloc.Bytes()), gen)
	metrics.Allocations.WithLabelValues(s.label()).Inc()
	metrics.HeldBytes.WithLabelValues(s.label()).Set(float64(alloc.Bytes()))
	sessionID, rerr := s.mgr.recorder.SessionStarted(s.info.Index, gen, alloc.Bytes(), time.Now())
	if rerr != nil {
		log.Printf("[supervisor %d] session ledger: %v", s.info.Index, rerr)
	}

	reason := domain.ReleaseStop
	defer func() {
		s.setState(domain.StateReleasing)
		if err := alloc.Release(); err != nil {
			log.Printf("[supervisor %d] release: %v", s.info.Index, err)
		}
		metrics.Releases.WithLabelValues(s.label()).Inc()
		metrics.HeldBytes.WithLabelValues(s.label()).Set(0)
		if sessionID != "" {
			if err := s.mgr.recorder.SessionEnded(sessionID, reason, time.Now()); err != nil {
				log.Printf("[supervisor %d] session ledger: %v", s.info.Index, err)
			}
		}
		log.Printf("[supervisor %d] released (%s)", s.info.Index, reason)
		s.setState(domain.StateIdle)
	}()

	adopted, converged, err := ctrl.Warmup(ctx, fence)
	if err != nil {
		reason = s.classify(err)
		if reason == domain.ReleaseFault {
			s.fault("warmup", err)
		}
		return
	}
	metrics.WarmupConverged.WithLabelValues(s.label()).Inc()
	if !converged {
		log.Printf("[supervisor %d] warm-up did not converge, adopting sleep=%.3fs best-effort",
			s.info.Index, adopted)
		_ = s.mgr.recorder.Event(s.info.Index, "warmup_best_effort", "", time.Now())
	}

	s.setState(domain.StateHolding)
	err = ctrl.Hold(ctx, fence, adopted)
	reason = s.classify(err)
	if reason == domain.ReleaseFault {
		s.fault("hold", err)
	}
}

// classify maps a loop-exit error to the ledger's release reason. A stale
// fence can only come from a restart: that is the one command that bumps the
// generation while supervisors run, and it records its reason first.
func (s *Supervisor) classify(err error) domain.ReleaseReason {
	switch {
	case errors.Is(err, errStale), errors.Is(err, context.Canceled):
		return s.mgr.stopReason()
	default:
		return domain.ReleaseFault
	}
}

func (s *Supervisor) fault(op string, err error) {
	log.Printf("[supervisor %d] %s: %v", s.info.Index, op, err)
	metrics.DeviceFaults.WithLabelValues(s.label(), domain.ErrorCode(err)).Inc()
	_ = s.mgr.recorder.Event(s.info.Index, "fault", op+": "+err.Error(), time.Now())
}

func (s *Supervisor) currentState() domain.DeviceState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Supervisor) setState(st domain.DeviceState) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
	metrics.DeviceState.WithLabelValues(s.label()).Set(float64(st))
}

func (s *Supervisor) setController(c *Controller) {
	s.mu.Lock()
	s.ctrl = c
	s.mu.Unlock()
}

func (s *Supervisor) label() string {
	return strconv.Itoa(s.info.Index)
}
