package daemon

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gpuhold-net/gpuhold/internal/api"
	"github.com/gpuhold-net/gpuhold/internal/backend"
	"github.com/gpuhold-net/gpuhold/internal/health"
	"github.com/gpuhold-net/gpuhold/internal/hold"
	"github.com/gpuhold-net/gpuhold/internal/infra/sqlite"
)

// Daemon is the gpuhold server runtime. It wires the device backend, the hold
// manager, the session ledger, and the control server together.
type Daemon struct {
	Config  Config
	Backend backend.DeviceBackend
	DB      *sqlite.DB
	Manager *hold.Manager
	Server  *api.Server
	Health  *health.Checker

	cancel context.CancelFunc
}

// New creates and initializes a Daemon from the on-disk config.
func New() (*Daemon, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return NewWithConfig(cfg)
}

// NewWithConfig creates a Daemon with the given configuration. A missing or
// empty device backend is fatal here: the daemon refuses to launch rather
// than supervise nothing.
func NewWithConfig(cfg Config) (*Daemon, error) {
	var be backend.DeviceBackend
	var err error
	if cfg.Daemon.Sim {
		be = backend.NewSim(cfg.Daemon.SimDevices, ParseSize(cfg.Daemon.SimMemory))
		log.Printf("[daemon] using simulated backend (%d devices)", cfg.Daemon.SimDevices)
	} else {
		be, err = backend.Detect()
		if err != nil {
			return nil, fmt.Errorf("detect backend: %w", err)
		}
	}

	d := &Daemon{Config: cfg, Backend: be}

	var recorder hold.Recorder
	if cfg.Ledger.Enabled {
		db, err := sqlite.Open(gpuholdHome())
		if err != nil {
			be.Close()
			return nil, fmt.Errorf("open ledger: %w", err)
		}
		d.DB = db
		recorder = db
	}

	mgr, err := hold.NewManager(be, hold.Options{
		PollInterval: secs(cfg.Daemon.PollIntervalSeconds, time.Second),
		CallTimeout:  secs(cfg.Daemon.BackendTimeoutSeconds, 10*time.Second),
		Defaults:     cfg.Hold,
		Recorder:     recorder,
	})
	if err != nil {
		d.Close()
		return nil, err
	}
	d.Manager = mgr

	srv := api.NewServer(mgr)
	if cfg.Telemetry.Prometheus {
		srv.EnableMetrics()
	}
	d.Health = health.NewChecker(d.DB, be, cfg.Daemon.SocketPath)
	srv.SetHealth(d.Health)
	d.Server = srv

	return d, nil
}

// Serve binds the control socket and blocks until a shutdown command or
// signal. The response to a shutdown command is flushed before the listener
// closes.
func (d *Daemon) Serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	ln, err := d.listen()
	if err != nil {
		return err
	}

	go d.Health.Run(ctx)

	httpServer := &http.Server{
		Handler:      d.Server.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: time.Minute,
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case <-sigCh:
			log.Printf("[daemon] signal received, shutting down")
			_ = d.Manager.Shutdown()
		case <-d.Manager.Done():
			// Shutdown command: give the in-flight response a moment to
			// flush before the listener goes away.
			time.Sleep(100 * time.Millisecond)
		case <-ctx.Done():
		}

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()
		_ = httpServer.Shutdown(shutdownCtx)
		_ = os.Remove(d.Config.Daemon.SocketPath)
	}()

	log.Printf("[daemon] serving on %s", d.Config.Daemon.SocketPath)
	if err := httpServer.Serve(ln); err != http.ErrServerClosed {
		return err
	}
	return nil
}

// listen binds the unix socket, clearing a stale socket file left by a
// crashed instance but refusing to displace a live server.
func (d *Daemon) listen() (net.Listener, error) {
	path := d.Config.Daemon.SocketPath
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("create socket dir: %w", err)
	}

	if _, err := os.Stat(path); err == nil {
		if _, err := api.NewClient(path).Status(); err == nil {
			return nil, fmt.Errorf("socket %s is in use: gpuhold is already running", path)
		}
		log.Printf("[daemon] removing stale socket %s", path)
		if err := os.Remove(path); err != nil {
			return nil, fmt.Errorf("remove stale socket: %w", err)
		}
	}

	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("bind control socket: %w", err)
	}
	return ln, nil
}

// Close shuts down all daemon resources.
func (d *Daemon) Close() {
	if d.cancel != nil {
		d.cancel()
	}
	if d.DB != nil {
		_ = d.DB.Close()
	}
	if d.Backend != nil {
		d.Backend.Close()
	}
}

// secs converts a seconds value to a duration, with a fallback for zero.
func secs(s float64, fallback time.Duration) time.Duration {
	if s <= 0 {
		return fallback
	}
	return time.Duration(s * float64(time.Second))
}
