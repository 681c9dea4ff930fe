package health

import (
	"context"
	"net"
	"path/filepath"
	"testing"

	"github.com/gpuhold-net/gpuhold/internal/backend"
)

func TestCheckerAllHealthy(t *testing.T) {
	sock := filepath.Join(t.TempDir(), "gpuhold.sock")
	ln, err := net.Listen("unix", sock)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	c := NewChecker(nil, backend.NewSim(1, 1<<30), sock)
	c.runAll(context.Background())

	statuses := c.Statuses()
	if len(statuses) != 2 {
		t.Fatalf("len(Statuses) = %d, want 2 (socket, backend)", len(statuses))
	}
	for _, s := range statuses {
		if !s.Healthy {
			t.Errorf("check %q unhealthy: %s", s.Name, s.Error)
		}
		if s.CheckedAt.IsZero() {
			t.Errorf("check %q has zero timestamp", s.Name)
		}
	}
	if !c.IsHealthy() {
		t.Error("IsHealthy() = false with all checks passing")
	}
}

func TestCheckerMissingSocket(t *testing.T) {
	c := NewChecker(nil, backend.NewSim(1, 1<<30), filepath.Join(t.TempDir(), "gone.sock"))
	c.runAll(context.Background())

	if c.IsHealthy() {
		t.Fatal("IsHealthy() = true with the control socket missing")
	}
	for _, s := range c.Statuses() {
		if s.Name == "control_socket" && s.Healthy {
			t.Error("control_socket check passed for a missing socket")
		}
	}
}

func TestCheckerEmptyBackend(t *testing.T) {
	sock := filepath.Join(t.TempDir(), "gpuhold.sock")
	ln, err := net.Listen("unix", sock)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	c := NewChecker(nil, backend.NewSim(0, 0), sock)
	c.runAll(context.Background())

	if c.IsHealthy() {
		t.Fatal("IsHealthy() = true with a device-less backend")
	}
}

func TestCheckerBeforeFirstRun(t *testing.T) {
	c := NewChecker(nil, backend.NewSim(1, 1<<30), "unused")
	if len(c.Statuses()) != 0 {
		t.Error("Statuses() non-empty before the first run")
	}
	if !c.IsHealthy() {
		// vacuously healthy until the first sweep completes
		t.Error("IsHealthy() = false before the first run")
	}
}
