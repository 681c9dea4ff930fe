package hold

import (
	"time"

	"github.com/gpuhold-net/gpuhold/internal/domain"
)

// Recorder receives hold-session accounting. The sqlite ledger implements it;
// NopRecorder is used when persistence is disabled and in most tests.
type Recorder interface {
	// SessionStarted is called once per successful acquisition and returns a
	// session id passed back on release.
	SessionStarted(device int, generation uint64, heldBytes uint64, at time.Time) (string, error)

	// SessionEnded is called exactly once per started session.
	SessionEnded(sessionID string, reason domain.ReleaseReason, at time.Time) error

	// Event records a notable per-device occurrence (faults, best-effort
	// convergence, allocation shrinks).
	Event(device int, kind, detail string, at time.Time) error
}

// NopRecorder discards everything.
type NopRecorder struct{}

func (NopRecorder) SessionStarted(int, uint64, uint64, time.Time) (string, error) { return "", nil }
func (NopRecorder) SessionEnded(string, domain.ReleaseReason, time.Time) error    { return nil }
func (NopRecorder) Event(int, string, string, time.Time) error                    { return nil }
