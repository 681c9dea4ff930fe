package sqlite

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/gpuhold-net/gpuhold/internal/domain"
)

// Session is one recorded hold session.
type Session struct {
	ID         string
	Device     int
	Generation uint64
	HeldBytes  uint64
	AcquiredAt time.Time
	ReleasedAt time.Time // zero while the session is open
	Reason     domain.ReleaseReason
}

// Event is one recorded per-device occurrence.
type Event struct {
	Device    int
	Kind      string
	Detail    string
	Timestamp time.Time
}

// SessionStarted implements hold.Recorder.
func (d *DB) SessionStarted(device int, generation uint64, heldBytes uint64, at time.Time) (string, error) {
	id := uuid.New().String()
	_, err := d.db.Exec(
		`INSERT INTO hold_sessions (id, device, generation, held_bytes, acquired_at) VALUES (?, ?, ?, ?, ?)`,
		id, device, int64(generation), int64(heldBytes), at.Unix(),
	)
	if err != nil {
		return "", fmt.Errorf("record session start: %w", err)
	}
	return id, nil
}

// SessionEnded implements hold.Recorder. Closing an already closed session is
// an error: the ledger is the witness for exactly-once release.
func (d *DB) SessionEnded(sessionID string, reason domain.ReleaseReason, at time.Time) error {
	res, err := d.db.Exec(
		`UPDATE hold_sessions SET released_at = ?, reason = ? WHERE id = ? AND released_at IS NULL`,
		at.Unix(), string(reason), sessionID,
	)
	if err != nil {
		return fmt.Errorf("record session end: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n != 1 {
		return fmt.Errorf("session %s already closed or unknown", sessionID)
	}
	return nil
}

// Event implements hold.Recorder.
func (d *DB) Event(device int, kind, detail string, at time.Time) error {
	_, err := d.db.Exec(
		`INSERT INTO device_events (device, kind, detail, timestamp) VALUES (?, ?, ?, ?)`,
		device, kind, detail, at.Unix(),
	)
	if err != nil {
		return fmt.Errorf("record event: %w", err)
	}
	return nil
}

// Sessions returns the recorded sessions for a device, newest first.
func (d *DB) Sessions(device int) ([]Session, error) {
	rows, err := d.db.Query(
		`SELECT id, device, generation, held_bytes, acquired_at, released_at, reason
		 FROM hold_sessions WHERE device = ? ORDER BY acquired_at DESC`, device)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		var s Session
		var gen, held, acquired int64
		var released *int64
		var reason *string
		if err := rows.Scan(&s.ID, &s.Device, &gen, &held, &acquired, &released, &reason); err != nil {
			return nil, err
		}
		s.Generation = uint64(gen)
		s.HeldBytes = uint64(held)
		s.AcquiredAt = time.Unix(acquired, 0)
		if released != nil {
			s.ReleasedAt = time.Unix(*released, 0)
		}
		if reason != nil {
			s.Reason = domain.ReleaseReason(*reason)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// OpenSessions counts sessions without a recorded release.
func (d *DB) OpenSessions() (int, error) {
	var n int
	err := d.db.QueryRow(`SELECT COUNT(*) FROM hold_sessions WHERE released_at IS NULL`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count open sessions: %w", err)
	}
	return n, nil
}
