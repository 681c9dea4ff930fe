package domain

// ─── Control Protocol ───────────────────────────────────────────────────────
// JSON request/response bodies exchanged over the unix control socket.
// One request in flight per connection; every response carries OK plus either
// data or a tagged error.

// StartRequest carries field overrides merged onto the daemon's configured
// defaults before validation. Absent fields keep the defaults, so a zero
// value (e.g. hold_util_target = 0) stays distinguishable from "not set".
type StartRequest struct {
	Patch HoldConfigPatch `json:"patch"`
}

// RestartRequest carries sparse overrides merged onto the active config under
// a new generation.
type RestartRequest struct {
	Patch HoldConfigPatch `json:"patch"`
}

// ErrorBody is the failure half of every response.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// CommandResponse acknowledges a mutating command.
type CommandResponse struct {
	OK         bool        `json:"ok"`
	Error      *ErrorBody  `json:"error,omitempty"`
	Generation uint64      `json:"generation,omitempty"`
	Applied    *HoldConfig `json:"applied,omitempty"`
}

// StatusResponse is the pure read of daemon state.
type StatusResponse struct {
	OK            bool           `json:"ok"`
	Error         *ErrorBody     `json:"error,omitempty"`
	UptimeSeconds float64        `json:"uptime_seconds"`
	Generation    uint64         `json:"generation"`
	Started       bool           `json:"started"`
	Devices       []DeviceStatus `json:"devices"`
}
