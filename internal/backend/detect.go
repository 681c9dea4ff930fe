package backend

import "fmt"

// newPlatform is set by platform backend implementations (the CUDA-backed
// one lives outside this module and registers itself from its init).
var newPlatform func() (DeviceBackend, error)

// RegisterPlatform installs the platform backend constructor.
func RegisterPlatform(fn func() (DeviceBackend, error)) {
	newPlatform = fn
}

// Detect returns the platform device backend, or an error when none is
// compiled in. The daemon treats that as fatal at launch.
func Detect() (DeviceBackend, error) {
	if newPlatform == nil {
		return nil, fmt.Errorf("no device backend compiled in (run with --sim for the simulated backend)")
	}
	return newPlatform()
}
