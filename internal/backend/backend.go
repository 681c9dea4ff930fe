// Package backend abstracts the GPU driver layer. The actual CUDA/NVML
// allocation and kernel-launch primitives live behind the DeviceBackend
// interface, allowing clean testing with the simulated implementation.
package backend

import "context"

// DeviceInfo describes one GPU as seen by the backend.
type DeviceInfo struct {
	Index            int
	Name             string
	TotalMemoryBytes uint64
}

// Allocation is an opaque handle for claimed device memory. It is owned
// exclusively by the controller that created it and must be released exactly
// once, on the controller's exit path.
type Allocation interface {
	// Bytes is the size actually allocated.
	Bytes() uint64

	// Release frees the memory. Releasing twice is a programming error and
	// the simulated backend panics on it to make leaks and double-frees loud
	// in tests.
	Release() error
}

// DeviceBackend is the low-level device capability set. All calls take a
// context; a stalled call is a device-level fault, never a daemon fault.
type DeviceBackend interface {
	// ListDevices enumerates devices. An empty list or an error at launch is
	// domain.ErrBackendUnavailable territory.
	ListDevices(ctx context.Context) ([]DeviceInfo, error)

	// FreeMemory returns the device's current free memory in bytes.
	FreeMemory(ctx context.Context, index int) (uint64, error)

	// Utilization returns an instantaneous utilization reading in [0,1].
	Utilization(ctx context.Context, index int) (float64, error)

	// Allocate claims bytes on the device.
	Allocate(ctx context.Context, index int, bytes uint64) (Allocation, error)

	// RunComputeBurst runs operator-sized work back-to-back for roughly the
	// hinted duration, returning when the burst completes.
	RunComputeBurst(ctx context.Context, index int, operatorBytes uint64, durationHint float64) error

	// Close tears the backend down.
	Close()
}
