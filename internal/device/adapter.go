package device

import (
	"fmt"
	"runtime"
)

// Backend names a device implementation.
type Backend string

const (
	// BackendCPU runs kernels on worker goroutines.
	BackendCPU Backend = "cpu"
)

// Limits bound what a device accepts.
type Limits struct {
	// MaxBufferSize is the largest single buffer in bytes.
	MaxBufferSize uint64
	// MaxWorkgroupSize is the largest work-group (x dimension).
	MaxWorkgroupSize uint32
	// MaxWorkgroupsPerDimension bounds a single DispatchWorkgroups call.
	MaxWorkgroupsPerDimension uint32
	// MaxBindings is the number of bindings allowed in one bind group.
	MaxBindings int
	// MemoryBudget is the total bytes of live buffers.
	MemoryBudget uint64
}

// DefaultLimits returns the limits of the cpu backend.
func DefaultLimits() Limits {
	return Limits{
		MaxBufferSize:             256 << 20,
		MaxWorkgroupSize:          256,
		MaxWorkgroupsPerDimension: 65535,
		MaxBindings:               8,
		MemoryBudget:              1 << 30,
	}
}

// covers reports whether l is at least as permissive as req.
func (l Limits) covers(req Limits) bool {
	return req.MaxBufferSize <= l.MaxBufferSize &&
		req.MaxWorkgroupSize <= l.MaxWorkgroupSize &&
		req.MaxWorkgroupsPerDimension <= l.MaxWorkgroupsPerDimension &&
		req.MaxBindings <= l.MaxBindings &&
		req.MemoryBudget <= l.MemoryBudget
}

// AdapterOptions selects and sizes an adapter.
type AdapterOptions struct {
	Backend Backend
	// Workers is the number of goroutines executing work-groups.
	// Zero means GOMAXPROCS.
	Workers int
	// MemoryBudget overrides the default budget when non-zero.
	MemoryBudget uint64
}

// AdapterInfo describes an adapter.
type AdapterInfo struct {
	Backend Backend
	Name    string
	Workers int
}

// Adapter represents a physical compute device.
type Adapter struct {
	info   AdapterInfo
	limits Limits
}

// RequestAdapter returns an adapter for the requested backend.
// It fails with ErrNoAdapter when no such backend exists.
func RequestAdapter(opts AdapterOptions) (*Adapter, error) {
	backend := opts.Backend
	if backend == "" {
		backend = BackendCPU
	}
	if backend != BackendCPU {
		return nil, fmt.Errorf("%w: backend %q", ErrNoAdapter, backend)
	}
	if opts.Workers < 0 {
		return nil, fmt.Errorf("%w: negative worker count %d", ErrNoAdapter, opts.Workers)
	}

	workers := opts.Workers
	if workers == 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	limits := DefaultLimits()
	if opts.MemoryBudget > 0 {
		limits.MemoryBudget = opts.MemoryBudget
	}

	return &Adapter{
		info: AdapterInfo{
			Backend: backend,
			Name:    fmt.Sprintf("cpu (%d workers)", workers),
			Workers: workers,
		},
		limits: limits,
	}, nil
}

// Info returns the adapter description.
func (a *Adapter) Info() AdapterInfo {
	return a.info
}

// Limits returns the adapter's supported limits.
func (a *Adapter) Limits() Limits {
	return a.limits
}

// DeviceDescriptor configures RequestDevice.
type DeviceDescriptor struct {
	Label string
	// RequiredLimits, if set, must be covered by the adapter limits.
	// The device then enforces them instead of the adapter's.
	RequiredLimits *Limits
}

// RequestDevice creates a logical device and starts its queue.
func (a *Adapter) RequestDevice(desc DeviceDescriptor) (*Device, error) {
	limits := a.limits
	if desc.RequiredLimits != nil {
		if !a.limits.covers(*desc.RequiredLimits) {
			return nil, fmt.Errorf("%w: %+v", ErrLimitExceeded, *desc.RequiredLimits)
		}
		limits = *desc.RequiredLimits
	}
	return newDevice(desc.Label, limits, a.info.Workers), nil
}
