package device

import "fmt"

// BindingType is the access a kernel has to a bound buffer.
type BindingType int

const (
	BindingReadOnlyStorage BindingType = iota
	BindingStorage
)

func (t BindingType) String() string {
	switch t {
	case BindingReadOnlyStorage:
		return "read-only-storage"
	case BindingStorage:
		return "storage"
	default:
		return fmt.Sprintf("BindingType(%d)", int(t))
	}
}

// BindingLayout declares one binding slot of a kernel.
type BindingLayout struct {
	Binding int
	Type    BindingType
}

// Invocation identifies one kernel invocation within a dispatch.
type Invocation struct {
	GlobalID    uint32
	LocalID     uint32
	WorkgroupID uint32
}

// Bindings gives a kernel access to the buffers of its bind group.
type Bindings struct {
	views [][]uint32
}

// U32 returns the words of the buffer bound at binding.
func (b *Bindings) U32(binding int) []uint32 {
	return b.views[binding]
}

// KernelFunc is the body executed once per invocation. Invocations of the
// same dispatch run concurrently and in no defined order.
type KernelFunc func(inv Invocation, b *Bindings)

// KernelDescriptor configures CreateShaderModule.
type KernelDescriptor struct {
	Label         string
	Entry         KernelFunc
	WorkgroupSize uint32
	Layout        []BindingLayout
}

// ShaderModule is a compiled kernel.
type ShaderModule struct {
	label         string
	entry         KernelFunc
	workgroupSize uint32
	layout        []BindingLayout
}

// CreateShaderModule validates a kernel against the device limits.
func (d *Device) CreateShaderModule(desc KernelDescriptor) (*ShaderModule, error) {
	if desc.Entry == nil {
		return nil, fmt.Errorf("%w: %q has no entry point", ErrInvalidKernel, desc.Label)
	}
	if desc.WorkgroupSize == 0 || desc.WorkgroupSize > d.limits.MaxWorkgroupSize {
		return nil, fmt.Errorf("%w: %q workgroup size %d outside [1, %d]",
			ErrInvalidKernel, desc.Label, desc.WorkgroupSize, d.limits.MaxWorkgroupSize)
	}
	if len(desc.Layout) == 0 || len(desc.Layout) > d.limits.MaxBindings {
		return nil, fmt.Errorf("%w: %q declares %d bindings, max %d",
			ErrInvalidKernel, desc.Label, len(desc.Layout), d.limits.MaxBindings)
	}

	seen := make(map[int]bool, len(desc.Layout))
	for _, l := range desc.Layout {
		if l.Binding < 0 || l.Binding >= d.limits.MaxBindings {
			return nil, fmt.Errorf("%w: %q binding %d out of range", ErrInvalidKernel, desc.Label, l.Binding)
		}
		if seen[l.Binding] {
			return nil, fmt.Errorf("%w: %q binding %d declared twice", ErrInvalidKernel, desc.Label, l.Binding)
		}
		if l.Type != BindingReadOnlyStorage && l.Type != BindingStorage {
			return nil, fmt.Errorf("%w: %q binding %d has type %s", ErrInvalidKernel, desc.Label, l.Binding, l.Type)
		}
		seen[l.Binding] = true
	}

	return &ShaderModule{
		label:         desc.Label,
		entry:         desc.Entry,
		workgroupSize: desc.WorkgroupSize,
		layout:        append([]BindingLayout(nil), desc.Layout...),
	}, nil
}

// WorkgroupSize returns the number of invocations per work-group.
func (m *ShaderModule) WorkgroupSize() uint32 {
	return m.workgroupSize
}

// ComputePipeline binds a shader module for dispatch.
type ComputePipeline struct {
	device *Device
	label  string
	module *ShaderModule
}

// ComputePipelineDescriptor configures CreateComputePipeline.
type ComputePipelineDescriptor struct {
	Label  string
	Module *ShaderModule
}

// CreateComputePipeline creates a pipeline for module.
func (d *Device) CreateComputePipeline(desc ComputePipelineDescriptor) (*ComputePipeline, error) {
	if desc.Module == nil {
		return nil, fmt.Errorf("%w: pipeline %q has no module", ErrInvalidKernel, desc.Label)
	}
	if err := d.Err(); err != nil {
		return nil, err
	}
	return &ComputePipeline{device: d, label: desc.Label, module: desc.Module}, nil
}

// Layout returns the binding layout of the pipeline's kernel.
func (p *ComputePipeline) Layout() []BindingLayout {
	return append([]BindingLayout(nil), p.module.layout...)
}

// BindGroupEntry attaches a whole buffer to a binding slot.
type BindGroupEntry struct {
	Binding int
	Buffer  *Buffer
}

// BindGroupDescriptor configures CreateBindGroup.
type BindGroupDescriptor struct {
	Label    string
	Pipeline *ComputePipeline
	Entries  []BindGroupEntry
}

// BindGroup is a set of buffers matching a pipeline layout.
type BindGroup struct {
	label    string
	pipeline *ComputePipeline
	buffers  []*Buffer // indexed by binding, nil for unused slots
}

// CreateBindGroup checks that entries cover the pipeline layout exactly and
// that every buffer belongs to d and has STORAGE usage.
func (d *Device) CreateBindGroup(desc BindGroupDescriptor) (*BindGroup, error) {
	if desc.Pipeline == nil {
		return nil, fmt.Errorf("%w: %q has no pipeline", ErrInvalidBindGroup, desc.Label)
	}

	layout := desc.Pipeline.module.layout
	maxBinding := 0
	for _, l := range layout {
		if l.Binding > maxBinding {
			maxBinding = l.Binding
		}
	}
	buffers := make([]*Buffer, maxBinding+1)

	declared := make(map[int]bool, len(layout))
	for _, l := range layout {
		declared[l.Binding] = true
	}

	for _, e := range desc.Entries {
		if !declared[e.Binding] {
			return nil, fmt.Errorf("%w: %q binding %d not in layout", ErrInvalidBindGroup, desc.Label, e.Binding)
		}
		if buffers[e.Binding] != nil {
			return nil, fmt.Errorf("%w: %q binding %d bound twice", ErrInvalidBindGroup, desc.Label, e.Binding)
		}
		if e.Buffer == nil || e.Buffer.device != d {
			return nil, fmt.Errorf("%w: %q binding %d has no buffer of this device", ErrInvalidBindGroup, desc.Label, e.Binding)
		}
		if !e.Buffer.usage.Has(BufferUsageStorage) {
			return nil, fmt.Errorf("%w: %q binding %d buffer %q is %s",
				ErrInvalidUsage, desc.Label, e.Binding, e.Buffer.label, e.Buffer.usage)
		}
		buffers[e.Binding] = e.Buffer
	}
	if len(desc.Entries) != len(layout) {
		return nil, fmt.Errorf("%w: %q has %d entries, layout has %d",
			ErrInvalidBindGroup, desc.Label, len(desc.Entries), len(layout))
	}

	return &BindGroup{label: desc.Label, pipeline: desc.Pipeline, buffers: buffers}, nil
}

// Label returns the bind group label.
func (g *BindGroup) Label() string {
	return g.label
}
