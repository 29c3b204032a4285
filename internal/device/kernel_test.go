package device

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// addOneKernel writes in[i]+1 to out[i] for i < n.
func addOneKernel(n uint32) KernelFunc {
	return func(inv Invocation, b *Bindings) {
		if inv.GlobalID >= n {
			return
		}
		b.U32(1)[inv.GlobalID] = b.U32(0)[inv.GlobalID] + 1
	}
}

var addOneLayout = []BindingLayout{
	{Binding: 0, Type: BindingReadOnlyStorage},
	{Binding: 1, Type: BindingStorage},
}

func TestCreateShaderModule_Validation(t *testing.T) {
	dev := newTestDevice(t, AdapterOptions{})

	tests := []struct {
		name    string
		desc    KernelDescriptor
		wantErr bool
	}{
		{name: "valid", desc: KernelDescriptor{Entry: addOneKernel(1), WorkgroupSize: 64, Layout: addOneLayout}},
		{name: "no entry", desc: KernelDescriptor{WorkgroupSize: 64, Layout: addOneLayout}, wantErr: true},
		{name: "zero workgroup", desc: KernelDescriptor{Entry: addOneKernel(1), Layout: addOneLayout}, wantErr: true},
		{name: "oversized workgroup", desc: KernelDescriptor{Entry: addOneKernel(1), WorkgroupSize: 1024, Layout: addOneLayout}, wantErr: true},
		{name: "no bindings", desc: KernelDescriptor{Entry: addOneKernel(1), WorkgroupSize: 64}, wantErr: true},
		{
			name: "duplicate binding",
			desc: KernelDescriptor{Entry: addOneKernel(1), WorkgroupSize: 64, Layout: []BindingLayout{
				{Binding: 0, Type: BindingStorage}, {Binding: 0, Type: BindingStorage},
			}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := dev.CreateShaderModule(tt.desc)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidKernel)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestDispatch_PartialLastWorkgroup(t *testing.T) {
	const n = 1000 // not a multiple of 64
	dev := newTestDevice(t, AdapterOptions{Workers: 4})
	ctx := context.Background()

	module, err := dev.CreateShaderModule(KernelDescriptor{Label: "add-one", Entry: addOneKernel(n), WorkgroupSize: 64, Layout: addOneLayout})
	require.NoError(t, err)
	pipeline, err := dev.CreateComputePipeline(ComputePipelineDescriptor{Module: module})
	require.NoError(t, err)

	// Buffers are padded past n so out-of-range writes would be visible.
	const padded = 1024
	in, err := dev.CreateBuffer(BufferDescriptor{Label: "in", Size: padded * 4, Usage: BufferUsageStorage | BufferUsageCopyDst})
	require.NoError(t, err)
	out, err := dev.CreateBuffer(BufferDescriptor{Label: "out", Size: padded * 4, Usage: BufferUsageStorage | BufferUsageCopySrc})
	require.NoError(t, err)
	staging, err := dev.CreateBuffer(BufferDescriptor{Label: "staging", Size: padded * 4, Usage: BufferUsageMapRead | BufferUsageCopyDst})
	require.NoError(t, err)

	data := make([]uint32, padded)
	for i := range data {
		data[i] = uint32(i)
	}
	require.NoError(t, dev.Queue().WriteBuffer(in, 0, data))

	group, err := dev.CreateBindGroup(BindGroupDescriptor{
		Pipeline: pipeline,
		Entries:  []BindGroupEntry{{Binding: 0, Buffer: in}, {Binding: 1, Buffer: out}},
	})
	require.NoError(t, err)

	enc := dev.CreateCommandEncoder("dispatch")
	pass := enc.BeginComputePass()
	pass.SetPipeline(pipeline)
	pass.SetBindGroup(0, group)
	pass.DispatchWorkgroups((n + 63) / 64)
	pass.End()
	enc.CopyBufferToBuffer(out, 0, staging, 0, padded*4)
	cb, err := enc.Finish()
	require.NoError(t, err)
	require.NoError(t, dev.Queue().Submit(cb))

	require.NoError(t, staging.MapAsync(MapModeRead, 0, 0).Wait(ctx))
	got, err := staging.MappedRange(0, 0)
	require.NoError(t, err)
	for i := 0; i < n; i++ {
		require.Equal(t, uint32(i+1), got[i], "index %d", i)
	}
	for i := n; i < padded; i++ {
		require.Zero(t, got[i], "index %d written past n", i)
	}
	require.NoError(t, staging.Unmap())
}

func TestDispatch_EveryInvocationRunsOnce(t *testing.T) {
	dev := newTestDevice(t, AdapterOptions{Workers: 3})

	const groups, size = 37, 32
	var hits [groups * size]atomic.Int32
	kernel := func(inv Invocation, _ *Bindings) {
		if inv.GlobalID != inv.WorkgroupID*size+inv.LocalID {
			panic("inconsistent invocation id")
		}
		hits[inv.GlobalID].Add(1)
	}

	module, err := dev.CreateShaderModule(KernelDescriptor{Entry: kernel, WorkgroupSize: size, Layout: []BindingLayout{{Binding: 0, Type: BindingStorage}}})
	require.NoError(t, err)
	pipeline, err := dev.CreateComputePipeline(ComputePipelineDescriptor{Module: module})
	require.NoError(t, err)
	buf, err := dev.CreateBuffer(BufferDescriptor{Size: 4, Usage: BufferUsageStorage})
	require.NoError(t, err)
	group, err := dev.CreateBindGroup(BindGroupDescriptor{Pipeline: pipeline, Entries: []BindGroupEntry{{Binding: 0, Buffer: buf}}})
	require.NoError(t, err)

	enc := dev.CreateCommandEncoder("count")
	pass := enc.BeginComputePass()
	pass.SetPipeline(pipeline)
	pass.SetBindGroup(0, group)
	pass.DispatchWorkgroups(groups)
	pass.End()
	cb, err := enc.Finish()
	require.NoError(t, err)
	require.NoError(t, dev.Queue().Submit(cb))
	require.NoError(t, dev.Queue().OnSubmittedWorkDone().Wait(context.Background()))
	require.NoError(t, dev.Err())

	for i := range hits {
		require.Equal(t, int32(1), hits[i].Load(), "invocation %d", i)
	}
}

func TestDispatch_KernelFaultLosesDevice(t *testing.T) {
	dev := newTestDevice(t, AdapterOptions{Workers: 2})
	ctx := context.Background()

	kernel := func(inv Invocation, b *Bindings) {
		// No bounds check: indexes past the buffer.
		b.U32(0)[inv.GlobalID] = 1
	}
	module, err := dev.CreateShaderModule(KernelDescriptor{Label: "oob", Entry: kernel, WorkgroupSize: 8, Layout: []BindingLayout{{Binding: 0, Type: BindingStorage}}})
	require.NoError(t, err)
	pipeline, err := dev.CreateComputePipeline(ComputePipelineDescriptor{Module: module})
	require.NoError(t, err)
	buf, err := dev.CreateBuffer(BufferDescriptor{Size: 16, Usage: BufferUsageStorage})
	require.NoError(t, err)
	staging, err := dev.CreateBuffer(BufferDescriptor{Size: 16, Usage: BufferUsageMapRead | BufferUsageCopyDst})
	require.NoError(t, err)
	group, err := dev.CreateBindGroup(BindGroupDescriptor{Pipeline: pipeline, Entries: []BindGroupEntry{{Binding: 0, Buffer: buf}}})
	require.NoError(t, err)

	enc := dev.CreateCommandEncoder("fault")
	pass := enc.BeginComputePass()
	pass.SetPipeline(pipeline)
	pass.SetBindGroup(0, group)
	pass.DispatchWorkgroups(4)
	pass.End()
	cb, err := enc.Finish()
	require.NoError(t, err)
	require.NoError(t, dev.Queue().Submit(cb))

	err = staging.MapAsync(MapModeRead, 0, 16).Wait(ctx)
	require.ErrorIs(t, err, ErrDeviceLost)
	require.ErrorIs(t, err, ErrKernelFault)
	require.ErrorIs(t, dev.Err(), ErrKernelFault)
}

func TestCommandEncoder_Validation(t *testing.T) {
	dev := newTestDevice(t, AdapterOptions{})

	module, err := dev.CreateShaderModule(KernelDescriptor{Entry: addOneKernel(4), WorkgroupSize: 4, Layout: addOneLayout})
	require.NoError(t, err)
	pipeline, err := dev.CreateComputePipeline(ComputePipelineDescriptor{Module: module})
	require.NoError(t, err)
	in, err := dev.CreateBuffer(BufferDescriptor{Size: 16, Usage: BufferUsageStorage | BufferUsageCopyDst})
	require.NoError(t, err)
	out, err := dev.CreateBuffer(BufferDescriptor{Size: 16, Usage: BufferUsageStorage | BufferUsageCopySrc})
	require.NoError(t, err)
	group, err := dev.CreateBindGroup(BindGroupDescriptor{Pipeline: pipeline, Entries: []BindGroupEntry{{Binding: 0, Buffer: in}, {Binding: 1, Buffer: out}}})
	require.NoError(t, err)

	t.Run("dispatch without pipeline", func(t *testing.T) {
		enc := dev.CreateCommandEncoder("")
		pass := enc.BeginComputePass()
		pass.SetBindGroup(0, group)
		pass.DispatchWorkgroups(1)
		pass.End()
		_, err := enc.Finish()
		require.ErrorIs(t, err, ErrInvalidCommand)
	})

	t.Run("too many workgroups", func(t *testing.T) {
		enc := dev.CreateCommandEncoder("")
		pass := enc.BeginComputePass()
		pass.SetPipeline(pipeline)
		pass.SetBindGroup(0, group)
		pass.DispatchWorkgroups(dev.Limits().MaxWorkgroupsPerDimension + 1)
		pass.End()
		_, err := enc.Finish()
		require.ErrorIs(t, err, ErrInvalidCommand)
	})

	t.Run("pass not ended", func(t *testing.T) {
		enc := dev.CreateCommandEncoder("")
		enc.BeginComputePass()
		_, err := enc.Finish()
		require.ErrorIs(t, err, ErrInvalidCommand)
	})

	t.Run("copy from non copy-src", func(t *testing.T) {
		enc := dev.CreateCommandEncoder("")
		enc.CopyBufferToBuffer(in, 0, out, 0, 16)
		_, err := enc.Finish()
		require.ErrorIs(t, err, ErrInvalidUsage)
	})

	t.Run("copy out of range", func(t *testing.T) {
		enc := dev.CreateCommandEncoder("")
		enc.CopyBufferToBuffer(out, 8, in, 0, 16)
		_, err := enc.Finish()
		require.ErrorIs(t, err, ErrOutOfRange)
	})

	t.Run("finish twice", func(t *testing.T) {
		enc := dev.CreateCommandEncoder("")
		_, err := enc.Finish()
		require.NoError(t, err)
		_, err = enc.Finish()
		require.ErrorIs(t, err, ErrInvalidCommand)
	})
}

func TestCreateBindGroup_Validation(t *testing.T) {
	dev := newTestDevice(t, AdapterOptions{})

	module, err := dev.CreateShaderModule(KernelDescriptor{Entry: addOneKernel(4), WorkgroupSize: 4, Layout: addOneLayout})
	require.NoError(t, err)
	pipeline, err := dev.CreateComputePipeline(ComputePipelineDescriptor{Module: module})
	require.NoError(t, err)
	storage, err := dev.CreateBuffer(BufferDescriptor{Size: 16, Usage: BufferUsageStorage})
	require.NoError(t, err)
	staging, err := dev.CreateBuffer(BufferDescriptor{Size: 16, Usage: BufferUsageMapRead | BufferUsageCopyDst})
	require.NoError(t, err)

	_, err = dev.CreateBindGroup(BindGroupDescriptor{Pipeline: pipeline, Entries: []BindGroupEntry{{Binding: 0, Buffer: storage}}})
	assert.ErrorIs(t, err, ErrInvalidBindGroup)

	_, err = dev.CreateBindGroup(BindGroupDescriptor{Pipeline: pipeline, Entries: []BindGroupEntry{{Binding: 0, Buffer: storage}, {Binding: 1, Buffer: staging}}})
	assert.ErrorIs(t, err, ErrInvalidUsage)

	_, err = dev.CreateBindGroup(BindGroupDescriptor{Pipeline: pipeline, Entries: []BindGroupEntry{{Binding: 0, Buffer: storage}, {Binding: 5, Buffer: storage}}})
	assert.ErrorIs(t, err, ErrInvalidBindGroup)
}
