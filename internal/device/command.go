package device

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// command is one recorded operation of a command buffer.
type command interface {
	buffers() []*Buffer
	execute(ctx context.Context, d *Device) error
}

// CommandEncoder records compute passes and copies. Recording errors are
// sticky and reported by Finish.
type CommandEncoder struct {
	device   *Device
	label    string
	commands []command
	err      error
	pass     *ComputePass
	finished bool
}

// CreateCommandEncoder starts recording a command buffer.
func (d *Device) CreateCommandEncoder(label string) *CommandEncoder {
	return &CommandEncoder{device: d, label: label}
}

func (e *CommandEncoder) fail(err error) {
	if e.err == nil {
		e.err = err
	}
}

// BeginComputePass opens a compute pass. Only one pass may be open.
func (e *CommandEncoder) BeginComputePass() *ComputePass {
	p := &ComputePass{encoder: e}
	if e.pass != nil {
		e.fail(fmt.Errorf("%w: %q compute pass already open", ErrInvalidCommand, e.label))
		p.ended = true
		return p
	}
	e.pass = p
	return p
}

// CopyBufferToBuffer copies size bytes from src to dst.
func (e *CommandEncoder) CopyBufferToBuffer(src *Buffer, srcOffset uint64, dst *Buffer, dstOffset uint64, size uint64) {
	if e.pass != nil {
		e.fail(fmt.Errorf("%w: %q copy inside compute pass", ErrInvalidCommand, e.label))
		return
	}
	if src == nil || dst == nil || src.device != e.device || dst.device != e.device {
		e.fail(fmt.Errorf("%w: %q copy with foreign or nil buffer", ErrInvalidCommand, e.label))
		return
	}
	if src == dst {
		e.fail(fmt.Errorf("%w: %q copy from %q to itself", ErrInvalidCommand, e.label, src.label))
		return
	}
	if !src.usage.Has(BufferUsageCopySrc) {
		e.fail(fmt.Errorf("%w: copy source %q is %s", ErrInvalidUsage, src.label, src.usage))
		return
	}
	if !dst.usage.Has(BufferUsageCopyDst) {
		e.fail(fmt.Errorf("%w: copy destination %q is %s", ErrInvalidUsage, dst.label, dst.usage))
		return
	}
	if err := src.checkRange(srcOffset, size); err != nil {
		e.fail(err)
		return
	}
	if err := dst.checkRange(dstOffset, size); err != nil {
		e.fail(err)
		return
	}
	e.commands = append(e.commands, &copyCommand{
		src: src, srcOffset: srcOffset,
		dst: dst, dstOffset: dstOffset,
		size: size,
	})
}

// Finish ends recording. The returned command buffer may be submitted once.
func (e *CommandEncoder) Finish() (*CommandBuffer, error) {
	if e.finished {
		return nil, fmt.Errorf("%w: %q already finished", ErrInvalidCommand, e.label)
	}
	e.finished = true
	if e.pass != nil {
		e.fail(fmt.Errorf("%w: %q compute pass not ended", ErrInvalidCommand, e.label))
	}
	if e.err != nil {
		return nil, e.err
	}
	return &CommandBuffer{label: e.label, commands: e.commands}, nil
}

// ComputePass records dispatches.
type ComputePass struct {
	encoder   *CommandEncoder
	pipeline  *ComputePipeline
	bindGroup *BindGroup
	ended     bool
}

// SetPipeline selects the pipeline for later dispatches.
func (p *ComputePass) SetPipeline(pipeline *ComputePipeline) {
	if pipeline == nil || pipeline.device != p.encoder.device {
		p.encoder.fail(fmt.Errorf("%w: %q foreign or nil pipeline", ErrInvalidCommand, p.encoder.label))
		return
	}
	p.pipeline = pipeline
}

// SetBindGroup binds group at index. Only index 0 exists.
func (p *ComputePass) SetBindGroup(index int, group *BindGroup) {
	if index != 0 {
		p.encoder.fail(fmt.Errorf("%w: %q bind group index %d", ErrInvalidCommand, p.encoder.label, index))
		return
	}
	if group == nil {
		p.encoder.fail(fmt.Errorf("%w: %q nil bind group", ErrInvalidCommand, p.encoder.label))
		return
	}
	p.bindGroup = group
}

// DispatchWorkgroups records a dispatch of count work-groups.
func (p *ComputePass) DispatchWorkgroups(count uint32) {
	e := p.encoder
	if p.ended {
		e.fail(fmt.Errorf("%w: %q dispatch on ended pass", ErrInvalidCommand, e.label))
		return
	}
	if p.pipeline == nil || p.bindGroup == nil {
		e.fail(fmt.Errorf("%w: %q dispatch without pipeline or bind group", ErrInvalidCommand, e.label))
		return
	}
	if p.bindGroup.pipeline != p.pipeline {
		e.fail(fmt.Errorf("%w: %q bind group %q was created for another pipeline",
			ErrInvalidCommand, e.label, p.bindGroup.label))
		return
	}
	if count > e.device.limits.MaxWorkgroupsPerDimension {
		e.fail(fmt.Errorf("%w: %q dispatch of %d work-groups exceeds %d",
			ErrInvalidCommand, e.label, count, e.device.limits.MaxWorkgroupsPerDimension))
		return
	}
	if count == 0 {
		return
	}
	e.commands = append(e.commands, &dispatchCommand{
		module: p.pipeline.module,
		group:  p.bindGroup,
		count:  count,
	})
}

// End closes the pass.
func (p *ComputePass) End() {
	if p.ended {
		p.encoder.fail(fmt.Errorf("%w: %q pass ended twice", ErrInvalidCommand, p.encoder.label))
		return
	}
	p.ended = true
	if p.encoder.pass == p {
		p.encoder.pass = nil
	}
}

// CommandBuffer is a finished, submittable list of commands.
type CommandBuffer struct {
	label     string
	commands  []command
	submitted bool
}

type copyCommand struct {
	src, dst             *Buffer
	srcOffset, dstOffset uint64
	size                 uint64
}

func (c *copyCommand) buffers() []*Buffer {
	return []*Buffer{c.src, c.dst}
}

func (c *copyCommand) execute(_ context.Context, _ *Device) error {
	s := c.srcOffset / 4
	d := c.dstOffset / 4
	n := c.size / 4
	copy(c.dst.words[d:d+n], c.src.words[s:s+n])
	return nil
}

type dispatchCommand struct {
	module *ShaderModule
	group  *BindGroup
	count  uint32
}

func (c *dispatchCommand) buffers() []*Buffer {
	out := make([]*Buffer, 0, len(c.group.buffers))
	for _, b := range c.group.buffers {
		if b != nil {
			out = append(out, b)
		}
	}
	return out
}

// execute splits the work-groups into contiguous ranges, one per worker.
// A panicking invocation stops the remaining workers and is reported as
// ErrKernelFault.
func (c *dispatchCommand) execute(ctx context.Context, d *Device) error {
	views := make([][]uint32, len(c.group.buffers))
	for i, b := range c.group.buffers {
		if b != nil {
			views[i] = b.words
		}
	}
	bindings := &Bindings{views: views}

	workers := uint32(d.workers)
	if workers > c.count {
		workers = c.count
	}
	if workers == 0 {
		workers = 1
	}
	perWorker := (c.count + workers - 1) / workers
	size := c.module.workgroupSize
	entry := c.module.entry

	g, gctx := errgroup.WithContext(ctx)
	for w := uint32(0); w < workers; w++ {
		start := w * perWorker
		end := start + perWorker
		if end > c.count {
			end = c.count
		}
		if start >= end {
			continue
		}
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("%w: %q work-groups [%d, %d): %v", ErrKernelFault, c.module.label, start, end, r)
				}
			}()
			for wg := start; wg < end; wg++ {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				base := wg * size
				for local := uint32(0); local < size; local++ {
					entry(Invocation{GlobalID: base + local, LocalID: local, WorkgroupID: wg}, bindings)
				}
			}
			return nil
		})
	}

	return g.Wait()
}
