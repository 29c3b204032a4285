package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"lwwmerge/internal/device"
	"lwwmerge/internal/lww"
)

const (
	// DefaultWorkgroupSize is the number of registers merged per work-group.
	DefaultWorkgroupSize = 128
	// DefaultPoolSize is the number of idle buffer sets kept between calls.
	DefaultPoolSize = 1
)

// Options configures a Dispatcher.
type Options struct {
	// Elements is the number of registers per replica. Every pair passed to
	// Merge must have exactly this length.
	Elements int
	// WorkgroupSize defaults to DefaultWorkgroupSize.
	WorkgroupSize uint32
	// PoolSize defaults to DefaultPoolSize.
	PoolSize int
	// Timeout bounds the wait for readback. Zero waits as long as ctx allows.
	Timeout time.Duration
	Logger  *zap.Logger
}

// Dispatcher merges register pairs on a compute device. It is safe for
// concurrent use: each Merge call owns its buffer set for the duration of
// the call.
type Dispatcher struct {
	dev      *device.Device
	logger   *zap.Logger
	n        uint32
	byteSize uint64
	groups   uint32
	size     uint32
	timeout  time.Duration
	pipeline *device.ComputePipeline
	pool     chan *bufferSet

	mu     sync.Mutex
	closed bool
	// wg counts in-flight Merge calls and abandoned sets awaiting destroy.
	wg     sync.WaitGroup
}

// Open requests an adapter and a device. Failure is a capability error.
func Open(opts device.AdapterOptions, logger *zap.Logger) (*device.Device, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	adapter, err := device.RequestAdapter(opts)
	if err != nil {
		return nil, newError(PhaseSetup, fmt.Errorf("request adapter: %w", err))
	}
	dev, err := adapter.RequestDevice(device.DeviceDescriptor{Label: "lww-merge"})
	if err != nil {
		return nil, newError(PhaseSetup, fmt.Errorf("request device: %w", err))
	}

	info := adapter.Info()
	logger.Info("Acquired compute device",
		zap.String("backend", string(info.Backend)),
		zap.String("adapter", info.Name),
		zap.Int("workers", info.Workers),
		zap.String("memory_budget", humanize.IBytes(dev.Limits().MemoryBudget)),
	)
	return dev, nil
}

// New compiles the merge kernel for opts.Elements registers and prepares the
// buffer pool. The dispatcher does not own dev.
func New(dev *device.Device, opts Options) (*Dispatcher, error) {
	if dev == nil {
		return nil, newError(PhaseSetup, errors.New("nil device"))
	}
	if err := dev.Err(); err != nil {
		return nil, newError(PhaseSetup, err)
	}
	if opts.Elements <= 0 || uint64(opts.Elements) > uint64(^uint32(0)) {
		return nil, newError(PhaseSetup, fmt.Errorf("element count %d out of range", opts.Elements))
	}
	if opts.WorkgroupSize == 0 {
		opts.WorkgroupSize = DefaultWorkgroupSize
	}
	if opts.PoolSize <= 0 {
		opts.PoolSize = DefaultPoolSize
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	n := uint32(opts.Elements)
	module, err := dev.CreateShaderModule(device.KernelDescriptor{
		Label:         "lww-merge",
		Entry:         mergeKernel(n),
		WorkgroupSize: opts.WorkgroupSize,
		Layout:        mergeLayout,
	})
	if err != nil {
		return nil, newError(PhaseSetup, fmt.Errorf("compile kernel: %w", err))
	}
	pipeline, err := dev.CreateComputePipeline(device.ComputePipelineDescriptor{
		Label:  "lww-merge",
		Module: module,
	})
	if err != nil {
		return nil, newError(PhaseSetup, fmt.Errorf("create pipeline: %w", err))
	}

	groups := (n + opts.WorkgroupSize - 1) / opts.WorkgroupSize
	if limit := dev.Limits().MaxWorkgroupsPerDimension; groups > limit {
		return nil, newError(PhaseSetup, fmt.Errorf("%d work-groups of %d exceed device limit %d",
			groups, opts.WorkgroupSize, limit))
	}

	d := &Dispatcher{
		dev:      dev,
		logger:   opts.Logger,
		n:        n,
		byteSize: uint64(n) * 4,
		groups:   groups,
		size:     opts.WorkgroupSize,
		timeout:  opts.Timeout,
		pipeline: pipeline,
		pool:     make(chan *bufferSet, opts.PoolSize),
	}

	d.logger.Debug("Compiled merge kernel",
		zap.Uint32("elements", n),
		zap.Uint32("workgroup_size", d.size),
		zap.Uint32("workgroups", d.groups),
		zap.String("buffer_size", humanize.IBytes(d.byteSize)),
		zap.Int("pool_size", opts.PoolSize),
	)
	return d, nil
}

// Elements returns the number of registers per call.
func (d *Dispatcher) Elements() int {
	return int(d.n)
}

// Workgroups returns the number of work-groups dispatched per call.
func (d *Dispatcher) Workgroups() uint32 {
	return d.groups
}

// Merge uploads the pair, runs the merge kernel over every register and
// returns the merged arrays. It either returns the complete result or an
// error; a failed call never yields a partial output.
func (d *Dispatcher) Merge(ctx context.Context, pair lww.ArrayPair) (lww.Merged, error) {
	if err := pair.Validate(); err != nil {
		return lww.Merged{}, err
	}
	if pair.Len() != int(d.n) {
		return lww.Merged{}, fmt.Errorf("%w: got %d, want %d", ErrElementCount, pair.Len(), d.n)
	}

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return lww.Merged{}, ErrClosed
	}
	d.wg.Add(1)
	d.mu.Unlock()
	defer d.wg.Done()

	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	set, err := d.acquire()
	if err != nil {
		return lww.Merged{}, newError(PhaseUpload, err)
	}

	if err := d.upload(set, pair); err != nil {
		d.release(set)
		return lww.Merged{}, newError(PhaseUpload, err)
	}

	if err := d.submit(set); err != nil {
		d.release(set)
		return lww.Merged{}, newError(PhaseDispatch, err)
	}

	seqMap := set.stagingSeq.MapAsync(device.MapModeRead, 0, d.byteSize)
	valMap := set.stagingVal.MapAsync(device.MapModeRead, 0, d.byteSize)
	if err := seqMap.Wait(ctx); err != nil {
		d.abandon(set)
		return lww.Merged{}, newError(PhaseReadback, fmt.Errorf("map %s: %w", set.stagingSeq.Label(), err))
	}
	if err := valMap.Wait(ctx); err != nil {
		d.abandon(set)
		return lww.Merged{}, newError(PhaseReadback, fmt.Errorf("map %s: %w", set.stagingVal.Label(), err))
	}

	out, err := set.read(d.byteSize)
	if err != nil {
		d.abandon(set)
		return lww.Merged{}, newError(PhaseReadback, err)
	}
	d.release(set)
	return out, nil
}

// upload writes the four replica arrays into the input buffers.
func (d *Dispatcher) upload(set *bufferSet, pair lww.ArrayPair) error {
	q := d.dev.Queue()
	writes := []struct {
		buf  *device.Buffer
		data []uint32
	}{
		{set.seqA, pair.SeqA},
		{set.seqB, pair.SeqB},
		{set.valA, pair.ValA},
		{set.valB, pair.ValB},
	}
	for _, w := range writes {
		if err := q.WriteBuffer(w.buf, 0, w.data); err != nil {
			return fmt.Errorf("write %s: %w", w.buf.Label(), err)
		}
	}
	return nil
}

// submit encodes the dispatch and both output copies into one command
// buffer and submits it.
func (d *Dispatcher) submit(set *bufferSet) error {
	enc := d.dev.CreateCommandEncoder("lww-merge")

	pass := enc.BeginComputePass()
	pass.SetPipeline(d.pipeline)
	pass.SetBindGroup(0, set.group)
	pass.DispatchWorkgroups(d.groups)
	pass.End()

	enc.CopyBufferToBuffer(set.outSeq, 0, set.stagingSeq, 0, d.byteSize)
	enc.CopyBufferToBuffer(set.outVal, 0, set.stagingVal, 0, d.byteSize)

	cb, err := enc.Finish()
	if err != nil {
		return fmt.Errorf("encode: %w", err)
	}
	if err := d.dev.Queue().Submit(cb); err != nil {
		return fmt.Errorf("submit: %w", err)
	}
	return nil
}

// Close rejects new calls, waits for in-flight calls and abandoned sets,
// then destroys pooled buffer sets. It does not destroy the device.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	d.mu.Unlock()

	d.wg.Wait()
	for {
		select {
		case s := <-d.pool:
			s.destroy()
		default:
			return
		}
	}
}
