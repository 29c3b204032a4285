package dispatch

import (
	"fmt"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"lwwmerge/internal/device"
	"lwwmerge/internal/lww"
)

// bufferSet is the device memory used by one merge call: four inputs, two
// outputs, two staging buffers and the bind group tying the first six to the
// merge pipeline.
type bufferSet struct {
	seqA, seqB, valA, valB *device.Buffer
	outSeq, outVal         *device.Buffer
	stagingSeq, stagingVal *device.Buffer
	group                  *device.BindGroup
}

// newBufferSet allocates a buffer set. Partially created sets are destroyed
// on failure.
func (d *Dispatcher) newBufferSet() (*bufferSet, error) {
	s := &bufferSet{}

	buffers := []struct {
		dst   **device.Buffer
		label string
		usage device.BufferUsage
	}{
		{&s.seqA, "seq-a", device.BufferUsageStorage | device.BufferUsageCopyDst},
		{&s.seqB, "seq-b", device.BufferUsageStorage | device.BufferUsageCopyDst},
		{&s.valA, "val-a", device.BufferUsageStorage | device.BufferUsageCopyDst},
		{&s.valB, "val-b", device.BufferUsageStorage | device.BufferUsageCopyDst},
		{&s.outSeq, "out-seq", device.BufferUsageStorage | device.BufferUsageCopySrc},
		{&s.outVal, "out-val", device.BufferUsageStorage | device.BufferUsageCopySrc},
		{&s.stagingSeq, "staging-seq", device.BufferUsageMapRead | device.BufferUsageCopyDst},
		{&s.stagingVal, "staging-val", device.BufferUsageMapRead | device.BufferUsageCopyDst},
	}
	for _, b := range buffers {
		buf, err := d.dev.CreateBuffer(device.BufferDescriptor{
			Label: b.label,
			Size:  d.byteSize,
			Usage: b.usage,
		})
		if err != nil {
			s.destroy()
			return nil, fmt.Errorf("allocate %s: %w", b.label, err)
		}
		*b.dst = buf
	}

	group, err := d.dev.CreateBindGroup(device.BindGroupDescriptor{
		Label:    "lww-merge",
		Pipeline: d.pipeline,
		Entries: []device.BindGroupEntry{
			{Binding: bindingSeqA, Buffer: s.seqA},
			{Binding: bindingSeqB, Buffer: s.seqB},
			{Binding: bindingValA, Buffer: s.valA},
			{Binding: bindingValB, Buffer: s.valB},
			{Binding: bindingOutSeq, Buffer: s.outSeq},
			{Binding: bindingOutVal, Buffer: s.outVal},
		},
	})
	if err != nil {
		s.destroy()
		return nil, fmt.Errorf("bind group: %w", err)
	}
	s.group = group
	return s, nil
}

// destroy releases every allocated buffer of the set.
func (s *bufferSet) destroy() {
	for _, b := range []*device.Buffer{
		s.seqA, s.seqB, s.valA, s.valB,
		s.outSeq, s.outVal, s.stagingSeq, s.stagingVal,
	} {
		if b != nil {
			b.Destroy()
		}
	}
}

// read copies both mapped staging buffers into host memory and unmaps them.
func (s *bufferSet) read(size uint64) (lww.Merged, error) {
	seq, err := s.stagingSeq.MappedRange(0, size)
	if err != nil {
		return lww.Merged{}, err
	}
	val, err := s.stagingVal.MappedRange(0, size)
	if err != nil {
		return lww.Merged{}, err
	}

	out := lww.Merged{
		Seq: append([]uint32(nil), seq...),
		Val: append([]uint32(nil), val...),
	}

	if err := multierr.Append(s.stagingSeq.Unmap(), s.stagingVal.Unmap()); err != nil {
		return lww.Merged{}, err
	}
	return out, nil
}

// acquire takes a pooled set or allocates a new one.
func (d *Dispatcher) acquire() (*bufferSet, error) {
	select {
	case s := <-d.pool:
		return s, nil
	default:
	}
	return d.newBufferSet()
}

// release returns s to the pool, or destroys it when the pool is full or the
// dispatcher is closed.
func (d *Dispatcher) release(s *bufferSet) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		s.destroy()
		return
	}
	select {
	case d.pool <- s:
	default:
		s.destroy()
	}
}

// abandon gives up on a set whose maps may still be pending. Pending maps are
// aborted now; the buffers are destroyed once queued work referencing them
// has drained, so they are never reused.
func (d *Dispatcher) abandon(s *bufferSet) {
	if err := multierr.Append(s.stagingSeq.Unmap(), s.stagingVal.Unmap()); err != nil {
		d.logger.Warn("Unmap of abandoned staging buffers failed", zap.Error(err))
	}

	done := d.dev.Queue().OnSubmittedWorkDone()
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		<-done.Done()
		s.destroy()
	}()
}
