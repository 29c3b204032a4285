package device

import (
	"context"
	"fmt"
	"sync"
)

const queueDepth = 256

// queueOp is one unit of queue work. fail is called instead of run when the
// device is already lost.
type queueOp interface {
	run(ctx context.Context, d *Device) error
	fail(err error)
}

// Queue executes writes, submissions and map requests in submission order on
// a single goroutine.
type Queue struct {
	device *Device
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	closed bool
	ops    chan queueOp
	wg     sync.WaitGroup
}

func newQueue(d *Device) *Queue {
	ctx, cancel := context.WithCancel(context.Background())
	q := &Queue{
		device: d,
		ctx:    ctx,
		cancel: cancel,
		ops:    make(chan queueOp, queueDepth),
	}
	q.wg.Add(1)
	go q.loop()
	return q
}

func (q *Queue) loop() {
	defer q.wg.Done()
	for op := range q.ops {
		if err := q.device.Err(); err != nil {
			op.fail(err)
			continue
		}
		if err := op.run(q.ctx, q.device); err != nil {
			q.device.lose(fmt.Errorf("%w: %w", ErrDeviceLost, err))
		}
	}
}

func (q *Queue) enqueue(op queueOp) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return fmt.Errorf("%w: queue stopped", ErrDeviceLost)
	}
	q.ops <- op
	return nil
}

// stop closes the queue and waits for the goroutine to drain it.
func (q *Queue) stop() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.ops)
	q.cancel()
	q.mu.Unlock()

	q.wg.Wait()
}

// WriteBuffer schedules a copy of data into buffer at offset bytes. The data
// is copied before WriteBuffer returns, so the caller may reuse it.
func (q *Queue) WriteBuffer(buffer *Buffer, offset uint64, data []uint32) error {
	if err := q.device.Err(); err != nil {
		return err
	}
	if buffer == nil || buffer.device != q.device {
		return fmt.Errorf("%w: write to foreign or nil buffer", ErrInvalidCommand)
	}
	if !buffer.usage.Has(BufferUsageCopyDst) {
		return fmt.Errorf("%w: write to %q (%s)", ErrInvalidUsage, buffer.label, buffer.usage)
	}
	if err := buffer.checkRange(offset, uint64(len(data))*4); err != nil {
		return err
	}
	if err := buffer.checkQueueUse(); err != nil {
		return err
	}

	return q.enqueue(&writeOp{
		buffer: buffer,
		offset: offset / 4,
		data:   append([]uint32(nil), data...),
	})
}

// Submit schedules command buffers for execution. Every buffer they
// reference must be unmapped and alive.
func (q *Queue) Submit(buffers ...*CommandBuffer) error {
	if err := q.device.Err(); err != nil {
		return err
	}

	var commands []command
	for _, cb := range buffers {
		if cb == nil {
			return fmt.Errorf("%w: nil command buffer", ErrInvalidCommand)
		}
		if cb.submitted {
			return fmt.Errorf("%w: command buffer %q already submitted", ErrInvalidCommand, cb.label)
		}
		for _, c := range cb.commands {
			for _, b := range c.buffers() {
				if err := b.checkQueueUse(); err != nil {
					return err
				}
			}
		}
		commands = append(commands, cb.commands...)
	}
	for _, cb := range buffers {
		cb.submitted = true
	}

	return q.enqueue(&submitOp{commands: commands})
}

// OnSubmittedWorkDone returns a future that resolves once all work enqueued
// before the call has executed.
func (q *Queue) OnSubmittedWorkDone() *Future {
	f := newFuture()
	if err := q.enqueue(&doneOp{future: f}); err != nil {
		f.resolve(err)
	}
	return f
}

type writeOp struct {
	buffer *Buffer
	offset uint64
	data   []uint32
}

func (o *writeOp) run(context.Context, *Device) error {
	copy(o.buffer.words[o.offset:], o.data)
	return nil
}

func (o *writeOp) fail(error) {}

type submitOp struct {
	commands []command
}

func (o *submitOp) run(ctx context.Context, d *Device) error {
	for _, c := range o.commands {
		if err := c.execute(ctx, d); err != nil {
			return err
		}
	}
	return nil
}

func (o *submitOp) fail(error) {}

type mapOp struct {
	buffer *Buffer
	future *Future
}

func (o *mapOp) run(context.Context, *Device) error {
	o.buffer.completeMap(o.future)
	return nil
}

func (o *mapOp) fail(err error) {
	o.buffer.failMap(o.future, err)
}

type doneOp struct {
	future *Future
}

func (o *doneOp) run(context.Context, *Device) error {
	o.future.resolve(nil)
	return nil
}

func (o *doneOp) fail(err error) {
	o.future.resolve(err)
}
