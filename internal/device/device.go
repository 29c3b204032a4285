package device

import (
	"fmt"
	"sync"

	"github.com/dustin/go-humanize"
)

// Device is a logical connection to an adapter. It owns the memory budget
// and the queue. All methods are safe for concurrent use.
type Device struct {
	label   string
	limits  Limits
	workers int
	queue   *Queue

	mu        sync.Mutex
	allocated uint64
	lostErr   error
}

func newDevice(label string, limits Limits, workers int) *Device {
	d := &Device{
		label:   label,
		limits:  limits,
		workers: workers,
	}
	d.queue = newQueue(d)
	return d
}

// Label returns the device label.
func (d *Device) Label() string {
	return d.label
}

// Limits returns the limits the device enforces.
func (d *Device) Limits() Limits {
	return d.limits
}

// Workers returns the number of goroutines used per dispatch.
func (d *Device) Workers() int {
	return d.workers
}

// Queue returns the device queue.
func (d *Device) Queue() *Queue {
	return d.queue
}

// AllocatedBytes returns the bytes held by live buffers.
func (d *Device) AllocatedBytes() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.allocated
}

// Err returns nil while the device is usable, or an error wrapping
// ErrDeviceLost with the cause once it is lost or destroyed.
func (d *Device) Err() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lostErr
}

// Destroy loses the device and stops the queue goroutine. Pending queue
// operations fail with ErrDeviceLost.
func (d *Device) Destroy() {
	d.lose(fmt.Errorf("%w: destroyed", ErrDeviceLost))
	d.queue.stop()
}

// lose records the first loss cause.
func (d *Device) lose(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.lostErr == nil {
		d.lostErr = err
	}
}

// reserve charges size bytes against the memory budget.
func (d *Device) reserve(label string, size uint64) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.lostErr != nil {
		return d.lostErr
	}
	if d.allocated+size > d.limits.MemoryBudget {
		return fmt.Errorf("%w: buffer %q needs %s, %s of %s in use",
			ErrOutOfMemory, label,
			humanize.IBytes(size), humanize.IBytes(d.allocated), humanize.IBytes(d.limits.MemoryBudget))
	}
	d.allocated += size
	return nil
}

func (d *Device) release(size uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.allocated -= size
}
