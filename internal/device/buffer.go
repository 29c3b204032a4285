package device

import (
	"fmt"
	"strings"
	"sync"

	"github.com/dustin/go-humanize"
)

// BufferUsage is a bit set of the operations a buffer may take part in.
type BufferUsage uint32

const (
	BufferUsageMapRead BufferUsage = 1 << iota
	BufferUsageMapWrite
	BufferUsageCopySrc
	BufferUsageCopyDst
	BufferUsageStorage
)

// Has reports whether all bits of flag are set.
func (u BufferUsage) Has(flag BufferUsage) bool {
	return u&flag == flag
}

func (u BufferUsage) String() string {
	names := []struct {
		flag BufferUsage
		name string
	}{
		{BufferUsageMapRead, "MAP_READ"},
		{BufferUsageMapWrite, "MAP_WRITE"},
		{BufferUsageCopySrc, "COPY_SRC"},
		{BufferUsageCopyDst, "COPY_DST"},
		{BufferUsageStorage, "STORAGE"},
	}
	var parts []string
	for _, n := range names {
		if u.Has(n.flag) {
			parts = append(parts, n.name)
		}
	}
	if len(parts) == 0 {
		return "NONE"
	}
	return strings.Join(parts, "|")
}

// MapMode selects host read or write access for MapAsync.
type MapMode uint32

const (
	MapModeRead MapMode = iota + 1
	MapModeWrite
)

// BufferDescriptor configures CreateBuffer.
type BufferDescriptor struct {
	Label string
	Size  uint64
	Usage BufferUsage
}

type mapState int

const (
	mapStateUnmapped mapState = iota
	mapStatePending
	mapStateMapped
)

// Buffer is a block of device memory addressed in 32-bit words.
type Buffer struct {
	device *Device
	label  string
	size   uint64
	usage  BufferUsage
	words  []uint32

	mu        sync.Mutex
	state     mapState
	mapFuture *Future
	mapOffset uint64
	mapSize   uint64
	destroyed bool
}

// CreateBuffer allocates a buffer. Size must be a positive multiple of 4.
// Map usages may only be combined with the matching copy usage.
func (d *Device) CreateBuffer(desc BufferDescriptor) (*Buffer, error) {
	if desc.Size == 0 || desc.Size%4 != 0 {
		return nil, fmt.Errorf("%w: %q size %d is not a positive multiple of 4", ErrInvalidBuffer, desc.Label, desc.Size)
	}
	if desc.Size > d.limits.MaxBufferSize {
		return nil, fmt.Errorf("%w: %q size %s exceeds max %s",
			ErrInvalidBuffer, desc.Label, humanize.IBytes(desc.Size), humanize.IBytes(d.limits.MaxBufferSize))
	}
	if desc.Usage == 0 {
		return nil, fmt.Errorf("%w: %q has no usage", ErrInvalidBuffer, desc.Label)
	}
	if desc.Usage.Has(BufferUsageMapRead) && desc.Usage&^(BufferUsageMapRead|BufferUsageCopyDst) != 0 {
		return nil, fmt.Errorf("%w: %q MAP_READ combined with %s", ErrInvalidBuffer, desc.Label, desc.Usage)
	}
	if desc.Usage.Has(BufferUsageMapWrite) && desc.Usage&^(BufferUsageMapWrite|BufferUsageCopySrc) != 0 {
		return nil, fmt.Errorf("%w: %q MAP_WRITE combined with %s", ErrInvalidBuffer, desc.Label, desc.Usage)
	}

	if err := d.reserve(desc.Label, desc.Size); err != nil {
		return nil, err
	}

	return &Buffer{
		device: d,
		label:  desc.Label,
		size:   desc.Size,
		usage:  desc.Usage,
		words:  make([]uint32, desc.Size/4),
	}, nil
}

// Label returns the buffer label.
func (b *Buffer) Label() string {
	return b.label
}

// Size returns the buffer size in bytes.
func (b *Buffer) Size() uint64 {
	return b.size
}

// Usage returns the usage flags the buffer was created with.
func (b *Buffer) Usage() BufferUsage {
	return b.usage
}

// MapAsync starts mapping [offset, offset+size) for host access. The mapping
// completes after all previously submitted queue work. A size of zero maps
// to the end of the buffer. Validation failures are returned through the
// future.
func (b *Buffer) MapAsync(mode MapMode, offset, size uint64) *Future {
	f := newFuture()

	b.mu.Lock()
	if size == 0 && offset <= b.size {
		size = b.size - offset
	}
	if err := b.checkMapLocked(mode, offset, size); err != nil {
		b.mu.Unlock()
		f.resolve(err)
		return f
	}
	b.state = mapStatePending
	b.mapFuture = f
	b.mapOffset = offset
	b.mapSize = size
	b.mu.Unlock()

	// Enqueue outside the lock: the queue goroutine takes b.mu to complete maps.
	if err := b.device.queue.enqueue(&mapOp{buffer: b, future: f}); err != nil {
		b.failMap(f, err)
	}
	return f
}

func (b *Buffer) checkMapLocked(mode MapMode, offset, size uint64) error {
	if b.destroyed {
		return fmt.Errorf("%w: %q", ErrBufferDestroyed, b.label)
	}
	if b.state != mapStateUnmapped {
		return fmt.Errorf("%w: %q", ErrBufferMapped, b.label)
	}
	switch mode {
	case MapModeRead:
		if !b.usage.Has(BufferUsageMapRead) {
			return fmt.Errorf("%w: map read on %q (%s)", ErrInvalidUsage, b.label, b.usage)
		}
	case MapModeWrite:
		if !b.usage.Has(BufferUsageMapWrite) {
			return fmt.Errorf("%w: map write on %q (%s)", ErrInvalidUsage, b.label, b.usage)
		}
	default:
		return fmt.Errorf("%w: unknown map mode %d", ErrInvalidUsage, mode)
	}
	if offset%8 != 0 || size%4 != 0 {
		return fmt.Errorf("%w: map offset %d size %d", ErrUnaligned, offset, size)
	}
	if offset+size > b.size {
		return fmt.Errorf("%w: map [%d, %d) of %q (%d bytes)", ErrOutOfRange, offset, offset+size, b.label, b.size)
	}
	return nil
}

// completeMap is called by the queue when a map operation is reached.
func (b *Buffer) completeMap(f *Future) {
	b.mu.Lock()
	defer b.mu.Unlock()

	// Unmap or Destroy already aborted this request.
	if b.state != mapStatePending || b.mapFuture != f {
		return
	}
	b.state = mapStateMapped
	f.resolve(nil)
}

// failMap resolves a pending map with err and returns the buffer to unmapped.
func (b *Buffer) failMap(f *Future, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == mapStatePending && b.mapFuture == f {
		b.state = mapStateUnmapped
		b.mapFuture = nil
	}
	f.resolve(err)
}

// MappedRange returns a view of [offset, offset+size) of a mapped buffer.
// The range must lie inside the mapped range. The view must not be used
// after Unmap.
func (b *Buffer) MappedRange(offset, size uint64) ([]uint32, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.destroyed {
		return nil, fmt.Errorf("%w: %q", ErrBufferDestroyed, b.label)
	}
	if b.state != mapStateMapped {
		return nil, fmt.Errorf("%w: %q", ErrBufferNotMapped, b.label)
	}
	if size == 0 && offset <= b.mapOffset+b.mapSize {
		size = b.mapOffset + b.mapSize - offset
	}
	if offset%4 != 0 || size%4 != 0 {
		return nil, fmt.Errorf("%w: range offset %d size %d", ErrUnaligned, offset, size)
	}
	if offset < b.mapOffset || offset+size > b.mapOffset+b.mapSize {
		return nil, fmt.Errorf("%w: range [%d, %d) outside mapped [%d, %d)",
			ErrOutOfRange, offset, offset+size, b.mapOffset, b.mapOffset+b.mapSize)
	}
	return b.words[offset/4 : (offset+size)/4 : (offset+size)/4], nil
}

// Unmap releases host access. A pending map is aborted and its future
// resolves with ErrMapAborted. Unmapping an unmapped buffer is a no-op.
func (b *Buffer) Unmap() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.destroyed {
		return fmt.Errorf("%w: %q", ErrBufferDestroyed, b.label)
	}
	b.unmapLocked()
	return nil
}

func (b *Buffer) unmapLocked() {
	if b.state == mapStatePending && b.mapFuture != nil {
		b.mapFuture.resolve(fmt.Errorf("%w: %q", ErrMapAborted, b.label))
	}
	b.state = mapStateUnmapped
	b.mapFuture = nil
	b.mapOffset = 0
	b.mapSize = 0
}

// Destroy unmaps the buffer and returns its memory to the device budget.
// Queue work already submitted against the buffer still completes.
func (b *Buffer) Destroy() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.destroyed {
		return
	}
	b.unmapLocked()
	b.destroyed = true
	b.device.release(b.size)
}

// checkQueueUse validates that the buffer may be referenced by queue work.
func (b *Buffer) checkQueueUse() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.destroyed {
		return fmt.Errorf("%w: %q", ErrBufferDestroyed, b.label)
	}
	if b.state != mapStateUnmapped {
		return fmt.Errorf("%w: %q used in submission", ErrBufferMapped, b.label)
	}
	return nil
}

// checkRange validates a word-aligned byte range inside the buffer.
func (b *Buffer) checkRange(offset, size uint64) error {
	if offset%4 != 0 || size%4 != 0 {
		return fmt.Errorf("%w: %q offset %d size %d", ErrUnaligned, b.label, offset, size)
	}
	if offset+size > b.size {
		return fmt.Errorf("%w: [%d, %d) of %q (%d bytes)", ErrOutOfRange, offset, offset+size, b.label, b.size)
	}
	return nil
}
