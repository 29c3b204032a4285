package dispatch

import (
	"context"
	"errors"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"lwwmerge/internal/device"
	"lwwmerge/internal/lww"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTestDispatcher(t *testing.T, adapterOpts device.AdapterOptions, opts Options) (*Dispatcher, *device.Device) {
	t.Helper()
	dev, err := Open(adapterOpts, nil)
	require.NoError(t, err)
	t.Cleanup(dev.Destroy)

	d, err := New(dev, opts)
	require.NoError(t, err)
	t.Cleanup(d.Close)
	return d, dev
}

func randomPair(seed uint64, n int) lww.ArrayPair {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	p := lww.NewArrayPair(n)
	for i := 0; i < n; i++ {
		p.SeqA[i] = rng.Uint32N(1001)
		p.ValA[i] = rng.Uint32N(1001)
		p.SeqB[i] = rng.Uint32N(1001)
		p.ValB[i] = rng.Uint32N(1001)
	}
	return p
}

func TestMerge_Scenario(t *testing.T) {
	d, _ := newTestDispatcher(t, device.AdapterOptions{}, Options{Elements: 4})

	pair := lww.ArrayPair{
		SeqA: []uint32{1, 5, 3, 3},
		ValA: []uint32{10, 20, 30, 40},
		SeqB: []uint32{2, 5, 0, 3},
		ValB: []uint32{1, 15, 99, 40},
	}
	got, err := d.Merge(context.Background(), pair)
	require.NoError(t, err)

	want := lww.Merged{
		Seq: []uint32{2, 5, 3, 3},
		Val: []uint32{1, 20, 30, 40},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Merge() mismatch (-want +got):\n%s", diff)
	}
}

func TestMerge_MatchesSequential(t *testing.T) {
	tests := []struct {
		name          string
		elements      int
		workgroupSize uint32
		workers       int
	}{
		{name: "exact multiple", elements: 128 * 64, workgroupSize: 128, workers: 4},
		{name: "partial last group", elements: 10_007, workgroupSize: 128, workers: 3},
		{name: "fewer elements than a group", elements: 5, workgroupSize: 128, workers: 2},
		{name: "single worker", elements: 4_099, workgroupSize: 64, workers: 1},
		{name: "odd workgroup size", elements: 999, workgroupSize: 7, workers: 8},
	}

	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, _ := newTestDispatcher(t,
				device.AdapterOptions{Workers: tt.workers},
				Options{Elements: tt.elements, WorkgroupSize: tt.workgroupSize})

			pair := randomPair(uint64(i+1), tt.elements)
			want, err := lww.MergeSequential(pair)
			require.NoError(t, err)

			got, err := d.Merge(context.Background(), pair)
			require.NoError(t, err)
			require.Len(t, got.Seq, tt.elements)
			require.Len(t, got.Val, tt.elements)
			if diff := cmp.Diff(want, got); diff != "" {
				t.Fatalf("accelerated and sequential outputs differ (-seq +accel):\n%s", diff)
			}
		})
	}
}

func TestMerge_AllEqualReturnsA(t *testing.T) {
	const n = 3_000
	d, _ := newTestDispatcher(t, device.AdapterOptions{}, Options{Elements: n})

	pair := randomPair(42, n)
	copy(pair.SeqB, pair.SeqA)
	copy(pair.ValB, pair.ValA)

	got, err := d.Merge(context.Background(), pair)
	require.NoError(t, err)
	assert.Equal(t, pair.SeqA, got.Seq)
	assert.Equal(t, pair.ValA, got.Val)
}

func TestMerge_ReusesPooledBuffers(t *testing.T) {
	const n = 2_048
	d, dev := newTestDispatcher(t, device.AdapterOptions{}, Options{Elements: n})
	ctx := context.Background()

	_, err := d.Merge(ctx, randomPair(1, n))
	require.NoError(t, err)
	allocated := dev.AllocatedBytes()
	assert.Equal(t, uint64(8*n*4), allocated)

	for i := 0; i < 5; i++ {
		pair := randomPair(uint64(i+2), n)
		got, err := d.Merge(ctx, pair)
		require.NoError(t, err)
		want, err := lww.MergeSequential(pair)
		require.NoError(t, err)
		require.Equal(t, want, got)
		require.Equal(t, allocated, dev.AllocatedBytes())
	}

	d.Close()
	assert.Zero(t, dev.AllocatedBytes())
	_, err = d.Merge(ctx, randomPair(9, n))
	require.ErrorIs(t, err, ErrClosed)
}

func TestMerge_OutOfMemoryIsResourceError(t *testing.T) {
	const n = 1_024
	// Room for seven of the eight buffers in a set.
	budget := uint64(7 * n * 4)
	d, dev := newTestDispatcher(t, device.AdapterOptions{MemoryBudget: budget}, Options{Elements: n})

	_, err := d.Merge(context.Background(), randomPair(1, n))
	require.Error(t, err)
	assert.True(t, IsResource(err), "got %v", err)
	assert.ErrorIs(t, err, device.ErrOutOfMemory)

	var derr *Error
	require.True(t, errors.As(err, &derr))
	assert.Equal(t, PhaseUpload, derr.Phase)
	assert.Zero(t, dev.AllocatedBytes())
}

func TestMerge_TimeoutIsTransferError(t *testing.T) {
	const n = 1 << 20
	d, _ := newTestDispatcher(t, device.AdapterOptions{}, Options{Elements: n, Timeout: time.Nanosecond})

	_, err := d.Merge(context.Background(), randomPair(1, n))
	require.Error(t, err)
	assert.True(t, IsTransfer(err), "got %v", err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	var derr *Error
	require.True(t, errors.As(err, &derr))
	assert.Equal(t, PhaseReadback, derr.Phase)
}

func TestMerge_ElementCountMismatch(t *testing.T) {
	d, _ := newTestDispatcher(t, device.AdapterOptions{}, Options{Elements: 16})

	_, err := d.Merge(context.Background(), randomPair(1, 15))
	require.ErrorIs(t, err, ErrElementCount)

	_, err = d.Merge(context.Background(), lww.ArrayPair{SeqA: []uint32{1}})
	require.ErrorIs(t, err, lww.ErrLengthMismatch)
}

func TestClose_WaitsForInFlightMerge(t *testing.T) {
	const n = 1 << 20
	d, dev := newTestDispatcher(t, device.AdapterOptions{}, Options{Elements: n})
	pair := randomPair(3, n)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		_, err := d.Merge(ctx, pair)
		done <- err
	}()

	// Wait until the call holds device buffers, then cancel it so the set is
	// abandoned while Close runs.
	require.Eventually(t, func() bool { return dev.AllocatedBytes() > 0 },
		5*time.Second, 50*time.Microsecond)
	cancel()
	d.Close()

	select {
	case err := <-done:
		if err != nil {
			assert.ErrorIs(t, err, context.Canceled)
		}
	default:
		t.Fatal("Close returned while Merge was still running")
	}
	assert.Zero(t, dev.AllocatedBytes(), "abandoned and pooled sets must be destroyed by Close")
}

func TestMerge_DeviceLostIsReported(t *testing.T) {
	d, dev := newTestDispatcher(t, device.AdapterOptions{}, Options{Elements: 64})
	dev.Destroy()

	_, err := d.Merge(context.Background(), randomPair(1, 64))
	require.Error(t, err)
	assert.ErrorIs(t, err, device.ErrDeviceLost)
	_, ok := KindOf(err)
	assert.True(t, ok)
}

func TestOpen_UnknownBackendIsCapabilityError(t *testing.T) {
	_, err := Open(device.AdapterOptions{Backend: "metal"}, nil)
	require.Error(t, err)
	assert.True(t, IsCapability(err))
	assert.ErrorIs(t, err, device.ErrNoAdapter)
}

func TestNew_Validation(t *testing.T) {
	dev, err := Open(device.AdapterOptions{}, nil)
	require.NoError(t, err)
	defer dev.Destroy()

	tests := []struct {
		name string
		opts Options
	}{
		{name: "zero elements", opts: Options{Elements: 0}},
		{name: "oversized workgroup", opts: Options{Elements: 1024, WorkgroupSize: 4096}},
		{name: "too many workgroups", opts: Options{Elements: 1 << 20, WorkgroupSize: 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(dev, tt.opts)
			require.Error(t, err)
			assert.True(t, IsCapability(err), "got %v", err)
		})
	}
}

func TestNew_Defaults(t *testing.T) {
	d, _ := newTestDispatcher(t, device.AdapterOptions{}, Options{Elements: lww.DefaultElements})
	assert.Equal(t, lww.DefaultElements, d.Elements())
	assert.Equal(t, uint32(lww.DefaultElements/DefaultWorkgroupSize), d.Workgroups())
}

func BenchmarkMerge(b *testing.B) {
	dev, err := Open(device.AdapterOptions{}, nil)
	if err != nil {
		b.Fatalf("open device: %v", err)
	}
	defer dev.Destroy()

	d, err := New(dev, Options{Elements: lww.DefaultElements})
	if err != nil {
		b.Fatalf("new dispatcher: %v", err)
	}
	defer d.Close()

	pair := randomPair(1, lww.DefaultElements)
	ctx := context.Background()

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := d.Merge(ctx, pair); err != nil {
			b.Fatalf("merge failed: %v", err)
		}
	}
}
